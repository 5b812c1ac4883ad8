package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/atelier/internal/chatbot"
	"github.com/aussiebroadwan/atelier/internal/permissions"
	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
)

func newStorefrontCmd(e *env) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "storefront",
		Short: "Show the storefront home page, or one category's products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := e.open(ctx)
			if err != nil {
				return err
			}

			if category != "" {
				c, err := a.Categories.BySlug(ctx, category)
				if err != nil {
					return err
				}
				products, err := a.Shop.Products(ctx, c.Slug)
				if err != nil {
					return err
				}
				fmt.Fprintf(e.out, "%s\n\n", c.Name)
				if len(products) == 0 {
					fmt.Fprintln(e.out, "No products in this category yet.")
					return nil
				}
				return productTable(e, products)
			}

			home := a.Storefront.Home(ctx)
			if home.Notice != "" {
				fmt.Fprintf(e.out, "! %s\n\n", home.Notice)
			}

			fmt.Fprintln(e.out, "Categories")
			names := make([]string, 0, len(home.Categories.Items))
			for _, c := range home.Categories.Items {
				names = append(names, fmt.Sprintf("%s (%s)", c.Name, c.Slug))
			}
			printSection(e, home.Categories.Err, len(names) == 0, "  "+strings.Join(names, ", "))

			fmt.Fprintln(e.out, "\nFeatured")
			var featured strings.Builder
			for _, p := range home.Featured.Items {
				fmt.Fprintf(&featured, "  %s  %s\n", p.Name, money(p.Price, p.Currency))
			}
			printSection(e, home.Featured.Err, home.Featured.Empty(), strings.TrimRight(featured.String(), "\n"))

			fmt.Fprintln(e.out, "\nPartners")
			partners := make([]string, 0, len(home.Partners.Items))
			for _, p := range home.Partners.Items {
				partners = append(partners, p.Name)
			}
			printSection(e, home.Partners.Err, len(partners) == 0, "  "+strings.Join(partners, ", "))

			fmt.Fprintln(e.out, "\nWhat customers say")
			var quotes strings.Builder
			for _, t := range home.Testimonials.Items {
				fmt.Fprintf(&quotes, "  %q  %s\n", t.Quote, t.Name)
			}
			printSection(e, home.Testimonials.Err, home.Testimonials.Empty(), strings.TrimRight(quotes.String(), "\n"))
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "category slug to browse")
	return cmd
}

func printSection(e *env, err error, empty bool, body string) {
	switch {
	case err != nil:
		fmt.Fprintln(e.out, "  unavailable right now")
	case empty:
		fmt.Fprintln(e.out, "  nothing here yet")
	default:
		fmt.Fprintln(e.out, body)
	}
}

func newChatCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to the shop assistant",
		Long:  `Ask about shipping, returns, sizing or payment. Type "handoff" to send the conversation to our team, "quit" to leave.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := e.open(ctx)
			if err != nil {
				return err
			}

			bot := chatbot.New()
			fmt.Fprintf(e.out, "bot> %s\n", chatbot.Greeting)
			for {
				line, err := e.prompt("you> ")
				if err != nil || line == "quit" || line == "exit" {
					return nil
				}
				if line == "" {
					continue
				}
				if line != "handoff" {
					fmt.Fprintf(e.out, "bot> %s\n", bot.Ask(line))
					continue
				}

				name, err := e.prompt("Your name: ")
				if err != nil {
					return err
				}
				email, err := e.prompt("Your email: ")
				if err != nil {
					return err
				}
				msg, err := bot.Handoff(ctx, a.Client.Messages, name, email)
				var verr shopsdk.ValidationErrors
				switch {
				case errors.Is(err, chatbot.ErrNothingToHandOff):
					fmt.Fprintln(e.out, "bot> Ask me something first, then I can pass it on.")
				case errors.As(err, &verr):
					fmt.Fprintf(e.out, "bot> %s\n", verr.Error())
				case err != nil:
					return err
				default:
					fmt.Fprintf(e.out, "bot> Thanks %s, our team will reply to %s soon.\n", msg.Name, msg.Email)
					bot.Reset()
				}
			}
		},
	}
}

func newNavCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "nav",
		Short: "Show the back-office sections you can open",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			if !a.Session.IsAdmin() {
				fmt.Fprintln(e.out, "This account has no back-office access.")
				return nil
			}
			items := a.Permissions.FilterNavigation(permissions.AdminNavigation)
			rows := make([][]string, 0, len(items))
			for _, it := range items {
				rows = append(rows, []string{it.Label, it.Route})
			}
			return table(e.out, []string{"section", "route"}, rows)
		},
	}
}

func newDashboardCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show back-office totals and recent messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, ok, err := e.permitted(cmd.Context(), "products", "read")
			if err != nil || !ok {
				return err
			}
			st, err := a.Client.Dashboard.Stats(cmd.Context())
			if err != nil {
				return err
			}

			if err := fields(e.out,
				"Products", strconv.Itoa(st.Products),
				"Low stock", strconv.Itoa(st.LowStock),
				"Categories", strconv.Itoa(st.Categories),
				"Partners", strconv.Itoa(st.Partners),
				"Testimonials", strconv.Itoa(st.Testimonials),
				"Users", strconv.Itoa(st.Users),
				"Unread messages", strconv.Itoa(st.UnreadMessages),
			); err != nil {
				return err
			}
			if len(st.RecentMessages) == 0 {
				return nil
			}
			fmt.Fprintln(e.out, "\nRecent messages")
			return messageTable(e, st.RecentMessages)
		},
	}
}
