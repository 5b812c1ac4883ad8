package cli

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/atelier/internal/app"
	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
)

// ============================================================================
// Partners
// ============================================================================

func newPartnersCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "partners",
		Aliases: []string{"partner"},
		Short:   "Manage storefront partners",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all partners",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, ok, err := e.permitted(cmd.Context(), "partners", "read")
			if err != nil || !ok {
				return err
			}
			return e.printPartners(cmd, a)
		},
	}

	toggleFeatured := &cobra.Command{
		Use:   "toggle-featured <id>",
		Short: "Feature or unfeature a partner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok, err := e.permitted(cmd.Context(), "partners", "update")
			if err != nil || !ok {
				return err
			}
			p, err := a.Client.Partners.ToggleFeatured(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "%s featured: %s.\n\n", p.Name, yesNo(p.IsFeatured))
			return e.printPartners(cmd, a)
		},
	}

	toggleStatus := &cobra.Command{
		Use:   "toggle-status <id>",
		Short: "Show or hide a partner on the storefront",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok, err := e.permitted(cmd.Context(), "partners", "update")
			if err != nil || !ok {
				return err
			}
			p, err := a.Client.Partners.ToggleStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "%s is now %s.\n", p.Name, activeLabel(p.IsActive))
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a partner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok, err := e.permitted(cmd.Context(), "partners", "delete")
			if err != nil || !ok {
				return err
			}
			if err := a.Client.Partners.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Partner %s deleted.\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, toggleFeatured, toggleStatus, del)
	return cmd
}

// printPartners reloads the partner list and prints it.
func (e *env) printPartners(cmd *cobra.Command, a *app.Application) error {
	partners, err := a.Client.Partners.List(cmd.Context())
	if err != nil {
		return err
	}
	rows := make([][]string, 0, len(partners))
	for _, p := range partners {
		rows = append(rows, []string{
			p.ID, p.Name, orDash(p.PartnershipType), activeLabel(p.IsActive),
			yesNo(p.IsFeatured), orDash(p.Website),
		})
	}
	return table(e.out, []string{"id", "name", "type", "status", "featured", "website"}, rows)
}

// ============================================================================
// Testimonials
// ============================================================================

func newTestimonialsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "testimonials",
		Aliases: []string{"testimonial"},
		Short:   "Manage customer testimonials",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all testimonials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, ok, err := e.permitted(cmd.Context(), "testimonials", "read")
			if err != nil || !ok {
				return err
			}
			items, err := a.Client.Testimonials.List(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(items))
			for _, t := range items {
				rows = append(rows, []string{t.ID, t.Name, orDash(t.Title), activeLabel(t.IsActive), short(t.Quote, 48)})
			}
			return table(e.out, []string{"id", "name", "title", "status", "quote"}, rows)
		},
	}

	toggle := &cobra.Command{
		Use:   "toggle <id>",
		Short: "Show or hide a testimonial",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok, err := e.permitted(cmd.Context(), "testimonials", "update")
			if err != nil || !ok {
				return err
			}
			t, err := a.Client.Testimonials.ToggleStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Testimonial from %s is now %s.\n", t.Name, activeLabel(t.IsActive))
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a testimonial",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok, err := e.permitted(cmd.Context(), "testimonials", "delete")
			if err != nil || !ok {
				return err
			}
			if err := a.Client.Testimonials.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Testimonial %s deleted.\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, toggle, del)
	return cmd
}

// ============================================================================
// Messages
// ============================================================================

func newMessagesCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "messages",
		Aliases: []string{"inbox"},
		Short:   "Triage contact messages",
	}
	cmd.AddCommand(
		newMessagesListCmd(e),
		newMessagesShowCmd(e),
		newMessagesStatusCmd(e, "read", shopsdk.MessageRead),
		newMessagesReplyCmd(e),
		newMessagesPriorityCmd(e),
		newMessagesDeleteCmd(e),
		newMessagesStatsCmd(e),
		newMessagesExportCmd(e),
	)
	return cmd
}

func messageFilterFlags(cmd *cobra.Command, f *shopsdk.MessageFilter, status, priority *string) {
	flags := cmd.Flags()
	flags.StringVar(status, "status", "", "unread, read or replied")
	flags.StringVar(priority, "priority", "", "low, medium, high or urgent")
	flags.StringVar(&f.Search, "search", "", "match name, email, subject or body")
}

func newMessagesListCmd(e *env) *cobra.Command {
	var f shopsdk.MessageFilter
	var status, priority string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List messages, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, ok, err := e.permitted(cmd.Context(), "messages", "read")
			if err != nil || !ok {
				return err
			}
			f.Status = shopsdk.MessageStatus(status)
			f.Priority = shopsdk.Priority(priority)
			page, err := a.Client.Messages.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			if len(page.Items) == 0 {
				fmt.Fprintln(e.out, "Inbox is empty.")
				return nil
			}
			if err := messageTable(e, page.Items); err != nil {
				return err
			}
			pageFooter(e.out, page.Pagination)
			return nil
		},
	}

	messageFilterFlags(cmd, &f, &status, &priority)
	cmd.Flags().IntVar(&f.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "messages per page")
	cmd.Flags().StringVar(&f.SortBy, "sort", "", "createdAt, name, subject or priority")
	cmd.Flags().StringVar(&f.SortOrder, "order", "", "asc or desc")
	return cmd
}

func messageTable(e *env, msgs []shopsdk.ContactMessage) error {
	rows := make([][]string, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, []string{
			m.ID, when(m.CreatedAt), short(m.Name, 20), short(m.Subject, 36),
			string(m.Status), string(m.Priority),
		})
	}
	return table(e.out, []string{"id", "received", "from", "subject", "status", "priority"}, rows)
}

func newMessagesShowCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a message and mark it read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok, err := e.permitted(cmd.Context(), "messages", "read")
			if err != nil || !ok {
				return err
			}
			m, err := a.Client.Messages.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := fields(e.out,
				"From", fmt.Sprintf("%s <%s>", m.Name, m.Email),
				"Phone", orDash(m.Phone),
				"Company", orDash(m.Company),
				"Subject", m.Subject,
				"Received", when(m.CreatedAt),
				"Status", string(m.Status),
				"Priority", string(m.Priority),
				"Source", orDash(m.Source),
				"Notes", orDash(m.AdminNotes),
			); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "\n%s\n", m.Message)
			return nil
		},
	}
}

func newMessagesStatusCmd(e *env, use string, status shopsdk.MessageStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>...",
		Short: fmt.Sprintf("Mark messages %s", status),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok, err := e.permitted(cmd.Context(), "messages", "update")
			if err != nil || !ok {
				return err
			}
			if len(args) == 1 {
				_, err = a.Client.Messages.UpdateStatus(cmd.Context(), args[0], status)
			} else {
				err = a.Client.Messages.BulkUpdateStatus(cmd.Context(), args, status)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Marked %d message(s) %s.\n", len(args), status)
			return nil
		},
	}
}

func newMessagesReplyCmd(e *env) *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "reply <id>",
		Short: "Mark a message replied and print a mailto link for the answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, ok, err := e.permitted(ctx, "messages", "update")
			if err != nil || !ok {
				return err
			}
			m, err := a.Client.Messages.UpdateStatus(ctx, args[0], shopsdk.MessageReplied)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("notes") {
				if m, err = a.Client.Messages.Update(ctx, m.ID, shopsdk.MessageUpdate{AdminNotes: &notes}); err != nil {
					return err
				}
			}

			link := url.URL{
				Scheme:   "mailto",
				Opaque:   m.Email,
				RawQuery: url.Values{"subject": {"Re: " + m.Subject}}.Encode(),
			}
			fmt.Fprintf(e.out, "Marked replied. Answer %s at:\n%s\n", m.Name, link.String())
			return nil
		},
	}

	cmd.Flags().StringVar(&notes, "notes", "", "internal notes to store on the message")
	return cmd
}

func newMessagesPriorityCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "priority <id> <low|medium|high|urgent>",
		Short: "Change a message's priority",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok, err := e.permitted(cmd.Context(), "messages", "update")
			if err != nil || !ok {
				return err
			}
			m, err := a.Client.Messages.Update(cmd.Context(), args[0], shopsdk.MessageUpdate{Priority: shopsdk.Priority(args[1])})
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Message %s priority is now %s.\n", m.ID, m.Priority)
			return nil
		},
	}
}

func newMessagesDeleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete one or more messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok, err := e.permitted(cmd.Context(), "messages", "delete")
			if err != nil || !ok {
				return err
			}
			if len(args) == 1 {
				err = a.Client.Messages.Delete(cmd.Context(), args[0])
			} else {
				err = a.Client.Messages.BulkDelete(cmd.Context(), args)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Deleted %d message(s).\n", len(args))
			return nil
		},
	}
}

func newMessagesStatsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarise the inbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, ok, err := e.permitted(cmd.Context(), "messages", "read")
			if err != nil || !ok {
				return err
			}
			st, err := a.Client.Messages.Stats(cmd.Context())
			if err != nil {
				return err
			}
			kv := []string{
				"Total", strconv.Itoa(st.Total),
				"Unread", strconv.Itoa(st.Unread),
				"Read", strconv.Itoa(st.Read),
				"Replied", strconv.Itoa(st.Replied),
			}
			for _, p := range []shopsdk.Priority{shopsdk.PriorityUrgent, shopsdk.PriorityHigh, shopsdk.PriorityMedium, shopsdk.PriorityLow} {
				kv = append(kv, "Priority "+string(p), strconv.Itoa(st.ByPriority[p]))
			}
			return fields(e.out, kv...)
		},
	}
}

func newMessagesExportCmd(e *env) *cobra.Command {
	var f shopsdk.MessageFilter
	var status, priority string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download messages as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, ok, err := e.permitted(cmd.Context(), "messages", "read")
			if err != nil || !ok {
				return err
			}
			f.Status = shopsdk.MessageStatus(status)
			f.Priority = shopsdk.Priority(priority)
			blob, err := a.Client.Messages.Export(cmd.Context(), f)
			if err != nil {
				return err
			}
			path, err := blob.Save(e.cfg.DownloadDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Saved %s\n", path)
			return nil
		},
	}

	messageFilterFlags(cmd, &f, &status, &priority)
	return cmd
}
