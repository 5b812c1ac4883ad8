package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
)

// ============================================================================
// Categories
// ============================================================================

func newCategoriesCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"category"},
		Short:   "Manage catalog categories",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List all categories, inactive ones included",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, ok, err := e.permitted(cmd.Context(), "categories", "read")
			if err != nil || !ok {
				return err
			}
			cats, err := a.Client.Categories.List(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(cats))
			for _, c := range cats {
				rows = append(rows, []string{
					c.ID, c.Name, c.Slug, activeLabel(c.IsActive),
					strconv.Itoa(c.SortOrder), strconv.Itoa(c.ProductCount),
				})
			}
			return table(e.out, []string{"id", "name", "slug", "status", "order", "products"}, rows)
		},
	}

	show := &cobra.Command{
		Use:   "show <id|slug>",
		Short: "Show one category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok, err := e.permitted(cmd.Context(), "categories", "read")
			if err != nil || !ok {
				return err
			}
			c, err := findCategory(cmd.Context(), a.Client, args[0])
			if err != nil {
				return err
			}
			return fields(e.out,
				"ID", c.ID,
				"Name", c.Name,
				"Slug", c.Slug,
				"Description", orDash(c.Description),
				"Color", orDash(c.Color),
				"Status", activeLabel(c.IsActive),
				"Sort order", strconv.Itoa(c.SortOrder),
				"Products", strconv.Itoa(c.ProductCount),
			)
		},
	}

	var in shopsdk.CategoryInput
	var inactive bool
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok, err := e.permitted(cmd.Context(), "categories", "create")
			if err != nil || !ok {
				return err
			}
			in.Name = args[0]
			if inactive {
				in.IsActive = new(bool)
			}
			c, err := a.Client.Categories.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Created category %s (%s).\n", c.Name, c.ID)
			return nil
		},
	}
	create.Flags().StringVar(&in.Slug, "slug", "", "URL slug (derived from the name when empty)")
	create.Flags().StringVar(&in.Description, "description", "", "description")
	create.Flags().StringVar(&in.Color, "color", "", "accent colour, e.g. #c0ffee")
	create.Flags().StringVar(&in.Image, "image", "", "image URL")
	create.Flags().BoolVar(&inactive, "inactive", false, "create hidden from the storefront")

	toggle := &cobra.Command{
		Use:   "toggle <id>",
		Short: "Show or hide a category on the storefront",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok, err := e.permitted(cmd.Context(), "categories", "update")
			if err != nil || !ok {
				return err
			}
			c, err := a.Client.Categories.ToggleStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Category %s is now %s.\n", c.Name, activeLabel(c.IsActive))
			return nil
		},
	}

	reorder := &cobra.Command{
		Use:   "reorder <id>...",
		Short: "Set the storefront order of categories, first to last",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok, err := e.permitted(cmd.Context(), "categories", "update")
			if err != nil || !ok {
				return err
			}
			order := make([]shopsdk.CategoryOrder, len(args))
			for i, id := range args {
				order[i] = shopsdk.CategoryOrder{ID: id, SortOrder: i + 1}
			}
			if err := a.Client.Categories.Reorder(cmd.Context(), order); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Reordered %d categories.\n", len(order))
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an empty category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok, err := e.permitted(cmd.Context(), "categories", "delete")
			if err != nil || !ok {
				return err
			}
			if err := a.Client.Categories.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.Shop.InvalidateAll()
			fmt.Fprintf(e.out, "Category %s deleted.\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, show, create, toggle, reorder, del)
	return cmd
}

func findCategory(ctx context.Context, c *shopsdk.Client, ref string) (*shopsdk.Category, error) {
	cat, err := c.Categories.Get(ctx, ref)
	if shopsdk.IsNotFound(err) {
		return c.Categories.GetBySlug(ctx, ref)
	}
	return cat, err
}

// ============================================================================
// Products
// ============================================================================

func newProductsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "products",
		Aliases: []string{"product"},
		Short:   "Manage catalog products",
	}
	cmd.AddCommand(
		newProductsListCmd(e),
		newProductsShowCmd(e),
		newProductsCreateCmd(e),
		newProductsFeatureCmd(e),
		newProductsStatusCmd(e),
		newProductsStockCmd(e),
		newProductsLowStockCmd(e),
		newProductsDeleteCmd(e),
	)
	return cmd
}

func newProductsListCmd(e *env) *cobra.Command {
	var f shopsdk.ProductFilter
	var status string
	var featured bool
	var minPrice, maxPrice float64

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, ok, err := e.permitted(cmd.Context(), "products", "read")
			if err != nil || !ok {
				return err
			}

			flags := cmd.Flags()
			f.Status = shopsdk.ProductStatus(status)
			if flags.Changed("featured") {
				f.Featured = &featured
			}
			if flags.Changed("min-price") {
				f.MinPrice = &minPrice
			}
			if flags.Changed("max-price") {
				f.MaxPrice = &maxPrice
			}

			page, err := a.Client.Products.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			if len(page.Items) == 0 {
				fmt.Fprintln(e.out, "No products match.")
				return nil
			}
			if err := productTable(e, page.Items); err != nil {
				return err
			}
			pageFooter(e.out, page.Pagination)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&f.Page, "page", 1, "page number")
	flags.IntVar(&f.Limit, "limit", 20, "products per page")
	flags.StringVar(&f.Search, "search", "", "match name, description or SKU")
	flags.StringVar(&f.Category, "category", "", "category slug or id")
	flags.StringVar(&status, "status", "", "draft, published, out_of_stock or discontinued")
	flags.BoolVar(&featured, "featured", false, "only featured (or, with =false, non-featured) products")
	flags.Float64Var(&minPrice, "min-price", 0, "minimum price")
	flags.Float64Var(&maxPrice, "max-price", 0, "maximum price")
	flags.StringVar(&f.SortBy, "sort", "", "name, price, stockQuantity or createdAt")
	flags.StringVar(&f.SortOrder, "order", "", "asc or desc")
	return cmd
}

func productTable(e *env, products []shopsdk.Product) error {
	rows := make([][]string, 0, len(products))
	for _, p := range products {
		cat := "-"
		if p.Category != nil {
			cat = p.Category.Slug
		}
		stock := strconv.Itoa(p.StockQuantity)
		if p.IsLowStock() {
			stock += " (low)"
		}
		rows = append(rows, []string{
			p.ID, short(p.Name, 32), cat, money(p.Price, p.Currency),
			stock, string(p.Status), yesNo(p.IsFeatured),
		})
	}
	return table(e.out, []string{"id", "name", "category", "price", "stock", "status", "featured"}, rows)
}

func newProductsShowCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|slug>",
		Short: "Show one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok, err := e.permitted(cmd.Context(), "products", "read")
			if err != nil || !ok {
				return err
			}
			ctx := cmd.Context()
			p, err := a.Client.Products.Get(ctx, args[0])
			if shopsdk.IsNotFound(err) {
				p, err = a.Client.Products.GetBySlug(ctx, args[0])
			}
			if err != nil {
				return err
			}

			cat := "-"
			if p.Category != nil {
				cat = p.Category.Name
			}
			image := "-"
			if img, ok := p.PrimaryImage(); ok {
				image = img.URL
			}
			return fields(e.out,
				"ID", p.ID,
				"Name", p.Name,
				"Slug", p.Slug,
				"SKU", orDash(p.SKU),
				"Category", cat,
				"Price", money(p.Price, p.Currency),
				"Stock", fmt.Sprintf("%d (low at %d)", p.StockQuantity, p.LowStockThreshold),
				"Status", string(p.Status),
				"Featured", yesNo(p.IsFeatured),
				"Sizes", orDash(strings.Join(p.Sizes, ", ")),
				"Colors", orDash(strings.Join(p.Colors, ", ")),
				"Image", image,
				"Summary", orDash(p.ShortDescription),
				"Updated", when(p.UpdatedAt),
			)
		},
	}
}

func newProductsCreateCmd(e *env) *cobra.Command {
	var in shopsdk.ProductInput
	var status string
	var featured bool

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok, err := e.permitted(cmd.Context(), "products", "create")
			if err != nil || !ok {
				return err
			}
			in.Name = args[0]
			in.Status = shopsdk.ProductStatus(status)
			if cmd.Flags().Changed("featured") {
				in.IsFeatured = &featured
			}
			p, err := a.Client.Products.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			a.Shop.InvalidateAll()
			fmt.Fprintf(e.out, "Created product %s (%s).\n", p.Name, p.ID)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Float64Var(&in.Price, "price", 0, "price")
	flags.StringVar(&in.Currency, "currency", "", "ISO currency code (default USD)")
	flags.IntVar(&in.StockQuantity, "stock", 0, "units in stock")
	flags.StringVar(&in.SKU, "sku", "", "stock keeping unit")
	flags.StringVar(&in.CategoryID, "category-id", "", "category id")
	flags.StringVar(&in.ShortDescription, "summary", "", "short description")
	flags.StringVar(&status, "status", "", "initial status (default draft)")
	flags.StringSliceVar(&in.Sizes, "size", nil, "available size, repeatable")
	flags.StringSliceVar(&in.Colors, "color", nil, "available colour, repeatable")
	flags.BoolVar(&featured, "featured", false, "feature on the storefront")
	return cmd
}

func newProductsFeatureCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "feature <id>",
		Short: "Toggle whether a product is featured",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok, err := e.permitted(cmd.Context(), "products", "update")
			if err != nil || !ok {
				return err
			}
			p, err := a.Client.Products.ToggleFeatured(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if p.IsFeatured {
				fmt.Fprintf(e.out, "%s is now featured.\n", p.Name)
			} else {
				fmt.Fprintf(e.out, "%s is no longer featured.\n", p.Name)
			}
			return nil
		},
	}
}

func newProductsStatusCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status <status> <id>...",
		Short: "Set the status of one or more products",
		Long:  `Status is one of draft, published, out_of_stock or discontinued. Several ids are updated in one bulk request.`,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok, err := e.permitted(cmd.Context(), "products", "update")
			if err != nil || !ok {
				return err
			}
			status, ids := shopsdk.ProductStatus(args[0]), args[1:]
			if len(ids) == 1 {
				p, err := a.Client.Products.UpdateStatus(cmd.Context(), ids[0], status)
				if err != nil {
					return err
				}
				fmt.Fprintf(e.out, "%s is now %s.\n", p.Name, p.Status)
			} else {
				if err := a.Client.Products.BulkUpdateStatus(cmd.Context(), ids, status); err != nil {
					return err
				}
				fmt.Fprintf(e.out, "%d products set to %s.\n", len(ids), status)
			}
			a.Shop.InvalidateAll()
			return nil
		},
	}
}

func newProductsStockCmd(e *env) *cobra.Command {
	var op string

	cmd := &cobra.Command{
		Use:   "stock <id> <quantity>",
		Short: "Set, add to or subtract from a product's stock",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quantity must be a whole number: %w", err)
			}
			a, ok, err := e.permitted(cmd.Context(), "products", "update")
			if err != nil || !ok {
				return err
			}
			p, err := a.Client.Products.UpdateStock(cmd.Context(), args[0], qty, shopsdk.StockOperation(op))
			if err != nil {
				return err
			}
			a.Shop.InvalidateAll()
			fmt.Fprintf(e.out, "%s: %d in stock (%s).\n", p.Name, p.StockQuantity, p.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&op, "op", string(shopsdk.StockSet), "set, add or subtract")
	return cmd
}

func newProductsLowStockCmd(e *env) *cobra.Command {
	var threshold int

	cmd := &cobra.Command{
		Use:   "low-stock",
		Short: "List products at or below their low-stock threshold",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, ok, err := e.permitted(cmd.Context(), "products", "read")
			if err != nil || !ok {
				return err
			}
			products, err := a.Client.Products.LowStock(cmd.Context(), threshold)
			if err != nil {
				return err
			}
			if len(products) == 0 {
				fmt.Fprintln(e.out, "Stock levels look fine.")
				return nil
			}
			return productTable(e, products)
		},
	}

	cmd.Flags().IntVar(&threshold, "threshold", 0, "override each product's own threshold")
	return cmd
}

func newProductsDeleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete one or more products",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ok, err := e.permitted(cmd.Context(), "products", "delete")
			if err != nil || !ok {
				return err
			}
			if len(args) == 1 {
				err = a.Client.Products.Delete(cmd.Context(), args[0])
			} else {
				err = a.Client.Products.BulkDelete(cmd.Context(), args)
			}
			if err != nil {
				return err
			}
			a.Shop.InvalidateAll()
			fmt.Fprintf(e.out, "Deleted %d product(s).\n", len(args))
			return nil
		},
	}
}
