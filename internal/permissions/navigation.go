package permissions

// NavItem is one entry of the admin navigation. Items with an empty
// Resource are visible to every admin.
type NavItem struct {
	Label    string
	Route    string
	Resource string
	Action   string
}

// AdminNavigation is the full back-office menu.
var AdminNavigation = []NavItem{
	{Label: "Dashboard", Route: "/admin"},
	{Label: "Products", Route: "/admin/products", Resource: "products", Action: "read"},
	{Label: "Categories", Route: "/admin/categories", Resource: "categories", Action: "read"},
	{Label: "Partners", Route: "/admin/partners", Resource: "partners", Action: "read"},
	{Label: "Testimonials", Route: "/admin/testimonials", Resource: "testimonials", Action: "read"},
	{Label: "Messages", Route: "/admin/messages", Resource: "messages", Action: "read"},
	{Label: "Users", Route: "/admin/users", Resource: "users", Action: "read"},
	{Label: "Security", Route: "/admin/security", Resource: "security", Action: "read"},
}

// FilterNavigation keeps the items the current user may see.
func (s *Store) FilterNavigation(items []NavItem) []NavItem {
	out := make([]NavItem, 0, len(items))
	for _, item := range items {
		if item.Resource == "" || s.HasPermission(item.Resource, item.Action) {
			out = append(out, item)
		}
	}
	return out
}
