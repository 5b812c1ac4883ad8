package devserver

import (
	"cmp"
	"net/http"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/atelier/pkg/httpx"
	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
)

var categoryOrder = bySortOrder(
	func(c shopsdk.Category) int { return c.SortOrder },
	func(c shopsdk.Category) string { return c.Name },
)

// categories returns copies with product counts filled in. Callers hold a
// lock.
func (s *Server) categories(activeOnly bool) []shopsdk.Category {
	out := s.st.categories.snapshot(func(c *shopsdk.Category) bool {
		return !activeOnly || c.IsActive
	}, categoryOrder)
	for i := range out {
		out[i].ProductCount = s.st.productCount(out[i].ID)
	}
	return out
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	httpx.WriteData(w, http.StatusOK, s.categories(false))
}

func (s *Server) handleActiveCategories(w http.ResponseWriter, r *http.Request) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	httpx.WriteData(w, http.StatusOK, s.categories(true))
}

func (s *Server) writeCategory(w http.ResponseWriter, code int, c *shopsdk.Category) {
	out := *c
	out.ProductCount = s.st.productCount(c.ID)
	httpx.WriteData(w, code, out)
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	c, ok := s.st.categories.get(r.PathValue("id"))
	if !ok {
		notFound(w, "Category")
		return
	}
	s.writeCategory(w, http.StatusOK, c)
}

func (s *Server) handleCategoryBySlug(w http.ResponseWriter, r *http.Request) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	c, ok := s.st.categoryBySlug(r.PathValue("slug"))
	if !ok {
		notFound(w, "Category")
		return
	}
	s.writeCategory(w, http.StatusOK, c)
}

// applyCategory copies input onto c, checking slug uniqueness. Callers hold
// the write lock.
func (s *Server) applyCategory(w http.ResponseWriter, c *shopsdk.Category, in shopsdk.CategoryInput) bool {
	slug := cmp.Or(in.Slug, slugify(in.Name))
	if other, ok := s.st.categoryBySlug(slug); ok && other.ID != c.ID {
		httpx.WriteValidation(w, map[string]string{"slug": "slug is already in use"})
		return false
	}
	c.Name = strings.TrimSpace(in.Name)
	c.Slug = slug
	c.Description = in.Description
	c.Color = in.Color
	c.Image = in.Image
	c.IsActive = deref(in.IsActive, c.IsActive)
	c.SortOrder = deref(in.SortOrder, c.SortOrder)
	return true
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var in shopsdk.CategoryInput
	if !decode(w, r, &in) {
		return
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	c := &shopsdk.Category{ID: newID(), IsActive: true, SortOrder: len(s.st.categories.rows) + 1}
	if !s.applyCategory(w, c, in) {
		return
	}
	s.st.categories.put(c.ID, c)
	s.writeCategory(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var in shopsdk.CategoryInput
	if !decode(w, r, &in) {
		return
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	c, ok := s.st.categories.get(r.PathValue("id"))
	if !ok {
		notFound(w, "Category")
		return
	}
	next := *c
	if !s.applyCategory(w, &next, in) {
		return
	}
	*c = next
	s.writeCategory(w, http.StatusOK, c)
}

func (s *Server) handleToggleCategory(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	c, ok := s.st.categories.get(r.PathValue("id"))
	if !ok {
		notFound(w, "Category")
		return
	}
	c.IsActive = !c.IsActive
	s.writeCategory(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if _, ok := s.st.categories.get(id); !ok {
		notFound(w, "Category")
		return
	}
	if n := s.st.productCount(id); n > 0 {
		httpx.WriteError(w, http.StatusConflict, "Category still has "+strconv.Itoa(n)+" products")
		return
	}
	s.st.categories.remove(id)
	w.WriteHeader(http.StatusNoContent)
}

type reorderBody struct {
	Categories []shopsdk.CategoryOrder `json:"categories"`
}

func (b reorderBody) Validate() shopsdk.ValidationErrors {
	if len(b.Categories) == 0 {
		return shopsdk.ValidationErrors{"categories": "at least one category is required"}
	}
	return nil
}

func (s *Server) handleReorderCategories(w http.ResponseWriter, r *http.Request) {
	var body reorderBody
	if !decode(w, r, &body) {
		return
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	for _, o := range body.Categories {
		if _, ok := s.st.categories.get(o.ID); !ok {
			notFound(w, "Category "+o.ID)
			return
		}
	}
	for _, o := range body.Categories {
		c, _ := s.st.categories.get(o.ID)
		c.SortOrder = o.SortOrder
	}
	writeMessage(w, http.StatusOK, "Categories reordered")
}

// products

func productLess(sortBy, order string) func(a, b shopsdk.Product) int {
	desc := !strings.EqualFold(order, "asc")
	return func(a, b shopsdk.Product) int {
		var c int
		switch sortBy {
		case "name":
			c = strings.Compare(a.Name, b.Name)
		case "price":
			c = cmp.Compare(a.Price, b.Price)
		case "stockQuantity", "stock":
			c = cmp.Compare(a.StockQuantity, b.StockQuantity)
		default:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		c = cmp.Or(c, strings.Compare(a.ID, b.ID))
		if desc {
			return -c
		}
		return c
	}
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	search := q.Get("search")
	status := shopsdk.ProductStatus(q.Get("status"))
	featured := q.Get("featured")
	minPrice, hasMin := parseFloat(q.Get("minPrice"))
	maxPrice, hasMax := parseFloat(q.Get("maxPrice"))

	s.st.mu.RLock()
	defer s.st.mu.RUnlock()

	categoryID := ""
	if cat := q.Get("category"); cat != "" {
		categoryID = cat
		if c, ok := s.st.categoryBySlug(cat); ok {
			categoryID = c.ID
		}
	}

	items := s.st.products.snapshot(func(p *shopsdk.Product) bool {
		switch {
		case search != "" && !contains(p.Name, search) && !contains(p.Description, search) && !contains(p.SKU, search):
			return false
		case categoryID != "" && p.CategoryID != categoryID:
			return false
		case status != "" && p.Status != status:
			return false
		case featured != "" && strconv.FormatBool(p.IsFeatured) != featured:
			return false
		case hasMin && p.Price < minPrice:
			return false
		case hasMax && p.Price > maxPrice:
			return false
		}
		return true
	}, productLess(q.Get("sortBy"), q.Get("sortOrder")))

	page, p := paginate(items, readPage(r))
	for i := range page {
		page[i] = s.st.withCategory(page[i])
	}
	writeNestedPage(w, page, p)
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

func (s *Server) handleFeaturedProducts(w http.ResponseWriter, r *http.Request) {
	limit := atoiOr(r.URL.Query().Get("limit"), 8)

	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	items := s.st.products.snapshot(func(p *shopsdk.Product) bool {
		return p.IsFeatured && p.Status == shopsdk.ProductPublished
	}, productLess("", "desc"))
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	for i := range items {
		items[i] = s.st.withCategory(items[i])
	}
	httpx.WriteData(w, http.StatusOK, items)
}

func (s *Server) handleLowStock(w http.ResponseWriter, r *http.Request) {
	threshold := atoiOr(r.URL.Query().Get("threshold"), 0)

	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	items := s.st.products.snapshot(func(p *shopsdk.Product) bool {
		if threshold > 0 {
			return p.StockQuantity <= threshold
		}
		return p.IsLowStock()
	}, func(a, b shopsdk.Product) int {
		return cmp.Or(cmp.Compare(a.StockQuantity, b.StockQuantity), strings.Compare(a.Name, b.Name))
	})
	httpx.WriteData(w, http.StatusOK, items)
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	p, ok := s.st.products.get(r.PathValue("id"))
	if !ok {
		notFound(w, "Product")
		return
	}
	httpx.WriteData(w, http.StatusOK, s.st.withCategory(*p))
}

func (s *Server) handleProductBySlug(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	p, ok := s.st.products.find(func(p *shopsdk.Product) bool { return p.Slug == slug })
	if !ok {
		notFound(w, "Product")
		return
	}
	httpx.WriteData(w, http.StatusOK, s.st.withCategory(*p))
}

// applyProduct copies input onto p. Callers hold the write lock.
func (s *Server) applyProduct(w http.ResponseWriter, p *shopsdk.Product, in shopsdk.ProductInput) bool {
	slug := cmp.Or(in.Slug, slugify(in.Name))
	if other, ok := s.st.products.find(func(o *shopsdk.Product) bool { return o.Slug == slug }); ok && other.ID != p.ID {
		httpx.WriteValidation(w, map[string]string{"slug": "slug is already in use"})
		return false
	}
	if in.CategoryID != "" {
		if _, ok := s.st.categories.get(in.CategoryID); !ok {
			httpx.WriteValidation(w, map[string]string{"categoryId": "unknown category"})
			return false
		}
	}

	p.Name = strings.TrimSpace(in.Name)
	p.Slug = slug
	p.Description = in.Description
	p.ShortDescription = in.ShortDescription
	p.Price = in.Price
	p.ComparePrice = deref(in.ComparePrice, p.ComparePrice)
	p.CostPrice = deref(in.CostPrice, p.CostPrice)
	p.Currency = strings.ToUpper(cmp.Or(in.Currency, p.Currency, "USD"))
	p.StockQuantity = in.StockQuantity
	p.LowStockThreshold = deref(in.LowStockThreshold, cmp.Or(p.LowStockThreshold, 5))
	p.SKU = in.SKU
	p.CategoryID = in.CategoryID
	p.Status = cmp.Or(in.Status, p.Status, shopsdk.ProductDraft)
	p.IsFeatured = deref(in.IsFeatured, p.IsFeatured)
	p.IsNew = deref(in.IsNew, p.IsNew)
	p.Images = in.Images
	p.Sizes = in.Sizes
	p.Colors = in.Colors
	p.Materials = in.Materials
	p.Tags = in.Tags
	p.SEO = in.SEO
	p.UpdatedAt = s.now()
	return true
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var in shopsdk.ProductInput
	if !decode(w, r, &in) {
		return
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	p := &shopsdk.Product{ID: newID(), CreatedAt: s.now()}
	if !s.applyProduct(w, p, in) {
		return
	}
	s.st.products.put(p.ID, p)
	httpx.WriteData(w, http.StatusCreated, s.st.withCategory(*p))
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var in shopsdk.ProductInput
	if !decode(w, r, &in) {
		return
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	p, ok := s.st.products.get(r.PathValue("id"))
	if !ok {
		notFound(w, "Product")
		return
	}
	next := *p
	if !s.applyProduct(w, &next, in) {
		return
	}
	*p = next
	httpx.WriteData(w, http.StatusOK, s.st.withCategory(*p))
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if !s.st.products.remove(r.PathValue("id")) {
		notFound(w, "Product")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statusBody[T ~string] struct {
	Status T `json:"status"`
}

func (s *Server) handleProductStatus(w http.ResponseWriter, r *http.Request) {
	var body statusBody[shopsdk.ProductStatus]
	if !decode(w, r, &body) {
		return
	}
	if !body.Status.IsValid() {
		httpx.WriteValidation(w, map[string]string{"status": "unknown status"})
		return
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	p, ok := s.st.products.get(r.PathValue("id"))
	if !ok {
		notFound(w, "Product")
		return
	}
	p.Status = body.Status
	p.UpdatedAt = s.now()
	httpx.WriteData(w, http.StatusOK, s.st.withCategory(*p))
}

func (s *Server) handleToggleFeatured(w http.ResponseWriter, r *http.Request) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	p, ok := s.st.products.get(r.PathValue("id"))
	if !ok {
		notFound(w, "Product")
		return
	}
	p.IsFeatured = !p.IsFeatured
	p.UpdatedAt = s.now()
	httpx.WriteData(w, http.StatusOK, s.st.withCategory(*p))
}

type stockBody struct {
	Quantity  int                    `json:"quantity"`
	Operation shopsdk.StockOperation `json:"operation"`
}

func (s *Server) handleProductStock(w http.ResponseWriter, r *http.Request) {
	var body stockBody
	if !decode(w, r, &body) {
		return
	}
	if body.Quantity < 0 {
		httpx.WriteValidation(w, map[string]string{"quantity": "quantity cannot be negative"})
		return
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	p, ok := s.st.products.get(r.PathValue("id"))
	if !ok {
		notFound(w, "Product")
		return
	}

	stock := p.StockQuantity
	switch body.Operation {
	case shopsdk.StockSet:
		stock = body.Quantity
	case shopsdk.StockAdd:
		stock += body.Quantity
	case shopsdk.StockSubtract:
		stock -= body.Quantity
	default:
		httpx.WriteValidation(w, map[string]string{"operation": "operation must be set, add or subtract"})
		return
	}
	if stock < 0 {
		httpx.WriteError(w, http.StatusBadRequest, "Insufficient stock")
		return
	}

	p.StockQuantity = stock
	switch {
	case stock == 0 && p.Status == shopsdk.ProductPublished:
		p.Status = shopsdk.ProductOutOfStock
	case stock > 0 && p.Status == shopsdk.ProductOutOfStock:
		p.Status = shopsdk.ProductPublished
	}
	p.UpdatedAt = s.now()
	httpx.WriteData(w, http.StatusOK, s.st.withCategory(*p))
}

type bulkBody struct {
	IDs    []string `json:"ids"`
	Status string   `json:"status,omitempty"`
}

func (b bulkBody) Validate() shopsdk.ValidationErrors {
	if len(b.IDs) == 0 {
		return shopsdk.ValidationErrors{"ids": "select at least one item"}
	}
	return nil
}

func (s *Server) handleBulkDeleteProducts(w http.ResponseWriter, r *http.Request) {
	var body bulkBody
	if !decode(w, r, &body) {
		return
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	n := 0
	for _, id := range body.IDs {
		if s.st.products.remove(id) {
			n++
		}
	}
	writeMessage(w, http.StatusOK, strconv.Itoa(n)+" products deleted")
}

func (s *Server) handleBulkProductStatus(w http.ResponseWriter, r *http.Request) {
	var body bulkBody
	if !decode(w, r, &body) {
		return
	}
	status := shopsdk.ProductStatus(body.Status)
	if !status.IsValid() {
		httpx.WriteValidation(w, map[string]string{"status": "unknown status"})
		return
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	now := s.now()
	for _, id := range body.IDs {
		if p, ok := s.st.products.get(id); ok {
			p.Status = status
			p.UpdatedAt = now
		}
	}
	writeMessage(w, http.StatusOK, "Products updated")
}
