package shopsdk

import (
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var (
	slugPattern  = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	colorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
	codePattern  = regexp.MustCompile(`^[0-9]{6}$`)
)

// IsMFACode reports whether code has the shape of a TOTP code: six digits.
func IsMFACode(code string) bool { return codePattern.MatchString(code) }

func isEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// result returns nil for an empty set so callers can return it directly.
func (v ValidationErrors) result() ValidationErrors {
	if len(v) == 0 {
		return nil
	}
	return v
}

// dedupe removes blanks and duplicates, keeping first-seen order.
func dedupe(in []string) []string {
	if in == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// ============================================================================
// Auth
// ============================================================================

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() ValidationErrors {
	errs := ValidationErrors{}
	if blank(r.Email) {
		errs["email"] = "email is required"
	} else if !isEmail(r.Email) {
		errs["email"] = "email is invalid"
	}
	if r.Password == "" {
		errs["password"] = "password is required"
	}
	return errs.result()
}

type PasswordResetRequest struct {
	Email string `json:"email"`
}

func (r PasswordResetRequest) Validate() ValidationErrors {
	if !isEmail(r.Email) {
		return ValidationErrors{"email": "email is invalid"}
	}
	return nil
}

// CreateAdminRequest creates an administrator. SecretKey is the backend's
// bootstrap secret.
type CreateAdminRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	SecretKey string `json:"secretKey"`
}

func (r CreateAdminRequest) Validate() ValidationErrors {
	errs := ValidationErrors{}
	if blank(r.Name) {
		errs["name"] = "name is required"
	}
	if !isEmail(r.Email) {
		errs["email"] = "email is invalid"
	}
	if len(r.Password) < 8 {
		errs["password"] = "password must be at least 8 characters"
	}
	if blank(r.SecretKey) {
		errs["secretKey"] = "secret key is required"
	}
	return errs.result()
}

type mfaCodeRequest struct {
	Token string `json:"token"`
}

func (r mfaCodeRequest) Validate() ValidationErrors {
	if !IsMFACode(r.Token) {
		return ValidationErrors{"token": "code must be 6 digits"}
	}
	return nil
}

type VerifyMFARequest struct {
	TempToken string `json:"tempToken"`
	Code      string `json:"token"`
}

func (r VerifyMFARequest) Validate() ValidationErrors {
	errs := ValidationErrors{}
	if r.TempToken == "" {
		errs["tempToken"] = "temporary token is required"
	}
	if !IsMFACode(r.Code) {
		errs["token"] = "code must be 6 digits"
	}
	return errs.result()
}

type DisableMFARequest struct {
	Password string `json:"password"`
	Code     string `json:"token"`
}

func (r DisableMFARequest) Validate() ValidationErrors {
	errs := ValidationErrors{}
	if r.Password == "" {
		errs["password"] = "password is required"
	}
	if !IsMFACode(r.Code) {
		errs["token"] = "code must be 6 digits"
	}
	return errs.result()
}

// ============================================================================
// Categories
// ============================================================================

type CategoryInput struct {
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
	Image       string `json:"image,omitempty"`
	IsActive    *bool  `json:"isActive,omitempty"`
	SortOrder   *int   `json:"sortOrder,omitempty"`
}

func (r CategoryInput) Validate() ValidationErrors {
	errs := ValidationErrors{}
	if blank(r.Name) {
		errs["name"] = "name is required"
	}
	if r.Slug != "" && !slugPattern.MatchString(r.Slug) {
		errs["slug"] = "slug may only contain lowercase letters, digits and dashes"
	}
	if r.Color != "" && !colorPattern.MatchString(r.Color) {
		errs["color"] = "color must be a hex value like #1a2b3c"
	}
	return errs.result()
}

// CategoryOrder assigns a sort position to a category.
type CategoryOrder struct {
	ID        string `json:"id"`
	SortOrder int    `json:"sortOrder"`
}

type reorderRequest struct {
	Categories []CategoryOrder `json:"categories"`
}

func (r reorderRequest) Validate() ValidationErrors {
	if len(r.Categories) == 0 {
		return ValidationErrors{"categories": "at least one category is required"}
	}
	for _, c := range r.Categories {
		if c.ID == "" {
			return ValidationErrors{"categories": "every entry needs an id"}
		}
	}
	return nil
}

// ============================================================================
// Products
// ============================================================================

type ProductInput struct {
	Name              string         `json:"name"`
	Slug              string         `json:"slug,omitempty"`
	Description       string         `json:"description,omitempty"`
	ShortDescription  string         `json:"shortDescription,omitempty"`
	Price             float64        `json:"price"`
	ComparePrice      *float64       `json:"comparePrice,omitempty"`
	CostPrice         *float64       `json:"costPrice,omitempty"`
	Currency          string         `json:"currency,omitempty"`
	StockQuantity     int            `json:"stockQuantity"`
	LowStockThreshold *int           `json:"lowStockThreshold,omitempty"`
	SKU               string         `json:"sku,omitempty"`
	CategoryID        string         `json:"categoryId,omitempty"`
	Status            ProductStatus  `json:"status,omitempty"`
	IsFeatured        *bool          `json:"isFeatured,omitempty"`
	IsNew             *bool          `json:"isNew,omitempty"`
	Images            []ProductImage `json:"images,omitempty"`
	Sizes             []string       `json:"sizes,omitempty"`
	Colors            []string       `json:"colors,omitempty"`
	Materials         []string       `json:"materials,omitempty"`
	Tags              []string       `json:"tags,omitempty"`
	SEO               *SEO           `json:"seo,omitempty"`
}

func (r ProductInput) Validate() ValidationErrors {
	errs := ValidationErrors{}
	if blank(r.Name) {
		errs["name"] = "name is required"
	}
	if r.Slug != "" && !slugPattern.MatchString(r.Slug) {
		errs["slug"] = "slug may only contain lowercase letters, digits and dashes"
	}
	if r.Price < 0 {
		errs["price"] = "price cannot be negative"
	}
	if r.ComparePrice != nil && *r.ComparePrice < 0 {
		errs["comparePrice"] = "compare price cannot be negative"
	}
	if r.CostPrice != nil && *r.CostPrice < 0 {
		errs["costPrice"] = "cost price cannot be negative"
	}
	if r.StockQuantity < 0 {
		errs["stockQuantity"] = "stock cannot be negative"
	}
	if r.Currency != "" && len(r.Currency) != 3 {
		errs["currency"] = "currency must be a 3-letter code"
	}
	if r.Status != "" && !r.Status.IsValid() {
		errs["status"] = "unknown status"
	}
	for _, img := range r.Images {
		if blank(img.URL) {
			errs["images"] = "every image needs a url"
			break
		}
	}
	return errs.result()
}

// normalized returns a copy with string sets de-duplicated and images in
// sort order.
func (r ProductInput) normalized() ProductInput {
	r.Sizes = dedupe(r.Sizes)
	r.Colors = dedupe(r.Colors)
	r.Materials = dedupe(r.Materials)
	r.Tags = dedupe(r.Tags)
	if r.SEO != nil {
		seo := *r.SEO
		seo.Keywords = dedupe(seo.Keywords)
		r.SEO = &seo
	}
	if len(r.Images) > 0 {
		imgs := make([]ProductImage, len(r.Images))
		copy(imgs, r.Images)
		for i := range imgs {
			imgs[i].SortOrder = i
		}
		r.Images = imgs
	}
	return r
}

// ProductFilter narrows product listings. Zero fields are not sent.
type ProductFilter struct {
	Page      int
	Limit     int
	Search    string
	Category  string
	Status    ProductStatus
	Featured  *bool
	MinPrice  *float64
	MaxPrice  *float64
	SortBy    string
	SortOrder string
}

func (f ProductFilter) values() url.Values {
	return query{}.
		num("page", f.Page).
		num("limit", f.Limit).
		str("search", f.Search).
		str("category", f.Category).
		str("status", string(f.Status)).
		flag("featured", f.Featured).
		decimal("min_price", f.MinPrice).
		decimal("max_price", f.MaxPrice).
		str("sort_by", f.SortBy).
		str("sort_order", f.SortOrder).
		values()
}

// StockOperation says how UpdateStock applies its quantity.
type StockOperation string

const (
	StockSet      StockOperation = "set"
	StockAdd      StockOperation = "add"
	StockSubtract StockOperation = "subtract"
)

type stockRequest struct {
	Quantity  int            `json:"quantity"`
	Operation StockOperation `json:"operation"`
}

func (r stockRequest) Validate() ValidationErrors {
	errs := ValidationErrors{}
	if r.Quantity < 0 {
		errs["quantity"] = "quantity cannot be negative"
	}
	switch r.Operation {
	case StockSet, StockAdd, StockSubtract:
	default:
		errs["operation"] = "operation must be set, add or subtract"
	}
	return errs.result()
}

type productStatusRequest struct {
	Status ProductStatus `json:"status"`
}

func (r productStatusRequest) Validate() ValidationErrors {
	if !r.Status.IsValid() {
		return ValidationErrors{"status": "unknown status"}
	}
	return nil
}

type bulkRequest struct {
	IDs    []string `json:"ids"`
	Status string   `json:"status,omitempty"`
}

func (r bulkRequest) Validate() ValidationErrors {
	if len(r.IDs) == 0 {
		return ValidationErrors{"ids": "select at least one item"}
	}
	return nil
}

// ============================================================================
// Partners and testimonials
// ============================================================================

type PartnerInput struct {
	Name                 string     `json:"name"`
	Description          string     `json:"description,omitempty"`
	Logo                 string     `json:"logo,omitempty"`
	Website              string     `json:"website,omitempty"`
	ContactEmail         string     `json:"contactEmail,omitempty"`
	ContactPhone         string     `json:"contactPhone,omitempty"`
	PartnershipType      string     `json:"partnershipType,omitempty"`
	PartnershipStartDate *time.Time `json:"partnershipStartDate,omitempty"`
	IsActive             *bool      `json:"isActive,omitempty"`
	IsFeatured           *bool      `json:"isFeatured,omitempty"`
	SortOrder            *int       `json:"sortOrder,omitempty"`
}

func (r PartnerInput) Validate() ValidationErrors {
	errs := ValidationErrors{}
	if blank(r.Name) {
		errs["name"] = "name is required"
	}
	if r.Website != "" && !isURL(r.Website) {
		errs["website"] = "website must be an http(s) URL"
	}
	if r.ContactEmail != "" && !isEmail(r.ContactEmail) {
		errs["contactEmail"] = "email is invalid"
	}
	return errs.result()
}

type TestimonialInput struct {
	Name      string `json:"name"`
	Title     string `json:"title,omitempty"`
	Quote     string `json:"quote"`
	Image     string `json:"image,omitempty"`
	IsActive  *bool  `json:"isActive,omitempty"`
	SortOrder *int   `json:"sortOrder,omitempty"`
}

func (r TestimonialInput) Validate() ValidationErrors {
	errs := ValidationErrors{}
	if blank(r.Name) {
		errs["name"] = "name is required"
	}
	if blank(r.Quote) {
		errs["quote"] = "quote is required"
	}
	return errs.result()
}

// ============================================================================
// Messages
// ============================================================================

// ContactRequest is the public contact form.
type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
	Subject string `json:"subject"`
	Message string `json:"message"`
	Source  string `json:"source,omitempty"`
}

func (r ContactRequest) Validate() ValidationErrors {
	errs := ValidationErrors{}
	if blank(r.Name) {
		errs["name"] = "name is required"
	}
	if !isEmail(r.Email) {
		errs["email"] = "email is invalid"
	}
	if blank(r.Subject) {
		errs["subject"] = "subject is required"
	}
	if blank(r.Message) {
		errs["message"] = "message is required"
	}
	return errs.result()
}

// MessageFilter narrows the inbox.
type MessageFilter struct {
	Page      int
	Limit     int
	Status    MessageStatus
	Priority  Priority
	Search    string
	SortBy    string
	SortOrder string
}

func (f MessageFilter) values() url.Values {
	return query{}.
		num("page", f.Page).
		num("limit", f.Limit).
		str("status", string(f.Status)).
		str("priority", string(f.Priority)).
		str("search", f.Search).
		str("sort_by", f.SortBy).
		str("sort_order", f.SortOrder).
		values()
}

// MessageUpdate changes triage fields of a message. Nil fields are left
// untouched.
type MessageUpdate struct {
	Priority   Priority `json:"priority,omitempty"`
	AdminNotes *string  `json:"adminNotes,omitempty"`
}

func (r MessageUpdate) Validate() ValidationErrors {
	if r.Priority != "" && !r.Priority.IsValid() {
		return ValidationErrors{"priority": "unknown priority"}
	}
	return nil
}

type messageStatusRequest struct {
	Status MessageStatus `json:"status"`
}

func (r messageStatusRequest) Validate() ValidationErrors {
	if !r.Status.IsValid() {
		return ValidationErrors{"status": "unknown status"}
	}
	return nil
}

// ============================================================================
// Users
// ============================================================================

type CreateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

func (r CreateUserRequest) Validate() ValidationErrors {
	errs := ValidationErrors{}
	if blank(r.Name) {
		errs["name"] = "name is required"
	}
	if !isEmail(r.Email) {
		errs["email"] = "email is invalid"
	}
	if len(r.Password) < 8 {
		errs["password"] = "password must be at least 8 characters"
	}
	if !r.Role.IsValid() {
		errs["role"] = "unknown role"
	}
	return errs.result()
}

type UpdateUserRequest struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

func (r UpdateUserRequest) Validate() ValidationErrors {
	if r.Email != "" && !isEmail(r.Email) {
		return ValidationErrors{"email": "email is invalid"}
	}
	return nil
}

type roleRequest struct {
	Role Role `json:"role"`
}

func (r roleRequest) Validate() ValidationErrors {
	if !r.Role.IsValid() {
		return ValidationErrors{"role": "unknown role"}
	}
	return nil
}

// ChangePasswordRequest changes the caller's password. ConfirmPassword is
// only checked locally.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"-"`
}

func (r ChangePasswordRequest) Validate() ValidationErrors {
	errs := ValidationErrors{}
	if r.CurrentPassword == "" {
		errs["currentPassword"] = "current password is required"
	}
	if len(r.NewPassword) < 8 {
		errs["newPassword"] = "password must be at least 8 characters"
	}
	if r.NewPassword != r.ConfirmPassword {
		errs["confirmPassword"] = "passwords do not match"
	}
	return errs.result()
}

// UserFilter narrows user listings.
type UserFilter struct {
	Page     int
	Limit    int
	Search   string
	Role     Role
	IsActive *bool
}

func (f UserFilter) values() url.Values {
	return query{}.
		num("page", f.Page).
		num("limit", f.Limit).
		str("search", f.Search).
		str("role", string(f.Role)).
		flag("is_active", f.IsActive).
		values()
}

// PermissionGrant sets one permission for a user.
type PermissionGrant struct {
	PermissionID string `json:"permissionId"`
	IsGranted    bool   `json:"isGranted"`
}

type grantsRequest struct {
	Permissions []PermissionGrant `json:"permissions"`
}

func (r grantsRequest) Validate() ValidationErrors {
	for _, g := range r.Permissions {
		if g.PermissionID == "" {
			return ValidationErrors{"permissions": "every grant needs a permissionId"}
		}
	}
	return nil
}

// ============================================================================
// Security
// ============================================================================

// SecurityLogFilter narrows the audit log.
type SecurityLogFilter struct {
	Page      int
	Limit     int
	EventType string
	RiskLevel RiskLevel
	UserID    string
	From      time.Time
	To        time.Time
}

func (f SecurityLogFilter) values() url.Values {
	q := query{}.
		num("page", f.Page).
		num("limit", f.Limit).
		str("event_type", f.EventType).
		str("risk_level", string(f.RiskLevel)).
		str("user_id", f.UserID)
	if !f.From.IsZero() {
		q.str("start_date", f.From.UTC().Format(time.RFC3339))
	}
	if !f.To.IsZero() {
		q.str("end_date", f.To.UTC().Format(time.RFC3339))
	}
	return q.values()
}
