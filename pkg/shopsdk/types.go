package shopsdk

import (
	"encoding/json"
	"errors"
	"time"
)

// ============================================================================
// Enums
// ============================================================================

// Role is a user's administrative role.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleUser       Role = "user"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleUser:
		return true
	}
	return false
}

// IsAdmin reports whether the role grants access to the back-office.
func (r Role) IsAdmin() bool { return r == RoleAdmin || r == RoleSuperAdmin }

// ProductStatus is the publication state of a product.
type ProductStatus string

const (
	ProductDraft        ProductStatus = "draft"
	ProductPublished    ProductStatus = "published"
	ProductOutOfStock   ProductStatus = "out_of_stock"
	ProductDiscontinued ProductStatus = "discontinued"
)

func (s ProductStatus) IsValid() bool {
	switch s {
	case ProductDraft, ProductPublished, ProductOutOfStock, ProductDiscontinued:
		return true
	}
	return false
}

// MessageStatus tracks a contact message through the inbox.
type MessageStatus string

const (
	MessageUnread  MessageStatus = "unread"
	MessageRead    MessageStatus = "read"
	MessageReplied MessageStatus = "replied"
)

func (s MessageStatus) IsValid() bool {
	switch s {
	case MessageUnread, MessageRead, MessageReplied:
		return true
	}
	return false
}

// Priority of a contact message.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// RiskLevel of a security event.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// ============================================================================
// Users, sessions and permissions
// ============================================================================

// User is the account snapshot returned by the auth and users endpoints.
type User struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Role          Role       `json:"role"`
	IsActive      bool       `json:"isActive"`
	MFAEnabled    bool       `json:"mfaEnabled"`
	EmailVerified bool       `json:"emailVerified"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// IsAdmin reports whether the user may enter the back-office.
func (u *User) IsAdmin() bool { return u != nil && u.Role.IsAdmin() }

// IsSuperAdmin reports whether the user implicitly holds every permission.
func (u *User) IsSuperAdmin() bool { return u != nil && u.Role == RoleSuperAdmin }

// AuthResult is the payload of login, refresh and MFA verification.
// When RequiresMFA is set, Token is empty and TempToken must be exchanged
// through VerifyMFA.
type AuthResult struct {
	Token       string `json:"token,omitempty"`
	User        *User  `json:"user,omitempty"`
	RequiresMFA bool   `json:"requiresMfa,omitempty"`
	TempToken   string `json:"tempToken,omitempty"`
}

func (r AuthResult) Validate() error {
	if r.RequiresMFA {
		if r.TempToken == "" {
			return errors.New("mfa challenge without tempToken")
		}
		return nil
	}
	if r.Token == "" {
		return errors.New("missing token")
	}
	if r.User == nil || r.User.ID == "" {
		return errors.New("missing user")
	}
	return nil
}

// TokenValidation is the /auth/validate payload.
type TokenValidation struct {
	Valid bool  `json:"valid"`
	User  *User `json:"user,omitempty"`
}

// UnmarshalJSON treats a payload without "valid" as valid when it carries a
// user. An explicit false always wins.
func (v *TokenValidation) UnmarshalJSON(data []byte) error {
	var raw struct {
		Valid *bool `json:"valid"`
		User  *User `json:"user"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v.User = raw.User
	if raw.Valid != nil {
		v.Valid = *raw.Valid
	} else {
		v.Valid = raw.User != nil
	}
	return nil
}

// MFASetup is returned when enrolment starts. QRCode carries the otpauth://
// payload to render.
type MFASetup struct {
	Secret      string   `json:"secret"`
	QRCode      string   `json:"qrCode"`
	BackupCodes []string `json:"backupCodes"`
}

func (m MFASetup) Validate() error {
	if m.Secret == "" || m.QRCode == "" {
		return errors.New("mfa setup missing secret or qr payload")
	}
	return nil
}

// AuthSession is one signed-in device of the current user.
type AuthSession struct {
	ID           string    `json:"id"`
	IPAddress    string    `json:"ipAddress"`
	UserAgent    string    `json:"userAgent"`
	Current      bool      `json:"current"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

// Permission is a (resource, action) pair with display metadata.
type Permission struct {
	ID          string `json:"id"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// Key returns "resource:action".
func (p Permission) Key() string { return p.Resource + ":" + p.Action }

// UserPermission grants (or explicitly denies) a permission to a user.
type UserPermission struct {
	UserID       string     `json:"userId"`
	PermissionID string     `json:"permissionId"`
	Permission   Permission `json:"permission"`
	IsGranted    bool       `json:"isGranted"`
}

// ============================================================================
// Catalog
// ============================================================================

// Category groups products on the storefront. Slug is unique.
type Category struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	Description  string `json:"description,omitempty"`
	Color        string `json:"color,omitempty"`
	Image        string `json:"image,omitempty"`
	IsActive     bool   `json:"isActive"`
	SortOrder    int    `json:"sortOrder"`
	ProductCount int    `json:"productCount,omitempty"`
}

// ProductImage is one entry of a product's ordered gallery.
type ProductImage struct {
	URL       string `json:"url"`
	Alt       string `json:"alt,omitempty"`
	SortOrder int    `json:"sortOrder"`
	IsPrimary bool   `json:"isPrimary,omitempty"`
}

// SEO metadata attached to a product.
type SEO struct {
	MetaTitle       string   `json:"metaTitle,omitempty"`
	MetaDescription string   `json:"metaDescription,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
}

// Product is a sellable catalog item.
type Product struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Slug              string         `json:"slug"`
	Description       string         `json:"description,omitempty"`
	ShortDescription  string         `json:"shortDescription,omitempty"`
	Price             float64        `json:"price"`
	ComparePrice      float64        `json:"comparePrice,omitempty"`
	CostPrice         float64        `json:"costPrice,omitempty"`
	Currency          string         `json:"currency"`
	StockQuantity     int            `json:"stockQuantity"`
	LowStockThreshold int            `json:"lowStockThreshold"`
	SKU               string         `json:"sku,omitempty"`
	CategoryID        string         `json:"categoryId,omitempty"`
	Category          *Category      `json:"category,omitempty"`
	Status            ProductStatus  `json:"status"`
	IsFeatured        bool           `json:"isFeatured"`
	IsNew             bool           `json:"isNew"`
	Images            []ProductImage `json:"images,omitempty"`
	Sizes             []string       `json:"sizes,omitempty"`
	Colors            []string       `json:"colors,omitempty"`
	Materials         []string       `json:"materials,omitempty"`
	Tags              []string       `json:"tags,omitempty"`
	SEO               *SEO           `json:"seo,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// IsLowStock reports whether stock is at or below the threshold.
func (p Product) IsLowStock() bool {
	return p.LowStockThreshold > 0 && p.StockQuantity <= p.LowStockThreshold
}

// PrimaryImage returns the image flagged primary, else the first by sort order.
func (p Product) PrimaryImage() (ProductImage, bool) {
	if len(p.Images) == 0 {
		return ProductImage{}, false
	}
	best := p.Images[0]
	for _, img := range p.Images {
		if img.IsPrimary {
			return img, true
		}
		if img.SortOrder < best.SortOrder {
			best = img
		}
	}
	return best, true
}

// ============================================================================
// Storefront content
// ============================================================================

// Partner is a brand or sponsor shown on the storefront.
type Partner struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Description          string     `json:"description,omitempty"`
	Logo                 string     `json:"logo,omitempty"`
	Website              string     `json:"website,omitempty"`
	ContactEmail         string     `json:"contactEmail,omitempty"`
	ContactPhone         string     `json:"contactPhone,omitempty"`
	PartnershipType      string     `json:"partnershipType,omitempty"`
	PartnershipStartDate *time.Time `json:"partnershipStartDate,omitempty"`
	IsActive             bool       `json:"isActive"`
	IsFeatured           bool       `json:"isFeatured"`
	SortOrder            int        `json:"sortOrder"`
}

// Testimonial is a customer quote.
type Testimonial struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Title     string `json:"title,omitempty"`
	Quote     string `json:"quote"`
	Image     string `json:"image,omitempty"`
	IsActive  bool   `json:"isActive"`
	SortOrder int    `json:"sortOrder"`
}

// ContactMessage is an inbound message from the contact form or chatbot.
type ContactMessage struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Email      string        `json:"email"`
	Phone      string        `json:"phone,omitempty"`
	Company    string        `json:"company,omitempty"`
	Subject    string        `json:"subject"`
	Message    string        `json:"message"`
	Status     MessageStatus `json:"status"`
	Priority   Priority      `json:"priority"`
	AdminNotes string        `json:"adminNotes,omitempty"`
	Source     string        `json:"source,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	ReadAt     *time.Time    `json:"readAt,omitempty"`
	RepliedAt  *time.Time    `json:"repliedAt,omitempty"`
}

// MessageStats summarises the inbox.
type MessageStats struct {
	Total      int              `json:"total"`
	Unread     int              `json:"unread"`
	Read       int              `json:"read"`
	Replied    int              `json:"replied"`
	ByPriority map[Priority]int `json:"byPriority,omitempty"`
}

// ============================================================================
// Security and dashboard
// ============================================================================

// SecurityEvent is one entry of the audit log.
type SecurityEvent struct {
	ID          string    `json:"id"`
	UserID      *string   `json:"userId"`
	User        *User     `json:"user,omitempty"`
	EventType   string    `json:"eventType"`
	RiskLevel   RiskLevel `json:"riskLevel"`
	Description string    `json:"description"`
	IPAddress   string    `json:"ipAddress,omitempty"`
	UserAgent   string    `json:"userAgent,omitempty"`
	Location    string    `json:"location,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SecurityStats aggregates the audit log for the security dashboard.
type SecurityStats struct {
	TotalEvents     int               `json:"totalEvents"`
	FailedLogins24h int               `json:"failedLogins24h"`
	LockedAccounts  int               `json:"lockedAccounts"`
	ActiveSessions  int               `json:"activeSessions"`
	MFAEnabledUsers int               `json:"mfaEnabledUsers"`
	ByRiskLevel     map[RiskLevel]int `json:"byRiskLevel,omitempty"`
}

// DashboardStats feeds the admin landing page.
type DashboardStats struct {
	Products       int              `json:"products"`
	Categories     int              `json:"categories"`
	Partners       int              `json:"partners"`
	Testimonials   int              `json:"testimonials"`
	Users          int              `json:"users"`
	UnreadMessages int              `json:"unreadMessages"`
	LowStock       int              `json:"lowStock"`
	RecentMessages []ContactMessage `json:"recentMessages,omitempty"`
}

// ============================================================================
// Pagination
// ============================================================================

// Pagination metadata of list responses.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Page is one page of a list endpoint.
type Page[T any] struct {
	Items      []T
	Pagination Pagination
}

// HasNext reports whether a following page exists.
func (p *Page[T]) HasNext() bool {
	return p.Pagination.Page < p.Pagination.TotalPages
}
