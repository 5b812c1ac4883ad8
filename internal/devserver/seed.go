package devserver

import (
	"fmt"
	"time"

	"github.com/aussiebroadwan/atelier/pkg/cryptox"
	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
)

// Seeded accounts. All share SeedPassword.
const (
	SuperAdminEmail = "owner@atelier.test"
	AdminEmail      = "admin@atelier.test"
	UserEmail       = "shopper@atelier.test"
	SeedPassword    = "Atelier#2024"
)

// adminGrants are what the seeded admin may do beyond reading everything.
var adminGrants = []string{
	"products.create", "products.update",
	"categories.create", "categories.update",
	"partners.update", "testimonials.update",
	"messages.update",
}

func (s *state) seed(now time.Time) error {
	hash, err := cryptox.HashPassword(SeedPassword)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}

	for _, u := range []struct {
		name, email string
		role        shopsdk.Role
	}{
		{"Olivia Owner", SuperAdminEmail, shopsdk.RoleSuperAdmin},
		{"Adrian Admin", AdminEmail, shopsdk.RoleAdmin},
		{"Sasha Shopper", UserEmail, shopsdk.RoleUser},
	} {
		a := &account{
			User: shopsdk.User{
				ID:            newID(),
				Name:          u.name,
				Email:         u.email,
				Role:          u.role,
				IsActive:      true,
				EmailVerified: true,
				CreatedAt:     now,
				UpdatedAt:     now,
			},
			passwordHash: hash,
		}
		s.accounts.put(a.ID, a)

		if u.role == shopsdk.RoleAdmin {
			g := map[string]bool{}
			for _, p := range s.permissions {
				if p.Action == "read" {
					g[p.ID] = true
				}
			}
			for _, id := range adminGrants {
				g[id] = true
			}
			s.grants[a.ID] = g
		}
	}

	cats := map[string]string{}
	for i, c := range []struct{ name, slug, color string }{
		{"Women", "women", "#c2185b"},
		{"Men", "men", "#1565c0"},
		{"Shoes", "shoes", "#6d4c41"},
		{"Accessories", "accessories", "#f9a825"},
		{"New Arrivals", "new-arrivals", "#2e7d32"},
		{"Sale", "sale", "#d32f2f"},
	} {
		cat := &shopsdk.Category{
			ID:        newID(),
			Name:      c.name,
			Slug:      c.slug,
			Color:     c.color,
			IsActive:  true,
			SortOrder: i + 1,
		}
		s.categories.put(cat.ID, cat)
		cats[c.slug] = cat.ID
	}

	for i, p := range []struct {
		name, slug, cat string
		price           float64
		stock           int
		featured        bool
		status          shopsdk.ProductStatus
	}{
		{"Linen Wrap Dress", "linen-wrap-dress", "women", 129, 24, true, shopsdk.ProductPublished},
		{"Silk Camisole", "silk-camisole", "women", 79, 3, false, shopsdk.ProductPublished},
		{"Wool Overcoat", "wool-overcoat", "men", 289, 12, true, shopsdk.ProductPublished},
		{"Oxford Shirt", "oxford-shirt", "men", 69, 40, false, shopsdk.ProductPublished},
		{"Leather Chelsea Boot", "leather-chelsea-boot", "shoes", 199, 8, true, shopsdk.ProductPublished},
		{"Canvas Tote", "canvas-tote", "accessories", 39, 0, false, shopsdk.ProductOutOfStock},
		{"Cashmere Scarf", "cashmere-scarf", "accessories", 95, 15, true, shopsdk.ProductPublished},
		{"Pleated Midi Skirt", "pleated-midi-skirt", "new-arrivals", 110, 18, false, shopsdk.ProductDraft},
	} {
		created := now.Add(-time.Duration(len(p.name)+i) * time.Hour)
		prod := &shopsdk.Product{
			ID:                newID(),
			Name:              p.name,
			Slug:              p.slug,
			Price:             p.price,
			Currency:          "USD",
			StockQuantity:     p.stock,
			LowStockThreshold: 5,
			SKU:               fmt.Sprintf("AT-%04d", i+1),
			CategoryID:        cats[p.cat],
			Status:            p.status,
			IsFeatured:        p.featured,
			IsNew:             p.cat == "new-arrivals",
			Sizes:             []string{"XS", "S", "M", "L"},
			Images: []shopsdk.ProductImage{{
				URL:       "https://images.atelier.test/" + p.slug + ".jpg",
				Alt:       p.name,
				IsPrimary: true,
			}},
			CreatedAt: created,
			UpdatedAt: created,
		}
		s.products.put(prod.ID, prod)
	}

	for i, p := range []struct{ name, site, kind string }{
		{"Maison Verre", "https://maisonverre.example", "supplier"},
		{"Northbound Textiles", "https://northbound.example", "manufacturer"},
		{"Studio Lumen", "https://studiolumen.example", "collaboration"},
	} {
		part := &shopsdk.Partner{
			ID:              newID(),
			Name:            p.name,
			Website:         p.site,
			PartnershipType: p.kind,
			IsActive:        true,
			IsFeatured:      i == 0,
			SortOrder:       i + 1,
		}
		s.partners.put(part.ID, part)
	}

	for i, q := range []struct{ name, title, quote string }{
		{"Maya R.", "Verified buyer", "The linen dress is even better in person."},
		{"Tom B.", "Verified buyer", "Fast delivery and the coat fits perfectly."},
		{"Ines L.", "Stylist", "My go-to shop for timeless pieces."},
	} {
		t := &shopsdk.Testimonial{
			ID:        newID(),
			Name:      q.name,
			Title:     q.title,
			Quote:     q.quote,
			IsActive:  true,
			SortOrder: i + 1,
		}
		s.testimonials.put(t.ID, t)
	}

	for i, m := range []struct{ name, email, subject, body string }{
		{"Clara N.", "clara@example.com", "Order #1042", "Can I change the size on my order?"},
		{"Felix W.", "felix@example.com", "Wholesale", "Do you offer wholesale pricing?"},
	} {
		msg := &shopsdk.ContactMessage{
			ID:        newID(),
			Name:      m.name,
			Email:     m.email,
			Subject:   m.subject,
			Message:   m.body,
			Status:    shopsdk.MessageUnread,
			Priority:  shopsdk.PriorityMedium,
			Source:    "contact_form",
			CreatedAt: now.Add(-time.Duration(i+1) * time.Hour),
		}
		s.messages.put(msg.ID, msg)
	}
	return nil
}
