//go:build e2e

package atelier_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/atelier/internal/devserver"
	"github.com/aussiebroadwan/atelier/pkg/shopsdk"
)

// TestStockAdjustmentFlipsStatus drives a product out of stock and back.
func TestStockAdjustmentFlipsStatus(t *testing.T) {
	baseURL := setupBackend(t)
	admin := signIn(t, baseURL, devserver.SuperAdminEmail)

	shirt, err := admin.Products.GetBySlug(t.Context(), "oxford-shirt")
	require.NoError(t, err)

	out, err := admin.Products.UpdateStock(t.Context(), shirt.ID, 0, shopsdk.StockSet)
	require.NoError(t, err)
	require.Equal(t, shopsdk.ProductOutOfStock, out.Status)

	back, err := admin.Products.UpdateStock(t.Context(), shirt.ID, 4, shopsdk.StockAdd)
	require.NoError(t, err)
	require.Equal(t, 4, back.StockQuantity)
	require.Equal(t, shopsdk.ProductPublished, back.Status)

	stats, err := admin.Dashboard.Stats(t.Context())
	require.NoError(t, err)
	require.Positive(t, stats.Products)
}

// TestShopperCannotReachAdminRoutes checks the backend enforces permissions.
func TestShopperCannotReachAdminRoutes(t *testing.T) {
	baseURL := setupBackend(t)
	shopper := signIn(t, baseURL, devserver.UserEmail)

	_, err := shopper.Messages.Stats(t.Context())
	require.True(t, shopsdk.IsStatus(err, http.StatusForbidden), "got %v", err)

	_, err = newClient(baseURL).Users.List(t.Context(), shopsdk.UserFilter{})
	require.True(t, shopsdk.IsStatus(err, http.StatusUnauthorized), "got %v", err)
}

// TestSwaggerDocsServed checks the API reference is reachable.
func TestSwaggerDocsServed(t *testing.T) {
	baseURL := setupBackend(t)

	resp, err := http.Get(baseURL + "/swagger/doc.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
