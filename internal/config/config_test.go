package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "products", cfg.ProductsTable)
	assert.Equal(t, 4, cfg.ProductsPerPage)
	assert.Equal(t, "0.08", cfg.TaxRate)
	assert.Equal(t, 48*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, "Restock'd", cfg.CompanyName)
	assert.Equal(t, "usd", cfg.Currency)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PRODUCTS_PER_PAGE", "12")
	t.Setenv("ORDERS_TABLE", "orders-dev")
	t.Setenv("RUN_LOCAL", "true")
	t.Setenv("PRODUCT_CACHE_TTL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.ProductsPerPage)
	assert.Equal(t, "orders-dev", cfg.OrdersTable)
	assert.True(t, cfg.IsLocal())
	assert.Equal(t, 30*time.Second, cfg.ProductCacheTTL)
}

func TestLoad_RejectsUnknownEventsBackend(t *testing.T) {
	t.Setenv("EVENTS_BACKEND", "kafka")

	_, err := Load()
	assert.Error(t, err)
}
