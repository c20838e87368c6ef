package plan

import (
	"testing"

	"app/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalogConfig() *config.Config {
	return &config.Config{
		StripePriceProMonthly:          "price_pro_monthly",
		StripePriceProAnnual:           "price_pro_annual",
		StripePriceVerificationMonthly: "price_verification_monthly",
		StripePriceVerificationAnnual:  "price_verification_annual",
	}
}

func TestNewCatalogFailsOnMissingPrice(t *testing.T) {
	cfg := catalogConfig()
	cfg.StripePriceVerificationAnnual = ""
	_, err := NewCatalog(cfg)
	assert.Error(t, err)
}

func TestNewCatalogFailsOnDuplicatePrice(t *testing.T) {
	cfg := catalogConfig()
	cfg.StripePriceVerificationMonthly = cfg.StripePriceProMonthly
	_, err := NewCatalog(cfg)
	assert.Error(t, err)
}

func TestPriceLookup(t *testing.T) {
	c, err := NewCatalog(catalogConfig())
	require.NoError(t, err)

	priceID, ok := c.Price(Pro, IntervalAnnual)
	assert.True(t, ok)
	assert.Equal(t, "price_pro_annual", priceID)

	_, ok = c.Price(Basic, IntervalMonthly)
	assert.False(t, ok, "the free tier has no price")

	_, ok = c.Price("enterprise", IntervalMonthly)
	assert.False(t, ok)
}

func TestResolveRoundTrip(t *testing.T) {
	c, err := NewCatalog(catalogConfig())
	require.NoError(t, err)

	// Every configured price resolves back to its plan.
	for _, id := range []ID{Pro, Verification} {
		p, ok := c.Plan(id)
		require.True(t, ok)
		for interval, priceID := range p.Prices {
			assert.Equal(t, id, c.Resolve(priceID, ""), "price %s (%s)", priceID, interval)
		}
	}
}

func TestResolvePrecedence(t *testing.T) {
	c, err := NewCatalog(catalogConfig())
	require.NoError(t, err)

	// Explicit metadata wins over the price table.
	assert.Equal(t, Verification, c.Resolve("price_pro_monthly", "verification"))
	// An unknown explicit plan falls through to the price table.
	assert.Equal(t, Pro, c.Resolve("price_pro_monthly", "enterprise"))
	// An unknown price with no usable metadata resolves to the default.
	assert.Equal(t, Default, c.Resolve("price_unknown", ""))
	assert.Equal(t, Default, c.Resolve("", ""))
}

func TestParseInterval(t *testing.T) {
	for _, s := range []string{"monthly", "month"} {
		iv, err := ParseInterval(s)
		require.NoError(t, err)
		assert.Equal(t, IntervalMonthly, iv)
	}
	for _, s := range []string{"annual", "year", "yearly"} {
		iv, err := ParseInterval(s)
		require.NoError(t, err)
		assert.Equal(t, IntervalAnnual, iv)
	}
	_, err := ParseInterval("weekly")
	assert.Error(t, err)
}
