package plan

import (
	"fmt"

	"app/internal/config"
)

// Catalog is the immutable plan table, built once at startup. It owns the
// price-to-plan inverse mapping used to classify webhook events.
type Catalog struct {
	plans       map[ID]Plan
	priceToPlan map[string]ID
}

// NewCatalog builds the catalog from configured price ids. It fails when a
// priced plan is missing a price id so misconfiguration is caught at startup
// instead of silently resolving paid events to the basic plan.
func NewCatalog(cfg *config.Config) (*Catalog, error) {
	plans := map[ID]Plan{
		Basic: {
			ID:       Basic,
			Name:     "Basic",
			Features: []string{"community_support"},
		},
		Pro: {
			ID:       Pro,
			Name:     "Pro",
			Features: []string{"community_support", "priority_support", "advanced_features"},
			Prices: map[Interval]string{
				IntervalMonthly: cfg.StripePriceProMonthly,
				IntervalAnnual:  cfg.StripePriceProAnnual,
			},
		},
		Verification: {
			ID:       Verification,
			Name:     "Verification",
			Features: []string{"verified_badge"},
			Prices: map[Interval]string{
				IntervalMonthly: cfg.StripePriceVerificationMonthly,
				IntervalAnnual:  cfg.StripePriceVerificationAnnual,
			},
		},
	}

	inverse := make(map[string]ID)
	for id, p := range plans {
		for interval, priceID := range p.Prices {
			if priceID == "" {
				return nil, fmt.Errorf("plan %s is missing a price id for interval %s", id, interval)
			}
			if existing, ok := inverse[priceID]; ok {
				return nil, fmt.Errorf("price id %s is configured for both %s and %s", priceID, existing, id)
			}
			inverse[priceID] = id
		}
	}

	return &Catalog{plans: plans, priceToPlan: inverse}, nil
}

// Plan returns the plan with the given id.
func (c *Catalog) Plan(id ID) (Plan, bool) {
	p, ok := c.plans[id]
	return p, ok
}

// Price returns the Stripe price id for a plan and interval.
func (c *Catalog) Price(id ID, interval Interval) (string, bool) {
	p, ok := c.plans[id]
	if !ok {
		return "", false
	}
	priceID, ok := p.Prices[interval]
	return priceID, ok
}

// Resolve maps a Stripe price id to a plan id. An explicit plan id from
// event or session metadata wins; otherwise the inverse price table is
// consulted; otherwise the default plan is returned. Resolve never fails.
func (c *Catalog) Resolve(priceID, explicitPlanID string) ID {
	if explicitPlanID != "" {
		if _, ok := c.plans[ID(explicitPlanID)]; ok {
			return ID(explicitPlanID)
		}
	}
	if id, ok := c.priceToPlan[priceID]; ok {
		return id
	}
	return Default
}
