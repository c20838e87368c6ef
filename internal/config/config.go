package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENV" default:"development"`
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	JWTSecret   string `envconfig:"JWT_SECRET" required:"true"`

	// Stripe credentials. When empty they are read from Secret Manager at
	// startup (see internal/billing).
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`

	GCPProjectID                string `envconfig:"GCP_PROJECT_ID"`
	StripeSecretKeySecretID     string `envconfig:"STRIPE_SECRET_KEY_SECRET_ID" default:"stripe-secret-key"`
	StripeWebhookSecretSecretID string `envconfig:"STRIPE_WEBHOOK_SECRET_SECRET_ID" default:"stripe-webhook-secret"`

	// Price IDs for the plan catalog. Startup fails if any of these is unset
	// rather than silently resolving paid prices to the basic plan.
	StripePriceProMonthly          string `envconfig:"STRIPE_PRICE_PRO_MONTHLY" required:"true"`
	StripePriceProAnnual           string `envconfig:"STRIPE_PRICE_PRO_ANNUAL" required:"true"`
	StripePriceVerificationMonthly string `envconfig:"STRIPE_PRICE_VERIFICATION_MONTHLY" required:"true"`
	StripePriceVerificationAnnual  string `envconfig:"STRIPE_PRICE_VERIFICATION_ANNUAL" required:"true"`

	CheckoutSuccessURL    string `envconfig:"CHECKOUT_SUCCESS_URL" required:"true"`
	CheckoutCancelURL     string `envconfig:"CHECKOUT_CANCEL_URL" required:"true"`
	StripePortalReturnURL string `envconfig:"STRIPE_PORTAL_RETURN_URL" required:"true"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction reports whether the app runs against live billing. Placeholder
// subscription writes are gated on this.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
