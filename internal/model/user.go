package model

import "time"

// User represents a user in the system. Users are created at registration by
// the identity provider; this service only reads them and maintains the
// Stripe customer link and verification badge.
type User struct {
	UserID           string             `db:"user_id" json:"user_id"`
	Name             string             `db:"name" json:"name"`
	Email            string             `db:"email" json:"email"`
	AvatarURL        string             `db:"avatar_url" json:"avatar_url"`
	StripeCustomerID *string            `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	Verification     *VerificationBadge `db:"verification" json:"verification,omitempty"`
	CreatedAt        time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `db:"updated_at" json:"updated_at"`
}

// VerificationBadge marks a user as verified via the verification plan. It
// lives on the user row, never in the subscriptions table.
type VerificationBadge struct {
	Active           bool      `json:"active"`
	SubscriptionID   string    `json:"subscription_id"`
	PriceID          string    `json:"price_id"`
	Interval         string    `json:"interval"`
	Status           string    `json:"status"`
	CurrentPeriodEnd time.Time `json:"current_period_end"`
}
