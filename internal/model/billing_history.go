package model

import "time"

// BillingHistoryEntry is an append-only copy of a Stripe invoice, stored
// under its owning subscription. Entries are written once and never mutated.
type BillingHistoryEntry struct {
	ID                   string    `db:"id" json:"id"`
	UserID               string    `db:"user_id" json:"user_id"`
	StripeSubscriptionID string    `db:"stripe_subscription_id" json:"stripe_subscription_id"`
	StripeInvoiceID      string    `db:"stripe_invoice_id" json:"stripe_invoice_id"`
	AmountPaid           int64     `db:"amount_paid" json:"amount_paid"`
	Currency             string    `db:"currency" json:"currency"`
	PeriodStart          time.Time `db:"period_start" json:"period_start"`
	PeriodEnd            time.Time `db:"period_end" json:"period_end"`
	Status               string    `db:"status" json:"status"`
	HostedInvoiceURL     string    `db:"hosted_invoice_url" json:"hosted_invoice_url"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
}
