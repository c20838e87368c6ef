package dto

import "time"

// SubscriptionCheckoutRequest is the incoming checkout request.
type SubscriptionCheckoutRequest struct {
	Plan     string `json:"plan" validate:"required"`
	Interval string `json:"interval" validate:"required"`
}

// SessionURLResponse carries a hosted session redirect URL.
type SessionURLResponse struct {
	URL string `json:"url"`
}

// UserSubscriptionResponse is the stored view of the caller's subscription.
type UserSubscriptionResponse struct {
	Subscription *StoredSubscriptionDTO `json:"subscription"`
	Verification *VerificationDTO       `json:"verification,omitempty"`
}

type StoredSubscriptionDTO struct {
	SubscriptionID     string    `json:"subscription_id"`
	PlanID             string    `json:"plan_id"`
	Status             string    `json:"status"`
	CurrentPeriodStart time.Time `json:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"current_period_end"`
	CancelAtPeriodEnd  bool      `json:"cancel_at_period_end"`
	BillingInterval    string    `json:"billing_interval"`
	Placeholder        bool      `json:"placeholder,omitempty"`
}

type VerificationDTO struct {
	Active           bool      `json:"active"`
	Status           string    `json:"status"`
	CurrentPeriodEnd time.Time `json:"current_period_end"`
}
