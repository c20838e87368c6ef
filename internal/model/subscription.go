package model

import (
	"strings"
	"time"
)

// SubscriptionSource tags where a subscription record came from. Consumers
// branch on this tag, not on id string conventions.
type SubscriptionSource string

const (
	// SourceStripe marks records mirrored from Stripe webhook events.
	SourceStripe SubscriptionSource = "stripe"
	// SourceLocal marks records synthesized locally in environments Stripe
	// cannot deliver webhooks to.
	SourceLocal SubscriptionSource = "local"
)

// LocalSubscriptionPrefix is the reserved id prefix for locally synthesized
// subscription ids. It can never collide with Stripe's "sub_"-prefixed ids
// because Stripe ids carry a random suffix directly after "sub_".
const LocalSubscriptionPrefix = "sub_local_"

// IsLocalSubscriptionID reports whether id was minted by this service.
func IsLocalSubscriptionID(id string) bool {
	return strings.HasPrefix(id, LocalSubscriptionPrefix)
}

// LocalSubscriptionID mints the placeholder id for a user.
func LocalSubscriptionID(userID string) string {
	return LocalSubscriptionPrefix + userID
}

// UserSubscription mirrors a Stripe subscription. The provider is the source
// of truth; every mutation is a full overwrite of the mirrored fields.
type UserSubscription struct {
	StripeSubscriptionID string             `db:"stripe_subscription_id" json:"stripe_subscription_id"`
	UserID               string             `db:"user_id" json:"user_id"`
	PlanID               string             `db:"plan_id" json:"plan_id"`
	StripeCustomerID     string             `db:"stripe_customer_id" json:"stripe_customer_id"`
	Status               string             `db:"status" json:"status"`
	CurrentPeriodStart   time.Time          `db:"current_period_start" json:"current_period_start"`
	CurrentPeriodEnd     time.Time          `db:"current_period_end" json:"current_period_end"`
	CancelAtPeriodEnd    bool               `db:"cancel_at_period_end" json:"cancel_at_period_end"`
	PriceID              string             `db:"price_id" json:"price_id"`
	BillingInterval      string             `db:"billing_interval" json:"billing_interval"`
	Source               SubscriptionSource `db:"source" json:"source"`
	EventTS              time.Time          `db:"event_ts" json:"-"`
	CreatedAt            time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time          `db:"updated_at" json:"updated_at"`
}

// Subscription statuses as Stripe reports them.
const (
	StatusActive            = "active"
	StatusTrialing          = "trialing"
	StatusPastDue           = "past_due"
	StatusCanceled          = "canceled"
	StatusIncomplete        = "incomplete"
	StatusIncompleteExpired = "incomplete_expired"
	StatusUnpaid            = "unpaid"
)
