package billing

import (
	"context"

	"github.com/stripe/stripe-go/v82"
)

// Customer is the provider's customer record, reduced to what this service
// reads.
type Customer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata"`
}

// Subscription is the provider's subscription snapshot.
type Subscription struct {
	ID                 string            `json:"id"`
	CustomerID         string            `json:"customer_id"`
	Status             string            `json:"status"`
	PriceID            string            `json:"price_id"`
	Interval           string            `json:"interval"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	Metadata           map[string]string `json:"metadata"`
	Created            int64             `json:"created"`
}

// Invoice is the provider's invoice, reduced to the fields mirrored into
// billing history.
type Invoice struct {
	ID               string            `json:"id"`
	CustomerID       string            `json:"customer_id"`
	SubscriptionID   string            `json:"subscription_id"`
	AmountPaid       int64             `json:"amount_paid"`
	Currency         string            `json:"currency"`
	PeriodStart      int64             `json:"period_start"`
	PeriodEnd        int64             `json:"period_end"`
	Status           string            `json:"status"`
	HostedInvoiceURL string            `json:"hosted_invoice_url"`
	Metadata         map[string]string `json:"metadata"`
}

// CreateCustomerParams carries the fields for a new provider customer.
type CreateCustomerParams struct {
	Email    string
	Name     string
	Metadata map[string]string
}

// CheckoutParams opens a subscription-mode hosted checkout.
type CheckoutParams struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	// Metadata is stamped on both the checkout session and the subscription
	// it creates; it is the primary channel for recovering the user during
	// webhook processing.
	Metadata map[string]string
}

// Provider abstracts the billing provider's remote API. All calls are
// synchronous with no internal retry; transient failures propagate to the
// caller.
type Provider interface {
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error)
	UpdateCustomerMetadata(ctx context.Context, customerID string, metadata map[string]string) error
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)

	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	ListSubscriptions(ctx context.Context, customerID string) ([]*Subscription, error)
	ListInvoices(ctx context.Context, customerID string) ([]*Invoice, error)

	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)

	// VerifyEvent authenticates a raw webhook payload against its signature
	// header. The payload must be the exact unparsed request body.
	VerifyEvent(payload []byte, sigHeader string) (stripe.Event, error)
}
