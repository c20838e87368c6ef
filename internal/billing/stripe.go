package billing

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	billingsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	customerpkg "github.com/stripe/stripe-go/v82/customer"
	invoicepkg "github.com/stripe/stripe-go/v82/invoice"
	subscriptionpkg "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeProvider implements Provider against the Stripe API.
type StripeProvider struct {
	webhookSecret string
}

// NewStripeProvider sets the package-level Stripe key and returns the
// provider. Call at most once per process, after Init resolved credentials.
func NewStripeProvider(secretKey, webhookSecret string) *StripeProvider {
	stripe.Key = secretKey
	return &StripeProvider{webhookSecret: webhookSecret}
}

func (p *StripeProvider) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	iter := customerpkg.List(params)
	for iter.Next() {
		return fromCustomer(iter.Customer()), nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list customers by email: %w", err)
	}
	return nil, nil
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, cp CreateCustomerParams) (*Customer, error) {
	params := &stripe.CustomerParams{
		Email:    stripe.String(cp.Email),
		Name:     stripe.String(cp.Name),
		Metadata: cp.Metadata,
	}
	params.Context = ctx
	cust, err := customerpkg.New(params)
	if err != nil {
		return nil, fmt.Errorf("create stripe customer: %w", err)
	}
	return fromCustomer(cust), nil
}

func (p *StripeProvider) UpdateCustomerMetadata(ctx context.Context, customerID string, metadata map[string]string) error {
	params := &stripe.CustomerParams{Metadata: metadata}
	params.Context = ctx
	if _, err := customerpkg.Update(customerID, params); err != nil {
		return fmt.Errorf("update stripe customer %s metadata: %w", customerID, err)
	}
	return nil
}

func (p *StripeProvider) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	cust, err := customerpkg.Get(customerID, params)
	if err != nil {
		return nil, fmt.Errorf("fetch stripe customer %s: %w", customerID, err)
	}
	return fromCustomer(cust), nil
}

func (p *StripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := subscriptionpkg.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("fetch stripe subscription %s: %w", subscriptionID, err)
	}
	return FromSubscription(sub), nil
}

func (p *StripeProvider) ListSubscriptions(ctx context.Context, customerID string) ([]*Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx
	var subs []*Subscription
	iter := subscriptionpkg.List(params)
	for iter.Next() {
		subs = append(subs, FromSubscription(iter.Subscription()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list stripe subscriptions for %s: %w", customerID, err)
	}
	return subs, nil
}

func (p *StripeProvider) ListInvoices(ctx context.Context, customerID string) ([]*Invoice, error) {
	params := &stripe.InvoiceListParams{Customer: stripe.String(customerID)}
	params.Context = ctx
	var invoices []*Invoice
	iter := invoicepkg.List(params)
	for iter.Next() {
		invoices = append(invoices, FromInvoice(iter.Invoice()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list stripe invoices for %s: %w", customerID, err)
	}
	return invoices, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, cp CheckoutParams) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(cp.CustomerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          []*stripe.CheckoutSessionLineItemParams{{Price: stripe.String(cp.PriceID), Quantity: stripe.Int64(1)}},
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:         stripe.String(cp.SuccessURL),
		CancelURL:          stripe.String(cp.CancelURL),
		Metadata:           cp.Metadata,
		SubscriptionData:   &stripe.CheckoutSessionSubscriptionDataParams{Metadata: cp.Metadata},
	}
	params.Context = ctx
	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	sess, err := billingsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

func (p *StripeProvider) VerifyEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, p.webhookSecret)
}

func fromCustomer(c *stripe.Customer) *Customer {
	return &Customer{
		ID:       c.ID,
		Email:    c.Email,
		Name:     c.Name,
		Metadata: c.Metadata,
	}
}

// FromSubscription reduces a Stripe subscription to the snapshot this service
// mirrors. Period and price details live on the first subscription item.
func FromSubscription(s *stripe.Subscription) *Subscription {
	sub := &Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		Metadata:          s.Metadata,
		Created:           s.Created,
	}
	if s.Customer != nil {
		sub.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		sub.CurrentPeriodStart = item.CurrentPeriodStart
		sub.CurrentPeriodEnd = item.CurrentPeriodEnd
		if item.Price != nil {
			sub.PriceID = item.Price.ID
			if item.Price.Recurring != nil {
				sub.Interval = string(item.Price.Recurring.Interval)
			}
		}
	}
	return sub
}

// FromInvoice reduces a Stripe invoice to the fields mirrored into billing
// history.
func FromInvoice(in *stripe.Invoice) *Invoice {
	inv := &Invoice{
		ID:               in.ID,
		AmountPaid:       in.AmountPaid,
		Currency:         string(in.Currency),
		PeriodStart:      in.PeriodStart,
		PeriodEnd:        in.PeriodEnd,
		Status:           string(in.Status),
		HostedInvoiceURL: in.HostedInvoiceURL,
		Metadata:         in.Metadata,
	}
	if in.Customer != nil {
		inv.CustomerID = in.Customer.ID
	}
	// Since API version 2025-03-31 the owning subscription lives under the
	// invoice parent details.
	if in.Parent != nil && in.Parent.SubscriptionDetails != nil && in.Parent.SubscriptionDetails.Subscription != nil {
		inv.SubscriptionID = in.Parent.SubscriptionDetails.Subscription.ID
	}
	return inv
}
