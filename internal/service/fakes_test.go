package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"app/internal/billing"
	"app/internal/model"

	"github.com/stripe/stripe-go/v82"
)

// fakeProvider implements billing.Provider in memory and records calls.
type fakeProvider struct {
	customersByEmail map[string]*billing.Customer
	customersByID    map[string]*billing.Customer
	subscriptions    map[string]*billing.Subscription
	invoices         map[string][]*billing.Invoice

	validSignature string

	checkoutURL string
	portalURL   string

	createCustomerCalls []billing.CreateCustomerParams
	metadataUpdates     map[string]map[string]string
	checkoutCalls       []billing.CheckoutParams
	getSubscriptionIDs  []string

	failCheckout bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		customersByEmail: map[string]*billing.Customer{},
		customersByID:    map[string]*billing.Customer{},
		subscriptions:    map[string]*billing.Subscription{},
		invoices:         map[string][]*billing.Invoice{},
		validSignature:   "t=1,v1=valid",
		checkoutURL:      "https://checkout.stripe.com/c/pay/cs_test",
		portalURL:        "https://billing.stripe.com/p/session/bps_test",
		metadataUpdates:  map[string]map[string]string{},
	}
}

func (f *fakeProvider) addCustomer(c *billing.Customer) {
	f.customersByEmail[c.Email] = c
	f.customersByID[c.ID] = c
}

func (f *fakeProvider) FindCustomerByEmail(ctx context.Context, email string) (*billing.Customer, error) {
	return f.customersByEmail[email], nil
}

func (f *fakeProvider) CreateCustomer(ctx context.Context, params billing.CreateCustomerParams) (*billing.Customer, error) {
	f.createCustomerCalls = append(f.createCustomerCalls, params)
	c := &billing.Customer{
		ID:       fmt.Sprintf("cus_%03d", len(f.createCustomerCalls)),
		Email:    params.Email,
		Name:     params.Name,
		Metadata: params.Metadata,
	}
	f.addCustomer(c)
	return c, nil
}

func (f *fakeProvider) UpdateCustomerMetadata(ctx context.Context, customerID string, metadata map[string]string) error {
	f.metadataUpdates[customerID] = metadata
	if c, ok := f.customersByID[customerID]; ok {
		c.Metadata = metadata
	}
	return nil
}

func (f *fakeProvider) GetCustomer(ctx context.Context, customerID string) (*billing.Customer, error) {
	c, ok := f.customersByID[customerID]
	if !ok {
		return nil, fmt.Errorf("no such customer: %s", customerID)
	}
	return c, nil
}

func (f *fakeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*billing.Subscription, error) {
	f.getSubscriptionIDs = append(f.getSubscriptionIDs, subscriptionID)
	sub, ok := f.subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("no such subscription: %s", subscriptionID)
	}
	return sub, nil
}

func (f *fakeProvider) ListSubscriptions(ctx context.Context, customerID string) ([]*billing.Subscription, error) {
	var subs []*billing.Subscription
	for _, sub := range f.subscriptions {
		if sub.CustomerID == customerID {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (f *fakeProvider) ListInvoices(ctx context.Context, customerID string) ([]*billing.Invoice, error) {
	return f.invoices[customerID], nil
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, params billing.CheckoutParams) (string, error) {
	if f.failCheckout {
		return "", errors.New("stripe unavailable")
	}
	f.checkoutCalls = append(f.checkoutCalls, params)
	return f.checkoutURL, nil
}

func (f *fakeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	return f.portalURL, nil
}

func (f *fakeProvider) VerifyEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	if sigHeader != f.validSignature {
		return stripe.Event{}, errors.New("signature mismatch")
	}
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return stripe.Event{}, err
	}
	return event, nil
}

// fakeUserRepo implements repository.UserRepository in memory.
type fakeUserRepo struct {
	users  map[string]*model.User
	badges map[string]*model.VerificationBadge
}

func newFakeUserRepo(users ...*model.User) *fakeUserRepo {
	r := &fakeUserRepo{users: map[string]*model.User{}, badges: map[string]*model.VerificationBadge{}}
	for _, u := range users {
		r.users[u.UserID] = u
	}
	return r
}

func (r *fakeUserRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	u.Verification = r.badges[id]
	return u, nil
}

func (r *fakeUserRepo) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	for _, u := range r.users {
		if u.StripeCustomerID != nil && *u.StripeCustomerID == customerID {
			return u, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error {
	u, ok := r.users[userID]
	if !ok {
		return fmt.Errorf("no such user: %s", userID)
	}
	u.StripeCustomerID = &customerID
	return nil
}

func (r *fakeUserRepo) UpdateVerificationBadge(ctx context.Context, userID string, badge *model.VerificationBadge) error {
	r.badges[userID] = badge
	return nil
}

// fakeSubscriptionRepo mirrors the Postgres upsert semantics, including the
// stale-event guard.
type fakeSubscriptionRepo struct {
	records     map[string]*model.UserSubscription
	upsertCalls int
	failUpsert  bool
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{records: map[string]*model.UserSubscription{}}
}

func (r *fakeSubscriptionRepo) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*model.UserSubscription, error) {
	sub, ok := r.records[subscriptionID]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (r *fakeSubscriptionRepo) GetLatestByUserID(ctx context.Context, userID string) (*model.UserSubscription, error) {
	var latest *model.UserSubscription
	for _, sub := range r.records {
		if sub.UserID != userID {
			continue
		}
		if latest == nil || sub.UpdatedAt.After(latest.UpdatedAt) {
			latest = sub
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *fakeSubscriptionRepo) UpsertSubscription(ctx context.Context, sub *model.UserSubscription) error {
	if r.failUpsert {
		return errors.New("db unavailable")
	}
	r.upsertCalls++
	if existing, ok := r.records[sub.StripeSubscriptionID]; ok && sub.EventTS.Before(existing.EventTS) {
		return nil
	}
	cp := *sub
	cp.UpdatedAt = time.Now()
	r.records[sub.StripeSubscriptionID] = &cp
	return nil
}

func (r *fakeSubscriptionRepo) CancelSubscription(ctx context.Context, subscriptionID string, eventTS time.Time) error {
	sub, ok := r.records[subscriptionID]
	if !ok {
		return nil
	}
	sub.Status = model.StatusCanceled
	sub.CancelAtPeriodEnd = false
	if eventTS.After(sub.EventTS) {
		sub.EventTS = eventTS
	}
	return nil
}

func (r *fakeSubscriptionRepo) UpdateCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancelAtPeriodEnd bool) error {
	if sub, ok := r.records[subscriptionID]; ok {
		sub.CancelAtPeriodEnd = cancelAtPeriodEnd
	}
	return nil
}

// fakeHistoryRepo dedupes on invoice id like the ON CONFLICT clause.
type fakeHistoryRepo struct {
	entries     map[string]*model.BillingHistoryEntry
	insertCalls int
}

func newFakeHistoryRepo() *fakeHistoryRepo {
	return &fakeHistoryRepo{entries: map[string]*model.BillingHistoryEntry{}}
}

func (r *fakeHistoryRepo) InsertEntry(ctx context.Context, entry *model.BillingHistoryEntry) error {
	r.insertCalls++
	if _, ok := r.entries[entry.StripeInvoiceID]; ok {
		return nil
	}
	cp := *entry
	r.entries[entry.StripeInvoiceID] = &cp
	return nil
}

func (r *fakeHistoryRepo) ListBySubscriptionID(ctx context.Context, subscriptionID string) ([]*model.BillingHistoryEntry, error) {
	var entries []*model.BillingHistoryEntry
	for _, e := range r.entries {
		if e.StripeSubscriptionID == subscriptionID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}
