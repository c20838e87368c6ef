package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"app/internal/billing"
	"app/internal/config"
	"app/internal/model"
	"app/internal/plan"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

const webhookBodyLimit = 1024 * 1024 // 1MiB

// Metadata keys stamped on Stripe customers, checkout sessions and
// subscriptions. They are the primary channel for recovering the user during
// webhook processing; the price-to-plan table is the fallback.
const (
	metaUserID   = "user_id"
	metaPlanID   = "plan_id"
	metaInterval = "interval"
)

// StripeService manages the Stripe integration: customer binding, checkout
// and portal sessions, and webhook event processing.
type StripeService struct {
	cfg         *config.Config
	catalog     *plan.Catalog
	provider    billing.Provider
	userRepo    repository.UserRepository
	subRepo     repository.SubscriptionRepository
	historyRepo repository.BillingHistoryRepository
	logger      zerolog.Logger
	now         func() time.Time
}

// NewStripeService returns the service with a scoped logger.
func NewStripeService(
	cfg *config.Config,
	catalog *plan.Catalog,
	provider billing.Provider,
	userRepo repository.UserRepository,
	subRepo repository.SubscriptionRepository,
	historyRepo repository.BillingHistoryRepository,
	logger zerolog.Logger,
) *StripeService {
	return &StripeService{
		cfg:         cfg,
		catalog:     catalog,
		provider:    provider,
		userRepo:    userRepo,
		subRepo:     subRepo,
		historyRepo: historyRepo,
		logger:      logger.With().Str("service", "StripeService").Logger(),
		now:         time.Now,
	}
}

// BindCustomer ensures a 1:1 link between a user and a Stripe customer. The
// user id is stamped into the customer metadata because it is the only way
// to recover the user during async event processing.
func (s *StripeService) BindCustomer(ctx context.Context, user *model.User) (string, error) {
	meta := map[string]string{metaUserID: user.UserID}

	cust, err := s.provider.FindCustomerByEmail(ctx, user.Email)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to search Stripe customer by email")
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	if cust == nil {
		cust, err = s.provider.CreateCustomer(ctx, billing.CreateCustomerParams{
			Email:    user.Email,
			Name:     user.Name,
			Metadata: meta,
		})
		if err != nil {
			s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to create Stripe customer")
			return "", fmt.Errorf("%w: %v", ErrUpstream, err)
		}
	} else if cust.Metadata[metaUserID] != user.UserID {
		// Re-assert the binding; a manual dashboard edit must not be able to
		// orphan webhook events.
		if err := s.provider.UpdateCustomerMetadata(ctx, cust.ID, meta); err != nil {
			s.logger.Error().Err(err).Str("user_id", user.UserID).Str("stripe_customer_id", cust.ID).Msg("Failed to re-assert customer metadata")
			return "", fmt.Errorf("%w: %v", ErrUpstream, err)
		}
	}

	if user.StripeCustomerID == nil || *user.StripeCustomerID != cust.ID {
		if err := s.userRepo.UpdateStripeCustomerID(ctx, user.UserID, cust.ID); err != nil {
			s.logger.Error().Err(err).Str("user_id", user.UserID).Msg("Failed to store stripe customer id in user_profiles")
			return "", fmt.Errorf("store stripe customer id: %w", err)
		}
	}

	return cust.ID, nil
}

// CreateCheckoutSession validates the plan and interval, binds the customer
// and opens a subscription-mode hosted checkout.
func (s *StripeService) CreateCheckoutSession(ctx context.Context, userID, planID, interval string) (string, error) {
	iv, err := plan.ParseInterval(interval)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	priceID, ok := s.catalog.Price(plan.ID(planID), iv)
	if !ok {
		return "", fmt.Errorf("%w: no price configured for plan %q interval %q", ErrValidation, planID, iv)
	}

	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch user for checkout session")
		return "", fmt.Errorf("fetch user: %w", err)
	}
	if user == nil {
		return "", fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}

	customerID, err := s.BindCustomer(ctx, user)
	if err != nil {
		return "", err
	}

	url, err := s.provider.CreateCheckoutSession(ctx, billing.CheckoutParams{
		CustomerID: customerID,
		PriceID:    priceID,
		SuccessURL: s.cfg.CheckoutSuccessURL,
		CancelURL:  s.cfg.CheckoutCancelURL,
		Metadata: map[string]string{
			metaUserID:   userID,
			metaPlanID:   planID,
			metaInterval: string(iv),
		},
	})
	if err != nil {
		s.logger.Error().Err(err).Str("plan", planID).Msg("Failed to create Stripe checkout session")
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	// Outside production Stripe cannot reach the webhook endpoint, so write a
	// placeholder record for the UI to render. This must never block or fail
	// the checkout redirect.
	if !s.cfg.IsProduction() {
		if err := s.writePlaceholderSubscription(ctx, userID, customerID, planID, priceID, iv); err != nil {
			s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to write placeholder subscription")
		}
	}

	return url, nil
}

func (s *StripeService) writePlaceholderSubscription(ctx context.Context, userID, customerID, planID, priceID string, iv plan.Interval) error {
	now := s.now()
	periodEnd := now.AddDate(0, 0, 30)
	if iv == plan.IntervalAnnual {
		periodEnd = now.AddDate(0, 0, 365)
	}
	return s.subRepo.UpsertSubscription(ctx, &model.UserSubscription{
		StripeSubscriptionID: model.LocalSubscriptionID(userID),
		UserID:               userID,
		PlanID:               planID,
		StripeCustomerID:     customerID,
		Status:               model.StatusActive,
		CurrentPeriodStart:   now,
		CurrentPeriodEnd:     periodEnd,
		PriceID:              priceID,
		BillingInterval:      string(iv),
		Source:               model.SourceLocal,
		EventTS:              now,
	})
}

// CreatePortalSession opens a Stripe Customer Portal session. A bound
// customer is a hard precondition; a portal without billing history is
// meaningless.
func (s *StripeService) CreatePortalSession(ctx context.Context, userID string) (string, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch user for portal session")
		return "", fmt.Errorf("fetch user: %w", err)
	}
	if user == nil || user.StripeCustomerID == nil || !strings.HasPrefix(*user.StripeCustomerID, "cus_") {
		s.logger.Warn().Str("user_id", userID).Msg("No Stripe customer bound to user when creating portal session")
		return "", fmt.Errorf("%w: no stripe customer for user %s", ErrNotFound, userID)
	}

	url, err := s.provider.CreatePortalSession(ctx, *user.StripeCustomerID, s.cfg.StripePortalReturnURL)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to create Stripe billing portal session")
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return url, nil
}

// Webhook event payloads, reduced to the fields this service reads. Raw
// event JSON carries related objects as plain id strings.
type webhookSession struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type webhookSubscription struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Status            string            `json:"status"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	Metadata          map[string]string `json:"metadata"`
	Items             struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
			Price              struct {
				ID        string `json:"id"`
				Recurring struct {
					Interval string `json:"interval"`
				} `json:"recurring"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type webhookInvoice struct {
	ID               string            `json:"id"`
	Customer         string            `json:"customer"`
	AmountPaid       int64             `json:"amount_paid"`
	Currency         string            `json:"currency"`
	PeriodStart      int64             `json:"period_start"`
	PeriodEnd        int64             `json:"period_end"`
	Status           string            `json:"status"`
	HostedInvoiceURL string            `json:"hosted_invoice_url"`
	Metadata         map[string]string `json:"metadata"`
	Parent           struct {
		SubscriptionDetails struct {
			Subscription string            `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// HandleWebhook processes Stripe webhook events. Signature verification runs
// over the exact raw body. After a successful verification the event is
// always acknowledged, even when a sub-action fails: Stripe's redelivery
// cannot fix errors this system cannot resolve by retrying.
func (s *StripeService) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read Stripe webhook payload")
		http.Error(w, "failed to read payload", http.StatusBadRequest)
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	event, err := s.provider.VerifyEvent(payload, sig)
	if err != nil {
		s.logger.Error().Err(err).Msg("Signature verification failed for Stripe webhook")
		http.Error(w, "signature verification failed", http.StatusBadRequest)
		return
	}

	s.logger.Info().Str("event_type", string(event.Type)).Str("event_id", event.ID).Msg("Stripe webhook received")

	ctx := r.Context()
	eventTS := time.Unix(event.Created, 0)

	switch event.Type {
	case "checkout.session.completed":
		var cs webhookSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			s.logger.Error().Err(err).Msg("Invalid checkout.session data")
			http.Error(w, "invalid checkout.session data", http.StatusBadRequest)
			return
		}
		if err := s.handleCheckoutCompleted(ctx, cs, eventTS); err != nil {
			s.logger.Error().Err(err).Str("session_id", cs.ID).Msg("Failed to process checkout.session.completed")
		}

	case "customer.subscription.created", "customer.subscription.updated":
		var sub webhookSubscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			s.logger.Error().Err(err).Msg("Invalid subscription payload")
			http.Error(w, "invalid subscription data", http.StatusBadRequest)
			return
		}
		if err := s.applySubscriptionSnapshot(ctx, sub, eventTS); err != nil {
			s.logger.Error().Err(err).Str("subscription_id", sub.ID).Str("event_type", string(event.Type)).Msg("Failed to apply subscription snapshot")
		}

	case "customer.subscription.deleted":
		var sub webhookSubscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			s.logger.Error().Err(err).Msg("Invalid customer.subscription.deleted payload")
			http.Error(w, "invalid subscription data", http.StatusBadRequest)
			return
		}
		if err := s.handleSubscriptionDeleted(ctx, sub, eventTS); err != nil {
			s.logger.Error().Err(err).Str("subscription_id", sub.ID).Msg("Failed to process customer.subscription.deleted")
		}

	case "invoice.payment_succeeded":
		var inv webhookInvoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			s.logger.Error().Err(err).Msg("Invalid invoice.payment_succeeded payload")
			http.Error(w, "invalid invoice data", http.StatusBadRequest)
			return
		}
		if err := s.handleInvoicePaid(ctx, inv); err != nil {
			s.logger.Error().Err(err).Str("invoice_id", inv.ID).Msg("Failed to record invoice.payment_succeeded")
		}

	case "invoice.payment_failed":
		// Surfaced for operational visibility only; dunning is the
		// provider's job.
		var inv webhookInvoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			s.logger.Error().Err(err).Msg("Invalid invoice.payment_failed payload")
			http.Error(w, "invalid invoice data", http.StatusBadRequest)
			return
		}
		s.logger.Warn().Str("invoice_id", inv.ID).Str("stripe_customer_id", inv.Customer).Msg("Invoice payment failed")

	default:
		s.logger.Debug().Str("event_type", string(event.Type)).Msg("Unhandled Stripe webhook event")
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]bool{"received": true}); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode webhook acknowledgement")
	}
}

func (s *StripeService) handleCheckoutCompleted(ctx context.Context, cs webhookSession, eventTS time.Time) error {
	if cs.Subscription == "" {
		s.logger.Info().Str("session_id", cs.ID).Msg("Checkout session has no subscription, skipping")
		return nil
	}

	sub, err := s.provider.GetSubscription(ctx, cs.Subscription)
	if err != nil {
		return fmt.Errorf("fetch subscription %s: %w", cs.Subscription, err)
	}

	userID, err := s.resolveUserID(ctx, sub.Metadata, cs.Metadata, firstNonEmpty(sub.CustomerID, cs.Customer))
	if err != nil {
		return fmt.Errorf("resolve user for session %s: %w", cs.ID, err)
	}

	planID := s.catalog.Resolve(sub.PriceID, firstNonEmpty(sub.Metadata[metaPlanID], cs.Metadata[metaPlanID]))
	if planID == plan.Verification {
		return s.upsertVerificationBadge(ctx, userID, sub)
	}
	return s.upsertSubscriptionRecord(ctx, userID, planID, sub, eventTS)
}

func (s *StripeService) applySubscriptionSnapshot(ctx context.Context, payload webhookSubscription, eventTS time.Time) error {
	sub := fromWebhookSubscription(payload)

	userID, err := s.resolveUserID(ctx, sub.Metadata, nil, sub.CustomerID)
	if err != nil {
		return fmt.Errorf("resolve user for subscription %s: %w", sub.ID, err)
	}

	planID := s.catalog.Resolve(sub.PriceID, sub.Metadata[metaPlanID])
	if planID == plan.Verification {
		// A verification-plan event only ever touches the badge.
		return s.upsertVerificationBadge(ctx, userID, sub)
	}
	return s.upsertSubscriptionRecord(ctx, userID, planID, sub, eventTS)
}

func (s *StripeService) handleSubscriptionDeleted(ctx context.Context, payload webhookSubscription, eventTS time.Time) error {
	sub := fromWebhookSubscription(payload)

	planID := s.catalog.Resolve(sub.PriceID, sub.Metadata[metaPlanID])
	if planID == plan.Verification {
		userID, err := s.resolveUserID(ctx, sub.Metadata, nil, sub.CustomerID)
		if err != nil {
			return fmt.Errorf("resolve user for deleted verification subscription %s: %w", sub.ID, err)
		}
		badge := badgeFromSubscription(sub)
		badge.Active = false
		badge.Status = model.StatusCanceled
		return s.userRepo.UpdateVerificationBadge(ctx, userID, badge)
	}

	// Records are keyed by subscription id, so the cancellation needs no
	// metadata to find its target. The record is retained.
	if err := s.subRepo.CancelSubscription(ctx, sub.ID, eventTS); err != nil {
		return err
	}
	s.logger.Info().Str("subscription_id", sub.ID).Msg("Subscription marked canceled")
	return nil
}

func (s *StripeService) handleInvoicePaid(ctx context.Context, inv webhookInvoice) error {
	subscriptionID := inv.Parent.SubscriptionDetails.Subscription
	if subscriptionID == "" {
		s.logger.Info().Str("invoice_id", inv.ID).Msg("Invoice has no subscription, skipping billing history")
		return nil
	}

	meta := inv.Metadata
	if len(meta) == 0 {
		meta = inv.Parent.SubscriptionDetails.Metadata
	}
	userID, err := s.resolveUserID(ctx, meta, nil, inv.Customer)
	if err != nil {
		// Invoices are supplementary; drop rather than fail the ack.
		s.logger.Warn().Err(err).Str("invoice_id", inv.ID).Msg("Could not determine user for invoice, dropping")
		return nil
	}

	return s.historyRepo.InsertEntry(ctx, &model.BillingHistoryEntry{
		UserID:               userID,
		StripeSubscriptionID: subscriptionID,
		StripeInvoiceID:      inv.ID,
		AmountPaid:           inv.AmountPaid,
		Currency:             inv.Currency,
		PeriodStart:          time.Unix(inv.PeriodStart, 0),
		PeriodEnd:            time.Unix(inv.PeriodEnd, 0),
		Status:               inv.Status,
		HostedInvoiceURL:     inv.HostedInvoiceURL,
	})
}

// resolveUserID recovers the owning user of an event: primary metadata, then
// secondary metadata, then the stored customer link, then the provider
// customer's metadata.
func (s *StripeService) resolveUserID(ctx context.Context, primary, secondary map[string]string, customerID string) (string, error) {
	if userID := primary[metaUserID]; userID != "" {
		return userID, nil
	}
	if userID := secondary[metaUserID]; userID != "" {
		return userID, nil
	}
	if customerID == "" {
		return "", fmt.Errorf("cannot determine user: missing metadata and customer id")
	}

	s.logger.Warn().Str("stripe_customer_id", customerID).Msg("Missing user_id metadata; looking up user by customer ID")
	u, err := s.userRepo.GetUserByStripeCustomerID(ctx, customerID)
	if err != nil {
		return "", fmt.Errorf("lookup user by stripe customer id: %w", err)
	}
	if u != nil {
		return u.UserID, nil
	}

	cust, err := s.provider.GetCustomer(ctx, customerID)
	if err != nil {
		return "", fmt.Errorf("fetch customer %s: %w", customerID, err)
	}
	if userID := cust.Metadata[metaUserID]; userID != "" {
		return userID, nil
	}
	return "", fmt.Errorf("no user found for customer %s", customerID)
}

func (s *StripeService) upsertVerificationBadge(ctx context.Context, userID string, sub *billing.Subscription) error {
	badge := badgeFromSubscription(sub)
	if err := s.userRepo.UpdateVerificationBadge(ctx, userID, badge); err != nil {
		return fmt.Errorf("update verification badge for user %s: %w", userID, err)
	}
	s.logger.Info().Str("user_id", userID).Str("subscription_id", sub.ID).Bool("active", badge.Active).Msg("Verification badge updated")
	return nil
}

func (s *StripeService) upsertSubscriptionRecord(ctx context.Context, userID string, planID plan.ID, sub *billing.Subscription, eventTS time.Time) error {
	record := &model.UserSubscription{
		StripeSubscriptionID: sub.ID,
		UserID:               userID,
		PlanID:               string(planID),
		StripeCustomerID:     sub.CustomerID,
		Status:               sub.Status,
		CurrentPeriodStart:   time.Unix(sub.CurrentPeriodStart, 0),
		CurrentPeriodEnd:     time.Unix(sub.CurrentPeriodEnd, 0),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		PriceID:              sub.PriceID,
		BillingInterval:      normalizeInterval(sub.Interval),
		Source:               model.SourceStripe,
		EventTS:              eventTS,
	}
	if err := s.subRepo.UpsertSubscription(ctx, record); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", userID).Str("subscription_id", sub.ID).Str("plan_id", string(planID)).Str("status", sub.Status).Msg("Subscription record stored")
	return nil
}

func badgeFromSubscription(sub *billing.Subscription) *model.VerificationBadge {
	return &model.VerificationBadge{
		Active:           sub.Status == model.StatusActive || sub.Status == model.StatusTrialing,
		SubscriptionID:   sub.ID,
		PriceID:          sub.PriceID,
		Interval:         normalizeInterval(sub.Interval),
		Status:           sub.Status,
		CurrentPeriodEnd: time.Unix(sub.CurrentPeriodEnd, 0),
	}
}

func fromWebhookSubscription(payload webhookSubscription) *billing.Subscription {
	sub := &billing.Subscription{
		ID:                payload.ID,
		CustomerID:        payload.Customer,
		Status:            payload.Status,
		CancelAtPeriodEnd: payload.CancelAtPeriodEnd,
		Metadata:          payload.Metadata,
	}
	if len(payload.Items.Data) > 0 {
		item := payload.Items.Data[0]
		sub.CurrentPeriodStart = item.CurrentPeriodStart
		sub.CurrentPeriodEnd = item.CurrentPeriodEnd
		sub.PriceID = item.Price.ID
		sub.Interval = item.Price.Recurring.Interval
	}
	return sub
}

func normalizeInterval(interval string) string {
	if iv, err := plan.ParseInterval(interval); err == nil {
		return string(iv)
	}
	return interval
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
