package service

import (
	"context"
	"fmt"

	"app/internal/billing"
	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// SubscriptionInfo is the aggregated read-path response: live provider state
// plus, for placeholder ids, locally synthesized state.
type SubscriptionInfo struct {
	Subscription  *billing.Subscription   `json:"subscription"`
	Subscriptions []*billing.Subscription `json:"subscriptions"`
	Invoices      []*billing.Invoice      `json:"invoices"`
	Placeholder   bool                    `json:"placeholder,omitempty"`
}

// SubscriptionService defines the subscription read path.
type SubscriptionService interface {
	// GetInfo fetches live subscription and invoice state for a customer or a
	// single subscription, and opportunistically repairs stored
	// cancel-at-period-end drift (the provider always wins).
	GetInfo(ctx context.Context, customerID, subscriptionID string) (*SubscriptionInfo, error)
	// GetUserSubscription returns the caller's stored record and badge
	// without touching the provider.
	GetUserSubscription(ctx context.Context, userID string) (*model.UserSubscription, *model.VerificationBadge, error)
}

type subscriptionService struct {
	provider billing.Provider
	userRepo repository.UserRepository
	subRepo  repository.SubscriptionRepository
	logger   zerolog.Logger
}

// NewSubscriptionService creates a new SubscriptionService with a scoped logger.
func NewSubscriptionService(provider billing.Provider, userRepo repository.UserRepository, subRepo repository.SubscriptionRepository, logger zerolog.Logger) SubscriptionService {
	return &subscriptionService{
		provider: provider,
		userRepo: userRepo,
		subRepo:  subRepo,
		logger:   logger.With().Str("service", "SubscriptionService").Logger(),
	}
}

func (s *subscriptionService) GetInfo(ctx context.Context, customerID, subscriptionID string) (*SubscriptionInfo, error) {
	switch {
	case subscriptionID != "" && model.IsLocalSubscriptionID(subscriptionID):
		// Placeholder ids never reach the provider.
		return s.placeholderInfo(ctx, subscriptionID)

	case subscriptionID != "":
		sub, err := s.provider.GetSubscription(ctx, subscriptionID)
		if err != nil {
			s.logger.Error().Err(err).Str("subscription_id", subscriptionID).Msg("Failed to fetch subscription")
			return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		s.reconcileCancelFlag(ctx, sub)
		return &SubscriptionInfo{Subscription: sub, Subscriptions: []*billing.Subscription{sub}}, nil

	case customerID != "":
		subs, err := s.provider.ListSubscriptions(ctx, customerID)
		if err != nil {
			s.logger.Error().Err(err).Str("stripe_customer_id", customerID).Msg("Failed to list subscriptions")
			return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		info := &SubscriptionInfo{Subscriptions: subs}
		if len(subs) > 0 {
			info.Subscription = newestSubscription(subs)
			s.reconcileCancelFlag(ctx, info.Subscription)
		}
		invoices, err := s.provider.ListInvoices(ctx, customerID)
		if err != nil {
			// Invoices are supplementary to the primary response.
			s.logger.Error().Err(err).Str("stripe_customer_id", customerID).Msg("Failed to list invoices")
		} else {
			info.Invoices = invoices
		}
		return info, nil

	default:
		return nil, fmt.Errorf("%w: customer id or subscription id is required", ErrValidation)
	}
}

// placeholderInfo synthesizes a provider-shaped response from the stored
// local record. Real invoices are never populated for placeholders.
func (s *subscriptionService) placeholderInfo(ctx context.Context, subscriptionID string) (*SubscriptionInfo, error) {
	stored, err := s.subRepo.GetBySubscriptionID(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("fetch placeholder subscription %s: %w", subscriptionID, err)
	}
	if stored == nil {
		return nil, fmt.Errorf("%w: placeholder subscription %s", ErrNotFound, subscriptionID)
	}
	sub := &billing.Subscription{
		ID:                 stored.StripeSubscriptionID,
		CustomerID:         stored.StripeCustomerID,
		Status:             model.StatusActive,
		PriceID:            stored.PriceID,
		Interval:           stored.BillingInterval,
		CurrentPeriodStart: stored.CurrentPeriodStart.Unix(),
		CurrentPeriodEnd:   stored.CurrentPeriodEnd.Unix(),
		CancelAtPeriodEnd:  stored.CancelAtPeriodEnd,
	}
	return &SubscriptionInfo{
		Subscription:  sub,
		Subscriptions: []*billing.Subscription{sub},
		Placeholder:   true,
	}, nil
}

// reconcileCancelFlag is the system's only self-healing mechanism against
// missed events: if the stored record disagrees with the provider on
// cancel-at-period-end, the stored flag is overwritten. Failures never block
// the response.
func (s *subscriptionService) reconcileCancelFlag(ctx context.Context, sub *billing.Subscription) {
	stored, err := s.subRepo.GetBySubscriptionID(ctx, sub.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("subscription_id", sub.ID).Msg("Failed to load stored record for reconciliation")
		return
	}
	if stored == nil || stored.CancelAtPeriodEnd == sub.CancelAtPeriodEnd {
		return
	}
	s.logger.Info().
		Str("subscription_id", sub.ID).
		Bool("stored", stored.CancelAtPeriodEnd).
		Bool("provider", sub.CancelAtPeriodEnd).
		Msg("Repairing cancel_at_period_end drift from provider state")
	if err := s.subRepo.UpdateCancelAtPeriodEnd(ctx, sub.ID, sub.CancelAtPeriodEnd); err != nil {
		s.logger.Error().Err(err).Str("subscription_id", sub.ID).Msg("Failed to repair cancel_at_period_end drift")
	}
}

func (s *subscriptionService) GetUserSubscription(ctx context.Context, userID string) (*model.UserSubscription, *model.VerificationBadge, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch user")
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	sub, err := s.subRepo.GetLatestByUserID(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch subscription")
		return nil, nil, err
	}
	return sub, user.Verification, nil
}

func newestSubscription(subs []*billing.Subscription) *billing.Subscription {
	newest := subs[0]
	for _, sub := range subs[1:] {
		if sub.Created > newest.Created {
			newest = sub
		}
	}
	return newest
}
