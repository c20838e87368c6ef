package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubscriptionRepository defines methods for accessing mirrored subscription
// records. Records are keyed by the provider's subscription id and nested
// under their owning user.
type SubscriptionRepository interface {
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*model.UserSubscription, error)
	GetLatestByUserID(ctx context.Context, userID string) (*model.UserSubscription, error)
	// UpsertSubscription fully overwrites the record with the given snapshot.
	// Snapshots older than the stored one (by event timestamp) are ignored so
	// a late redelivery cannot resurrect newer state.
	UpsertSubscription(ctx context.Context, sub *model.UserSubscription) error
	// CancelSubscription marks the record canceled and clears the
	// cancel-at-period-end flag. The record is retained, not erased.
	CancelSubscription(ctx context.Context, subscriptionID string, eventTS time.Time) error
	UpdateCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancelAtPeriodEnd bool) error
}

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepo creates a new SubscriptionRepository.
func NewSubscriptionRepo(pool *pgxpool.Pool) SubscriptionRepository {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `
        stripe_subscription_id, user_id, plan_id, stripe_customer_id, status,
        current_period_start, current_period_end, cancel_at_period_end,
        price_id, billing_interval, source, event_ts, created_at, updated_at`

func (r *subscriptionRepo) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*model.UserSubscription, error) {
	q := `SELECT` + subscriptionColumns + ` FROM user_subscriptions WHERE stripe_subscription_id = $1`
	return r.scan(r.pool.QueryRow(ctx, q, subscriptionID))
}

func (r *subscriptionRepo) GetLatestByUserID(ctx context.Context, userID string) (*model.UserSubscription, error) {
	q := `SELECT` + subscriptionColumns + `
        FROM user_subscriptions
        WHERE user_id = $1
        ORDER BY updated_at DESC
        LIMIT 1`
	return r.scan(r.pool.QueryRow(ctx, q, userID))
}

func (r *subscriptionRepo) scan(row pgx.Row) (*model.UserSubscription, error) {
	var us model.UserSubscription
	err := row.Scan(
		&us.StripeSubscriptionID,
		&us.UserID,
		&us.PlanID,
		&us.StripeCustomerID,
		&us.Status,
		&us.CurrentPeriodStart,
		&us.CurrentPeriodEnd,
		&us.CancelAtPeriodEnd,
		&us.PriceID,
		&us.BillingInterval,
		&us.Source,
		&us.EventTS,
		&us.CreatedAt,
		&us.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch subscription: %w", err)
	}
	return &us, nil
}

func (r *subscriptionRepo) UpsertSubscription(ctx context.Context, sub *model.UserSubscription) error {
	const q = `
        INSERT INTO user_subscriptions (
            stripe_subscription_id, user_id, plan_id, stripe_customer_id, status,
            current_period_start, current_period_end, cancel_at_period_end,
            price_id, billing_interval, source, event_ts, created_at, updated_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
        ON CONFLICT (stripe_subscription_id) DO UPDATE
        SET user_id = EXCLUDED.user_id,
            plan_id = EXCLUDED.plan_id,
            stripe_customer_id = EXCLUDED.stripe_customer_id,
            status = EXCLUDED.status,
            current_period_start = EXCLUDED.current_period_start,
            current_period_end = EXCLUDED.current_period_end,
            cancel_at_period_end = EXCLUDED.cancel_at_period_end,
            price_id = EXCLUDED.price_id,
            billing_interval = EXCLUDED.billing_interval,
            source = EXCLUDED.source,
            event_ts = EXCLUDED.event_ts,
            updated_at = NOW()
        WHERE EXCLUDED.event_ts >= user_subscriptions.event_ts;
    `
	_, err := r.pool.Exec(ctx, q,
		sub.StripeSubscriptionID,
		sub.UserID,
		sub.PlanID,
		sub.StripeCustomerID,
		sub.Status,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd,
		sub.PriceID,
		sub.BillingInterval,
		sub.Source,
		sub.EventTS,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription %s for user %s: %w", sub.StripeSubscriptionID, sub.UserID, err)
	}
	return nil
}

func (r *subscriptionRepo) CancelSubscription(ctx context.Context, subscriptionID string, eventTS time.Time) error {
	const q = `
        UPDATE user_subscriptions
        SET status = 'canceled',
            cancel_at_period_end = FALSE,
            event_ts = GREATEST(event_ts, $2),
            updated_at = NOW()
        WHERE stripe_subscription_id = $1;
    `
	if _, err := r.pool.Exec(ctx, q, subscriptionID, eventTS); err != nil {
		return fmt.Errorf("cancel subscription %s: %w", subscriptionID, err)
	}
	return nil
}

func (r *subscriptionRepo) UpdateCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancelAtPeriodEnd bool) error {
	const q = `
        UPDATE user_subscriptions
        SET cancel_at_period_end = $2,
            updated_at = NOW()
        WHERE stripe_subscription_id = $1;
    `
	if _, err := r.pool.Exec(ctx, q, subscriptionID, cancelAtPeriodEnd); err != nil {
		return fmt.Errorf("update cancel_at_period_end for subscription %s: %w", subscriptionID, err)
	}
	return nil
}
