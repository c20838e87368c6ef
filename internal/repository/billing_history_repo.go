package repository

import (
	"context"
	"fmt"

	"app/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BillingHistoryRepository stores append-only invoice copies. Entries are
// never mutated; redelivery of the same invoice is a no-op.
type BillingHistoryRepository interface {
	InsertEntry(ctx context.Context, entry *model.BillingHistoryEntry) error
	ListBySubscriptionID(ctx context.Context, subscriptionID string) ([]*model.BillingHistoryEntry, error)
}

type billingHistoryRepo struct {
	pool *pgxpool.Pool
}

func NewBillingHistoryRepo(pool *pgxpool.Pool) BillingHistoryRepository {
	return &billingHistoryRepo{pool: pool}
}

func (r *billingHistoryRepo) InsertEntry(ctx context.Context, entry *model.BillingHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	const q = `
        INSERT INTO billing_history (
            id, user_id, stripe_subscription_id, stripe_invoice_id,
            amount_paid, currency, period_start, period_end, status,
            hosted_invoice_url, created_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
        ON CONFLICT (stripe_invoice_id) DO NOTHING;
    `
	_, err := r.pool.Exec(ctx, q,
		entry.ID,
		entry.UserID,
		entry.StripeSubscriptionID,
		entry.StripeInvoiceID,
		entry.AmountPaid,
		entry.Currency,
		entry.PeriodStart,
		entry.PeriodEnd,
		entry.Status,
		entry.HostedInvoiceURL,
	)
	if err != nil {
		return fmt.Errorf("insert billing history entry for invoice %s: %w", entry.StripeInvoiceID, err)
	}
	return nil
}

func (r *billingHistoryRepo) ListBySubscriptionID(ctx context.Context, subscriptionID string) ([]*model.BillingHistoryEntry, error) {
	const q = `
        SELECT id, user_id, stripe_subscription_id, stripe_invoice_id,
               amount_paid, currency, period_start, period_end, status,
               hosted_invoice_url, created_at
        FROM billing_history
        WHERE stripe_subscription_id = $1
        ORDER BY period_start DESC;
    `
	rows, err := r.pool.Query(ctx, q, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("list billing history for subscription %s: %w", subscriptionID, err)
	}
	defer rows.Close()

	var entries []*model.BillingHistoryEntry
	for rows.Next() {
		var e model.BillingHistoryEntry
		if err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.StripeSubscriptionID,
			&e.StripeInvoiceID,
			&e.AmountPaid,
			&e.Currency,
			&e.PeriodStart,
			&e.PeriodEnd,
			&e.Status,
			&e.HostedInvoiceURL,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan billing history entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate billing history for subscription %s: %w", subscriptionID, err)
	}
	return entries, nil
}
