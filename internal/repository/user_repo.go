package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository defines methods for accessing user records and the billing
// state stored on them (customer link, verification badge).
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error)
	UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error
	UpdateVerificationBadge(ctx context.Context, userID string, badge *model.VerificationBadge) error
}

type userRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepo{pool: pool}
}

const userColumns = `user_id, email, name, avatar_url, stripe_customer_id, verification, created_at, updated_at`

func (r *userRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM user_profiles WHERE user_id=$1`
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *userRepo) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM user_profiles WHERE stripe_customer_id=$1`
	return r.scanUser(r.pool.QueryRow(ctx, query, customerID))
}

func (r *userRepo) scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var rawBadge []byte
	if err := row.Scan(&u.UserID, &u.Email, &u.Name, &u.AvatarURL, &u.StripeCustomerID, &rawBadge, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(rawBadge) > 0 {
		var badge model.VerificationBadge
		if err := json.Unmarshal(rawBadge, &badge); err != nil {
			return nil, fmt.Errorf("unmarshal verification badge for user %s: %w", u.UserID, err)
		}
		u.Verification = &badge
	}
	return &u, nil
}

func (r *userRepo) UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error {
	const q = `UPDATE user_profiles SET stripe_customer_id = $2, updated_at = NOW() WHERE user_id = $1`
	if _, err := r.pool.Exec(ctx, q, userID, customerID); err != nil {
		return fmt.Errorf("store stripe customer id for user %s: %w", userID, err)
	}
	return nil
}

// UpdateVerificationBadge overwrites the badge on the user row. A nil badge
// clears it.
func (r *userRepo) UpdateVerificationBadge(ctx context.Context, userID string, badge *model.VerificationBadge) error {
	var raw []byte
	if badge != nil {
		var err error
		raw, err = json.Marshal(badge)
		if err != nil {
			return fmt.Errorf("marshal verification badge for user %s: %w", userID, err)
		}
	}
	const q = `UPDATE user_profiles SET verification = $2, updated_at = NOW() WHERE user_id = $1`
	if _, err := r.pool.Exec(ctx, q, userID, raw); err != nil {
		return fmt.Errorf("store verification badge for user %s: %w", userID, err)
	}
	return nil
}
