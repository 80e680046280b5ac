package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pennyrush/pennyrush/go/internal/models"
	"github.com/pennyrush/pennyrush/go/internal/sqlutil"
)

// Repository implements credit balance storage on Postgres.
//
// Debits are a single conditional UPDATE guarded on balance >= amount, never
// a read followed by a write, so two simultaneous clicks cannot spend the
// same credits.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetBalance returns the user's balance, zero-valued if no row exists yet.
func (r *Repository) GetBalance(ctx context.Context, userID uuid.UUID) (*models.CreditBalance, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT user_id, balance, updated_at FROM credit_balances WHERE user_id = $1`,
		userID)

	var b models.CreditBalance
	if err := row.Scan(&b.UserID, &b.Balance, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &models.CreditBalance{UserID: userID, Balance: 0, UpdatedAt: time.Time{}}, nil
		}
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return &b, nil
}

// Debit decrements the balance in its own transaction.
func (r *Repository) Debit(ctx context.Context, userID uuid.UUID, amount int64) error {
	return sqlutil.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return r.DebitTx(ctx, tx, userID, amount)
	})
}

// DebitTx decrements the balance inside a caller-owned transaction. The click
// path uses this so the debit commits or rolls back together with the game
// mutation.
func (r *Repository) DebitTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64) error {
	tag, err := tx.Exec(ctx,
		`UPDATE credit_balances
		 SET balance = balance - $2, updated_at = now()
		 WHERE user_id = $1 AND balance >= $2`,
		userID, amount)
	if err != nil {
		return fmt.Errorf("failed to debit balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

// Credit increments the balance, creating the row on first credit. Used for
// purchases, bonuses and administrative refunds.
func (r *Repository) Credit(ctx context.Context, userID uuid.UUID, amount int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO credit_balances (user_id, balance, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id)
		 DO UPDATE SET balance = credit_balances.balance + EXCLUDED.balance, updated_at = now()`,
		userID, amount)
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	return nil
}
