package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pennyrush/pennyrush/go/internal/models"
	"github.com/stretchr/testify/require"
)

// fakeLedgerRepo applies the same conditional-decrement semantics as the
// Postgres repository.
type fakeLedgerRepo struct {
	balances map[uuid.UUID]int64
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{balances: make(map[uuid.UUID]int64)}
}

func (f *fakeLedgerRepo) GetBalance(ctx context.Context, userID uuid.UUID) (*models.CreditBalance, error) {
	return &models.CreditBalance{UserID: userID, Balance: f.balances[userID]}, nil
}

func (f *fakeLedgerRepo) Debit(ctx context.Context, userID uuid.UUID, amount int64) error {
	if f.balances[userID] < amount {
		return ErrInsufficientFunds
	}
	f.balances[userID] -= amount
	return nil
}

func (f *fakeLedgerRepo) Credit(ctx context.Context, userID uuid.UUID, amount int64) error {
	f.balances[userID] += amount
	return nil
}

func TestDebitValidation(t *testing.T) {
	app := NewApp(newFakeLedgerRepo())
	ctx := context.Background()
	userID := uuid.New()

	require.ErrorIs(t, app.Debit(ctx, userID, 0), ErrInvalidAmount)
	require.ErrorIs(t, app.Debit(ctx, userID, -5), ErrInvalidAmount)
}

func TestDebitInsufficientFunds(t *testing.T) {
	repo := newFakeLedgerRepo()
	app := NewApp(repo)
	ctx := context.Background()
	userID := uuid.New()

	repo.balances[userID] = 2

	require.NoError(t, app.Debit(ctx, userID, 2))
	require.ErrorIs(t, app.Debit(ctx, userID, 1), ErrInsufficientFunds)

	// A rejected debit changes nothing.
	balance, err := app.GetBalance(ctx, userID)
	require.NoError(t, err)
	require.Zero(t, balance.Balance)
}

func TestCreditAndSpend(t *testing.T) {
	repo := newFakeLedgerRepo()
	app := NewApp(repo)
	ctx := context.Background()
	userID := uuid.New()

	require.ErrorIs(t, app.Credit(ctx, userID, 0), ErrInvalidAmount)
	require.NoError(t, app.Credit(ctx, userID, 10))
	require.NoError(t, app.Debit(ctx, userID, 4))

	balance, err := app.GetBalance(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, int64(6), balance.Balance)
}
