package ledger

import "errors"

var (
	// ErrInsufficientFunds means the conditional decrement found less balance
	// than the requested amount. Terminal for the bid that triggered it.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount rejects zero or negative debit/credit amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)
