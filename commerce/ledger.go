/*
ledger.go - Balance arithmetic over the account store

PURPOSE:
  The Ledger owns every mutation of UserAccount.Balance. Nothing else in
  the repository writes that field.

CRITICAL INVARIANTS:
  1. Balance never goes negative. The debit is a conditional update at
     the store, so the invariant holds even when two debits race.
  2. Exactly one balance write per call. Failure to persist surfaces as
     ErrPersistenceFailure and the caller must not proceed.
  3. Amounts are strictly positive. Zero or negative amounts are a
     programming error upstream and are rejected with ErrInvalidAmount.
*/
package commerce

import (
	"context"
	"errors"
)

// Ledger performs balance credits and debits for user accounts.
type Ledger struct {
	store AccountStore
}

func NewLedger(store AccountStore) *Ledger {
	return &Ledger{store: store}
}

// Credit adds amount to the user's balance.
func (l *Ledger) Credit(ctx context.Context, id UserID, amount Money) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if err := l.store.CreditBalance(ctx, id, amount); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return &PersistenceError{Op: "credit balance", Err: err}
	}
	return nil
}

// Debit subtracts amount from the user's balance. Fails with
// ErrInsufficientFunds (wrapped with the shortfall context when the
// account could be read) and leaves the balance unchanged.
func (l *Ledger) Debit(ctx context.Context, id UserID, amount Money) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	err := l.store.DebitBalance(ctx, id, amount)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInsufficientFunds):
		// Best-effort enrichment; the sentinel alone is still correct
		// if the read fails.
		if account, readErr := l.store.GetAccount(ctx, id); readErr == nil {
			return &InsufficientFundsError{UserID: id, Available: account.Balance, Requested: amount}
		}
		return err
	case errors.Is(err, ErrNotFound):
		return err
	default:
		return &PersistenceError{Op: "debit balance", Err: err}
	}
}
