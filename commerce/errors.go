/*
errors.go - Centralized error taxonomy for the transaction core

PURPOSE:
  All failure modes of the core in one place. Every operation returns one
  of these rather than raising; the HTTP layer maps them to status codes
  and the UI owns the user-facing wording.

ERROR CATEGORIES:
  1. Flow errors      - preconditions of a purchase/deposit attempt
  2. Promo errors     - validation failures of a promo code
  3. Payment errors   - QR payment lifecycle violations
  4. Store errors     - persistence-level failures

All errors are terminal for the current attempt. Nothing in the core
retries automatically; retrying a debit or a reserve would risk
double-charging.

USAGE:
  if errors.Is(err, commerce.ErrInsufficientFunds) { ... }

  var minErr *commerce.PromoMinimumError
  if errors.As(err, &minErr) { show(minErr.Minimum) }
*/
package commerce

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotAuthenticated is returned when a flow is invoked without a user.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrInsufficientFunds is returned when a debit exceeds the balance.
	// The balance is left unchanged.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrOutOfStock is returned when a reservation exceeds available stock.
	ErrOutOfStock = errors.New("out of stock")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrPromoInvalid is returned for unknown or inactive promo codes.
	ErrPromoInvalid = errors.New("promo code invalid")

	// ErrPromoExpired is returned when a promo code is past its expiry.
	ErrPromoExpired = errors.New("promo code expired")

	// ErrPromoExhausted is returned when a promo code hit its usage cap.
	ErrPromoExhausted = errors.New("promo code usage limit reached")

	// ErrPromoMinimumNotMet is returned when the subtotal is below the
	// promo's minimum purchase. Wrapped by PromoMinimumError, which
	// carries the threshold.
	ErrPromoMinimumNotMet = errors.New("promo minimum purchase not met")

	// ErrPaymentExpired is returned when confirming a payment whose
	// window has closed.
	ErrPaymentExpired = errors.New("payment expired")

	// ErrPersistenceFailure is returned when a store write fails. The
	// orchestrator never proceeds to dependent steps after one.
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientFundsError reports how short the balance was.
type InsufficientFundsError struct {
	UserID    UserID
	Available Money
	Requested Money
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %d, requested %d", e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// OutOfStockError reports the product whose stock ran out.
type OutOfStockError struct {
	ProductID ProductID
	Requested int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("out of stock: product %s, requested %d", e.ProductID, e.Requested)
}

func (e *OutOfStockError) Unwrap() error { return ErrOutOfStock }

// PromoMinimumError reports a subtotal below the promo's minimum purchase.
// The message includes the threshold so the caller can display it.
type PromoMinimumError struct {
	Code     string
	Minimum  Money
	Subtotal Money
}

func (e *PromoMinimumError) Error() string {
	return fmt.Sprintf("promo %s requires a minimum purchase of %d (subtotal %d)", e.Code, e.Minimum, e.Subtotal)
}

func (e *PromoMinimumError) Unwrap() error { return ErrPromoMinimumNotMet }

// PaymentStateError reports a disallowed payment transition.
type PaymentStateError struct {
	ID   PaymentID
	From PaymentStatus
	To   PaymentStatus
}

func (e *PaymentStateError) Error() string {
	return fmt.Sprintf("payment %s: cannot transition %s -> %s", e.ID, e.From, e.To)
}

// PersistenceError wraps a store-level failure with the collection and
// operation that failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return ErrPersistenceFailure }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is due to the caller's input or
// state, as opposed to an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotAuthenticated) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrOutOfStock) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrPromoInvalid) ||
		errors.Is(err, ErrPromoExpired) ||
		errors.Is(err, ErrPromoExhausted) ||
		errors.Is(err, ErrPromoMinimumNotMet) ||
		errors.Is(err, ErrPaymentExpired)
}

// IsNotFound reports whether the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
