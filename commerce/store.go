/*
store.go - Persistence interfaces for the transaction core

PURPOSE:
  Defines the boundary between the flows in this package and the remote
  relational store. Each method is one row-level operation: one network
  round-trip, one typed result. No lock or transaction spans two calls,
  which is exactly why the decrements below are conditional.

CONDITIONAL WRITES:
  The store is not trusted to be ACID across collections, but each single
  update IS atomic. Balance and stock decrements are therefore expressed
  as conditional updates ("subtract if still sufficient") instead of
  read-modify-write from the caller. Two racing purchases of the last
  unit resolve at the store: one row update lands, the other affects
  zero rows and surfaces ErrOutOfStock.

GUARDED TRANSITIONS:
  Order, Deposit and QRPayment status changes name the expected current
  status. A transition whose guard no longer holds affects zero rows and
  reports moved=false, which makes payment confirmation an idempotent
  no-op instead of a correctness risk.

IMPLEMENTATIONS:
  - commerce/store: in-memory, for tests and development
  - store/sqlite:   production SQLite

SEE ALSO:
  - ledger.go, inventory.go: thin wrappers over the conditional writes
  - orchestrator.go: sequences these calls into the two end-to-end flows
*/
package commerce

import (
	"context"
	"time"
)

// =============================================================================
// PER-COLLECTION INTERFACES
// =============================================================================

// AccountStore persists user accounts and their balance field.
type AccountStore interface {
	GetAccount(ctx context.Context, id UserID) (*UserAccount, error)
	CreateAccount(ctx context.Context, account *UserAccount) error

	// CreditBalance adds amount to the balance. ErrNotFound if the
	// account does not exist.
	CreditBalance(ctx context.Context, id UserID, amount Money) error

	// DebitBalance subtracts amount only if balance >= amount, as a
	// single conditional update. ErrInsufficientFunds when the guard
	// fails, ErrNotFound when the account is missing.
	DebitBalance(ctx context.Context, id UserID, amount Money) error
}

// ProductStore persists catalog rows and their stock field.
type ProductStore interface {
	GetProduct(ctx context.Context, id ProductID) (*Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	ListBestSellers(ctx context.Context) ([]Product, error)
	CreateProduct(ctx context.Context, product *Product) error

	// ReserveStock subtracts qty only if stock >= qty, as a single
	// conditional update. ErrOutOfStock when the guard fails.
	ReserveStock(ctx context.Context, id ProductID, qty int) error

	// RestoreStock adds qty back. Compensating reverse of ReserveStock,
	// used by the orchestrator when a downstream step fails.
	RestoreStock(ctx context.Context, id ProductID, qty int) error
}

// OrderStore is the append-plus-transition journal of purchase attempts.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *Order) error
	GetOrder(ctx context.Context, id OrderID) (*Order, error)

	// TransitionOrder moves the order from -> to. Returns moved=false
	// when the order is no longer in the from status.
	TransitionOrder(ctx context.Context, id OrderID, from, to OrderStatus) (bool, error)

	// OrdersByUser returns the user's orders, newest first.
	OrdersByUser(ctx context.Context, id UserID) ([]Order, error)

	// CompletedOrderTotals sums completed order amounts per user.
	CompletedOrderTotals(ctx context.Context) (map[UserID]Money, error)
}

// DepositStore is the journal of balance top-up attempts.
type DepositStore interface {
	CreateDeposit(ctx context.Context, deposit *Deposit) error
	GetDeposit(ctx context.Context, id DepositID) (*Deposit, error)
	TransitionDeposit(ctx context.Context, id DepositID, from, to DepositStatus) (bool, error)

	// LinkDepositPayment records the QR payment backing the deposit.
	// ErrNotFound when the deposit is missing.
	LinkDepositPayment(ctx context.Context, id DepositID, paymentID PaymentID) error

	// DepositsByUser returns the user's deposits, newest first.
	DepositsByUser(ctx context.Context, id UserID) ([]Deposit, error)

	// CompletedDepositTotals sums completed deposit amounts per user.
	CompletedDepositTotals(ctx context.Context) (map[UserID]Money, error)
}

// PromoStore persists promo codes and their usage counter.
type PromoStore interface {
	// GetPromo looks a code up case-insensitively. ErrNotFound when absent.
	GetPromo(ctx context.Context, code string) (*PromoCode, error)
	CreatePromo(ctx context.Context, promo *PromoCode) error

	// IncrementPromoUsage bumps the counter only while under the cap
	// (MaxUsage == 0 means uncapped). ErrPromoExhausted when the guard
	// fails. Invoked once per committed purchase, never on validation.
	IncrementPromoUsage(ctx context.Context, code string) error
}

// PaymentStore persists QR payment rows.
type PaymentStore interface {
	CreatePayment(ctx context.Context, payment *QRPayment) error
	GetPayment(ctx context.Context, id PaymentID) (*QRPayment, error)

	// TransitionPayment moves the payment from -> to. moved=false when
	// the payment already left the from status; terminal states are
	// never overwritten.
	TransitionPayment(ctx context.Context, id PaymentID, from, to PaymentStatus) (bool, error)

	// PendingPaymentsBefore lists pending payments whose expiry is
	// before cutoff. Used by the expiry sweeper.
	PendingPaymentsBefore(ctx context.Context, cutoff time.Time) ([]QRPayment, error)
}

// CredentialStore reads delivered credentials. Fulfillment writes them
// outside this core; CreateCredential exists for that side and for tests.
type CredentialStore interface {
	GetCredentialByOrder(ctx context.Context, id OrderID) (*ProductCredential, error)
	CreateCredential(ctx context.Context, credential *ProductCredential) error
}

// =============================================================================
// COMPOSITE STORE
// =============================================================================

// Store is the full persistence surface the transaction core needs.
type Store interface {
	AccountStore
	ProductStore
	OrderStore
	DepositStore
	PromoStore
	PaymentStore
	CredentialStore
}
