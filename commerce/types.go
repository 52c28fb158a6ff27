/*
Package commerce is the transaction core of the storefront.

PURPOSE:
  This package contains the domain types and flows that mutate money and
  stock: crediting deposits, debiting purchases, validating promo codes,
  and driving the QR-payment lifecycle. Every mutation goes through a
  Store implementation; the package itself holds no global state.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: whole currency units (rupiah), never fractional
  - UserAccount / Product: the two rows whose counters get decremented
  - Order / Deposit: the append-only journal of transaction attempts
  - PromoCode: discount token with expiry, usage cap and minimum purchase
  - QRPayment: simulated scan-to-pay instrument with a pending ->
    completed/expired lifecycle

DESIGN PRINCIPLES:
  1. Explicit dependencies: a Store handle and a user id are passed into
     every operation. No ambient session, no singleton connection.
  2. Conditional writes: balance and stock decrements happen as single
     conditional updates at the store, so they cannot go negative even
     when two attempts race.
  3. Typed failures: every operation returns one of the sentinel errors
     in errors.go rather than a bare string.

SEE ALSO:
  - store.go: persistence interfaces
  - orchestrator.go: the end-to-end purchase and deposit flows
*/
package commerce

import "time"

// =============================================================================
// MONEY - Whole currency units
// =============================================================================

// Money is an amount in whole currency units (rupiah). The storefront never
// deals in fractions; discounts are truncated to whole units.
type Money int64

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type ProductID string
type OrderID string
type DepositID string
type PaymentID string

// =============================================================================
// ACCOUNTS AND PRODUCTS
// =============================================================================

// UserAccount is a storefront user with a prepaid balance.
// Balance is mutated only by Ledger operations inside an orchestrated flow.
// Invariant: Balance >= 0 at all observable times.
type UserAccount struct {
	ID        UserID
	Email     string
	Name      string
	Balance   Money
	IsAdmin   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Product is a catalog item with limited stock.
// Stock is mutated only by Inventory operations.
// Invariant: Stock >= 0.
type Product struct {
	ID           ProductID
	Name         string
	Description  string
	Price        Money
	Category     string
	ImageURL     string
	Stock        int
	IsBestSeller bool
	CreatedAt    time.Time
}

// =============================================================================
// JOURNAL RECORDS - Orders and deposits
// =============================================================================

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderFailed    OrderStatus = "failed"
)

// Order records one purchase attempt. Amount is the price actually charged,
// post-discount. Immutable once written except for the status transitions
// pending -> completed and pending -> failed.
type Order struct {
	ID        OrderID
	UserID    UserID
	ProductID ProductID
	Amount    Money
	Status    OrderStatus
	CreatedAt time.Time
}

type DepositStatus string

const (
	DepositPending   DepositStatus = "pending"
	DepositCompleted DepositStatus = "completed"
	DepositFailed    DepositStatus = "failed"
	DepositExpired   DepositStatus = "expired"
)

// Deposit records one balance top-up attempt, optionally backed by a
// QRPayment. Same immutability rule as Order.
type Deposit struct {
	ID        DepositID
	UserID    UserID
	Amount    Money
	Status    DepositStatus
	PaymentID PaymentID // empty when no QR payment backs this deposit
	CreatedAt time.Time
}

// =============================================================================
// PROMO CODES
// =============================================================================

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// PromoCode is a discount token. Code is unique and case-insensitive;
// implementations store it upper-cased. MaxUsage of 0 means uncapped.
// CurrentUsage is incremented exactly once per purchase that commits with
// the promo applied, never by validation alone.
type PromoCode struct {
	ID            string
	Code          string
	DiscountType  DiscountType
	DiscountValue int64
	MinPurchase   Money
	ValidUntil    *time.Time // nil = no expiry
	MaxUsage      int
	CurrentUsage  int
	Active        bool
	CreatedAt     time.Time
}

// =============================================================================
// QR PAYMENTS
// =============================================================================

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentExpired   PaymentStatus = "expired"
)

// Terminal reports whether no further transition is allowed out of s.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentCompleted || s == PaymentFailed || s == PaymentExpired
}

type PaymentType string

const (
	PaymentForDeposit  PaymentType = "deposit"
	PaymentForPurchase PaymentType = "purchase"
)

// QRPayment is a simulated scan-to-pay instrument. ReferenceID links back to
// the Order or Deposit it settles. Allowed transitions:
//
//	pending --confirm--> completed
//	pending --timeout--> expired
//
// No transition leaves completed or expired.
type QRPayment struct {
	ID          PaymentID
	UserID      UserID
	Code        string
	URL         string
	Amount      Money
	Type        PaymentType
	ReferenceID string // OrderID or DepositID, per Type
	Status      PaymentStatus
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// =============================================================================
// FULFILLMENT
// =============================================================================

// ProductCredential is the delivered secret for a completed order. It is
// written by fulfillment outside this core and read-only here.
type ProductCredential struct {
	ID        string
	OrderID   OrderID
	Login     string
	Secret    string
	CreatedAt time.Time
}
