/*
promo.go - Promo code validation and discount computation

PURPOSE:
  PromoEngine validates a code against a candidate purchase and computes
  the discounted price. Validation is ordered and short-circuiting: the
  first failing check wins and is reported as its specific error.

VALIDATION ORDER:
  1. Code exists and is active       -> ErrPromoInvalid
  2. Expiry set and passed           -> ErrPromoExpired
  3. Usage cap set and reached       -> ErrPromoExhausted
  4. Subtotal below minimum purchase -> PromoMinimumError (carries the
     threshold so the caller can display it)

DISCOUNT:
  percentage: subtotal * value / 100, computed in decimal and truncated
              to whole currency units
  fixed:      value
  Either way the discount is clamped to the subtotal, so the final price
  never goes negative.

USAGE COUNTER:
  Apply never mutates the usage counter. Redeem is the separate explicit
  step the orchestrator invokes only after the purchase fully commits, so
  a validated-but-abandoned promo never inflates usage.
*/
package commerce

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PromoResult is the outcome of a successful validation.
type PromoResult struct {
	Code       string
	Discount   Money
	FinalPrice Money
}

// PromoEngine validates promo codes and computes discounts.
type PromoEngine struct {
	store PromoStore
	now   func() time.Time
}

func NewPromoEngine(store PromoStore) *PromoEngine {
	return &PromoEngine{store: store, now: time.Now}
}

// Apply validates code against subtotal and returns the discounted price.
// Read-only: no counter is touched.
func (e *PromoEngine) Apply(ctx context.Context, code string, subtotal Money) (*PromoResult, error) {
	if subtotal <= 0 {
		return nil, ErrInvalidAmount
	}

	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return nil, ErrPromoInvalid
	}

	promo, err := e.store.GetPromo(ctx, normalized)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, ErrPromoInvalid
	case err != nil:
		return nil, &PersistenceError{Op: "load promo", Err: err}
	}

	if !promo.Active {
		return nil, ErrPromoInvalid
	}
	if promo.ValidUntil != nil && promo.ValidUntil.Before(e.now()) {
		return nil, ErrPromoExpired
	}
	if promo.MaxUsage > 0 && promo.CurrentUsage >= promo.MaxUsage {
		return nil, ErrPromoExhausted
	}
	if subtotal < promo.MinPurchase {
		return nil, &PromoMinimumError{Code: promo.Code, Minimum: promo.MinPurchase, Subtotal: subtotal}
	}

	discount := computeDiscount(promo, subtotal)
	return &PromoResult{
		Code:       promo.Code,
		Discount:   discount,
		FinalPrice: subtotal - discount,
	}, nil
}

// Redeem increments the usage counter for a promo that backed a committed
// purchase. The increment is a conditional update at the store, so a cap
// can never be overshot by racing redemptions.
func (e *PromoEngine) Redeem(ctx context.Context, code string) error {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	err := e.store.IncrementPromoUsage(ctx, normalized)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPromoExhausted), errors.Is(err, ErrNotFound):
		return err
	default:
		return &PersistenceError{Op: "increment promo usage", Err: err}
	}
}

// computeDiscount returns the discount clamped to [0, subtotal].
// Percentage math runs through decimal to avoid float rounding, then
// truncates to whole currency units.
func computeDiscount(promo *PromoCode, subtotal Money) Money {
	var discount Money
	switch promo.DiscountType {
	case DiscountPercentage:
		d := decimal.NewFromInt(int64(subtotal)).
			Mul(decimal.NewFromInt(promo.DiscountValue)).
			Div(decimal.NewFromInt(100))
		discount = Money(d.IntPart())
	case DiscountFixed:
		discount = Money(promo.DiscountValue)
	}

	if discount < 0 {
		discount = 0
	}
	if discount > subtotal {
		discount = subtotal
	}
	return discount
}
