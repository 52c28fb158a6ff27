package commerce_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digistore/storefront-engine/commerce"
	"github.com/digistore/storefront-engine/commerce/store"
)

func seedPromo(t *testing.T, s *store.Memory, promo commerce.PromoCode) {
	t.Helper()
	if promo.ID == "" {
		promo.ID = "promo-" + promo.Code
	}
	if promo.CreatedAt.IsZero() {
		promo.CreatedAt = time.Now()
	}
	require.NoError(t, s.CreatePromo(context.Background(), &promo))
}

func TestPromoApply_PercentageDiscount(t *testing.T) {
	// GIVEN an active SAVE10 promo worth 10 percent
	s := store.NewMemory()
	seedPromo(t, s, commerce.PromoCode{
		Code:          "SAVE10",
		DiscountType:  commerce.DiscountPercentage,
		DiscountValue: 10,
		Active:        true,
	})
	engine := commerce.NewPromoEngine(s)

	// WHEN applying it to a 50,000 purchase
	result, err := engine.Apply(context.Background(), "SAVE10", 50000)

	// THEN the discount is 5,000 and the final price 45,000
	require.NoError(t, err)
	assert.Equal(t, commerce.Money(5000), result.Discount)
	assert.Equal(t, commerce.Money(45000), result.FinalPrice)

	// AND validation alone never touches the usage counter
	promo, err := s.GetPromo(context.Background(), "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 0, promo.CurrentUsage)
}

func TestPromoApply_CaseInsensitive(t *testing.T) {
	s := store.NewMemory()
	seedPromo(t, s, commerce.PromoCode{
		Code:          "SAVE10",
		DiscountType:  commerce.DiscountPercentage,
		DiscountValue: 10,
		Active:        true,
	})
	engine := commerce.NewPromoEngine(s)

	result, err := engine.Apply(context.Background(), "  save10 ", 50000)
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", result.Code)
}

func TestPromoApply_UnknownOrInactive(t *testing.T) {
	s := store.NewMemory()
	seedPromo(t, s, commerce.PromoCode{
		Code:          "DISABLED",
		DiscountType:  commerce.DiscountFixed,
		DiscountValue: 1000,
		Active:        false,
	})
	engine := commerce.NewPromoEngine(s)

	_, err := engine.Apply(context.Background(), "NOSUCH", 50000)
	assert.ErrorIs(t, err, commerce.ErrPromoInvalid)

	_, err = engine.Apply(context.Background(), "DISABLED", 50000)
	assert.ErrorIs(t, err, commerce.ErrPromoInvalid)

	_, err = engine.Apply(context.Background(), "", 50000)
	assert.ErrorIs(t, err, commerce.ErrPromoInvalid)
}

func TestPromoApply_Expired(t *testing.T) {
	// GIVEN a promo whose validity ended yesterday
	s := store.NewMemory()
	yesterday := time.Now().Add(-24 * time.Hour)
	seedPromo(t, s, commerce.PromoCode{
		Code:          "LASTWEEK",
		DiscountType:  commerce.DiscountPercentage,
		DiscountValue: 50,
		ValidUntil:    &yesterday,
		Active:        true,
	})
	engine := commerce.NewPromoEngine(s)

	_, err := engine.Apply(context.Background(), "LASTWEEK", 50000)
	assert.ErrorIs(t, err, commerce.ErrPromoExpired)
}

func TestPromoApply_Exhausted(t *testing.T) {
	// GIVEN a promo whose usage cap is already reached
	s := store.NewMemory()
	seedPromo(t, s, commerce.PromoCode{
		Code:          "LIMITED",
		DiscountType:  commerce.DiscountFixed,
		DiscountValue: 5000,
		MaxUsage:      3,
		CurrentUsage:  3,
		Active:        true,
	})
	engine := commerce.NewPromoEngine(s)

	_, err := engine.Apply(context.Background(), "LIMITED", 50000)
	assert.ErrorIs(t, err, commerce.ErrPromoExhausted)
}

func TestPromoApply_MinimumPurchase(t *testing.T) {
	// GIVEN a promo requiring a 100,000 minimum
	s := store.NewMemory()
	seedPromo(t, s, commerce.PromoCode{
		Code:          "BIGSPENDER",
		DiscountType:  commerce.DiscountPercentage,
		DiscountValue: 20,
		MinPurchase:   100000,
		Active:        true,
	})
	engine := commerce.NewPromoEngine(s)

	// WHEN the subtotal falls short
	_, err := engine.Apply(context.Background(), "BIGSPENDER", 50000)

	// THEN the error names the threshold
	assert.ErrorIs(t, err, commerce.ErrPromoMinimumNotMet)
	var minErr *commerce.PromoMinimumError
	require.ErrorAs(t, err, &minErr)
	assert.Equal(t, commerce.Money(100000), minErr.Minimum)

	// AND a qualifying subtotal passes
	result, err := engine.Apply(context.Background(), "BIGSPENDER", 100000)
	require.NoError(t, err)
	assert.Equal(t, commerce.Money(20000), result.Discount)
}

func TestPromoApply_FixedDiscountClamped(t *testing.T) {
	// GIVEN a fixed discount larger than the item price
	s := store.NewMemory()
	seedPromo(t, s, commerce.PromoCode{
		Code:          "MEGA",
		DiscountType:  commerce.DiscountFixed,
		DiscountValue: 75000,
		Active:        true,
	})
	engine := commerce.NewPromoEngine(s)

	// WHEN applying it to a cheaper item
	result, err := engine.Apply(context.Background(), "MEGA", 50000)

	// THEN the final price clamps at zero, never negative
	require.NoError(t, err)
	assert.Equal(t, commerce.Money(50000), result.Discount)
	assert.Equal(t, commerce.Money(0), result.FinalPrice)
}

func TestPromoApply_PercentageTruncates(t *testing.T) {
	// GIVEN 10 percent of an odd subtotal
	s := store.NewMemory()
	seedPromo(t, s, commerce.PromoCode{
		Code:          "SAVE10",
		DiscountType:  commerce.DiscountPercentage,
		DiscountValue: 10,
		Active:        true,
	})
	engine := commerce.NewPromoEngine(s)

	// WHEN the exact discount would be 1,234.5
	result, err := engine.Apply(context.Background(), "SAVE10", 12345)

	// THEN it truncates to whole currency units
	require.NoError(t, err)
	assert.Equal(t, commerce.Money(1234), result.Discount)
	assert.Equal(t, commerce.Money(11111), result.FinalPrice)
}

func TestPromoRedeem_IncrementsOnce(t *testing.T) {
	s := store.NewMemory()
	seedPromo(t, s, commerce.PromoCode{
		Code:          "SAVE10",
		DiscountType:  commerce.DiscountPercentage,
		DiscountValue: 10,
		MaxUsage:      1,
		Active:        true,
	})
	engine := commerce.NewPromoEngine(s)

	require.NoError(t, engine.Redeem(context.Background(), "save10"))

	err := engine.Redeem(context.Background(), "SAVE10")
	assert.ErrorIs(t, err, commerce.ErrPromoExhausted)

	promo, err := s.GetPromo(context.Background(), "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 1, promo.CurrentUsage)
}
