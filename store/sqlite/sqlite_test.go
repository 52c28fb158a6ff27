package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digistore/storefront-engine/commerce"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedAccount(t *testing.T, store *Store, id commerce.UserID, balance commerce.Money) {
	t.Helper()
	err := store.CreateAccount(context.Background(), &commerce.UserAccount{
		ID:        id,
		Email:     string(id) + "@example.com",
		Name:      string(id),
		Balance:   balance,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	})
	require.NoError(t, err)
}

func seedProduct(t *testing.T, store *Store, id commerce.ProductID, price commerce.Money, stock int) {
	t.Helper()
	err := store.CreateProduct(context.Background(), &commerce.Product{
		ID:        id,
		Name:      "Product " + string(id),
		Price:     price,
		Stock:     stock,
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
}

func TestDebitBalance_Conditional(t *testing.T) {
	// GIVEN an account with 10,000 balance
	store := newTestStore(t)
	ctx := context.Background()
	seedAccount(t, store, "user-1", 10000)

	// WHEN debiting more than the balance
	err := store.DebitBalance(ctx, "user-1", 15000)

	// THEN the debit is rejected and the balance is untouched
	assert.ErrorIs(t, err, commerce.ErrInsufficientFunds)

	account, err := store.GetAccount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, commerce.Money(10000), account.Balance)

	// WHEN debiting exactly the balance
	err = store.DebitBalance(ctx, "user-1", 10000)

	// THEN the balance reaches zero
	require.NoError(t, err)
	account, err = store.GetAccount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, commerce.Money(0), account.Balance)
}

func TestDebitBalance_UnknownAccount(t *testing.T) {
	store := newTestStore(t)

	err := store.DebitBalance(context.Background(), "nobody", 100)
	assert.ErrorIs(t, err, commerce.ErrNotFound)
}

func TestReserveStock_LastUnitRace(t *testing.T) {
	// GIVEN a product with exactly one unit left
	store := newTestStore(t)
	ctx := context.Background()
	seedProduct(t, store, "prod-1", 50000, 1)

	// WHEN two buyers race for it
	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = store.ReserveStock(ctx, "prod-1", 1)
		}(i)
	}
	wg.Wait()

	// THEN exactly one wins and stock never goes negative
	var wins, losses int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, commerce.ErrOutOfStock):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)

	product, err := store.GetProduct(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 0, product.Stock)
}

func TestReserveStock_RestoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedProduct(t, store, "prod-1", 50000, 3)

	require.NoError(t, store.ReserveStock(ctx, "prod-1", 2))
	require.NoError(t, store.RestoreStock(ctx, "prod-1", 2))

	product, err := store.GetProduct(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 3, product.Stock)
}

func TestTransitionOrder_Guarded(t *testing.T) {
	// GIVEN a pending order
	store := newTestStore(t)
	ctx := context.Background()
	order := &commerce.Order{
		ID:        "order-1",
		UserID:    "user-1",
		ProductID: "prod-1",
		Amount:    45000,
		Status:    commerce.OrderPending,
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.CreateOrder(ctx, order))

	// WHEN completing it twice
	moved, err := store.TransitionOrder(ctx, "order-1", commerce.OrderPending, commerce.OrderCompleted)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = store.TransitionOrder(ctx, "order-1", commerce.OrderPending, commerce.OrderCompleted)
	require.NoError(t, err)

	// THEN the second transition reports no movement
	assert.False(t, moved)

	// AND transitioning a missing order reports not found
	_, err = store.TransitionOrder(ctx, "order-x", commerce.OrderPending, commerce.OrderCompleted)
	assert.ErrorIs(t, err, commerce.ErrNotFound)
}

func TestLinkDepositPayment(t *testing.T) {
	// GIVEN a deposit created without a payment reference
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateDeposit(ctx, &commerce.Deposit{
		ID:        "dep-1",
		UserID:    "alice",
		Amount:    25000,
		Status:    commerce.DepositPending,
		CreatedAt: time.Now(),
	}))

	// WHEN linking its backing payment
	require.NoError(t, store.LinkDepositPayment(ctx, "dep-1", "pay-1"))

	// THEN the link reads back
	deposit, err := store.GetDeposit(ctx, "dep-1")
	require.NoError(t, err)
	assert.Equal(t, commerce.PaymentID("pay-1"), deposit.PaymentID)

	// AND linking a missing deposit reports not found
	err = store.LinkDepositPayment(ctx, "dep-x", "pay-1")
	assert.ErrorIs(t, err, commerce.ErrNotFound)
}

func TestIncrementPromoUsage_Cap(t *testing.T) {
	// GIVEN a promo capped at 2 uses
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreatePromo(ctx, &commerce.PromoCode{
		ID:            "promo-1",
		Code:          "SAVE10",
		DiscountType:  commerce.DiscountPercentage,
		DiscountValue: 10,
		MaxUsage:      2,
		Active:        true,
		CreatedAt:     time.Now(),
	}))

	// WHEN incrementing past the cap
	require.NoError(t, store.IncrementPromoUsage(ctx, "SAVE10"))
	require.NoError(t, store.IncrementPromoUsage(ctx, "save10")) // case-insensitive
	err := store.IncrementPromoUsage(ctx, "SAVE10")

	// THEN the third attempt is rejected and usage stays at the cap
	assert.ErrorIs(t, err, commerce.ErrPromoExhausted)

	promo, err := store.GetPromo(ctx, "save10")
	require.NoError(t, err)
	assert.Equal(t, 2, promo.CurrentUsage)
}

func TestPendingPaymentsBefore(t *testing.T) {
	// GIVEN one expired pending payment, one live pending, one completed
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	mkPayment := func(id string, status commerce.PaymentStatus, expiresAt time.Time) {
		require.NoError(t, store.CreatePayment(ctx, &commerce.QRPayment{
			ID:        commerce.PaymentID(id),
			UserID:    "user-1",
			Code:      "QRIS" + id,
			URL:       "https://qris.id/pay/QRIS" + id,
			Amount:    10000,
			Type:      commerce.PaymentForDeposit,
			Status:    status,
			ExpiresAt: expiresAt,
			CreatedAt: now,
		}))
	}
	mkPayment("pay-stale", commerce.PaymentPending, now.Add(-time.Minute))
	mkPayment("pay-live", commerce.PaymentPending, now.Add(10*time.Minute))
	mkPayment("pay-done", commerce.PaymentCompleted, now.Add(-time.Minute))

	// WHEN sweeping for pending payments past their window
	stale, err := store.PendingPaymentsBefore(ctx, now)

	// THEN only the stale pending one is returned
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, commerce.PaymentID("pay-stale"), stale[0].ID)
}

func TestCompletedTotals(t *testing.T) {
	// GIVEN completed and pending activity for two users
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	orders := []commerce.Order{
		{ID: "o1", UserID: "alice", ProductID: "p1", Amount: 45000, Status: commerce.OrderCompleted, CreatedAt: now},
		{ID: "o2", UserID: "alice", ProductID: "p1", Amount: 5000, Status: commerce.OrderCompleted, CreatedAt: now},
		{ID: "o3", UserID: "bob", ProductID: "p1", Amount: 99000, Status: commerce.OrderPending, CreatedAt: now},
	}
	for i := range orders {
		require.NoError(t, store.CreateOrder(ctx, &orders[i]))
	}
	deposits := []commerce.Deposit{
		{ID: "d1", UserID: "bob", Amount: 25000, Status: commerce.DepositCompleted, CreatedAt: now},
		{ID: "d2", UserID: "bob", Amount: 10000, Status: commerce.DepositExpired, CreatedAt: now},
	}
	for i := range deposits {
		require.NoError(t, store.CreateDeposit(ctx, &deposits[i]))
	}

	// WHEN summing completed totals
	orderTotals, err := store.CompletedOrderTotals(ctx)
	require.NoError(t, err)
	depositTotals, err := store.CompletedDepositTotals(ctx)
	require.NoError(t, err)

	// THEN only completed rows count
	assert.Equal(t, commerce.Money(50000), orderTotals["alice"])
	assert.NotContains(t, orderTotals, commerce.UserID("bob"))
	assert.Equal(t, commerce.Money(25000), depositTotals["bob"])
}

func TestOrdersByUser_NewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"o-old", "o-mid", "o-new"} {
		require.NoError(t, store.CreateOrder(ctx, &commerce.Order{
			ID:        commerce.OrderID(id),
			UserID:    "alice",
			ProductID: "p1",
			Amount:    1000,
			Status:    commerce.OrderCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	orders, err := store.OrdersByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, commerce.OrderID("o-new"), orders[0].ID)
	assert.Equal(t, commerce.OrderID("o-old"), orders[2].ID)
}

func TestCredentialRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetCredentialByOrder(ctx, "order-1")
	assert.ErrorIs(t, err, commerce.ErrNotFound)

	require.NoError(t, store.CreateCredential(ctx, &commerce.ProductCredential{
		ID:        "cred-1",
		OrderID:   "order-1",
		Login:     "premium@example.com",
		Secret:    "s3cret",
		CreatedAt: time.Now(),
	}))

	credential, err := store.GetCredentialByOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, "premium@example.com", credential.Login)
}
