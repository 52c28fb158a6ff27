package commerce_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digistore/storefront-engine/commerce"
	"github.com/digistore/storefront-engine/commerce/store"
)

// newOrchestrator wires an orchestrator over a fresh memory store with a
// confirm delay long enough that nothing fires unless a test asks it to.
func newOrchestrator(t *testing.T, s *store.Memory) *commerce.Orchestrator {
	t.Helper()
	o := commerce.NewOrchestrator(s, commerce.Config{
		PaymentWindow: 15 * time.Minute,
		ConfirmDelay:  time.Hour,
		Logger:        zerolog.Nop(),
	})
	t.Cleanup(o.Scheduler().Stop)
	return o
}

func seedCatalogProduct(t *testing.T, s *store.Memory, id commerce.ProductID, price commerce.Money, stock int) {
	t.Helper()
	require.NoError(t, s.CreateProduct(context.Background(), &commerce.Product{
		ID:        id,
		Name:      "Product " + string(id),
		Price:     price,
		Stock:     stock,
		CreatedAt: time.Now(),
	}))
}

func TestPurchase_BalanceWithPromo(t *testing.T) {
	// GIVEN a user with 100,000 balance, a 50,000 product and SAVE10
	s := store.NewMemory()
	ctx := context.Background()
	seedUser(t, s, "alice", 100000)
	seedCatalogProduct(t, s, "netflix", 50000, 5)
	seedPromo(t, s, commerce.PromoCode{
		Code:          "SAVE10",
		DiscountType:  commerce.DiscountPercentage,
		DiscountValue: 10,
		MaxUsage:      100,
		Active:        true,
	})
	o := newOrchestrator(t, s)

	// WHEN purchasing from balance with the promo
	summary, err := o.Purchase(ctx, "alice", "netflix", true, "save10")

	// THEN the order completes at the discounted price
	require.NoError(t, err)
	assert.Equal(t, commerce.OrderCompleted, summary.Order.Status)
	assert.Equal(t, commerce.Money(45000), summary.Order.Amount)
	assert.Equal(t, commerce.Money(50000), summary.Subtotal)
	assert.Equal(t, commerce.Money(5000), summary.Discount)
	assert.Nil(t, summary.Payment)

	// AND balance, stock and promo usage all moved exactly once
	account, err := s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, commerce.Money(55000), account.Balance)

	product, err := s.GetProduct(ctx, "netflix")
	require.NoError(t, err)
	assert.Equal(t, 4, product.Stock)

	promo, err := s.GetPromo(ctx, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 1, promo.CurrentUsage)
}

func TestPurchase_InsufficientFunds(t *testing.T) {
	// GIVEN a user whose balance cannot cover the product
	s := store.NewMemory()
	ctx := context.Background()
	seedUser(t, s, "alice", 1000)
	seedCatalogProduct(t, s, "netflix", 50000, 5)
	o := newOrchestrator(t, s)

	// WHEN purchasing from balance
	_, err := o.Purchase(ctx, "alice", "netflix", true, "")

	// THEN the attempt fails and nothing moved
	assert.ErrorIs(t, err, commerce.ErrInsufficientFunds)

	account, err := s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, commerce.Money(1000), account.Balance)

	product, err := s.GetProduct(ctx, "netflix")
	require.NoError(t, err)
	assert.Equal(t, 5, product.Stock)

	orders, err := s.OrdersByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestPurchase_OutOfStock(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	seedUser(t, s, "alice", 100000)
	seedCatalogProduct(t, s, "netflix", 50000, 0)
	o := newOrchestrator(t, s)

	_, err := o.Purchase(ctx, "alice", "netflix", true, "")
	assert.ErrorIs(t, err, commerce.ErrOutOfStock)
}

func TestPurchase_NotAuthenticated(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	seedCatalogProduct(t, s, "netflix", 50000, 5)
	o := newOrchestrator(t, s)

	_, err := o.Purchase(ctx, "", "netflix", true, "")
	assert.ErrorIs(t, err, commerce.ErrNotAuthenticated)

	_, err = o.Purchase(ctx, "ghost", "netflix", true, "")
	assert.ErrorIs(t, err, commerce.ErrNotAuthenticated)
}

func TestPurchase_UnknownProduct(t *testing.T) {
	s := store.NewMemory()
	seedUser(t, s, "alice", 100000)
	o := newOrchestrator(t, s)

	_, err := o.Purchase(context.Background(), "alice", "nope", true, "")
	assert.ErrorIs(t, err, commerce.ErrNotFound)
}

func TestPurchase_InvalidPromoAbortsEarly(t *testing.T) {
	// GIVEN a bad promo code on an otherwise valid purchase
	s := store.NewMemory()
	ctx := context.Background()
	seedUser(t, s, "alice", 100000)
	seedCatalogProduct(t, s, "netflix", 50000, 5)
	o := newOrchestrator(t, s)

	// WHEN purchasing with it
	_, err := o.Purchase(ctx, "alice", "netflix", true, "BOGUS")

	// THEN the purchase never starts
	assert.ErrorIs(t, err, commerce.ErrPromoInvalid)

	account, err := s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, commerce.Money(100000), account.Balance)
}

func TestPurchase_QRFlowSettles(t *testing.T) {
	// GIVEN a QRIS purchase
	s := store.NewMemory()
	ctx := context.Background()
	seedUser(t, s, "alice", 0)
	seedCatalogProduct(t, s, "netflix", 50000, 5)
	o := newOrchestrator(t, s)

	summary, err := o.Purchase(ctx, "alice", "netflix", false, "")
	require.NoError(t, err)
	require.NotNil(t, summary.Payment)
	assert.Equal(t, commerce.OrderPending, summary.Order.Status)
	assert.Equal(t, commerce.PaymentForPurchase, summary.Payment.Type)

	// Stock is reserved while the payment is outstanding
	product, err := s.GetProduct(ctx, "netflix")
	require.NoError(t, err)
	assert.Equal(t, 4, product.Stock)

	// WHEN the payment confirms
	require.NoError(t, o.ConfirmPayment(ctx, summary.Payment.ID))

	// THEN the order completes and the balance was never touched
	order, err := s.GetOrder(ctx, summary.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, commerce.OrderCompleted, order.Status)

	account, err := s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, commerce.Money(0), account.Balance)
}

func TestPurchase_QRFlowExpires(t *testing.T) {
	// GIVEN a QRIS purchase nobody pays
	s := store.NewMemory()
	ctx := context.Background()
	seedUser(t, s, "alice", 0)
	seedCatalogProduct(t, s, "netflix", 50000, 5)
	o := newOrchestrator(t, s)

	summary, err := o.Purchase(ctx, "alice", "netflix", false, "")
	require.NoError(t, err)

	// WHEN the payment expires
	require.NoError(t, o.ExpirePayment(ctx, summary.Payment.ID))

	// THEN the order fails and the reserved unit returns to stock
	order, err := s.GetOrder(ctx, summary.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, commerce.OrderFailed, order.Status)

	product, err := s.GetProduct(ctx, "netflix")
	require.NoError(t, err)
	assert.Equal(t, 5, product.Stock)

	// AND expiring again is a no-op
	require.NoError(t, o.ExpirePayment(ctx, summary.Payment.ID))
	product, err = s.GetProduct(ctx, "netflix")
	require.NoError(t, err)
	assert.Equal(t, 5, product.Stock)
}

func TestCheckPaymentStatus_ExpiresOverduePurchase(t *testing.T) {
	// GIVEN a QRIS purchase whose payment window already closed
	s := store.NewMemory()
	ctx := context.Background()
	seedUser(t, s, "alice", 0)
	seedCatalogProduct(t, s, "netflix", 50000, 5)
	o := commerce.NewOrchestrator(s, commerce.Config{
		PaymentWindow: time.Nanosecond,
		ConfirmDelay:  time.Hour,
		Logger:        zerolog.Nop(),
	})
	t.Cleanup(o.Scheduler().Stop)

	summary, err := o.Purchase(ctx, "alice", "netflix", false, "")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	// WHEN polling the payment status
	status, err := o.CheckPaymentStatus(ctx, summary.Payment.ID)

	// THEN the read expires the payment and carries the full unwind:
	// the order fails and the reserved unit returns to stock
	require.NoError(t, err)
	assert.Equal(t, commerce.PaymentExpired, status)

	order, err := s.GetOrder(ctx, summary.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, commerce.OrderFailed, order.Status)

	product, err := s.GetProduct(ctx, "netflix")
	require.NoError(t, err)
	assert.Equal(t, 5, product.Stock)

	// AND a later explicit expiry finds nothing left to do
	require.NoError(t, o.ExpirePayment(ctx, summary.Payment.ID))
	product, err = s.GetProduct(ctx, "netflix")
	require.NoError(t, err)
	assert.Equal(t, 5, product.Stock)
}

func TestCheckPaymentStatus_ExpiresOverdueDeposit(t *testing.T) {
	// GIVEN a deposit whose payment window already closed
	s := store.NewMemory()
	ctx := context.Background()
	seedUser(t, s, "alice", 10000)
	o := commerce.NewOrchestrator(s, commerce.Config{
		PaymentWindow: time.Nanosecond,
		ConfirmDelay:  time.Hour,
		Logger:        zerolog.Nop(),
	})
	t.Cleanup(o.Scheduler().Stop)

	summary, err := o.Deposit(ctx, "alice", 25000)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	// WHEN polling the payment status
	status, err := o.CheckPaymentStatus(ctx, summary.Payment.ID)

	// THEN the deposit expires with it and no money moved
	require.NoError(t, err)
	assert.Equal(t, commerce.PaymentExpired, status)

	deposit, err := s.GetDeposit(ctx, summary.Deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, commerce.DepositExpired, deposit.Status)

	account, err := s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, commerce.Money(10000), account.Balance)
}

func TestConfirmPayment_PastWindowUnwindsPurchase(t *testing.T) {
	// GIVEN a QRIS purchase confirmed only after the window closed
	s := store.NewMemory()
	ctx := context.Background()
	seedUser(t, s, "alice", 0)
	seedCatalogProduct(t, s, "netflix", 50000, 5)
	o := commerce.NewOrchestrator(s, commerce.Config{
		PaymentWindow: time.Nanosecond,
		ConfirmDelay:  time.Hour,
		Logger:        zerolog.Nop(),
	})
	t.Cleanup(o.Scheduler().Stop)

	summary, err := o.Purchase(ctx, "alice", "netflix", false, "")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	// WHEN confirming late
	err = o.ConfirmPayment(ctx, summary.Payment.ID)

	// THEN the confirm is rejected and the late read still unwinds
	assert.ErrorIs(t, err, commerce.ErrPaymentExpired)

	payment, err := s.GetPayment(ctx, summary.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, commerce.PaymentExpired, payment.Status)

	order, err := s.GetOrder(ctx, summary.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, commerce.OrderFailed, order.Status)

	product, err := s.GetProduct(ctx, "netflix")
	require.NoError(t, err)
	assert.Equal(t, 5, product.Stock)
}

func TestDeposit_SettlesOnConfirm(t *testing.T) {
	// GIVEN a user with 10,000 starting a 25,000 deposit
	s := store.NewMemory()
	ctx := context.Background()
	seedUser(t, s, "alice", 10000)
	o := newOrchestrator(t, s)

	summary, err := o.Deposit(ctx, "alice", 25000)
	require.NoError(t, err)
	assert.Equal(t, commerce.DepositPending, summary.Deposit.Status)
	require.NotNil(t, summary.Payment)

	// The stored deposit row carries the backing payment, not just the
	// returned summary
	deposit, err := s.GetDeposit(ctx, summary.Deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, summary.Payment.ID, deposit.PaymentID)

	// Balance is untouched until the payment confirms
	account, err := s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, commerce.Money(10000), account.Balance)

	// WHEN the payment confirms
	require.NoError(t, o.ConfirmPayment(ctx, summary.Payment.ID))

	// THEN the balance lands on 35,000 and the deposit completes
	account, err = s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, commerce.Money(35000), account.Balance)

	deposit, err = s.GetDeposit(ctx, summary.Deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, commerce.DepositCompleted, deposit.Status)

	// AND confirming again credits nothing
	require.NoError(t, o.ConfirmPayment(ctx, summary.Payment.ID))
	account, err = s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, commerce.Money(35000), account.Balance)
}

func TestDeposit_ExpiresWithoutCredit(t *testing.T) {
	// GIVEN a deposit nobody pays
	s := store.NewMemory()
	ctx := context.Background()
	seedUser(t, s, "alice", 10000)
	o := newOrchestrator(t, s)

	summary, err := o.Deposit(ctx, "alice", 25000)
	require.NoError(t, err)

	// WHEN the payment expires
	require.NoError(t, o.ExpirePayment(ctx, summary.Payment.ID))

	// THEN the deposit expires and no money moved
	deposit, err := s.GetDeposit(ctx, summary.Deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, commerce.DepositExpired, deposit.Status)

	account, err := s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, commerce.Money(10000), account.Balance)

	// AND a late confirm is rejected
	err = o.ConfirmPayment(ctx, summary.Payment.ID)
	assert.ErrorIs(t, err, commerce.ErrPaymentExpired)
}

func TestDeposit_RejectsNonPositiveAmount(t *testing.T) {
	s := store.NewMemory()
	seedUser(t, s, "alice", 0)
	o := newOrchestrator(t, s)

	_, err := o.Deposit(context.Background(), "alice", 0)
	assert.ErrorIs(t, err, commerce.ErrInvalidAmount)

	_, err = o.Deposit(context.Background(), "alice", -500)
	assert.ErrorIs(t, err, commerce.ErrInvalidAmount)
}

func TestDeposit_SimulatedConfirmationCompletes(t *testing.T) {
	// GIVEN an orchestrator with a short simulated webhook delay
	s := store.NewMemory()
	ctx := context.Background()
	seedUser(t, s, "alice", 0)
	o := commerce.NewOrchestrator(s, commerce.Config{
		PaymentWindow: 15 * time.Minute,
		ConfirmDelay:  10 * time.Millisecond,
		Logger:        zerolog.Nop(),
	})
	t.Cleanup(o.Scheduler().Stop)

	// WHEN starting a deposit and waiting
	summary, err := o.Deposit(ctx, "alice", 25000)
	require.NoError(t, err)

	// THEN the simulation settles it without any further call
	assert.Eventually(t, func() bool {
		deposit, err := s.GetDeposit(ctx, summary.Deposit.ID)
		return err == nil && deposit.Status == commerce.DepositCompleted
	}, time.Second, 5*time.Millisecond)

	account, err := s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, commerce.Money(25000), account.Balance)
}
