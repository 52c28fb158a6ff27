/*
orchestrator.go - End-to-end purchase and deposit flows

PURPOSE:
  The Orchestrator sequences Ledger, Inventory, PromoEngine,
  PaymentGateway and the order/deposit journals into the two use cases
  the storefront exposes: Purchase and Deposit. Steps run in strict
  program order; every persistence call is its own network round-trip.

CONSISTENCY:
  There is no transaction spanning the steps, so a failure mid-flow
  would otherwise strand money or stock. Each flow therefore carries a
  compensation list: every irreversible step pushes its reverse, and a
  downstream failure unwinds the list in reverse order. A compensation
  that itself fails is logged loudly - that is the residual gap of a
  non-transactional store, not something this layer can hide.

PAYMENT SETTLEMENT:
  QR-backed flows commit in two phases. The synchronous phase reserves
  stock / records the pending journal row and creates the payment; the
  simulated webhook later calls ConfirmPayment, which performs the
  guarded payment transition and finalizes exactly once: the winner of
  the pending -> completed transition credits the deposit or completes
  the order, so racing confirmations cannot double-settle.
*/
package commerce

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// RESULTS
// =============================================================================

// OrderSummary is the outcome of a purchase attempt. Payment is nil on
// the balance path, where the order completes synchronously.
type OrderSummary struct {
	Order     Order
	Payment   *QRPayment
	Subtotal  Money
	Discount  Money
	PromoCode string
}

// DepositSummary is the outcome of a deposit attempt. The deposit stays
// pending until the payment confirms.
type DepositSummary struct {
	Deposit Deposit
	Payment *QRPayment
}

// =============================================================================
// ORCHESTRATOR
// =============================================================================

// Config carries the orchestrator's tunables.
type Config struct {
	// PaymentWindow is how long a QR payment stays scannable.
	PaymentWindow time.Duration

	// ConfirmDelay is the simulated webhook latency.
	ConfirmDelay time.Duration

	Logger zerolog.Logger
}

// Orchestrator runs the storefront's transaction flows against a Store.
type Orchestrator struct {
	store     Store
	ledger    *Ledger
	inventory *Inventory
	promos    *PromoEngine
	gateway   *PaymentGateway
	scheduler *ConfirmationScheduler
	log       zerolog.Logger
	now       func() time.Time
}

func NewOrchestrator(store Store, cfg Config) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		ledger:    NewLedger(store),
		inventory: NewInventory(store),
		promos:    NewPromoEngine(store),
		gateway:   NewPaymentGateway(store, cfg.PaymentWindow, cfg.Logger),
		log:       cfg.Logger,
		now:       time.Now,
	}
	o.scheduler = NewConfirmationScheduler(cfg.ConfirmDelay, o.ConfirmPayment, cfg.Logger)
	return o
}

// Gateway exposes the payment gateway for status queries.
func (o *Orchestrator) Gateway() *PaymentGateway { return o.gateway }

// Scheduler exposes the confirmation scheduler, mainly for shutdown.
func (o *Orchestrator) Scheduler() *ConfirmationScheduler { return o.scheduler }

// =============================================================================
// PURCHASE FLOW
// =============================================================================

// Purchase runs one purchase attempt.
//
// Steps, in order: authenticate, check stock, apply promo, debit balance
// (balance path only), reserve stock, write the order, create the QR
// payment (QRIS path only), redeem the promo. A failing step aborts the
// rest and unwinds the compensation list.
func (o *Orchestrator) Purchase(ctx context.Context, userID UserID, productID ProductID, useBalance bool, promoCode string) (*OrderSummary, error) {
	user, err := o.authenticate(ctx, userID)
	if err != nil {
		return nil, err
	}

	product, err := o.store.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "load product", Err: err}
	}
	if product.Stock <= 0 {
		return nil, &OutOfStockError{ProductID: productID, Requested: 1}
	}

	subtotal := product.Price
	finalPrice := subtotal
	var discount Money
	if promoCode != "" {
		result, err := o.promos.Apply(ctx, promoCode, subtotal)
		if err != nil {
			return nil, err
		}
		promoCode = result.Code
		discount = result.Discount
		finalPrice = result.FinalPrice
	}

	var compensations []func(context.Context) error

	if useBalance {
		if user.Balance < finalPrice {
			return nil, &InsufficientFundsError{UserID: userID, Available: user.Balance, Requested: finalPrice}
		}
		if err := o.ledger.Debit(ctx, userID, finalPrice); err != nil {
			return nil, err
		}
		compensations = append(compensations, func(ctx context.Context) error {
			return o.ledger.Credit(ctx, userID, finalPrice)
		})
	}

	if err := o.inventory.Reserve(ctx, productID, 1); err != nil {
		o.compensate(ctx, compensations)
		return nil, err
	}
	compensations = append(compensations, func(ctx context.Context) error {
		return o.inventory.Release(ctx, productID, 1)
	})

	status := OrderCompleted
	if !useBalance {
		status = OrderPending
	}
	order := &Order{
		ID:        OrderID(uuid.NewString()),
		UserID:    userID,
		ProductID: productID,
		Amount:    finalPrice,
		Status:    status,
		CreatedAt: o.now(),
	}
	if err := o.store.CreateOrder(ctx, order); err != nil {
		o.compensate(ctx, compensations)
		return nil, &PersistenceError{Op: "create order", Err: err}
	}

	var payment *QRPayment
	if !useBalance {
		payment, err = o.gateway.Create(ctx, userID, finalPrice, PaymentForPurchase, string(order.ID))
		if err != nil {
			if _, terr := o.store.TransitionOrder(ctx, order.ID, OrderPending, OrderFailed); terr != nil {
				o.log.Error().Err(terr).Str("order_id", string(order.ID)).Msg("failed to mark order failed")
			}
			o.compensate(ctx, compensations)
			return nil, err
		}
		o.scheduler.Schedule(payment.ID)
	}

	if promoCode != "" {
		// The purchase has committed; the counter bump must not undo it.
		// A failure here undercounts usage and is only logged.
		if err := o.promos.Redeem(ctx, promoCode); err != nil {
			o.log.Warn().Err(err).Str("promo", promoCode).Str("order_id", string(order.ID)).
				Msg("promo redeemed on a committed order but counter increment failed")
		}
	}

	o.log.Info().
		Str("order_id", string(order.ID)).
		Str("user_id", string(userID)).
		Str("product_id", string(productID)).
		Int64("amount", int64(finalPrice)).
		Bool("use_balance", useBalance).
		Msg("purchase recorded")

	return &OrderSummary{
		Order:     *order,
		Payment:   payment,
		Subtotal:  subtotal,
		Discount:  discount,
		PromoCode: promoCode,
	}, nil
}

// =============================================================================
// DEPOSIT FLOW
// =============================================================================

// Deposit starts one balance top-up. The deposit row and its QR payment
// are created pending; the simulated confirmation later credits the
// balance and completes the deposit. The balance is never credited
// unless the payment confirmed, and the deposit is never marked
// completed unless the credit succeeded.
func (o *Orchestrator) Deposit(ctx context.Context, userID UserID, amount Money) (*DepositSummary, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, err := o.authenticate(ctx, userID); err != nil {
		return nil, err
	}

	deposit := &Deposit{
		ID:        DepositID(uuid.NewString()),
		UserID:    userID,
		Amount:    amount,
		Status:    DepositPending,
		CreatedAt: o.now(),
	}
	if err := o.store.CreateDeposit(ctx, deposit); err != nil {
		return nil, &PersistenceError{Op: "create deposit", Err: err}
	}

	payment, err := o.gateway.Create(ctx, userID, amount, PaymentForDeposit, string(deposit.ID))
	if err != nil {
		if _, terr := o.store.TransitionDeposit(ctx, deposit.ID, DepositPending, DepositFailed); terr != nil {
			o.log.Error().Err(terr).Str("deposit_id", string(deposit.ID)).Msg("failed to mark deposit failed")
		}
		return nil, err
	}
	deposit.PaymentID = payment.ID
	if err := o.store.LinkDepositPayment(ctx, deposit.ID, payment.ID); err != nil {
		// The link is what lets history show which payment backed the
		// deposit; settlement itself keys off the payment's reference,
		// so a failure here degrades the journal, not the money.
		o.log.Error().Err(err).Str("deposit_id", string(deposit.ID)).
			Str("payment_id", string(payment.ID)).Msg("failed to link deposit to payment")
	}
	o.scheduler.Schedule(payment.ID)

	o.log.Info().
		Str("deposit_id", string(deposit.ID)).
		Str("user_id", string(userID)).
		Int64("amount", int64(amount)).
		Msg("deposit started")

	return &DepositSummary{Deposit: *deposit, Payment: payment}, nil
}

// =============================================================================
// SETTLEMENT
// =============================================================================

// ConfirmPayment settles a QR payment and finalizes the order or deposit
// it references. Exactly one caller wins the guarded pending ->
// completed transition; only the winner finalizes, so concurrent
// confirmations (double webhook, manual confirm racing the simulation)
// cannot credit a deposit twice.
func (o *Orchestrator) ConfirmPayment(ctx context.Context, id PaymentID) error {
	performed, err := o.gateway.Confirm(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPaymentExpired) {
			// Confirming past the window is the other lazy read of an
			// overdue payment: expire it now so the linked order or
			// deposit does not sit pending until the next sweep.
			if eerr := o.ExpirePayment(ctx, id); eerr != nil {
				o.log.Error().Err(eerr).Str("payment_id", string(id)).
					Msg("late confirm could not expire payment")
			}
		}
		return err
	}
	if !performed {
		return nil
	}

	payment, err := o.store.GetPayment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return &PersistenceError{Op: "load payment", Err: err}
	}

	switch payment.Type {
	case PaymentForDeposit:
		return o.settleDeposit(ctx, payment)
	case PaymentForPurchase:
		return o.settleOrder(ctx, payment)
	}
	return nil
}

func (o *Orchestrator) settleDeposit(ctx context.Context, payment *QRPayment) error {
	depositID := DepositID(payment.ReferenceID)

	// Credit first. The deposit must not read completed unless the
	// money actually landed.
	if err := o.ledger.Credit(ctx, payment.UserID, payment.Amount); err != nil {
		o.log.Error().Err(err).Str("deposit_id", string(depositID)).
			Msg("payment confirmed but balance credit failed; deposit left pending")
		return err
	}

	moved, err := o.store.TransitionDeposit(ctx, depositID, DepositPending, DepositCompleted)
	if err != nil {
		o.log.Error().Err(err).Str("deposit_id", string(depositID)).
			Msg("balance credited but deposit completion failed")
		return &PersistenceError{Op: "complete deposit", Err: err}
	}
	if !moved {
		o.log.Warn().Str("deposit_id", string(depositID)).Msg("deposit already left pending state")
		return nil
	}

	o.log.Info().
		Str("deposit_id", string(depositID)).
		Str("user_id", string(payment.UserID)).
		Int64("amount", int64(payment.Amount)).
		Msg("deposit completed")
	return nil
}

func (o *Orchestrator) settleOrder(ctx context.Context, payment *QRPayment) error {
	orderID := OrderID(payment.ReferenceID)

	moved, err := o.store.TransitionOrder(ctx, orderID, OrderPending, OrderCompleted)
	if err != nil {
		return &PersistenceError{Op: "complete order", Err: err}
	}
	if !moved {
		o.log.Warn().Str("order_id", string(orderID)).Msg("order already left pending state")
		return nil
	}

	o.log.Info().Str("order_id", string(orderID)).Msg("order completed")
	return nil
}

// ExpirePayment times a pending payment out and unwinds whatever the
// synchronous phase committed: a purchase order fails and its reserved
// unit returns to stock; a deposit expires. Called by the sweeper and by
// the lazy paths in CheckPaymentStatus and ConfirmPayment; safe to call
// repeatedly.
func (o *Orchestrator) ExpirePayment(ctx context.Context, id PaymentID) error {
	performed, err := o.gateway.Expire(ctx, id)
	if err != nil {
		return err
	}
	if !performed {
		return nil
	}

	payment, err := o.store.GetPayment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return &PersistenceError{Op: "load payment", Err: err}
	}

	switch payment.Type {
	case PaymentForDeposit:
		if _, err := o.store.TransitionDeposit(ctx, DepositID(payment.ReferenceID), DepositPending, DepositExpired); err != nil {
			return &PersistenceError{Op: "expire deposit", Err: err}
		}
	case PaymentForPurchase:
		orderID := OrderID(payment.ReferenceID)
		moved, err := o.store.TransitionOrder(ctx, orderID, OrderPending, OrderFailed)
		if err != nil {
			return &PersistenceError{Op: "fail order", Err: err}
		}
		if moved {
			order, err := o.store.GetOrder(ctx, orderID)
			if err != nil {
				return &PersistenceError{Op: "load order", Err: err}
			}
			if err := o.inventory.Release(ctx, order.ProductID, 1); err != nil {
				o.log.Error().Err(err).Str("order_id", string(orderID)).
					Msg("order failed but stock release failed")
				return err
			}
		}
	}

	o.log.Info().Str("payment_id", string(id)).Msg("payment expired")
	return nil
}

// =============================================================================
// PASS-THROUGH QUERIES
// =============================================================================

// ApplyPromo validates a code against a subtotal without committing
// anything. Usage counters are untouched.
func (o *Orchestrator) ApplyPromo(ctx context.Context, code string, subtotal Money) (*PromoResult, error) {
	return o.promos.Apply(ctx, code, subtotal)
}

// CheckPaymentStatus reports a payment's current status. Reading an
// overdue pending payment expires it first through ExpirePayment, so the
// lazy path carries the same unwind as the sweeper: the linked order
// fails and releases its stock, the linked deposit expires.
func (o *Orchestrator) CheckPaymentStatus(ctx context.Context, id PaymentID) (PaymentStatus, error) {
	payment, err := o.store.GetPayment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", err
		}
		return "", &PersistenceError{Op: "load payment", Err: err}
	}

	if payment.Status == PaymentPending && o.now().After(payment.ExpiresAt) {
		if err := o.ExpirePayment(ctx, id); err != nil {
			return "", err
		}
		// Re-read rather than assume expired: a confirm may have won the
		// race, in which case ExpirePayment was a no-op.
		payment, err = o.store.GetPayment(ctx, id)
		if err != nil {
			return "", &PersistenceError{Op: "load payment", Err: err}
		}
	}
	return payment.Status, nil
}

// =============================================================================
// INTERNAL
// =============================================================================

func (o *Orchestrator) authenticate(ctx context.Context, userID UserID) (*UserAccount, error) {
	if userID == "" {
		return nil, ErrNotAuthenticated
	}
	user, err := o.store.GetAccount(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, ErrNotAuthenticated
	case err != nil:
		return nil, &PersistenceError{Op: "load account", Err: err}
	}
	return user, nil
}

// compensate unwinds completed steps in reverse order. Failures are
// logged, not returned: the original error is what the caller needs,
// and a failed compensation is an operator problem.
func (o *Orchestrator) compensate(ctx context.Context, compensations []func(context.Context) error) {
	for i := len(compensations) - 1; i >= 0; i-- {
		if err := compensations[i](ctx); err != nil {
			o.log.Error().Err(err).Int("step", i).Msg("compensation failed; store left inconsistent")
		}
	}
}
