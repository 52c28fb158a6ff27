/*
payment.go - QR payment lifecycle and the simulated confirmation

PURPOSE:
  PaymentGateway creates QR payment rows and drives their state machine:

      pending --confirm--> completed
      pending --timeout--> expired

  No transition leaves completed, failed or expired. Confirm is a guarded
  transition at the store, so re-invocation (double webhook, user
  double-click) is a no-op rather than a double-settlement.

SIMULATION:
  There is no real payment rail in scope. ConfirmationScheduler models
  the asynchronous webhook: a timer per payment id fires the confirm
  callback after a fixed delay without blocking the caller. Timers are
  keyed by payment id and cancellable, but nothing cancels them when a
  user merely abandons the flow - an abandoned payment still completes,
  matching the storefront's observed behavior.

EXPIRY:
  pending -> expired is time-based, but the gateway never performs it on
  its own: expiring a payment must also unwind the order or deposit it
  references, and only the orchestrator sees both sides. The gateway
  reports overdue payments (ErrPaymentExpired from Confirm) and exposes
  Expire for the orchestrator; Orchestrator.CheckPaymentStatus applies
  the lazy path on read and the api package's sweeper covers payments
  nobody polls. Both go through the same guarded transition.
*/
package commerce

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultPaymentWindow is how long a QR payment stays scannable.
const DefaultPaymentWindow = 15 * time.Minute

// DefaultConfirmDelay is the simulated webhook latency.
const DefaultConfirmDelay = 3 * time.Second

// =============================================================================
// PAYMENT GATEWAY
// =============================================================================

// PaymentGateway creates and settles QR payments.
type PaymentGateway struct {
	store  PaymentStore
	window time.Duration
	log    zerolog.Logger
	now    func() time.Time
}

func NewPaymentGateway(store PaymentStore, window time.Duration, log zerolog.Logger) *PaymentGateway {
	if window <= 0 {
		window = DefaultPaymentWindow
	}
	return &PaymentGateway{store: store, window: window, log: log, now: time.Now}
}

// Create generates a new pending QR payment for the given amount.
// referenceID links the payment to the Order or Deposit it settles.
func (g *PaymentGateway) Create(ctx context.Context, userID UserID, amount Money, typ PaymentType, referenceID string) (*QRPayment, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	now := g.now()
	code := newPaymentCode(now)
	payment := &QRPayment{
		ID:          PaymentID(uuid.NewString()),
		UserID:      userID,
		Code:        code,
		URL:         "https://qris.id/pay/" + code,
		Amount:      amount,
		Type:        typ,
		ReferenceID: referenceID,
		Status:      PaymentPending,
		ExpiresAt:   now.Add(g.window),
		CreatedAt:   now,
	}

	if err := g.store.CreatePayment(ctx, payment); err != nil {
		return nil, &PersistenceError{Op: "create payment", Err: err}
	}

	g.log.Info().
		Str("payment_id", string(payment.ID)).
		Str("type", string(typ)).
		Int64("amount", int64(amount)).
		Msg("qr payment created")
	return payment, nil
}

// CheckStatus returns the payment's stored status. It never transitions
// the row: an overdue pending payment reads as pending here until the
// orchestrator expires it, because expiry must also unwind the order or
// deposit the payment references and the gateway cannot do that alone.
func (g *PaymentGateway) CheckStatus(ctx context.Context, id PaymentID) (PaymentStatus, error) {
	payment, err := g.store.GetPayment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", err
		}
		return "", &PersistenceError{Op: "load payment", Err: err}
	}
	return payment.Status, nil
}

// Confirm settles a pending payment. Confirming an already-completed
// payment is a no-op; confirming past the window reports
// ErrPaymentExpired. Returns whether this call performed the transition.
func (g *PaymentGateway) Confirm(ctx context.Context, id PaymentID) (bool, error) {
	payment, err := g.store.GetPayment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, err
		}
		return false, &PersistenceError{Op: "load payment", Err: err}
	}

	switch payment.Status {
	case PaymentCompleted:
		return false, nil
	case PaymentExpired, PaymentFailed:
		return false, ErrPaymentExpired
	}

	if g.now().After(payment.ExpiresAt) {
		// The row stays pending here; the orchestrator expires it and
		// unwinds the referenced order or deposit in one place.
		return false, ErrPaymentExpired
	}

	moved, err := g.store.TransitionPayment(ctx, id, PaymentPending, PaymentCompleted)
	if err != nil {
		return false, &PersistenceError{Op: "confirm payment", Err: err}
	}
	if !moved {
		// Someone else moved it first. Completed means the confirm
		// already happened; anything else means the window closed.
		current, err := g.store.GetPayment(ctx, id)
		if err != nil {
			return false, &PersistenceError{Op: "load payment", Err: err}
		}
		if current.Status == PaymentCompleted {
			return false, nil
		}
		return false, ErrPaymentExpired
	}

	g.log.Info().Str("payment_id", string(id)).Msg("qr payment confirmed")
	return true, nil
}

// Expire moves a pending payment to expired. Only the orchestrator's
// ExpirePayment calls this, so the unwind of the referenced order or
// deposit always rides on the transition.
// Returns whether this call performed the transition.
func (g *PaymentGateway) Expire(ctx context.Context, id PaymentID) (bool, error) {
	moved, err := g.store.TransitionPayment(ctx, id, PaymentPending, PaymentExpired)
	if err != nil {
		return false, &PersistenceError{Op: "expire payment", Err: err}
	}
	return moved, nil
}

// newPaymentCode builds a scan code in the rail's format:
// QRIS + unix millis + 6 random upper-case characters.
func newPaymentCode(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	return fmt.Sprintf("QRIS%d%s", now.UnixMilli(), suffix)
}

// =============================================================================
// CONFIRMATION SCHEDULER - Simulated asynchronous webhook
// =============================================================================

// ConfirmFunc settles one payment end to end (payment row plus the order
// or deposit it references).
type ConfirmFunc func(ctx context.Context, id PaymentID) error

// ConfirmationScheduler runs ConfirmFunc after a fixed delay per payment,
// off the caller's goroutine. Timers are keyed by payment id so a flow
// that explicitly cancels (or Stop during shutdown) can drop them.
type ConfirmationScheduler struct {
	delay   time.Duration
	confirm ConfirmFunc
	log     zerolog.Logger

	mu     sync.Mutex
	timers map[PaymentID]*time.Timer
}

func NewConfirmationScheduler(delay time.Duration, confirm ConfirmFunc, log zerolog.Logger) *ConfirmationScheduler {
	if delay <= 0 {
		delay = DefaultConfirmDelay
	}
	return &ConfirmationScheduler{
		delay:   delay,
		confirm: confirm,
		log:     log,
		timers:  make(map[PaymentID]*time.Timer),
	}
}

// Schedule arranges for the payment to be confirmed after the delay and
// returns immediately. Scheduling an already-scheduled id is a no-op.
func (s *ConfirmationScheduler) Schedule(id PaymentID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.timers[id]; ok {
		return
	}
	s.timers[id] = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()

		if err := s.confirm(context.Background(), id); err != nil {
			s.log.Error().Err(err).Str("payment_id", string(id)).Msg("simulated confirmation failed")
		}
	})
}

// Cancel drops the scheduled confirmation for id, if any.
func (s *ConfirmationScheduler) Cancel(id PaymentID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[id]; ok {
		timer.Stop()
		delete(s.timers, id)
	}
}

// Stop cancels every outstanding timer. Confirmations already running
// are not interrupted.
func (s *ConfirmationScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}
