/*
scheduler.go - Background expiry sweeper for QR payments

PURPOSE:
  Periodically finds pending QR payments whose window has closed and
  expires them, so orders release their reserved stock and deposits
  settle as expired even when nobody ever polls the payment.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Queries only pending payments past their window (indexed)
  - Delegates to Orchestrator.ExpirePayment, which is idempotent, so a
    sweep racing a lazy expiry or a late confirm is harmless

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 minute)
  - Enabled: Whether the sweeper is active (default: true)

USAGE:
  sweeper := NewExpirySweeper(store, orchestrator, logger)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - commerce/orchestrator.go: ExpirePayment and the lazy expiry in
    CheckPaymentStatus
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/digistore/storefront-engine/commerce"
)

// ExpirySweeper expires overdue pending payments in the background.
type ExpirySweeper struct {
	Store         commerce.PaymentStore
	Orchestrator  *commerce.Orchestrator
	CheckInterval time.Duration
	Enabled       bool
	Log           zerolog.Logger

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewExpirySweeper creates a new sweeper.
func NewExpirySweeper(store commerce.PaymentStore, orchestrator *commerce.Orchestrator, log zerolog.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		Store:         store,
		Orchestrator:  orchestrator,
		CheckInterval: 1 * time.Minute,
		Enabled:       true,
		Log:           log,
		stop:          make(chan bool),
	}
}

// Start begins the sweeper.
func (es *ExpirySweeper) Start() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if !es.Enabled {
		es.Log.Info().Msg("expiry sweeper disabled, not starting")
		return
	}

	es.ticker = time.NewTicker(es.CheckInterval)
	es.wg.Add(1)

	go es.run()

	es.Log.Info().Dur("interval", es.CheckInterval).Msg("expiry sweeper started")
}

// Stop stops the sweeper.
func (es *ExpirySweeper) Stop() {
	es.mu.Lock()
	defer es.mu.Unlock()

	if es.ticker != nil {
		es.ticker.Stop()
		close(es.stop)
		es.wg.Wait()
		es.Log.Info().Msg("expiry sweeper stopped")
	}
}

func (es *ExpirySweeper) run() {
	defer es.wg.Done()

	// Run immediately on start
	es.sweep()

	for {
		select {
		case <-es.ticker.C:
			es.sweep()
		case <-es.stop:
			return
		}
	}
}

func (es *ExpirySweeper) sweep() {
	ctx := context.Background()

	stale, err := es.Store.PendingPaymentsBefore(ctx, time.Now())
	if err != nil {
		es.Log.Error().Err(err).Msg("expiry sweep query failed")
		return
	}

	expired := 0
	for _, payment := range stale {
		if err := es.Orchestrator.ExpirePayment(ctx, payment.ID); err != nil {
			es.Log.Error().Err(err).Str("payment_id", string(payment.ID)).Msg("failed to expire payment")
			continue
		}
		expired++
	}

	if expired > 0 {
		es.Log.Info().Int("expired", expired).Msg("expiry sweep completed")
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (es *ExpirySweeper) RunNow() {
	es.sweep()
}
