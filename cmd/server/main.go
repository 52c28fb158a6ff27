/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the storefront transaction engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Wire the orchestrator (ledger, inventory, promos, payment gateway)
  4. Configure HTTP router and start the expiry sweeper
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port            HTTP server port (default: 8080)
  -db              SQLite database path (default: storefront.db)
                   Use ":memory:" for in-memory database
  -payment-window  How long a QR payment stays scannable (default: 15m)
  -confirm-delay   Simulated webhook latency (default: 3s)
  -sweep-interval  Expiry sweeper interval (default: 1m)
  -log-level       zerolog level: debug, info, warn, error (default: info)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweeper and cancel pending confirmation timers
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/storefront.db"

  # Run with in-memory database and fast simulation
  ./server -db=":memory:" -confirm-delay=500ms

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/digistore/storefront-engine/api"
	"github.com/digistore/storefront-engine/commerce"
	"github.com/digistore/storefront-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "storefront.db", "SQLite database path")
	paymentWindow := flag.Duration("payment-window", commerce.DefaultPaymentWindow, "how long a QR payment stays scannable")
	confirmDelay := flag.Duration("confirm-delay", commerce.DefaultConfirmDelay, "simulated webhook latency")
	sweepInterval := flag.Duration("sweep-interval", time.Minute, "expiry sweeper interval")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer store.Close()

	// Wire the transaction core
	orchestrator := commerce.NewOrchestrator(store, commerce.Config{
		PaymentWindow: *paymentWindow,
		ConfirmDelay:  *confirmDelay,
		Logger:        logger,
	})
	defer orchestrator.Scheduler().Stop()

	// Background expiry sweeper
	sweeper := api.NewExpirySweeper(store, orchestrator, logger)
	sweeper.CheckInterval = *sweepInterval
	sweeper.Start()
	defer sweeper.Stop()

	// Create router
	handler := api.NewHandler(store, orchestrator, logger)
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Int("port", *port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
