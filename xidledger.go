package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/maxpert/xidledger/admin"
	"github.com/maxpert/xidledger/cfg"
	"github.com/maxpert/xidledger/ledger"
	"github.com/maxpert/xidledger/notify"
	"github.com/maxpert/xidledger/telemetry"
	"github.com/maxpert/xidledger/txn"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	flag.Parse()

	// Load configuration
	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Setup logging
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Uint64("node_id", cfg.Config.NodeID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("xidledger - durable transaction status ledger")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()
	telemetry.InitMetrics()

	hub := notify.NewHub()
	defer hub.Close()

	manager, err := openLedger(hub)
	if err != nil {
		log.Fatal().Err(err).Str("path", ledger.FileName(cfg.LedgerBasePath())).Msg("Failed to open transaction ledger")
		return
	}
	defer manager.Close()

	if cfg.Config.Ledger.VerifyOnOpen {
		verifyLedger(manager)
	}

	collector := telemetry.NewMetricsCollector(manager, 10*time.Second)
	collector.Start()
	defer collector.Stop()

	var server *http.Server
	if cfg.Config.Admin.Enabled {
		server, err = startHTTPServer(manager, hub)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
			return
		}
	}

	log.Info().
		Uint64("node_id", cfg.Config.NodeID).
		Str("path", manager.Path()).
		Uint64("counter", manager.Counter()).
		Bool("strict_transitions", cfg.Config.Ledger.StrictTransitions).
		Msg("Ledger is operational")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := waitForShutdown(ctx, manager); err != nil {
		// The ledger can no longer be trusted; exit without touching it again.
		log.Fatal().Err(err).Msg("Transaction ledger failed")
	}

	log.Info().Msg("Shutting down")
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP server shutdown failed")
		}
	}
}

// openLedger opens the configured ledger, creating it on first start when
// create_if_missing is set.
func openLedger(hub *notify.Hub) (*txn.Manager, error) {
	base := cfg.LedgerBasePath()
	opts := txn.Options{
		StrictTransitions: cfg.Config.Ledger.StrictTransitions,
		StatusCacheSize:   cfg.Config.Ledger.StatusCacheSize,
		Notifier:          hub,
	}

	m, err := txn.Open(base, opts)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, ledger.ErrNotFound) || !cfg.Config.Ledger.CreateIfMissing {
		return nil, err
	}

	log.Info().Str("path", ledger.FileName(base)).Msg("Ledger not found, creating")
	return txn.Create(base, opts)
}

func verifyLedger(m *txn.Manager) {
	start := time.Now()
	report, err := m.Verify()
	if err != nil {
		log.Fatal().Err(err).Msg("Ledger verification failed")
		return
	}
	if !report.OK() {
		log.Fatal().
			Uint64("invalid", report.Invalid).
			Uint64("first_invalid_xid", report.FirstInvalidXID).
			Msg("Ledger contains invalid status bytes")
		return
	}
	log.Info().
		Uint64("active", report.Active).
		Uint64("committed", report.Committed).
		Uint64("aborted", report.Aborted).
		Dur("took", time.Since(start)).
		Msg("Ledger verified")
}

func startHTTPServer(m *txn.Manager, hub *notify.Hub) (*http.Server, error) {
	httpMux := http.NewServeMux()

	// Register pprof handlers for profiling
	httpMux.HandleFunc("/debug/pprof/", pprof.Index)
	httpMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	httpMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	httpMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	httpMux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	// Optionally add metrics handler
	if handler := telemetry.GetMetricsHandler(); handler != nil {
		httpMux.Handle("/metrics", handler)
		log.Info().Msg("Metrics endpoint enabled at /metrics")
	}

	admin.RegisterRoutes(httpMux, admin.NewAdminHandlers(m, hub))

	addr := net.JoinHostPort(cfg.Config.Admin.BindAddress, strconv.Itoa(cfg.Config.Admin.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	server := &http.Server{
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	log.Info().Str("address", addr).Msg("HTTP server listening")
	return server, nil
}

// waitForShutdown blocks until ctx is done or the ledger reports a fatal
// error, which it returns.
func waitForShutdown(ctx context.Context, m *txn.Manager) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return m.Err()
		case <-ticker.C:
			if err := m.Err(); err != nil {
				return err
			}
		}
	}
}
