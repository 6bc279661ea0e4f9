package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"evm-tx-monitor/internal/app"
	"evm-tx-monitor/internal/archive"
	"evm-tx-monitor/internal/config"
	"evm-tx-monitor/internal/decoder"
	"evm-tx-monitor/internal/ingestion"
	"evm-tx-monitor/internal/logging"
	"evm-tx-monitor/internal/observability"
	"evm-tx-monitor/internal/rpc"
	"evm-tx-monitor/internal/rpc/stub"
	"evm-tx-monitor/internal/storage/memory"
	"evm-tx-monitor/internal/terminal"
)

const (
	updateBuffer      = 1024
	commandBuffer     = 64
	simulatedInterval = 20 * time.Millisecond
	sizePollInterval  = 250 * time.Millisecond
	shutdownTimeout   = 5 * time.Second
)

// run wires every task and blocks until the user quits or a task fails.
func run(ctx context.Context, cfg config.Config) error {
	log, err := logging.New(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return &config.ConfigError{Field: "LOG_FILE", Value: cfg.LogFile, Reason: err.Error()}
	}
	defer log.Sync() //nolint:errcheck

	metrics := observability.NewMetrics("")

	table, err := decoder.LoadSignatureTable(cfg.SignaturesFile)
	if err != nil {
		return &config.ConfigError{Field: "SIGNATURES_FILE", Value: cfg.SignaturesFile, Reason: err.Error()}
	}
	dec := decoder.New(table, cfg.ValuePrecision)

	store, err := memory.NewTransactionStore(cfg.MaxTransactions)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	store.SetSortOrder(cfg.NewestFirst)

	strategy, err := ingestion.ParseStrategy(cfg.ReconnectStrategy)
	if err != nil {
		return &config.ConfigError{Field: "RECONNECT_STRATEGY", Value: cfg.ReconnectStrategy, Reason: err.Error()}
	}
	backoff := ingestion.Backoff{
		Base:        cfg.ReconnectDelay(),
		Max:         cfg.ReconnectMaxDelay(),
		MaxAttempts: cfg.ReconnectAttempts,
		Strategy:    strategy,
	}

	// The terminal is claimed before any task starts.
	tty, err := terminal.Open(os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	defer tty.Restore() //nolint:errcheck

	g, gctx := errgroup.WithContext(ctx)

	// Archive (optional)
	var archiver ingestion.Archiver
	if cfg.ArchiveDSN != "" {
		archiveStore, err := archive.Open(ctx, cfg.ArchiveDSN)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer archiveStore.Close()

		writer := archive.NewWriter(archiveStore, archive.WriterConfig{}, log, metrics)
		archiver = writer
		g.Go(func() error { return writer.Run(gctx) })
	}

	// Network
	updates := make(chan ingestion.Update, updateBuffer)
	pump := ingestion.NewPump(dec, updates, archiver, ingestion.PumpConfig{FetchRate: cfg.FetchRateLimit}, log, metrics)
	reconnector := ingestion.NewReconnector(newDialer(cfg, log, metrics), backoff, pump, updates, log, metrics)
	g.Go(func() error { return reconnector.Run(gctx) })

	// State
	state := app.New(store, reconnector, log, metrics)
	commands := make(chan app.Command, commandBuffer)
	g.Go(func() error { return state.Run(gctx, updates, commands) })

	// Metrics server (optional)
	if cfg.MetricsAddr != "" {
		serveMetrics(gctx, g, cfg.MetricsAddr, metrics, log)
	}

	// Terminal
	input := terminal.NewInput(state.Snapshot)
	renderer := terminal.NewRenderer(os.Stdout, true)
	g.Go(func() error { return input.Run(gctx, os.Stdin, commands) })
	g.Go(func() error { return terminal.WatchSize(gctx, tty.Size, sizePollInterval, commands) })
	g.Go(func() error {
		return terminal.RenderLoop(gctx, renderer, state, tty.Size, input.Editing, sizePollInterval)
	})

	log.Info("monitor started",
		zap.String("rpc_url", cfg.RPCURL),
		zap.Bool("simulate", cfg.Simulate),
		zap.String("subscription", cfg.Subscription),
		zap.Int("capacity", cfg.MaxTransactions),
		zap.Bool("archive", cfg.ArchiveDSN != ""),
	)

	err = g.Wait()
	if errors.Is(err, app.ErrQuit) {
		err = nil
	}
	if err != nil {
		log.Error("monitor stopped", zap.Error(err))
		return err
	}
	log.Info("monitor stopped")
	return nil
}

func newDialer(cfg config.Config, log *zap.Logger, metrics *observability.Metrics) rpc.Dialer {
	if cfg.Simulate {
		return stub.NewSimulator(simulatedInterval)
	}
	wsCfg := rpc.DefaultConfig()
	wsCfg.Subscription = cfg.Subscription
	wsCfg.FullObjects = cfg.FullTxNotifications
	wsCfg.RequestTimeout = cfg.RequestTimeout()
	wsCfg.Logger = log
	wsCfg.Metrics = metrics
	return rpc.WSDialer{URL: cfg.RPCURL, Config: wsCfg}
}

// serveMetrics runs the /metrics endpoint until ctx is done.
func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, metrics *observability.Metrics, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		log.Info("metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
