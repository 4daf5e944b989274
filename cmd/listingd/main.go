package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"escrowswap/config"
	"escrowswap/core/events"
	"escrowswap/core/state"
	"escrowswap/indexer"
	"escrowswap/native/listing"
	"escrowswap/observability"
	"escrowswap/observability/logging"
	telemetry "escrowswap/observability/otel"
	"escrowswap/rpc"
	"escrowswap/storage"
)

const serviceName = "listingd"

func main() {
	configFile := flag.String("config", "", "Path to the configuration file (.toml or .yaml)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.SetupWithOptions(logging.Options{
		Service:    serviceName,
		Env:        cfg.Environment,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("listingd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

// node bundles the components a running daemon is assembled from.
type node struct {
	db      storage.Database
	store   *state.Store
	engine  *listing.Engine
	index   *indexer.Indexer
	closers []io.Closer
}

func (n *node) Close() {
	for i := len(n.closers) - 1; i >= 0; i-- {
		_ = n.closers[i].Close()
	}
	if n.db != nil {
		n.db.Close()
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	hub := rpc.NewHub(cfg.RPC.StreamBuffer)
	n, err := assemble(ctx, cfg, hub, logger)
	if err != nil {
		return err
	}
	defer n.Close()

	server := rpc.NewServer(n.engine, n.index, hub, rpc.ServerConfig{
		RequestsPerSecond: cfg.RPC.RequestsPerSecond,
		Burst:             cfg.RPC.Burst,
		StreamBuffer:      cfg.RPC.StreamBuffer,
	}, logger)
	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.RPC.ReadTimeout.Duration,
		WriteTimeout: cfg.RPC.WriteTimeout.Duration,
	}
	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", listener.Addr().String()))
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.RPC.ShutdownTimeout.Duration)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", slog.Any("error", err))
	}
	return nil
}

// assemble opens storage, builds the engine with its event sinks and applies
// the startup genesis and platform bootstrap.
func assemble(ctx context.Context, cfg *config.Config, hub *rpc.Hub, logger *slog.Logger) (*node, error) {
	n := &node{}
	var err error
	switch cfg.Storage.Backend {
	case "memory":
		n.db = storage.NewMemDB()
	default:
		n.db, err = storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
		if err != nil {
			return nil, fmt.Errorf("open state database: %w", err)
		}
	}
	n.store, err = state.NewStore(n.db)
	if err != nil {
		n.Close()
		return nil, fmt.Errorf("open state: %w", err)
	}

	n.engine = listing.NewEngine(n.store)
	n.engine.SetObserver(observability.Listing())
	if cfg.Platform.Authority != "" {
		n.engine.SetBootstrapAuthority(config.Address(cfg.Platform.Authority))
	}

	fanout := events.NewFanout(observability.EventCounter{}, hub)
	if dsn := cfg.Index.DSN; dsn != "" {
		db, err := indexer.Open(dsn)
		if err != nil {
			n.Close()
			return nil, fmt.Errorf("open index: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			n.closers = append(n.closers, sqlDB)
		}
		n.index = indexer.New(db, logger)
		fanout.Add(n.index)
	}
	n.engine.SetEmitter(fanout)

	if err := bootstrap(n.engine, cfg, logger); err != nil {
		n.Close()
		return nil, err
	}
	if n.index != nil {
		listings, err := n.engine.StoredListings()
		if err != nil {
			n.Close()
			return nil, fmt.Errorf("load listings: %w", err)
		}
		if err := n.index.Rebuild(ctx, listings, n.store.Seq()); err != nil {
			n.Close()
			return nil, fmt.Errorf("rebuild index: %w", err)
		}
	}
	return n, nil
}

// bootstrap credits the configured genesis balances once per store and, when
// requested, initializes the platform and its whitelist.
func bootstrap(engine *listing.Engine, cfg *config.Config, logger *slog.Logger) error {
	allocations := make([]listing.Allocation, 0, len(cfg.Genesis))
	for _, alloc := range cfg.Genesis {
		allocations = append(allocations, listing.Allocation{
			Owner:  config.Address(alloc.Owner),
			Asset:  config.Address(alloc.Asset),
			Amount: alloc.Amount,
		})
	}
	if len(allocations) > 0 {
		applied, err := engine.ApplyGenesis(allocations)
		if err != nil {
			return fmt.Errorf("apply genesis: %w", err)
		}
		if applied {
			logger.Info("genesis applied", slog.Int("allocations", len(allocations)))
		}
	}

	if !cfg.Platform.AutoInitialize {
		return nil
	}
	authority := config.Address(cfg.Platform.Authority)
	_, err := engine.InitializePlatform(authority, listing.PlatformParams{
		FeeCollector:       config.Address(cfg.Platform.FeeCollector),
		FeeBasisPoints:     cfg.Platform.FeeBasisPoints,
		MinListingDuration: cfg.Platform.MinListingDuration,
		MaxListingDuration: cfg.Platform.MaxListingDuration,
		MinTradeAmount:     cfg.Platform.MinTradeAmount,
		MaxListingsPerUser: cfg.Platform.MaxListingsPerUser,
		WhitelistEnabled:   cfg.Platform.WhitelistEnabled,
	})
	switch {
	case errors.Is(err, listing.ErrPlatformAlreadyInitialized):
		return nil
	case err != nil:
		return fmt.Errorf("initialize platform: %w", err)
	}
	for _, asset := range cfg.Platform.Whitelist {
		if _, err := engine.ManageWhitelist(authority, config.Address(asset), true); err != nil {
			return fmt.Errorf("whitelist %s: %w", asset, err)
		}
	}
	logger.Info("platform initialized",
		slog.String("authority", cfg.Platform.Authority),
		slog.Int("whitelisted", len(cfg.Platform.Whitelist)))
	return nil
}
