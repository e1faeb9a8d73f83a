package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"liquidityhub/core/events"
	nativecommon "liquidityhub/native/common"
	"liquidityhub/native/liquidity"
	"liquidityhub/observability"
	"liquidityhub/observability/logging"
	telemetry "liquidityhub/observability/otel"
	"liquidityhub/services/ledgerd/config"
	"liquidityhub/services/ledgerd/export"
	ledgermw "liquidityhub/services/ledgerd/middleware"
	"liquidityhub/services/ledgerd/server"
	"liquidityhub/services/ledgerd/store"
	"liquidityhub/storage"
)

type ledgerState interface {
	liquidity.State
	server.JournalReader
}

func main() {
	if err := run(); err != nil {
		slog.Error("ledgerd exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		cfgPath      string
		exportEvents bool
		exportFrom   uint64
	)
	flag.StringVar(&cfgPath, "config", "services/ledgerd/config.yaml", "path to ledgerd config")
	flag.BoolVar(&exportEvents, "export-events", false, "write the event journal to parquet and exit")
	flag.Uint64Var(&exportFrom, "export-from", 1, "first journal sequence included by -export-events")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Environment == "" {
		cfg.Environment = strings.TrimSpace(os.Getenv("LEDGERD_ENV"))
		cfg.Telemetry.Environment = cfg.Environment
	}

	logger, logCloser := logging.SetupWithFile("ledgerd", cfg.Environment, cfg.Logging)
	defer logCloser.Close()

	if cfg.Telemetry.Enabled() {
		if endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); endpoint != "" {
			cfg.Telemetry.Endpoint = endpoint
		}
		if headers := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")); len(headers) > 0 {
			cfg.Telemetry.Headers = headers
		}
		shutdownTelemetry, err := telemetry.Init(context.Background(), cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() { _ = shutdownTelemetry(context.Background()) }()
	}

	state, closeState, err := openState(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer closeState()

	if exportEvents {
		dir := cfg.Export.Directory
		if dir == "" {
			dir = "."
		}
		result, err := export.New(state, cfg.Export.PageSize, logger).Export(context.Background(), dir, exportFrom)
		if err != nil {
			return err
		}
		logger.Info("export complete", "path", result.Path, "rows", result.Rows, "last_hash", result.LastHash)
		return nil
	}

	ledgerCfg := liquidity.DefaultConfig()
	if cfg.LedgerConfig != "" {
		if ledgerCfg, err = liquidity.LoadConfig(cfg.LedgerConfig); err != nil {
			return err
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	pauses := nativecommon.NewPauseSet()
	hub := server.NewHub(cfg.Stream.Buffer, logger)
	kinked := liquidity.NewKinkedStrategy()

	engine := liquidity.NewEngine(ledgerCfg)
	engine.SetState(state)
	engine.SetLogger(logger)
	engine.SetEmitter(events.Fanout{hub, events.EmitterFunc(func(evt events.Event) {
		logger.Debug("ledger event", "type", evt.EventType())
	})})
	engine.SetObserver(observability.NewLedgerMetrics(registry))
	engine.SetPauses(pauses)
	if err := engine.RegisterStrategy(liquidity.KinkedStrategyName, kinked); err != nil {
		return err
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	err = liquidity.ApplyListing(startCtx, engine, kinked, ledgerCfg.Assets)
	cancelStart()
	if err != nil {
		return fmt.Errorf("apply listings: %w", err)
	}

	srv := server.New(server.Config{
		Engine:  engine,
		Kinked:  kinked,
		Journal: state,
		Hub:     hub,
		Pauses:  pauses,
		Auth: ledgermw.AuthConfig{
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew,
			Admins:     cfg.Auth.AdminSubjects,
		},
		RateLimit: ledgermw.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		Registry:       registry,
		OriginPatterns: cfg.Stream.OriginPatterns,
		Logger:         logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("ledgerd listening", "listen", cfg.ListenAddress, "backend", cfg.Storage.Backend)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	}
}

// openState builds the ledger persistence selected by cfg. The returned
// function releases the underlying handle.
func openState(cfg config.StorageConfig) (ledgerState, func(), error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return liquidity.NewKVState(storage.NewMemDB()), func() {}, nil
	case config.BackendLevelDB:
		db, err := storage.NewLevelDB(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return liquidity.NewKVState(db), db.Close, nil
	case config.BackendBolt:
		db, err := storage.NewBoltDB(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return liquidity.NewKVState(db), db.Close, nil
	case config.BackendSQLite, config.BackendPostgres:
		dsn := cfg.DSN
		if cfg.Backend == config.BackendSQLite {
			dsn = cfg.Path
		}
		db, err := store.Open(cfg.Backend, dsn)
		if err != nil {
			return nil, nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		return store.New(db), func() { _ = sqlDB.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
