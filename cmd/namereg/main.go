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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amalashkevich/vanitynamereg/config"
	"github.com/amalashkevich/vanitynamereg/core"
	"github.com/amalashkevich/vanitynamereg/core/genesis"
	"github.com/amalashkevich/vanitynamereg/integrations/indexer"
	"github.com/amalashkevich/vanitynamereg/integrations/webhooks"
	"github.com/amalashkevich/vanitynamereg/observability/logging"
	telemetry "github.com/amalashkevich/vanitynamereg/observability/otel"
	"github.com/amalashkevich/vanitynamereg/rpc"
	"github.com/amalashkevich/vanitynamereg/storage"
)

const (
	serviceName    = "namereg"
	genesisPathEnv = "VNR_GENESIS"
	otlpHeadersEnv = "OTEL_EXPORTER_OTLP_HEADERS"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a YAML genesis file (overrides VNR_GENESIS and config GenesisFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(serviceName, cfg.Env)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv(otlpHeadersEnv)),
		Traces:      cfg.Telemetry.Traces,
		Metrics:     cfg.Telemetry.Metrics,
	})
	if err != nil {
		logger.Error("Failed to initialise telemetry", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()

	app, err := newApp(cfg, resolveGenesisPath(*genesisFlag, cfg.GenesisFile, os.LookupEnv), logger)
	if err != nil {
		logger.Error("Failed to start registry", slog.Any("error", err))
		os.Exit(1)
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		logger.Error("Registry stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Registry stopped")
}

// resolveGenesisPath picks the genesis file: flag, then environment, then
// config.
func resolveGenesisPath(flagValue, cfgValue string, lookup func(string) (string, bool)) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	if lookup != nil {
		if value, ok := lookup(genesisPathEnv); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return strings.TrimSpace(cfgValue)
}

type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	db         storage.Database
	node       *core.Node
	server     *rpc.Server
	indexer    *indexer.Indexer
	dispatcher *webhooks.Dispatcher
}

func newApp(cfg *config.Config, genesisPath string, logger *slog.Logger) (*app, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	params, err := cfg.Registry.Params()
	if err != nil {
		return nil, err
	}
	var spec *genesis.GenesisSpec
	if genesisPath != "" {
		spec, err = genesis.LoadSpecFromFile(genesisPath)
		if err != nil {
			return nil, err
		}
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, db: db}

	a.node, err = core.NewNode(db, params, spec)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create node: %w", err)
	}
	a.node.SetEventHistoryLimit(cfg.RPC.EventBacklog)

	opts := []rpc.Option{rpc.WithLogger(logger)}
	if strings.TrimSpace(cfg.Indexer.DSN) != "" {
		a.indexer, err = indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.node.AddEventHook(a.indexer.Handle)
		opts = append(opts, rpc.WithHistory(a.indexer))
		indexed, err := a.indexer.LastSequence(context.Background())
		if err != nil {
			a.Close()
			return nil, err
		}
		if head := a.node.LastEventSequence(); indexed < head {
			// Events published while the indexer was detached are not replayed.
			logger.Warn("Indexer is behind the node",
				slog.Uint64("indexed", indexed),
				slog.Uint64("head", head))
		}
		logger.Info("Event indexer enabled", slog.String("driver", cfg.Indexer.Driver))
	}
	if strings.TrimSpace(cfg.Webhook.URL) != "" {
		a.dispatcher, err = webhooks.NewDispatcher(cfg.Webhook.URL, []byte(cfg.Webhook.Secret),
			webhooks.WithLogger(logger),
			webhooks.WithRetryPolicy(cfg.Webhook.MaxRetries, 0, 0),
		)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.node.AddEventHook(a.dispatcher.Handle)
		logger.Info("Webhook delivery enabled",
			slog.String("url", cfg.Webhook.URL),
			logging.MaskField("secret", cfg.Webhook.Secret))
	}

	a.server, err = rpc.NewServer(a.node, rpc.ServerConfig{
		AuthToken:         cfg.RPC.AuthToken,
		JWTSecret:         cfg.RPC.JWTSecret,
		JWTIssuer:         cfg.RPC.JWTIssuer,
		RequestsPerMinute: cfg.RPC.RequestsPerMinute,
		Burst:             cfg.RPC.Burst,
		AllowedOrigins:    cfg.RPC.AllowedOrigins,
		EventBacklog:      cfg.RPC.EventBacklog,
	}, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	if cfg.RPC.AuthToken == "" && cfg.RPC.JWTSecret == "" {
		logger.Warn("No RPC credentials configured; mutating methods will be rejected")
	}
	logger.Info("Registry node ready",
		slog.Uint64("height", a.node.Height()),
		slog.String("state_root", a.node.StateRoot().Hex()),
		logging.MaskField("rpc_token", cfg.RPC.AuthToken))
	return a, nil
}

// Run serves JSON-RPC, and prometheus metrics when a separate address is
// configured, until ctx is cancelled.
func (a *app) Run(ctx context.Context) error {
	errCh := make(chan error, 2)
	var metricsServer *http.Server
	if addr := strings.TrimSpace(a.cfg.MetricsAddress); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			a.logger.Info("Metrics server listening", slog.String("addr", addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}
	go func() { errCh <- a.server.Serve(ctx, a.cfg.ListenAddress) }()

	var err error
	select {
	case <-ctx.Done():
		err = <-errCh
	case err = <-errCh:
	}
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	return err
}

// Close stops the node first so no hook fires into a closed sink.
func (a *app) Close() {
	if a == nil {
		return
	}
	if a.node != nil {
		a.node.Close()
	}
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if a.indexer != nil {
		if err := a.indexer.Close(); err != nil {
			a.logger.Warn("Failed to close indexer", slog.Any("error", err))
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
