// Package main runs mavrouter: a set of MAVLink links, the routes between
// them, and the identity hub that tracks every system heard on any link.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/c360/mavrouter/config"
	"github.com/c360/mavrouter/errors"
	"github.com/c360/mavrouter/gateway"
	"github.com/c360/mavrouter/health"
	"github.com/c360/mavrouter/hub"
	"github.com/c360/mavrouter/mavlink"
	"github.com/c360/mavrouter/metric"
	"github.com/c360/mavrouter/natsbridge"
	"github.com/c360/mavrouter/natsclient"
	"github.com/c360/mavrouter/pkg/retry"
	"github.com/c360/mavrouter/router"
	"github.com/c360/mavrouter/store"
	"github.com/c360/mavrouter/transport"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "mavrouter"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, shouldExit, err := initializeCLI(args)
	if shouldExit || err != nil {
		return err
	}

	cfg, err := loadConfig(cliCfg.ConfigPaths)
	if err != nil {
		return err
	}
	if cliCfg.PrintConfig {
		fmt.Println(cfg.String())
		return nil
	}
	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, cliCfg.ShutdownTimeout, slog.Default())
}

// initializeCLI parses flags and sets up logging
func initializeCLI(args []string) (*CLIConfig, bool, error) {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	cliCfg, err := parseFlags(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("invalid flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, true, nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp(fs)
		return nil, true, nil
	}

	logger := setupLogger(os.Stdout, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting mavrouter",
		"version", Version,
		"build_time", BuildTime,
		"config_paths", cliCfg.ConfigPaths)
	return cliCfg, false, nil
}

// loadConfig merges the given layers over the defaults.
func loadConfig(paths []string) (*config.Config, error) {
	loader := config.NewLoader()
	for _, p := range paths {
		loader.AddLayer(p)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// serve wires the components, restores saved links and runs until ctx ends.
func serve(ctx context.Context, cfg *config.Config, shutdownTimeout time.Duration, logger *slog.Logger) error {
	registry := metric.NewMetricsRegistry()

	var nc *natsclient.Client
	natsState := &natsLiveness{logger: logger.With("component", "natsclient")}
	if cfg.NATS.Enabled {
		var err error
		nc, err = connectNATS(ctx, cfg.NATS, registry, natsState, logger)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := nc.Close(closeCtx); err != nil {
				logger.Warn("NATS close failed", "error", err)
			}
		}()
	}

	st, err := openStore(ctx, cfg.Store, nc, logger)
	if err != nil {
		return err
	}

	h, err := hub.New(hub.Deps{
		Operator: hub.Identity{
			SystemID:    cfg.Operator.SystemID,
			ComponentID: mavlink.ComponentID(cfg.Operator.ComponentID),
		},
		MetricsRegistry: registry,
		Logger:          logger.With("component", "hub"),
	})
	if err != nil {
		return fmt.Errorf("create hub: %w", err)
	}
	defer h.Close()

	r := router.New(router.Deps{
		Factory:           transport.New,
		OnFrame:           h.Observe,
		Heartbeat:         h,
		Store:             st,
		HeartbeatInterval: cfg.HeartbeatInterval,
		MetricsRegistry:   registry,
		Logger:            logger.With("component", "router"),
	})
	defer r.Close()
	h.SetWriter(r)

	if st != nil {
		n, err := r.LoadSettings(ctx)
		if err != nil {
			logger.Warn("Saved links could not be restored", "error", err)
		} else {
			logger.Info("Saved links restored", "count", n, "links", r.Names())
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.Run(gctx) })

	if nc != nil {
		bridge, err := natsbridge.New(natsbridge.Deps{
			Config: natsbridge.Config{
				Prefix:         cfg.NATS.SubjectPrefix,
				IncludePayload: cfg.NATS.IncludePayload,
				AcceptCommands: cfg.NATS.AcceptCommands,
			},
			Source:          h,
			Client:          nc,
			MetricsRegistry: registry,
			Logger:          logger.With("component", "natsbridge"),
		})
		if err != nil {
			return fmt.Errorf("create nats bridge: %w", err)
		}
		g.Go(func() error { return bridge.Run(gctx) })
	}

	if cfg.HTTP.Enabled {
		var checks []gateway.HealthCheck
		if nc != nil {
			checks = append(checks, natsHealth(natsState, func() string { return nc.Status().String() }))
		}
		gw, err := gateway.New(gateway.Deps{
			Config: gateway.Config{
				Addr:          cfg.HTTP.Addr,
				CORSOrigins:   cfg.HTTP.CORSOrigins,
				AutoSave:      st != nil,
				DefaultReader: cfg.Reader,
				StaleAfter:    cfg.HTTP.StaleAfter,
			},
			Checks:          checks,
			Links:           r,
			Hub:             h,
			MetricsRegistry: registry,
			Logger:          logger.With("component", "gateway"),
		})
		if err != nil {
			return fmt.Errorf("create gateway: %w", err)
		}
		g.Go(func() error { return gw.Run(gctx) })
	}

	logger.Info("mavrouter started",
		"links", len(r.Names()), "nats", nc != nil, "http", cfg.HTTP.Enabled, "store", cfg.Store.Kind)

	err = g.Wait()
	logger.Info("Shutting down")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func connectNATS(ctx context.Context, cfg config.NATSConfig, registry *metric.MetricsRegistry,
	state *natsLiveness, logger *slog.Logger) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithName(cfg.Name),
		natsclient.WithMaxReconnects(cfg.MaxReconnects),
		natsclient.WithReconnectWait(cfg.ReconnectWait),
		natsclient.WithMetrics(registry),
		natsclient.WithLogger(logger.With("component", "natsclient")),
		natsclient.WithHealthChangeCallback(state.set),
	}
	if cfg.DialTimeout > 0 {
		opts = append(opts, natsclient.WithTimeout(cfg.DialTimeout))
	}
	if cfg.PingInterval > 0 {
		opts = append(opts, natsclient.WithPingInterval(cfg.PingInterval))
	}
	if cfg.DrainTimeout > 0 {
		opts = append(opts, natsclient.WithDrainTimeout(cfg.DrainTimeout))
	}
	if cfg.ConnectRetries > 0 {
		retryCfg := retry.DefaultConfig()
		retryCfg.MaxAttempts = cfg.ConnectRetries + 1
		opts = append(opts, natsclient.WithConnectRetry(retryCfg))
	}
	if cfg.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}

	nc, err := natsclient.NewClient(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	logger.Info("Connecting to NATS", "url", cfg.URL)
	if err := nc.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := nc.WaitForConnection(connCtx); err != nil {
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}
	return nc, nil
}

// natsLiveness follows the client's health callbacks so the gateway check
// does not have to query the connection.
type natsLiveness struct {
	healthy atomic.Bool
	logger  *slog.Logger
}

func (l *natsLiveness) set(healthy bool) {
	if l.healthy.Swap(healthy) == healthy {
		return
	}
	if healthy {
		l.logger.Info("NATS connection healthy")
	} else {
		l.logger.Warn("NATS connection lost")
	}
}

func natsHealth(state *natsLiveness, status func() string) gateway.HealthCheck {
	return func() health.Status {
		if state.healthy.Load() {
			return health.NewHealthy("nats", status())
		}
		return health.NewUnhealthy("nats", status())
	}
}

// openStore returns the configured settings store, or nil for "none".
func openStore(ctx context.Context, cfg config.StoreConfig, nc *natsclient.Client, logger *slog.Logger) (store.Store, error) {
	storeLogger := logger.With("component", "store")
	switch cfg.Kind {
	case config.StoreFile:
		return store.NewFileStore(cfg.Path, storeLogger), nil
	case config.StoreKV:
		if nc == nil {
			return nil, fmt.Errorf("kv store needs a NATS connection")
		}
		bucket, err := nc.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
			Bucket:      cfg.Bucket,
			Description: "mavrouter link settings",
			History:     5,
		})
		if err != nil {
			return nil, fmt.Errorf("open kv bucket %s: %w", cfg.Bucket, err)
		}
		return store.NewKVStore(nc.NewKVStore(bucket), storeLogger), nil
	default:
		return nil, nil
	}
}
