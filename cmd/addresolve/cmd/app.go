package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Aman-CERP/addresolve/internal/config"
	"github.com/Aman-CERP/addresolve/internal/provider"
	"github.com/Aman-CERP/addresolve/internal/resolve"
	"github.com/Aman-CERP/addresolve/internal/telemetry"
	"github.com/Aman-CERP/addresolve/internal/unit"
)

// loadConfig reads --config when given, else the user/project hierarchy
// rooted at the working directory.
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadFile(configFile)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	return config.Load(cwd)
}

// app is an opened provider set with an engine over it.
type app struct {
	cfg     *config.Config
	set     *provider.Set
	engine  *resolve.Engine
	metrics *telemetry.ResolveMetrics
}

// openApp builds providers from cfg and the engine over them. Telemetry is
// persisted into the known-address database when one is configured.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	set, err := provider.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var store telemetry.MetricsStore
	if set.Store != nil {
		ms, err := telemetry.NewSQLiteMetricsStore(set.Store.DB())
		if err != nil {
			slog.Warn("telemetry_store_unavailable", slog.String("error", err.Error()))
		} else {
			store = ms
		}
	}
	metrics := telemetry.NewResolveMetrics(store)

	engine, err := resolve.NewEngine(set.Registry.Providers(),
		resolve.WithChunkSize(cfg.Resolver.ChunkSize),
		resolve.WithDefaultStrategy(cfg.Resolver.Strategy),
		resolve.WithParser(unit.NewParser(unit.DictionaryFor(cfg.Resolver.Language))),
		resolve.WithMetrics(metrics),
	)
	if err != nil {
		_ = metrics.Close()
		_ = set.Close()
		return nil, err
	}

	return &app{cfg: cfg, set: set, engine: engine, metrics: metrics}, nil
}

// Close flushes telemetry before the store it writes to is closed.
func (a *app) Close() error {
	return errors.Join(a.metrics.Close(), a.set.Close())
}
