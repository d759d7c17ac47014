package etl

import (
	"context"

	"github.com/canopy-network/defisnap/app/etl/types"
	"github.com/canopy-network/defisnap/pkg/adapter"
	"github.com/canopy-network/defisnap/pkg/chainapi"
	"github.com/canopy-network/defisnap/pkg/config"
	"github.com/canopy-network/defisnap/pkg/db/memstore"
	"github.com/canopy-network/defisnap/pkg/db/postgres"
	"github.com/canopy-network/defisnap/pkg/db/postgres/warehouse"
	"github.com/canopy-network/defisnap/pkg/logging"
	"github.com/canopy-network/defisnap/pkg/metrics"
	"github.com/canopy-network/defisnap/pkg/redis"
	"go.uber.org/zap"
)

// Initialize initializes the application. Configuration errors are fatal here, before
// any provider is contacted.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr'
		panic(err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	app, err := NewApp(ctx, logger, cfg)
	if err != nil {
		logger.Fatal("Unable to initialize application", zap.Error(err))
	}
	return app
}

// NewApp wires the store, the provider clients and the optional event publisher for cfg.
func NewApp(ctx context.Context, logger *zap.Logger, cfg *config.Config) (*types.App, error) {
	app := &types.App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
	}

	if cfg.DryRun {
		logger.Info("Dry run - writing to the in-memory warehouse")
		app.Store = memstore.New()
	} else {
		store, err := warehouse.New(ctx, logger, cfg.PostgresURL, postgres.GetPoolConfigForComponent("etl"))
		if err != nil {
			return nil, err
		}
		app.Store = store
		app.OnClose(store.Close)
	}

	opts := chainapi.Opts{
		RPS:         cfg.Provider.RPS,
		Burst:       cfg.Provider.Burst,
		MaxAttempts: cfg.Provider.MaxAttempts,
		BackoffMin:  cfg.Provider.BackoffMin,
		BackoffMax:  cfg.Provider.BackoffMax,
		Logger:      logger,
	}
	bfOpts := opts
	bfOpts.Endpoints = []string{cfg.Provider.BlockfrostURL}
	blockfrost := chainapi.NewBlockfrost(bfOpts, cfg.Provider.BlockfrostProjectID)

	koiosOpts := opts
	koiosOpts.Endpoints = []string{cfg.Provider.KoiosURL}
	koios := chainapi.NewKoios(koiosOpts)

	app.Adapter = adapter.New(adapter.Opts{
		Logger:   logger,
		Registry: cfg.Registry,
		UTXO: map[string]adapter.UTXOProvider{
			config.ProviderBlockfrost: blockfrost,
			config.ProviderKoios:      koios,
		},
		Assets:  blockfrost,
		Workers: cfg.FetchWorkers,
	})
	app.OnClose(func() error {
		app.Adapter.Close()
		return nil
	})

	// Run events are optional; a Redis outage never blocks a run.
	if cfg.Redis.Enabled {
		client, err := redis.NewClient(ctx, logger, redis.Options{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			StreamMaxLen: redis.DefaultStreamMaxLen,
		})
		if err != nil {
			logger.Warn("Failed to initialize Redis client - run events will not be published", zap.Error(err))
		} else {
			app.Events = client
			app.OnClose(client.Close)
		}
	} else {
		logger.Info("Redis disabled - run events will not be published")
	}

	return app, nil
}

// PushMetrics flushes the run's metrics to the pushgateway when one is configured.
func PushMetrics(ctx context.Context, app *types.App) {
	if app.Config.PushgatewayURL == "" || app.Metrics == nil {
		return
	}
	if err := app.Metrics.Push(ctx, app.Config.PushgatewayURL, "defisnap_etl"); err != nil {
		app.Logger.Warn("Failed to push metrics", zap.Error(err))
	}
}
