package query

import (
	"context"

	"github.com/canopy-network/defisnap/app/query/types"
	"github.com/canopy-network/defisnap/pkg/db/postgres"
	"github.com/canopy-network/defisnap/pkg/db/postgres/warehouse"
	"github.com/canopy-network/defisnap/pkg/logging"
	"github.com/canopy-network/defisnap/pkg/metrics"
	"github.com/canopy-network/defisnap/pkg/utils"
	"go.uber.org/zap"
)

// Initialize initializes the application.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr'
		panic(err)
	}

	dbURL := utils.Env("POSTGRES_URL", "")
	if dbURL == "" {
		logger.Fatal("POSTGRES_URL environment variable is required")
	}

	store, err := warehouse.New(ctx, logger, dbURL, postgres.GetPoolConfigForComponent("query"))
	if err != nil {
		logger.Fatal("Unable to initialize warehouse database", zap.Error(err))
	}

	return &types.App{
		Store:   store,
		Closer:  store.Close,
		Metrics: metrics.New(),
		Logger:  logger,
	}
}
