package types

import (
	"context"
	"net/http"
	"time"

	"github.com/canopy-network/defisnap/pkg/db"
	"github.com/canopy-network/defisnap/pkg/metrics"
	"go.uber.org/zap"
)

type App struct {
	// Store serves every read endpoint.
	Store db.QueryStore
	// Closer releases the store's connections on shutdown. May be nil.
	Closer  func() error
	Metrics *metrics.Collectors
	// Zap Logger
	Logger *zap.Logger
	// Server represents the HTTP server instance used to handle incoming client requests and manage HTTP routes.
	Server *http.Server
}

// Start serves until ctx is canceled, then shuts the server down.
func (a *App) Start(ctx context.Context) {
	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Error("Server stopped", zap.Error(err))
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = a.Server.Shutdown(shutdownCtx)

	if a.Closer != nil {
		if err := a.Closer(); err != nil {
			a.Logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
