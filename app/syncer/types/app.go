package types

import (
	"context"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// App bundles the sync Service with the daemon plumbing around it.
type App struct {
	Service *Service

	// Cron triggers the periodic full re-sync, according to CronSpec.
	Cron     *cron.Cron
	CronSpec string

	// Logger is used to log messages, errors, and events during the application's lifecycle and operations.
	Logger *zap.Logger

	// Server represents the HTTP server instance used to handle incoming client requests and manage HTTP routes.
	Server *http.Server
}

// Start runs the daemon until ctx is cancelled, then shuts everything down
// in order: scheduler, watches, HTTP server, store connections.
func (a *App) Start(ctx context.Context) {
	if a.Cron != nil {
		a.Cron.Start()
		a.Logger.Info("Re-sync scheduler started", zap.String("cronSpec", a.CronSpec))
	}

	go func() { _ = a.Server.ListenAndServe() }()
	<-ctx.Done()

	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}
	a.Service.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.Server.Shutdown(shutdownCtx)

	if err := a.Service.Close(); err != nil {
		a.Logger.Error("Failed to close connections", zap.Error(err))
	}
	a.Logger.Info("Goodbye!")
}
