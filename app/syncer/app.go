package syncer

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tally-network/pollsync/app/syncer/types"
	"github.com/tally-network/pollsync/pkg/logging"
	"github.com/tally-network/pollsync/pkg/redis"
	"github.com/tally-network/pollsync/pkg/rpc"
	"github.com/tally-network/pollsync/pkg/store"
	"github.com/tally-network/pollsync/pkg/utils"
	"go.uber.org/zap"
)

// Initialize initializes the application.
func Initialize(ctx context.Context) (*types.App, error) {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	endpoints := strings.Split(utils.Env("POLLSYNC_RPC_ENDPOINTS", "http://localhost:8545"), ",")
	client := rpc.NewHTTPWithOpts(rpc.Opts{
		Endpoints: utils.Dedup(endpoints),
		Timeout:   utils.EnvDuration("POLLSYNC_RPC_TIMEOUT", 15*time.Second),
		RPS:       utils.EnvInt("POLLSYNC_RPC_RPS", 20),
	})

	cache, storeErr := store.New(ctx, logger, utils.Env("POLLSYNC_STORE_DSN", ""))
	if storeErr != nil {
		logger.Fatal("Unable to initialize cache store", zap.Error(storeErr))
	}

	// Redis pub/sub for cache change events (optional)
	var events *redis.Client
	if utils.Env("REDIS_ENABLED", "false") == "true" {
		events, err = redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Failed to initialize Redis client - cache change events will be disabled",
				zap.Error(err))
			events = nil
		}
	} else {
		logger.Info("Redis disabled - cache change events will not be published")
	}

	app := &types.App{
		Service: types.NewService(types.ServiceOpts{
			Client: client,
			Store:  cache,
			Events: events,
			Signer: SignerFromEnv(logger),
			Logger: logger,
		}),
		CronSpec: utils.Env("POLLSYNC_RESYNC_CRON", "0 */5 * * * *"),
		Logger:   logger,
	}

	if err := SetupScheduler(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

// SetupScheduler sets up the cron scheduler that re-syncs the cache.
func SetupScheduler(ctx context.Context, app *types.App) error {
	// Seconds field, optional
	app.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	_, err := app.Cron.AddFunc(app.CronSpec, func() {
		// keep each run bounded
		rctx, cancel := context.WithTimeout(ctx, 25*time.Second)
		defer cancel()
		if err := app.Service.Refresh(rctx); err != nil {
			app.Logger.Warn("Scheduled re-sync failed", zap.Error(err))
		}
	})
	return err
}

// SignerFromEnv builds the submission signer, or nil when the process runs
// read-only.
func SignerFromEnv(logger *zap.Logger) rpc.Signer {
	address := utils.Env("POLLSYNC_SIGNER_ADDRESS", "")
	key := utils.Env("POLLSYNC_SIGNER_KEY", "")
	if address == "" || key == "" {
		logger.Info("No signer configured, running read-only")
		return nil
	}
	signer, err := rpc.NewKeySigner(address, key)
	if err != nil {
		logger.Fatal("Invalid signer configuration", zap.Error(err))
	}
	return signer
}
