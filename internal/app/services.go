package app

import (
	"context"
	"time"

	"github.com/adanyl0v/go-task-tracker/internal/config"
	"github.com/adanyl0v/go-task-tracker/internal/notify"
	"github.com/adanyl0v/go-task-tracker/internal/ratelimit"
	"github.com/adanyl0v/go-task-tracker/internal/services"
	"github.com/adanyl0v/go-task-tracker/internal/storage/postgres"
)

const rateLimitKeyPrefix = "go-task-tracker:ratelimit:"

var (
	globalAuditService services.AuditService
	globalAuthService  services.AuthService
	globalUserService  services.UserService
	globalTaskService  services.TaskService

	globalDispatcher  *notify.Dispatcher
	globalMemoryStore *ratelimit.MemoryStore

	stopBackgroundJobs context.CancelFunc
)

// MustInitServices wires the services on top of the postgres store.
// MustConnectPostgres and MustConnectRedis must run first.
func MustInitServices() {
	cfg := config.Global()
	store := postgres.New(globalLogger, globalPostgresPool)

	globalAuditService = services.NewAuditService(globalLogger, store)
	guard := services.NewSecurityGuard(
		globalLogger,
		store,
		globalAuditService,
		cfg.Security.LockoutThreshold,
		cfg.Security.LockoutDuration,
		cfg.Security.SessionTimeout,
	)

	globalDispatcher = notify.NewDispatcher(
		globalLogger,
		store,
		notify.NewLogSender(globalLogger),
		cfg.Notify.Workers,
		cfg.Notify.QueueSize,
	)

	globalAuthService = services.NewAuthService(
		globalLogger,
		store,
		store,
		guard,
		globalAuditService,
		newRateLimiter(cfg.RateLimit),
		cfg.JWT.Issuer,
		[]byte(cfg.JWT.SigningKey),
		cfg.JWT.AccessTokenTTL,
		cfg.Security.SessionTimeout,
	)
	globalUserService = services.NewUserService(globalLogger, store, store, store, globalAuditService, globalDispatcher)
	globalTaskService = services.NewTaskService(globalLogger, store, store, globalAuditService, globalDispatcher)

	globalLogger.Info().Msg("initialized services")
}

func newRateLimiter(cfg config.RateLimitConfig) *ratelimit.Limiter {
	var store ratelimit.Store
	if globalRedisClient != nil {
		store = ratelimit.NewRedisStore(globalRedisClient, rateLimitKeyPrefix)
		globalLogger.Info().Msg("rate limiter uses redis")
	} else {
		globalMemoryStore = ratelimit.NewMemoryStore()
		store = globalMemoryStore
		globalLogger.Info().Msg("rate limiter uses process memory")
	}
	return ratelimit.NewLimiter(globalLogger, store, cfg.PasswordChangeLimit, cfg.PasswordChangeWindow)
}

// StartBackgroundJobs starts notification delivery and the periodic audit
// cleanup.
func StartBackgroundJobs() {
	ctx, cancel := context.WithCancel(context.Background())
	stopBackgroundJobs = cancel

	globalDispatcher.Start(ctx)
	go runAuditCleanup(ctx)
}

func runAuditCleanup(ctx context.Context) {
	cfg := config.Global()
	ticker := time.NewTicker(cfg.Audit.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := globalAuditService.Cleanup(ctx, nil, cfg.Audit.Retention)
			if err != nil {
				globalLogger.Error().
					Err(err).
					Msg("failed to clean up audit log")
			}
			if globalMemoryStore != nil {
				globalMemoryStore.Prune(cfg.RateLimit.PasswordChangeWindow)
			}
		}
	}
}

func StopBackgroundJobs() {
	if stopBackgroundJobs != nil {
		stopBackgroundJobs()
	}
	if globalDispatcher == nil {
		return
	}
	err := globalDispatcher.Close()
	if err != nil {
		globalLogger.Error().
			Err(err).
			Msg("failed to stop notification dispatcher")
		return
	}
	globalLogger.Info().Msg("stopped background jobs")
}
