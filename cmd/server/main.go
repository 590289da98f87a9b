package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/config"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/database"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/handlers"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/middleware"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/repository"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/repository/sqlite"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/router"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/services"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/telemetry"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/websocket"
	"github.com/hossamSharif/TafawoqWeb-sub004/internal/worker"
)

const serviceName = "tafawoq-sessions"

// stores groups the persistence backends selected by STORAGE_DRIVER.
type stores struct {
	sessions      services.SessionStore
	performance   services.PerformanceStore
	credits       services.CreditStore
	posts         services.PostStore
	notifications services.NotificationStore
	users         services.UserStore
	ping          router.PingFunc
	close         func()
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	switch cfg.StorageDriver {
	case config.StorageSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return &stores{
			sessions:      store,
			performance:   store,
			credits:       store,
			posts:         store,
			notifications: store,
			users:         store,
			ping:          store.Ping,
			close:         func() { store.Close() },
		}, nil
	default:
		pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := database.RunMigrations(ctx, pool, cfg.MigrationsDir, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		return &stores{
			sessions:      repository.NewSessionRepo(pool),
			performance:   repository.NewPerformanceRepo(pool),
			credits:       repository.NewCreditRepo(pool),
			posts:         repository.NewPostRepo(pool),
			notifications: repository.NewNotificationRepo(pool),
			users:         repository.NewUserRepo(pool),
			ping:          pool.Ping,
			close:         pool.Close,
		}, nil
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("storage", cfg.StorageDriver),
		zap.String("rate_limit_store", cfg.RateLimitStore))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("storage initialisation failed", zap.Error(err))
	}
	defer st.close()
	logger.Info("storage ready", zap.String("driver", cfg.StorageDriver))

	redisClients, err := database.NewRedisClients(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}
	defer redisClients.Close()

	// Services
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	tiers := services.NewTierResolver(st.users, redisClients.Queue, cfg.TierCacheTTL(), logger)
	credits := services.NewCreditService(st.credits, tiers, logger)
	eligibility := services.NewEligibilityEvaluator(st.performance, tiers, cfg.FreeWeeklyExamLimit, logger)
	sessions := services.NewSessionService(
		st.sessions,
		eligibility,
		services.NewPauseLimiter(st.sessions),
		services.NewRedisSessionEvents(redisClients.PubSub),
		services.SessionConfig{
			ExamDurationSeconds:  cfg.ExamDurationSeconds,
			MaxPracticeQuestions: cfg.MaxPracticeQuestions,
			ExpiryGrace:          cfg.ExpiryGrace(),
		},
		logger,
	)
	trigger := services.NewRewardTrigger(st.posts, st.credits, services.NewRedisNotifier(redisClients.PubSub), cfg.RewardUnit, logger)
	completions := services.NewCompletionService(st.posts, trigger, logger)
	feed := services.NewNotificationFeed(st.notifications)

	// Background work
	scheduler := services.NewMaintenanceScheduler(sessions, credits, cfg.ExpirySweepSchedule, cfg.ShareResetSchedule, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal("maintenance scheduler failed to start", zap.Error(err))
	}

	workerPool := worker.NewPool(redisClients.Queue, completions, cfg.CompletionWorkers, logger)
	workerPool.Start()
	logger.Info("completion workers started", zap.Int("workers", cfg.CompletionWorkers))

	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth, cfg.FrontendURL, logger)

	// HTTP
	var counterStore middleware.CounterStore
	if cfg.RateLimitStore == config.RateLimitRedis {
		counterStore = middleware.NewRedisCounterStore(redisClients.Queue)
	} else {
		memStore := middleware.NewMemoryCounterStore(time.Minute)
		defer memStore.Close()
		counterStore = memStore
	}
	limiter := middleware.NewRateLimiter(counterStore, cfg.RateLimitPerMinute, time.Minute, logger)

	if cfg.AdminAPIKey == "" {
		logger.Warn("ADMIN_API_KEY is empty; admin routes will reject every request")
	}

	r := router.New(jwtAuth, limiter, router.Handlers{
		Sessions:      handlers.NewSessionHandler(sessions, logger),
		Eligibility:   handlers.NewEligibilityHandler(eligibility, logger),
		Credits:       handlers.NewCreditHandler(credits, logger),
		Completions:   handlers.NewCompletionHandler(completions, logger),
		Notifications: handlers.NewNotificationHandler(feed, logger),
		Tiers:         handlers.NewTierHandler(tiers, logger),
		WebSocket:     wsHub.HandleWebSocket,
	}, router.Options{
		FrontendURL: cfg.FrontendURL,
		AdminAPIKey: cfg.AdminAPIKey,
		Health: map[string]router.Pinger{
			"database": st.ping,
			"redis":    router.PingFunc(func(ctx context.Context) error { return redisClients.Queue.Ping(ctx).Err() }),
		},
		Logger: logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening",
			zap.String("addr", server.Addr),
			zap.String("api", "/api/v1"),
			zap.String("ws", "/api/v1/ws"))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	wsHub.Close()
	scheduler.Stop(shutdownCtx)
	workerPool.Stop(shutdownCtx)
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown failed", zap.Error(err))
	}

	logger.Info("server exited")
}
