package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	httpAdapter "github.com/lorrc/clinical-event-relay/internal/adapters/primary/http"
	mw "github.com/lorrc/clinical-event-relay/internal/adapters/primary/http/middleware"
	"github.com/lorrc/clinical-event-relay/internal/adapters/primary/websocket"
	"github.com/lorrc/clinical-event-relay/internal/adapters/secondary/memory"
	"github.com/lorrc/clinical-event-relay/internal/adapters/secondary/redisqueue"
	"github.com/lorrc/clinical-event-relay/internal/auth"
	"github.com/lorrc/clinical-event-relay/internal/config"
	"github.com/lorrc/clinical-event-relay/internal/core/domain"
	"github.com/lorrc/clinical-event-relay/internal/core/ports"
	"github.com/lorrc/clinical-event-relay/internal/core/services"
	"github.com/lorrc/clinical-event-relay/internal/infrastructure/logging"
	"github.com/lorrc/clinical-event-relay/internal/infrastructure/metrics"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"queue_backend", cfg.Relay.QueueBackend,
	)

	// 3. Connect the Queue Store
	ctx := context.Background()
	store, closeStore, err := openQueueStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open queue store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// 4. Core Components
	relayMetrics := metrics.New()
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.TokenTTL)

	relay := websocket.NewRelay(websocket.Options{
		SendBuffer:     cfg.WebSocket.SendBuffer,
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		PingPeriod:     cfg.WebSocket.PingInterval,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		InboundRate:    rate.Limit(cfg.WebSocket.InboundRPS),
		InboundBurst:   cfg.WebSocket.InboundBurst,
	}, relayMetrics, logger)

	publisher := services.NewEventPublisher(store, services.RetentionPolicy{
		domain.NamespaceQueue:  cfg.Relay.QueueRetention,
		domain.NamespaceWard:   cfg.Relay.IPDRetention,
		domain.NamespaceDoctor: cfg.Relay.IPDRetention,
		domain.NamespaceNurse:  cfg.Relay.IPDRetention,
	}, relayMetrics, logger)
	notifier := services.NewClinicalNotifier(publisher, logger)

	// One poller per namespace; each only pops rooms its own sockets joined.
	pollerCfg := services.PollerConfig{
		Interval:    cfg.Relay.PollInterval,
		Concurrency: cfg.Relay.PollConcurrency,
		PopTimeout:  cfg.Relay.PopTimeout,
	}
	pollers := make([]*services.DeliveryPoller, 0, len(domain.AllNamespaces()))
	for _, ns := range relay.Namespaces() {
		poller := services.NewDeliveryPoller(pollerCfg, store, ns, relayMetrics, logger)
		if err := poller.Start(ctx); err != nil {
			logger.Error("failed to start delivery poller", "namespace", ns.Name(), "error", err)
			os.Exit(1)
		}
		pollers = append(pollers, poller)
	}

	// 5. Initialize Rate Limiters
	var generalRateLimiter *mw.RateLimiter
	var publishRateLimiter *mw.RateLimitByKey
	if cfg.RateLimit.Enabled {
		generalRateLimiter = mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
			CleanupInterval:   time.Minute,
			TTL:               3 * time.Minute,
		})
		defer generalRateLimiter.Stop()

		publishRateLimiter = mw.NewRateLimitByKey(cfg.RateLimit.PublishRPS, cfg.RateLimit.PublishBurst)
		defer publishRateLimiter.Stop()
	}

	// 6. Handlers (Primary Adapters)
	errorHandler := httpAdapter.NewErrorHandler(logger)
	wsHandler := httpAdapter.NewWebSocketHandler(relay, cfg, logger)
	healthHandler := httpAdapter.NewHealthHandler(store, relay, cfg.App.Version)
	publishHandler := httpAdapter.NewPublishHandler(publisher, errorHandler, logger)
	notificationHandler := httpAdapter.NewNotificationHandler(notifier, errorHandler, logger)
	namespacesHandler := httpAdapter.NewNamespacesHandler(relay, errorHandler)

	// 7. Setup Router
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(logger))
	r.Use(mw.RecoveryLogger(logger))

	// Health and metrics stay outside the rate limiter for probes and scrapers.
	healthHandler.RegisterRoutes(r)
	r.Handle("/metrics", relayMetrics.Handler())

	r.Group(func(r chi.Router) {
		if generalRateLimiter != nil {
			r.Use(generalRateLimiter.Middleware)
		}

		// Dashboard sockets (no authentication, origin checked on upgrade)
		wsHandler.RegisterRoutes(r)

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   cfg.Server.CORSOrigins,
				AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
				AllowedHeaders:   []string{"Authorization", "Content-Type", mw.RequestIDHeader},
				ExposedHeaders:   []string{mw.RequestIDHeader},
				AllowCredentials: false,
				MaxAge:           300,
			}))
			r.Use(mw.JWTMiddleware(tokenManager))
			if publishRateLimiter != nil {
				r.Use(publishRateLimiter.Middleware(mw.ServiceKey))
			}

			publishHandler.RegisterRoutes(r)
			r.Route("/notifications", notificationHandler.RegisterRoutes)
			r.Route("/namespaces", namespacesHandler.RegisterRoutes)
		})
	})

	// 8. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop consuming queues first so no entry is popped for a socket that
	// is about to close.
	for _, poller := range pollers {
		if err := poller.Stop(shutdownCtx); err != nil {
			logger.Error("delivery poller shutdown error", "error", err)
		}
	}
	relay.Shutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

// openQueueStore connects the configured queue backend. The returned close
// function is always safe to call.
func openQueueStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ports.QueueStore, func(), error) {
	switch cfg.Relay.QueueBackend {
	case config.QueueBackendMemory:
		logger.Warn("using in-memory queue store; events are lost on restart and not shared between instances")
		return memory.NewQueueStore(), func() {}, nil

	case config.QueueBackendRedis:
		store, err := redisqueue.NewQueueStore(ctx, redisqueue.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			PoolSize:     cfg.Redis.PoolSize,
			KeyPrefix:    cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("queue store connection established", "addr", cfg.Redis.Addr)
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Error("failed to close queue store", "error", err)
			}
		}, nil
	}

	return nil, nil, fmt.Errorf("unknown queue backend %q", cfg.Relay.QueueBackend)
}
