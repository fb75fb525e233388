package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/forgo/canvas/internal/config"
	"github.com/forgo/canvas/internal/handler"
	"github.com/forgo/canvas/internal/jobs"
	"github.com/forgo/canvas/internal/ledger"
	"github.com/forgo/canvas/internal/metrics"
	"github.com/forgo/canvas/internal/middleware"
	"github.com/forgo/canvas/internal/model"
	"github.com/forgo/canvas/internal/service"
	"github.com/forgo/canvas/pkg/jwt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Initialize structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()

	// Initialize persistence
	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to open store",
			slog.String("driver", cfg.Database.Driver),
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Initialize JWT service
	jwtService, err := jwt.NewService(jwt.Config{
		PrivateKeyPath: cfg.Session.PrivateKeyPath,
		PublicKeyPath:  cfg.Session.PublicKeyPath,
		Issuer:         cfg.Session.Issuer,
		Expiration:     cfg.Session.TTL,
	})
	if err != nil {
		slog.Error("failed to initialize JWT service", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize ledger clients
	gateway, err := ledger.NewHederaGateway(cfg.Hedera)
	if err != nil {
		slog.Error("failed to initialize ledger gateway", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = gateway.Close() }()

	mirror := ledger.NewMirrorClient(cfg.Mirror)
	watcher := ledger.NewWatcher(mirror, ledger.WithBackoff(cfg.Settlement.Backoff, 30*time.Second))

	slog.Info("ledger configured",
		slog.String("network", cfg.Hedera.Network),
		slog.String("mirror", cfg.Mirror.BaseURL),
	)

	// Initialize services
	authCfg := service.AuthServiceConfig{
		UserRepo:   store.Users,
		Challenges: service.NewChallengeIssuer(),
		Tokens:     service.NewSessionTokenCodec(jwtService),
		Metrics:    m,
		Logger:     logger,
	}
	if cfg.Auth.VerifyAccountKey {
		authCfg.Accounts = mirror
	}
	authService := service.NewAuthService(authCfg)

	purchaseService := service.NewPurchaseService(service.PurchaseServiceConfig{
		Store:           store.Settlement,
		Users:           store.Users,
		Gateway:         gateway,
		Watcher:         watcher,
		Metrics:         m,
		Logger:          logger,
		Treasury:        cfg.Hedera.TreasuryID,
		BaselineDelay:   cfg.Settlement.BaselineDelay,
		MaxRetries:      cfg.Settlement.MaxRetries,
		PollDelay:       cfg.Settlement.PollDelay,
		DuplicateWindow: cfg.Settlement.DuplicateWindow,
	})

	reconcileService := service.NewReconcileService(service.ReconcileServiceConfig{
		Store:   store.Settlement,
		Status:  mirror,
		Grace:   cfg.Settlement.ReconcileGrace,
		Metrics: m,
		Logger:  logger,
	})

	// Start background jobs
	reconciler := jobs.NewReconciler(reconcileService, cfg.Settlement.ReconcileInterval)
	reconciler.Start()
	defer reconciler.Stop()

	// Request guards
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		PerMinute: int(cfg.RateLimit.RequestsPerSecond * 60),
		Burst:     cfg.RateLimit.Burst,
	})
	defer rateLimiter.Stop()

	replayCache := middleware.NewReplayCache(middleware.ReplayConfig{})
	defer replayCache.Stop()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authService)
	purchaseHandler := handler.NewPurchaseHandler(purchaseService, logger)

	authMiddleware := middleware.Auth(authService)

	// Create router
	mux := http.NewServeMux()

	// Health and metrics
	mux.HandleFunc("GET /health", handler.Health)
	mux.HandleFunc("GET /ready", handler.Ready(store.Pinger))
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	// Auth endpoints (public)
	mux.HandleFunc("POST /v1/auth/challenge", authHandler.Challenge)
	mux.HandleFunc("POST /v1/auth/verify", authHandler.Verify)
	mux.HandleFunc("POST /v1/auth/register", authHandler.Register)

	// Auth endpoints (protected)
	mux.Handle("GET /v1/auth/me", authMiddleware(http.HandlerFunc(authHandler.Me)))

	// Purchase endpoint. Admins hold operator access and do not buy.
	mux.Handle("POST /v1/assets/{assetId}/purchase", middleware.Chain(
		http.HandlerFunc(purchaseHandler.Purchase),
		authMiddleware,
		middleware.RequireRole(model.UserRoleBuyer, model.UserRoleArtist),
		middleware.Idempotency(replayCache),
	))

	// Apply global middleware
	chain := []middleware.Middleware{
		middleware.RequestID,
		middleware.Logger(m),
		middleware.Recovery,
		middleware.CORS(cfg.Server.AllowedOrigins),
	}
	if cfg.RateLimit.Enabled {
		chain = append(chain, middleware.RateLimit(rateLimiter))
	}
	wrapped := middleware.Chain(mux, chain...)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      wrapped,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("starting server",
			slog.String("port", cfg.Server.Port),
			slog.String("env", cfg.Server.Env),
			slog.String("db_driver", cfg.Database.Driver),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", slog.String("error", err.Error()))
	}

	slog.Info("server exited")
}
