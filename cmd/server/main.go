package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"homehub/internal/core/ports"
	"homehub/internal/core/services"
	httphandlers "homehub/internal/handlers/http"
	"homehub/internal/infrastructure/eventsocket"
	"homehub/internal/infrastructure/middleware"
	"homehub/internal/infrastructure/monitoring"
	"homehub/internal/infrastructure/providers"
	repositories "homehub/internal/infrastructure/repositories"
	"homehub/internal/infrastructure/streaming"
	"homehub/internal/infrastructure/vendors"
	"homehub/pkg/config"
	"homehub/pkg/distributed"
	"homehub/pkg/logger"
	"homehub/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/homehub/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	if cfg.Tracing.Enabled {
		tracingCfg := tracing.Config{
			ServiceName: "homehub",
			JaegerURL:   cfg.Tracing.JaegerURL,
			Environment: cfg.Tracing.Environment,
			SampleRate:  cfg.Tracing.SampleRate,
			Enabled:     true,
		}
		tp, err := tracing.Init(tracingCfg)
		if err != nil {
			log.Warnw("failed to initialize tracing", "error", err)
		} else {
			defer tp.Shutdown(context.Background())
			log.Info("tracing enabled")
		}
	}

	// Initialize repository factory
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	// Initialize repositories
	userRepo := repoFactory.CreateUserRepository()
	credentialRepo := repoFactory.CreateCredentialRepository()
	deviceRepo := repoFactory.CreateDeviceRepository()
	eventRepo := repoFactory.CreateEventRepository()
	streamStore := repoFactory.CreateStreamSessionStore()
	defer streamStore.Close()

	// Initialize monitoring
	var collector *monitoring.PrometheusCollector
	if cfg.Monitoring.PrometheusEnabled {
		collector = monitoring.NewPrometheusCollector()
	}
	var relayMetrics services.RelayMetrics
	var connMetrics providers.ConnectionMetrics
	var segmentMetrics httphandlers.SegmentMetrics
	if collector != nil {
		relayMetrics = collector
		connMetrics = collector
		segmentMetrics = collector
	}

	// Initialize core services
	vault, err := services.NewVault(cfg.Vault.Secret, services.VaultParams{
		Time:   cfg.Vault.Argon2Time,
		Memory: cfg.Vault.Argon2Memory,
		Lanes:  cfg.Vault.Argon2Lanes,
	})
	if err != nil {
		log.Fatalw("failed to create credential vault", "error", err)
	}

	authService := services.NewAuthService(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
		cfg.Auth.StreamTokenTTL,
	)
	registry := services.NewSessionRegistry(log)
	relay := services.NewEventRelay(cfg.Livestream.SubscriberBuffer, log, relayMetrics)
	streamService := services.NewStreamService(streamStore, cfg.Livestream.MediaRoot, log)
	recorder := streaming.NewRecorder(2*time.Second, log)

	// Initialize provider adapters
	vacuumClient := vendors.NewVacuumClient(cfg.Providers.Vacuum.BaseURL, cfg.Providers.Vacuum.PollInterval, log)
	doorbellClient := vendors.NewDoorbellClient(cfg.Providers.Doorbell.BaseURL, log)

	baseDeps := providers.Deps{
		Vault:       vault,
		Registry:    registry,
		Relay:       relay,
		Credentials: credentialRepo,
		Devices:     deviceRepo,
		Events:      eventRepo,
		Logger:      log,
		Metrics:     connMetrics,
	}

	vacuumDeps := baseDeps
	vacuumDeps.Client = vacuumClient
	doorbellDeps := baseDeps
	doorbellDeps.Client = doorbellClient

	adapters := []ports.ProviderAdapter{
		providers.NewVacuumAdapter(vacuumDeps),
		providers.NewDoorbellAdapter(doorbellDeps, streamService, recorder, cfg.Livestream.IdleTimeout),
	}

	// Initialize reconnection orchestrator; the Redis lock keeps the
	// sweep single-flight across instances.
	var guard services.SweepGuard
	if client := repoFactory.RedisClient(); client != nil {
		guard = distributed.NewLock(client, "homehub:reconnect:sweep", 5*time.Minute)
	}
	var reconnectMetrics services.ReconnectMetrics
	if collector != nil {
		reconnectMetrics = collector
	}
	orchestrator := services.NewReconnectOrchestrator(adapters, credentialRepo, guard, reconnectMetrics, log)

	// Initialize HTTP handlers
	authHandler := httphandlers.NewAuthHandler(authService, userRepo, cfg.Auth.AccessTokenTTL)
	providerHandler := httphandlers.NewProviderHandler(adapters)
	deviceHandler := httphandlers.NewDeviceHandler(deviceRepo, eventRepo)
	streamHandler := httphandlers.NewStreamHandler(streamService, segmentMetrics)

	var wsLimits eventsocket.MessageLimits
	if cfg.RateLimiting.Enabled {
		wsLimits = eventsocket.MessageLimits{
			PerSecond: cfg.RateLimiting.WebSocket.MessagesPerSecond,
			Burst:     cfg.RateLimiting.WebSocket.Burst,
			MaxBytes:  cfg.RateLimiting.WebSocket.MaxMessageSizeBytes,
		}
	}
	wsServer := eventsocket.NewWebSocketServer(
		relay,
		authService,
		cfg.Auth.AllowedOrigins,
		cfg.Livestream.PingInterval,
		cfg.Livestream.PongTimeout,
		wsLimits,
		log,
	)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.RequestLoggingMiddleware(logger.NewContextLogger(zapLogger)))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	// Authenticated API surface
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(authService))

	authHandler.SetupRoutes(router, api)
	providerHandler.SetupRoutes(api)
	deviceHandler.SetupRoutes(api)

	// Live event feed over WebSocket
	router.GET("/ws/events",
		middleware.NewWSConnectionRateLimitMiddleware(cfg),
		gin.WrapF(wsServer.HandleWebSocket))

	// Segment delivery accepts the token in three forms; everything else
	// requires a bearer header.
	streamAuthed := router.Group("/")
	streamAuthed.Use(middleware.StreamAuthMiddleware(authService))
	streamHandler.SetupRoutes(streamAuthed, api)

	// Health check endpoint
	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddMediaRootCheck(cfg.Livestream.MediaRoot, 2*time.Second)
	if client := repoFactory.RedisClient(); client != nil {
		healthChecker.AddRedisCheck(client, 2*time.Second)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":         "healthy",
			"timestamp":      time.Now(),
			"uptime":         time.Since(startTime).String(),
			"ws_connections": wsServer.ConnectionCount(),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := healthChecker.CheckAll(ctx)
		if status.Status != "healthy" {
			c.JSON(503, status)
			return
		}
		c.JSON(200, status)
	})

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Bind the listener before serving so the sweep below only starts
	// once the server is reachable.
	ln, err := net.Listen("tcp", cfg.Server.Address)
	if err != nil {
		log.Fatalw("Failed to bind server address", "address", cfg.Server.Address, "error", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting HomeHub server on %s", cfg.Server.Address)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// One-shot reconnection sweep, after the listener is up so manual
	// connects are never blocked behind it. No retry: users whose
	// reconnect fails use the manual connect flow.
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	go orchestrator.Run(sweepCtx)

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down HomeHub server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	// Tear down vendor sessions before the repositories go away.
	registry.CloseAll()

	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("HomeHub server stopped")
}
