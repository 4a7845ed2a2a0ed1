// Package main provides the entrypoint for the MealDrop API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mealdrop/mealdrop/internal/api"
	"github.com/mealdrop/mealdrop/internal/api/handler"
	"github.com/mealdrop/mealdrop/internal/api/middleware"
	"github.com/mealdrop/mealdrop/internal/auth"
	"github.com/mealdrop/mealdrop/internal/database"
	"github.com/mealdrop/mealdrop/internal/device"
	"github.com/mealdrop/mealdrop/internal/notify"
	"github.com/mealdrop/mealdrop/internal/order"
	"github.com/mealdrop/mealdrop/internal/push"
	"github.com/mealdrop/mealdrop/internal/realtime"
	"github.com/mealdrop/mealdrop/internal/resilience"
	"github.com/mealdrop/mealdrop/internal/telemetry"
	"github.com/mealdrop/mealdrop/internal/user"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "mealdrop-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting MealDrop API")

	// Get configuration from environment
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	// Initialize JWT service (get signing key from environment)
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		jwtSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: jwtSigningKey,
	})

	// Initialize user repository and service
	userRepo := user.NewPostgresRepository(pool)
	userService := user.NewService(userRepo)
	log.Info().Msg("user service initialized")

	// Initialize device-token repository and service
	deviceRepo := device.NewPostgresRepository(pool)
	deviceService := device.NewService(deviceRepo, log)
	log.Info().Msg("device service initialized")

	// Optional redis presence mirror for multi-instance deployments
	var presence *realtime.Presence
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisClient, redisErr := realtime.NewRedisClient(ctx, redisURL)
		if redisErr != nil {
			log.Fatal().Err(redisErr).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		presence = realtime.NewPresence(redisClient, log, 2*time.Minute)
		log.Info().Msg("redis presence mirror initialized")
	} else {
		log.Warn().Msg("REDIS_URL not set - presence limited to this instance")
	}

	// Initialize the websocket hub
	hub := realtime.NewHub(log, presence)

	// Initialize Expo push provider and dispatcher
	healthRegistry := resilience.NewRegistry()
	expoProvider := push.NewExpoProvider(push.ExpoConfig{
		AccessToken: os.Getenv("EXPO_ACCESS_TOKEN"),
		Health:      healthRegistry,
	}, log)
	dispatcher := push.NewDispatcher(expoProvider, deviceService, 0, log)
	log.Info().Msg("push dispatcher initialized")

	// Initialize the notification emitter and order service
	emitter := notify.NewEmitter(hub, dispatcher, userService, log)
	orderRepo := order.NewPostgresRepository(pool)
	orderService := order.NewService(orderRepo, emitter, log)
	log.Info().Msg("order service initialized")

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		ServiceName:    serviceName,
		Metrics:        metrics,
		JWTService:     jwtService,
		UserService:    userService,
		DeviceService:  deviceService,
		OrderService:   orderService,
		Hub:            hub,
		PushDispatcher: dispatcher,
		ReadinessProbes: map[string]handler.ReadinessProbe{
			"database": pool.Ping,
			"push": func(context.Context) error {
				return healthRegistry.ProbeFor("expo-push")()
			},
		},
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	// Let in-flight push dispatches finish before the process exits.
	emitter.Flush()

	log.Info().Msg("server stopped")
}
