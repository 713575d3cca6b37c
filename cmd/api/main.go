package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aura-device-cloud/config"
	httpHandler "aura-device-cloud/internal/adapter/http/handler"
	pgStorage "aura-device-cloud/internal/adapter/storage/postgres"
	redisStorage "aura-device-cloud/internal/adapter/storage/redis"
	"aura-device-cloud/internal/core/domain"
	"aura-device-cloud/internal/core/ports"
	"aura-device-cloud/internal/service"
	"aura-device-cloud/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("aura-device-cloud", cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Aura Device Cloud")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	userRepo := pgStorage.NewUserRepo(pool)
	deviceRepo := pgStorage.NewDeviceRepo(pool)
	machineRepo := pgStorage.NewMachineRepo(pool)
	subRepo := pgStorage.NewSubscriptionRepo(pool)
	paymentRepo := pgStorage.NewPaymentRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	replayStore := redisStorage.NewReplayStore(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize core services
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	revpay := service.NewRevpaySignatureService()
	senangpay := service.NewSenangpaySignatureService()

	serialFmt, err := domain.NewSerialFormat(cfg.Serial.Prefix, cfg.Serial.Digits)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid serial format configuration")
	}

	// Initialize business services
	auditSvc := service.NewAuditService(auditRepo, log)
	authSvc := service.NewAuthService(userRepo, hashSvc, tokenSvc, auditSvc)
	deviceSvc := service.NewDeviceService(deviceRepo, encSvc)
	bindingSvc := service.NewBindingService(userRepo, deviceRepo, machineRepo, subRepo, transactor, auditSvc, serialFmt, time.Now, log)
	subSvc := service.NewSubscriptionService(subRepo, paymentRepo, transactor, revpay, senangpay, cfg.Gateway, auditSvc, time.Now, log)
	callbackSvc := service.NewPaymentService(paymentRepo, subRepo, transactor, revpay, senangpay, replayStore, cfg.Gateway, auditSvc, time.Now, log)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		DeviceSvc:      deviceSvc,
		BindingSvc:     bindingSvc,
		SubSvc:         subSvc,
		CallbackSvc:    callbackSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
