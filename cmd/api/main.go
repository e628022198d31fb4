package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"treasury-core/config"
	httpHandler "treasury-core/internal/adapter/http/handler"
	pgStorage "treasury-core/internal/adapter/storage/postgres"
	redisStorage "treasury-core/internal/adapter/storage/redis"
	"treasury-core/internal/core/ports"
	"treasury-core/internal/service"
	"treasury-core/pkg/logger"

	"github.com/robfig/cron/v3"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Treasury Core")

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
	walletRepo := pgStorage.NewWalletRepo(pool)
	otpRepo := pgStorage.NewOTPRepo(pool)
	approvalRepo := pgStorage.NewApprovalRepo(pool)
	whitelistRepo := pgStorage.NewWhitelistRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize core services
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	var deliverer ports.CodeDeliverer
	if cfg.Delivery.URL != "" {
		deliverer = service.NewHTTPCodeDeliverer(cfg.Delivery.URL, &http.Client{Timeout: cfg.Delivery.Timeout}, log)
	} else {
		log.Warn().Msg("No delivery URL configured, OTP codes go to the debug log only")
		deliverer = service.NewLogCodeDeliverer(log)
	}

	// Initialize business services
	auditSvc := service.NewAuditTrailService(auditRepo, log)
	otpSvc := service.NewOTPAuthorityService(otpRepo, hashSvc, deliverer, rateLimitStore, cfg.OTP, log)
	approvalSvc := service.NewApprovalCoordinatorService(approvalRepo, otpSvc, auditSvc, transactor, cfg.Approval, log)
	ledgerSvc := service.NewWalletLedgerService(walletRepo, auditSvc, transactor, log)
	ledgerSvc.RegisterTreasuryExecutors(approvalSvc)
	whitelistSvc := service.NewWhitelistRegistryService(whitelistRepo, walletRepo, otpSvc, auditSvc, cfg.Whitelist, log)
	withdrawalSvc := service.NewWithdrawalFlowService(ledgerSvc, whitelistSvc, otpSvc, auditSvc, log)
	adminSvc, err := service.NewAdminOverrideService(ledgerSvc, approvalSvc, otpSvc, walletRepo, auditSvc, transactor, cfg.Admin, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize admin override service")
	}

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Background sweeps: expire stale approvals, purge dead challenges
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.Sweep.ApprovalSpec, func() {
		n, err := approvalSvc.ExpireStale(context.Background())
		if err != nil {
			log.Error().Err(err).Msg("Approval expiry sweep failed")
			return
		}
		if n > 0 {
			log.Info().Int("expired", n).Msg("Approval expiry sweep done")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("Invalid approval sweep spec")
	}
	if _, err := sweeper.AddFunc(cfg.Sweep.OTPSpec, func() {
		n, err := otpSvc.CleanupExpired(context.Background())
		if err != nil {
			log.Error().Err(err).Msg("Challenge cleanup sweep failed")
			return
		}
		if n > 0 {
			log.Info().Int64("removed", n).Msg("Challenge cleanup sweep done")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("Invalid challenge sweep spec")
	}
	sweeper.Start()
	defer sweeper.Stop()

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		ApprovalSvc:    approvalSvc,
		LedgerSvc:      ledgerSvc,
		WhitelistSvc:   whitelistSvc,
		AdminSvc:       adminSvc,
		WithdrawalSvc:  withdrawalSvc,
		AuditSvc:       auditSvc,
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
