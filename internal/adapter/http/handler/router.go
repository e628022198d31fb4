package handler

import (
	"treasury-core/internal/adapter/http/middleware"
	"treasury-core/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	ApprovalSvc    ports.ApprovalService
	LedgerSvc      ports.LedgerService
	WhitelistSvc   ports.WhitelistService
	AdminSvc       ports.AdminService
	WithdrawalSvc  ports.WithdrawalService
	AuditSvc       ports.AuditService
	TokenSvc       ports.TokenService
	RateLimitStore ports.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep, verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// All API routes demand a valid bearer token. Tokens are issued out of
	// band by the operator tooling; there is no login endpoint here.
	auth := middleware.AdminAuth(deps.TokenSvc, false, deps.Logger)
	adminOnly := middleware.AdminAuth(deps.TokenSvc, true, deps.Logger)

	v1 := r.Group("/api/v1", auth)

	approvalHandler := NewApprovalHandler(deps.ApprovalSvc)
	approvals := v1.Group("/approvals")
	{
		approvals.POST("", rl("approvals"), approvalHandler.Initiate)
		approvals.POST("/:id/approve", rl("approvals"), approvalHandler.Approve)
		approvals.POST("/:id/reject", rl("approvals"), approvalHandler.Reject)
		approvals.GET("/:id", rl("reads"), approvalHandler.Get)
	}

	walletHandler := NewWalletHandler(deps.LedgerSvc, deps.WithdrawalSvc)
	whitelistHandler := NewWhitelistHandler(deps.WhitelistSvc)
	wallets := v1.Group("/wallets")
	{
		wallets.POST("", rl("mutations"), walletHandler.CreateWallet)
		wallets.GET("/:id", rl("reads"), walletHandler.GetWallet)
		wallets.POST("/:id/debit", rl("mutations"), walletHandler.Debit)
		wallets.POST("/:id/credit", rl("mutations"), walletHandler.Credit)
		wallets.POST("/:id/withdrawals", rl("withdrawals"), walletHandler.Withdraw)
		wallets.POST("/:id/whitelist", rl("whitelist"), whitelistHandler.Add)
		wallets.GET("/:id/whitelist", rl("reads"), whitelistHandler.List)
	}

	whitelist := v1.Group("/whitelist")
	{
		whitelist.POST("/:id/verify", rl("whitelist"), whitelistHandler.Verify)
		whitelist.GET("/:id/eligibility", rl("reads"), whitelistHandler.Eligibility)
		whitelist.POST("/:id/removal-request", rl("whitelist"), whitelistHandler.RequestRemoval)
	}

	// Privileged overrides demand the admin role on top of a valid token.
	adminHandler := NewAdminHandler(deps.AdminSvc, deps.WhitelistSvc, deps.AuditSvc)
	admin := r.Group("/api/v1/admin", adminOnly)
	{
		admin.POST("/wallets/:id/adjust", rl("admin"), adminHandler.AdjustBalance)
		admin.PUT("/wallets/:id/status", rl("admin"), adminHandler.SetWalletStatus)
		admin.POST("/whitelist/:id/finalize-removal", rl("admin"), adminHandler.FinalizeRemoval)
		admin.GET("/audit", rl("reads"), adminHandler.QueryAudit)
	}

	return r
}
