package handler

import (
	"pix-gateway/internal/adapter/http/middleware"
	"pix-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	ChargeSvc          ports.ChargeService
	WalletSvc          ports.WalletService
	Reconciler         ports.ReconcilerService
	Acquirers          ports.AcquirerRepository
	EncSvc             ports.EncryptionService
	SigSvc             ports.SignatureService
	TokenSvc           ports.TokenService
	RateLimitStore     middleware.RateLimitStore // nil = rate limiting disabled
	RateLimitPerMinute int64
	MaxBodyBytes       int64
	HealthCheckers     []ports.HealthChecker
	Logger             zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(maxBody))

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	rules := middleware.DefaultRateLimitRules(deps.RateLimitPerMinute)

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil || deps.RateLimitPerMinute <= 0 {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// --- Acquirer callbacks (authenticated by body signature) ---
	webhookHandler := NewWebhookHandler(deps.Acquirers, deps.EncSvc, deps.SigSvc, deps.Reconciler, deps.Logger)
	r.POST("/webhooks/:acquirer", rl("webhooks"), webhookHandler.Receive)

	// --- JWT-authenticated merchant API ---
	v1 := r.Group("/api/v1", middleware.JWTAuth(deps.TokenSvc, deps.Logger))
	chargeHandler := NewChargeHandler(deps.ChargeSvc)
	walletHandler := NewWalletHandler(deps.WalletSvc)

	charges := v1.Group("/charges")
	{
		charges.POST("", rl("charges"), chargeHandler.CreateCharge)
		charges.GET("/:id", rl("reads"), chargeHandler.GetCharge)
	}

	deposits := v1.Group("/deposits")
	{
		deposits.POST("", rl("deposits"), chargeHandler.CreateDeposit)
		deposits.GET("/:id", rl("reads"), chargeHandler.GetDeposit)
		deposits.POST("/:id/cancel", rl("deposits"), chargeHandler.CancelDeposit)
	}

	v1.GET("/wallets/balance", rl("reads"), walletHandler.GetBalance)

	return r
}
