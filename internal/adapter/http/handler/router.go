package handler

import (
	"aura-device-cloud/internal/adapter/http/middleware"
	redisStore "aura-device-cloud/internal/adapter/storage/redis"
	"aura-device-cloud/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc        ports.AuthService
	DeviceSvc      ports.DeviceService
	BindingSvc     ports.BindingService
	SubSvc         ports.SubscriptionService
	CallbackSvc    ports.PaymentCallbackService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
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

	// Health check (deep: verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

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

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/register", rl("auth_register"), authHandler.Register)
		auth.POST("/login", rl("auth_login"), authHandler.Login)
	}

	subHandler := NewSubscriptionHandler(deps.SubSvc)
	v1.GET("/plans", rl("catalog"), subHandler.ListPlans)

	// Gateway callbacks: public, authenticated by signature.
	paymentHandler := NewPaymentHandler(deps.CallbackSvc)
	payments := v1.Group("/payments")
	{
		payments.POST("/revpay/callback", rl("callback"), paymentHandler.RevpayCallback)
		payments.POST("/senangpay/callback", rl("callback"), paymentHandler.SenangpayCallback)
	}

	// --- JWT-authenticated routes (mobile app) ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)

	deviceHandler := NewDeviceHandler(deps.DeviceSvc)
	devices := v1.Group("/devices", jwtAuth)
	{
		devices.POST("/register", rl("devices_register"), deviceHandler.Register)
	}

	machineHandler := NewMachineHandler(deps.BindingSvc)
	machines := v1.Group("/machines", jwtAuth)
	{
		machines.POST("/bind", rl("machines_bind"), machineHandler.Bind)
		machines.POST("/unbind", rl("machines_bind"), machineHandler.Unbind)
		machines.GET("", rl("catalog"), machineHandler.List)
	}

	subscriptions := v1.Group("/subscriptions", jwtAuth)
	{
		subscriptions.GET("", rl("catalog"), subHandler.ListSubscriptions)
		subscriptions.POST("/checkout", rl("checkout"), subHandler.Checkout)
	}

	return r
}
