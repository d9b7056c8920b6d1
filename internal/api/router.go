package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/mirror_server/config"
	"github.com/qs3c/mirror_server/internal/api/handler"
	"github.com/qs3c/mirror_server/internal/api/middleware"
	"github.com/qs3c/mirror_server/internal/pkg/metrics"
	"github.com/qs3c/mirror_server/internal/repository"
	"github.com/qs3c/mirror_server/internal/service"
)

// Handlers 路由用到的全部处理器
type Handlers struct {
	Auth       *handler.AuthHandler
	User       *handler.UserHandler
	Dream      *handler.DreamHandler
	Reflection *handler.ReflectionHandler
	Evolution  *handler.EvolutionHandler
	Gift       *handler.GiftHandler
	Payment    *handler.PaymentHandler
	Receipt    *handler.ReceiptHandler
	Admin      *handler.AdminHandler
	WebSocket  *handler.WebSocketHandler
}

type Router struct {
	handlers *Handlers
	quota    *service.QuotaService
	userRepo *repository.UserRepository
	metrics  *metrics.Metrics
	cfg      *config.Config
	log      *zap.Logger
}

func NewRouter(
	handlers *Handlers,
	quota *service.QuotaService,
	userRepo *repository.UserRepository,
	m *metrics.Metrics,
	cfg *config.Config,
	log *zap.Logger,
) *Router {
	return &Router{
		handlers: handlers,
		quota:    quota,
		userRepo: userRepo,
		metrics:  m,
		cfg:      cfg,
		log:      log,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	h := r.handlers
	secret := r.cfg.JWT.Secret

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery(r.log))
	engine.Use(middleware.Logger(r.log))
	engine.Use(middleware.Metrics(r.metrics))
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(r.metrics.Handler()))

	api := engine.Group("/api/v1")
	{
		// WebSocket
		api.GET("/ws", middleware.WebSocketAuth(secret), h.WebSocket.Handle)

		// 公开接口
		auth := api.Group("/auth")
		{
			auth.POST("/register", h.Auth.Register)
			auth.POST("/login", h.Auth.Login)
			auth.POST("/verify-email", h.Auth.VerifyEmail)
			auth.POST("/forgot-password", h.Auth.ForgotPassword)
			auth.POST("/reset-password", h.Auth.ResetPassword)
			auth.GET("/github", h.Auth.GithubAuth)
			auth.GET("/github/callback", h.Auth.GithubCallback)
		}
		api.GET("/plans", h.User.Plans)
		api.GET("/gifts/:code", h.Gift.Get)
		api.POST("/gifts/checkout", middleware.OptionalAuth(secret), h.Gift.Checkout)

		// 支付回调，签名校验代替认证
		api.POST("/payments/webhook", h.Payment.Webhook)

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(secret))
		{
			authenticated.POST("/auth/resend-verification", h.Auth.ResendVerification)

			user := authenticated.Group("/user")
			{
				user.GET("/profile", h.User.GetProfile)
				user.PUT("/profile", h.User.UpdateProfile)
				user.GET("/usage", h.User.GetUsage)
				user.GET("/usage/history", h.User.UsageHistory)
				user.PUT("/password", h.Auth.ChangePassword)
				user.DELETE("/account", h.Auth.DeleteAccount)
			}

			dreams := authenticated.Group("/dreams")
			{
				dreams.POST("", h.Dream.Create)
				dreams.GET("", h.Dream.List)
				dreams.GET("/:id", h.Dream.Get)
				dreams.PUT("/:id", h.Dream.Update)
				dreams.PATCH("/:id/status", h.Dream.UpdateStatus)
				dreams.DELETE("/:id", h.Dream.Delete)
			}

			reflections := authenticated.Group("/reflections")
			{
				reflections.POST("", middleware.QuotaCheck(r.quota, r.metrics), h.Reflection.Create)
				reflections.GET("", h.Reflection.List)
				reflections.GET("/:id", h.Reflection.Get)
				reflections.PUT("/:id", h.Reflection.Update)
				reflections.POST("/:id/rating", h.Reflection.Rate)
				reflections.DELETE("/:id", h.Reflection.Delete)
			}

			evolution := authenticated.Group("/evolution")
			{
				evolution.GET("/eligibility", h.Evolution.Eligibility)
				evolution.POST("", h.Evolution.Create)
				evolution.GET("", h.Evolution.List)
				evolution.GET("/:id", h.Evolution.Get)
			}

			authenticated.POST("/gifts/redeem", h.Gift.Redeem)
			authenticated.GET("/gifts/sent", h.Gift.ListSent)

			authenticated.POST("/payments/checkout", h.Payment.Checkout)
			authenticated.POST("/payments/portal", h.Payment.Portal)

			receipts := authenticated.Group("/receipts")
			{
				receipts.GET("", h.Receipt.List)
				receipts.GET("/:id", h.Receipt.Get)
				receipts.GET("/:id/html", h.Receipt.HTML)
			}

			admin := authenticated.Group("/admin")
			admin.Use(middleware.AdminOnly(r.userRepo))
			{
				admin.POST("/gifts", h.Gift.AdminCreate)
				admin.POST("/maintenance", h.Admin.RunMaintenance)
			}
		}
	}

	return engine
}
