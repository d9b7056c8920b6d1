package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/qs3c/mirror_server/config"
	"github.com/qs3c/mirror_server/internal/api"
	"github.com/qs3c/mirror_server/internal/api/handler"
	"github.com/qs3c/mirror_server/internal/database"
	"github.com/qs3c/mirror_server/internal/pkg/codes"
	"github.com/qs3c/mirror_server/internal/pkg/cron"
	"github.com/qs3c/mirror_server/internal/pkg/email"
	"github.com/qs3c/mirror_server/internal/pkg/llm"
	"github.com/qs3c/mirror_server/internal/pkg/logger"
	"github.com/qs3c/mirror_server/internal/pkg/metrics"
	"github.com/qs3c/mirror_server/internal/pkg/oauth"
	"github.com/qs3c/mirror_server/internal/pkg/oss"
	"github.com/qs3c/mirror_server/internal/pkg/payment"
	"github.com/qs3c/mirror_server/internal/pkg/pubsub"
	"github.com/qs3c/mirror_server/internal/pkg/queue"
	"github.com/qs3c/mirror_server/internal/pkg/ws"
	"github.com/qs3c/mirror_server/internal/repository"
	"github.com/qs3c/mirror_server/internal/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zlog.Sync()

	// 初始化数据库
	db, err := database.NewDB(&cfg.Database, cfg.Server.Mode == "debug")
	if err != nil {
		zlog.Fatal("failed to connect database", zap.Error(err))
	}
	zlog.Info("database connected", zap.String("driver", cfg.Database.Driver))

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		zlog.Fatal("failed to connect redis", zap.Error(err))
	}
	zlog.Info("redis connected")

	m := metrics.New()

	// 邮件：异步时写入队列，由 worker 发送
	var mailer email.Mailer = email.NewSMTPSender(&cfg.Email)
	if cfg.Email.Async {
		mailer = email.NewQueueMailer(queue.NewQueue(rdb, cfg.Queue.EmailQueue))
		zlog.Info("emails delivered through queue", zap.String("queue", cfg.Queue.EmailQueue))
	}

	llmClient, err := llm.NewAnthropicClient(cfg.LLM)
	if err != nil {
		zlog.Fatal("failed to init llm client", zap.Error(err))
	}

	// 支付和归档都是可选的
	var provider payment.Provider
	if cfg.Stripe.SecretKey != "" {
		provider = payment.NewStripeProvider(cfg.Stripe)
	} else {
		zlog.Warn("stripe not configured, payment endpoints disabled")
	}

	var archive service.ReceiptArchive
	if cfg.OSS.Enabled() {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			zlog.Warn("failed to init OSS client, receipts will not be archived", zap.Error(err))
		} else {
			archive = ossClient
			zlog.Info("receipt archive enabled", zap.String("bucket", cfg.OSS.BucketName))
		}
	}

	publisher := pubsub.NewPublisher(rdb)

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	dreamRepo := repository.NewDreamRepository(db)
	reflectionRepo := repository.NewReflectionRepository(db)
	evolutionRepo := repository.NewEvolutionRepository(db)
	giftRepo := repository.NewGiftRepository(db)
	receiptRepo := repository.NewReceiptRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)

	// 初始化 Service
	quotaService := service.NewQuotaService(userRepo, usageRepo, cfg, zlog)
	authService := service.NewAuthService(userRepo, quotaService, codes.NewStore(rdb), mailer, oauth.NewGithubOAuth(cfg.OAuth.Github), cfg, zlog)
	userService := service.NewUserService(userRepo, quotaService, cfg)
	dreamService := service.NewDreamService(dreamRepo, userRepo, cfg)
	reflectionService := service.NewReflectionService(reflectionRepo, dreamRepo, userRepo, quotaService, llmClient, publisher, m, cfg, zlog)
	evolutionService := service.NewEvolutionService(reflectionRepo, evolutionRepo, dreamRepo, userRepo, quotaService, llmClient, publisher, m, cfg, zlog)
	giftService := service.NewGiftService(giftRepo, userRepo, mailer, m, cfg, zlog)
	receiptService := service.NewReceiptService(receiptRepo, userRepo, archive, mailer, cfg, zlog)
	paymentService := service.NewPaymentService(userRepo, subRepo, giftService, receiptService, provider, mailer, m, cfg, zlog)
	maintenanceService := service.NewMaintenanceService(userRepo, subRepo, giftRepo, usageRepo, cfg, zlog)

	// 生成进度经 Redis 转发给 WebSocket 客户端，多实例部署时每个实例各自订阅
	hub := ws.NewHub(zlog)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := hub.Forward(ctx, pubsub.NewSubscriber(rdb)); err != nil && !errors.Is(err, context.Canceled) {
			zlog.Error("progress forwarding stopped", zap.Error(err))
		}
	}()

	// 初始化 Handler
	handlers := &api.Handlers{
		Auth:       handler.NewAuthHandler(authService),
		User:       handler.NewUserHandler(userService),
		Dream:      handler.NewDreamHandler(dreamService),
		Reflection: handler.NewReflectionHandler(reflectionService),
		Evolution:  handler.NewEvolutionHandler(evolutionService),
		Gift:       handler.NewGiftHandler(giftService, paymentService),
		Payment:    handler.NewPaymentHandler(paymentService, zlog),
		Receipt:    handler.NewReceiptHandler(receiptService),
		Admin:      handler.NewAdminHandler(maintenanceService, cfg.Maintenance.UsageRetentionMonths),
		WebSocket:  handler.NewWebSocketHandler(hub, cfg.CORS.AllowedOrigins, zlog),
	}

	engine := api.NewRouter(handlers, quotaService, userRepo, m, cfg, zlog).Setup()

	// 定时维护
	var scheduler *cron.Service
	if cfg.Maintenance.Enabled {
		scheduler = cron.NewService(maintenanceService, time.Duration(cfg.Maintenance.IntervalMinutes)*time.Minute, zlog)
		scheduler.Start()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("failed to start server", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	zlog.Info("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("server shutdown failed", zap.Error(err))
	}
	if n := hub.CloseAll(); n > 0 {
		zlog.Info("closed websocket connections", zap.Int("count", n))
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	cancel()
	if err := rdb.Close(); err != nil {
		zlog.Warn("failed to close redis", zap.Error(err))
	}
	zlog.Info("server shutdown complete")
}
