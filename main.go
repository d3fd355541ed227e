package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"livereport-service/commentary"
	"livereport-service/config"
	"livereport-service/database"
	"livereport-service/discord"
	"livereport-service/espn"
	"livereport-service/logger"
	"livereport-service/pkg/breaker"
	"livereport-service/pkg/common"
	"livereport-service/services"
	"livereport-service/web"
)

func main() {
	// .env 不存在时静默跳过，生产环境直接用环境变量
	if err := godotenv.Load(); err == nil {
		logger.Println("[Main] Loaded configuration from .env")
	}

	cfg := config.Load()

	logger.Println("========================================")
	logger.Println("⚽ Live Match Reporting Service")
	logger.Printf("   Team: %s (%s)", cfg.TeamName, cfg.TeamID)
	logger.Printf("   Competition: %s", cfg.Competition)
	logger.Printf("   Environment: %s", cfg.Environment)
	logger.Println("========================================")

	// 数据库
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("[Main] ❌ Database connection failed: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		logger.Fatalf("[Main] ❌ Database migration failed: %v", err)
	}
	logger.Println("[Main] ✅ Database ready")

	// 每个外部依赖一个独立的熔断器
	feedBreaker := breaker.New(breaker.Config{
		Name:             "espn",
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		RecoveryTimeout:  cfg.BreakerRecoveryTimeout,
		AccountableErr:   common.ErrFeedUnavailable,
	})
	discordBreaker := breaker.New(breaker.Config{
		Name:             "discord",
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		RecoveryTimeout:  cfg.BreakerRecoveryTimeout,
		AccountableErr:   common.ErrPublishFailed,
	})
	commentaryBreaker := breaker.New(breaker.Config{
		Name:             "openai",
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		RecoveryTimeout:  cfg.BreakerRecoveryTimeout,
	})
	breakers := []*breaker.Breaker{feedBreaker, discordBreaker, commentaryBreaker}

	// 外部客户端
	feedClient := espn.NewClient(espn.Config{
		BaseURL:     cfg.ESPNBaseURL,
		Timeout:     cfg.ESPNTimeout,
		CacheTTL:    cfg.ESPNCacheTTL,
		MaxAttempts: cfg.ESPNMaxAttempts,
	}, feedBreaker)
	defer feedClient.Close()

	discordClient := discord.NewClient(discord.Config{
		Token:   cfg.DiscordToken,
		BaseURL: cfg.DiscordBaseURL,
		Timeout: cfg.DiscordTimeout,
	}, discordBreaker)

	generator := commentary.NewGenerator(commentary.Config{
		APIKey:           cfg.OpenAIKey,
		Model:            cfg.OpenAIModel,
		BaseURL:          cfg.OpenAIBaseURL,
		Timeout:          cfg.OpenAITimeout,
		Enabled:          cfg.EnableAICommentary,
		PromptAPIBaseURL: cfg.PromptAPIBaseURL,
		TeamID:           cfg.TeamID,
		TeamName:         cfg.TeamName,
		RivalNames:       cfg.RivalNames,
	}, commentaryBreaker)

	// 更新扇出：进程内订阅者 + 统计追踪 + 可选AMQP
	memBroker := services.NewInMemoryBroker()
	stats := services.NewStatsTracker()
	downstreams := []services.UpdateBroker{memBroker, stats}

	if cfg.AMQPURL != "" {
		amqpPublisher, err := services.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Errorf("[Main] ⚠️ AMQP unavailable, continuing without it: %v", err)
		} else {
			downstreams = append(downstreams, amqpPublisher)
		}
	}
	broker := services.NewFanoutBroker(downstreams...)
	defer broker.Close()

	// WebSocket Hub
	hub := web.NewHub()
	go hub.Run()
	go hub.Pump(memBroker.Subscribe())

	// 会话与监控
	store := services.NewSessionStore(db)
	orchestrator := services.NewOrchestrator(store, feedClient, discordClient, generator, broker, services.OrchestratorConfig{
		MaxErrorCount: cfg.MaxErrorCount,
		PostPause:     cfg.PostPause,
		UseThreads:    true,
	})
	supervisor := services.NewSupervisor(store, orchestrator, cfg.PollInterval)
	supervisor.SetStatsTracker(stats)

	if err := supervisor.ResumeAll(); err != nil {
		logger.Errorf("[Main] ⚠️ Session resume failed: %v", err)
	}

	// 健康检查与数据清理
	health := services.NewHealthChecker(db,
		func(ctx context.Context) bool { return feedClient.HealthCheck(ctx, cfg.Competition) },
		func(ctx context.Context) bool { return discordClient.HealthCheck(ctx) },
		func(ctx context.Context) bool { return generator.HealthCheck(ctx) },
		breakers, time.Minute)
	health.Start()
	defer health.Stop()

	cleanup := services.NewCleanupService(store, services.CleanupConfig{
		SessionRetention: cfg.SessionRetention,
		Interval:         cfg.CleanupInterval,
	})
	cleanup.Start()
	defer cleanup.Stop()

	statsStop := make(chan struct{})
	stats.StartReporting(statsStop, 10*time.Minute)
	defer close(statsStop)

	// HTTP服务
	server := web.NewServer(cfg, db, hub, supervisor, store, stats, health, breakers)
	go func() {
		logger.Printf("[Main] 🌐 HTTP server listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Errorf("[Main] HTTP server stopped: %v", err)
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Println("[Main] Shutting down...")
	server.Stop()
	supervisor.Shutdown()
	logger.Println("[Main] Shutdown complete. Sessions remain active for next start.")
}
