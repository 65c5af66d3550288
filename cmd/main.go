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

	"ProgressSync/internal/adapter"
	_ "ProgressSync/internal/adapter/codeforces"
	"ProgressSync/internal/api"
	"ProgressSync/internal/cache"
	"ProgressSync/internal/config"
	"ProgressSync/internal/metrics"
	"ProgressSync/internal/notify"
	"ProgressSync/internal/repository"
	"ProgressSync/internal/service"
	"ProgressSync/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func newLogger(cfg *config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func main() {
	// 1. 加载配置文件
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("加载配置文件失败: %v", err)
	}

	// 2. 初始化日志
	logrusLogger := newLogger(&cfg.Log)
	logrusLogger.Info("配置文件加载成功")

	// 3. 连接数据库并迁移表结构（postgres 库不存在时自动创建）
	db, err := repository.Open(&cfg.Database, logrusLogger)
	if err != nil {
		logrusLogger.Fatalf("初始化数据库失败: %v", err)
	}

	// 4. 指标与评测平台客户端
	rec := metrics.New(metrics.WithGoCollectors())
	judgeClient, err := adapter.NewJudgeClient(&cfg.Judge, logrusLogger)
	if err != nil {
		logrusLogger.Fatalf("初始化评测平台客户端失败: %v", err)
	}
	judgeClient = metrics.WrapJudge(judgeClient, rec)

	// 5. 资料缓存：redis 不可用时退回进程内缓存
	profileCache, closeCache, err := cache.New(&cfg.Redis, logrusLogger)
	if err != nil {
		logrusLogger.WithError(err).Warn("Redis 不可用，使用进程内资料缓存")
		profileCache, closeCache = cache.NewMemoryProfileCache(cfg.Redis.ProfileTTL), func() error { return nil }
	}

	// 6. 后台任务池
	pool := worker.New(
		worker.WithWorkers(cfg.Sync.Workers),
		worker.WithQueueSize(cfg.Sync.QueueSize),
		worker.WithHistory(cfg.Sync.JobHistory),
		worker.WithLogger(logrusLogger),
		worker.WithMetrics(rec),
	)
	pool.Start()

	// 7. 仓储与服务
	students := repository.NewStudentRepository(db)
	records := repository.NewRecordRepository(db)

	syncSvc := service.NewSyncService(judgeClient, students, records, cfg, rec, logrusLogger)
	dispatcher := service.NewJobDispatcher(pool, syncSvc, logrusLogger)
	reminderSvc := service.NewReminderService(students, notify.New(&cfg.SMTP, logrusLogger), &cfg.Reminder, rec, logrusLogger)
	if cfg.Reminder.Enabled {
		syncSvc.OnBatchDone(reminderSvc.AfterBatch)
	}
	studentSvc := service.NewStudentService(students, records, dispatcher, logrusLogger)
	verifySvc := service.NewVerifyService(judgeClient, profileCache, logrusLogger)
	analyticsSvc := service.NewAnalyticsService(repository.NewAnalyticsRepository(db), logrusLogger)

	// 8. 定时批量同步
	var scheduler *service.Scheduler
	if cfg.Sync.Enabled {
		scheduler = service.NewScheduler(dispatcher, cfg.Sync.Interval, cfg.Sync.RunOnStart, logrusLogger)
		scheduler.Start()
	}

	// 9. 注册API路由
	gin.SetMode(cfg.Server.Mode)
	r := api.NewRouter(api.RouterConfig{
		Server:     cfg.Server,
		Logger:     logrusLogger,
		Metrics:    rec,
		Students:   api.NewStudentHandler(studentSvc, logrusLogger),
		Sync:       api.NewSyncHandler(syncSvc, dispatcher, logrusLogger),
		Codeforces: api.NewCodeforcesHandler(verifySvc, logrusLogger),
		Analytics:  api.NewAnalyticsHandler(analyticsSvc, reminderSvc, logrusLogger),
		Health:     api.NewHealthHandler(db, logrusLogger),
	})
	logrusLogger.Infof("Gin运行模式: %s", cfg.Server.Mode)

	// 10. 启动服务（从配置读取端口）
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logrusLogger.Infof("服务启动成功，端口：%d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrusLogger.Fatalf("启动服务失败: %v", err)
		}
	}()

	// 11. 优雅退出：先停调度，再停 HTTP，最后等后台任务收尾
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logrusLogger.WithField("signal", sig.String()).Info("收到退出信号，开始关闭服务")

	if scheduler != nil {
		scheduler.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrusLogger.WithError(err).Error("HTTP 服务关闭失败")
	}
	if err := pool.Shutdown(ctx); err != nil {
		logrusLogger.WithError(err).Warn("后台任务未在超时内结束")
	}
	if err := closeCache(); err != nil {
		logrusLogger.WithError(err).Warn("关闭缓存连接失败")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logrusLogger.Info("服务已退出")
}
