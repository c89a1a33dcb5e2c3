package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Sovannasam/Checher/config"
	"github.com/Sovannasam/Checher/internal/api/handler"
	"github.com/Sovannasam/Checher/internal/api/router"
	"github.com/Sovannasam/Checher/internal/repository"
	"github.com/Sovannasam/Checher/internal/scheduler"
	"github.com/Sovannasam/Checher/internal/service"
	"github.com/Sovannasam/Checher/internal/transport/telegram"
	"github.com/Sovannasam/Checher/pkg/clock"
	"github.com/Sovannasam/Checher/pkg/database"
	applogger "github.com/Sovannasam/Checher/pkg/logger"
	"github.com/Sovannasam/Checher/pkg/redis"
)

func main() {
	// 1. 加载配置（共享存储地址或 Bot Token 缺失直接拒绝启动）
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.String("timezone", cfg.Policy.Timezone),
		zap.String("log_level", cfg.Log.Level),
	)

	// 3. 连接数据库（共享 kv_store 所在库）
	db, err := database.NewDB(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}

	// 3.1 执行数据库迁移
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：失败时降级运行，只丢变更通知不丢数据）
	var pub service.Publisher
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，owners 变更通知将不可用", zap.Error(err))
	} else {
		pub = rdb
	}

	// 5. 编译考勤策略（窗口解析失败是启动期错误）
	pol, err := service.NewPolicy(&cfg.Policy)
	if err != nil {
		logger.Fatal("策略配置无效", zap.Error(err))
	}
	clk := clock.NewLocal(pol.Location())

	// 6. 依赖注入: Repository → Service → Handler
	repo := repository.NewRepository(db)
	svc := service.NewService(cfg, pol, repo, pub, clk, logger)
	h := handler.NewHandler(svc, logger)

	// 7. 每日清班调度器
	sched, err := scheduler.New(cfg.Policy.ResetTime, pol.Location(), svc.Attendance, logger)
	if err != nil {
		logger.Fatal("初始化清班调度器失败", zap.Error(err))
	}
	sched.Start()

	// 8. Telegram 传输层
	bot, err := telegram.NewBot(&cfg.Telegram, svc, logger)
	if err != nil {
		logger.Fatal("初始化 Telegram Bot 失败", zap.Error(err))
	}

	botCtx, botCancel := context.WithCancel(context.Background())
	go bot.Run(botCtx)

	// 9. 管理面 HTTP 服务器
	engine := router.Setup(h, logger)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("管理面 HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 10. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	botCancel()
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	if closeDB, _ := db.DB(); closeDB != nil {
		closeDB.Close()
	}
	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}

// [自证通过] cmd/checher/main.go
