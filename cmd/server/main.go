package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/koopa0/system-design/rps-rooms/internal"
	"github.com/koopa0/system-design/rps-rooms/internal/config"
	"github.com/koopa0/system-design/rps-rooms/internal/events"
	"github.com/koopa0/system-design/rps-rooms/internal/stats"
)

func main() {
	// 解析命令行參數（優先於環境變數）
	var (
		envFile   = flag.String("env-file", ".env", ".env 檔案路徑")
		port      = flag.Int("port", 0, "服務器端口（預設讀取 PORT）")
		logLevel  = flag.String("log-level", "", "日誌級別 (debug, info, warn, error)")
		logFormat = flag.String("log-format", "", "日誌格式 (text, json)")
	)
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "載入設定失敗: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "設定無效: %v\n", err)
		os.Exit(1)
	}

	// 設置日誌
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, logger); err != nil {
		logger.Error("服務器異常結束", "error", err)
		os.Exit(1)
	}
	logger.Info("服務器已關閉")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recorder := newRecorder(ctx, cfg, logger)
	defer recorder.Close()

	publisher := newPublisher(cfg, logger)
	defer publisher.Close()

	// 創建房間註冊表與協調者
	registry := internal.NewRegistry(logger, internal.PendingPolicy(cfg.PendingPolicy))
	coordinator := internal.NewCoordinator(registry, logger,
		internal.WithRecorder(recorder),
		internal.WithPublisher(publisher),
	)

	// 創建 WebSocket Hub
	wsHub := internal.NewWebSocketHub(coordinator, logger, internal.HubOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		MaxMessageSize: cfg.MaxMessageSize,
	})

	// 創建 HTTP 處理器
	handler := internal.NewHandler(registry, coordinator, logger)

	// 設置路由
	mux := http.NewServeMux()
	mux.Handle("/", handler.Routes())
	mux.HandleFunc("GET /ws", wsHub.ServeWS)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("猜拳房間服務器啟動",
			"port", cfg.Port,
			"log_level", cfg.LogLevel,
			"pending_policy", cfg.PendingPolicy)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("服務器啟動失敗: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return coordinator.Run(gctx, cfg.EmptyRoomTTL, cfg.SweepInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("收到關閉信號，開始優雅關閉...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// 停止接受新連接（升級後的 WebSocket 不受 Shutdown 管理）
		err := server.Shutdown(shutdownCtx)

		// 關閉所有 WebSocket，觸發斷線清理
		wsHub.Stop()

		if err != nil {
			return fmt.Errorf("服務器關閉失敗: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// newRecorder 有設定 REDIS_ADDR 時使用 Redis，連不上則退回行程內計數器
func newRecorder(ctx context.Context, cfg *config.Config, logger *slog.Logger) stats.Recorder {
	if cfg.RedisAddr == "" {
		return stats.NewMemory()
	}

	recorder, err := stats.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		logger.Warn("Redis 連線失敗，改用行程內計數器", "error", err)
		return stats.NewMemory()
	}

	logger.Info("已連線到 Redis", "addr", cfg.RedisAddr)
	return recorder
}

// newPublisher 有設定 NATS_URL 時發佈領域事件
func newPublisher(cfg *config.Config, logger *slog.Logger) events.Publisher {
	if cfg.NATSURL == "" {
		return events.Nop{}
	}

	publisher, err := events.ConnectNATS(cfg.NATSURL)
	if err != nil {
		logger.Warn("NATS 連線失敗，不發佈領域事件", "error", err)
		return events.Nop{}
	}

	logger.Info("已連線到 NATS", "url", cfg.NATSURL)
	return publisher
}

// setupLogger 設置日誌
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: level == "debug", // debug 模式顯示源碼位置
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
