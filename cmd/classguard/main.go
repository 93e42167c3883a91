package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/common/logger"
	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/config"
	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "classguard-core")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting classguard service",
		zap.String("mqtt_broker", cfg.MQTT.Broker),
		zap.String("sensor_topic", cfg.ClassGuard.SensorTopic),
		zap.String("control_topic", cfg.ClassGuard.ControlTopic),
		zap.String("http_addr", cfg.HTTP.Addr),
	)

	// 创建服务
	classguardService, err := service.NewClassGuardService(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create classguard service", zap.Error(err))
	}

	// 启动服务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := classguardService.Start(ctx); err != nil {
			zapLogger.Fatal("Failed to start classguard service", zap.Error(err))
		}
	}()

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// 优雅关闭
	cancel()
	if err := classguardService.Stop(context.Background()); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}
