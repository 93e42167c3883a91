package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/aggregate"
	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/cache"
	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/common/database"
	mqttcommon "github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/common/mqtt"
	rediscommon "github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/common/redis"
	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/config"
	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/consumer"
	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/control"
	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/evaluator"
	httpapi "github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/http"
	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/models"
	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/realtime"
	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/report"
	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ClassGuardService 教室环境监测服务
// 组装摄取、存储、聚合、控制与 API 各组件并管理生命周期。
type ClassGuardService struct {
	config     *config.Config
	logger     *zap.Logger
	db         *sql.DB
	redis      *redis.Client
	mqttClient *mqttcommon.Client
	consumer   *consumer.MQTTConsumer
	dispatcher *control.Dispatcher
	httpServer *http.Server
}

// NewClassGuardService 创建服务
func NewClassGuardService(cfg *config.Config, logger *zap.Logger) (*ClassGuardService, error) {
	// 初始化数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 初始化Redis
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(context.Background(), redisClient); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// 初始化MQTT
	mqttClient, err := mqttcommon.NewClient(&cfg.MQTT, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	// 创建Repository与缓存
	readingsRepo := repository.NewPostgresReadingsRepository(db)
	latest := cache.NewLatestState()

	// 实时镜像
	rtPublisher := realtime.NewPublisher(redisClient, cfg.ClassGuard.Stream, logger)

	// 控制分发器
	dispatcher := control.NewDispatcher(
		mqttClient, latest, rtPublisher,
		cfg.ClassGuard.ControlTopic, cfg.ClassGuard.QoS, cfg.ClassGuard.AdminRole,
		logger,
	)

	// 舒适度评估器，可选联动蜂鸣器
	var buzzer evaluator.BuzzerFunc
	if cfg.ClassGuard.AutoBuzzer {
		buzzer = func(ctx context.Context, state bool) {
			if _, err := dispatcher.Issue(ctx, models.DeviceBuzzer, state, "classguard-core", cfg.ClassGuard.AdminRole); err != nil {
				logger.Error("Failed to trigger auto buzzer", zap.Error(err))
			}
		}
	}
	thresholds := evaluator.Thresholds{
		CO2:         cfg.Thresholds.CO2,
		Light:       cfg.Thresholds.Light,
		Temperature: cfg.Thresholds.Temperature,
		Humidity:    cfg.Thresholds.Humidity,
		Noise:       cfg.Thresholds.Noise,
	}
	eval := evaluator.NewEvaluator(thresholds, cfg.ClassGuard.WebhookURL, buzzer, logger)

	// 创建Consumer
	mqttConsumer := consumer.NewMQTTConsumer(
		mqttClient, readingsRepo, latest, eval, rtPublisher,
		cfg.ClassGuard.SensorTopic, cfg.ClassGuard.QoS,
		cfg.ClassGuard.AppendRetries, cfg.ClassGuard.AppendBackoff,
		logger,
	)

	// HTTP API
	engine := aggregate.NewEngine(readingsRepo)
	reports := report.NewGenerator(readingsRepo, logger)
	apiHandler := httpapi.NewAPIHandler(latest, readingsRepo, engine, dispatcher, reports, mqttConsumer, logger)
	router := httpapi.NewRouter(logger)
	router.RegisterAPIRoutes(apiHandler)

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: router,
	}

	return &ClassGuardService{
		config:     cfg,
		logger:     logger,
		db:         db,
		redis:      redisClient,
		mqttClient: mqttClient,
		consumer:   mqttConsumer,
		dispatcher: dispatcher,
		httpServer: httpServer,
	}, nil
}

// Start 启动服务，阻塞到 ctx 取消
func (s *ClassGuardService) Start(ctx context.Context) error {
	s.logger.Info("Starting classguard service components")

	// 启动HTTP服务
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()

	// 启动MQTT消费者（阻塞到 ctx 取消）
	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MQTT consumer: %w", err)
	}

	return nil
}

// Stop 停止服务
func (s *ClassGuardService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping classguard service")

	// 停止Consumer
	if s.consumer != nil {
		if err := s.consumer.Stop(ctx); err != nil {
			s.logger.Error("Error stopping consumer", zap.Error(err))
		}
	}

	// 关闭HTTP服务
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("Error shutting down HTTP server", zap.Error(err))
		}
	}

	// 断开MQTT
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	// 关闭Redis
	if s.redis != nil {
		rediscommon.Close(s.redis)
	}

	// 关闭数据库
	if s.db != nil {
		database.Close(s.db)
	}

	s.logger.Info("Classguard service stopped")
	return nil
}
