package realtime

import (
	"context"
	"fmt"

	rediscommon "github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/common/redis"
	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Publisher 实时数据镜像发布器
// 每条通过校验的采样同时写入 Redis Streams，供推送型看板消费者订阅，
// 避免轮询查询API。镜像失败只记日志，绝不阻塞摄取主路径。
type Publisher struct {
	redisClient *redis.Client
	stream      string
	logger      *zap.Logger
}

// NewPublisher 创建实时发布器
func NewPublisher(redisClient *redis.Client, stream string, logger *zap.Logger) *Publisher {
	return &Publisher{
		redisClient: redisClient,
		stream:      stream,
		logger:      logger,
	}
}

// PublishReading 发布采样到 Redis Streams
func (p *Publisher) PublishReading(ctx context.Context, reading *models.Reading) error {
	streamID, err := rediscommon.PublishJSONToStream(ctx, p.redisClient, p.stream, reading)
	if err != nil {
		return fmt.Errorf("failed to publish reading to stream: %w", err)
	}

	p.logger.Debug("Published reading to Redis Streams",
		zap.String("stream", p.stream),
		zap.String("stream_id", streamID),
		zap.String("device_id", reading.DeviceID),
	)

	return nil
}

// PublishDeviceStatus 设备状态变化时同步镜像
func (p *Publisher) PublishDeviceStatus(ctx context.Context, status models.DeviceStatus) error {
	streamID, err := rediscommon.PublishJSONToStream(ctx, p.redisClient, p.stream, map[string]interface{}{
		"device_status": status,
	})
	if err != nil {
		return fmt.Errorf("failed to publish device status to stream: %w", err)
	}

	p.logger.Debug("Published device status to Redis Streams",
		zap.String("stream", p.stream),
		zap.String("stream_id", streamID),
	)

	return nil
}
