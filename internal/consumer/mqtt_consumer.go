package consumer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/cache"
	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/codec"
	mqttcommon "github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/common/mqtt"
	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/evaluator"
	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/models"
	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/repository"

	"go.uber.org/zap"
)

// State 订阅者连接状态机：Disconnected -> Connecting -> Subscribed
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	}
	return "disconnected"
}

// Stats 摄取计数器快照
type Stats struct {
	Received     uint64 `json:"received"`
	DecodeFailed uint64 `json:"decode_failed"`
	Stored       uint64 `json:"stored"`
	StoreFailed  uint64 `json:"store_failed"` // 重试耗尽后丢弃的条数
	AcksApplied  uint64 `json:"acks_applied"`
}

// Subscriber MQTT订阅端接口
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
	SetConnectionHandlers(onConnect, onLost mqttcommon.ConnectionHandler)
}

// ReadingMirror 实时数据镜像接口（可选，nil 表示不镜像）
type ReadingMirror interface {
	PublishReading(ctx context.Context, reading *models.Reading) error
}

// MQTTConsumer 传感器数据MQTT消费者
// 唯一的缓存写入者和存储追加者；持久化降级时缓存照常更新，
// 看板保持实时（可用性优先于完整性，宁可留历史空洞也不停摄取）。
type MQTTConsumer struct {
	mqttClient Subscriber
	repo       repository.ReadingsRepository
	cache      *cache.LatestState
	eval       *evaluator.Evaluator
	mirror     ReadingMirror

	topic         string
	qos           byte
	appendRetries int           // 存储失败的有限重试次数
	appendBackoff time.Duration // 首次重试等待，逐次翻倍

	logger *zap.Logger

	state int32 // atomic State

	received     uint64
	decodeFailed uint64
	stored       uint64
	storeFailed  uint64
	acksApplied  uint64

	runCtx context.Context
}

// NewMQTTConsumer 创建MQTT消费者
// eval 与 mirror 均可为 nil。
func NewMQTTConsumer(
	mqttClient Subscriber,
	repo repository.ReadingsRepository,
	latest *cache.LatestState,
	eval *evaluator.Evaluator,
	mirror ReadingMirror,
	topic string,
	qos byte,
	appendRetries int,
	appendBackoff time.Duration,
	logger *zap.Logger,
) *MQTTConsumer {
	if appendRetries <= 0 {
		appendRetries = 3
	}
	if appendBackoff <= 0 {
		appendBackoff = 500 * time.Millisecond
	}
	return &MQTTConsumer{
		mqttClient:    mqttClient,
		repo:          repo,
		cache:         latest,
		eval:          eval,
		mirror:        mirror,
		topic:         topic,
		qos:           qos,
		appendRetries: appendRetries,
		appendBackoff: appendBackoff,
		logger:        logger,
	}
}

// Start 启动消费者，阻塞到 ctx 取消
func (c *MQTTConsumer) Start(ctx context.Context) error {
	if c.topic == "" {
		return fmt.Errorf("sensor MQTT topic not configured")
	}

	c.runCtx = ctx
	c.setState(StateConnecting)

	// 传输层掉线后自动重连，这里只跟踪状态机
	c.mqttClient.SetConnectionHandlers(
		func() { c.setState(StateSubscribed) },
		func() { c.setState(StateConnecting) },
	)

	if err := c.mqttClient.Subscribe(c.topic, c.qos, c.handleMessage); err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("failed to subscribe to sensor topic: %w", err)
	}
	c.setState(StateSubscribed)

	c.logger.Info("MQTT consumer started",
		zap.String("topic", c.topic),
		zap.Uint8("qos", c.qos),
	)

	// 等待上下文取消
	<-ctx.Done()
	return nil
}

// Stop 停止消费者
func (c *MQTTConsumer) Stop(ctx context.Context) error {
	if c.topic != "" {
		if err := c.mqttClient.Unsubscribe(c.topic); err != nil {
			c.logger.Error("Failed to unsubscribe", zap.Error(err))
		}
	}
	c.setState(StateDisconnected)

	c.logger.Info("MQTT consumer stopped")
	return nil
}

// handleMessage 处理单条 sensor 主题消息
// 一条坏消息绝不中断订阅循环：解码失败记日志丢弃后继续。
func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	atomic.AddUint64(&c.received, 1)

	// 设备状态回执：确认/纠正缓存里的开关状态
	if ack, ok := codec.DecodeAck(payload); ok {
		c.cache.ApplyAck(ack)
		atomic.AddUint64(&c.acksApplied, 1)
		c.logger.Debug("Applied device ack", zap.Any("states", ack.States))
		return nil
	}

	reading, err := codec.DecodeReading(payload, time.Now())
	if err != nil {
		atomic.AddUint64(&c.decodeFailed, 1)
		c.logger.Error("Failed to decode sensor payload",
			zap.String("topic", topic),
			zap.Int("payload_size", len(payload)),
			zap.Error(err),
		)
		return err
	}

	ctx := c.runCtx
	if ctx == nil {
		ctx = context.Background()
	}

	// 服务端补算评分并评估阈值告警
	if c.eval != nil {
		c.eval.Apply(ctx, &reading)
	}

	// 缓存无条件更新，不依赖存储结果
	c.cache.SetReading(reading)

	if err := c.appendWithRetry(ctx, &reading); err != nil {
		// 重试耗尽：丢弃该条采样，摄取继续
		atomic.AddUint64(&c.storeFailed, 1)
		c.logger.Error("Dropped reading after store retries exhausted",
			zap.String("device_id", reading.DeviceID),
			zap.Time("timestamp", reading.Timestamp),
			zap.Error(err),
		)
	} else {
		atomic.AddUint64(&c.stored, 1)
	}

	// 实时镜像失败只记日志
	if c.mirror != nil {
		if err := c.mirror.PublishReading(ctx, &reading); err != nil {
			c.logger.Warn("Failed to mirror reading to realtime stream", zap.Error(err))
		}
	}

	return nil
}

// appendWithRetry 有限次退避重试的存储写入
func (c *MQTTConsumer) appendWithRetry(ctx context.Context, reading *models.Reading) error {
	backoff := c.appendBackoff

	var lastErr error
	for attempt := 1; attempt <= c.appendRetries; attempt++ {
		if _, err := c.repo.Append(ctx, reading); err != nil {
			lastErr = err
			c.logger.Warn("Failed to append reading, will retry",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.appendRetries),
				zap.Duration("backoff", backoff),
				zap.Error(err),
			)

			if attempt == c.appendRetries {
				break
			}

			select {
			case <-ctx.Done():
				return fmt.Errorf("append cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
			continue
		}
		return nil
	}

	return fmt.Errorf("append failed after %d attempts: %w", c.appendRetries, lastErr)
}

// CurrentState 返回当前连接状态
func (c *MQTTConsumer) CurrentState() State {
	return State(atomic.LoadInt32(&c.state))
}

func (c *MQTTConsumer) setState(s State) {
	old := State(atomic.SwapInt32(&c.state, int32(s)))
	if old != s {
		c.logger.Info("Subscriber state changed",
			zap.String("from", old.String()),
			zap.String("to", s.String()),
		)
	}
}

// Snapshot 返回计数器快照
func (c *MQTTConsumer) Snapshot() Stats {
	return Stats{
		Received:     atomic.LoadUint64(&c.received),
		DecodeFailed: atomic.LoadUint64(&c.decodeFailed),
		Stored:       atomic.LoadUint64(&c.stored),
		StoreFailed:  atomic.LoadUint64(&c.storeFailed),
		AcksApplied:  atomic.LoadUint64(&c.acksApplied),
	}
}
