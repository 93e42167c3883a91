package control

import (
	"context"
	"fmt"
	"time"

	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/cache"
	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/codec"
	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// publishTimeout 后台发布的超时上限
const publishTimeout = 10 * time.Second

// Publisher control 主题发布接口
type Publisher interface {
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error
}

// StatusMirror 设备状态镜像接口（可选，nil 表示不镜像）
type StatusMirror interface {
	PublishDeviceStatus(ctx context.Context, status models.DeviceStatus) error
}

// Dispatcher 控制指令分发器
// 校验在闭集内的设备名和操作者角色，乐观更新缓存后发布指令；
// 发布不等待设备回执（回执由订阅者在 sensor 主题上异步对账）。
// 多个操作者可并发调用 Issue，除缓存原子更新外无互斥要求。
type Dispatcher struct {
	publisher Publisher
	cache     *cache.LatestState
	mirror    StatusMirror
	topic     string
	qos       byte
	adminRole string
	logger    *zap.Logger
}

// NewDispatcher 创建控制指令分发器
// adminRole 为空时默认 "admin"。
func NewDispatcher(publisher Publisher, latest *cache.LatestState, mirror StatusMirror, topic string, qos byte, adminRole string, logger *zap.Logger) *Dispatcher {
	if adminRole == "" {
		adminRole = "admin"
	}
	return &Dispatcher{
		publisher: publisher,
		cache:     latest,
		mirror:    mirror,
		topic:     topic,
		qos:       qos,
		adminRole: adminRole,
		logger:    logger,
	}
}

// Issue 下发设备控制指令
// 设备名不在 {fan,light,buzzer} 返回 ErrInvalidDevice；
// 角色非特权返回 ErrUnauthorized；角色本身由外部认证层注入，
// 这里只做能力校验。成功时立即返回，发布在后台完成。
func (d *Dispatcher) Issue(ctx context.Context, device string, state bool, actorID, actorRole string) (*models.ControlCommand, error) {
	if !models.IsValidDevice(device) {
		return nil, fmt.Errorf("device %q: %w", device, models.ErrInvalidDevice)
	}
	if actorRole != d.adminRole {
		return nil, fmt.Errorf("role %q: %w", actorRole, models.ErrUnauthorized)
	}

	cmd := models.ControlCommand{
		ID:       uuid.NewString(),
		Device:   device,
		State:    state,
		IssuedAt: time.Now(),
		IssuedBy: actorID,
	}

	// 乐观更新：假定设备会执行，看板立即反映新状态
	if err := d.cache.SetDeviceState(device, state); err != nil {
		return nil, err
	}

	payload, err := codec.EncodeCommand(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to encode command: %w", err)
	}

	d.logger.Info("Issuing control command",
		zap.String("command_id", cmd.ID),
		zap.String("device", device),
		zap.Bool("state", state),
		zap.String("issued_by", actorID),
	)

	// fire-and-forget：发布与镜像脱离调用方上下文，失败只记日志
	go d.publish(cmd, payload)

	return &cmd, nil
}

func (d *Dispatcher) publish(cmd models.ControlCommand, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := d.publisher.Publish(ctx, d.topic, d.qos, false, payload); err != nil {
		d.logger.Error("Failed to publish control command",
			zap.String("command_id", cmd.ID),
			zap.String("device", cmd.Device),
			zap.Error(err),
		)
		return
	}

	if d.mirror != nil {
		_, status := d.cache.Get()
		if err := d.mirror.PublishDeviceStatus(ctx, status); err != nil {
			d.logger.Warn("Failed to mirror device status", zap.Error(err))
		}
	}
}
