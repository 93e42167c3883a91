package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/common/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MessageHandler 消息处理函数类型
type MessageHandler func(topic string, payload []byte) error

// ConnectionHandler 连接状态回调（上线/掉线通知）
type ConnectionHandler func()

// subscription 已注册的订阅，重连后需要重新建立
type subscription struct {
	qos     byte
	handler MessageHandler
}

// Client MQTT客户端封装
// 掉线后自动重连（指数退避，上限60秒），重连成功后重新订阅全部主题。
// Broker会话不假定持久（CleanSession=true），订阅每次重连都重新建立。
type Client struct {
	client mqtt.Client
	config *config.MQTTConfig
	logger *zap.Logger

	mu   sync.Mutex
	subs map[string]subscription

	onConnect ConnectionHandler
	onLost    ConnectionHandler
}

// NewClient 创建MQTT客户端
func NewClient(cfg *config.MQTTConfig, logger *zap.Logger) (*Client, error) {
	c := &Client{
		config: cfg,
		logger: logger,
		subs:   make(map[string]subscription),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(1 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		c.logger.Info("Connected to MQTT broker", zap.String("broker", cfg.Broker))
		// 重连后重新订阅
		c.resubscribe()
		onConnect, _ := c.connectionHandlers()
		if onConnect != nil {
			onConnect()
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Warn("MQTT connection lost, reconnecting with backoff", zap.Error(err))
		_, onLost := c.connectionHandlers()
		if onLost != nil {
			onLost()
		}
	})

	c.client = mqtt.NewClient(opts)

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return c, nil
}

// SetConnectionHandlers 注册连接状态回调（在Subscribe之前调用）
func (c *Client) SetConnectionHandlers(onConnect, onLost ConnectionHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = onConnect
	c.onLost = onLost
}

// connectionHandlers 加锁快照回调，paho 回调线程读取时不与注册竞争
func (c *Client) connectionHandlers() (ConnectionHandler, ConnectionHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onConnect, c.onLost
}

// Subscribe 订阅主题
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	return c.subscribe(topic, qos, handler)
}

func (c *Client) subscribe(topic string, qos byte, handler MessageHandler) error {
	if token := c.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			// 记录错误，但不中断处理
			c.logger.Error("Error handling MQTT message",
				zap.String("topic", msg.Topic()),
				zap.Error(err),
			)
		}
	}); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}

	return nil
}

// resubscribe 重连后重新建立全部订阅
func (c *Client) resubscribe() {
	c.mu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for topic, sub := range c.subs {
		subs[topic] = sub
	}
	c.mu.Unlock()

	for topic, sub := range subs {
		if err := c.subscribe(topic, sub.qos, sub.handler); err != nil {
			c.logger.Error("Failed to resubscribe after reconnect",
				zap.String("topic", topic),
				zap.Error(err),
			)
		}
	}
}

// Publish 发布消息，支持上下文取消
func (c *Client) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)

	select {
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("publish to topic %s cancelled: %w", topic, ctx.Err())
	}
}

// Unsubscribe 取消订阅
func (c *Client) Unsubscribe(topics ...string) error {
	c.mu.Lock()
	for _, topic := range topics {
		delete(c.subs, topic)
	}
	c.mu.Unlock()

	token := c.client.Unsubscribe(topics...)
	token.Wait()

	if token.Error() != nil {
		return fmt.Errorf("failed to unsubscribe: %w", token.Error())
	}

	return nil
}

// Disconnect 断开连接
func (c *Client) Disconnect() {
	c.client.Disconnect(250) // 250ms等待时间
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}
