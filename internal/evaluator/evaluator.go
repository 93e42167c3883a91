package evaluator

import (
	"context"
	"time"

	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Thresholds 教室环境阈值（与ESP32固件一致）
type Thresholds struct {
	CO2         float64 // ppm，超过视为超标
	Light       float64 // lux，低于视为照度不足
	Temperature float64 // °C，超过视为超标
	Humidity    float64 // %RH，超过视为超标
	Noise       float64 // dB，超过视为超标
}

// DefaultThresholds 固件默认阈值
func DefaultThresholds() Thresholds {
	return Thresholds{
		CO2:         1000,
		Light:       300,
		Temperature: 35,
		Humidity:    80,
		Noise:       70,
	}
}

// Alert 单通道超标告警
type Alert struct {
	Channel   string    `json:"channel"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	DeviceID  string    `json:"device_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// BuzzerFunc 自动蜂鸣器触发回调（CO2或噪音超标时调用）
type BuzzerFunc func(ctx context.Context, state bool)

// Evaluator 课堂舒适度评估器
// 每条采样入库前评估：payload 未带 class_score/status 时在服务端补算；
// 任一阈值超标产生告警（日志 + 可选webhook），CO2/噪音超标可选联动蜂鸣器。
type Evaluator struct {
	thresholds Thresholds
	webhookURL string
	httpClient *resty.Client
	buzzer     BuzzerFunc // nil 表示不联动
	logger     *zap.Logger
}

// NewEvaluator 创建评估器
// webhookURL 为空时不发送告警通知；buzzer 为 nil 时不联动蜂鸣器。
func NewEvaluator(thresholds Thresholds, webhookURL string, buzzer BuzzerFunc, logger *zap.Logger) *Evaluator {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &Evaluator{
		thresholds: thresholds,
		webhookURL: webhookURL,
		httpClient: client,
		buzzer:     buzzer,
		logger:     logger,
	}
}

// channelCheck 单通道检查结果
type channelCheck struct {
	name      string
	value     *float64
	threshold float64
	breached  func(value, threshold float64) bool
}

func above(value, threshold float64) bool { return value > threshold }
func below(value, threshold float64) bool { return value < threshold }

// Evaluate 评估一条采样，返回超标告警列表
// 同时补算 ClassScore/Status：payload 已带值（score>0 或 status 非 Unknown）
// 时原样信任，否则按上报通道中合格通道的占比折算成百分制。
func (e *Evaluator) Evaluate(reading *models.Reading) []Alert {
	checks := []channelCheck{
		{name: "co2", value: reading.CO2, threshold: e.thresholds.CO2, breached: above},
		{name: "light", value: reading.Light, threshold: e.thresholds.Light, breached: below},
		{name: "temperature", value: reading.Temperature, threshold: e.thresholds.Temperature, breached: above},
		{name: "humidity", value: reading.Humidity, threshold: e.thresholds.Humidity, breached: above},
		{name: "noise", value: reading.Noise, threshold: e.thresholds.Noise, breached: above},
	}

	var alerts []Alert
	reported := 0
	healthy := 0

	for _, check := range checks {
		if check.value == nil {
			continue
		}
		reported++
		if check.breached(*check.value, check.threshold) {
			alerts = append(alerts, Alert{
				Channel:   check.name,
				Value:     *check.value,
				Threshold: check.threshold,
				DeviceID:  reading.DeviceID,
				Timestamp: reading.Timestamp,
			})
		} else {
			healthy++
		}
	}

	// payload 未带评分时服务端补算
	if reading.ClassScore == 0 && reading.Status == "Unknown" && reported > 0 {
		score := healthy * 100 / reported
		reading.ClassScore = score
		switch {
		case score >= 80:
			reading.Status = "Good"
		case score >= 50:
			reading.Status = "Moderate"
		default:
			reading.Status = "Poor"
		}
	}

	return alerts
}

// Apply 评估并处置：记录告警、联动蜂鸣器、异步推送webhook
// 通知路径绝不阻塞摄取：webhook 在后台goroutine发送。
func (e *Evaluator) Apply(ctx context.Context, reading *models.Reading) []Alert {
	alerts := e.Evaluate(reading)
	if len(alerts) == 0 {
		return nil
	}

	for _, alert := range alerts {
		e.logger.Warn("Comfort threshold breached",
			zap.String("channel", alert.Channel),
			zap.Float64("value", alert.Value),
			zap.Float64("threshold", alert.Threshold),
			zap.String("device_id", alert.DeviceID),
		)
	}

	if e.buzzer != nil && hasChannel(alerts, "co2", "noise") {
		e.buzzer(ctx, true)
	}

	if e.webhookURL != "" {
		go e.notify(alerts)
	}

	return alerts
}

// notify 推送告警到配置的webhook
func (e *Evaluator) notify(alerts []Alert) {
	resp, err := e.httpClient.R().
		SetBody(map[string]interface{}{"alerts": alerts}).
		Post(e.webhookURL)

	if err != nil {
		e.logger.Error("Failed to send alert webhook", zap.Error(err))
		return
	}

	e.logger.Debug("Alert webhook sent",
		zap.Int("status_code", resp.StatusCode()),
		zap.Int("alerts", len(alerts)),
	)
}

func hasChannel(alerts []Alert, channels ...string) bool {
	for _, alert := range alerts {
		for _, channel := range channels {
			if alert.Channel == channel {
				return true
			}
		}
	}
	return false
}
