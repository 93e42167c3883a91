package codec

import (
	"encoding/json"
	"time"

	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/models"
)

// sensorMessage classguard/sensors 主题的原始消息结构
// 未知字段直接忽略，所有数值通道各自可选。
type sensorMessage struct {
	DeviceID    string          `json:"device_id"`
	Temperature *float64        `json:"temperature"`
	Humidity    *float64        `json:"humidity"`
	CO2         *float64        `json:"co2"`
	Light       *float64        `json:"light"`
	Noise       *float64        `json:"noise"`
	AQI         *float64        `json:"aqi"`
	ClassScore  *int            `json:"class_score"`
	Status      string          `json:"status"`
	Timestamp   string          `json:"timestamp"` // ISO-8601，缺省为接收时间
	Ack         map[string]bool `json:"ack"`
}

// 传感器侧时间戳的兼容格式（ESP32固件不带时区）
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// DecodeReading 解析 sensor 主题字节流为 Reading
// receivedAt 由订阅者传入，payload 未带 timestamp 时作为采样时间。
// 字节流不可解析返回 MalformedPayload；语法合法但不是对象结构
// 返回 MissingRequiredField。
func DecodeReading(payload []byte, receivedAt time.Time) (models.Reading, error) {
	var msg sensorMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		if _, ok := err.(*json.UnmarshalTypeError); ok {
			return models.Reading{}, models.NewDecodeError(models.MissingRequiredField, err)
		}
		return models.Reading{}, models.NewDecodeError(models.MalformedPayload, err)
	}

	reading := models.Reading{
		DeviceID:    msg.DeviceID,
		Temperature: msg.Temperature,
		Humidity:    msg.Humidity,
		CO2:         msg.CO2,
		Light:       msg.Light,
		Noise:       msg.Noise,
		AQI:         msg.AQI,
		Status:      "Unknown",
		Timestamp:   receivedAt,
		ReceivedAt:  receivedAt,
	}

	if msg.ClassScore != nil {
		reading.ClassScore = *msg.ClassScore
	}
	if msg.Status != "" {
		reading.Status = msg.Status
	}
	if msg.Timestamp != "" {
		if ts, ok := parseTimestamp(msg.Timestamp); ok {
			reading.Timestamp = ts
		}
	}

	return reading, nil
}

// DecodeAck 解析设备状态回执
// sensor 主题上 {"ack": {"fan": true}} 形式的消息是设备对控制指令的确认，
// 不是一次采样。返回 ok=false 表示消息不含回执。
func DecodeAck(payload []byte) (models.ControlAck, bool) {
	var msg sensorMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return models.ControlAck{}, false
	}
	if len(msg.Ack) == 0 {
		return models.ControlAck{}, false
	}
	return models.ControlAck{States: msg.Ack}, true
}

// EncodeCommand 编码控制指令为 control 主题消息
// 格式固定为 {"<device>": <bool>}，与ESP32固件订阅格式一致；
// 输出确定，不依赖任何缓存状态。
func EncodeCommand(cmd models.ControlCommand) ([]byte, error) {
	return json.Marshal(map[string]bool{cmd.Device: cmd.State})
}

func parseTimestamp(value string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
