package models

import "time"

// Reading 一次解码后的教室环境采样
// 数值通道均为可选（指针），nil 表示该周期传感器未上报此通道。
type Reading struct {
	DeviceID    string    `json:"device_id,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"` // °C
	Humidity    *float64  `json:"humidity,omitempty"`    // %RH
	CO2         *float64  `json:"co2,omitempty"`         // ppm
	Light       *float64  `json:"light,omitempty"`       // lux
	Noise       *float64  `json:"noise,omitempty"`       // dB
	AQI         *float64  `json:"aqi,omitempty"`
	ClassScore  int       `json:"class_score"` // 课堂舒适度评分，默认0
	Status      string    `json:"status"`      // 分类标签，默认"Unknown"
	Timestamp   time.Time `json:"timestamp"`   // 传感器时间，缺省为接收时间
	ReceivedAt  time.Time `json:"received_at"` // 服务端接收时间，订阅者填写
}

// DeviceStatus 受控设备开关状态（fan/light/buzzer 闭集）
// 进程启动时全部为 false。
type DeviceStatus struct {
	Fan    bool `json:"fan"`
	Light  bool `json:"light"`
	Buzzer bool `json:"buzzer"`
}

// 受控设备名称闭集
const (
	DeviceFan    = "fan"
	DeviceLight  = "light"
	DeviceBuzzer = "buzzer"
)

// IsValidDevice 检查设备名是否在闭集内
func IsValidDevice(device string) bool {
	switch device {
	case DeviceFan, DeviceLight, DeviceBuzzer:
		return true
	}
	return false
}

// Get 读取单个设备状态，设备名非法时返回 false
func (s DeviceStatus) Get(device string) bool {
	switch device {
	case DeviceFan:
		return s.Fan
	case DeviceLight:
		return s.Light
	case DeviceBuzzer:
		return s.Buzzer
	}
	return false
}

// Set 更新单个设备状态，设备名非法时返回 ErrInvalidDevice
func (s *DeviceStatus) Set(device string, state bool) error {
	switch device {
	case DeviceFan:
		s.Fan = state
	case DeviceLight:
		s.Light = state
	case DeviceBuzzer:
		s.Buzzer = state
	default:
		return ErrInvalidDevice
	}
	return nil
}

// ControlCommand 下发到设备的控制指令
type ControlCommand struct {
	ID       string    `json:"id"` // 指令ID，用于审计日志
	Device   string    `json:"device"`
	State    bool      `json:"state"`
	IssuedAt time.Time `json:"issued_at"`
	IssuedBy string    `json:"issued_by"` // 操作者标识，对本服务不透明
}

// ControlAck 设备通过 sensor 主题回报的状态回执
type ControlAck struct {
	States map[string]bool `json:"ack"`
}

// AggregateBucket 固定宽度时间桶的聚合统计
// 各通道均值为可选：桶内无样本的通道为 nil，绝不补0。
type AggregateBucket struct {
	BucketStart time.Time `json:"bucket_start"`
	Count       int       `json:"count"`
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	CO2         *float64  `json:"co2,omitempty"`
	Light       *float64  `json:"light,omitempty"`
	Noise       *float64  `json:"noise,omitempty"`
}
