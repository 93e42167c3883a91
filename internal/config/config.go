package config

import (
	"os"
	"strconv"
	"time"

	"github.com/nguyenminhquan-80/CLASSGUARD-PRO/internal/common/config"
)

// Config ClassGuard 服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// ClassGuard 服务特定配置
	ClassGuard struct {
		SensorTopic   string        // 传感器上报主题
		ControlTopic  string        // 控制指令下发主题
		QoS           byte          // 订阅与发布的 QoS
		AdminRole     string        // 允许下发控制指令的角色
		Stream        string        // Redis Streams 实时镜像流
		AppendRetries int           // 存储写入失败重试次数
		AppendBackoff time.Duration // 首次重试等待
		AutoBuzzer    bool          // CO2/噪音超标时服务端联动蜂鸣器
		WebhookURL    string        // 告警 webhook 地址，空则不通知
	}

	// Thresholds 环境阈值（与固件默认值一致）
	Thresholds struct {
		CO2         float64
		Light       float64
		Temperature float64
		Humidity    float64
		Noise       float64
	}

	HTTP struct {
		Addr string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "classguard")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "mqtt://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "classguard-core")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")

	// ClassGuard 服务配置
	cfg.ClassGuard.SensorTopic = getEnv("CLASSGUARD_SENSOR_TOPIC", "classguard/sensors")
	cfg.ClassGuard.ControlTopic = getEnv("CLASSGUARD_CONTROL_TOPIC", "classguard/control")
	cfg.ClassGuard.QoS = byte(getEnvInt("CLASSGUARD_QOS", 1))
	cfg.ClassGuard.AdminRole = getEnv("CLASSGUARD_ADMIN_ROLE", "admin")
	cfg.ClassGuard.Stream = getEnv("CLASSGUARD_STREAM", "classguard:readings:stream")
	cfg.ClassGuard.AppendRetries = getEnvInt("CLASSGUARD_APPEND_RETRIES", 3)
	cfg.ClassGuard.AppendBackoff = getEnvDuration("CLASSGUARD_APPEND_BACKOFF", 500*time.Millisecond)
	cfg.ClassGuard.AutoBuzzer = getEnvBool("CLASSGUARD_AUTO_BUZZER", false)
	cfg.ClassGuard.WebhookURL = getEnv("CLASSGUARD_ALERT_WEBHOOK", "")

	// 环境阈值
	cfg.Thresholds.CO2 = getEnvFloat("CLASSGUARD_CO2_THRESHOLD", 1000)
	cfg.Thresholds.Light = getEnvFloat("CLASSGUARD_LIGHT_THRESHOLD", 300)
	cfg.Thresholds.Temperature = getEnvFloat("CLASSGUARD_TEMP_THRESHOLD", 35)
	cfg.Thresholds.Humidity = getEnvFloat("CLASSGUARD_HUMIDITY_THRESHOLD", 80)
	cfg.Thresholds.Noise = getEnvFloat("CLASSGUARD_NOISE_THRESHOLD", 70)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
