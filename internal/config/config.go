package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
	Topic    string // 车辆遥测上报主题
}

// Config 预警服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// 缓存配置（信号实体缓存）
	Cache struct {
		SignalKeyPrefix string        // 信号缓存键前缀，如 "signal:"
		TTL             time.Duration // 缓存基础过期时间，默认 60秒
		Jitter          time.Duration // 过期时间随机波动范围，默认 ±3秒
		LockWait        time.Duration // 分布式锁等待超时，默认 10秒
		LockLease       time.Duration // 分布式锁租约时长，默认 10秒
	}

	// 规则快照配置
	Rule struct {
		KeyPrefix string // 规则快照键前缀，如 "warnrule:"
	}

	// 批量评估配置
	Warn struct {
		BatchSize     int // 单个分片的读数条数，默认 100
		Workers       int // 工作协程数，0 表示 CPU核数*2
		QueueCapacity int // 任务队列容量，默认 100
	}

	// Redis Streams 配置
	Stream struct {
		SignalTopic   string        // 信号批量下发流
		SignalGroup   string        // 预警侧消费者组
		StatusTopic   string        // 预警回执流（VID集合）
		StatusGroup   string        // 信号侧消费者组
		ReadCount     int64         // 单次读取消息数
		BlockTimeout  time.Duration // 读取阻塞时长
		ClaimInterval time.Duration // 待确认消息认领巡检间隔
		ClaimMinIdle  time.Duration // 认领的最小空闲时长
		MaxDeliveries int64         // 最大投递次数，超过视为毒消息丢弃
	}

	// 定时任务配置
	Task struct {
		ProviderInterval  time.Duration // 信号批量下发间隔，默认 20秒
		GeneratorEnabled  bool          // 是否启用模拟遥测生成
		GeneratorInterval time.Duration // 模拟遥测生成间隔，默认 10秒
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "bms")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "bms-warn")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1
	cfg.MQTT.Topic = getEnv("MQTT_TELEMETRY_TOPIC", "bms/telemetry")

	cfg.Cache.SignalKeyPrefix = getEnv("CACHE_SIGNAL_PREFIX", "signal:")
	cfg.Cache.TTL = getEnvSeconds("CACHE_TTL", 60)
	cfg.Cache.Jitter = getEnvSeconds("CACHE_JITTER", 3)
	cfg.Cache.LockWait = getEnvSeconds("CACHE_LOCK_WAIT", 10)
	cfg.Cache.LockLease = getEnvSeconds("CACHE_LOCK_LEASE", 10)

	cfg.Rule.KeyPrefix = getEnv("RULE_KEY_PREFIX", "warnrule:")

	cfg.Warn.BatchSize = getEnvInt("WARN_BATCH_SIZE", 100)
	cfg.Warn.Workers = getEnvInt("WARN_WORKERS", 0)
	cfg.Warn.QueueCapacity = getEnvInt("WARN_QUEUE_CAPACITY", 100)

	cfg.Stream.SignalTopic = getEnv("STREAM_SIGNAL_TOPIC", "signal:topic")
	cfg.Stream.SignalGroup = getEnv("STREAM_SIGNAL_GROUP", "warn-consumer-group")
	cfg.Stream.StatusTopic = getEnv("STREAM_STATUS_TOPIC", "signal:status:topic")
	cfg.Stream.StatusGroup = getEnv("STREAM_STATUS_GROUP", "signal-status-group")
	cfg.Stream.ReadCount = 10
	cfg.Stream.BlockTimeout = 5 * time.Second
	cfg.Stream.ClaimInterval = 30 * time.Second
	cfg.Stream.ClaimMinIdle = 30 * time.Second
	cfg.Stream.MaxDeliveries = 3

	cfg.Task.ProviderInterval = getEnvSeconds("PROVIDER_INTERVAL", 20)
	cfg.Task.GeneratorEnabled = getEnv("GENERATOR_ENABLED", "false") == "true"
	cfg.Task.GeneratorInterval = getEnvSeconds("GENERATOR_INTERVAL", 10)

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
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}
