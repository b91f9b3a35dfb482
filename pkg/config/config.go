// Package config 提供 TOML 配置加载、环境变量覆盖与默认值
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/wyfcoding/exchange/pkg/logger"
)

// Config 交易引擎配置结构
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// HTTP 服务配置
	HTTP HTTPConfig `mapstructure:"http"`
	// 数据库配置
	Database DatabaseConfig `mapstructure:"database"`
	// Redis 配置
	Redis RedisConfig `mapstructure:"redis"`
	// Kafka 配置
	Kafka KafkaConfig `mapstructure:"kafka"`
	// 日志配置
	Logger logger.Config `mapstructure:"logger"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
	// 撮合引擎配置
	Trader TraderConfig `mapstructure:"trader"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	// 监听地址
	Host string `mapstructure:"host"`
	// 监听端口
	Port int `mapstructure:"port"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 数据源名称
	DSN string `mapstructure:"dsn"`
	// 最大连接数
	MaxOpenConns int `mapstructure:"max_open_conns"`
	// 最大空闲连接数
	MaxIdleConns int `mapstructure:"max_idle_conns"`
	// 连接最大生命周期（秒）
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime"`
	// 是否启用 SQL 日志
	LogEnabled bool `mapstructure:"log_enabled"`
	// 慢查询阈值（毫秒）
	SlowQueryThreshold int `mapstructure:"slow_query_threshold"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址 host:port
	Addr string `mapstructure:"addr"`
	// 密码
	Password string `mapstructure:"password"`
	// 数据库编号
	DB int `mapstructure:"db"`
	// 连接池大小
	PoolSize int `mapstructure:"pool_size"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	// Broker 地址列表
	Brokers []string `mapstructure:"brokers"`
	// 最大重试次数
	MaxRetries int `mapstructure:"max_retries"`
	// 重试退避（毫秒）
	RetryBackoff int `mapstructure:"retry_backoff"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `mapstructure:"enabled"`
	// Prometheus 监听端口
	Port int `mapstructure:"port"`
}

// TraderConfig 撮合引擎配置
type TraderConfig struct {
	// 同步间隔（毫秒），从上一轮完成时刻起算
	SyncIntervalMS int `mapstructure:"sync_interval_ms"`
	// 手续费率（只作用于买入/卖出所得一侧）
	FeeRate string `mapstructure:"fee_rate"`
	// 单轮结算最大并发数
	MaxConcurrentSettlements int `mapstructure:"max_concurrent_settlements"`
	// 事件发布方式：kafka, redis
	Publisher string `mapstructure:"publisher"`
	// Kafka 成交事件主题
	FillTopic string `mapstructure:"fill_topic"`
	// Redis 发布频道
	FillChannel string `mapstructure:"fill_channel"`
	// 行情轮询开关
	RatePollerEnabled bool `mapstructure:"rate_poller_enabled"`
	// 行情轮询地址
	RatePollerURL string `mapstructure:"rate_poller_url"`
	// 行情轮询间隔（毫秒）
	RatePollerIntervalMS int `mapstructure:"rate_poller_interval_ms"`
}

// Load 从 TOML 文件加载配置，支持 APP_ 前缀环境变量覆盖
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	// 配置文件允许缺省，环境变量与默认值兜底
	_ = v.ReadInConfig()

	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}
	if c.Trader.SyncIntervalMS <= 0 {
		return fmt.Errorf("invalid sync interval: %d", c.Trader.SyncIntervalMS)
	}
	if c.Trader.MaxConcurrentSettlements <= 0 {
		return fmt.Errorf("invalid settlement concurrency: %d", c.Trader.MaxConcurrentSettlements)
	}
	switch c.Trader.Publisher {
	case "kafka", "redis":
	default:
		return fmt.Errorf("unsupported publisher: %s", c.Trader.Publisher)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "trader")
	v.SetDefault("environment", "dev")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)

	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", 1000)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/trader.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", false)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("trader.sync_interval_ms", 1000)
	v.SetDefault("trader.fee_rate", "0.0015")
	v.SetDefault("trader.max_concurrent_settlements", 32)
	v.SetDefault("trader.publisher", "redis")
	v.SetDefault("trader.fill_topic", "trading.fills")
	v.SetDefault("trader.fill_channel", "general")
	v.SetDefault("trader.rate_poller_enabled", false)
	v.SetDefault("trader.rate_poller_interval_ms", 5000)
}
