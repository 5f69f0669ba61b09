package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Log      LogConfig      `mapstructure:"log"`
	Paywall  PaywallConfig  `mapstructure:"paywall"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql, sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	Path         string `mapstructure:"path"` // sqlite 文件路径
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// PaywallConfig 资源解锁支付会话配置
type PaywallConfig struct {
	SessionTTLMinutes      int    `mapstructure:"session_ttl_minutes"`
	ProcessingDelaySeconds int    `mapstructure:"processing_delay_seconds"`
	SweepIntervalSeconds   int    `mapstructure:"sweep_interval_seconds"`
	SweepBatchSize         int    `mapstructure:"sweep_batch_size"`
	FreeUnlockEnabled      bool   `mapstructure:"free_unlock_enabled"`
	DefaultCurrency        string `mapstructure:"default_currency"`
	VerifyQueue            string `mapstructure:"verify_queue"`
	SimulatedOutcome       *bool  `mapstructure:"simulated_outcome"` // 未设置时默认支付成功
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type WorkerConfig struct {
	MaxWorkers int `mapstructure:"max_workers"`
}

const (
	DefaultSessionTTLMinutes      = 15
	DefaultProcessingDelaySeconds = 3
	DefaultSweepIntervalSeconds   = 60
	DefaultSweepBatchSize         = 100
	DefaultCurrency               = "CNY"
	DefaultVerifyQueue            = "paywall_verify_queue"
	DefaultMetricsPath            = "/metrics"
	DefaultMaxWorkers             = 2
)

var ErrInvalidPaywallConfig = errors.New("invalid paywall config: durations must not be negative")

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验并补全默认值
func (c *Config) Validate() error {
	p := &c.Paywall
	if p.SessionTTLMinutes < 0 || p.ProcessingDelaySeconds < 0 || p.SweepIntervalSeconds < 0 || p.SweepBatchSize < 0 {
		return ErrInvalidPaywallConfig
	}
	if p.SessionTTLMinutes == 0 {
		p.SessionTTLMinutes = DefaultSessionTTLMinutes
	}
	if p.ProcessingDelaySeconds == 0 {
		p.ProcessingDelaySeconds = DefaultProcessingDelaySeconds
	}
	if p.SweepIntervalSeconds == 0 {
		p.SweepIntervalSeconds = DefaultSweepIntervalSeconds
	}
	if p.SweepBatchSize == 0 {
		p.SweepBatchSize = DefaultSweepBatchSize
	}
	if p.DefaultCurrency == "" {
		p.DefaultCurrency = DefaultCurrency
	}
	if p.VerifyQueue == "" {
		p.VerifyQueue = DefaultVerifyQueue
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Worker.MaxWorkers <= 0 {
		c.Worker.MaxWorkers = DefaultMaxWorkers
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	return nil
}

func (p PaywallConfig) SessionTTL() time.Duration {
	if p.SessionTTLMinutes <= 0 {
		return DefaultSessionTTLMinutes * time.Minute
	}
	return time.Duration(p.SessionTTLMinutes) * time.Minute
}

func (p PaywallConfig) ProcessingDelay() time.Duration {
	return time.Duration(p.ProcessingDelaySeconds) * time.Second
}

func (p PaywallConfig) SweepInterval() time.Duration {
	if p.SweepIntervalSeconds <= 0 {
		return DefaultSweepIntervalSeconds * time.Second
	}
	return time.Duration(p.SweepIntervalSeconds) * time.Second
}

// Outcome 模拟支付处理器返回的结果
func (p PaywallConfig) Outcome() bool {
	if p.SimulatedOutcome == nil {
		return true
	}
	return *p.SimulatedOutcome
}
