// Package config 從環境變數（以及選用的 .env 檔）載入服務設定。
package config

import (
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// Config 服務設定
type Config struct {
	Port      int    `envconfig:"PORT" default:"8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	// 空值表示使用行程內計數器
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	// 空值表示不發佈領域事件
	NATSURL string `envconfig:"NATS_URL"`

	EmptyRoomTTL  time.Duration `envconfig:"EMPTY_ROOM_TTL" default:"5m"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
	PendingPolicy string        `envconfig:"PENDING_POLICY" default:"clear-on-pair"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
	MaxMessageSize int64    `envconfig:"MAX_MESSAGE_SIZE" default:"4096"`
}

// Load 載入設定
//
// envFile 不存在不算錯誤；已存在的環境變數優先於 .env 內容。
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(err, "load %s", envFile)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "process env")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 檢查設定值
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("invalid PORT %d", c.Port)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return errors.Errorf("invalid LOG_FORMAT %q", c.LogFormat)
	}

	switch c.PendingPolicy {
	case "keep", "clear-on-pair", "clear-on-leave":
	default:
		return errors.Errorf("invalid PENDING_POLICY %q", c.PendingPolicy)
	}

	if c.EmptyRoomTTL < 0 || c.SweepInterval < 0 {
		return errors.New("EMPTY_ROOM_TTL and SWEEP_INTERVAL must not be negative")
	}
	if c.MaxMessageSize <= 0 {
		return errors.Errorf("invalid MAX_MESSAGE_SIZE %d", c.MaxMessageSize)
	}
	return nil
}
