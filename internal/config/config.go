package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"

	ExecutorInProcess = "inprocess"
	ExecutorTemporal  = "temporal"
)

type DeliveryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	BackoffFactor  float64       `mapstructure:"backoff_factor"`
	SendTimeout    time.Duration `mapstructure:"send_timeout"`
	Executor       string        `mapstructure:"executor"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type EmailConfig struct {
	// Providers are tried in order until one accepts the message.
	Providers []string     `mapstructure:"providers"`
	From      string       `mapstructure:"from"`
	SMTPHost  string       `mapstructure:"smtp_host"`
	SMTPPort  int          `mapstructure:"smtp_port"`
	Username  string       `mapstructure:"username"`
	Password  string       `mapstructure:"password"`
	Resend    ResendConfig `mapstructure:"resend"`
	SES       SESConfig    `mapstructure:"ses"`
}

type ResendConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type SESConfig struct {
	Region string `mapstructure:"region"`
}

type SMSConfig struct {
	GatewayURL string `mapstructure:"gateway_url"`
	APIKey     string `mapstructure:"api_key"`
	Sender     string `mapstructure:"sender"`
}

type SlackConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type PushConfig struct {
	BrokerURL   string `mapstructure:"broker_url"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         byte   `mapstructure:"qos"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

type SimulatorConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Seed     int64         `mapstructure:"seed"`
}

// RecipientConfig seeds one directory entry at startup.
type RecipientConfig struct {
	UserID       string   `mapstructure:"user_id"`
	Name         string   `mapstructure:"name"`
	Email        string   `mapstructure:"email"`
	Phone        string   `mapstructure:"phone"`
	SlackWebhook string   `mapstructure:"slack_webhook"`
	PushTopic    string   `mapstructure:"push_topic"`
	Roles        []string `mapstructure:"roles"`
}

type DirectoryConfig struct {
	Recipients []RecipientConfig `mapstructure:"recipients"`
}

type QuietHoursConfig struct {
	DefaultTimezone string `mapstructure:"default_timezone"`
}

type Config struct {
	ServerPort  string           `mapstructure:"server_port"`
	LogLevel    string           `mapstructure:"log_level"`
	Storage     string           `mapstructure:"storage"`
	DatabaseURL string           `mapstructure:"database_url"`
	JWTSecret   string           `mapstructure:"jwt_secret"`
	CORSOrigins []string         `mapstructure:"cors_origins"`
	Delivery    DeliveryConfig   `mapstructure:"delivery"`
	Temporal    TemporalConfig   `mapstructure:"temporal"`
	Email       EmailConfig      `mapstructure:"email"`
	SMS         SMSConfig        `mapstructure:"sms"`
	Slack       SlackConfig      `mapstructure:"slack"`
	Push        PushConfig       `mapstructure:"push"`
	Kafka       KafkaConfig      `mapstructure:"kafka"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Simulator   SimulatorConfig  `mapstructure:"simulator"`
	QuietHours  QuietHoursConfig `mapstructure:"quiet_hours"`
	Directory   DirectoryConfig  `mapstructure:"directory"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("storage", StoragePostgres)
	v.SetDefault("database_url", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("delivery.max_attempts", 3)
	v.SetDefault("delivery.initial_backoff", time.Second)
	v.SetDefault("delivery.backoff_factor", 4.0)
	v.SetDefault("delivery.send_timeout", 10*time.Second)
	v.SetDefault("delivery.executor", ExecutorInProcess)

	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "BEACON_DELIVERY")

	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("slack.enabled", true)
	v.SetDefault("push.client_id", "beacon")
	v.SetDefault("push.topic_prefix", "beacon/alerts")
	v.SetDefault("push.qos", 1)
	v.SetDefault("kafka.group_id", "beacon")
	v.SetDefault("redis.channel_prefix", "beacon:notifications")
	v.SetDefault("simulator.interval", 5*time.Second)
	v.SetDefault("quiet_hours.default_timezone", "UTC")
}

// Load reads config.yaml from the current directory or ./config. A missing file is
// fine; every key can also come from a BEACON_ prefixed environment variable.
func Load() (*Config, error) {
	v := viper.New()

	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix("BEACON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("jwt_secret must be set")
	}
	switch c.Storage {
	case StoragePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("database_url is required for postgres storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown storage %q", c.Storage)
	}
	switch c.Delivery.Executor {
	case ExecutorInProcess, ExecutorTemporal:
	default:
		return fmt.Errorf("unknown delivery executor %q", c.Delivery.Executor)
	}
	if c.Delivery.MaxAttempts < 1 {
		return fmt.Errorf("delivery.max_attempts must be at least 1")
	}
	if c.Delivery.BackoffFactor < 1 {
		return fmt.Errorf("delivery.backoff_factor must be at least 1")
	}
	if c.Delivery.SendTimeout <= 0 {
		return fmt.Errorf("delivery.send_timeout must be positive")
	}
	for i, rec := range c.Directory.Recipients {
		if strings.TrimSpace(rec.UserID) == "" {
			return fmt.Errorf("directory.recipients[%d].user_id is required", i)
		}
	}
	if _, err := time.LoadLocation(c.QuietHours.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid quiet_hours.default_timezone %q", c.QuietHours.DefaultTimezone)
	}
	return nil
}
