package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// DSN renders the keyword/value connection string used by lib/pq.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// URL renders the postgres:// form expected by golang-migrate.
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// WhatsappConfig holds WhatsApp Cloud API settings shared by the webhook
// boundary and the outbound sender.
type WhatsappConfig struct {
	VerifyToken   string `yaml:"verify_token" envconfig:"WA_VERIFY_TOKEN"`
	APIBaseURL    string `yaml:"api_base_url" envconfig:"WA_API_BASE_URL"`
	APIVersion    string `yaml:"api_version" envconfig:"WA_API_VERSION"`
	PhoneNumberID string `yaml:"phone_number_id" envconfig:"WA_PHONE_NUMBER_ID"`
	AccessToken   string `yaml:"access_token" envconfig:"WA_ACCESS_TOKEN"`
}

// ServerConfig specifies the HTTP listener for the webhook endpoints.
type ServerConfig struct {
	Listen string `yaml:"listen" envconfig:"SERVER_LISTEN"`
	Port   int    `yaml:"port" envconfig:"SERVER_PORT"`
}

// RedisConfig configures the catalog lookup cache. An empty Addr selects the
// in-memory cache backend.
type RedisConfig struct {
	Addr       string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password   string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB         int    `yaml:"db" envconfig:"REDIS_DB"`
	TTLSeconds int    `yaml:"ttl_seconds" envconfig:"REDIS_TTL_SECONDS"`
}

// WorkerConfig bounds the conversation worker pool.
type WorkerConfig struct {
	Min       int `yaml:"min" envconfig:"WORKERS_MIN"`
	Max       int `yaml:"max" envconfig:"WORKERS_MAX"`
	QueueSize int `yaml:"queue_size" envconfig:"WORKERS_QUEUE_SIZE"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// AppConfig carries rental-shop settings used by the conversation engine.
type AppConfig struct {
	ShopAddress       string `yaml:"shop_address" envconfig:"APP_SHOP_ADDRESS"`
	BaseCurrency      string `yaml:"base_currency" envconfig:"APP_BASE_CURRENCY"`
	OpenExchangeAppID string `yaml:"openexchange_app_id" envconfig:"OPENEXCHANGE_APP_ID"`
}

// Config aggregates the full application configuration.
type Config struct {
	App      AppConfig           `yaml:"app"`
	Whatsapp WhatsappConfig      `yaml:"whatsapp"`
	Server   ServerConfig        `yaml:"server"`
	Database DatabaseConfig      `yaml:"database"`
	Redis    RedisConfig         `yaml:"redis"`
	Workers  WorkerConfig        `yaml:"workers"`
	Logging  LoggingConfig       `yaml:"logging"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if strings.TrimSpace(cfg.Whatsapp.VerifyToken) == "" {
		return fmt.Errorf("whatsapp.verify_token is required")
	}
	if strings.TrimSpace(cfg.Whatsapp.APIVersion) == "" {
		cfg.Whatsapp.APIVersion = "v19.0"
	}

	if strings.TrimSpace(cfg.Server.Listen) == "" {
		cfg.Server.Listen = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Port < 0 {
		return fmt.Errorf("server.port must be > 0")
	}

	if cfg.Workers.Min <= 0 {
		cfg.Workers.Min = 2
	}
	if cfg.Workers.Max < cfg.Workers.Min {
		cfg.Workers.Max = cfg.Workers.Min * 4
	}
	if cfg.Workers.QueueSize <= 0 {
		cfg.Workers.QueueSize = 128
	}

	if cfg.Redis.TTLSeconds < 0 {
		return fmt.Errorf("redis.ttl_seconds must be >= 0")
	}
	if cfg.Redis.TTLSeconds == 0 {
		cfg.Redis.TTLSeconds = 300
	}

	if strings.TrimSpace(cfg.App.BaseCurrency) == "" {
		cfg.App.BaseCurrency = "USD"
	}
	cfg.App.BaseCurrency = strings.ToUpper(strings.TrimSpace(cfg.App.BaseCurrency))

	return nil
}
