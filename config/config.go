package config

import (
	"fmt"
	"strings"
	"time"

	"pix-gateway/internal/core/domain"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Storage drivers.
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	AES      AESConfig      `mapstructure:"aes"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Router   RouterConfig   `mapstructure:"router"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Provider ProviderConfig `mapstructure:"provider"`
	Fees     FeesConfig     `mapstructure:"fees"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
}

type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
	RateLimit    int    `mapstructure:"rate_limit"` // requests per minute per merchant, 0 disables
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type AESConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded key for AES-256
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"` // postgres, memory
}

type RouterConfig struct {
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"`
	CallbackBaseURL string        `mapstructure:"callback_base_url"`
	DefaultCity     string        `mapstructure:"default_city"`
}

type LedgerConfig struct {
	TxTimeout time.Duration `mapstructure:"tx_timeout"`
}

type ProviderConfig struct {
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	SandboxTTL     time.Duration `mapstructure:"sandbox_ttl"`
}

// FeesConfig is the default fee scheme for merchants without an override.
// Amounts are decimal strings in reais.
type FeesConfig struct {
	Type              string `mapstructure:"type"`
	CashInPercentage  string `mapstructure:"cash_in_percentage"`
	CashInFixed       string `mapstructure:"cash_in_fixed"`
	CashOutPercentage string `mapstructure:"cash_out_percentage"`
	CashOutFixed      string `mapstructure:"cash_out_fixed"`
	MinFee            string `mapstructure:"min_fee"`
	MaxFee            string `mapstructure:"max_fee"` // empty means no cap
}

// Scheme parses the configured values into a domain.FeeScheme.
func (f FeesConfig) Scheme() (domain.FeeScheme, error) {
	s := domain.FeeScheme{Type: domain.FeeType(strings.ToUpper(f.Type))}
	switch s.Type {
	case domain.FeeTypePercentage, domain.FeeTypeFixed, domain.FeeTypeMixed:
	default:
		return s, fmt.Errorf("fees.type: unknown fee type %q", f.Type)
	}

	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"cash_in_percentage", f.CashInPercentage, &s.CashInPercentage},
		{"cash_in_fixed", f.CashInFixed, &s.CashInFixed},
		{"cash_out_percentage", f.CashOutPercentage, &s.CashOutPercentage},
		{"cash_out_fixed", f.CashOutFixed, &s.CashOutFixed},
		{"min_fee", f.MinFee, &s.MinFee},
	}
	for _, fld := range fields {
		if fld.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(fld.raw)
		if err != nil {
			return s, fmt.Errorf("fees.%s: %w", fld.name, err)
		}
		*fld.dst = d
	}

	if f.MaxFee != "" {
		d, err := decimal.NewFromString(f.MaxFee)
		if err != nil {
			return s, fmt.Errorf("fees.max_fee: %w", err)
		}
		s.MaxFee = &d
	}
	return s, nil
}

type WebhookConfig struct {
	// RetryIntervals are the waits between merchant webhook delivery attempts.
	RetryIntervals  []time.Duration `mapstructure:"retry_intervals"`
	DeliveryTimeout time.Duration   `mapstructure:"delivery_timeout"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: PXG_ (PIX Gateway).
// Nested keys use underscore: PXG_DATABASE_HOST, PXG_JWT_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.rate_limit", 600)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "pix_gateway")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "pix.notifications")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "pix-gateway")
	v.SetDefault("aes.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("storage.driver", StorageDriverPostgres)
	v.SetDefault("router.provider_timeout", "15s")
	v.SetDefault("router.callback_base_url", "http://localhost:8080")
	v.SetDefault("router.default_city", "SAO PAULO")
	v.SetDefault("ledger.tx_timeout", "5s")
	v.SetDefault("provider.http_timeout", "20s")
	v.SetDefault("provider.rate_limit_rps", 50)
	v.SetDefault("provider.rate_limit_burst", 10)
	v.SetDefault("provider.sandbox_ttl", "1h")
	v.SetDefault("fees.type", "PERCENTAGE")
	v.SetDefault("fees.cash_in_percentage", "0.99")
	v.SetDefault("fees.cash_in_fixed", "0")
	v.SetDefault("fees.cash_out_percentage", "0.99")
	v.SetDefault("fees.cash_out_fixed", "0")
	v.SetDefault("fees.min_fee", "0")
	v.SetDefault("fees.max_fee", "")
	v.SetDefault("webhook.retry_intervals", []string{"15s", "1m", "2m", "5m", "10m"})
	v.SetDefault("webhook.delivery_timeout", "10s")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: PXG_DATABASE_HOST -> database.host
	v.SetEnvPrefix("PXG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the services cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return fmt.Errorf("storage.driver: unsupported driver %q", c.Storage.Driver)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("kafka: brokers and topic are required when enabled")
	}
	if _, err := c.Fees.Scheme(); err != nil {
		return err
	}
	return nil
}
