package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	DB        DBConfig        `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Market    MarketConfig    `mapstructure:"market"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Stream    StreamConfig    `mapstructure:"stream"`
}

type AppConfig struct {
	Port    string `mapstructure:"port"`
	Env     string `mapstructure:"env"` // "local", "prod"
	GinMode string `mapstructure:"gin_mode"`
}

type DBConfig struct {
	Driver          string        `mapstructure:"driver"` // "postgres" or "memory"
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the lib/pq connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MarketConfig struct {
	Provider        string        `mapstructure:"provider"` // "alphavantage", "polygon" or "mock"
	AlphaVantageKey string        `mapstructure:"alphavantage_key"`
	AlphaVantageURL string        `mapstructure:"alphavantage_url"`
	PolygonKey      string        `mapstructure:"polygon_key"`
	QuoteTTL        time.Duration `mapstructure:"quote_ttl"`
	HistoryTTL      time.Duration `mapstructure:"history_ttl"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type LedgerConfig struct {
	StartingCash float64 `mapstructure:"starting_cash"`
	Workers      int     `mapstructure:"workers"`
	QueueSize    int     `mapstructure:"queue_size"`
}

type RateLimitConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type StreamConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	MaxSymbols int           `mapstructure:"max_symbols"`
}

// Load reads configuration from .env file, environment variables, and defaults.
func Load() (*Config, error) {
	// Load .env into the process environment (if it exists)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults or environment variables")
	}

	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	// "db.host" -> "DB_HOST"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv alone does not populate nested structs on Unmarshal
	for _, key := range v.AllKeys() {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.gin_mode", "debug")

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5433")
	v.SetDefault("db.user", "trader")
	v.SetDefault("db.password", "trading123")
	v.SetDefault("db.name", "trading_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "5m")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("market.provider", "alphavantage")
	v.SetDefault("market.alphavantage_key", "demo")
	v.SetDefault("market.alphavantage_url", "https://www.alphavantage.co/query")
	v.SetDefault("market.polygon_key", "")
	v.SetDefault("market.quote_ttl", "5m")
	v.SetDefault("market.history_ttl", "24h")
	v.SetDefault("market.timeout", "10s")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")

	v.SetDefault("ledger.starting_cash", 10000.0)
	v.SetDefault("ledger.workers", 5)
	v.SetDefault("ledger.queue_size", 100)

	v.SetDefault("ratelimit.limit", 100)
	v.SetDefault("ratelimit.window", "1m")

	v.SetDefault("stream.interval", "1s")
	v.SetDefault("stream.max_symbols", 20)
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown db driver %q", c.DB.Driver)
	}

	switch c.Market.Provider {
	case "alphavantage", "mock":
	case "polygon":
		if c.Market.PolygonKey == "" {
			return fmt.Errorf("market.polygon_key is required for the polygon provider")
		}
	default:
		return fmt.Errorf("unknown market provider %q", c.Market.Provider)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret cannot be empty")
	}
	if c.Ledger.StartingCash < 0 {
		return fmt.Errorf("ledger.starting_cash cannot be negative")
	}
	if c.Ledger.Workers < 1 {
		return fmt.Errorf("ledger.workers must be at least 1")
	}
	if c.Ledger.QueueSize < 0 {
		return fmt.Errorf("ledger.queue_size cannot be negative")
	}
	return nil
}
