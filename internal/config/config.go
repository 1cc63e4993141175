package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"carservice-commerce/internal/domain/model"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // postgres|memory
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"` // empty disables caching, rate limits and the renewal lease
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type CommerceConfig struct {
	MaxRetries       int    `yaml:"max_retries"` // optimistic retry budget, 1..5
	MaxCategoryDepth int    `yaml:"max_category_depth"`
	Currency         string `yaml:"currency"`
}

type RenewalConfig struct {
	Interval  time.Duration `yaml:"interval"`
	LockTTL   time.Duration `yaml:"lock_ttl"`
	BatchSize int           `yaml:"batch_size"`
}

type AuditConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

type RateLimitConfig struct {
	WalletOpsPerMinute int `yaml:"wallet_ops_per_minute"`
}

// PlanSeed is a subscription plan created by the seed tool, or at startup
// when running on the in-memory store.
type PlanSeed struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Price        string   `yaml:"price"` // decimal string
	DurationDays int      `yaml:"duration_days"`
	Features     []string `yaml:"features"`
}

// Plan converts the seed into a validated plan.
func (p PlanSeed) Plan() (*model.SubscriptionPlan, error) {
	price, err := decimal.NewFromString(p.Price)
	if err != nil {
		return nil, fmt.Errorf("seed plan %q: price: %w", p.ID, err)
	}
	return model.NewSubscriptionPlan(p.ID, p.Name, price, p.DurationDays, p.Features)
}

type SeedConfig struct {
	Plans []PlanSeed `yaml:"plans"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Commerce  CommerceConfig  `yaml:"commerce"`
	Renewal   RenewalConfig   `yaml:"renewal"`
	Audit     AuditConfig     `yaml:"audit"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Seed      SeedConfig      `yaml:"seed"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies defaults and validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse is LoadConfig without the file read.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 10 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 16
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "carservice"
	}
	cfg.Commerce.MaxRetries = clampRetries(cfg.Commerce.MaxRetries)
	if cfg.Commerce.MaxCategoryDepth <= 0 {
		cfg.Commerce.MaxCategoryDepth = 64
	}
	if cfg.Commerce.Currency == "" {
		cfg.Commerce.Currency = "USD"
	}
	if cfg.Renewal.Interval <= 0 {
		cfg.Renewal.Interval = 5 * time.Minute
	}
	if cfg.Renewal.LockTTL <= 0 {
		cfg.Renewal.LockTTL = cfg.Renewal.Interval
	}
	if cfg.Renewal.BatchSize <= 0 {
		cfg.Renewal.BatchSize = 100
	}
	if cfg.Audit.Workers <= 0 {
		cfg.Audit.Workers = 2
	}
	if cfg.Audit.QueueSize <= 0 {
		cfg.Audit.QueueSize = 1024
	}
	if cfg.RateLimit.WalletOpsPerMinute <= 0 {
		cfg.RateLimit.WalletOpsPerMinute = 30
	}

	// Minimal validation
	switch cfg.Database.Driver {
	case "postgres":
		if cfg.Database.URL == "" {
			return nil, errors.New("database.url is required")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("database.driver %q is not supported", cfg.Database.Driver)
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}

func clampRetries(n int) int {
	switch {
	case n <= 0:
		return 4
	case n > 5:
		return 5
	}
	return n
}
