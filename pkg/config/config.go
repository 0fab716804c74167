// Package config loads service settings from defaults, an optional YAML file
// and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Database struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	Name         string `yaml:"name"`
	EntriesTable string `yaml:"entriesTable"`
	AutoMigrate  bool   `yaml:"autoMigrate"`
}

type Auth struct {
	JWTSecret         string `yaml:"jwtSecret"`
	AdminPassword     string `yaml:"adminPassword"`
	RequireAdminToken bool   `yaml:"requireAdminToken"`
}

type Cache struct {
	RedisURL string        `yaml:"redisURL"`
	TTL      time.Duration `yaml:"ttl"`
}

type Config struct {
	Port          int      `yaml:"port"`
	Database      Database `yaml:"database"`
	Auth          Auth     `yaml:"auth"`
	Cache         Cache    `yaml:"cache"`
	DefaultRole   string   `yaml:"defaultRole"`
	DefaultAmount string   `yaml:"defaultAmount"`
	InboxDir      string   `yaml:"inboxDir"`
}

const devJWTSecret = "dev-insecure-secret-change"

func Defaults() Config {
	return Config{
		Port: 8081,
		Database: Database{
			Driver:       "postgres",
			EntriesTable: "entries",
			AutoMigrate:  true,
		},
		Auth:          Auth{JWTSecret: devJWTSecret},
		Cache:         Cache{TTL: 30 * time.Second},
		DefaultRole:   "unassigned",
		DefaultAmount: "50",
		InboxDir:      "inbox",
	}
}

// LoadDotEnv loads ./.env without overwriting variables already set.
func LoadDotEnv() {
	if _, err := os.Stat(".env"); err != nil {
		return
	}
	_ = godotenv.Load(".env")
}

// Load builds the configuration. A YAML file is read when CONFIG_PATH names
// one; environment variables always win.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.New("invalid PORT env variable")
		}
		cfg.Port = port
	}
	setString(&cfg.Database.Driver, "DB_DRIVER")
	setString(&cfg.Database.DSN, "DB_DSN")
	setString(&cfg.Database.Name, "DB_NAME")
	setString(&cfg.Database.EntriesTable, "ENTRIES_TABLE")
	if v := os.Getenv("DB_AUTO_MIGRATE"); v != "" {
		cfg.Database.AutoMigrate = parseBool(v)
	}
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Auth.AdminPassword, "ADMIN_PASSWORD")
	if v := os.Getenv("REQUIRE_ADMIN_TOKEN"); v != "" {
		cfg.Auth.RequireAdminToken = parseBool(v)
	}
	setString(&cfg.Cache.RedisURL, "REDIS_URL")
	if v := os.Getenv("CACHE_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CACHE_TTL: %w", err)
		}
		cfg.Cache.TTL = ttl
	}
	setString(&cfg.DefaultRole, "DEFAULT_ROLE")
	setString(&cfg.DefaultAmount, "DEFAULT_AMOUNT")
	setString(&cfg.InboxDir, "INBOX_DIR")
	return nil
}

func (c Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (use postgres or sqlite)", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("DB_DSN is not set. A database DSN is required")
	}
	if strings.TrimSpace(c.Database.EntriesTable) == "" {
		return errors.New("ENTRIES_TABLE must not be empty")
	}
	if c.Port <= 0 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := c.Amount(); err != nil {
		return err
	}
	return nil
}

// Amount is the per-band amount used when a submission names none.
func (c Config) Amount() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.DefaultAmount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid DEFAULT_AMOUNT %q: %w", c.DefaultAmount, err)
	}
	return d, nil
}

// UsingDevSecret reports whether the JWT secret is the built-in fallback.
func (c Config) UsingDevSecret() bool {
	return c.Auth.JWTSecret == devJWTSecret
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "false", "0", "no", "off":
		return false
	}
	return true
}
