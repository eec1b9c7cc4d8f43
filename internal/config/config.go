// Package config loads process configuration from the environment.
// A .env file in the working directory is applied first when present.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const prefix = "CLUBHOUSE_"

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Defaults used when a key is unset.
const (
	DefaultAddr            = ":8080"
	DefaultDBPath          = "clubhouse.db"
	DefaultOutboxInterval  = 30 * time.Second
	DefaultSlowRequest     = 500 * time.Millisecond
	DefaultRateLimit       = 10
	DefaultStaffDateLayout = "02/01/2006"
	DefaultAdminDateLayout = "2006-01-02 15:04"
	DefaultSubjectPrefix   = "clubhouse.notifications"
	defaultDevJWTSecret    = "clubhouse-development-secret-change-me"
	minProductionSecretLen = 32
)

type Config struct {
	Env      string
	Addr     string
	LogLevel string

	DBDriver    string
	DBPath      string
	DatabaseURL string

	CSRFKey   []byte
	JWTSecret string

	AdminEmail    string
	AdminPassword string

	ResendKey  string
	ResendFrom string

	NATSURL             string
	NotifySubjectPrefix string
	OutboxInterval      time.Duration

	SlowRequest        time.Duration
	RateLimitPerSecond int

	StaffDateLayout string
	AdminDateLayout string
}

// IsProduction reports whether the process runs with CLUBHOUSE_ENV=production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads .env (if present) and the environment, then validates the result.
// PRE: none
// POST: Returns a validated Config or the first problem found
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Env:                 getEnv("ENV", "development"),
		Addr:                getEnv("ADDR", DefaultAddr),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DBDriver:            strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DBPath:              getEnv("DB_PATH", DefaultDBPath),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		JWTSecret:           getEnv("JWT_SECRET", ""),
		AdminEmail:          getEnv("ADMIN_EMAIL", "admin@clubhouse.local"),
		AdminPassword:       getEnv("ADMIN_PASSWORD", "clubhouse admin password"),
		ResendKey:           getEnv("RESEND_KEY", ""),
		ResendFrom:          getEnv("RESEND_FROM", "Clubhouse <noreply@clubhouse.local>"),
		NATSURL:             getEnv("NATS_URL", ""),
		NotifySubjectPrefix: getEnv("NOTIFY_SUBJECT_PREFIX", DefaultSubjectPrefix),
		StaffDateLayout:     getEnv("DATE_FORMAT_STAFF", DefaultStaffDateLayout),
		AdminDateLayout:     getEnv("DATE_FORMAT_ADMIN", DefaultAdminDateLayout),
	}

	var err error
	if cfg.OutboxInterval, err = getEnvDuration("OUTBOX_INTERVAL", DefaultOutboxInterval); err != nil {
		return nil, err
	}
	slowMS, err := getEnvInt("SLOW_REQUEST_MS", int(DefaultSlowRequest/time.Millisecond))
	if err != nil {
		return nil, err
	}
	cfg.SlowRequest = time.Duration(slowMS) * time.Millisecond
	if cfg.RateLimitPerSecond, err = getEnvInt("RATE_LIMIT_PER_SECOND", DefaultRateLimit); err != nil {
		return nil, err
	}

	if keyHex := getEnv("CSRF_KEY", ""); keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil || len(key) != 32 {
			return nil, fmt.Errorf("%sCSRF_KEY must be 64 hex characters (32 bytes)", prefix)
		}
		cfg.CSRFKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Development conveniences, applied only after production rules passed.
	if len(cfg.CSRFKey) == 0 {
		cfg.CSRFKey = make([]byte, 32)
		if _, err := rand.Read(cfg.CSRFKey); err != nil {
			return nil, fmt.Errorf("generate csrf key: %w", err)
		}
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = defaultDevJWTSecret
	}
	return cfg, nil
}

// Validate checks driver selection and production secrets.
// PRE: Config populated
// POST: Returns nil if the config can start a server
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("%sDB_PATH is required for the sqlite driver", prefix)
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%sDATABASE_URL is required for the postgres driver", prefix)
		}
	default:
		return fmt.Errorf("%sDB_DRIVER %q is not supported (sqlite, postgres)", prefix, c.DBDriver)
	}
	if c.OutboxInterval <= 0 {
		return fmt.Errorf("%sOUTBOX_INTERVAL must be positive", prefix)
	}
	if c.RateLimitPerSecond <= 0 {
		return fmt.Errorf("%sRATE_LIMIT_PER_SECOND must be positive", prefix)
	}
	if !c.IsProduction() {
		return nil
	}
	if len(c.CSRFKey) == 0 {
		return fmt.Errorf("%sCSRF_KEY is required in production", prefix)
	}
	if len(c.JWTSecret) < minProductionSecretLen {
		return fmt.Errorf("%sJWT_SECRET must be at least %d characters in production", prefix, minProductionSecretLen)
	}
	if c.AdminPassword == "clubhouse admin password" {
		return fmt.Errorf("%sADMIN_PASSWORD must be changed from the default in production", prefix)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(prefix + key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", prefix, key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", prefix, key, err)
	}
	return d, nil
}
