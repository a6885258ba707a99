package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName         = "KetchupSmartPay"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultCurrency        = "NAD"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultVerificationTTL = 5 * time.Minute
	defaultUpstreamTimeout = 10 * time.Second
	defaultRunLockTTL      = 15 * time.Minute
	defaultMaxStaleness    = 2 * time.Minute

	// PSD-3 §11.4 dormancy lifecycle: warn at five months, dormant at six,
	// hold recovered funds for three years.
	defaultWarningDays    = 152
	defaultDormancyDays   = 183
	defaultHoldDays       = 1095
	defaultToleranceCents = 100 // 1.00 in minor units absorbs rounding only
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName  string
	AppEnv   string
	Port     string
	LogLevel string
	Currency string

	DatabaseURL string
	RedisURL    string
	JWTSecret   string

	ShutdownPeriod  time.Duration
	IdempotencyTTL  time.Duration
	VerificationTTL time.Duration
	UpstreamTimeout time.Duration
	RunLockTTL      time.Duration

	// ReserveToleranceCents is the rounding epsilon for the 100% coverage
	// requirement; shortfalls beyond it are genuine deficiencies.
	ReserveToleranceCents int64
	// ReconciliationMaxStaleness bounds the gap between the trust balance
	// read and the liability sum within one reconciliation run.
	ReconciliationMaxStaleness time.Duration

	DormancyWarningDays   int
	DormancyThresholdDays int
	DormancyHoldDays      int
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:  getEnv("APP_NAME", defaultAppName),
		AppEnv:   getEnv("APP_ENV", defaultAppEnv),
		Port:     getEnv("PORT", defaultPort),
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		Currency: getEnv("CURRENCY", defaultCurrency),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		ShutdownPeriod:  defaultShutdownDelay,
		IdempotencyTTL:  defaultIdempotencyTTL,
		VerificationTTL: defaultVerificationTTL,
		UpstreamTimeout: defaultUpstreamTimeout,
		RunLockTTL:      defaultRunLockTTL,

		ReserveToleranceCents:      defaultToleranceCents,
		ReconciliationMaxStaleness: defaultMaxStaleness,

		DormancyWarningDays:   defaultWarningDays,
		DormancyThresholdDays: defaultDormancyDays,
		DormancyHoldDays:      defaultHoldDays,
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownPeriod},
		{"IDEMPOTENCY_TTL", &cfg.IdempotencyTTL},
		{"VERIFICATION_TTL", &cfg.VerificationTTL},
		{"UPSTREAM_TIMEOUT", &cfg.UpstreamTimeout},
		{"RUN_LOCK_TTL", &cfg.RunLockTTL},
		{"RECONCILIATION_MAX_STALENESS", &cfg.ReconciliationMaxStaleness},
	}
	for _, d := range durations {
		if v := os.Getenv(d.env); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", d.env, err)
			}
			*d.dst = parsed
		}
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"DORMANCY_WARNING_DAYS", &cfg.DormancyWarningDays},
		{"DORMANCY_THRESHOLD_DAYS", &cfg.DormancyThresholdDays},
		{"DORMANCY_HOLD_DAYS", &cfg.DormancyHoldDays},
	}
	for _, i := range ints {
		if v := os.Getenv(i.env); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", i.env, err)
			}
			*i.dst = parsed
		}
	}

	if v := os.Getenv("RESERVE_TOLERANCE_CENTS"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RESERVE_TOLERANCE_CENTS: %w", err)
		}
		cfg.ReserveToleranceCents = parsed
	}

	if cfg.DormancyWarningDays >= cfg.DormancyThresholdDays {
		return Config{}, fmt.Errorf("DORMANCY_WARNING_DAYS must be below DORMANCY_THRESHOLD_DAYS")
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set")
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
