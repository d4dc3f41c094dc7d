package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures everything the service reads from its environment.
type Config struct {
	Addr        string
	DatabaseURL string

	LogLevel  string
	LogFormat string

	// RateLimitRPS is the sustained per-client request rate; RateLimitBurst
	// is the bucket size. RPS <= 0 disables limiting.
	RateLimitRPS   float64
	RateLimitBurst int
	// TrustProxyHeaders keys clients by X-Forwarded-For / X-Real-IP. Only
	// safe behind a proxy that overwrites those headers.
	TrustProxyHeaders bool

	AllowedOrigins  []string
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
	TxMaxAttempts   int
}

// Defaults mirror the public service: 100 requests per 15 minutes per client.
const (
	defaultPort        = "8080"
	defaultDatabaseURL = "./bitespeed.db"
	defaultBurst       = 100
	defaultBodyBytes   = 10 << 20
	defaultShutdown    = 10 * time.Second
	defaultTxAttempts  = 3
)

var defaultRPS = 100.0 / (15 * time.Minute).Seconds()

// Load reads an optional .env file and then builds the config from the
// process environment. A missing .env is not an error.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	port := getEnv("PORT", defaultPort)

	cfg := Config{
		Addr:           ":" + port,
		DatabaseURL:    getEnv("DATABASE_URL", defaultDatabaseURL),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		AllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}

	var err error
	if cfg.RateLimitRPS, err = floatEnv("RATE_LIMIT_RPS", defaultRPS); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitBurst, err = intEnv("RATE_LIMIT_BURST", defaultBurst); err != nil {
		return Config{}, err
	}
	if cfg.TrustProxyHeaders, err = boolEnv("TRUST_PROXY_HEADERS", false); err != nil {
		return Config{}, err
	}
	maxBody, err := intEnv("MAX_BODY_BYTES", defaultBodyBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxBodyBytes = int64(maxBody)
	if cfg.TxMaxAttempts, err = intEnv("TX_MAX_ATTEMPTS", defaultTxAttempts); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = durationEnv("SHUTDOWN_TIMEOUT", defaultShutdown); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return f, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
