// Package config loads runtime configuration from the environment, with an
// optional .env file for local development. Precedence is .env < OS env <
// explicit overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile           = ".env"
	defaultPort              = "8080"
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultStore             = "memory"
	defaultUnpaidInterval    = time.Minute
	defaultUnpaidWindow      = 15 * time.Minute
	defaultStuckInterval     = 24 * time.Hour
	defaultStuckWindow       = 2 * time.Hour
	defaultIdempotencyHeader = "Idempotency-Key"
	defaultIdempotencyTTL    = 24 * time.Hour
	defaultMaxDeliveryMeters = 5000
	defaultKafkaTopic        = "order-events"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Store       StoreConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Auth        AuthConfig
	Shop        ShopConfig
	Sweeper     SweeperConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Backend is "memory" or "postgres".
	Backend     string
	PostgresDSN string
	// MigrateOnStart runs pending schema migrations during boot.
	MigrateOnStart bool
}

// RedisConfig configures the idempotency store. An empty Addr selects the
// in-memory store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig configures the order event stream. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers string
	Topic   string
}

// AuthConfig carries token verification settings.
type AuthConfig struct {
	JWTSecret string
}

// ShopConfig describes the shop for delivery-range checks. An empty
// GeocoderURL disables range checking.
type ShopConfig struct {
	Address           string
	GeocoderURL       string
	GeocoderKey       string
	MaxDeliveryMeters float64
}

// SweeperConfig tunes the background order sweeper.
type SweeperConfig struct {
	UnpaidInterval time.Duration
	UnpaidWindow   time.Duration
	StuckInterval  time.Duration
	StuckWindow    time.Duration
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header string
	TTL    time.Duration
}

// ValidationError is returned when required configuration fields are missing
// or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map. Values in the map take
// precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables OS environment lookups, useful in tests.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the configuration from the environment.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	values := map[string]string{}
	if options.envFile != "" {
		if fileValues, err := godotenv.Read(options.envFile); err == nil {
			for key, value := range fileValues {
				values[key] = value
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read env file %s: %w", options.envFile, err)
		}
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || key == "" {
				continue
			}
			values[key] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}

	lookup := func(key, fallback string) string {
		if value, ok := values[key]; ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
		return fallback
	}

	var invalid []string

	cfg := Config{
		Server: ServerConfig{
			Port:         lookup("PORT", defaultPort),
			ReadTimeout:  parseDuration(lookup("SERVER_READ_TIMEOUT", ""), defaultReadTimeout, "SERVER_READ_TIMEOUT", &invalid),
			WriteTimeout: parseDuration(lookup("SERVER_WRITE_TIMEOUT", ""), defaultWriteTimeout, "SERVER_WRITE_TIMEOUT", &invalid),
			IdleTimeout:  parseDuration(lookup("SERVER_IDLE_TIMEOUT", ""), defaultIdleTimeout, "SERVER_IDLE_TIMEOUT", &invalid),
		},
		Store: StoreConfig{
			Backend:        strings.ToLower(lookup("STORE_BACKEND", defaultStore)),
			PostgresDSN:    lookup("POSTGRES_DSN", ""),
			MigrateOnStart: parseBool(lookup("STORE_MIGRATE_ON_START", "true"), true),
		},
		Redis: RedisConfig{
			Addr:     lookup("REDIS_ADDR", ""),
			Password: lookup("REDIS_PASSWORD", ""),
			DB:       parseInt(lookup("REDIS_DB", ""), 0, "REDIS_DB", &invalid),
		},
		Kafka: KafkaConfig{
			Brokers: lookup("KAFKA_BROKERS", ""),
			Topic:   lookup("KAFKA_TOPIC", defaultKafkaTopic),
		},
		Auth: AuthConfig{
			JWTSecret: lookup("JWT_SECRET", ""),
		},
		Shop: ShopConfig{
			Address:           lookup("SHOP_ADDRESS", ""),
			GeocoderURL:       lookup("GEOCODER_URL", ""),
			GeocoderKey:       lookup("GEOCODER_KEY", ""),
			MaxDeliveryMeters: parseFloat(lookup("MAX_DELIVERY_METERS", ""), defaultMaxDeliveryMeters, "MAX_DELIVERY_METERS", &invalid),
		},
		Sweeper: SweeperConfig{
			UnpaidInterval: parseDuration(lookup("SWEEPER_UNPAID_INTERVAL", ""), defaultUnpaidInterval, "SWEEPER_UNPAID_INTERVAL", &invalid),
			UnpaidWindow:   parseDuration(lookup("SWEEPER_UNPAID_WINDOW", ""), defaultUnpaidWindow, "SWEEPER_UNPAID_WINDOW", &invalid),
			StuckInterval:  parseDuration(lookup("SWEEPER_STUCK_INTERVAL", ""), defaultStuckInterval, "SWEEPER_STUCK_INTERVAL", &invalid),
			StuckWindow:    parseDuration(lookup("SWEEPER_STUCK_WINDOW", ""), defaultStuckWindow, "SWEEPER_STUCK_WINDOW", &invalid),
		},
		Idempotency: IdempotencyConfig{
			Header: lookup("IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:    parseDuration(lookup("IDEMPOTENCY_TTL", ""), defaultIdempotencyTTL, "IDEMPOTENCY_TTL", &invalid),
		},
	}

	if cfg.Auth.JWTSecret == "" {
		invalid = append(invalid, "JWT_SECRET")
	}
	switch cfg.Store.Backend {
	case "memory":
	case "postgres":
		if cfg.Store.PostgresDSN == "" {
			invalid = append(invalid, "POSTGRES_DSN")
		}
	default:
		invalid = append(invalid, "STORE_BACKEND")
	}
	if cfg.Shop.GeocoderURL != "" && cfg.Shop.Address == "" {
		invalid = append(invalid, "SHOP_ADDRESS")
	}

	if len(invalid) > 0 {
		sort.Strings(invalid)
		return Config{}, &ValidationError{fields: invalid}
	}
	return cfg, nil
}

func parseDuration(value string, fallback time.Duration, field string, invalid *[]string) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		*invalid = append(*invalid, field)
		return fallback
	}
	return d
}

func parseInt(value string, fallback int, field string, invalid *[]string) int {
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*invalid = append(*invalid, field)
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64, field string, invalid *[]string) float64 {
	if value == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f <= 0 {
		*invalid = append(*invalid, field)
		return fallback
	}
	return f
}

func parseBool(value string, fallback bool) bool {
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}
