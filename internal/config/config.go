package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultAggregatorURL is the GoCardless Bank Account Data API base URL.
const DefaultAggregatorURL = "https://bankaccountdata.gocardless.com/api/v2"

// Config holds every runtime setting the service needs. It is built once at
// startup and passed explicitly to component constructors; nothing reads the
// environment after Load returns.
type Config struct {
	// Port is the HTTP listen port.
	Port string

	// AppURL is the externally reachable base URL of this service. The
	// aggregator redirects the user agent back to AppURL + "/results" once
	// bank authorization completes.
	AppURL string

	// Country is the ISO 3166 country code used when listing institutions.
	Country string

	// SharedSecret authenticates both directions of traffic with the
	// finance-tracking backend: inbound query-API calls must carry it, and
	// outbound context-store calls send it.
	SharedSecret string

	// EncryptionKey is the 32-byte AES-256 key used to encrypt bank context
	// payloads before they leave the process.
	EncryptionKey []byte

	// AggregatorURL is the base URL of the open-banking aggregator API.
	AggregatorURL string

	// AggregatorSecretID and AggregatorSecretKey are the aggregator portal
	// credentials used to obtain handshake tokens.
	AggregatorSecretID  string
	AggregatorSecretKey string

	// BackendURL is the base URL of the finance-tracking backend that stores
	// bank contexts and receives web token content.
	BackendURL string

	// SessionTTL bounds how long a linking session may stay idle.
	SessionTTL time.Duration

	// MapConcurrency caps how many accounts are normalized in parallel
	// during a batch. 1 keeps the mapping strictly sequential.
	MapConcurrency int

	// SessionStorePath, when set, switches session storage from the
	// in-memory backend to a sqlite database at this path.
	SessionStorePath string

	// Production suppresses debug detail in error responses.
	Production bool
}

// Load builds a Config from the environment. A .env file in the working
// directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                envOr("APP_PORT", "8080"),
		AppURL:              os.Getenv("APP_URL"),
		Country:             os.Getenv("COUNTRY"),
		SharedSecret:        os.Getenv("ACTUAL_SECRET"),
		AggregatorURL:       envOr("GOCARDLESS_URL", DefaultAggregatorURL),
		AggregatorSecretID:  os.Getenv("SECRET_ID"),
		AggregatorSecretKey: os.Getenv("SECRET_KEY"),
		BackendURL:          os.Getenv("ACTUAL_URL"),
		SessionStorePath:    os.Getenv("SESSION_DB"),
		Production:          os.Getenv("APP_ENV") == "production",
	}

	for name, value := range map[string]string{
		"APP_URL":       cfg.AppURL,
		"COUNTRY":       cfg.Country,
		"ACTUAL_SECRET": cfg.SharedSecret,
		"ACTUAL_URL":    cfg.BackendURL,
		"SECRET_ID":     cfg.AggregatorSecretID,
		"SECRET_KEY":    cfg.AggregatorSecretKey,
	} {
		if value == "" {
			return nil, fmt.Errorf("config: %s is not set", name)
		}
	}

	key := os.Getenv("APP_SECRET")
	if len(key) != 32 {
		return nil, fmt.Errorf("config: APP_SECRET must be exactly 32 bytes, got %d", len(key))
	}
	cfg.EncryptionKey = []byte(key)

	ttl, err := durationOr("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.SessionTTL = ttl

	concurrency, err := intOr("MAP_CONCURRENCY", 1)
	if err != nil {
		return nil, err
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("config: MAP_CONCURRENCY must be at least 1, got %d", concurrency)
	}
	cfg.MapConcurrency = concurrency

	return cfg, nil
}

// RedirectURL is where the aggregator sends the user agent after bank
// authorization.
func (c *Config) RedirectURL() string {
	return c.AppURL + "/results"
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func durationOr(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", name, err)
	}
	return d, nil
}

func intOr(name string, fallback int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", name, err)
	}
	return n, nil
}
