package config

import (
	"fmt"
	"net/url"
	"os"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Ledger configuration
	HorizonURL        string
	NetworkPassphrase string

	// SignerSeed is the optional secret seed used to sign compiled
	// envelopes. Empty means envelopes pass to the relay unsigned.
	SignerSeed string

	// Relay configuration
	RelayURL string

	// RelayAdminToken is the privileged credential for token generation.
	// Optional; the generation endpoint is disabled without it.
	RelayAdminToken string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// SubmitTimeout bounds each relay HTTP call.
	SubmitTimeout time.Duration
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Ledger configuration
	cfg.HorizonURL = os.Getenv("HORIZON_URL")
	if cfg.HorizonURL == "" {
		errs = append(errs, fmt.Errorf("HORIZON_URL is required"))
	}

	cfg.NetworkPassphrase = os.Getenv("NETWORK_PASSPHRASE")
	if cfg.NetworkPassphrase == "" {
		errs = append(errs, fmt.Errorf("NETWORK_PASSPHRASE is required"))
	}

	cfg.SignerSeed = os.Getenv("SIGNER_SEED")

	// Relay configuration
	cfg.RelayURL = os.Getenv("RELAY_URL")
	if cfg.RelayURL == "" {
		errs = append(errs, fmt.Errorf("RELAY_URL is required"))
	} else if err := validateURL("RELAY_URL", cfg.RelayURL); err != nil {
		errs = append(errs, err)
	}

	cfg.RelayAdminToken = os.Getenv("RELAY_ADMIN_TOKEN")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "lumenpipe-submissions")

	// Submission configuration
	submitTimeout, err := parseDuration("SUBMIT_TIMEOUT", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SubmitTimeout = submitTimeout
	}

	if cfg.SubmitTimeout > 0 && cfg.SubmitTimeout < time.Second {
		errs = append(errs, fmt.Errorf("SUBMIT_TIMEOUT must be at least 1 second"))
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.HorizonURL == "" {
		errs = append(errs, fmt.Errorf("HorizonURL is required"))
	}

	if c.NetworkPassphrase == "" {
		errs = append(errs, fmt.Errorf("NetworkPassphrase is required"))
	}

	if c.RelayURL == "" {
		errs = append(errs, fmt.Errorf("RelayURL is required"))
	} else if err := validateURL("RelayURL", c.RelayURL); err != nil {
		errs = append(errs, err)
	}

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.SubmitTimeout < time.Second {
		errs = append(errs, fmt.Errorf("SubmitTimeout must be at least 1 second"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// validateURL checks that the value parses as an absolute http(s) URL.
func validateURL(key, value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: malformed URL %q: %w", key, value, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: URL %q must use http or https", key, value)
	}
	if u.Host == "" {
		return fmt.Errorf("%s: URL %q has no host", key, value)
	}
	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}
