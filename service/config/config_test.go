package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv() {
	os.Setenv("HORIZON_URL", "https://horizon-testnet.stellar.org")
	os.Setenv("NETWORK_PASSPHRASE", "Test SDF Network ; September 2015")
	os.Setenv("RELAY_URL", "https://relay.example.com")
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
}

func cleanupEnv() {
	for _, key := range []string{
		"HORIZON_URL", "NETWORK_PASSPHRASE", "RELAY_URL", "RELAY_ADMIN_TOKEN",
		"SIGNER_SEED", "DATABASE_URL", "NATS_URL", "SERVER_ADDR", "LOG_LEVEL",
		"TEMPORAL_HOST", "TEMPORAL_NAMESPACE", "TEMPORAL_TASK_QUEUE", "SUBMIT_TIMEOUT",
	} {
		os.Unsetenv(key)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	setRequiredEnv()
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "https://horizon-testnet.stellar.org", cfg.HorizonURL)
	assert.Equal(t, "https://relay.example.com", cfg.RelayURL)
	assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
	assert.Equal(t, ":8080", cfg.ServerAddr) // Default
	assert.Equal(t, "info", cfg.LogLevel)    // Default
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, "lumenpipe-submissions", cfg.TemporalTaskQueue)
	assert.Equal(t, 30*time.Second, cfg.SubmitTimeout)
	assert.Empty(t, cfg.SignerSeed, "signer is optional")
	assert.Empty(t, cfg.RelayAdminToken, "admin credential is optional")
}

func TestLoad_MissingHorizonURL(t *testing.T) {
	setRequiredEnv()
	os.Unsetenv("HORIZON_URL")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "HORIZON_URL is required")
}

func TestLoad_MissingRelayURL(t *testing.T) {
	setRequiredEnv()
	os.Unsetenv("RELAY_URL")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "RELAY_URL is required")
}

func TestLoad_MalformedRelayURL(t *testing.T) {
	setRequiredEnv()
	os.Setenv("RELAY_URL", "relay.example.com")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "must use http or https")
}

func TestLoad_InvalidSubmitTimeout(t *testing.T) {
	setRequiredEnv()
	os.Setenv("SUBMIT_TIMEOUT", "invalid")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_SubmitTimeoutTooShort(t *testing.T) {
	setRequiredEnv()
	os.Setenv("SUBMIT_TIMEOUT", "100ms")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "at least 1 second")
}

func TestValidate(t *testing.T) {
	valid := &Config{
		HorizonURL:        "https://horizon.stellar.org",
		NetworkPassphrase: "Public Global Stellar Network ; September 2015",
		RelayURL:          "https://relay.example.com",
		DatabaseURL:       "postgres://localhost/test",
		TemporalHost:      "localhost:7233",
		TemporalNamespace: "default",
		TemporalTaskQueue: "lumenpipe-submissions",
		SubmitTimeout:     30 * time.Second,
	}
	require.NoError(t, valid.Validate())

	invalid := *valid
	invalid.NetworkPassphrase = ""
	require.Error(t, invalid.Validate())
}
