package node

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/interop-labs/interop-indexer/pkg/interop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(ConfigOptions{EnvPrefix: "IDXDEFAULTS"})
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 4096, cfg.PayloadHashCacheSize)
	assert.Equal(t, interop.MessengerAddress.Hex(), cfg.MessengerAddress)
	assert.Equal(t, interop.InboxAddress.Hex(), cfg.InboxAddress)
	assert.Equal(t, DefaultChains, cfg.Chains)
	assert.Equal(t, []uint64{901, 902}, cfg.ChainIDs())

	// Nothing to store into yet.
	assert.ErrorContains(t, cfg.Validate(), "either dataDir or postgresUrl must be set")
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "indexer.yaml")
	contents := `
dataDir: /var/lib/indexer
logLevel: debug
payloadHashCacheSize: 10
chains:
  - chainId: 10
    name: op
  - chainId: 8453
    name: base
  - chainId: 7777777
    name: zora
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))

	cfg, err := LoadConfig(ConfigOptions{FilePath: path, EnvPrefix: "IDXFILE"})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/var/lib/indexer", cfg.DataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 10, cfg.PayloadHashCacheSize)
	assert.Equal(t, []uint64{10, 8453, 7777777}, cfg.ChainIDs())
	assert.Equal(t, "base", cfg.Chains[1].Name)
	// Unset keys keep their defaults.
	assert.Equal(t, interop.MessengerAddress.Hex(), cfg.MessengerAddress)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "indexer.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"dataDir": "/from/file", "payloadHashCacheSize": 10}`), 0600))

	t.Setenv("IDXENV_DATADIR", "/from/env")
	t.Setenv("IDXENV_PAYLOADHASHCACHESIZE", "77")
	t.Setenv("IDXENV_POSTGRESURL", "postgres://indexer@localhost/indexer?sslmode=disable")

	cfg, err := LoadConfig(ConfigOptions{FilePath: path, EnvPrefix: "IDXENV"})
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.DataDir)
	assert.Equal(t, 77, cfg.PayloadHashCacheSize)
	assert.Equal(t, "postgres://indexer@localhost/indexer?sslmode=disable", cfg.PostgresURL)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(ConfigOptions{FilePath: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		DataDir:              "/tmp/indexer",
		LogLevel:             "info",
		PayloadHashCacheSize: 16,
		MessengerAddress:     interop.MessengerAddress.Hex(),
		InboxAddress:         interop.InboxAddress.Hex(),
		Chains:               append([]ChainConfig(nil), DefaultChains...),
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	postgresOnly := validConfig()
	postgresOnly.DataDir = ""
	postgresOnly.PostgresURL = "postgres://localhost/indexer"
	require.NoError(t, postgresOnly.Validate())

	tests := []struct {
		name     string
		mutate   func(c *Config)
		contains string
	}{
		{"no chains", func(c *Config) { c.Chains = nil }, "at least one chain"},
		{"duplicate chain", func(c *Config) { c.Chains = append(c.Chains, ChainConfig{ChainID: 901, Name: "again"}) }, "duplicate chainId 901"},
		{"zero chain id", func(c *Config) { c.Chains[0].ChainID = 0 }, "has no chainId"},
		{"bad messenger", func(c *Config) { c.MessengerAddress = "0x1234" }, "invalid messengerAddress"},
		{"bad inbox", func(c *Config) { c.InboxAddress = "inbox" }, "invalid inboxAddress"},
		{"zero cache", func(c *Config) { c.PayloadHashCacheSize = 0 }, "payloadHashCacheSize must be positive"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "invalid logLevel"},
		{"no store", func(c *Config) { c.DataDir = "" }, "either dataDir or postgresUrl"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(c)
			assert.ErrorContains(t, c.Validate(), tc.contains)
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	c := validConfig()
	c.Chains = nil
	c.PayloadHashCacheSize = -1

	err := c.Validate()
	assert.ErrorContains(t, err, "at least one chain")
	assert.ErrorContains(t, err, "payloadHashCacheSize")
}
