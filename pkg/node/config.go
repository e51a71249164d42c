package node

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/interop-labs/interop-indexer/pkg/interop"
	ipfslog "github.com/ipfs/go-log/v2"
	"github.com/spf13/viper"
)

// ConfigOptions is used to configure the loading of indexer config parameters.
type ConfigOptions struct {
	// FilePath is the path to the config file to be loaded, including the file name and extension.
	// The file may be any of the types supported by Viper (such as .yaml or .json).
	// When empty, only environment variables and defaults are used.
	FilePath string

	// EnvPrefix is the prefix to be added to environment variables that override config file settings.
	// For instance, setting it to "INDEXER" will cause it to look for variables like "INDEXER_DATADIR".
	EnvPrefix string
}

// ChainConfig names a chain of the interop set.
type ChainConfig struct {
	ChainID uint64 `mapstructure:"chainId"`
	Name    string `mapstructure:"name"`
}

type Config struct {
	// DataDir holds the badger database. Ignored when PostgresURL is set.
	DataDir string `mapstructure:"dataDir"`
	// PostgresURL selects the SQL store.
	PostgresURL          string        `mapstructure:"postgresUrl"`
	LogLevel             string        `mapstructure:"logLevel"`
	PayloadHashCacheSize int           `mapstructure:"payloadHashCacheSize"`
	MessengerAddress     string        `mapstructure:"messengerAddress"`
	InboxAddress         string        `mapstructure:"inboxAddress"`
	Chains               []ChainConfig `mapstructure:"chains"`
}

// DefaultChains is the two-chain devnet.
var DefaultChains = []ChainConfig{
	{ChainID: 901, Name: "opChainA"},
	{ChainID: 902, Name: "opChainB"},
}

func setDefaults(v *viper.Viper) {
	chains := make([]map[string]interface{}, 0, len(DefaultChains))
	for _, c := range DefaultChains {
		chains = append(chains, map[string]interface{}{"chainId": c.ChainID, "name": c.Name})
	}

	v.SetDefault("dataDir", "")
	v.SetDefault("postgresUrl", "")
	v.SetDefault("logLevel", "info")
	v.SetDefault("payloadHashCacheSize", 4096)
	v.SetDefault("messengerAddress", interop.MessengerAddress.Hex())
	v.SetDefault("inboxAddress", interop.InboxAddress.Hex())
	v.SetDefault("chains", chains)
}

// LoadConfig reads the configuration according to the following precedence:
// 1. Environment variables
// 2. Config file
// 3. Default values
func LoadConfig(options ConfigOptions) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if options.FilePath != "" {
		v.SetConfigFile(options.FilePath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", options.FilePath, err)
		}
	}

	// Example: dataDir will be bound to INDEXER_DATADIR
	v.SetEnvPrefix(options.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for errors. All problems are reported at once.
func (c *Config) Validate() error {
	var errs []error

	if c.DataDir == "" && c.PostgresURL == "" {
		errs = append(errs, errors.New("either dataDir or postgresUrl must be set"))
	}
	if _, err := ipfslog.LevelFromString(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid logLevel %q: %w", c.LogLevel, err))
	}
	if c.PayloadHashCacheSize <= 0 {
		errs = append(errs, fmt.Errorf("payloadHashCacheSize must be positive, got %d", c.PayloadHashCacheSize))
	}
	if !common.IsHexAddress(c.MessengerAddress) {
		errs = append(errs, fmt.Errorf("invalid messengerAddress %q", c.MessengerAddress))
	}
	if !common.IsHexAddress(c.InboxAddress) {
		errs = append(errs, fmt.Errorf("invalid inboxAddress %q", c.InboxAddress))
	}

	if len(c.Chains) == 0 {
		errs = append(errs, errors.New("at least one chain must be configured"))
	}
	seen := make(map[uint64]struct{}, len(c.Chains))
	for _, chain := range c.Chains {
		if chain.ChainID == 0 {
			errs = append(errs, fmt.Errorf("chain %q has no chainId", chain.Name))
			continue
		}
		if _, ok := seen[chain.ChainID]; ok {
			errs = append(errs, fmt.Errorf("duplicate chainId %d", chain.ChainID))
		}
		seen[chain.ChainID] = struct{}{}
	}

	return errors.Join(errs...)
}

// ChainIDs returns the configured chain ids in config order.
func (c *Config) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(c.Chains))
	for _, chain := range c.Chains {
		ids = append(ids, chain.ChainID)
	}
	return ids
}
