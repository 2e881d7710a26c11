package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/viper"
)

// ChainConfig describes one EVM network
type ChainConfig struct {
	ChainID  int64   `mapstructure:"chain_id"`
	Name     string  `mapstructure:"name"`
	RPCURL   string  `mapstructure:"rpc_url"`
	GasLimit *uint64 `mapstructure:"gas_limit"`
}

// TokenConfig is one token registry entry
type TokenConfig struct {
	Ticker      string `mapstructure:"ticker"`
	ChainID     int64  `mapstructure:"chain_id"`
	Address     string `mapstructure:"address"`
	Decimals    uint8  `mapstructure:"decimals"`
	CanDeposit  bool   `mapstructure:"can_deposit"`
	CanWithdraw bool   `mapstructure:"can_withdraw"`
	CanSwap     bool   `mapstructure:"can_swap"`
	CanBridge   bool   `mapstructure:"can_bridge"`
}

// StoreConfig selects and configures the persisted store backend
type StoreConfig struct {
	Backend       string `mapstructure:"backend"` // "file" or "redis"
	FilePath      string `mapstructure:"file_path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// Config holds the application configuration
type Config struct {
	PrivateKey  string        `mapstructure:"private_key"`
	RouterURL   string        `mapstructure:"router_url"`
	ProtocolURL string        `mapstructure:"protocol_url"`
	Chains      []ChainConfig `mapstructure:"chains"`
	Tokens      []TokenConfig `mapstructure:"tokens"`
	// Vaults maps chain id (as a string key) to the protocol vault address
	Vaults map[string]string `mapstructure:"vaults"`
	Store  StoreConfig       `mapstructure:"store"`
}

var globalConfig *Config

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetConfigName(".intentflow")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	viper.SetDefault("store.backend", "file")

	viper.SetEnvPrefix("INTENTFLOW")
	viper.AutomaticEnv()

	// Config file is optional; env vars can carry everything
	_ = viper.ReadInConfig()

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("private key not found. Please set INTENTFLOW_PRIVATE_KEY or add private_key to .intentflow.yaml")
	}
	if cfg.RouterURL == "" {
		return nil, fmt.Errorf("router_url is required")
	}
	if cfg.ProtocolURL == "" {
		return nil, fmt.Errorf("protocol_url is required")
	}
	if len(cfg.Chains) == 0 {
		return nil, fmt.Errorf("at least one chain must be configured")
	}

	globalConfig = cfg
	return cfg, nil
}

// VaultAddresses returns the vault table keyed by numeric chain id
func (c *Config) VaultAddresses() (map[int64]string, error) {
	vaults := make(map[int64]string, len(c.Vaults))
	for key, addr := range c.Vaults {
		chainID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid vault chain id %q: %w", key, err)
		}
		vaults[chainID] = addr
	}
	return vaults, nil
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
