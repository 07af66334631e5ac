// Package config holds the ledger node's runtime settings: consensus
// parameters, wallet/persistence paths and P2P liveness timing, loaded
// from flags, environment variables and an optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is every setting a running node needs.
type Config struct {
	Port int // P2P listen port. CLI default: 5000.

	FixedReward    int64 // reward paid to every block's coinbase
	DifficultyBits int   // PoW difficulty: target = 1 << (256 - bits)
	DefaultFee     int64 // flat fee attached to transactions this node creates

	AllowUTXOFromPool bool // spend mempool outputs before they confirm

	Curve string // named elliptic curve; informational, secp256k1 is the only one implemented

	AliveTimeout   time.Duration // peer silence before it's dropped
	UpdateInterval time.Duration // heartbeat broadcast period

	SeedAddr string // bootstrap peer, "host:port"

	DataDir  string // wallet/snapshot persistence directory
	LogLevel string
}

// Default returns the settings spec.md names as defaults.
func Default() *Config {
	return &Config{
		Port:              5000,
		FixedReward:       500,
		DifficultyBits:    18,
		DefaultFee:        0,
		AllowUTXOFromPool: true,
		Curve:             "secp256k1",
		AliveTimeout:      60 * time.Second,
		UpdateInterval:    10 * time.Second,
		SeedAddr:          "",
		DataDir:           "./data",
		LogLevel:          "info",
	}
}

// Load layers defaults, an optional config file, environment variables
// prefixed LEDGER_, and CLI flags (highest precedence), the way
// spf13/viper is conventionally wired up behind a cobra command.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	cfg := Default()

	v.SetDefault("port", cfg.Port)
	v.SetDefault("fixed_reward", cfg.FixedReward)
	v.SetDefault("difficulty_bits", cfg.DifficultyBits)
	v.SetDefault("default_fee", cfg.DefaultFee)
	v.SetDefault("allow_utxo_from_pool", cfg.AllowUTXOFromPool)
	v.SetDefault("curve", cfg.Curve)
	v.SetDefault("alive_timeout", cfg.AliveTimeout)
	v.SetDefault("update_interval", cfg.UpdateInterval)
	v.SetDefault("seed_addr", cfg.SeedAddr)
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("log_level", cfg.LogLevel)

	v.SetConfigName("ledgerd")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/ledgerd")
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		// Flag names use dashes (--data-dir); config keys use underscores.
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("config: bind flags: %w", bindErr)
		}
	}

	cfg.Port = v.GetInt("port")
	cfg.FixedReward = v.GetInt64("fixed_reward")
	cfg.DifficultyBits = v.GetInt("difficulty_bits")
	cfg.DefaultFee = v.GetInt64("default_fee")
	cfg.AllowUTXOFromPool = v.GetBool("allow_utxo_from_pool")
	cfg.Curve = v.GetString("curve")
	cfg.AliveTimeout = v.GetDuration("alive_timeout")
	cfg.UpdateInterval = v.GetDuration("update_interval")
	cfg.SeedAddr = v.GetString("seed_addr")
	cfg.DataDir = v.GetString("data_dir")
	cfg.LogLevel = v.GetString("log_level")

	return cfg, cfg.Validate()
}

// Validate rejects settings that can't produce a running node.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port: %d", c.Port)
	}
	if c.DifficultyBits < 1 || c.DifficultyBits > 255 {
		return fmt.Errorf("config: invalid difficulty bits: %d", c.DifficultyBits)
	}
	if c.Curve != "secp256k1" {
		return fmt.Errorf("config: unsupported curve: %s", c.Curve)
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: data directory cannot be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log level: %s", c.LogLevel)
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf(`ledgerd configuration:
  Port:                 %d
  Fixed Reward:         %d
  Difficulty Bits:      %d
  Default Fee:          %d
  Allow UTXO From Pool: %v
  Curve:                %s
  Alive Timeout:        %v
  Update Interval:      %v
  Seed Addr:            %s
  Data Dir:             %s
  Log Level:            %s`,
		c.Port, c.FixedReward, c.DifficultyBits, c.DefaultFee, c.AllowUTXOFromPool,
		c.Curve, c.AliveTimeout, c.UpdateInterval, c.SeedAddr, c.DataDir, c.LogLevel)
}
