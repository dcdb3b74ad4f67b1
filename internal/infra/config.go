package infra

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application settings. Secrets loaded from the file
// are overridden by environment variables after parsing.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		Mode   string `yaml:"mode"`   // PAPER | REAL
		Broker string `yaml:"broker"` // BITGET | TRADIER (REAL mode only)
	} `yaml:"trading"`

	Engine struct {
		QueueSize       int  `yaml:"queue_size"`        // Bounded event inbox capacity.
		Journal         bool `yaml:"journal"`           // Persist the event stream for replay.
		PollIntervalSec int  `yaml:"poll_interval_sec"` // Reconciler cadence for poll vendors.
	} `yaml:"engine"`

	API struct {
		Bitget struct {
			WSURL      string `yaml:"ws_url"`
			RestURL    string `yaml:"rest_url"`
			AccessKey  string `yaml:"access_key"`
			SecretKey  string `yaml:"secret_key"`
			Passphrase string `yaml:"passphrase"`
		} `yaml:"bitget"`
		Tradier struct {
			RestURL   string `yaml:"rest_url"`
			Token     string `yaml:"token"`
			AccountID string `yaml:"account_id"`
		} `yaml:"tradier"`
	} `yaml:"api"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the config file, applies environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	mode := strings.ToUpper(c.Trading.Mode)
	if mode != "" && mode != "PAPER" && mode != "REAL" {
		return fmt.Errorf("invalid trading mode: %s (want PAPER or REAL)", c.Trading.Mode)
	}

	if c.Engine.QueueSize < 0 {
		return fmt.Errorf("engine queue_size must be non-negative")
	}
	if c.Engine.PollIntervalSec < 0 {
		return fmt.Errorf("engine poll_interval_sec must be non-negative")
	}

	if mode == "REAL" {
		switch strings.ToUpper(c.Trading.Broker) {
		case "BITGET":
			if !hasPrefix(c.API.Bitget.WSURL, "ws://") && !hasPrefix(c.API.Bitget.WSURL, "wss://") {
				return fmt.Errorf("invalid Bitget WS URL: %s", c.API.Bitget.WSURL)
			}
			if c.API.Bitget.RestURL == "" {
				return fmt.Errorf("Bitget REST URL is required in REAL mode")
			}
		case "TRADIER":
			if c.API.Tradier.RestURL == "" {
				return fmt.Errorf("Tradier REST URL is required in REAL mode")
			}
			if c.API.Tradier.AccountID == "" {
				return fmt.Errorf("Tradier account_id is required in REAL mode")
			}
		default:
			return fmt.Errorf("invalid broker for REAL mode: %s (want BITGET or TRADIER)", c.Trading.Broker)
		}
	}

	return nil
}

// QueueSizeOrDefault returns the configured inbox capacity or the
// default of 1024.
func (c *Config) QueueSizeOrDefault() int {
	if c.Engine.QueueSize > 0 {
		return c.Engine.QueueSize
	}
	return 1024
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv applies environment variables over file values.
// Rule #5: environment variables win over the config file.
func overrideWithEnv(cfg *Config) {
	// Security Warning: Log if secrets found in config file
	if cfg.API.Bitget.SecretKey != "" || cfg.API.Tradier.Token != "" {
		// Using fmt instead of slog to avoid import cycle
		fmt.Println("⚠️  SECURITY WARNING: API secrets found in config file.")
		fmt.Println("   Recommendation: Use environment variables instead:")
		fmt.Println("   - BROKER_BITGET_KEY, BROKER_BITGET_SECRET, BROKER_BITGET_PASSPHRASE")
		fmt.Println("   - BROKER_TRADIER_TOKEN")
	}

	if key := os.Getenv("BROKER_BITGET_KEY"); key != "" {
		cfg.API.Bitget.AccessKey = key
	}
	if secret := os.Getenv("BROKER_BITGET_SECRET"); secret != "" {
		cfg.API.Bitget.SecretKey = secret
	}
	if pass := os.Getenv("BROKER_BITGET_PASSPHRASE"); pass != "" {
		cfg.API.Bitget.Passphrase = pass
	}
	if token := os.Getenv("BROKER_TRADIER_TOKEN"); token != "" {
		cfg.API.Tradier.Token = token
	}
	if account := os.Getenv("BROKER_TRADIER_ACCOUNT"); account != "" {
		cfg.API.Tradier.AccountID = account
	}
}
