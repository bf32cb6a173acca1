// Package config holds the settings shared by all commands. Values come
// from the config file, DWARFY_* environment variables and flags, merged
// by viper.
package config

import (
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Keys
const (
	KeyLogLevel       = "log.level"
	KeyLogDevelopment = "log.development"
	KeyScanWorkers    = "scan.workers"
	KeyScanByteOrder  = "scan.byte_order"
	KeyDumpMaxDepth   = "dump.max_depth"
	KeyDisassSyntax   = "disass.syntax"
)

// EnvPrefix environment variables are DWARFY_LOG_LEVEL etc.
const EnvPrefix = "DWARFY"

// Config the decoded settings
type Config struct {
	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`

	Scan struct {
		Workers   int    `mapstructure:"workers"`
		ByteOrder string `mapstructure:"byte_order"` // auto, sniff, little or big
	} `mapstructure:"scan"`

	Dump struct {
		MaxDepth int `mapstructure:"max_depth"` // negative means unlimited
	} `mapstructure:"dump"`

	Disass struct {
		Syntax string `mapstructure:"syntax"` // go, gnu or intel
	} `mapstructure:"disass"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogDevelopment, false)
	v.SetDefault(KeyScanWorkers, 0)
	v.SetDefault(KeyScanByteOrder, "auto")
	v.SetDefault(KeyDumpMaxDepth, -1)
	v.SetDefault(KeyDisassSyntax, "gnu")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	switch c.Scan.ByteOrder {
	case "auto", "sniff", "little", "big":
	default:
		return errors.Errorf("%s: %q, expected auto, sniff, little or big", KeyScanByteOrder, c.Scan.ByteOrder)
	}
	switch c.Disass.Syntax {
	case "go", "gnu", "intel":
	default:
		return errors.Errorf("%s: %q, expected go, gnu or intel", KeyDisassSyntax, c.Disass.Syntax)
	}
	return nil
}

// ByteOrder returns the forced byte order, or nil when the ELF header
// decides (auto) or the caller should sniff .debug_info.
func (c *Config) ByteOrder() binary.ByteOrder {
	switch c.Scan.ByteOrder {
	case "little":
		return binary.LittleEndian
	case "big":
		return binary.BigEndian
	}
	return nil
}
