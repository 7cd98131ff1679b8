// Package config loads the immutable configuration structs for the
// daemon and client from YAML, using viper the way
// arthur404dev-heimdall-cli's internal/config does (SetConfigFile +
// ReadInConfig + Unmarshal), replacing the bespoke dotted-path reader in
// original_source/common/config_provider.py.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Daemon is nodozed's configuration.
type Daemon struct {
	LoggingLevel       string `mapstructure:"logging_level" yaml:"logging_level" default:"info"`
	BaseDir            string `mapstructure:"base_dir" yaml:"base_dir" default:"/run/no-doze"`
	FifoPermissions    string `mapstructure:"fifo_permissions" yaml:"fifo_permissions" default:"0666"`
	PollIntervalMin    int    `mapstructure:"poll_interval_min" yaml:"poll_interval_min" default:"1"`
	AboutToSleepSignal int    `mapstructure:"about_to_sleep_signal" yaml:"about_to_sleep_signal" default:"34"`
	UnbindSignal       int    `mapstructure:"unbind_signal" yaml:"unbind_signal" default:"10"`
}

// PollInterval returns PollIntervalMin as a time.Duration.
func (d Daemon) PollInterval() time.Duration {
	return time.Duration(d.PollIntervalMin) * time.Minute
}

// General is the client's "general" config section.
type General struct {
	LoggingLevel       string `mapstructure:"logging_level" yaml:"logging_level" default:"info"`
	BaseDir            string `mapstructure:"base_dir" yaml:"base_dir" default:"/run/no-doze"`
	RetryDelaySec      int    `mapstructure:"retry_delay_sec" yaml:"retry_delay_sec" default:"1"`
	StartupDelayMin    int    `mapstructure:"startup_delay_min" yaml:"startup_delay_min" default:"0"`
	AboutToSleepSignal int    `mapstructure:"about_to_sleep_signal" yaml:"about_to_sleep_signal" default:"34"`
	UnbindSignal       int    `mapstructure:"unbind_signal" yaml:"unbind_signal" default:"10"`
}

// Client is nodoze-client's configuration.
type Client struct {
	General General `mapstructure:"general" yaml:"general"`
}

// RetryDelay returns RetryDelaySec as a time.Duration.
func (g General) RetryDelay() time.Duration {
	return time.Duration(g.RetryDelaySec) * time.Second
}

// StartupDelay returns StartupDelayMin as a time.Duration.
func (g General) StartupDelay() time.Duration {
	return time.Duration(g.StartupDelayMin) * time.Minute
}

// DefaultDaemon returns a Daemon populated with the documented defaults.
func DefaultDaemon() Daemon {
	return Daemon{
		LoggingLevel:       "info",
		BaseDir:            "/run/no-doze",
		FifoPermissions:    "0666",
		PollIntervalMin:    1,
		AboutToSleepSignal: 34,
		UnbindSignal:       10,
	}
}

// DefaultClient returns a Client populated with the documented defaults.
func DefaultClient() Client {
	return Client{General: General{
		LoggingLevel:       "info",
		BaseDir:            "/run/no-doze",
		RetryDelaySec:      1,
		StartupDelayMin:    0,
		AboutToSleepSignal: 34,
		UnbindSignal:       10,
	}}
}

// LoadDaemon reads path as YAML, falling back to DefaultDaemon for any
// key the file doesn't set.
func LoadDaemon(path string) (Daemon, error) {
	cfg := DefaultDaemon()
	v := viper.New()
	setDefaults(v, map[string]interface{}{
		"logging_level":         cfg.LoggingLevel,
		"base_dir":              cfg.BaseDir,
		"fifo_permissions":      cfg.FifoPermissions,
		"poll_interval_min":     cfg.PollIntervalMin,
		"about_to_sleep_signal": cfg.AboutToSleepSignal,
		"unbind_signal":         cfg.UnbindSignal,
	})
	if err := readIfPresent(v, path); err != nil {
		return cfg, err
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: unmarshal daemon config: %w", err)
	}
	return cfg, nil
}

// LoadClient reads path as YAML, falling back to DefaultClient for any
// key the file doesn't set.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()
	v := viper.New()
	setDefaults(v, map[string]interface{}{
		"general.logging_level":         cfg.General.LoggingLevel,
		"general.base_dir":              cfg.General.BaseDir,
		"general.retry_delay_sec":       cfg.General.RetryDelaySec,
		"general.startup_delay_min":     cfg.General.StartupDelayMin,
		"general.about_to_sleep_signal": cfg.General.AboutToSleepSignal,
		"general.unbind_signal":         cfg.General.UnbindSignal,
	})
	if err := readIfPresent(v, path); err != nil {
		return cfg, err
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: unmarshal client config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, defaults map[string]interface{}) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

func readIfPresent(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	return nil
}
