package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "COMMONPLACE"
	defaultDatabasePath = "commonplace.db"
	defaultDevicePath   = "commonplace-device.json"
	defaultDeviceName   = "commonplace"
	defaultLogLevel     = "info"
)

// AppConfig captures runtime configuration for the CLI.
type AppConfig struct {
	DatabasePath string
	DevicePath   string
	DeviceName   string
	LogLevel     string
	BuryRelated  bool
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("device.path", defaultDevicePath)
	configViper.SetDefault("device.name", defaultDeviceName)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("study.bury_related", true)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		DatabasePath: configViper.GetString("database.path"),
		DevicePath:   configViper.GetString("device.path"),
		DeviceName:   configViper.GetString("device.name"),
		LogLevel:     configViper.GetString("log.level"),
		BuryRelated:  configViper.GetBool("study.bury_related"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.DevicePath) == "" {
		return fmt.Errorf("device.path is required")
	}
	return nil
}
