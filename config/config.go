// Package config manages Cadence configuration.
//
// Configuration is layered: defaults, then an optional cadence.toml found
// by walking up from the working directory, then CADENCE_* environment
// variables. The type registry has its own file (see the registry package);
// this package only records where to find it.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the full Cadence configuration tree.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Import   ImportConfig   `mapstructure:"import"`
	Nav      NavConfig      `mapstructure:"nav"`
	Registry RegistryConfig `mapstructure:"registry"`
}

// DatabaseConfig configures the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ImportConfig configures the ingestion pipeline.
type ImportConfig struct {
	// LockTimeoutSeconds bounds how long a batch may hold the scope lock
	// before another import may steal it (crash recovery).
	LockTimeoutSeconds int `mapstructure:"lock_timeout_seconds"`
}

// NavConfig configures the navigation engine.
type NavConfig struct {
	// MaxDepth bounds connectivity traversal. The graph is cyclic;
	// traversal must never descend unbounded.
	MaxDepth int `mapstructure:"max_depth"`
}

// RegistryConfig configures the item type registry.
type RegistryConfig struct {
	// Path to an external types.yaml overriding the embedded registry.
	// Empty means embedded only.
	Path string `mapstructure:"path"`
	// Watch enables hot reload of the external file on change.
	Watch bool `mapstructure:"watch"`
}

var globalConfig *Config
var viperInstance *viper.Viper

// Load reads the Cadence configuration using Viper.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return globalConfig, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetViper returns the Viper instance for advanced configuration access.
func GetViper() *viper.Viper {
	return initViper()
}

// Reset clears the cached configuration (useful for testing).
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "cadence.db")

	v.SetDefault("server.addr", ":8480")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})

	v.SetDefault("import.lock_timeout_seconds", 300)

	v.SetDefault("nav.max_depth", 16)

	v.SetDefault("registry.path", "")
	v.SetDefault("registry.watch", false)
}

// initViper initializes Viper with configuration sources and defaults.
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("CADENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if path := findProjectConfig(); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		// Missing or unreadable project config is not fatal; defaults and
		// environment variables still apply.
		_ = v.ReadInConfig()
	}

	viperInstance = v
	return v
}

// findProjectConfig searches for cadence.toml by walking up the directory
// tree. Returns the first config file found, or empty string if none.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, "cadence.toml")
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
