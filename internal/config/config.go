// Package config loads the entitygrid server configuration from
// entitygrid.yml and the environment.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config represents the entitygrid configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

// ServerConfig represents the HTTP listener configuration
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// DatabaseConfig represents database configuration. Driver selects the SQL
// backend; an empty driver runs on the in-memory store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

// RedisConfig represents the listing-cache backend. An empty address
// disables caching.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig represents the identity configuration
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Require   bool   `mapstructure:"require"`
}

// Load loads the configuration from entitygrid.yml or entitygrid.yaml
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("database.driver", "")
	v.SetDefault("auth.require", true)

	v.SetConfigName("entitygrid")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ENTITYGRID")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func validateConfig(cfg *Config) error {
	switch cfg.Database.Driver {
	case "", "sqlite3", "pgx":
	default:
		return fmt.Errorf("database.driver must be sqlite3 or pgx, got: %s", cfg.Database.Driver)
	}
	if cfg.Database.Driver != "" && cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required when database.driver is set")
	}
	if cfg.Auth.Require && cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth.require is enabled")
	}
	return nil
}
