package config

import (
	"fmt"

	"github.com/tigerroll/recordbatch/pkg/batch/support/util/configbinder"
)

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Type     string     `yaml:"type"`             // Database type ("postgres", "mysql", "sqlite").
	Host     string     `yaml:"host"`             // Database host address.
	Port     int        `yaml:"port"`             // Database port number.
	Database string     `yaml:"database"`         // Database name, or the file path for SQLite.
	User     string     `yaml:"user"`             // Database user.
	Password string     `yaml:"password"`         // Database password.
	Schema   string     `yaml:"schema,omitempty"` // Schema name for PostgreSQL.
	Sslmode  string     `yaml:"sslmode"`          // SSL mode for the connection.
	Pool     PoolConfig `yaml:"pool"`             // Connection pool settings.
}

// Decode extracts the named connection from the raw "database" configuration section.
func Decode(raw map[string]interface{}, name string) (DatabaseConfig, error) {
	var cfg DatabaseConfig
	namedConfig, ok := raw[name]
	if !ok {
		return cfg, fmt.Errorf("database configuration '%s' not found", name)
	}
	props, ok := namedConfig.(map[string]interface{})
	if !ok {
		return cfg, fmt.Errorf("invalid database configuration format for '%s': expected a mapping", name)
	}
	if err := configbinder.BindProperties(props, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode database config for '%s': %w", name, err)
	}
	return cfg, nil
}
