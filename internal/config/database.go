package config

import (
	"github.com/spf13/viper"
)

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL            string
	MigrationsPath string
}

// NewDatabaseConfig creates a new database configuration using Viper
func NewDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		URL:            viper.GetString(DBURL),
		MigrationsPath: viper.GetString(MigrationsPath),
	}
}

// GetConnectionString returns the PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return c.URL
}
