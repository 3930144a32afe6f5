package config

import (
	"fmt"
	"net/url"
)

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// LoadDatabaseConfig loads database configuration from environment variables
func LoadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:      getEnv("DATABASE_URL", ""),
		Host:     getEnv("DB_HOST", ""),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", ""),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", ""),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
}

// DSN returns DATABASE_URL when set, otherwise a URL built from the DB_* fields
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%s", c.Host, c.Port),
		Path:     c.Name,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

// ValidateDatabaseConfig validates database configuration
func (c *DatabaseConfig) ValidateDatabaseConfig() error {
	if c.URL != "" {
		return nil
	}

	required := []struct {
		field string
		value string
	}{
		{"DB_HOST", c.Host},
		{"DB_USER", c.User},
		{"DB_NAME", c.Name},
	}
	for _, r := range required {
		if r.value == "" {
			return &ConfigError{Field: r.field, Message: fmt.Sprintf("%s is required when DATABASE_URL is not set", r.field)}
		}
	}
	return nil
}
