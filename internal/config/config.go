package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Domain sources
const (
	SourcePostgres = "postgres"
	SourceFile     = "file"
	SourceBlob     = "blob"
)

// Rule sinks
const (
	SinkPostgres   = "postgres"
	SinkBlob       = "blob"
	SinkServiceBus = "servicebus"
	SinkStdout     = "stdout"
)

var (
	validSources = []string{SourcePostgres, SourceFile, SourceBlob}
	validSinks   = []string{SinkPostgres, SinkBlob, SinkServiceBus, SinkStdout}
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Azure    AzureConfig
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	LogLevel     string
	DNSTimeout   int // seconds - per lookup
	DNSRateLimit int // queries per second
	DNSResolvers []string
	BatchSize    int
	MetricsAddr  string
	// Domain input
	DomainSource string
	DomainsFile  string
	DomainsBlob  string
	// Rule output
	RuleSinks []string
	// Discord webhook settings
	DiscordWebhookURL   string
	NotificationTimeout int // seconds - timeout for Discord webhook requests
}

// LoadEnvFile loads variables from a .env file without overriding ones already set.
// An empty path tries ./.env and ignores its absence.
func LoadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &ConfigError{Field: "ENV_FILE", Message: fmt.Sprintf("failed to load .env: %v", err)}
		}
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		return &ConfigError{Field: "ENV_FILE", Message: fmt.Sprintf("failed to load %s: %v", path, err)}
	}
	return nil
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		App:      LoadAppConfig(),
		Database: LoadDatabaseConfig(),
		Azure:    LoadAzureConfig(),
	}
}

// LoadAppConfig loads application-specific configuration
func LoadAppConfig() AppConfig {
	return AppConfig{
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DNSTimeout:          getEnvAsInt("DNS_TIMEOUT", 5),
		DNSRateLimit:        getEnvAsInt("DNS_RATE_LIMIT", 100),
		DNSResolvers:        getEnvAsList("DNS_RESOLVERS", nil),
		BatchSize:           getEnvAsInt("BATCH_SIZE", 100),
		MetricsAddr:         getEnv("METRICS_ADDR", ""),
		DomainSource:        strings.ToLower(getEnv("DOMAIN_SOURCE", SourcePostgres)),
		DomainsFile:         getEnv("DOMAINS_FILE", ""),
		DomainsBlob:         getEnv("DOMAINS_BLOB", ""),
		RuleSinks:           getEnvAsList("RULE_SINKS", []string{SinkPostgres}),
		DiscordWebhookURL:   getEnv("DISCORD_WEBHOOK_URL", ""),
		NotificationTimeout: getEnvAsInt("NOTIFICATION_TIMEOUT", 30),
	}
}

// DNSTimeoutDuration returns the per-lookup timeout
func (c *AppConfig) DNSTimeoutDuration() time.Duration {
	return time.Duration(c.DNSTimeout) * time.Second
}

// NotificationTimeoutDuration returns the webhook request timeout
func (c *AppConfig) NotificationTimeoutDuration() time.Duration {
	return time.Duration(c.NotificationTimeout) * time.Second
}

// HasSink reports whether sink is among the configured rule sinks
func (c *AppConfig) HasSink(sink string) bool {
	return slices.Contains(c.RuleSinks, sink)
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if err := c.App.ValidateAppConfig(); err != nil {
		return err
	}

	if c.App.DomainSource == SourcePostgres || c.App.HasSink(SinkPostgres) {
		if err := c.Database.ValidateDatabaseConfig(); err != nil {
			return err
		}
	}

	if c.App.DomainSource == SourceBlob || c.App.HasSink(SinkBlob) {
		if err := c.Azure.ValidateBlobConfig(); err != nil {
			return err
		}
	}

	if c.App.HasSink(SinkServiceBus) {
		if err := c.Azure.ValidateServiceBusConfig(); err != nil {
			return err
		}
	}

	return nil
}

// ValidateAppConfig validates application-specific configuration
func (c *AppConfig) ValidateAppConfig() error {
	// Define validation rules
	validations := []struct {
		field     string
		value     int
		min, max  int
		fieldName string
		unit      string
	}{
		{"DNS_TIMEOUT", c.DNSTimeout, 1, 60, "DNS timeout", "seconds"},
		{"DNS_RATE_LIMIT", c.DNSRateLimit, 1, 10000, "DNS rate limit", "queries per second"},
		{"BATCH_SIZE", c.BatchSize, 1, 10000, "Batch size", ""},
		{"NOTIFICATION_TIMEOUT", c.NotificationTimeout, 1, 300, "Notification timeout", "seconds"},
	}

	for _, v := range validations {
		if err := validateRange(v.field, v.value, v.min, v.max, v.fieldName, v.unit); err != nil {
			return err
		}
	}

	if !slices.Contains(validSources, c.DomainSource) {
		return &ConfigError{
			Field:   "DOMAIN_SOURCE",
			Message: fmt.Sprintf("Invalid domain source '%s'. Valid sources are: %s", c.DomainSource, strings.Join(validSources, ", ")),
		}
	}

	switch c.DomainSource {
	case SourceFile:
		if c.DomainsFile == "" {
			return &ConfigError{Field: "DOMAINS_FILE", Message: "Domains file is required when DOMAIN_SOURCE is file"}
		}
	case SourceBlob:
		if c.DomainsBlob == "" {
			return &ConfigError{Field: "DOMAINS_BLOB", Message: "Domains blob is required when DOMAIN_SOURCE is blob"}
		}
	}

	if len(c.RuleSinks) == 0 {
		return &ConfigError{Field: "RULE_SINKS", Message: "At least one rule sink is required"}
	}
	for _, sink := range c.RuleSinks {
		if !slices.Contains(validSinks, sink) {
			return &ConfigError{
				Field:   "RULE_SINKS",
				Message: fmt.Sprintf("Invalid rule sink '%s'. Valid sinks are: %s", sink, strings.Join(validSinks, ", ")),
			}
		}
	}

	return nil
}

// validateRange validates that a value is within the specified range
func validateRange(field string, value, min, max int, fieldName, unit string) error {
	if value < min || value > max {
		message := fmt.Sprintf("%s must be between %d and %d", fieldName, min, max)
		if unit != "" {
			message += " " + unit
		}

		return &ConfigError{
			Field:   field,
			Message: message,
		}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.ToLower(strings.TrimSpace(item)); item != "" && !slices.Contains(items, item) {
			items = append(items, item)
		}
	}
	return items
}
