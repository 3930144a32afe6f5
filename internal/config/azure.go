package config

// AzureConfig holds Azure-specific configuration
type AzureConfig struct {
	ServiceBusConnectionString  string
	QueueName                   string
	BlobStorageConnectionString string
	BlobContainerName           string
}

// LoadAzureConfig loads Azure configuration from environment variables
func LoadAzureConfig() AzureConfig {
	return AzureConfig{
		ServiceBusConnectionString:  getEnv("SERVICEBUS_CONNECTION_STRING", ""),
		QueueName:                   getEnv("SERVICEBUS_QUEUE_NAME", "rules"),
		BlobStorageConnectionString: getEnv("BLOB_STORAGE_CONNECTION_STRING", ""),
		BlobContainerName:           getEnv("BLOB_CONTAINER_NAME", "rules"),
	}
}

// ValidateBlobConfig validates Blob Storage configuration
func (c *AzureConfig) ValidateBlobConfig() error {
	if c.BlobStorageConnectionString == "" {
		return &ConfigError{Field: "BLOB_STORAGE_CONNECTION_STRING", Message: "Blob Storage connection string is required"}
	}
	return nil
}

// ValidateServiceBusConfig validates Service Bus configuration
func (c *AzureConfig) ValidateServiceBusConfig() error {
	if c.ServiceBusConnectionString == "" {
		return &ConfigError{Field: "SERVICEBUS_CONNECTION_STRING", Message: "Service Bus connection string is required"}
	}
	return nil
}
