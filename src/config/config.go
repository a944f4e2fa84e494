package config

import (
	"fmt"
	"os"

	"deribit-gateway/src/helpers"
	"deribit-gateway/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, &helpers.ConfigurationError{GatewayError: helpers.GatewayError{
			Message: fmt.Sprintf("failed to read config file '%s'", configPath), Cause: err}}
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, &helpers.ConfigurationError{GatewayError: helpers.GatewayError{
			Message: "failed to parse config from YAML", Cause: err}}
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, &helpers.ValidationError{GatewayError: helpers.GatewayError{
			Message: "config validation failed", Cause: err}}
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// applyDefaults fills zero values with working defaults so a minimal
// config file is enough to run against the public API.
func (c *Config) applyDefaults() {
	if c.Keepalive == 0 {
		c.Keepalive = 15
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = "https://www.deribit.com/api/v2"
	}
	if c.Upstream.RequestTimeout == 0 {
		c.Upstream.RequestTimeout = 10
	}
	if c.Upstream.MaxRetries == 0 {
		c.Upstream.MaxRetries = 3
	}
	if c.RateLimit.Capacity == 0 {
		c.RateLimit.Capacity = 10
	}
	if c.RateLimit.RefillPerSec == 0 {
		c.RateLimit.RefillPerSec = 5
	}
	if c.RateLimit.MaxWaitMillis == 0 {
		c.RateLimit.MaxWaitMillis = 2000
	}
	if c.Cache.FastTTLSeconds == 0 {
		c.Cache.FastTTLSeconds = 10
	}
	if c.Cache.SlowTTLSeconds == 0 {
		c.Cache.SlowTTLSeconds = 300
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 1024
	}
	if c.Analytics.ContractSize == 0 {
		c.Analytics.ContractSize = 1.0
	}
	if c.Analytics.SoftLimitByte == 0 {
		c.Analytics.SoftLimitByte = 2048
	}
	if c.Analytics.HardLimitByte == 0 {
		c.Analytics.HardLimitByte = 5120
	}
	if c.Storage.RetentionDays == 0 {
		c.Storage.RetentionDays = 30
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	// Validate App configuration (Flattened)
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Server configuration (Flattened)
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}
	if c.Keepalive < 0 {
		return fmt.Errorf("keepalive interval cannot be negative")
	}

	// Validate Upstream configuration
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream base URL cannot be empty")
	}
	if c.Upstream.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if c.Upstream.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if (c.Upstream.ClientID == "") != (c.Upstream.ClientSecret == "") {
		return fmt.Errorf("client_id and client_secret must be set together")
	}

	// Validate RateLimit configuration
	if c.RateLimit.Capacity <= 0 {
		return fmt.Errorf("rate limit capacity must be greater than 0")
	}
	if c.RateLimit.RefillPerSec <= 0 {
		return fmt.Errorf("rate limit refill must be greater than 0")
	}
	if c.RateLimit.MaxWaitMillis < 0 {
		return fmt.Errorf("rate limit max wait cannot be negative")
	}

	// Validate Cache configuration
	if c.Cache.FastTTLSeconds <= 0 || c.Cache.SlowTTLSeconds <= 0 {
		return fmt.Errorf("cache TTLs must be greater than 0")
	}
	if c.Cache.FastTTLSeconds > c.Cache.SlowTTLSeconds {
		return fmt.Errorf("fast TTL cannot exceed slow TTL")
	}

	// Validate Analytics configuration
	if c.Analytics.ContractSize <= 0 {
		return fmt.Errorf("contract size must be greater than 0")
	}
	if c.Analytics.SoftLimitByte > c.Analytics.HardLimitByte {
		return fmt.Errorf("soft output limit cannot exceed hard limit")
	}

	// Validate Storage configuration
	if c.Storage.DBType == "" {
		return fmt.Errorf("database type cannot be empty")
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		return fmt.Errorf("database path cannot be empty for sqlite")
	}
	if c.Storage.RetentionDays <= 0 {
		return fmt.Errorf("data retention days must be greater than 0")
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
