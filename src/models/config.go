package models

// MConfig Structure
type MConfig struct {
	Name      string           `yaml:"name"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Keepalive int              `yaml:"keepalive"`
	LogLevel  string           `yaml:"log_level"`
	Upstream  MUpstreamConfig  `yaml:"upstream"`
	RateLimit MRateLimitConfig `yaml:"rate_limit"`
	Cache     MCacheConfig     `yaml:"cache"`
	Analytics MAnalyticsConfig `yaml:"analytics"`
	Storage   MStorageConfig   `yaml:"storage"`
}

type MUpstreamConfig struct {
	BaseURL        string `yaml:"base_url"`
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
	RequestTimeout int    `yaml:"timeout"`
	MaxRetries     int    `yaml:"retries"`
	UserAgent      string `yaml:"user_agent"`
}

type MRateLimitConfig struct {
	Capacity      int     `yaml:"capacity"`
	RefillPerSec  float64 `yaml:"refill_per_sec"`
	MaxWaitMillis int     `yaml:"max_wait_ms"`
}

type MCacheConfig struct {
	FastTTLSeconds int `yaml:"fast_ttl_seconds"`
	SlowTTLSeconds int `yaml:"slow_ttl_seconds"`
	MaxEntries     int `yaml:"max_entries"`
}

type MAnalyticsConfig struct {
	ContractSize  float64 `yaml:"contract_size"`
	SoftLimitByte int     `yaml:"soft_limit_bytes"`
	HardLimitByte int     `yaml:"hard_limit_bytes"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
	RetentionDays      int    `yaml:"data_retention_days"`
}
