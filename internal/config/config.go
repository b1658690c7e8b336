package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/spf13/viper"
)

type ServerCfg struct {
	Host                string   `mapstructure:"host" yaml:"host"`
	Port                string   `mapstructure:"port" yaml:"port"`
	ReadTimeoutSeconds  int      `mapstructure:"read_timeout_seconds" yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `mapstructure:"write_timeout_seconds" yaml:"write_timeout_seconds"`
	CORSOrigins         []string `mapstructure:"cors_origins" yaml:"cors_origins,omitempty"`
	RateLimitPerMinute  int      `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute,omitempty"`
}

type PostgresCfg struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

type RedisCfg struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
}

type SecurityCfg struct {
	// AuthEnabled gates API key enforcement for the whole server. When
	// false every request bypasses key checks.
	AuthEnabled           bool   `mapstructure:"auth_enabled" yaml:"auth_enabled"`
	APIKeyPepper          string `mapstructure:"api_key_pepper" yaml:"api_key_pepper"`
	APIKeyCacheTTLSeconds int    `mapstructure:"api_key_cache_ttl_seconds" yaml:"api_key_cache_ttl_seconds"`
}

type IngestCfg struct {
	MaxPayloadBytes int `mapstructure:"max_payload_bytes" yaml:"max_payload_bytes"`
	MaxBucketIDLen  int `mapstructure:"max_bucket_id_len" yaml:"max_bucket_id_len"`
	// RejectNegativeDuration is a policy boundary: the store accepts signed
	// durations, the gateway can be told to 400 them instead.
	RejectNegativeDuration bool `mapstructure:"reject_negative_duration" yaml:"reject_negative_duration"`
}

type Config struct {
	Environment string      `mapstructure:"environment" yaml:"environment"`
	Testing     bool        `mapstructure:"testing" yaml:"testing"`
	Server      ServerCfg   `mapstructure:"server" yaml:"server"`
	Postgres    PostgresCfg `mapstructure:"postgres" yaml:"postgres"`
	Redis       RedisCfg    `mapstructure:"redis" yaml:"redis"`
	Security    SecurityCfg `mapstructure:"security" yaml:"security"`
	Ingest      IngestCfg   `mapstructure:"ingest" yaml:"ingest"`
}

const (
	DefaultMaxPayloadBytes = 4 << 20
	DefaultMaxBucketIDLen  = 255
)

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	return &c, nil
}

func LoadConfigFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Ingest.MaxPayloadBytes == 0 {
		c.Ingest.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if c.Ingest.MaxBucketIDLen == 0 {
		c.Ingest.MaxBucketIDLen = DefaultMaxBucketIDLen
	}
	if c.Security.APIKeyCacheTTLSeconds == 0 {
		c.Security.APIKeyCacheTTLSeconds = 300
	}
}
