package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`
	LogFormat  string `mapstructure:"LOG_FORMAT"`

	StorageDriver   string `mapstructure:"STORAGE_DRIVER"`
	SessionStore    string `mapstructure:"SESSION_STORE"`
	PostgresURL     string `mapstructure:"POSTGRES_URL"`
	RedisAddr       string `mapstructure:"REDIS_ADDR"`
	RedisPassword   string `mapstructure:"REDIS_PASSWORD"`
	RedisDB         int    `mapstructure:"REDIS_DB"`
	SessionTTLHours int    `mapstructure:"SESSION_TTL_HOURS"`

	FetchTimeout    int    `mapstructure:"FETCH_TIMEOUT"`     // seconds
	RequestDelayMS  int    `mapstructure:"REQUEST_DELAY_MS"`  // milliseconds
	ScanWorkers     int    `mapstructure:"SCAN_WORKERS"`      // schools in parallel per session
	MaxScanDuration int    `mapstructure:"MAX_SCAN_DURATION"` // minutes
	UserAgents      string `mapstructure:"USER_AGENTS"`
	Proxies         string `mapstructure:"PROXIES"`
	MaxBodyBytes    int    `mapstructure:"MAX_BODY_BYTES"`

	IngestRegion      string `mapstructure:"INGEST_REGION"`
	ScanRatePerMinute int    `mapstructure:"SCAN_RATE_PER_MINUTE"`
}

// Load reads configuration from file or environment variables.
func Load() (*Config, error) {
	return load(viper.New(), ".env")
}

func load(v *viper.Viper, envFile string) (*Config, error) {
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	// A missing .env file is fine; production configures through the environment.
	_ = v.ReadInConfig()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("STORAGE_DRIVER", "memory")
	v.SetDefault("SESSION_STORE", "memory")
	v.SetDefault("POSTGRES_URL", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SESSION_TTL_HOURS", 168)
	v.SetDefault("FETCH_TIMEOUT", 10)
	v.SetDefault("REQUEST_DELAY_MS", 1000)
	v.SetDefault("SCAN_WORKERS", 1)
	v.SetDefault("MAX_SCAN_DURATION", 60)
	v.SetDefault("USER_AGENTS", "")
	v.SetDefault("PROXIES", "")
	v.SetDefault("MAX_BODY_BYTES", 10<<20)
	v.SetDefault("INGEST_REGION", "")
	v.SetDefault("SCAN_RATE_PER_MINUTE", 10)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) FetchTimeoutDuration() time.Duration {
	return time.Duration(c.FetchTimeout) * time.Second
}

func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelayMS) * time.Millisecond
}

func (c *Config) MaxScanDurationTimeout() time.Duration {
	return time.Duration(c.MaxScanDuration) * time.Minute
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// UserAgentList splits USER_AGENTS; an empty result selects the built-in list.
func (c *Config) UserAgentList() []string {
	return splitList(c.UserAgents)
}

func (c *Config) ProxyList() []string {
	return splitList(c.Proxies)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
