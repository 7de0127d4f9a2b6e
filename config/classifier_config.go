package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "classifier"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string `koanf:"port"`
	Environment string `koanf:"env"`
	LogLevel    string `koanf:"log_level"`

	// Redis (empty URL: learned patterns stay in memory)
	RedisURL       string `koanf:"redis_url"`
	RedisTimeoutMS int    `koanf:"redis_timeout_ms"`

	// Learned patterns
	PatternKeyPrefix string `koanf:"pattern_key_prefix"`
	PatternTTLDays   int    `koanf:"pattern_ttl_days"`

	// Stream consumer
	WorkerID           string `koanf:"worker_id"`
	ConsumerGroup      string `koanf:"consumer_group"`
	ConsumerMaxRetries int    `koanf:"consumer_max_retries"`

	// HTTP
	FeedbackRateLimit int      `koanf:"feedback_rate_limit"` // per IP per minute, 0 disables
	AllowedOrigins    []string `koanf:"allowed_origins"`
}

// envKeys maps the environment variables the service reads to config keys.
// Anything else in the environment is ignored.
var envKeys = map[string]string{
	"PORT":                 "port",
	"ENV":                  "env",
	"LOG_LEVEL":            "log_level",
	"REDIS_URL":            "redis_url",
	"REDIS_TIMEOUT_MS":     "redis_timeout_ms",
	"PATTERN_KEY_PREFIX":   "pattern_key_prefix",
	"PATTERN_TTL_DAYS":     "pattern_ttl_days",
	"WORKER_ID":            "worker_id",
	"CONSUMER_GROUP":       "consumer_group",
	"CONSUMER_MAX_RETRIES": "consumer_max_retries",
	"FEEDBACK_RATE_LIMIT":  "feedback_rate_limit",
	"ALLOWED_ORIGINS":      "allowed_origins",
}

const maxConfigFileSize = 1024 * 1024 // 1MB

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:               "8081",
		Environment:        "development",
		LogLevel:           "info",
		RedisTimeoutMS:     500,
		PatternKeyPrefix:   "learned_patterns:",
		PatternTTLDays:     30,
		WorkerID:           generateWorkerID(),
		ConsumerGroup:      "classifier-workers",
		ConsumerMaxRetries: 3,
		FeedbackRateLimit:  60,
		AllowedOrigins:     []string{"http://localhost:3000"},
	}
}

// Load builds the configuration.
//
// Precedence (highest to lowest):
//  1. Environment variables (PORT, REDIS_URL, ...)
//  2. YAML file named by CONFIG_FILE, if set
//  3. Default()
//
// Values that do not parse (PATTERN_TTL_DAYS=thirty) are an error, not a fallback.
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envValue maps a known, non-empty variable to its config key. Returning an
// empty key makes koanf skip the variable.
func envValue(name, value string) (string, interface{}) {
	key, ok := envKeys[name]
	if !ok || value == "" {
		return "", nil
	}

	if key == "allowed_origins" {
		parts := strings.Split(value, ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				origins = append(origins, p)
			}
		}
		return key, origins
	}
	return key, value
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port must not be empty")
	}
	if c.RedisTimeoutMS <= 0 {
		return fmt.Errorf("redis_timeout_ms must be positive, got %d", c.RedisTimeoutMS)
	}
	if c.PatternTTLDays <= 0 {
		return fmt.Errorf("pattern_ttl_days must be positive, got %d", c.PatternTTLDays)
	}
	if c.ConsumerMaxRetries <= 0 {
		return fmt.Errorf("consumer_max_retries must be positive, got %d", c.ConsumerMaxRetries)
	}
	if c.FeedbackRateLimit < 0 {
		return fmt.Errorf("feedback_rate_limit must not be negative, got %d", c.FeedbackRateLimit)
	}
	return nil
}

// RedisTimeout is the per-call timeout for pattern cache operations.
func (c *Config) RedisTimeout() time.Duration {
	return time.Duration(c.RedisTimeoutMS) * time.Millisecond
}

// PatternTTL is the expiry applied to learned patterns on every save.
func (c *Config) PatternTTL() time.Duration {
	return time.Duration(c.PatternTTLDays) * 24 * time.Hour
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
