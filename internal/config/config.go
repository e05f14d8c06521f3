// Package config provides application configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port             string
	FrontendURL      string
	DBPath           string
	SessionTTL       time.Duration
	MaxMessageLength int
	Agent            AgentConfig
	Tip              TipConfig
	RateLimit        RateLimitConfig
	ConversationLog  ConversationLogConfig
}

// AgentConfig points at the remote conversational agent.
type AgentConfig struct {
	BaseURL string
	Timeout time.Duration
}

// TipConfig controls the draft tip side feature.
type TipConfig struct {
	Enabled   bool
	Model     string
	Timeout   time.Duration
	Debounce  time.Duration
	MinLength int
	APIKey    string
	Project   string
	Location  string
	BaseURL   string
}

// RateLimitConfig throttles message submission per device.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:             getEnv("PORT", "9002"),
		FrontendURL:      getEnv("FRONTEND_URL", ""),
		DBPath:           getEnv("DB_PATH", "./data/neonnexus.db"),
		SessionTTL:       getEnvDuration("SESSION_TTL", 60*time.Minute),
		MaxMessageLength: getEnvInt("MAX_MESSAGE_LENGTH", 2000),
		Agent: AgentConfig{
			BaseURL: strings.TrimRight(getEnv("AGENT_BASE_URL", "http://agent-api:8081"), "/"),
			Timeout: getEnvDuration("AGENT_TIMEOUT", 30*time.Second),
		},
		Tip: TipConfig{
			Enabled:   getEnvBool("TIP_ENABLED", false),
			Model:     getEnv("TIP_MODEL", "gemini-2.5-flash-lite"),
			Timeout:   getEnvDuration("TIP_TIMEOUT", 10*time.Second),
			Debounce:  getEnvDuration("TIP_DEBOUNCE", 500*time.Millisecond),
			MinLength: getEnvInt("TIP_MIN_LENGTH", 15),
			APIKey:    getEnv("GOOGLE_API_KEY", ""),
			Project:   getEnv("GOOGLE_CLOUD_PROJECT", ""),
			Location:  getEnv("GOOGLE_CLOUD_LOCATION", "us-central1"),
			BaseURL:   getEnv("TIP_BASE_URL", ""),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 10),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Dir:       getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Agent.BaseURL == "" {
		return fmt.Errorf("AGENT_BASE_URL cannot be empty")
	}
	if u, err := url.Parse(c.Agent.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("AGENT_BASE_URL must be an absolute URL, got %q", c.Agent.BaseURL)
	}
	if c.Agent.Timeout <= 0 {
		return fmt.Errorf("AGENT_TIMEOUT must be > 0")
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be > 0")
	}
	if c.Tip.Enabled {
		if c.Tip.APIKey == "" && c.Tip.Project == "" {
			return fmt.Errorf("TIP_ENABLED requires GOOGLE_API_KEY or GOOGLE_CLOUD_PROJECT")
		}
		if c.Tip.Debounce <= 0 {
			return fmt.Errorf("TIP_DEBOUNCE must be > 0")
		}
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// ThreadFile returns where the terminal client keeps its thread id.
// THREAD_FILE overrides the default location under the user config dir.
func ThreadFile() (string, error) {
	if p := getEnv("THREAD_FILE", ""); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config dir: %w", err)
	}
	return filepath.Join(dir, "neonnexus", "thread_id"), nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
