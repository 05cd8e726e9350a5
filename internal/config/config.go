package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Config struct {
	// HTTP Server
	Port string

	// Settings store
	SettingsDBPath string

	// AMQP
	AMQPURL               string
	AMQPExchange          string
	AMQPRefreshQueue      string
	AMQPResultsRoutingKey string

	// Worker
	RefreshSchedule string

	// Reference overlay (FRED-compatible observations endpoint). Per-profile
	// settings take precedence over these.
	ReferenceURL      string
	ReferenceAPIKey   string
	ReferenceLabel    string
	ReferenceTimeout  time.Duration
	ReferenceCacheTTL time.Duration

	// Engine
	NoteSeparator     string
	NoteJoiner        string
	SourceConcurrency int
	SeriesCacheTTL    time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8082"),
		SettingsDBPath: getEnv("SETTINGS_DB_PATH", "./data/savings-rate.db"),

		AMQPURL:               getEnv("AMQP_URL", ""),
		AMQPExchange:          getEnv("AMQP_EXCHANGE", "savings_rate"),
		AMQPRefreshQueue:      getEnv("AMQP_REFRESH_QUEUE", "savings_rate_refresh"),
		AMQPResultsRoutingKey: getEnv("AMQP_RESULTS_ROUTING_KEY", "series.computed"),

		RefreshSchedule: getEnv("REFRESH_SCHEDULE", ""),

		ReferenceURL:      getEnv("REFERENCE_URL", ""),
		ReferenceAPIKey:   getEnv("REFERENCE_API_KEY", ""),
		ReferenceLabel:    getEnv("REFERENCE_LABEL", "US average savings"),
		ReferenceTimeout:  getEnvDuration("REFERENCE_TIMEOUT", 4*time.Second),
		ReferenceCacheTTL: getEnvDuration("REFERENCE_CACHE_TTL", 12*time.Hour),

		NoteSeparator:     os.Getenv("NOTE_SEPARATOR"),
		NoteJoiner:        getEnv("NOTE_JOINER", ", "),
		SourceConcurrency: getEnvInt("SOURCE_CONCURRENCY", 4),
		SeriesCacheTTL:    getEnvDuration("SERIES_CACHE_TTL", time.Minute),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if strings.TrimSpace(c.SettingsDBPath) == "" {
		errors = append(errors, "settings database path cannot be empty")
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPRefreshQueue == "" {
			errors = append(errors, "AMQP refresh queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(c.RefreshSchedule); err != nil {
			errors = append(errors, fmt.Sprintf("invalid refresh schedule '%s': %v", c.RefreshSchedule, err))
		}
	}

	if c.ReferenceURL != "" {
		if u, err := url.Parse(c.ReferenceURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid reference URL '%s': must be an http(s) URL", c.ReferenceURL))
		}
	}
	if c.ReferenceTimeout <= 0 || c.ReferenceTimeout > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid reference timeout %v: must be between 0 and 1m", c.ReferenceTimeout))
	}

	if c.SourceConcurrency < 1 || c.SourceConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid source concurrency %d: must be between 1 and 64", c.SourceConcurrency))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
