package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"moneta/internal/core"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// AMQP (optional; empty URL disables event publishing)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Currency
	BaseCurrency     string
	RateSourceURL    string
	RateFetchTimeout time.Duration

	// Scheduling
	RecurringInterval time.Duration
	RateInterval      time.Duration

	// Single-tenant owner for the HTTP surface
	OwnerID int64
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8081"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/moneta.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "moneta"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "expense_events"),

		BaseCurrency:     strings.ToUpper(getEnv("BASE_CURRENCY", "INR")),
		RateSourceURL:    getEnv("RATE_SOURCE_URL", "https://open.er-api.com/v6/latest"),
		RateFetchTimeout: getEnvDuration("RATE_FETCH_TIMEOUT", 10*time.Second),

		RecurringInterval: getEnvDuration("RECURRING_INTERVAL", time.Hour),
		RateInterval:      getEnvDuration("RATE_INTERVAL", 6*time.Hour),

		OwnerID: getEnvInt64("OWNER_ID", 1),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate SQLite path and make sure its directory exists
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}

		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate currency configuration
	if !core.ValidCurrencyCode(c.BaseCurrency) {
		errors = append(errors, fmt.Sprintf("invalid base currency '%s': must be a 3-letter code", c.BaseCurrency))
	}
	if c.RateSourceURL != "" {
		if parsedURL, err := url.Parse(c.RateSourceURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid rate source URL '%s': %v", c.RateSourceURL, err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid rate source URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
		}
	}
	if c.RateFetchTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid rate fetch timeout %v: must be at least 1 second", c.RateFetchTimeout))
	} else if c.RateFetchTimeout > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid rate fetch timeout %v: must be at most 1 minute", c.RateFetchTimeout))
	}

	// Validate scheduling intervals
	if c.RecurringInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid recurring interval %v: must be at least 1 second", c.RecurringInterval))
	} else if c.RecurringInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid recurring interval %v: must be at most 24 hours", c.RecurringInterval))
	}
	if c.RateInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid rate interval %v: must be at least 1 minute", c.RateInterval))
	} else if c.RateInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid rate interval %v: must be at most 24 hours", c.RateInterval))
	}

	if c.OwnerID < 1 {
		errors = append(errors, fmt.Sprintf("invalid owner id %d: must be at least 1", c.OwnerID))
	}

	// Return combined errors
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

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
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
