package main

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Siddamnn/SpeakMind/errors"
	"github.com/Siddamnn/SpeakMind/output/natsmirror"
)

// Config holds the process configuration, read from the environment only.
type Config struct {
	SerialPort      string
	WSPort          int
	LogLevel        string
	LogFormat       string
	StatusPort      int
	SerialReconnect bool
	RecordDB        string
	NATSURL         string
	NATSSubject     string
	ShutdownTimeout time.Duration
}

// loadConfig reads every EEG_* variable. A value that does not parse is an
// error; only unset variables fall back to their defaults.
func loadConfig() (*Config, error) {
	cfg := &Config{
		SerialPort:  getEnv("EEG_SERIAL_PORT", "COM7"),
		LogLevel:    strings.ToLower(getEnv("EEG_LOG_LEVEL", "info")),
		LogFormat:   strings.ToLower(getEnv("EEG_LOG_FORMAT", "text")),
		RecordDB:    getEnv("EEG_RECORD_DB", ""),
		NATSURL:     getEnv("EEG_NATS_URL", ""),
		NATSSubject: getEnv("EEG_NATS_SUBJECT", natsmirror.DefaultSubject),
	}

	var err error
	if cfg.WSPort, err = getEnvInt("EEG_WS_PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.StatusPort, err = getEnvInt("EEG_STATUS_PORT", 9090); err != nil {
		return nil, err
	}
	if cfg.SerialReconnect, err = getEnvBool("EEG_SERIAL_RECONNECT", false); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("EEG_SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	switch {
	case c.SerialPort == "":
		return missing("EEG_SERIAL_PORT")
	case c.WSPort < 1 || c.WSPort > 65535:
		return invalid(fmt.Sprintf("invalid EEG_WS_PORT: %d", c.WSPort))
	case c.StatusPort < 0 || c.StatusPort > 65535:
		return invalid(fmt.Sprintf("invalid EEG_STATUS_PORT: %d", c.StatusPort))
	case c.StatusPort != 0 && c.StatusPort == c.WSPort:
		return invalid("EEG_STATUS_PORT must differ from EEG_WS_PORT")
	case !slices.Contains([]string{"debug", "info", "warn", "error"}, c.LogLevel):
		return invalid(fmt.Sprintf("invalid EEG_LOG_LEVEL: %s", c.LogLevel))
	case !slices.Contains([]string{"text", "json"}, c.LogFormat):
		return invalid(fmt.Sprintf("invalid EEG_LOG_FORMAT: %s", c.LogFormat))
	case c.ShutdownTimeout <= 0:
		return invalid(fmt.Sprintf("invalid EEG_SHUTDOWN_TIMEOUT: %v", c.ShutdownTimeout))
	case c.NATSURL != "" && c.NATSSubject == "":
		return missing("EEG_NATS_SUBJECT, required when EEG_NATS_URL is set")
	}
	return nil
}

func invalid(msg string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, msg),
		"Config", "Validate", "validate environment")
}

func missing(key string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrMissingConfig, key),
		"Config", "Validate", "validate environment")
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, envError(key, value, err)
	}
	return parsed, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, envError(key, value, err)
	}
	return parsed, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, envError(key, value, err)
	}
	return parsed, nil
}

func envError(key, value string, err error) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s=%q: %v", errors.ErrInvalidConfig, key, value, err),
		"Config", "loadConfig", "parse environment")
}
