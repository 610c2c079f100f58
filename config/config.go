package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service configuration.
type Config struct {
	// Server settings
	Port int `json:"port"`

	// TLS settings
	TLSCertFile string `json:"tls_cert_file"`
	TLSKeyFile  string `json:"tls_key_file"`

	// Database settings
	DBPath string `json:"db_path"`

	// Logging
	LogLevel string `json:"log_level"`

	// JWT settings
	JWTSecret string `json:"jwt_secret"`

	// Message body encryption secret. Required; there is no built-in
	// default, a missing value fails startup.
	MessageSecret string `json:"message_secret"`

	// Chat history page size for GET /api/messages
	HistoryLimit int `json:"history_limit"`

	// Interval clients should use for the unread-count pull fallback
	UnreadPollInterval time.Duration `json:"unread_poll_interval"`

	// Config directory
	ConfigDir string `json:"config_dir"`
}

// LoadConfig loads configuration from environment variables and an
// optional .env file in the config directory, then validates it.
func LoadConfig(configDir string) (*Config, error) {
	cfg := &Config{}

	if envConfigDir := os.Getenv("FLOWCHAT_CONFIG_DIR"); envConfigDir != "" {
		cfg.ConfigDir = envConfigDir
	} else if configDir != "" {
		cfg.ConfigDir = configDir
	} else {
		cfg.ConfigDir = getDefaultConfigDir()
	}

	if err := ensureConfigDir(cfg.ConfigDir); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	envPath := filepath.Join(cfg.ConfigDir, ".env")
	if err := loadEnvFile(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() error {
	if portStr := os.Getenv("FLOWCHAT_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid FLOWCHAT_PORT: %s", portStr)
		}
		c.Port = port
	} else {
		c.Port = 8080
	}

	if dbPath := os.Getenv("FLOWCHAT_DB_PATH"); dbPath != "" {
		c.DBPath = dbPath
	} else {
		c.DBPath = filepath.Join(c.ConfigDir, "flowchat.db")
	}

	if logLevel := os.Getenv("FLOWCHAT_LOG_LEVEL"); logLevel != "" {
		c.LogLevel = logLevel
	} else {
		c.LogLevel = "info"
	}

	c.JWTSecret = os.Getenv("FLOWCHAT_JWT_SECRET")
	c.MessageSecret = os.Getenv("FLOWCHAT_MESSAGE_SECRET")

	if limitStr := os.Getenv("FLOWCHAT_HISTORY_LIMIT"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			return fmt.Errorf("invalid FLOWCHAT_HISTORY_LIMIT: %s", limitStr)
		}
		c.HistoryLimit = limit
	} else {
		c.HistoryLimit = 50
	}

	if pollStr := os.Getenv("FLOWCHAT_UNREAD_POLL_SECONDS"); pollStr != "" {
		secs, err := strconv.Atoi(pollStr)
		if err != nil || secs <= 0 {
			return fmt.Errorf("invalid FLOWCHAT_UNREAD_POLL_SECONDS: %s", pollStr)
		}
		c.UnreadPollInterval = time.Duration(secs) * time.Second
	} else {
		c.UnreadPollInterval = 30 * time.Second
	}

	c.TLSCertFile = os.Getenv("FLOWCHAT_TLS_CERT_FILE")
	c.TLSKeyFile = os.Getenv("FLOWCHAT_TLS_KEY_FILE")

	return nil
}

// Validate ensures all required configuration is present.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("FLOWCHAT_JWT_SECRET is required")
	}

	if c.MessageSecret == "" {
		return fmt.Errorf("FLOWCHAT_MESSAGE_SECRET is required")
	}

	if c.TLSCertFile != "" && c.TLSKeyFile == "" {
		return fmt.Errorf("FLOWCHAT_TLS_KEY_FILE is required when FLOWCHAT_TLS_CERT_FILE is set")
	}
	if c.TLSKeyFile != "" && c.TLSCertFile == "" {
		return fmt.Errorf("FLOWCHAT_TLS_CERT_FILE is required when FLOWCHAT_TLS_KEY_FILE is set")
	}

	return nil
}

// getDefaultConfigDir returns the default configuration directory.
func getDefaultConfigDir() string {
	// Development mode: running from the project root
	if _, err := os.Stat("go.mod"); err == nil {
		return "./config"
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "flowchat")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./config"
	}

	return filepath.Join(homeDir, ".config", "flowchat")
}

// ensureConfigDir creates the configuration directory if it doesn't exist.
func ensureConfigDir(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}
	return nil
}

// loadEnvFile loads environment variables from a .env file.
func loadEnvFile(envPath string) error {
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		// No .env file is fine, plain environment variables still apply
		return nil
	}

	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("failed to load .env file %s: %w", envPath, err)
	}

	return nil
}

// IsTLSEnabled returns true if both TLS certificate and key files are
// configured.
func (c *Config) IsTLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}
