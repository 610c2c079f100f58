package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("FLOWCHAT_JWT_SECRET", "jwt-secret")
	t.Setenv("FLOWCHAT_MESSAGE_SECRET", "message-secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)
	dir := t.TempDir()

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Port)
	}
	if cfg.HistoryLimit != 50 {
		t.Errorf("Expected default history limit 50, got %d", cfg.HistoryLimit)
	}
	if cfg.UnreadPollInterval != 30*time.Second {
		t.Errorf("Expected default poll interval 30s, got %v", cfg.UnreadPollInterval)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.DBPath != filepath.Join(dir, "flowchat.db") {
		t.Errorf("Expected db path under config dir, got %s", cfg.DBPath)
	}
	if cfg.IsTLSEnabled() {
		t.Error("TLS should be disabled by default")
	}
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("FLOWCHAT_PORT", "9090")
	t.Setenv("FLOWCHAT_DB_PATH", "/tmp/test-flowchat.db")
	t.Setenv("FLOWCHAT_HISTORY_LIMIT", "25")
	t.Setenv("FLOWCHAT_UNREAD_POLL_SECONDS", "10")
	t.Setenv("FLOWCHAT_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Port)
	}
	if cfg.DBPath != "/tmp/test-flowchat.db" {
		t.Errorf("Expected overridden db path, got %s", cfg.DBPath)
	}
	if cfg.HistoryLimit != 25 {
		t.Errorf("Expected history limit 25, got %d", cfg.HistoryLimit)
	}
	if cfg.UnreadPollInterval != 10*time.Second {
		t.Errorf("Expected poll interval 10s, got %v", cfg.UnreadPollInterval)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.LogLevel)
	}
}

func TestLoadConfigRequiredSecrets(t *testing.T) {
	tests := []struct {
		name          string
		jwtSecret     string
		messageSecret string
	}{
		{"missing jwt secret", "", "message-secret"},
		{"missing message secret", "jwt-secret", ""},
		{"missing both", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FLOWCHAT_JWT_SECRET", tt.jwtSecret)
			t.Setenv("FLOWCHAT_MESSAGE_SECRET", tt.messageSecret)

			// Secrets have no built-in fallback; absence is a startup failure
			if _, err := LoadConfig(t.TempDir()); err == nil {
				t.Error("Expected LoadConfig to fail without required secrets")
			}
		})
	}
}

func TestLoadConfigInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad port", "FLOWCHAT_PORT", "not-a-number"},
		{"port out of range", "FLOWCHAT_PORT", "99999"},
		{"bad history limit", "FLOWCHAT_HISTORY_LIMIT", "zero"},
		{"negative poll interval", "FLOWCHAT_UNREAD_POLL_SECONDS", "-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.value)

			if _, err := LoadConfig(t.TempDir()); err == nil {
				t.Errorf("Expected LoadConfig to reject %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoadConfigDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envContent := "FLOWCHAT_JWT_SECRET=from-dotenv\nFLOWCHAT_MESSAGE_SECRET=also-from-dotenv\nFLOWCHAT_PORT=7070\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(envContent), 0644); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}
	// godotenv loads into the process environment; clean up after
	t.Cleanup(func() {
		os.Unsetenv("FLOWCHAT_JWT_SECRET")
		os.Unsetenv("FLOWCHAT_MESSAGE_SECRET")
		os.Unsetenv("FLOWCHAT_PORT")
	})

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.JWTSecret != "from-dotenv" {
		t.Errorf("Expected jwt secret from .env, got %s", cfg.JWTSecret)
	}
	if cfg.Port != 7070 {
		t.Errorf("Expected port 7070 from .env, got %d", cfg.Port)
	}
}

func TestTLSValidation(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("FLOWCHAT_TLS_CERT_FILE", "/tmp/cert.pem")

	if _, err := LoadConfig(t.TempDir()); err == nil {
		t.Error("Expected LoadConfig to fail with cert file but no key file")
	}

	t.Setenv("FLOWCHAT_TLS_KEY_FILE", "/tmp/key.pem")
	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig failed with full TLS pair: %v", err)
	}
	if !cfg.IsTLSEnabled() {
		t.Error("Expected TLS enabled with both files set")
	}
}
