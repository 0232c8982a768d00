package config

import (
	"log/slog"
	"os"
	"testing"
)

// baseArgs carries the required account settings so Load passes validation.
var baseArgs = []string{
	"sipdeck",
	"--sip-domain", "sip.example.com",
	"--sip-username", "1001",
	"--sip-password", "secret",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range []string{
		"SIPDECK_DATA_DIR", "SIPDECK_HTTP_PORT", "SIPDECK_SIP_PORT",
		"SIPDECK_SIP_DOMAIN", "SIPDECK_SIP_USERNAME", "SIPDECK_SIP_PASSWORD",
		"SIPDECK_LOG_LEVEL", "SIPDECK_AUTO_RECORD", "SIPDECK_AI_URL",
	} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	os.Args = baseArgs

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DataDir != defaultDataDir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, defaultDataDir)
	}
	if cfg.HTTPPort != defaultHTTPPort {
		t.Errorf("HTTPPort = %d, want %d", cfg.HTTPPort, defaultHTTPPort)
	}
	if cfg.SIP.Port != defaultSIPPort {
		t.Errorf("SIP.Port = %d, want %d", cfg.SIP.Port, defaultSIPPort)
	}
	if cfg.SIP.RegistrarPort != defaultRegistrarPort {
		t.Errorf("SIP.RegistrarPort = %d, want %d", cfg.SIP.RegistrarPort, defaultRegistrarPort)
	}
	if cfg.SIP.Transport != defaultTransport {
		t.Errorf("SIP.Transport = %q, want %q", cfg.SIP.Transport, defaultTransport)
	}
	if cfg.SIP.RegisterExpiry != defaultRegisterExpiry {
		t.Errorf("SIP.RegisterExpiry = %d, want %d", cfg.SIP.RegisterExpiry, defaultRegisterExpiry)
	}
	if !cfg.AutoRecord {
		t.Error("AutoRecord = false, want true by default")
	}
	if cfg.RetentionDays != defaultRetentionDays {
		t.Errorf("RetentionDays = %d, want %d", cfg.RetentionDays, defaultRetentionDays)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
	if cfg.AIEnabled() {
		t.Error("AIEnabled() = true, want false with no ai-url")
	}
}

func TestEnvVarOverride(t *testing.T) {
	clearEnv(t)
	os.Args = baseArgs
	t.Setenv("SIPDECK_HTTP_PORT", "9090")
	t.Setenv("SIPDECK_DATA_DIR", "/tmp/sipdeck-test")
	t.Setenv("SIPDECK_LOG_LEVEL", "debug")
	t.Setenv("SIPDECK_AUTO_RECORD", "false")
	t.Setenv("SIPDECK_AI_URL", "http://ai.internal:9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	if cfg.DataDir != "/tmp/sipdeck-test" {
		t.Errorf("DataDir = %q, want /tmp/sipdeck-test", cfg.DataDir)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.AutoRecord {
		t.Error("AutoRecord = true, want false from env")
	}
	if !cfg.AIEnabled() {
		t.Error("AIEnabled() = false, want true with ai-url set")
	}
}

func TestCLIFlagsPrecedence(t *testing.T) {
	// CLI flags should override env vars.
	clearEnv(t)
	os.Args = append(append([]string{}, baseArgs...),
		"--http-port", "3000", "--log-level", "warn")
	t.Setenv("SIPDECK_HTTP_PORT", "9090")
	t.Setenv("SIPDECK_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 3000 {
		t.Errorf("HTTPPort = %d, want 3000 (CLI should override env)", cfg.HTTPPort)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (CLI should override env)", cfg.LogLevel)
	}
}

func TestValidateMissingAccount(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"sipdeck", "--sip-domain", "sip.example.com"}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing sip-username, got nil")
	}
}

func TestValidateInvalidPort(t *testing.T) {
	clearEnv(t)
	os.Args = append(append([]string{}, baseArgs...), "--http-port", "99999")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid port, got nil")
	}
}

func TestValidateInvalidTransport(t *testing.T) {
	clearEnv(t)
	os.Args = append(append([]string{}, baseArgs...), "--sip-transport", "sctp")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid transport, got nil")
	}
}

func TestValidateInvalidLogLevel(t *testing.T) {
	clearEnv(t)
	os.Args = append(append([]string{}, baseArgs...), "--log-level", "verbose")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
}

func TestValidateAIKeyWithoutURL(t *testing.T) {
	clearEnv(t)
	os.Args = append(append([]string{}, baseArgs...), "--ai-key", "k")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error when ai-key provided without ai-url")
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := &Config{DataDir: "/var/lib/sipdeck"}
	if got := cfg.RecordingDir(); got != "/var/lib/sipdeck/recordings" {
		t.Errorf("RecordingDir() = %q", got)
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			if got := cfg.SlogLevel(); got != tt.want {
				t.Errorf("SlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}
