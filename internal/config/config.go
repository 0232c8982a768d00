package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// SIP holds the account and transport settings for the SIP stack.
type SIP struct {
	Domain         string // registrar / proxy domain
	RegistrarPort  int    // port the REGISTER is sent to
	Port           int    // local SIP listen port, also used in Contact
	Transport      string // "udp" or "tcp"
	Username       string
	AuthUsername   string // digest username when it differs from Username
	Password       string
	LocalIP        string // bind/advertise address, auto-detected if empty
	RegisterExpiry int    // requested registration expiry in seconds
}

// Config holds all runtime configuration for the sipdeck daemon.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir       string
	HTTPPort      int
	LogLevel      string
	LogFormat     string // log output format: "text" or "json"
	CORSOrigins   string
	JWTSecret     string // hex-encoded 32-byte secret for API token signing
	AutoRecord    bool
	RetentionDays int    // recordings older than this are purged; 0 keeps forever
	AIBaseURL     string // base URL of the call analytics service; empty disables analytics
	AIAPIKey      string

	SIP SIP
}

// defaults
const (
	defaultDataDir        = "./data"
	defaultHTTPPort       = 8080
	defaultSIPPort        = 5060
	defaultRegistrarPort  = 5060
	defaultTransport      = "udp"
	defaultRegisterExpiry = 300
	defaultRetentionDays  = 30
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
)

// envPrefix is the prefix for all sipdeck environment variables.
const envPrefix = "SIPDECK_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("sipdeck", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for database and recordings")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP control API listen port")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.CORSOrigins, "cors-origins", "", "comma-separated list of allowed CORS origins (use * for all)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "hex-encoded 32-byte secret for API token signing (auto-generated if empty)")
	fs.BoolVar(&cfg.AutoRecord, "auto-record", true, "record every call to a WAV file")
	fs.IntVar(&cfg.RetentionDays, "retention-days", defaultRetentionDays, "days to keep call recordings, 0 to keep forever")
	fs.StringVar(&cfg.AIBaseURL, "ai-url", "", "base URL of the call analytics service (empty disables analytics)")
	fs.StringVar(&cfg.AIAPIKey, "ai-key", "", "API key for the call analytics service")

	fs.StringVar(&cfg.SIP.Domain, "sip-domain", "", "SIP registrar/proxy domain")
	fs.IntVar(&cfg.SIP.RegistrarPort, "sip-registrar-port", defaultRegistrarPort, "SIP registrar port")
	fs.IntVar(&cfg.SIP.Port, "sip-port", defaultSIPPort, "local SIP listen port")
	fs.StringVar(&cfg.SIP.Transport, "sip-transport", defaultTransport, "SIP transport (udp, tcp)")
	fs.StringVar(&cfg.SIP.Username, "sip-username", "", "SIP account username")
	fs.StringVar(&cfg.SIP.AuthUsername, "sip-auth-username", "", "digest auth username when it differs from sip-username")
	fs.StringVar(&cfg.SIP.Password, "sip-password", "", "SIP account password")
	fs.StringVar(&cfg.SIP.LocalIP, "sip-local-ip", "", "local IP to advertise in SIP/SDP (auto-detected if empty)")
	fs.IntVar(&cfg.SIP.RegisterExpiry, "sip-register-expiry", defaultRegisterExpiry, "requested registration expiry in seconds")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the command line.
	// CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. This preserves the precedence:
// CLI flags > env vars > defaults.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	// Track which flags were explicitly set via CLI.
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	// Map of flag name to env var name.
	envMap := map[string]string{
		"data-dir":            envPrefix + "DATA_DIR",
		"http-port":           envPrefix + "HTTP_PORT",
		"log-level":           envPrefix + "LOG_LEVEL",
		"log-format":          envPrefix + "LOG_FORMAT",
		"cors-origins":        envPrefix + "CORS_ORIGINS",
		"jwt-secret":          envPrefix + "JWT_SECRET",
		"auto-record":         envPrefix + "AUTO_RECORD",
		"retention-days":      envPrefix + "RETENTION_DAYS",
		"ai-url":              envPrefix + "AI_URL",
		"ai-key":              envPrefix + "AI_KEY",
		"sip-domain":          envPrefix + "SIP_DOMAIN",
		"sip-registrar-port":  envPrefix + "SIP_REGISTRAR_PORT",
		"sip-port":            envPrefix + "SIP_PORT",
		"sip-transport":       envPrefix + "SIP_TRANSPORT",
		"sip-username":        envPrefix + "SIP_USERNAME",
		"sip-auth-username":   envPrefix + "SIP_AUTH_USERNAME",
		"sip-password":        envPrefix + "SIP_PASSWORD",
		"sip-local-ip":        envPrefix + "SIP_LOCAL_IP",
		"sip-register-expiry": envPrefix + "SIP_REGISTER_EXPIRY",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "data-dir":
			cfg.DataDir = val
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "cors-origins":
			cfg.CORSOrigins = val
		case "jwt-secret":
			cfg.JWTSecret = val
		case "auto-record":
			if v, err := strconv.ParseBool(val); err == nil {
				cfg.AutoRecord = v
			}
		case "retention-days":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RetentionDays = v
			}
		case "ai-url":
			cfg.AIBaseURL = val
		case "ai-key":
			cfg.AIAPIKey = val
		case "sip-domain":
			cfg.SIP.Domain = val
		case "sip-registrar-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.SIP.RegistrarPort = v
			}
		case "sip-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.SIP.Port = v
			}
		case "sip-transport":
			cfg.SIP.Transport = val
		case "sip-username":
			cfg.SIP.Username = val
		case "sip-auth-username":
			cfg.SIP.AuthUsername = val
		case "sip-password":
			cfg.SIP.Password = val
		case "sip-local-ip":
			cfg.SIP.LocalIP = val
		case "sip-register-expiry":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.SIP.RegisterExpiry = v
			}
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.SIP.Port < 1 || c.SIP.Port > 65535 {
		return fmt.Errorf("sip-port must be between 1 and 65535, got %d", c.SIP.Port)
	}
	if c.SIP.RegistrarPort < 1 || c.SIP.RegistrarPort > 65535 {
		return fmt.Errorf("sip-registrar-port must be between 1 and 65535, got %d", c.SIP.RegistrarPort)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("retention-days must not be negative, got %d", c.RetentionDays)
	}
	if c.SIP.RegisterExpiry < 60 || c.SIP.RegisterExpiry > 86400 {
		return fmt.Errorf("sip-register-expiry must be between 60 and 86400, got %d", c.SIP.RegisterExpiry)
	}

	if c.SIP.Domain == "" {
		return fmt.Errorf("sip-domain is required")
	}
	if c.SIP.Username == "" {
		return fmt.Errorf("sip-username is required")
	}
	if c.SIP.Password == "" {
		return fmt.Errorf("sip-password is required")
	}

	validTransports := map[string]bool{"udp": true, "tcp": true}
	if !validTransports[strings.ToLower(c.SIP.Transport)] {
		return fmt.Errorf("sip-transport must be one of udp, tcp; got %q", c.SIP.Transport)
	}
	c.SIP.Transport = strings.ToLower(c.SIP.Transport)

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	// An analytics key without a service URL is a misconfiguration.
	if c.AIAPIKey != "" && c.AIBaseURL == "" {
		return fmt.Errorf("ai-key provided without ai-url")
	}

	return nil
}

// RecordingDir returns the directory call recordings are written to.
func (c *Config) RecordingDir() string {
	return filepath.Join(c.DataDir, "recordings")
}

// AIEnabled reports whether the post-call analytics pipeline is configured.
func (c *Config) AIEnabled() bool {
	return c.AIBaseURL != ""
}

// JWTSecretBytes returns the decoded 32-byte token signing secret.
// If no secret is configured, it generates a random 32-byte key and stores
// the hex-encoded value back in the config for the process lifetime.
func (c *Config) JWTSecretBytes() ([]byte, error) {
	if c.JWTSecret == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating jwt secret: %w", err)
		}
		c.JWTSecret = hex.EncodeToString(key)
		slog.Warn("no jwt-secret configured, generated ephemeral key (tokens will not survive restart)")
		return key, nil
	}
	key, err := hex.DecodeString(c.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding jwt secret: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("jwt secret must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
