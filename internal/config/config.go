// ABOUTME: Configuration loading and parsing for if-mcp-server
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport kinds accepted in server.transport.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Auth methods accepted in auth.method.
const (
	AuthMethodAPIKey = "api_key"
	AuthMethodBearer = "bearer"
	AuthMethodJWT    = "jwt"
	AuthMethodBasic  = "basic"
)

// Config represents the complete if-mcp-server configuration.
// It is assembled once at startup and passed by reference to every
// component; nothing reads ambient environment after Load returns.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Limits        LimitsConfig        `yaml:"limits"`
	SSE           SSEConfig           `yaml:"sse"`
	CORS          CORSConfig          `yaml:"cors"`
	InsightFinder InsightFinderConfig `yaml:"insightfinder"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds transport and address configuration.
type ServerConfig struct {
	Transport string `yaml:"transport"`
	HTTPAddr  string `yaml:"http_addr"`
}

// AuthConfig holds server-level authentication configuration.
// Tenant credentials are never configured here; they arrive on each
// request in the X-IF-* headers.
type AuthConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Method        string `yaml:"method"`
	APIKey        string `yaml:"api_key"`
	BearerToken   string `yaml:"bearer_token"`
	JWTSecret     string `yaml:"jwt_secret"`
	BasicUsername string `yaml:"basic_username"`
	BasicPassword string `yaml:"basic_password"`

	// IPWhitelist restricts callers to the listed IPs or CIDR ranges.
	// Empty means all addresses are allowed.
	IPWhitelist []string `yaml:"ip_whitelist"`

	// TrustProxyHeaders enables X-Forwarded-For / X-Real-IP resolution
	// for the client address. Only safe behind a trusted reverse proxy.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
}

// LimitsConfig holds rate limiting and payload limits.
type LimitsConfig struct {
	RateLimitEnabled     bool  `yaml:"rate_limit_enabled"`
	MaxRequestsPerMinute int   `yaml:"max_requests_per_minute"`
	MaxPayloadSize       int64 `yaml:"max_payload_size"`
	MaxStringLength      int   `yaml:"max_string_length"`
}

// SSEConfig holds streaming connection configuration.
type SSEConfig struct {
	HeartbeatInterval time.Duration `yaml:"-"`
	MaxConnections    int           `yaml:"max_connections"`
	QueueSize         int           `yaml:"queue_size"`

	// Raw string value for YAML unmarshaling
	HeartbeatIntervalRaw string `yaml:"heartbeat_interval"`
}

// CORSConfig holds cross-origin configuration for the HTTP transport.
type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
}

// InsightFinderConfig holds the default upstream endpoint. On HTTP
// transports the license key and user name are per-request tenant
// credentials and these fields are ignored; the stdio transport has no
// headers to read them from, so it uses the values configured here.
type InsightFinderConfig struct {
	APIURL     string `yaml:"api_url"`
	LicenseKey string `yaml:"license_key"`
	UserName   string `yaml:"user_name"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults mirroring the original deployment values.
const (
	DefaultHTTPAddr             = "127.0.0.1:8000"
	DefaultMaxRequestsPerMinute = 60
	DefaultMaxPayloadSize       = 1 << 20 // 1 MiB
	DefaultMaxStringLength      = 10000
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultMaxConnections       = 100
	DefaultQueueSize            = 64
	DefaultAPIURL               = "https://app.insightfinder.com"
)

// Default returns a Config populated with default values, suitable as a
// base for tests and for Load.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Transport: TransportStdio,
			HTTPAddr:  DefaultHTTPAddr,
		},
		Limits: LimitsConfig{
			RateLimitEnabled:     true,
			MaxRequestsPerMinute: DefaultMaxRequestsPerMinute,
			MaxPayloadSize:       DefaultMaxPayloadSize,
			MaxStringLength:      DefaultMaxStringLength,
		},
		SSE: SSEConfig{
			HeartbeatInterval: DefaultHeartbeatInterval,
			MaxConnections:    DefaultMaxConnections,
			QueueSize:         DefaultQueueSize,
		},
		InsightFinder: InsightFinderConfig{
			APIURL: DefaultAPIURL,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(cfg)

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults backfills zero values that the YAML file may have
// cleared, so a sparse config file still yields a runnable server.
func applyDefaults(cfg *Config) {
	if cfg.Server.Transport == "" {
		cfg.Server.Transport = TransportStdio
	}
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = DefaultHTTPAddr
	}
	if cfg.Limits.MaxRequestsPerMinute <= 0 {
		cfg.Limits.MaxRequestsPerMinute = DefaultMaxRequestsPerMinute
	}
	if cfg.Limits.MaxPayloadSize <= 0 {
		cfg.Limits.MaxPayloadSize = DefaultMaxPayloadSize
	}
	if cfg.Limits.MaxStringLength <= 0 {
		cfg.Limits.MaxStringLength = DefaultMaxStringLength
	}
	if cfg.SSE.HeartbeatInterval <= 0 {
		cfg.SSE.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.SSE.MaxConnections <= 0 {
		cfg.SSE.MaxConnections = DefaultMaxConnections
	}
	if cfg.SSE.QueueSize <= 0 {
		cfg.SSE.QueueSize = DefaultQueueSize
	}
	if cfg.InsightFinder.APIURL == "" {
		cfg.InsightFinder.APIURL = DefaultAPIURL
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("server.transport must be %q or %q, got %q", TransportStdio, TransportHTTP, c.Server.Transport)
	}

	if c.Server.Transport == TransportHTTP && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required for the http transport")
	}

	if c.Auth.Enabled {
		switch c.Auth.Method {
		case AuthMethodAPIKey, AuthMethodBearer, AuthMethodBasic:
		case AuthMethodJWT:
			if c.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is required when auth.method is %q", AuthMethodJWT)
			}
		default:
			return fmt.Errorf("auth.method must be one of api_key, bearer, jwt, basic; got %q", c.Auth.Method)
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.SSE.HeartbeatIntervalRaw != "" {
		d, err := time.ParseDuration(cfg.SSE.HeartbeatIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing heartbeat_interval %q: %w", cfg.SSE.HeartbeatIntervalRaw, err)
		}
		cfg.SSE.HeartbeatInterval = d
	}
	return nil
}
