package server

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sheetsync/sheetsync/internal/server/ratelimit"
)

// Config holds the configuration for the HTTP and gRPC listeners.
type Config struct {
	Host string `yaml:"host"`

	// HTTP Configuration
	HTTPPort         int           `yaml:"http_port"`
	HTTPReadTimeout  time.Duration `yaml:"http_read_timeout"`
	HTTPWriteTimeout time.Duration `yaml:"http_write_timeout"`
	HTTPIdleTimeout  time.Duration `yaml:"http_idle_timeout"`

	// gRPC Configuration (health service only)
	GRPCEnabled      bool `yaml:"grpc_enabled"`
	GRPCPort         int  `yaml:"grpc_port"`
	EnableReflection bool `yaml:"enable_reflection"`

	CORS      CORSConfig       `yaml:"cors"`
	RateLimit ratelimit.Config `yaml:"rate_limit"`
	Auth      AuthConfig       `yaml:"auth"`

	// Lifecycle Configuration
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// CORSConfig controls cross-origin access to the control API.
type CORSConfig struct {
	Enabled          bool     `yaml:"enabled"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	MaxAge           int      `yaml:"max_age"`
}

// AuthConfig protects the control endpoints with HS256 bearer tokens when
// JWTSecret is set.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// DefaultConfig returns safe defaults for development.
func DefaultConfig() Config {
	return Config{
		Host:             "0.0.0.0",
		HTTPPort:         4020,
		HTTPReadTimeout:  10 * time.Second,
		HTTPWriteTimeout: 5 * time.Minute,
		HTTPIdleTimeout:  60 * time.Second,
		GRPCEnabled:      true,
		GRPCPort:         4021,
		CORS: CORSConfig{
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
			MaxAge:         600,
		},
		RateLimit: ratelimit.Config{
			Requests: 60,
			Window:   time.Minute,
		},
		ShutdownTimeout: 30 * time.Second,
	}
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()
	if c.Host == "" {
		c.Host = defaults.Host
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = defaults.HTTPPort
	}
	if c.HTTPReadTimeout == 0 {
		c.HTTPReadTimeout = defaults.HTTPReadTimeout
	}
	if c.HTTPWriteTimeout == 0 {
		c.HTTPWriteTimeout = defaults.HTTPWriteTimeout
	}
	if c.HTTPIdleTimeout == 0 {
		c.HTTPIdleTimeout = defaults.HTTPIdleTimeout
	}
	if c.GRPCPort == 0 {
		c.GRPCPort = defaults.GRPCPort
	}
	if len(c.CORS.AllowedMethods) == 0 {
		c.CORS.AllowedMethods = defaults.CORS.AllowedMethods
	}
	if len(c.CORS.AllowedHeaders) == 0 {
		c.CORS.AllowedHeaders = defaults.CORS.AllowedHeaders
	}
	if c.CORS.MaxAge == 0 {
		c.CORS.MaxAge = defaults.CORS.MaxAge
	}
	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = defaults.RateLimit.Requests
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = defaults.RateLimit.Window
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
}

// ApplyEnvOverrides applies environment variable overrides.
func (c *Config) ApplyEnvOverrides() {
	if val := os.Getenv("HTTP_PORT"); val != "" {
		if port, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			c.HTTPPort = port
		}
	}
	if val := os.Getenv("GRPC_PORT"); val != "" {
		if port, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			c.GRPCPort = port
		}
	}
	if val := os.Getenv("SHEETSYNC_JWT_SECRET"); val != "" {
		c.Auth.JWTSecret = val
	}
	if val := os.Getenv("CORS_ALLOWED_ORIGINS"); val != "" {
		c.CORS.Enabled = true
		c.CORS.AllowedOrigins = splitList(val)
	}
}

// ResolvePaths is a no-op; the server config has no paths.
func (c *Config) ResolvePaths(_ string) {}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port out of range: %d", c.HTTPPort)
	}
	if c.GRPCEnabled {
		if c.GRPCPort <= 0 || c.GRPCPort > 65535 {
			return fmt.Errorf("server.grpc_port out of range: %d", c.GRPCPort)
		}
		if c.GRPCPort == c.HTTPPort {
			return errors.New("server.grpc_port must differ from server.http_port")
		}
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		return errors.New("server.rate_limit requires positive requests and window")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
