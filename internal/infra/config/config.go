// Package config provides application-wide configuration.
// Values come from built-in defaults, then an optional YAML file, then env vars.
// All fields have safe defaults so the binary runs locally without any setup,
// except JWTSecret which the auth layer requires at sign-in time.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for Nucleus.
type Config struct {
	DBPath   string     `yaml:"db_path"`   // NUCLEUS_DB_PATH
	LogLevel string     `yaml:"log_level"` // NUCLEUS_LOG_LEVEL
	HTTP     HTTPConfig `yaml:"http"`
	Auth     AuthConfig `yaml:"auth"`
	Deal     DealConfig `yaml:"deal_stage"`
}

// HTTPConfig configures the listener.
type HTTPConfig struct {
	Host string `yaml:"host"` // NUCLEUS_HTTP_HOST
	Port int    `yaml:"port"` // NUCLEUS_HTTP_PORT
}

// AuthConfig configures the sign-in gate.
type AuthConfig struct {
	AllowedDomain string        `yaml:"allowed_domain"` // NUCLEUS_ALLOWED_DOMAIN
	JWTSecret     string        `yaml:"jwt_secret"`     // JWT_SECRET
	SessionTTL    time.Duration `yaml:"session_ttl"`    // JWT_EXPIRY (hours)
	IDPSecret     string        `yaml:"idp_secret"`     // NUCLEUS_IDP_SECRET
	IDPIssuer     string        `yaml:"idp_issuer"`     // NUCLEUS_IDP_ISSUER
	IDPAudience   string        `yaml:"idp_audience"`   // NUCLEUS_IDP_AUDIENCE
}

// DealConfig tunes the deal stage mapper.
type DealConfig struct {
	StageFetchDelay time.Duration `yaml:"stage_fetch_delay"` // NUCLEUS_STAGE_FETCH_DELAY
	ConfirmDelay    time.Duration `yaml:"confirm_delay"`     // NUCLEUS_CONFIRM_DELAY
	WizardTTL       time.Duration `yaml:"wizard_ttl"`        // NUCLEUS_WIZARD_TTL
}

const (
	envKeyDBPath          = "NUCLEUS_DB_PATH"
	envKeyLogLevel        = "NUCLEUS_LOG_LEVEL"
	envKeyHTTPHost        = "NUCLEUS_HTTP_HOST"
	envKeyHTTPPort        = "NUCLEUS_HTTP_PORT"
	envKeyAllowedDomain   = "NUCLEUS_ALLOWED_DOMAIN"
	envKeyJWTSecret       = "JWT_SECRET"
	envKeyJWTExpiry       = "JWT_EXPIRY"
	envKeyIDPSecret       = "NUCLEUS_IDP_SECRET"
	envKeyIDPIssuer       = "NUCLEUS_IDP_ISSUER"
	envKeyIDPAudience     = "NUCLEUS_IDP_AUDIENCE"
	envKeyStageFetchDelay = "NUCLEUS_STAGE_FETCH_DELAY"
	envKeyConfirmDelay    = "NUCLEUS_CONFIRM_DELAY"
	envKeyWizardTTL       = "NUCLEUS_WIZARD_TTL"
)

// ErrInvalidConfig wraps every validation failure returned by Load.
var ErrInvalidConfig = errors.New("invalid config")

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		DBPath:   "nucleus.db",
		LogLevel: "info",
		HTTP:     HTTPConfig{Host: "0.0.0.0", Port: 8080},
		Auth: AuthConfig{
			AllowedDomain: "@zime.ai",
			SessionTTL:    24 * time.Hour,
			IDPIssuer:     "https://securetoken.google.com/zime-nucleus",
			IDPAudience:   "zime-nucleus",
		},
		Deal: DealConfig{
			StageFetchDelay: 1500 * time.Millisecond,
			ConfirmDelay:    time.Second,
			WizardTTL:       2 * time.Hour,
		},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	c.DBPath = envOr(envKeyDBPath, c.DBPath)
	c.LogLevel = envOr(envKeyLogLevel, c.LogLevel)
	c.HTTP.Host = envOr(envKeyHTTPHost, c.HTTP.Host)
	c.Auth.AllowedDomain = envOr(envKeyAllowedDomain, c.Auth.AllowedDomain)
	c.Auth.JWTSecret = envOr(envKeyJWTSecret, c.Auth.JWTSecret)
	c.Auth.IDPSecret = envOr(envKeyIDPSecret, c.Auth.IDPSecret)
	c.Auth.IDPIssuer = envOr(envKeyIDPIssuer, c.Auth.IDPIssuer)
	c.Auth.IDPAudience = envOr(envKeyIDPAudience, c.Auth.IDPAudience)

	if v := os.Getenv(envKeyHTTPPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, envKeyHTTPPort, v)
		}
		c.HTTP.Port = port
	}
	// JWT_EXPIRY is expressed in hours; invalid values keep the current TTL.
	if v := os.Getenv(envKeyJWTExpiry); v != "" {
		if hours, err := strconv.Atoi(v); err == nil && hours > 0 {
			c.Auth.SessionTTL = time.Duration(hours) * time.Hour
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{envKeyStageFetchDelay, &c.Deal.StageFetchDelay},
		{envKeyConfirmDelay, &c.Deal.ConfirmDelay},
		{envKeyWizardTTL, &c.Deal.WizardTTL},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, d.key, v, err)
		}
		*d.dst = parsed
	}
	return nil
}

func (c *Config) validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("%w: http port %d out of range", ErrInvalidConfig, c.HTTP.Port)
	}
	if !strings.HasPrefix(c.Auth.AllowedDomain, "@") || len(c.Auth.AllowedDomain) < 2 {
		return fmt.Errorf("%w: allowed domain %q must look like @example.com", ErrInvalidConfig, c.Auth.AllowedDomain)
	}
	if c.Deal.StageFetchDelay < 0 || c.Deal.ConfirmDelay < 0 {
		return fmt.Errorf("%w: simulated delays must not be negative", ErrInvalidConfig)
	}
	if c.Deal.WizardTTL <= 0 {
		return fmt.Errorf("%w: wizard ttl must be positive", ErrInvalidConfig)
	}
	return nil
}

// envOr returns the value of the environment variable key, or fallback if not set.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
