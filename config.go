package goSession

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config configures a [Client]. Obtain defaults with [DefaultConfig].
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	BaseURL   string
	Endpoints EndpointConfig
	// RequestTimeout bounds every network call, refresh included.
	RequestTimeout time.Duration
	// ExpiringSoonThreshold is used by IsTokenExpiringSoon when called with 0.
	ExpiringSoonThreshold time.Duration
	DefaultHeaders        map[string]string
	Session               SessionConfig
	Audit                 AuditConfig
	Metrics               MetricsConfig
}

/*
====================================
ENDPOINT CONFIG
====================================
*/

// EndpointConfig holds the identity and profile paths relative to BaseURL.
type EndpointConfig struct {
	Login         string
	Logout        string
	Refresh       string
	Verify        string
	Profile       string
	UpdateProfile string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the store built by [Builder.WithRedis].
type SessionConfig struct {
	RedisPrefix string
}

// AuditConfig configures asynchronous audit dispatch.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration of a development dashboard
// talking to a local identity server.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:3001",
		Endpoints: EndpointConfig{
			Login:         "/api/login",
			Logout:        "/api/auth/logout",
			Refresh:       "/api/auth/refresh",
			Verify:        "/api/auth/verify",
			Profile:       "/api/users/profile",
			UpdateProfile: "/api/users/profile/update",
		},
		RequestTimeout:        30 * time.Second,
		ExpiringSoonThreshold: 5 * time.Minute,
		DefaultHeaders: map[string]string{
			"Content-Type": "application/json",
		},
		Session: SessionConfig{
			RedisPrefix: "gs",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.DefaultHeaders != nil {
		out.DefaultHeaders = make(map[string]string, len(cfg.DefaultHeaders))
		for k, v := range cfg.DefaultHeaders {
			out.DefaultHeaders[k] = v
		}
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field of c.
func (c *Config) Validate() error {
	// Base URL
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("BaseURL must be set")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return errors.New("BaseURL is not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("BaseURL scheme must be http or https")
	}
	if u.Host == "" {
		return errors.New("BaseURL must include a host")
	}

	// Endpoints
	paths := map[string]string{
		"Login":         c.Endpoints.Login,
		"Logout":        c.Endpoints.Logout,
		"Refresh":       c.Endpoints.Refresh,
		"Verify":        c.Endpoints.Verify,
		"Profile":       c.Endpoints.Profile,
		"UpdateProfile": c.Endpoints.UpdateProfile,
	}
	for name, p := range paths {
		if !strings.HasPrefix(p, "/") {
			return errors.New("Endpoints " + name + " must start with /")
		}
	}

	// Timing
	if c.RequestTimeout <= 0 {
		return errors.New("RequestTimeout must be > 0")
	}
	if c.ExpiringSoonThreshold <= 0 {
		return errors.New("ExpiringSoonThreshold must be > 0")
	}

	// Session
	if strings.ContainsAny(c.Session.RedisPrefix, " \t\n") {
		return errors.New("Session RedisPrefix must not contain whitespace")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
