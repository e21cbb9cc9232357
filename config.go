package goSession

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// Config is the engine configuration. It is copied at Build time and treated
// as immutable afterwards.
type Config struct {
	JWT      JWTConfig
	Refresh  RefreshConfig
	Cookie   CookieConfig
	Guard    GuardConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Security SecurityConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the token codec.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls rotation behavior.
type RefreshConfig struct {
	// RevokeAllOnReuse revokes every session of a user when one of their
	// rotated refresh tokens is replayed.
	RevokeAllOnReuse bool
	// StoreRetention keeps records past expiry so late replays are still
	// classified as reuse.
	StoreRetention time.Duration
	RedisPrefix    string
}

/*
====================================
COOKIE / GUARD CONFIG
====================================
*/

// CookieConfig names and scopes the two session cookies.
type CookieConfig struct {
	AccessName  string
	RefreshName string
	Path        string
	Domain      string
	Secure      bool
	SameSite    http.SameSite
}

// GuardConfig configures the page route guard.
type GuardConfig struct {
	ProtectedPrefixes []string
	ExcludedPrefixes  []string
	SignInPath        string
}

/*
====================================
AUDIT / METRICS / SECURITY
====================================
*/

// AuditConfig controls the async audit dispatcher.
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

// SecurityConfig holds throttling knobs.
type SecurityConfig struct {
	ProductionMode          bool
	EnableRefreshThrottle   bool
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
	EnableLoginThrottle     bool
	MaxLoginAttempts        int
	LoginCooldownDuration   time.Duration
}

// DefaultConfig returns the baseline configuration: 15 minute access tokens,
// 30 day refresh tokens and reuse-triggered revoke-all. Signing keys must
// still be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    30 * 24 * time.Hour,
			SigningMethod: "hs256",
		},
		Refresh: RefreshConfig{
			RevokeAllOnReuse: true,
			StoreRetention:   24 * time.Hour,
			RedisPrefix:      "gs",
		},
		Cookie: CookieConfig{
			AccessName:  "access_token",
			RefreshName: "refresh_token",
			Path:        "/",
			Secure:      true,
			SameSite:    http.SameSiteLaxMode,
		},
		Guard: GuardConfig{
			ProtectedPrefixes: []string{"/dashboard"},
			SignInPath:        "/sign-in",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Security: SecurityConfig{
			EnableRefreshThrottle:   true,
			MaxRefreshAttempts:      30,
			RefreshCooldownDuration: time.Minute,
			EnableLoginThrottle:     true,
			MaxLoginAttempts:        5,
			LoginCooldownDuration:   15 * time.Minute,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	out.Guard.ProtectedPrefixes = append([]string(nil), cfg.Guard.ProtectedPrefixes...)
	out.Guard.ExcludedPrefixes = append([]string(nil), cfg.Guard.ExcludedPrefixes...)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks cross-field constraints. Key material is checked again by
// jwt.NewManager at Build time.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must exceed AccessTTL")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if len(c.JWT.PrivateKey) == 0 {
		return errors.New("JWT PrivateKey is required")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Refresh
	if c.Refresh.StoreRetention < 0 {
		return errors.New("Refresh StoreRetention must be >= 0")
	}

	// Cookie
	if c.Cookie.AccessName == "" || c.Cookie.RefreshName == "" {
		return errors.New("cookie names must be set")
	}
	if c.Cookie.AccessName == c.Cookie.RefreshName {
		return errors.New("access and refresh cookie names must differ")
	}
	if c.Cookie.SameSite == http.SameSiteNoneMode && !c.Cookie.Secure {
		return errors.New("SameSite=None cookies must be Secure")
	}

	// Guard
	if !strings.HasPrefix(c.Guard.SignInPath, "/") {
		return errors.New("Guard SignInPath must be an absolute path")
	}
	for _, p := range c.Guard.ProtectedPrefixes {
		if !strings.HasPrefix(p, "/") {
			return errors.New("Guard ProtectedPrefixes must start with /")
		}
		if strings.HasPrefix(c.Guard.SignInPath, p) {
			return errors.New("Guard SignInPath must not be protected")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	// Security
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts <= 0 {
			return errors.New("MaxRefreshAttempts must be > 0 when refresh throttling is enabled")
		}
		if c.Security.RefreshCooldownDuration <= 0 {
			return errors.New("RefreshCooldownDuration must be > 0 when refresh throttling is enabled")
		}
	}
	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 {
			return errors.New("MaxLoginAttempts must be > 0 when login throttling is enabled")
		}
		if c.Security.LoginCooldownDuration <= 0 {
			return errors.New("LoginCooldownDuration must be > 0 when login throttling is enabled")
		}
	}
	if c.Security.ProductionMode && !c.Cookie.Secure {
		return errors.New("ProductionMode requires Secure cookies")
	}

	return nil
}
