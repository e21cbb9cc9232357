package goSession

import (
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults with key",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "missing key",
			mutate: func(c *Config) {
				c.JWT.PrivateKey = nil
			},
			wantValid: false,
		},
		{
			name: "jwt leeway valid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 45 * time.Second
			},
			wantValid: true,
		},
		{
			name: "jwt leeway invalid",
			mutate: func(c *Config) {
				c.JWT.Leeway = 3 * time.Minute
			},
			wantValid: false,
		},
		{
			name: "jwt signing invalid",
			mutate: func(c *Config) {
				c.JWT.SigningMethod = "rs256"
			},
			wantValid: false,
		},
		{
			name: "refresh ttl not above access ttl",
			mutate: func(c *Config) {
				c.JWT.RefreshTTL = c.JWT.AccessTTL
			},
			wantValid: false,
		},
		{
			name: "same cookie names",
			mutate: func(c *Config) {
				c.Cookie.RefreshName = c.Cookie.AccessName
			},
			wantValid: false,
		},
		{
			name: "samesite none requires secure",
			mutate: func(c *Config) {
				c.Cookie.SameSite = http.SameSiteNoneMode
				c.Cookie.Secure = false
			},
			wantValid: false,
		},
		{
			name: "sign-in path protected",
			mutate: func(c *Config) {
				c.Guard.ProtectedPrefixes = []string{"/"}
			},
			wantValid: false,
		},
		{
			name: "relative protected prefix",
			mutate: func(c *Config) {
				c.Guard.ProtectedPrefixes = []string{"dashboard"}
			},
			wantValid: false,
		},
		{
			name: "audit buffer zero",
			mutate: func(c *Config) {
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "audit disabled ignores buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = false
				c.Audit.BufferSize = 0
			},
			wantValid: true,
		},
		{
			name: "refresh throttle without budget",
			mutate: func(c *Config) {
				c.Security.MaxRefreshAttempts = 0
			},
			wantValid: false,
		},
		{
			name: "login throttle without cooldown",
			mutate: func(c *Config) {
				c.Security.LoginCooldownDuration = 0
			},
			wantValid: false,
		},
		{
			name: "production mode insecure cookies",
			mutate: func(c *Config) {
				c.Security.ProductionMode = true
				c.Cookie.Secure = false
			},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.JWT.PrivateKey = []byte(strings.Repeat("k", 32))
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCloneConfigDetachesSlicesAndKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte(strings.Repeat("k", 32))
	cfg.JWT.VerifyKeys = map[string][]byte{"v1": []byte("abc")}

	out := cloneConfig(cfg)
	cfg.JWT.PrivateKey[0] = 'x'
	cfg.JWT.VerifyKeys["v1"][0] = 'z'
	cfg.Guard.ProtectedPrefixes[0] = "/changed"

	if out.JWT.PrivateKey[0] != 'k' || out.JWT.VerifyKeys["v1"][0] != 'a' {
		t.Fatal("clone shares key material")
	}
	if out.Guard.ProtectedPrefixes[0] != "/dashboard" {
		t.Fatal("clone shares guard prefixes")
	}
}
