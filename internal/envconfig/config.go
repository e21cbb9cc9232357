// Package envconfig loads sessiond settings from a .env file and the process
// environment.
package envconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	// BackendMemRedis runs an embedded miniredis. Demo and load tests only.
	BackendMemRedis = "memredis"
)

const (
	defaultAddr            = "localhost:8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 30 * time.Second
	defaultGracefulTimeout = 5 * time.Second
	defaultRedisAddr       = "localhost:6379"
	defaultLogLevel        = "info"
	defaultLogFormat       = "console"
	defaultOTelEndpoint    = "localhost:4317"
	defaultOTelInterval    = 15 * time.Second
	defaultOTelService     = "sessiond"
)

// Settings is everything sessiond needs to start.
type Settings struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	GracefulTimeout time.Duration

	StoreBackend string
	RedisAddr    string
	DatabaseURL  string

	LogLevel  string
	LogFormat string
	BuildID   string
	DemoUsers string
	// TrustedProxies lists CIDRs or addresses allowed to set forwarding
	// headers.
	TrustedProxies []string

	OTel OTelSettings

	Session goSession.Config
}

// OTelSettings configures the optional OTLP metrics push.
type OTelSettings struct {
	Enabled        bool
	Endpoint       string
	Insecure       bool
	ExportInterval time.Duration
	ServiceName    string
	Environment    string
}

// Loader reads settings. Warn receives notices about ignored values.
type Loader struct {
	Getenv func(string) string
	Warn   func(msg string, keysAndValues ...any)
}

// Load reads envFile (missing files are ignored) and then the environment.
func Load(envFile string, logger *zap.Logger) (Settings, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, fmt.Errorf("envconfig: load %s: %w", envFile, err)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := Loader{Getenv: os.Getenv, Warn: logger.Sugar().Warnw}
	return l.Load()
}

// Load builds Settings from l.Getenv.
func (l Loader) Load() (Settings, error) {
	if l.Getenv == nil {
		l.Getenv = os.Getenv
	}

	s := Settings{
		Addr:            l.stringOrDefault("SESSIOND_ADDR", defaultAddr),
		ReadTimeout:     l.parseDurationOrDefault("READ_TIMEOUT", defaultReadTimeout),
		WriteTimeout:    l.parseDurationOrDefault("WRITE_TIMEOUT", defaultWriteTimeout),
		IdleTimeout:     l.parseDurationOrDefault("IDLE_TIMEOUT", defaultIdleTimeout),
		GracefulTimeout: l.parseDurationOrDefault("GRACEFUL_TIMEOUT", defaultGracefulTimeout),
		StoreBackend:    strings.ToLower(l.stringOrDefault("STORE_BACKEND", BackendMemory)),
		RedisAddr:       l.stringOrDefault("REDIS_ADDR", defaultRedisAddr),
		DatabaseURL:     strings.TrimSpace(l.Getenv("DATABASE_URL")),
		LogLevel:        l.stringOrDefault("LOG_LEVEL", defaultLogLevel),
		LogFormat:       l.stringOrDefault("LOG_FORMAT", defaultLogFormat),
		BuildID:         strings.TrimSpace(l.Getenv("BUILD_ID")),
		DemoUsers:       l.Getenv("DEMO_USERS"),
		TrustedProxies:  splitList(l.Getenv("TRUSTED_PROXIES")),
		OTel: OTelSettings{
			Enabled:        l.parseBoolOrDefault("OTEL_METRICS_ENABLED", false),
			Endpoint:       l.stringOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", defaultOTelEndpoint),
			Insecure:       l.parseBoolOrDefault("OTEL_EXPORTER_OTLP_INSECURE", false),
			ExportInterval: l.parseDurationOrDefault("OTEL_METRICS_EXPORT_INTERVAL", defaultOTelInterval),
			ServiceName:    l.stringOrDefault("OTEL_SERVICE_NAME", defaultOTelService),
			Environment:    strings.TrimSpace(l.Getenv("OTEL_ENVIRONMENT")),
		},
	}

	switch s.StoreBackend {
	case BackendMemory, BackendRedis, BackendMemRedis:
	case BackendPostgres:
		if s.DatabaseURL == "" {
			return Settings{}, errors.New("envconfig: DATABASE_URL is required for the postgres backend")
		}
	default:
		return Settings{}, fmt.Errorf("envconfig: unknown STORE_BACKEND %q", s.StoreBackend)
	}

	cfg := goSession.DefaultConfig()

	secret := l.Getenv("JWT_SECRET")
	if secret == "" {
		return Settings{}, errors.New("envconfig: JWT_SECRET is not set")
	}
	cfg.JWT.PrivateKey = []byte(secret)
	cfg.JWT.KeyID = strings.TrimSpace(l.Getenv("JWT_KEY_ID"))
	cfg.JWT.Issuer = strings.TrimSpace(l.Getenv("JWT_ISSUER"))
	cfg.JWT.Audience = strings.TrimSpace(l.Getenv("JWT_AUDIENCE"))
	cfg.JWT.AccessTTL = l.parseDurationOrDefault("ACCESS_TOKEN_TTL", cfg.JWT.AccessTTL)
	cfg.JWT.RefreshTTL = l.parseDurationOrDefault("REFRESH_TOKEN_TTL", cfg.JWT.RefreshTTL)
	verifyKeys, err := parseVerifyKeys(l.Getenv("JWT_VERIFY_KEYS"))
	if err != nil {
		return Settings{}, err
	}
	cfg.JWT.VerifyKeys = verifyKeys

	if v := l.Getenv("PROTECTED_PREFIXES"); v != "" {
		cfg.Guard.ProtectedPrefixes = splitList(v)
	}
	if v := l.Getenv("EXCLUDED_PREFIXES"); v != "" {
		cfg.Guard.ExcludedPrefixes = splitList(v)
	}
	cfg.Guard.SignInPath = l.stringOrDefault("SIGN_IN_PATH", cfg.Guard.SignInPath)
	cfg.Cookie.Secure = l.parseBoolOrDefault("COOKIE_SECURE", cfg.Cookie.Secure)
	cfg.Cookie.Domain = strings.TrimSpace(l.Getenv("COOKIE_DOMAIN"))

	cfg.Refresh.RevokeAllOnReuse = l.parseBoolOrDefault("REVOKE_ALL_ON_REUSE", cfg.Refresh.RevokeAllOnReuse)
	cfg.Refresh.StoreRetention = l.parseDurationOrDefault("STORE_RETENTION", cfg.Refresh.StoreRetention)
	cfg.Refresh.RedisPrefix = l.stringOrDefault("REDIS_PREFIX", cfg.Refresh.RedisPrefix)

	cfg.Security.ProductionMode = l.parseBoolOrDefault("PRODUCTION_MODE", cfg.Security.ProductionMode)
	cfg.Security.MaxRefreshAttempts = l.parseIntOrDefault("REFRESH_RATE_LIMIT", cfg.Security.MaxRefreshAttempts)
	cfg.Security.RefreshCooldownDuration = l.parseDurationOrDefault("REFRESH_RATE_INTERVAL", cfg.Security.RefreshCooldownDuration)
	cfg.Security.MaxLoginAttempts = l.parseIntOrDefault("LOGIN_RATE_LIMIT", cfg.Security.MaxLoginAttempts)
	cfg.Security.LoginCooldownDuration = l.parseDurationOrDefault("LOGIN_RATE_INTERVAL", cfg.Security.LoginCooldownDuration)

	if err := cfg.Validate(); err != nil {
		return Settings{}, fmt.Errorf("envconfig: %w", err)
	}
	s.Session = cfg
	return s, nil
}

func (l Loader) warn(msg string, keysAndValues ...any) {
	if l.Warn != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (l Loader) stringOrDefault(name, def string) string {
	if v := strings.TrimSpace(l.Getenv(name)); v != "" {
		return v
	}
	return def
}

func (l Loader) parseDurationOrDefault(name string, def time.Duration) time.Duration {
	if v := l.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		l.warn("invalid duration, using default", "var", name, "value", v, "default", def)
	}
	return def
}

func (l Loader) parseIntOrDefault(name string, def int) int {
	if v := l.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		l.warn("invalid integer, using default", "var", name, "value", v, "default", def)
	}
	return def
}

func (l Loader) parseBoolOrDefault(name string, def bool) bool {
	if v := l.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		l.warn("invalid boolean, using default", "var", name, "value", v, "default", def)
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseVerifyKeys parses "kid=secret,kid2=secret2".
func parseVerifyKeys(v string) (map[string][]byte, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	keys := make(map[string][]byte)
	for _, pair := range splitList(v) {
		kid, secret, ok := strings.Cut(pair, "=")
		kid = strings.TrimSpace(kid)
		if !ok || kid == "" || secret == "" {
			return nil, fmt.Errorf("envconfig: malformed JWT_VERIFY_KEYS entry %q", pair)
		}
		keys[kid] = []byte(secret)
	}
	return keys, nil
}
