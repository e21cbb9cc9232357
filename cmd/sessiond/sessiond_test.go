package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/envconfig"
	"github.com/MrEthical07/goSession/jwt"
	otelexport "github.com/MrEthical07/goSession/metrics/export/otel"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/MrEthical07/goSession/password"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestHashPasswordCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("correct-horse-battery\n"))
	cmd.SetArgs([]string{"hash-password"})
	require.NoError(t, cmd.Execute())

	hash := strings.TrimSpace(out.String())
	require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"), hash)

	hasher, err := password.NewArgon2(password.DefaultConfig())
	require.NoError(t, err)
	ok, err := hasher.Verify("correct-horse-battery", hash)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestHashPasswordCommandRejectsShortPassword(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"hash-password", "short"})
	require.ErrorIs(t, cmd.Execute(), password.ErrPasswordTooShort)
}

func TestMigrateRequiresDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	cmd := newRootCommand()
	cmd.SetArgs([]string{"migrate", "--env-file", t.TempDir() + "/absent.env"})
	require.ErrorContains(t, cmd.Execute(), "DATABASE_URL")
}

func TestOpenBackendMemRedis(t *testing.T) {
	be, err := openBackend(context.Background(), envconfig.Settings{StoreBackend: envconfig.BackendMemRedis}, zap.NewNop())
	require.NoError(t, err)
	defer be.Close()

	require.NotNil(t, be.redis)
	require.NoError(t, be.redis.Ping(context.Background()).Err())
}

func TestOpenBackendMemoryAndUnknown(t *testing.T) {
	be, err := openBackend(context.Background(), envconfig.Settings{StoreBackend: envconfig.BackendMemory}, zap.NewNop())
	require.NoError(t, err)
	require.Nil(t, be.redis)
	require.Nil(t, be.db)
	be.Close()

	_, err = openBackend(context.Background(), envconfig.Settings{StoreBackend: "mongo"}, zap.NewNop())
	require.Error(t, err)
}

func TestNewDirectoryLoadsSeeds(t *testing.T) {
	users, err := newDirectory("42:alice:correct-horse:team-7")
	require.NoError(t, err)

	id, err := users.Authenticate(context.Background(), "alice", "correct-horse")
	require.NoError(t, err)
	require.Equal(t, "42", id)

	_, err = newDirectory("broken")
	require.Error(t, err)
}

func TestPages(t *testing.T) {
	pages := newPages(goSession.DefaultConfig())

	rec := httptest.NewRecorder()
	pages.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sign-in?next=/dashboard", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/api/auth/login")

	rec = httptest.NewRecorder()
	pages.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	claims := &jwt.Claims{Kind: jwt.KindAccess}
	claims.Subject = "42"
	req = req.WithContext(middleware.WithClaims(req.Context(), claims))
	rec = httptest.NewRecorder()
	pages.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Signed in as 42")
}

func TestRefreshingPage(t *testing.T) {
	rec := httptest.NewRecorder()
	refreshingPage("/login").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	require.Contains(t, rec.Body.String(), "/api/auth/refresh")
	require.Contains(t, rec.Body.String(), "login")
}

func TestInitOTelMetricsDisabled(t *testing.T) {
	shutdown, err := initOTelMetrics(context.Background(), envconfig.OTelSettings{}, nil, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestMeterProviderCarriesEngineMetrics(t *testing.T) {
	cfg := goSession.DefaultConfig()
	cfg.JWT.PrivateKey = []byte(strings.Repeat("k", 32))
	engine, err := goSession.New().WithConfig(cfg).Build()
	require.NoError(t, err)
	defer engine.Close()

	_, err = engine.IssueSession(context.Background(), "42")
	require.NoError(t, err)

	reader := sdkmetric.NewManualReader()
	mp, err := newMeterProvider(context.Background(), envconfig.OTelSettings{ServiceName: "sessiond", Environment: "test"}, reader)
	require.NoError(t, err)
	defer func() { _ = mp.Shutdown(context.Background()) }()

	exp, err := otelexport.NewOTelExporter(mp.Meter("test"), engine)
	require.NoError(t, err)
	defer func() { _ = exp.Close() }()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	service, ok := rm.Resource.Set().Value("service.name")
	require.True(t, ok)
	require.Equal(t, "sessiond", service.AsString())

	var created int64 = -1
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "gosession_session_created_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			created = sum.DataPoints[0].Value
		}
	}
	require.Equal(t, int64(1), created)
}
