package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aliuyar1234/ctlplane/internal/auth"
	"github.com/aliuyar1234/ctlplane/internal/bridge"
	"github.com/aliuyar1234/ctlplane/internal/config"
	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/aliuyar1234/ctlplane/internal/store/memory"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:                    "dev",
		HTTPAddr:               ":0",
		BaseURL:                "http://localhost:3000",
		StoreDriver:            config.StoreDriverMemory,
		JWTSecret:              "test-secret-that-is-long-enough-123",
		SessionDays:            1,
		LogLevel:               "error",
		RateLimitRPM:           60,
		SettingsTTL:            time.Minute,
		SettingsCategories:     []string{"billing", "app"},
		NotifyTimeoutMS:        1000,
		BootstrapAdminEmail:    "Root@Example.com",
		BootstrapAdminPassword: "correct-horse-battery",
		TokenRetentionDays:     30,
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	t.Setenv("STRIPE_SECRET_KEY", "")
	a, err := New(context.Background(), testConfig())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func serve(a *App, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, a *App) (string, []*http.Cookie) {
	t.Helper()
	rec := serve(a, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"root@example.com","password":"correct-horse-battery"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp auth.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token, rec.Result().Cookies()
}

func TestHealthEndpoints(t *testing.T) {
	a := newTestApp(t)

	rec := serve(a, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = serve(a, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ready","store":"ok"}`, rec.Body.String())

	rec = serve(a, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "ctlplane_audit_write_failures_total")
}

func TestReadyz_StoreDown(t *testing.T) {
	s := memory.New()
	s.FailOn("Ping", context.DeadlineExceeded)

	rec := httptest.NewRecorder()
	handleReadyz(s)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSuperadminRoutesRequireSession(t *testing.T) {
	a := newTestApp(t)

	rec := serve(a, httptest.NewRequest(http.MethodGet, "/api/superadmin/plans", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(a, httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"root@example.com","password":"wrong"}`)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token, _ := login(t, a)
	req := httptest.NewRequest(http.MethodGet, "/api/superadmin/plans", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = serve(a, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Plans []store.Plan `json:"plans"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Plans)
}

func TestCookieMutationsRequireCSRF(t *testing.T) {
	a := newTestApp(t)
	_, cookies := login(t, a)

	var csrf string
	for _, c := range cookies {
		if c.Name == auth.CSRFCookieName {
			csrf = c.Value
		}
	}
	require.NotEmpty(t, csrf)

	put := func(withHeader bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPut, "/api/superadmin/settings",
			strings.NewReader(`{"settings":[{"key":"support_email","value":"help@example.com","category":"app"}]}`))
		for _, c := range cookies {
			req.AddCookie(c)
		}
		if withHeader {
			req.Header.Set(auth.CSRFHeaderName, csrf)
		}
		return serve(a, req)
	}

	require.Equal(t, http.StatusForbidden, put(false).Code)
	rec := put(true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSavingStripeKeyConfiguresPayments(t *testing.T) {
	a := newTestApp(t)
	token, _ := login(t, a)

	do := func(method, target, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		return serve(a, req)
	}

	rec := do(http.MethodGet, "/api/superadmin/settings/billing/status", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "Superadmin")

	_, err := a.Payments.Client(context.Background())
	require.Error(t, err)

	rec = do(http.MethodPut, "/api/superadmin/settings",
		`{"settings":[{"key":"stripe_secret_key","value":"sk_test_123","category":"billing","is_sensitive":true}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(http.MethodGet, "/api/superadmin/settings/billing/status", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), `"mode":"test"`)

	c, err := a.Payments.Client(context.Background())
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestResearchRequiresBridgeToken(t *testing.T) {
	a := newTestApp(t)

	rec := serve(a, httptest.NewRequest(http.MethodGet, "/api/v1/research", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(a, httptest.NewRequest(http.MethodPost, "/api/v1/research", strings.NewReader(`{"action":"create"}`)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResearchRateLimitIsSharedAcrossMethods(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "")
	cfg := testConfig()
	cfg.RateLimitRPM = 2
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	ctx := context.Background()
	root, err := a.Store.GetUserByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	raw, hash, err := bridge.GenerateToken()
	require.NoError(t, err)
	require.NoError(t, a.Store.CreateBridgeToken(ctx, &store.BridgeToken{
		UserID: root.ID, Name: "laptop", TokenHash: hash,
		Scopes: []string{bridge.ScopeRead, bridge.ScopeWrite}, CreatedByUserID: root.ID,
	}))

	do := func(method, body string) int {
		req := httptest.NewRequest(method, "/api/v1/research", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+raw)
		return serve(a, req).Code
	}

	require.Equal(t, http.StatusOK, do(http.MethodGet, ""))
	require.Equal(t, http.StatusBadRequest, do(http.MethodPost, `{"action":"nope"}`))
	require.Equal(t, http.StatusTooManyRequests, do(http.MethodGet, ""))
	require.Equal(t, http.StatusTooManyRequests, do(http.MethodPost, `{"action":"nope"}`))
}

func TestBootstrapAdmin_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	require.NoError(t, bootstrapAdmin(ctx, s, "admin@example.com", "pw-123456"))
	require.NoError(t, bootstrapAdmin(ctx, s, "ADMIN@example.com", "other"))
	require.NoError(t, bootstrapAdmin(ctx, s, "", ""))

	n, err := s.CountSuperadmins(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	u, err := s.GetUserByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	require.NoError(t, auth.VerifyPassword(u.PasswordHash, "pw-123456"))
}
