package bridge

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aliuyar1234/ctlplane/internal/audit"
	"github.com/aliuyar1234/ctlplane/internal/auth"
	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/aliuyar1234/ctlplane/internal/store/memory"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken_AndValidateFormatAndHash(t *testing.T) {
	token, hash, err := GenerateToken()
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(token, TokenPrefix))
	require.True(t, ValidateTokenFormat(token))
	require.Len(t, hash, sha256.Size)
	require.Equal(t, HashToken(token), hash)
}

func TestValidateTokenFormat_Invalid(t *testing.T) {
	require.False(t, ValidateTokenFormat("nope_abc"))
	require.False(t, ValidateTokenFormat(TokenPrefix+"short"))
	require.False(t, ValidateTokenFormat(TokenPrefix+"!!!"))
}

func issue(t *testing.T, s *memory.Store, userID uuid.UUID, scopes []string, mutate func(*store.BridgeToken)) string {
	t.Helper()
	token, hash, err := GenerateToken()
	require.NoError(t, err)
	bt := &store.BridgeToken{UserID: userID, Name: "laptop", TokenHash: hash, Scopes: scopes}
	if mutate != nil {
		mutate(bt)
	}
	require.NoError(t, s.CreateBridgeToken(context.Background(), bt))
	return token
}

func TestRequireToken(t *testing.T) {
	s := memory.New()
	u := &store.User{Email: "dev@example.com"}
	require.NoError(t, s.CreateUser(context.Background(), u))

	past := time.Now().Add(-time.Hour)
	readToken := issue(t, s, u.ID, []string{ScopeRead}, nil)
	writeToken := issue(t, s, u.ID, []string{ScopeRead, ScopeWrite}, nil)
	revoked := issue(t, s, u.ID, []string{ScopeWrite}, func(bt *store.BridgeToken) { bt.RevokedAt = &past })
	expired := issue(t, s, u.ID, []string{ScopeWrite}, func(bt *store.BridgeToken) { bt.ExpiresAt = &past })

	var seen *store.BridgeToken
	h := RequireToken(s, ScopeWrite)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetToken(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"malformed token", "Bearer cpb_nope", http.StatusUnauthorized},
		{"unknown token", "Bearer " + TokenPrefix + strings.Repeat("A", 43), http.StatusUnauthorized},
		{"revoked", "Bearer " + revoked, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"missing scope", "Bearer " + readToken, http.StatusForbidden},
		{"ok", "Bearer " + writeToken, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/research", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status != http.StatusNoContent {
				var body map[string]any
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				require.NotEmpty(t, body["error"])
			}
		})
	}

	require.NotNil(t, seen)
	require.Equal(t, u.ID, seen.UserID)
}

func TestRateLimitByToken(t *testing.T) {
	tok := &store.BridgeToken{ID: uuid.New(), Name: "laptop"}
	h := RateLimitByToken(2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithToken(req.Context(), tok))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestAdminTokenLifecycle(t *testing.T) {
	s := memory.New()
	u := &store.User{Email: "dev@example.com"}
	require.NoError(t, s.CreateUser(context.Background(), u))
	auditor := audit.NewWriter(s)
	a := &auth.Admin{ID: uuid.New(), Email: "root@example.com"}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(auth.WithAdmin(req.Context(), a)))
		})
	})
	r.Post("/users/{user_id}/bridge-tokens", HandleCreate(s, auditor))
	r.Get("/users/{user_id}/bridge-tokens", HandleList(s))
	r.Delete("/users/{user_id}/bridge-tokens/{token_id}", HandleRevoke(s, auditor))
	base := "/users/" + u.ID.String() + "/bridge-tokens"

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, base, strings.NewReader(`{"name":"x","scopes":["admin"]}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users/"+uuid.NewString()+"/bridge-tokens", strings.NewReader(`{"name":"x"}`)))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, base,
		strings.NewReader(`{"name":"laptop","scopes":["read","write","read"],"expires_in_days":30}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created CreateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.True(t, ValidateTokenFormat(created.Token))
	require.Equal(t, []string{"read", "write"}, created.BridgeToken.Scopes)
	require.NotNil(t, created.BridgeToken.ExpiresAt)
	require.NotContains(t, rec.Body.String(), "token_hash")

	stored, err := Validate(context.Background(), s, created.Token, time.Now())
	require.NoError(t, err)
	require.Equal(t, a.ID, stored.CreatedByUserID)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, base, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"name":"laptop"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, base+"/"+created.BridgeToken.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	_, err = Validate(context.Background(), s, created.Token, time.Now())
	require.ErrorIs(t, err, ErrRevokedToken)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, base+"/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	logs, err := s.ListAuditLogs(context.Background(), store.AuditFilter{ResourceType: audit.ResourceBridgeToken})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, audit.ActionBridgeTokenRevoked, logs[0].Action)
}
