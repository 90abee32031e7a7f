package apperrors

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWriteErr_TypedError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/x", nil)

	err := Unprocessable("PLAN_REQUIRES_ORGANIZATION", "Plan requires an organization")
	err.RequiresOrganization = true
	WriteErr(rec, req, err)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode(t, rec)
	require.Equal(t, "Plan requires an organization", body["error"])
	require.Equal(t, "PLAN_REQUIRES_ORGANIZATION", body["code"])
	require.Equal(t, true, body["requires_organization"])
}

func TestWriteErr_OmitsRequiresOrganizationWhenFalse(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErr(rec, httptest.NewRequest(http.MethodGet, "/", nil), Conflict("SLUG_TAKEN", "taken"))

	body := decode(t, rec)
	require.NotContains(t, body, "requires_organization")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestWriteErr_WrappedTypedError(t *testing.T) {
	rec := httptest.NewRecorder()
	wrapped := errors.Join(errors.New("context"), NotFound("Organization not found"))
	WriteErr(rec, httptest.NewRequest(http.MethodGet, "/", nil), wrapped)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWriteErr_UnknownErrorHidesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErr(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: relation \"teams\" does not exist"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "Internal server error", body["error"])
	require.Equal(t, CodeInternal, body["code"])
	require.NotContains(t, rec.Body.String(), "relation")
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	t.Run("generates", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.NotEmpty(t, seen)
		require.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})

	t.Run("keeps well formed incoming id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-12345")
		h.ServeHTTP(httptest.NewRecorder(), req)
		require.Equal(t, "abc-12345", seen)
	})

	t.Run("replaces malformed incoming id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "bad id with spaces")
		h.ServeHTTP(httptest.NewRecorder(), req)
		require.NotEqual(t, "bad id with spaces", seen)
	})
}
