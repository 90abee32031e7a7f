package research

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aliuyar1234/ctlplane/internal/bridge"
	"github.com/aliuyar1234/ctlplane/internal/plans"
	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/aliuyar1234/ctlplane/internal/store/memory"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type env struct {
	store  *memory.Store
	router chi.Router
	pro    *store.User
	free   *store.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	s.SeedPlans(plans.DefaultPlans())

	e := &env{store: s, pro: &store.User{Email: "pro@example.com"}, free: &store.User{Email: "free@example.com"}}
	require.NoError(t, s.CreateUser(ctx, e.pro))
	require.NoError(t, s.CreateUser(ctx, e.free))

	pro, free := "pro", "free"
	require.NoError(t, s.CreateLicense(ctx, &store.License{UserID: e.pro.ID, PlanID: &pro, Status: store.LicenseActive}))
	require.NoError(t, s.CreateLicense(ctx, &store.License{UserID: e.free.ID, PlanID: &free, Status: store.LicenseActive}))

	r := chi.NewRouter()
	r.Get("/api/v1/research", HandleGet(s))
	r.Post("/api/v1/research", HandlePost(s, plans.NewEnforcer(s)))
	e.router = r
	return e
}

func (e *env) do(t *testing.T, u *store.User, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(bridge.WithToken(req.Context(), &store.BridgeToken{UserID: u.ID, Scopes: []string{bridge.ScopeRead, bridge.ScopeWrite}}))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func (e *env) createJob(t *testing.T, u *store.User) string {
	t.Helper()
	rec, body := e.do(t, u, http.MethodPost, "/api/v1/research", `{"action":"create","title":"Vector DBs","query":"compare pgvector and qdrant"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	job := body["job"].(map[string]any)
	require.Equal(t, store.ResearchActive, job["status"])
	return job["id"].(string)
}

func TestCreate_RequiresResearchFeature(t *testing.T) {
	e := newEnv(t)

	rec, body := e.do(t, e.free, http.MethodPost, "/api/v1/research", `{"action":"create","title":"t","query":"q"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, plans.CodePlanFeatureRequired, body["code"])

	e.createJob(t, e.pro)
}

func TestCreate_Validation(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{`},
		{"unknown action", `{"action":"explode"}`},
		{"missing title", `{"action":"create","query":"q"}`},
		{"blank query", `{"action":"create","title":"t","query":"   "}`},
		{"missing job id", `{"action":"pause"}`},
		{"bad job id", `{"action":"pause","job_id":"nope"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := e.do(t, e.pro, http.MethodPost, "/api/v1/research", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestLifecycle_Transitions(t *testing.T) {
	e := newEnv(t)
	id := e.createJob(t, e.pro)
	act := func(action string) (*httptest.ResponseRecorder, map[string]any) {
		return e.do(t, e.pro, http.MethodPost, "/api/v1/research", `{"action":"`+action+`","job_id":"`+id+`"}`)
	}

	rec, _ := act(ActionResume)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := act(ActionPause)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, store.ResearchPaused, body["job"].(map[string]any)["status"])

	rec, _ = act(ActionPause)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = act(ActionResume)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, store.ResearchActive, body["job"].(map[string]any)["status"])

	rec, _ = act(ActionComplete)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = act(ActionResume)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = e.do(t, e.pro, http.MethodPost, "/api/v1/research",
		`{"action":"submit_finding","job_id":"`+id+`","finding":{"title":"late","content":"x"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = act(ActionDelete)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = act(ActionPause)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitFinding_AndFetchJob(t *testing.T) {
	e := newEnv(t)
	id := e.createJob(t, e.pro)

	rec, _ := e.do(t, e.pro, http.MethodPost, "/api/v1/research", `{"action":"submit_finding","job_id":"`+id+`"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = e.do(t, e.pro, http.MethodPost, "/api/v1/research",
		`{"action":"submit_finding","job_id":"`+id+`","finding":{"title":"pgvector","content":"HNSW since 0.5","source_url":"not a url"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := e.do(t, e.pro, http.MethodPost, "/api/v1/research",
		`{"action":"submit_finding","job_id":"`+id+`","finding":{"title":"pgvector","content":"HNSW since 0.5","source_url":"https://github.com/pgvector/pgvector"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, id, body["finding"].(map[string]any)["job_id"])

	rec, body = e.do(t, e.pro, http.MethodGet, "/api/v1/research?job_id="+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, id, body["job"].(map[string]any)["id"])
	require.Len(t, body["findings"], 1)
}

func TestJobsOfOtherUsersAreHidden(t *testing.T) {
	e := newEnv(t)
	id := e.createJob(t, e.pro)

	rec, _ := e.do(t, e.free, http.MethodGet, "/api/v1/research?job_id="+id, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = e.do(t, e.free, http.MethodPost, "/api/v1/research", `{"action":"delete","job_id":"`+id+`"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, body := e.do(t, e.free, http.MethodGet, "/api/v1/research", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, body["jobs"])
	require.Empty(t, body["findings"])
}

func TestSync_Filters(t *testing.T) {
	e := newEnv(t)
	first := e.createJob(t, e.pro)
	e.createJob(t, e.pro)

	rec, _ := e.do(t, e.pro, http.MethodPost, "/api/v1/research", `{"action":"pause","job_id":"`+first+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := e.do(t, e.pro, http.MethodGet, "/api/v1/research", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["jobs"], 2)
	require.NotEmpty(t, body["synced_at"])

	rec, body = e.do(t, e.pro, http.MethodGet, "/api/v1/research?status=paused", "")
	require.Equal(t, http.StatusOK, rec.Code)
	jobs := body["jobs"].([]any)
	require.Len(t, jobs, 1)
	require.Equal(t, first, jobs[0].(map[string]any)["id"])

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	rec, body = e.do(t, e.pro, http.MethodGet, "/api/v1/research?since="+future, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, body["jobs"])

	rec, _ = e.do(t, e.pro, http.MethodGet, "/api/v1/research?since=yesterday", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = e.do(t, e.pro, http.MethodGet, "/api/v1/research?status=archived", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPost_ReadOnlyTokenIsForbidden(t *testing.T) {
	e := newEnv(t)
	token, hash, err := bridge.GenerateToken()
	require.NoError(t, err)
	require.NoError(t, e.store.CreateBridgeToken(context.Background(),
		&store.BridgeToken{UserID: e.pro.ID, Name: "ro", TokenHash: hash, Scopes: []string{bridge.ScopeRead}}))

	h := bridge.RequireToken(e.store, bridge.ScopeWrite)(HandlePost(e.store, plans.NewEnforcer(e.store)))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/research", strings.NewReader(`{"action":"create","title":"t","query":"q"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSync_ReportsDeletedJobs(t *testing.T) {
	e := newEnv(t)
	since := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	gone := e.createJob(t, e.pro)
	kept := e.createJob(t, e.pro)

	rec, _ := e.do(t, e.pro, http.MethodPost, "/api/v1/research", `{"action":"delete","job_id":"`+gone+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := e.do(t, e.pro, http.MethodGet, "/api/v1/research?since="+since, "")
	require.Equal(t, http.StatusOK, rec.Code)
	jobs := body["jobs"].([]any)
	require.Len(t, jobs, 1)
	require.Equal(t, kept, jobs[0].(map[string]any)["id"])
	require.Equal(t, []any{gone}, body["deleted_job_ids"])

	// Full syncs and other users never see the tombstone.
	rec, body = e.do(t, e.pro, http.MethodGet, "/api/v1/research", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []any{}, body["deleted_job_ids"])

	rec, body = e.do(t, e.free, http.MethodGet, "/api/v1/research?since="+since, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []any{}, body["deleted_job_ids"])

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	rec, body = e.do(t, e.pro, http.MethodGet, "/api/v1/research?since="+future, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []any{}, body["deleted_job_ids"])
}
