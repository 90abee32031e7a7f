package users

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aliuyar1234/ctlplane/internal/audit"
	"github.com/aliuyar1234/ctlplane/internal/auth"
	"github.com/aliuyar1234/ctlplane/internal/plans"
	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/aliuyar1234/ctlplane/internal/store/memory"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store  *memory.Store
	router http.Handler
	admin  *store.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s := memory.New()
	s.SeedPlans(plans.DefaultPlans())
	svc := NewService(s, plans.NewEnforcer(s), audit.NewWriter(s))

	root := &store.User{Email: "root@example.com", PasswordHash: "x", IsSuperadmin: true}
	require.NoError(t, s.CreateUser(context.Background(), root))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := auth.WithAdmin(req.Context(), &auth.Admin{ID: root.ID, Email: root.Email})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Get("/users", HandleList(svc))
	r.Post("/users", HandleCreate(svc))
	r.Patch("/users", HandleUpdate(svc))
	r.Delete("/users", HandleDelete(svc))

	return &testEnv{store: s, router: r, admin: root}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	payload := ""
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = string(raw)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(payload)))

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	}
	return rec, decoded
}

func (e *testEnv) user(t *testing.T, email string) *store.User {
	t.Helper()
	u := &store.User{Email: email, PasswordHash: "x"}
	require.NoError(t, e.store.CreateUser(context.Background(), u))
	return u
}

func (e *testEnv) org(t *testing.T, owner uuid.UUID, slug string, maxMembers int) *store.Organization {
	t.Helper()
	org := &store.Organization{Name: slug, Slug: slug, OwnerID: owner, MaxMembers: maxMembers, IsActive: true}
	require.NoError(t, e.store.CreateOrganization(context.Background(), org))
	return org
}

func (e *testEnv) licenses(t *testing.T, userID uuid.UUID) []store.License {
	t.Helper()
	list, err := e.store.ListLicensesByUser(context.Background(), userID)
	require.NoError(t, err)
	return list
}

func (e *testEnv) auditRows(t *testing.T, action string, userID uuid.UUID) []store.AuditLog {
	t.Helper()
	rows, err := e.store.ListAuditLogs(context.Background(), store.AuditFilter{Action: action, ResourceID: userID.String()})
	require.NoError(t, err)
	return rows
}

func userID(t *testing.T, body map[string]any) uuid.UUID {
	t.Helper()
	u := body["user"].(map[string]any)
	return uuid.MustParse(u["id"].(string))
}

func TestCreate_FullPipeline(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/users", map[string]any{
		"email": " New.User@Example.com ", "password": "correct horse", "full_name": "New User", "plan_id": "pro",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, true, body["success"])

	id := userID(t, body)
	u, err := env.store.GetUser(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "new.user@example.com", u.Email)
	require.NoError(t, auth.VerifyPassword(u.PasswordHash, "correct horse"))
	require.NotEmpty(t, u.OraKey)

	profile, err := env.store.GetProfile(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "New User", profile.FullName)

	licenses := env.licenses(t, id)
	require.Len(t, licenses, 1)
	require.Equal(t, "pro", *licenses[0].PlanID)
	require.Equal(t, store.LicenseActive, licenses[0].Status)
	require.NotNil(t, licenses[0].ActivatedAt)

	require.Len(t, env.auditRows(t, audit.ActionUserCreated, id), 1)
}

func TestCreate_PlanRequiresOrganization(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "owner@example.com")
	org := env.org(t, owner.ID, "acme", 0)

	rec, body := env.do(t, http.MethodPost, "/users", map[string]any{
		"email": "a@example.com", "password": "password1", "full_name": "A", "plan_id": "team",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, true, body["requires_organization"])
	require.Equal(t, plans.CodePlanRequiresOrganization, body["code"])

	_, err := env.store.GetUserByEmail(context.Background(), "a@example.com")
	require.ErrorIs(t, err, store.ErrUserNotFound)

	rec, body = env.do(t, http.MethodPost, "/users", map[string]any{
		"email": "a@example.com", "password": "password1", "full_name": "A", "plan_id": "team",
		"organization_id": org.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	id := userID(t, body)
	memberships, err := env.store.ListMembershipsByUser(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, memberships, 1)
	require.Equal(t, org.ID, memberships[0].TeamID)
	require.Equal(t, "team", *env.licenses(t, id)[0].PlanID)
}

func TestCreate_Rejections(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "taken@example.com")
	full := env.org(t, owner.ID, "full", 1)
	require.NoError(t, env.store.AddMemberIfBelowLimit(context.Background(), &store.TeamMember{
		TeamID: full.ID, UserID: owner.ID, Role: store.MemberRoleOwner, Status: store.MemberStatusActive,
	}))

	tests := []struct {
		name   string
		body   map[string]any
		status int
		code   string
	}{
		{"bad email", map[string]any{"email": "nope", "password": "password1", "full_name": "X"}, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"short password", map[string]any{"email": "x@example.com", "password": "short", "full_name": "X"}, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"missing name", map[string]any{"email": "x@example.com", "password": "password1"}, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"bad cycle", map[string]any{"email": "x@example.com", "password": "password1", "full_name": "X", "billing_cycle": "weekly"}, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"email taken", map[string]any{"email": "TAKEN@example.com", "password": "password1", "full_name": "X"}, http.StatusConflict, CodeEmailTaken},
		{"inactive plan", map[string]any{"email": "x@example.com", "password": "password1", "full_name": "X", "plan_id": "legacy"}, http.StatusUnprocessableEntity, plans.CodePlanInvalid},
		{"full organization", map[string]any{"email": "x@example.com", "password": "password1", "full_name": "X", "organization_id": full.ID}, http.StatusConflict, plans.CodeMemberLimitReached},
		{"unknown organization", map[string]any{"email": "x@example.com", "password": "password1", "full_name": "X", "organization_id": uuid.New()}, http.StatusNotFound, plans.CodeOrganizationNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := env.do(t, http.MethodPost, "/users", tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			require.Equal(t, tt.code, body["code"])
		})
	}

	_, err := env.store.GetUserByEmail(context.Background(), "x@example.com")
	require.ErrorIs(t, err, store.ErrUserNotFound)
}

func TestCreate_DependentFailureReturnsWarning(t *testing.T) {
	env := newTestEnv(t)
	env.store.FailOn("CreateLicense", errors.New("licenses table unavailable"))

	rec, body := env.do(t, http.MethodPost, "/users", map[string]any{
		"email": "b@example.com", "password": "password1", "full_name": "B",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	warnings := body["warnings"].([]any)
	require.Len(t, warnings, 1)
	require.Equal(t, "create_license", warnings[0].(map[string]any)["step"])

	id := userID(t, body)
	require.Empty(t, env.licenses(t, id))
	require.Len(t, env.auditRows(t, audit.ActionUserCreated, id), 1)
}

func TestUpdate_LicenseConflictLeavesOneRow(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "legacy@example.com")

	pro, free := "pro", "free"
	now := time.Now().UTC()
	env.store.SeedLicense(store.License{UserID: u.ID, PlanID: &pro, Status: store.LicenseActive, UpdatedAt: now})
	env.store.SeedLicense(store.License{UserID: u.ID, PlanID: &free, Status: store.LicenseCancelled, UpdatedAt: now.Add(-time.Hour)})
	require.Len(t, env.licenses(t, u.ID), 2)

	rec, body := env.do(t, http.MethodPatch, "/users", map[string]any{
		"user_id": u.ID, "plan_id": "free", "billing_cycle": "yearly",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	licenses := env.licenses(t, u.ID)
	require.Len(t, licenses, 1)
	require.Equal(t, "free", *licenses[0].PlanID)
	require.Equal(t, BillingYearly, licenses[0].BillingCycle)
	require.Equal(t, store.LicenseActive, licenses[0].Status)

	license := body["user"].(map[string]any)["license"].(map[string]any)
	require.Equal(t, "free", license["plan_id"])

	rows := env.auditRows(t, audit.ActionUserUpdated, u.ID)
	require.Len(t, rows, 1)
	require.Equal(t, true, rows[0].Changes["license_replaced"])
}

func TestUpdate_PlanRequiresOrganization(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "owner@example.com")
	org := env.org(t, owner.ID, "acme", 0)
	u := env.user(t, "solo@example.com")

	rec, body := env.do(t, http.MethodPatch, "/users", map[string]any{"user_id": u.ID, "plan_id": "enterprise"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, true, body["requires_organization"])
	require.Empty(t, env.licenses(t, u.ID))

	rec, _ = env.do(t, http.MethodPatch, "/users", map[string]any{
		"user_id": u.ID, "plan_id": "enterprise", "organization_id": org.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	licenses := env.licenses(t, u.ID)
	require.Len(t, licenses, 1)
	require.Equal(t, "enterprise", *licenses[0].PlanID)

	memberships, err := env.store.ListMembershipsByUser(context.Background(), u.ID)
	require.NoError(t, err)
	require.Len(t, memberships, 1)

	// Already a member: the plan can be reassigned without organization_id.
	rec, _ = env.do(t, http.MethodPatch, "/users", map[string]any{"user_id": u.ID, "plan_id": "team"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestUpdate_ProfileAndStatus(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "p@example.com")

	rec, body := env.do(t, http.MethodPatch, "/users", map[string]any{
		"user_id": u.ID, "full_name": "Pat", "account_status": "suspended", "license_status": "trial",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	profile := body["user"].(map[string]any)["profile"].(map[string]any)
	require.Equal(t, "Pat", profile["full_name"])
	require.Equal(t, "suspended", profile["account_status"])

	licenses := env.licenses(t, u.ID)
	require.Len(t, licenses, 1)
	require.Equal(t, store.LicenseTrial, licenses[0].Status)
	require.Nil(t, licenses[0].PlanID)

	require.Len(t, env.auditRows(t, audit.ActionUserUpdated, u.ID), 1)
}

func TestUpdate_Errors(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "e@example.com")

	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"missing user_id", map[string]any{"full_name": "x"}, http.StatusBadRequest},
		{"bad user_id", map[string]any{"user_id": "nope", "full_name": "x"}, http.StatusBadRequest},
		{"unknown user", map[string]any{"user_id": uuid.New(), "full_name": "x"}, http.StatusNotFound},
		{"no changes", map[string]any{"user_id": u.ID}, http.StatusBadRequest},
		{"bad status", map[string]any{"user_id": u.ID, "license_status": "forever"}, http.StatusBadRequest},
		{"bad avatar", map[string]any{"user_id": u.ID, "avatar_url": "not a url"}, http.StatusBadRequest},
		{"unknown plan", map[string]any{"user_id": u.ID, "plan_id": "gold"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := env.do(t, http.MethodPatch, "/users", tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			require.NotEmpty(t, body["error"])
		})
	}
	require.Empty(t, env.auditRows(t, audit.ActionUserUpdated, u.ID))
}

func TestUpdate_LicenseWriteFailure(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "f@example.com")
	pro := "pro"
	require.NoError(t, env.store.CreateLicense(context.Background(), &store.License{UserID: u.ID, PlanID: &pro, Status: store.LicenseActive}))
	env.store.FailOn("UpdateLicense", errors.New("deadlock"))

	rec, body := env.do(t, http.MethodPatch, "/users", map[string]any{"user_id": u.ID, "billing_cycle": "yearly"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, body["error"], "deadlock")
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "owner@example.com")
	env.org(t, owner.ID, "acme", 0)
	plain := env.user(t, "plain@example.com")

	rec, _ := env.do(t, http.MethodDelete, "/users", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodDelete, "/users?user_id="+env.admin.ID.String(), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := env.do(t, http.MethodDelete, "/users?user_id="+owner.ID.String(), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, CodeUserOwnsOrganization, body["code"])

	rec, _ = env.do(t, http.MethodDelete, "/users?user_id="+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = env.do(t, http.MethodDelete, "/users?user_id="+plain.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := env.store.GetUser(context.Background(), plain.ID)
	require.ErrorIs(t, err, store.ErrUserNotFound)

	rows := env.auditRows(t, audit.ActionUserDeleted, plain.ID)
	require.Len(t, rows, 1)
	require.Equal(t, "plain@example.com", rows[0].Changes["email"])
}

func TestList(t *testing.T) {
	env := newTestEnv(t)
	for _, email := range []string{"alice@example.com", "bob@example.com", "alina@example.com"} {
		env.user(t, email)
	}

	rec, body := env.do(t, http.MethodGet, "/users?search=ali&page_size=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(2), body["total"])
	require.Len(t, body["users"], 1)
	require.Equal(t, float64(1), body["page_size"])

	rec, _ = env.do(t, http.MethodGet, "/users?page=x", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = env.do(t, http.MethodGet, "/users?user_id="+env.admin.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "root@example.com", body["user"].(map[string]any)["email"])
}

func TestUpdate_NoEffectiveChange(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "same@example.com")
	req := map[string]any{"user_id": u.ID, "full_name": "Pat", "account_status": "active"}

	rec, _ := env.do(t, http.MethodPatch, "/users", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, body := env.do(t, http.MethodPatch, "/users", req)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	require.Equal(t, "No changes provided", body["error"])

	require.Len(t, env.auditRows(t, audit.ActionUserUpdated, u.ID), 1)
}

func TestDelete_LastSuperadmin(t *testing.T) {
	env := newTestEnv(t)
	other := &store.User{Email: "other-root@example.com", PasswordHash: "x", IsSuperadmin: true}
	require.NoError(t, env.store.CreateUser(context.Background(), other))

	rec, _ := env.do(t, http.MethodDelete, "/users?user_id="+other.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Leave a single superadmin that is not the caller.
	last := &store.User{Email: "last-root@example.com", PasswordHash: "x", IsSuperadmin: true}
	require.NoError(t, env.store.CreateUser(context.Background(), last))
	require.NoError(t, env.store.DeleteUser(context.Background(), env.admin.ID))

	rec, body := env.do(t, http.MethodDelete, "/users?user_id="+last.ID.String(), nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, CodeLastSuperadmin, body["code"])

	_, err := env.store.GetUser(context.Background(), last.ID)
	require.NoError(t, err)
	require.Empty(t, env.auditRows(t, audit.ActionUserDeleted, last.ID))
}
