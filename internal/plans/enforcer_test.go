package plans

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/aliuyar1234/ctlplane/internal/store/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*memory.Store, *Enforcer) {
	t.Helper()
	s := memory.New()
	s.SeedPlans(DefaultPlans())
	return s, NewEnforcer(s)
}

func createUser(t *testing.T, s *memory.Store, email string) *store.User {
	t.Helper()
	u := &store.User{Email: email, PasswordHash: "x"}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func createOrg(t *testing.T, s *memory.Store, owner uuid.UUID, slug string, maxMembers int) *store.Organization {
	t.Helper()
	org := &store.Organization{Name: slug, Slug: slug, OwnerID: owner, MaxMembers: maxMembers, IsActive: true}
	require.NoError(t, s.CreateOrganization(context.Background(), org))
	return org
}

func addMember(t *testing.T, s *memory.Store, org, user uuid.UUID) {
	t.Helper()
	require.NoError(t, s.AddMemberIfBelowLimit(context.Background(), &store.TeamMember{
		TeamID: org, UserID: user, Role: store.MemberRoleMember, Status: store.MemberStatusActive,
	}))
}

func TestGetPlan(t *testing.T) {
	_, e := setup(t)

	plan, err := e.GetPlan(context.Background(), "pro")
	require.NoError(t, err)
	require.Equal(t, "Pro", plan.Name)

	plan, err = e.GetPlan(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, plan)
}

func TestGetPlan_StoreFailure(t *testing.T) {
	s, e := setup(t)
	s.FailOn("GetPlan", errors.New("db down"))

	_, err := e.GetPlan(context.Background(), "pro")
	require.Error(t, err)
}

func TestCanAddMember(t *testing.T) {
	ctx := context.Background()
	s, e := setup(t)
	owner := createUser(t, s, "owner@example.com")
	org := createOrg(t, s, owner.ID, "acme", 2)

	d, err := e.CanAddMember(ctx, org.ID)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	addMember(t, s, org.ID, owner.ID)
	addMember(t, s, org.ID, createUser(t, s, "b@example.com").ID)

	count, err := e.GetTeamMemberCount(ctx, org.ID)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	d, err = e.CanAddMember(ctx, org.ID)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, CodeMemberLimitReached, d.Code)
	require.Contains(t, d.Reason, "2 of 2")
	require.Equal(t, http.StatusConflict, d.Error().Status)
}

func TestCanAddMember_Unlimited(t *testing.T) {
	s, e := setup(t)
	owner := createUser(t, s, "owner@example.com")
	org := createOrg(t, s, owner.ID, "open", 0)
	for i := 0; i < 5; i++ {
		addMember(t, s, org.ID, uuid.New())
	}

	d, err := e.CanAddMember(context.Background(), org.ID)
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestCanAddMember_UnknownOrganization(t *testing.T) {
	_, e := setup(t)

	d, err := e.CanAddMember(context.Background(), uuid.New())
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, http.StatusNotFound, d.Error().Status)
}

func TestCanAssignPlan(t *testing.T) {
	ctx := context.Background()
	s, e := setup(t)
	loner := createUser(t, s, "loner@example.com")
	member := createUser(t, s, "member@example.com")
	org := createOrg(t, s, member.ID, "acme", 0)
	addMember(t, s, org.ID, member.ID)

	tests := []struct {
		name     string
		userID   uuid.UUID
		planID   string
		pending  *uuid.UUID
		allowed  bool
		code     string
		requires bool
	}{
		{name: "plan without org requirement", userID: loner.ID, planID: "pro", allowed: true},
		{name: "unknown plan", userID: loner.ID, planID: "gold", code: CodePlanInvalid},
		{name: "inactive plan", userID: loner.ID, planID: "legacy", code: CodePlanInvalid},
		{name: "org plan without membership", userID: loner.ID, planID: "team", code: CodePlanRequiresOrganization, requires: true},
		{name: "org plan for new user without org", userID: uuid.Nil, planID: "team", code: CodePlanRequiresOrganization, requires: true},
		{name: "org plan with pending org", userID: loner.ID, planID: "team", pending: &org.ID, allowed: true},
		{name: "org plan with membership", userID: member.ID, planID: "enterprise", allowed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := e.CanAssignPlan(ctx, tt.userID, tt.planID, tt.pending)
			require.NoError(t, err)
			require.Equal(t, tt.allowed, d.Allowed)
			require.Equal(t, tt.code, d.Code)
			if tt.allowed {
				require.Nil(t, d.Error())
				return
			}
			appErr := d.Error()
			require.Equal(t, http.StatusUnprocessableEntity, appErr.Status)
			require.Equal(t, tt.requires, appErr.RequiresOrganization)
		})
	}
}

func TestEnforceAccess(t *testing.T) {
	ctx := context.Background()
	s, e := setup(t)

	license := func(userID uuid.UUID, planID, status string) {
		plan := planID
		require.NoError(t, s.CreateLicense(ctx, &store.License{UserID: userID, PlanID: &plan, Status: status}))
	}

	pro := createUser(t, s, "pro@example.com")
	license(pro.ID, "pro", store.LicenseActive)
	free := createUser(t, s, "free@example.com")
	license(free.ID, "free", store.LicenseActive)
	cancelled := createUser(t, s, "cancelled@example.com")
	license(cancelled.ID, "pro", store.LicenseCancelled)
	trial := createUser(t, s, "trial@example.com")
	license(trial.ID, "pro", store.LicenseTrial)
	none := createUser(t, s, "none@example.com")

	tests := []struct {
		name    string
		userID  uuid.UUID
		feature string
		allowed bool
	}{
		{"feature in plan", pro.ID, FeatureResearch, true},
		{"trial license", trial.ID, FeatureManagedAI, true},
		{"feature not in plan", pro.ID, FeatureSSO, false},
		{"free plan", free.ID, FeatureResearch, false},
		{"cancelled license", cancelled.ID, FeatureResearch, false},
		{"no license", none.ID, FeatureResearch, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := e.EnforceAccess(ctx, tt.userID, tt.feature)
			require.NoError(t, err)
			require.Equal(t, tt.allowed, d.Allowed)
			if !tt.allowed {
				require.Equal(t, CodePlanFeatureRequired, d.Code)
				require.NotEmpty(t, d.Reason)
				require.Equal(t, http.StatusForbidden, d.Error().Status)
			}
		})
	}
}
