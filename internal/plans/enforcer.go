// Package plans answers whether an action is allowed under a subscription plan.
//
// Rule outcomes come back as a Decision; only infrastructure failures are
// returned as errors. Handlers turn a denied Decision into a 403, 409 or 422
// with Decision.Error.
package plans

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aliuyar1234/ctlplane/internal/apperrors"
	"github.com/aliuyar1234/ctlplane/internal/metrics"
	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Rule codes carried by denied decisions.
const (
	CodePlanInvalid              = "PLAN_INVALID"
	CodePlanRequiresOrganization = "PLAN_REQUIRES_ORGANIZATION"
	CodeMemberLimitReached       = "MEMBER_LIMIT_REACHED"
	CodeOrganizationNotFound     = "ORGANIZATION_NOT_FOUND"
	CodePlanFeatureRequired      = "PLAN_FEATURE_REQUIRED"
)

// Details carries hints the caller can branch on.
type Details struct {
	RequiresOrganization bool `json:"requires_organization"`
}

// Decision is the outcome of a plan rule.
type Decision struct {
	Allowed bool     `json:"allowed"`
	Reason  string   `json:"reason,omitempty"`
	Code    string   `json:"code,omitempty"`
	Details *Details `json:"details,omitempty"`
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(code, reason string) Decision {
	metrics.PlanDenials.WithLabelValues(code).Inc()
	return Decision{Code: code, Reason: reason}
}

// Error converts a denied decision into the HTTP error handlers render.
// It returns nil for an allowed decision.
func (d Decision) Error() *apperrors.Error {
	if d.Allowed {
		return nil
	}

	status := http.StatusUnprocessableEntity
	switch d.Code {
	case CodeMemberLimitReached:
		status = http.StatusConflict
	case CodeOrganizationNotFound:
		status = http.StatusNotFound
	case CodePlanFeatureRequired:
		status = http.StatusForbidden
	}

	err := apperrors.New(status, d.Code, d.Reason)
	if d.Details != nil && d.Details.RequiresOrganization {
		err.RequiresOrganization = true
	}
	return err
}

// Store is the read surface the enforcer needs.
type Store interface {
	GetPlan(ctx context.Context, id string) (*store.Plan, error)
	GetOrganization(ctx context.Context, id uuid.UUID) (*store.Organization, error)
	CountActiveMembers(ctx context.Context, teamID uuid.UUID) (int, error)
	ListMembershipsByUser(ctx context.Context, userID uuid.UUID) ([]store.MemberDetail, error)
	GetLicenseByUser(ctx context.Context, userID uuid.UUID) (*store.License, error)
}

// Enforcer evaluates plan and quota rules against the store.
type Enforcer struct {
	store Store
}

func NewEnforcer(s Store) *Enforcer {
	return &Enforcer{store: s}
}

// GetPlan returns the plan, or nil if it does not exist.
func (e *Enforcer) GetPlan(ctx context.Context, planID string) (*store.Plan, error) {
	plan, err := e.store.GetPlan(ctx, planID)
	if errors.Is(err, store.ErrPlanNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return plan, nil
}

// GetTeamMemberCount returns the number of active members of the team.
func (e *Enforcer) GetTeamMemberCount(ctx context.Context, teamID uuid.UUID) (int, error) {
	n, err := e.store.CountActiveMembers(ctx, teamID)
	if err != nil {
		return 0, fmt.Errorf("failed to count team members: %w", err)
	}
	return n, nil
}

// CanAddMember allows admission while the active member count is below
// max_members. max_members <= 0 means unlimited.
func (e *Enforcer) CanAddMember(ctx context.Context, teamID uuid.UUID) (Decision, error) {
	org, err := e.store.GetOrganization(ctx, teamID)
	if errors.Is(err, store.ErrOrganizationNotFound) {
		return deny(CodeOrganizationNotFound, "Organization not found"), nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("failed to get organization: %w", err)
	}
	if org.MaxMembers <= 0 {
		return allow(), nil
	}

	count, err := e.GetTeamMemberCount(ctx, teamID)
	if err != nil {
		return Decision{}, err
	}
	if count >= org.MaxMembers {
		return deny(CodeMemberLimitReached,
			fmt.Sprintf("Organization has reached its member limit (%d of %d)", count, org.MaxMembers)), nil
	}
	return allow(), nil
}

// CanAssignPlan allows a plan that exists, is active, and either does not
// require an organization or the user belongs to one. pendingOrgID is the
// organization the same request is about to add the user to; it counts as
// membership. userID may be uuid.Nil for a user not yet created.
func (e *Enforcer) CanAssignPlan(ctx context.Context, userID uuid.UUID, planID string, pendingOrgID *uuid.UUID) (Decision, error) {
	plan, err := e.GetPlan(ctx, planID)
	if err != nil {
		return Decision{}, err
	}
	if plan == nil {
		return deny(CodePlanInvalid, fmt.Sprintf("Plan %q does not exist", planID)), nil
	}
	if !plan.IsActive {
		return deny(CodePlanInvalid, fmt.Sprintf("Plan %q is not active", plan.Name)), nil
	}
	if !plan.RequiresOrganization || pendingOrgID != nil {
		return allow(), nil
	}

	if userID != uuid.Nil {
		memberships, err := e.store.ListMembershipsByUser(ctx, userID)
		if err != nil {
			return Decision{}, fmt.Errorf("failed to list memberships: %w", err)
		}
		for _, m := range memberships {
			if m.Status == store.MemberStatusActive {
				return allow(), nil
			}
		}
	}

	d := deny(CodePlanRequiresOrganization,
		fmt.Sprintf("The %s plan requires the user to belong to an organization", plan.Name))
	d.Details = &Details{RequiresOrganization: true}
	return d, nil
}

// EnforceAccess allows a feature when the user's license is active or in
// trial and its plan lists the feature.
func (e *Enforcer) EnforceAccess(ctx context.Context, userID uuid.UUID, feature string) (Decision, error) {
	license, err := e.store.GetLicenseByUser(ctx, userID)
	if errors.Is(err, store.ErrLicenseNotFound) {
		return deny(CodePlanFeatureRequired, "An active plan is required for this feature"), nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("failed to get license: %w", err)
	}
	if !license.IsEntitled() || license.PlanID == nil {
		return deny(CodePlanFeatureRequired, "An active plan is required for this feature"), nil
	}

	plan, err := e.GetPlan(ctx, *license.PlanID)
	if err != nil {
		return Decision{}, err
	}
	if plan == nil {
		log.Warn().Str("plan_id", *license.PlanID).Str("user_id", userID.String()).Msg("License references unknown plan")
		return deny(CodePlanFeatureRequired, "An active plan is required for this feature"), nil
	}
	if !plan.HasFeature(feature) {
		return deny(CodePlanFeatureRequired,
			fmt.Sprintf("Your %s plan does not include %s", plan.Name, feature)), nil
	}
	return allow(), nil
}
