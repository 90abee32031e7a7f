package orgs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aliuyar1234/ctlplane/internal/admin"
	"github.com/aliuyar1234/ctlplane/internal/apperrors"
	"github.com/aliuyar1234/ctlplane/internal/audit"
	"github.com/aliuyar1234/ctlplane/internal/auth"
	"github.com/aliuyar1234/ctlplane/internal/notify"
	"github.com/aliuyar1234/ctlplane/internal/plans"
	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/aliuyar1234/ctlplane/internal/validation"
	"github.com/google/uuid"
)

// Store is the persistence surface organization mutations need.
type Store interface {
	store.OrganizationStore
	store.MemberStore
	GetUser(ctx context.Context, id uuid.UUID) (*store.User, error)
}

// Notifier is told when an organization is suspended or reinstated.
type Notifier interface {
	OrganizationSuspensionChanged(ctx context.Context, ev notify.SuspensionEvent)
}

// Service implements superadmin organization management.
type Service struct {
	store    Store
	enforcer *plans.Enforcer
	auditor  *audit.Writer
	notifier Notifier
	now      func() time.Time
}

func NewService(s Store, enforcer *plans.Enforcer, auditor *audit.Writer, notifier Notifier) *Service {
	return &Service{
		store:    s,
		enforcer: enforcer,
		auditor:  auditor,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// List returns every organization with member counts and totals.
func (s *Service) List(ctx context.Context) (*ListResponse, error) {
	list, err := s.store.ListOrganizations(ctx)
	if err != nil {
		return nil, apperrors.Internal("Failed to list organizations", err)
	}

	resp := &ListResponse{Organizations: list}
	if resp.Organizations == nil {
		resp.Organizations = []store.OrganizationSummary{}
	}
	for _, org := range list {
		resp.Stats.Total++
		if org.IsActive {
			resp.Stats.Active++
		} else {
			resp.Stats.Suspended++
		}
		resp.Stats.Members += org.MemberCount
	}
	return resp, nil
}

// Members lists the members of one organization.
func (s *Service) Members(ctx context.Context, orgID uuid.UUID) ([]store.MemberDetail, error) {
	if _, err := s.store.GetOrganization(ctx, orgID); err != nil {
		return nil, orgLookupError(err)
	}
	members, err := s.store.ListMembers(ctx, orgID)
	if err != nil {
		return nil, apperrors.Internal("Failed to list members", err)
	}
	if members == nil {
		members = []store.MemberDetail{}
	}
	return members, nil
}

// Create inserts an organization and then, best-effort, its owner membership.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*MutationResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Slug = validation.NormalizeSlug(req.Slug)
	if err := validation.Struct(req); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if req.OwnerID == uuid.Nil {
		return nil, apperrors.Validation("owner_id is required")
	}

	slug := req.Slug
	if slug == "" {
		// Derived slugs bypass the struct tag.
		slug = validation.Slugify(req.Name)
		if err := validation.ValidateSlug(slug); err != nil {
			return nil, apperrors.Validation(err.Error())
		}
	}
	if err := s.checkSlugFree(ctx, slug, uuid.Nil); err != nil {
		return nil, err
	}

	owner, err := s.store.GetUser(ctx, req.OwnerID)
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, apperrors.Validation("Owner user does not exist")
	}
	if err != nil {
		return nil, apperrors.Internal("Failed to load owner", err)
	}

	planID, err := s.checkPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}

	org := &store.Organization{
		Name:       req.Name,
		Slug:       slug,
		OwnerID:    owner.ID,
		PlanID:     planID,
		MaxMembers: intOr(req.MaxMembers, DefaultMaxMembers),
		MaxAgents:  intOr(req.MaxAgents, DefaultMaxAgents),
		IsActive:   true,
	}
	if err := s.store.CreateOrganization(ctx, org); err != nil {
		if errors.Is(err, store.ErrSlugTaken) {
			return nil, apperrors.Conflict(CodeSlugTaken, fmt.Sprintf("Organization slug %q is already taken", slug))
		}
		return nil, apperrors.Internal("Failed to create organization", err)
	}

	warnings, _ := admin.RunDependents(ctx, admin.Step{
		Name: "add_owner_membership",
		Run: func(ctx context.Context) error {
			return s.store.AddMemberIfBelowLimit(ctx, &store.TeamMember{
				TeamID:          org.ID,
				UserID:          owner.ID,
				Role:            store.MemberRoleOwner,
				Status:          store.MemberStatusActive,
				CanManageAgents: true,
				CanViewBilling:  true,
			})
		},
	})

	s.auditor.Record(ctx, audit.Entry{
		Action:       audit.ActionOrganizationCreated,
		ResourceType: audit.ResourceOrganization,
		ResourceID:   audit.ResourceID(org.ID),
		Changes: map[string]any{
			"name":        org.Name,
			"slug":        org.Slug,
			"owner_id":    org.OwnerID.String(),
			"plan_id":     org.PlanID,
			"max_members": org.MaxMembers,
			"max_agents":  org.MaxAgents,
		},
	})

	return &MutationResponse{Success: true, Organization: org, Warnings: warnings}, nil
}

// Update applies a partial update. All rule checks run before the first write.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*MutationResponse, error) {
	if req.Slug != nil {
		slug := validation.NormalizeSlug(*req.Slug)
		req.Slug = &slug
	}
	if err := validation.Struct(req); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	orgID, err := uuid.Parse(req.OrgID)
	if err != nil {
		return nil, apperrors.Validation("org_id must be a valid UUID")
	}

	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, orgLookupError(err)
	}
	wasActive := org.IsActive
	changes := map[string]any{}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperrors.Validation("name cannot be empty")
		}
		if name != org.Name {
			changes["name"] = map[string]any{"from": org.Name, "to": name}
			org.Name = name
		}
	}

	if req.Slug != nil && *req.Slug != org.Slug {
		if err := s.checkSlugFree(ctx, *req.Slug, org.ID); err != nil {
			return nil, err
		}
		changes["slug"] = map[string]any{"from": org.Slug, "to": *req.Slug}
		org.Slug = *req.Slug
	}

	if req.PlanID != nil {
		planID, err := s.checkPlan(ctx, req.PlanID)
		if err != nil {
			return nil, err
		}
		if !sameString(planID, org.PlanID) {
			changes["plan_id"] = map[string]any{"from": org.PlanID, "to": planID}
			org.PlanID = planID
		}
	}

	if req.MaxMembers != nil && *req.MaxMembers != org.MaxMembers {
		if *req.MaxMembers > 0 {
			count, err := s.enforcer.GetTeamMemberCount(ctx, org.ID)
			if err != nil {
				return nil, apperrors.Internal("Failed to count members", err)
			}
			if *req.MaxMembers < count {
				return nil, apperrors.Conflict(CodeMemberLimitConflict, fmt.Sprintf(
					"Organization has %d active members; max_members cannot be set to %d", count, *req.MaxMembers))
			}
		}
		changes["max_members"] = map[string]any{"from": org.MaxMembers, "to": *req.MaxMembers}
		org.MaxMembers = *req.MaxMembers
	}

	if req.MaxAgents != nil && *req.MaxAgents != org.MaxAgents {
		changes["max_agents"] = map[string]any{"from": org.MaxAgents, "to": *req.MaxAgents}
		org.MaxAgents = *req.MaxAgents
	}

	if req.Suspend != nil {
		if *req.Suspend {
			now := s.now()
			org.IsActive = false
			org.SuspendedAt = &now
			org.SuspensionReason = nil
			if req.SuspensionReason != nil && strings.TrimSpace(*req.SuspensionReason) != "" {
				reason := strings.TrimSpace(*req.SuspensionReason)
				org.SuspensionReason = &reason
			}
			changes["suspended"] = true
			changes["suspension_reason"] = org.SuspensionReason
		} else {
			org.IsActive = true
			org.SuspendedAt = nil
			org.SuspensionReason = nil
			changes["suspended"] = false
		}
	}

	if req.AddMember != nil {
		if err := s.preflightAddMember(ctx, org, req.AddMember); err != nil {
			return nil, err
		}
	}
	if req.RemoveMemberUserID != nil {
		if err := s.preflightRemoveMember(ctx, org, *req.RemoveMemberUserID); err != nil {
			return nil, err
		}
	}

	orgChanged := len(changes) > 0
	if !orgChanged && req.AddMember == nil && req.RemoveMemberUserID == nil {
		return nil, apperrors.Validation("No changes provided")
	}

	if orgChanged {
		if err := s.store.UpdateOrganization(ctx, org); err != nil {
			switch {
			case errors.Is(err, store.ErrSlugTaken):
				return nil, apperrors.Conflict(CodeSlugTaken, fmt.Sprintf("Organization slug %q is already taken", org.Slug))
			case errors.Is(err, store.ErrOrganizationNotFound):
				return nil, apperrors.NotFound("Organization not found")
			}
			return nil, apperrors.Internal("Failed to update organization", err)
		}
	}

	memberErr := s.applyMemberChanges(ctx, org, req, changes)
	if memberErr != nil && !orgChanged {
		return nil, memberErr
	}

	var warnings []admin.Warning
	if org.IsActive != wasActive {
		warnings, _ = admin.RunDependents(ctx, admin.Step{
			Name: "notify_suspension_change",
			Run: func(ctx context.Context) error {
				s.notifier.OrganizationSuspensionChanged(ctx, suspensionEvent(ctx, org))
				return nil
			},
		})
	}

	s.auditor.Record(ctx, audit.Entry{
		Action:       audit.ActionOrganizationUpdated,
		ResourceType: audit.ResourceOrganization,
		ResourceID:   audit.ResourceID(org.ID),
		Changes:      changes,
	})

	if memberErr != nil {
		return nil, memberErr
	}
	return &MutationResponse{Success: true, Organization: org, Warnings: warnings}, nil
}

func (s *Service) preflightAddMember(ctx context.Context, org *store.Organization, m *MemberRequest) error {
	if m.UserID == uuid.Nil {
		return apperrors.Validation("add_member.user_id is required")
	}
	if _, err := s.store.GetUser(ctx, m.UserID); err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return apperrors.Validation("User to add does not exist")
		}
		return apperrors.Internal("Failed to load user", err)
	}

	// The limit may be changing in this same request; check against the new value.
	if org.MaxMembers > 0 {
		count, err := s.enforcer.GetTeamMemberCount(ctx, org.ID)
		if err != nil {
			return apperrors.Internal("Failed to count members", err)
		}
		if count >= org.MaxMembers {
			return apperrors.Conflict(plans.CodeMemberLimitReached, fmt.Sprintf(
				"Organization has reached its member limit (%d of %d)", count, org.MaxMembers))
		}
	}

	members, err := s.store.ListMembers(ctx, org.ID)
	if err != nil {
		return apperrors.Internal("Failed to list members", err)
	}
	if findMember(members, m.UserID) {
		return apperrors.Conflict(CodeAlreadyMember, "User is already a member of this organization")
	}
	return nil
}

func (s *Service) preflightRemoveMember(ctx context.Context, org *store.Organization, userID uuid.UUID) error {
	if userID == org.OwnerID {
		return apperrors.Conflict(CodeCannotRemoveOwner, "The organization owner cannot be removed")
	}
	members, err := s.store.ListMembers(ctx, org.ID)
	if err != nil {
		return apperrors.Internal("Failed to list members", err)
	}
	if !findMember(members, userID) {
		return apperrors.NotFound("Member not found")
	}
	return nil
}

// checkSlugFree reports SLUG_TAKEN when another organization already uses slug.
// The store's unique constraint still covers concurrent writers.
func (s *Service) checkSlugFree(ctx context.Context, slug string, self uuid.UUID) error {
	other, err := s.store.GetOrganizationBySlug(ctx, slug)
	switch {
	case errors.Is(err, store.ErrOrganizationNotFound):
		return nil
	case err != nil:
		return apperrors.Internal("Failed to check slug", err)
	case other.ID == self:
		return nil
	}
	return apperrors.Conflict(CodeSlugTaken, fmt.Sprintf("Organization slug %q is already taken", slug))
}

func findMember(members []store.MemberDetail, userID uuid.UUID) bool {
	for _, m := range members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// applyMemberChanges records what it did in changes and returns the first failure.
func (s *Service) applyMemberChanges(ctx context.Context, org *store.Organization, req UpdateRequest, changes map[string]any) error {
	if m := req.AddMember; m != nil {
		role := m.Role
		if role == "" {
			role = store.MemberRoleMember
		}
		err := s.store.AddMemberIfBelowLimit(ctx, &store.TeamMember{
			TeamID: org.ID,
			UserID: m.UserID,
			Role:   role,
			Status: store.MemberStatusActive,
		})
		switch {
		case errors.Is(err, store.ErrMemberLimitReached):
			return apperrors.Conflict(plans.CodeMemberLimitReached, "Organization has reached its member limit")
		case errors.Is(err, store.ErrAlreadyMember):
			return apperrors.Conflict(CodeAlreadyMember, "User is already a member of this organization")
		case err != nil:
			return apperrors.Internal("Failed to add member", err)
		}
		changes["member_added"] = map[string]any{"user_id": m.UserID.String(), "role": role}
	}

	if req.RemoveMemberUserID != nil {
		err := s.store.RemoveMember(ctx, org.ID, *req.RemoveMemberUserID)
		switch {
		case errors.Is(err, store.ErrMemberNotFound):
			return apperrors.NotFound("Member not found")
		case err != nil:
			return apperrors.Internal("Failed to remove member", err)
		}
		changes["member_removed"] = req.RemoveMemberUserID.String()
	}
	return nil
}

// Delete removes an organization. Memberships go with it.
func (s *Service) Delete(ctx context.Context, orgID uuid.UUID) error {
	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		return orgLookupError(err)
	}
	if err := s.store.DeleteOrganization(ctx, orgID); err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			return apperrors.NotFound("Organization not found")
		}
		return apperrors.Internal("Failed to delete organization", err)
	}

	s.auditor.Record(ctx, audit.Entry{
		Action:       audit.ActionOrganizationDeleted,
		ResourceType: audit.ResourceOrganization,
		ResourceID:   audit.ResourceID(org.ID),
		Changes:      map[string]any{"name": org.Name, "slug": org.Slug},
	})
	return nil
}

// checkPlan resolves an optional plan id. Empty means no plan.
func (s *Service) checkPlan(ctx context.Context, planID *string) (*string, error) {
	if planID == nil || strings.TrimSpace(*planID) == "" {
		return nil, nil
	}
	id := strings.TrimSpace(*planID)
	plan, err := s.enforcer.GetPlan(ctx, id)
	if err != nil {
		return nil, apperrors.Internal("Failed to load plan", err)
	}
	if plan == nil || !plan.IsActive {
		return nil, apperrors.Unprocessable(plans.CodePlanInvalid, fmt.Sprintf("Plan %q does not exist or is not active", id))
	}
	return &id, nil
}

func suspensionEvent(ctx context.Context, org *store.Organization) notify.SuspensionEvent {
	ev := notify.SuspensionEvent{
		OrganizationID:   org.ID.String(),
		OrganizationName: org.Name,
		Suspended:        !org.IsActive,
	}
	if org.SuspensionReason != nil {
		ev.Reason = *org.SuspensionReason
	}
	if a := auth.GetAdmin(ctx); a != nil {
		ev.AdminEmail = a.Email
	}
	return ev
}

func orgLookupError(err error) error {
	if errors.Is(err, store.ErrOrganizationNotFound) {
		return apperrors.NotFound("Organization not found")
	}
	return apperrors.Internal("Failed to load organization", err)
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
