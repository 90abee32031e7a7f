package users

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
	"github.com/aliuyar1234/ctlplane/internal/plans"
	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/aliuyar1234/ctlplane/internal/validation"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Store is the persistence surface user mutations need.
type Store interface {
	store.UserStore
	store.LicenseStore
	AddMemberIfBelowLimit(ctx context.Context, m *store.TeamMember) error
	ListMembershipsByUser(ctx context.Context, userID uuid.UUID) ([]store.MemberDetail, error)
	ListOrganizations(ctx context.Context) ([]store.OrganizationSummary, error)
}

// Service implements superadmin user and license management.
type Service struct {
	store    Store
	enforcer *plans.Enforcer
	auditor  *audit.Writer
	now      func() time.Time
}

func NewService(s Store, enforcer *plans.Enforcer, auditor *audit.Writer) *Service {
	return &Service{
		store:    s,
		enforcer: enforcer,
		auditor:  auditor,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Get loads one user with profile, license and memberships.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*Detail, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, userLookupError(err)
	}
	return s.detail(ctx, u)
}

// List searches users by email or name.
func (s *Service) List(ctx context.Context, params store.ListUsersParams) (*ListResponse, error) {
	params.Normalize()
	list, total, err := s.store.ListUsers(ctx, params)
	if err != nil {
		return nil, apperrors.Internal("Failed to list users", err)
	}

	resp := &ListResponse{Users: make([]Detail, 0, len(list)), Total: total, Page: params.Page, PageSize: params.PageSize}
	for i := range list {
		d, err := s.detail(ctx, &list[i])
		if err != nil {
			return nil, err
		}
		resp.Users = append(resp.Users, *d)
	}
	return resp, nil
}

func (s *Service) detail(ctx context.Context, u *store.User) (*Detail, error) {
	d := &Detail{User: *u}

	profile, err := s.store.GetProfile(ctx, u.ID)
	switch {
	case err == nil:
		d.Profile = profile
	case !errors.Is(err, store.ErrNotFound):
		return nil, apperrors.Internal("Failed to load profile", err)
	}

	license, err := s.store.GetLicenseByUser(ctx, u.ID)
	switch {
	case err == nil:
		d.License = license
	case !errors.Is(err, store.ErrLicenseNotFound):
		return nil, apperrors.Internal("Failed to load license", err)
	}

	d.Memberships, err = s.store.ListMembershipsByUser(ctx, u.ID)
	if err != nil {
		return nil, apperrors.Internal("Failed to load memberships", err)
	}
	if d.Memberships == nil {
		d.Memberships = []store.MemberDetail{}
	}
	return d, nil
}

// Create inserts the user, then best-effort its profile, license and
// organization membership. Every rule is checked before the user row is written.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*MutationResponse, error) {
	req.Email = validation.NormalizeEmail(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	if err := validation.Struct(req); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	if _, err := s.store.GetUserByEmail(ctx, req.Email); err == nil {
		return nil, apperrors.Conflict(CodeEmailTaken, "A user with this email already exists")
	} else if !errors.Is(err, store.ErrUserNotFound) {
		return nil, apperrors.Internal("Failed to check email", err)
	}

	planID := optionalPlan(req.PlanID)
	if planID != nil {
		if err := s.checkPlan(ctx, uuid.Nil, *planID, req.OrganizationID); err != nil {
			return nil, err
		}
	}
	if req.OrganizationID != nil {
		if err := s.checkCapacity(ctx, *req.OrganizationID); err != nil {
			return nil, err
		}
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, apperrors.Internal("Failed to hash password", err)
	}
	u := &store.User{Email: req.Email, PasswordHash: hash, IsSuperadmin: req.IsSuperadmin}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return nil, apperrors.Conflict(CodeEmailTaken, "A user with this email already exists")
		}
		return nil, apperrors.Internal("Failed to create user", err)
	}

	status := req.LicenseStatus
	if status == "" {
		status = store.LicenseActive
	}
	cycle := req.BillingCycle
	if cycle == "" {
		cycle = BillingMonthly
	}

	steps := []admin.Step{
		{
			Name: "create_profile",
			Run: func(ctx context.Context) error {
				return s.store.UpsertProfile(ctx, &store.Profile{
					UserID:        u.ID,
					FullName:      req.FullName,
					AccountStatus: store.AccountActive,
				})
			},
		},
		{
			Name: "create_license",
			Run: func(ctx context.Context) error {
				l := &store.License{UserID: u.ID, PlanID: planID, Status: status, BillingCycle: cycle}
				if status == store.LicenseActive {
					now := s.now()
					l.ActivatedAt = &now
				}
				return s.store.CreateLicense(ctx, l)
			},
		},
	}
	if req.OrganizationID != nil {
		orgID := *req.OrganizationID
		steps = append(steps, admin.Step{
			Name: "add_organization_membership",
			Run: func(ctx context.Context) error {
				return s.store.AddMemberIfBelowLimit(ctx, &store.TeamMember{
					TeamID: orgID,
					UserID: u.ID,
					Role:   store.MemberRoleMember,
					Status: store.MemberStatusActive,
				})
			},
		})
	}
	warnings, _ := admin.RunDependents(ctx, steps...)

	s.auditor.Record(ctx, audit.Entry{
		Action:       audit.ActionUserCreated,
		ResourceType: audit.ResourceUser,
		ResourceID:   audit.ResourceID(u.ID),
		Changes: map[string]any{
			"email":           u.Email,
			"full_name":       req.FullName,
			"plan_id":         planID,
			"organization_id": req.OrganizationID,
			"is_superadmin":   u.IsSuperadmin,
		},
	})

	d, err := s.detail(ctx, u)
	if err != nil {
		log.Warn().Err(err).Str("user_id", u.ID.String()).Msg("Failed to load created user")
		d = &Detail{User: *u, Memberships: []store.MemberDetail{}}
	}
	return &MutationResponse{Success: true, User: d, Warnings: warnings}, nil
}

// Update applies profile, plan, license and membership changes. Membership
// and license writes are critical; the profile write is best-effort.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*MutationResponse, error) {
	if err := validation.Struct(req); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return nil, apperrors.Validation("user_id must be a valid UUID")
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, userLookupError(err)
	}

	joinOrg := false
	if req.OrganizationID != nil {
		member, err := s.isMember(ctx, u.ID, *req.OrganizationID)
		if err != nil {
			return nil, err
		}
		if !member {
			if err := s.checkCapacity(ctx, *req.OrganizationID); err != nil {
				return nil, err
			}
			joinOrg = true
		}
	}

	if req.PlanID != nil {
		if planID := optionalPlan(req.PlanID); planID != nil {
			if err := s.checkPlan(ctx, u.ID, *planID, req.OrganizationID); err != nil {
				return nil, err
			}
		}
	}

	changes := map[string]any{}
	var steps []admin.Step

	if joinOrg {
		orgID := *req.OrganizationID
		steps = append(steps, admin.Step{
			Name:     "add_organization_membership",
			Critical: true,
			Run: func(ctx context.Context) error {
				err := s.store.AddMemberIfBelowLimit(ctx, &store.TeamMember{
					TeamID: orgID,
					UserID: u.ID,
					Role:   store.MemberRoleMember,
					Status: store.MemberStatusActive,
				})
				switch {
				case errors.Is(err, store.ErrMemberLimitReached):
					return apperrors.Conflict(plans.CodeMemberLimitReached, "Organization has reached its member limit")
				case errors.Is(err, store.ErrOrganizationNotFound):
					return apperrors.NotFound("Organization not found")
				case err != nil && !errors.Is(err, store.ErrAlreadyMember):
					return err
				}
				changes["organization_id"] = orgID.String()
				return nil
			},
		})
	}

	if req.PlanID != nil || req.LicenseStatus != nil || req.BillingCycle != nil {
		steps = append(steps, admin.Step{
			Name:     "upsert_license",
			Critical: true,
			Run: func(ctx context.Context) error {
				diff, err := s.upsertLicense(ctx, u.ID, req)
				if err != nil {
					return err
				}
				for k, v := range diff {
					changes[k] = v
				}
				return nil
			},
		})
	}

	if req.FullName != nil || req.AvatarURL != nil || req.AccountStatus != nil {
		steps = append(steps, admin.Step{
			Name: "update_profile",
			Run: func(ctx context.Context) error {
				diff, err := s.updateProfile(ctx, u.ID, req)
				if err != nil {
					return err
				}
				for k, v := range diff {
					changes[k] = v
				}
				return nil
			},
		})
	}

	if len(steps) == 0 {
		return nil, apperrors.Validation("No changes provided")
	}

	warnings, runErr := admin.RunDependents(ctx, steps...)
	if runErr == nil && len(changes) == 0 && len(warnings) == 0 {
		// Every field already had the requested value.
		return nil, apperrors.Validation("No changes provided")
	}
	if len(changes) > 0 {
		s.auditor.Record(ctx, audit.Entry{
			Action:       audit.ActionUserUpdated,
			ResourceType: audit.ResourceUser,
			ResourceID:   audit.ResourceID(u.ID),
			Changes:      changes,
		})
	}
	if runErr != nil {
		var appErr *apperrors.Error
		if errors.As(runErr, &appErr) {
			return nil, appErr
		}
		return nil, apperrors.Internal("Failed to update user", runErr)
	}

	d, err := s.detail(ctx, u)
	if err != nil {
		return nil, err
	}
	return &MutationResponse{Success: true, User: d, Warnings: warnings}, nil
}

// upsertLicense updates the user's license in place. If the update violates
// the (user_id, plan_id) unique index, every license row of the user is
// deleted and one row with the merged fields is inserted.
func (s *Service) upsertLicense(ctx context.Context, userID uuid.UUID, req UpdateRequest) (map[string]any, error) {
	diff := map[string]any{}

	existing, err := s.store.GetLicenseByUser(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrLicenseNotFound) {
		return nil, fmt.Errorf("failed to load license: %w", err)
	}

	l := &store.License{UserID: userID, Status: store.LicenseActive, BillingCycle: BillingMonthly}
	if existing != nil {
		l = existing
	}
	wasActive := l.Status == store.LicenseActive && l.ActivatedAt != nil

	if req.PlanID != nil {
		planID := optionalPlan(req.PlanID)
		diff["plan_id"] = map[string]any{"from": l.PlanID, "to": planID}
		l.PlanID = planID
	}
	if req.LicenseStatus != nil {
		diff["license_status"] = map[string]any{"from": l.Status, "to": *req.LicenseStatus}
		l.Status = *req.LicenseStatus
	}
	if req.BillingCycle != nil {
		diff["billing_cycle"] = map[string]any{"from": l.BillingCycle, "to": *req.BillingCycle}
		l.BillingCycle = *req.BillingCycle
	}
	if l.Status == store.LicenseActive && !wasActive {
		now := s.now()
		l.ActivatedAt = &now
	}

	if existing == nil {
		if err := s.store.CreateLicense(ctx, l); err != nil {
			return nil, fmt.Errorf("failed to create license: %w", err)
		}
		return diff, nil
	}

	err = s.store.UpdateLicense(ctx, l)
	if err == nil {
		return diff, nil
	}
	if !errors.Is(err, store.ErrLicenseConflict) {
		return nil, fmt.Errorf("failed to update license: %w", err)
	}

	log.Warn().Str("user_id", userID.String()).Msg("License update hit unique constraint, replacing license rows")
	if _, err := s.store.DeleteLicensesByUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to delete conflicting licenses: %w", err)
	}
	fresh := *l
	fresh.ID = uuid.Nil
	if err := s.store.CreateLicense(ctx, &fresh); err != nil {
		return nil, fmt.Errorf("failed to reinsert license: %w", err)
	}
	diff["license_replaced"] = true
	return diff, nil
}

func (s *Service) updateProfile(ctx context.Context, userID uuid.UUID, req UpdateRequest) (map[string]any, error) {
	p, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		p = &store.Profile{UserID: userID, AccountStatus: store.AccountActive}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	diff := map[string]any{}
	if req.FullName != nil && strings.TrimSpace(*req.FullName) != p.FullName {
		name := strings.TrimSpace(*req.FullName)
		diff["full_name"] = map[string]any{"from": p.FullName, "to": name}
		p.FullName = name
	}
	if req.AvatarURL != nil && *req.AvatarURL != p.AvatarURL {
		diff["avatar_url"] = map[string]any{"from": p.AvatarURL, "to": *req.AvatarURL}
		p.AvatarURL = *req.AvatarURL
	}
	if req.AccountStatus != nil && *req.AccountStatus != p.AccountStatus {
		diff["account_status"] = map[string]any{"from": p.AccountStatus, "to": *req.AccountStatus}
		p.AccountStatus = *req.AccountStatus
	}
	if len(diff) == 0 {
		return diff, nil
	}
	if err := s.store.UpsertProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	return diff, nil
}

// Delete removes a user. Admins cannot delete themselves, owners must hand
// over or delete their organizations first, and one superadmin always remains.
func (s *Service) Delete(ctx context.Context, userID uuid.UUID) error {
	if a := auth.GetAdmin(ctx); a != nil && a.ID == userID {
		return apperrors.Validation("You cannot delete your own account")
	}

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return userLookupError(err)
	}

	orgs, err := s.store.ListOrganizations(ctx)
	if err != nil {
		return apperrors.Internal("Failed to check organization ownership", err)
	}
	var owned []string
	for _, org := range orgs {
		if org.OwnerID == userID {
			owned = append(owned, org.Slug)
		}
	}
	if len(owned) > 0 {
		appErr := apperrors.Conflict(CodeUserOwnsOrganization, "User owns organizations; transfer or delete them first")
		appErr.Details = map[string]any{"organizations": owned}
		return appErr
	}

	if u.IsSuperadmin {
		count, err := s.store.CountSuperadmins(ctx)
		if err != nil {
			return apperrors.Internal("Failed to count superadmins", err)
		}
		if count <= 1 {
			return apperrors.Conflict(CodeLastSuperadmin, "The last superadmin cannot be deleted")
		}
	}

	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return userLookupError(err)
	}

	s.auditor.Record(ctx, audit.Entry{
		Action:       audit.ActionUserDeleted,
		ResourceType: audit.ResourceUser,
		ResourceID:   audit.ResourceID(userID),
		Changes:      map[string]any{"email": u.Email},
	})
	return nil
}

func (s *Service) checkPlan(ctx context.Context, userID uuid.UUID, planID string, pendingOrgID *uuid.UUID) error {
	d, err := s.enforcer.CanAssignPlan(ctx, userID, planID, pendingOrgID)
	if err != nil {
		return apperrors.Internal("Failed to check plan", err)
	}
	if appErr := d.Error(); appErr != nil {
		return appErr
	}
	return nil
}

func (s *Service) checkCapacity(ctx context.Context, orgID uuid.UUID) error {
	d, err := s.enforcer.CanAddMember(ctx, orgID)
	if err != nil {
		return apperrors.Internal("Failed to check organization capacity", err)
	}
	if appErr := d.Error(); appErr != nil {
		return appErr
	}
	return nil
}

func (s *Service) isMember(ctx context.Context, userID, orgID uuid.UUID) (bool, error) {
	memberships, err := s.store.ListMembershipsByUser(ctx, userID)
	if err != nil {
		return false, apperrors.Internal("Failed to load memberships", err)
	}
	for _, m := range memberships {
		if m.TeamID == orgID {
			return true, nil
		}
	}
	return false, nil
}

func optionalPlan(planID *string) *string {
	if planID == nil {
		return nil
	}
	id := strings.TrimSpace(*planID)
	if id == "" {
		return nil
	}
	return &id
}

func userLookupError(err error) error {
	if errors.Is(err, store.ErrUserNotFound) {
		return apperrors.NotFound("User not found")
	}
	return apperrors.Internal("Failed to load user", err)
}
