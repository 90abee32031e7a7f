package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors returned by every Store implementation.
var (
	ErrNotFound = errors.New("not found")

	ErrOrganizationNotFound = errors.New("organization not found")
	ErrSlugTaken            = errors.New("organization slug already exists")
	ErrMemberLimitReached   = errors.New("organization member limit reached")
	ErrAlreadyMember        = errors.New("user is already a member of this organization")
	ErrMemberNotFound       = errors.New("member not found")

	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email address already registered")

	ErrLicenseNotFound = errors.New("license not found")
	// ErrLicenseConflict is returned when a license write violates the (user_id, plan_id) unique index.
	ErrLicenseConflict = errors.New("license unique constraint violation")

	ErrPlanNotFound        = errors.New("plan not found")
	ErrBridgeTokenNotFound = errors.New("bridge token not found")
	ErrResearchJobNotFound = errors.New("research job not found")
)

// OrganizationStore persists organizations.
type OrganizationStore interface {
	// CreateOrganization inserts org and fills ID and timestamps.
	// Returns ErrSlugTaken if the slug is already used.
	CreateOrganization(ctx context.Context, org *Organization) error
	GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error)
	ListOrganizations(ctx context.Context) ([]OrganizationSummary, error)
	// UpdateOrganization overwrites the mutable columns of org.
	// Returns ErrSlugTaken or ErrOrganizationNotFound.
	UpdateOrganization(ctx context.Context, org *Organization) error
	DeleteOrganization(ctx context.Context, id uuid.UUID) error
}

// MemberStore persists team memberships.
type MemberStore interface {
	// AddMemberIfBelowLimit inserts m only if the team's active member count is below
	// max_members (max_members <= 0 means unlimited). The check and the insert are one
	// atomic operation. Returns ErrMemberLimitReached, ErrAlreadyMember or ErrOrganizationNotFound.
	AddMemberIfBelowLimit(ctx context.Context, m *TeamMember) error
	RemoveMember(ctx context.Context, teamID, userID uuid.UUID) error
	CountActiveMembers(ctx context.Context, teamID uuid.UUID) (int, error)
	ListMembers(ctx context.Context, teamID uuid.UUID) ([]MemberDetail, error)
	ListMembershipsByUser(ctx context.Context, userID uuid.UUID) ([]MemberDetail, error)
}

// UserStore persists users and profiles.
type UserStore interface {
	// CreateUser inserts u and fills ID, OraKey and timestamps. Returns ErrEmailTaken.
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context, params ListUsersParams) ([]User, int, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
	CountSuperadmins(ctx context.Context) (int, error)

	UpsertProfile(ctx context.Context, p *Profile) error
	GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
}

// LicenseStore persists licenses.
type LicenseStore interface {
	// CreateLicense inserts l. Returns ErrLicenseConflict on a unique violation.
	CreateLicense(ctx context.Context, l *License) error
	// GetLicenseByUser returns the most recently updated license for the user.
	GetLicenseByUser(ctx context.Context, userID uuid.UUID) (*License, error)
	ListLicensesByUser(ctx context.Context, userID uuid.UUID) ([]License, error)
	// UpdateLicense overwrites l by ID. Returns ErrLicenseConflict on a unique violation.
	UpdateLicense(ctx context.Context, l *License) error
	DeleteLicensesByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// PlanStore reads plans.
type PlanStore interface {
	GetPlan(ctx context.Context, id string) (*Plan, error)
	ListPlans(ctx context.Context) ([]Plan, error)
}

// SettingStore persists platform settings.
type SettingStore interface {
	// ListSettings returns settings in any of the categories; no categories means all.
	ListSettings(ctx context.Context, categories ...string) ([]PlatformSetting, error)
	UpsertSettings(ctx context.Context, settings []PlatformSetting) error
	DeleteSetting(ctx context.Context, key string) error
}

// AuditStore appends and reads admin audit logs.
type AuditStore interface {
	InsertAuditLog(ctx context.Context, entry *AuditLog) error
	ListAuditLogs(ctx context.Context, filter AuditFilter) ([]AuditLog, error)
}

// BridgeTokenStore persists bridge tokens.
type BridgeTokenStore interface {
	CreateBridgeToken(ctx context.Context, t *BridgeToken) error
	GetBridgeTokenByHash(ctx context.Context, hash []byte) (*BridgeToken, error)
	ListBridgeTokensByUser(ctx context.Context, userID uuid.UUID) ([]BridgeToken, error)
	RevokeBridgeToken(ctx context.Context, userID, tokenID uuid.UUID) (*BridgeToken, error)
	TouchBridgeToken(ctx context.Context, tokenID uuid.UUID, at time.Time) error
	// DeleteStaleBridgeTokens removes tokens revoked or expired before cutoff.
	DeleteStaleBridgeTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

// ResearchStore persists research jobs and findings.
type ResearchStore interface {
	CreateResearchJob(ctx context.Context, job *ResearchJob) error
	GetResearchJob(ctx context.Context, id uuid.UUID) (*ResearchJob, error)
	ListResearchJobs(ctx context.Context, filter ResearchFilter) ([]ResearchJob, error)
	UpdateResearchJobStatus(ctx context.Context, id uuid.UUID, status string) (*ResearchJob, error)
	// DeleteResearchJob removes the job and its findings and leaves a tombstone.
	DeleteResearchJob(ctx context.Context, id uuid.UUID) error
	// ListDeletedResearchJobs returns ids of the user's jobs deleted at or after since.
	ListDeletedResearchJobs(ctx context.Context, userID uuid.UUID, since time.Time) ([]uuid.UUID, error)
	// DeleteResearchTombstones removes tombstones older than cutoff.
	DeleteResearchTombstones(ctx context.Context, cutoff time.Time) (int64, error)
	AddResearchFinding(ctx context.Context, f *ResearchFinding) error
	ListResearchFindings(ctx context.Context, jobIDs []uuid.UUID, since *time.Time) ([]ResearchFinding, error)
}

// Store is the full persistence surface used by the application.
type Store interface {
	OrganizationStore
	MemberStore
	UserStore
	LicenseStore
	PlanStore
	SettingStore
	AuditStore
	BridgeTokenStore
	ResearchStore

	Ping(ctx context.Context) error
	Close()
}
