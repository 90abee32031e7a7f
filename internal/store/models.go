package store

import (
	"time"

	"github.com/google/uuid"
)

// Organization is a tenant (team) row.
type Organization struct {
	ID               uuid.UUID  `json:"id"`
	Name             string     `json:"name"`
	Slug             string     `json:"slug"`
	OwnerID          uuid.UUID  `json:"owner_id"`
	PlanID           *string    `json:"plan_id"`
	MaxMembers       int        `json:"max_members"`
	MaxAgents        int        `json:"max_agents"`
	IsActive         bool       `json:"is_active"`
	SuspendedAt      *time.Time `json:"suspended_at"`
	SuspensionReason *string    `json:"suspension_reason"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// OrganizationSummary is an organization joined with its active member count and plan name.
type OrganizationSummary struct {
	Organization
	MemberCount int    `json:"member_count"`
	PlanName    string `json:"plan_name,omitempty"`
	OwnerEmail  string `json:"owner_email,omitempty"`
}

// User is an account row. Profile fields live in Profile.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsSuperadmin bool      `json:"is_superadmin"`
	OraKey       string    `json:"ora_key"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Account statuses for Profile.AccountStatus.
const (
	AccountActive    = "active"
	AccountSuspended = "suspended"
	AccountDisabled  = "disabled"
)

// Profile holds the editable user fields.
type Profile struct {
	UserID        uuid.UUID `json:"user_id"`
	FullName      string    `json:"full_name"`
	AvatarURL     string    `json:"avatar_url"`
	AccountStatus string    `json:"account_status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// License statuses.
const (
	LicenseActive    = "active"
	LicenseTrial     = "trial"
	LicenseCancelled = "cancelled"
	LicenseExpired   = "expired"
)

// License is the per-user entitlement row.
type License struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	PlanID       *string    `json:"plan_id"`
	Status       string     `json:"status"`
	BillingCycle string     `json:"billing_cycle"`
	AICallsUsed  int64      `json:"ai_calls_used"`
	TokensUsed   int64      `json:"tokens_used"`
	AmountPaid   int64      `json:"amount_paid"`
	ActivatedAt  *time.Time `json:"activated_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsEntitled reports whether the license currently grants its plan.
func (l *License) IsEntitled() bool {
	return l.Status == LicenseActive || l.Status == LicenseTrial
}

// Member roles and statuses.
const (
	MemberRoleOwner  = "owner"
	MemberRoleAdmin  = "admin"
	MemberRoleMember = "member"

	MemberStatusActive  = "active"
	MemberStatusInvited = "invited"
)

// TeamMember joins a user to an organization.
type TeamMember struct {
	TeamID          uuid.UUID `json:"team_id"`
	UserID          uuid.UUID `json:"user_id"`
	Role            string    `json:"role"`
	Status          string    `json:"status"`
	CanManageAgents bool      `json:"can_manage_agents"`
	CanViewBilling  bool      `json:"can_view_billing"`
	CreatedAt       time.Time `json:"created_at"`
}

// MemberDetail is a TeamMember with the member's email and the team name.
type MemberDetail struct {
	TeamMember
	Email    string `json:"email"`
	TeamName string `json:"team_name"`
}

// Plan is a subscription plan. Read-only for this service.
type Plan struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	IsActive             bool      `json:"is_active"`
	RequiresOrganization bool      `json:"requires_organization"`
	Features             []string  `json:"features"`
	CreatedAt            time.Time `json:"created_at"`
}

// HasFeature reports whether the plan grants the named feature.
func (p *Plan) HasFeature(feature string) bool {
	for _, f := range p.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// PlatformSetting is a DB-backed configuration entry. Value is JSON-encoded text.
type PlatformSetting struct {
	Key         string     `json:"key"`
	Value       string     `json:"value"`
	Category    string     `json:"category"`
	IsSensitive bool       `json:"is_sensitive"`
	UpdatedBy   *uuid.UUID `json:"updated_by,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// AuditLog is an append-only record of an admin mutation.
type AuditLog struct {
	ID           uuid.UUID      `json:"id"`
	AdminID      *uuid.UUID     `json:"admin_id"`
	AdminEmail   string         `json:"admin_email"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Changes      map[string]any `json:"changes"`
	CreatedAt    time.Time      `json:"created_at"`
}

// AuditFilter narrows ListAuditLogs.
type AuditFilter struct {
	ResourceType string
	ResourceID   string
	Action       string
	Limit        int
}

// BridgeToken is a scoped device token used by bridge clients.
type BridgeToken struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	Name            string     `json:"name"`
	TokenHash       []byte     `json:"-"`
	Scopes          []string   `json:"scopes"`
	ExpiresAt       *time.Time `json:"expires_at"`
	RevokedAt       *time.Time `json:"revoked_at"`
	LastUsedAt      *time.Time `json:"last_used_at"`
	CreatedByUserID uuid.UUID  `json:"created_by_user_id"`
	CreatedAt       time.Time  `json:"created_at"`
}

// IsRevoked returns true if the token has been revoked.
func (t *BridgeToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsExpired returns true if the token has an expiry in the past.
func (t *BridgeToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// Research job statuses.
const (
	ResearchActive    = "active"
	ResearchPaused    = "paused"
	ResearchCompleted = "completed"
)

// ResearchJob is a long-running research task driven by a bridge client.
type ResearchJob struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	Query     string    `json:"query"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResearchFinding is a result submitted against a research job.
type ResearchFinding struct {
	ID        uuid.UUID `json:"id"`
	JobID     uuid.UUID `json:"job_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	SourceURL string    `json:"source_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ResearchFilter narrows ListResearchJobs.
type ResearchFilter struct {
	UserID uuid.UUID
	Status string
	Since  *time.Time
}

// MaxPage bounds ListUsersParams.Page so Offset cannot overflow.
const MaxPage = 100000

// ListUsersParams controls user search and pagination.
type ListUsersParams struct {
	Search   string
	Page     int
	PageSize int
}

// Normalize clamps paging values.
func (p *ListUsersParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
}

// Offset returns the row offset for the current page.
func (p *ListUsersParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}
