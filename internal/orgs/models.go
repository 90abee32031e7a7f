package orgs

import (
	"github.com/aliuyar1234/ctlplane/internal/admin"
	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/google/uuid"
)

// Defaults applied when a create request leaves limits unset.
const (
	DefaultMaxMembers = 5
	DefaultMaxAgents  = 3
)

// Codes specific to organization mutations.
const (
	CodeSlugTaken           = "SLUG_TAKEN"
	CodeMemberLimitConflict = "MEMBER_LIMIT_CONFLICT"
	CodeAlreadyMember       = "ALREADY_MEMBER"
	CodeCannotRemoveOwner   = "CANNOT_REMOVE_OWNER"
)

// CreateRequest is the body of POST /api/superadmin/organizations.
type CreateRequest struct {
	Name       string    `json:"name" validate:"required,max=100"`
	Slug       string    `json:"slug" validate:"omitempty,slug"`
	OwnerID    uuid.UUID `json:"owner_id"`
	PlanID     *string   `json:"plan_id"`
	MaxMembers *int      `json:"max_members" validate:"omitempty,min=0"`
	MaxAgents  *int      `json:"max_agents" validate:"omitempty,min=0"`
}

// MemberRequest adds a user to the organization being updated.
type MemberRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role" validate:"omitempty,oneof=owner admin member"`
}

// UpdateRequest is the body of PATCH /api/superadmin/organizations. Nil fields
// are left unchanged; an empty plan_id clears the plan.
type UpdateRequest struct {
	OrgID              string         `json:"org_id" validate:"required"`
	Name               *string        `json:"name" validate:"omitempty,min=1,max=100"`
	Slug               *string        `json:"slug" validate:"omitempty,slug"`
	PlanID             *string        `json:"plan_id"`
	MaxMembers         *int           `json:"max_members" validate:"omitempty,min=0"`
	MaxAgents          *int           `json:"max_agents" validate:"omitempty,min=0"`
	Suspend            *bool          `json:"suspend"`
	SuspensionReason   *string        `json:"suspension_reason" validate:"omitempty,max=500"`
	AddMember          *MemberRequest `json:"add_member"`
	RemoveMemberUserID *uuid.UUID     `json:"remove_member_user_id"`
}

// MutationResponse is returned by create and update.
type MutationResponse struct {
	Success      bool                `json:"success"`
	Organization *store.Organization `json:"organization"`
	Warnings     []admin.Warning     `json:"warnings,omitempty"`
}

// Stats summarizes the organization list.
type Stats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Suspended int `json:"suspended"`
	Members   int `json:"members"`
}

// ListResponse is returned by GET /api/superadmin/organizations.
type ListResponse struct {
	Organizations []store.OrganizationSummary `json:"organizations"`
	Stats         Stats                       `json:"stats"`
}
