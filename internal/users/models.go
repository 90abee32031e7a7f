package users

import (
	"github.com/aliuyar1234/ctlplane/internal/admin"
	"github.com/aliuyar1234/ctlplane/internal/store"
	"github.com/google/uuid"
)

// Codes specific to user mutations.
const (
	CodeEmailTaken           = "EMAIL_TAKEN"
	CodeUserOwnsOrganization = "USER_OWNS_ORGANIZATION"
	CodeLastSuperadmin       = "LAST_SUPERADMIN"
)

// Billing cycles.
const (
	BillingMonthly = "monthly"
	BillingYearly  = "yearly"
)

// CreateRequest is the body of POST /api/superadmin/users.
type CreateRequest struct {
	Email          string     `json:"email" validate:"required,email,max=254"`
	Password       string     `json:"password" validate:"required,min=8,max=72"`
	FullName       string     `json:"full_name" validate:"required,max=200"`
	PlanID         *string    `json:"plan_id"`
	OrganizationID *uuid.UUID `json:"organization_id"`
	LicenseStatus  string     `json:"license_status" validate:"omitempty,oneof=active trial cancelled expired"`
	BillingCycle   string     `json:"billing_cycle" validate:"omitempty,oneof=monthly yearly"`
	IsSuperadmin   bool       `json:"is_superadmin"`
}

// UpdateRequest is the body of PATCH /api/superadmin/users. Nil fields are
// left unchanged; an empty plan_id clears the license's plan.
type UpdateRequest struct {
	UserID         string     `json:"user_id" validate:"required"`
	FullName       *string    `json:"full_name" validate:"omitempty,max=200"`
	AvatarURL      *string    `json:"avatar_url" validate:"omitempty,url"`
	AccountStatus  *string    `json:"account_status" validate:"omitempty,oneof=active suspended disabled"`
	PlanID         *string    `json:"plan_id"`
	OrganizationID *uuid.UUID `json:"organization_id"`
	LicenseStatus  *string    `json:"license_status" validate:"omitempty,oneof=active trial cancelled expired"`
	BillingCycle   *string    `json:"billing_cycle" validate:"omitempty,oneof=monthly yearly"`
}

// Detail is a user with everything an admin screen shows about it.
type Detail struct {
	store.User
	Profile     *store.Profile       `json:"profile"`
	License     *store.License       `json:"license"`
	Memberships []store.MemberDetail `json:"memberships"`
}

// MutationResponse is returned by create and update.
type MutationResponse struct {
	Success  bool            `json:"success"`
	User     *Detail         `json:"user"`
	Warnings []admin.Warning `json:"warnings,omitempty"`
}

// ListResponse is returned by GET /api/superadmin/users.
type ListResponse struct {
	Users    []Detail `json:"users"`
	Total    int      `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}
