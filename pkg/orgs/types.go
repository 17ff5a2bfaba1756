package orgs

import (
	"strings"
	"time"
)

// Organization is a tenant
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Role      string    `json:"role,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Member is a user's membership in an organization
type Member struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	UserID         string    `json:"userId"`
	Role           string    `json:"role"`
	Email          string    `json:"email,omitempty"`
	Name           string    `json:"name,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// InvitationStatus is the state of an invitation
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
	InvitationCanceled InvitationStatus = "canceled"
	InvitationExpired  InvitationStatus = "expired"
)

// Invitation invites an email address to join an organization
type Invitation struct {
	ID             string           `json:"id"`
	OrganizationID string           `json:"organizationId"`
	Email          string           `json:"email"`
	Role           string           `json:"role"`
	Status         InvitationStatus `json:"status"`
	InviterID      string           `json:"inviterId"`
	ExpiresAt      time.Time        `json:"expiresAt"`
	CreatedAt      time.Time        `json:"createdAt"`
	RespondedAt    *time.Time       `json:"respondedAt,omitempty"`
}

// Actor identifies the caller of recipient-checked invitation operations
type Actor struct {
	UserID string
	Email  string
}

func (a Actor) owns(inv *Invitation) bool {
	return a.Email != "" && strings.EqualFold(a.Email, inv.Email)
}

// CreateOrgRequest represents request to create an organization
type CreateOrgRequest struct {
	Name string `json:"name" validate:"required,max=200"`
	Slug string `json:"slug,omitempty" validate:"omitempty,max=100"`
}

// InviteRequest represents request to invite a member
type InviteRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required"`
}

// UpdateMemberRequest represents request to update a member's role
type UpdateMemberRequest struct {
	Role string `json:"role" validate:"required"`
}
