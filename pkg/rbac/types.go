package rbac

import (
	"github.com/platinummonkey/rowguard/pkg/schema"
)

// Built-in role names
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"

	// RoleAuthenticated is the synthetic pseudo-role given to signed-in
	// callers whose role cannot be determined. It matches only
	// authenticated and all rules and cannot be declared.
	RoleAuthenticated = "authenticated"
)

// Role is a named role with an advisory ordering level
type Role struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Level       int    `json:"level"`
	BuiltIn     bool   `json:"builtIn"`
}

// BuiltInRoles returns the immutable roles present in every application
func BuiltInRoles() []Role {
	return []Role{
		{Name: RoleAdmin, Description: "Full access", Level: 80, BuiltIn: true},
		{Name: RoleMember, Description: "Standard access", Level: 40, BuiltIn: true},
		{Name: RoleViewer, Description: "Read-only access", Level: 10, BuiltIn: true},
	}
}

// Scope records how an effective role was determined
type Scope string

const (
	ScopeAnonymous     Scope = "anonymous"
	ScopeOrganization  Scope = "organization"
	ScopeGlobal        Scope = "global"
	ScopeDefault       Scope = "default"
	ScopeAuthenticated Scope = "authenticated"
	ScopeDenied        Scope = "denied"
)

// SessionContext is the part of a session the resolver needs. A nil
// *SessionContext means the request carried no session.
type SessionContext struct {
	UserID               string
	ActiveOrganizationID string
}

// Principal is the request-scoped identity handed to the evaluator
type Principal struct {
	UserID         string
	OrganizationID string
	Role           string
	Scope          Scope
}

// Anonymous reports whether the request carried no session
func (p *Principal) Anonymous() bool {
	return p == nil || p.Scope == ScopeAnonymous
}

// DenyKind distinguishes a missing identity from an insufficient one
type DenyKind int

const (
	DenyNone DenyKind = iota
	DenyUnauthenticated
	DenyForbidden
)

// Resolution is the outcome of role resolution. Denials are values, not
// errors; errors are reserved for lookup failures.
type Resolution struct {
	Principal Principal
	Denied    bool
	Kind      DenyKind
	Reason    string
}

// Decision is the outcome of evaluating one table rule
type Decision struct {
	Allowed bool
	Kind    DenyKind
	Reason  string
	Rule    *schema.Rule

	// OwnerFilter is set when a read is allowed only for owned rows; the
	// caller must restrict the query to rows whose column equals the user.
	OwnerFilter string
}

// FieldMask lists the columns a principal may see and write on one record
type FieldMask struct {
	Visible  map[string]bool
	Writable map[string]bool
}

// CanRead reports whether field is visible
func (m FieldMask) CanRead(field string) bool { return m.Visible[field] }

// CanWrite reports whether field is writable
func (m FieldMask) CanWrite(field string) bool { return m.Writable[field] }
