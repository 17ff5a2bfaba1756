package rbac

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/rowguard/pkg/observability"
	"github.com/platinummonkey/rowguard/pkg/schema"
)

// MembershipLookup returns a user's role within an organization
type MembershipLookup interface {
	MemberRole(ctx context.Context, organizationID, userID string) (role string, found bool, err error)
}

// UserRoleLookup returns a user's global role, or "" if unset
type UserRoleLookup interface {
	GlobalRole(ctx context.Context, userID string) (string, error)
}

// Resolver computes the effective role for a session and table. Lookups
// run on every call so that membership changes apply immediately.
type Resolver struct {
	policy  *Policy
	members MembershipLookup
	users   UserRoleLookup
}

// NewResolver creates a resolver
func NewResolver(policy *Policy, members MembershipLookup, users UserRoleLookup) *Resolver {
	return &Resolver{policy: policy, members: members, users: users}
}

// Resolve applies, in order: the active organization's membership role;
// for tables that are not organization-scoped, the user's global role, the
// default role, then member; denial for organization-scoped tables with no
// active organization. A role missing from the registry becomes the
// authenticated pseudo-role.
func (r *Resolver) Resolve(ctx context.Context, sess *SessionContext, table *schema.Table) (Resolution, error) {
	ctx, span := observability.Tracer().Start(ctx, "rbac.Resolve",
		trace.WithAttributes(attribute.String("table", table.Name)))
	defer span.End()

	res, err := r.resolve(ctx, sess, table)
	if err != nil {
		span.RecordError(err)
		return Resolution{}, err
	}
	span.SetAttributes(
		attribute.String("role", res.Principal.Role),
		attribute.String("scope", string(res.Principal.Scope)),
		attribute.Bool("denied", res.Denied),
	)
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, sess *SessionContext, table *schema.Table) (Resolution, error) {
	if sess == nil || sess.UserID == "" {
		if table.OrganizationScoped {
			return deny(Principal{Scope: ScopeAnonymous}, DenyUnauthenticated, "Authentication required"), nil
		}
		return Resolution{Principal: Principal{Scope: ScopeAnonymous}}, nil
	}

	p := Principal{UserID: sess.UserID, OrganizationID: sess.ActiveOrganizationID}

	if sess.ActiveOrganizationID != "" {
		role, found, err := r.members.MemberRole(ctx, sess.ActiveOrganizationID, sess.UserID)
		if err != nil {
			return Resolution{}, fmt.Errorf("failed to look up membership: %w", err)
		}
		if found {
			p.Role, p.Scope = role, ScopeOrganization
			return Resolution{Principal: r.normalize(p)}, nil
		}
		if table.OrganizationScoped {
			p.Scope = ScopeDenied
			return deny(p, DenyForbidden, "You are not a member of the active organization"), nil
		}
		p.OrganizationID = ""
		p.Role, p.Scope = RoleAuthenticated, ScopeAuthenticated
		return Resolution{Principal: p}, nil
	}

	if table.OrganizationScoped {
		p.Scope = ScopeDenied
		return deny(p, DenyForbidden, "No active organization. Set an active organization to access this table"), nil
	}

	global, err := r.users.GlobalRole(ctx, sess.UserID)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to look up global role: %w", err)
	}
	if global != "" {
		p.Role, p.Scope = global, ScopeGlobal
	} else {
		p.Role, p.Scope = r.policy.DefaultRole(), ScopeDefault
	}
	return Resolution{Principal: r.normalize(p)}, nil
}

func (r *Resolver) normalize(p Principal) Principal {
	if p.Role == "" || !r.policy.Registry().Has(p.Role) {
		p.Role, p.Scope = RoleAuthenticated, ScopeAuthenticated
	}
	return p
}

func deny(p Principal, kind DenyKind, reason string) Resolution {
	return Resolution{Principal: p, Denied: true, Kind: kind, Reason: reason}
}
