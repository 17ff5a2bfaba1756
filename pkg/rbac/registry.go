package rbac

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/platinummonkey/rowguard/pkg/schema"
)

var roleNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// Registry holds the built-in roles plus the application's custom roles.
// It is immutable once built.
type Registry struct {
	roles map[string]Role
}

// NewRegistry validates custom roles and merges them with the built-ins.
// Names must be lowercase-hyphenated and unique across both sets.
func NewRegistry(custom []schema.RoleDefinition) (*Registry, error) {
	r := &Registry{roles: make(map[string]Role, len(custom)+3)}
	for _, role := range BuiltInRoles() {
		r.roles[role.Name] = role
	}

	for i, def := range custom {
		if !roleNamePattern.MatchString(def.Name) {
			return nil, fmt.Errorf("role %d: name %q must match %s", i, def.Name, roleNamePattern)
		}
		if def.Name == RoleAuthenticated {
			return nil, fmt.Errorf("role %q is reserved", def.Name)
		}
		if _, exists := r.roles[def.Name]; exists {
			return nil, fmt.Errorf("duplicate role name %q", def.Name)
		}

		role := Role{Name: def.Name, Description: def.Description}
		if def.Level != nil {
			role.Level = *def.Level
		}
		r.roles[def.Name] = role
	}

	return r, nil
}

// Has reports whether name is a registered role
func (r *Registry) Has(name string) bool {
	_, ok := r.roles[name]
	return ok
}

// Get returns a registered role
func (r *Registry) Get(name string) (Role, bool) {
	role, ok := r.roles[name]
	return role, ok
}

// Roles returns every role ordered by level, highest first, then by name
func (r *Registry) Roles() []Role {
	out := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level > out[j].Level
		}
		return out[i].Name < out[j].Name
	})
	return out
}
