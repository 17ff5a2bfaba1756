package rbac

import (
	"fmt"

	"github.com/platinummonkey/rowguard/pkg/schema"
)

// Policy is the compiled, immutable pairing of a schema with its role
// registry. Build it once at startup with Compile.
type Policy struct {
	schema      *schema.Schema
	registry    *Registry
	defaultRole string
}

// Compile builds the registry and checks that the default role and every
// role token in table and field rules is registered.
func Compile(s *schema.Schema) (*Policy, error) {
	registry, err := NewRegistry(s.Auth.Roles)
	if err != nil {
		return nil, fmt.Errorf("invalid roles: %w", err)
	}

	defaultRole := s.Auth.DefaultRole
	if defaultRole == "" {
		defaultRole = RoleMember
	}
	if !registry.Has(defaultRole) {
		return nil, fmt.Errorf("defaultRole %q is not a registered role", defaultRole)
	}

	for i := range s.Tables {
		t := &s.Tables[i]
		if t.Permissions == nil {
			continue
		}
		for _, op := range schema.Operations {
			if err := checkRuleRoles(registry, t.Permissions.Rule(op)); err != nil {
				return nil, fmt.Errorf("table %q: %s permission: %w", t.Name, op, err)
			}
		}
		for _, fp := range t.Permissions.Fields {
			if err := checkRuleRoles(registry, fp.Read); err != nil {
				return nil, fmt.Errorf("table %q: field %q read permission: %w", t.Name, fp.Field, err)
			}
			if err := checkRuleRoles(registry, fp.Write); err != nil {
				return nil, fmt.Errorf("table %q: field %q write permission: %w", t.Name, fp.Field, err)
			}
		}
	}

	return &Policy{schema: s, registry: registry, defaultRole: defaultRole}, nil
}

func checkRuleRoles(registry *Registry, rule *schema.Rule) error {
	if rule == nil || rule.Kind() != schema.RuleRoles {
		return nil
	}
	for _, name := range rule.Roles() {
		if !registry.Has(name) {
			return fmt.Errorf("unknown role %q", name)
		}
	}
	return nil
}

// Table looks up a table by name
func (p *Policy) Table(name string) (*schema.Table, bool) {
	return p.schema.Table(name)
}

// Tables returns every declared table
func (p *Policy) Tables() []schema.Table {
	return p.schema.Tables
}

// Registry returns the role registry
func (p *Policy) Registry() *Registry {
	return p.registry
}

// DefaultRole returns the role applied when a user has no global role
func (p *Policy) DefaultRole() string {
	return p.defaultRole
}
