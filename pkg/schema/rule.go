package schema

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuleKind enumerates the closed set of permission rules
type RuleKind int

const (
	RuleAll RuleKind = iota + 1
	RuleAuthenticated
	RuleRoles
	RuleOwner
)

func (k RuleKind) String() string {
	switch k {
	case RuleAll:
		return "all"
	case RuleAuthenticated:
		return "authenticated"
	case RuleRoles:
		return "roles"
	case RuleOwner:
		return "owner"
	}
	return "unknown"
}

// Rule is one permission rule. Build it with AllowAll, RequireAuthenticated,
// RequireRoles or RequireOwner, or decode it from the schema file.
type Rule struct {
	kind  RuleKind
	roles []string
	field string
}

// AllowAll matches every caller, anonymous included
func AllowAll() *Rule { return &Rule{kind: RuleAll} }

// RequireAuthenticated matches any caller with a session
func RequireAuthenticated() *Rule { return &Rule{kind: RuleAuthenticated} }

// RequireRoles matches callers whose effective role is listed
func RequireRoles(roles ...string) *Rule {
	return &Rule{kind: RuleRoles, roles: append([]string(nil), roles...)}
}

// RequireOwner matches callers whose user id equals the record's field
func RequireOwner(field string) *Rule { return &Rule{kind: RuleOwner, field: field} }

// Kind returns the rule kind
func (r *Rule) Kind() RuleKind { return r.kind }

// Roles returns a copy of the listed roles for RuleRoles
func (r *Rule) Roles() []string { return append([]string(nil), r.roles...) }

// OwnerField returns the owner column for RuleOwner
func (r *Rule) OwnerField() string { return r.field }

func (r *Rule) String() string {
	switch r.kind {
	case RuleRoles:
		return fmt.Sprintf("roles[%s]", strings.Join(r.roles, ","))
	case RuleOwner:
		return fmt.Sprintf("owner(%s)", r.field)
	}
	return r.kind.String()
}

type ruleObject struct {
	Type  string   `yaml:"type"`
	Roles []string `yaml:"roles"`
	Owner string   `yaml:"owner"`
	Field string   `yaml:"field"`
}

// UnmarshalYAML accepts "all", "authenticated", {roles: [...]},
// {owner: field} and the explicit {type: ..., ...} forms.
func (r *Rule) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		switch value.Value {
		case "all":
			*r = Rule{kind: RuleAll}
		case "authenticated":
			*r = Rule{kind: RuleAuthenticated}
		default:
			return fmt.Errorf("line %d: unknown permission rule %q", value.Line, value.Value)
		}
		return nil

	case yaml.MappingNode:
		var obj ruleObject
		if err := value.Decode(&obj); err != nil {
			return fmt.Errorf("line %d: invalid permission rule: %w", value.Line, err)
		}
		return r.fromObject(obj, value.Line)
	}
	return fmt.Errorf("line %d: permission rule must be a string or an object", value.Line)
}

func (r *Rule) fromObject(obj ruleObject, line int) error {
	kind := obj.Type
	if kind == "" {
		switch {
		case obj.Roles != nil:
			kind = "roles"
		case obj.Owner != "" || obj.Field != "":
			kind = "owner"
		}
	}

	switch kind {
	case "all":
		*r = Rule{kind: RuleAll}
	case "authenticated":
		*r = Rule{kind: RuleAuthenticated}
	case "roles":
		if len(obj.Roles) == 0 {
			return fmt.Errorf("line %d: roles rule must list at least one role", line)
		}
		*r = Rule{kind: RuleRoles, roles: obj.Roles}
	case "owner":
		field := obj.Field
		if field == "" {
			field = obj.Owner
		}
		if field == "" {
			return fmt.Errorf("line %d: owner rule must name a field", line)
		}
		*r = Rule{kind: RuleOwner, field: field}
	default:
		return fmt.Errorf("line %d: unknown permission rule type %q", line, kind)
	}
	return nil
}
