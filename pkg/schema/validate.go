package schema

import (
	"fmt"
	"regexp"
)

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Validate checks structural consistency. Role names are checked later
// against the role registry when the policy is compiled.
func (s *Schema) Validate() error {
	seen := make(map[string]bool, len(s.Tables))
	for i := range s.Tables {
		t := &s.Tables[i]
		if !identifierPattern.MatchString(t.Name) {
			return fmt.Errorf("table %q: name must match %s", t.Name, identifierPattern)
		}
		if seen[t.Name] {
			return fmt.Errorf("table %q: declared more than once", t.Name)
		}
		seen[t.Name] = true

		if err := t.validate(); err != nil {
			return fmt.Errorf("table %q: %w", t.Name, err)
		}
	}
	return nil
}

func (t *Table) validate() error {
	fields := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		if !identifierPattern.MatchString(f.Name) {
			return fmt.Errorf("field %q: name must match %s", f.Name, identifierPattern)
		}
		if fields[f.Name] {
			return fmt.Errorf("field %q: declared more than once", f.Name)
		}
		fields[f.Name] = true

		if !f.Type.Valid() {
			return fmt.Errorf("field %q: unknown type %q", f.Name, f.Type)
		}
		if f.Name != t.PrimaryKey && isReservedColumn(f.Name) {
			return fmt.Errorf("field %q: shadows a system column", f.Name)
		}
	}

	if t.PrimaryKey != ColumnID && !fields[t.PrimaryKey] {
		return fmt.Errorf("primary key %q is not a declared field", t.PrimaryKey)
	}
	if pk, ok := t.Field(t.PrimaryKey); ok && pk.Type != TypeUUID && pk.Type != TypeInteger {
		return fmt.Errorf("primary key %q must be uuid or integer", t.PrimaryKey)
	}

	if t.Permissions == nil {
		return nil
	}
	for _, op := range Operations {
		if err := t.validateOwnerRule(t.Permissions.Rule(op)); err != nil {
			return fmt.Errorf("%s permission: %w", op, err)
		}
	}

	ruled := make(map[string]bool, len(t.Permissions.Fields))
	for _, fp := range t.Permissions.Fields {
		if !t.HasColumn(fp.Field) {
			return fmt.Errorf("field permission for unknown field %q", fp.Field)
		}
		if ruled[fp.Field] {
			return fmt.Errorf("field %q has more than one permission entry", fp.Field)
		}
		ruled[fp.Field] = true
		for _, r := range []*Rule{fp.Read, fp.Write} {
			if err := t.validateOwnerRule(r); err != nil {
				return fmt.Errorf("field %q: %w", fp.Field, err)
			}
		}
	}
	return nil
}

// validateOwnerRule requires owner columns to be declared text or uuid
// fields other than the primary key.
func (t *Table) validateOwnerRule(r *Rule) error {
	if r == nil || r.Kind() != RuleOwner {
		return nil
	}
	f, ok := t.Field(r.OwnerField())
	if !ok || f.Name == t.PrimaryKey {
		return fmt.Errorf("owner field %q is not a declared field", r.OwnerField())
	}
	if f.Type != TypeText && f.Type != TypeUUID {
		return fmt.Errorf("owner field %q must be text or uuid", f.Name)
	}
	return nil
}

func isReservedColumn(name string) bool {
	switch name {
	case ColumnID, ColumnCreatedAt, ColumnUpdatedAt, ColumnDeletedAt, ColumnOrganizationID:
		return true
	}
	return false
}
