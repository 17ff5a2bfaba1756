package rbac

import (
	"fmt"

	"github.com/platinummonkey/rowguard/pkg/schema"
)

// Evaluator applies table and field rules to a principal. It holds no
// state and performs no I/O.
type Evaluator struct{}

// NewEvaluator creates an evaluator
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate decides whether p may perform op on table. record is the row
// being updated or deleted, or the prepared values being created; it is
// nil for reads, where an owner rule becomes a row filter.
func (e *Evaluator) Evaluate(p *Principal, op schema.Operation, table *schema.Table, record map[string]interface{}) Decision {
	rule := table.Permissions.Rule(op)
	if rule == nil {
		return Decision{
			Kind:   DenyForbidden,
			Reason: fmt.Sprintf("No %s permission is granted on table '%s'", op, table.Name),
		}
	}

	d := Decision{Rule: rule}
	if rule.Kind() != schema.RuleAll && p.Anonymous() {
		d.Kind = DenyUnauthenticated
		d.Reason = "Authentication required"
		return d
	}

	switch rule.Kind() {
	case schema.RuleAll, schema.RuleAuthenticated:
		d.Allowed = true

	case schema.RuleRoles:
		if hasRole(rule, p.Role) {
			d.Allowed = true
			break
		}
		d.Kind = DenyForbidden
		d.Reason = fmt.Sprintf("Role '%s' is not permitted to %s records in table '%s'", p.Role, op, table.Name)

	case schema.RuleOwner:
		if record == nil && op == schema.OpRead {
			d.Allowed = true
			d.OwnerFilter = rule.OwnerField()
			break
		}
		if isOwner(p, rule.OwnerField(), record) {
			d.Allowed = true
			break
		}
		d.Kind = DenyForbidden
		d.Reason = fmt.Sprintf("Cannot %s record: not owned by current user", op)
	}

	return d
}

// MaskFields computes which columns of record p may see and write. The
// table-level decision is not repeated here; callers evaluate it first.
func (e *Evaluator) MaskFields(p *Principal, table *schema.Table, record map[string]interface{}) FieldMask {
	cols := table.Columns()
	mask := FieldMask{
		Visible:  make(map[string]bool, len(cols)),
		Writable: make(map[string]bool, len(cols)),
	}

	for _, col := range cols {
		fp, ruled := table.FieldPermission(col)

		mask.Visible[col] = !ruled || fp.Read == nil || ruleAllows(p, fp.Read, record)

		if table.IsReadonly(col) {
			continue
		}
		mask.Writable[col] = !ruled || fp.Write == nil || ruleAllows(p, fp.Write, record)
	}

	return mask
}

// ruleAllows evaluates a field-level rule, where an owner rule needs the
// record to decide.
func ruleAllows(p *Principal, rule *schema.Rule, record map[string]interface{}) bool {
	switch rule.Kind() {
	case schema.RuleAll:
		return true
	case schema.RuleAuthenticated:
		return !p.Anonymous()
	case schema.RuleRoles:
		return !p.Anonymous() && hasRole(rule, p.Role)
	case schema.RuleOwner:
		return isOwner(p, rule.OwnerField(), record)
	}
	return false
}

// hasRole is an exact-match membership test; role levels grant nothing.
// The authenticated pseudo-role can never be listed, so it never matches.
func hasRole(rule *schema.Rule, role string) bool {
	if role == "" || role == RoleAuthenticated {
		return false
	}
	for _, r := range rule.Roles() {
		if r == role {
			return true
		}
	}
	return false
}

func isOwner(p *Principal, field string, record map[string]interface{}) bool {
	if p.Anonymous() || p.UserID == "" || record == nil {
		return false
	}
	v, ok := record[field]
	if !ok || v == nil {
		return false
	}
	return fmt.Sprint(v) == p.UserID
}
