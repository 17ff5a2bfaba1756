package records

import (
	"context"
	"fmt"
	"sort"

	"github.com/platinummonkey/rowguard/pkg/rbac"
	"github.com/platinummonkey/rowguard/pkg/schema"
	"github.com/platinummonkey/rowguard/pkg/scope"
)

// Guard applies table rules, field rules and value validation to writes,
// and field masking to reads.
type Guard struct {
	checker   *rbac.Checker
	validator *ValueValidator
}

// NewGuard creates a guard
func NewGuard(checker *rbac.Checker) *Guard {
	return &Guard{checker: checker, validator: NewValueValidator()}
}

// ReadDecision evaluates the read rule. The returned decision may carry
// an owner filter for scope.Filter.
func (g *Guard) ReadDecision(ctx context.Context, p *rbac.Principal, table *schema.Table) (rbac.Decision, error) {
	return g.checker.Authorize(ctx, p, schema.OpRead, table, nil)
}

// PrepareCreate turns client input into the values to insert
func (g *Guard) PrepareCreate(ctx context.Context, p *rbac.Principal, table *schema.Table, input map[string]interface{}) (map[string]interface{}, error) {
	values, err := g.CheckCreate(ctx, p, table, input)
	if err != nil {
		return nil, err
	}
	return g.Validate(table, values, true)
}

// CheckCreate runs the permission and field checks for a create and
// returns the stamped, unvalidated values. Ownership is stamped before the
// create rule is evaluated so that an owner rule sees the caller as owner.
func (g *Guard) CheckCreate(ctx context.Context, p *rbac.Principal, table *schema.Table, input map[string]interface{}) (map[string]interface{}, error) {
	values := clone(input)
	orgErr := scope.InjectOwnership(p, table, values)

	if _, err := g.checker.Authorize(ctx, p, schema.OpCreate, table, values); err != nil {
		return nil, err
	}
	if orgErr != nil {
		return nil, g.checker.DenyField(ctx, p, table, schema.OpCreate, "Cannot create records for different organization")
	}

	mask := g.checker.Evaluator().MaskFields(p, table, values)
	if err := g.checkFields(ctx, p, table, schema.OpCreate, input, mask); err != nil {
		return nil, err
	}
	return values, nil
}

// PrepareUpdate checks an update of existing and returns the values to set
func (g *Guard) PrepareUpdate(ctx context.Context, p *rbac.Principal, table *schema.Table, existing Record, input map[string]interface{}) (map[string]interface{}, error) {
	values, err := g.CheckUpdate(ctx, p, table, existing, input)
	if err != nil {
		return nil, err
	}
	return g.Validate(table, values, false)
}

// CheckUpdate runs the permission and field checks for an update of
// existing and returns the unvalidated values.
func (g *Guard) CheckUpdate(ctx context.Context, p *rbac.Principal, table *schema.Table, existing Record, input map[string]interface{}) (map[string]interface{}, error) {
	if _, err := g.checker.Authorize(ctx, p, schema.OpUpdate, table, existing); err != nil {
		return nil, err
	}

	values := clone(input)
	if err := scope.CheckMove(p, table, values); err != nil {
		return nil, g.checker.DenyField(ctx, p, table, schema.OpUpdate, "Cannot move records to a different organization")
	}

	mask := g.checker.Evaluator().MaskFields(p, table, existing)
	if err := g.checkFields(ctx, p, table, schema.OpUpdate, values, mask); err != nil {
		return nil, err
	}
	return values, nil
}

// Validate coerces checked values to their declared types
func (g *Guard) Validate(table *schema.Table, values map[string]interface{}, create bool) (map[string]interface{}, error) {
	return g.validator.Values(table, values, create)
}

// CheckDelete evaluates the delete rule against an existing row
func (g *Guard) CheckDelete(ctx context.Context, p *rbac.Principal, table *schema.Table, existing Record) error {
	_, err := g.checker.Authorize(ctx, p, schema.OpDelete, table, existing)
	return err
}

// Authorize evaluates the table rule for op without a record. Batch
// requests use it to fail fast before touching any row.
func (g *Guard) Authorize(ctx context.Context, p *rbac.Principal, op schema.Operation, table *schema.Table) error {
	rule := table.Permissions.Rule(op)
	if rule != nil && rule.Kind() == schema.RuleOwner && !p.Anonymous() {
		// Ownership is decided per row.
		return nil
	}
	_, err := g.checker.Authorize(ctx, p, op, table, nil)
	return err
}

// Mask returns a copy of rec holding only the columns p may read
func (g *Guard) Mask(p *rbac.Principal, table *schema.Table, rec Record) Record {
	mask := g.checker.Evaluator().MaskFields(p, table, rec)
	out := make(Record, len(rec))
	for k, v := range rec {
		if mask.CanRead(k) {
			out[k] = v
		}
	}
	return out
}

// checkFields rejects readonly and field-denied keys in input. Keys that
// are not columns are left for value validation.
func (g *Guard) checkFields(ctx context.Context, p *rbac.Principal, table *schema.Table, op schema.Operation, input map[string]interface{}, mask rbac.FieldMask) error {
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !table.HasColumn(k) || k == schema.ColumnOrganizationID {
			continue
		}
		if table.IsReadonly(k) {
			return g.checker.DenyField(ctx, p, table, op, fmt.Sprintf("Cannot set readonly field '%s'", k))
		}
		if !mask.CanWrite(k) {
			return g.checker.DenyField(ctx, p, table, op, fmt.Sprintf("Cannot write field '%s'", k))
		}
	}
	return nil
}

func clone(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
