package rbac

import (
	"context"
	"fmt"

	"github.com/platinummonkey/rowguard/pkg/apperrors"
	"github.com/platinummonkey/rowguard/pkg/audit"
	"github.com/platinummonkey/rowguard/pkg/observability"
	"github.com/platinummonkey/rowguard/pkg/schema"
)

// Checker combines role resolution and rule evaluation and turns denials
// into application errors. Every denial is counted and audited.
type Checker struct {
	policy    *Policy
	resolver  *Resolver
	evaluator *Evaluator
	metrics   *observability.Metrics
	audit     audit.Logger
}

// NewChecker creates a checker. metrics may be nil.
func NewChecker(policy *Policy, resolver *Resolver, metrics *observability.Metrics, auditLogger audit.Logger) *Checker {
	if auditLogger == nil {
		auditLogger = audit.Nop()
	}
	return &Checker{
		policy:    policy,
		resolver:  resolver,
		evaluator: NewEvaluator(),
		metrics:   metrics,
		audit:     auditLogger,
	}
}

// Policy returns the compiled policy
func (c *Checker) Policy() *Policy {
	return c.policy
}

// Evaluator returns the rule evaluator
func (c *Checker) Evaluator() *Evaluator {
	return c.evaluator
}

// Principal resolves the effective role for sess on table. A resolver
// denial becomes an Unauthenticated or Forbidden error.
func (c *Checker) Principal(ctx context.Context, sess *SessionContext, table *schema.Table) (*Principal, error) {
	res, err := c.resolver.Resolve(ctx, sess, table)
	if err != nil {
		return nil, err
	}

	scope := res.Principal.Scope
	if c.metrics != nil {
		c.metrics.RoleResolutionTotal.WithLabelValues(string(scope)).Inc()
	}

	if res.Denied {
		c.recordDenial(ctx, &res.Principal, table.Name, "resolve", res.Reason)
		if res.Kind == DenyUnauthenticated {
			return nil, apperrors.Unauthenticated(res.Reason)
		}
		return nil, apperrors.Forbidden(res.Reason)
	}

	p := res.Principal
	return &p, nil
}

// Authorize evaluates the table rule for op. On success it returns the
// decision so that read callers can apply an owner filter.
func (c *Checker) Authorize(ctx context.Context, p *Principal, op schema.Operation, table *schema.Table, record map[string]interface{}) (Decision, error) {
	d := c.evaluator.Evaluate(p, op, table, record)
	if d.Allowed {
		c.count(table.Name, op, "allowed")
		return d, nil
	}

	c.recordDenial(ctx, p, table.Name, string(op), d.Reason)
	if d.Kind == DenyUnauthenticated {
		c.count(table.Name, op, "unauthenticated")
		return d, apperrors.Unauthenticated(d.Reason)
	}
	c.count(table.Name, op, "denied")
	return d, apperrors.Forbidden(d.Reason)
}

// DenyField records and returns a field-level denial
func (c *Checker) DenyField(ctx context.Context, p *Principal, table *schema.Table, op schema.Operation, message string) error {
	c.count(table.Name, op, "denied")
	c.recordDenial(ctx, p, table.Name, string(op), message)
	return apperrors.Forbidden(message)
}

func (c *Checker) count(table string, op schema.Operation, outcome string) {
	if c.metrics != nil {
		c.metrics.AuthzDecisionsTotal.WithLabelValues(table, string(op), outcome).Inc()
	}
}

func (c *Checker) recordDenial(ctx context.Context, p *Principal, table, op, reason string) {
	event := audit.NewEvent(ctx, audit.EventTypeAuthzAccessDenied, audit.EventStatusDenied)
	if p != nil {
		event.UserID = p.UserID
		event.OrganizationID = p.OrganizationID
		event.Role = p.Role
	}
	event.ResourceType = audit.ResourceTypeTable
	event.ResourceID = table
	event.Message = reason
	event.Metadata = map[string]interface{}{"operation": op}

	if err := c.audit.Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).Warn(fmt.Sprintf("failed to audit denial on %s", table))
	}
}
