package batch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/rowguard/pkg/apperrors"
	"github.com/platinummonkey/rowguard/pkg/audit"
	"github.com/platinummonkey/rowguard/pkg/observability"
	"github.com/platinummonkey/rowguard/pkg/rbac"
	"github.com/platinummonkey/rowguard/pkg/records"
	"github.com/platinummonkey/rowguard/pkg/schema"
	"github.com/platinummonkey/rowguard/pkg/scope"
)

// Coordinator runs batch requests against the record service
type Coordinator struct {
	svc     *records.Service
	maxSize int
	metrics *observability.Metrics
	audit   audit.Logger
}

// NewCoordinator creates a coordinator. maxSize <= 0 disables the limit;
// metrics may be nil.
func NewCoordinator(svc *records.Service, maxSize int, metrics *observability.Metrics, auditLogger audit.Logger) *Coordinator {
	if auditLogger == nil {
		auditLogger = audit.Nop()
	}
	return &Coordinator{svc: svc, maxSize: maxSize, metrics: metrics, audit: auditLogger}
}

// run carries the per-batch state through the phases
type run struct {
	req   Request
	table *schema.Table
	p     *rbac.Principal
	state State
}

// Run validates and applies req in one transaction
func (c *Coordinator) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	ctx, span := observability.Tracer().Start(ctx, "batch.Run", trace.WithAttributes(
		attribute.String("operation", string(req.Operation)),
		attribute.String("table", req.Table),
		attribute.Int("size", req.size()),
	))
	defer span.End()

	r := &run{req: req, state: StateValidating}
	result, err := c.run(ctx, r, span)

	outcome := string(StateCommitted)
	if err != nil {
		outcome = string(StateRejected)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if c.metrics != nil {
		op := string(req.Operation)
		c.metrics.BatchOperationsTotal.WithLabelValues(op, outcome).Inc()
		c.metrics.BatchOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		c.metrics.BatchSize.WithLabelValues(op).Observe(float64(req.size()))
	}

	logger := observability.FromContext(ctx).WithFields(map[string]interface{}{
		"operation": req.Operation,
		"table":     req.Table,
		"size":      req.size(),
		"state":     r.state,
	})
	if err != nil {
		logger.WithError(err).Info("batch rejected")
		return nil, err
	}
	logger.Debug("batch committed")

	c.auditBatch(ctx, r, result)
	if !req.ReturnRecords {
		result.Records = []records.Record{}
	}
	return result, nil
}

func (c *Coordinator) run(ctx context.Context, r *run, span trace.Span) (*Result, error) {
	if err := c.validateRequest(&r.req); err != nil {
		r.state = StateRejected
		return nil, err
	}

	table, p, err := c.svc.Principal(ctx, r.req.Session, r.req.Table)
	if err != nil {
		r.state = StateRejected
		return nil, err
	}
	r.table, r.p = table, p

	// Table rules that do not depend on the row are decided before a
	// transaction is opened. Upserts may need either rule, per row.
	if r.req.Operation != OpUpsert {
		if err := c.svc.Guard().Authorize(ctx, p, schema.Operation(r.req.Operation), table); err != nil {
			r.state = StateRejected
			return nil, err
		}
	}

	var prepared []map[string]interface{}
	if r.req.Operation == OpCreate {
		if prepared, err = c.prepareCreate(ctx, r); err != nil {
			r.state = StateRejected
			return nil, err
		}
	}

	var result *Result
	err = c.svc.InTx(ctx, p, func(tx *sql.Tx) error {
		var err error
		switch r.req.Operation {
		case OpCreate:
			result, err = c.create(ctx, tx, r, prepared, span)
		case OpUpdate:
			result, err = c.update(ctx, tx, r, span)
		case OpDelete:
			result, err = c.delete(ctx, tx, r, span)
		case OpUpsert:
			result, err = c.upsert(ctx, tx, r, span)
		}
		if err != nil {
			c.transition(r, span, StateRollingBack)
		}
		return err
	})
	if err != nil {
		c.transition(r, span, StateRejected)
		return nil, err
	}

	c.transition(r, span, StateCommitted)
	return result, nil
}

func (c *Coordinator) validateRequest(req *Request) error {
	switch req.Operation {
	case OpCreate, OpUpdate, OpUpsert:
		if len(req.Records) == 0 {
			return apperrors.Validation("No records provided")
		}
	case OpDelete:
		if len(req.IDs) == 0 {
			return apperrors.Validation("No ids provided")
		}
	default:
		return apperrors.Validationf("Unknown batch operation '%s'", req.Operation)
	}

	if c.maxSize > 0 && req.size() > c.maxSize {
		return apperrors.RateLimited(fmt.Sprintf("Batch of %d records exceeds the limit of %d", req.size(), c.maxSize))
	}

	if req.Operation == OpUpsert && len(req.FieldsToMergeOn) == 0 {
		return apperrors.Validation("fieldsToMergeOn is required for upsert")
	}
	return nil
}

func (c *Coordinator) transition(r *run, span trace.Span, to State) {
	span.AddEvent("batch.transition", trace.WithAttributes(
		attribute.String("from", string(r.state)),
		attribute.String("to", string(to)),
	))
	r.state = to
}

// prepareCreate checks and validates every input without touching the
// database
func (c *Coordinator) prepareCreate(ctx context.Context, r *run) ([]map[string]interface{}, error) {
	checked := make([]map[string]interface{}, len(r.req.Records))
	for i, input := range r.req.Records {
		values, err := c.svc.Guard().CheckCreate(ctx, r.p, r.table, input)
		if err != nil {
			return nil, atRecord(i, err)
		}
		checked[i] = values
	}
	return c.validateAll(r.table, checked, true)
}

func (c *Coordinator) create(ctx context.Context, tx *sql.Tx, r *run, prepared []map[string]interface{}, span trace.Span) (*Result, error) {
	guard, store := c.svc.Guard(), c.svc.Store()

	c.transition(r, span, StateApplying)
	result := &Result{Records: make([]records.Record, 0, len(prepared))}
	for i, values := range prepared {
		rec, err := store.Insert(ctx, tx, r.table, values)
		if err != nil {
			return nil, atRecord(i, err)
		}
		result.Created++
		result.Records = append(result.Records, guard.Mask(r.p, r.table, rec))
	}
	return result, nil
}

func (c *Coordinator) update(ctx context.Context, tx *sql.Tx, r *run, span trace.Span) (*Result, error) {
	guard, store := c.svc.Guard(), c.svc.Store()

	pk := r.table.PrimaryKey
	pred := scope.Filter(r.p, r.table, rbac.Decision{})
	ids := make([]string, len(r.req.Records))
	checked := make([]map[string]interface{}, len(r.req.Records))
	seen := make(map[string]bool, len(r.req.Records))

	for i, input := range r.req.Records {
		raw, ok := input[pk]
		if !ok || raw == nil {
			return nil, apperrors.Validationf("Record %d is missing primary key '%s'", i, pk)
		}
		id := fmt.Sprint(raw)
		if seen[id] {
			return nil, apperrors.Validationf("Record %d repeats primary key '%s'", i, id)
		}
		seen[id] = true
		if err := records.CheckID(r.table, id); err != nil {
			return nil, err
		}

		existing, err := store.Get(ctx, tx, r.table, pred, id, true)
		if err != nil {
			return nil, err
		}

		changes := make(map[string]interface{}, len(input))
		for k, v := range input {
			if k != pk {
				changes[k] = v
			}
		}
		values, err := guard.CheckUpdate(ctx, r.p, r.table, existing, changes)
		if err != nil {
			return nil, atRecord(i, err)
		}
		ids[i], checked[i] = id, values
	}
	prepared, err := c.validateAll(r.table, checked, false)
	if err != nil {
		return nil, err
	}

	c.transition(r, span, StateApplying)
	result := &Result{Records: make([]records.Record, 0, len(prepared))}
	for i, values := range prepared {
		rec, err := store.Update(ctx, tx, r.table, pred, ids[i], values)
		if err != nil {
			return nil, atRecord(i, err)
		}
		result.Updated++
		result.Records = append(result.Records, guard.Mask(r.p, r.table, rec))
	}
	return result, nil
}

// delete skips ids that are malformed or outside the caller's scope
func (c *Coordinator) delete(ctx context.Context, tx *sql.Tx, r *run, span trace.Span) (*Result, error) {
	guard, store := c.svc.Guard(), c.svc.Store()

	ids := make([]string, 0, len(r.req.IDs))
	for _, id := range r.req.IDs {
		if records.CheckID(r.table, id) == nil {
			ids = append(ids, id)
		}
	}

	result := &Result{Records: []records.Record{}}
	if len(ids) == 0 {
		c.transition(r, span, StateApplying)
		return result, nil
	}

	pred := scope.Filter(r.p, r.table, rbac.Decision{}).
		In(r.table.PrimaryKey, ids, pkSQLType(r.table))
	visible, err := store.List(ctx, tx, r.table, pred, records.ListOptions{ForUpdate: true})
	if err != nil {
		return nil, err
	}

	found := make([]string, 0, len(visible))
	for _, rec := range visible {
		if err := guard.CheckDelete(ctx, r.p, r.table, rec); err != nil {
			return nil, err
		}
		found = append(found, records.RecordID(r.table, rec))
	}

	c.transition(r, span, StateApplying)
	n, err := store.SoftDelete(ctx, tx, r.table, scope.Filter(r.p, r.table, rbac.Decision{}), found)
	if err != nil {
		return nil, err
	}
	result.Deleted = int(n)
	return result, nil
}

// upsert matches each input on the merge columns within the caller's
// scope. Matches are updated, misses inserted.
func (c *Coordinator) upsert(ctx context.Context, tx *sql.Tx, r *run, span trace.Span) (*Result, error) {
	guard, store := c.svc.Guard(), c.svc.Store()
	for _, f := range r.req.FieldsToMergeOn {
		if _, ok := r.table.Field(f); !ok {
			return nil, apperrors.Validationf("Unknown merge field '%s'", f)
		}
	}

	pred := scope.Filter(r.p, r.table, rbac.Decision{})
	existingIDs := make([]string, len(r.req.Records))
	checked := make([]map[string]interface{}, len(r.req.Records))
	creates := make([]bool, len(r.req.Records))
	seen := make(map[string]int, len(r.req.Records))

	for i, input := range r.req.Records {
		match := make(map[string]interface{}, len(r.req.FieldsToMergeOn))
		keyParts := make([]string, 0, len(r.req.FieldsToMergeOn))
		for _, f := range r.req.FieldsToMergeOn {
			v, ok := input[f]
			if !ok || v == nil {
				return nil, apperrors.Validationf("Record %d is missing merge field '%s'", i, f)
			}
			match[f] = v
			keyParts = append(keyParts, fmt.Sprint(v))
		}
		key := strings.Join(keyParts, "\x00")
		if j, dup := seen[key]; dup {
			return nil, apperrors.Validationf("Records %d and %d share the same merge key", j, i)
		}
		seen[key] = i

		existing, err := store.FindBy(ctx, tx, r.table, pred, match, true)
		if err != nil {
			return nil, err
		}

		var values map[string]interface{}
		if existing == nil {
			values, err = guard.CheckCreate(ctx, r.p, r.table, input)
			creates[i] = true
		} else {
			changes := make(map[string]interface{}, len(input))
			for k, v := range input {
				if _, isMergeKey := match[k]; !isMergeKey {
					changes[k] = v
				}
			}
			values, err = guard.CheckUpdate(ctx, r.p, r.table, existing, changes)
			existingIDs[i] = records.RecordID(r.table, existing)
		}
		if err != nil {
			return nil, atRecord(i, err)
		}
		checked[i] = values
	}

	prepared := make([]map[string]interface{}, len(checked))
	for i, values := range checked {
		v, err := guard.Validate(r.table, values, creates[i])
		if err != nil {
			return nil, atRecord(i, err)
		}
		prepared[i] = v
	}

	c.transition(r, span, StateApplying)
	result := &Result{Records: make([]records.Record, 0, len(prepared))}
	for i, values := range prepared {
		var rec records.Record
		var err error
		if creates[i] {
			rec, err = store.Insert(ctx, tx, r.table, values)
			result.Created++
		} else {
			rec, err = store.Update(ctx, tx, r.table, pred, existingIDs[i], values)
			result.Updated++
		}
		if err != nil {
			return nil, atRecord(i, err)
		}
		result.Records = append(result.Records, guard.Mask(r.p, r.table, rec))
	}
	return result, nil
}

func (c *Coordinator) validateAll(table *schema.Table, checked []map[string]interface{}, create bool) ([]map[string]interface{}, error) {
	out := make([]map[string]interface{}, len(checked))
	for i, values := range checked {
		v, err := c.svc.Guard().Validate(table, values, create)
		if err != nil {
			return nil, atRecord(i, err)
		}
		out[i] = v
	}
	return out, nil
}

// atRecord adds the failing record's index to client errors
func atRecord(i int, err error) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return appErr.WithDetail("record", fmt.Sprint(i))
	}
	return err
}

func pkSQLType(table *schema.Table) string {
	if table.PrimaryKeyType() == schema.TypeInteger {
		return "bigint"
	}
	return "uuid"
}

func (c *Coordinator) auditBatch(ctx context.Context, r *run, result *Result) {
	event := audit.NewEvent(ctx, audit.EventTypeDataBatch, audit.EventStatusSuccess)
	event.UserID = r.p.UserID
	event.OrganizationID = r.p.OrganizationID
	event.Role = r.p.Role
	event.ResourceType = audit.ResourceTypeTable
	event.ResourceID = r.table.Name
	event.Metadata = map[string]interface{}{
		"operation": r.req.Operation,
		"created":   result.Created,
		"updated":   result.Updated,
		"deleted":   result.Deleted,
	}
	if err := c.audit.Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("failed to write audit event")
	}
}
