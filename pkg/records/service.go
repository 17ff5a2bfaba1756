package records

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/platinummonkey/rowguard/pkg/apperrors"
	"github.com/platinummonkey/rowguard/pkg/audit"
	"github.com/platinummonkey/rowguard/pkg/observability"
	"github.com/platinummonkey/rowguard/pkg/rbac"
	"github.com/platinummonkey/rowguard/pkg/schema"
	"github.com/platinummonkey/rowguard/pkg/scope"
)

// DefaultPageSize bounds list responses when the client sets no limit
const DefaultPageSize = 100

// MaxPageSize is the largest page a client may request
const MaxPageSize = 1000

// Page is one page of a list
type Page struct {
	Records []Record `json:"records"`
	Total   int64    `json:"total"`
}

// Service performs single-record operations. Each call resolves the
// principal, runs in its own transaction with row-level security variables
// set and records an audit event for mutations.
type Service struct {
	db      *sql.DB
	checker *rbac.Checker
	store   *Store
	guard   *Guard
	audit   audit.Logger
}

// NewService creates a record service
func NewService(db *sql.DB, checker *rbac.Checker, auditLogger audit.Logger) *Service {
	if auditLogger == nil {
		auditLogger = audit.Nop()
	}
	return &Service{
		db:      db,
		checker: checker,
		store:   NewStore(),
		guard:   NewGuard(checker),
		audit:   auditLogger,
	}
}

// Store returns the record store
func (s *Service) Store() *Store { return s.store }

// Guard returns the write guard
func (s *Service) Guard() *Guard { return s.guard }

// Table looks up a declared table. Unknown tables are not found.
func (s *Service) Table(name string) (*schema.Table, error) {
	t, ok := s.checker.Policy().Table(name)
	if !ok {
		return nil, apperrors.NotFoundf("Table '%s' not found", name)
	}
	return t, nil
}

// Principal resolves the caller's effective role on a table
func (s *Service) Principal(ctx context.Context, sess *rbac.SessionContext, tableName string) (*schema.Table, *rbac.Principal, error) {
	table, err := s.Table(tableName)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.checker.Principal(ctx, sess, table)
	if err != nil {
		return nil, nil, err
	}
	return table, p, nil
}

// InTx runs fn in a transaction carrying p's session variables. The
// transaction commits only if fn returns nil.
func (s *Service) InTx(ctx context.Context, p *rbac.Principal, fn func(tx *sql.Tx) error) error {
	tx, err := scope.BeginScoped(ctx, s.db, p)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			observability.FromContext(ctx).WithError(rbErr).Warn("failed to roll back transaction")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// List returns the visible, masked rows of a table
func (s *Service) List(ctx context.Context, sess *rbac.SessionContext, tableName string, opts ListOptions) (*Page, error) {
	table, p, err := s.Principal(ctx, sess, tableName)
	if err != nil {
		return nil, err
	}
	decision, err := s.guard.ReadDecision(ctx, p, table)
	if err != nil {
		return nil, err
	}

	if opts.Limit <= 0 {
		opts.Limit = DefaultPageSize
	}
	if opts.Limit > MaxPageSize {
		opts.Limit = MaxPageSize
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	pred := scope.Filter(p, table, decision)
	page := &Page{Records: []Record{}}
	err = s.InTx(ctx, p, func(tx *sql.Tx) error {
		total, err := s.store.Count(ctx, tx, table, pred)
		if err != nil {
			return err
		}
		recs, err := s.store.List(ctx, tx, table, pred, opts)
		if err != nil {
			return err
		}
		page.Total = total
		for _, rec := range recs {
			page.Records = append(page.Records, s.guard.Mask(p, table, rec))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// Get returns one visible, masked row
func (s *Service) Get(ctx context.Context, sess *rbac.SessionContext, tableName, id string) (Record, error) {
	table, p, err := s.Principal(ctx, sess, tableName)
	if err != nil {
		return nil, err
	}
	decision, err := s.guard.ReadDecision(ctx, p, table)
	if err != nil {
		return nil, err
	}
	if err := CheckID(table, id); err != nil {
		return nil, err
	}

	var rec Record
	err = s.InTx(ctx, p, func(tx *sql.Tx) error {
		rec, err = s.store.Get(ctx, tx, table, scope.Filter(p, table, decision), id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.guard.Mask(p, table, rec), nil
}

// Create inserts one row
func (s *Service) Create(ctx context.Context, sess *rbac.SessionContext, tableName string, input map[string]interface{}) (Record, error) {
	table, p, err := s.Principal(ctx, sess, tableName)
	if err != nil {
		return nil, err
	}
	values, err := s.guard.PrepareCreate(ctx, p, table, input)
	if err != nil {
		return nil, err
	}

	var rec Record
	err = s.InTx(ctx, p, func(tx *sql.Tx) error {
		rec, err = s.store.Insert(ctx, tx, table, values)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.auditRecord(ctx, audit.EventTypeDataRecordCreate, p, table, rec)
	return s.guard.Mask(p, table, rec), nil
}

// Update changes one row. Rows outside the caller's scope are not found.
func (s *Service) Update(ctx context.Context, sess *rbac.SessionContext, tableName, id string, input map[string]interface{}) (Record, error) {
	table, p, err := s.Principal(ctx, sess, tableName)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Authorize(ctx, p, schema.OpUpdate, table); err != nil {
		return nil, err
	}
	if err := CheckID(table, id); err != nil {
		return nil, err
	}

	pred := scope.Filter(p, table, rbac.Decision{})
	var rec Record
	err = s.InTx(ctx, p, func(tx *sql.Tx) error {
		existing, err := s.store.Get(ctx, tx, table, pred, id, true)
		if err != nil {
			return err
		}
		values, err := s.guard.PrepareUpdate(ctx, p, table, existing, input)
		if err != nil {
			return err
		}
		rec, err = s.store.Update(ctx, tx, table, pred, id, values)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.auditRecord(ctx, audit.EventTypeDataRecordUpdate, p, table, rec)
	return s.guard.Mask(p, table, rec), nil
}

// Delete soft-deletes one row
func (s *Service) Delete(ctx context.Context, sess *rbac.SessionContext, tableName, id string) error {
	table, p, err := s.Principal(ctx, sess, tableName)
	if err != nil {
		return err
	}
	if err := s.guard.Authorize(ctx, p, schema.OpDelete, table); err != nil {
		return err
	}
	if err := CheckID(table, id); err != nil {
		return err
	}

	pred := scope.Filter(p, table, rbac.Decision{})
	var existing Record
	err = s.InTx(ctx, p, func(tx *sql.Tx) error {
		existing, err = s.store.Get(ctx, tx, table, pred, id, true)
		if err != nil {
			return err
		}
		if err := s.guard.CheckDelete(ctx, p, table, existing); err != nil {
			return err
		}
		_, err = s.store.SoftDelete(ctx, tx, table, pred, []string{id})
		return err
	})
	if err != nil {
		return err
	}

	s.auditRecord(ctx, audit.EventTypeDataRecordDelete, p, table, existing)
	return nil
}

// CheckID rejects keys that cannot match the primary key type as not
// found, so malformed and unknown ids are indistinguishable.
func CheckID(table *schema.Table, id string) error {
	var err error
	switch table.PrimaryKeyType() {
	case schema.TypeUUID:
		_, err = uuid.Parse(id)
	case schema.TypeInteger:
		_, err = strconv.ParseInt(id, 10, 64)
	}
	if err != nil {
		return notFound(table, id)
	}
	return nil
}

// RecordID returns the primary key of rec as a string
func RecordID(table *schema.Table, rec Record) string {
	v, ok := rec[table.PrimaryKey]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func (s *Service) auditRecord(ctx context.Context, eventType audit.EventType, p *rbac.Principal, table *schema.Table, rec Record) {
	event := audit.NewEvent(ctx, eventType, audit.EventStatusSuccess)
	event.UserID = p.UserID
	event.OrganizationID = p.OrganizationID
	event.Role = p.Role
	event.ResourceType = audit.ResourceTypeRecord
	event.ResourceID = RecordID(table, rec)
	event.Metadata = map[string]interface{}{"table": table.Name}

	if err := s.audit.Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("failed to write audit event")
	}
}
