package records

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/platinummonkey/rowguard/pkg/apperrors"
	"github.com/platinummonkey/rowguard/pkg/schema"
	"github.com/platinummonkey/rowguard/pkg/scope"
)

// Querier is satisfied by *sql.Tx
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// ListOptions pages a list query
type ListOptions struct {
	Limit     int
	Offset    int
	ForUpdate bool
}

// Store runs dynamic SQL against application tables. Every method takes
// the predicate produced by scope.Filter so that no statement can reach
// rows outside the caller's scope.
type Store struct{}

// NewStore creates a record store
func NewStore() *Store {
	return &Store{}
}

// List returns one page of rows matching pred, oldest first
func (s *Store) List(ctx context.Context, q Querier, table *schema.Table, pred *scope.Predicate, opts ListOptions) ([]Record, error) {
	p := pred.Clone()
	query := fmt.Sprintf("SELECT %s FROM %s %s ORDER BY %s, %s",
		selectList(table), pq.QuoteIdentifier(table.Name), p.Where(),
		pq.QuoteIdentifier(schema.ColumnCreatedAt), pq.QuoteIdentifier(table.PrimaryKey))

	args := p.Args()
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	if opts.ForUpdate {
		query += " FOR UPDATE"
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table.Name, err)
	}
	return scanRecords(rows, table)
}

// Count returns the number of rows matching pred
func (s *Store) Count(ctx context.Context, q Querier, table *schema.Table, pred *scope.Predicate) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", pq.QuoteIdentifier(table.Name), pred.Where())

	rows, err := q.QueryContext(ctx, query, pred.Args()...)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table.Name, err)
	}
	defer rows.Close()

	var total int64
	if rows.Next() {
		if err := rows.Scan(&total); err != nil {
			return 0, fmt.Errorf("failed to scan count: %w", err)
		}
	}
	return total, rows.Err()
}

// Get returns the row with primary key id, locking it when forUpdate is
// set. A row outside pred is reported as not found.
func (s *Store) Get(ctx context.Context, q Querier, table *schema.Table, pred *scope.Predicate, id string, forUpdate bool) (Record, error) {
	p := pred.Clone().Eq(table.PrimaryKey, id)
	rec, err := s.first(ctx, q, table, p, forUpdate)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, notFound(table, id)
	}
	return rec, nil
}

// FindBy returns the first row whose columns equal match, or nil
func (s *Store) FindBy(ctx context.Context, q Querier, table *schema.Table, pred *scope.Predicate, match map[string]interface{}, forUpdate bool) (Record, error) {
	p := pred.Clone()
	for _, col := range sortedKeys(match) {
		p.Eq(col, match[col])
	}
	return s.first(ctx, q, table, p, forUpdate)
}

func (s *Store) first(ctx context.Context, q Querier, table *schema.Table, p *scope.Predicate, forUpdate bool) (Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s %s LIMIT 1", selectList(table), pq.QuoteIdentifier(table.Name), p.Where())
	if forUpdate {
		query += " FOR UPDATE"
	}

	rows, err := q.QueryContext(ctx, query, p.Args()...)
	if err != nil {
		return nil, classify(table, err)
	}
	recs, err := scanRecords(rows, table)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// Insert writes a new row. A uuid primary key is generated unless
// supplied; integer keys come from the table's sequence.
func (s *Store) Insert(ctx context.Context, q Querier, table *schema.Table, values map[string]interface{}) (Record, error) {
	row := make(map[string]interface{}, len(values)+1)
	for k, v := range values {
		row[k] = v
	}
	if _, ok := row[table.PrimaryKey]; !ok && table.PrimaryKeyType() == schema.TypeUUID {
		row[table.PrimaryKey] = uuid.NewString()
	}

	cols := sortedKeys(row)
	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, col := range cols {
		quoted[i] = pq.QuoteIdentifier(col)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[col]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		pq.QuoteIdentifier(table.Name), strings.Join(quoted, ", "), strings.Join(placeholders, ", "), selectList(table))

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(table, err)
	}
	recs, err := scanRecords(rows, table)
	if err != nil {
		return nil, classify(table, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("insert into %s returned no row", table.Name)
	}
	return recs[0], nil
}

// Update sets values on the row with primary key id and bumps updated_at
func (s *Store) Update(ctx context.Context, q Querier, table *schema.Table, pred *scope.Predicate, id string, values map[string]interface{}) (Record, error) {
	p := pred.Clone().Eq(table.PrimaryKey, id)
	args := append([]interface{}(nil), p.Args()...)

	sets := make([]string, 0, len(values)+1)
	for _, col := range sortedKeys(values) {
		args = append(args, values[col])
		sets = append(sets, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(col), len(args)))
	}
	sets = append(sets, pq.QuoteIdentifier(schema.ColumnUpdatedAt)+" = now()")

	query := fmt.Sprintf("UPDATE %s SET %s %s RETURNING %s",
		pq.QuoteIdentifier(table.Name), strings.Join(sets, ", "), p.Where(), selectList(table))

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(table, err)
	}
	recs, err := scanRecords(rows, table)
	if err != nil {
		return nil, classify(table, err)
	}
	if len(recs) == 0 {
		return nil, notFound(table, id)
	}
	return recs[0], nil
}

// SoftDelete marks the rows with the given keys deleted. Keys outside
// pred are skipped; the number of rows actually deleted is returned.
func (s *Store) SoftDelete(ctx context.Context, q Querier, table *schema.Table, pred *scope.Predicate, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	p := pred.Clone().In(table.PrimaryKey, ids, sqlType(table.PrimaryKeyType()))

	query := fmt.Sprintf("UPDATE %s SET %s = now(), %s = now() %s",
		pq.QuoteIdentifier(table.Name),
		pq.QuoteIdentifier(schema.ColumnDeletedAt), pq.QuoteIdentifier(schema.ColumnUpdatedAt),
		p.Where())

	res, err := q.ExecContext(ctx, query, p.Args()...)
	if err != nil {
		return 0, classify(table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

func selectList(table *schema.Table) string {
	cols := table.Columns()
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

func scanRecords(rows *sql.Rows, table *schema.Table) ([]Record, error) {
	defer rows.Close()

	cols := table.Columns()
	var out []Record
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table.Name, err)
		}

		rec := make(Record, len(cols))
		for i, c := range cols {
			rec[c] = decodeColumn(columnType(table, c), vals[i])
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// columnType returns the declared or implied type of a column
func columnType(table *schema.Table, col string) schema.FieldType {
	if f, ok := table.Field(col); ok {
		return f.Type
	}
	switch col {
	case schema.ColumnCreatedAt, schema.ColumnUpdatedAt, schema.ColumnDeletedAt:
		return schema.TypeDatetime
	}
	return schema.TypeUUID
}

// classify maps constraint violations to client errors and wraps the rest
func classify(table *schema.Table, err error) error {
	if classified := apperrors.FromPostgres(err); classified != err {
		return classified
	}
	return fmt.Errorf("query on %s failed: %w", table.Name, err)
}

func notFound(table *schema.Table, id string) error {
	return apperrors.NotFoundf("Record '%s' not found in table '%s'", id, table.Name)
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
