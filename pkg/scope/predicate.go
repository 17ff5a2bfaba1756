package scope

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/platinummonkey/rowguard/pkg/rbac"
	"github.com/platinummonkey/rowguard/pkg/schema"
)

// Predicate is a WHERE clause with positional arguments. The zero value
// matches every row.
type Predicate struct {
	clauses []string
	args    []interface{}
}

// Eq adds "column" = $n
func (p *Predicate) Eq(column string, value interface{}) *Predicate {
	p.args = append(p.args, value)
	p.clauses = append(p.clauses, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(column), len(p.args)))
	return p
}

// In adds "column" = ANY($n::sqlType[])
func (p *Predicate) In(column string, values []string, sqlType string) *Predicate {
	p.args = append(p.args, pq.Array(values))
	p.clauses = append(p.clauses, fmt.Sprintf("%s = ANY($%d::%s[])", pq.QuoteIdentifier(column), len(p.args), sqlType))
	return p
}

// IsNull adds "column" IS NULL
func (p *Predicate) IsNull(column string) *Predicate {
	p.clauses = append(p.clauses, pq.QuoteIdentifier(column)+" IS NULL")
	return p
}

// Never makes the predicate match no rows
func (p *Predicate) Never() *Predicate {
	p.clauses = append(p.clauses, "FALSE")
	return p
}

// Clone returns an independent copy
func (p *Predicate) Clone() *Predicate {
	return &Predicate{
		clauses: append([]string(nil), p.clauses...),
		args:    append([]interface{}(nil), p.args...),
	}
}

// Where renders the clause including the WHERE keyword, or "" when empty
func (p *Predicate) Where() string {
	if len(p.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(p.clauses, " AND ")
}

// Args returns the positional arguments
func (p *Predicate) Args() []interface{} {
	return p.args
}

// Len returns the number of arguments, so callers can number further
// placeholders from Len()+1.
func (p *Predicate) Len() int {
	return len(p.args)
}

// Filter returns the predicate restricting table to rows p may see: the
// active organization on scoped tables, live rows only, and, when the read
// decision carries one, rows owned by the principal.
func Filter(p *rbac.Principal, table *schema.Table, decision rbac.Decision) *Predicate {
	pred := &Predicate{}

	if table.OrganizationScoped {
		if p == nil || p.OrganizationID == "" {
			pred.Never()
		} else {
			pred.Eq(schema.ColumnOrganizationID, p.OrganizationID)
		}
	}
	pred.IsNull(schema.ColumnDeletedAt)

	if decision.OwnerFilter != "" {
		if p.Anonymous() || p.UserID == "" {
			pred.Never()
		} else {
			pred.Eq(decision.OwnerFilter, p.UserID)
		}
	}

	return pred
}
