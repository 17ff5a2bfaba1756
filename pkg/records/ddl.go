package records

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/platinummonkey/rowguard/pkg/schema"
	"github.com/platinummonkey/rowguard/pkg/scope"
)

// sqlType maps a field type to its column type
func sqlType(t schema.FieldType) string {
	switch t {
	case schema.TypeInteger:
		return "bigint"
	case schema.TypeDecimal:
		return "numeric"
	case schema.TypeBoolean:
		return "boolean"
	case schema.TypeDatetime:
		return "timestamptz"
	case schema.TypeUUID:
		return "uuid"
	case schema.TypeJSON:
		return "jsonb"
	}
	return "text"
}

// TableStatements renders idempotent DDL for an application table: the
// table itself, unique indexes over live rows, the organization index and,
// for scoped tables, the row-level security policy.
func TableStatements(table *schema.Table) []string {
	name := pq.QuoteIdentifier(table.Name)

	cols := []string{primaryKeyColumn(table)}
	for _, f := range table.Fields {
		if f.Name == table.PrimaryKey {
			continue
		}
		col := fmt.Sprintf("%s %s", pq.QuoteIdentifier(f.Name), sqlType(f.Type))
		if f.Required {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}
	if table.OrganizationScoped {
		cols = append(cols, fmt.Sprintf("%s uuid NOT NULL REFERENCES organizations (id) ON DELETE CASCADE",
			pq.QuoteIdentifier(schema.ColumnOrganizationID)))
	}
	cols = append(cols,
		pq.QuoteIdentifier(schema.ColumnCreatedAt)+" timestamptz NOT NULL DEFAULT now()",
		pq.QuoteIdentifier(schema.ColumnUpdatedAt)+" timestamptz NOT NULL DEFAULT now()",
		pq.QuoteIdentifier(schema.ColumnDeletedAt)+" timestamptz",
	)

	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", name, strings.Join(cols, ",\n\t")),
	}

	for _, f := range table.Fields {
		if !f.Unique || f.Name == table.PrimaryKey {
			continue
		}
		// Uniqueness is per organization on scoped tables.
		keys := pq.QuoteIdentifier(f.Name)
		if table.OrganizationScoped {
			keys = pq.QuoteIdentifier(schema.ColumnOrganizationID) + ", " + keys
		}
		stmts = append(stmts, fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s) WHERE %s IS NULL",
			pq.QuoteIdentifier(fmt.Sprintf("%s_%s_key", table.Name, f.Name)), name, keys,
			pq.QuoteIdentifier(schema.ColumnDeletedAt)))
	}

	if table.OrganizationScoped {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			pq.QuoteIdentifier(table.Name+"_organization_id_idx"), name,
			pq.QuoteIdentifier(schema.ColumnOrganizationID)))
	}

	return append(stmts, scope.PolicyStatements(table)...)
}

func primaryKeyColumn(table *schema.Table) string {
	pk := pq.QuoteIdentifier(table.PrimaryKey)
	if table.PrimaryKeyType() == schema.TypeInteger {
		return pk + " bigserial PRIMARY KEY"
	}
	return pk + " uuid PRIMARY KEY"
}
