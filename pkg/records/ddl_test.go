package records

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/rowguard/pkg/schema"
)

func TestTableStatements(t *testing.T) {
	c, _ := newTestChecker(t)
	stmts := TableStatements(mustTable(t, c, "employees"))

	require.Len(t, stmts, 7)
	create := stmts[0]
	assert.Contains(t, create, `CREATE TABLE IF NOT EXISTS "employees"`)
	assert.Contains(t, create, `"id" uuid PRIMARY KEY`)
	assert.Contains(t, create, `"name" text NOT NULL`)
	assert.Contains(t, create, `"salary" numeric`)
	assert.Contains(t, create, `"active" boolean`)
	assert.Contains(t, create, `"organization_id" uuid NOT NULL REFERENCES organizations (id)`)
	assert.Contains(t, create, `"deleted_at" timestamptz`)

	assert.Equal(t, `CREATE UNIQUE INDEX IF NOT EXISTS "employees_email_key" ON "employees" ("organization_id", "email") WHERE "deleted_at" IS NULL`, stmts[1])
	assert.Contains(t, stmts[2], `"employees_organization_id_idx"`)
	assert.Equal(t, `ALTER TABLE "employees" ENABLE ROW LEVEL SECURITY`, stmts[3])
}

func TestTableStatements_IntegerKeyUnscoped(t *testing.T) {
	table := &schema.Table{
		Name:       "counters",
		PrimaryKey: "id",
		Fields:     []schema.Field{{Name: "id", Type: schema.TypeInteger}, {Name: "label", Type: schema.TypeText, Unique: true}},
	}

	stmts := TableStatements(table)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], `"id" bigserial PRIMARY KEY`)
	assert.NotContains(t, stmts[0], "organization_id")
	assert.Equal(t, `CREATE UNIQUE INDEX IF NOT EXISTS "counters_label_key" ON "counters" ("label") WHERE "deleted_at" IS NULL`, stmts[1])
}
