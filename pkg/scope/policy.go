package scope

import (
	"fmt"

	"github.com/lib/pq"

	"github.com/platinummonkey/rowguard/pkg/schema"
)

// PolicyName returns the name of the isolation policy on table
func PolicyName(table string) string {
	return table + "_org_isolation"
}

// PolicyStatements renders the row-level security DDL for an
// organization-scoped table. It returns nil for other tables. Rows are
// visible only inside the active organization and only to a resolved,
// non-anonymous role. FORCE makes the policy bind the table owner too.
func PolicyStatements(table *schema.Table) []string {
	if !table.OrganizationScoped {
		return nil
	}

	t := pq.QuoteIdentifier(table.Name)
	policy := pq.QuoteIdentifier(PolicyName(table.Name))
	check := fmt.Sprintf("%s::text = current_setting('%s', true) AND coalesce(current_setting('%s', true), '') NOT IN ('', '%s')",
		pq.QuoteIdentifier(schema.ColumnOrganizationID), VarOrganizationID, VarUserRole, anonymousRole)

	return []string{
		fmt.Sprintf("ALTER TABLE %s ENABLE ROW LEVEL SECURITY", t),
		fmt.Sprintf("ALTER TABLE %s FORCE ROW LEVEL SECURITY", t),
		fmt.Sprintf("DROP POLICY IF EXISTS %s ON %s", policy, t),
		fmt.Sprintf("CREATE POLICY %s ON %s USING (%s) WITH CHECK (%s)", policy, t, check, check),
	}
}
