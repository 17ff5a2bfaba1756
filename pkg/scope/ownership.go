package scope

import (
	"fmt"

	"github.com/platinummonkey/rowguard/pkg/apperrors"
	"github.com/platinummonkey/rowguard/pkg/rbac"
	"github.com/platinummonkey/rowguard/pkg/schema"
)

// InjectOwnership stamps a new record with the active organization and
// with the principal as owner of every owner column the table's rules
// reference. A client-supplied owner is overwritten; a client-supplied
// organization_id must match the active organization.
func InjectOwnership(p *rbac.Principal, table *schema.Table, values map[string]interface{}) error {
	if table.OrganizationScoped {
		if v, ok := values[schema.ColumnOrganizationID]; ok && v != nil && fmt.Sprint(v) != p.OrganizationID {
			return apperrors.Forbidden("Cannot create records for different organization")
		}
		values[schema.ColumnOrganizationID] = p.OrganizationID
	}

	if p.Anonymous() || p.UserID == "" {
		return nil
	}
	for _, field := range table.OwnerFields() {
		values[field] = p.UserID
	}
	return nil
}

// CheckMove rejects updates that would move a record out of the active
// organization. A matching organization_id is dropped from values.
func CheckMove(p *rbac.Principal, table *schema.Table, values map[string]interface{}) error {
	v, ok := values[schema.ColumnOrganizationID]
	if !ok || !table.OrganizationScoped {
		return nil
	}
	if v == nil || fmt.Sprint(v) != p.OrganizationID {
		return apperrors.Forbidden("Cannot move records to a different organization")
	}
	delete(values, schema.ColumnOrganizationID)
	return nil
}
