package records

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/rowguard/pkg/audit"
	"github.com/platinummonkey/rowguard/pkg/rbac"
	"github.com/platinummonkey/rowguard/pkg/schema"
)

const testSchema = `
auth:
  roles: [{name: hr-manager, level: 60}]
tables:
  - name: employees
    organizationScoped: true
    fields:
      - {name: name, required: true}
      - {name: email, type: email, unique: true}
      - {name: salary, type: decimal}
      - {name: owner_id, type: uuid}
      - {name: badge, readonly: true}
      - {name: active, type: boolean, default: true}
    permissions:
      read: authenticated
      create: {roles: [admin, hr-manager, member]}
      update: {owner: owner_id}
      delete: {roles: [admin]}
      fields:
        - field: salary
          read: {roles: [admin, hr-manager]}
          write: {roles: [admin]}
  - name: projects
    organizationScoped: true
    fields: [{name: title}]
    permissions:
      read: authenticated
      create: {roles: [admin]}
`

const (
	orgID     = "9f6f2c1e-0c55-4a35-9a51-7d6a6f0d1e01"
	adminID   = "0b8a1c6e-6a43-4a0e-8a63-2d2f4b9c0a01"
	memberID  = "0b8a1c6e-6a43-4a0e-8a63-2d2f4b9c0a02"
	hrID      = "0b8a1c6e-6a43-4a0e-8a63-2d2f4b9c0a03"
	recordID  = "5d1c8f0a-3b7e-4f6b-9a1d-2c3e4f5a6b01"
	otherOrg  = "9f6f2c1e-0c55-4a35-9a51-7d6a6f0d1e02"
	unknownID = "5d1c8f0a-3b7e-4f6b-9a1d-2c3e4f5a6bff"
)

type recordingAudit struct{ events []*audit.Event }

func (r *recordingAudit) Log(_ context.Context, e *audit.Event) error {
	r.events = append(r.events, e)
	return nil
}
func (r *recordingAudit) Close() error { return nil }

type fakeMembers map[string]string

func (f fakeMembers) MemberRole(_ context.Context, org, user string) (string, bool, error) {
	role, ok := f[org+"/"+user]
	return role, ok, nil
}

type fakeUsers struct{}

func (fakeUsers) GlobalRole(context.Context, string) (string, error) { return "", nil }

func newTestChecker(t *testing.T) (*rbac.Checker, *recordingAudit) {
	t.Helper()
	s, err := schema.Parse([]byte(testSchema))
	require.NoError(t, err)
	policy, err := rbac.Compile(s)
	require.NoError(t, err)

	members := fakeMembers{
		orgID + "/" + adminID:  rbac.RoleAdmin,
		orgID + "/" + memberID: rbac.RoleMember,
		orgID + "/" + hrID:     "hr-manager",
	}
	rec := &recordingAudit{}
	return rbac.NewChecker(policy, rbac.NewResolver(policy, members, fakeUsers{}), nil, rec), rec
}

func principal(userID, role string) *rbac.Principal {
	return &rbac.Principal{UserID: userID, OrganizationID: orgID, Role: role, Scope: rbac.ScopeOrganization}
}

func session(userID string) *rbac.SessionContext {
	return &rbac.SessionContext{UserID: userID, ActiveOrganizationID: orgID}
}

func mustTable(t *testing.T, c *rbac.Checker, name string) *schema.Table {
	t.Helper()
	table, ok := c.Policy().Table(name)
	require.True(t, ok)
	return table
}
