package records

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/rowguard/pkg/apperrors"
	"github.com/platinummonkey/rowguard/pkg/rbac"
)

func TestGuard_PrepareCreate(t *testing.T) {
	c, _ := newTestChecker(t)
	g := NewGuard(c)
	employees := mustTable(t, c, "employees")
	projects := mustTable(t, c, "projects")
	ctx := context.Background()

	t.Run("admin may write salary", func(t *testing.T) {
		values, err := g.PrepareCreate(ctx, principal(adminID, rbac.RoleAdmin), employees,
			map[string]interface{}{"name": "Ada", "salary": json.Number("1000")})
		require.NoError(t, err)
		assert.Equal(t, "1000", values["salary"])
		assert.Equal(t, orgID, values["organization_id"])
		assert.Equal(t, adminID, values["owner_id"])
	})

	t.Run("member may not write salary", func(t *testing.T) {
		_, err := g.PrepareCreate(ctx, principal(memberID, rbac.RoleMember), employees,
			map[string]interface{}{"name": "Ada", "salary": json.Number("1000")})
		require.Error(t, err)
		assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))
		assert.Contains(t, err.Error(), "Cannot write field 'salary'")
	})

	t.Run("hr-manager reads but may not write salary", func(t *testing.T) {
		_, err := g.PrepareCreate(ctx, principal(hrID, "hr-manager"), employees,
			map[string]interface{}{"name": "Ada", "salary": json.Number("1000")})
		assert.ErrorContains(t, err, "Cannot write field 'salary'")
	})

	t.Run("table rule denies before anything else", func(t *testing.T) {
		_, err := g.PrepareCreate(ctx, principal(memberID, rbac.RoleMember), projects,
			map[string]interface{}{"bogus": 1})
		require.Error(t, err)
		assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))
		assert.Contains(t, err.Error(), "Role 'member' is not permitted to create records in table 'projects'")
	})

	t.Run("readonly field", func(t *testing.T) {
		_, err := g.PrepareCreate(ctx, principal(adminID, rbac.RoleAdmin), employees,
			map[string]interface{}{"name": "Ada", "badge": "B-1"})
		assert.ErrorContains(t, err, "Cannot set readonly field 'badge'")
	})

	t.Run("system columns are readonly", func(t *testing.T) {
		_, err := g.PrepareCreate(ctx, principal(adminID, rbac.RoleAdmin), employees,
			map[string]interface{}{"name": "Ada", "created_at": "2020-01-01T00:00:00Z"})
		assert.ErrorContains(t, err, "Cannot set readonly field 'created_at'")
	})

	t.Run("different organization", func(t *testing.T) {
		_, err := g.PrepareCreate(ctx, principal(adminID, rbac.RoleAdmin), employees,
			map[string]interface{}{"name": "Ada", "organization_id": otherOrg})
		require.Error(t, err)
		assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))
		assert.Contains(t, err.Error(), "Cannot create records for different organization")
	})

	t.Run("client owner is overwritten", func(t *testing.T) {
		values, err := g.PrepareCreate(ctx, principal(memberID, rbac.RoleMember), employees,
			map[string]interface{}{"name": "Ada", "owner_id": adminID})
		require.NoError(t, err)
		assert.Equal(t, memberID, values["owner_id"])
	})

	t.Run("validation runs after permission", func(t *testing.T) {
		_, err := g.PrepareCreate(ctx, principal(adminID, rbac.RoleAdmin), employees,
			map[string]interface{}{"name": "Ada", "email": "nope"})
		require.Error(t, err)
		assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	})
}

func TestGuard_PrepareUpdate(t *testing.T) {
	c, _ := newTestChecker(t)
	g := NewGuard(c)
	employees := mustTable(t, c, "employees")
	ctx := context.Background()

	existing := Record{"id": recordID, "name": "Ada", "owner_id": memberID, "organization_id": orgID}

	t.Run("owner may update", func(t *testing.T) {
		values, err := g.PrepareUpdate(ctx, principal(memberID, rbac.RoleMember), employees, existing,
			map[string]interface{}{"name": "Ada L."})
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{"name": "Ada L."}, values)
	})

	t.Run("non-owner may not update regardless of role", func(t *testing.T) {
		_, err := g.PrepareUpdate(ctx, principal(adminID, rbac.RoleAdmin), employees, existing,
			map[string]interface{}{"name": "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Cannot update record: not owned by current user")
	})

	t.Run("primary key is readonly", func(t *testing.T) {
		_, err := g.PrepareUpdate(ctx, principal(memberID, rbac.RoleMember), employees, existing,
			map[string]interface{}{"id": unknownID})
		assert.ErrorContains(t, err, "Cannot set readonly field 'id'")
	})

	t.Run("moving organization", func(t *testing.T) {
		_, err := g.PrepareUpdate(ctx, principal(memberID, rbac.RoleMember), employees, existing,
			map[string]interface{}{"organization_id": otherOrg})
		assert.ErrorContains(t, err, "Cannot move records to a different organization")
	})
}

func TestGuard_Mask(t *testing.T) {
	c, _ := newTestChecker(t)
	g := NewGuard(c)
	employees := mustTable(t, c, "employees")

	rec := Record{"id": recordID, "name": "Ada", "salary": json.Number("10"), "owner_id": memberID}

	masked := g.Mask(principal(memberID, rbac.RoleMember), employees, rec)
	_, hasSalary := masked["salary"]
	assert.False(t, hasSalary, "denied fields are removed, not nulled")
	assert.Equal(t, "Ada", masked["name"])

	masked = g.Mask(principal(hrID, "hr-manager"), employees, rec)
	assert.Equal(t, json.Number("10"), masked["salary"])
	assert.Len(t, rec, 4, "input is not modified")
}

func TestGuard_Authorize(t *testing.T) {
	c, _ := newTestChecker(t)
	g := NewGuard(c)
	employees := mustTable(t, c, "employees")
	ctx := context.Background()

	assert.NoError(t, g.Authorize(ctx, principal(memberID, rbac.RoleMember), "update", employees))
	assert.Error(t, g.Authorize(ctx, principal(memberID, rbac.RoleMember), "delete", employees))
	err := g.Authorize(ctx, &rbac.Principal{Scope: rbac.ScopeAnonymous}, "update", employees)
	assert.True(t, apperrors.IsKind(err, apperrors.KindUnauthenticated))
}
