package services

import (
	"context"
	"testing"

	"aslab_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func permFixture(t *testing.T) *PermissionService {
	t.Helper()
	svc := NewPermissionService(newDB(t))
	require.NoError(t, svc.EnsureCatalogue(context.Background()))
	return svc
}

func TestEnsureCatalogueIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := permFixture(t)
	require.NoError(t, svc.EnsureCatalogue(ctx))

	var perms int64
	svc.db.Model(&models.Permission{}).Count(&perms)
	assert.EqualValues(t, 12, perms)

	roles, err := svc.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 4)
	for _, r := range roles {
		assert.True(t, r.IsSystem)
		if r.Name == models.RoleAdmin {
			assert.Len(t, r.Permissions, 12)
		} else {
			assert.Len(t, r.Permissions, len(RoleDefaults[r.Name]), r.Name)
		}
	}
}

func TestSyncUserPermissionsAndCheck(t *testing.T) {
	ctx := context.Background()
	svc := permFixture(t)
	u := createUser(t, svc.db, "mhs", withRole(models.RoleMahasiswa))
	admin := createUser(t, svc.db, "root", withRole(models.RoleAdmin))

	require.NoError(t, svc.SyncUserPermissions(ctx, nil, &u, nil))
	names, err := svc.UserPermissions(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, []string{PermViewDashboard, PermViewLoans, PermViewPicketSchedule}, names)

	ok, err := svc.HasPermission(ctx, u, PermViewLoans)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = svc.HasPermission(ctx, u, PermApproveLoans)
	assert.False(t, ok)
	ok, _ = svc.HasPermission(ctx, admin, PermManageRoles)
	assert.True(t, ok)

	require.NoError(t, svc.SyncUserPermissions(ctx, nil, &u, []string{PermApproveLoans}))
	ok, _ = svc.HasPermission(ctx, u, PermApproveLoans)
	assert.True(t, ok, "direct grant")
	ok, _ = svc.HasPermission(ctx, u, PermViewLoans)
	assert.True(t, ok, "role grant still applies")
	names, _ = svc.UserPermissions(ctx, u)
	assert.Equal(t, []string{PermApproveLoans, PermViewDashboard, PermViewLoans, PermViewPicketSchedule}, names)

	err = svc.SyncUserPermissions(ctx, nil, &u, []string{"fly"})
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, svc.SyncUserPermissions(ctx, nil, &u, []string{}))
	ok, _ = svc.HasPermission(ctx, u, PermApproveLoans)
	assert.False(t, ok)
}

func TestRoleEditChangesMemberPermissions(t *testing.T) {
	ctx := context.Background()
	svc := permFixture(t)
	u := createUser(t, svc.db, "asisten", withRole(models.RoleAslab))
	require.NoError(t, svc.SyncUserPermissions(ctx, nil, &u, nil))

	ok, err := svc.HasPermission(ctx, u, PermApproveLoans)
	require.NoError(t, err)
	assert.True(t, ok)

	var aslab models.Role
	require.NoError(t, svc.db.Where("name = ?", models.RoleAslab).First(&aslab).Error)
	_, err = svc.SyncRolePermissions(ctx, aslab.ID, []string{PermViewDashboard})
	require.NoError(t, err)

	ok, err = svc.HasPermission(ctx, u, PermApproveLoans)
	require.NoError(t, err)
	assert.False(t, ok, "revoked from the role")
	names, err := svc.UserPermissions(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, []string{PermViewDashboard}, names)

	_, err = svc.SyncRolePermissions(ctx, aslab.ID, []string{PermViewDashboard, PermManageUsers})
	require.NoError(t, err)
	ok, _ = svc.HasPermission(ctx, u, PermManageUsers)
	assert.True(t, ok, "granted to the role")

	require.NoError(t, svc.EnsureCatalogue(ctx))
	ok, _ = svc.HasPermission(ctx, u, PermApproveLoans)
	assert.False(t, ok, "reseeding keeps role edits")
}

func TestRoleCRUD(t *testing.T) {
	ctx := context.Background()
	svc := permFixture(t)

	r, err := svc.CreateRole(ctx, "laboran")
	require.NoError(t, err)
	_, err = svc.CreateRole(ctx, "laboran")
	assert.ErrorIs(t, err, ErrConflict)
	_, err = svc.CreateRole(ctx, " ")
	assert.ErrorIs(t, err, ErrValidation)

	r, err = svc.UpdateRole(ctx, r.ID, "teknisi")
	require.NoError(t, err)
	assert.Equal(t, "teknisi", r.Name)

	r, err = svc.SyncRolePermissions(ctx, r.ID, []string{PermViewAssets, PermManageAssets})
	require.NoError(t, err)
	assert.Len(t, r.Permissions, 2)

	roles, _ := svc.ListRoles(ctx)
	var aslab models.Role
	for _, x := range roles {
		if x.Name == models.RoleAslab {
			aslab = x
		}
	}
	err = svc.DeleteRole(ctx, aslab.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, "Cannot delete system roles.", PublicMessage(err, ""))
	_, err = svc.UpdateRole(ctx, aslab.ID, "asisten")
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, svc.DeleteRole(ctx, r.ID))
	assert.ErrorIs(t, svc.DeleteRole(ctx, r.ID), ErrNotFound)
}

func TestGroupedPermissionsSkipsDashboard(t *testing.T) {
	g := GroupedPermissions()
	assert.NotContains(t, g, "dashboard")
	assert.Equal(t, []string{PermViewLoans, PermApproveLoans}, g["loans"])
	assert.Len(t, AllPermissions(), 12)
}
