package seeders

import (
	"context"
	"testing"

	"aslab_go/database/dbtest"
	"aslab_go/models"
	"aslab_go/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	admin := AdminAccount{Email: "admin@lab.test", Password: "rahasia123"}

	require.NoError(t, SeedAll(ctx, db, admin))
	require.NoError(t, SeedAll(ctx, db, admin))

	var users []models.User
	require.NoError(t, db.Find(&users).Error)
	require.Len(t, users, 1)
	assert.Equal(t, "Administrator", users[0].Name)
	assert.True(t, users[0].IsActive)
	has, err := services.NewPermissionService(db).HasPermission(ctx, users[0], services.PermManageRoles)
	require.NoError(t, err)
	assert.True(t, has)

	var jenis, lokasi, roles int64
	db.Model(&models.JenisAset{}).Count(&jenis)
	db.Model(&models.Lokasi{}).Count(&lokasi)
	db.Model(&models.Role{}).Count(&roles)
	assert.EqualValues(t, len(defaultJenis), jenis)
	assert.EqualValues(t, len(defaultLokasi), lokasi)
	assert.EqualValues(t, 4, roles)
}

func TestSeedAdminRequiresCredentials(t *testing.T) {
	db := dbtest.Open(t)
	err := SeedAdmin(context.Background(), db, services.NewPermissionService(db), AdminAccount{})
	assert.Error(t, err)
}
