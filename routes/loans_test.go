package routes

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"aslab_go/cache"
	"aslab_go/config"
	"aslab_go/controllers"
	"aslab_go/database"
	"aslab_go/database/dbtest"
	"aslab_go/middleware"
	"aslab_go/models"
	"aslab_go/services"
	"aslab_go/services/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLoanApp(t *testing.T) *fiber.App {
	t.Helper()
	prevCfg, prevDB, prevCache := config.AppConfig, database.DB, database.Cache
	store := cache.NewMemoryStore(time.Minute)
	config.AppConfig = &config.Config{JWTSecret: "test-secret", JWTExpiresIn: time.Hour}
	database.DB = dbtest.Open(t)
	database.Cache = store
	t.Cleanup(func() {
		store.Close()
		config.AppConfig, database.DB, database.Cache = prevCfg, prevDB, prevCache
	})

	perms := services.NewPermissionService(database.DB)
	require.NoError(t, perms.EnsureCatalogue(context.Background()))
	loans := services.NewLoanService(database.DB, notifications.NewService(database.DB, nil), time.UTC)

	app := fiber.New()
	SetupRoutes(app, Handlers{Perms: perms, Loans: controllers.NewLoanController(loans, nil, time.UTC)})
	return app
}

func loanUser(t *testing.T, name, role string) (models.User, string) {
	t.Helper()
	u := models.User{Name: name, Email: name + "@lab.test", Password: "x", Role: role, IsActive: true}
	require.NoError(t, database.DB.Create(&u).Error)
	token, err := middleware.GenerateToken(&u)
	require.NoError(t, err)
	return u, token
}

func TestLoanDeleteIsStaffOnly(t *testing.T) {
	app := setupLoanApp(t)
	owner, ownerToken := loanUser(t, "owner", models.RoleMahasiswa)
	_, otherToken := loanUser(t, "other", models.RoleMahasiswa)
	_, aslabToken := loanUser(t, "aslab", models.RoleAslab)

	jenis := models.JenisAset{NamaJenisAset: "Perkakas"}
	require.NoError(t, database.DB.Create(&jenis).Error)
	aset := models.AsetAslab{NamaAset: "Solder", JenisID: jenis.ID, KodeAset: "AST-001", Stok: 4, Status: "baik"}
	require.NoError(t, database.DB.Create(&aset).Error)
	loan := models.PeminjamanAset{AsetID: &aset.ID, UserID: &owner.ID, Stok: 2, Status: models.LoanApproved, TanggalPinjam: time.Now()}
	require.NoError(t, database.DB.Create(&loan).Error)

	del := func(token string) int {
		req := httptest.NewRequest("DELETE", fmt.Sprintf("/api/loans/%d", loan.ID), nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}
	state := func() (rows int64, stok int) {
		var a models.AsetAslab
		require.NoError(t, database.DB.Model(&models.PeminjamanAset{}).Count(&rows).Error)
		require.NoError(t, database.DB.First(&a, aset.ID).Error)
		return rows, a.Stok
	}

	assert.Equal(t, fiber.StatusForbidden, del(otherToken))
	assert.Equal(t, fiber.StatusForbidden, del(ownerToken))
	rows, stok := state()
	assert.EqualValues(t, 1, rows)
	assert.Equal(t, 4, stok)

	assert.Equal(t, fiber.StatusOK, del(aslabToken))
	rows, stok = state()
	assert.Zero(t, rows)
	assert.Equal(t, 6, stok)
}
