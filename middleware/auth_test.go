package middleware

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"aslab_go/cache"
	"aslab_go/config"
	"aslab_go/database"
	"aslab_go/database/dbtest"
	"aslab_go/models"
	"aslab_go/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) {
	t.Helper()
	prevCfg, prevDB, prevCache := config.AppConfig, database.DB, database.Cache
	store := cache.NewMemoryStore(time.Minute)
	config.AppConfig = &config.Config{JWTSecret: "test-secret", JWTExpiresIn: time.Hour, RFIDDeviceKey: "dev-key"}
	database.DB = dbtest.Open(t)
	database.Cache = store
	t.Cleanup(func() {
		store.Close()
		config.AppConfig, database.DB, database.Cache = prevCfg, prevDB, prevCache
	})
}

func seed(t *testing.T, name, role string, active bool) models.User {
	t.Helper()
	u := models.User{Name: name, Email: name + "@lab.test", Password: "x", Role: role, IsActive: true}
	require.NoError(t, database.DB.Create(&u).Error)
	if !active {
		require.NoError(t, database.DB.Model(&u).Update("is_active", false).Error)
	}
	return u
}

func get(t *testing.T, app *fiber.App, path, token string, headers ...string) int {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestJWTMiddleware(t *testing.T) {
	setup(t)
	admin := seed(t, "admin", models.RoleAdmin, true)
	mhs := seed(t, "mhs", models.RoleMahasiswa, true)
	gone := seed(t, "gone", models.RoleAslab, false)
	perms := services.NewPermissionService(database.DB)
	require.NoError(t, perms.EnsureCatalogue(context.Background()))

	app := fiber.New()
	app.Use(JWTMiddleware())
	app.Get("/me", func(c *fiber.Ctx) error {
		u, err := GetCurrentUser(c)
		if err != nil {
			return err
		}
		return c.SendString(u.Email)
	})
	app.Get("/admin", RequireAdmin(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/roles", RequirePermission(perms, services.PermManageRoles), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Post("/logout", func(c *fiber.Ctx) error {
		claims, err := GetCurrentClaims(c)
		if err != nil {
			return err
		}
		return RevokeToken(c.UserContext(), claims)
	})

	adminTok, err := GenerateToken(&admin)
	require.NoError(t, err)
	mhsTok, err := GenerateToken(&mhs)
	require.NoError(t, err)
	goneTok, err := GenerateToken(&gone)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/me", ""))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/me", "garbage"))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/me", goneTok))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/me", "", "Authorization", adminTok))
	assert.Equal(t, fiber.StatusOK, get(t, app, "/me", adminTok))
	assert.Equal(t, fiber.StatusOK, get(t, app, "/me?token="+mhsTok, ""))

	assert.Equal(t, fiber.StatusOK, get(t, app, "/admin", adminTok))
	assert.Equal(t, fiber.StatusForbidden, get(t, app, "/admin", mhsTok))
	assert.Equal(t, fiber.StatusOK, get(t, app, "/roles", adminTok))
	assert.Equal(t, fiber.StatusForbidden, get(t, app, "/roles", mhsTok))

	req := httptest.NewRequest("POST", "/logout", nil)
	req.Header.Set("Authorization", "Bearer "+mhsTok)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/me", mhsTok))
}

func TestDeviceKey(t *testing.T) {
	setup(t)
	app := fiber.New()
	app.Get("/rfid", DeviceKey(), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/rfid", ""))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/rfid", "", "X-Device-Key", "nope"))
	assert.Equal(t, fiber.StatusOK, get(t, app, "/rfid", "", "X-Device-Key", "dev-key"))

	config.AppConfig.RFIDDeviceKey = ""
	assert.Equal(t, fiber.StatusOK, get(t, app, "/rfid", ""))
}

type chanRecorder struct {
	got chan models.ActivityLog
}

func (r *chanRecorder) Record(_ context.Context, e models.ActivityLog) error {
	r.got <- e
	return nil
}

func TestLogActivityMiddleware(t *testing.T) {
	rec := &chanRecorder{got: make(chan models.ActivityLog, 4)}
	SetActivityRecorder(rec)
	t.Cleanup(func() { SetActivityRecorder(nil) })

	app := fiber.New()
	app.Use(LogActivityMiddleware())
	app.Delete("/api/aset/:id", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })
	app.Post("/api/loans", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusUnprocessableEntity) })
	app.Get("/api/aset", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	for _, r := range []struct{ method, path string }{
		{"GET", "/api/aset"}, {"POST", "/api/loans"}, {"DELETE", "/api/aset/12"},
	} {
		_, err := app.Test(httptest.NewRequest(r.method, r.path, nil))
		require.NoError(t, err)
	}

	select {
	case e := <-rec.got:
		assert.Equal(t, "DELETE", e.Action)
		assert.Equal(t, "aset", e.Resource)
		assert.EqualValues(t, 12, e.ResourceID)
		assert.Contains(t, string(e.Details), "integrity_hash")
	case <-time.After(2 * time.Second):
		t.Fatal("activity not recorded")
	}
	select {
	case e := <-rec.got:
		t.Fatalf("unexpected entry %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestResourceFromPath(t *testing.T) {
	assert.Equal(t, "aset", resourceFromPath("/api/aset/3"))
	assert.Equal(t, "health", resourceFromPath("/health"))
}
