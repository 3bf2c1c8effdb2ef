package routes

import (
	"aslab_go/controllers"
	"aslab_go/handlers"
	"aslab_go/middleware"
	"aslab_go/services"

	"github.com/gofiber/fiber/v2"
)

// Handlers bundles the controllers mounted by SetupRoutes.
type Handlers struct {
	Perms *services.PermissionService

	Auth          *controllers.AuthController
	Users         *controllers.UserController
	Roles         *controllers.RoleController
	RFID          *controllers.RFIDController
	Attendance    *controllers.AttendanceController
	Dashboard     *controllers.DashboardController
	Piket         *controllers.PiketController
	Loans         *controllers.LoanController
	Inventory     *controllers.InventoryController
	Imports       *controllers.ImportController
	Praktikum     *controllers.PraktikumController
	Telegram      *controllers.TelegramController
	Notifications *controllers.NotificationController
	Health        *controllers.HealthController
	Logs          *controllers.LogController
	WebSocket     *controllers.WebSocketController
	Line          *handlers.LineWebhookHandler
}

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, h Handlers) {
	can := func(names ...string) fiber.Handler {
		return middleware.RequirePermission(h.Perms, names...)
	}

	app.Get("/health", h.Health.GetHealthStatus)
	app.Post("/webhook/line", h.Line.Handle)
	app.Get("/webhook/line", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "message": "LINE webhook endpoint ready (use POST for real events)"})
	})

	api := app.Group("/api")

	// Telegram calls this with its own secret header
	api.Post("/telegram/webhook", h.Telegram.Webhook)

	// RFID readers authenticate with X-Device-Key
	device := api.Group("/rfid", middleware.DeviceKey())
	device.Post("/scan", h.RFID.Scan)
	device.Get("/status", h.RFID.Status)
	device.Get("/mode", h.RFID.GetMode)
	device.Post("/register-scan", h.RFID.ScanForRegistration)
	device.Get("/piket/:rfid", h.Piket.Standalone)

	// Authentication routes (no middleware)
	auth := api.Group("/auth")
	auth.Post("/login", h.Auth.Login)
	auth.Post("/register", h.Auth.Register)
	auth.Post("/forgot-password", h.Auth.ForgotPassword)
	auth.Post("/reset-password", h.Auth.ResetPassword)

	protected := api.Group("/", middleware.JWTMiddleware(), middleware.LogActivityMiddleware())

	protected.Get("/auth/me", h.Auth.Me)
	protected.Post("/auth/refresh", h.Auth.Refresh)
	protected.Post("/auth/logout", h.Auth.Logout)
	protected.Put("/auth/password", h.Auth.ChangePassword)
	protected.Put("/auth/profile", h.Auth.UpdateProfile)

	// User management
	users := protected.Group("/users")
	users.Get("/aslabs", h.Users.Aslabs)
	users.Get("/", can(services.PermViewUsers), h.Users.GetUsers)
	users.Get("/:id", can(services.PermViewUsers), h.Users.GetUser)
	users.Post("/", can(services.PermManageUsers), h.Users.CreateUser)
	users.Put("/:id", can(services.PermManageUsers), h.Users.UpdateUser)
	users.Patch("/:id/toggle-status", can(services.PermManageUsers), h.Users.ToggleStatus)
	users.Delete("/:id", can(services.PermManageUsers), h.Users.DeleteUser)

	roles := protected.Group("/roles", can(services.PermManageRoles))
	roles.Get("/", h.Roles.List)
	roles.Get("/permissions", h.Roles.Permissions)
	roles.Post("/", h.Roles.Create)
	roles.Put("/:id", h.Roles.Update)
	roles.Delete("/:id", h.Roles.Delete)
	roles.Put("/:id/permissions", h.Roles.SyncPermissions)

	// RFID admin
	rfid := protected.Group("/admin/rfid", middleware.RequireStaff())
	rfid.Get("/logs", h.RFID.Logs)
	rfid.Get("/today", h.RFID.Today)
	rfid.Put("/mode", h.RFID.SetMode)
	rfid.Get("/last-scan", h.RFID.LastScan)
	rfid.Get("/users", h.RFID.Users)
	rfid.Post("/register", h.RFID.Register)
	rfid.Delete("/users/:id", h.RFID.Unregister)

	attendance := protected.Group("/attendance")
	attendance.Get("/history", can(services.PermViewAttendanceHistory), h.Attendance.History)
	attendance.Get("/export", can(services.PermViewAttendanceHistory), h.Attendance.Export)
	attendance.Post("/manual", middleware.RequireAdmin(), h.Attendance.Manual)
	attendance.Delete("/:id", middleware.RequireAdmin(), h.Attendance.Delete)

	dashboard := protected.Group("/dashboard", can(services.PermViewDashboard))
	dashboard.Get("/", h.Dashboard.Index)
	dashboard.Get("/stats", h.Dashboard.Stats)
	dashboard.Get("/attendances", h.Dashboard.Attendances)
	dashboard.Get("/most-active", h.Dashboard.MostActive)
	dashboard.Get("/chart", h.Dashboard.Chart)
	dashboard.Get("/day", h.Dashboard.DayDetail)
	dashboard.Get("/day/:date", h.Dashboard.DayDetail)

	piket := protected.Group("/piket")
	piket.Get("/", can(services.PermViewPicketSchedule), h.Piket.Index)
	piket.Post("/generate", middleware.RequireAdmin(), h.Piket.Generate)
	piket.Put("/users/:id", middleware.RequireAdmin(), h.Piket.UpdateUser)
	piket.Post("/swap", middleware.RequireAdmin(), h.Piket.Swap)
	piket.Post("/batch", middleware.RequireAdmin(), h.Piket.Batch)
	piket.Post("/reset", middleware.RequireAdmin(), h.Piket.Reset)

	loans := protected.Group("/loans", can(services.PermViewLoans))
	loans.Get("/", h.Loans.Index)
	loans.Get("/stats", h.Loans.Stats)
	loans.Get("/items", h.Loans.SearchItems)
	loans.Get("/export", middleware.RequireStaff(), h.Loans.Export)
	loans.Post("/", h.Loans.Store)
	loans.Post("/manual", can(services.PermApproveLoans), h.Loans.StoreManual)
	loans.Post("/bulk", can(services.PermApproveLoans), h.Loans.Bulk)
	loans.Get("/:id", h.Loans.Show)
	loans.Post("/:id/approve", can(services.PermApproveLoans), h.Loans.Approve)
	loans.Post("/:id/return", can(services.PermApproveLoans), h.Loans.Return)
	loans.Delete("/:id", can(services.PermApproveLoans), h.Loans.Delete)

	inv := protected.Group("/inventory", can(services.PermViewAssets))
	manage := can(services.PermManageAssets)
	inv.Get("/jenis", h.Inventory.ListJenis)
	inv.Post("/jenis", manage, h.Inventory.CreateJenis)
	inv.Put("/jenis/:id", manage, h.Inventory.UpdateJenis)
	inv.Delete("/jenis/:id", manage, h.Inventory.DeleteJenis)
	inv.Get("/lokasi", h.Inventory.ListLokasi)
	inv.Post("/lokasi", manage, h.Inventory.CreateLokasi)
	inv.Put("/lokasi/:id", manage, h.Inventory.UpdateLokasi)
	inv.Delete("/lokasi/:id", manage, h.Inventory.DeleteLokasi)
	inv.Get("/aset", h.Inventory.ListAset)
	inv.Get("/aset/generate-kode", manage, h.Inventory.GenerateKode)
	inv.Get("/aset/:id", h.Inventory.GetAset)
	inv.Post("/aset", manage, h.Inventory.CreateAset)
	inv.Put("/aset/:id", manage, h.Inventory.UpdateAset)
	inv.Delete("/aset/:id", manage, h.Inventory.DeleteAset)
	inv.Get("/bahan", h.Inventory.ListBahan)
	inv.Get("/bahan/:id", h.Inventory.GetBahan)
	inv.Post("/bahan", manage, h.Inventory.CreateBahan)
	inv.Put("/bahan/:id", manage, h.Inventory.UpdateBahan)
	inv.Delete("/bahan/:id", manage, h.Inventory.DeleteBahan)
	inv.Get("/usage", h.Inventory.ListUsage)
	inv.Post("/usage", manage, h.Inventory.RecordUsage)

	protected.Post("/import/:kind", middleware.RequireAdmin(), h.Imports.Import)

	prak := protected.Group("/praktikum", middleware.RequireStaff())
	prak.Get("/kelas", h.Praktikum.ListKelas)
	prak.Post("/kelas", h.Praktikum.SaveKelas)
	prak.Put("/kelas/:id", h.Praktikum.SaveKelas)
	prak.Delete("/kelas/:id", h.Praktikum.DeleteKelas)
	prak.Get("/mata-kuliah", h.Praktikum.ListMataKuliah)
	prak.Post("/mata-kuliah", h.Praktikum.SaveMataKuliah)
	prak.Post("/mata-kuliah/bulk-delete", h.Praktikum.BulkDeleteMataKuliah)
	prak.Put("/mata-kuliah/:id", h.Praktikum.SaveMataKuliah)
	prak.Delete("/mata-kuliah/:id", h.Praktikum.DeleteMataKuliah)
	prak.Get("/dosen", h.Praktikum.ListDosen)
	prak.Get("/dosen/options", h.Praktikum.DosenOptions)
	prak.Post("/dosen", h.Praktikum.SaveDosen)
	prak.Put("/dosen/:id", h.Praktikum.SaveDosen)
	prak.Delete("/dosen/:id", h.Praktikum.DeleteDosen)
	prak.Get("/kelas-praktikum", h.Praktikum.ListKelasPraktikum)
	prak.Post("/kelas-praktikum", h.Praktikum.SaveKelasPraktikum)
	prak.Put("/kelas-praktikum/:id", h.Praktikum.SaveKelasPraktikum)
	prak.Delete("/kelas-praktikum/:id", h.Praktikum.DeleteKelasPraktikum)
	prak.Get("/absensi", h.Praktikum.ListAbsensi)
	prak.Get("/absensi/recap", h.Praktikum.Recap)
	prak.Get("/absensi/:id", h.Praktikum.GetAbsensi)
	prak.Post("/absensi", h.Praktikum.SaveAbsensi)
	prak.Put("/absensi/:id", h.Praktikum.SaveAbsensi)
	prak.Delete("/absensi/:id", h.Praktikum.DeleteAbsensi)

	tg := protected.Group("/telegram", middleware.RequireAdmin())
	tg.Get("/bot", h.Telegram.BotInfo)
	tg.Post("/connect", h.Telegram.Connect)
	tg.Post("/disconnect", h.Telegram.Disconnect)
	tg.Put("/notifications", h.Telegram.ToggleNotifications)
	tg.Post("/test", h.Telegram.SendTest)
	tg.Post("/send", h.Telegram.SendCustom)
	tg.Post("/reminders", h.Telegram.SendReminders)
	tg.Post("/webhook/set", h.Telegram.SetWebhook)
	tg.Get("/webhook/info", h.Telegram.WebhookInfo)
	tg.Delete("/webhook", h.Telegram.DeleteWebhook)

	notif := protected.Group("/notifications")
	notif.Get("/", h.Notifications.GetNotifications)
	notif.Get("/unread-count", h.Notifications.UnreadCount)
	notif.Patch("/read-all", h.Notifications.MarkAllAsRead)
	notif.Patch("/:id/read", h.Notifications.MarkAsRead)

	logs := protected.Group("/logs", middleware.RequireAdmin())
	logs.Get("/", h.Logs.GetLogs)
	logs.Post("/archive", h.Logs.Archive)
	logs.Get("/archives", h.Logs.Archives)
	logs.Get("/archives/:id/download", h.Logs.Download)

	protected.Get("/ws/stats", middleware.RequireAdmin(), h.WebSocket.Stats)

	// WebSocket connection endpoint, token passed as ?token=
	app.Get("/ws", middleware.JWTMiddleware(), h.WebSocket.Upgrade, h.WebSocket.Handler())
}
