package main

import (
	"context"

	"aslab_go/config"
	"aslab_go/controllers"
	"aslab_go/database"
	"aslab_go/handlers"
	"aslab_go/routes"
	"aslab_go/services"
	"aslab_go/services/notifications"
	"aslab_go/services/websocket"
	"aslab_go/storage"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// application holds the services shared by the server and the CLI commands.
type application struct {
	hub    *websocket.Hub
	events *services.Dispatcher
	notifs *notifications.Service

	telegram *services.TelegramService
	line     *services.LineService

	perms         *services.PermissionService
	users         *services.UserService
	auth          *services.AuthService
	attendance    *services.AttendanceService
	rfid          *services.RFIDService
	dashboard     *services.DashboardService
	piket         *services.PiketService
	loans         *services.LoanService
	inventory     *services.InventoryService
	imports       *services.ImportService
	export        *services.ExportService
	praktikum     *services.PraktikumService
	reminders     *services.ReminderService
	semesters     *services.SemesterService
	logs          *services.LogArchiveService
	health        *services.HealthService
	loanReminders *services.LoanReminderScheduler
	bot           *services.TelegramBot
	linker        *services.LineLinker
}

func newApplication(ctx context.Context) *application {
	cfg := config.AppConfig
	loc := cfg.Location()
	db := database.DB

	var notifQueue *redis.Client
	if cfg.UseRedisNotifications {
		notifQueue = database.RedisClient
	}
	a := &application{
		hub:    websocket.NewHub(),
		events: services.NewDispatcher(true),
		notifs: notifications.NewService(db, notifQueue),
		line:   services.NewLineService(cfg.LineChannelSecret, cfg.LineChannelToken),
	}
	token := ""
	if cfg.TelegramEnabled {
		token = cfg.TelegramBotToken
	}
	a.telegram = services.NewTelegramService(token)

	a.notifs.SetWebSocketHub(a.hub)
	if a.telegram.Enabled() {
		a.notifs.SetTelegram(a.telegram)
	}
	if a.line.Enabled() {
		a.notifs.SetLine(a.line)
	}

	var mailer services.Mailer
	if cfg.SendgridAPIKey != "" {
		mailer = services.NewSendGridMailer(cfg.SendgridAPIKey, cfg.MailFromName, cfg.MailFromEmail)
	}
	var images services.ImageStore
	if s, err := storage.NewStorageService(); err != nil {
		logrus.WithError(err).Warn("image storage disabled")
	} else {
		images = s
	}

	a.perms = services.NewPermissionService(db)
	a.users = services.NewUserService(db, a.perms)
	a.auth = services.NewAuthService(db, a.perms, database.Cache, mailer, cfg.FrontendURL)
	a.attendance = services.NewAttendanceService(db, a.events, loc)
	a.rfid = services.NewRFIDService(db, database.Cache)
	a.dashboard = services.NewDashboardService(db, loc)
	a.piket = services.NewPiketService(db)
	a.loans = services.NewLoanService(db, a.notifs, loc)
	a.inventory = services.NewInventoryService(db, images)
	a.imports = services.NewImportService(db, a.perms)
	a.export = services.NewExportService(a.attendance, a.loans, loc)
	a.praktikum = services.NewPraktikumService(db, loc)
	a.reminders = services.NewReminderService(db, a.telegram, loc, cfg.TelegramAdminChatID)
	a.semesters = services.NewSemesterService(db)
	a.logs = services.NewLogArchiveService(ctx, db, database.RedisClient, cfg.AWSRegion, cfg.LogArchiveBucket)
	a.health = services.NewHealthService(db, database.RedisClient, cfg.AppName, cfg.AppEnv)
	a.loanReminders = services.NewLoanReminderScheduler(db, a.notifs, database.Cache, loc)
	a.bot = services.NewTelegramBot(db, a.telegram, a.reminders, cfg.TelegramAdminChatID)
	a.linker = services.NewLineLinker(db)

	a.events.Subscribe(services.NewAttendanceNotifier(database.Cache, a.telegram, loc))
	a.events.Subscribe(services.NewDashboardBroadcaster(a.dashboard, a.hub))
	return a
}

func (a *application) scheduleManager() *services.ScheduleManager {
	return services.NewScheduleManager(services.ScheduleJobs{
		Reminders:     a.reminders,
		Semesters:     a.semesters,
		Logs:          a.logs,
		LoanReminders: a.loanReminders,
		DailyReport:   config.AppConfig.DailyReportEnabled,
	}, config.AppConfig.Location())
}

func (a *application) handlers() routes.Handlers {
	cfg := config.AppConfig
	loc := cfg.Location()
	return routes.Handlers{
		Perms:         a.perms,
		Auth:          controllers.NewAuthController(a.auth),
		Users:         controllers.NewUserController(a.users),
		Roles:         controllers.NewRoleController(a.perms),
		RFID:          controllers.NewRFIDController(a.attendance, a.rfid),
		Attendance:    controllers.NewAttendanceController(a.attendance, a.export, loc),
		Dashboard:     controllers.NewDashboardController(a.dashboard),
		Piket:         controllers.NewPiketController(a.piket),
		Loans:         controllers.NewLoanController(a.loans, a.export, loc),
		Inventory:     controllers.NewInventoryController(a.inventory),
		Imports:       controllers.NewImportController(a.imports),
		Praktikum:     controllers.NewPraktikumController(a.praktikum),
		Telegram:      controllers.NewTelegramController(a.bot, a.telegram, a.reminders, cfg.TelegramWebhookURL, cfg.TelegramWebhookSecret),
		Notifications: controllers.NewNotificationController(a.notifs, a.loans, loc),
		Health:        controllers.NewHealthController(a.health),
		Logs:          controllers.NewLogController(a.logs),
		WebSocket:     controllers.NewWebSocketController(a.hub),
		Line:          handlers.NewLineWebhookHandler(a.line, a.linker),
	}
}
