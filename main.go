package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aslab_go/config"
	"aslab_go/database"
	"aslab_go/database/seeders"
	"aslab_go/middleware"
	"aslab_go/routes"
	"aslab_go/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rollbar/rollbar-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		logrus.WithError(err).Error("command failed")
		rollbar.Close()
		os.Exit(1)
	}
	rollbar.Close()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "aslab",
		Short:         "Aslab lab-assistant backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.LoadConfig()
			setupLogging(config.AppConfig)
			database.Connect()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			database.Close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server and the schedulers",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database tables",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := database.AutoMigrate(database.DB); err != nil {
					return err
				}
				logrus.Info("Database migration completed")
				return nil
			},
		},
		newSeedCmd(),
		&cobra.Command{
			Use:       "remind morning|evening",
			Short:     "Send the piket reminders now",
			ValidArgs: []string{services.ReminderMorning, services.ReminderEvening},
			Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
			RunE: func(cmd *cobra.Command, args []string) error {
				a := newApplication(cmd.Context())
				sum, err := a.reminders.SendPiketReminders(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", *sum)
				return nil
			},
		},
		&cobra.Command{
			Use:   "update-semesters",
			Short: "Increment the semester of every active mahasiswa and aslab",
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := services.NewSemesterService(database.DB).Increment(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d users updated\n", n)
				return nil
			},
		},
		newArchiveLogsCmd(),
		&cobra.Command{
			Use:   "daily-report",
			Short: "Send today's attendance report to the admin chat",
			RunE: func(cmd *cobra.Command, args []string) error {
				a := newApplication(cmd.Context())
				report, err := a.reminders.SendDailyReport(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", *report)
				return nil
			},
		},
		&cobra.Command{
			Use:   "loan-reminders",
			Short: "Notify borrowers about due and overdue loans",
			RunE: func(cmd *cobra.Command, args []string) error {
				a := newApplication(cmd.Context())
				sum, err := a.loanReminders.Check(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", *sum)
				return nil
			},
		},
		newTelegramCmd(),
	)
	return root
}

func newSeedCmd() *cobra.Command {
	var admin seeders.AdminAccount
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed permissions, roles, the first admin and lookup data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return seeders.SeedAll(cmd.Context(), database.DB, admin)
		},
	}
	cmd.Flags().StringVar(&admin.Name, "admin-name", os.Getenv("ADMIN_NAME"), "name of the first admin")
	cmd.Flags().StringVar(&admin.Email, "admin-email", os.Getenv("ADMIN_EMAIL"), "email of the first admin")
	cmd.Flags().StringVar(&admin.Password, "admin-password", os.Getenv("ADMIN_PASSWORD"), "password of the first admin")
	return cmd
}

func newArchiveLogsCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "archive-logs",
		Short: "Flush queued activity logs and archive old ones to S3",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := newApplication(cmd.Context())
			n, err := a.logs.Flush(cmd.Context())
			if err != nil {
				return err
			}
			archive, err := a.logs.Archive(cmd.Context(), days)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d queued logs flushed\n", n)
			if archive == nil {
				fmt.Fprintln(out, "no logs old enough to archive")
				return nil
			}
			fmt.Fprintf(out, "%d logs archived to %s\n", archive.RecordCount, archive.S3Key)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "archive logs older than this many days")
	return cmd
}

func newTelegramCmd() *cobra.Command {
	tg := &cobra.Command{Use: "telegram", Short: "Manage the Telegram bot webhook"}
	bot := func() *services.TelegramService {
		return services.NewTelegramService(config.AppConfig.TelegramBotToken)
	}

	var url string
	set := &cobra.Command{
		Use:   "set-webhook",
		Short: "Point the bot at this server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = config.AppConfig.TelegramWebhookURL
			}
			if url == "" {
				return fmt.Errorf("webhook url is required (--url or TELEGRAM_WEBHOOK_URL)")
			}
			if err := bot().SetWebhook(url, config.AppConfig.TelegramWebhookSecret); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "webhook set to %s\n", url)
			return nil
		},
	}
	set.Flags().StringVar(&url, "url", "", "public webhook url")

	tg.AddCommand(
		set,
		&cobra.Command{
			Use:   "webhook-info",
			Short: "Show the current webhook",
			RunE: func(cmd *cobra.Command, args []string) error {
				info, err := bot().WebhookInfo()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "url=%s pending=%d last_error=%q\n", info.URL, info.PendingUpdateCount, info.LastErrorMessage)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete-webhook",
			Short: "Remove the webhook",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := bot().DeleteWebhook(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "webhook deleted")
				return nil
			},
		},
	)
	return tg
}

func serve(ctx context.Context) error {
	cfg := config.AppConfig
	a := newApplication(ctx)
	go a.hub.Run()
	middleware.SetActivityRecorder(a.logs)

	stopWorker := make(chan struct{})
	a.notifs.StartWorker(stopWorker)

	schedules := a.scheduleManager()
	if err := schedules.Start(); err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(cfg.MaxFileSize),
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Device-Key",
	}))
	app.Use(middleware.LoggerMiddleware())

	routes.SetupRoutes(app, a.handlers())

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "Route not found",
			"path":   c.Path(),
			"method": c.Method(),
		})
	})

	errc := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{"port": cfg.Port, "env": cfg.AppEnv}).Infof("%s starting", cfg.AppName)
		errc <- app.Listen(":" + cfg.Port)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	var err error
	select {
	case err = <-errc:
	case s := <-sig:
		logrus.WithField("signal", s.String()).Info("shutting down")
		err = app.ShutdownWithTimeout(10 * time.Second)
	}

	schedules.Stop()
	close(stopWorker)
	a.events.Wait()
	a.hub.Stop()
	return err
}

// customErrorHandler handles application errors
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	entry := logrus.WithFields(logrus.Fields{
		"error":  err.Error(),
		"path":   c.Path(),
		"method": c.Method(),
		"ip":     c.IP(),
		"status": code,
	})
	if code >= fiber.StatusInternalServerError {
		entry.Error("Request error")
	} else {
		entry.Warn("Request error")
	}

	return c.Status(code).JSON(fiber.Map{
		"error":  message,
		"code":   code,
		"path":   c.Path(),
		"method": c.Method(),
	})
}
