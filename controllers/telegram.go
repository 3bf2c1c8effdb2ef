package controllers

import (
	"crypto/subtle"
	"encoding/json"
	"time"

	"aslab_go/services"
	"aslab_go/utils"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// TelegramController serves the bot webhook and the admin Telegram tools.
type TelegramController struct {
	bot        *services.TelegramBot
	telegram   *services.TelegramService
	reminders  *services.ReminderService
	webhookURL string
	secret     string
}

func NewTelegramController(bot *services.TelegramBot, telegram *services.TelegramService, reminders *services.ReminderService, webhookURL, secret string) *TelegramController {
	return &TelegramController{bot: bot, telegram: telegram, reminders: reminders, webhookURL: webhookURL, secret: secret}
}

type connectRequest struct {
	UserID uint   `json:"user_id" validate:"required"`
	ChatID string `json:"chat_id" validate:"required,notblank"`
}

type userIDRequest struct {
	UserID uint `json:"user_id" validate:"required"`
}

type notificationsRequest struct {
	UserID  uint `json:"user_id" validate:"required"`
	Enabled bool `json:"enabled"`
}

type customMessageRequest struct {
	UserIDs []uint `json:"user_ids" validate:"required,min=1"`
	Subject string `json:"subject" validate:"required,notblank,max=255"`
	Content string `json:"content" validate:"required,notblank,max=4000"`
}

type testMessageRequest struct {
	ChatID string `json:"chat_id" validate:"required,notblank"`
}

type remindRequest struct {
	Type string `json:"type" validate:"required,oneof=morning evening"`
}

// Webhook always answers 200 once the secret matches, so Telegram does not
// retry updates the bot chose to ignore.
func (tc *TelegramController) Webhook(c *fiber.Ctx) error {
	if tc.secret != "" {
		got := c.Get("X-Telegram-Bot-Api-Secret-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(tc.secret)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid secret token"})
		}
	}
	var update tgbotapi.Update
	if err := json.Unmarshal(c.Body(), &update); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid update"})
	}
	if err := tc.bot.HandleUpdate(c.UserContext(), update); err != nil {
		logrus.WithFields(logrus.Fields{"update_id": update.UpdateID, "error": err.Error()}).Error("telegram update failed")
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (tc *TelegramController) Connect(c *fiber.Ctx) error {
	var req connectRequest
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	u, err := tc.bot.Connect(c.UserContext(), req.UserID, req.ChatID)
	if err != nil {
		return respondServiceError(c, err, "Gagal menghubungkan Telegram")
	}
	return c.JSON(fiber.Map{"message": "Telegram berhasil terhubung", "user": utils.ToUserDTO(*u)})
}

func (tc *TelegramController) Disconnect(c *fiber.Ctx) error {
	var req userIDRequest
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	if err := tc.bot.Disconnect(c.UserContext(), req.UserID); err != nil {
		return respondServiceError(c, err, "Gagal memutus Telegram")
	}
	return c.JSON(fiber.Map{"message": "Telegram berhasil diputus"})
}

func (tc *TelegramController) ToggleNotifications(c *fiber.Ctx) error {
	var req notificationsRequest
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	if err := tc.bot.SetNotifications(c.UserContext(), req.UserID, req.Enabled); err != nil {
		return respondServiceError(c, err, "Gagal mengubah notifikasi")
	}
	return c.JSON(fiber.Map{"message": "Pengaturan notifikasi disimpan", "enabled": req.Enabled})
}

func (tc *TelegramController) SendTest(c *fiber.Ctx) error {
	var req testMessageRequest
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	if err := tc.telegram.SendMessage(c.UserContext(), req.ChatID, services.TestMessage(time.Now())); err != nil {
		logrus.WithError(err).Warn("telegram test message failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Gagal mengirim pesan test"})
	}
	return c.JSON(fiber.Map{"message": "Pesan test berhasil dikirim"})
}

func (tc *TelegramController) SendCustom(c *fiber.Ctx) error {
	var req customMessageRequest
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	sent, failed, err := tc.bot.SendCustom(c.UserContext(), req.UserIDs, req.Subject, req.Content)
	if err != nil {
		return respondServiceError(c, err, "Gagal mengirim pesan")
	}
	return c.JSON(fiber.Map{"message": "Pesan dikirim", "sent": sent, "failed": failed})
}

// SendReminders runs the piket reminder immediately.
func (tc *TelegramController) SendReminders(c *fiber.Ctx) error {
	var req remindRequest
	if ok, err := utils.BindAndValidate(c, &req); !ok {
		return err
	}
	sum, err := tc.reminders.SendPiketReminders(c.UserContext(), req.Type)
	if err != nil {
		return respondServiceError(c, err, "Gagal mengirim pengingat")
	}
	return c.JSON(fiber.Map{"message": "Pengingat piket diproses", "summary": sum})
}

func (tc *TelegramController) BotInfo(c *fiber.Ctx) error {
	info, err := tc.telegram.TestConnection(c.UserContext())
	if err != nil {
		return respondServiceError(c, err, "Gagal terhubung ke Telegram")
	}
	return c.JSON(fiber.Map{"bot": info})
}

func (tc *TelegramController) SetWebhook(c *fiber.Ctx) error {
	url := c.Query("url", tc.webhookURL)
	if url == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Webhook URL belum dikonfigurasi"})
	}
	if err := tc.telegram.SetWebhook(url, tc.secret); err != nil {
		return respondServiceError(c, err, "Gagal memasang webhook")
	}
	return c.JSON(fiber.Map{"message": "Webhook berhasil dipasang", "url": url})
}

func (tc *TelegramController) WebhookInfo(c *fiber.Ctx) error {
	info, err := tc.telegram.WebhookInfo()
	if err != nil {
		return respondServiceError(c, err, "Gagal mengambil info webhook")
	}
	return c.JSON(fiber.Map{"webhook": info})
}

func (tc *TelegramController) DeleteWebhook(c *fiber.Ctx) error {
	if err := tc.telegram.DeleteWebhook(); err != nil {
		return respondServiceError(c, err, "Gagal menghapus webhook")
	}
	return c.JSON(fiber.Map{"message": "Webhook berhasil dihapus"})
}
