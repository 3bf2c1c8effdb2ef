package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"aslab_go/services"

	"github.com/gofiber/fiber/v2"
	"github.com/line/line-bot-sdk-go/linebot"
	"github.com/sirupsen/logrus"
)

// Replier answers a webhook event. *services.LineService implements it.
type Replier interface {
	ReplyText(ctx context.Context, replyToken, text string) error
}

type LineWebhookHandler struct {
	Secret  string
	Replier Replier
	Linker  *services.LineLinker
}

func NewLineWebhookHandler(line *services.LineService, linker *services.LineLinker) *LineWebhookHandler {
	h := &LineWebhookHandler{Secret: line.Secret(), Linker: linker}
	if line.Enabled() {
		h.Replier = line
	}
	return h
}

const lineHelp = "Kirim \"link <email>\" untuk menghubungkan akun Aslab dengan LINE ini."

// Handle receives LINE webhook events.
func (h *LineWebhookHandler) Handle(c *fiber.Ctx) error {
	if h.Secret == "" || h.Replier == nil {
		logrus.Warn("LINE webhook received while LINE is disabled")
		return c.SendStatus(fiber.StatusOK)
	}

	signature := c.Get("X-Line-Signature")
	if signature == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if !validateSignature(h.Secret, c.Body(), signature) {
		logrus.WithField("ip", c.IP()).Warn("LINE signature mismatch")
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	var webhook struct {
		Events []*linebot.Event `json:"events"`
	}
	if err := json.Unmarshal(c.Body(), &webhook); err != nil {
		logrus.WithError(err).Warn("failed to parse LINE events")
		return c.SendStatus(fiber.StatusBadRequest)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Second)
	defer cancel()
	for _, event := range webhook.Events {
		h.handleEvent(ctx, event)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *LineWebhookHandler) handleEvent(ctx context.Context, event *linebot.Event) {
	if event.Source == nil || event.Source.UserID == "" {
		return
	}
	lineID := event.Source.UserID
	log := logrus.WithFields(logrus.Fields{"line_user_id": lineID, "event": event.Type})

	var reply string
	switch event.Type {
	case linebot.EventTypeFollow:
		reply = fmt.Sprintf("Halo! LINE ID kamu: %s\n%s", lineID, lineHelp)
	case linebot.EventTypeUnfollow:
		if _, err := h.Linker.Unlink(ctx, lineID); err != nil {
			log.WithError(err).Error("LINE unlink failed")
		}
		return
	case linebot.EventTypeMessage:
		msg, ok := event.Message.(*linebot.TextMessage)
		if !ok {
			return
		}
		email, ok := services.ParseLinkCommand(msg.Text)
		if !ok {
			reply = lineHelp
			break
		}
		u, err := h.Linker.Link(ctx, lineID, email)
		if err != nil {
			reply = services.PublicMessage(err, "Gagal menghubungkan akun")
			if services.PublicMessage(err, "") == "" {
				log.WithError(err).Error("LINE link failed")
			}
			break
		}
		log.WithField("user_id", u.ID).Info("LINE account linked")
		reply = fmt.Sprintf("Akun %s berhasil terhubung. Notifikasi akan dikirim ke LINE ini.", u.Name)
	default:
		return
	}

	if event.ReplyToken == "" {
		return
	}
	if err := h.Replier.ReplyText(ctx, event.ReplyToken, reply); err != nil {
		log.WithError(err).Warn("LINE reply failed")
	}
}

func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func validateSignature(secret string, body []byte, signature string) bool {
	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(decoded, mac.Sum(nil))
}
