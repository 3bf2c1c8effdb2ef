package services

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// TelegramSender delivers one HTML message to a chat.
type TelegramSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// ErrTelegramDisabled is returned when no bot token is configured.
var ErrTelegramDisabled = errors.New("telegram bot is not configured")

// TelegramService talks to the Bot API. The underlying client is created on
// first use because construction performs a getMe round trip.
type TelegramService struct {
	token    string
	endpoint string
	client   *http.Client

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

func NewTelegramService(token string) *TelegramService {
	return &TelegramService{
		token:    strings.TrimSpace(token),
		endpoint: tgbotapi.APIEndpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *TelegramService) Enabled() bool {
	return t != nil && t.token != ""
}

func (t *TelegramService) api() (*tgbotapi.BotAPI, error) {
	if !t.Enabled() {
		return nil, ErrTelegramDisabled
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, t.client)
	if err != nil {
		return nil, errors.Wrap(err, "telegram connect")
	}
	t.bot = bot
	return bot, nil
}

// SendMessage sends text with HTML parse mode.
func (t *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return errors.Wrapf(ErrValidation, "invalid chat id %q", chatID)
	}
	bot, err := t.api()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(id, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := bot.Send(msg); err != nil {
		logrus.WithFields(logrus.Fields{"chat_id": chatID, "error": err.Error()}).Error("telegram send failed")
		return errors.Wrap(err, "telegram send")
	}
	logrus.WithField("chat_id", chatID).Debug("telegram message sent")
	return nil
}

// BotInfo is the getMe result.
type BotInfo struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// TestConnection calls getMe.
func (t *TelegramService) TestConnection(ctx context.Context) (*BotInfo, error) {
	bot, err := t.api()
	if err != nil {
		return nil, err
	}
	me, err := bot.GetMe()
	if err != nil {
		return nil, errors.Wrap(err, "telegram getMe")
	}
	return &BotInfo{ID: me.ID, FirstName: me.FirstName, Username: me.UserName}, nil
}

// SetWebhook registers url; secret is echoed by Telegram in
// X-Telegram-Bot-Api-Secret-Token on every update.
func (t *TelegramService) SetWebhook(url, secret string) error {
	bot, err := t.api()
	if err != nil {
		return err
	}
	params := tgbotapi.Params{}
	params["url"] = url
	params.AddNonEmpty("secret_token", secret)
	params["allowed_updates"] = `["message"]`
	resp, err := bot.MakeRequest("setWebhook", params)
	if err != nil {
		return errors.Wrap(err, "telegram setWebhook")
	}
	if !resp.Ok {
		return errors.Errorf("telegram setWebhook: %s", resp.Description)
	}
	return nil
}

func (t *TelegramService) WebhookInfo() (*tgbotapi.WebhookInfo, error) {
	bot, err := t.api()
	if err != nil {
		return nil, err
	}
	info, err := bot.GetWebhookInfo()
	if err != nil {
		return nil, errors.Wrap(err, "telegram getWebhookInfo")
	}
	return &info, nil
}

func (t *TelegramService) DeleteWebhook() error {
	bot, err := t.api()
	if err != nil {
		return err
	}
	_, err = bot.Request(tgbotapi.DeleteWebhookConfig{})
	return errors.Wrap(err, "telegram deleteWebhook")
}
