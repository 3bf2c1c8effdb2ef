package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"aslab_go/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TelegramBot answers webhook updates and manages chat links.
type TelegramBot struct {
	db          *gorm.DB
	sender      TelegramSender
	reports     *ReminderService
	adminChatID string
	pause       time.Duration
}

func NewTelegramBot(db *gorm.DB, sender TelegramSender, reports *ReminderService, adminChatID string) *TelegramBot {
	return &TelegramBot{
		db:          db,
		sender:      sender,
		reports:     reports,
		adminChatID: strings.TrimSpace(adminChatID),
		pause:       50 * time.Millisecond,
	}
}

// ParseCommand splits "/cmd@bot args" into ("/cmd", "args"). Text that is
// not a command yields an empty cmd.
func ParseCommand(text string) (cmd, args string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	head, rest := text, ""
	if i := strings.IndexAny(text, " \n\t"); i >= 0 {
		head, rest = text[:i], strings.TrimSpace(text[i+1:])
	}
	if at := strings.Index(head, "@"); at >= 0 {
		head = head[:at]
	}
	return strings.ToLower(head), rest
}

func (b *TelegramBot) isAdminChat(chatID string) bool {
	return b.adminChatID != "" && chatID == b.adminChatID
}

func (b *TelegramBot) userByChat(ctx context.Context, chatID string) (*models.User, error) {
	var u models.User
	err := b.db.WithContext(ctx).Where("telegram_chat_id = ?", chatID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "find user by chat id")
	}
	return &u, nil
}

// HandleUpdate reacts to a single webhook update. Only text messages are
// handled; everything else is ignored.
func (b *TelegramBot) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return nil
	}
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	firstName := "User"
	if msg.From != nil && msg.From.FirstName != "" {
		firstName = msg.From.FirstName
	}
	cmd, args := ParseCommand(msg.Text)

	logrus.WithFields(logrus.Fields{"chat_id": chatID, "command": cmd}).Info("telegram update received")

	reply, err := b.reply(ctx, chatID, firstName, cmd, args)
	if err != nil {
		return err
	}
	if reply == "" {
		return nil
	}
	return b.sender.SendMessage(ctx, chatID, reply)
}

func (b *TelegramBot) reply(ctx context.Context, chatID, firstName, cmd, args string) (string, error) {
	switch cmd {
	case "/start":
		u, err := b.userByChat(ctx, chatID)
		if err != nil {
			return "", err
		}
		if u != nil {
			return startLinkedMessage(*u), nil
		}
		return startGuestMessage(chatID, firstName), nil

	case "/chatid":
		return chatIDMessage(chatID), nil

	case "/status":
		u, err := b.userByChat(ctx, chatID)
		if err != nil || u == nil {
			return notLinkedMessage(chatID, false), err
		}
		return statusMessage(*u), nil

	case "/jadwal", "/piket":
		u, err := b.userByChat(ctx, chatID)
		if err != nil || u == nil {
			return notLinkedMessage(chatID, true), err
		}
		return jadwalMessage(*u), nil

	case "/schedule":
		u, err := b.userByChat(ctx, chatID)
		if err != nil || u == nil {
			return notLinkedMessage(chatID, false), err
		}
		colleagues, err := b.colleagues(ctx, *u)
		if err != nil {
			return "", err
		}
		return scheduleMessage(*u, colleagues), nil

	case "/report":
		if b.reports == nil {
			return "", nil
		}
		r, err := b.reports.BuildDailyReport(ctx, time.Now())
		if err != nil {
			return "", err
		}
		return DailyReportMessage(*r), nil

	case "/broadcast":
		if !b.isAdminChat(chatID) {
			return msgForbiddenCommand, nil
		}
		if args == "" {
			return msgBroadcastUsage, nil
		}
		n, err := b.Broadcast(ctx, args)
		if err != nil {
			return "", err
		}
		return "📢 Pesan broadcast berhasil dikirim ke " + strconv.Itoa(n) + " aslab.", nil

	case "/status_all":
		if !b.isAdminChat(chatID) {
			return msgForbiddenCommand, nil
		}
		var users []models.User
		if err := b.db.WithContext(ctx).Where("role = ?", models.RoleAslab).Order("name").Find(&users).Error; err != nil {
			return "", errors.Wrap(err, "load aslabs")
		}
		return statusAllMessage(users), nil

	case "/help":
		return helpMessage(), nil

	case "/feedback":
		if args == "" {
			return msgFeedbackPrompt, nil
		}
		logrus.WithFields(logrus.Fields{"chat_id": chatID, "feedback": args}).Info("feedback received")
		if b.adminChatID != "" && !b.isAdminChat(chatID) {
			fwd := "📝 <b>Feedback</b> dari " + esc(firstName) + " (<code>" + esc(chatID) + "</code>)\n\n" + esc(args)
			if err := b.sender.SendMessage(ctx, b.adminChatID, fwd); err != nil {
				logrus.WithField("error", err.Error()).Warn("forward feedback to admin failed")
			}
		}
		return msgFeedbackThanks, nil

	default:
		return defaultMessage(chatID, firstName), nil
	}
}

func (b *TelegramBot) colleagues(ctx context.Context, u models.User) ([]models.User, error) {
	if u.PiketDay == nil || *u.PiketDay == "" {
		return nil, nil
	}
	var out []models.User
	err := b.db.WithContext(ctx).
		Where("role = ? AND is_active = ? AND piket_day = ? AND id <> ?", models.RoleAslab, true, *u.PiketDay, u.ID).
		Order("name").Find(&out).Error
	return out, errors.Wrap(err, "load colleagues")
}

// Broadcast sends content to every user with a linked chat and returns how
// many messages went out.
func (b *TelegramBot) Broadcast(ctx context.Context, content string) (int, error) {
	var users []models.User
	if err := b.db.WithContext(ctx).
		Where("telegram_chat_id IS NOT NULL AND telegram_chat_id <> '' AND telegram_notifications = ?", true).
		Find(&users).Error; err != nil {
		return 0, errors.Wrap(err, "load linked users")
	}
	sent := 0
	text := BroadcastMessage(content)
	for _, u := range users {
		if err := b.sender.SendMessage(ctx, *u.TelegramChatID, text); err != nil {
			logrus.WithFields(logrus.Fields{"user_id": u.ID, "error": err.Error()}).Warn("broadcast send failed")
			continue
		}
		sent++
		if err := sleepCtx(ctx, b.pause); err != nil {
			return sent, err
		}
	}
	logrus.WithFields(logrus.Fields{"recipients": len(users), "sent": sent}).Info("broadcast message sent")
	return sent, nil
}

// SendCustom sends subject/content to the given users and returns the count
// of successful sends.
func (b *TelegramBot) SendCustom(ctx context.Context, userIDs []uint, subject, content string) (int, []string, error) {
	var users []models.User
	if err := b.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return 0, nil, errors.Wrap(err, "load users")
	}
	sent := 0
	var failed []string
	for _, u := range users {
		if u.TelegramChatID == nil || *u.TelegramChatID == "" {
			failed = append(failed, u.Name)
			continue
		}
		if err := b.sender.SendMessage(ctx, *u.TelegramChatID, CustomMessage(u, subject, content)); err != nil {
			failed = append(failed, u.Name)
			continue
		}
		sent++
	}
	return sent, failed, nil
}

// Connect links chatID to a user and sends the welcome message. A chat id
// can belong to one user only.
func (b *TelegramBot) Connect(ctx context.Context, userID uint, chatID string) (*models.User, error) {
	chatID = strings.TrimSpace(chatID)
	if _, err := strconv.ParseInt(chatID, 10, 64); err != nil {
		return nil, userErr(ErrValidation, "Chat ID harus berupa angka")
	}
	var u models.User
	if err := b.db.WithContext(ctx).First(&u, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, userErr(ErrNotFound, "User tidak ditemukan")
		}
		return nil, errors.Wrap(err, "find user")
	}
	var taken int64
	if err := b.db.WithContext(ctx).Model(&models.User{}).
		Where("telegram_chat_id = ? AND id <> ?", chatID, userID).Count(&taken).Error; err != nil {
		return nil, errors.Wrap(err, "check chat id")
	}
	if taken > 0 {
		return nil, userErr(ErrConflict, "Chat ID sudah terhubung dengan user lain")
	}
	if err := b.db.WithContext(ctx).Model(&u).Updates(map[string]interface{}{
		"telegram_chat_id":       chatID,
		"telegram_notifications": true,
	}).Error; err != nil {
		return nil, errors.Wrap(err, "save chat id")
	}
	u.TelegramChatID = &chatID
	u.TelegramNotifications = true

	if err := b.sender.SendMessage(ctx, chatID, WelcomeMessage(u.Name)); err != nil {
		logrus.WithFields(logrus.Fields{"user_id": u.ID, "error": err.Error()}).Warn("welcome message failed")
	}
	return &u, nil
}

// Disconnect clears the chat link.
func (b *TelegramBot) Disconnect(ctx context.Context, userID uint) error {
	return b.updateUser(ctx, userID, "telegram_chat_id", nil)
}

// SetNotifications toggles reminders for a user.
func (b *TelegramBot) SetNotifications(ctx context.Context, userID uint, on bool) error {
	return b.updateUser(ctx, userID, "telegram_notifications", on)
}

func (b *TelegramBot) updateUser(ctx context.Context, userID uint, column string, value interface{}) error {
	var u models.User
	if err := b.db.WithContext(ctx).First(&u, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return userErr(ErrNotFound, "User tidak ditemukan")
		}
		return errors.Wrap(err, "find user")
	}
	return errors.Wrap(b.db.WithContext(ctx).Model(&u).Update(column, value).Error, "update "+column)
}
