package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"strings"
	"time"

	"aslab_go/models"
	"aslab_go/utils"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Payload is the queue item stored in Redis. Many user ids may share one
// payload; the DB row is the source of truth.
type Payload struct {
	UserIDs          []uint    `json:"user_ids"`
	Type             string    `json:"type"`
	Title            string    `json:"title"`
	Message          string    `json:"message"`
	Channels         []string  `json:"channels,omitempty"`
	Data             any       `json:"data,omitempty"`
	RelatedModelType string    `json:"related_model_type,omitempty"`
	RelatedModelID   *uint     `json:"related_model_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

const redisListKey = "notifications:queue"

// Delivery channels.
const (
	ChannelNormal   = "normal"
	ChannelPopup    = "popup"
	ChannelTelegram = "telegram"
	ChannelLine     = "line"
)

// Notification types raised by the loan workflow.
const (
	TypeLoanCreated  = "peminjaman_created"
	TypeLoanApproved = "peminjaman_approved"
	TypeLoanRejected = "peminjaman_rejected"
	TypeLoanReturned = "peminjaman_returned"
	TypeLoanDue      = "peminjaman_due"
	TypeLoanOverdue  = "peminjaman_overdue"
)

// WSHub interface for WebSocket broadcasting
type WSHub interface {
	BroadcastToUser(userID uint, message interface{})
}

// TextSender delivers a Telegram HTML message to a chat.
type TextSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// LinePusher delivers a plain text push to a LINE user.
type LinePusher interface {
	PushText(ctx context.Context, to, text string) error
}

// Service creates in-app notifications with an optional Redis queue. When
// Redis is unavailable it inserts directly.
type Service struct {
	db       *gorm.DB
	redis    *redis.Client
	useRedis bool
	wsHub    WSHub
	telegram TextSender
	line     LinePusher
}

func NewService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{db: db, redis: rdb, useRedis: rdb != nil}
}

// SetWebSocketHub sets the WebSocket hub for real-time notifications
func (s *Service) SetWebSocketHub(hub WSHub) { s.wsHub = hub }

func (s *Service) SetTelegram(t TextSender) { s.telegram = t }

func (s *Service) SetLine(l LinePusher) { s.line = l }

// normalizeChannels keeps only allowed values and ensures default channel
func normalizeChannels(in []string) []string {
	allowed := map[string]struct{}{ChannelNormal: {}, ChannelPopup: {}, ChannelTelegram: {}, ChannelLine: {}}
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, ch := range in {
		if _, ok := allowed[ch]; !ok {
			continue
		}
		if _, dup := seen[ch]; dup {
			continue
		}
		out = append(out, ch)
		seen[ch] = struct{}{}
	}
	if len(out) == 0 {
		out = []string{ChannelNormal}
	}
	return out
}

func hasChannel(ch []string, want string) bool {
	for _, c := range ch {
		if c == want {
			return true
		}
	}
	return false
}

// New builds a payload with normalized channels.
func New(typ, title, message string, channels ...string) Payload {
	return Payload{Type: typ, Title: title, Message: message, Channels: normalizeChannels(channels)}
}

// WithData attaches structured data for deep links.
func (p Payload) WithData(data any) Payload {
	p.Data = data
	return p
}

// RelatedTo points the notification at a model row.
func (p Payload) RelatedTo(modelType string, id uint) Payload {
	p.RelatedModelType = modelType
	p.RelatedModelID = &id
	return p
}

// EnqueueOrCreate stores notifications using Redis queue if enabled, else direct insert.
func (s *Service) EnqueueOrCreate(ctx context.Context, userIDs []uint, p Payload) error {
	if len(userIDs) == 0 {
		return errors.New("no user ids")
	}
	p.UserIDs = userIDs
	p.Channels = normalizeChannels(p.Channels)
	p.CreatedAt = time.Now().UTC()

	if s.useRedis {
		b, err := json.Marshal(p)
		if err != nil {
			return err
		}
		if err = s.redis.RPush(ctx, redisListKey, b).Err(); err == nil {
			return nil
		}
		logrus.WithField("error", err.Error()).Warn("notification queue push failed, inserting directly")
	}
	return s.createDirect(ctx, p)
}

// createDirect writes directly to DB (used by worker or fallback).
func (s *Service) createDirect(ctx context.Context, p Payload) error {
	if len(p.UserIDs) == 0 {
		return nil
	}
	var dataJSON models.JSON
	if p.Data != nil {
		if b, err := json.Marshal(p.Data); err == nil {
			dataJSON = b
		}
	}
	channels := normalizeChannels(p.Channels)
	notifs := make([]models.Notification, 0, len(p.UserIDs))
	for _, uid := range p.UserIDs {
		notifs = append(notifs, models.Notification{
			UserID:           uid,
			Type:             p.Type,
			Title:            p.Title,
			Message:          p.Message,
			Data:             dataJSON,
			Channels:         strings.Join(channels, ","),
			RelatedModelType: p.RelatedModelType,
			RelatedModelID:   p.RelatedModelID,
		})
	}
	if err := s.db.WithContext(ctx).Create(&notifs).Error; err != nil {
		return err
	}

	if s.wsHub != nil {
		for _, n := range notifs {
			s.wsHub.BroadcastToUser(n.UserID, map[string]interface{}{
				"type":  "notification",
				"popup": hasChannel(channels, ChannelPopup),
				"data":  utils.ToNotificationDTO(n),
			})
		}
	}
	if hasChannel(channels, ChannelTelegram) || hasChannel(channels, ChannelLine) {
		s.deliverExternal(ctx, p, channels)
	}
	return nil
}

// deliverExternal pushes the notification to Telegram and LINE for users who
// linked those accounts. Failures are logged, never returned.
func (s *Service) deliverExternal(ctx context.Context, p Payload, channels []string) {
	var users []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", p.UserIDs).Find(&users).Error; err != nil {
		logrus.WithField("error", err.Error()).Error("load notification recipients")
		return
	}
	for _, u := range users {
		if s.telegram != nil && hasChannel(channels, ChannelTelegram) && u.HasTelegram() {
			text := "🔔 <b>" + html.EscapeString(p.Title) + "</b>\n\n" + html.EscapeString(p.Message)
			if err := s.telegram.SendMessage(ctx, *u.TelegramChatID, text); err != nil {
				logrus.WithFields(logrus.Fields{"user_id": u.ID, "error": err.Error()}).Warn("telegram notification failed")
			}
		}
		if s.line != nil && hasChannel(channels, ChannelLine) && u.LineUserID != nil && *u.LineUserID != "" {
			if err := s.line.PushText(ctx, *u.LineUserID, p.Title+"\n\n"+p.Message); err != nil {
				logrus.WithFields(logrus.Fields{"user_id": u.ID, "error": err.Error()}).Warn("line notification failed")
			}
		}
	}
}

// StartWorker starts a background worker polling Redis queue and flushing to DB
func (s *Service) StartWorker(stop <-chan struct{}) {
	if !s.useRedis {
		logrus.Info("redis notifications disabled; worker not started")
		return
	}
	go func() {
		logrus.Info("notification worker started")
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		ctx := context.Background()
		for {
			select {
			case <-stop:
				logrus.Info("notification worker stopping")
				return
			case <-ticker.C:
				s.flushBatch(ctx, 200)
			}
		}
	}()
}

// flushBatch polls redis queue and processes notifications in batches.
func (s *Service) flushBatch(ctx context.Context, batchSize int) {
	if s.redis == nil {
		return
	}
	for i := 0; i < 5; i++ {
		vals, err := s.redis.LRange(ctx, redisListKey, 0, int64(batchSize-1)).Result()
		if err != nil || len(vals) == 0 {
			return
		}
		if err = s.redis.LTrim(ctx, redisListKey, int64(len(vals)), -1).Err(); err != nil {
			logrus.WithField("error", err.Error()).Warn("notification queue trim failed")
		}
		for _, raw := range vals {
			var p Payload
			if err := json.Unmarshal([]byte(raw), &p); err != nil {
				continue
			}
			if err := s.createDirect(ctx, p); err != nil {
				logrus.WithField("error", err.Error()).Error("notification insert failed")
			}
		}
		if len(vals) < batchSize {
			return
		}
	}
}

// List returns the latest notifications, unread first.
func (s *Service) List(ctx context.Context, userID uint, limit int) ([]models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	var list []models.Notification
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("CASE WHEN read_at IS NULL THEN 0 ELSE 1 END").
		Order("created_at desc").Order("id desc").
		Limit(limit).Find(&list).Error
	return list, err
}

func (s *Service) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).Count(&n).Error
	return n, err
}

// ErrNotFound is returned when marking a notification the user does not own.
var ErrNotFound = errors.New("notification not found")

// MarkRead marks one of the user's notifications as read.
func (s *Service) MarkRead(ctx context.Context, userID, id uint) error {
	var n models.Notification
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if n.ReadAt != nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&n).Update("read_at", time.Now()).Error
}

// MarkAllRead marks every unread notification of the user.
func (s *Service) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).Update("read_at", time.Now())
	return res.RowsAffected, res.Error
}

// MarkRelatedRead closes every unread notification of a type that points at
// a row, e.g. the approval requests of a loan once it is processed.
func (s *Service) MarkRelatedRead(ctx context.Context, typ, modelType string, id uint) error {
	return s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("type = ? AND related_model_type = ? AND related_model_id = ? AND read_at IS NULL", typ, modelType, id).
		Update("read_at", time.Now()).Error
}
