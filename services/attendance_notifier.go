package services

import (
	"context"
	"fmt"
	"time"

	"aslab_go/cache"

	"github.com/sirupsen/logrus"
)

// NotificationDedupTTL bounds how long a sent attendance notification is
// remembered.
const NotificationDedupTTL = 24 * time.Hour

// NotificationCacheKey is the idempotency key for one attendance row.
func NotificationCacheKey(attendanceID uint) string {
	return fmt.Sprintf("attendance_notification_sent_%d", attendanceID)
}

// AttendanceNotifier sends at most one Telegram message per attendance row.
// The key is claimed before sending so concurrent or repeated deliveries of
// the same event collapse into one message; a failed send releases the
// claim so a retry can go through.
type AttendanceNotifier struct {
	cache    cache.Store
	telegram TelegramSender
	loc      *time.Location
}

func NewAttendanceNotifier(store cache.Store, telegram TelegramSender, loc *time.Location) *AttendanceNotifier {
	return &AttendanceNotifier{cache: store, telegram: telegram, loc: loc}
}

func (n *AttendanceNotifier) HandleAttendanceCreated(ctx context.Context, ev AttendanceCreated) {
	if _, err := n.Notify(ctx, ev); err != nil {
		logrus.WithFields(logrus.Fields{
			"attendance_id": ev.Attendance.ID,
			"user_id":       ev.User.ID,
			"error":         err.Error(),
		}).Error("attendance notification failed")
	}
}

// Notify reports whether a message was sent by this call.
func (n *AttendanceNotifier) Notify(ctx context.Context, ev AttendanceCreated) (bool, error) {
	a, u := ev.Attendance, ev.User
	key := NotificationCacheKey(a.ID)
	fields := logrus.Fields{
		"attendance_id": a.ID,
		"user_id":       u.ID,
		"type":          a.Type,
		"cache_key":     key,
	}

	if !u.HasTelegram() {
		reason := "Notifications disabled"
		if u.TelegramChatID == nil || *u.TelegramChatID == "" {
			reason = "No telegram connected"
		}
		logrus.WithFields(fields).WithField("reason", reason).Info("attendance notification skipped")
		return false, nil
	}

	claimed, err := n.cache.SetNX(ctx, key, "pending", NotificationDedupTTL)
	if err != nil {
		return false, err
	}
	if !claimed {
		logrus.WithFields(fields).Info("attendance notification already sent, skipping")
		return false, nil
	}

	msg := AttendanceMessage(u, a.Type, a.Timestamp, n.loc)
	if err := n.telegram.SendMessage(ctx, *u.TelegramChatID, msg); err != nil {
		if ferr := n.cache.Forget(ctx, key); ferr != nil {
			logrus.WithFields(fields).WithField("error", ferr.Error()).Warn("release notification key failed")
		}
		return false, err
	}
	if err := n.cache.Put(ctx, key, "sent", NotificationDedupTTL); err != nil {
		logrus.WithFields(fields).WithField("error", err.Error()).Warn("mark notification sent failed")
	}
	logrus.WithFields(fields).Info("attendance notification sent")
	return true, nil
}
