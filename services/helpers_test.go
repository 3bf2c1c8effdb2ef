package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"aslab_go/database/dbtest"
	"aslab_go/models"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type sentMessage struct {
	ChatID string
	Text   string
}

// fakeSender records messages instead of calling Telegram.
type fakeSender struct {
	mu    sync.Mutex
	sent  []sentMessage
	fail  error
	delay time.Duration
}

func (f *fakeSender) SendMessage(_ context.Context, chatID, text string) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeSender) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

var errSendFailed = errors.New("telegram down")

var wib = time.FixedZone("WIB", 7*3600)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int { return &i }

type userOpt func(*models.User)

func withRFID(code string) userOpt { return func(u *models.User) { u.RFIDCode = strPtr(code) } }
func withChat(id string) userOpt { return func(u *models.User) { u.TelegramChatID = strPtr(id); u.TelegramNotifications = true } }
func withPiket(day string) userOpt { return func(u *models.User) { u.PiketDay = strPtr(day) } }
func withRole(role string) userOpt { return func(u *models.User) { u.Role = role } }
func inactive() userOpt { return func(u *models.User) { u.IsActive = false } }
func notificationsOff() userOpt { return func(u *models.User) { u.TelegramNotifications = false } }
func withSemester(s int) userOpt { return func(u *models.User) { u.Semester = intPtr(s) } }

func createUser(t *testing.T, db *gorm.DB, name string, opts ...userOpt) models.User {
	t.Helper()
	u := models.User{
		Name:     name,
		Email:    name + "@lab.test",
		Password: "x",
		Role:     models.RoleAslab,
		IsActive: true,
		Prodi:    "Informatika",
	}
	for _, o := range opts {
		o(&u)
	}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func newDB(t *testing.T) *gorm.DB {
	return dbtest.Open(t)
}

// fixedClock returns a now func pinned to t.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
