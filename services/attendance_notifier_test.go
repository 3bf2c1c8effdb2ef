package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"aslab_go/cache"
	"aslab_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notifierFixture(t *testing.T) (*AttendanceNotifier, *fakeSender, *cache.MemoryStore) {
	t.Helper()
	store := cache.NewMemoryStore(time.Hour)
	t.Cleanup(store.Close)
	sender := &fakeSender{}
	return NewAttendanceNotifier(store, sender, wib), sender, store
}

func attendanceEvent(id uint, user models.User) AttendanceCreated {
	return AttendanceCreated{
		Attendance: models.Attendance{
			BaseModel: models.BaseModel{ID: id},
			UserID:    user.ID,
			Type:      models.AttendanceCheckIn,
			Timestamp: time.Date(2025, 3, 3, 1, 5, 0, 0, time.UTC),
			Date:      "2025-03-03",
		},
		User: user,
	}
}

func linkedUser() models.User {
	return models.User{
		BaseModel:             models.BaseModel{ID: 7},
		Name:                  "Budi",
		TelegramChatID:        strPtr("555"),
		TelegramNotifications: true,
	}
}

func TestNotifierSendsOncePerAttendance(t *testing.T) {
	ctx := context.Background()
	n, sender, store := notifierFixture(t)
	ev := attendanceEvent(42, linkedUser())

	sent, err := n.Notify(ctx, ev)
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = n.Notify(ctx, ev)
	require.NoError(t, err)
	assert.False(t, sent)

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "555", msgs[0].ChatID)
	assert.Contains(t, msgs[0].Text, "Check-In Berhasil!")
	assert.Contains(t, msgs[0].Text, "03/03/2025")
	assert.Contains(t, msgs[0].Text, "08:05")

	v, err := store.Get(ctx, "attendance_notification_sent_42")
	require.NoError(t, err)
	assert.Equal(t, "sent", v)
}

func TestNotifierKeysByAttendanceID(t *testing.T) {
	ctx := context.Background()
	n, sender, _ := notifierFixture(t)
	u := linkedUser()

	in := attendanceEvent(1, u)
	out := attendanceEvent(2, u)
	out.Attendance.Type = models.AttendanceCheckOut

	_, err := n.Notify(ctx, in)
	require.NoError(t, err)
	_, err = n.Notify(ctx, out)
	require.NoError(t, err)

	msgs := sender.messages()
	require.Len(t, msgs, 2)
	assert.True(t, strings.Contains(msgs[1].Text, "Check-Out Berhasil!"))
}

func TestNotifierConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	n, sender, _ := notifierFixture(t)
	sender.delay = 5 * time.Millisecond
	ev := attendanceEvent(9, linkedUser())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = n.Notify(ctx, ev)
		}()
	}
	wg.Wait()
	assert.Len(t, sender.messages(), 1)
}

func TestNotifierReleasesKeyOnFailure(t *testing.T) {
	ctx := context.Background()
	n, sender, store := notifierFixture(t)
	ev := attendanceEvent(3, linkedUser())

	sender.setFail(errSendFailed)
	sent, err := n.Notify(ctx, ev)
	assert.ErrorIs(t, err, errSendFailed)
	assert.False(t, sent)
	has, _ := store.Has(ctx, NotificationCacheKey(3))
	assert.False(t, has)

	sender.setFail(nil)
	sent, err = n.Notify(ctx, ev)
	require.NoError(t, err)
	assert.True(t, sent)
}

func TestNotifierSkipsUnlinkedUsers(t *testing.T) {
	ctx := context.Background()
	n, sender, store := notifierFixture(t)

	noChat := linkedUser()
	noChat.TelegramChatID = nil
	muted := linkedUser()
	muted.TelegramNotifications = false

	for i, u := range []models.User{noChat, muted} {
		sent, err := n.Notify(ctx, attendanceEvent(uint(100+i), u))
		require.NoError(t, err)
		assert.False(t, sent)
	}
	assert.Empty(t, sender.messages())
	assert.Equal(t, 0, store.Len())
}

func TestNotifierThroughAsyncDispatcher(t *testing.T) {
	n, sender, _ := notifierFixture(t)
	d := NewDispatcher(true)
	d.Subscribe(n)
	d.Subscribe(AttendanceListenerFunc(func(context.Context, AttendanceCreated) { panic("boom") }))

	ev := attendanceEvent(11, linkedUser())
	d.DispatchAttendanceCreated(ev)
	d.DispatchAttendanceCreated(ev)
	d.Wait()

	assert.Len(t, sender.messages(), 1)
}
