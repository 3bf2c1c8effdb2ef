package notifications

import (
	"context"
	"sync"
	"testing"

	"aslab_go/database/dbtest"
	"aslab_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hubSpy struct {
	mu   sync.Mutex
	sent map[uint]int
}

func (h *hubSpy) BroadcastToUser(userID uint, _ interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sent == nil {
		h.sent = map[uint]int{}
	}
	h.sent[userID]++
}

type textSpy struct {
	to []string
}

func (t *textSpy) SendMessage(_ context.Context, chatID, _ string) error {
	t.to = append(t.to, chatID)
	return nil
}

func (t *textSpy) PushText(_ context.Context, to, _ string) error {
	t.to = append(t.to, to)
	return nil
}

func seedUser(t *testing.T, svc *Service, name string, chat, line *string) models.User {
	t.Helper()
	u := models.User{
		Name: name, Email: name + "@lab.test", Password: "x", Role: models.RoleAslab,
		IsActive: true, TelegramChatID: chat, TelegramNotifications: chat != nil, LineUserID: line,
	}
	require.NoError(t, svc.db.Create(&u).Error)
	return u
}

func sp(s string) *string { return &s }

func TestNormalizeChannels(t *testing.T) {
	assert.Equal(t, []string{"normal"}, normalizeChannels(nil))
	assert.Equal(t, []string{"normal"}, normalizeChannels([]string{"sms"}))
	assert.Equal(t, []string{"popup", "telegram"}, normalizeChannels([]string{"popup", "telegram", "popup"}))
}

func TestEnqueueWithoutRedisCreatesAndPushes(t *testing.T) {
	ctx := context.Background()
	svc := NewService(dbtest.Open(t), nil)
	hub := &hubSpy{}
	tg := &textSpy{}
	ln := &textSpy{}
	svc.SetWebSocketHub(hub)
	svc.SetTelegram(tg)
	svc.SetLine(ln)

	a := seedUser(t, svc, "a", sp("100"), nil)
	b := seedUser(t, svc, "b", nil, sp("Uline"))

	p := New(TypeLoanCreated, "Permintaan Peminjaman", "a mengajukan peminjaman Obeng", ChannelPopup, ChannelTelegram, ChannelLine).
		WithData(map[string]uint{"peminjaman_id": 7}).
		RelatedTo("peminjaman_aset", 7)
	require.NoError(t, svc.EnqueueOrCreate(ctx, []uint{a.ID, b.ID}, p))

	assert.Equal(t, 1, hub.sent[a.ID])
	assert.Equal(t, 1, hub.sent[b.ID])
	assert.Equal(t, []string{"100"}, tg.to)
	assert.Equal(t, []string{"Uline"}, ln.to)

	list, err := svc.List(ctx, a.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "popup,telegram,line", list[0].Channels)
	assert.JSONEq(t, `{"peminjaman_id":7}`, string(list[0].Data))

	assert.Error(t, svc.EnqueueOrCreate(ctx, nil, p))
}

func TestReadTracking(t *testing.T) {
	ctx := context.Background()
	svc := NewService(dbtest.Open(t), nil)
	u := seedUser(t, svc, "u", nil, nil)
	other := seedUser(t, svc, "o", nil, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.EnqueueOrCreate(ctx, []uint{u.ID}, New(TypeLoanCreated, "t", "m").RelatedTo("peminjaman_aset", uint(i+1))))
	}
	n, err := svc.UnreadCount(ctx, u.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	list, _ := svc.List(ctx, u.ID, 10)
	assert.ErrorIs(t, svc.MarkRead(ctx, other.ID, list[0].ID), ErrNotFound)
	require.NoError(t, svc.MarkRead(ctx, u.ID, list[0].ID))
	require.NoError(t, svc.MarkRelatedRead(ctx, TypeLoanCreated, "peminjaman_aset", 2))

	n, _ = svc.UnreadCount(ctx, u.ID)
	assert.EqualValues(t, 1, n)

	list, _ = svc.List(ctx, u.ID, 10)
	assert.False(t, list[0].IsRead(), "unread first")

	_, err = svc.MarkAllRead(ctx, u.ID)
	require.NoError(t, err)
	n, _ = svc.UnreadCount(ctx, u.ID)
	assert.Zero(t, n)
}
