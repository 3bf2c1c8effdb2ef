package services

import (
	"context"
	"testing"

	"aslab_go/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in, cmd, args string
	}{
		{"/start", "/start", ""},
		{"/START@aslab_bot", "/start", ""},
		{"/broadcast  hello all ", "/broadcast", "hello all"},
		{"/feedback\nmultiline", "/feedback", "multiline"},
		{"hi there", "", "hi there"},
		{"", "", ""},
	}
	for _, tt := range tests {
		cmd, args := ParseCommand(tt.in)
		assert.Equal(t, tt.cmd, cmd, tt.in)
		assert.Equal(t, tt.args, args, tt.in)
	}
}

func textUpdate(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: chatID},
		From: &tgbotapi.User{FirstName: "Andi"},
		Text: text,
	}}
}

func botFixture(t *testing.T) (*TelegramBot, *fakeSender) {
	t.Helper()
	sender := &fakeSender{}
	db := newDB(t)
	bot := NewTelegramBot(db, sender, NewReminderService(db, sender, wib, "999"), "999")
	bot.pause = 0
	return bot, sender
}

func TestBotRepliesToKnownAndUnknownChats(t *testing.T) {
	ctx := context.Background()
	bot, sender := botFixture(t)
	createUser(t, bot.db, "Budi", withChat("123"), withPiket("senin"))
	createUser(t, bot.db, "Rekan", withPiket("senin"))

	require.NoError(t, bot.HandleUpdate(ctx, textUpdate(123, "/status")))
	require.NoError(t, bot.HandleUpdate(ctx, textUpdate(456, "/status")))
	require.NoError(t, bot.HandleUpdate(ctx, textUpdate(123, "/schedule")))
	require.NoError(t, bot.HandleUpdate(ctx, textUpdate(456, "/chatid")))

	msgs := sender.messages()
	require.Len(t, msgs, 4)
	assert.Contains(t, msgs[0].Text, "Budi")
	assert.Equal(t, "456", msgs[1].ChatID)
	assert.Contains(t, msgs[1].Text, "456")
	assert.Contains(t, msgs[2].Text, "Rekan")
	assert.Contains(t, msgs[3].Text, "456")
}

func TestBotIgnoresNonMessageUpdates(t *testing.T) {
	bot, sender := botFixture(t)
	require.NoError(t, bot.HandleUpdate(context.Background(), tgbotapi.Update{}))
	assert.Empty(t, sender.messages())
}

func TestBotAdminCommands(t *testing.T) {
	ctx := context.Background()
	bot, sender := botFixture(t)
	createUser(t, bot.db, "a", withChat("1"))
	createUser(t, bot.db, "b", withChat("2"))
	createUser(t, bot.db, "c", withChat("3"), notificationsOff())

	require.NoError(t, bot.HandleUpdate(ctx, textUpdate(1, "/broadcast rapat jam 3")))
	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, msgForbiddenCommand, msgs[0].Text)

	require.NoError(t, bot.HandleUpdate(ctx, textUpdate(999, "/broadcast rapat jam 3")))
	msgs = sender.messages()
	require.Len(t, msgs, 4)
	assert.Contains(t, msgs[1].Text, "rapat jam 3")
	assert.Contains(t, msgs[3].Text, "dikirim ke 2 aslab")
}

func TestBotFeedbackForwardsToAdmin(t *testing.T) {
	bot, sender := botFixture(t)
	require.NoError(t, bot.HandleUpdate(context.Background(), textUpdate(55, "/feedback AC <rusak>")))

	msgs := sender.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "999", msgs[0].ChatID)
	assert.Contains(t, msgs[0].Text, "AC &lt;rusak&gt;")
	assert.Equal(t, msgFeedbackThanks, msgs[1].Text)
}

func TestConnectAndDisconnect(t *testing.T) {
	ctx := context.Background()
	bot, sender := botFixture(t)
	u := createUser(t, bot.db, "Budi")
	other := createUser(t, bot.db, "Lain", withChat("777"))

	_, err := bot.Connect(ctx, u.ID, "abc")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = bot.Connect(ctx, u.ID, "777")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = bot.Connect(ctx, 9999, "123")
	assert.ErrorIs(t, err, ErrNotFound)

	linked, err := bot.Connect(ctx, u.ID, " 123 ")
	require.NoError(t, err)
	assert.Equal(t, "123", *linked.TelegramChatID)
	require.Len(t, sender.messages(), 1)
	assert.Equal(t, "123", sender.messages()[0].ChatID)

	require.NoError(t, bot.SetNotifications(ctx, u.ID, false))
	require.NoError(t, bot.Disconnect(ctx, other.ID))

	var got models.User
	require.NoError(t, bot.db.First(&got, u.ID).Error)
	assert.False(t, got.TelegramNotifications)
	require.NoError(t, bot.db.First(&got, other.ID).Error)
	assert.Nil(t, got.TelegramChatID)

	assert.ErrorIs(t, bot.Disconnect(ctx, 9999), ErrNotFound)
}

func TestSendCustomReportsFailures(t *testing.T) {
	bot, sender := botFixture(t)
	a := createUser(t, bot.db, "a", withChat("1"))
	b := createUser(t, bot.db, "b")

	sent, failed, err := bot.SendCustom(context.Background(), []uint{a.ID, b.ID}, "Rapat", "Besok jam 9")
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []string{"b"}, failed)
	assert.Contains(t, sender.messages()[0].Text, "<b>Rapat</b>")
}
