package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"aslab_go/database/dbtest"
	"aslab_go/models"
	"aslab_go/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReplier struct {
	mu      sync.Mutex
	replies map[string]string
}

func (f *fakeReplier) ReplyText(_ context.Context, token, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replies == nil {
		f.replies = map[string]string{}
	}
	f.replies[token] = text
	return nil
}

const testSecret = "line-secret"

func lineEvent(typ, token, userID, text string) string {
	msg := ""
	if text != "" {
		msg = `,"message":{"type":"text","id":"m1","text":"` + text + `"}`
	}
	return `{"type":"` + typ + `","replyToken":"` + token + `","timestamp":1710000000000,` +
		`"source":{"type":"user","userId":"` + userID + `"}` + msg + `}`
}

func postLine(t *testing.T, app *fiber.App, body, signature string) int {
	t.Helper()
	req := httptest.NewRequest("POST", "/line/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Line-Signature", signature)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestLineWebhook(t *testing.T) {
	db := dbtest.Open(t)
	andi := models.User{Name: "andi", Email: "andi@lab.test", Password: "x", Role: models.RoleAslab, IsActive: true}
	require.NoError(t, db.Create(&andi).Error)

	replier := &fakeReplier{}
	h := &LineWebhookHandler{Secret: testSecret, Replier: replier, Linker: services.NewLineLinker(db)}
	app := fiber.New()
	app.Post("/line/webhook", h.Handle)

	body := `{"events":[` +
		lineEvent("follow", "t1", "U100", "") + "," +
		lineEvent("message", "t2", "U100", "link ANDI@lab.test") + "," +
		lineEvent("message", "t3", "U200", "link andi@lab.test") + "," +
		lineEvent("message", "t4", "U300", "halo") + `]}`

	assert.Equal(t, fiber.StatusBadRequest, postLine(t, app, body, ""))
	assert.Equal(t, fiber.StatusUnauthorized, postLine(t, app, body, computeSignature("wrong", []byte(body))))
	assert.Equal(t, fiber.StatusOK, postLine(t, app, body, computeSignature(testSecret, []byte(body))))

	assert.Contains(t, replier.replies["t1"], "U100")
	assert.Contains(t, replier.replies["t2"], "berhasil terhubung")
	assert.Equal(t, "Akun sudah terhubung ke LINE lain", replier.replies["t3"])
	assert.Equal(t, lineHelp, replier.replies["t4"])

	var got models.User
	require.NoError(t, db.First(&got, andi.ID).Error)
	require.NotNil(t, got.LineUserID)
	assert.Equal(t, "U100", *got.LineUserID)

	unfollow := `{"events":[` + lineEvent("unfollow", "", "U100", "") + `]}`
	assert.Equal(t, fiber.StatusOK, postLine(t, app, unfollow, computeSignature(testSecret, []byte(unfollow))))
	require.NoError(t, db.First(&got, andi.ID).Error)
	assert.Nil(t, got.LineUserID)
}

func TestLineWebhookDisabled(t *testing.T) {
	app := fiber.New()
	app.Post("/line/webhook", (&LineWebhookHandler{}).Handle)
	assert.Equal(t, fiber.StatusOK, postLine(t, app, `{"events":[]}`, ""))
}
