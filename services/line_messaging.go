package services

import (
	"context"

	"github.com/line/line-bot-sdk-go/linebot"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// LineService wraps the LINE Messaging API client. A service built without
// credentials is disabled and every send returns an error.
type LineService struct {
	Bot    *linebot.Client
	secret string
}

func NewLineService(secret, token string) *LineService {
	if secret == "" || token == "" {
		logrus.Warn("LINE messaging disabled: missing channel secret or token")
		return &LineService{}
	}
	bot, err := linebot.New(secret, token)
	if err != nil {
		logrus.WithError(err).Error("cannot create LINE bot client")
		return &LineService{}
	}
	return &LineService{Bot: bot, secret: secret}
}

func (s *LineService) Enabled() bool { return s != nil && s.Bot != nil }

// Secret is the channel secret used to verify webhook signatures.
func (s *LineService) Secret() string {
	if s == nil {
		return ""
	}
	return s.secret
}

// PushText sends a text message to a LINE user, group or room id.
func (s *LineService) PushText(ctx context.Context, to, text string) error {
	if !s.Enabled() {
		return errors.New("LINE bot client is not initialized")
	}
	if _, err := s.Bot.PushMessage(to, linebot.NewTextMessage(text)).WithContext(ctx).Do(); err != nil {
		return errors.Wrap(err, "LINE push message")
	}
	return nil
}

// ReplyText answers a webhook event through its reply token.
func (s *LineService) ReplyText(ctx context.Context, replyToken, text string) error {
	if !s.Enabled() {
		return errors.New("LINE bot client is not initialized")
	}
	if _, err := s.Bot.ReplyMessage(replyToken, linebot.NewTextMessage(text)).WithContext(ctx).Do(); err != nil {
		return errors.Wrap(err, "LINE reply message")
	}
	return nil
}
