package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
)

// Mailer sends one email.
type Mailer interface {
	Send(ctx context.Context, toName, toEmail, subject, text, html string) error
}

// SendGridMailer sends mail through the SendGrid v3 API.
type SendGridMailer struct {
	key  string
	host string
	from *sgmail.Email
}

func NewSendGridMailer(key, fromName, fromEmail string) *SendGridMailer {
	return &SendGridMailer{key: key, host: "https://api.sendgrid.com", from: sgmail.NewEmail(fromName, fromEmail)}
}

func (m *SendGridMailer) Send(ctx context.Context, toName, toEmail, subject, text, html string) error {
	p := sgmail.NewPersonalization()
	p.Subject = subject
	p.AddTos(sgmail.NewEmail(toName, toEmail))

	msg := sgmail.NewV3Mail()
	msg.SetFrom(m.from)
	msg.AddPersonalizations(p)
	msg.AddContent(
		sgmail.NewContent("text/plain", text),
		sgmail.NewContent("text/html", html),
	)

	req := sendgrid.GetRequest(m.key, "/v3/mail/send", m.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(msg)

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

// LogMailer only logs; used when no SendGrid key is configured.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, _, toEmail, subject, text, _ string) error {
	logrus.WithFields(logrus.Fields{"to": toEmail, "subject": subject, "body": text}).Info("mail not sent, no mailer configured")
	return nil
}
