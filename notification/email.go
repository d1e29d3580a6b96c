// Package notification delivers outbound account mail over SMTP.
package notification

import (
	"context"
	"fmt"
	"net/smtp"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type EmailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
}

// EmailService implements accounts.Mailer on top of net/smtp.
type EmailService struct {
	config EmailConfig
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailService(config EmailConfig) *EmailService {
	return &EmailService{
		config: config,
		send:   smtp.SendMail,
	}
}

// Send delivers a single message and returns a locally generated message id.
// The context deadline is honored before dialing; net/smtp itself does not
// accept a context.
func (s *EmailService) Send(ctx context.Context, to, subject, htmlBody, textBody string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryOperation, "mail send cancelled")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	body := htmlBody
	contentType := "text/html; charset=UTF-8"
	if body == "" {
		body = textBody
		contentType = "text/plain; charset=UTF-8"
	}

	messageID := uuid.NewString()

	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMessage-ID: <%s@%s>\r\nMIME-Version: 1.0\r\nContent-Type: %s\r\n\r\n%s",
		from, to, subject, messageID, s.config.Host, contentType, body,
	)

	auth := smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	if err := s.send(addr, auth, s.config.From, []string{to}, []byte(msg)); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryOperation, "smtp delivery failed").
			WithMetadata(map[string]any{"to": to})
	}

	return messageID, nil
}
