package identity

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/gofiber/template/django/v3"
	"github.com/goliatone/go-errors"
)

// MailConfig identifies the sender. Values come from the embedding
// application's configuration.
type MailConfig struct {
	FromAddress string
	FromName    string
	AppName     string
}

func (c MailConfig) withDefaults() MailConfig {
	if c.FromAddress == "" {
		c.FromAddress = "no-reply@sleeved.com"
	}
	if c.FromName == "" {
		c.FromName = "Sleeved App"
	}
	if c.AppName == "" {
		c.AppName = "Sleeved"
	}
	return c
}

// From renders the sender as "Name <address>".
func (c MailConfig) From() string {
	return fmt.Sprintf("%s <%s>", c.FromName, c.FromAddress)
}

// VerificationMailer composes verification emails and hands them to the
// Mailer. Template rendering happens here; transport stays external.
type VerificationMailer struct {
	mailer Mailer
	engine *django.Engine
	config MailConfig
	logger Logger
}

// NewVerificationMailer loads the embedded templates and returns a
// composer bound to the given dispatcher.
func NewVerificationMailer(mailer Mailer, config MailConfig, logger Logger) (*VerificationMailer, error) {
	if logger == nil {
		logger = defLogger{}
	}

	sub, err := fs.Sub(GetTemplatesFS(), "data/templates")
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to open mail templates")
	}

	engine := django.NewFileSystem(http.FS(sub), ".html")
	if err := engine.Load(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load mail templates")
	}

	return &VerificationMailer{
		mailer: mailer,
		engine: engine,
		config: config.withDefaults(),
		logger: logger,
	}, nil
}

// SendVerificationCode renders and dispatches the verification email.
// Callers invoke this only after the transaction that attached the code
// has committed; failure here never rolls the identity back.
func (m *VerificationMailer) SendVerificationCode(ctx context.Context, user *User, code string) error {
	if user == nil || user.Email == "" {
		return errors.New("cannot send verification email without an address", errors.CategoryBadInput)
	}

	html, err := m.render("verify_email", map[string]any{
		"user": map[string]any{
			"full_name": user.FullName,
			"email":     user.Email,
		},
		"code":        code,
		"appName":     m.config.AppName,
		"currentYear": time.Now().Year(),
	})
	if err != nil {
		return err
	}

	mail := Mail{
		To:      user.Email,
		Subject: fmt.Sprintf("%s - Your verification code", m.config.AppName),
		HTML:    html,
	}

	if err := m.mailer.Send(ctx, mail); err != nil {
		m.logger.Error("verification email dispatch failed for user %s: %v", user.ID, err)
		return errors.Wrap(err, ErrMailDispatchFailed.Category, ErrMailDispatchFailed.Message).
			WithTextCode(ErrMailDispatchFailed.TextCode)
	}

	m.logger.Info("verification email sent to user %s", user.ID)
	return nil
}

func (m *VerificationMailer) render(template string, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := m.engine.Render(&buf, template, data); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to render mail template")
	}
	return buf.String(), nil
}
