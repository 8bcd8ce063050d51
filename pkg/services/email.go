package services

import (
	"context"
	"net/url"

	"go.uber.org/zap"
)

// EmailSender delivers verification links.
type EmailSender interface {
	SendVerification(ctx context.Context, to, name, link string) error
}

// LogEmailSender writes verification links to the log instead of sending mail.
type LogEmailSender struct {
	logger *zap.Logger
}

// NewLogEmailSender creates a LogEmailSender.
func NewLogEmailSender(logger *zap.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger.Named("email")}
}

var _ EmailSender = (*LogEmailSender)(nil)

func (s *LogEmailSender) SendVerification(ctx context.Context, to, name, link string) error {
	s.logger.Info("Verification email",
		zap.String("to", to),
		zap.String("name", name),
		zap.String("link", link))
	return nil
}

// verificationLink builds {baseURL}/v1/agents/verify?token=...
func verificationLink(baseURL, token string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		u = &url.URL{}
	}
	u = u.JoinPath("v1", "agents", "verify")
	u.RawQuery = url.Values{"token": []string{token}}.Encode()
	return u.String()
}
