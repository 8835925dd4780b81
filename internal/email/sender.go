// Package email delivers notification emails over SMTP.
package email

import (
	"context"

	"salescrm_backend/platform/config"
)

// Message is a rendered notification email.
type Message struct {
	Subject    string
	Heading    string
	Body       string
	Details    []Detail
	CTALabel   string
	CTAURL     string
	Template   string
	Preheader  string
	FooterNote string
}

// Detail is one labelled row in the email's detail table.
type Detail struct {
	Label string
	Value string
}

// Sender delivers emails.
type Sender interface {
	SendNotificationEmail(ctx context.Context, toEmail string, msg Message) error
	SendCustomEmail(ctx context.Context, toEmail, subject, htmlContent string) error
}

// NoopSender drops every email. It is used when SMTP is not configured.
type NoopSender struct{}

func (NoopSender) SendNotificationEmail(ctx context.Context, toEmail string, msg Message) error {
	return nil
}

func (NoopSender) SendCustomEmail(ctx context.Context, toEmail, subject, htmlContent string) error {
	return nil
}

// NewSender returns an SMTP sender when email is enabled, a NoopSender otherwise.
func NewSender(cfg config.EmailConfig) (Sender, error) {
	if !cfg.GetEmailEnabled() {
		return NoopSender{}, nil
	}
	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
		cfg.GetEmailFromName(),
	), nil
}
