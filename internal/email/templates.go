package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

// Template names for Message.Template.
const (
	TemplateNotification = "notification.html"
	TemplateReminder     = "reminder.html"
)

type messageData struct {
	Title      string
	Preheader  string
	Heading    string
	Body       string
	Details    []Detail
	CTALabel   string
	CTAURL     string
	FooterNote string
}

// RenderMessage renders msg with the base layout.
func RenderMessage(msg Message) (string, error) {
	name := msg.Template
	if name == "" {
		name = TemplateNotification
	}
	return renderEmailTemplate(name, messageData{
		Title:      msg.Subject,
		Preheader:  msg.Preheader,
		Heading:    msg.Heading,
		Body:       msg.Body,
		Details:    msg.Details,
		CTALabel:   msg.CTALabel,
		CTAURL:     msg.CTAURL,
		FooterNote: msg.FooterNote,
	})
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}
