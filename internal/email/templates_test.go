package email

import (
	"strings"
	"testing"
)

func TestRenderMessageEscapesAndIncludesDetails(t *testing.T) {
	html, err := RenderMessage(Message{
		Subject:  "Termin abgesagt",
		Heading:  "Musterfirma <GmbH>",
		Body:     "Der Termin wurde extern abgesagt.",
		Details:  []Detail{{Label: "Status", Value: "Termin abgesagt"}},
		CTALabel: "Öffnen",
		CTAURL:   "https://crm.example.com/hot-leads/1",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(html, "<GmbH>") {
		t.Fatalf("heading was not escaped")
	}
	for _, want := range []string{"Musterfirma &lt;GmbH&gt;", "Termin abgesagt", "https://crm.example.com/hot-leads/1"} {
		if !strings.Contains(html, want) {
			t.Fatalf("rendered email misses %q", want)
		}
	}
}

func TestRenderReminderTemplate(t *testing.T) {
	html, err := RenderMessage(Message{Subject: SubjectAppointmentReminder, Heading: "Erinnerung", Body: "Gleich geht's los", Template: TemplateReminder})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(html, "Bitte prüfe vorab") {
		t.Fatalf("reminder content missing")
	}
}

func TestRenderUnknownTemplateFails(t *testing.T) {
	if _, err := RenderMessage(Message{Template: "missing.html"}); err == nil {
		t.Fatalf("expected error for unknown template")
	}
}
