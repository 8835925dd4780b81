package domain

import (
	"fmt"
	"strings"
	"time"

	"salescrm_backend/platform/sanitize"
)

const (
	auditStampLayout = "02.01.2006, 15:04"
	auditDateLayout  = "02.01.2006"
	auditTimeLayout  = "15:04"
	auditSeparator   = "\n"
)

// FormatAuditEntry renders "[DD.MM.YYYY, HH:MM] text" in loc.
func FormatAuditEntry(at time.Time, loc *time.Location, text string) string {
	if loc == nil {
		loc = time.UTC
	}
	return "[" + at.In(loc).Format(auditStampLayout) + "] " + sanitize.Line(text)
}

// PrependAuditEntry returns comment with entry placed first. An entry equal
// to the current newest entry is not written twice, so webhook redeliveries
// do not duplicate the trail.
func PrependAuditEntry(comment, entry string) string {
	if entry == "" {
		return comment
	}
	if comment == "" {
		return entry
	}
	if NewestAuditEntry(comment) == entry {
		return comment
	}
	return entry + auditSeparator + comment
}

// NewestAuditEntry returns the first line of comment.
func NewestAuditEntry(comment string) string {
	first, _, _ := strings.Cut(comment, auditSeparator)
	return first
}

// CancellationText is the audit text for a cancelled appointment.
func CancellationText(canceler, reason string) string {
	canceler = sanitize.Line(canceler)
	if canceler == "" {
		canceler = "unbekannt"
	}
	text := "TERMIN ABGESAGT: Abgesagt von " + canceler
	if reason = sanitize.Line(reason); reason != "" {
		text += ", Grund: " + reason
	}
	return text
}

// RescheduleText is the audit text for a moved appointment.
func RescheduleText(newStart time.Time, loc *time.Location) string {
	return "TERMIN VERSCHOBEN: Neuer Termin am " + formatDateTime(newStart, loc)
}

// BookingText is the audit text written to a lead when a consultation is booked.
func BookingText(start time.Time, loc *time.Location, closerName string) string {
	return fmt.Sprintf("HOT LEAD: Termin am %s mit %s", formatDateTime(start, loc), sanitize.Line(closerName))
}

// StatusChangeText is the audit text for a manual status transition.
func StatusChangeText(from, to Status, note string) string {
	text := fmt.Sprintf("STATUS: %s → %s", from, to)
	if note = sanitize.Line(note); note != "" {
		text += " | " + note
	}
	return text
}

// FormatAppointment renders "DD.MM.YYYY um HH:MM" in loc.
func FormatAppointment(t time.Time, loc *time.Location) string {
	return formatDateTime(t, loc)
}

func formatDateTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return local.Format(auditDateLayout) + " um " + local.Format(auditTimeLayout)
}
