// Package domain holds the lead and hot lead model together with the pure
// rules that govern them: the status graph and the audit trail format.
package domain

import "fmt"

// Status is the persisted lifecycle state of a hot lead.
type Status string

const (
	StatusLead             Status = "Lead"
	StatusAngebot          Status = "Angebot"
	StatusAngebotVersendet Status = "Angebot versendet"
	StatusAbgeschlossen    Status = "Abgeschlossen"
	StatusVerloren         Status = "Verloren"
	StatusTerminAbgesagt   Status = "Termin abgesagt"
	StatusTerminVerschoben Status = "Termin verschoben"
)

// AllStatuses lists every status in display order.
var AllStatuses = []Status{
	StatusLead,
	StatusAngebot,
	StatusAngebotVersendet,
	StatusAbgeschlossen,
	StatusVerloren,
	StatusTerminAbgesagt,
	StatusTerminVerschoben,
}

var transitions = map[Status][]Status{
	StatusLead:             {StatusAngebot},
	StatusAngebot:          {StatusAngebotVersendet},
	StatusAngebotVersendet: {StatusAbgeschlossen},
	StatusTerminAbgesagt:   {StatusLead, StatusAngebot, StatusAngebotVersendet},
	StatusTerminVerschoben: {StatusLead, StatusAngebot, StatusAngebotVersendet},
}

// ParseStatus validates a raw persisted or requested status string.
func ParseStatus(raw string) (Status, error) {
	for _, s := range AllStatuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", raw)
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusAbgeschlossen || s == StatusVerloren
}

// IsCancelled reports whether the appointment was cancelled.
func (s Status) IsCancelled() bool {
	return s == StatusTerminAbgesagt
}

// CanTransition reports whether from -> to is a legal edge.
// Every non-terminal status may move to Verloren, Termin abgesagt or
// Termin verschoben. Repeated reschedules are allowed.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	switch to {
	case StatusVerloren, StatusTerminAbgesagt, StatusTerminVerschoben:
		return true
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
