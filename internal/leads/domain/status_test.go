package domain

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusLead, StatusAngebot, true},
		{StatusLead, StatusAngebotVersendet, false},
		{StatusLead, StatusAbgeschlossen, false},
		{StatusAngebot, StatusAngebotVersendet, true},
		{StatusAngebot, StatusAbgeschlossen, false},
		{StatusAngebotVersendet, StatusAbgeschlossen, true},
		{StatusAngebotVersendet, StatusAngebot, false},
		{StatusLead, StatusVerloren, true},
		{StatusAngebot, StatusTerminAbgesagt, true},
		{StatusTerminVerschoben, StatusTerminVerschoben, true},
		{StatusTerminAbgesagt, StatusLead, true},
		{StatusTerminVerschoben, StatusAngebotVersendet, true},
		{StatusTerminAbgesagt, StatusAbgeschlossen, false},
		{StatusAbgeschlossen, StatusLead, false},
		{StatusAbgeschlossen, StatusVerloren, false},
		{StatusVerloren, StatusTerminVerschoben, false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestParseStatusRejectsUnknown(t *testing.T) {
	if _, err := ParseStatus("Offen"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
	got, err := ParseStatus("Angebot versendet")
	if err != nil || got != StatusAngebotVersendet {
		t.Fatalf("unexpected parse result %q, %v", got, err)
	}
}

func TestDealTermsComplete(t *testing.T) {
	setup, recurring, months := int64(50000), int64(9900), 12
	if (DealTerms{SetupFeeCents: &setup, RecurringFeeCents: &recurring}).Complete() {
		t.Fatalf("expected incomplete terms without contract months")
	}
	if !(DealTerms{SetupFeeCents: &setup, RecurringFeeCents: &recurring, ContractMonths: &months}).Complete() {
		t.Fatalf("expected complete terms")
	}
}
