package email

const (
	SubjectHotLeadCreatedFmt    = "Neuer Beratungstermin: %s"
	SubjectStatusChangedFmt     = "%s: %s"
	SubjectHotLeadReleasedFmt   = "Hot Lead im Pool: %s"
	SubjectBulkReleasedFmt      = "%d Hot Leads im Pool"
	SubjectAppointmentReminder  = "Erinnerung: Beratungstermin in Kürze"
	SubjectCalendarCancellation = "Termin wurde extern abgesagt"
)
