package domain

import "time"

// LeadRecord captures a message that matched the commercial-intent keyword
// list. Records are immutable and duplicates across turns are expected.
type LeadRecord struct {
	SessionKey string
	Message    string
	CreatedAt  time.Time
}

// AnalyticsCounter is the per-session usage row. MessageCount only ever
// increases; LastActive holds the most recent completed turn.
type AnalyticsCounter struct {
	SessionKey   string
	MessageCount int
	LastActive   time.Time
}

// RegistrationRecord is a contact-form submission. Write-once; exported in
// bulk for operational follow-up.
type RegistrationRecord struct {
	FullName       string
	Email          string
	Phone          string
	ProjectDetails string
	CreatedAt      time.Time
}
