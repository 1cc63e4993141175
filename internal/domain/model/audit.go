package model

import "time"

// AuditEntry is one row of the audit trail.
type AuditEntry struct {
	ID        string
	Action    string
	SubjectID string
	ActorID   string
	CreatedAt time.Time
}
