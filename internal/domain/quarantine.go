package domain

import "time"

type QuarantineStatus string

const (
	QuarantineStatusActive   QuarantineStatus = "active"
	QuarantineStatusExpired  QuarantineStatus = "expired"
	QuarantineStatusReleased QuarantineStatus = "released"
)

// QuarantineRecord is a recorded network block, uniquely keyed by IP.
// Re-quarantining an already-active IP refreshes timestamps in place.
type QuarantineRecord struct {
	IPAddress         string
	AttackType        string
	ThreatLevel       ThreatLevel
	QuarantinedAt     time.Time
	ExpiresAt         *time.Time // nil = permanent
	Status            QuarantineStatus
	RelatedIncidentID string
}

// IsActive reports whether the block is in effect at the given instant.
func (q *QuarantineRecord) IsActive(now time.Time) bool {
	if q.Status != QuarantineStatusActive {
		return false
	}
	if q.ExpiresAt == nil {
		return true
	}
	return now.Before(*q.ExpiresAt)
}
