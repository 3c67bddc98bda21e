package entities

import "time"

// DefaultSnapshotTTL bounds how long a snapshot stays restorable.
const DefaultSnapshotTTL = 24 * time.Hour

// SnapshotPayload is the serialized pre-operation state needed to reverse a
// merge: full rows for the captured entities and every relation touching them,
// plus the type row when the operation deleted one.
type SnapshotPayload struct {
	Types     []EntityType `json:"types,omitempty"`
	Entities  []Entity     `json:"entities"`
	Relations []Relation   `json:"relations"`
}

// Snapshot is a time-boxed, single-use capture of pre-mutation state.
type Snapshot struct {
	ID          string    `json:"id"`
	TypeName    string    `json:"type_name"`
	Operation   string    `json:"operation"` // normalize | merge-type
	EntityCount int       `json:"entity_count"`
	Restored    bool      `json:"restored"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the snapshot's TTL has passed at the given time.
func (s *Snapshot) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Restorable reports whether the snapshot can still be used for rollback.
func (s *Snapshot) Restorable(now time.Time) bool {
	return !s.Restored && !s.Expired(now)
}
