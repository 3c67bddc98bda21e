package entities

import "time"

// TypeStatus is the approval state of a discovered entity type.
type TypeStatus string

const (
	TypeStatusPending  TypeStatus = "pending"
	TypeStatusApproved TypeStatus = "approved"
	TypeStatusRejected TypeStatus = "rejected"
)

// EntityType represents a dynamically discovered entity category.
// Types are created as pending on first candidate sighting and must be
// approved by an operator before curation operations run against them.
type EntityType struct {
	Name            string     `json:"name"`
	Status          TypeStatus `json:"status"`
	Description     string     `json:"description,omitempty"`
	DiscoveredBy    string     `json:"discovered_by,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	FirstSeen       time.Time  `json:"first_seen"`

	// Denormalized entity counts, filled by the repository on read.
	EntityCount    int `json:"entity_count"`
	PendingCount   int `json:"pending_count"`
	ValidatedCount int `json:"validated_count"`
}
