// Package entities contains core domain data structures.
package entities

import (
	"strings"
	"time"
)

// EntityStatus is the validation state of an entity.
type EntityStatus string

const (
	EntityStatusPending   EntityStatus = "pending"
	EntityStatusValidated EntityStatus = "validated"
)

// Entity represents a candidate or canonical entity scoped to an EntityType.
// A pending entity is a raw mention produced by ingestion; a validated entity
// with a CanonicalName is a canonical concept.
type Entity struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`            // Original surface form (e.g., "SAP HANA")
	NormalizedName string       `json:"normalized_name"` // Lowercase for matching (e.g., "sap hana")
	TypeName       string       `json:"type_name"`
	Status         EntityStatus `json:"status"`
	CanonicalName  string       `json:"canonical_name,omitempty"`
	Description    string       `json:"description,omitempty"`
	Confidence     float64      `json:"confidence"`
	Occurrences    int          `json:"occurrences"`
	SourceDoc      string       `json:"source_doc,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	ValidatedAt    *time.Time   `json:"validated_at,omitempty"`
	ValidatedBy    string       `json:"validated_by,omitempty"`
}

// IsCanonical reports whether the entity has been through normalization.
func (e *Entity) IsCanonical() bool {
	return e.Status == EntityStatusValidated && e.CanonicalName != ""
}

// NormalizeName converts a name to lowercase for case-insensitive matching.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// CanonicalConcept is the projection of a validated entity that is written to
// the graph and vector capabilities. Key is stable across merges of the same
// canonical name within a type.
type CanonicalConcept struct {
	Key           string  `json:"key"`
	CanonicalName string  `json:"canonical_name"`
	TypeName      string  `json:"type_name"`
	Description   string  `json:"description,omitempty"`
	MemberCount   int     `json:"member_count"`
	Confidence    float64 `json:"confidence"`
}

// ConceptKey builds the stable key for a canonical concept.
func ConceptKey(typeName, canonicalName string) string {
	return NormalizeName(typeName) + ":" + NormalizeName(canonicalName)
}
