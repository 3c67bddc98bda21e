package entities

import "time"

// DocumentRole classifies how a source document relates to an entity when
// relation provenance is carried through a merge.
type DocumentRole string

const (
	DocumentRoleDefines    DocumentRole = "defines"
	DocumentRoleReferences DocumentRole = "references"
)

// Relation represents a directed connection between two entities.
type Relation struct {
	ID           string       `json:"id"`
	SourceID     string       `json:"source_id"`
	TargetID     string       `json:"target_id"`
	Type         string       `json:"type"`
	SourceDoc    string       `json:"source_doc,omitempty"`
	DocumentRole DocumentRole `json:"document_role,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// EndpointKey identifies a relation up to its endpoints and type. Two
// relations with the same key are parallel duplicates after reassignment.
func (r *Relation) EndpointKey() string {
	return r.SourceID + "|" + r.Type + "|" + r.TargetID
}

// Touches reports whether the relation has the entity as either endpoint.
func (r *Relation) Touches(entityID string) bool {
	return r.SourceID == entityID || r.TargetID == entityID
}
