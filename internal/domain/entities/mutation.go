package entities

// The apply types below are mutation plans computed by services and executed
// atomically by the relational repository. Each plan is one all-or-nothing
// unit: the repository wraps it in a single transaction.

// RelationEndpointUpdate moves one endpoint of a relation to a new entity.
type RelationEndpointUpdate struct {
	RelationID  string `json:"relation_id"`
	NewSourceID string `json:"new_source_id,omitempty"`
	NewTargetID string `json:"new_target_id,omitempty"`
}

// MergeApply is the mutation plan for one approved merge group.
type MergeApply struct {
	TypeName        string                   `json:"type_name"`
	CanonicalName   string                   `json:"canonical_name"`
	Description     string                   `json:"description,omitempty"`
	MasterID        string                   `json:"master_id"`
	MemberIDs       []string                 `json:"member_ids"` // selected members, master included
	ValidatedBy     string                   `json:"validated_by,omitempty"`
	RelationUpdates []RelationEndpointUpdate `json:"relation_updates,omitempty"`
	DeleteRelations []string                 `json:"delete_relations,omitempty"` // parallel duplicates
}

// DedupeApply is the mutation plan for one exact-duplicate group.
type DedupeApply struct {
	SurvivorID      string                   `json:"survivor_id"`
	DeleteEntities  []string                 `json:"delete_entities"`
	RelationUpdates []RelationEndpointUpdate `json:"relation_updates,omitempty"`
	DeleteRelations []string                 `json:"delete_relations,omitempty"`
}

// RestoreApply re-establishes captured pre-merge state: type rows are
// recreated if missing, entity rows are overwritten, and every relation
// touching a captured entity is replaced by the captured set.
type RestoreApply struct {
	Types     []EntityType `json:"types,omitempty"`
	Entities  []Entity     `json:"entities"`
	Relations []Relation   `json:"relations"`
}
