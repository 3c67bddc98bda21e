package entities

// AutoMatchThreshold is the match score at or above which a member is
// considered an automatic match and pre-selected for merging.
const AutoMatchThreshold = 90

// GroupMember is one entity inside a merge group proposal, annotated with how
// well its raw name matches the group's canonical name.
type GroupMember struct {
	EntityID   string `json:"entity_id"`
	Name       string `json:"name"`
	MatchScore int    `json:"match_score"` // 0-100
	AutoMatch  bool   `json:"auto_match"`
	Selected   bool   `json:"selected"`
}

// MergeGroup is an ephemeral proposal grouping entities under one canonical
// name. Groups are never persisted; they exist only between preview and
// execution and are edited by the operator in between.
type MergeGroup struct {
	CanonicalKey  string        `json:"canonical_key"`
	CanonicalName string        `json:"canonical_name"`
	Description   string        `json:"description,omitempty"`
	TypeName      string        `json:"type_name"`
	MasterID      string        `json:"master_id,omitempty"`
	Members       []GroupMember `json:"members"`
}

// SelectedMembers returns the members the operator left selected.
func (g *MergeGroup) SelectedMembers() []GroupMember {
	var selected []GroupMember
	for _, m := range g.Members {
		if m.Selected {
			selected = append(selected, m)
		}
	}
	return selected
}

// Master resolves the master entity for the group: the explicitly chosen one
// if it is still selected, otherwise the highest-scoring selected member.
// Returns empty when no member is selected.
func (g *MergeGroup) Master() string {
	selected := g.SelectedMembers()
	if len(selected) == 0 {
		return ""
	}
	if g.MasterID != "" {
		for _, m := range selected {
			if m.EntityID == g.MasterID {
				return g.MasterID
			}
		}
	}
	best := selected[0]
	for _, m := range selected[1:] {
		if m.MatchScore > best.MatchScore {
			best = m
		}
	}
	return best.EntityID
}

// OntologyGroup is one proposed canonical grouping returned by the
// language-model capability. Members reference entities by ID.
type OntologyGroup struct {
	CanonicalName string   `json:"canonical_name"`
	Description   string   `json:"description,omitempty"`
	MemberIDs     []string `json:"member_ids"`
}

// Ontology is the full proposal for one entity type. It is stored as the
// result payload of the generation job so previews can be recomputed.
type Ontology struct {
	TypeName string          `json:"type_name"`
	Groups   []OntologyGroup `json:"groups"`
}
