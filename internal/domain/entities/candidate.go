package entities

// CandidateEntity is the validated form of a raw entity mention produced by
// the ingestion pipeline. Loose payloads are converted into this type at the
// intake boundary; untyped maps never reach the services.
type CandidateEntity struct {
	Name        string  `json:"name"`
	TypeName    string  `json:"type"`
	Description string  `json:"description,omitempty"`
	Confidence  float64 `json:"confidence"`
	Occurrences int     `json:"occurrences"`
	SourceDoc   string  `json:"source_doc,omitempty"`
	Agent       string  `json:"agent,omitempty"`
}

// CandidateRelation is the validated form of a raw relation mention.
// Endpoints are referenced by name within the same intake batch.
type CandidateRelation struct {
	SourceName   string       `json:"source"`
	TargetName   string       `json:"target"`
	Type         string       `json:"type"`
	SourceDoc    string       `json:"source_doc,omitempty"`
	DocumentRole DocumentRole `json:"document_role,omitempty"`
}
