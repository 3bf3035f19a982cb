package model

// Concept is a canonical domain field a spreadsheet header can be mapped to.
type Concept struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HeaderAssignment pairs a raw header with its target concept. A nil
// ConceptID means the header is explicitly mapped to no concept, which is
// different from a header that has not been decided yet.
type HeaderAssignment struct {
	Header    string  `json:"header"`
	ConceptID *string `json:"concept_id"`
}

// HeaderSets is the server's view of a job's extracted column headers.
type HeaderSets struct {
	Classified   []string            `json:"classified"`
	Unclassified []string            `json:"unclassified"`
	Existing     map[string]*Concept `json:"existing_mapping,omitempty"`
}

// All returns every header, classified first, in server order.
func (h HeaderSets) All() []string {
	out := make([]string, 0, len(h.Classified)+len(h.Unclassified))
	out = append(out, h.Classified...)
	out = append(out, h.Unclassified...)
	return out
}
