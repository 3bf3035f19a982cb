package model

// ClassificationSet is a named taxonomy owned by a client.
type ClassificationSet struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Options []Option `json:"options,omitempty"`
}

// Option is one taxonomy value within a classification set. Secondary
// fields carry the optional second-language variant of the same entity.
type Option struct {
	ID            string `json:"id"`
	Value         string `json:"value"`
	ValueEN       string `json:"value_en,omitempty"`
	Description   string `json:"description,omitempty"`
	DescriptionEN string `json:"description_en,omitempty"`
}

// Record is one ledger account's classification state across all sets.
// Classifications maps set name to option value; an absent key means the
// account is unclassified for that set, never an empty-string value.
type Record struct {
	AccountCode     string            `json:"account_code"`
	Name            string            `json:"name"`
	NameEN          string            `json:"name_en,omitempty"`
	Classifications map[string]string `json:"classifications"`
	Persisted       bool              `json:"persisted"`
	Temporary       bool              `json:"temporary"`
}

// Classified reports whether the record has at least one classification.
func (r Record) Classified() bool {
	return len(r.Classifications) > 0
}

// CloneClassifications returns a copy of the classification map, never nil.
func (r Record) CloneClassifications() map[string]string {
	out := make(map[string]string, len(r.Classifications))
	for k, v := range r.Classifications {
		out[k] = v
	}
	return out
}
