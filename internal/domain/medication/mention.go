// Package medication canonicalizes free-text medication mentions produced by
// entity extraction and collapses mentions that name the same drug.
package medication

// Mention is one medication reference as extracted from a report. Only Name
// is required; the detail fields are nil when the extractor found nothing.
// Mentions are treated as values: Merge builds new ones rather than editing
// its input.
type Mention struct {
	Name      string  `json:"name"`
	Dosage    *string `json:"dosage,omitempty"`
	Frequency *string `json:"frequency,omitempty"`
	StartDate *string `json:"start_date,omitempty"`
	EndDate   *string `json:"end_date,omitempty"`
	Purpose   *string `json:"purpose,omitempty"`
}

// StrPtr returns a pointer to s, or nil when s is empty.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns *p or "" for nil.
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// present reports whether a detail field carries a usable value.
func present(p *string) bool {
	return p != nil && *p != ""
}
