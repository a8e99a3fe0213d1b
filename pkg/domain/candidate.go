package domain

// Candidate is one tree species record. Evaluators treat records as opaque
// beyond the identifier; Attributes carries whatever the catalog provides.
type Candidate struct {
	ID             string         `json:"id" mapstructure:"id"`
	Name           string         `json:"name,omitempty" mapstructure:"name"`
	ScientificName string         `json:"scientific_name,omitempty" mapstructure:"scientific_name"`
	Attributes     map[string]any `json:"attributes,omitempty" mapstructure:",remain"`
}

// CloneCandidates returns a shallow copy of the slice so the caller can
// replace elements without aliasing the source.
func CloneCandidates(in []Candidate) []Candidate {
	if in == nil {
		return nil
	}
	out := make([]Candidate, len(in))
	copy(out, in)
	return out
}

// IsSubset reports whether every identifier in sub also appears in super.
func IsSubset(sub, super []Candidate) bool {
	ids := make(map[string]struct{}, len(super))
	for _, c := range super {
		ids[c.ID] = struct{}{}
	}
	for _, c := range sub {
		if _, ok := ids[c.ID]; !ok {
			return false
		}
	}
	return true
}
