package domain

import "time"

// CommittedParameter is a parameter stored under its stage's ParameterID.
type CommittedParameter struct {
	ParameterID string    `json:"parameter_id"`
	StageIndex  int       `json:"stage_index"`
	Value       Parameter `json:"value"`
}

// Session is the per-user progression aggregate.
// It is owned by the session store and mutated only by the pipeline engine.
type Session struct {
	ID string `json:"id"`

	// StageIndex is the 1-based index of the stage awaiting input.
	// It equals the Terminal stage index once every collecting stage is committed.
	StageIndex int `json:"stage_index"`

	// Parameters are kept in stage order. Re-committing an existing
	// ParameterID replaces the value in place.
	Parameters []CommittedParameter `json:"parameters"`

	// Candidates is the current narrowed set.
	Candidates []Candidate `json:"candidates"`

	// CatalogSize is the size of the unfiltered catalog at session creation.
	CatalogSize int `json:"catalog_size"`

	// Revision increments on every commit; used for optimistic concurrency.
	Revision int64 `json:"revision"`

	// History records the stage index after each transition.
	History []int `json:"history,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Sealed holds an opaque payload written by store middleware (e.g. encryption).
	// When set, Parameters and Candidates are empty in the stored form.
	Sealed []byte `json:"sealed,omitempty"`
}

// NewSession creates a clean session positioned at stage 1 over the given catalog.
func NewSession(id string, catalog []Candidate) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:          id,
		StageIndex:  1,
		Parameters:  []CommittedParameter{},
		Candidates:  CloneCandidates(catalog),
		CatalogSize: len(catalog),
		History:     []int{1},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep-enough copy for read-modify-write: slices are copied,
// candidate records are shared (they are never mutated in place).
func (s *Session) Clone() *Session {
	c := *s
	c.Parameters = append([]CommittedParameter(nil), s.Parameters...)
	c.Candidates = CloneCandidates(s.Candidates)
	c.History = append([]int(nil), s.History...)
	return &c
}

// Parameter looks up a committed parameter by id.
func (s *Session) Parameter(parameterID string) (Parameter, bool) {
	for _, p := range s.Parameters {
		if p.ParameterID == parameterID {
			return p.Value, true
		}
	}
	return Parameter{}, false
}

// SetParameter stores value under parameterID, keeping stage order.
func (s *Session) SetParameter(stageIndex int, parameterID string, value Parameter) {
	for i, p := range s.Parameters {
		if p.ParameterID == parameterID {
			s.Parameters[i] = CommittedParameter{ParameterID: parameterID, StageIndex: stageIndex, Value: value}
			return
		}
	}
	entry := CommittedParameter{ParameterID: parameterID, StageIndex: stageIndex, Value: value}
	pos := len(s.Parameters)
	for i, p := range s.Parameters {
		if p.StageIndex > stageIndex {
			pos = i
			break
		}
	}
	s.Parameters = append(s.Parameters, CommittedParameter{})
	copy(s.Parameters[pos+1:], s.Parameters[pos:])
	s.Parameters[pos] = entry
}

// ParameterMap flattens parameters into parameterID -> Parameter.
func (s *Session) ParameterMap() map[string]Parameter {
	out := make(map[string]Parameter, len(s.Parameters))
	for _, p := range s.Parameters {
		out[p.ParameterID] = p.Value
	}
	return out
}
