package domain

import (
	"encoding/json"
	"fmt"
)

// Interval is a closed numeric range [From, To].
type Interval struct {
	From float64 `json:"from"`
	To   float64 `json:"to"`
}

// Contains reports whether other lies fully inside i.
func (i Interval) Contains(other Interval) bool {
	return i.From <= other.From && other.To <= i.To
}

// Parameter is the normalized value committed for a stage.
// Exactly one of Option or Range is meaningful, selected by Kind.
type Parameter struct {
	Kind   StageKind
	Option string
	Range  Interval
}

// OptionParameter builds a categorical parameter.
func OptionParameter(code string) Parameter {
	return Parameter{Kind: KindCategorical, Option: code}
}

// RangeParameter builds a range parameter.
func RangeParameter(from, to float64) Parameter {
	return Parameter{Kind: KindRange, Range: Interval{From: from, To: to}}
}

// Value returns the untagged payload: the option code or the Interval.
func (p Parameter) Value() any {
	if p.Kind == KindRange {
		return p.Range
	}
	return p.Option
}

// Equal reports whether two parameters carry the same value.
func (p Parameter) Equal(other Parameter) bool {
	if p.Kind != other.Kind {
		return false
	}
	if p.Kind == KindRange {
		return p.Range == other.Range
	}
	return p.Option == other.Option
}

func (p Parameter) String() string {
	if p.Kind == KindRange {
		return fmt.Sprintf("[%g, %g]", p.Range.From, p.Range.To)
	}
	return p.Option
}

// wireParameter is the serialized form: {"kind": ..., "value": ...}.
type wireParameter struct {
	Kind  StageKind       `json:"kind"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the parameter as {kind, value}.
func (p Parameter) MarshalJSON() ([]byte, error) {
	value, err := json.Marshal(p.Value())
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireParameter{Kind: p.Kind, Value: value})
}

// UnmarshalJSON decodes the {kind, value} form.
func (p *Parameter) UnmarshalJSON(data []byte) error {
	var w wireParameter
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case KindCategorical:
		var code string
		if err := json.Unmarshal(w.Value, &code); err != nil {
			return fmt.Errorf("categorical value: %w", err)
		}
		*p = OptionParameter(code)
	case KindRange:
		var iv Interval
		if err := json.Unmarshal(w.Value, &iv); err != nil {
			return fmt.Errorf("range value: %w", err)
		}
		*p = Parameter{Kind: KindRange, Range: iv}
	default:
		return fmt.Errorf("unknown parameter kind %q", w.Kind)
	}
	return nil
}

// RawInput is the untrusted submission for the current stage, as received
// from a form or API call. Categorical stages read Selection; Range stages
// read From and To.
type RawInput struct {
	Selection string `json:"selection,omitempty"`
	From      string `json:"from_value,omitempty"`
	To        string `json:"to_value,omitempty"`
}
