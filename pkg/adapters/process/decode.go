package process

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/canopy/pkg/domain"
)

// outputKeys are the envelope keys accepted in evaluator output, in priority order.
var outputKeys = []string{"candidates", "filtered_trees"}

// DecodeOutput parses evaluator stdout into candidates. Accepted shapes are
// {"candidates": [...]}, {"filtered_trees": [...]} or a bare array.
// Anything else, including empty output, is domain.ErrMalformedOutput.
func DecodeOutput(raw []byte) ([]domain.Candidate, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty output", domain.ErrMalformedOutput)
	}

	var records []map[string]any
	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedOutput, err)
		}
	case '{':
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrMalformedOutput, err)
		}
		found := false
		for _, key := range outputKeys {
			list, ok := envelope[key]
			if !ok {
				continue
			}
			if err := json.Unmarshal(list, &records); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", domain.ErrMalformedOutput, key, err)
			}
			found = true
			break
		}
		if !found {
			return nil, fmt.Errorf("%w: no candidate list in output", domain.ErrMalformedOutput)
		}
	default:
		return nil, fmt.Errorf("%w: output is not JSON", domain.ErrMalformedOutput)
	}

	return decodeRecords(records)
}

func decodeRecords(records []map[string]any) ([]domain.Candidate, error) {
	out := make([]domain.Candidate, 0, len(records))
	for i, rec := range records {
		c, err := decodeRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", domain.ErrMalformedOutput, i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func decodeRecord(rec map[string]any) (domain.Candidate, error) {
	var c domain.Candidate
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &c,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return c, err
	}
	if err := decoder.Decode(rec); err != nil {
		return c, err
	}
	if c.ID == "" {
		return c, fmt.Errorf("missing id")
	}

	// Records that round-tripped through our own encoding carry a nested
	// "attributes" object; flatten it back.
	if nested, ok := c.Attributes["attributes"].(map[string]any); ok {
		delete(c.Attributes, "attributes")
		for k, v := range nested {
			c.Attributes[k] = v
		}
	}
	if len(c.Attributes) == 0 {
		c.Attributes = nil
	}
	return c, nil
}
