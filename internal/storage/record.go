package storage

import (
	"encoding/json"
	"fmt"

	"dataprofiler/internal/profile"
)

// The results row is the same shape in every backend: identity and common
// metrics as plain columns (queryable), the type-specific block as one JSON
// document. This file holds the codec both directions so backends only
// differ in SQL dialect, not in row semantics.

// metricsDoc is the JSON envelope for the type-specific metric block.
// Exactly one field is set for non-error profiles.
type metricsDoc struct {
	Numeric  *profile.NumericMetrics  `json:"numeric,omitempty"`
	String   *profile.StringMetrics   `json:"string,omitempty"`
	DateTime *profile.DateTimeMetrics `json:"datetime,omitempty"`
	Boolean  *profile.BooleanMetrics  `json:"boolean,omitempty"`
}

// EncodeMetrics renders the profile's metric block as JSON. Error records
// (no block) encode as an empty document.
func EncodeMetrics(p *profile.Profile) ([]byte, error) {
	doc := metricsDoc{
		Numeric:  p.Numeric,
		String:   p.String,
		DateTime: p.DateTime,
		Boolean:  p.Boolean,
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("storage: encode metrics for %s: %w", p.AttributeKey, err)
	}
	return b, nil
}

// DecodeMetrics restores the metric block onto p from its JSON document.
// Empty input leaves every block nil.
func DecodeMetrics(data []byte, p *profile.Profile) error {
	if len(data) == 0 {
		return nil
	}
	var doc metricsDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("storage: decode metrics for %s: %w", p.AttributeKey, err)
	}
	p.Numeric = doc.Numeric
	p.String = doc.String
	p.DateTime = doc.DateTime
	p.Boolean = doc.Boolean
	return nil
}

// PatternFlags extracts the SSN/DOB candidate flags for the dedicated
// columns. Non-string attributes report false/false.
func PatternFlags(p *profile.Profile) (ssn, dob bool) {
	if p.String == nil {
		return false, false
	}
	return p.String.SSNCandidate, p.String.DOBCandidate
}
