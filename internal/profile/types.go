// Package profile defines the attribute profile data model shared by the
// profiling engine, the clustering engine, and the storage backends.
//
// The model is a tagged variant: DataType selects exactly one of the
// type-specific metric blocks (Numeric, String, DateTime, Boolean). Keeping
// "which fields are valid" a type-level property avoids one wide record full
// of optional columns and makes the storage row shape explicit.
package profile

import (
	"fmt"
	"strings"
	"time"
)

// DataType is the detected logical type of a profiled attribute.
type DataType string

const (
	TypeNumeric  DataType = "NUMERIC"
	TypeString   DataType = "STRING"
	TypeDateTime DataType = "DATETIME"
	TypeBoolean  DataType = "BOOLEAN"
)

// Ref identifies a single column to profile. It is immutable once selected.
//
// Source is a short label for the origin ("csv", "db", a connector name).
// Schema and Table are optional for flat-file sources.
type Ref struct {
	Source       string
	Schema       string
	Table        string
	Column       string
	DeclaredType string
}

// Key renders the stable attribute key used for overwrite semantics in the
// profile store: "source:schema.table.column" with empty parts elided.
//
// Examples:
//   - {Source:"db", Schema:"public", Table:"users", Column:"ssn"} -> "db:public.users.ssn"
//   - {Source:"csv", Column:"amount"}                             -> "csv:amount"
func (r Ref) Key() string {
	parts := make([]string, 0, 3)
	if r.Schema != "" {
		parts = append(parts, r.Schema)
	}
	if r.Table != "" {
		parts = append(parts, r.Table)
	}
	parts = append(parts, r.Column)

	if r.Source == "" {
		return strings.Join(parts, ".")
	}
	return r.Source + ":" + strings.Join(parts, ".")
}

// Profile is the structured statistical summary for one attribute at one
// point in time.
//
// Invariants:
//   - Exactly one of Numeric/String/DateTime/Boolean is non-nil, matching
//     DataType. Error records may have none.
//   - NullCount + non-null count == TotalRecords.
//   - DistinctCount <= TotalRecords - NullCount.
//   - ClusterID stays nil until a clustering run assigns one.
type Profile struct {
	AttributeKey string    `json:"attribute_key"`
	ProfiledAt   time.Time `json:"profiled_at"`

	DataType DataType `json:"data_type_detected"`

	TotalRecords       int64   `json:"total_records"`
	NullCount          int64   `json:"null_count"`
	NullPercentage     float64 `json:"null_percentage"`
	DistinctCount      int64   `json:"distinct_count"`
	DistinctPercentage float64 `json:"distinct_percentage"`
	IsUnique           bool    `json:"is_unique"`

	Numeric  *NumericMetrics  `json:"numeric,omitempty"`
	String   *StringMetrics   `json:"string,omitempty"`
	DateTime *DateTimeMetrics `json:"datetime,omitempty"`
	Boolean  *BooleanMetrics  `json:"boolean,omitempty"`

	// ClusterID is assigned by the clustering engine. Labels are arbitrary
	// and carry no cross-run stability guarantee.
	ClusterID *int `json:"cluster_id,omitempty"`

	// Error is set on error records produced when a data accessor fails.
	// Error records carry identity plus whatever common metrics were
	// computed before the failure; metric blocks stay nil.
	Error string `json:"error,omitempty"`
}

// IsError reports whether p is an error record rather than a full profile.
func (p *Profile) IsError() bool { return p.Error != "" }

// Quantile is one percentile/value pair of a numeric distribution.
type Quantile struct {
	Percentile int     `json:"percentile"`
	Value      float64 `json:"value"`
}

// Bin is one fixed-width histogram bucket over [Low, High).
// The last bin is closed on both ends.
type Bin struct {
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Count int64   `json:"count"`
}

// NumericMetrics holds aggregates for NUMERIC attributes.
// StdDev and Variance are population statistics.
type NumericMetrics struct {
	Min       float64    `json:"min"`
	Max       float64    `json:"max"`
	Mean      float64    `json:"mean"`
	Median    float64    `json:"median"`
	StdDev    float64    `json:"std_dev"`
	Variance  float64    `json:"variance"`
	Quantiles []Quantile `json:"quantiles,omitempty"`
	Histogram []Bin      `json:"histogram,omitempty"`
}

// ValueCount is one entry of a top-K frequency list, most frequent first.
type ValueCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// StringMetrics holds aggregates for STRING attributes. Length statistics
// are over non-null values. The frequency percentages are cumulative shares
// of the non-null count.
type StringMetrics struct {
	MinLength        int          `json:"min_length"`
	MaxLength        int          `json:"max_length"`
	AvgLength        float64      `json:"avg_length"`
	TopValues        []ValueCount `json:"top_values,omitempty"`
	Top1FrequencyPct float64      `json:"top_1_frequency_pct"`
	Top5FrequencyPct float64      `json:"top_5_frequency_pct"`

	SSNCandidate bool `json:"is_ssn_candidate"`
	DOBCandidate bool `json:"is_dob_candidate"`
}

// FormatCount records how many sampled values matched a given time layout.
type FormatCount struct {
	Layout string `json:"layout"`
	Count  int64  `json:"count"`
}

// YearCount is one calendar-year bucket of a datetime histogram.
type YearCount struct {
	Year  int   `json:"year"`
	Count int64 `json:"count"`
}

// DateTimeMetrics holds aggregates for DATETIME attributes.
type DateTimeMetrics struct {
	Min       time.Time     `json:"min"`
	Max       time.Time     `json:"max"`
	RangeDays float64       `json:"range_days"`
	Formats   []FormatCount `json:"formats,omitempty"`
	ByYear    []YearCount   `json:"by_year,omitempty"`
}

// BooleanMetrics holds aggregates for BOOLEAN attributes.
type BooleanMetrics struct {
	TrueCount      int64   `json:"true_count"`
	FalseCount     int64   `json:"false_count"`
	TruePercentage float64 `json:"true_percentage"`
}

// Validate checks the structural invariants of a non-error profile.
//
// It is used by tests and by storage backends before persisting; engines are
// expected to produce valid profiles by construction.
func (p *Profile) Validate() error {
	if p.AttributeKey == "" {
		return fmt.Errorf("profile: missing attribute_key")
	}
	if p.IsError() {
		return nil
	}

	blocks := 0
	if p.Numeric != nil {
		blocks++
	}
	if p.String != nil {
		blocks++
	}
	if p.DateTime != nil {
		blocks++
	}
	if p.Boolean != nil {
		blocks++
	}
	if blocks != 1 {
		return fmt.Errorf("profile %s: want exactly one metric block, have %d", p.AttributeKey, blocks)
	}

	switch p.DataType {
	case TypeNumeric:
		if p.Numeric == nil {
			return fmt.Errorf("profile %s: data_type=NUMERIC without numeric block", p.AttributeKey)
		}
	case TypeString:
		if p.String == nil {
			return fmt.Errorf("profile %s: data_type=STRING without string block", p.AttributeKey)
		}
	case TypeDateTime:
		if p.DateTime == nil {
			return fmt.Errorf("profile %s: data_type=DATETIME without datetime block", p.AttributeKey)
		}
	case TypeBoolean:
		if p.Boolean == nil {
			return fmt.Errorf("profile %s: data_type=BOOLEAN without boolean block", p.AttributeKey)
		}
	default:
		return fmt.Errorf("profile %s: unknown data_type %q", p.AttributeKey, p.DataType)
	}

	if p.NullCount < 0 || p.NullCount > p.TotalRecords {
		return fmt.Errorf("profile %s: null_count %d out of range for total %d", p.AttributeKey, p.NullCount, p.TotalRecords)
	}
	if nonNull := p.TotalRecords - p.NullCount; p.DistinctCount > nonNull {
		return fmt.Errorf("profile %s: distinct_count %d exceeds non-null count %d", p.AttributeKey, p.DistinctCount, nonNull)
	}
	return nil
}
