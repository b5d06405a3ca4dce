// Package pattern implements heuristic sensitive-data detection for string
// attributes: Social Security numbers and dates of birth.
//
// Each detector is a sequence of gated checks (name, format, logical
// plausibility) that short-circuits to false at the first failing stage.
// Detection is pure and deterministic: given identical inputs and config,
// the result never changes. Sampling is "first N values" rather than random
// for exactly that reason.
package pattern

import (
	"regexp"
	"strings"
	"time"
)

// Config controls sampling and thresholds for both detectors.
//
// The thresholds are heuristics, not law; callers tuning precision/recall
// should adjust them here rather than patching the detectors.
type Config struct {
	// SampleSize caps how many non-null values are inspected. <=0 means
	// DefaultSampleSize.
	SampleSize int

	// FormatThreshold is the minimum fraction of sampled values that must
	// match the expected format. <=0 means DefaultFormatThreshold.
	FormatThreshold float64

	// LogicalThreshold is the minimum fraction of format-matching values
	// that must also pass logical constraints. <=0 means
	// DefaultLogicalThreshold.
	LogicalThreshold float64

	// MaxAgeYears bounds the plausible age implied by a DOB value.
	// <=0 means DefaultMaxAgeYears.
	MaxAgeYears float64

	// Now is a clock seam for the DOB plausibility window. nil means time.Now.
	Now func() time.Time
}

const (
	DefaultSampleSize       = 100
	DefaultFormatThreshold  = 0.90
	DefaultLogicalThreshold = 0.95
	DefaultMaxAgeYears      = 120
)

func (c Config) withDefaults() Config {
	if c.SampleSize <= 0 {
		c.SampleSize = DefaultSampleSize
	}
	if c.FormatThreshold <= 0 {
		c.FormatThreshold = DefaultFormatThreshold
	}
	if c.LogicalThreshold <= 0 {
		c.LogicalThreshold = DefaultLogicalThreshold
	}
	if c.MaxAgeYears <= 0 {
		c.MaxAgeYears = DefaultMaxAgeYears
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Flags is the detector output for one attribute.
type Flags struct {
	SSNCandidate bool
	DOBCandidate bool
}

// Detect runs both detectors over the same sample.
//
// samples must contain only non-null raw values; empty strings are skipped.
// Zero usable samples yields both flags false (insufficient evidence, not an
// error).
func Detect(name string, samples []string, cfg Config) Flags {
	return Flags{
		SSNCandidate: IsSSNCandidate(samples, cfg),
		DOBCandidate: IsDOBCandidate(name, samples, cfg),
	}
}

var (
	ssnHyphenRe = regexp.MustCompile(`^\d{3}-\d{2}-\d{4}$`)
	ssnPlainRe  = regexp.MustCompile(`^\d{9}$`)
)

// ssnNameHints flag attribute names that suggest SSN content. The hint is
// reported for confidence only; it never gates detection.
var ssnNameHints = []string{"ssn", "social", "security"}

// NameSuggestsSSN reports whether the attribute name hints at SSN content.
func NameSuggestsSSN(name string) bool {
	lower := strings.ToLower(name)
	for _, h := range ssnNameHints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

// IsSSNCandidate reports whether the sampled values likely contain SSNs.
//
// Stages:
//  1. Format: each value must match ddd-dd-dddd or a bare 9-digit run;
//     the match rate over the sample must reach FormatThreshold.
//  2. Logical (over format matches only): area not 000/666 and below 900,
//     group not 00, serial not 0000; pass rate must reach LogicalThreshold.
func IsSSNCandidate(samples []string, cfg Config) bool {
	cfg = cfg.withDefaults()

	sample := boundedSample(samples, cfg.SampleSize)
	if len(sample) == 0 {
		return false
	}

	var matches []string
	for _, v := range sample {
		if ssnHyphenRe.MatchString(v) || ssnPlainRe.MatchString(v) {
			matches = append(matches, v)
		}
	}
	if len(matches) == 0 {
		return false
	}
	if ratio(len(matches), len(sample)) < cfg.FormatThreshold {
		return false
	}

	logical := 0
	for _, v := range matches {
		if validSSN(v) {
			logical++
		}
	}
	return ratio(logical, len(matches)) >= cfg.LogicalThreshold
}

// validSSN applies area/group/serial constraints to a format-matching value.
func validSSN(s string) bool {
	var area, group, serial string
	switch len(s) {
	case 9:
		area, group, serial = s[0:3], s[3:5], s[5:9]
	case 11:
		area, group, serial = s[0:3], s[4:6], s[7:11]
	default:
		return false
	}

	// Area numbers 000, 666 and 900-999 were never issued.
	if area == "000" || area == "666" || area >= "900" {
		return false
	}
	if group == "00" {
		return false
	}
	if serial == "0000" {
		return false
	}
	return true
}

// dobNameKeywords gate DOB detection: without a suggestive name the check
// is skipped entirely. This keeps generic date columns from being flagged.
var dobNameKeywords = []string{"dob", "birth", "date_of_birth", "birthday"}

// dobLayouts is the ordered list of explicit layouts tried per sample,
// first match wins. ISO forms come first; the ambiguous numeric forms
// follow the US-first preference of the source data this was tuned on.
var dobLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"01/02/2006",
	"02/01/2006",
	"01-02-2006",
	"02.01.2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
}

// IsDOBCandidate reports whether the attribute likely contains dates of birth.
//
// Stages:
//  1. Name: the attribute name must contain a DOB keyword (case-insensitive).
//  2. Format: each sampled value must parse with one of dobLayouts; the
//     parse rate must reach FormatThreshold.
//  3. Logical (over parsed values only): not in the future, implied age in
//     [0, MaxAgeYears]; pass rate must reach LogicalThreshold.
func IsDOBCandidate(name string, samples []string, cfg Config) bool {
	cfg = cfg.withDefaults()

	lower := strings.ToLower(name)
	named := false
	for _, kw := range dobNameKeywords {
		if strings.Contains(lower, kw) {
			named = true
			break
		}
	}
	if !named {
		return false
	}

	sample := boundedSample(samples, cfg.SampleSize)
	if len(sample) == 0 {
		return false
	}

	var parsed []time.Time
	for _, v := range sample {
		if t, ok := ParseDate(v); ok {
			parsed = append(parsed, t)
		}
	}
	if len(parsed) == 0 {
		return false
	}
	if ratio(len(parsed), len(sample)) < cfg.FormatThreshold {
		return false
	}

	now := cfg.Now()
	plausible := 0
	for _, t := range parsed {
		if plausibleDOB(t, now, cfg.MaxAgeYears) {
			plausible++
		}
	}
	return ratio(plausible, len(parsed)) >= cfg.LogicalThreshold
}

// ParseDate attempts the ordered DOB layout list, first match wins.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, lay := range dobLayouts {
		if t, err := time.Parse(lay, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func plausibleDOB(t, now time.Time, maxAgeYears float64) bool {
	if t.After(now) {
		return false
	}
	age := now.Sub(t).Hours() / 24 / 365.25
	return age >= 0 && age <= maxAgeYears
}

// boundedSample returns the first n non-empty values, trimmed.
// First-N keeps the detectors deterministic across identical inputs.
func boundedSample(samples []string, n int) []string {
	out := make([]string, 0, min(n, len(samples)))
	for _, v := range samples {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
		if len(out) == n {
			break
		}
	}
	return out
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
