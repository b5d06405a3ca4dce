package cluster

import (
	"math"

	"dataprofiler/internal/profile"
)

// featureNames documents the fixed feature order. Every profile maps to one
// vector of this length; fields that don't apply to the attribute's type are
// imputed with 0, a neutral value after standardization, so heterogeneous
// type mixes never fail feature extraction.
var featureNames = []string{
	"null_percentage",
	"distinct_percentage",
	"mean",
	"median",
	"std_dev",
	"avg_length",
	"is_ssn_candidate",
	"is_dob_candidate",
	"top_1_frequency_pct",
	"top_5_frequency_pct",
	"range_days",
	"true_percentage",
}

// featureVector extracts the fixed-order numeric features of one profile.
func featureVector(p *profile.Profile) []float64 {
	v := make([]float64, len(featureNames))
	v[0] = p.NullPercentage
	v[1] = p.DistinctPercentage

	if m := p.Numeric; m != nil {
		v[2] = m.Mean
		v[3] = m.Median
		v[4] = m.StdDev
	}
	if m := p.String; m != nil {
		v[5] = m.AvgLength
		if m.SSNCandidate {
			v[6] = 1
		}
		if m.DOBCandidate {
			v[7] = 1
		}
		v[8] = m.Top1FrequencyPct
		v[9] = m.Top5FrequencyPct
	}
	if m := p.DateTime; m != nil {
		v[10] = m.RangeDays
	}
	if m := p.Boolean; m != nil {
		v[11] = m.TruePercentage
	}
	return v
}

// standardize scales each feature column to zero mean and unit variance in
// place, fit on this batch only. A zero-variance column scales to constant
// zero rather than NaN.
func standardize(x [][]float64) {
	if len(x) == 0 {
		return
	}
	cols := len(x[0])
	n := float64(len(x))

	for c := 0; c < cols; c++ {
		var sum float64
		for _, row := range x {
			sum += row[c]
		}
		mean := sum / n

		var sq float64
		for _, row := range x {
			d := row[c] - mean
			sq += d * d
		}
		variance := sq / n

		if variance == 0 {
			for _, row := range x {
				row[c] = 0
			}
			continue
		}

		std := math.Sqrt(variance)
		for _, row := range x {
			row[c] = (row[c] - mean) / std
		}
	}
}
