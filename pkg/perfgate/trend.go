package perfgate

import (
	"math"
	"sort"
)

// TrendDirection summarizes how a budget's metric is moving.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendStable    TrendDirection = "stable"
	TrendDegrading TrendDirection = "degrading"
)

// trendChangeCutoff is the percent change between the early and late half of
// the window below/above which the trend is called improving/degrading.
const trendChangeCutoff = 5.0

// TrendSummary is a pure read-side computation over a budget's sample
// history. Percentiles use the nearest-rank method.
type TrendSummary struct {
	Budget         string         `json:"budget"`
	SampleCount    int            `json:"sample_count"`
	Average        float64        `json:"average"`
	Min            float64        `json:"min"`
	Max            float64        `json:"max"`
	P50            float64        `json:"p50"`
	P75            float64        `json:"p75"`
	P90            float64        `json:"p90"`
	P95            float64        `json:"p95"`
	P99            float64        `json:"p99"`
	ComplianceRate float64        `json:"compliance_rate"`
	Direction      TrendDirection `json:"direction"`
	ChangePercent  float64        `json:"change_percent"`
}

// analyzeTrend computes statistics over a snapshot of samples. The snapshot
// is never mutated; sorting happens on a private copy of the values.
func analyzeTrend(budget string, samples []Sample, higherIsBetter bool) *TrendSummary {
	n := len(samples)
	if n == 0 {
		return nil
	}

	values := make([]float64, n)
	var sum float64
	compliant := 0
	for i, s := range samples {
		values[i] = s.Value
		sum += s.Value
		if s.Compliant {
			compliant++
		}
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	summary := &TrendSummary{
		Budget:         budget,
		SampleCount:    n,
		Average:        sum / float64(n),
		Min:            sorted[0],
		Max:            sorted[n-1],
		P50:            nearestRank(sorted, 50),
		P75:            nearestRank(sorted, 75),
		P90:            nearestRank(sorted, 90),
		P95:            nearestRank(sorted, 95),
		P99:            nearestRank(sorted, 99),
		ComplianceRate: float64(compliant) / float64(n) * 100,
		Direction:      TrendStable,
	}

	// Trend needs at least two samples: compare the mean of the early half
	// against the mean of the late half (in arrival order, not sorted).
	if n >= 2 {
		half := n / 2
		early := mean(values[:half])
		late := mean(values[half:])
		if early != 0 {
			summary.ChangePercent = (late - early) / early * 100
		}
		change := summary.ChangePercent
		if higherIsBetter {
			change = -change
		}
		switch {
		case change < -trendChangeCutoff:
			summary.Direction = TrendImproving
		case change > trendChangeCutoff:
			summary.Direction = TrendDegrading
		}
	}
	return summary
}

// nearestRank returns the p-th percentile of a sorted slice using
// index = ceil(p/100 * n) - 1, clamped to [0, n-1].
func nearestRank(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
