package perfgate

import (
	"testing"
	"time"
)

func samplesFrom(values []float64, compliant func(float64) bool) []Sample {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Sample, len(values))
	for i, v := range values {
		out[i] = Sample{Value: v, Timestamp: base.Add(time.Duration(i) * time.Second), Compliant: compliant(v)}
	}
	return out
}

func allCompliant(float64) bool { return true }

func TestAnalyzeTrendEmpty(t *testing.T) {
	if got := analyzeTrend("x", nil, false); got != nil {
		t.Errorf("empty history should yield nil, got %+v", got)
	}
}

func TestAnalyzeTrendPercentiles(t *testing.T) {
	// Nearest-rank: p50 of five values is the 3rd, not an interpolation.
	samples := samplesFrom([]float64{10, 20, 30, 40, 50}, allCompliant)
	got := analyzeTrend("x", samples, false)

	if got.P50 != 30 {
		t.Errorf("p50 = %v, want 30", got.P50)
	}
	if got.P90 != 50 {
		t.Errorf("p90 = %v, want 50", got.P90)
	}
	if got.P99 != 50 {
		t.Errorf("p99 = %v, want 50", got.P99)
	}
	if got.Min != 10 || got.Max != 50 {
		t.Errorf("min/max = %v/%v", got.Min, got.Max)
	}
	if got.Average != 30 {
		t.Errorf("average = %v, want 30", got.Average)
	}
	if got.SampleCount != 5 {
		t.Errorf("sample count = %d", got.SampleCount)
	}
}

func TestAnalyzeTrendSingleSampleIsStable(t *testing.T) {
	samples := samplesFrom([]float64{42}, allCompliant)
	got := analyzeTrend("x", samples, false)
	if got.Direction != TrendStable {
		t.Errorf("direction = %v, want stable with one sample", got.Direction)
	}
	if got.P50 != 42 || got.P99 != 42 {
		t.Errorf("percentiles of a single sample should be that sample: %+v", got)
	}
}

func TestAnalyzeTrendDirection(t *testing.T) {
	tests := []struct {
		name           string
		values         []float64
		higherIsBetter bool
		want           TrendDirection
	}{
		{"rising latency degrades", []float64{100, 100, 200, 200}, false, TrendDegrading},
		{"falling latency improves", []float64{200, 200, 100, 100}, false, TrendImproving},
		{"flat is stable", []float64{100, 101, 100, 99}, false, TrendStable},
		{"within cutoff is stable", []float64{100, 100, 104, 104}, false, TrendStable},
		{"rising fps improves", []float64{30, 30, 60, 60}, true, TrendImproving},
		{"falling fps degrades", []float64{60, 60, 30, 30}, true, TrendDegrading},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := analyzeTrend("x", samplesFrom(tt.values, allCompliant), tt.higherIsBetter)
			if got.Direction != tt.want {
				t.Errorf("direction = %v (change %.1f%%), want %v",
					got.Direction, got.ChangePercent, tt.want)
			}
		})
	}
}

func TestAnalyzeTrendComplianceRate(t *testing.T) {
	samples := samplesFrom([]float64{1, 2, 3, 11, 12}, func(v float64) bool { return v <= 10 })
	got := analyzeTrend("x", samples, false)
	if got.ComplianceRate != 60 {
		t.Errorf("compliance rate = %v, want 60", got.ComplianceRate)
	}
}

func TestNearestRank(t *testing.T) {
	sorted := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	tests := []struct {
		p    float64
		want float64
	}{
		{50, 50},
		{90, 90},
		{95, 100},
		{99, 100},
		{1, 10},
	}
	for _, tt := range tests {
		if got := nearestRank(sorted, tt.p); got != tt.want {
			t.Errorf("p%g = %v, want %v", tt.p, got, tt.want)
		}
	}
	if got := nearestRank(nil, 50); got != 0 {
		t.Errorf("empty slice = %v, want 0", got)
	}
}
