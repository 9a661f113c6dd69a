package perfgate

import (
	"errors"
	"testing"
)

func TestBudgetDefinitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		def     BudgetDefinition
		wantErr bool
	}{
		{
			"valid",
			BudgetDefinition{Name: "lcp", Unit: UnitMilliseconds, WarningThreshold: 2500, ErrorThreshold: 4000, CriticalThreshold: 6000},
			false,
		},
		{
			"valid without critical",
			BudgetDefinition{Name: "lcp", Unit: UnitMilliseconds, WarningThreshold: 2500, ErrorThreshold: 4000},
			false,
		},
		{
			"empty name",
			BudgetDefinition{Unit: UnitMilliseconds, WarningThreshold: 1, ErrorThreshold: 2},
			true,
		},
		{
			"unknown unit",
			BudgetDefinition{Name: "x", Unit: "furlongs", WarningThreshold: 1, ErrorThreshold: 2},
			true,
		},
		{
			"unknown category",
			BudgetDefinition{Name: "x", Unit: UnitCount, Category: "nope", WarningThreshold: 1, ErrorThreshold: 2},
			true,
		},
		{
			"warning above error",
			BudgetDefinition{Name: "x", Unit: UnitCount, WarningThreshold: 5, ErrorThreshold: 2},
			true,
		},
		{
			"warning equals error",
			BudgetDefinition{Name: "x", Unit: UnitCount, WarningThreshold: 2, ErrorThreshold: 2},
			true,
		},
		{
			"critical below error",
			BudgetDefinition{Name: "x", Unit: UnitCount, WarningThreshold: 1, ErrorThreshold: 5, CriticalThreshold: 3},
			true,
		},
		{
			"higher-is-better valid",
			BudgetDefinition{Name: "fps", Unit: UnitFPS, HigherIsBetter: true, WarningThreshold: 50, ErrorThreshold: 30, CriticalThreshold: 15},
			false,
		},
		{
			"higher-is-better inverted wrong",
			BudgetDefinition{Name: "fps", Unit: UnitFPS, HigherIsBetter: true, WarningThreshold: 30, ErrorThreshold: 50},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var cfgErr *ConfigError
				if !errors.As(err, &cfgErr) {
					t.Errorf("error type = %T, want *ConfigError", err)
				}
			}
		})
	}
}

func TestUnitFormat(t *testing.T) {
	tests := []struct {
		unit  Unit
		value float64
		want  string
	}{
		{UnitMilliseconds, 250, "250ms"},
		{UnitMilliseconds, 4500, "4.50s"},
		{UnitBytes, 512, "512B"},
		{UnitBytes, 2048, "2.0KB"},
		{UnitBytes, 5 << 20, "5.00MB"},
		{UnitScore, 0.125, "0.125"},
		{UnitCount, 42, "42"},
		{UnitPercent, 99.5, "99.5%"},
		{UnitFPS, 60, "60fps"},
	}
	for _, tt := range tests {
		if got := tt.unit.Format(tt.value); got != tt.want {
			t.Errorf("%s.Format(%v) = %q, want %q", tt.unit, tt.value, got, tt.want)
		}
	}
}

func TestBudgetPatchApply(t *testing.T) {
	def := BudgetDefinition{
		Name:             "lcp",
		Category:         CategoryVitals,
		Unit:             UnitMilliseconds,
		WarningThreshold: 2500,
		ErrorThreshold:   4000,
	}

	warn := 3000.0
	actions := []Strategy{"reduce-images"}
	got := BudgetPatch{WarningThreshold: &warn, DegradationActions: actions}.apply(def)

	if got.WarningThreshold != 3000 {
		t.Errorf("warning = %v", got.WarningThreshold)
	}
	if got.ErrorThreshold != 4000 || got.Category != CategoryVitals {
		t.Error("unpatched fields changed")
	}
	if len(got.DegradationActions) != 1 {
		t.Errorf("actions = %v", got.DegradationActions)
	}
}
