package perfgate

import "fmt"

// Category groups budgets by the kind of metric they watch.
type Category string

const (
	CategoryVitals  Category = "vitals"
	CategoryBundle  Category = "bundle"
	CategoryRuntime Category = "runtime"
	CategoryNetwork Category = "network"
	CategoryMemory  Category = "memory"
	CategoryCustom  Category = "custom"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryVitals, CategoryBundle, CategoryRuntime, CategoryNetwork, CategoryMemory, CategoryCustom:
		return true
	}
	return false
}

// Unit is the measurement unit of a budget. The set is closed: Format matches
// exhaustively so a new unit cannot silently fall through to a default.
type Unit string

const (
	UnitMilliseconds Unit = "ms"
	UnitBytes        Unit = "bytes"
	UnitScore        Unit = "score"
	UnitCount        Unit = "count"
	UnitPercent      Unit = "percent"
	UnitFPS          Unit = "fps"
)

// Valid reports whether u is a known unit.
func (u Unit) Valid() bool {
	switch u {
	case UnitMilliseconds, UnitBytes, UnitScore, UnitCount, UnitPercent, UnitFPS:
		return true
	}
	return false
}

// Format renders a value in this unit for human consumption.
func (u Unit) Format(value float64) string {
	switch u {
	case UnitMilliseconds:
		if value >= 1000 {
			return fmt.Sprintf("%.2fs", value/1000)
		}
		return fmt.Sprintf("%.0fms", value)
	case UnitBytes:
		switch {
		case value >= 1<<20:
			return fmt.Sprintf("%.2fMB", value/(1<<20))
		case value >= 1<<10:
			return fmt.Sprintf("%.1fKB", value/(1<<10))
		default:
			return fmt.Sprintf("%.0fB", value)
		}
	case UnitScore:
		return fmt.Sprintf("%.3f", value)
	case UnitCount:
		return fmt.Sprintf("%.0f", value)
	case UnitPercent:
		return fmt.Sprintf("%.1f%%", value)
	case UnitFPS:
		return fmt.Sprintf("%.0ffps", value)
	}
	return fmt.Sprintf("%g", value)
}

// Strategy identifies a mitigation action the host application implements
// (e.g. "disable-animations", "reduce-images"). The engine only tracks which
// strategies should be active.
type Strategy string

// Enforcer is a pluggable classification function that fully replaces the
// default threshold comparison for one budget. The rest of the pipeline
// (history, hysteresis, degradation) applies uniformly on top of whatever
// the enforcer reports as Compliant.
type Enforcer func(value float64, def BudgetDefinition) Classification

// BudgetDefinition declares a named metric with its thresholds and the
// mitigation strategies required when it is persistently violated.
//
// The zero value of HigherIsBetter means lower values are better, which is
// the common case (latency, size, memory). Set it for fps-like metrics where
// the threshold comparisons invert.
type BudgetDefinition struct {
	Name             string   `json:"name"`
	Category         Category `json:"category"`
	WarningThreshold float64  `json:"warning_threshold"`
	ErrorThreshold   float64  `json:"error_threshold"`
	// CriticalThreshold is optional; zero means the budget has no critical
	// tier. (A meaningful critical threshold is never zero: lower-is-better
	// budgets have positive thresholds, and a zero-fps critical is useless.)
	CriticalThreshold float64 `json:"critical_threshold,omitempty"`
	Unit              Unit    `json:"unit"`
	HigherIsBetter    bool    `json:"higher_is_better,omitempty"`

	DegradationActions []Strategy `json:"degradation_actions,omitempty"`

	// Enforcer overrides the default classification. Not serializable.
	Enforcer Enforcer `json:"-" toml:"-"`
}

func (d BudgetDefinition) hasCritical() bool { return d.CriticalThreshold != 0 }

// Validate checks the definition for structural problems: missing name,
// unknown unit or category, and non-monotonic thresholds
// (warning < error <= critical, inverted for higher-is-better budgets).
func (d BudgetDefinition) Validate() error {
	if d.Name == "" {
		return &ConfigError{Budget: d.Name, Reason: "name must not be empty"}
	}
	if !d.Unit.Valid() {
		return &ConfigError{Budget: d.Name, Reason: fmt.Sprintf("unknown unit %q", d.Unit)}
	}
	if d.Category != "" && !d.Category.Valid() {
		return &ConfigError{Budget: d.Name, Reason: fmt.Sprintf("unknown category %q", d.Category)}
	}
	if d.HigherIsBetter {
		if d.WarningThreshold <= d.ErrorThreshold {
			return &ConfigError{Budget: d.Name, Reason: fmt.Sprintf(
				"thresholds must satisfy warning > error for higher-is-better budgets (warning=%g error=%g)",
				d.WarningThreshold, d.ErrorThreshold)}
		}
		if d.hasCritical() && d.ErrorThreshold < d.CriticalThreshold {
			return &ConfigError{Budget: d.Name, Reason: fmt.Sprintf(
				"thresholds must satisfy error >= critical for higher-is-better budgets (error=%g critical=%g)",
				d.ErrorThreshold, d.CriticalThreshold)}
		}
		return nil
	}
	if d.WarningThreshold >= d.ErrorThreshold {
		return &ConfigError{Budget: d.Name, Reason: fmt.Sprintf(
			"thresholds must satisfy warning < error (warning=%g error=%g)",
			d.WarningThreshold, d.ErrorThreshold)}
	}
	if d.hasCritical() && d.ErrorThreshold > d.CriticalThreshold {
		return &ConfigError{Budget: d.Name, Reason: fmt.Sprintf(
			"thresholds must satisfy error <= critical (error=%g critical=%g)",
			d.ErrorThreshold, d.CriticalThreshold)}
	}
	return nil
}

// BudgetPatch is a partial update applied by UpdateBudget. Nil fields are
// left unchanged; the patched definition is re-validated before it replaces
// the old one.
type BudgetPatch struct {
	Category           *Category
	WarningThreshold   *float64
	ErrorThreshold     *float64
	CriticalThreshold  *float64
	Unit               *Unit
	HigherIsBetter     *bool
	DegradationActions []Strategy
	Enforcer           Enforcer
}

func (p BudgetPatch) apply(def BudgetDefinition) BudgetDefinition {
	if p.Category != nil {
		def.Category = *p.Category
	}
	if p.WarningThreshold != nil {
		def.WarningThreshold = *p.WarningThreshold
	}
	if p.ErrorThreshold != nil {
		def.ErrorThreshold = *p.ErrorThreshold
	}
	if p.CriticalThreshold != nil {
		def.CriticalThreshold = *p.CriticalThreshold
	}
	if p.Unit != nil {
		def.Unit = *p.Unit
	}
	if p.HigherIsBetter != nil {
		def.HigherIsBetter = *p.HigherIsBetter
	}
	if p.DegradationActions != nil {
		def.DegradationActions = p.DegradationActions
	}
	if p.Enforcer != nil {
		def.Enforcer = p.Enforcer
	}
	return def
}
