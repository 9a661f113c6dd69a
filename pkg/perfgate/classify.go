package perfgate

import (
	"log/slog"
	"time"
)

// Severity ranks a classified sample. Warning is compliant-but-flagged;
// error and critical are non-compliant and count toward hysteresis.
type Severity int

const (
	SeverityOK Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "ok"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Classification is the outcome of evaluating one value against a budget.
// Custom enforcers return the same shape.
type Classification struct {
	Compliant      bool       `json:"compliant"`
	Severity       Severity   `json:"severity"`
	Threshold      float64    `json:"threshold"`
	Overage        float64    `json:"overage"`
	OveragePercent float64    `json:"overage_percent"`
	Actions        []Strategy `json:"actions,omitempty"`
}

// ClassificationResult is what Record returns to the producer: the
// classification plus episode state at the time of the sample.
type ClassificationResult struct {
	Budget    string    `json:"budget"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Classification

	// Violation is a copy of the active violation record, if the budget is
	// currently in a violation episode after this sample.
	Violation *ViolationRecord `json:"violation,omitempty"`
}

// passingResult is returned for budgets the engine does not know about: a
// mis-registered metric must never crash or alert a producer.
func passingResult(name string, value float64, at time.Time) ClassificationResult {
	return ClassificationResult{
		Budget:         name,
		Value:          value,
		Timestamp:      at,
		Classification: Classification{Compliant: true, Severity: SeverityOK},
	}
}

// classify evaluates value against def. All boundary comparisons are
// inclusive: the partition v<w / w<=v<e / e<=v<c / v>=c maps exactly to
// ok/warning/error/critical (inverted when higher values are better).
// A panicking enforcer is contained and treated as a passing classification.
func classify(value float64, def BudgetDefinition, logger *slog.Logger) (cls Classification) {
	if def.Enforcer != nil {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("enforcer panicked, treating sample as compliant",
					"budget", def.Name, "panic", r)
				cls = Classification{Compliant: true, Severity: SeverityOK}
			}
		}()
		return def.Enforcer(value, def)
	}
	return defaultClassify(value, def)
}

func defaultClassify(value float64, def BudgetDefinition) Classification {
	exceeds := func(threshold float64) bool {
		if def.HigherIsBetter {
			return value <= threshold
		}
		return value >= threshold
	}

	var severity Severity
	var threshold float64
	switch {
	case def.hasCritical() && exceeds(def.CriticalThreshold):
		severity, threshold = SeverityCritical, def.CriticalThreshold
	case exceeds(def.ErrorThreshold):
		severity, threshold = SeverityError, def.ErrorThreshold
	case exceeds(def.WarningThreshold):
		severity, threshold = SeverityWarning, def.WarningThreshold
	default:
		return Classification{Compliant: true, Severity: SeverityOK}
	}

	cls := Classification{
		Compliant: severity == SeverityWarning,
		Severity:  severity,
		Threshold: threshold,
	}
	if severity >= SeverityError {
		if def.HigherIsBetter {
			cls.Overage = max(0, def.ErrorThreshold-value)
		} else {
			cls.Overage = max(0, value-def.ErrorThreshold)
		}
		if def.ErrorThreshold != 0 {
			cls.OveragePercent = cls.Overage / def.ErrorThreshold * 100
		}
	}
	return cls
}
