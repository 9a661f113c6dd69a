package perfgate

import (
	"sort"
	"time"
)

// BudgetStatus is a point-in-time view of one budget: its definition, the
// latest sample, the active violation episode (if any), and rolling trend
// statistics.
type BudgetStatus struct {
	Name       string           `json:"name"`
	Definition BudgetDefinition `json:"definition"`

	HasSamples     bool      `json:"has_samples"`
	CurrentValue   float64   `json:"current_value"`
	FormattedValue string    `json:"formatted_value,omitempty"`
	Severity       Severity  `json:"severity"`
	Compliant      bool      `json:"compliant"`
	LastSampleAt   time.Time `json:"last_sample_at,omitzero"`

	SampleCount           int              `json:"sample_count"`
	ConsecutiveViolations int              `json:"consecutive_violations"`
	ViolationEpisodes     int              `json:"violation_episodes"`
	Violation             *ViolationRecord `json:"violation,omitempty"`

	Trend *TrendSummary `json:"trend,omitempty"`
}

// BudgetCompliance is one budget's row in a compliance report.
type BudgetCompliance struct {
	Name              string   `json:"name"`
	Category          Category `json:"category"`
	Compliant         bool     `json:"compliant"`
	ComplianceRate    float64  `json:"compliance_rate"`
	SampleCount       int      `json:"sample_count"`
	ViolationEpisodes int      `json:"violation_episodes"`
}

// ComplianceReport aggregates compliance across all registered budgets.
type ComplianceReport struct {
	GeneratedAt      time.Time          `json:"generated_at"`
	TotalBudgets     int                `json:"total_budgets"`
	CompliantBudgets int                `json:"compliant_budgets"`
	ViolatingBudgets int                `json:"violating_budgets"`
	OverallRate      float64            `json:"overall_rate"`
	Degradation      DegradationState   `json:"degradation"`
	Budgets          []BudgetCompliance `json:"budgets"`
}

// GetStatus returns the current status of one budget. The second return is
// false for unknown names. A budget with no samples yet reports as compliant
// with HasSamples false.
func (e *Engine) GetStatus(name string) (BudgetStatus, bool) {
	e.mu.RLock()
	st := e.budgets[name]
	e.mu.RUnlock()
	if st == nil {
		return BudgetStatus{}, false
	}
	return e.statusOf(st), true
}

// GetAllStatuses returns the status of every registered budget, sorted by
// name.
func (e *Engine) GetAllStatuses() []BudgetStatus {
	e.mu.RLock()
	states := make([]*budgetState, 0, len(e.budgets))
	for _, st := range e.budgets {
		states = append(states, st)
	}
	e.mu.RUnlock()

	statuses := make([]BudgetStatus, 0, len(states))
	for _, st := range states {
		statuses = append(statuses, e.statusOf(st))
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// GetTrend computes rolling statistics over a budget's sample history.
// Returns nil for unknown budgets and for budgets with no samples.
func (e *Engine) GetTrend(name string) *TrendSummary {
	e.mu.RLock()
	st := e.budgets[name]
	e.mu.RUnlock()
	if st == nil {
		return nil
	}

	st.mu.Lock()
	def := st.def
	samples := st.history.snapshot()
	st.mu.Unlock()

	return analyzeTrend(def.Name, samples, def.HigherIsBetter)
}

// History returns a copy of a budget's recorded samples in arrival order.
func (e *Engine) History(name string) []Sample {
	e.mu.RLock()
	st := e.budgets[name]
	e.mu.RUnlock()
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.history.snapshot()
}

// GetComplianceReport summarizes compliance across every budget plus the
// current degradation state. A budget counts as compliant when it has no
// open violation episode; budgets without samples count as compliant.
func (e *Engine) GetComplianceReport() ComplianceReport {
	statuses := e.GetAllStatuses()

	report := ComplianceReport{
		GeneratedAt:  e.now(),
		TotalBudgets: len(statuses),
		Degradation:  e.controller.snapshot(),
		Budgets:      make([]BudgetCompliance, 0, len(statuses)),
	}

	for _, s := range statuses {
		row := BudgetCompliance{
			Name:              s.Name,
			Category:          s.Definition.Category,
			Compliant:         s.Violation == nil,
			ComplianceRate:    100,
			SampleCount:       s.SampleCount,
			ViolationEpisodes: s.ViolationEpisodes,
		}
		if s.Trend != nil {
			row.ComplianceRate = s.Trend.ComplianceRate
		}
		if row.Compliant {
			report.CompliantBudgets++
		} else {
			report.ViolatingBudgets++
		}
		report.Budgets = append(report.Budgets, row)
	}
	if report.TotalBudgets > 0 {
		report.OverallRate = float64(report.CompliantBudgets) / float64(report.TotalBudgets) * 100
	} else {
		report.OverallRate = 100
	}
	return report
}

func (e *Engine) statusOf(st *budgetState) BudgetStatus {
	st.mu.Lock()
	def := st.def
	status := BudgetStatus{
		Name:                  def.Name,
		Definition:            def,
		HasSamples:            st.hasSample,
		CurrentValue:          st.lastValue,
		Severity:              st.lastSeverity,
		Compliant:             st.violation == nil,
		SampleCount:           st.history.len(),
		ConsecutiveViolations: st.consecutive,
		ViolationEpisodes:     st.episodes,
		Violation:             st.violation.clone(),
	}
	if last, ok := st.history.last(); ok {
		status.LastSampleAt = last.Timestamp
	}
	samples := st.history.snapshot()
	st.mu.Unlock()

	if status.HasSamples {
		status.FormattedValue = def.Unit.Format(status.CurrentValue)
	}
	status.Trend = analyzeTrend(def.Name, samples, def.HigherIsBetter)
	return status
}
