package perfgate

import "time"

// ViolationRecord tracks one violation episode: it is created when a budget's
// consecutive non-compliant counter first reaches the violation threshold,
// updated in place on every further non-compliant sample, and discarded when
// the budget returns to compliance. Its ID is stable for the episode's life.
type ViolationRecord struct {
	ID                    string    `json:"id"`
	Budget                string    `json:"budget"`
	Value                 float64   `json:"value"`
	Threshold             float64   `json:"threshold"`
	Severity              Severity  `json:"severity"`
	Overage               float64   `json:"overage"`
	OveragePercent        float64   `json:"overage_percent"`
	Context               string    `json:"context,omitempty"`
	FirstAt               time.Time `json:"first_at"`
	LastAt                time.Time `json:"last_at"`
	ConsecutiveViolations int       `json:"consecutive_violations"`
}

func (v *ViolationRecord) clone() *ViolationRecord {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
