package perfgate

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// DegradationLevel is derived from the number of active strategies, never
// stored independently of them.
type DegradationLevel string

const (
	LevelNone       DegradationLevel = "none"
	LevelLight      DegradationLevel = "light"
	LevelModerate   DegradationLevel = "moderate"
	LevelAggressive DegradationLevel = "aggressive"
)

func levelFor(strategies int) DegradationLevel {
	switch {
	case strategies <= 0:
		return LevelNone
	case strategies == 1:
		return LevelLight
	case strategies == 2:
		return LevelModerate
	default:
		return LevelAggressive
	}
}

// DegradationState is a read-only snapshot of the shared degradation state
// machine across all budgets.
type DegradationState struct {
	Active      bool             `json:"active"`
	Level       DegradationLevel `json:"level"`
	Strategies  []Strategy       `json:"strategies"`
	Reason      string           `json:"reason,omitempty"`
	ActivatedAt time.Time        `json:"activated_at,omitzero"`
}

// StrategyChange notifies a mitigation executor that a strategy was switched
// on or off.
type StrategyChange struct {
	Strategy  Strategy  `json:"strategy"`
	Active    bool      `json:"active"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// StrategyHandler is implemented by mitigation executors. Handle errors are
// logged and never interrupt metric recording or delivery to other handlers.
type StrategyHandler interface {
	Handle(change StrategyChange) error
}

// StrategyHandlerFunc adapts a plain function to the StrategyHandler interface.
type StrategyHandlerFunc func(change StrategyChange) error

func (f StrategyHandlerFunc) Handle(change StrategyChange) error { return f(change) }

// degradationController owns the shared degradation state. Strategies are
// reference-counted across violating budgets: a strategy deactivates only
// when no currently-violating budget requires it. Manual forces live in a
// separate set so threshold evaluation cannot clear them.
type degradationController struct {
	mu          sync.Mutex
	refs        map[Strategy]map[string]struct{} // strategy -> violating budgets requiring it
	forced      map[Strategy]struct{}
	reason      string
	activatedAt time.Time
	now         func() time.Time
}

// degradationDiff describes one transition: which strategies flipped and the
// resulting state, for handler callbacks and event emission.
type degradationDiff struct {
	changed     bool
	activated   []Strategy
	deactivated []Strategy
	state       DegradationState
}

func newDegradationController(now func() time.Time) *degradationController {
	return &degradationController{
		refs:   make(map[Strategy]map[string]struct{}),
		forced: make(map[Strategy]struct{}),
		now:    now,
	}
}

// budgetViolated unions the budget's strategies into the active set.
func (c *degradationController) budgetViolated(budget string, actions []Strategy) degradationDiff {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.activeSetLocked()
	for _, a := range actions {
		set, ok := c.refs[a]
		if !ok {
			set = make(map[string]struct{})
			c.refs[a] = set
		}
		set[budget] = struct{}{}
	}
	return c.diffLocked(before, fmt.Sprintf("budget %q exceeded its error threshold", budget))
}

// budgetRecovered drops the budget's claims on every strategy. A strategy
// deactivates only once its last claiming budget has recovered.
func (c *degradationController) budgetRecovered(budget string) degradationDiff {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.activeSetLocked()
	for strategy, set := range c.refs {
		delete(set, budget)
		if len(set) == 0 {
			delete(c.refs, strategy)
		}
	}
	return c.diffLocked(before, fmt.Sprintf("budget %q recovered", budget))
}

// force activates a strategy independent of threshold evaluation.
func (c *degradationController) force(s Strategy) degradationDiff {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.activeSetLocked()
	c.forced[s] = struct{}{}
	return c.diffLocked(before, fmt.Sprintf("strategy %q forced manually", s))
}

// release deactivates a strategy outright, clearing both the manual force
// and any budget claims. A budget that is still violating will re-claim it
// on its next non-compliant sample.
func (c *degradationController) release(s Strategy) degradationDiff {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.activeSetLocked()
	delete(c.forced, s)
	delete(c.refs, s)
	return c.diffLocked(before, fmt.Sprintf("strategy %q released manually", s))
}

// reset clears everything unconditionally, bypassing reference counting.
func (c *degradationController) reset() degradationDiff {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.activeSetLocked()
	c.refs = make(map[Strategy]map[string]struct{})
	c.forced = make(map[Strategy]struct{})
	return c.diffLocked(before, "degradation reset")
}

func (c *degradationController) snapshot() DegradationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *degradationController) isActive(s Strategy) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.forced[s]; ok {
		return true
	}
	set, ok := c.refs[s]
	return ok && len(set) > 0
}

func (c *degradationController) activeSetLocked() map[Strategy]struct{} {
	active := make(map[Strategy]struct{}, len(c.refs)+len(c.forced))
	for s, set := range c.refs {
		if len(set) > 0 {
			active[s] = struct{}{}
		}
	}
	for s := range c.forced {
		active[s] = struct{}{}
	}
	return active
}

// diffLocked compares the active set before and after a mutation, maintains
// reason/activatedAt across the inactive<->active boundary, and reports what
// flipped.
func (c *degradationController) diffLocked(before map[Strategy]struct{}, reason string) degradationDiff {
	after := c.activeSetLocked()

	var diff degradationDiff
	for s := range after {
		if _, ok := before[s]; !ok {
			diff.activated = append(diff.activated, s)
		}
	}
	for s := range before {
		if _, ok := after[s]; !ok {
			diff.deactivated = append(diff.deactivated, s)
		}
	}
	diff.changed = len(diff.activated) > 0 || len(diff.deactivated) > 0

	if diff.changed {
		c.reason = reason
		if len(before) == 0 && len(after) > 0 {
			c.activatedAt = c.now()
		}
		if len(after) == 0 {
			c.activatedAt = time.Time{}
			c.reason = ""
		}
	}
	sortStrategies(diff.activated)
	sortStrategies(diff.deactivated)
	diff.state = c.stateLocked()
	return diff
}

func (c *degradationController) stateLocked() DegradationState {
	active := c.activeSetLocked()
	strategies := make([]Strategy, 0, len(active))
	for s := range active {
		strategies = append(strategies, s)
	}
	sortStrategies(strategies)
	return DegradationState{
		Active:      len(strategies) > 0,
		Level:       levelFor(len(strategies)),
		Strategies:  strategies,
		Reason:      c.reason,
		ActivatedAt: c.activatedAt,
	}
}

func sortStrategies(s []Strategy) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}
