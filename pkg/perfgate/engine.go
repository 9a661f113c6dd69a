package perfgate

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Engine is the budget evaluation and adaptive degradation engine. It is
// thread-safe and designed for embedding: construct one instance at startup
// and hand it to producers (Record) and consumers (read API, On).
//
// Samples for one budget are serialized by that budget's own mutex, so
// unrelated budgets never contend on a single global lock. The degradation
// controller has its own lock because transitions read the violation state
// of multiple budgets atomically.
type Engine struct {
	cfg     Config
	logger  *slog.Logger
	context string

	mu      sync.RWMutex
	budgets map[string]*budgetState

	controller *degradationController
	bus        *eventBus

	handlersMu sync.RWMutex
	handlers   []StrategyHandler

	// Injectable clock for testing.
	now func() time.Time
}

// budgetState is everything the engine tracks per budget. Guarded by its own
// mutex; the engine's map lock is only held to look the state up.
type budgetState struct {
	mu          sync.Mutex
	def         BudgetDefinition
	history     *sampleHistory
	consecutive int
	violation   *ViolationRecord
	lastAlertAt time.Time

	lastValue    float64
	lastSeverity Severity
	hasSample    bool
	episodes     int
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger replaces the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithContext sets a context label (deployment, page URL, host) stamped onto
// every violation record.
func WithContext(label string) Option {
	return func(e *Engine) { e.context = label }
}

// NewEngine creates an engine with the given configuration. Zero-valued
// config fields take their documented defaults.
func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:     cfg.withDefaults(),
		logger:  slog.Default(),
		budgets: make(map[string]*budgetState),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.controller = newDegradationController(func() time.Time { return e.now() })
	e.bus = newEventBus(e.logger)
	return e
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Registry

// RegisterBudget adds a budget, validating it eagerly. Registering a name
// that already exists replaces the definition and resets its history and
// violation state; use UpdateBudget to mutate a budget in place.
func (e *Engine) RegisterBudget(def BudgetDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	replaced := e.budgets[def.Name] != nil
	e.budgets[def.Name] = &budgetState{
		def:     def,
		history: newSampleHistory(e.cfg.MaxHistoryEntries, e.cfg.HistoryRetention),
	}
	e.mu.Unlock()

	if replaced {
		e.applyDegradation(e.controller.budgetRecovered(def.Name), e.now())
	}
	return nil
}

// UpdateBudget applies a partial update to an existing budget, keeping its
// history and violation state. Returns ErrBudgetNotFound for unknown names
// and a ConfigError if the patched definition is invalid.
func (e *Engine) UpdateBudget(name string, patch BudgetPatch) error {
	e.mu.RLock()
	st := e.budgets[name]
	e.mu.RUnlock()
	if st == nil {
		return fmt.Errorf("update budget %q: %w", name, ErrBudgetNotFound)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	updated := patch.apply(st.def)
	if err := updated.Validate(); err != nil {
		return err
	}
	st.def = updated
	return nil
}

// RemoveBudget deletes a budget along with its history and violation state,
// and drops its degradation contributions. Removing an unknown name is a
// no-op.
func (e *Engine) RemoveBudget(name string) {
	e.mu.Lock()
	st := e.budgets[name]
	delete(e.budgets, name)
	e.mu.Unlock()
	if st == nil {
		return
	}

	st.mu.Lock()
	st.violation = nil
	st.history.clear()
	st.mu.Unlock()

	e.applyDegradation(e.controller.budgetRecovered(name), e.now())
}

// Budget returns the definition of a registered budget.
func (e *Engine) Budget(name string) (BudgetDefinition, bool) {
	e.mu.RLock()
	st := e.budgets[name]
	e.mu.RUnlock()
	if st == nil {
		return BudgetDefinition{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.def, true
}

// Budgets returns all registered definitions, sorted by name.
func (e *Engine) Budgets() []BudgetDefinition {
	e.mu.RLock()
	states := make([]*budgetState, 0, len(e.budgets))
	for _, st := range e.budgets {
		states = append(states, st)
	}
	e.mu.RUnlock()

	defs := make([]BudgetDefinition, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		defs = append(defs, st.def)
		st.mu.Unlock()
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// ClearHistory empties a budget's sample history without removing the budget
// or touching its violation state.
func (e *Engine) ClearHistory(name string) {
	e.mu.RLock()
	st := e.budgets[name]
	e.mu.RUnlock()
	if st == nil {
		return
	}
	st.mu.Lock()
	st.history.clear()
	st.mu.Unlock()
}

// Recording

// Record ingests one sample for the named budget: classifies it, appends it
// to the rolling history, advances the consecutive-violation counter, and
// drives violation/recovery/degradation transitions.
//
// An unknown budget name never fails: the sample is dropped and a neutral
// passing classification is returned, so a mis-registered metric cannot
// crash a producer.
func (e *Engine) Record(name string, value float64) ClassificationResult {
	now := e.now()

	e.mu.RLock()
	st := e.budgets[name]
	e.mu.RUnlock()
	if st == nil {
		e.logger.Debug("sample for unregistered budget dropped", "budget", name)
		return passingResult(name, value, now)
	}

	st.mu.Lock()
	def := st.def
	cls := classify(value, def, e.logger)

	st.history.append(Sample{Value: value, Timestamp: now, Compliant: cls.Compliant})
	st.lastValue = value
	st.lastSeverity = cls.Severity
	st.hasSample = true
	samplesTotal.WithLabelValues(def.Name, cls.Severity.String()).Inc()

	var (
		opened    bool
		alert     bool
		violating bool
		recovered *ViolationRecord
	)

	if cls.Compliant {
		st.consecutive = 0
		if st.violation != nil {
			recovered = st.violation
			st.violation = nil
		}
	} else {
		st.consecutive++
		if st.violation == nil && st.consecutive >= e.cfg.ViolationThreshold {
			st.violation = &ViolationRecord{
				ID:                    uuid.NewString(),
				Budget:                def.Name,
				Value:                 value,
				Threshold:             cls.Threshold,
				Severity:              cls.Severity,
				Overage:               cls.Overage,
				OveragePercent:        cls.OveragePercent,
				Context:               e.context,
				FirstAt:               now,
				LastAt:                now,
				ConsecutiveViolations: st.consecutive,
			}
			st.episodes++
			opened = true
		} else if st.violation != nil {
			// Same episode: update the record in place, identity is stable.
			v := st.violation
			v.Value = value
			v.Threshold = cls.Threshold
			v.Severity = cls.Severity
			v.Overage = cls.Overage
			v.OveragePercent = cls.OveragePercent
			v.LastAt = now
			v.ConsecutiveViolations = st.consecutive
		}

		// External alert delivery is rate-limited per budget; the record
		// above keeps updating regardless.
		if st.violation != nil && now.Sub(st.lastAlertAt) >= e.cfg.AlertCooldown {
			st.lastAlertAt = now
			alert = true
		}
		violating = st.violation != nil
	}

	active := st.violation.clone()
	st.mu.Unlock()

	// Side effects run outside the budget lock: subscribers and strategy
	// handlers may call back into the read API.
	if opened {
		violationsTotal.WithLabelValues(def.Name).Inc()
		e.logger.Warn("budget violation",
			"budget", def.Name,
			"severity", cls.Severity.String(),
			"value", def.Unit.Format(value),
			"threshold", def.Unit.Format(cls.Threshold),
			"consecutive", active.ConsecutiveViolations)
	}
	if alert {
		e.bus.emit(Event{
			Type:   EventViolation,
			Budget: def.Name,
			Message: fmt.Sprintf("budget %q %s: %s exceeds %s by %s",
				def.Name, cls.Severity, def.Unit.Format(value),
				def.Unit.Format(cls.Threshold), def.Unit.Format(cls.Overage)),
			Timestamp: now,
			Violation: active,
		})
	}
	if violating && !e.cfg.DisableDegradation && len(def.DegradationActions) > 0 {
		e.applyDegradation(e.controller.budgetViolated(def.Name, def.DegradationActions), now)
	}
	if recovered != nil {
		recoveriesTotal.WithLabelValues(def.Name).Inc()
		e.logger.Info("budget recovered",
			"budget", def.Name, "value", def.Unit.Format(value))
		e.bus.emit(Event{
			Type:      EventRecovery,
			Budget:    def.Name,
			Message:   fmt.Sprintf("budget %q back within threshold at %s", def.Name, def.Unit.Format(value)),
			Timestamp: now,
			Violation: recovered,
		})
		e.applyDegradation(e.controller.budgetRecovered(def.Name), now)
	}

	return ClassificationResult{
		Budget:         def.Name,
		Value:          value,
		Timestamp:      now,
		Classification: cls,
		Violation:      active,
	}
}

// Degradation

// GetDegradationState returns a read-only snapshot of the shared degradation
// state.
func (e *Engine) GetDegradationState() DegradationState {
	return e.controller.snapshot()
}

// IsStrategyActive reports whether a mitigation strategy is currently active,
// whether by threshold evaluation or manual force.
func (e *Engine) IsStrategyActive(s Strategy) bool {
	return e.controller.isActive(s)
}

// ForceStrategy activates a strategy independent of threshold evaluation.
func (e *Engine) ForceStrategy(s Strategy) {
	e.applyDegradation(e.controller.force(s), e.now())
}

// ReleaseStrategy deactivates a strategy outright. A budget that is still
// violating re-claims the strategy on its next non-compliant sample.
func (e *Engine) ReleaseStrategy(s Strategy) {
	e.applyDegradation(e.controller.release(s), e.now())
}

// ResetDegradations clears all active strategies unconditionally, bypassing
// reference counting. This is the administrative escape hatch.
func (e *Engine) ResetDegradations() {
	e.applyDegradation(e.controller.reset(), e.now())
}

// RegisterStrategyHandler adds a mitigation executor. Handlers are invoked
// synchronously whenever a strategy flips; errors and panics are logged and
// never interrupt recording or other handlers.
func (e *Engine) RegisterStrategyHandler(h StrategyHandler) {
	e.handlersMu.Lock()
	e.handlers = append(e.handlers, h)
	e.handlersMu.Unlock()
}

func (e *Engine) applyDegradation(diff degradationDiff, now time.Time) {
	if !diff.changed {
		return
	}

	degradationLevelGauge.Set(levelGaugeValue(diff.state.Level))
	activeStrategiesGauge.Set(float64(len(diff.state.Strategies)))

	for _, s := range diff.activated {
		e.notifyHandlers(StrategyChange{Strategy: s, Active: true, Reason: diff.state.Reason, Timestamp: now})
	}
	for _, s := range diff.deactivated {
		e.notifyHandlers(StrategyChange{Strategy: s, Active: false, Reason: diff.state.Reason, Timestamp: now})
	}

	state := diff.state
	e.logger.Info("degradation state changed",
		"level", string(state.Level),
		"strategies", len(state.Strategies),
		"reason", state.Reason)
	e.bus.emit(Event{
		Type:        EventDegradationChange,
		Message:     fmt.Sprintf("degradation %s: %d strategies active", state.Level, len(state.Strategies)),
		Timestamp:   now,
		Degradation: &state,
	})
}

func (e *Engine) notifyHandlers(change StrategyChange) {
	e.handlersMu.RLock()
	handlers := make([]StrategyHandler, len(e.handlers))
	copy(handlers, e.handlers)
	e.handlersMu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("strategy handler panicked",
						"strategy", string(change.Strategy), "panic", r)
				}
			}()
			if err := h.Handle(change); err != nil {
				e.logger.Error("strategy handler failed",
					"strategy", string(change.Strategy), "err", err)
			}
		}()
	}
}

// Events

// On subscribes to an event type and returns an unsubscribe function.
// Delivery is synchronous on the recording path; keep callbacks cheap.
func (e *Engine) On(t EventType, fn func(Event)) func() {
	return e.bus.on(t, fn)
}
