package perfgate

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

// testClock advances a fixed amount per Record so cooldown and retention
// logic is deterministic.
type testClock struct {
	t    time.Time
	step time.Duration
}

func newTestClock(step time.Duration) *testClock {
	return &testClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), step: step}
}

func (c *testClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e := NewEngine(cfg)
	e.now = newTestClock(time.Second).now
	return e
}

func lcpBudget() BudgetDefinition {
	return BudgetDefinition{
		Name:               "lcp",
		Category:           CategoryVitals,
		Unit:               UnitMilliseconds,
		WarningThreshold:   2500,
		ErrorThreshold:     4000,
		CriticalThreshold:  6000,
		DegradationActions: []Strategy{"reduce-images"},
	}
}

func TestRecordUnknownBudgetIsNeutral(t *testing.T) {
	e := newTestEngine(t, Config{})

	res := e.Record("nope", 123456)
	if !res.Compliant || res.Severity != SeverityOK {
		t.Errorf("unknown budget should classify as passing, got %+v", res)
	}
	if res.Violation != nil {
		t.Error("unknown budget should never carry a violation")
	}
}

func TestRecordHysteresis(t *testing.T) {
	e := newTestEngine(t, Config{ViolationThreshold: 3})
	if err := e.RegisterBudget(lcpBudget()); err != nil {
		t.Fatal(err)
	}

	var violations, recoveries int
	e.On(EventViolation, func(Event) { violations++ })
	e.On(EventRecovery, func(Event) { recoveries++ })

	// Two non-compliant samples then a compliant one: counter resets, no
	// episode ever opens.
	e.Record("lcp", 4500)
	e.Record("lcp", 4500)
	res := e.Record("lcp", 2000)
	if res.Violation != nil {
		t.Error("no violation should open below the consecutive threshold")
	}
	if violations != 0 || recoveries != 0 {
		t.Errorf("events fired: violations=%d recoveries=%d", violations, recoveries)
	}

	// Third consecutive non-compliant sample opens the episode.
	e.Record("lcp", 4500)
	e.Record("lcp", 4600)
	res = e.Record("lcp", 4700)
	if res.Violation == nil {
		t.Fatal("violation should open at the third consecutive sample")
	}
	if violations != 1 {
		t.Errorf("violations = %d, want 1", violations)
	}
	if res.Violation.ConsecutiveViolations != 3 {
		t.Errorf("consecutive = %d, want 3", res.Violation.ConsecutiveViolations)
	}
	if res.Severity != SeverityError {
		t.Errorf("severity = %v, want error", res.Severity)
	}
	if res.Overage != 700 {
		t.Errorf("overage = %v, want 700", res.Overage)
	}
}

func TestRecordViolationIdentityIsStable(t *testing.T) {
	e := newTestEngine(t, Config{ViolationThreshold: 3, AlertCooldown: time.Hour})
	if err := e.RegisterBudget(lcpBudget()); err != nil {
		t.Fatal(err)
	}

	e.Record("lcp", 4500)
	e.Record("lcp", 4500)
	first := e.Record("lcp", 4500)
	second := e.Record("lcp", 6500)

	if first.Violation.ID != second.Violation.ID {
		t.Error("episode ID changed between samples")
	}
	if second.Violation.Severity != SeverityCritical {
		t.Errorf("record severity = %v, want critical after escalation", second.Violation.Severity)
	}
	if second.Violation.ConsecutiveViolations != 4 {
		t.Errorf("consecutive = %d, want 4", second.Violation.ConsecutiveViolations)
	}
	if !second.Violation.FirstAt.Equal(first.Violation.FirstAt) {
		t.Error("FirstAt must not move during an episode")
	}
	if !second.Violation.LastAt.After(first.Violation.LastAt) {
		t.Error("LastAt should advance with each sample")
	}
}

func TestRecordRecoveryClosesEpisode(t *testing.T) {
	e := newTestEngine(t, Config{ViolationThreshold: 3})
	if err := e.RegisterBudget(lcpBudget()); err != nil {
		t.Fatal(err)
	}

	var recovered *ViolationRecord
	e.On(EventRecovery, func(ev Event) { recovered = ev.Violation })

	e.Record("lcp", 4500)
	e.Record("lcp", 4600)
	opened := e.Record("lcp", 4700)
	res := e.Record("lcp", 2000)

	if res.Violation != nil {
		t.Error("compliant sample should close the episode")
	}
	if recovered == nil {
		t.Fatal("recovery event not delivered")
	}
	if recovered.ID != opened.Violation.ID {
		t.Error("recovery should carry the closed episode's record")
	}

	status, _ := e.GetStatus("lcp")
	if !status.Compliant || status.ConsecutiveViolations != 0 {
		t.Errorf("status after recovery = %+v", status)
	}
}

func TestRecordAlertCooldown(t *testing.T) {
	// Clock steps 1s per Record; a 10s cooldown spans multiple samples and
	// survives a recovery in between.
	e := newTestEngine(t, Config{ViolationThreshold: 1, AlertCooldown: 10 * time.Second})
	if err := e.RegisterBudget(lcpBudget()); err != nil {
		t.Fatal(err)
	}

	var alerts int
	e.On(EventViolation, func(Event) { alerts++ })

	e.Record("lcp", 4500) // opens, alerts
	e.Record("lcp", 4500) // still inside cooldown
	e.Record("lcp", 2000) // recovery
	e.Record("lcp", 4500) // new episode, still inside cooldown
	if alerts != 1 {
		t.Fatalf("alerts = %d, want 1 inside cooldown", alerts)
	}

	// Push the clock past the cooldown window.
	for i := 0; i < 10; i++ {
		e.Record("lcp", 4500)
	}
	if alerts != 2 {
		t.Errorf("alerts = %d, want 2 after cooldown expires", alerts)
	}
}

func TestRecordDrivesDegradation(t *testing.T) {
	e := newTestEngine(t, Config{ViolationThreshold: 3})
	if err := e.RegisterBudget(lcpBudget()); err != nil {
		t.Fatal(err)
	}

	var changes []StrategyChange
	e.RegisterStrategyHandler(StrategyHandlerFunc(func(c StrategyChange) error {
		changes = append(changes, c)
		return nil
	}))

	e.Record("lcp", 4500)
	e.Record("lcp", 4600)
	e.Record("lcp", 4700)

	state := e.GetDegradationState()
	if !state.Active || state.Level != LevelLight {
		t.Fatalf("degradation state = %+v, want active light", state)
	}
	if !e.IsStrategyActive("reduce-images") {
		t.Error("reduce-images should be active")
	}
	if len(changes) != 1 || !changes[0].Active {
		t.Fatalf("handler changes = %+v", changes)
	}

	e.Record("lcp", 2000)
	state = e.GetDegradationState()
	if state.Active {
		t.Errorf("degradation should clear on recovery, got %+v", state)
	}
	if len(changes) != 2 || changes[1].Active {
		t.Fatalf("handler changes after recovery = %+v", changes)
	}
}

func TestRecordDegradationDisabled(t *testing.T) {
	e := newTestEngine(t, Config{ViolationThreshold: 1, DisableDegradation: true})
	if err := e.RegisterBudget(lcpBudget()); err != nil {
		t.Fatal(err)
	}

	e.Record("lcp", 9000)
	if e.GetDegradationState().Active {
		t.Error("auto degradation should be off")
	}

	// Manual control still works.
	e.ForceStrategy("reduce-images")
	if !e.IsStrategyActive("reduce-images") {
		t.Error("forced strategy should be active despite DisableDegradation")
	}
}

func TestRecordEndToEnd(t *testing.T) {
	e := newTestEngine(t, Config{ViolationThreshold: 3})
	defs := []BudgetDefinition{
		lcpBudget(),
		{
			Name:               "api-latency",
			Category:           CategoryNetwork,
			Unit:               UnitMilliseconds,
			WarningThreshold:   200,
			ErrorThreshold:     500,
			DegradationActions: []Strategy{"reduce-images", "cache-aggressively"},
		},
	}
	for _, def := range defs {
		if err := e.RegisterBudget(def); err != nil {
			t.Fatal(err)
		}
	}

	// Both budgets violate; the shared strategy is claimed by both.
	for i := 0; i < 3; i++ {
		e.Record("lcp", 4500)
		e.Record("api-latency", 800)
	}

	state := e.GetDegradationState()
	if state.Level != LevelModerate {
		t.Fatalf("level = %v, want moderate with two strategies", state.Level)
	}

	// lcp recovers, but api-latency still claims reduce-images.
	e.Record("lcp", 2000)
	if !e.IsStrategyActive("reduce-images") {
		t.Error("shared strategy must survive one budget's recovery")
	}
	if !e.IsStrategyActive("cache-aggressively") {
		t.Error("cache-aggressively still claimed")
	}

	// api-latency recovers; everything clears.
	e.Record("api-latency", 100)
	if e.GetDegradationState().Active {
		t.Error("degradation should clear once all budgets recover")
	}

	report := e.GetComplianceReport()
	if report.TotalBudgets != 2 || report.ViolatingBudgets != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestUpdateBudget(t *testing.T) {
	e := newTestEngine(t, Config{})
	if err := e.RegisterBudget(lcpBudget()); err != nil {
		t.Fatal(err)
	}

	warn, errT := 3000.0, 5000.0
	err := e.UpdateBudget("lcp", BudgetPatch{WarningThreshold: &warn, ErrorThreshold: &errT})
	if err != nil {
		t.Fatal(err)
	}
	def, _ := e.Budget("lcp")
	if def.WarningThreshold != 3000 || def.ErrorThreshold != 5000 {
		t.Errorf("thresholds not applied: %+v", def)
	}
	if def.CriticalThreshold != 6000 {
		t.Error("unpatched fields must be preserved")
	}

	// Unknown name.
	if err := e.UpdateBudget("nope", BudgetPatch{}); !errors.Is(err, ErrBudgetNotFound) {
		t.Errorf("err = %v, want ErrBudgetNotFound", err)
	}

	// Invalid patch is rejected and leaves the definition unchanged.
	bad := 10000.0
	err = e.UpdateBudget("lcp", BudgetPatch{WarningThreshold: &bad})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("err = %v, want *ConfigError", err)
	}
	def, _ = e.Budget("lcp")
	if def.WarningThreshold != 3000 {
		t.Error("failed patch must not be applied")
	}
}

func TestRemoveBudget(t *testing.T) {
	e := newTestEngine(t, Config{ViolationThreshold: 1})
	if err := e.RegisterBudget(lcpBudget()); err != nil {
		t.Fatal(err)
	}

	e.Record("lcp", 9000)
	if !e.GetDegradationState().Active {
		t.Fatal("setup: degradation should be active")
	}

	e.RemoveBudget("lcp")
	if _, ok := e.Budget("lcp"); ok {
		t.Error("budget still registered")
	}
	if e.GetDegradationState().Active {
		t.Error("removal must drop the budget's degradation claims")
	}

	// Idempotent.
	e.RemoveBudget("lcp")
}

func TestRegisterBudgetValidation(t *testing.T) {
	e := newTestEngine(t, Config{})
	err := e.RegisterBudget(BudgetDefinition{
		Name:             "bad",
		Unit:             UnitMilliseconds,
		WarningThreshold: 500,
		ErrorThreshold:   100,
	})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("err = %v, want *ConfigError", err)
	}
}

func TestOnUnsubscribe(t *testing.T) {
	e := newTestEngine(t, Config{ViolationThreshold: 1})
	if err := e.RegisterBudget(lcpBudget()); err != nil {
		t.Fatal(err)
	}

	var calls int
	unsub := e.On(EventViolation, func(Event) { calls++ })

	e.Record("lcp", 9000)
	unsub()
	e.Record("lcp", 2000)
	e.Record("lcp", 9000)

	if calls != 1 {
		t.Errorf("calls = %d, want 1 after unsubscribe", calls)
	}
}

func TestSubscriberPanicDoesNotPropagate(t *testing.T) {
	e := newTestEngine(t, Config{ViolationThreshold: 1})
	if err := e.RegisterBudget(lcpBudget()); err != nil {
		t.Fatal(err)
	}

	e.On(EventViolation, func(Event) { panic("subscriber bug") })
	var delivered bool
	e.On(EventViolation, func(Event) { delivered = true })

	res := e.Record("lcp", 9000) // must not panic
	if res.Violation == nil {
		t.Error("recording should proceed past the panicking subscriber")
	}
	if !delivered {
		t.Error("remaining subscribers should still receive the event")
	}
}

func TestStrategyHandlerErrorsAreContained(t *testing.T) {
	e := newTestEngine(t, Config{ViolationThreshold: 1})
	if err := e.RegisterBudget(lcpBudget()); err != nil {
		t.Fatal(err)
	}

	e.RegisterStrategyHandler(StrategyHandlerFunc(func(StrategyChange) error {
		return errors.New("flag flip failed")
	}))
	e.RegisterStrategyHandler(StrategyHandlerFunc(func(StrategyChange) error {
		panic("handler bug")
	}))

	e.Record("lcp", 9000) // must not panic
	if !e.GetDegradationState().Active {
		t.Error("degradation state must advance despite handler failures")
	}
}

func BenchmarkRecordCompliant(b *testing.B) {
	e := NewEngine(Config{})
	if err := e.RegisterBudget(lcpBudget()); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Record("lcp", 1500)
	}
}

func BenchmarkRecordParallel(b *testing.B) {
	e := NewEngine(Config{})
	for i := 0; i < 8; i++ {
		def := lcpBudget()
		def.Name = fmt.Sprintf("budget-%d", i)
		if err := e.RegisterBudget(def); err != nil {
			b.Fatal(err)
		}
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			e.Record(fmt.Sprintf("budget-%d", i%8), 1500)
			i++
		}
	})
}
