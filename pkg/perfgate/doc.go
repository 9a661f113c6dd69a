// Package perfgate evaluates application metrics against declared performance
// budgets and drives an adaptive degradation response when budgets are
// persistently exceeded. It is an in-process library: producers push samples,
// consumers read statuses and subscribe to events, and mitigation executors
// react to strategy activation callbacks.
//
// # Quick Start
//
// Create an engine, declare a budget, and feed it samples:
//
//	engine := perfgate.NewEngine(perfgate.DefaultConfig())
//	err := engine.RegisterBudget(perfgate.BudgetDefinition{
//		Name:               "lcp",
//		Category:           perfgate.CategoryVitals,
//		Unit:               perfgate.UnitMilliseconds,
//		WarningThreshold:   2500,
//		ErrorThreshold:     4000,
//		CriticalThreshold:  6000,
//		DegradationActions: []perfgate.Strategy{"reduce-images"},
//	})
//
//	result := engine.Record("lcp", 4500)
//
// Each sample is classified against the budget's thresholds, appended to a
// bounded rolling history, and counted toward a consecutive-violation counter.
// Only after ViolationThreshold consecutive non-compliant samples does the
// engine open a violation episode; a single spike never raises an alert.
//
// # Degradation
//
// Budgets name the mitigation strategies they require when violated. The
// engine unions the strategies of all currently-violating budgets into one
// shared degradation state; a strategy stays active until every budget that
// demanded it has recovered. Register a StrategyHandler to be told when a
// strategy is switched on or off; the engine never implements mitigations
// itself.
//
// # Events
//
// Subscribe with On to receive violation, recovery, and degradationChange
// events. Violation delivery is rate-limited per budget by AlertCooldown so
// a flapping metric cannot cause an alert storm, while the underlying
// violation record keeps updating on every sample.
//
// # Reading state
//
// GetStatus, GetAllStatuses, GetTrend, and GetComplianceReport compute over a
// snapshot of the sample history (average, nearest-rank percentiles,
// compliance rate, trend direction) and never mutate engine state.
package perfgate
