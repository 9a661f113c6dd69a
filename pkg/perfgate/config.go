package perfgate

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config controls the evaluation pipeline. The zero value of any field is
// replaced by its documented default when the engine is constructed.
type Config struct {
	// ViolationThreshold is how many consecutive non-compliant samples a
	// budget must accumulate before a violation episode opens. Default 3.
	ViolationThreshold int

	// AlertCooldown bounds external violation delivery to once per budget
	// per window. Default 60s.
	AlertCooldown time.Duration

	// HistoryRetention discards samples older than this on every append.
	// Default 24h.
	HistoryRetention time.Duration

	// MaxHistoryEntries caps the per-budget sample history. Default 1000.
	MaxHistoryEntries int

	// AutoDegradation gates threshold-driven strategy activation. Manual
	// ForceStrategy calls work regardless. Default true (DisableDegradation
	// inverts it so the zero Config keeps the default).
	DisableDegradation bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		ViolationThreshold: 3,
		AlertCooldown:      60 * time.Second,
		HistoryRetention:   24 * time.Hour,
		MaxHistoryEntries:  1000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ViolationThreshold <= 0 {
		c.ViolationThreshold = d.ViolationThreshold
	}
	if c.AlertCooldown <= 0 {
		c.AlertCooldown = d.AlertCooldown
	}
	if c.HistoryRetention <= 0 {
		c.HistoryRetention = d.HistoryRetention
	}
	if c.MaxHistoryEntries <= 0 {
		c.MaxHistoryEntries = d.MaxHistoryEntries
	}
	return c
}

// fileConfig is the on-disk TOML layout:
//
//	[engine]
//	violation_threshold = 3
//	alert_cooldown = "60s"
//
//	[[budget]]
//	name = "lcp"
//	category = "vitals"
//	unit = "ms"
//	warning = 2500.0
//	error = 4000.0
//	critical = 6000.0
//	actions = ["reduce-images"]
type fileConfig struct {
	Engine  engineSection   `toml:"engine"`
	Budgets []budgetSection `toml:"budget"`
}

type engineSection struct {
	ViolationThreshold int    `toml:"violation_threshold"`
	AlertCooldown      string `toml:"alert_cooldown"`
	HistoryRetention   string `toml:"history_retention"`
	MaxHistoryEntries  int    `toml:"max_history_entries"`
	DisableDegradation bool   `toml:"disable_degradation"`
}

type budgetSection struct {
	Name           string   `toml:"name"`
	Category       string   `toml:"category"`
	Unit           string   `toml:"unit"`
	Warning        float64  `toml:"warning"`
	Error          float64  `toml:"error"`
	Critical       float64  `toml:"critical"`
	HigherIsBetter bool     `toml:"higher_is_better"`
	Actions        []string `toml:"actions"`
}

// LoadFile reads engine configuration and budget definitions from a TOML
// file. Missing engine fields fall back to defaults; every budget is
// validated before the set is returned.
func LoadFile(path string) (Config, []BudgetDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, nil, fmt.Errorf("read config: %w", err)
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (Config, []BudgetDefinition, error) {
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return Config{}, nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := Config{
		ViolationThreshold: fc.Engine.ViolationThreshold,
		MaxHistoryEntries:  fc.Engine.MaxHistoryEntries,
		DisableDegradation: fc.Engine.DisableDegradation,
	}
	if fc.Engine.AlertCooldown != "" {
		d, err := time.ParseDuration(fc.Engine.AlertCooldown)
		if err != nil {
			return Config{}, nil, fmt.Errorf("parse alert_cooldown: %w", err)
		}
		cfg.AlertCooldown = d
	}
	if fc.Engine.HistoryRetention != "" {
		d, err := time.ParseDuration(fc.Engine.HistoryRetention)
		if err != nil {
			return Config{}, nil, fmt.Errorf("parse history_retention: %w", err)
		}
		cfg.HistoryRetention = d
	}

	defs := make([]BudgetDefinition, 0, len(fc.Budgets))
	for _, b := range fc.Budgets {
		actions := make([]Strategy, 0, len(b.Actions))
		for _, a := range b.Actions {
			actions = append(actions, Strategy(a))
		}
		def := BudgetDefinition{
			Name:               b.Name,
			Category:           Category(b.Category),
			Unit:               Unit(b.Unit),
			WarningThreshold:   b.Warning,
			ErrorThreshold:     b.Error,
			CriticalThreshold:  b.Critical,
			HigherIsBetter:     b.HigherIsBetter,
			DegradationActions: actions,
		}
		if err := def.Validate(); err != nil {
			return Config{}, nil, err
		}
		defs = append(defs, def)
	}
	return cfg.withDefaults(), defs, nil
}
