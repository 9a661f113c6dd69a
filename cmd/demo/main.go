package main

import (
	"context"
	"flag"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/perfgate/perfgate/pkg/perfgate"
	"github.com/perfgate/perfgate/pkg/perfgate/dashboard"
	"github.com/perfgate/perfgate/pkg/perfgate/probe"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config with engine settings and budgets")
	addr := flag.String("addr", ":9090", "dashboard listen address")
	flag.Parse()

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)

	cfg := perfgate.DefaultConfig()
	cfg.ViolationThreshold = 3
	cfg.AlertCooldown = 10 * time.Second

	var budgets []perfgate.BudgetDefinition
	if *configPath != "" {
		var err error
		cfg, budgets, err = perfgate.LoadFile(*configPath)
		if err != nil {
			logger.Error("load config", "err", err)
			os.Exit(1)
		}
	} else {
		budgets = demoBudgets()
	}

	engine := perfgate.NewEngine(cfg,
		perfgate.WithLogger(logger),
		perfgate.WithContext("demo"))

	for _, def := range budgets {
		if err := engine.RegisterBudget(def); err != nil {
			logger.Error("register budget", "budget", def.Name, "err", err)
			os.Exit(1)
		}
		logger.Info("registered budget", "budget", def.Name,
			"warning", def.Unit.Format(def.WarningThreshold),
			"error", def.Unit.Format(def.ErrorThreshold))
	}

	// A real application would flip feature flags here; the demo just logs.
	engine.RegisterStrategyHandler(perfgate.StrategyHandlerFunc(func(c perfgate.StrategyChange) error {
		if c.Active {
			logger.Warn("mitigation on", "strategy", string(c.Strategy), "reason", c.Reason)
		} else {
			logger.Info("mitigation off", "strategy", string(c.Strategy))
		}
		return nil
	}))

	record := func(budget string, value float64) { engine.Record(budget, value) }

	runtimeProbe := probe.NewRuntimeProbe(record, 2*time.Second)
	runtimeProbe.Start()
	defer runtimeProbe.Stop()

	srv := dashboard.NewServer(engine, *addr, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("dashboard", "err", err)
			os.Exit(1)
		}
	}()
	logger.Info("dashboard up", "addr", *addr,
		"endpoints", "/api/statuses /api/report /api/degradation /metrics /ws")

	stop := make(chan struct{})
	go generateLoad(engine, logger, stop)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	close(stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}

func demoBudgets() []perfgate.BudgetDefinition {
	return []perfgate.BudgetDefinition{
		{
			Name:               "lcp",
			Category:           perfgate.CategoryVitals,
			Unit:               perfgate.UnitMilliseconds,
			WarningThreshold:   2500,
			ErrorThreshold:     4000,
			CriticalThreshold:  6000,
			DegradationActions: []perfgate.Strategy{"reduce-images", "defer-noncritical"},
		},
		{
			Name:             "api-latency",
			Category:         perfgate.CategoryNetwork,
			Unit:             perfgate.UnitMilliseconds,
			WarningThreshold: 200,
			ErrorThreshold:   500,
			DegradationActions: []perfgate.Strategy{
				"cache-aggressively",
			},
		},
		{
			Name:              "frame-rate",
			Category:          perfgate.CategoryRuntime,
			Unit:              perfgate.UnitFPS,
			WarningThreshold:  50,
			ErrorThreshold:    30,
			CriticalThreshold: 15,
			HigherIsBetter:    true,
			DegradationActions: []perfgate.Strategy{
				"disable-animations",
			},
		},
		{
			Name:             probe.BudgetHeapAlloc,
			Category:         perfgate.CategoryMemory,
			Unit:             perfgate.UnitBytes,
			WarningThreshold: 64 << 20,
			ErrorThreshold:   256 << 20,
		},
		{
			Name:             probe.BudgetGoroutines,
			Category:         perfgate.CategoryRuntime,
			Unit:             perfgate.UnitCount,
			WarningThreshold: 500,
			ErrorThreshold:   2000,
		},
	}
}

// generateLoad records synthetic samples that drift in and out of compliance
// so the dashboard has violations and recoveries to show.
func generateLoad(engine *perfgate.Engine, logger *slog.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ticker.C:
			tick++
			// Every 30 ticks the page "regresses" for 10 ticks.
			regressing := tick%30 >= 20

			lcp := 1800 + rand.Float64()*600
			latency := 120 + rand.Float64()*60
			fps := 58 + rand.Float64()*4
			if regressing {
				lcp = 4200 + rand.Float64()*1200
				latency = 520 + rand.Float64()*200
				fps = 22 + rand.Float64()*6
			}

			engine.Record("lcp", lcp)
			engine.Record("api-latency", latency)
			engine.Record("frame-rate", fps)

			if tick%10 == 0 {
				report := engine.GetComplianceReport()
				logger.Info("compliance",
					"compliant", report.CompliantBudgets,
					"violating", report.ViolatingBudgets,
					"degradation", string(report.Degradation.Level))
			}
		case <-stop:
			return
		}
	}
}
