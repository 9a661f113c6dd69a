// Package probe feeds a budget engine with samples from common in-process
// sources: the Go runtime and HTTP handlers. Probes are optional; any code
// can call Record directly.
package probe

import (
	"runtime"
	"sync"
	"time"
)

// RecordFunc receives one sample for a named budget. Engine.Record returns a
// classification result probes ignore, so wrap it:
//
//	probe.NewRuntimeProbe(func(b string, v float64) { engine.Record(b, v) }, 5*time.Second)
type RecordFunc func(budget string, value float64)

// Budget names the runtime probe records under. Register matching budgets
// before starting the probe; samples for unregistered names are dropped by
// the engine.
const (
	BudgetHeapAlloc  = "runtime.heap_alloc_bytes"
	BudgetGoroutines = "runtime.goroutines"
	BudgetGCPause    = "runtime.gc_pause_ms"
)

// RuntimeProbe periodically samples heap allocation, goroutine count, and
// the most recent GC pause, recording each against its budget.
type RuntimeProbe struct {
	record   RecordFunc
	interval time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	running bool

	lastNumGC uint32
}

// NewRuntimeProbe creates a probe that records into record every interval.
// Intervals below one second are raised to one second.
func NewRuntimeProbe(record RecordFunc, interval time.Duration) *RuntimeProbe {
	if interval < time.Second {
		interval = time.Second
	}
	return &RuntimeProbe{
		record:   record,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the sampling loop. Idempotent.
func (p *RuntimeProbe) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	stopCh := p.stopCh
	p.mu.Unlock()

	go p.loop(stopCh)
}

// Stop halts the sampling loop. Idempotent; the probe can be restarted.
func (p *RuntimeProbe) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	close(p.stopCh)
	p.stopCh = make(chan struct{})
}

func (p *RuntimeProbe) loop(stopCh chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.sample()
		case <-stopCh:
			return
		}
	}
}

func (p *RuntimeProbe) sample() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	p.record(BudgetHeapAlloc, float64(m.HeapAlloc))
	p.record(BudgetGoroutines, float64(runtime.NumGoroutine()))

	// Only record a GC pause when a collection actually ran since the last
	// sample, otherwise stale pauses skew the history.
	if m.NumGC != p.lastNumGC {
		p.lastNumGC = m.NumGC
		pause := m.PauseNs[(m.NumGC+255)%256]
		p.record(BudgetGCPause, float64(pause)/float64(time.Millisecond))
	}
}
