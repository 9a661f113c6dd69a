//go:build linux || darwin

package probe

import (
	"os"
	"sync"
	"syscall"
	"time"
)

// Budget names the OS probe records under.
const (
	BudgetOpenFDs    = "os.open_fds"
	BudgetFDUsagePct = "os.fd_usage_percent"
	BudgetMaxRSS     = "os.max_rss"
)

// OSProbe samples process-level resource usage: open file descriptors,
// descriptor usage as a percentage of RLIMIT_NOFILE, and an RSS estimate.
type OSProbe struct {
	record   RecordFunc
	interval time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	running bool
}

func NewOSProbe(record RecordFunc, interval time.Duration) *OSProbe {
	if interval < time.Second {
		interval = time.Second
	}
	return &OSProbe{
		record:   record,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the sampling loop. Idempotent.
func (p *OSProbe) Start() {
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
func (p *OSProbe) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	close(p.stopCh)
	p.stopCh = make(chan struct{})
}

func (p *OSProbe) loop(stopCh chan struct{}) {
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

func (p *OSProbe) sample() {
	if fds, ok := openFDCount(); ok {
		p.record(BudgetOpenFDs, float64(fds))

		var lim syscall.Rlimit
		if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &lim); err == nil && lim.Cur > 0 {
			p.record(BudgetFDUsagePct, float64(fds)/float64(lim.Cur)*100)
		}
	}

	var usage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &usage); err == nil {
		// Maxrss is KB on Linux, bytes on Darwin. The budget owner picks
		// thresholds for the platform they deploy on.
		p.record(BudgetMaxRSS, float64(usage.Maxrss))
	}
}

// openFDCount counts entries in /proc/self/fd. Returns false where procfs is
// unavailable (e.g. Darwin); callers simply get fewer samples there.
func openFDCount() (int, bool) {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return 0, false
	}
	return len(entries), true
}
