package probe

import (
	"net/http"
	"sync/atomic"
	"time"
)

// Budget names the HTTP probe records under.
const (
	BudgetHTTPLatency      = "http.latency_ms"
	BudgetHTTPErrorPercent = "http.error_percent"
)

// HTTPProbe is net/http middleware that records per-request latency and a
// rolling error percentage against their budgets.
type HTTPProbe struct {
	record RecordFunc

	requestCount int64
	errorCount   int64
	pending      int64
}

func NewHTTPProbe(record RecordFunc) *HTTPProbe {
	return &HTTPProbe{record: record}
}

// statusRecorder captures the response status code without buffering the body.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.written = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(data []byte) (int, error) {
	if !w.written {
		w.status = http.StatusOK
		w.written = true
	}
	return w.ResponseWriter.Write(data)
}

// Middleware wraps a handler. Latency is recorded per request; the error
// percentage is recomputed over the probe's lifetime after every request.
func (p *HTTPProbe) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		atomic.AddInt64(&p.pending, 1)
		defer atomic.AddInt64(&p.pending, -1)

		wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		total := atomic.AddInt64(&p.requestCount, 1)
		errors := atomic.LoadInt64(&p.errorCount)
		if wrapped.status >= 400 {
			errors = atomic.AddInt64(&p.errorCount, 1)
		}

		p.record(BudgetHTTPLatency, float64(time.Since(start))/float64(time.Millisecond))
		p.record(BudgetHTTPErrorPercent, float64(errors)/float64(total)*100)
	})
}

// Pending returns the number of requests currently in flight.
func (p *HTTPProbe) Pending() int64 {
	return atomic.LoadInt64(&p.pending)
}

// Reset zeroes the request and error counters.
func (p *HTTPProbe) Reset() {
	atomic.StoreInt64(&p.requestCount, 0)
	atomic.StoreInt64(&p.errorCount, 0)
}
