package perfgate

import "time"

// Sample is one recorded observation. Immutable once appended; owned
// exclusively by its budget's history.
type Sample struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Compliant bool      `json:"compliant"`
}

// sampleHistory is a bounded, time-ordered sequence of samples. It enforces
// two caps simultaneously: a max-entry cap (oldest spliced out first) and a
// retention window (entries older than now-retention trimmed on each append).
// Not internally locked; callers hold the owning budget's mutex.
type sampleHistory struct {
	samples    []Sample
	maxEntries int
	retention  time.Duration
}

func newSampleHistory(maxEntries int, retention time.Duration) *sampleHistory {
	return &sampleHistory{
		samples:    make([]Sample, 0, min(maxEntries, 64)),
		maxEntries: maxEntries,
		retention:  retention,
	}
}

func (h *sampleHistory) append(s Sample) {
	h.samples = append(h.samples, s)

	// Retention trim first: everything older than the window goes, using the
	// new sample's timestamp as "now".
	cutoff := s.Timestamp.Add(-h.retention)
	drop := 0
	for drop < len(h.samples) && h.samples[drop].Timestamp.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		copy(h.samples, h.samples[drop:])
		h.samples = h.samples[:len(h.samples)-drop]
	}

	// Entry-count cap applies on top of retention.
	if excess := len(h.samples) - h.maxEntries; excess > 0 {
		copy(h.samples, h.samples[excess:])
		h.samples = h.samples[:h.maxEntries]
	}
}

// snapshot returns a copy so read-side computation never races with writers.
func (h *sampleHistory) snapshot() []Sample {
	out := make([]Sample, len(h.samples))
	copy(out, h.samples)
	return out
}

func (h *sampleHistory) clear() {
	h.samples = h.samples[:0]
}

func (h *sampleHistory) len() int { return len(h.samples) }

func (h *sampleHistory) last() (Sample, bool) {
	if len(h.samples) == 0 {
		return Sample{}, false
	}
	return h.samples[len(h.samples)-1], true
}
