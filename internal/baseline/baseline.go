// Package baseline implements the per-(patient, vital) bounded sample
// window store (C3, §4.3): an abstract interface plus an in-memory
// implementation, with a capped-list Redis implementation in redis.go for
// when the store must be shared across process instances.
package baseline

import (
	"context"
	"math"
	"sync"
	"time"
)

// DefaultWindowCap is W, the default bound on samples retained per key.
const DefaultWindowCap = 100

// DefaultMinSamples is the minimum sample count before Stats stops
// returning None (cold start).
const DefaultMinSamples = 10

// TTL is how long an inactive window survives before eviction (§3 Baseline
// sample window).
const TTL = 7 * 24 * time.Hour

// Stats is the (mean, stddev) pair returned for a warm window.
type Stats struct {
	Mean   float64
	StdDev float64
}

// Store is the abstract baseline backend. Any backend — in-memory deque or
// remote capped list — must honour the cap atomically: a single Append call
// is the unit of append-then-trim (§4.3).
type Store interface {
	// Append adds value to the (patient, vital) window, evicting the
	// oldest sample if the cap would be exceeded, and refreshes the key's TTL.
	Append(ctx context.Context, patientID, vital string, value float64) error
	// Stats returns the sample mean/stddev, or ok=false if fewer than
	// MinSamples values are present (cold start).
	Stats(ctx context.Context, patientID, vital string) (s Stats, ok bool, err error)
	// Count returns the number of samples currently held for the key.
	Count(ctx context.Context, patientID, vital string) (int, error)
}

type key struct {
	patientID string
	vital     string
}

// InMemory is a process-local Store backed by a bounded deque per key,
// guarded by a per-store mutex (the §5 "per-key lock" requirement is
// satisfied here by a single coarse lock; contention is low since each
// Append+trim is O(1)).
type InMemory struct {
	mu         sync.Mutex
	windows    map[key][]float64
	lastSeen   map[key]time.Time
	cap        int
	minSamples int
	now        func() time.Time
}

// NewInMemory constructs an InMemory store with cap W and MinSamples as
// configured (zero values fall back to the documented defaults).
func NewInMemory(windowCap, minSamples int) *InMemory {
	if windowCap <= 0 {
		windowCap = DefaultWindowCap
	}
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	return &InMemory{
		windows:    make(map[key][]float64),
		lastSeen:   make(map[key]time.Time),
		cap:        windowCap,
		minSamples: minSamples,
		now:        time.Now,
	}
}

func (m *InMemory) Append(_ context.Context, patientID, vital string, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{patientID, vital}
	m.evictExpiredLocked()
	w := append(m.windows[k], value)
	if len(w) > m.cap {
		w = w[len(w)-m.cap:]
	}
	m.windows[k] = w
	m.lastSeen[k] = m.now()
	return nil
}

func (m *InMemory) Stats(_ context.Context, patientID, vital string) (Stats, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{patientID, vital}
	m.evictExpiredLocked()
	w := m.windows[k]
	if len(w) < m.minSamples {
		return Stats{}, false, nil
	}
	mean, stddev := sampleMeanStdDev(w)
	return Stats{Mean: mean, StdDev: stddev}, true, nil
}

func (m *InMemory) Count(_ context.Context, patientID, vital string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{patientID, vital}
	m.evictExpiredLocked()
	return len(m.windows[k]), nil
}

// evictExpiredLocked drops windows whose TTL has lapsed. Called with mu held.
func (m *InMemory) evictExpiredLocked() {
	now := m.now()
	for k, seen := range m.lastSeen {
		if now.Sub(seen) > TTL {
			delete(m.windows, k)
			delete(m.lastSeen, k)
		}
	}
}

// sampleMeanStdDev computes the mean and sample standard deviation (n-1
// divisor) of values, substituting 0.1 for a zero stddev to avoid
// division-by-zero downstream in scoring (§4.3 guard rail).
func sampleMeanStdDev(values []float64) (mean, stddev float64) {
	n := float64(len(values))
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / n

	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	if n <= 1 {
		return mean, 0.1
	}
	variance := sumSq / (n - 1)
	stddev = math.Sqrt(variance)
	if stddev == 0 {
		stddev = 0.1
	}
	return mean, stddev
}
