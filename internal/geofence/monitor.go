package geofence

import (
	"context"
	"sync"
	"time"

	"outlet-geofence-backend/internal/model"
)

// Provider supplies location samples on demand. Implementations may return
// stale or degraded fixes; the monitor decides what is usable.
type Provider interface {
	Current(ctx context.Context) (model.LocationSample, error)
}

// Monitor holds the most recent location sample and gates out fixes that are
// too old or too inaccurate to base automation decisions on.
type Monitor struct {
	mu          sync.Mutex
	provider    Provider
	maxAccuracy float64
	maxAge      time.Duration
	latest      model.LocationSample
	hasLatest   bool
}

// NewMonitor creates a monitor over the given provider.
func NewMonitor(p Provider, maxAccuracyMeters float64, maxAge time.Duration) *Monitor {
	return &Monitor{provider: p, maxAccuracy: maxAccuracyMeters, maxAge: maxAge}
}

// Observe records an externally pushed sample, keeping the newer of the
// pushed sample and the one already held.
func (m *Monitor) Observe(s model.LocationSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasLatest || s.Timestamp.After(m.latest.Timestamp) {
		m.latest = s
		m.hasLatest = true
	}
}

// Refresh pulls a fresh sample from the provider. On provider failure the
// previously held sample is returned, which may then fail the usability
// gate on age.
func (m *Monitor) Refresh(ctx context.Context) (model.LocationSample, bool) {
	if m.provider != nil {
		if s, err := m.provider.Current(ctx); err == nil {
			m.Observe(s)
		}
	}
	return m.Latest()
}

// Latest returns the most recent sample, if any has been seen.
func (m *Monitor) Latest() (model.LocationSample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest, m.hasLatest
}

// Usable reports whether a sample is fresh and accurate enough to drive a
// membership decision at the given instant.
func (m *Monitor) Usable(s model.LocationSample, now time.Time) bool {
	if s.Timestamp.IsZero() || now.Sub(s.Timestamp) > m.maxAge {
		return false
	}
	if m.maxAccuracy > 0 && s.AccuracyMeters > m.maxAccuracy {
		return false
	}
	return true
}
