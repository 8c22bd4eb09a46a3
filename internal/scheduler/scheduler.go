package scheduler

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"outlet-geofence-backend/internal/model"
	"outlet-geofence-backend/internal/store"
)

// ShutdownFunc issues the actual power-off command for a due timer.
type ShutdownFunc func(ctx context.Context, outletID string, kind model.TimerKind) error

// Scheduler owns the armed shutdown timers. Timers are resolved
// cooperatively on evaluation ticks rather than by wall-clock callbacks, so
// a deadline that passed while the process was not running resolves on the
// very next pass. Every mutation is persisted so timers survive restarts.
type Scheduler struct {
	mu     sync.Mutex
	store  store.Store
	timers map[string]model.ShutdownTimer
	loaded bool
}

// New creates a scheduler persisting through st.
func New(st store.Store) *Scheduler {
	return &Scheduler{store: st, timers: make(map[string]model.ShutdownTimer)}
}

// Load reloads persisted timers. Safe to call repeatedly; only the first
// call reads the store.
func (s *Scheduler) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return
	}
	for _, t := range s.store.Timers(ctx) {
		if !t.Cancelled {
			s.timers[t.Key()] = t
		}
	}
	s.loaded = true
}

func (s *Scheduler) persistLocked(ctx context.Context) {
	out := make([]model.ShutdownTimer, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	if err := s.store.SaveTimers(ctx, out); err != nil {
		log.Printf("scheduler: persist timers: %v", err)
	}
}

// ArmGeofence arms a grace-period timer for every listed outlet that does
// not already carry one. Outlets already armed keep their original deadline,
// which keeps repeated confirmations of the same zone exit idempotent.
// The ids actually armed are returned.
func (s *Scheduler) ArmGeofence(ctx context.Context, outletIDs []string, grace time.Duration, now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var armed []string
	for _, id := range outletIDs {
		t := model.ShutdownTimer{OutletID: id, Kind: model.TimerGeofence, Deadline: now.Add(grace)}
		if _, exists := s.timers[t.Key()]; exists {
			continue
		}
		s.timers[t.Key()] = t
		armed = append(armed, id)
	}
	if len(armed) > 0 {
		s.persistLocked(ctx)
	}
	return armed
}

// ArmManual arms a user-requested countdown for one outlet, replacing any
// existing manual timer for it.
func (s *Scheduler) ArmManual(ctx context.Context, outletID string, d time.Duration, now time.Time) model.ShutdownTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := model.ShutdownTimer{OutletID: outletID, Kind: model.TimerManual, Deadline: now.Add(d)}
	s.timers[t.Key()] = t
	s.persistLocked(ctx)
	return t
}

// CancelZone cancels every geofence timer. Called synchronously on zone
// re-entry and on region disable, before any command can be issued for the
// cycle. Manual countdowns are unaffected.
func (s *Scheduler) CancelZone(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, t := range s.timers {
		if t.Kind == model.TimerGeofence {
			delete(s.timers, k)
			n++
		}
	}
	if n > 0 {
		s.persistLocked(ctx)
	}
	return n
}

// CancelOutlet cancels all timers for one outlet, of both kinds. Called when
// the user manually turns the outlet off.
func (s *Scheduler) CancelOutlet(ctx context.Context, outletID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, t := range s.timers {
		if t.OutletID == outletID {
			delete(s.timers, k)
			n++
		}
	}
	if n > 0 {
		s.persistLocked(ctx)
	}
	return n
}

// Armed returns copies of all armed timers sorted by deadline.
func (s *Scheduler) Armed() []model.ShutdownTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ShutdownTimer, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out
}

// ResolveDue resolves every timer whose deadline has passed, however late
// the tick runs. A geofence timer only fires if membership still confirms
// Outside and the outlet's canonical state is still on; it is discarded
// silently if membership returned to Inside, and stays armed while
// membership is Unknown so a restart that has not yet re-confirmed the exit
// neither fires nor forgets the shutdown. Resolved (fired) timers are
// returned.
func (s *Scheduler) ResolveDue(ctx context.Context, now time.Time, membership model.ZoneMembership, canonical func(string) model.PowerState, shutdown ShutdownFunc) []model.ShutdownTimer {
	s.mu.Lock()
	var due []model.ShutdownTimer
	for k, t := range s.timers {
		if t.Deadline.After(now) {
			continue
		}
		if t.Kind == model.TimerGeofence && membership == model.MembershipUnknown {
			continue
		}
		due = append(due, t)
		delete(s.timers, k)
	}
	if len(due) > 0 {
		s.persistLocked(ctx)
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].Deadline.Before(due[j].Deadline) })

	var fired []model.ShutdownTimer
	for _, t := range due {
		if t.Kind == model.TimerGeofence && membership != model.MembershipOutside {
			log.Printf("scheduler: discarding geofence timer for %s (membership=%s)", t.OutletID, membership)
			continue
		}
		if canonical(t.OutletID) != model.PowerOn {
			continue
		}
		if err := shutdown(ctx, t.OutletID, t.Kind); err != nil {
			log.Printf("scheduler: shutdown for %s failed: %v", t.OutletID, err)
			continue
		}
		fired = append(fired, t)
	}
	return fired
}
