package geofence

import (
	"sync"

	"outlet-geofence-backend/internal/model"
)

// Event is a confirmed membership transition.
type Event int

const (
	EventNone Event = iota
	EventEnter
	EventExit
)

// StateMachine turns raw location samples into debounced zone membership.
//
// A raw out-of-radius reading only confirms an Exit after debounceSamples
// consecutive outside readings, so a single noisy GPS fix near the boundary
// never triggers a shutdown cycle. Re-entry confirms immediately: failing to
// cancel pending shutdowns is the worse failure mode than a spurious cancel.
type StateMachine struct {
	mu              sync.Mutex
	membership      model.ZoneMembership
	outsideStreak   int
	debounceSamples int
}

// NewStateMachine creates a state machine in the Unknown state.
func NewStateMachine(debounceSamples int) *StateMachine {
	if debounceSamples < 1 {
		debounceSamples = 1
	}
	return &StateMachine{
		membership:      model.MembershipUnknown,
		debounceSamples: debounceSamples,
	}
}

// Membership returns the current debounced judgment.
func (sm *StateMachine) Membership() model.ZoneMembership {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.membership
}

// Restore seeds the machine with a membership judgment persisted before a
// restart. An empty value is treated as Unknown.
func (sm *StateMachine) Restore(m model.ZoneMembership) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if m == "" {
		m = model.MembershipUnknown
	}
	sm.membership = m
	sm.outsideStreak = 0
}

// Reset forces the machine back to Unknown, clearing the debounce streak.
// Used when the region is disabled or deleted.
func (sm *StateMachine) Reset() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.membership = model.MembershipUnknown
	sm.outsideStreak = 0
}

// Advance feeds one sample into the machine and returns the confirmed
// transition, if any. An unusable sample (or a disabled region) forces
// Unknown without emitting an event: the engine neither arms nor cancels
// timers on missing data.
func (sm *StateMachine) Advance(region model.GeofenceRegion, sample model.LocationSample, usable bool) Event {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !region.Enabled || region.RadiusMeters <= 0 || !usable {
		sm.membership = model.MembershipUnknown
		sm.outsideStreak = 0
		return EventNone
	}

	dist := Distance(sample.Lat, sample.Lng, region.CenterLat, region.CenterLng)
	if dist <= region.RadiusMeters {
		sm.outsideStreak = 0
		if sm.membership == model.MembershipInside {
			return EventNone
		}
		sm.membership = model.MembershipInside
		return EventEnter
	}

	if sm.membership == model.MembershipOutside {
		sm.outsideStreak = 0
		return EventNone
	}
	sm.outsideStreak++
	if sm.outsideStreak < sm.debounceSamples {
		return EventNone
	}
	sm.membership = model.MembershipOutside
	sm.outsideStreak = 0
	return EventExit
}
