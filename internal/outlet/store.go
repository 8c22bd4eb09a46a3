package outlet

import (
	"errors"
	"sort"
	"sync"
	"time"

	"outlet-geofence-backend/internal/model"
)

// ErrUnknownOutlet is returned for commands against an outlet id the store
// has never seen.
var ErrUnknownOutlet = errors.New("unknown outlet")

// StateStore is the in-memory source of truth for outlet power state. It
// keeps the optimistic displayed state, the hardware-acknowledged canonical
// state, and the id of the single pending command per outlet.
type StateStore struct {
	mu      sync.RWMutex
	outlets map[string]*model.Outlet
}

// NewStateStore seeds the store with the given outlets. Zero-valued power
// states default to off.
func NewStateStore(seed []model.Outlet) *StateStore {
	s := &StateStore{outlets: make(map[string]*model.Outlet, len(seed))}
	for _, o := range seed {
		s.upsertLocked(o)
	}
	return s
}

func (s *StateStore) upsertLocked(o model.Outlet) {
	if o.DisplayedState == "" {
		o.DisplayedState = model.PowerOff
	}
	if o.CanonicalState == "" {
		o.CanonicalState = model.PowerOff
	}
	cp := o
	s.outlets[o.ID] = &cp
}

// Upsert adds or replaces an outlet record.
func (s *StateStore) Upsert(o model.Outlet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertLocked(o)
}

// Get returns a copy of the outlet record.
func (s *StateStore) Get(id string) (model.Outlet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.outlets[id]
	if !ok {
		return model.Outlet{}, false
	}
	return *o, true
}

// Snapshot returns copies of all outlets sorted by id.
func (s *StateStore) Snapshot() []model.Outlet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Outlet, 0, len(s.outlets))
	for _, o := range s.outlets {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CanonicalState returns the hardware-acknowledged state. Automation
// decisions reason about this, never the optimistic overlay.
func (s *StateStore) CanonicalState(id string) model.PowerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if o, ok := s.outlets[id]; ok {
		return o.CanonicalState
	}
	return model.PowerOff
}

// CanonicalOn lists the ids of all outlets whose canonical state is on.
func (s *StateStore) CanonicalOn() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, o := range s.outlets {
		if o.CanonicalState == model.PowerOn {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// BeginCommand applies the optimistic overlay for a new command: displayed
// state flips to desired immediately and any previously pending command id
// is superseded (latest wins, never queued). The superseded id is returned
// so its in-flight attempt can be abandoned.
func (s *StateStore) BeginCommand(outletID string, desired model.PowerState, commandID string) (superseded string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.outlets[outletID]
	if !ok {
		return "", ErrUnknownOutlet
	}
	superseded = o.PendingCommandID
	o.DisplayedState = desired
	o.PendingCommandID = commandID
	o.Errored = false
	return superseded, nil
}

// IsPending reports whether commandID is still the outlet's current pending
// command. A false result means the command was superseded and its outcome
// must be discarded.
func (s *StateStore) IsPending(outletID, commandID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.outlets[outletID]
	return ok && o.PendingCommandID == commandID
}

// ResolveAck applies a hardware acknowledgment. Both displayed and canonical
// state converge on the achieved state. Acks for superseded commands are
// ignored and reported as false.
func (s *StateStore) ResolveAck(outletID, commandID string, achieved model.PowerState, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.outlets[outletID]
	if !ok || o.PendingCommandID != commandID {
		return false
	}
	o.CanonicalState = achieved
	o.DisplayedState = achieved
	o.PendingCommandID = ""
	o.Errored = false
	o.LastAckAt = at
	return true
}

// ResolveFailure rolls the optimistic overlay back to canonical after
// retries exhaust, and flags the outlet as errored so the failure is
// user-visible rather than a silent divergence.
func (s *StateStore) ResolveFailure(outletID, commandID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.outlets[outletID]
	if !ok || o.PendingCommandID != commandID {
		return false
	}
	o.DisplayedState = o.CanonicalState
	o.PendingCommandID = ""
	o.Errored = true
	return true
}
