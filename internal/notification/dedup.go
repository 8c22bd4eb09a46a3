package notification

import (
	"context"
	"log"
	"sync"
	"time"

	"outlet-geofence-backend/internal/model"
	"outlet-geofence-backend/internal/store"
)

// Deduplicator guarantees idempotent alert delivery: the same physical event
// re-observed across repeated background ticks, or across a process restart,
// produces exactly one displayed notification. Shown identifiers live in a
// bounded FIFO ring persisted through the store.
type Deduplicator struct {
	mu      sync.Mutex
	store   store.Store
	max     int
	records []model.NotificationRecord
	index   map[string]struct{}
	loaded  bool
}

// NewDeduplicator creates a deduplicator retaining at most max identifiers.
func NewDeduplicator(st store.Store, max int) *Deduplicator {
	if max <= 0 {
		max = 1000
	}
	return &Deduplicator{store: st, max: max, index: make(map[string]struct{})}
}

// Load reloads the persisted shown-set. Only the first call reads the store.
func (d *Deduplicator) Load(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded {
		return
	}
	d.records = d.store.ShownNotifications(ctx)
	for _, r := range d.records {
		d.index[r.ID] = struct{}{}
	}
	d.loaded = true
}

// ShouldShow checks the category preference and the shown-set. When both
// pass, the identifier is recorded (and persisted) and true is returned;
// otherwise the notification is suppressed silently.
func (d *Deduplicator) ShouldShow(ctx context.Context, category model.NotificationCategory, id string) bool {
	if !d.store.NotificationPrefs(ctx).Enabled(category) {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, seen := d.index[id]; seen {
		return false
	}
	d.records = append(d.records, model.NotificationRecord{ID: id, ShownAt: time.Now().UTC()})
	d.index[id] = struct{}{}
	for len(d.records) > d.max {
		evicted := d.records[0]
		d.records = d.records[1:]
		delete(d.index, evicted.ID)
	}
	if err := d.store.SaveShownNotifications(ctx, d.records); err != nil {
		log.Printf("notification: persist shown-set: %v", err)
	}
	return true
}
