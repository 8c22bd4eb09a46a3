package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"outlet-geofence-backend/internal/model"
)

// Keys for the durable settings rows.
const (
	KeyRegion           = "geofence.region"
	KeyGracePeriod      = "automation.grace_period_seconds"
	KeyPrefs            = "notification.prefs"
	KeyShownIDs         = "notification.shown_ids"
	KeyTimers           = "automation.timers"
	KeyMembership       = "geofence.membership"
	KeyOutletSnapshots  = "outlet.snapshots"
	DefaultGraceSeconds = 900
	GraceFloorSeconds   = 10
)

// Store is the durable key-value interface the automation core persists
// through. Typed accessors never fail the caller: a missing row, a read
// error or a corrupt payload falls back to documented defaults so the
// engine keeps operating.
type Store interface {
	DB() *gorm.DB

	Get(ctx context.Context, key string, out any) (bool, error)
	Set(ctx context.Context, key string, value any) error

	Region(ctx context.Context) (model.GeofenceRegion, bool)
	SaveRegion(ctx context.Context, r model.GeofenceRegion) error
	Membership(ctx context.Context) model.ZoneMembership
	SaveMembership(ctx context.Context, m model.ZoneMembership) error
	GracePeriod(ctx context.Context) time.Duration
	SaveGracePeriod(ctx context.Context, d time.Duration) error
	NotificationPrefs(ctx context.Context) model.NotificationPrefs
	SaveNotificationPrefs(ctx context.Context, p model.NotificationPrefs) error
	ShownNotifications(ctx context.Context) []model.NotificationRecord
	SaveShownNotifications(ctx context.Context, recs []model.NotificationRecord) error
	Timers(ctx context.Context) []model.ShutdownTimer
	SaveTimers(ctx context.Context, timers []model.ShutdownTimer) error
	OutletSnapshots(ctx context.Context) []model.Outlet
	SaveOutletSnapshots(ctx context.Context, outlets []model.Outlet) error

	AppendEvent(ctx context.Context, kind, outletID, detail string) error
	RecentEvents(ctx context.Context, limit int) ([]model.AutomationEvent, error)
	TrimEvents(ctx context.Context, keep int) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB { return s.db }

// Get unmarshals the JSON value stored under key into out. The boolean
// reports whether the key existed.
func (s *gormStore) Get(ctx context.Context, key string, out any) (bool, error) {
	var row model.Setting
	err := s.db.WithContext(ctx).First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read setting %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(row.Value), out); err != nil {
		return false, fmt.Errorf("decode setting %q: %w", key, err)
	}
	return true, nil
}

// Set stores value under key as JSON, replacing any previous value.
func (s *gormStore) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode setting %q: %w", key, err)
	}
	row := model.Setting{Key: key, Value: string(raw), UpdatedAt: time.Now().UTC()}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("write setting %q: %w", key, err)
	}
	return nil
}

// Region returns the persisted zone. The boolean reports whether the read
// succeeded: a missing row is a successful read of an unconfigured (and so
// disabled) region, while a store failure returns the zero region with
// false, so callers can tell a user-disabled region from a failed read.
func (s *gormStore) Region(ctx context.Context) (model.GeofenceRegion, bool) {
	var r model.GeofenceRegion
	if _, err := s.Get(ctx, KeyRegion, &r); err != nil {
		log.Printf("store: region read failed: %v", err)
		return model.GeofenceRegion{}, false
	}
	return r, true
}

func (s *gormStore) SaveRegion(ctx context.Context, r model.GeofenceRegion) error {
	return s.Set(ctx, KeyRegion, r)
}

// Membership returns the membership judgment persisted by the last
// evaluation pass, defaulting to Unknown.
func (s *gormStore) Membership(ctx context.Context) model.ZoneMembership {
	var m model.ZoneMembership
	ok, err := s.Get(ctx, KeyMembership, &m)
	if err != nil {
		log.Printf("store: falling back to unknown membership: %v", err)
	}
	if !ok || err != nil || m == "" {
		return model.MembershipUnknown
	}
	return m
}

func (s *gormStore) SaveMembership(ctx context.Context, m model.ZoneMembership) error {
	return s.Set(ctx, KeyMembership, m)
}

func (s *gormStore) GracePeriod(ctx context.Context) time.Duration {
	var secs int
	ok, err := s.Get(ctx, KeyGracePeriod, &secs)
	if err != nil {
		log.Printf("store: falling back to default grace period: %v", err)
	}
	if !ok || err != nil || secs <= 0 {
		secs = DefaultGraceSeconds
	}
	if secs < GraceFloorSeconds {
		secs = GraceFloorSeconds
	}
	return time.Duration(secs) * time.Second
}

func (s *gormStore) SaveGracePeriod(ctx context.Context, d time.Duration) error {
	secs := int(d / time.Second)
	if secs < GraceFloorSeconds {
		secs = GraceFloorSeconds
	}
	return s.Set(ctx, KeyGracePeriod, secs)
}

func (s *gormStore) NotificationPrefs(ctx context.Context) model.NotificationPrefs {
	var p model.NotificationPrefs
	ok, err := s.Get(ctx, KeyPrefs, &p)
	if err != nil {
		log.Printf("store: falling back to default notification prefs: %v", err)
	}
	if !ok || err != nil {
		return model.DefaultNotificationPrefs()
	}
	return p
}

func (s *gormStore) SaveNotificationPrefs(ctx context.Context, p model.NotificationPrefs) error {
	return s.Set(ctx, KeyPrefs, p)
}

func (s *gormStore) ShownNotifications(ctx context.Context) []model.NotificationRecord {
	var recs []model.NotificationRecord
	if _, err := s.Get(ctx, KeyShownIDs, &recs); err != nil {
		log.Printf("store: discarding corrupt shown-notification set: %v", err)
		return nil
	}
	return recs
}

func (s *gormStore) SaveShownNotifications(ctx context.Context, recs []model.NotificationRecord) error {
	return s.Set(ctx, KeyShownIDs, recs)
}

func (s *gormStore) Timers(ctx context.Context) []model.ShutdownTimer {
	var timers []model.ShutdownTimer
	if _, err := s.Get(ctx, KeyTimers, &timers); err != nil {
		log.Printf("store: discarding corrupt timer set: %v", err)
		return nil
	}
	return timers
}

func (s *gormStore) SaveTimers(ctx context.Context, timers []model.ShutdownTimer) error {
	return s.Set(ctx, KeyTimers, timers)
}

func (s *gormStore) OutletSnapshots(ctx context.Context) []model.Outlet {
	var outlets []model.Outlet
	if _, err := s.Get(ctx, KeyOutletSnapshots, &outlets); err != nil {
		log.Printf("store: discarding corrupt outlet snapshots: %v", err)
		return nil
	}
	return outlets
}

func (s *gormStore) SaveOutletSnapshots(ctx context.Context, outlets []model.Outlet) error {
	return s.Set(ctx, KeyOutletSnapshots, outlets)
}

func (s *gormStore) AppendEvent(ctx context.Context, kind, outletID, detail string) error {
	ev := model.AutomationEvent{
		Kind:      kind,
		OutletID:  outletID,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&ev).Error; err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *gormStore) RecentEvents(ctx context.Context, limit int) ([]model.AutomationEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var events []model.AutomationEvent
	if err := s.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	return events, nil
}

// TrimEvents deletes all but the newest keep rows from the event log.
func (s *gormStore) TrimEvents(ctx context.Context, keep int) error {
	if keep <= 0 {
		return nil
	}
	var cutoff model.AutomationEvent
	err := s.db.WithContext(ctx).
		Order("id DESC").
		Offset(keep).
		First(&cutoff).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find trim cutoff: %w", err)
	}
	if err := s.db.WithContext(ctx).
		Where("id <= ?", cutoff.ID).
		Delete(&model.AutomationEvent{}).Error; err != nil {
		return fmt.Errorf("trim events: %w", err)
	}
	return nil
}
