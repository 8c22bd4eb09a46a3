package store

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"outlet-geofence-backend/internal/model"
)

func newTestStore(t *testing.T) Store {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Setting{}, &model.AutomationEvent{}))
	return NewGormStore(db)
}

// A helper function to create a mock database connection.
func newMockStore(t *testing.T) (Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return NewGormStore(gormDB), mock
}

func TestGormStore_RegionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// A missing row is a successful read of an unconfigured region.
	region, ok := s.Region(ctx)
	assert.True(t, ok)
	assert.Equal(t, model.GeofenceRegion{}, region)

	want := model.GeofenceRegion{CenterLat: 45.5, CenterLng: 9.2, RadiusMeters: 150, Enabled: true}
	require.NoError(t, s.SaveRegion(ctx, want))
	region, ok = s.Region(ctx)
	assert.True(t, ok)
	assert.Equal(t, want, region)

	// Overwrite replaces the previous value.
	want.Enabled = false
	require.NoError(t, s.SaveRegion(ctx, want))
	region, _ = s.Region(ctx)
	assert.Equal(t, want, region)
}

func TestGormStore_MembershipRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// A fresh store has never judged membership.
	assert.Equal(t, model.MembershipUnknown, s.Membership(ctx))

	require.NoError(t, s.SaveMembership(ctx, model.MembershipOutside))
	assert.Equal(t, model.MembershipOutside, s.Membership(ctx))
}

func TestGormStore_GracePeriodDefaultsAndFloor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.Equal(t, time.Duration(DefaultGraceSeconds)*time.Second, s.GracePeriod(ctx))

	require.NoError(t, s.SaveGracePeriod(ctx, 2*time.Second))
	assert.Equal(t, time.Duration(GraceFloorSeconds)*time.Second, s.GracePeriod(ctx), "values below the floor are clamped")

	require.NoError(t, s.SaveGracePeriod(ctx, 300*time.Second))
	assert.Equal(t, 300*time.Second, s.GracePeriod(ctx))
}

func TestGormStore_CorruptPayloadFallsBackToDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.DB().Create(&model.Setting{
		Key:       KeyPrefs,
		Value:     "{not json",
		UpdatedAt: time.Now(),
	}).Error)

	assert.Equal(t, model.DefaultNotificationPrefs(), s.NotificationPrefs(ctx))
	var out model.NotificationPrefs
	_, err := s.Get(ctx, KeyPrefs, &out)
	assert.Error(t, err)
}

func TestGormStore_ReadErrorFallsBackToDefaults(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	dbDown := errors.New("connection refused")

	selectSettings := regexp.QuoteMeta(`SELECT * FROM "settings"`)
	mock.ExpectQuery(selectSettings).WillReturnError(dbDown)
	region, ok := s.Region(ctx)
	assert.False(t, ok, "a failed read must be distinguishable from a disabled region")
	assert.Equal(t, model.GeofenceRegion{}, region)

	mock.ExpectQuery(selectSettings).WillReturnError(dbDown)
	assert.Equal(t, time.Duration(DefaultGraceSeconds)*time.Second, s.GracePeriod(ctx))

	mock.ExpectQuery(selectSettings).WillReturnError(dbDown)
	assert.Equal(t, model.MembershipUnknown, s.Membership(ctx))

	mock.ExpectQuery(selectSettings).WillReturnError(dbDown)
	assert.Equal(t, model.DefaultNotificationPrefs(), s.NotificationPrefs(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_WriteErrorIsSurfaced(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "settings"`)).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.SaveRegion(ctx, model.GeofenceRegion{RadiusMeters: 100, Enabled: true})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_TimersAndSnapshotsPersist(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	deadline := time.Now().Add(15 * time.Minute).UTC().Truncate(time.Second)

	timers := []model.ShutdownTimer{{OutletID: "outlet-2", Kind: model.TimerGeofence, Deadline: deadline}}
	require.NoError(t, s.SaveTimers(ctx, timers))
	got := s.Timers(ctx)
	require.Len(t, got, 1)
	assert.Equal(t, "outlet-2", got[0].OutletID)
	assert.True(t, got[0].Deadline.Equal(deadline))

	outlets := []model.Outlet{{ID: "outlet-2", CanonicalState: model.PowerOn, DisplayedState: model.PowerOn}}
	require.NoError(t, s.SaveOutletSnapshots(ctx, outlets))
	snaps := s.OutletSnapshots(ctx)
	require.Len(t, snaps, 1)
	assert.Equal(t, model.PowerOn, snaps[0].CanonicalState)
}

func TestGormStore_EventLogTrim(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, s.AppendEvent(ctx, "user_toggle", "outlet-1", "desired=on"))
	}
	require.NoError(t, s.TrimEvents(ctx, 4))

	events, err := s.RecentEvents(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, events, 4)

	// Trimming below the row count is a no-op.
	require.NoError(t, s.TrimEvents(ctx, 100))
	events, err = s.RecentEvents(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, events, 4)
}
