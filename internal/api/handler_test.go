package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"outlet-geofence-backend/config"
	"outlet-geofence-backend/internal/engine"
	"outlet-geofence-backend/internal/geofence"
	"outlet-geofence-backend/internal/model"
	"outlet-geofence-backend/internal/notification"
	"outlet-geofence-backend/internal/outlet"
	"outlet-geofence-backend/internal/scheduler"
	"outlet-geofence-backend/internal/store"
	"outlet-geofence-backend/internal/transport"
)

func setupRouter(t *testing.T) (*gin.Engine, store.Store) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Setting{}, &model.AutomationEvent{}, &model.PushSubscription{}))
	st := store.NewGormStore(db)

	cfg := &config.Config{}
	cfg.ApplyDefaults()

	outlets := outlet.NewStateStore(nil)
	disp := outlet.NewDispatcher(transport.NewLoopback(0), outlets, time.Second, 1, time.Millisecond)
	mon := geofence.NewMonitor(nil, cfg.Geofence.MaxAccuracyMeters, cfg.Geofence.MaxSampleAge)
	zone := geofence.NewStateMachine(cfg.Geofence.ExitDebounceSamples)
	dedup := notification.NewDeduplicator(st, 1000)
	notifier := notification.NewWorkerPool(8, db, nil, dedup)
	eng := engine.New(cfg, st, mon, zone, outlets, disp, scheduler.New(st), dedup, notifier)

	// A generous rate limit keeps back-to-back test requests from tripping
	// the limiter.
	return NewRouter(st, eng, nil, 1e6, 50*time.Millisecond), st
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req, _ = http.NewRequest(method, path, nil)
	} else {
		req, _ = http.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	router.ServeHTTP(w, req)
	return w
}

func TestOutletRegistrationAndToggle(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(router, "PUT", "/api/outlets/heater", `{"displayName":"Space Heater"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(router, "GET", "/api/outlets", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"Space Heater"`)
	assert.Contains(t, w.Body.String(), `"displayedState":"off"`)

	w = doJSON(router, "POST", "/api/outlets/heater/toggle", `{"state":"on"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"desiredState":"on"`)

	// The displayed state flips optimistically before the ack lands.
	w = doJSON(router, "GET", "/api/outlets", "")
	assert.Contains(t, w.Body.String(), `"displayedState":"on"`)
}

func TestToggleValidation(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(router, "POST", "/api/outlets/nope/toggle", `{"state":"on"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	doJSON(router, "PUT", "/api/outlets/heater", `{"displayName":"Heater"}`)
	w = doJSON(router, "POST", "/api/outlets/heater/toggle", `{"state":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, "POST", "/api/outlets/heater/toggle", ``)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestManualTimerEndpoints(t *testing.T) {
	router, _ := setupRouter(t)
	doJSON(router, "PUT", "/api/outlets/lamp", `{"displayName":"Lamp"}`)

	w := doJSON(router, "POST", "/api/outlets/lamp/timer", `{"minutes":10}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":"manual"`)

	w = doJSON(router, "DELETE", "/api/outlets/lamp/timer", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cancelled":1}`, w.Body.String())

	w = doJSON(router, "POST", "/api/outlets/missing/timer", `{"minutes":10}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGeofenceRoundTrip(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(router, "PUT", "/api/geofence", `{"centerLat":45.5,"centerLng":9.2,"radiusMeters":150,"enabled":true}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(router, "GET", "/api/geofence", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"centerLat":45.5,"centerLng":9.2,"radiusMeters":150,"enabled":true}`, w.Body.String())

	w = doJSON(router, "PUT", "/api/geofence", `{"centerLat":45.5,"centerLng":9.2,"radiusMeters":0,"enabled":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettingsClampedByStore(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(router, "PUT", "/api/settings", `{"gracePeriodSeconds":300}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(router, "GET", "/api/settings", "")
	assert.JSONEq(t, `{"gracePeriodSeconds":300}`, w.Body.String())

	// Below-floor values come back clamped.
	doJSON(router, "PUT", "/api/settings", `{"gracePeriodSeconds":2}`)
	w = doJSON(router, "GET", "/api/settings", "")
	assert.JSONEq(t, `{"gracePeriodSeconds":10}`, w.Body.String())
}

func TestNotificationPrefsRoundTrip(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(router, "GET", "/api/notifications/prefs", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"leftZoneWithOutletsOn":true`)

	w = doJSON(router, "PUT", "/api/notifications/prefs", `{"leftZoneWithOutletsOn":false,"geofenceTimerCompleted":true,"manualTimerCompleted":true,"turnedOnOutletOutsideZone":true}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(router, "GET", "/api/notifications/prefs", "")
	assert.Contains(t, w.Body.String(), `"leftZoneWithOutletsOn":false`)
}

func TestLocationDrivesEvaluation(t *testing.T) {
	router, _ := setupRouter(t)
	doJSON(router, "PUT", "/api/geofence", `{"centerLat":0,"centerLng":0,"radiusMeters":100,"enabled":true}`)

	w := doJSON(router, "POST", "/api/location", `{"lat":0,"lng":0,"accuracyMeters":10}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"membership":"inside"`)
	assert.Contains(t, w.Body.String(), `"status":"success"`)
}

func TestStatusAndEvaluate(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(router, "GET", "/api/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"membership":"unknown"`)

	w = doJSON(router, "POST", "/api/evaluate", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"success"}`, w.Body.String())
}

func TestSubscriptionLifecycle(t *testing.T) {
	router, _ := setupRouter(t)
	sub := `{"endpoint":"https://push.example/abc","p256dh":"key","auth":"secret"}`

	w := doJSON(router, "PUT", "/api/subscriptions", sub)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(router, "GET", "/api/subscriptions?endpoint=https%3A%2F%2Fpush.example%2Fabc", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, "DELETE", "/api/subscriptions", `{"endpoint":"https://push.example/abc"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(router, "GET", "/api/subscriptions?endpoint=https%3A%2F%2Fpush.example%2Fabc", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVAPIDKeyUnconfigured(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(router, "GET", "/api/vapid_public_key", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
