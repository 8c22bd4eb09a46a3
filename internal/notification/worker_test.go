package notification

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outlet-geofence-backend/internal/model"
)

// mockSender is a mock implementation of the Sender interface.
type mockSender struct {
	mu    sync.Mutex
	calls []string
	fn    func(payload []byte, sub *webpush.Subscription) (*http.Response, error)
}

func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, _ *webpush.Options) (*http.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, sub.Endpoint)
	m.mu.Unlock()
	if m.fn != nil {
		return m.fn(payload, sub)
	}
	return &http.Response{
		StatusCode: http.StatusCreated,
		Body:       io.NopCloser(bytes.NewBufferString("")),
	}, nil
}

func (m *mockSender) sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func TestWorkerPool_DeliversOncePerIdentifier(t *testing.T) {
	st, db := newTestStore(t)
	require.NoError(t, db.Create(&model.PushSubscription{
		Endpoint: "https://example.com/push", P256DH: "k", Auth: "a", CreatedAt: time.Now(),
	}).Error)

	dedup := NewDeduplicator(st, 1000)
	wp := NewWorkerPool(1, db, &webpush.Options{}, dedup)
	sender := &mockSender{}
	wp.sender = sender

	alert := Alert{Category: model.CategoryGeofenceTimerCompleted, ID: "geofence-timer|outlet-2|1", Title: "t", Body: "b"}
	ctx := context.Background()

	// Process directly to keep the test deterministic.
	wp.process(ctx, alert)
	wp.process(ctx, alert)

	assert.Equal(t, []string{"https://example.com/push"}, sender.sent(),
		"the same identifier across two ticks results in exactly one delivery")
}

func TestWorkerPool_ExpiredSubscriptionIsDeleted(t *testing.T) {
	st, db := newTestStore(t)
	require.NoError(t, db.Create(&model.PushSubscription{
		Endpoint: "https://example.com/expired", P256DH: "k", Auth: "a", CreatedAt: time.Now(),
	}).Error)

	dedup := NewDeduplicator(st, 1000)
	wp := NewWorkerPool(1, db, &webpush.Options{}, dedup)
	wp.sender = &mockSender{
		fn: func([]byte, *webpush.Subscription) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusGone,
				Body:       io.NopCloser(bytes.NewBufferString("")),
			}, nil
		},
	}

	wp.process(context.Background(), Alert{Category: model.CategoryManualTimerCompleted, ID: "manual-timer|x|1"})

	var count int64
	db.Model(&model.PushSubscription{}).Count(&count)
	assert.Zero(t, count, "a 410 response removes the subscription")
}

func TestWorkerPool_DispatchFeedsWorkers(t *testing.T) {
	st, db := newTestStore(t)
	require.NoError(t, db.Create(&model.PushSubscription{
		Endpoint: "https://example.com/push", P256DH: "k", Auth: "a", CreatedAt: time.Now(),
	}).Error)

	dedup := NewDeduplicator(st, 1000)
	wp := NewWorkerPool(2, db, &webpush.Options{}, dedup)
	sender := &mockSender{}
	wp.sender = sender

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	wp.Dispatch(Alert{Category: model.CategoryLeftZoneWithOutletsOn, ID: "left-zone|1"})

	assert.Eventually(t, func() bool { return len(sender.sent()) == 1 }, time.Second, 5*time.Millisecond)
}
