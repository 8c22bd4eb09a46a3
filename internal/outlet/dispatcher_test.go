package outlet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outlet-geofence-backend/internal/model"
)

// scriptedTransport lets tests control each submission's outcome.
type scriptedTransport struct {
	mu      sync.Mutex
	submits []model.Command
	respond func(cmd model.Command) (model.CommandAck, error)
	release chan struct{} // when non-nil, Submit blocks until closed
}

func (s *scriptedTransport) Submit(ctx context.Context, cmd model.Command) (model.CommandAck, error) {
	s.mu.Lock()
	s.submits = append(s.submits, cmd)
	release := s.release
	respond := s.respond
	s.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return model.CommandAck{}, ctx.Err()
		}
	}
	if respond != nil {
		return respond(cmd)
	}
	return model.CommandAck{
		CommandID:     cmd.ID,
		OutletID:      cmd.OutletID,
		AchievedState: cmd.DesiredState,
		Timestamp:     time.Now().UTC(),
	}, nil
}

func (s *scriptedTransport) submitted() []model.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Command, len(s.submits))
	copy(out, s.submits)
	return out
}

func collectResults(d *Dispatcher) *[]Result {
	var mu sync.Mutex
	results := &[]Result{}
	d.OnResult(func(r Result) {
		mu.Lock()
		*results = append(*results, r)
		mu.Unlock()
	})
	return results
}

func TestDispatcher_AckConvergesState(t *testing.T) {
	tp := &scriptedTransport{}
	outlets := NewStateStore([]model.Outlet{{ID: "outlet-1"}})
	d := NewDispatcher(tp, outlets, time.Second, 0, time.Millisecond)
	results := collectResults(d)

	cmd, err := d.Dispatch(context.Background(), "outlet-1", model.PowerOn)
	require.NoError(t, err)
	d.Wait()

	o, _ := outlets.Get("outlet-1")
	assert.Equal(t, model.PowerOn, o.CanonicalState)
	assert.Equal(t, model.PowerOn, o.DisplayedState)
	assert.Empty(t, o.PendingCommandID)
	assert.False(t, o.LastAckAt.IsZero())

	require.Len(t, *results, 1)
	assert.Equal(t, cmd.ID, (*results)[0].Command.ID)
	assert.NoError(t, (*results)[0].Err)
}

func TestDispatcher_RetriesThenRollsBack(t *testing.T) {
	attempts := 0
	tp := &scriptedTransport{
		respond: func(model.Command) (model.CommandAck, error) {
			attempts++
			return model.CommandAck{}, errors.New("relay unreachable")
		},
	}
	outlets := NewStateStore([]model.Outlet{{ID: "outlet-1", CanonicalState: model.PowerOn, DisplayedState: model.PowerOn}})
	d := NewDispatcher(tp, outlets, time.Second, 2, time.Millisecond)
	results := collectResults(d)

	_, err := d.Dispatch(context.Background(), "outlet-1", model.PowerOff)
	require.NoError(t, err)
	d.Wait()

	assert.Equal(t, 3, attempts, "one attempt plus two retries")

	o, _ := outlets.Get("outlet-1")
	assert.Equal(t, model.PowerOn, o.DisplayedState, "optimistic state rolled back")
	assert.Equal(t, model.PowerOn, o.CanonicalState)
	assert.True(t, o.Errored)

	require.Len(t, *results, 1)
	assert.Error(t, (*results)[0].Err)
}

func TestDispatcher_SupersededCommandIsAbandonedNotQueued(t *testing.T) {
	release := make(chan struct{})
	tp := &scriptedTransport{release: release}
	outlets := NewStateStore([]model.Outlet{{ID: "outlet-1"}})
	d := NewDispatcher(tp, outlets, 5*time.Second, 0, time.Millisecond)
	results := collectResults(d)

	first, err := d.Dispatch(context.Background(), "outlet-1", model.PowerOn)
	require.NoError(t, err)

	// Wait for the first submission to be in flight.
	require.Eventually(t, func() bool { return len(tp.submitted()) == 1 }, time.Second, 5*time.Millisecond)

	// The second toggle supersedes the first while it is blocked.
	second, err := d.Dispatch(context.Background(), "outlet-1", model.PowerOff)
	require.NoError(t, err)
	close(release)
	d.Wait()

	o, _ := outlets.Get("outlet-1")
	assert.Equal(t, model.PowerOff, o.CanonicalState, "only the later command is acknowledged against")
	assert.Empty(t, o.PendingCommandID)

	require.Len(t, *results, 1)
	assert.Equal(t, second.ID, (*results)[0].Command.ID)
	for _, r := range *results {
		assert.NotEqual(t, first.ID, r.Command.ID, "the abandoned command must produce no result")
	}
}

func TestDispatcher_TimeoutCountsAsFailure(t *testing.T) {
	tp := &scriptedTransport{release: make(chan struct{})} // never released
	outlets := NewStateStore([]model.Outlet{{ID: "outlet-1"}})
	d := NewDispatcher(tp, outlets, 20*time.Millisecond, 1, time.Millisecond)
	results := collectResults(d)

	_, err := d.Dispatch(context.Background(), "outlet-1", model.PowerOn)
	require.NoError(t, err)
	d.Wait()

	o, _ := outlets.Get("outlet-1")
	assert.Equal(t, model.PowerOff, o.DisplayedState, "rolled back after timeouts exhaust retries")
	assert.True(t, o.Errored)
	require.Len(t, *results, 1)
	assert.Error(t, (*results)[0].Err)
}
