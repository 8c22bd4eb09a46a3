package transport

import (
	"context"
	"sync"
	"time"

	"outlet-geofence-backend/internal/model"
)

// Loopback is an in-process Transport that acknowledges every command after
// an optional delay. It backs local runs without hardware and test setups.
type Loopback struct {
	Delay time.Duration

	mu        sync.Mutex
	failures  map[string]error
	submitted []model.Command
}

// NewLoopback creates a loopback transport.
func NewLoopback(delay time.Duration) *Loopback {
	return &Loopback{Delay: delay, failures: make(map[string]error)}
}

// FailOutlet makes every submission for the given outlet return err.
func (l *Loopback) FailOutlet(outletID string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.failures, outletID)
		return
	}
	l.failures[outletID] = err
}

// Submitted returns copies of every command seen so far.
func (l *Loopback) Submitted() []model.Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Command, len(l.submitted))
	copy(out, l.submitted)
	return out
}

// Submit echoes the desired state back as the achieved state.
func (l *Loopback) Submit(ctx context.Context, cmd model.Command) (model.CommandAck, error) {
	l.mu.Lock()
	l.submitted = append(l.submitted, cmd)
	failErr := l.failures[cmd.OutletID]
	l.mu.Unlock()

	if l.Delay > 0 {
		select {
		case <-time.After(l.Delay):
		case <-ctx.Done():
			return model.CommandAck{}, ctx.Err()
		}
	}
	if failErr != nil {
		return model.CommandAck{}, failErr
	}
	return model.CommandAck{
		CommandID:     cmd.ID,
		OutletID:      cmd.OutletID,
		AchievedState: cmd.DesiredState,
		Timestamp:     time.Now().UTC(),
	}, nil
}
