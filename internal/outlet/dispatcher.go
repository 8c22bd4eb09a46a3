package outlet

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"outlet-geofence-backend/internal/model"
)

// Transport submits a command to the hardware and blocks until the matching
// acknowledgment arrives or ctx expires. At-most-one-in-flight per outlet is
// enforced here in the dispatcher, not by the transport.
type Transport interface {
	Submit(ctx context.Context, cmd model.Command) (model.CommandAck, error)
}

// Result reports the final outcome of a dispatched command. Err is nil on
// ack; superseded commands produce no result at all.
type Result struct {
	Command model.Command
	Ack     *model.CommandAck
	Err     error
}

var errSuperseded = errors.New("command superseded")

// Dispatcher issues state-change commands asynchronously with per-attempt
// timeouts and a capped exponential-backoff retry, rolling the optimistic
// state back when retries exhaust.
type Dispatcher struct {
	transport  Transport
	outlets    *StateStore
	timeout    time.Duration
	maxRetries uint64
	backoff    time.Duration

	mu       sync.Mutex
	onResult func(Result)
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher. timeout bounds each transport attempt;
// maxRetries is the number of retries after the first attempt.
func NewDispatcher(t Transport, outlets *StateStore, timeout time.Duration, maxRetries int, backoffBase time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	return &Dispatcher{
		transport:  t,
		outlets:    outlets,
		timeout:    timeout,
		maxRetries: uint64(maxRetries),
		backoff:    backoffBase,
	}
}

// OnResult registers a callback invoked once per command resolution, from
// the dispatch goroutine.
func (d *Dispatcher) OnResult(fn func(Result)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onResult = fn
}

func (d *Dispatcher) emit(r Result) {
	d.mu.Lock()
	fn := d.onResult
	d.mu.Unlock()
	if fn != nil {
		fn(r)
	}
}

// Dispatch issues a command to drive outletID to desired. The optimistic
// overlay is applied synchronously; the transport exchange runs in the
// background. Any prior pending command for the outlet is abandoned.
func (d *Dispatcher) Dispatch(ctx context.Context, outletID string, desired model.PowerState) (model.Command, error) {
	cmd := model.Command{
		ID:           uuid.NewString(),
		OutletID:     outletID,
		DesiredState: desired,
		IssuedAt:     time.Now().UTC(),
		Status:       model.CommandPending,
	}
	superseded, err := d.outlets.BeginCommand(outletID, desired, cmd.ID)
	if err != nil {
		return model.Command{}, err
	}
	if superseded != "" {
		log.Printf("dispatcher: outlet %s command %s supersedes %s", outletID, cmd.ID, superseded)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx, cmd)
	}()
	return cmd, nil
}

// Wait blocks until all in-flight dispatch goroutines finish. Test helper
// and shutdown hook.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) run(ctx context.Context, cmd model.Command) {
	var ack model.CommandAck

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.backoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 30 * time.Second

	attempts := 0
	operation := func() error {
		if !d.outlets.IsPending(cmd.OutletID, cmd.ID) {
			return backoff.Permanent(errSuperseded)
		}
		attempts++
		cmd.RetryCount = attempts - 1

		attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		a, err := d.transport.Submit(attemptCtx, cmd)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				cmd.Status = model.CommandTimedOut
			} else {
				cmd.Status = model.CommandFailed
			}
			log.Printf("dispatcher: outlet %s command %s attempt %d failed: %v", cmd.OutletID, cmd.ID, attempts, err)
			return err
		}
		ack = a
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, d.maxRetries), ctx))
	if errors.Is(err, errSuperseded) {
		cmd.Status = model.CommandAbandoned
		return
	}
	if err != nil {
		if d.outlets.ResolveFailure(cmd.OutletID, cmd.ID) {
			d.emit(Result{Command: cmd, Err: err})
		}
		return
	}

	cmd.Status = model.CommandAcked
	if ack.Timestamp.IsZero() {
		ack.Timestamp = time.Now().UTC()
	}
	if d.outlets.ResolveAck(cmd.OutletID, cmd.ID, ack.AchievedState, ack.Timestamp) {
		d.emit(Result{Command: cmd, Ack: &ack})
	}
}
