package engine

import (
	"context"
	"fmt"
	"time"

	"outlet-geofence-backend/internal/model"
	"outlet-geofence-backend/internal/notification"
	"outlet-geofence-backend/internal/outlet"
)

// Toggle applies a user-initiated state change: the displayed state flips
// immediately and a command goes out asynchronously, superseding any pending
// command for the same outlet. Turning an outlet off cancels its armed
// timers before the command is even submitted.
func (e *Engine) Toggle(ctx context.Context, outletID string, desired model.PowerState) (model.Command, error) {
	e.ensureLoaded(ctx)

	if _, ok := e.outlets.Get(outletID); !ok {
		return model.Command{}, outlet.ErrUnknownOutlet
	}

	if desired == model.PowerOff {
		e.scheduler.CancelOutlet(ctx, outletID)
	}

	cmd, err := e.dispatcher.Dispatch(context.WithoutCancel(ctx), outletID, desired)
	if err != nil {
		return model.Command{}, err
	}
	e.logEvent(ctx, "user_toggle", outletID, fmt.Sprintf("desired=%s command=%s", desired, cmd.ID))

	if desired == model.PowerOn && e.zone.Membership() == model.MembershipOutside {
		e.notifier.Dispatch(notification.Alert{
			Category: model.CategoryTurnedOnOutletOutsideZone,
			ID:       fmt.Sprintf("outside-on|%s|%s", outletID, cmd.ID),
			Title:    "Outlet turned on away from home",
			Body:     fmt.Sprintf("%s was turned on while you are outside the zone.", outletID),
		})
	}

	e.persistOutlets(ctx)
	return cmd, nil
}

// ObserveLocation feeds an externally pushed location sample into the
// monitor. The sample is judged on the next evaluation pass.
func (e *Engine) ObserveLocation(s model.LocationSample) {
	e.monitor.Observe(s)
}

// RegisterOutlet adds or updates an outlet record and persists the
// inventory.
func (e *Engine) RegisterOutlet(ctx context.Context, o model.Outlet) {
	e.ensureLoaded(ctx)
	if existing, ok := e.outlets.Get(o.ID); ok {
		// Keep live state; only the display name is caller-editable.
		existing.DisplayName = o.DisplayName
		o = existing
	} else {
		if o.DisplayedState == "" {
			o.DisplayedState = model.PowerOff
		}
		if o.CanonicalState == "" {
			o.CanonicalState = model.PowerOff
		}
	}
	e.outlets.Upsert(o)
	e.persistOutlets(ctx)
}

// ArmManualTimer arms a user-requested countdown that switches the outlet
// off when it elapses, independent of the geofence.
func (e *Engine) ArmManualTimer(ctx context.Context, outletID string, d time.Duration) (model.ShutdownTimer, error) {
	e.ensureLoaded(ctx)
	if _, ok := e.outlets.Get(outletID); !ok {
		return model.ShutdownTimer{}, outlet.ErrUnknownOutlet
	}
	if d < time.Minute {
		d = time.Minute
	}
	t := e.scheduler.ArmManual(ctx, outletID, d, time.Now().UTC())
	e.logEvent(ctx, "manual_timer_armed", outletID, fmt.Sprintf("deadline=%s", t.Deadline.Format(time.RFC3339)))
	return t, nil
}

// CancelTimers drops all armed timers for one outlet.
func (e *Engine) CancelTimers(ctx context.Context, outletID string) int {
	e.ensureLoaded(ctx)
	return e.scheduler.CancelOutlet(ctx, outletID)
}

// Outlets returns the current outlet records, displayed state included.
func (e *Engine) Outlets(ctx context.Context) []model.Outlet {
	e.ensureLoaded(ctx)
	return e.outlets.Snapshot()
}

// Membership returns the current debounced zone membership.
func (e *Engine) Membership() model.ZoneMembership {
	return e.zone.Membership()
}

// ArmedTimers returns all armed shutdown timers.
func (e *Engine) ArmedTimers(ctx context.Context) []model.ShutdownTimer {
	e.ensureLoaded(ctx)
	return e.scheduler.Armed()
}

// LastRun reports when the previous evaluation pass finished and its status.
func (e *Engine) LastRun() (time.Time, Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastRun, e.lastStatus
}
