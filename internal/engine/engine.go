package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"outlet-geofence-backend/config"
	"outlet-geofence-backend/internal/geofence"
	"outlet-geofence-backend/internal/model"
	"outlet-geofence-backend/internal/notification"
	"outlet-geofence-backend/internal/outlet"
	"outlet-geofence-backend/internal/scheduler"
	"outlet-geofence-backend/internal/store"
)

// Status is the completion signal an evaluation pass returns to its caller,
// typically the external background scheduler.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Engine runs the automation pipeline: location in, membership transitions,
// grace timers, shutdown commands, deduplicated alerts out.
//
// Foreground-triggered and background-triggered passes serialize through a
// single evaluation lock; each pass reads the freshest location sample at
// entry, so the most recent sample wins when passes race.
type Engine struct {
	cfg        *config.Config
	store      store.Store
	monitor    *geofence.Monitor
	zone       *geofence.StateMachine
	outlets    *outlet.StateStore
	dispatcher *outlet.Dispatcher
	scheduler  *scheduler.Scheduler
	dedup      *notification.Deduplicator
	notifier   *notification.WorkerPool

	evalMu   sync.Mutex // the single evaluation lock
	loadOnce sync.Once

	mu          sync.Mutex
	prevEnabled bool
	lastRun     time.Time
	lastStatus  Status
}

// New wires the engine together and hooks command resolutions into the
// event log.
func New(cfg *config.Config, st store.Store, monitor *geofence.Monitor, zone *geofence.StateMachine,
	outlets *outlet.StateStore, dispatcher *outlet.Dispatcher, sched *scheduler.Scheduler,
	dedup *notification.Deduplicator, notifier *notification.WorkerPool) *Engine {

	e := &Engine{
		cfg:        cfg,
		store:      st,
		monitor:    monitor,
		zone:       zone,
		outlets:    outlets,
		dispatcher: dispatcher,
		scheduler:  sched,
		dedup:      dedup,
		notifier:   notifier,
	}
	dispatcher.OnResult(e.handleCommandResult)
	return e
}

func (e *Engine) handleCommandResult(r outlet.Result) {
	ctx := context.Background()
	if r.Err != nil {
		log.Printf("engine: command %s for outlet %s failed after %d retries: %v",
			r.Command.ID, r.Command.OutletID, r.Command.RetryCount, r.Err)
		e.logEvent(ctx, "command_failed", r.Command.OutletID,
			fmt.Sprintf("desired=%s retries=%d: %v", r.Command.DesiredState, r.Command.RetryCount, r.Err))
	} else {
		e.logEvent(ctx, "command_acked", r.Command.OutletID,
			fmt.Sprintf("achieved=%s", r.Ack.AchievedState))
	}
	e.persistOutlets(ctx)
}

func (e *Engine) logEvent(ctx context.Context, kind, outletID, detail string) {
	if err := e.store.AppendEvent(ctx, kind, outletID, detail); err != nil {
		log.Printf("engine: append event %s: %v", kind, err)
	}
}

func (e *Engine) persistOutlets(ctx context.Context) {
	if err := e.store.SaveOutletSnapshots(ctx, e.outlets.Snapshot()); err != nil {
		log.Printf("engine: persist outlet snapshots: %v", err)
	}
}

// ensureLoaded reloads all persisted state once after a cold process start.
// Concurrent callers block until the reload has finished, so a toggle racing
// the very first evaluation pass never observes a half-loaded outlet store.
// A command that was pending when the process died cannot be acknowledged
// anymore, so its optimistic overlay is rolled back on reload.
func (e *Engine) ensureLoaded(ctx context.Context) {
	e.loadOnce.Do(func() {
		region, _ := e.store.Region(ctx)
		e.mu.Lock()
		e.prevEnabled = region.Enabled
		e.mu.Unlock()

		e.zone.Restore(e.store.Membership(ctx))
		e.scheduler.Load(ctx)
		e.dedup.Load(ctx)
		for _, o := range e.store.OutletSnapshots(ctx) {
			if o.PendingCommandID != "" {
				o.PendingCommandID = ""
				o.DisplayedState = o.CanonicalState
			}
			if _, exists := e.outlets.Get(o.ID); !exists {
				e.outlets.Upsert(o)
			}
		}
		log.Println("engine: persisted state reloaded")
	})
}

// Evaluate runs one pass of the pipeline under the configured wall-clock
// budget. When the budget expires mid-pass the remaining work is skipped and
// StatusPartial returned; all progress made so far is already persisted, so
// the next pass (foreground or background) finishes the resolution.
func (e *Engine) Evaluate(ctx context.Context) Status {
	e.evalMu.Lock()
	defer e.evalMu.Unlock()

	if ctx.Err() != nil {
		return e.finish(StatusFailed)
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Engine.TickBudget)
	defer cancel()

	now := time.Now().UTC()
	status := StatusSuccess

	e.ensureLoaded(ctx)

	region, regionOK := e.store.Region(ctx)
	if regionOK {
		e.mu.Lock()
		wasEnabled := e.prevEnabled
		e.prevEnabled = region.Enabled
		e.mu.Unlock()
		if !region.Enabled && wasEnabled {
			// Disabling the region forces Unknown and drops grace timers
			// without issuing any commands.
			e.zone.Reset()
			if err := e.store.SaveMembership(ctx, model.MembershipUnknown); err != nil {
				log.Printf("engine: persist membership: %v", err)
			}
			if n := e.scheduler.CancelZone(ctx); n > 0 {
				e.logEvent(ctx, "region_disabled", "", fmt.Sprintf("cancelled %d grace timers", n))
			}
		}

		sample, ok := e.monitor.Refresh(ctx)
		usable := ok && e.monitor.Usable(sample, now)
		prevMembership := e.zone.Membership()
		switch e.zone.Advance(region, sample, usable) {
		case geofence.EventEnter:
			// Cancel synchronously, before any timer could fire this cycle.
			n := e.scheduler.CancelZone(ctx)
			e.logEvent(ctx, "zone_enter", "", fmt.Sprintf("cancelled %d grace timers", n))
		case geofence.EventExit:
			onIDs := e.outlets.CanonicalOn()
			grace := e.store.GracePeriod(ctx)
			armed := e.scheduler.ArmGeofence(ctx, onIDs, grace, now)
			e.logEvent(ctx, "zone_exit", "", fmt.Sprintf("%d outlets on, %d timers armed, grace=%s", len(onIDs), len(armed), grace))
			if len(onIDs) > 0 {
				e.notifyZoneExit(len(onIDs))
			}
		}
		if m := e.zone.Membership(); m != prevMembership {
			if err := e.store.SaveMembership(ctx, m); err != nil {
				log.Printf("engine: persist membership: %v", err)
			}
		}
	} else {
		// A failed region read must not masquerade as a user disable:
		// membership and armed timers stay untouched for this pass.
		log.Println("engine: region unreadable, skipping membership evaluation")
		status = StatusPartial
	}

	if ctx.Err() != nil {
		return e.finish(StatusPartial)
	}

	fired := e.scheduler.ResolveDue(ctx, now, e.zone.Membership(), e.outlets.CanonicalState,
		func(ctx context.Context, outletID string, kind model.TimerKind) error {
			// Shutdown commands carry their own timeout and retry
			// bounds; the tick budget must not kill them mid-flight.
			_, err := e.dispatcher.Dispatch(context.WithoutCancel(ctx), outletID, model.PowerOff)
			return err
		})
	for _, t := range fired {
		switch t.Kind {
		case model.TimerGeofence:
			e.logEvent(ctx, "auto_shutdown", t.OutletID, "grace period elapsed outside zone")
			e.notifier.Dispatch(notification.Alert{
				Category: model.CategoryGeofenceTimerCompleted,
				ID:       fmt.Sprintf("geofence-timer|%s|%d", t.OutletID, t.Deadline.Unix()),
				Title:    "Outlet switched off",
				Body:     fmt.Sprintf("%s was switched off after you left the zone.", t.OutletID),
			})
		case model.TimerManual:
			e.logEvent(ctx, "manual_timer_shutdown", t.OutletID, "countdown elapsed")
			e.notifier.Dispatch(notification.Alert{
				Category: model.CategoryManualTimerCompleted,
				ID:       fmt.Sprintf("manual-timer|%s|%d", t.OutletID, t.Deadline.Unix()),
				Title:    "Timer finished",
				Body:     fmt.Sprintf("The countdown for %s finished and it was switched off.", t.OutletID),
			})
		}
	}

	if ctx.Err() != nil {
		return e.finish(StatusPartial)
	}

	e.persistOutlets(ctx)
	if err := e.store.TrimEvents(ctx, e.cfg.Engine.EventRetention); err != nil {
		log.Printf("engine: trim events: %v", err)
		status = StatusPartial
	}
	return e.finish(status)
}

// notifyZoneExit emits the left-zone alert. The identifier derives from the
// earliest persisted grace deadline, so the same exit re-observed on a later
// tick or after a restart maps to the same id and dedups away.
func (e *Engine) notifyZoneExit(outletsOn int) {
	var earliest time.Time
	for _, t := range e.scheduler.Armed() {
		if t.Kind != model.TimerGeofence {
			continue
		}
		if earliest.IsZero() || t.Deadline.Before(earliest) {
			earliest = t.Deadline
		}
	}
	if earliest.IsZero() {
		return
	}
	e.notifier.Dispatch(notification.Alert{
		Category: model.CategoryLeftZoneWithOutletsOn,
		ID:       fmt.Sprintf("left-zone|%d", earliest.Unix()),
		Title:    "Outlets still on",
		Body:     fmt.Sprintf("You left the zone with %d outlet(s) on. They will switch off when the grace period ends.", outletsOn),
	})
}

func (e *Engine) finish(status Status) Status {
	e.mu.Lock()
	e.lastRun = time.Now().UTC()
	e.lastStatus = status
	e.mu.Unlock()
	return status
}

// Run starts the notification workers and evaluates on the configured
// interval until ctx is cancelled. The interval is cooperative scheduling,
// not a correctness requirement: a skipped or late tick only delays timer
// resolution until the next pass.
func (e *Engine) Run(ctx context.Context) {
	e.notifier.Start(ctx)

	if !e.cfg.Engine.Enabled {
		log.Println("Background evaluation is disabled. Not starting.")
		return
	}
	log.Println("Starting background evaluation loop...")

	e.Evaluate(ctx)

	timer := time.NewTimer(e.cfg.Engine.TickInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Background evaluation loop shutting down.")
			return
		case <-timer.C:
			status := e.Evaluate(ctx)
			if status != StatusSuccess {
				log.Printf("evaluation pass finished with status=%s", status)
			}
			timer.Reset(e.cfg.Engine.TickInterval)
		}
	}
}
