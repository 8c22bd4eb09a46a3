package model

import "time"

// TimerKind distinguishes grace-period timers armed by a zone exit from
// countdown timers armed directly by the user.
type TimerKind string

const (
	TimerGeofence TimerKind = "geofence"
	TimerManual   TimerKind = "manual"
)

// ShutdownTimer schedules an automatic power-off for one outlet. Timers are
// resolved cooperatively on evaluation ticks, so a deadline in the past is
// resolved on the next tick rather than missed.
type ShutdownTimer struct {
	OutletID  string    `json:"outletId"`
	Kind      TimerKind `json:"kind"`
	Deadline  time.Time `json:"deadline"`
	Cancelled bool      `json:"cancelled"`
}

// Key identifies a timer slot; one timer of each kind may exist per outlet.
func (t ShutdownTimer) Key() string {
	return t.OutletID + "|" + string(t.Kind)
}
