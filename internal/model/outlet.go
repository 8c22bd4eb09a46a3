package model

import "time"

// PowerState is the on/off state of an outlet relay.
type PowerState string

const (
	PowerOn  PowerState = "on"
	PowerOff PowerState = "off"
)

// Outlet tracks both the optimistic (displayed) and the hardware-acknowledged
// (canonical) power state of a single smart outlet. The two diverge only
// while a command is pending and reconverge when the command resolves.
type Outlet struct {
	ID               string     `json:"id"`
	DisplayName      string     `json:"displayName"`
	DisplayedState   PowerState `json:"displayedState"`
	CanonicalState   PowerState `json:"canonicalState"`
	PendingCommandID string     `json:"pendingCommandId,omitempty"`
	Errored          bool       `json:"errored"`
	LastAckAt        time.Time  `json:"lastAckAt"`
}
