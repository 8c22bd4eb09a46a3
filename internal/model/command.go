package model

import "time"

// CommandStatus is the lifecycle state of a state-change command.
type CommandStatus string

const (
	CommandPending   CommandStatus = "pending"
	CommandAcked     CommandStatus = "acked"
	CommandFailed    CommandStatus = "failed"
	CommandTimedOut  CommandStatus = "timed_out"
	CommandAbandoned CommandStatus = "abandoned"
)

// Command is a single request to drive an outlet relay to a desired state.
// At most one pending command exists per outlet; a newer toggle for the same
// outlet abandons the older command rather than queueing behind it.
type Command struct {
	ID           string        `json:"id"`
	OutletID     string        `json:"outletId"`
	DesiredState PowerState    `json:"desiredState"`
	IssuedAt     time.Time     `json:"issuedAt"`
	RetryCount   int           `json:"retryCount"`
	Status       CommandStatus `json:"status"`
}

// CommandAck is the hardware acknowledgment for a submitted command.
type CommandAck struct {
	CommandID     string     `json:"commandId"`
	OutletID      string     `json:"outletId"`
	AchievedState PowerState `json:"achievedState"`
	Timestamp     time.Time  `json:"timestamp"`
}
