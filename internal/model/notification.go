package model

import "time"

// NotificationCategory names one independently togglable class of alert.
type NotificationCategory string

const (
	CategoryLeftZoneWithOutletsOn     NotificationCategory = "leftZoneWithOutletsOn"
	CategoryTurnedOnOutletOutsideZone NotificationCategory = "turnedOnOutletOutsideZone"
	CategoryManualTimerCompleted      NotificationCategory = "manualTimerCompleted"
	CategoryGeofenceTimerCompleted    NotificationCategory = "geofenceTimerCompleted"
)

// NotificationPrefs gates each alert category independently.
type NotificationPrefs struct {
	LeftZoneWithOutletsOn     bool `json:"leftZoneWithOutletsOn"`
	TurnedOnOutletOutsideZone bool `json:"turnedOnOutletOutsideZone"`
	ManualTimerCompleted      bool `json:"manualTimerCompleted"`
	GeofenceTimerCompleted    bool `json:"geofenceTimerCompleted"`
}

// DefaultNotificationPrefs enables every category.
func DefaultNotificationPrefs() NotificationPrefs {
	return NotificationPrefs{
		LeftZoneWithOutletsOn:     true,
		TurnedOnOutletOutsideZone: true,
		ManualTimerCompleted:      true,
		GeofenceTimerCompleted:    true,
	}
}

// Enabled reports whether the given category is switched on.
func (p NotificationPrefs) Enabled(c NotificationCategory) bool {
	switch c {
	case CategoryLeftZoneWithOutletsOn:
		return p.LeftZoneWithOutletsOn
	case CategoryTurnedOnOutletOutsideZone:
		return p.TurnedOnOutletOutsideZone
	case CategoryManualTimerCompleted:
		return p.ManualTimerCompleted
	case CategoryGeofenceTimerCompleted:
		return p.GeofenceTimerCompleted
	}
	return false
}

// NotificationRecord marks one notification identifier as already shown.
// Records live in a bounded FIFO ring so the shown-set cannot grow without
// limit across months of background ticks.
type NotificationRecord struct {
	ID      string    `json:"id"`
	ShownAt time.Time `json:"shownAt"`
}
