package model

import "time"

// ZoneMembership is the debounced judgment of whether the device is inside
// the configured geofence region.
type ZoneMembership string

const (
	MembershipUnknown ZoneMembership = "unknown"
	MembershipInside  ZoneMembership = "inside"
	MembershipOutside ZoneMembership = "outside"
)

// GeofenceRegion is the persisted circular zone around the user's home.
type GeofenceRegion struct {
	CenterLat    float64 `json:"centerLat"`
	CenterLng    float64 `json:"centerLng"`
	RadiusMeters float64 `json:"radiusMeters"`
	Enabled      bool    `json:"enabled"`
}

// LocationSample is one position fix from the external location provider.
// Accuracy is the provider's horizontal error estimate in meters.
type LocationSample struct {
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	AccuracyMeters float64   `json:"accuracyMeters"`
	Timestamp      time.Time `json:"timestamp"`
}
