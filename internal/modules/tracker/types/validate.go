package types

import (
	"errors"
	"math"
	"time"
)

var (
	ErrMissingDeviceID    = errors.New("device_id is required")
	ErrInvalidCoordinates = errors.New("latitude and longitude must be finite numbers")
)

// Accepted device timestamp layouts. Trackers normally send RFC 3339 but
// older firmware omits the zone designator.
var deviceTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Validate normalizes a raw inbound message into a Fix or reports why it
// must be dropped. Pure; safe for concurrent use.
//
// An absent or unparsable device timestamp is not a rejection: the fix is
// stamped with now instead, since a resent GPS point with a degraded
// timestamp is still worth keeping.
func Validate(raw RawFix, now time.Time) (Fix, error) {
	if raw.DeviceID == "" {
		return Fix{}, ErrMissingDeviceID
	}
	if raw.Latitude == nil || raw.Longitude == nil {
		return Fix{}, ErrInvalidCoordinates
	}
	lat := float64(*raw.Latitude)
	lon := float64(*raw.Longitude)
	if !finite(lat) || !finite(lon) {
		return Fix{}, ErrInvalidCoordinates
	}

	deviceTime := now
	if raw.DeviceTime != "" {
		if t, ok := parseDeviceTime(raw.DeviceTime); ok {
			deviceTime = t
		}
	}

	return Fix{
		DeviceID:   raw.DeviceID,
		Latitude:   lat,
		Longitude:  lon,
		DeviceTime: deviceTime,
		IngestTime: now,
	}, nil
}

func parseDeviceTime(s string) (time.Time, bool) {
	for _, layout := range deviceTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
