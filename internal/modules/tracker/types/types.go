package types

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Coord is a latitude or longitude value. Devices in the field send both
// JSON numbers and numeric strings, so both are accepted on the wire.
// Unparsable input decodes to NaN instead of failing the whole message;
// Validate rejects non-finite values.
type Coord float64

func (c *Coord) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			*c = Coord(math.NaN())
			return nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			*c = Coord(math.NaN())
			return nil
		}
		*c = Coord(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		*c = Coord(math.NaN())
		return nil
	}
	*c = Coord(f)
	return nil
}

// RawFix is the inbound telemetry payload as published by a device on the
// GPS topic.
type RawFix struct {
	DeviceID   string `json:"device_id"`
	Latitude   *Coord `json:"latitude"`
	Longitude  *Coord `json:"longitude"`
	DeviceTime string `json:"waktu_gps,omitempty"`
}

// Fix is one validated, normalized position report. Persisted rows are
// immutable; they are never updated or deleted by the server.
type Fix struct {
	DeviceID   string
	Latitude   float64
	Longitude  float64
	DeviceTime time.Time // reported by the device; falls back to IngestTime
	IngestTime time.Time // assigned at receipt
}

// LocationEvent is the broadcast payload pushed to viewer sessions.
type LocationEvent struct {
	DeviceID  string  `json:"device_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Time      string  `json:"waktu"`
}

func (f Fix) LocationEvent() LocationEvent {
	return LocationEvent{
		DeviceID:  f.DeviceID,
		Latitude:  f.Latitude,
		Longitude: f.Longitude,
		Time:      f.DeviceTime.UTC().Format(time.RFC3339),
	}
}
