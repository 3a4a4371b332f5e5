package types

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func coord(f float64) *Coord {
	c := Coord(f)
	return &c
}

func TestValidate_Valid(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	fix, err := Validate(RawFix{
		DeviceID:   "dev1",
		Latitude:   coord(-7.123),
		Longitude:  coord(110.456),
		DeviceTime: "2025-06-01T11:59:30Z",
	}, now)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if fix.DeviceID != "dev1" || fix.Latitude != -7.123 || fix.Longitude != 110.456 {
		t.Errorf("fix = %+v", fix)
	}
	want := time.Date(2025, 6, 1, 11, 59, 30, 0, time.UTC)
	if !fix.DeviceTime.Equal(want) {
		t.Errorf("DeviceTime = %v; want %v", fix.DeviceTime, want)
	}
	if !fix.IngestTime.Equal(now) {
		t.Errorf("IngestTime = %v; want %v", fix.IngestTime, now)
	}
}

func TestValidate_MissingDeviceID(t *testing.T) {
	now := time.Now()
	_, err := Validate(RawFix{Latitude: coord(1), Longitude: coord(2)}, now)
	if !errors.Is(err, ErrMissingDeviceID) {
		t.Fatalf("err = %v; want ErrMissingDeviceID", err)
	}
}

func TestValidate_InvalidCoordinates(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		raw  RawFix
	}{
		{"missing latitude", RawFix{DeviceID: "d", Longitude: coord(2)}},
		{"missing longitude", RawFix{DeviceID: "d", Latitude: coord(1)}},
		{"nan latitude", RawFix{DeviceID: "d", Latitude: coord(math.NaN()), Longitude: coord(2)}},
		{"inf longitude", RawFix{DeviceID: "d", Latitude: coord(1), Longitude: coord(math.Inf(1))}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Validate(tc.raw, now); !errors.Is(err, ErrInvalidCoordinates) {
				t.Fatalf("err = %v; want ErrInvalidCoordinates", err)
			}
		})
	}
}

func TestValidate_DeviceTimeFallback(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name       string
		deviceTime string
	}{
		{"absent", ""},
		{"garbage", "not-a-time"},
		{"partial", "2025-13-45"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fix, err := Validate(RawFix{
				DeviceID:   "d",
				Latitude:   coord(1),
				Longitude:  coord(2),
				DeviceTime: tc.deviceTime,
			}, now)
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !fix.DeviceTime.Equal(now) {
				t.Errorf("DeviceTime = %v; want fallback to %v", fix.DeviceTime, now)
			}
		})
	}
}

func TestValidate_AcceptsZonelessTimestamp(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fix, err := Validate(RawFix{
		DeviceID:   "d",
		Latitude:   coord(1),
		Longitude:  coord(2),
		DeviceTime: "2025-06-01 08:30:00",
	}, now)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	want := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)
	if !fix.DeviceTime.Equal(want) {
		t.Errorf("DeviceTime = %v; want %v", fix.DeviceTime, want)
	}
}

// Coordinates are deliberately not range-checked: the upstream contract is
// lenient and downstream consumers may rely on out-of-range values being
// stored as-is.
func TestValidate_NoRangeCheck(t *testing.T) {
	now := time.Now()
	fix, err := Validate(RawFix{DeviceID: "d", Latitude: coord(123.0), Longitude: coord(-200.0)}, now)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if fix.Latitude != 123.0 || fix.Longitude != -200.0 {
		t.Errorf("fix = %+v", fix)
	}
}

func TestCoord_UnmarshalJSON(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    float64
		wantNaN bool
	}{
		{"number", `{"latitude": -7.123}`, -7.123, false},
		{"numeric string", `{"latitude": "-7.123"}`, -7.123, false},
		{"padded string", `{"latitude": " 42.5 "}`, 42.5, false},
		{"non-numeric string", `{"latitude": "abc"}`, 0, true},
		{"null", `{"latitude": null}`, 0, true},
		{"object", `{"latitude": {}}`, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var raw RawFix
			if err := json.Unmarshal([]byte(tc.payload), &raw); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if raw.Latitude == nil {
				t.Fatal("latitude not decoded")
			}
			got := float64(*raw.Latitude)
			if tc.wantNaN {
				if !math.IsNaN(got) {
					t.Errorf("got %v; want NaN", got)
				}
				return
			}
			if got != tc.want {
				t.Errorf("got %v; want %v", got, tc.want)
			}
		})
	}
}

func TestCoord_AbsentFieldStaysNil(t *testing.T) {
	var raw RawFix
	if err := json.Unmarshal([]byte(`{"device_id":"d"}`), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw.Latitude != nil || raw.Longitude != nil {
		t.Errorf("absent coordinates should stay nil, got %v, %v", raw.Latitude, raw.Longitude)
	}
}
