package controller

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tracker-server/internal/modules/tracker/types"
)

const (
	defaultIntervalSec = 60
	defaultWindowHours = 24

	csvFilename   = "tracker_data_24h_wib.csv"
	csvHeader     = "device_id,latitude,longitude,waktu_gps_wib,waktu_db_wib"
	wibTimeLayout = "2006-01-02 15:04:05"
)

// wib is the export timezone. Stored timestamps are UTC; the download is
// meant for local operators.
var wib = time.FixedZone("WIB", 7*60*60)

// fixResponse is the JSON shape shared by the latest-devices and history
// endpoints.
type fixResponse struct {
	DeviceID  string  `json:"device_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	WaktuGPS  string  `json:"waktu_gps"`
}

func toFixResponses(fixes []types.Fix) []fixResponse {
	out := make([]fixResponse, 0, len(fixes))
	for _, f := range fixes {
		out = append(out, fixResponse{
			DeviceID:  f.DeviceID,
			Latitude:  f.Latitude,
			Longitude: f.Longitude,
			WaktuGPS:  f.DeviceTime.UTC().Format(time.RFC3339),
		})
	}
	return out
}

func parseHistoryQuery(r *http.Request) (deviceID string, intervalSec, windowHours int, err error) {
	q := r.URL.Query()

	deviceID = q.Get("device_id")
	if deviceID == "" {
		return "", 0, 0, errors.New("device_id required")
	}

	intervalSec = defaultIntervalSec
	if s := q.Get("interval"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil {
			return "", 0, 0, errors.New("invalid 'interval' (expected integer)")
		}
		intervalSec = n
	}

	windowHours = defaultWindowHours
	if s := q.Get("hours"); s != "" {
		n, convErr := strconv.Atoi(s)
		if convErr != nil {
			return "", 0, 0, errors.New("invalid 'hours' (expected integer)")
		}
		windowHours = n
	}

	return deviceID, intervalSec, windowHours, nil
}

// buildCSV renders the export rows. Device id and timestamps are quoted,
// coordinates stay bare numerics.
func buildCSV(fixes []types.Fix) []byte {
	lines := make([]string, 0, len(fixes)+1)
	lines = append(lines, csvHeader)
	for _, f := range fixes {
		lines = append(lines, fmt.Sprintf(`"%s",%s,%s,"%s","%s"`,
			f.DeviceID,
			strconv.FormatFloat(f.Latitude, 'f', -1, 64),
			strconv.FormatFloat(f.Longitude, 'f', -1, 64),
			f.DeviceTime.In(wib).Format(wibTimeLayout),
			f.IngestTime.In(wib).Format(wibTimeLayout),
		))
	}
	return []byte(strings.Join(lines, "\n"))
}
