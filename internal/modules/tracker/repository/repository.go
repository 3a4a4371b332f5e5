package repository

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"tracker-server/internal/db"
	"tracker-server/internal/modules/tracker/types"
)

//go:embed sql/insert-fix.sql
var insertFixSQL string

//go:embed sql/get-range.sql
var getRangeSQL string

//go:embed sql/latest-per-device.sql
var latestPerDeviceSQL string

//go:embed sql/export-since.sql
var exportSinceSQL string

// Timestamps are stored as fixed-width UTC strings so lexicographic order in
// SQL matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

type TrackerRepository interface {
	// Append stores one immutable fix. Fails with db.ErrUnavailable while
	// the store connection is down.
	Append(fix types.Fix) error
	// QueryRange returns fixes for one device within [since, until],
	// ascending by the device-reported timestamp. Device and ingest
	// timestamps may diverge under network delay, so insertion order is
	// never used for reads.
	QueryRange(deviceID string, since, until time.Time) ([]types.Fix, error)
	// LatestPerDevice returns the most recent fix of every device, newest
	// device first.
	LatestPerDevice() ([]types.Fix, error)
	// ExportSince returns all fixes ingested at or after cutoff, across all
	// devices, newest first by ingest timestamp.
	ExportSince(cutoff time.Time) ([]types.Fix, error)
}

type repositoryImpl struct {
	db *db.Handle
}

func NewRepository(h *db.Handle) TrackerRepository {
	return &repositoryImpl{db: h}
}

func (r *repositoryImpl) Append(fix types.Fix) error {
	_, err := r.db.Exec(insertFixSQL,
		fix.DeviceID,
		fix.Latitude,
		fix.Longitude,
		fix.DeviceTime.UTC().Format(timeLayout),
		fix.IngestTime.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert fix: %w", err)
	}
	return nil
}

func (r *repositoryImpl) QueryRange(deviceID string, since, until time.Time) ([]types.Fix, error) {
	rows, err := r.db.Query(getRangeSQL,
		deviceID,
		since.UTC().Format(timeLayout),
		until.UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows, "range")
	return scanFixes(rows)
}

func (r *repositoryImpl) LatestPerDevice() ([]types.Fix, error) {
	rows, err := r.db.Query(latestPerDeviceSQL)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows, "latest per device")
	return scanFixes(rows)
}

func (r *repositoryImpl) ExportSince(cutoff time.Time) ([]types.Fix, error) {
	rows, err := r.db.Query(exportSinceSQL, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return nil, err
	}
	defer closeRows(rows, "export")
	return scanFixes(rows)
}

func scanFixes(rows *sql.Rows) ([]types.Fix, error) {
	var out []types.Fix
	for rows.Next() {
		var fix types.Fix
		var deviceTS, ingestTS string
		if err := rows.Scan(&fix.DeviceID, &fix.Latitude, &fix.Longitude, &deviceTS, &ingestTS); err != nil {
			return nil, err
		}
		var err error
		fix.DeviceTime, err = parseTimestamp(deviceTS)
		if err != nil {
			return nil, err
		}
		fix.IngestTime, err = parseTimestamp(ingestTS)
		if err != nil {
			return nil, err
		}
		out = append(out, fix)
	}
	return out, rows.Err()
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		var err2 error
		t, err2 = time.Parse(time.RFC3339, s)
		if err2 != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: RFC3339Nano: %w; RFC3339: %w", s, err, err2)
		}
	}
	return t, nil
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Error("close rows", "query", what, "error", err)
	}
}
