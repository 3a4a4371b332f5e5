package service

import (
	"errors"
	"fmt"
	"time"

	"tracker-server/internal/modules/tracker/types"
)

// ErrInvalidParameter marks a caller error in a history query. The store is
// never touched when parameters are rejected.
var ErrInvalidParameter = errors.New("invalid parameter")

const (
	MinIntervalSec = 1
	MaxIntervalSec = 86400
	MinWindowHours = 1
	MaxWindowHours = 168
)

// History returns the trace of one device over the last windowHours,
// thinned so consecutive points are at least intervalSec apart.
func (s *Service) History(deviceID string, intervalSec, windowHours int) ([]types.Fix, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", ErrInvalidParameter)
	}
	if intervalSec < MinIntervalSec || intervalSec > MaxIntervalSec {
		return nil, fmt.Errorf("%w: interval must be %d-%d seconds", ErrInvalidParameter, MinIntervalSec, MaxIntervalSec)
	}
	if windowHours < MinWindowHours || windowHours > MaxWindowHours {
		return nil, fmt.Errorf("%w: hours must be %d-%d", ErrInvalidParameter, MinWindowHours, MaxWindowHours)
	}

	now := s.now()
	fixes, err := s.repo.QueryRange(deviceID, now.Add(-time.Duration(windowHours)*time.Hour), now)
	if err != nil {
		return nil, err
	}
	return thin(fixes, intervalSec), nil
}

// thin keeps the earliest fix of every interval bucket: the first fix is
// always emitted, and each later fix only when its timestamp (truncated to
// whole seconds) is at least intervalSec after the last emitted one. The
// input must already be ascending by device time. Single pass, no
// interpolation: the earliest point per bucket is kept rather than
// resampling onto a fixed grid.
func thin(fixes []types.Fix, intervalSec int) []types.Fix {
	var out []types.Fix
	var lastEmitted int64
	for _, f := range fixes {
		sec := f.DeviceTime.Unix()
		if len(out) == 0 || sec-lastEmitted >= int64(intervalSec) {
			out = append(out, f)
			lastEmitted = sec
		}
	}
	return out
}
