package service

import (
	"encoding/json"
	"log/slog"
	"time"

	"tracker-server/internal/metrics"
	"tracker-server/internal/modules/tracker/repository"
	"tracker-server/internal/modules/tracker/types"
)

// Broadcaster pushes a stored fix to all connected viewer sessions.
// Implementations must never block the caller.
type Broadcaster interface {
	Broadcast(fix types.Fix)
}

// ControlPublisher hands a control payload to the broker. A nil error means
// the broker accepted the message, not that any device received it.
type ControlPublisher interface {
	PublishControl(payload []byte) error
}

// Service owns the ingestion pipeline, the history query engine, and the
// command dispatcher.
type Service struct {
	repo    repository.TrackerRepository
	bus     Broadcaster
	control ControlPublisher
	logger  *slog.Logger

	now func() time.Time
}

func NewService(repo repository.TrackerRepository, bus Broadcaster, control ControlPublisher, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		bus:     bus,
		control: control,
		logger:  logger,
		now:     time.Now,
	}
}

// HandleMessage runs one inbound broker payload through the pipeline:
// parse, validate, persist, broadcast. Failures are isolated per message;
// the device resends on its own cadence, so nothing is retried here.
//
// A fix is only ever broadcast after it has been persisted, so the live
// stream is always a subset of what a later history query returns.
func (s *Service) HandleMessage(payload []byte) {
	var raw types.RawFix
	if err := json.Unmarshal(payload, &raw); err != nil {
		metrics.IngestMessages.WithLabelValues(metrics.ResultParseError).Inc()
		s.logger.Warn("invalid telemetry payload ignored", "error", err, "payload", string(payload))
		return
	}

	fix, err := types.Validate(raw, s.now())
	if err != nil {
		metrics.IngestMessages.WithLabelValues(metrics.ResultRejected).Inc()
		s.logger.Warn("telemetry rejected", "device_id", raw.DeviceID, "reason", err)
		return
	}

	if err := s.repo.Append(fix); err != nil {
		metrics.IngestMessages.WithLabelValues(metrics.ResultStoreFailed).Inc()
		s.logger.Error("failed to store fix", "device_id", fix.DeviceID, "error", err)
		return
	}

	metrics.IngestMessages.WithLabelValues(metrics.ResultStored).Inc()
	s.bus.Broadcast(fix)

	s.logger.Debug("fix ingested",
		"device_id", fix.DeviceID,
		"latitude", fix.Latitude,
		"longitude", fix.Longitude,
		"device_time", fix.DeviceTime,
	)
}

// LatestDevices returns the most recent fix of every device.
func (s *Service) LatestDevices() ([]types.Fix, error) {
	return s.repo.LatestPerDevice()
}

// ExportLast24h returns every fix ingested in the last 24 hours, all
// devices, newest first.
func (s *Service) ExportLast24h() ([]types.Fix, error) {
	return s.repo.ExportSince(s.now().Add(-24 * time.Hour))
}
