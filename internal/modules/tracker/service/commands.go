package service

import (
	"encoding/json"
	"fmt"

	"tracker-server/internal/metrics"
	"tracker-server/internal/modules/tracker/types"
)

// Dispatch validates a viewer-issued command and publishes it on the shared
// control topic. Invalid commands are rejected without contacting the
// broker. A nil return means the broker accepted the message; there is no
// delivery confirmation from the device itself.
func (s *Service) Dispatch(cmd types.DeviceCommand) error {
	if err := cmd.Validate(); err != nil {
		metrics.Commands.WithLabelValues(metrics.ResultInvalid).Inc()
		s.logger.Warn("command rejected",
			"command", string(cmd.Kind),
			"target", cmd.TargetDeviceID,
			"reason", err,
		)
		return err
	}

	payload, err := json.Marshal(cmd.ControlMessage())
	if err != nil {
		metrics.Commands.WithLabelValues(metrics.ResultInvalid).Inc()
		return fmt.Errorf("encode control message: %w", err)
	}

	if err := s.control.PublishControl(payload); err != nil {
		metrics.Commands.WithLabelValues(metrics.ResultPublishFailed).Inc()
		s.logger.Error("control publish failed",
			"command", string(cmd.Kind),
			"target", cmd.TargetDeviceID,
			"error", err,
		)
		return fmt.Errorf("publish control: %w", err)
	}

	metrics.Commands.WithLabelValues(metrics.ResultPublished).Inc()
	s.logger.Info("control message published",
		"command", string(cmd.Kind),
		"target", cmd.TargetDeviceID,
	)
	return nil
}
