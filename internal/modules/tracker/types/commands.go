package types

import "errors"

// CommandKind names the supported device control commands.
type CommandKind string

const (
	CommandSetInterval CommandKind = "set_interval"
	CommandLed         CommandKind = "led"
)

// MinReportIntervalMs is the shortest reporting interval a device accepts.
const MinReportIntervalMs = 1000

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrMissingTarget    = errors.New("target device id is required")
	ErrIntervalTooShort = errors.New("interval must be at least 1000 ms")
	ErrInvalidLedState  = errors.New(`led state must be "on" or "off"`)
)

// DeviceCommand is a viewer-issued instruction for a single device.
type DeviceCommand struct {
	Kind           CommandKind
	TargetDeviceID string

	// IntervalMs applies to CommandSetInterval.
	IntervalMs int
	// LedState applies to CommandLed: "on" or "off".
	LedState string
}

// Validate checks the command against the device contract. Invalid commands
// are never published upstream.
func (c DeviceCommand) Validate() error {
	if c.TargetDeviceID == "" {
		return ErrMissingTarget
	}
	switch c.Kind {
	case CommandSetInterval:
		if c.IntervalMs < MinReportIntervalMs {
			return ErrIntervalTooShort
		}
	case CommandLed:
		if c.LedState != "on" && c.LedState != "off" {
			return ErrInvalidLedState
		}
	default:
		return ErrUnknownCommand
	}
	return nil
}

// ControlMessage is the wire shape published on the shared control topic.
// Every device subscribes to the same topic and filters by Target locally.
type ControlMessage struct {
	Command  string `json:"command"`
	Interval int    `json:"interval,omitempty"`
	State    string `json:"state,omitempty"`
	Target   string `json:"target"`
}

// ControlMessage converts a validated command to its wire shape.
func (c DeviceCommand) ControlMessage() ControlMessage {
	msg := ControlMessage{Command: string(c.Kind), Target: c.TargetDeviceID}
	switch c.Kind {
	case CommandSetInterval:
		msg.Interval = c.IntervalMs
	case CommandLed:
		msg.State = c.LedState
	}
	return msg
}
