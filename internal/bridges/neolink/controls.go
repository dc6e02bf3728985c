package neolink

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// ptzSpeed is the speed neolink is asked to move at.
const ptzSpeed = "15.0"

// PTZAxis is one controllable PTZ axis.
type PTZAxis string

// PTZAxis values.
const (
	AxisPan  PTZAxis = "pan"
	AxisTilt PTZAxis = "tilt"
	AxisZoom PTZAxis = "zoom"
)

// ParsePTZAxes parses axis names case-insensitively, dropping duplicates.
// The result is sorted.
func ParsePTZAxes(names []string) ([]PTZAxis, error) {
	axes := make([]PTZAxis, 0, len(names))
	for _, n := range names {
		axis := PTZAxis(strings.ToLower(strings.TrimSpace(n)))
		switch axis {
		case AxisPan, AxisTilt, AxisZoom:
			axes = append(axes, axis)
		default:
			return nil, fmt.Errorf("%w: unknown ptz axis %q", ErrInvalidCommand, n)
		}
	}
	slices.Sort(axes)
	return slices.Compact(axes), nil
}

// PTZCommand is a relative PTZ movement. Only the sign of each axis is used.
type PTZCommand struct {
	Pan  float64 `json:"pan"`
	Tilt float64 `json:"tilt"`
	Zoom float64 `json:"zoom"`
}

// PTZToken returns the neolink direction for cmd. The first non-zero axis
// wins in the order pan, tilt, zoom. ok is false when every axis is zero.
func PTZToken(cmd PTZCommand) (token string, ok bool) {
	switch {
	case cmd.Pan < 0:
		return "left", true
	case cmd.Pan > 0:
		return "right", true
	case cmd.Tilt < 0:
		return "down", true
	case cmd.Tilt > 0:
		return "up", true
	case cmd.Zoom < 0:
		return "out", true
	case cmd.Zoom > 0:
		return "in", true
	}
	return "", false
}

// PTZ moves the camera one step. A command with every axis at zero
// publishes nothing.
func (c *Camera) PTZ(ctx context.Context, cmd PTZCommand) error {
	token, ok := PTZToken(cmd)
	if !ok {
		return nil
	}
	c.logger.Debug("ptz command", "camera", c.name, "direction", token)
	return c.bus.Publish(ctx, c.topics.PTZControl, token+" "+ptzSpeed, false)
}

// GotoPreset moves the camera to a stored preset.
func (c *Camera) GotoPreset(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: preset id is required", ErrInvalidCommand)
	}
	return c.bus.Publish(ctx, c.topics.PresetControl, id, false)
}

// RefreshPresets asks neolink to republish the preset list.
func (c *Camera) RefreshPresets(ctx context.Context) error {
	return c.bus.Publish(ctx, c.topics.PTZPresetQuery, "", false)
}

// Reboot restarts the camera.
func (c *Camera) Reboot(ctx context.Context) error {
	c.logger.Info("rebooting camera", "camera", c.name)
	return c.bus.Publish(ctx, c.topics.RebootControl, "", false)
}

// SetLED turns the status LED on or off.
func (c *Camera) SetLED(ctx context.Context, on bool) error {
	return c.bus.Publish(ctx, c.topics.LEDControl, onOff(on), false)
}

// IR modes accepted by SetIR.
const (
	IROn   = "on"
	IROff  = "off"
	IRAuto = "auto"
)

// SetIR sets the infrared lights to on, off or auto.
func (c *Camera) SetIR(ctx context.Context, mode string) error {
	mode = strings.ToLower(strings.TrimSpace(mode))
	switch mode {
	case IROn, IROff, IRAuto:
	default:
		return fmt.Errorf("%w: ir mode %q", ErrInvalidCommand, mode)
	}
	return c.bus.Publish(ctx, c.topics.IRControl, mode, false)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
