package neolink

import (
	"context"
	"sync"

	"github.com/apocaliss92/scrypted-neolink/internal/device"
)

// Switch drives one on/off ability of a camera: siren, floodlight,
// floodlight tasks or PIR. Commands are published retained so neolink
// picks up the last state when it reconnects.
type Switch struct {
	camera  *Camera
	ability device.Ability
	topic   string

	mu sync.Mutex
	on bool
}

func newSwitch(c *Camera, a device.Ability) *Switch {
	return &Switch{camera: c, ability: a, topic: switchTopic(c, a)}
}

func switchTopic(c *Camera, a device.Ability) string {
	switch a {
	case device.AbilitySiren:
		return c.topics.SirenControl
	case device.AbilityFloodlight:
		return c.topics.FloodlightControl
	case device.AbilityFloodlightTasks:
		return c.topics.FloodlightTasksControl
	case device.AbilityPIR:
		return c.topics.PIRControl
	}
	return ""
}

// NativeID returns the sub-device id, e.g. "<camera id>-siren".
func (s *Switch) NativeID() string { return s.camera.nativeID + s.ability.NativeIDSuffix() }

// Ability returns the switched ability.
func (s *Switch) Ability() device.Ability { return s.ability }

// Topic returns the control topic.
func (s *Switch) Topic() string { return s.topic }

// On reports the last commanded state.
func (s *Switch) On() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.on
}

// TurnOn switches the ability on.
func (s *Switch) TurnOn(ctx context.Context) error { return s.set(ctx, true) }

// TurnOff switches the ability off.
func (s *Switch) TurnOff(ctx context.Context) error { return s.set(ctx, false) }

func (s *Switch) set(ctx context.Context, on bool) error {
	s.mu.Lock()
	prev := s.on
	s.on = on
	s.mu.Unlock()

	if err := s.camera.bus.Publish(ctx, s.topic, onOff(on), true); err != nil {
		s.mu.Lock()
		if s.on == on {
			s.on = prev
		}
		s.mu.Unlock()
		return err
	}
	changed := prev != on
	if changed {
		s.camera.logger.Info("switch changed", "camera", s.camera.name, "ability", s.ability, "on", on)
		s.camera.changed()
	}
	return nil
}
