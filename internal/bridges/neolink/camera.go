package neolink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/apocaliss92/scrypted-neolink/internal/device"
	"github.com/apocaliss92/scrypted-neolink/internal/infrastructure/mqtt"
)

// Camera defaults.
const (
	DefaultMotionTimeout       = 20 * time.Second
	DefaultBatteryPollInterval = time.Hour
	DefaultSnapshotGrace       = 2 * time.Second
)

// ConnectionStatus is the camera link state reported by neolink.
type ConnectionStatus string

// ConnectionStatus values.
const (
	ConnectionUnknown      ConnectionStatus = "unknown"
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

// CameraState is a point-in-time view of a camera.
type CameraState struct {
	NativeID     string                  `json:"native_id"`
	Name         string                  `json:"name"`
	DisplayName  string                  `json:"display_name"`
	Connection   ConnectionStatus        `json:"connection"`
	Motion       bool                    `json:"motion"`
	BatteryLevel *float64                `json:"battery_level"`
	HasPreview   bool                    `json:"has_preview"`
	Presets      string                  `json:"presets,omitempty"`
	Abilities    []device.Ability        `json:"abilities"`
	PTZ          []PTZAxis               `json:"ptz,omitempty"`
	Switches     map[device.Ability]bool `json:"switches,omitempty"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

// CameraOptions configures a Camera.
type CameraOptions struct {
	NativeID    string
	Name        string
	DisplayName string
	Abilities   []device.Ability
	PTZ         []PTZAxis

	// Zero durations fall back to the package defaults.
	MotionTimeout       time.Duration
	BatteryPollInterval time.Duration
	SnapshotGrace       time.Duration

	Bus      Bus
	Logger   Logger
	Recorder Recorder
	Metrics  *Metrics

	// OnChange receives a snapshot after every state transition.
	OnChange func(CameraState)
}

// Camera adapts one neolink camera to MQTT: it tracks status, motion,
// battery and preview from neolink's status topics and publishes control
// commands.
//
// All methods are safe for concurrent use.
type Camera struct {
	nativeID    string
	name        string
	displayName string
	topics      mqtt.TopicSet
	abilities   device.AbilitySet
	ptz         []PTZAxis

	motionTimeout time.Duration
	pollInterval  time.Duration
	snapshotGrace time.Duration

	bus      Bus
	logger   Logger
	recorder Recorder
	metrics  *Metrics
	onChange func(CameraState)

	mu          sync.Mutex
	connection  ConnectionStatus
	motion      bool
	battery     *float64
	preview     string
	hasPreview  bool
	presets     string
	updatedAt   time.Time
	motionTimer *time.Timer
	motionGen   uint64
	pollCancel  context.CancelFunc
	pollDone    chan struct{}

	switches map[device.Ability]*Switch
}

// NewCamera validates opts and creates a stopped camera.
func NewCamera(opts CameraOptions) (*Camera, error) {
	if err := device.ValidateCameraName(opts.Name); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCamera, err)
	}
	if opts.NativeID == "" {
		return nil, fmt.Errorf("%w: native id is required", ErrInvalidCamera)
	}
	if opts.Bus == nil {
		return nil, fmt.Errorf("%w: bus is required", ErrInvalidCamera)
	}

	c := &Camera{
		nativeID:      opts.NativeID,
		name:          opts.Name,
		displayName:   opts.DisplayName,
		topics:        mqtt.TopicsFor(opts.Name),
		abilities:     device.NewAbilitySet(opts.Abilities...),
		ptz:           slices.Clone(opts.PTZ),
		motionTimeout: durationOr(opts.MotionTimeout, DefaultMotionTimeout),
		pollInterval:  durationOr(opts.BatteryPollInterval, DefaultBatteryPollInterval),
		snapshotGrace: durationOr(opts.SnapshotGrace, DefaultSnapshotGrace),
		bus:           opts.Bus,
		logger:        opts.Logger,
		recorder:      opts.Recorder,
		metrics:       opts.Metrics,
		onChange:      opts.OnChange,
		connection:    ConnectionUnknown,
		switches:      make(map[device.Ability]*Switch),
	}
	if c.displayName == "" {
		c.displayName = DisplayName(c.name)
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	if c.recorder == nil {
		c.recorder = noopRecorder{}
	}

	for _, a := range c.abilities.Sorted() {
		if a.IsSwitch() {
			c.switches[a] = newSwitch(c, a)
		}
	}
	return c, nil
}

func durationOr(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// NativeID returns the host device id.
func (c *Camera) NativeID() string { return c.nativeID }

// Name returns the neolink camera name.
func (c *Camera) Name() string { return c.name }

// Topics returns the camera's topic set.
func (c *Camera) Topics() mqtt.TopicSet { return c.topics }

// HasAbility reports whether a is enabled.
func (c *Camera) HasAbility(a device.Ability) bool { return c.abilities.Has(a) }

// RequiredCapabilities returns the host interfaces for this camera.
func (c *Camera) RequiredCapabilities() []device.Capability {
	return device.RequiredCapabilities(c.abilities.Sorted(), len(c.ptz) > 0)
}

type subscription struct {
	topic   string
	handler mqtt.MessageHandler
}

func (c *Camera) subscriptions() []subscription {
	subs := []subscription{
		{c.topics.ConnectionStatus, c.handleConnection},
		{c.topics.MotionStatus, c.handleMotion},
		{c.topics.PreviewStatus, c.handlePreview},
		{c.topics.PTZPresetStatus, c.handlePresets},
	}
	if c.abilities.Has(device.AbilityBattery) {
		subs = append(subs, subscription{c.topics.BatteryStatus, c.handleBattery})
	}
	return subs
}

// Start subscribes to the camera's status topics and, with the Battery
// ability, starts the battery poll. Calling Start again re-subscribes
// without duplicating handlers and restarts the poll.
//
// The poll keeps running when subscribing fails; the caller is expected
// to Resubscribe once the session reconnects.
func (c *Camera) Start(ctx context.Context) error {
	if c.abilities.Has(device.AbilityBattery) {
		c.startPoll()
	}
	if err := c.Resubscribe(ctx); err != nil {
		return err
	}
	c.logger.Info("camera started", "camera", c.name, "native_id", c.nativeID)
	return nil
}

// Resubscribe registers every status handler again. Used after the
// session replaces its transport.
func (c *Camera) Resubscribe(ctx context.Context) error {
	for _, sub := range c.subscriptions() {
		if err := c.bus.SubscribeOwned(ctx, c.nativeID, sub.topic, sub.handler); err != nil {
			return fmt.Errorf("subscribing %s: %w", sub.topic, err)
		}
	}
	return nil
}

// Stop unsubscribes the camera's topics and cancels its timers. It is
// idempotent.
func (c *Camera) Stop(ctx context.Context) error {
	c.stopPoll()

	c.mu.Lock()
	c.motionGen++
	if c.motionTimer != nil {
		c.motionTimer.Stop()
		c.motionTimer = nil
	}
	c.mu.Unlock()

	var errs []error
	for _, sub := range c.subscriptions() {
		if err := c.bus.UnsubscribeOwned(ctx, c.nativeID, sub.topic); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribing %s: %w", sub.topic, err))
		}
	}
	c.logger.Info("camera stopped", "camera", c.name)
	return errors.Join(errs...)
}

// State returns a snapshot of the camera.
func (c *Camera) State() CameraState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Camera) stateLocked() CameraState {
	s := CameraState{
		NativeID:    c.nativeID,
		Name:        c.name,
		DisplayName: c.displayName,
		Connection:  c.connection,
		Motion:      c.motion,
		HasPreview:  c.hasPreview,
		Presets:     c.presets,
		Abilities:   c.abilities.Sorted(),
		PTZ:         slices.Clone(c.ptz),
		UpdatedAt:   c.updatedAt,
	}
	if c.battery != nil {
		level := *c.battery
		s.BatteryLevel = &level
	}
	if len(c.switches) > 0 {
		s.Switches = make(map[device.Ability]bool, len(c.switches))
		for a, sw := range c.switches {
			s.Switches[a] = sw.On()
		}
	}
	return s
}

// changed stamps the state and hands a snapshot to OnChange. Must be
// called without c.mu held.
func (c *Camera) changed() {
	c.mu.Lock()
	c.updatedAt = time.Now().UTC()
	snapshot := c.stateLocked()
	c.mu.Unlock()

	if c.onChange != nil {
		c.onChange(snapshot)
	}
}

// =============================================================================
// Status handlers
// =============================================================================

func (c *Camera) handleConnection(_, payload string) {
	var status ConnectionStatus
	switch strings.TrimSpace(payload) {
	case "connected":
		status = ConnectionConnected
	case "disconnected":
		status = ConnectionDisconnected
	default:
		c.logger.Warn("unknown camera status", "camera", c.name, "payload", payload)
		return
	}

	c.mu.Lock()
	prev := c.connection
	c.connection = status
	c.mu.Unlock()

	if prev == status {
		return
	}
	connected := status == ConnectionConnected
	c.metrics.setConnected(c.name, connected)
	c.recorder.RecordConnection(c.name, connected)
	c.logger.Info("camera connection changed", "camera", c.name, "status", status)
	c.changed()
}

func (c *Camera) handleMotion(_, payload string) {
	var active bool
	switch strings.TrimSpace(payload) {
	case "on":
		active = true
	case "off":
	default:
		c.logger.Warn("unknown motion payload", "camera", c.name, "payload", payload)
		return
	}

	c.mu.Lock()
	c.motionGen++
	if c.motionTimer != nil {
		c.motionTimer.Stop()
		c.motionTimer = nil
	}
	if active {
		gen := c.motionGen
		c.motionTimer = time.AfterFunc(c.motionTimeout, func() { c.expireMotion(gen) })
	}
	prev := c.motion
	c.motion = active
	c.mu.Unlock()

	if prev != active {
		c.motionChanged(active)
	}
}

// expireMotion clears motion unless a later on/off superseded the timer
// that fired.
func (c *Camera) expireMotion(gen uint64) {
	c.mu.Lock()
	if gen != c.motionGen || !c.motion {
		c.mu.Unlock()
		return
	}
	c.motion = false
	c.motionTimer = nil
	c.mu.Unlock()

	c.logger.Debug("motion timed out", "camera", c.name)
	c.motionChanged(false)
}

func (c *Camera) motionChanged(active bool) {
	c.metrics.setMotion(c.name, active)
	c.recorder.RecordMotion(c.name, active)
	c.changed()
}

func (c *Camera) handleBattery(topic, payload string) {
	var level *float64
	if err := json.Unmarshal([]byte(payload), &level); err != nil {
		c.metrics.decodeError(c.name, topic)
		c.logger.Error("error decoding battery level", "camera", c.name, "payload", payload,
			"error", fmt.Errorf("%w: battery level: %w", ErrDecode, err))
		return
	}

	c.mu.Lock()
	c.battery = level
	c.mu.Unlock()

	c.metrics.setBattery(c.name, level)
	if level != nil {
		c.recorder.RecordBattery(c.name, *level)
	}
	c.changed()
}

func (c *Camera) handlePreview(_, payload string) {
	if strings.TrimSpace(payload) == "" {
		c.logger.Debug("ignoring empty preview", "camera", c.name)
		return
	}

	c.mu.Lock()
	first := !c.hasPreview
	c.preview = payload
	c.hasPreview = true
	c.mu.Unlock()

	if first {
		c.changed()
	}
}

func (c *Camera) handlePresets(_, payload string) {
	c.mu.Lock()
	same := c.presets == payload
	c.presets = payload
	c.mu.Unlock()

	if !same {
		c.changed()
	}
}

// =============================================================================
// Battery poll
// =============================================================================

func (c *Camera) startPoll() {
	c.stopPoll()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.pollCancel = cancel
	c.pollDone = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.pollBattery(ctx)
			}
		}
	}()
}

func (c *Camera) stopPoll() {
	c.mu.Lock()
	cancel, done := c.pollCancel, c.pollDone
	c.pollCancel, c.pollDone = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// pollBattery asks neolink for a fresh battery level and preview. Battery
// cameras sleep, so their preview is only refreshed here.
func (c *Camera) pollBattery(ctx context.Context) {
	for _, topic := range []string{c.topics.BatteryQuery, c.topics.PreviewQuery} {
		if err := c.bus.Publish(ctx, topic, "", false); err != nil {
			c.logger.Warn("battery poll publish failed", "camera", c.name, "topic", topic, "error", err)
		}
	}
}

// Switch returns the on/off sub-adapter for an enabled switch ability.
func (c *Camera) Switch(a device.Ability) (*Switch, error) {
	sw, ok := c.switches[a]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrAbilityDisabled, a, c.name)
	}
	return sw, nil
}

// Switches returns the camera's sub-adapters in ability order.
func (c *Camera) Switches() []*Switch {
	out := make([]*Switch, 0, len(c.switches))
	for _, a := range slices.Sorted(maps.Keys(c.switches)) {
		out = append(out, c.switches[a])
	}
	return out
}
