package neolink

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/apocaliss92/scrypted-neolink/internal/device"
	"github.com/apocaliss92/scrypted-neolink/internal/infrastructure/config"
)

// DefaultReconnectInterval is how often an idle, disconnected session is
// redialled.
const DefaultReconnectInterval = 30 * time.Second

// resubscribeTimeout bounds re-subscribing every camera after a reconnect.
const resubscribeTimeout = 30 * time.Second

// Camera-level setting names, scoped with device.CameraSettingKey.
const (
	settingPTZ           = "ptz"
	settingMotionTimeout = "motion_timeout"
)

// DeviceRegistry is the host device-registry API. *device.Registry
// satisfies it.
type DeviceRegistry interface {
	RegisterOrUpdateDevice(ctx context.Context, d *device.Device) error
	GetDevice(ctx context.Context, id string) (*device.Device, error)
	ListCameras(ctx context.Context) []device.Device
	ListChildren(ctx context.Context, parentID string) []device.Device
	RemoveDevice(ctx context.Context, id string) error
}

// Settings is the host settings-storage API. *device.SettingsStore
// satisfies it.
type Settings interface {
	GetOr(ctx context.Context, key, def string) string
	Put(ctx context.Context, key, value string) error
}

// CameraDefaults apply to cameras without their own timings.
type CameraDefaults struct {
	MotionTimeout       time.Duration
	BatteryPollInterval time.Duration
	SnapshotGrace       time.Duration
}

// ProviderOptions configures a Provider.
type ProviderOptions struct {
	Session  Session
	Registry DeviceRegistry
	Settings Settings
	Recorder Recorder
	Metrics  *Metrics
	Logger   Logger
	Defaults CameraDefaults

	// ProviderID is stamped on every registered device.
	ProviderID string

	// ReconnectInterval defaults to DefaultReconnectInterval.
	ReconnectInterval time.Duration
}

// cameraEntry is everything needed to build a Camera.
type cameraEntry struct {
	nativeID      string
	name          string
	abilities     []device.Ability
	ptz           []PTZAxis
	motionTimeout time.Duration
	pollInterval  time.Duration
}

// Provider owns the shared MQTT session and the set of cameras behind it.
// It keeps the host device registry in step with the cameras and fans
// camera state out to subscribers.
type Provider struct {
	session           Session
	registry          DeviceRegistry
	settings          Settings
	recorder          Recorder
	metrics           *Metrics
	logger            Logger
	defaults          CameraDefaults
	providerID        string
	reconnectInterval time.Duration

	// opMu serialises create, update and remove.
	opMu sync.Mutex

	mu      sync.RWMutex
	cameras map[string]*Camera
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	subsMu      sync.Mutex
	subscribers map[uint64]func(CameraState)
	nextSubID   uint64
}

// NewProvider creates a Provider. Session, Registry and Settings are
// required.
func NewProvider(opts ProviderOptions) (*Provider, error) {
	if opts.Session == nil || opts.Registry == nil || opts.Settings == nil {
		return nil, errors.New("neolink: session, registry and settings are required")
	}

	p := &Provider{
		session:           opts.Session,
		registry:          opts.Registry,
		settings:          opts.Settings,
		recorder:          opts.Recorder,
		metrics:           opts.Metrics,
		logger:            opts.Logger,
		defaults:          opts.Defaults,
		providerID:        opts.ProviderID,
		reconnectInterval: durationOr(opts.ReconnectInterval, DefaultReconnectInterval),
		cameras:           make(map[string]*Camera),
		subscribers:       make(map[uint64]func(CameraState)),
	}
	if p.logger == nil {
		p.logger = noopLogger{}
	}
	if p.recorder == nil {
		p.recorder = noopRecorder{}
	}
	return p, nil
}

// Start loads persisted cameras, merges the configured ones and starts
// them all. Configured values win over persisted ones.
//
// A broker that is unreachable at startup is not an error: cameras
// re-subscribe when the session connects.
func (p *Provider) Start(ctx context.Context, configured []config.CameraConfig) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errors.New("neolink: provider already started")
	}
	p.started = true
	p.mu.Unlock()

	entries, err := p.loadEntries(ctx, configured)
	if err != nil {
		return err
	}

	p.session.SetOnConnect(p.resubscribeAll)

	p.opMu.Lock()
	for _, entry := range entries {
		if _, err := p.addCamera(ctx, entry); err != nil {
			p.opMu.Unlock()
			return fmt.Errorf("starting camera %s: %w", entry.name, err)
		}
	}
	p.opMu.Unlock()

	watchCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.mu.Lock()
	p.cancel, p.done = cancel, done
	p.mu.Unlock()
	go p.watchConnection(watchCtx, done)

	p.logger.Info("neolink provider started", "cameras", len(entries))
	return nil
}

func (p *Provider) loadEntries(ctx context.Context, configured []config.CameraConfig) ([]cameraEntry, error) {
	byName := make(map[string]cameraEntry)

	for _, d := range p.registry.ListCameras(ctx) {
		entry := cameraEntry{
			nativeID:  d.ID,
			name:      d.CameraName,
			abilities: slices.Clone(d.Abilities),
		}
		if raw := p.settings.GetOr(ctx, device.CameraSettingKey(d.ID, settingPTZ), ""); raw != "" {
			axes, err := ParsePTZAxes(strings.Split(raw, ","))
			if err != nil {
				p.logger.Warn("ignoring stored ptz axes", "camera", d.CameraName, "error", err)
			}
			entry.ptz = axes
		}
		if raw := p.settings.GetOr(ctx, device.CameraSettingKey(d.ID, settingMotionTimeout), ""); raw != "" {
			timeout, err := time.ParseDuration(raw)
			if err != nil {
				p.logger.Warn("ignoring stored motion timeout", "camera", d.CameraName, "error", err)
			}
			entry.motionTimeout = timeout
		}
		byName[entry.name] = entry
	}

	for _, cc := range configured {
		abilities, err := device.ParseAbilities(cc.Abilities)
		if err != nil {
			return nil, fmt.Errorf("camera %s: %w", cc.Name, err)
		}
		axes, err := ParsePTZAxes(cc.PTZ)
		if err != nil {
			return nil, fmt.Errorf("camera %s: %w", cc.Name, err)
		}

		entry, ok := byName[cc.Name]
		if !ok {
			entry = cameraEntry{nativeID: device.GenerateID(), name: cc.Name}
		}
		entry.abilities = abilities
		entry.ptz = axes
		entry.motionTimeout = cc.MotionTimeout
		entry.pollInterval = cc.BatteryPollInterval
		byName[cc.Name] = entry
	}

	entries := make([]cameraEntry, 0, len(byName))
	for _, entry := range byName {
		entries = append(entries, entry)
	}
	slices.SortFunc(entries, func(a, b cameraEntry) int { return cmp.Compare(a.name, b.name) })
	return entries, nil
}

// addCamera builds, registers and starts a camera. Must be called with
// opMu held.
func (p *Provider) addCamera(ctx context.Context, entry cameraEntry) (*Camera, error) {
	cam, err := NewCamera(CameraOptions{
		NativeID:            entry.nativeID,
		Name:                entry.name,
		DisplayName:         DisplayName(entry.name),
		Abilities:           entry.abilities,
		PTZ:                 entry.ptz,
		MotionTimeout:       cmp.Or(entry.motionTimeout, p.defaults.MotionTimeout),
		BatteryPollInterval: cmp.Or(entry.pollInterval, p.defaults.BatteryPollInterval),
		SnapshotGrace:       p.defaults.SnapshotGrace,
		Bus:                 p.session,
		Logger:              p.logger,
		Recorder:            p.recorder,
		Metrics:             p.metrics,
		OnChange:            p.broadcast,
	})
	if err != nil {
		return nil, err
	}

	if err := p.registerDevices(ctx, cam); err != nil {
		return nil, err
	}
	if err := p.saveCameraSettings(ctx, entry); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cameras[cam.NativeID()] = cam
	p.mu.Unlock()

	if err := cam.Start(ctx); err != nil {
		p.logger.Warn("camera subscriptions deferred until the broker is reachable",
			"camera", cam.Name(), "error", err)
	}
	return cam, nil
}

func (p *Provider) saveCameraSettings(ctx context.Context, entry cameraEntry) error {
	axes := make([]string, len(entry.ptz))
	for i, a := range entry.ptz {
		axes[i] = string(a)
	}
	timeout := ""
	if entry.motionTimeout > 0 {
		timeout = entry.motionTimeout.String()
	}

	if err := p.settings.Put(ctx, device.CameraSettingKey(entry.nativeID, settingPTZ), strings.Join(axes, ",")); err != nil {
		return fmt.Errorf("saving ptz axes: %w", err)
	}
	if err := p.settings.Put(ctx, device.CameraSettingKey(entry.nativeID, settingMotionTimeout), timeout); err != nil {
		return fmt.Errorf("saving motion timeout: %w", err)
	}
	return nil
}

// registerDevices registers the camera and its sub-devices, and removes
// sub-devices for abilities the camera no longer has.
func (p *Provider) registerDevices(ctx context.Context, cam *Camera) error {
	displayName := DisplayName(cam.Name())
	camDevice := &device.Device{
		ID:           cam.NativeID(),
		ProviderID:   p.providerID,
		Name:         displayName,
		CameraName:   cam.Name(),
		Type:         device.TypeCamera,
		Capabilities: cam.RequiredCapabilities(),
		Abilities:    cam.State().Abilities,
		Info: device.Info{
			"manufacturer": "Reolink",
			"topic_prefix": cam.Topics().ConnectionStatus,
		},
	}
	if err := p.registry.RegisterOrUpdateDevice(ctx, camDevice); err != nil {
		return fmt.Errorf("registering camera device: %w", err)
	}

	keep := make(map[string]bool)
	parent := cam.NativeID()
	for _, sw := range cam.Switches() {
		keep[sw.NativeID()] = true
		sub := &device.Device{
			ID:           sw.NativeID(),
			ProviderID:   p.providerID,
			Name:         displayName + " " + abilityLabel(sw.Ability()),
			CameraName:   cam.Name(),
			Type:         sw.Ability().DeviceType(),
			Capabilities: []device.Capability{device.CapOnOff},
			ParentID:     &parent,
		}
		if err := p.registry.RegisterOrUpdateDevice(ctx, sub); err != nil {
			return fmt.Errorf("registering %s: %w", sw.NativeID(), err)
		}
	}

	for _, child := range p.registry.ListChildren(ctx, parent) {
		if keep[child.ID] {
			continue
		}
		if err := p.registry.RemoveDevice(ctx, child.ID); err != nil {
			return fmt.Errorf("removing stale sub-device %s: %w", child.ID, err)
		}
	}
	return nil
}

func abilityLabel(a device.Ability) string {
	switch a {
	case device.AbilitySiren:
		return "Siren"
	case device.AbilityFloodlight:
		return "Floodlight"
	case device.AbilityFloodlightTasks:
		return "Floodlight Tasks"
	case device.AbilityPIR:
		return "PIR"
	}
	return string(a)
}

var wordPattern = regexp.MustCompile(`[A-Z][a-z]+`)

// DisplayName splits a CamelCase camera name into words:
// "FrontDoor" becomes "Front Door". Names without a capitalised word are
// returned unchanged.
func DisplayName(name string) string {
	words := wordPattern.FindAllString(name, -1)
	if len(words) == 0 {
		return name
	}
	return strings.Join(words, " ")
}

// =============================================================================
// Camera management
// =============================================================================

// CreateCamera adds a camera by its neolink name.
func (p *Provider) CreateCamera(ctx context.Context, name string, abilities []device.Ability) (*Camera, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: camera name is required", ErrInvalidCamera)
	}
	if err := device.ValidateCameraName(name); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCamera, err)
	}
	if p.settings.GetOr(ctx, device.SettingServerIP, "") == "" {
		return nil, ErrServerNotConfigured
	}

	p.opMu.Lock()
	defer p.opMu.Unlock()

	if _, err := p.CameraByName(name); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrCameraExists, name)
	}

	cam, err := p.addCamera(ctx, cameraEntry{
		nativeID:  device.GenerateID(),
		name:      name,
		abilities: abilities,
	})
	if err != nil {
		return nil, err
	}
	p.logger.Info("camera created", "camera", name, "native_id", cam.NativeID())
	p.broadcast(cam.State())
	return cam, nil
}

// UpdateAbilities replaces a camera's abilities, re-registers its devices
// and restarts it.
func (p *Provider) UpdateAbilities(ctx context.Context, nativeID string, abilities []device.Ability) (*Camera, error) {
	return p.reconfigure(ctx, nativeID, func(entry *cameraEntry) { entry.abilities = abilities })
}

// UpdatePTZ replaces a camera's PTZ axes and restarts it.
func (p *Provider) UpdatePTZ(ctx context.Context, nativeID string, axes []PTZAxis) (*Camera, error) {
	return p.reconfigure(ctx, nativeID, func(entry *cameraEntry) { entry.ptz = axes })
}

func (p *Provider) reconfigure(ctx context.Context, nativeID string, apply func(*cameraEntry)) (*Camera, error) {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	old, err := p.Camera(nativeID)
	if err != nil {
		return nil, err
	}

	entry := cameraEntry{
		nativeID:      old.nativeID,
		name:          old.name,
		abilities:     old.abilities.Sorted(),
		ptz:           slices.Clone(old.ptz),
		motionTimeout: old.motionTimeout,
		pollInterval:  old.pollInterval,
	}
	apply(&entry)

	if err := old.Stop(ctx); err != nil {
		p.logger.Warn("error stopping camera", "camera", old.name, "error", err)
	}

	cam, err := p.addCamera(ctx, entry)
	if err != nil {
		p.mu.Lock()
		delete(p.cameras, nativeID)
		p.mu.Unlock()
		return nil, err
	}
	p.logger.Info("camera reconfigured", "camera", cam.Name(), "abilities", cam.State().Abilities)
	p.broadcast(cam.State())
	return cam, nil
}

// RemoveCamera stops a camera and deletes it with its sub-devices.
func (p *Provider) RemoveCamera(ctx context.Context, nativeID string) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	cam, err := p.Camera(nativeID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	delete(p.cameras, nativeID)
	p.mu.Unlock()

	var errs []error
	if err := cam.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := p.registry.RemoveDevice(ctx, nativeID); err != nil && !errors.Is(err, device.ErrDeviceNotFound) {
		errs = append(errs, fmt.Errorf("removing device: %w", err))
	}
	for _, key := range []string{settingPTZ, settingMotionTimeout} {
		if err := p.settings.Put(ctx, device.CameraSettingKey(nativeID, key), ""); err != nil {
			errs = append(errs, err)
		}
	}
	p.metrics.forget(cam.Name())

	p.logger.Info("camera removed", "camera", cam.Name(), "native_id", nativeID)
	return errors.Join(errs...)
}

// Camera returns the camera with the given native id.
func (p *Provider) Camera(nativeID string) (*Camera, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cam, ok := p.cameras[nativeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCameraNotFound, nativeID)
	}
	return cam, nil
}

// CameraByName returns the camera with the given neolink name.
func (p *Provider) CameraByName(name string) (*Camera, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, cam := range p.cameras {
		if cam.name == name {
			return cam, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCameraNotFound, name)
}

// Cameras returns every camera sorted by name.
func (p *Provider) Cameras() []*Camera {
	p.mu.RLock()
	cams := make([]*Camera, 0, len(p.cameras))
	for _, cam := range p.cameras {
		cams = append(cams, cam)
	}
	p.mu.RUnlock()

	slices.SortFunc(cams, func(a, b *Camera) int { return cmp.Compare(a.name, b.name) })
	return cams
}

// StreamURLs returns the RTSP streams neolink serves for a camera.
func (p *Provider) StreamURLs(ctx context.Context, nativeID string) ([]Stream, error) {
	cam, err := p.Camera(nativeID)
	if err != nil {
		return nil, err
	}
	host := p.settings.GetOr(ctx, device.SettingServerIP, "")
	if host == "" {
		return nil, ErrServerNotConfigured
	}
	return StreamURLs(StreamEndpoint{
		Host:     host,
		Port:     p.settings.GetOr(ctx, device.SettingServerPort, device.DefaultServerPort),
		Username: p.settings.GetOr(ctx, device.SettingRTSPUsername, ""),
		Password: p.settings.GetOr(ctx, device.SettingRTSPPassword, ""),
	}, cam.Name()), nil
}

// =============================================================================
// State fan-out
// =============================================================================

// Subscribe registers fn for every camera state change. fn runs on the
// goroutine that observed the change and must not block.
func (p *Provider) Subscribe(fn func(CameraState)) (cancel func()) {
	p.subsMu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.subscribers[id] = fn
	p.subsMu.Unlock()

	return func() {
		p.subsMu.Lock()
		delete(p.subscribers, id)
		p.subsMu.Unlock()
	}
}

func (p *Provider) broadcast(state CameraState) {
	p.subsMu.Lock()
	fns := make([]func(CameraState), 0, len(p.subscribers))
	for _, fn := range p.subscribers {
		fns = append(fns, fn)
	}
	p.subsMu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

// =============================================================================
// Session lifecycle
// =============================================================================

// resubscribeAll runs after the session establishes a new transport.
func (p *Provider) resubscribeAll() {
	ctx, cancel := context.WithTimeout(context.Background(), resubscribeTimeout)
	defer cancel()

	for _, cam := range p.Cameras() {
		if err := cam.Resubscribe(ctx); err != nil {
			p.logger.Error("error re-subscribing camera", "camera", cam.Name(), "error", err)
		}
	}
	p.logger.Info("cameras re-subscribed after reconnect")
}

// watchConnection redials the session while it is down. Without it a
// camera that only listens would never trigger a reconnect.
func (p *Provider) watchConnection(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.reconnectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.session.IsConnected() {
				continue
			}
			if err := p.session.Connect(ctx, false); err != nil && ctx.Err() == nil {
				p.logger.Warn("mqtt reconnect failed", "error", err)
			}
		}
	}
}

// Stop stops every camera and disconnects the session.
func (p *Provider) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.started = false
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	var errs []error
	for _, cam := range p.Cameras() {
		if err := cam.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping %s: %w", cam.Name(), err))
		}
	}
	p.session.SetOnConnect(nil)
	p.session.Disconnect()

	p.logger.Info("neolink provider stopped")
	return errors.Join(errs...)
}
