package device

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the host device registry: a write-through cache over a
// Repository. Returned devices are deep copies.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Device
	cacheMu sync.RWMutex
	logger  Logger

	listenersMu sync.Mutex
	listeners   map[int]func([]Device)
	nextID      int
}

// NewRegistry creates a registry over repo. Call RefreshCache on startup.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:      repo,
		cache:     make(map[string]*Device),
		logger:    noopLogger{},
		listeners: make(map[int]func([]Device)),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads every device from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		r.cache[devices[i].ID] = devices[i].DeepCopy()
	}
	r.cacheMu.Unlock()

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// RegisterOrUpdateDevice validates and persists a device, keeping the
// original creation time when it already exists.
func (r *Registry) RegisterOrUpdateDevice(ctx context.Context, d *Device) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.ParentID != nil {
		if _, err := r.GetDevice(ctx, *d.ParentID); err != nil {
			return fmt.Errorf("parent %s: %w", *d.ParentID, err)
		}
	}

	r.cacheMu.RLock()
	if existing, ok := r.cache[d.ID]; ok && d.CreatedAt.IsZero() {
		d.CreatedAt = existing.CreatedAt
	}
	r.cacheMu.RUnlock()

	if err := r.repo.Upsert(ctx, d); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[d.ID] = d.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device registered", "id", d.ID, "name", d.Name, "type", d.Type)
	r.notify()
	return nil
}

// GetDevice retrieves a device by native id.
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	d, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = d.DeepCopy()
	r.cacheMu.Unlock()
	return d, nil
}

// ListDevices returns every cached device, sorted by camera name with each
// camera ahead of its sub-devices.
func (r *Registry) ListDevices(_ context.Context) []Device {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return r.snapshotLocked(func(*Device) bool { return true })
}

// ListCameras returns the top-level camera devices.
func (r *Registry) ListCameras(_ context.Context) []Device {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return r.snapshotLocked((*Device).IsCamera)
}

// ListChildren returns the sub-devices of a camera.
func (r *Registry) ListChildren(_ context.Context, parentID string) []Device {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return r.snapshotLocked(func(d *Device) bool {
		return d.ParentID != nil && *d.ParentID == parentID
	})
}

// RemoveDevice deletes a device. Removing a camera also drops its
// sub-devices.
func (r *Registry) RemoveDevice(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	for childID, d := range r.cache {
		if d.ParentID != nil && *d.ParentID == id {
			delete(r.cache, childID)
		}
	}
	r.cacheMu.Unlock()

	r.logger.Info("device removed", "id", id)
	r.notify()
	return nil
}

// OnDevicesChanged registers fn to receive the full device list after every
// mutation. The returned function unregisters it.
func (r *Registry) OnDevicesChanged(fn func([]Device)) (cancel func()) {
	r.listenersMu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	r.listenersMu.Unlock()

	return func() {
		r.listenersMu.Lock()
		delete(r.listeners, id)
		r.listenersMu.Unlock()
	}
}

func (r *Registry) notify() {
	r.listenersMu.Lock()
	fns := make([]func([]Device), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	r.listenersMu.Unlock()

	if len(fns) == 0 {
		return
	}
	devices := r.ListDevices(context.Background())
	for _, fn := range fns {
		fn(slices.Clone(devices))
	}
}

func (r *Registry) snapshotLocked(keep func(*Device) bool) []Device {
	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		if keep(d) {
			devices = append(devices, *d.DeepCopy())
		}
	}
	slices.SortFunc(devices, func(a, b Device) int {
		return cmp.Or(
			cmp.Compare(a.CameraName, b.CameraName),
			compareBool(a.ParentID != nil, b.ParentID != nil),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return devices
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}
