package rt

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Backend adds ray tracing to HAL adapters it knows how to drive.
//
// Backends register with RegisterBackend, typically from init:
//
//	func init() {
//	    rt.RegisterBackend(softBackend{})
//	}
type Backend interface {
	// Name returns the backend identifier (e.g., "soft").
	Name() string

	// Supports reports whether the backend can trace rays on adapter.
	Supports(adapter *hal.ExposedAdapter) bool

	// Open opens a ray-tracing device on adapter.
	Open(adapter *hal.ExposedAdapter) (Device, Queue, error)
}

var (
	backendsMu sync.RWMutex
	backends   []Backend
)

// RegisterBackend registers b. A backend registered under an existing name
// replaces it.
func RegisterBackend(b Backend) {
	if b == nil {
		return
	}
	backendsMu.Lock()
	defer backendsMu.Unlock()
	for i, existing := range backends {
		if existing.Name() == b.Name() {
			backends[i] = b
			return
		}
	}
	backends = append(backends, b)
}

// Backends returns the names of the registered backends in registration
// order.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, len(backends))
	for i, b := range backends {
		names[i] = b.Name()
	}
	return names
}

func lookupBackends(name string) ([]Backend, error) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	if name == "" {
		return append([]Backend(nil), backends...), nil
	}
	for _, b := range backends {
		if b.Name() == name {
			return []Backend{b}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrBackendNotFound, name)
}

// AdapterInfo describes a HAL adapter and whether ray tracing is available
// on it.
type AdapterInfo struct {
	Info gputypes.AdapterInfo
	// Backend is the name of the ray-tracing backend that supports the
	// adapter, or empty.
	Backend string
}

// Supported reports whether some backend can trace rays on the adapter.
func (a AdapterInfo) Supported() bool { return a.Backend != "" }

// Adapters enumerates adapters of every registered HAL backend.
func Adapters() ([]AdapterInfo, error) {
	rtBackends, err := lookupBackends("")
	if err != nil {
		return nil, err
	}
	var out []AdapterInfo
	for _, variant := range hal.AvailableBackends() {
		halBackend, ok := hal.GetBackend(variant)
		if !ok {
			continue
		}
		instance, err := halBackend.CreateInstance(&hal.InstanceDescriptor{})
		if err != nil {
			slogger().Warn("rt: instance creation failed", "backend", variant, "err", err)
			continue
		}
		for _, exposed := range instance.EnumerateAdapters(nil) {
			info := AdapterInfo{Info: exposed.Info}
			for _, b := range rtBackends {
				if b.Supports(&exposed) {
					info.Backend = b.Name()
					break
				}
			}
			out = append(out, info)
		}
		instance.Destroy()
	}
	return out, nil
}

// OpenedDevice is a ray-tracing device and the HAL instance that owns it.
type OpenedDevice struct {
	Device  Device
	Queue   Queue
	Adapter gputypes.AdapterInfo
	Backend string

	instance hal.Instance
}

// Close destroys the device and its instance.
func (d *OpenedDevice) Close() {
	if d.Device != nil {
		if err := d.Device.WaitIdle(); err != nil {
			slogger().Warn("rt: wait idle before close", "err", err)
		}
		d.Device.Destroy()
		d.Device = nil
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
}

// OpenDevice opens the first adapter a registered backend supports. An empty
// backend name tries all backends in registration order.
//
// It returns ErrUnsupportedCapability when adapters exist but none supports
// ray tracing.
func OpenDevice(backend string) (*OpenedDevice, error) {
	rtBackends, err := lookupBackends(backend)
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, variant := range hal.AvailableBackends() {
		halBackend, ok := hal.GetBackend(variant)
		if !ok {
			continue
		}
		instance, err := halBackend.CreateInstance(&hal.InstanceDescriptor{})
		if err != nil {
			errs = append(errs, fmt.Errorf("create %s instance: %w", variant, err))
			continue
		}
		adapters := instance.EnumerateAdapters(nil)
		for i := range adapters {
			exposed := &adapters[i]
			for _, b := range rtBackends {
				if !b.Supports(exposed) {
					continue
				}
				dev, queue, err := b.Open(exposed)
				if err != nil {
					errs = append(errs, fmt.Errorf("open %q with %s: %w", exposed.Info.Name, b.Name(), err))
					continue
				}
				slogger().Info("rt: device opened",
					"adapter", exposed.Info.Name,
					"backend", b.Name(),
					"handleSize", dev.Properties().ShaderGroupHandleSize)
				return &OpenedDevice{
					Device:   dev,
					Queue:    queue,
					Adapter:  exposed.Info,
					Backend:  b.Name(),
					instance: instance,
				}, nil
			}
			slogger().Debug("rt: adapter lacks ray tracing", "adapter", exposed.Info.Name)
		}
		instance.Destroy()
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedCapability, errors.Join(errs...))
	}
	return nil, ErrUnsupportedCapability
}
