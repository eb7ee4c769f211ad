package soft

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/pathtrace/rt"
	"github.com/gogpu/wgpu/hal"
)

// BackendName is the name the backend registers with rt.
const BackendName = "soft"

var (
	backendOptsMu sync.Mutex
	backendOpts   []Option
)

func init() {
	rt.RegisterBackend(backend{})
}

// SetBackendOptions sets the options devices opened through rt.OpenDevice
// are created with.
func SetBackendOptions(opts ...Option) {
	backendOptsMu.Lock()
	backendOpts = append([]Option(nil), opts...)
	backendOptsMu.Unlock()
}

type backend struct{}

func (backend) Name() string { return BackendName }

// Supports accepts the adapters of the noop HAL backend, whose devices have
// no execution of their own.
func (backend) Supports(adapter *hal.ExposedAdapter) bool {
	return adapter != nil && adapter.Info.Backend == gputypes.BackendEmpty
}

func (backend) Open(adapter *hal.ExposedAdapter) (rt.Device, rt.Queue, error) {
	opened, err := adapter.Adapter.Open(adapter.Features, gputypes.DefaultLimits())
	if err != nil {
		return nil, nil, fmt.Errorf("soft: open %q: %w", adapter.Info.Name, err)
	}
	backendOptsMu.Lock()
	opts := backendOpts
	backendOptsMu.Unlock()
	dev, queue := newDevice(opened.Device, opts...)
	return dev, queue, nil
}
