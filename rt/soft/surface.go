package soft

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Surface is an offscreen swap target. Images rotate round-robin and the
// last presented image stays readable.
type Surface struct {
	mu         sync.Mutex
	imageCount int
	config     hal.SurfaceConfiguration
	configured bool
	outdated   bool
	suboptimal bool
	images     []*Texture
	next       int
	presented  *Texture
	presents   int
	device     *Device
}

// NewSurface returns a surface that rotates through imageCount images.
func NewSurface(imageCount int) *Surface {
	if imageCount < 1 {
		imageCount = 1
	}
	return &Surface{imageCount: imageCount}
}

// Destroy releases the swap images.
func (s *Surface) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseImages()
}

// Configure (re)creates the swap images.
func (s *Surface) Configure(device hal.Device, config *hal.SurfaceConfiguration) error {
	d, ok := device.(*Device)
	if !ok {
		return fmt.Errorf("%w: surface device %T", ErrForeignResource, device)
	}
	if config.Width == 0 || config.Height == 0 {
		return hal.ErrZeroArea
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseImages()
	s.device = d
	s.config = *config
	if s.config.Format == gputypes.TextureFormatUndefined {
		s.config.Format = gputypes.TextureFormatRGBA8Unorm
	}
	for i := 0; i < s.imageCount; i++ {
		tex, err := d.newTexture(fmt.Sprintf("swap image %d", i), config.Width, config.Height, s.config.Format, s.config.Usage)
		if err != nil {
			s.releaseImages()
			return err
		}
		s.images = append(s.images, tex)
	}
	s.configured = true
	s.outdated = false
	s.suboptimal = false
	s.next = 0
	slogger().Debug("soft: surface configured", "width", config.Width, "height", config.Height,
		"images", s.imageCount, "present_mode", config.PresentMode)
	return nil
}

// Unconfigure releases the swap images.
func (s *Surface) Unconfigure(_ hal.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseImages()
}

func (s *Surface) releaseImages() {
	if s.device != nil {
		for _, img := range s.images {
			if img != s.presented {
				s.device.DestroyTexture(img)
			}
		}
	}
	s.images = nil
	s.configured = false
}

// AcquireTexture returns the next swap image.
func (s *Surface) AcquireTexture(_ hal.Fence) (*hal.AcquiredSurfaceTexture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.configured {
		return nil, ErrSurfaceNotConfigured
	}
	if s.outdated {
		return nil, hal.ErrSurfaceOutdated
	}
	img := s.images[s.next]
	s.next = (s.next + 1) % len(s.images)
	return &hal.AcquiredSurfaceTexture{Texture: img, Suboptimal: s.suboptimal}, nil
}

// DiscardTexture returns an acquired image without presenting it.
func (s *Surface) DiscardTexture(_ hal.SurfaceTexture) {}

// Invalidate marks the swap images outdated, as a window system does after a
// resize.
func (s *Surface) Invalidate() {
	s.mu.Lock()
	s.outdated = true
	s.mu.Unlock()
}

// Resize records a new size and invalidates the swap images.
func (s *Surface) Resize(width, height uint32) {
	s.mu.Lock()
	s.config.Width = width
	s.config.Height = height
	s.outdated = true
	s.mu.Unlock()
}

// Size returns the size the surface wants to be configured with.
func (s *Surface) Size() (width, height uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.Width, s.config.Height
}

// SetSuboptimal makes later acquires report a suboptimal image.
func (s *Surface) SetSuboptimal(v bool) {
	s.mu.Lock()
	s.suboptimal = v
	s.mu.Unlock()
}

// PresentCount returns how many images were presented.
func (s *Surface) PresentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presents
}

// LastPresented returns a copy of the last presented image.
func (s *Surface) LastPresented() (Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.presented == nil {
		return Image{}, false
	}
	return s.presented.Image(), true
}

func (s *Surface) isOutdated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outdated || !s.configured
}

func (s *Surface) present(tex *Texture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old := s.presented; old != nil && old != tex && !slices.Contains(s.images, old) {
		s.device.DestroyTexture(old)
	}
	s.presented = tex
	s.presents++
}

var _ hal.Surface = (*Surface)(nil)
