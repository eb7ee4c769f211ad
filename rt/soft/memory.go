package soft

import (
	"fmt"
	"sync"

	"github.com/gogpu/pathtrace/rt"
)

// Default memory limits.
const (
	// DefaultMemoryMB is the default device memory budget (1 GiB).
	DefaultMemoryMB = 1024

	// MinMemoryMB is the smallest budget accepted by WithMemoryLimit.
	MinMemoryMB = 1
)

// MemoryStats contains device memory usage statistics.
type MemoryStats struct {
	// TotalBytes is the memory budget in bytes.
	TotalBytes uint64

	// UsedBytes is the currently allocated memory in bytes.
	UsedBytes uint64

	// AvailableBytes is the remaining budget.
	AvailableBytes uint64

	// PeakBytes is the highest UsedBytes seen.
	PeakBytes uint64

	// Allocations is the number of live buffers and textures.
	Allocations int

	// Utilization is the fraction of the budget in use (0.0 to 1.0).
	Utilization float64
}

// String returns a human-readable summary.
func (s MemoryStats) String() string {
	return fmt.Sprintf("Memory[%.1f%% used, %d/%d MB, %d allocations, peak %d MB]",
		s.Utilization*100,
		s.UsedBytes/(1024*1024),
		s.TotalBytes/(1024*1024),
		s.Allocations,
		s.PeakBytes/(1024*1024))
}

// memoryBudget tracks device allocations against a fixed budget. Unlike a
// texture cache nothing can be evicted: an allocation over budget fails.
//
// memoryBudget is safe for concurrent use.
type memoryBudget struct {
	mu          sync.Mutex
	budgetBytes uint64
	usedBytes   uint64
	peakBytes   uint64
	allocations int
}

func newMemoryBudget(maxMB int) *memoryBudget {
	if maxMB < MinMemoryMB {
		maxMB = DefaultMemoryMB
	}
	//nolint:gosec // G115: maxMB is positive
	return &memoryBudget{budgetBytes: uint64(maxMB) * 1024 * 1024}
}

// reserve accounts for size bytes or returns rt.ErrOutOfMemory.
func (m *memoryBudget) reserve(label string, size uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.usedBytes+size > m.budgetBytes {
		return fmt.Errorf("%w: %q needs %d bytes, %d of %d in use",
			rt.ErrOutOfMemory, label, size, m.usedBytes, m.budgetBytes)
	}
	m.usedBytes += size
	m.allocations++
	if m.usedBytes > m.peakBytes {
		m.peakBytes = m.usedBytes
	}
	return nil
}

func (m *memoryBudget) release(size uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if size > m.usedBytes {
		size = m.usedBytes
	}
	m.usedBytes -= size
	if m.allocations > 0 {
		m.allocations--
	}
}

func (m *memoryBudget) stats() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := MemoryStats{
		TotalBytes:     m.budgetBytes,
		UsedBytes:      m.usedBytes,
		AvailableBytes: m.budgetBytes - m.usedBytes,
		PeakBytes:      m.peakBytes,
		Allocations:    m.allocations,
	}
	if m.budgetBytes > 0 {
		s.Utilization = float64(m.usedBytes) / float64(m.budgetBytes)
	}
	return s
}
