package soft

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/pathtrace/rt"
)

// addressBase keeps address zero invalid.
const addressBase = 1 << 16

// addressSpace hands out device addresses. Addresses are never reused, so
// the buffer list stays sorted by address.
type addressSpace struct {
	mu      sync.RWMutex
	next    rt.DeviceAddress
	buffers []*Buffer

	structures map[rt.DeviceAddress]*AccelerationStructure
}

func (s *addressSpace) assign(b *Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next == 0 {
		s.next = addressBase
	}
	b.address = s.next
	size := uint64(len(b.data))
	// Keep every buffer aligned for structures placed at offset zero.
	s.next = s.next.Offset(alignUp(size+1, rt.StructureAlignment))
	s.buffers = append(s.buffers, b)
}

func (s *addressSpace) release(b *Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := sort.Search(len(s.buffers), func(i int) bool { return s.buffers[i].address >= b.address })
	if i < len(s.buffers) && s.buffers[i] == b {
		s.buffers = append(s.buffers[:i], s.buffers[i+1:]...)
	}
}

// resolve returns size bytes of device memory starting at addr.
func (s *addressSpace) resolve(addr rt.DeviceAddress, size uint64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := sort.Search(len(s.buffers), func(i int) bool { return s.buffers[i].address > addr }) - 1
	if i < 0 {
		return nil, fmt.Errorf("%w: %#x", ErrInvalidAddress, uint64(addr))
	}
	b := s.buffers[i]
	off := uint64(addr - b.address)
	if off+size > uint64(len(b.data)) {
		return nil, fmt.Errorf("%w: %#x+%d exceeds %q (%d bytes)", ErrInvalidAddress, uint64(addr), size, b.label, len(b.data))
	}
	return b.data[off : off+size], nil
}

func (s *addressSpace) addStructure(a *AccelerationStructure) {
	s.mu.Lock()
	if s.structures == nil {
		s.structures = make(map[rt.DeviceAddress]*AccelerationStructure)
	}
	s.structures[a.address] = a
	s.mu.Unlock()
}

func (s *addressSpace) removeStructure(a *AccelerationStructure) {
	s.mu.Lock()
	if s.structures[a.address] == a {
		delete(s.structures, a.address)
	}
	s.mu.Unlock()
}

func (s *addressSpace) structure(addr rt.DeviceAddress) (*AccelerationStructure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.structures[addr]
	if !ok {
		return nil, fmt.Errorf("%w: no acceleration structure at %#x", ErrInvalidAddress, uint64(addr))
	}
	return a, nil
}

func alignUp(v, align uint64) uint64 {
	if align == 0 {
		return v
	}
	return (v + align - 1) / align * align
}
