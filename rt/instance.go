package rt

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// InstanceFlags alter how rays treat an instance.
type InstanceFlags uint8

const (
	// InstanceTriangleFacingCullDisable disables back-face culling.
	InstanceTriangleFacingCullDisable InstanceFlags = 1 << iota
	// InstanceTriangleFlipFacing treats clockwise triangles as front facing.
	InstanceTriangleFlipFacing
	// InstanceForceOpaque treats all geometry as opaque.
	InstanceForceOpaque
)

// InstanceSize is the size in bytes of one Instance record.
const InstanceSize = 64

// Instance is the device layout of one top-level instance. The packed fields
// hold a 24-bit value in the low bits and an 8-bit value in the high bits.
type Instance struct {
	// Transform is a row-major 3x4 object-to-world matrix.
	Transform [12]float32

	CustomIndexAndMask    uint32
	SBTOffsetAndFlags     uint32
	AccelerationStructure DeviceAddress
}

// NewInstance returns an instance record. customIndex and sbtOffset are
// truncated to 24 bits.
func NewInstance(transform mgl32.Mat4, customIndex uint32, mask uint8, sbtOffset uint32, flags InstanceFlags, blas DeviceAddress) Instance {
	return Instance{
		Transform:             TransformRows(transform),
		CustomIndexAndMask:    customIndex&0xFFFFFF | uint32(mask)<<24,
		SBTOffsetAndFlags:     sbtOffset&0xFFFFFF | uint32(flags)<<24,
		AccelerationStructure: blas,
	}
}

// CustomIndex returns the 24-bit custom index.
func (in *Instance) CustomIndex() uint32 { return in.CustomIndexAndMask & 0xFFFFFF }

// Mask returns the 8-bit visibility mask.
func (in *Instance) Mask() uint8 { return uint8(in.CustomIndexAndMask >> 24) }

// SBTOffset returns the hit group record offset.
func (in *Instance) SBTOffset() uint32 { return in.SBTOffsetAndFlags & 0xFFFFFF }

// Flags returns the instance flags.
func (in *Instance) Flags() InstanceFlags { return InstanceFlags(in.SBTOffsetAndFlags >> 24) }

// TransformRows returns the top three rows of m laid out row after row,
// the layout instance records and hit programs expect.
func TransformRows(m mgl32.Mat4) [12]float32 {
	var t [12]float32
	for r := range 3 {
		for c := range 4 {
			t[4*r+c] = m.At(r, c)
		}
	}
	return t
}

// Bytes returns a byte view of a slice of fixed-layout values. The view
// aliases the slice memory.
func Bytes[T any](values []T) []byte {
	if len(values) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&values[0])), len(values)*int(unsafe.Sizeof(zero)))
}

// View reinterprets device bytes as a slice of fixed-layout values. Trailing
// bytes that do not fill a whole value are ignored.
func View[T any](data []byte) []T {
	var zero T
	n := len(data) / int(unsafe.Sizeof(zero))
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), n)
}
