package soft

import (
	"math"
	"sort"
)

type vec3 [3]float32

func (a vec3) add(b vec3) vec3      { return vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }
func (a vec3) sub(b vec3) vec3      { return vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func (a vec3) scale(s float32) vec3 { return vec3{a[0] * s, a[1] * s, a[2] * s} }
func (a vec3) dot(b vec3) float32   { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

func (a vec3) cross(b vec3) vec3 {
	return vec3{a[1]*b[2] - a[2]*b[1], a[2]*b[0] - a[0]*b[2], a[0]*b[1] - a[1]*b[0]}
}

type aabb struct {
	min, max vec3
}

func emptyBox() aabb {
	inf := float32(math.Inf(1))
	return aabb{min: vec3{inf, inf, inf}, max: vec3{-inf, -inf, -inf}}
}

func (b aabb) grow(p vec3) aabb {
	for i := 0; i < 3; i++ {
		b.min[i] = min(b.min[i], p[i])
		b.max[i] = max(b.max[i], p[i])
	}
	return b
}

func (b aabb) union(o aabb) aabb {
	return b.grow(o.min).grow(o.max)
}

func (b aabb) valid() bool {
	return b.min[0] <= b.max[0] && b.min[1] <= b.max[1] && b.min[2] <= b.max[2]
}

func (b aabb) center() vec3 { return b.min.add(b.max).scale(0.5) }

func (b aabb) longestAxis() int {
	d := b.max.sub(b.min)
	switch {
	case d[0] >= d[1] && d[0] >= d[2]:
		return 0
	case d[1] >= d[2]:
		return 1
	default:
		return 2
	}
}

// hit returns the ray parameter where the ray enters the box, clipped to
// [tmin, tmax].
func (b aabb) hit(origin, invDir vec3, tmin, tmax float32) (float32, bool) {
	for i := 0; i < 3; i++ {
		t0 := (b.min[i] - origin[i]) * invDir[i]
		t1 := (b.max[i] - origin[i]) * invDir[i]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		// NaN from 0*Inf leaves the interval unchanged.
		if t0 > tmin {
			tmin = t0
		}
		if t1 < tmax {
			tmax = t1
		}
		if tmax < tmin {
			return 0, false
		}
	}
	return tmin, true
}

// leafSize is the largest primitive count stored in one leaf.
const leafSize = 4

type bvhNode struct {
	bounds aabb
	// Leaves have count > 0 and index into prims; inner nodes store the
	// right child in first and the left child directly follows the node.
	first int32
	count int32
}

// bvh is a flattened bounding volume hierarchy over primitive boxes.
type bvh struct {
	nodes []bvhNode
	prims []int32
}

// buildBVH splits at the median of the longest axis of the node bounds.
func buildBVH(boxes []aabb) *bvh {
	t := &bvh{prims: make([]int32, len(boxes))}
	if len(boxes) == 0 {
		return t
	}
	for i := range t.prims {
		t.prims[i] = int32(i)
	}
	t.nodes = make([]bvhNode, 0, 2*len(boxes)/leafSize+1)
	t.build(boxes, 0, len(boxes))
	return t
}

func (t *bvh) build(boxes []aabb, lo, hi int) int32 {
	bounds := emptyBox()
	for _, p := range t.prims[lo:hi] {
		bounds = bounds.union(boxes[p])
	}
	idx := int32(len(t.nodes))
	t.nodes = append(t.nodes, bvhNode{bounds: bounds})
	if hi-lo <= leafSize {
		t.nodes[idx].first = int32(lo)
		t.nodes[idx].count = int32(hi - lo)
		return idx
	}
	axis := bounds.longestAxis()
	span := t.prims[lo:hi]
	sort.Slice(span, func(i, j int) bool {
		return boxes[span[i]].center()[axis] < boxes[span[j]].center()[axis]
	})
	mid := lo + (hi-lo)/2
	t.build(boxes, lo, mid)
	right := t.build(boxes, mid, hi)
	t.nodes[idx].first = right
	return idx
}

func (t *bvh) bounds() aabb {
	if len(t.nodes) == 0 {
		return emptyBox()
	}
	return t.nodes[0].bounds
}

// traverse calls visit for every primitive whose box the ray enters before
// tmax. visit returns the new tmax, which prunes the rest of the walk.
func (t *bvh) traverse(origin, dir vec3, tmin, tmax float32, visit func(prim int32, tmax float32) float32) float32 {
	if len(t.nodes) == 0 {
		return tmax
	}
	invDir := vec3{1 / dir[0], 1 / dir[1], 1 / dir[2]}
	var stack [64]int32
	sp := 0
	stack[sp] = 0
	sp++
	for sp > 0 {
		sp--
		idx := stack[sp]
		n := &t.nodes[idx]
		if _, ok := n.bounds.hit(origin, invDir, tmin, tmax); !ok {
			continue
		}
		if n.count > 0 {
			for _, p := range t.prims[n.first : n.first+n.count] {
				tmax = visit(p, tmax)
			}
			continue
		}
		// Median splits keep the depth logarithmic, well under the stack size.
		stack[sp] = n.first
		stack[sp+1] = idx + 1
		sp += 2
	}
	return tmax
}
