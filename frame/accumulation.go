// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package frame

// Budget is the sampling decision for one frame.
type Budget struct {
	// Reset is set when accumulated samples were discarded.
	Reset bool
	// Samples is the number of samples traced this frame.
	Samples uint32
	// Total is the accumulated sample count including this frame.
	Total uint32
}

// AccumulationPolicy decides when accumulated samples are discarded and
// how many samples each frame adds. The counter never exceeds
// MaxNumberOfSamples.
type AccumulationPolicy struct {
	total   uint32
	prev    Settings
	primed  bool
	pending bool
}

// RequestReset discards the accumulated samples on the next frame, as
// after a scene load or a swap target recreation.
func (p *AccumulationPolicy) RequestReset() { p.pending = true }

// Total returns the accumulated sample count.
func (p *AccumulationPolicy) Total() uint32 { return p.total }

// Next returns the budget of the next frame. The first frame always
// resets, and so does a maximum lowered below the accumulated count.
func (p *AccumulationPolicy) Next(cur *Settings, cameraMoved, transformsChanged bool) Budget {
	reset := !p.primed || p.pending ||
		cur.RequiresAccumulationReset(&p.prev) ||
		cameraMoved ||
		!cur.AccumulateRays ||
		transformsChanged ||
		p.total > cur.MaxNumberOfSamples
	p.prev, p.primed, p.pending = *cur, true, false

	if reset {
		p.total = 0
	}
	var samples uint32
	if cur.MaxNumberOfSamples > p.total {
		samples = min(cur.MaxNumberOfSamples-p.total, cur.NumberOfSamples)
	}
	p.total += samples
	slogger().Debug("frame: sample budget", "reset", reset, "samples", samples, "total", p.total)
	return Budget{Reset: reset, Samples: samples, Total: p.total}
}
