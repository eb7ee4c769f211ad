package pathtrace

// Stats describes the renderer's recent performance and progress.
type Stats struct {
	// Width and Height are the size of the swap target in pixels.
	Width, Height uint32
	// FrameRate is the rate of the last presented frame, in frames per
	// second. It is zero until two frames were presented.
	FrameRate float64
	// RayRate is the primary ray rate of the last presented frame, in rays
	// per second.
	RayRate float64
	// TotalSamples is the number of samples accumulated per pixel.
	TotalSamples uint32

	// Presented, Skipped and Recreations count scheduler events.
	Presented   uint64
	Skipped     uint64
	Recreations uint64
	// Rebuilds counts top-level structure updates of the active scene.
	Rebuilds int

	Scene string
}

// Stats returns the statistics as of the last DrawFrame.
func (r *Renderer) Stats() Stats { return r.stats }

func (r *Renderer) updateStats() {
	s := &r.stats
	s.Width, s.Height = r.scheduler.Size()
	s.FrameRate, s.RayRate = 0, 0
	if secs := r.frameTime.Seconds(); secs > 0 {
		s.FrameRate = 1 / secs
		s.RayRate = float64(s.Width) * float64(s.Height) * float64(r.frameSamples) / secs
	}
	s.TotalSamples = r.policy.Total()

	fs := r.scheduler.Stats()
	s.Presented, s.Skipped, s.Recreations = fs.Presented, fs.Skipped, fs.Recreations
	s.Rebuilds = r.loaded.structs.Instances.Rebuilds()
	s.Scene = r.loaded.name
}
