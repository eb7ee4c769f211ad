package soft

import (
	"fmt"
	"sync"

	"github.com/gogpu/pathtrace/rt"
)

// Program is a ray-tracing program runnable by the software device. The
// concrete types are RayGenFunc, MissFunc, ClosestHitFunc, AnyHitFunc and
// IntersectionFunc.
type Program interface {
	Stage() rt.ShaderStage
}

// RayGenFunc runs once per launch coordinate.
type RayGenFunc func(inv *Invocation)

// MissFunc runs when a traced ray hits nothing.
type MissFunc func(inv *Invocation, ray *RayInfo, payload any)

// ClosestHitFunc runs for the closest accepted intersection.
type ClosestHitFunc func(inv *Invocation, hit *Hit, payload any)

// AnyHitFunc decides whether a candidate hit on non-opaque geometry is
// accepted.
type AnyHitFunc func(inv *Invocation, hit *Hit, payload any) bool

// IntersectionFunc tests a ray against one procedural primitive. It returns
// the hit distance and up to four attributes passed on to the closest-hit
// program.
type IntersectionFunc func(inv *Invocation, c *Candidate) (t float32, attributes [4]float32, ok bool)

// ComputeFunc runs a whole compute dispatch.
type ComputeFunc func(d *Dispatch)

func (RayGenFunc) Stage() rt.ShaderStage       { return rt.StageRayGen }
func (MissFunc) Stage() rt.ShaderStage         { return rt.StageMiss }
func (ClosestHitFunc) Stage() rt.ShaderStage   { return rt.StageClosestHit }
func (AnyHitFunc) Stage() rt.ShaderStage       { return rt.StageAnyHit }
func (IntersectionFunc) Stage() rt.ShaderStage { return rt.StageIntersection }

var (
	programsMu      sync.RWMutex
	programs        = map[string]Program{}
	computePrograms = map[string]ComputeFunc{}
)

// RegisterProgram makes p available to pipelines under entryPoint.
func RegisterProgram(entryPoint string, p Program) {
	programsMu.Lock()
	programs[entryPoint] = p
	programsMu.Unlock()
}

// RegisterComputeProgram makes fn available to compute pipelines under
// entryPoint.
func RegisterComputeProgram(entryPoint string, fn ComputeFunc) {
	programsMu.Lock()
	computePrograms[entryPoint] = fn
	programsMu.Unlock()
}

func lookupProgram(stage rt.ShaderStage, entryPoint string) (Program, error) {
	programsMu.RLock()
	p, ok := programs[entryPoint]
	programsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s program %q", ErrProgramNotFound, stage, entryPoint)
	}
	if p.Stage() != stage {
		return nil, fmt.Errorf("%w: %q is a %s program, used as %s", ErrProgramNotFound, entryPoint, p.Stage(), stage)
	}
	return p, nil
}

func lookupComputeProgram(entryPoint string) (ComputeFunc, error) {
	programsMu.RLock()
	fn, ok := computePrograms[entryPoint]
	programsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: compute program %q", ErrProgramNotFound, entryPoint)
	}
	return fn, nil
}
