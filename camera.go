package pathtrace

import (
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gpucontext"
)

// rotationDivisor converts mouse travel in pixels to radians.
const rotationDivisor = 300

type direction uint8

const (
	moveLeft direction = iota
	moveRight
	moveBackward
	moveForward
	moveDown
	moveUp
	directionCount
)

// CameraController turns keyboard and mouse input into a model-view
// matrix. W, A, S and D move in the view plane, Control and Shift (or Page
// Down and Page Up) move down and up, dragging with the left button turns
// the camera and dragging with the right button turns the scene. Scrolling
// changes the field of view.
//
// Input methods may be called from the window's event goroutine while the
// renderer calls Update.
type CameraController struct {
	mu sync.Mutex

	orientation mgl32.Mat4
	position    mgl32.Vec3
	right       mgl32.Vec3
	up          mgl32.Vec3
	forward     mgl32.Vec3

	moving      [directionCount]bool
	ctrl, shift bool

	cameraRotX, cameraRotY float32
	modelRotX, modelRotY   float32
	modelTurned            bool

	mouseX, mouseY  float64
	leftDown        bool
	rightDown       bool
	fieldOfViewStep float32
}

// NewCameraController returns a controller at the origin looking down -z.
func NewCameraController() *CameraController {
	c := &CameraController{}
	c.Reset(mgl32.Ident4())
	return c
}

// Reset places the camera at the pose of modelView and clears all input
// state.
func (c *CameraController) Reset(modelView mgl32.Mat4) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if modelView.Det() == 0 {
		modelView = mgl32.Ident4()
	}
	c.position = modelView.Inv().Col(3).Vec3()
	c.orientation = modelView.Mat3().Mat4()

	c.moving = [directionCount]bool{}
	c.ctrl, c.shift = false, false
	c.cameraRotX, c.cameraRotY = 0, 0
	c.modelRotX, c.modelRotY = 0, 0
	c.modelTurned = false
	c.leftDown, c.rightDown = false, false
	c.fieldOfViewStep = 0
	c.updateVectors()
}

// Attach registers the controller's input handlers with src.
func (c *CameraController) Attach(src gpucontext.EventSource) {
	src.OnKeyPress(func(key gpucontext.Key, mods gpucontext.Modifiers) { c.KeyPress(key, mods) })
	src.OnKeyRelease(func(key gpucontext.Key, mods gpucontext.Modifiers) { c.KeyRelease(key, mods) })
	src.OnMouseMove(func(x, y float64) { c.MouseMove(x, y) })
	src.OnMousePress(func(b gpucontext.MouseButton, _, _ float64) { c.MouseButton(b, true) })
	src.OnMouseRelease(func(b gpucontext.MouseButton, _, _ float64) { c.MouseButton(b, false) })
	src.OnScroll(func(_, dy float64) { c.Scroll(dy) })
}

func keyDirection(key gpucontext.Key) (direction, bool) {
	switch key {
	case gpucontext.KeyA:
		return moveLeft, true
	case gpucontext.KeyD:
		return moveRight, true
	case gpucontext.KeyS:
		return moveBackward, true
	case gpucontext.KeyW:
		return moveForward, true
	case gpucontext.KeyPageDown:
		return moveDown, true
	case gpucontext.KeyPageUp:
		return moveUp, true
	}
	return 0, false
}

// KeyPress handles a key press. It reports whether the key controls the
// camera.
func (c *CameraController) KeyPress(key gpucontext.Key, mods gpucontext.Modifiers) bool {
	return c.key(key, mods, true)
}

// KeyRelease handles a key release. It reports whether the key controls
// the camera.
func (c *CameraController) KeyRelease(key gpucontext.Key, mods gpucontext.Modifiers) bool {
	return c.key(key, mods, false)
}

func (c *CameraController) key(key gpucontext.Key, mods gpucontext.Modifiers, down bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctrl, c.shift = mods.HasControl(), mods.HasShift()
	d, ok := keyDirection(key)
	if ok {
		c.moving[d] = down
	}
	return ok || mods.HasControl() || mods.HasShift()
}

// MouseMove handles cursor movement. It reports whether a drag is in
// progress.
func (c *CameraController) MouseMove(x, y float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	dx, dy := float32(x-c.mouseX), float32(y-c.mouseY)
	if c.leftDown {
		c.cameraRotX += dx
		c.cameraRotY += dy
	}
	if c.rightDown && (dx != 0 || dy != 0) {
		c.modelRotX += dx
		c.modelRotY += dy
		c.modelTurned = true
	}
	c.mouseX, c.mouseY = x, y
	return c.leftDown || c.rightDown
}

// MouseButton handles a button press or release.
func (c *CameraController) MouseButton(b gpucontext.MouseButton, down bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch b {
	case gpucontext.MouseButtonLeft:
		c.leftDown = down
	case gpucontext.MouseButtonRight:
		c.rightDown = down
	}
}

// Scroll narrows the field of view by dy degrees (widens it for negative dy).
func (c *CameraController) Scroll(dy float64) {
	c.mu.Lock()
	c.fieldOfViewStep -= float32(dy)
	c.mu.Unlock()
}

// TakeFieldOfViewStep returns the field of view change accumulated by
// Scroll since the last call.
func (c *CameraController) TakeFieldOfViewStep() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.fieldOfViewStep
	c.fieldOfViewStep = 0
	return s
}

// Update applies pending movement at speed units per second over dt and
// pending rotation. It reports whether the view changed.
func (c *CameraController) Update(speed float32, dt time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := speed * float32(dt.Seconds())
	steps := [directionCount]struct {
		axis  mgl32.Vec3
		scale float32
	}{
		moveLeft:     {c.right, -d},
		moveRight:    {c.right, d},
		moveBackward: {c.forward, -d},
		moveForward:  {c.forward, d},
		moveDown:     {c.up, -d},
		moveUp:       {c.up, d},
	}
	updated := false
	for dir, s := range steps {
		if c.active(direction(dir)) {
			c.position = c.position.Add(s.axis.Mul(s.scale))
			updated = true
		}
	}

	if c.cameraRotX != 0 || c.cameraRotY != 0 {
		c.rotate(c.cameraRotX/rotationDivisor, c.cameraRotY/rotationDivisor)
		c.cameraRotX, c.cameraRotY = 0, 0
		updated = true
	}
	if c.modelTurned {
		c.modelTurned = false
		updated = true
	}
	return updated
}

func (c *CameraController) active(d direction) bool {
	switch d {
	case moveDown:
		return c.moving[d] || c.ctrl
	case moveUp:
		return c.moving[d] || c.shift
	}
	return c.moving[d]
}

// ModelView returns the current view matrix with the scene rotation
// applied first.
func (c *CameraController) ModelView() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	quarter := mgl32.DegToRad(90)
	model := mgl32.HomogRotate3DY(c.modelRotX / rotationDivisor * quarter).
		Mul4(mgl32.HomogRotate3DX(c.modelRotY / rotationDivisor * quarter))
	p := c.position
	return c.orientation.Mul4(mgl32.Translate3D(-p[0], -p[1], -p[2])).Mul4(model)
}

// rotate yaws around the world y axis and pitches around the camera x axis.
func (c *CameraController) rotate(yaw, pitch float32) {
	c.orientation = mgl32.HomogRotate3DX(pitch).Mul4(c.orientation).Mul4(mgl32.HomogRotate3DY(yaw))
	c.updateVectors()
}

// updateVectors derives the world-space camera axes, the rows of the
// orientation.
func (c *CameraController) updateVectors() {
	c.right = c.orientation.Row(0).Vec3()
	c.up = c.orientation.Row(1).Vec3()
	c.forward = c.orientation.Row(2).Vec3().Mul(-1)
}
