// camera/camera.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package camera

import (
	"log/slog"
	"sync"

	"github.com/mmp/sweep/log"
	"github.com/mmp/sweep/math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	MinScale = 0.1
	MaxScale = 100

	// MaxDragStep is the largest pan, as a fraction of the viewport
	// width at unit scale, that a single drag event can cause.
	MaxDragStep = 0.4
)

var (
	eye    = mgl32.Vec3{0, 0, 2}
	center = mgl32.Vec3{0, 0, 0}
	up     = mgl32.Vec3{0, 1, 0}
)

const (
	nearPlane = 1
	farPlane  = 10
)

type eventType int

const (
	scaleEvent eventType = iota
	dragEvent
)

type event struct {
	typ    eventType
	factor float32
	dx, dy float32
}

// State is a snapshot of the camera's transform parameters.
type State struct {
	Scale      float32
	PanX, PanY float32
	Width      int
	Height     int
}

func (s State) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("scale", float64(s.Scale)),
		slog.Float64("pan_x", float64(s.PanX)),
		slog.Float64("pan_y", float64(s.PanY)),
		slog.Int("width", s.Width),
		slog.Int("height", s.Height))
}

// Camera maintains the scale and pan of the view and composes the
// model-view-projection matrix for each frame. Scale and Drag may be
// called from any goroutine; the events are queued and then applied in
// order at the start of the next call to Frame. All other methods must
// be called from the rendering goroutine.
type Camera struct {
	mu      sync.Mutex // guards pending
	pending []event

	state      State
	view       mgl32.Mat4
	projection mgl32.Mat4

	lg *log.Logger
}

func New(lg *log.Logger) *Camera {
	return &Camera{
		state:      State{Scale: 1},
		view:       mgl32.LookAtV(eye, center, up),
		projection: mgl32.Ident4(),
		lg:         lg,
	}
}

// Resize updates the viewport size and the projection matrix, which
// maps the vertical range [-1, 1] at the near plane to the viewport
// height and preserves the aspect ratio horizontally.
func (c *Camera) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		// Minimized window
		return
	}

	c.state.Width, c.state.Height = width, height
	aspect := float32(width) / float32(height)
	c.projection = mgl32.Frustum(-aspect, aspect, -1, 1, nearPlane, farPlane)
	c.view = mgl32.LookAtV(eye, center, up)

	c.lg.Info("camera resized", slog.Int("width", width), slog.Int("height", height))
}

// Scale queues a zoom by the given incremental factor.
func (c *Camera) Scale(factor float32) {
	if !(factor > 0) {
		c.lg.Warnf("%f: ignoring invalid scale factor", factor)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, event{typ: scaleEvent, factor: factor})
}

// Drag queues a pan by the given pointer movement in pixels. Positive dy
// is downward on the screen.
func (c *Camera) Drag(dx, dy float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, event{typ: dragEvent, dx: dx, dy: dy})
}

func (c *Camera) drainEvents() []event {
	c.mu.Lock()
	defer c.mu.Unlock()

	ev := c.pending
	c.pending = nil
	return ev
}

func (c *Camera) apply(ev event) {
	switch ev.typ {
	case scaleEvent:
		c.state.Scale = math.Clamp(c.state.Scale*ev.factor, MinScale, MaxScale)
		c.lg.Debug("scale", slog.Float64("scale", float64(c.state.Scale)))

	case dragEvent:
		if c.state.Width == 0 {
			return
		}
		// Normalize by the width for both axes so that panning moves at
		// the same rate horizontally and vertically.
		w := float32(c.state.Width)
		dx := math.Clamp(ev.dx/w, -MaxDragStep, MaxDragStep) / c.state.Scale
		dy := math.Clamp(ev.dy/w, -MaxDragStep, MaxDragStep) / c.state.Scale
		c.state.PanX += dx
		c.state.PanY -= dy
		c.lg.Debug("pan", slog.Float64("dx", float64(dx)), slog.Float64("dy", float64(-dy)))
	}
}

// Frame applies all queued gesture events and returns the
// model-view-projection matrix for the frame.
func (c *Camera) Frame() mgl32.Mat4 {
	for _, ev := range c.drainEvents() {
		c.apply(ev)
	}
	return c.projection.Mul4(c.view).Mul4(c.Model())
}

// Model returns the model matrix: a scale in x and y followed by the
// pan translation.
func (c *Camera) Model() mgl32.Mat4 {
	s := c.state.Scale
	return mgl32.Scale3D(s, s, 0).Mul4(mgl32.Translate3D(c.state.PanX, c.state.PanY, 0))
}

func (c *Camera) View() mgl32.Mat4 {
	return c.view
}

func (c *Camera) Projection() mgl32.Mat4 {
	return c.projection
}

// State returns the transform parameters as of the last call to Frame.
func (c *Camera) State() State {
	return c.state
}
