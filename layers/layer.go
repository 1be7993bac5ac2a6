// layers/layer.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package layers

import (
	"embed"
	"fmt"
	"log/slog"

	"github.com/mmp/sweep/log"
	"github.com/mmp/sweep/renderer"

	"github.com/go-gl/mathgl/mgl32"
)

// Layer is something that can be drawn as part of a Scene.
type Layer interface {
	// Prepare creates the layer's device resources. It is called once,
	// after the rendering context is available and before the first
	// call to Draw; errors are fatal to the layer.
	Prepare(r renderer.Renderer) error

	// Draw adds the commands to draw the layer with the given
	// model-view-projection matrix to the command buffer.
	Draw(transform mgl32.Mat4, cb *renderer.CommandBuffer)

	// Dispose releases the layer's device resources.
	Dispose()
}

//go:embed shaders/*.vert shaders/*.frag
var shaderFS embed.FS

// ShaderSource returns the text of one of the built-in shaders, e.g.
// "reflectivity.vert".
func ShaderSource(name string) (string, error) {
	b, err := shaderFS.ReadFile("shaders/" + name)
	if err != nil {
		return "", fmt.Errorf("%s: no such built-in shader", name)
	}
	return string(b), nil
}

func mustShaderSource(name string) string {
	s, err := ShaderSource(name)
	if err != nil {
		panic(err)
	}
	return s
}

// Names of vertex attributes and uniforms used by the built-in shaders.
const (
	PositionAttribute     = "a_Position"
	ReflectivityAttribute = "a_Reflectivity"
	ColorAttribute        = "a_Color"
	MVPUniform            = "u_MVPMatrix"
	ColorMapUniform       = "u_colorMap"
)

// Scene holds an ordered list of layers; layers later in the list draw
// over earlier ones.
type Scene struct {
	layers     []Layer
	ClearColor renderer.RGBA
	width      int
	height     int
	lg         *log.Logger
}

func NewScene(lg *log.Logger, layers ...Layer) *Scene {
	return &Scene{layers: layers, lg: lg}
}

func (s *Scene) Add(l Layer) {
	s.layers = append(s.layers, l)
}

func (s *Scene) Layers() []Layer {
	return s.layers
}

// Prepare prepares each of the layers in order, stopping at the first
// one that fails.
func (s *Scene) Prepare(r renderer.Renderer) error {
	for i, l := range s.layers {
		if err := l.Prepare(r); err != nil {
			s.lg.Error("layer prepare failed", slog.Int("layer", i), slog.Any("error", err))
			return fmt.Errorf("layer %d: %w", i, err)
		}
	}
	s.lg.Info("prepared scene", slog.Int("layers", len(s.layers)))
	return nil
}

// Resize records the size of the framebuffer that the scene is drawn to.
func (s *Scene) Resize(width, height int) {
	s.width, s.height = width, height
}

// Draw clears the framebuffer and then draws all of the layers with the
// given transform.
func (s *Scene) Draw(transform mgl32.Mat4, cb *renderer.CommandBuffer) {
	if s.width > 0 && s.height > 0 {
		cb.Viewport(0, 0, s.width, s.height)
	}
	cb.ClearRGBA(s.ClearColor)

	for _, l := range s.layers {
		l.Draw(transform, cb)
	}
	cb.ResetState()
}

func (s *Scene) Dispose() {
	for _, l := range s.layers {
		l.Dispose()
	}
}
