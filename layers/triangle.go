// layers/triangle.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package layers

import (
	"encoding/binary"
	"fmt"
	gomath "math"

	"github.com/mmp/sweep/log"
	"github.com/mmp/sweep/renderer"

	"github.com/go-gl/mathgl/mgl32"
)

// TriangleVertex is a vertex of a TriangleLayer.
type TriangleVertex struct {
	Position [3]float32
	Color    renderer.RGBA
}

// TriangleLayer draws a fixed set of colored triangles; it is mostly
// useful for checking that the rendering path works at all.
type TriangleLayer struct {
	vertices []TriangleVertex
	lg       *log.Logger

	program *renderer.ShaderProgram
	mesh    *renderer.MeshBuffer
	mvpLoc  int32
}

// DefaultTriangle is an equilateral triangle with unit-length sides
// centered around the origin with red, blue and green corners.
var DefaultTriangle = []TriangleVertex{
	{Position: [3]float32{-0.5, -0.25, 0}, Color: renderer.RGBA{R: 1, A: 1}},
	{Position: [3]float32{0.5, -0.25, 0}, Color: renderer.RGBA{B: 1, A: 1}},
	{Position: [3]float32{0, 0.559016994, 0}, Color: renderer.RGBA{G: 1, A: 1}},
}

const triangleStride = 7 * 4

// NewTriangleLayer returns a layer that draws the given vertices as a
// triangle list; if none are given, DefaultTriangle is used.
func NewTriangleLayer(lg *log.Logger, vertices ...TriangleVertex) *TriangleLayer {
	if len(vertices) == 0 {
		vertices = DefaultTriangle
	}
	return &TriangleLayer{vertices: vertices, lg: lg}
}

func (t *TriangleLayer) Prepare(r renderer.Renderer) error {
	if len(t.vertices)%3 != 0 {
		return fmt.Errorf("triangle layer: %d vertices is not a multiple of 3", len(t.vertices))
	}

	buf := make([]byte, 0, triangleStride*len(t.vertices))
	for _, v := range t.vertices {
		for _, f := range [7]float32{v.Position[0], v.Position[1], v.Position[2], v.Color.R, v.Color.G, v.Color.B, v.Color.A} {
			buf = binary.LittleEndian.AppendUint32(buf, gomath.Float32bits(f))
		}
	}

	t.mesh = renderer.NewMeshBuffer(r, renderer.UploadStreamed, t.lg)
	err := t.mesh.Upload(renderer.Geometry{
		Format: renderer.VertexFormat{
			Stride: triangleStride,
			Attribs: []renderer.VertexAttrib{
				{Index: 0, Components: 3, Type: renderer.AttribFloat32, Offset: 0},
				{Index: 1, Components: 4, Type: renderer.AttribFloat32, Offset: 12},
			},
		},
		Vertices: buf,
		Count:    len(t.vertices),
	})
	if err != nil {
		t.Dispose()
		return fmt.Errorf("triangle layer: %w", err)
	}

	if t.program, err = renderer.NewShaderProgram(r, mustShaderSource("triangle.vert"), mustShaderSource("basic.frag"), t.lg); err != nil {
		t.Dispose()
		return fmt.Errorf("triangle layer: %w", err)
	}
	if err := t.program.Link(PositionAttribute, ColorAttribute); err != nil {
		t.Dispose()
		return fmt.Errorf("triangle layer: %w", err)
	}
	t.mvpLoc = t.program.UniformLocation(MVPUniform)

	return nil
}

func (t *TriangleLayer) Draw(transform mgl32.Mat4, cb *renderer.CommandBuffer) {
	if t.program == nil || t.mesh == nil {
		return
	}
	t.program.Activate(cb)
	t.mesh.Bind(cb)
	cb.UniformMatrix4(t.mvpLoc, transform)
	t.mesh.Draw(cb)
	t.mesh.Unbind(cb)
	t.program.Deactivate(cb)
}

func (t *TriangleLayer) Dispose() {
	if t.program != nil {
		t.program.Dispose()
		t.program = nil
	}
	if t.mesh != nil {
		t.mesh.Dispose()
		t.mesh = nil
	}
}
