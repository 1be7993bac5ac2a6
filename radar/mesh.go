// radar/mesh.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package radar

import (
	"encoding/binary"
	gomath "math"

	"github.com/mmp/sweep/math"
	"github.com/mmp/sweep/wx"

	"github.com/x448/float16"
)

// Mesh holds tessellated scan geometry packed according to Layout.
// Triangles are stored as consecutive vertex triples unless Indices is
// non-nil, in which case each cell stores its four corners once and
// Indices lists the triangle vertices.
type Mesh struct {
	Layout VertexLayout
	Data   []byte
	// Indices is only set for indexed meshes.
	Indices []uint32
	// Count is the number of vertices to draw: six per emitted cell,
	// whether or not the mesh is indexed.
	Count int
	// Capacity is the number of vertices a scan of this shape would need
	// if every cell had an echo.
	Capacity int
	// Bounds is the extent of the emitted positions.
	Bounds math.Extent2D
}

// Vertex is the unpacked form of a mesh vertex.
type Vertex struct {
	Position     [3]float32
	Reflectivity float32 // GPUColor only
	Color        wx.RGB  // HostColor only
}

// Cells returns the number of cells that were emitted.
func (m *Mesh) Cells() int {
	return m.Count / 6
}

// NumVertices returns the number of vertices stored in Data.
func (m *Mesh) NumVertices() int {
	if m.Layout.Stride == 0 {
		return 0
	}
	return len(m.Data) / m.Layout.Stride
}

// Vertex decodes the i-th stored vertex. Half-precision values are
// widened to float32.
func (m *Mesh) Vertex(i int) Vertex {
	l := m.Layout
	b := m.Data[i*l.Stride : (i+1)*l.Stride]
	sz := l.Precision.ComponentSize()

	get := func(c int) float32 {
		if l.Precision == HalfPrecision {
			return float16.Frombits(binary.LittleEndian.Uint16(b[c*sz:])).Float32()
		}
		return gomath.Float32frombits(binary.LittleEndian.Uint32(b[c*sz:]))
	}

	var v Vertex
	for c := range l.PositionComponents {
		v.Position[c] = get(c)
	}
	if l.ValueComponents == 1 {
		v.Reflectivity = get(l.PositionComponents)
	} else {
		v.Color = wx.RGB{
			R: get(l.PositionComponents),
			G: get(l.PositionComponents + 1),
			B: get(l.PositionComponents + 2),
		}
	}
	return v
}

// DrawnVertex returns the i-th vertex in draw order, resolving it through
// the index list for indexed meshes. i ranges over [0, Count).
func (m *Mesh) DrawnVertex(i int) Vertex {
	if m.Indices != nil {
		return m.Vertex(int(m.Indices[i]))
	}
	return m.Vertex(i)
}

// vertexWriter appends packed vertices to a byte slice.
type vertexWriter struct {
	layout VertexLayout
	buf    []byte
	tmp    [8]float32
}

func (w *vertexWriter) put(x, y float32, value []float32) {
	n := 0
	w.tmp[n], w.tmp[n+1] = x, y
	n += 2
	if w.layout.PositionComponents == 3 {
		w.tmp[n] = 0
		n++
	}
	n += copy(w.tmp[n:], value)

	if w.layout.Precision == HalfPrecision {
		for _, f := range w.tmp[:n] {
			w.buf = binary.LittleEndian.AppendUint16(w.buf, float16.Fromfloat32(f).Bits())
		}
	} else {
		for _, f := range w.tmp[:n] {
			w.buf = binary.LittleEndian.AppendUint32(w.buf, gomath.Float32bits(f))
		}
	}
}
