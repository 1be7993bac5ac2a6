// renderer/meshbuffer.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package renderer

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/mmp/sweep/log"
)

// UploadPolicy determines where a MeshBuffer keeps its vertices.
type UploadPolicy int

const (
	// UploadStatic copies the vertices to device-resident storage once;
	// the host copy is released and draws only bind the device buffer.
	UploadStatic UploadPolicy = iota
	// UploadStreamed keeps the vertices in host memory and copies them
	// to the device each time the buffer is bound, which makes it cheap
	// to replace them between frames.
	UploadStreamed
)

func (u UploadPolicy) String() string {
	switch u {
	case UploadStatic:
		return "static"
	case UploadStreamed:
		return "streamed"
	default:
		return fmt.Sprintf("UploadPolicy(%d)", int(u))
	}
}

// Geometry is a batch of triangles in a form that can be uploaded to a
// MeshBuffer. If Indices is nil, Count consecutive vertices are drawn;
// otherwise the first Count indices are.
type Geometry struct {
	Format   VertexFormat
	Vertices []byte
	Indices  []uint32
	Count    int
}

// MeshBuffer owns the storage for a Geometry and issues the commands to
// bind and draw it.
type MeshBuffer struct {
	r      Renderer
	policy UploadPolicy
	lg     *log.Logger

	format  VertexFormat
	count   int
	indexed bool

	// UploadStatic
	vbo, ibo uint32

	// UploadStreamed
	vertices []byte
	indices  []byte
}

func NewMeshBuffer(r Renderer, policy UploadPolicy, lg *log.Logger) *MeshBuffer {
	return &MeshBuffer{r: r, policy: policy, lg: lg}
}

func (mb *MeshBuffer) Policy() UploadPolicy {
	return mb.policy
}

// Count returns the number of vertices (or indices, for indexed
// geometry) that Draw draws.
func (mb *MeshBuffer) Count() int {
	return mb.count
}

// Upload takes ownership of the provided geometry's storage, replacing
// anything previously uploaded. With UploadStatic, the vertex and index
// data are copied to the device and the references to the host copies
// are dropped.
func (mb *MeshBuffer) Upload(g Geometry) error {
	if g.Format.Stride <= 0 {
		return fmt.Errorf("%d: invalid vertex stride", g.Format.Stride)
	}
	if len(g.Vertices)%g.Format.Stride != 0 {
		return fmt.Errorf("%d vertex bytes not a multiple of the %d byte stride", len(g.Vertices), g.Format.Stride)
	}
	nv := len(g.Vertices) / g.Format.Stride
	if g.Indices == nil && g.Count > nv {
		return fmt.Errorf("count %d exceeds %d vertices", g.Count, nv)
	}
	if g.Indices != nil && g.Count > len(g.Indices) {
		return fmt.Errorf("count %d exceeds %d indices", g.Count, len(g.Indices))
	}

	mb.release()
	mb.format = g.Format
	mb.count = g.Count
	mb.indexed = g.Indices != nil

	if mb.policy == UploadStatic {
		if g.Count > 0 {
			mb.vbo = mb.r.CreateVertexBuffer(g.Vertices)
			if mb.indexed {
				mb.ibo = mb.r.CreateIndexBuffer(g.Indices)
			}
		}
	} else {
		mb.vertices = g.Vertices
		if mb.indexed {
			mb.indices = make([]byte, 4*len(g.Indices))
			for i, idx := range g.Indices {
				binary.LittleEndian.PutUint32(mb.indices[4*i:], idx)
			}
		}
	}

	mb.lg.Debug("uploaded mesh", slog.String("policy", mb.policy.String()), slog.Int("count", g.Count),
		slog.Int("vertex_bytes", len(g.Vertices)), slog.Int("indices", len(g.Indices)))

	return nil
}

// Bind adds commands to the command buffer that make the mesh's vertices
// current and enable its attributes.
func (mb *MeshBuffer) Bind(cb *CommandBuffer) {
	if mb.count == 0 {
		return
	}

	if mb.policy == UploadStatic {
		cb.BindVertexBuffer(mb.vbo)
		if mb.indexed {
			cb.BindIndexBuffer(mb.ibo)
		}
	} else {
		offset := cb.RawBuffer(mb.vertices)
		cb.StreamVertexBuffer(offset, len(mb.vertices))
		if mb.indexed {
			offset := cb.RawBuffer(mb.indices)
			cb.StreamIndexBuffer(offset, len(mb.indices))
		}
	}

	for _, a := range mb.format.Attribs {
		cb.VertexAttrib(a, mb.format.Stride)
	}
}

// Draw adds a command to draw the mesh's triangles; Bind must have been
// called first.
func (mb *MeshBuffer) Draw(cb *CommandBuffer) {
	if mb.count == 0 {
		return
	}
	if mb.indexed {
		cb.DrawElements(mb.count)
	} else {
		cb.DrawArrays(0, mb.count)
	}
}

// Unbind disables the mesh's vertex attributes.
func (mb *MeshBuffer) Unbind(cb *CommandBuffer) {
	if mb.count == 0 {
		return
	}
	for _, a := range mb.format.Attribs {
		cb.DisableVertexAttrib(a.Index)
	}
}

func (mb *MeshBuffer) release() {
	if mb.vbo != 0 {
		mb.r.DestroyBuffer(mb.vbo)
		mb.vbo = 0
	}
	if mb.ibo != 0 {
		mb.r.DestroyBuffer(mb.ibo)
		mb.ibo = 0
	}
	mb.vertices, mb.indices = nil, nil
	mb.count = 0
}

// Dispose releases the buffer's device and host storage.
func (mb *MeshBuffer) Dispose() {
	mb.release()
}
