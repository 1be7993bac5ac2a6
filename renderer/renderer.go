// renderer/renderer.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package renderer

import (
	"fmt"
	"log/slog"

	"github.com/mmp/sweep/log"
)

// Also available as a global, though only used by CommandBuffer
var lg *log.Logger

// Renderer defines an interface for the GPU work that happens in sweep.
// Device resources (shaders, programs, buffers) are created directly
// through the Renderer; per-frame drawing is encoded in a CommandBuffer
// and then executed by RenderCommandBuffer.
//
// There are two implementations: OpenGL41Renderer, which draws with
// OpenGL, and HeadlessRenderer, which validates and records the work it's
// given without a GPU.
type Renderer interface {
	// CompileShader compiles the given source for a single shader
	// stage. If compilation fails, a *CompileError holding the compiler's
	// log is returned and no shader object remains allocated.
	CompileShader(stage ShaderStage, source string) (uint32, error)

	// DeleteShader frees a shader object returned by CompileShader.
	DeleteShader(id uint32)

	// LinkProgram links the two compiled stages into a program. The
	// given attribute names are bound to indices 0, 1, ... in order
	// before linking and each must be declared as a vertex shader input.
	// On failure, a *LinkError is returned and no program object
	// remains allocated. The shaders remain owned by the caller.
	LinkProgram(vertexShader, fragmentShader uint32, attributes []string) (uint32, error)

	// DeleteProgram frees a program returned by LinkProgram.
	DeleteProgram(id uint32)

	// UniformLocation returns the location of the named uniform in the
	// linked program, or -1 if the program has no such uniform.
	UniformLocation(program uint32, name string) int32

	// CreateVertexBuffer returns a handle to device-resident storage
	// initialized with the provided vertex data.
	CreateVertexBuffer(data []byte) uint32

	// CreateIndexBuffer returns a handle to device-resident storage
	// initialized with the provided uint32 indices.
	CreateIndexBuffer(indices []uint32) uint32

	// DestroyBuffer frees a buffer created by CreateVertexBuffer or
	// CreateIndexBuffer.
	DestroyBuffer(id uint32)

	// RenderCommandBuffer executes all of the commands encoded in the
	// provided command buffer, returning statistics about what was
	// rendered.
	RenderCommandBuffer(*CommandBuffer) RendererStats

	// Dispose releases resources allocated by the renderer.
	Dispose()
}

// RendererStats encapsulates assorted statistics from rendering.
type RendererStats struct {
	Buffers, BufferBytes int
	DrawCalls            int
	Triangles            int
	Vertices             int
	// StreamedBytes counts vertex and index bytes copied from command
	// buffers to the device.
	StreamedBytes int
}

func (rs *RendererStats) String() string {
	return fmt.Sprintf("%d buffers (%.2f MB), %d draw calls: %d tris, %d vertices, %.2f MB streamed",
		rs.Buffers, float32(rs.BufferBytes)/(1024*1024), rs.DrawCalls, rs.Triangles, rs.Vertices,
		float32(rs.StreamedBytes)/(1024*1024))
}

func (rs *RendererStats) Merge(s RendererStats) {
	rs.Buffers += s.Buffers
	rs.BufferBytes += s.BufferBytes
	rs.DrawCalls += s.DrawCalls
	rs.Triangles += s.Triangles
	rs.Vertices += s.Vertices
	rs.StreamedBytes += s.StreamedBytes
}

func (rs RendererStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("buffers", rs.Buffers),
		slog.Int("buffer_memory", rs.BufferBytes),
		slog.Int("draw_calls", rs.DrawCalls),
		slog.Int("tris", rs.Triangles),
		slog.Int("vertices", rs.Vertices),
		slog.Int("streamed_bytes", rs.StreamedBytes),
	)
}

// AttribType specifies the representation of each component of a vertex
// attribute.
type AttribType int

const (
	AttribFloat32 AttribType = iota
	AttribFloat16
)

func (t AttribType) Size() int {
	if t == AttribFloat16 {
		return 2
	}
	return 4
}

func (t AttribType) String() string {
	switch t {
	case AttribFloat32:
		return "float32"
	case AttribFloat16:
		return "float16"
	default:
		return fmt.Sprintf("AttribType(%d)", int(t))
	}
}

// VertexAttrib describes one attribute of an interleaved vertex.
type VertexAttrib struct {
	Index      int // attribute index, as bound by ShaderProgram.Link
	Components int
	Type       AttribType
	Offset     int // bytes from the start of the vertex
}

// VertexFormat describes interleaved vertices.
type VertexFormat struct {
	Stride  int // bytes
	Attribs []VertexAttrib
}
