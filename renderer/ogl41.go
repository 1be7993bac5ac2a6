// renderer/ogl41.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package renderer

import (
	"fmt"
	"log/slog"
	gomath "math"
	"strings"
	"unsafe"

	"github.com/mmp/sweep/log"

	"github.com/go-gl/gl/v4.1-core/gl"
)

// OpenGL41Renderer is a Renderer that draws using an OpenGL 4.1 core
// profile context, which must be current on the calling thread for all
// method calls.
type OpenGL41Renderer struct {
	lg *log.Logger

	vao uint32
	// Streamed data is uploaded to these each time it's used.
	stream struct {
		vertices uint32
		indices  uint32
	}

	createdBuffers map[uint32]int
	programs       map[uint32]interface{}
}

// NewOpenGL41Renderer initializes OpenGL and creates the renderer's
// vertex array object and streaming buffers.
func NewOpenGL41Renderer(l *log.Logger) (*OpenGL41Renderer, error) {
	lg = l

	lg.Info("Starting OpenGL41Renderer initialization")
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}

	lg.Info("OpenGL", slog.String("vendor", gl.GoStr(gl.GetString(gl.VENDOR))),
		slog.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
		slog.String("version", gl.GoStr(gl.GetString(gl.VERSION))))

	ogl := &OpenGL41Renderer{
		lg:             l,
		createdBuffers: make(map[uint32]int),
		programs:       make(map[uint32]interface{}),
	}

	gl.GenVertexArrays(1, &ogl.vao)
	gl.BindVertexArray(ogl.vao)
	gl.GenBuffers(1, &ogl.stream.vertices)
	gl.GenBuffers(1, &ogl.stream.indices)
	gl.Disable(gl.DEPTH_TEST)

	ogl.check()

	lg.Info("Finished OpenGL41Renderer initialization")
	return ogl, nil
}

func (ogl *OpenGL41Renderer) check() {
	if err := gl.GetError(); err != gl.NO_ERROR {
		ogl.lg.Errorf("GL error %x", err)
	}
}

func (ogl *OpenGL41Renderer) Dispose() {
	for id := range ogl.createdBuffers {
		gl.DeleteBuffers(1, &id)
	}
	for id := range ogl.programs {
		gl.DeleteProgram(id)
	}
	gl.DeleteBuffers(1, &ogl.stream.vertices)
	gl.DeleteBuffers(1, &ogl.stream.indices)
	gl.DeleteVertexArrays(1, &ogl.vao)
}

func (ogl *OpenGL41Renderer) CompileShader(stage ShaderStage, source string) (uint32, error) {
	var shaderType uint32
	switch stage {
	case VertexStage:
		shaderType = gl.VERTEX_SHADER
	case FragmentStage:
		shaderType = gl.FRAGMENT_SHADER
	default:
		return 0, &CompileError{Stage: stage, Log: "unknown shader stage"}
	}

	shader := gl.CreateShader(shaderType)

	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)

		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
		gl.DeleteShader(shader)

		return 0, &CompileError{Stage: stage, Log: strings.TrimRight(log, "\x00")}
	}

	return shader, nil
}

func (ogl *OpenGL41Renderer) DeleteShader(id uint32) {
	gl.DeleteShader(id)
}

func (ogl *OpenGL41Renderer) LinkProgram(vertexShader, fragmentShader uint32, attributes []string) (uint32, error) {
	program := gl.CreateProgram()

	gl.AttachShader(program, vertexShader)
	gl.AttachShader(program, fragmentShader)
	for i, name := range attributes {
		gl.BindAttribLocation(program, uint32(i), gl.Str(name+"\x00"))
	}
	gl.LinkProgram(program)
	gl.DetachShader(program, vertexShader)
	gl.DetachShader(program, fragmentShader)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)

		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))
		gl.DeleteProgram(program)

		return 0, &LinkError{Log: strings.TrimRight(log, "\x00")}
	}

	// The driver silently ignores bindings for attributes the vertex
	// shader doesn't use, so check that each one ended up where it was
	// asked to be.
	for i, name := range attributes {
		if loc := gl.GetAttribLocation(program, gl.Str(name+"\x00")); loc != int32(i) {
			gl.DeleteProgram(program)
			return 0, &LinkError{Log: fmt.Sprintf("attribute %q is not an active vertex shader input", name)}
		}
	}

	ogl.programs[program] = nil
	return program, nil
}

func (ogl *OpenGL41Renderer) DeleteProgram(id uint32) {
	gl.DeleteProgram(id)
	delete(ogl.programs, id)
}

func (ogl *OpenGL41Renderer) UniformLocation(program uint32, name string) int32 {
	return gl.GetUniformLocation(program, gl.Str(name+"\x00"))
}

func (ogl *OpenGL41Renderer) createdBuffer(id uint32, bytes int) {
	ogl.createdBuffers[id] = bytes

	total := 0
	for _, b := range ogl.createdBuffers {
		total += b
	}
	ogl.lg.Infof("Created buffer id %d: %d bytes -> %.2f MiB of buffers total", id, bytes,
		float32(total)/(1024*1024))
}

func (ogl *OpenGL41Renderer) CreateVertexBuffer(data []byte) uint32 {
	var id uint32
	gl.GenBuffers(1, &id)
	gl.BindBuffer(gl.ARRAY_BUFFER, id)
	gl.BufferData(gl.ARRAY_BUFFER, len(data), gl.Ptr(data), gl.STATIC_DRAW)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	ogl.check()

	ogl.createdBuffer(id, len(data))
	return id
}

func (ogl *OpenGL41Renderer) CreateIndexBuffer(indices []uint32) uint32 {
	var id uint32
	gl.GenBuffers(1, &id)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, id)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, 4*len(indices), gl.Ptr(indices), gl.STATIC_DRAW)
	ogl.check()

	ogl.createdBuffer(id, 4*len(indices))
	return id
}

func (ogl *OpenGL41Renderer) DestroyBuffer(id uint32) {
	gl.DeleteBuffers(1, &id)
	delete(ogl.createdBuffers, id)
}

func (ogl *OpenGL41Renderer) RenderCommandBuffer(cb *CommandBuffer) RendererStats {
	var stats RendererStats
	stats.Buffers++
	stats.BufferBytes += 4 * len(cb.Buf)

	i := 0
	ui32 := func() uint32 {
		v := cb.Buf[i]
		i++
		return v
	}
	i32 := func() int32 {
		return int32(ui32())
	}
	float := func() float32 {
		return gomath.Float32frombits(ui32())
	}

	for i < len(cb.Buf) {
		cmd := cb.Buf[i]
		i++
		switch cmd {
		case RendererClearRGBA:
			r := float()
			g := float()
			b := float()
			a := float()
			gl.ClearColor(r, g, b, a)
			gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

		case RendererViewport:
			x := i32()
			y := i32()
			w := i32()
			h := i32()
			gl.Viewport(x, y, w, h)

		case RendererUseProgram:
			gl.UseProgram(ui32())

		case RendererUniformMatrix4:
			loc := i32()
			ptr := unsafe.Pointer(&cb.Buf[i])
			gl.UniformMatrix4fv(loc, 1, false, (*float32)(ptr))
			i += 16

		case RendererUniform3fv:
			loc := i32()
			n := i32()
			if n > 0 {
				ptr := unsafe.Pointer(&cb.Buf[i])
				gl.Uniform3fv(loc, n, (*float32)(ptr))
			}
			i += 3 * int(n)

		case RendererRawBuffer:
			// Skip ahead
			i += int(i32())

		case RendererBindVertexBuffer:
			gl.BindBuffer(gl.ARRAY_BUFFER, ui32())

		case RendererStreamVertexBuffer:
			offset := ui32()
			nBytes := i32()
			ptr := unsafe.Add(unsafe.Pointer(&cb.Buf[0]), offset)

			gl.BindBuffer(gl.ARRAY_BUFFER, ogl.stream.vertices)
			gl.BufferData(gl.ARRAY_BUFFER, int(nBytes), ptr, gl.STREAM_DRAW)
			stats.StreamedBytes += int(nBytes)

		case RendererBindIndexBuffer:
			gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, ui32())

		case RendererStreamIndexBuffer:
			offset := ui32()
			nBytes := i32()
			ptr := unsafe.Add(unsafe.Pointer(&cb.Buf[0]), offset)

			gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, ogl.stream.indices)
			gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, int(nBytes), ptr, gl.STREAM_DRAW)
			stats.StreamedBytes += int(nBytes)

		case RendererVertexAttrib:
			index := ui32()
			nc := i32()
			typ := AttribType(i32())
			stride := i32()
			offset := int(i32())

			glType := uint32(gl.FLOAT)
			if typ == AttribFloat16 {
				glType = gl.HALF_FLOAT
			}
			gl.EnableVertexAttribArray(index)
			gl.VertexAttribPointer(index, nc, glType, false, stride, gl.PtrOffset(offset))

		case RendererDisableVertexAttrib:
			gl.DisableVertexAttribArray(ui32())

		case RendererDrawArrays:
			first := i32()
			count := i32()
			gl.DrawArrays(gl.TRIANGLES, first, count)

			stats.DrawCalls++
			stats.Triangles += int(count / 3)
			stats.Vertices += int(count)

		case RendererDrawElements:
			count := i32()
			gl.DrawElements(gl.TRIANGLES, count, gl.UNSIGNED_INT, nil)

			stats.DrawCalls++
			stats.Triangles += int(count / 3)
			stats.Vertices += int(count)

		case RendererResetState:
			gl.UseProgram(0)
			gl.BindBuffer(gl.ARRAY_BUFFER, 0)
			gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, 0)
			gl.Disable(gl.BLEND)

		default:
			ogl.lg.Error("unhandled command", slog.Int("command", int(cmd)))
			return stats
		}

		ogl.check()
	}

	return stats
}
