// renderer/commandbuffer.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package renderer

import (
	gomath "math"
	"sync"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
)

// The command buffer stores a series of rendering commands, represented by
// the following values. Each one is followed in the buffer by a number of
// command arguments, after which the next command follows.  Comments
// after each command briefly describe its arguments.
//
// Streamed vertex and index data is stored directly in the CommandBuffer,
// following a RendererRawBuffer command; the first argument after that
// command is the number of 32-bit values used and then the bytes follow
// directly. Commands that stream data (RendererStreamVertexBuffer and
// RendererStreamIndexBuffer) refer to it via the byte offset from the
// start of the command buffer where it begins. (Note that this implies
// that one CommandBuffer cannot refer to data in another CommandBuffer.)
const (
	RendererClearRGBA             = iota // 4 float32: RGBA; clears color and depth
	RendererViewport                     // 4 int32: x, y, width, height
	RendererUseProgram                   // uint32: program handle, 0 for none
	RendererUniformMatrix4               // int32 location, 16 float32: column-major matrix
	RendererUniform3fv                   // int32 location, int32 count, then 3*count float32
	RendererRawBuffer                    // int32: size in int32s, then the bytes, zero-padded
	RendererBindVertexBuffer             // uint32: device buffer handle
	RendererStreamVertexBuffer           // 2 int32: byte offset to raw buffer, size in bytes
	RendererBindIndexBuffer              // uint32: device buffer handle
	RendererStreamIndexBuffer            // 2 int32: byte offset to raw buffer, size in bytes
	RendererVertexAttrib                 // 5 int32: index, components, AttribType, stride, offset
	RendererDisableVertexAttrib          // int32: index
	RendererDrawArrays                   // 2 int32: first vertex, count
	RendererDrawElements                 // int32: count of uint32 indices in the bound index buffer
	RendererResetState                   // no args
)

// CommandBuffer encodes a sequence of rendering commands in an
// API-agnostic manner. It makes it possible for layers to record their
// drawing without talking to the device and possibly to reuse the
// recorded commands over multiple frames.
type CommandBuffer struct {
	Buf []uint32
}

// CommandBuffers are managed using a sync.Pool so that their buf slice
// allocations persist across multiple uses.
var commandBufferPool = sync.Pool{New: func() any { return &CommandBuffer{} }}

func GetCommandBuffer() *CommandBuffer {
	return commandBufferPool.Get().(*CommandBuffer)
}

func ReturnCommandBuffer(cb *CommandBuffer) {
	cb.Reset()
	commandBufferPool.Put(cb)
}

// Reset resets the command buffer's length to zero so that it can be
// reused.
func (cb *CommandBuffer) Reset() {
	cb.Buf = cb.Buf[:0]
}

// growFor ensures that at least n more values can be added to the end of
// the buffer without going past its capacity.
func (cb *CommandBuffer) growFor(n int) {
	if len(cb.Buf)+n > cap(cb.Buf) {
		sz := 2 * cap(cb.Buf)
		if sz < 1024 {
			sz = 1024
		}
		if sz < len(cb.Buf)+n {
			sz = 2 * (len(cb.Buf) + n)
		}
		b := make([]uint32, len(cb.Buf), sz)
		copy(b, cb.Buf)
		cb.Buf = b
	}
}

func (cb *CommandBuffer) appendFloats(floats ...float32) {
	for _, f := range floats {
		// Convert each one to a uint32 since that's the type that is
		// actually stored...
		cb.Buf = append(cb.Buf, gomath.Float32bits(f))
	}
}

func (cb *CommandBuffer) appendInts(ints ...int) {
	for _, i := range ints {
		if i != int(uint32(i)) && i != int(int32(i)) {
			lg.Errorf("%d: attempting to add non-32-bit value to CommandBuffer", i)
		}
		cb.Buf = append(cb.Buf, uint32(i))
	}
}

// ClearRGBA adds a command to the command buffer to clear the color
// buffer to the specified color and the depth buffer to 1.
func (cb *CommandBuffer) ClearRGBA(color RGBA) {
	cb.appendInts(RendererClearRGBA)
	cb.appendFloats(color.R, color.G, color.B, color.A)
}

// Viewport adds a command to the command buffer to set the viewport to the
// specified rectangle.
func (cb *CommandBuffer) Viewport(x, y, w, h int) {
	cb.appendInts(RendererViewport, x, y, w, h)
}

// UseProgram adds a command to the command buffer that makes the given
// linked program current for subsequent uniform and draw commands. A
// program of 0 leaves no program current.
func (cb *CommandBuffer) UseProgram(program uint32) {
	cb.appendInts(RendererUseProgram, int(program))
}

// UniformMatrix4 adds a command that sets a mat4 uniform of the current
// program.
func (cb *CommandBuffer) UniformMatrix4(location int32, m mgl32.Mat4) {
	cb.appendInts(RendererUniformMatrix4, int(location))
	cb.appendFloats(m[:]...)
}

// Uniform3fv adds a command that sets a vec3 array uniform of the current
// program; len(v) must be a multiple of 3.
func (cb *CommandBuffer) Uniform3fv(location int32, v []float32) {
	cb.appendInts(RendererUniform3fv, int(location), len(v)/3)
	cb.appendFloats(v[:3*(len(v)/3)]...)
}

// RawBuffer stores the provided bytes, without further interpretation in
// the command buffer and returns the byte offset from the start of the
// buffer where they begin.
func (cb *CommandBuffer) RawBuffer(buf []byte) int {
	nints := (len(buf) + 3) / 4
	cb.appendInts(RendererRawBuffer, nints)
	offset := 4 * len(cb.Buf)

	cb.growFor(nints)
	start := len(cb.Buf)
	cb.Buf = cb.Buf[:start+nints]
	if nints > 0 {
		dst := unsafe.Slice((*byte)(unsafe.Pointer(&cb.Buf[start])), 4*nints)
		n := copy(dst, buf)
		clear(dst[n:])
	}

	return offset
}

// Bytes returns the n bytes starting at the given byte offset, as
// returned by RawBuffer. The returned slice aliases the command buffer.
func (cb *CommandBuffer) Bytes(offset, n int) []byte {
	if n == 0 {
		return nil
	}
	all := unsafe.Slice((*byte)(unsafe.Pointer(&cb.Buf[0])), 4*len(cb.Buf))
	return all[offset : offset+n]
}

// BindVertexBuffer adds a command to the command buffer that makes the
// given device-resident vertex buffer the source for subsequent
// VertexAttrib commands.
func (cb *CommandBuffer) BindVertexBuffer(id uint32) {
	cb.appendInts(RendererBindVertexBuffer, int(id))
}

// StreamVertexBuffer adds a command that copies the bytes at the given
// offset (as returned by RawBuffer) to the device and makes them the
// source for subsequent VertexAttrib commands.
func (cb *CommandBuffer) StreamVertexBuffer(offset, nBytes int) {
	cb.appendInts(RendererStreamVertexBuffer, offset, nBytes)
}

// BindIndexBuffer adds a command that makes the given device-resident
// index buffer the source of indices for DrawElements.
func (cb *CommandBuffer) BindIndexBuffer(id uint32) {
	cb.appendInts(RendererBindIndexBuffer, int(id))
}

// StreamIndexBuffer adds a command that copies uint32 indices stored at
// the given offset to the device for use by DrawElements.
func (cb *CommandBuffer) StreamIndexBuffer(offset, nBytes int) {
	cb.appendInts(RendererStreamIndexBuffer, offset, nBytes)
}

// VertexAttrib adds a command to the command buffer that enables the
// given vertex attribute and sources it from the current vertex buffer.
func (cb *CommandBuffer) VertexAttrib(a VertexAttrib, stride int) {
	cb.appendInts(RendererVertexAttrib, a.Index, a.Components, int(a.Type), stride, a.Offset)
}

// DisableVertexAttrib adds a command that disables the given attribute.
func (cb *CommandBuffer) DisableVertexAttrib(index int) {
	cb.appendInts(RendererDisableVertexAttrib, index)
}

// DrawArrays adds a command to the command buffer to draw triangles
// using count consecutive vertices of the current vertex buffer,
// starting at first.
func (cb *CommandBuffer) DrawArrays(first, count int) {
	cb.appendInts(RendererDrawArrays, first, count)
}

// DrawElements adds a command to the command buffer to draw triangles
// using the first count indices of the current index buffer.
func (cb *CommandBuffer) DrawElements(count int) {
	cb.appendInts(RendererDrawElements, count)
}

// ResetState adds a command to the comment buffer that resets all of the
// assorted graphics state (current program, bound buffers, enabled
// attributes) to default values.
func (cb *CommandBuffer) ResetState() {
	cb.appendInts(RendererResetState)
}
