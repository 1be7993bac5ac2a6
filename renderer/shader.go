// renderer/shader.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package renderer

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/mmp/sweep/log"
)

type ShaderStage int

const (
	VertexStage ShaderStage = iota
	FragmentStage
)

func (s ShaderStage) String() string {
	switch s {
	case VertexStage:
		return "vertex"
	case FragmentStage:
		return "fragment"
	default:
		return fmt.Sprintf("ShaderStage(%d)", int(s))
	}
}

// CompileError is returned when a shader stage fails to compile; Log
// holds the compiler's diagnostics.
type CompileError struct {
	Stage ShaderStage
	Log   string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("failed to compile %s shader: %s", e.Stage, strings.TrimSpace(e.Log))
}

// LinkError is returned when compiled shaders fail to link into a
// program; Log holds the linker's diagnostics.
type LinkError struct {
	Log string
}

func (e *LinkError) Error() string {
	return "failed to link program: " + strings.TrimSpace(e.Log)
}

// ShaderProgram manages the lifecycle of a vertex/fragment program pair:
// both stages are compiled by NewShaderProgram and then linked with a
// fixed attribute layout by Link.
type ShaderProgram struct {
	r          Renderer
	lg         *log.Logger
	vs, fs     uint32
	handle     uint32
	attributes []string
	uniforms   map[string]int32
}

// NewShaderProgram compiles the provided vertex and fragment shader
// sources. A *CompileError is returned if either fails to compile.
func NewShaderProgram(r Renderer, vertexSrc, fragmentSrc string, lg *log.Logger) (*ShaderProgram, error) {
	vs, err := r.CompileShader(VertexStage, vertexSrc)
	if err != nil {
		lg.Error("vertex shader compilation failed", slog.Any("error", err))
		return nil, err
	}

	fs, err := r.CompileShader(FragmentStage, fragmentSrc)
	if err != nil {
		r.DeleteShader(vs)
		lg.Error("fragment shader compilation failed", slog.Any("error", err))
		return nil, err
	}

	return &ShaderProgram{
		r:        r,
		lg:       lg,
		vs:       vs,
		fs:       fs,
		uniforms: make(map[string]int32),
	}, nil
}

// Link links the compiled stages, binding the named attributes to
// indices 0, 1, ... in the order given so that vertex producers and the
// program agree on slot order. The intermediate shader objects are
// released whether or not linking succeeds. On failure a *LinkError is
// returned and the program is unusable.
func (p *ShaderProgram) Link(attributes ...string) error {
	if p.vs == 0 || p.fs == 0 {
		return &LinkError{Log: "shaders have already been linked or released"}
	}

	handle, err := p.r.LinkProgram(p.vs, p.fs, attributes)

	p.r.DeleteShader(p.vs)
	p.r.DeleteShader(p.fs)
	p.vs, p.fs = 0, 0

	if err != nil {
		p.lg.Error("program link failed", slog.Any("error", err), slog.Any("attributes", attributes))
		p.handle = 0
		return err
	}

	p.handle = handle
	p.attributes = attributes
	p.lg.Debug("linked program", slog.Int("handle", int(handle)), slog.Any("attributes", attributes))
	return nil
}

// Handle returns the device handle of the linked program, or 0 if the
// program hasn't been successfully linked.
func (p *ShaderProgram) Handle() uint32 {
	return p.handle
}

// AttributeIndex returns the index that the named attribute was bound to
// by Link.
func (p *ShaderProgram) AttributeIndex(name string) (int, bool) {
	for i, a := range p.attributes {
		if a == name {
			return i, true
		}
	}
	return -1, false
}

// UniformLocation returns the location of the named uniform, or -1 if
// the program doesn't have it.
func (p *ShaderProgram) UniformLocation(name string) int32 {
	if p.handle == 0 {
		return -1
	}
	if loc, ok := p.uniforms[name]; ok {
		return loc
	}
	loc := p.r.UniformLocation(p.handle, name)
	if loc < 0 {
		p.lg.Warn("uniform not found", slog.String("name", name))
	}
	p.uniforms[name] = loc
	return loc
}

// Activate adds a command to the command buffer that makes the program
// current.
func (p *ShaderProgram) Activate(cb *CommandBuffer) {
	cb.UseProgram(p.handle)
}

// Deactivate adds a command to the command buffer that leaves no program
// current.
func (p *ShaderProgram) Deactivate(cb *CommandBuffer) {
	cb.UseProgram(0)
}

// Dispose releases the program and any shaders that haven't been linked.
func (p *ShaderProgram) Dispose() {
	if p.vs != 0 {
		p.r.DeleteShader(p.vs)
		p.vs = 0
	}
	if p.fs != 0 {
		p.r.DeleteShader(p.fs)
		p.fs = 0
	}
	if p.handle != 0 {
		p.r.DeleteProgram(p.handle)
		p.handle = 0
	}
}
