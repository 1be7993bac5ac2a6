// renderer/headless.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package renderer

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	gomath "math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/mmp/sweep/log"
	"github.com/mmp/sweep/math"

	"github.com/x448/float16"
)

// HeadlessRenderer is a Renderer that doesn't need a GPU. It performs
// basic validation of shader source (balanced delimiters, declarations,
// a main function and matching inputs and outputs across stages), checks
// that the commands it executes are consistent with the resources that
// have been created, and records each draw so that the results can be
// inspected.
type HeadlessRenderer struct {
	lg     *log.Logger
	nextId uint32

	shaders  map[uint32]*headlessShader
	programs map[uint32]*headlessProgram
	buffers  map[uint32][]byte

	// Draws records every draw command that has been executed.
	Draws []DrawRecord
	// Clears counts the clear commands that have been executed.
	Clears     int
	ClearColor RGBA
	Viewport   [4]int
	// Errors records invalid commands.
	Errors []string
}

// DrawRecord describes a single executed draw command.
type DrawRecord struct {
	Program  uint32
	Count    int
	Indexed  bool
	Streamed bool
	Stride   int
	Attribs  []VertexAttrib
	// Bounds covers the x and y components of attribute 0 over all of
	// the vertices that were drawn.
	Bounds math.Extent2D
	// Uniforms holds the values of the program's uniforms at the time of
	// the draw, indexed by name.
	Uniforms map[string][]float32
}

type headlessShader struct {
	stage    ShaderStage
	hasMain  bool
	inputs   []string
	outputs  []string
	uniforms map[string]int // name -> array size (1 for non-arrays)
}

type headlessProgram struct {
	attributes []string
	uniforms   []string // index is the location
	sizes      []int
	values     map[int32][]float32
}

func NewHeadlessRenderer(l *log.Logger) *HeadlessRenderer {
	lg = l
	return &HeadlessRenderer{
		lg:       l,
		shaders:  make(map[uint32]*headlessShader),
		programs: make(map[uint32]*headlessProgram),
		buffers:  make(map[uint32][]byte),
	}
}

func (h *HeadlessRenderer) newId() uint32 {
	h.nextId++
	return h.nextId
}

func (h *HeadlessRenderer) reportError(msg string, args ...any) {
	s := fmt.Sprintf(msg, args...)
	h.lg.Error("headless renderer: "+s)
	h.Errors = append(h.Errors, s)
}

func (h *HeadlessRenderer) Dispose() {
	clear(h.shaders)
	clear(h.programs)
	clear(h.buffers)
}

///////////////////////////////////////////////////////////////////////////
// Shaders

var (
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineCommentRe  = regexp.MustCompile(`//[^\n]*`)
	directiveRe    = regexp.MustCompile(`(?m)^[ \t]*#[^\n]*`)
	layoutRe       = regexp.MustCompile(`layout\s*\([^)]*\)`)
	mainRe         = regexp.MustCompile(`\bvoid\s+main\s*\(\s*(void)?\s*\)`)
	arrayRe        = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*\[\s*(\d+)\s*\]$`)
	identRe        = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

func preprocess(src string) string {
	// Keep newlines so that line numbers in errors stay correct.
	src = blockCommentRe.ReplaceAllStringFunc(src, func(c string) string {
		return strings.Repeat("\n", strings.Count(c, "\n"))
	})
	src = lineCommentRe.ReplaceAllString(src, "")
	return directiveRe.ReplaceAllString(src, "")
}

func checkDelimiters(src string) string {
	var stack []rune
	var lines []int
	line := 1
	pairs := map[rune]rune{')': '(', '}': '{', ']': '['}
	for _, ch := range src {
		switch ch {
		case '\n':
			line++
		case '(', '{', '[':
			stack = append(stack, ch)
			lines = append(lines, line)
		case ')', '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[ch] {
				return fmt.Sprintf("0:%d(1): error: syntax error, unexpected '%c'", line, ch)
			}
			stack, lines = stack[:len(stack)-1], lines[:len(lines)-1]
		}
	}
	if len(stack) > 0 {
		return fmt.Sprintf("0:%d(1): error: syntax error, unmatched '%c'", lines[len(lines)-1], stack[len(stack)-1])
	}
	return ""
}

func parseShader(stage ShaderStage, src string) (*headlessShader, string) {
	src = preprocess(src)
	if strings.TrimSpace(src) == "" {
		return nil, "0:1(1): error: empty shader source"
	}
	if msg := checkDelimiters(src); msg != "" {
		return nil, msg
	}

	sh := &headlessShader{
		stage:    stage,
		hasMain:  mainRe.MatchString(src),
		uniforms: make(map[string]int),
	}

	// Only look at statements outside of function bodies.
	var top strings.Builder
	depth := 0
	for _, ch := range src {
		switch ch {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				top.WriteRune(';')
			}
		default:
			if depth == 0 {
				top.WriteRune(ch)
			}
		}
	}

	for _, stmt := range strings.Split(top.String(), ";") {
		stmt = layoutRe.ReplaceAllString(stmt, "")
		fields := strings.Fields(stmt)

		// Skip any interpolation and precision qualifiers.
		for len(fields) > 0 && slices.Contains([]string{"flat", "smooth", "noperspective", "centroid",
			"invariant", "highp", "mediump", "lowp"}, fields[0]) {
			fields = fields[1:]
		}
		if len(fields) < 3 {
			continue
		}

		qualifier := fields[0]
		decl := strings.Join(fields[2:], "")
		for _, p := range []string{"highp", "mediump", "lowp"} {
			if fields[1] == p && len(fields) >= 4 {
				decl = strings.Join(fields[3:], "")
			}
		}

		size := 1
		name := decl
		if m := arrayRe.FindStringSubmatch(decl); m != nil {
			name = m[1]
			size, _ = strconv.Atoi(m[2])
		}
		if !identRe.MatchString(name) {
			continue
		}

		switch qualifier {
		case "attribute":
			if stage != VertexStage {
				return nil, fmt.Sprintf("0:1(1): error: `attribute' qualifier in %s shader", stage)
			}
			sh.inputs = append(sh.inputs, name)
		case "varying":
			if stage == VertexStage {
				sh.outputs = append(sh.outputs, name)
			} else {
				sh.inputs = append(sh.inputs, name)
			}
		case "in":
			sh.inputs = append(sh.inputs, name)
		case "out":
			sh.outputs = append(sh.outputs, name)
		case "uniform":
			sh.uniforms[name] = size
		}
	}

	return sh, ""
}

func (h *HeadlessRenderer) CompileShader(stage ShaderStage, source string) (uint32, error) {
	if stage != VertexStage && stage != FragmentStage {
		return 0, &CompileError{Stage: stage, Log: "unknown shader stage"}
	}

	sh, msg := parseShader(stage, source)
	if msg != "" {
		return 0, &CompileError{Stage: stage, Log: msg}
	}

	id := h.newId()
	h.shaders[id] = sh
	return id, nil
}

func (h *HeadlessRenderer) DeleteShader(id uint32) {
	delete(h.shaders, id)
}

func (h *HeadlessRenderer) LinkProgram(vertexShader, fragmentShader uint32, attributes []string) (uint32, error) {
	vs, ok := h.shaders[vertexShader]
	if !ok || vs.stage != VertexStage {
		return 0, &LinkError{Log: "error: no vertex shader attached"}
	}
	fs, ok := h.shaders[fragmentShader]
	if !ok || fs.stage != FragmentStage {
		return 0, &LinkError{Log: "error: no fragment shader attached"}
	}

	var errs []string
	if !vs.hasMain {
		errs = append(errs, "error: vertex shader lacks `main'")
	}
	if !fs.hasMain {
		errs = append(errs, "error: fragment shader lacks `main'")
	}
	for _, in := range fs.inputs {
		if !slices.Contains(vs.outputs, in) {
			errs = append(errs, fmt.Sprintf("error: fragment shader input `%s' has no matching output in the previous stage", in))
		}
	}
	for _, a := range attributes {
		if !slices.Contains(vs.inputs, a) {
			errs = append(errs, fmt.Sprintf("error: attribute `%s' is not an active vertex shader input", a))
		}
	}
	if len(errs) > 0 {
		return 0, &LinkError{Log: strings.Join(errs, "\n")}
	}

	p := &headlessProgram{
		attributes: slices.Clone(attributes),
		values:     make(map[int32][]float32),
	}
	for _, sh := range []*headlessShader{vs, fs} {
		names := make([]string, 0, len(sh.uniforms))
		for name := range sh.uniforms {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			if !slices.Contains(p.uniforms, name) {
				p.uniforms = append(p.uniforms, name)
				p.sizes = append(p.sizes, sh.uniforms[name])
			}
		}
	}

	id := h.newId()
	h.programs[id] = p
	return id, nil
}

func (h *HeadlessRenderer) DeleteProgram(id uint32) {
	delete(h.programs, id)
}

func (h *HeadlessRenderer) UniformLocation(program uint32, name string) int32 {
	if p, ok := h.programs[program]; ok {
		if idx := slices.Index(p.uniforms, name); idx != -1 {
			return int32(idx)
		}
	}
	return -1
}

///////////////////////////////////////////////////////////////////////////
// Buffers

func (h *HeadlessRenderer) CreateVertexBuffer(data []byte) uint32 {
	id := h.newId()
	h.buffers[id] = slices.Clone(data)
	return id
}

func (h *HeadlessRenderer) CreateIndexBuffer(indices []uint32) uint32 {
	b := make([]byte, 4*len(indices))
	for i, idx := range indices {
		binary.LittleEndian.PutUint32(b[4*i:], idx)
	}
	id := h.newId()
	h.buffers[id] = b
	return id
}

func (h *HeadlessRenderer) DestroyBuffer(id uint32) {
	if _, ok := h.buffers[id]; !ok {
		h.reportError("%d: destroying unknown buffer", id)
	}
	delete(h.buffers, id)
}

// NumBuffers returns the number of live device buffers.
func (h *HeadlessRenderer) NumBuffers() int {
	return len(h.buffers)
}

// NumPrograms returns the number of live programs.
func (h *HeadlessRenderer) NumPrograms() int {
	return len(h.programs)
}

// NumShaders returns the number of live shader objects.
func (h *HeadlessRenderer) NumShaders() int {
	return len(h.shaders)
}

///////////////////////////////////////////////////////////////////////////
// Command execution

type headlessState struct {
	program          uint32
	vertices         []byte
	verticesStreamed bool
	indices          []byte
	attribs          map[int]VertexAttrib
	stride           int
}

func (h *HeadlessRenderer) RenderCommandBuffer(cb *CommandBuffer) RendererStats {
	var state headlessState
	return h.render(cb, &state)
}

func (h *HeadlessRenderer) render(cb *CommandBuffer, state *headlessState) RendererStats {
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
	if state.attribs == nil {
		state.attribs = make(map[int]VertexAttrib)
	}

	for i < len(cb.Buf) {
		cmd := cb.Buf[i]
		i++
		switch cmd {
		case RendererClearRGBA:
			h.ClearColor = RGBA{R: float(), G: float(), B: float(), A: float()}
			h.Clears++

		case RendererViewport:
			h.Viewport = [4]int{int(i32()), int(i32()), int(i32()), int(i32())}

		case RendererUseProgram:
			id := ui32()
			if _, ok := h.programs[id]; id != 0 && !ok {
				h.reportError("%d: using unknown program", id)
			}
			state.program = id

		case RendererUniformMatrix4:
			loc := i32()
			v := make([]float32, 16)
			for j := range v {
				v[j] = float()
			}
			h.setUniform(state.program, loc, v, 1)

		case RendererUniform3fv:
			loc := i32()
			n := int(i32())
			v := make([]float32, 3*n)
			for j := range v {
				v[j] = float()
			}
			h.setUniform(state.program, loc, v, n)

		case RendererRawBuffer:
			// Skip ahead
			i += int(i32())

		case RendererBindVertexBuffer:
			id := ui32()
			b, ok := h.buffers[id]
			if !ok {
				h.reportError("%d: binding unknown vertex buffer", id)
			}
			state.vertices, state.verticesStreamed = b, false

		case RendererStreamVertexBuffer:
			offset := int(i32())
			n := int(i32())
			state.vertices, state.verticesStreamed = slices.Clone(cb.Bytes(offset, n)), true
			stats.StreamedBytes += n

		case RendererBindIndexBuffer:
			id := ui32()
			b, ok := h.buffers[id]
			if !ok {
				h.reportError("%d: binding unknown index buffer", id)
			}
			state.indices = b

		case RendererStreamIndexBuffer:
			offset := int(i32())
			n := int(i32())
			state.indices = slices.Clone(cb.Bytes(offset, n))
			stats.StreamedBytes += n

		case RendererVertexAttrib:
			a := VertexAttrib{Index: int(i32()), Components: int(i32()), Type: AttribType(i32())}
			stride := int(i32())
			a.Offset = int(i32())
			if a.Components < 1 || a.Components > 4 {
				h.reportError("%d: invalid number of attribute components", a.Components)
			}
			if a.Offset+a.Components*a.Type.Size() > stride {
				h.reportError("attribute %d extends past the %d byte stride", a.Index, stride)
			}
			if p, ok := h.programs[state.program]; !ok {
				h.reportError("attribute %d enabled without a current program", a.Index)
			} else if a.Index >= len(p.attributes) {
				h.reportError("attribute %d not bound by the current program", a.Index)
			}
			state.attribs[a.Index] = a
			state.stride = stride

		case RendererDisableVertexAttrib:
			delete(state.attribs, int(i32()))

		case RendererDrawArrays:
			first := int(i32())
			count := int(i32())
			vertices := make([]int, count)
			for j := range vertices {
				vertices[j] = first + j
			}
			h.draw(state, vertices, false)

			stats.DrawCalls++
			stats.Triangles += count / 3
			stats.Vertices += count

		case RendererDrawElements:
			count := int(i32())
			if 4*count > len(state.indices) {
				h.reportError("drawing %d indices but only %d are bound", count, len(state.indices)/4)
				count = len(state.indices) / 4
			}
			vertices := make([]int, count)
			for j := range vertices {
				vertices[j] = int(binary.LittleEndian.Uint32(state.indices[4*j:]))
			}
			h.draw(state, vertices, true)

			stats.DrawCalls++
			stats.Triangles += count / 3
			stats.Vertices += count

		case RendererResetState:
			*state = headlessState{attribs: make(map[int]VertexAttrib)}

		default:
			h.reportError("%d: unhandled command", cmd)
			return stats
		}
	}

	return stats
}

func (h *HeadlessRenderer) setUniform(program uint32, loc int32, v []float32, n int) {
	p, ok := h.programs[program]
	if !ok {
		h.reportError("setting uniform %d without a current program", loc)
		return
	}
	if loc < 0 {
		// As with OpenGL, setting location -1 is silently ignored.
		return
	}
	if int(loc) >= len(p.uniforms) {
		h.reportError("%d: invalid uniform location", loc)
		return
	}
	if n > p.sizes[loc] {
		h.reportError("%s: setting %d elements of a %d element uniform", p.uniforms[loc], n, p.sizes[loc])
	}
	p.values[loc] = v
}

func (h *HeadlessRenderer) draw(state *headlessState, vertices []int, indexed bool) {
	p, ok := h.programs[state.program]
	if !ok {
		h.reportError("draw without a current program")
		return
	}
	if state.vertices == nil {
		h.reportError("draw without a vertex buffer")
		return
	}
	for idx := range p.attributes {
		if _, ok := state.attribs[idx]; !ok {
			h.reportError("draw with attribute %d (%s) not enabled", idx, p.attributes[idx])
		}
	}

	rec := DrawRecord{
		Program:  state.program,
		Count:    len(vertices),
		Indexed:  indexed,
		Streamed: state.verticesStreamed,
		Stride:   state.stride,
		Bounds:   math.EmptyExtent2D(),
		Uniforms: make(map[string][]float32),
	}
	for idx := range len(p.attributes) {
		if a, ok := state.attribs[idx]; ok {
			rec.Attribs = append(rec.Attribs, a)
		}
	}
	for loc, v := range p.values {
		rec.Uniforms[p.uniforms[loc]] = v
	}

	pos, ok := state.attribs[0]
	if ok && state.stride > 0 {
		nv := len(state.vertices) / state.stride
		for _, v := range vertices {
			if v < 0 || v >= nv {
				h.reportError("vertex %d out of range; %d vertices bound", v, nv)
				break
			}
			rec.Bounds = math.Union(rec.Bounds, decodePosition(state.vertices[v*state.stride+pos.Offset:], pos.Type))
		}
	}

	h.Draws = append(h.Draws, rec)
	h.lg.Debug("headless draw", slog.Int("program", int(rec.Program)), slog.Int("count", rec.Count),
		slog.Bool("indexed", indexed), slog.Bool("streamed", rec.Streamed))
}

func decodePosition(b []byte, t AttribType) [2]float32 {
	if t == AttribFloat16 {
		return [2]float32{float16.Frombits(binary.LittleEndian.Uint16(b)).Float32(),
			float16.Frombits(binary.LittleEndian.Uint16(b[2:])).Float32()}
	}
	return [2]float32{gomath.Float32frombits(binary.LittleEndian.Uint32(b)),
		gomath.Float32frombits(binary.LittleEndian.Uint32(b[4:]))}
}
