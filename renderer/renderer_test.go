package renderer

import (
	"bytes"
	"encoding/binary"
	"errors"
	gomath "math"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

const testVertexShader = `
#version 410 core

// Position and per-vertex color.
in vec2 a_Position;
in vec3 a_Color;

uniform mat4 u_MVPMatrix;

out vec3 v_Color;

void main() {
    v_Color = a_Color;
    gl_Position = u_MVPMatrix * vec4(a_Position, 0.0, 1.0);
}
`

const testFragmentShader = `
#version 410 core

in vec3 v_Color;
out vec4 fragColor;

/* no
   uniforms */
void main() {
    fragColor = vec4(v_Color, 1.0);
}
`

func TestRawBuffer(t *testing.T) {
	var cb CommandBuffer
	cb.Viewport(0, 0, 10, 10)

	for _, n := range []int{0, 1, 3, 4, 5, 17} {
		b := make([]byte, n)
		for i := range b {
			b[i] = byte(i + 1)
		}
		start := len(cb.Buf)
		offset := cb.RawBuffer(b)
		if got := cb.Bytes(offset, n); !bytes.Equal(got, b) {
			t.Errorf("%d bytes: got back %v", n, got)
		}
		if used := len(cb.Buf) - start; used != 2+(n+3)/4 {
			t.Errorf("%d bytes: used %d values", n, used)
		}
		// Padding must be zeroed.
		if n%4 != 0 {
			pad := cb.Bytes(offset, 4*((n+3)/4))[n:]
			for _, p := range pad {
				if p != 0 {
					t.Errorf("%d bytes: non-zero padding %v", n, pad)
				}
			}
		}
	}
}

func TestCommandEncoding(t *testing.T) {
	var cb CommandBuffer
	m := mgl32.Translate3D(1, 2, 3)
	cb.UniformMatrix4(4, m)
	if cb.Buf[0] != RendererUniformMatrix4 || int32(cb.Buf[1]) != 4 || len(cb.Buf) != 18 {
		t.Fatalf("unexpected encoding %v", cb.Buf)
	}
	for i := range 16 {
		if f := gomath.Float32frombits(cb.Buf[2+i]); f != m[i] {
			t.Errorf("matrix element %d: got %f expected %f", i, f, m[i])
		}
	}

	cb.Reset()
	cb.UniformMatrix4(-1, m)
	if int32(cb.Buf[1]) != -1 {
		t.Errorf("location -1 encoded as %d", int32(cb.Buf[1]))
	}

	cb.Reset()
	cb.Uniform3fv(2, []float32{1, 2, 3, 4, 5, 6, 7})
	if cb.Buf[0] != RendererUniform3fv || cb.Buf[2] != 2 || len(cb.Buf) != 9 {
		t.Errorf("unexpected Uniform3fv encoding %v", cb.Buf)
	}
}

func TestCommandBufferPool(t *testing.T) {
	cb := GetCommandBuffer()
	cb.ClearRGBA(RGBA{})
	ReturnCommandBuffer(cb)
	if len(cb.Buf) != 0 {
		t.Errorf("returned command buffer not reset")
	}
}

func TestShaderProgram(t *testing.T) {
	r := NewHeadlessRenderer(nil)

	p, err := NewShaderProgram(r, testVertexShader, testFragmentShader, nil)
	if err != nil {
		t.Fatalf("NewShaderProgram: %v", err)
	}
	if err := p.Link("a_Position", "a_Color"); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if p.Handle() == 0 {
		t.Errorf("expected non-zero program handle")
	}
	if idx, ok := p.AttributeIndex("a_Color"); !ok || idx != 1 {
		t.Errorf("a_Color bound to %d, expected 1", idx)
	}
	if loc := p.UniformLocation("u_MVPMatrix"); loc < 0 {
		t.Errorf("u_MVPMatrix not found")
	}
	if loc := p.UniformLocation("u_nope"); loc != -1 {
		t.Errorf("u_nope location %d, expected -1", loc)
	}
	if n := r.NumShaders(); n != 0 {
		t.Errorf("%d shaders left after linking", n)
	}

	// A second link is an error; the shaders are gone.
	var le *LinkError
	if err := p.Link("a_Position"); !errors.As(err, &le) {
		t.Errorf("expected *LinkError relinking, got %v", err)
	}

	p.Dispose()
	if r.NumPrograms() != 0 {
		t.Errorf("program not released by Dispose")
	}
}

func TestShaderCompileErrors(t *testing.T) {
	testCases := []struct {
		name     string
		vs, fs   string
		stage    ShaderStage
		contains string
	}{
		{"unbalanced vertex", strings.Replace(testVertexShader, "0.0, 1.0)", "0.0, 1.0", 1), testFragmentShader,
			VertexStage, "syntax error"},
		{"unbalanced fragment", testVertexShader, testFragmentShader + "}", FragmentStage, "unexpected '}'"},
		{"empty fragment", testVertexShader, "// nothing\n", FragmentStage, "empty"},
		{"attribute in fragment", testVertexShader, "attribute vec2 x;\n" + testFragmentShader, FragmentStage, "attribute"},
	}

	for _, tc := range testCases {
		r := NewHeadlessRenderer(nil)
		_, err := NewShaderProgram(r, tc.vs, tc.fs, nil)
		var ce *CompileError
		if !errors.As(err, &ce) {
			t.Errorf("%s: expected *CompileError, got %v", tc.name, err)
			continue
		}
		if ce.Stage != tc.stage {
			t.Errorf("%s: error in %s stage, expected %s", tc.name, ce.Stage, tc.stage)
		}
		if !strings.Contains(ce.Log, tc.contains) {
			t.Errorf("%s: log %q doesn't contain %q", tc.name, ce.Log, tc.contains)
		}
		if r.NumShaders() != 0 {
			t.Errorf("%s: %d shaders leaked", tc.name, r.NumShaders())
		}
	}
}

func TestShaderLinkErrors(t *testing.T) {
	testCases := []struct {
		name     string
		vs, fs   string
		attribs  []string
		contains string
	}{
		{"fragment missing main", testVertexShader,
			"in vec3 v_Color;\nout vec4 fragColor;\nvoid shade() { fragColor = vec4(v_Color, 1.0); }\n",
			[]string{"a_Position", "a_Color"}, "fragment shader lacks `main'"},
		{"unmatched varying", testVertexShader, strings.ReplaceAll(testFragmentShader, "v_Color", "v_Colour"),
			[]string{"a_Position", "a_Color"}, "v_Colour"},
		{"unknown attribute", testVertexShader, testFragmentShader,
			[]string{"a_Position", "a_Reflectivity"}, "a_Reflectivity"},
	}

	for _, tc := range testCases {
		r := NewHeadlessRenderer(nil)
		p, err := NewShaderProgram(r, tc.vs, tc.fs, nil)
		if err != nil {
			t.Fatalf("%s: unexpected compile error %v", tc.name, err)
		}
		err = p.Link(tc.attribs...)
		var le *LinkError
		if !errors.As(err, &le) {
			t.Errorf("%s: expected *LinkError, got %v", tc.name, err)
			continue
		}
		if !strings.Contains(le.Log, tc.contains) {
			t.Errorf("%s: log %q doesn't contain %q", tc.name, le.Log, tc.contains)
		}
		if p.Handle() != 0 {
			t.Errorf("%s: program handle %d after failed link", tc.name, p.Handle())
		}
		if r.NumPrograms() != 0 || r.NumShaders() != 0 {
			t.Errorf("%s: %d programs and %d shaders leaked", tc.name, r.NumPrograms(), r.NumShaders())
		}

		// Activating a failed program doesn't panic and makes nothing
		// current.
		var cb CommandBuffer
		p.Activate(&cb)
		p.Deactivate(&cb)
		r.RenderCommandBuffer(&cb)
		if len(r.Errors) != 0 {
			t.Errorf("%s: unexpected renderer errors %v", tc.name, r.Errors)
		}
	}
}

func testGeometry(indexed bool) Geometry {
	// Two triangles covering [-1,1]^2, with xy position and rgb color.
	pts := [][5]float32{
		{-1, -1, 1, 0, 0}, {1, -1, 0, 1, 0}, {-1, 1, 0, 0, 1}, {1, 1, 1, 1, 1},
	}
	tris := []uint32{0, 1, 2, 2, 3, 1}

	var g Geometry
	g.Format = VertexFormat{
		Stride: 20,
		Attribs: []VertexAttrib{
			{Index: 0, Components: 2, Type: AttribFloat32, Offset: 0},
			{Index: 1, Components: 3, Type: AttribFloat32, Offset: 8},
		},
	}
	put := func(p [5]float32) {
		for _, f := range p {
			g.Vertices = binary.LittleEndian.AppendUint32(g.Vertices, gomath.Float32bits(f))
		}
	}
	if indexed {
		for _, p := range pts {
			put(p)
		}
		g.Indices = tris
	} else {
		for _, idx := range tris {
			put(pts[idx])
		}
	}
	g.Count = 6
	return g
}

func drawGeometry(t *testing.T, r *HeadlessRenderer, mb *MeshBuffer) RendererStats {
	t.Helper()
	p, err := NewShaderProgram(r, testVertexShader, testFragmentShader, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Link("a_Position", "a_Color"); err != nil {
		t.Fatal(err)
	}

	var cb CommandBuffer
	p.Activate(&cb)
	mb.Bind(&cb)
	cb.UniformMatrix4(p.UniformLocation("u_MVPMatrix"), mgl32.Ident4())
	mb.Draw(&cb)
	mb.Unbind(&cb)
	p.Deactivate(&cb)
	return r.RenderCommandBuffer(&cb)
}

func TestMeshBufferPolicies(t *testing.T) {
	for _, indexed := range []bool{false, true} {
		for _, policy := range []UploadPolicy{UploadStatic, UploadStreamed} {
			r := NewHeadlessRenderer(nil)
			mb := NewMeshBuffer(r, policy, nil)
			if err := mb.Upload(testGeometry(indexed)); err != nil {
				t.Fatalf("Upload: %v", err)
			}

			wantBuffers := 0
			if policy == UploadStatic {
				wantBuffers = 1
				if indexed {
					wantBuffers = 2
				}
			}
			if r.NumBuffers() != wantBuffers {
				t.Errorf("%s indexed=%v: %d device buffers, expected %d", policy, indexed, r.NumBuffers(), wantBuffers)
			}
			if policy == UploadStatic && (mb.vertices != nil || mb.indices != nil) {
				t.Errorf("static upload kept host data")
			}

			for frame := range 3 {
				stats := drawGeometry(t, r, mb)
				if stats.DrawCalls != 1 || stats.Triangles != 2 {
					t.Errorf("%s indexed=%v: stats %s", policy, indexed, stats.String())
				}
				if policy == UploadStatic && stats.StreamedBytes != 0 {
					t.Errorf("static mesh streamed %d bytes on frame %d", stats.StreamedBytes, frame)
				}
				if policy == UploadStreamed && stats.StreamedBytes == 0 {
					t.Errorf("streamed mesh didn't stream on frame %d", frame)
				}
			}

			if len(r.Errors) != 0 {
				t.Errorf("%s indexed=%v: renderer errors %v", policy, indexed, r.Errors)
			}
			if len(r.Draws) != 3 {
				t.Fatalf("%d draws recorded, expected 3", len(r.Draws))
			}
			d := r.Draws[0]
			if d.Count != 6 || d.Indexed != indexed || d.Streamed != (policy == UploadStreamed) || d.Stride != 20 {
				t.Errorf("%s indexed=%v: unexpected draw record %+v", policy, indexed, d)
			}
			if d.Bounds.P0 != [2]float32{-1, -1} || d.Bounds.P1 != [2]float32{1, 1} {
				t.Errorf("%s indexed=%v: bounds %v", policy, indexed, d.Bounds)
			}
			if m := d.Uniforms["u_MVPMatrix"]; len(m) != 16 || m[0] != 1 || m[15] != 1 {
				t.Errorf("MVP uniform not recorded: %v", m)
			}

			mb.Dispose()
			if r.NumBuffers() != 0 {
				t.Errorf("%s: %d buffers left after Dispose", policy, r.NumBuffers())
			}
		}
	}
}

func TestMeshBufferUploadErrors(t *testing.T) {
	r := NewHeadlessRenderer(nil)
	mb := NewMeshBuffer(r, UploadStatic, nil)

	g := testGeometry(false)
	g.Count = 7
	if err := mb.Upload(g); err == nil {
		t.Errorf("expected error for count past the end of the vertices")
	}
	g = testGeometry(false)
	g.Vertices = g.Vertices[:len(g.Vertices)-1]
	if err := mb.Upload(g); err == nil {
		t.Errorf("expected error for partial vertex")
	}

	// Empty geometry draws nothing.
	if err := mb.Upload(Geometry{Format: testGeometry(false).Format}); err != nil {
		t.Errorf("unexpected error for empty geometry: %v", err)
	}
	var cb CommandBuffer
	mb.Bind(&cb)
	mb.Draw(&cb)
	if len(cb.Buf) != 0 || r.NumBuffers() != 0 {
		t.Errorf("empty geometry generated commands or buffers")
	}
}

func TestHeadlessValidation(t *testing.T) {
	r := NewHeadlessRenderer(nil)

	// Drawing with no program or buffers.
	var cb CommandBuffer
	cb.DrawArrays(0, 3)
	cb.UseProgram(1234)
	cb.Buf = append(cb.Buf, 9999)
	r.RenderCommandBuffer(&cb)
	if len(r.Errors) != 3 {
		t.Errorf("expected 3 errors, got %v", r.Errors)
	}

	// Drawing past the end of the buffer.
	r = NewHeadlessRenderer(nil)
	mb := NewMeshBuffer(r, UploadStreamed, nil)
	if err := mb.Upload(testGeometry(false)); err != nil {
		t.Fatal(err)
	}
	p, err := NewShaderProgram(r, testVertexShader, testFragmentShader, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Link("a_Position", "a_Color"); err != nil {
		t.Fatal(err)
	}
	cb.Reset()
	p.Activate(&cb)
	mb.Bind(&cb)
	cb.DrawArrays(3, 6)
	r.RenderCommandBuffer(&cb)
	if len(r.Errors) != 1 || !strings.Contains(r.Errors[0], "out of range") {
		t.Errorf("expected out of range error, got %v", r.Errors)
	}
}

func TestHeadlessClearAndViewport(t *testing.T) {
	r := NewHeadlessRenderer(nil)
	var cb CommandBuffer
	cb.ClearRGBA(RGBA{R: 0.25, A: 0})
	cb.Viewport(0, 0, 640, 480)
	stats := r.RenderCommandBuffer(&cb)

	if r.Clears != 1 || r.ClearColor != (RGBA{R: 0.25}) {
		t.Errorf("clear not recorded: %d %v", r.Clears, r.ClearColor)
	}
	if r.Viewport != [4]int{0, 0, 640, 480} {
		t.Errorf("viewport %v", r.Viewport)
	}
	if stats.Buffers != 1 || stats.DrawCalls != 0 {
		t.Errorf("unexpected stats %s", stats.String())
	}
}
