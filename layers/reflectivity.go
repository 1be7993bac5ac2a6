// layers/reflectivity.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package layers

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mmp/sweep/log"
	"github.com/mmp/sweep/radar"
	"github.com/mmp/sweep/renderer"
	"github.com/mmp/sweep/util"
	"github.com/mmp/sweep/wx"

	"github.com/go-gl/mathgl/mgl32"
)

// ReflectivityConfig selects how a ReflectivityLayer tessellates, stores
// and colors its scan. All combinations draw the same cells.
type ReflectivityConfig struct {
	Tessellation radar.Options
	Upload       renderer.UploadPolicy
	// VertexShader and FragmentShader override the built-in shaders if
	// non-empty. They must declare the attributes and uniforms used by
	// the built-in ones for the selected color strategy.
	VertexShader   string
	FragmentShader string
}

func (c ReflectivityConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("tessellation", c.Tessellation),
		slog.String("upload", c.Upload.String()),
		slog.Bool("custom_vertex_shader", c.VertexShader != ""),
		slog.Bool("custom_fragment_shader", c.FragmentShader != ""))
}

var ErrStaticScan = errors.New("scan can't be replaced in a layer with static upload")

// ReflectivityLayer draws a radar scan's reflectivity.
type ReflectivityLayer struct {
	config ReflectivityConfig
	lg     *log.Logger

	scan     *wx.Scan
	colorMap *wx.ColorMap

	tessellator *radar.Tessellator
	program     *renderer.ShaderProgram
	mesh        *renderer.MeshBuffer
	mvpLoc      int32
	colorMapLoc int32
	colorTable  []float32

	// A replacement scan provided via SetScan; it's tessellated at the
	// start of the next Draw.
	pendingScan *wx.Scan
	mu          util.LoggingMutex
}

func NewReflectivityLayer(scan *wx.Scan, config ReflectivityConfig, lg *log.Logger) *ReflectivityLayer {
	return &ReflectivityLayer{
		config:   config,
		lg:       lg,
		scan:     scan,
		colorMap: wx.NewColorMap(),
	}
}

func (l *ReflectivityLayer) attributes() []string {
	if l.config.Tessellation.Color == radar.HostColor {
		return []string{PositionAttribute, ColorAttribute}
	}
	return []string{PositionAttribute, ReflectivityAttribute}
}

func (l *ReflectivityLayer) shaderSources() (string, string) {
	vs, fs := l.config.VertexShader, l.config.FragmentShader
	if vs == "" {
		if l.config.Tessellation.Color == radar.HostColor {
			vs = mustShaderSource("color.vert")
		} else {
			vs = mustShaderSource("reflectivity.vert")
		}
	}
	if fs == "" {
		fs = mustShaderSource("basic.frag")
	}
	return vs, fs
}

// Prepare tessellates the scan, compiles and links the shaders, and
// uploads the mesh. A *wx.ValidationError, *renderer.CompileError or
// *renderer.LinkError is returned (wrapped) if the corresponding step
// fails.
func (l *ReflectivityLayer) Prepare(r renderer.Renderer) error {
	l.lg.Info("preparing reflectivity layer", slog.Any("config", l.config), slog.Any("scan", l.scan))

	var err error
	if l.tessellator, err = radar.NewTessellator(l.config.Tessellation, l.lg); err != nil {
		return fmt.Errorf("reflectivity layer: %w", err)
	}

	var mesh *radar.Mesh
	if _, err := util.TimeItErr(l.lg, "tessellate", func() error {
		mesh, err = l.tessellator.Tessellate(l.scan)
		return err
	}); err != nil {
		return fmt.Errorf("reflectivity layer: %w", err)
	}
	l.lg.Info("mesh", slog.Int("cells", mesh.Cells()), slog.Int("vertices", mesh.Count),
		slog.Int("capacity", mesh.Capacity), slog.Int("bytes", len(mesh.Data)),
		slog.Float64("width", float64(mesh.Bounds.Width())), slog.Float64("height", float64(mesh.Bounds.Height())))

	vs, fs := l.shaderSources()
	if l.program, err = renderer.NewShaderProgram(r, vs, fs, l.lg); err != nil {
		l.Dispose()
		return fmt.Errorf("reflectivity layer: %w", err)
	}
	if err := l.program.Link(l.attributes()...); err != nil {
		l.Dispose()
		return fmt.Errorf("reflectivity layer: %w", err)
	}

	l.mesh = renderer.NewMeshBuffer(r, l.config.Upload, l.lg)
	if _, err := util.TimeItErr(l.lg, "upload", func() error {
		return l.mesh.Upload(l.meshGeometry(mesh))
	}); err != nil {
		l.Dispose()
		return fmt.Errorf("reflectivity layer: %w", err)
	}

	l.mvpLoc = l.program.UniformLocation(MVPUniform)
	if l.config.Tessellation.Color == radar.GPUColor {
		l.colorMapLoc = l.program.UniformLocation(ColorMapUniform)
		l.colorTable = l.colorMap.Floats()
	}

	return nil
}

// meshGeometry returns the renderer's description of a tessellated mesh,
// with each vertex attribute at the index the program bound it to.
func (l *ReflectivityLayer) meshGeometry(m *radar.Mesh) renderer.Geometry {
	typ := renderer.AttribFloat32
	if m.Layout.Precision == radar.HalfPrecision {
		typ = renderer.AttribFloat16
	}
	attrs := l.attributes()
	// Both were bound by Link.
	pos, _ := l.program.AttributeIndex(attrs[0])
	value, _ := l.program.AttributeIndex(attrs[1])

	return renderer.Geometry{
		Format: renderer.VertexFormat{
			Stride: m.Layout.Stride,
			Attribs: []renderer.VertexAttrib{
				{Index: pos, Components: m.Layout.PositionComponents, Type: typ, Offset: m.Layout.PositionOffset},
				{Index: value, Components: m.Layout.ValueComponents, Type: typ, Offset: m.Layout.ValueOffset},
			},
		},
		Vertices: m.Data,
		Indices:  m.Indices,
		Count:    m.Count,
	}
}

// SetScan replaces the layer's scan; it is tessellated and uploaded at
// the start of the next Draw. The layer keeps its own copy so the caller
// may continue to modify the provided scan. Only layers that use
// renderer.UploadStreamed can change scans.
func (l *ReflectivityLayer) SetScan(scan *wx.Scan) error {
	if l.config.Upload != renderer.UploadStreamed {
		return ErrStaticScan
	}
	if err := scan.Validate(); err != nil {
		return err
	}

	c := scan.Clone()

	l.mu.Lock(l.lg)
	defer l.mu.Unlock(l.lg)
	l.pendingScan = c
	return nil
}

func (l *ReflectivityLayer) updateScan() {
	l.mu.Lock(l.lg)
	scan := l.pendingScan
	l.pendingScan = nil
	l.mu.Unlock(l.lg)

	if scan == nil || l.tessellator == nil {
		return
	}

	mesh, err := l.tessellator.Tessellate(scan)
	if err == nil {
		err = l.mesh.Upload(l.meshGeometry(mesh))
	}
	if err != nil {
		// Keep drawing the previous scan.
		l.lg.Error("unable to update scan", slog.Any("error", err))
		return
	}

	l.scan = scan
	l.lg.Info("updated scan", slog.Any("scan", scan), slog.Int("vertices", mesh.Count))
}

// Count returns the number of vertices that Draw draws.
func (l *ReflectivityLayer) Count() int {
	if l.mesh == nil {
		return 0
	}
	return l.mesh.Count()
}

func (l *ReflectivityLayer) Draw(transform mgl32.Mat4, cb *renderer.CommandBuffer) {
	if l.program == nil || l.mesh == nil {
		return
	}
	l.updateScan()

	l.program.Activate(cb)
	l.mesh.Bind(cb)
	if l.colorTable != nil {
		cb.Uniform3fv(l.colorMapLoc, l.colorTable)
	}
	cb.UniformMatrix4(l.mvpLoc, transform)
	l.mesh.Draw(cb)
	l.mesh.Unbind(cb)
	l.program.Deactivate(cb)
}

func (l *ReflectivityLayer) Dispose() {
	if l.program != nil {
		l.program.Dispose()
		l.program = nil
	}
	if l.mesh != nil {
		l.mesh.Dispose()
		l.mesh = nil
	}
}
