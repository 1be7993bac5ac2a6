// radar/tessellate.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package radar

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/mmp/sweep/log"
	"github.com/mmp/sweep/math"
	"github.com/mmp/sweep/wx"

	"github.com/x448/float16"
	"golang.org/x/sync/errgroup"
)

// Options controls how scans are turned into meshes. The options are
// independent of each other; every combination produces the same cells
// in the same order.
type Options struct {
	Precision Precision
	Color     ColorStrategy
	// Components is the number of position components per vertex, 2 or
	// 3. With 3 components, z is always 0. Zero selects 2.
	Components int
	// Indexed stores each cell's four corners once and emits an index
	// list instead of six explicit vertices.
	Indexed bool
	// Workers is the number of goroutines used to tessellate gate rows.
	// Values <= 1 tessellate on the calling goroutine.
	Workers int
}

func (o Options) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("precision", o.Precision.String()),
		slog.String("color", o.Color.String()),
		slog.Int("components", o.Components),
		slog.Bool("indexed", o.Indexed),
		slog.Int("workers", o.Workers))
}

// Tessellator converts polar scans into triangle meshes.
type Tessellator struct {
	opts   Options
	layout VertexLayout
	lg     *log.Logger
}

func NewTessellator(opts Options, lg *log.Logger) (*Tessellator, error) {
	if opts.Components == 0 {
		opts.Components = 2
	}
	if opts.Components != 2 && opts.Components != 3 {
		return nil, fmt.Errorf("%d: invalid number of position components; must be 2 or 3", opts.Components)
	}
	if opts.Precision != FullPrecision && opts.Precision != HalfPrecision {
		return nil, fmt.Errorf("%s: unknown precision", opts.Precision)
	}
	if opts.Color != GPUColor && opts.Color != HostColor {
		return nil, fmt.Errorf("%s: unknown color strategy", opts.Color)
	}

	return &Tessellator{
		opts:   opts,
		layout: MakeVertexLayout(opts.Precision, opts.Components, opts.Color),
		lg:     lg,
	}, nil
}

func (t *Tessellator) Options() Options {
	return t.opts
}

// Layout returns the layout of the meshes returned by Tessellate.
func (t *Tessellator) Layout() VertexLayout {
	return t.layout
}

// Tessellate returns a mesh with two triangles for each cell of the scan
// that has an echo. A cell spans gates r and r+1 along rays a and a+1,
// with the last ray connecting back to the first. Cells with
// reflectivity <= 0 are skipped. Gate ranges are converted from meters
// to degrees before the polar corners are converted to Cartesian
// coordinates, with bearings measured clockwise from +y.
//
// If the scan's arrays have inconsistent shapes a *wx.ValidationError is
// returned. Scans with fewer than two gates or no rays give an empty
// mesh.
func (t *Tessellator) Tessellate(scan *wx.Scan) (*Mesh, error) {
	if err := scan.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	m := &Mesh{Layout: t.layout, Bounds: math.EmptyExtent2D()}
	nGates, nRays := scan.NumGates(), scan.NumRays()
	if scan.NumCells() == 0 {
		t.lg.Debug("empty scan", slog.Any("scan", scan))
		return m, nil
	}
	m.Capacity = 6 * scan.NumCells()

	// The bearing trigonometry only depends on the ray, so compute it
	// once per ray rather than once per corner.
	dirs := make([][2]float64, nRays)
	for a, az := range scan.Azimuth {
		dirs[a] = math.BearingVector(az)
	}

	rows := nGates - 1
	workers := math.Clamp(t.opts.Workers, 1, rows)
	chunks := make([]meshChunk, workers)
	if workers == 1 {
		chunks[0] = t.tessellateRows(scan, dirs, 0, rows)
	} else {
		var eg errgroup.Group
		for i := range workers {
			r0, r1 := i*rows/workers, (i+1)*rows/workers
			eg.Go(func() error {
				chunks[i] = t.tessellateRows(scan, dirs, r0, r1)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}

	// Stitch the chunks together in gate order so that the output is
	// the same regardless of the number of workers.
	size, nIndices := 0, 0
	for _, c := range chunks {
		size += len(c.data)
		nIndices += len(c.indices)
	}
	m.Data = make([]byte, 0, size)
	if t.opts.Indexed {
		m.Indices = make([]uint32, 0, nIndices)
	}
	for _, c := range chunks {
		base := uint32(len(m.Data) / t.layout.Stride)
		m.Data = append(m.Data, c.data...)
		for _, idx := range c.indices {
			m.Indices = append(m.Indices, base+idx)
		}
		m.Count += c.count
		m.Bounds = math.UnionExtents(m.Bounds, c.bounds)
	}

	t.lg.Debug("tessellated scan", slog.Any("scan", scan), slog.Any("options", t.opts),
		slog.Int("cells", m.Cells()), slog.Int("vertices", m.Count), slog.Int("capacity", m.Capacity),
		slog.Int("bytes", len(m.Data)), slog.Duration("elapsed", time.Since(start)))

	return m, nil
}

type meshChunk struct {
	data    []byte
	indices []uint32
	count   int
	bounds  math.Extent2D
}

// sample returns the reflectivity of the cell at ray a and gate r as it
// will be stored in the mesh. With half precision the value is rounded
// first, so the no-echo test and host colors see the same value the GPU
// table is indexed with.
func (t *Tessellator) sample(scan *wx.Scan, a, r int) float32 {
	v := scan.Reflectivity[a][r]
	if t.opts.Precision == HalfPrecision {
		v = float16.Fromfloat32(v).Float32()
	}
	return v
}

func (t *Tessellator) tessellateRows(scan *wx.Scan, dirs [][2]float64, r0, r1 int) meshChunk {
	nRays := len(scan.Azimuth)

	// Size the output exactly.
	cells := 0
	for r := r0; r < r1; r++ {
		for a := range nRays {
			if t.sample(scan, a, r) > 0 {
				cells++
			}
		}
	}

	vertsPerCell := 6
	if t.opts.Indexed {
		vertsPerCell = 4
	}
	w := vertexWriter{layout: t.layout, buf: make([]byte, 0, cells*vertsPerCell*t.layout.Stride)}
	c := meshChunk{bounds: math.EmptyExtent2D()}
	if t.opts.Indexed {
		c.indices = make([]uint32, 0, 6*cells)
	}

	var value []float32
	var nverts uint32
	for r := r0; r < r1; r++ {
		inner := scan.Gates[r] / math.MetersPerDegree
		outer := scan.Gates[r+1] / math.MetersPerDegree

		for a := range nRays {
			v := t.sample(scan, a, r)
			if !(v > 0) {
				continue
			}

			far := (a + 1) % nRays
			innerNear, outerNear := math.PolarPoint(inner, dirs[a]), math.PolarPoint(outer, dirs[a])
			innerFar, outerFar := math.PolarPoint(inner, dirs[far]), math.PolarPoint(outer, dirs[far])

			if t.opts.Color == HostColor {
				rgb := wx.ReflectivityColor(v)
				value = append(value[:0], rgb.R, rgb.G, rgb.B)
			} else {
				value = append(value[:0], v)
			}

			if t.opts.Indexed {
				w.put(innerNear[0], innerNear[1], value) // +0
				w.put(outerNear[0], outerNear[1], value) // +1
				w.put(innerFar[0], innerFar[1], value)   // +2
				w.put(outerFar[0], outerFar[1], value)   // +3
				c.indices = append(c.indices, nverts, nverts+1, nverts+2, nverts+2, nverts+3, nverts+1)
				nverts += 4
			} else {
				w.put(innerNear[0], innerNear[1], value)
				w.put(outerNear[0], outerNear[1], value)
				w.put(innerFar[0], innerFar[1], value)

				w.put(innerFar[0], innerFar[1], value)
				w.put(outerFar[0], outerFar[1], value)
				w.put(outerNear[0], outerNear[1], value)
			}
			c.count += 6

			for _, p := range [4][2]float32{innerNear, outerNear, innerFar, outerFar} {
				c.bounds = math.Union(c.bounds, p)
			}
		}
	}

	c.data = w.buf
	return c
}
