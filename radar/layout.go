// radar/layout.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package radar

import (
	"fmt"
	"log/slog"
)

// Precision selects the width of each vertex component.
type Precision int

const (
	// FullPrecision stores each component as a 4-byte float.
	FullPrecision Precision = iota
	// HalfPrecision stores each component as a 2-byte IEEE 754 half
	// float, halving the memory and bandwidth at the cost of about three
	// decimal digits of precision.
	HalfPrecision
)

func (p Precision) String() string {
	switch p {
	case FullPrecision:
		return "full"
	case HalfPrecision:
		return "half"
	default:
		return fmt.Sprintf("Precision(%d)", int(p))
	}
}

// ComponentSize returns the number of bytes used to store a single
// vertex component.
func (p Precision) ComponentSize() int {
	if p == HalfPrecision {
		return 2
	}
	return 4
}

// ColorStrategy selects where reflectivity values are turned into colors.
type ColorStrategy int

const (
	// GPUColor stores the raw dBZ value in each vertex; the vertex shader
	// looks up the color in a uniform table (see wx.ColorMap).
	GPUColor ColorStrategy = iota
	// HostColor evaluates wx.ReflectivityColor during tessellation and
	// stores an RGB triple in each vertex.
	HostColor
)

func (c ColorStrategy) String() string {
	switch c {
	case GPUColor:
		return "gpu"
	case HostColor:
		return "host"
	default:
		return fmt.Sprintf("ColorStrategy(%d)", int(c))
	}
}

// VertexLayout describes how vertices are packed in a mesh. Positions
// come first, followed by the per-vertex value: a single dBZ value or an
// RGB color, depending on the color strategy.
type VertexLayout struct {
	Precision          Precision
	PositionComponents int // 2 or 3
	ValueComponents    int // 1 (dBZ) or 3 (RGB)
	PositionOffset     int // bytes
	ValueOffset        int // bytes
	Stride             int // bytes
}

func MakeVertexLayout(p Precision, positionComponents int, color ColorStrategy) VertexLayout {
	l := VertexLayout{
		Precision:          p,
		PositionComponents: positionComponents,
		ValueComponents:    1,
	}
	if color == HostColor {
		l.ValueComponents = 3
	}

	sz := p.ComponentSize()
	l.ValueOffset = l.PositionComponents * sz
	l.Stride = (l.PositionComponents + l.ValueComponents) * sz
	return l
}

func (l VertexLayout) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("precision", l.Precision.String()),
		slog.Int("position_components", l.PositionComponents),
		slog.Int("value_components", l.ValueComponents),
		slog.Int("stride", l.Stride))
}
