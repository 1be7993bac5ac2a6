// wx/colormap.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wx

import (
	gomath "math"
)

type RGB struct {
	R, G, B float32
}

var (
	NoEchoColor      = RGB{0, 0, 0}
	yellow           = RGB{1, 1, 0}
	magenta          = RGB{1, 0, 1}
	blue             = RGB{0, 0, 1}
	yellowGreen      = RGB{0.5, 0.75, 0}
	green            = RGB{0, 1, 0}
	cyan             = RGB{0, 1, 1}
	redTinted        = RGB{1, 0.25, 0.25}
	reflectivityBand = []struct {
		limit float32 // exclusive upper bound, dBZ
		color RGB
	}{
		{10, yellow},
		{15, magenta},
		{20, blue},
		{25, yellowGreen},
		{30, green},
		{35, cyan},
	}
)

// ReflectivityColor maps a dBZ value to its display color with a pure
// step function; there's no interpolation between bands. Values <= 0
// (and NaNs) are treated as no echo.
func ReflectivityColor(dbz float32) RGB {
	if !(dbz > 0) {
		return NoEchoColor
	}
	for _, b := range reflectivityBand {
		if dbz < b.limit {
			return b.color
		}
	}
	return redTinted
}

// NumColorBuckets is the number of entries in the GPU color table. It
// must match the size of the u_colorMap array declared in the
// reflectivity vertex shader.
const NumColorBuckets = 83

// ColorMap is the bucketed form of ReflectivityColor that's uploaded to
// the GPU as a uniform array. Bucket 0 holds the no-echo color; bucket
// k >= 1 covers dBZ values in [k-1, k), with the last bucket also
// covering everything above it. Because all of the band thresholds are
// whole dBZ values, each bucket falls entirely within one band and table
// lookups give exactly the same colors as ReflectivityColor.
type ColorMap [NumColorBuckets]RGB

// NewColorMap returns the table for the standard reflectivity bands.
func NewColorMap() *ColorMap {
	var cm ColorMap
	cm[0] = NoEchoColor
	for k := 1; k < NumColorBuckets; k++ {
		// Sample the middle of the bucket.
		cm[k] = ReflectivityColor(float32(k) - 0.5)
	}
	return &cm
}

// BucketIndex returns the table index for the given dBZ value. The
// reflectivity vertex shader performs the same computation.
func (cm *ColorMap) BucketIndex(dbz float32) int {
	if !(dbz > 0) {
		return 0
	}
	if dbz >= NumColorBuckets-1 {
		return NumColorBuckets - 1
	}
	return min(int(gomath.Floor(float64(dbz)))+1, NumColorBuckets-1)
}

// Lookup evaluates the table on the host.
func (cm *ColorMap) Lookup(dbz float32) RGB {
	return cm[cm.BucketIndex(dbz)]
}

// Floats returns the table flattened to RGB triples, suitable for
// uploading with a vec3 uniform array.
func (cm *ColorMap) Floats() []float32 {
	f := make([]float32, 0, 3*NumColorBuckets)
	for _, c := range cm {
		f = append(f, c.R, c.G, c.B)
	}
	return f
}
