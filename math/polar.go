// math/polar.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import gomath "math"

// MetersPerDegree approximates the distance covered by one degree of
// latitude (or of longitude at the equator). Dividing a radar range by it
// expresses the range in the same degree units used for geographic
// positions without a full geodesic projection; the approximation holds
// over the few hundred kilometers a single scan covers.
const MetersPerDegree = 111111

// Radians converts an angle expressed in degrees to radians.
func Radians(d float32) float64 {
	return float64(d) * gomath.Pi / 180
}

// BearingVector returns the unit vector for a bearing given in degrees
// clockwise from +y (north).
func BearingVector(bearing float32) [2]float64 {
	s, c := gomath.Sincos(Radians(bearing))
	return [2]float64{s, c}
}

// PolarPoint returns the point at the given radius along a direction
// returned by BearingVector. The product is evaluated in float64 and
// rounded once.
func PolarPoint(radius float32, dir [2]float64) [2]float32 {
	return [2]float32{float32(float64(radius) * dir[0]), float32(float64(radius) * dir[1])}
}
