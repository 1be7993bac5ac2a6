// wx/scan.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wx

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/mmp/sweep/util"

	"github.com/brunoga/deep"
)

// Scan is a single radar sweep on a polar grid. Azimuth holds ray bearings
// in degrees in rotational order; the last ray is adjacent to the first.
// Gates holds range-gate distances from the radar in meters and must be
// strictly increasing. Reflectivity is indexed [ray][gate] in dBZ, where
// values <= 0 mean no echo. The value at gate r colors the cell between
// gates r and r+1, so a row's value at the last gate is never drawn and
// may be omitted.
//
// A Scan is treated as immutable once it has been handed to the
// tessellator.
type Scan struct {
	Site         string      `json:"site,omitempty" msgpack:"site"`
	Elevation    float32     `json:"elevation,omitempty" msgpack:"elevation"`
	Time         time.Time   `json:"time,omitempty" msgpack:"time"`
	Azimuth      []float32   `json:"azimuth" msgpack:"azimuth"`
	Gates        []float32   `json:"gates" msgpack:"gates"`
	Reflectivity [][]float32 `json:"reflectivity" msgpack:"reflectivity"`
}

// ValidationError is returned when a scan's arrays don't have consistent
// shapes. Problems holds one message per issue found.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid scan: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid scan: %s (and %d more)", e.Problems[0], len(e.Problems)-1)
}

// NumRays returns the number of azimuth rays in the scan.
func (s *Scan) NumRays() int { return len(s.Azimuth) }

// NumGates returns the number of range gates along each ray.
func (s *Scan) NumGates() int { return len(s.Gates) }

// NumCells returns the number of renderable cells; a cell spans two
// adjacent gates and two adjacent rays, wrapping around at the last ray.
func (s *Scan) NumCells() int {
	return len(s.Azimuth) * s.cellsPerRay()
}

func (s *Scan) cellsPerRay() int {
	return max(0, len(s.Gates)-1)
}

// Validate checks that Reflectivity has one row per ray, each row has one
// value per gate or one per cell, and that the gates are strictly
// increasing. It returns
// a *ValidationError describing all problems found, or nil.
func (s *Scan) Validate() error {
	var e util.ErrorLogger
	if s.Site != "" {
		e.Push(s.Site)
		defer e.Pop()
	}

	if len(s.Reflectivity) != len(s.Azimuth) {
		e.ErrorString("%d reflectivity rows but %d azimuth rays", len(s.Reflectivity), len(s.Azimuth))
	}
	for i, row := range s.Reflectivity {
		if len(row) != len(s.Gates) && len(row) != s.cellsPerRay() {
			e.Push(fmt.Sprintf("ray %d", i))
			e.ErrorString("%d reflectivity values but %d gates", len(row), len(s.Gates))
			e.Pop()
		}
	}
	for i := 1; i < len(s.Gates); i++ {
		if !(s.Gates[i] > s.Gates[i-1]) {
			e.Push(fmt.Sprintf("gate %d", i))
			e.ErrorString("range %g m not greater than previous %g m", s.Gates[i], s.Gates[i-1])
			e.Pop()
		}
	}

	if e.HaveErrors() {
		return &ValidationError{Problems: e.Errors()}
	}
	return nil
}

// Clone returns a deep copy of the scan so that callers may keep
// modifying their own arrays after handing it off.
func (s *Scan) Clone() *Scan {
	return &Scan{
		Site:         s.Site,
		Elevation:    s.Elevation,
		Time:         s.Time,
		Azimuth:      deep.MustCopy(s.Azimuth),
		Gates:        deep.MustCopy(s.Gates),
		Reflectivity: deep.MustCopy(s.Reflectivity),
	}
}

func (s *Scan) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("site", s.Site),
		slog.Int("rays", len(s.Azimuth)),
		slog.Int("gates", len(s.Gates)),
		slog.Time("time", s.Time))
}
