// camera/fps.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package camera

import "time"

// FPSCounter counts frames in one second windows and reports the count
// at the end of each window.
type FPSCounter struct {
	Listener func(fps int)

	start  time.Time
	frames int
}

func NewFPSCounter(listener func(fps int)) *FPSCounter {
	return &FPSCounter{Listener: listener}
}

// Tick records a frame drawn at the given time. The first call starts
// the first window.
func (f *FPSCounter) Tick(now time.Time) {
	if f.start.IsZero() {
		f.start = now
	}

	f.frames++
	if now.Sub(f.start) >= time.Second {
		if f.Listener != nil {
			f.Listener(f.frames)
		}
		f.frames = 0
		f.start = now
	}
}
