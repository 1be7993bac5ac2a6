// util/sync.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"log/slog"
	gomath "math"
	"runtime"
	"sync"
	"time"

	"github.com/mmp/sweep/log"

	"github.com/shirou/gopsutil/v3/cpu"
)

var heldMutexesMutex sync.Mutex
var heldMutexes map[*LoggingMutex]interface{} = make(map[*LoggingMutex]interface{})

// LoggingMutex is a sync.Mutex that logs acquisition and release at debug
// level and reports mutexes that are held or waited on for too long.
// Streamed reflectivity layers guard their pending scan with one: SetScan
// may be called from any goroutine while the render thread draws.
type LoggingMutex struct {
	sync.Mutex

	// infoMu guards acq and acqStack, which are read by LogValue from
	// goroutines that don't hold the mutex.
	infoMu   sync.Mutex
	acq      time.Time
	acqStack []log.StackFrame
}

func (l *LoggingMutex) Lock(lg *log.Logger) {
	tryTime := time.Now()

	if !l.Mutex.TryLock() {
		locked := make(chan struct{}, 1)

		go func() {
			l.Mutex.Lock()
			locked <- struct{}{}
		}()

		select {
		case <-locked:

		case <-time.After(10 * time.Second):
			heldMutexesMutex.Lock()
			lg.Error("unable to acquire mutex after 10 seconds", slog.Any("mutex", l),
				slog.Int("held_mutexes", len(heldMutexes)))
			heldMutexesMutex.Unlock()

			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			cpuPct := 0
			if usage, err := cpu.Percent(time.Second, false); err == nil && len(usage) > 0 {
				cpuPct = int(gomath.Round(usage[0]))
			}

			lg.Errorf("CPU: %d%% alloc: %dMB total alloc: %dMB sys mem: %dMB goroutines: %d",
				cpuPct, m.Alloc/(1024*1024), m.TotalAlloc/(1024*1024), m.Sys/(1024*1024),
				runtime.NumGoroutine())

			<-locked
		}
	}

	heldMutexesMutex.Lock()
	heldMutexes[l] = nil
	heldMutexesMutex.Unlock()

	acq := time.Now()
	stack := log.Callstack(nil)
	l.infoMu.Lock()
	l.acq, l.acqStack = acq, stack
	l.infoMu.Unlock()

	w := acq.Sub(tryTime)
	lg.Debug("acquired mutex", slog.Any("mutex", l), slog.Duration("wait", w))
	if w > time.Second {
		lg.Warn("long wait to acquire mutex", slog.Any("mutex", l), slog.Duration("wait", w))
	}
}

func (l *LoggingMutex) Unlock(lg *log.Logger) {
	heldMutexesMutex.Lock()
	defer heldMutexesMutex.Unlock()

	if _, ok := heldMutexes[l]; !ok {
		lg.Error("mutex not held", slog.Any("mutex", l))
	}
	delete(heldMutexes, l)

	acq, _ := l.acquired()
	if d := time.Since(acq); d > time.Second {
		lg.Warn("mutex held for over 1 second", slog.Any("mutex", l), slog.Duration("held", d))
	}

	l.infoMu.Lock()
	l.acq, l.acqStack = time.Time{}, nil
	l.infoMu.Unlock()
	l.Mutex.Unlock()
}

// acquired returns when the mutex was last acquired and the callstack at
// that point; both are zero if it isn't held.
func (l *LoggingMutex) acquired() (time.Time, []log.StackFrame) {
	l.infoMu.Lock()
	defer l.infoMu.Unlock()
	return l.acq, l.acqStack
}

func (l *LoggingMutex) LogValue() slog.Value {
	acq, stack := l.acquired()
	if acq.IsZero() {
		return slog.GroupValue(slog.Bool("held", false))
	}
	return slog.GroupValue(
		slog.Time("acq", acq),
		slog.Duration("held", time.Since(acq)),
		slog.Any("acq_stack", stack))
}
