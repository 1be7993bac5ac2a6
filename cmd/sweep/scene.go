// cmd/sweep/scene.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mmp/sweep/camera"
	"github.com/mmp/sweep/layers"
	"github.com/mmp/sweep/log"
	"github.com/mmp/sweep/renderer"
	"github.com/mmp/sweep/util"
	"github.com/mmp/sweep/wx"
)

var scanCache *wx.ScanCache

func init() {
	scanCache = wx.NewScanCache(8, 30*time.Minute, nil)
}

// BuildScene loads the configured scan and returns a scene with the
// configured layers. The layers' device resources aren't created until
// the scene is prepared.
func BuildScene(config *Config, lg *log.Logger) (*layers.Scene, error) {
	var e util.ErrorLogger
	config.Check(&e)
	if e.HaveErrors() {
		return nil, fmt.Errorf("invalid configuration:\n%s", e.String())
	}

	scene := layers.NewScene(lg)
	scene.ClearColor = renderer.RGBFromHex(config.ClearColor).WithAlpha(0)

	if len(config.Layers) > 0 {
		var scan *wx.Scan
		if _, err := util.TimeItErr(lg, "load scan", func() error {
			var err error
			scan, err = scanCache.Get(config.ScanPath)
			return err
		}); err != nil {
			return nil, err
		}
		lg.Info("loaded scan", slog.Any("scan", scan))

		for _, l := range config.Layers {
			// Already checked above.
			rc, _ := l.ReflectivityConfig()
			scene.Add(layers.NewReflectivityLayer(scan, rc, lg))
		}
	}
	if config.ShowTriangle {
		scene.Add(layers.NewTriangleLayer(lg))
	}

	return scene, nil
}

// RunHeadless prepares the scene with a renderer that doesn't need a GPU
// and draws the given number of frames, returning the accumulated
// statistics.
func RunHeadless(scene *layers.Scene, size [2]int, frames int, lg *log.Logger) (renderer.RendererStats, error) {
	r := renderer.NewHeadlessRenderer(lg)
	defer r.Dispose()
	defer scene.Dispose()

	var stats renderer.RendererStats
	if _, err := util.TimeItErr(lg, "prepare", func() error { return scene.Prepare(r) }); err != nil {
		return stats, err
	}

	cam := camera.New(lg)
	cam.Resize(size[0], size[1])
	scene.Resize(size[0], size[1])

	util.TimeIt(lg, "draw", func() {
		for range frames {
			cb := renderer.GetCommandBuffer()
			scene.Draw(cam.Frame(), cb)
			stats.Merge(r.RenderCommandBuffer(cb))
			renderer.ReturnCommandBuffer(cb)
		}
	})

	if len(r.Errors) > 0 {
		return stats, fmt.Errorf("%d rendering errors; first: %s", len(r.Errors), r.Errors[0])
	}
	return stats, nil
}

// WriteArchive writes the scan at scanPath to archivePath in the
// compressed msgpack format that LoadScan reads from .msgpack.zst files.
func WriteArchive(scanPath, archivePath string, lg *log.Logger) error {
	scan, err := scanCache.Get(scanPath)
	if err != nil {
		return err
	}
	b, err := wx.EncodeScanArchive(scan)
	if err != nil {
		return err
	}
	if err := os.WriteFile(archivePath, b, 0o644); err != nil {
		return err
	}
	lg.Info("wrote scan archive", slog.String("path", archivePath), slog.Int("bytes", len(b)))
	return nil
}
