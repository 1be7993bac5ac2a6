// cmd/sweep/main.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

// This file contains the implementation of the main() function, which
// loads the configuration and the scan, and then either draws the scan
// in a window until it's closed or draws a number of frames headlessly.

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/mmp/sweep/camera"
	"github.com/mmp/sweep/layers"
	"github.com/mmp/sweep/log"
	"github.com/mmp/sweep/platform"
	"github.com/mmp/sweep/renderer"
	"github.com/mmp/sweep/util"
)

var (
	cpuprofile = flag.String("cpuprofile", "", "write CPU profile to file")
	memprofile = flag.String("memprofile", "", "write memory profile to this file")
	logLevel   = flag.String("loglevel", "", "logging level: debug, info, warn, error")
	logDir     = flag.String("logdir", "", "log file directory")
	configPath = flag.String("config", "", "configuration file (JSON, or YAML if it ends in .yaml or .yml)")
	scanPath   = flag.String("scan", "", "scan file to display (JSON or .msgpack.zst)")
	headless   = flag.Bool("headless", false, "draw without a window and print rendering statistics")
	frames     = flag.Int("frames", 60, "number of frames to draw in headless mode")
	triangle   = flag.Bool("triangle", false, "also draw the calibration triangle")
	archive    = flag.String("archive", "", "write the scan to this .msgpack.zst file and exit")

	// These override the settings of all configured layers.
	precision = flag.String("precision", "", "vertex precision: full or half")
	color     = flag.String("color", "", "color strategy: gpu or host")
	upload    = flag.String("upload", "", "upload policy: static or streamed")
	indexed   = flag.Bool("indexed", false, "use indexed geometry")
	workers   = flag.Int("workers", 0, "number of goroutines to tessellate with")
)

func init() {
	// OpenGL and GLFW require that all calls be made from the main
	// thread.
	runtime.LockOSThread()
}

// applyFlags overrides the configuration with any command-line options
// that were given.
func applyFlags(config *Config) {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if *scanPath != "" {
		config.ScanPath = *scanPath
	}
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}
	if *logDir != "" {
		config.LogDir = *logDir
	}
	if set["triangle"] {
		config.ShowTriangle = *triangle
	}
	for i := range config.Layers {
		l := &config.Layers[i]
		if set["precision"] {
			l.Precision = *precision
		}
		if set["color"] {
			l.Color = *color
		}
		if set["upload"] {
			l.Upload = *upload
		}
		if set["indexed"] {
			l.Indexed = *indexed
		}
		if set["workers"] {
			l.Workers = *workers
		}
	}
}

func main() {
	flag.Parse()

	// The log isn't available until the configuration has been read, so
	// configuration errors go to stderr.
	config, configErr := LoadOrMakeDefaultConfig(*configPath, nil)
	applyFlags(config)

	lg := log.New(config.LogLevel, config.LogDir)
	defer lg.CatchAndReportCrash()

	if configErr != nil {
		fmt.Fprintf(os.Stderr, "%v\n", configErr)
		lg.Errorf("%v", configErr)
	}

	profiler, err := util.CreateProfiler(*cpuprofile, *memprofile)
	if err != nil {
		lg.Errorf("%v", err)
	}
	defer profiler.Cleanup()

	if *archive != "" {
		if err := WriteArchive(config.ScanPath, *archive, lg); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			lg.Errorf("%v", err)
			os.Exit(1)
		}
		return
	}

	scene, err := BuildScene(config, lg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		lg.Errorf("%v", err)
		os.Exit(1)
	}

	if *headless {
		size := config.InitialWindowSize
		if size[0] == 0 || size[1] == 0 {
			size = [2]int{1280, 960}
		}
		stats, err := RunHeadless(scene, size, *frames, lg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%d frames: %s\n", *frames, stats.String())
		return
	}

	if err := runWindowed(config, scene, lg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		lg.Errorf("%v", err)
		os.Exit(1)
	}
}

func runWindowed(config *Config, scene *layers.Scene, lg *log.Logger) error {
	cam := camera.New(lg)

	plat, err := platform.New(&config.Config, cam, lg)
	if err != nil {
		return err
	}
	defer plat.Dispose()

	r, err := renderer.NewOpenGL41Renderer(lg)
	if err != nil {
		return err
	}
	defer r.Dispose()

	fps := camera.NewFPSCounter(func(fps int) {
		plat.SetWindowTitle(fmt.Sprintf("%s: %d fps", config.Title, fps))
		lg.Debug("frame rate", slog.Int("fps", fps))
	})

	if err := plat.Run(scene, r, fps); err != nil {
		return err
	}

	config.InitialWindowSize = plat.WindowSize()
	config.InitialWindowPosition = plat.WindowPosition()
	if err := config.Save(lg); err != nil {
		lg.Errorf("Unable to save config: %v", err)
	}

	return nil
}
