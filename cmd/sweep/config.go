// cmd/sweep/config.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mmp/sweep/layers"
	"github.com/mmp/sweep/log"
	"github.com/mmp/sweep/platform"
	"github.com/mmp/sweep/radar"
	"github.com/mmp/sweep/renderer"
	"github.com/mmp/sweep/util"

	"gopkg.in/yaml.v3"
)

type Config struct {
	platform.Config `yaml:",inline"`

	LogLevel string `yaml:"log_level"`
	LogDir   string `yaml:"log_dir"`

	// ScanPath is a JSON or .msgpack.zst scan file.
	ScanPath string `yaml:"scan_path"`
	// ClearColor is packed as 0xRRGGBB.
	ClearColor   int           `yaml:"clear_color"`
	ShowTriangle bool          `yaml:"show_triangle"`
	Layers       []LayerConfig `yaml:"layers"`

	path string
}

// LayerConfig describes a reflectivity layer; the string-valued fields
// take the names printed by the corresponding types' String methods.
type LayerConfig struct {
	Precision  string `yaml:"precision"`
	Color      string `yaml:"color"`
	Upload     string `yaml:"upload"`
	Indexed    bool   `yaml:"indexed"`
	Components int    `yaml:"components"`
	Workers    int    `yaml:"workers"`

	// Optional paths to shader source files.
	VertexShader   string `yaml:"vertex_shader"`
	FragmentShader string `yaml:"fragment_shader"`
}

func MakeDefaultConfig() *Config {
	return &Config{
		Config: platform.Config{
			EnableMSAA:  true,
			EnableVSync: true,
		},
		LogLevel: "info",
		Layers:   []LayerConfig{{Precision: "full", Color: "gpu", Upload: "static"}},
	}
}

func configFilePath(lg *log.Logger) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		lg.Errorf("Unable to find user config dir: %v", err)
		dir = "."
	}

	dir = filepath.Join(dir, "Sweep")
	err = os.MkdirAll(dir, 0o700)
	if err != nil {
		lg.Errorf("%s: unable to make directory for config file: %v", dir, err)
	}

	return filepath.Join(dir, "config.json")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadOrMakeDefaultConfig reads the configuration from the given path or,
// if it's empty, from the user's config directory. The default
// configuration is returned if the file doesn't exist.
func LoadOrMakeDefaultConfig(path string, lg *log.Logger) (*Config, error) {
	if path == "" {
		path = configFilePath(lg)
	}

	config := MakeDefaultConfig()
	config.path = path

	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		lg.Infof("%s: no config file found; using defaults", path)
		return config, nil
	} else if err != nil {
		return config, err
	}

	lg.Infof("Loading config from: %s", path)
	if isYAML(path) {
		err = yaml.Unmarshal(b, config)
	} else {
		err = util.UnmarshalJSONBytes(b, config)
	}
	if err != nil {
		return MakeDefaultConfig(), fmt.Errorf("%s: %w", path, err)
	}
	config.path = path

	return config, nil
}

func (c *Config) Save(lg *log.Logger) error {
	if c.path == "" {
		c.path = configFilePath(lg)
	}
	lg.Infof("Saving config to: %s", c.path)

	var b []byte
	var err error
	if isYAML(c.path) {
		b, err = yaml.Marshal(c)
	} else {
		b, err = json.MarshalIndent(c, "", "    ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, b, 0o600)
}

// Check reports problems with the configuration that would prevent the
// scene from being built.
func (c *Config) Check(e *util.ErrorLogger) {
	if c.ScanPath == "" {
		e.ErrorString("no scan file specified")
	}
	if len(c.Layers) == 0 && !c.ShowTriangle {
		e.ErrorString("no layers specified")
	}
	for i, l := range c.Layers {
		e.Push(fmt.Sprintf("layer %d", i))
		if _, err := l.ReflectivityConfig(); err != nil {
			e.Error(err)
		}
		e.Pop()
	}
}

func parsePrecision(s string) (radar.Precision, error) {
	switch strings.ToLower(s) {
	case "", "full":
		return radar.FullPrecision, nil
	case "half":
		return radar.HalfPrecision, nil
	default:
		return 0, fmt.Errorf("%q: unknown precision; expected \"full\" or \"half\"", s)
	}
}

func parseColor(s string) (radar.ColorStrategy, error) {
	switch strings.ToLower(s) {
	case "", "gpu":
		return radar.GPUColor, nil
	case "host":
		return radar.HostColor, nil
	default:
		return 0, fmt.Errorf("%q: unknown color strategy; expected \"gpu\" or \"host\"", s)
	}
}

func parseUpload(s string) (renderer.UploadPolicy, error) {
	switch strings.ToLower(s) {
	case "", "static":
		return renderer.UploadStatic, nil
	case "streamed":
		return renderer.UploadStreamed, nil
	default:
		return 0, fmt.Errorf("%q: unknown upload policy; expected \"static\" or \"streamed\"", s)
	}
}

// ReflectivityConfig returns the layer configuration described by l,
// reading any shader files that it names.
func (l LayerConfig) ReflectivityConfig() (layers.ReflectivityConfig, error) {
	var rc layers.ReflectivityConfig
	var err error

	if rc.Tessellation.Precision, err = parsePrecision(l.Precision); err != nil {
		return rc, err
	}
	if rc.Tessellation.Color, err = parseColor(l.Color); err != nil {
		return rc, err
	}
	if rc.Upload, err = parseUpload(l.Upload); err != nil {
		return rc, err
	}
	if l.Components != 0 && l.Components != 2 && l.Components != 3 {
		return rc, fmt.Errorf("%d: position components must be 2 or 3", l.Components)
	}
	rc.Tessellation.Components = l.Components
	rc.Tessellation.Indexed = l.Indexed
	rc.Tessellation.Workers = l.Workers

	if l.VertexShader != "" {
		b, err := os.ReadFile(l.VertexShader)
		if err != nil {
			return rc, err
		}
		rc.VertexShader = string(b)
	}
	if l.FragmentShader != "" {
		b, err := os.ReadFile(l.FragmentShader)
		if err != nil {
			return rc, err
		}
		rc.FragmentShader = string(b)
	}

	return rc, nil
}
