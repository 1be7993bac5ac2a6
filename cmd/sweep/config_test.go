package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mmp/sweep/layers"
	"github.com/mmp/sweep/radar"
	"github.com/mmp/sweep/renderer"
	"github.com/mmp/sweep/util"
	"github.com/mmp/sweep/wx"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const fourRayScanJSON = `{
    "azimuth": [0, 90, 180, 270],
    "gates": [1000, 2000],
    "reflectivity": [[20], [0], [20], [20]]
}
`

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	config, err := LoadOrMakeDefaultConfig(filepath.Join(dir, "missing.json"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(config.Layers) != 1 || !config.EnableVSync {
		t.Errorf("unexpected default config %+v", config)
	}

	jsonPath := writeFile(t, dir, "config.json", `{
    "ScanPath": "scan.json",
    "ClearColor": 1193046,
    "InitialWindowSize": [800, 600],
    "Layers": [
        { "Precision": "half", "Color": "host", "Upload": "streamed", "Indexed": true, "Workers": 4 }
    ]
}`)
	yamlPath := writeFile(t, dir, "config.yaml", `
scan_path: scan.json
clear_color: 0x123456
initial_window_size: [800, 600]
layers:
  - precision: half
    color: host
    upload: streamed
    indexed: true
    workers: 4
`)

	for _, path := range []string{jsonPath, yamlPath} {
		config, err := LoadOrMakeDefaultConfig(path, nil)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if config.ScanPath != "scan.json" || config.ClearColor != 0x123456 || config.InitialWindowSize != [2]int{800, 600} {
			t.Errorf("%s: unexpected config %+v", path, config)
		}
		if len(config.Layers) != 1 {
			t.Fatalf("%s: %d layers", path, len(config.Layers))
		}
		rc, err := config.Layers[0].ReflectivityConfig()
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		expected := layers.ReflectivityConfig{
			Tessellation: radar.Options{Precision: radar.HalfPrecision, Color: radar.HostColor, Indexed: true, Workers: 4},
			Upload:       renderer.UploadStreamed,
		}
		if rc != expected {
			t.Errorf("%s: got %+v, expected %+v", path, rc, expected)
		}
	}

	badPath := writeFile(t, dir, "bad.json", "{\n    \"ScanPath\": \"scan.json\",\n    \"Layers\": [\n}\n")
	if _, err := LoadOrMakeDefaultConfig(badPath, nil); err == nil || !strings.Contains(err.Error(), "line 4") {
		t.Errorf("expected an error at line 4, got %v", err)
	}
}

func TestConfigSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"saved.json", "saved.yaml"} {
		config := MakeDefaultConfig()
		config.path = filepath.Join(dir, name)
		config.ScanPath = "radar.msgpack.zst"
		config.InitialWindowPosition = [2]int{20, 30}
		config.Layers[0].Indexed = true
		if err := config.Save(nil); err != nil {
			t.Fatal(err)
		}

		loaded, err := LoadOrMakeDefaultConfig(config.path, nil)
		if err != nil {
			t.Fatal(err)
		}
		if loaded.ScanPath != config.ScanPath || loaded.InitialWindowPosition != config.InitialWindowPosition ||
			len(loaded.Layers) != 1 || !loaded.Layers[0].Indexed {
			t.Errorf("%s: got %+v, expected %+v", name, loaded, config)
		}
	}
}

func TestConfigCheck(t *testing.T) {
	config := &Config{
		Layers: []LayerConfig{
			{Precision: "double"},
			{Color: "cpu"},
			{Upload: "dynamic"},
			{Components: 4},
			{VertexShader: "/nonexistent/shader.vert"},
			{},
		},
	}
	var e util.ErrorLogger
	config.Check(&e)
	errs := e.Errors()
	if len(errs) != 6 {
		t.Fatalf("got %d errors, expected 6: %v", len(errs), errs)
	}
	if errs[0] != "no scan file specified" {
		t.Errorf("unexpected first error %q", errs[0])
	}
	for i, err := range errs[1:] {
		if !strings.HasPrefix(err, "layer "+string(rune('0'+i))+": ") {
			t.Errorf("%q: expected layer %d prefix", err, i)
		}
	}
}

func TestBuildSceneHeadless(t *testing.T) {
	dir := t.TempDir()
	scanPath := writeFile(t, dir, "scan.json", fourRayScanJSON)

	config := MakeDefaultConfig()
	config.ScanPath = scanPath
	config.ShowTriangle = true
	config.Layers = []LayerConfig{
		{Precision: "full", Color: "gpu", Upload: "static"},
		{Precision: "half", Color: "host", Upload: "streamed", Indexed: true, Workers: 2},
	}

	scene, err := BuildScene(config, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(scene.Layers()) != 3 {
		t.Fatalf("%d layers, expected 3", len(scene.Layers()))
	}

	stats, err := RunHeadless(scene, [2]int{640, 480}, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if stats.DrawCalls != 15 {
		t.Errorf("%d draw calls, expected 15", stats.DrawCalls)
	}
	if stats.Vertices != 5*(18+18+3) {
		t.Errorf("%d vertices, expected %d", stats.Vertices, 5*(18+18+3))
	}
	if stats.StreamedBytes == 0 {
		t.Errorf("no bytes streamed for the streamed layers")
	}
}

func TestBuildSceneErrors(t *testing.T) {
	dir := t.TempDir()

	config := MakeDefaultConfig()
	config.ScanPath = filepath.Join(dir, "missing.json")
	if _, err := BuildScene(config, nil); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected a not-exist error, got %v", err)
	}

	config.ScanPath = writeFile(t, dir, "bad.json", `{"azimuth": [0, 90], "gates": [1000, 2000], "reflectivity": [[20]]}`)
	var verr *wx.ValidationError
	if _, err := BuildScene(config, nil); !errors.As(err, &verr) {
		t.Errorf("expected a *wx.ValidationError, got %v", err)
	}

	config.ScanPath = ""
	if _, err := BuildScene(config, nil); err == nil {
		t.Errorf("expected an error without a scan path")
	}

	// A shader that fails to link surfaces from RunHeadless.
	config.ScanPath = writeFile(t, dir, "scan.json", fourRayScanJSON)
	config.Layers[0].FragmentShader = writeFile(t, dir, "bad.frag", "in vec4 v_Other;\nout vec4 c;\nvoid main() { c = v_Other; }\n")
	scene, err := BuildScene(config, nil)
	if err != nil {
		t.Fatal(err)
	}
	var lerr *renderer.LinkError
	if _, err := RunHeadless(scene, [2]int{100, 100}, 1, nil); !errors.As(err, &lerr) {
		t.Errorf("expected a *renderer.LinkError, got %v", err)
	}
}

func TestWriteArchive(t *testing.T) {
	dir := t.TempDir()
	scanPath := writeFile(t, dir, "scan.json", fourRayScanJSON)
	archivePath := filepath.Join(dir, "scan.msgpack.zst")

	if err := WriteArchive(scanPath, archivePath, nil); err != nil {
		t.Fatal(err)
	}

	scan, err := wx.LoadScan(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	if scan.NumRays() != 4 || scan.NumGates() != 2 || scan.NumCells() != 4 {
		t.Errorf("archived scan has %d rays, %d gates, %d cells; expected 4, 2, 4",
			scan.NumRays(), scan.NumGates(), scan.NumCells())
	}

	if err := WriteArchive(filepath.Join(dir, "missing.json"), archivePath, nil); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected a not-exist error, got %v", err)
	}
}
