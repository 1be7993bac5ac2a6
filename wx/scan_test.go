package wx

import (
	"errors"
	gomath "math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestScanValidate(t *testing.T) {
	testCases := []struct {
		name     string
		scan     Scan
		problems int
	}{
		{"valid", Scan{
			Azimuth:      []float32{0, 90},
			Gates:        []float32{1000, 2000},
			Reflectivity: [][]float32{{1, 2}, {3, 4}},
		}, 0},
		{"empty", Scan{}, 0},
		{"row count", Scan{
			Azimuth:      []float32{0, 90, 180},
			Gates:        []float32{1000, 2000},
			Reflectivity: [][]float32{{1, 2}, {3, 4}},
		}, 1},
		{"row length", Scan{
			Azimuth:      []float32{0, 90},
			Gates:        []float32{1000, 2000},
			Reflectivity: [][]float32{{1, 2}, {}},
		}, 1},
		{"one value per cell", Scan{
			Azimuth:      []float32{0, 90, 180},
			Gates:        []float32{1000, 2000, 3000},
			Reflectivity: [][]float32{{1, 2}, {3, 4, 5}, {6, 7}},
		}, 0},
		{"gates", Scan{
			Azimuth:      []float32{0},
			Gates:        []float32{1000, 1000, 500},
			Reflectivity: [][]float32{{1, 2, 3}},
		}, 2},
		{"nan gate", Scan{
			Azimuth:      []float32{0},
			Gates:        []float32{1000, float32(gomath.NaN()), 3000},
			Reflectivity: [][]float32{{1, 2, 3}},
		}, 2},
	}

	for _, tc := range testCases {
		err := tc.scan.Validate()
		if tc.problems == 0 {
			if err != nil {
				t.Errorf("%s: unexpected error %v", tc.name, err)
			}
			continue
		}

		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%s: expected *ValidationError, got %v", tc.name, err)
		} else if len(ve.Problems) != tc.problems {
			t.Errorf("%s: got %d problems (%v), expected %d", tc.name, len(ve.Problems), ve.Problems, tc.problems)
		}
	}
}

func TestScanCells(t *testing.T) {
	s := Scan{Azimuth: make([]float32, 360), Gates: make([]float32, 100)}
	if n := s.NumCells(); n != 360*99 {
		t.Errorf("NumCells = %d, expected %d", n, 360*99)
	}
	s.Gates = s.Gates[:1]
	if n := s.NumCells(); n != 0 {
		t.Errorf("NumCells with one gate = %d, expected 0", n)
	}
}

func TestScanClone(t *testing.T) {
	s := &Scan{
		Site:         "KTLX",
		Time:         time.Date(2024, 5, 6, 23, 0, 0, 0, time.UTC),
		Azimuth:      []float32{0, 90},
		Gates:        []float32{1000, 2000},
		Reflectivity: [][]float32{{1, 2}, {3, 4}},
	}
	c := s.Clone()
	s.Reflectivity[0][0] = 50
	s.Azimuth[1] = 45

	if c.Reflectivity[0][0] != 1 || c.Azimuth[1] != 90 {
		t.Errorf("clone shares storage with original: %+v", c)
	}
	if c.Site != "KTLX" || !c.Time.Equal(s.Time) {
		t.Errorf("clone metadata mismatch: %+v", c)
	}
}

func testScan() *Scan {
	return &Scan{
		Site:         "KLOT",
		Elevation:    0.5,
		Time:         time.Date(2023, 7, 12, 18, 30, 0, 0, time.UTC),
		Azimuth:      []float32{0, 90, 180, 270},
		Gates:        []float32{2125, 2375, 2625},
		Reflectivity: [][]float32{{5, 12}, {17, -1}, {0, 40}, {27, 32}},
	}
}

func checkScansEqual(t *testing.T, got, want *Scan) {
	t.Helper()
	if got.Site != want.Site || got.Elevation != want.Elevation || !got.Time.Equal(want.Time) {
		t.Errorf("metadata mismatch: got %+v, want %+v", got, want)
	}
	if len(got.Azimuth) != len(want.Azimuth) || len(got.Gates) != len(want.Gates) ||
		len(got.Reflectivity) != len(want.Reflectivity) {
		t.Fatalf("shape mismatch: got %+v, want %+v", got, want)
	}
	for i := range want.Azimuth {
		if got.Azimuth[i] != want.Azimuth[i] {
			t.Errorf("azimuth %d: got %f, want %f", i, got.Azimuth[i], want.Azimuth[i])
		}
	}
	for i := range want.Gates {
		if got.Gates[i] != want.Gates[i] {
			t.Errorf("gate %d: got %f, want %f", i, got.Gates[i], want.Gates[i])
		}
	}
	for a := range want.Reflectivity {
		for r := range want.Reflectivity[a] {
			if got.Reflectivity[a][r] != want.Reflectivity[a][r] {
				t.Errorf("reflectivity [%d][%d]: got %f, want %f", a, r, got.Reflectivity[a][r], want.Reflectivity[a][r])
			}
		}
	}
}

func TestLoadScanJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.json")
	js := `{"azimuth": [0, 90, 180, 270], "gates": [2125, 2375, 2625],
  "reflectivity": [[5, 12], [17, -1], [0, 40], [27, 32]]}`
	if err := os.WriteFile(path, []byte(js), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadScan(path)
	if err != nil {
		t.Fatalf("LoadScan: %v", err)
	}
	want := testScan()
	want.Site, want.Elevation, want.Time = "", 0, time.Time{}
	checkScansEqual(t, s, want)
}

func TestLoadScanJSONErrors(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{\n  \"azimuth\": [0, 90,\n}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadScan(bad); err == nil {
		t.Errorf("expected syntax error")
	} else if !strings.Contains(err.Error(), "line 3") {
		t.Errorf("expected error to report line 3: %v", err)
	}

	mismatch := filepath.Join(dir, "mismatch.json")
	if err := os.WriteFile(mismatch, []byte(`{"azimuth": [0, 90], "gates": [1, 2], "reflectivity": [[1, 2]]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	var ve *ValidationError
	if _, err := LoadScan(mismatch); !errors.As(err, &ve) {
		t.Errorf("expected *ValidationError, got %v", err)
	}

	if _, err := LoadScan(filepath.Join(dir, "missing.json")); err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestLoadScanArchive(t *testing.T) {
	want := testScan()
	b, err := EncodeScanArchive(want)
	if err != nil {
		t.Fatalf("EncodeScanArchive: %v", err)
	}

	path := filepath.Join(t.TempDir(), "KLOT"+ScanArchiveSuffix)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadScan(path)
	if err != nil {
		t.Fatalf("LoadScan: %v", err)
	}
	checkScansEqual(t, s, want)

	// Not zstd.
	if err := os.WriteFile(path, []byte("not compressed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadScan(path); err == nil {
		t.Errorf("expected error decoding garbage archive")
	}
}

func TestScanCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan"+ScanArchiveSuffix)
	b, err := EncodeScanArchive(testScan())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewScanCache(4, time.Hour, nil)
	s0, err := c.Get(path)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	s1, err := c.Get(path)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s0 != s1 {
		t.Errorf("expected cached scan to be returned")
	}
	if c.Len() != 1 {
		t.Errorf("cache length %d, expected 1", c.Len())
	}

	// Rewrite the file with a different scan; the cache should notice.
	s2 := testScan()
	s2.Site = "KDVN"
	s2.Reflectivity = append(s2.Reflectivity, []float32{1, 1})
	s2.Azimuth = append(s2.Azimuth, 315)
	if b, err = EncodeScanArchive(s2); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatal(err)
	}
	s3, err := c.Get(path)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s3.Site != "KDVN" {
		t.Errorf("stale scan returned from cache: %s", s3.Site)
	}

	if _, err := c.Get(filepath.Join(dir, "nope.json")); err == nil {
		t.Errorf("expected error for missing file")
	}
}
