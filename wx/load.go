// wx/load.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wx

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mmp/sweep/util"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// ScanArchiveSuffix is the filename suffix for msgpack-encoded scans
// compressed with zstd.
const ScanArchiveSuffix = ".msgpack.zst"

// LoadScan reads a scan from the given file. Files ending in
// ScanArchiveSuffix are decoded as compressed msgpack; anything else is
// parsed as JSON of the form
//
//	{"azimuth": [...], "gates": [...], "reflectivity": [[...], ...]}
//
// The scan is validated after it's decoded.
func LoadScan(path string) (*Scan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var s *Scan
	if strings.HasSuffix(path, ScanArchiveSuffix) {
		s, err = DecodeScanArchive(f)
	} else {
		s, err = DecodeScanJSON(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// DecodeScanJSON decodes a JSON-encoded scan. Syntax errors report the
// line and character where they occurred.
func DecodeScanJSON(r io.Reader) (*Scan, error) {
	var s Scan
	if err := util.UnmarshalJSON(r, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// DecodeScanArchive decodes a scan stored as zstd-compressed msgpack.
func DecodeScanArchive(r io.Reader) (*Scan, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	var s Scan
	if err := msgpack.NewDecoder(zr).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode scan: %w", err)
	}
	return &s, nil
}

// EncodeScanArchive returns the compressed msgpack encoding of the scan;
// it's the inverse of DecodeScanArchive and is used to prepare test
// fixtures and bundled sample data.
func EncodeScanArchive(s *Scan) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}

	if err := msgpack.NewEncoder(zw).Encode(s); err != nil {
		zw.Close()
		return nil, fmt.Errorf("failed to encode scan: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zstd writer: %w", err)
	}
	return buf.Bytes(), nil
}
