// wx/cache.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package wx

import (
	"log/slog"
	"os"
	"time"

	"github.com/mmp/sweep/log"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type cachedScan struct {
	scan    *Scan
	modTime time.Time
	size    int64
}

// ScanCache holds recently loaded scans so that switching back and forth
// between files doesn't require decoding them again. Entries are keyed by
// path and are reloaded if the file has changed since it was cached.
type ScanCache struct {
	lru *expirable.LRU[string, cachedScan]
	lg  *log.Logger
}

func NewScanCache(size int, ttl time.Duration, lg *log.Logger) *ScanCache {
	return &ScanCache{
		lru: expirable.NewLRU[string, cachedScan](size, nil, ttl),
		lg:  lg,
	}
}

// Get returns the scan stored at path, loading it with LoadScan if it
// isn't cached or is stale. Callers must not modify the returned scan.
func (c *ScanCache) Get(path string) (*Scan, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if cs, ok := c.lru.Get(path); ok && cs.modTime.Equal(fi.ModTime()) && cs.size == fi.Size() {
		c.lg.Debug("scan cache hit", slog.String("path", path))
		return cs.scan, nil
	}

	s, err := LoadScan(path)
	if err != nil {
		return nil, err
	}
	c.lg.Info("loaded scan", slog.String("path", path), slog.Any("scan", s))

	c.lru.Add(path, cachedScan{scan: s, modTime: fi.ModTime(), size: fi.Size()})
	return s, nil
}

func (c *ScanCache) Len() int {
	return c.lru.Len()
}
