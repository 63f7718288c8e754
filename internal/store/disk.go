package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/i474232898/forecast-accuracy/internal/logger"
	"github.com/i474232898/forecast-accuracy/internal/weather"
	"github.com/i474232898/forecast-accuracy/internal/weather/providers"
)

// DiskStore keeps raw provider payloads on disk, one immutable file per
// acquisition, and decodes them on load.
type DiskStore struct {
	paths *PathBuilder
}

func NewDiskStore(base string) *DiskStore {
	return &DiskStore{paths: NewPathBuilder(base)}
}

// NewDiskStoreWithPaths uses a caller-supplied path builder, e.g. one with a
// fixed clock.
func NewDiskStoreWithPaths(paths *PathBuilder) *DiskStore {
	return &DiskStore{paths: paths}
}

// Write stores one raw payload and returns its path and acquisition time.
// Existing snapshots are never overwritten.
func (s *DiskStore) Write(p weather.Provider, city string, payload []byte) (string, time.Time, error) {
	path, acquiredAt, err := s.paths.Build(p, city)
	if err != nil {
		return "", time.Time{}, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("create snapshot: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(path)
		return "", time.Time{}, fmt.Errorf("write snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", time.Time{}, fmt.Errorf("close snapshot: %w", err)
	}
	return path, acquiredAt, nil
}

// Load returns every forecast for city and provider that was acquired on
// referenceDate, ordered by acquisition time and offset. No matching data is
// not an error.
func (s *DiskStore) Load(city string, p weather.Provider, referenceDate time.Time) ([]weather.ForecastSnapshot, error) {
	log := logger.GetLogger()

	dir, err := s.paths.Dir(p, city)
	if err != nil {
		return nil, err
	}
	decoder, err := providers.NewDecoder(p)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}

	ref := weather.Day(referenceDate)
	var out []weather.ForecastSnapshot
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), SnapshotExt) {
			continue
		}
		acquiredAt, err := ParseSnapshotName(e.Name())
		if err != nil {
			log.Warnw("Skipping unrecognised snapshot file", "path", filepath.Join(dir, e.Name()), "error", err)
			continue
		}
		if !weather.Day(acquiredAt).Equal(ref) {
			continue
		}

		snaps, err := s.readSnapshot(filepath.Join(dir, e.Name()), decoder, city, acquiredAt)
		if err != nil {
			log.Warnw("Skipping unreadable snapshot", "path", filepath.Join(dir, e.Name()), "error", err)
			continue
		}
		out = append(out, snaps...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].AcquiredAt.Equal(out[j].AcquiredAt) {
			return out[i].AcquiredAt.Before(out[j].AcquiredAt)
		}
		return out[i].Offset < out[j].Offset
	})
	return out, nil
}

func (s *DiskStore) readSnapshot(path string, decoder weather.Decoder, city string, acquiredAt time.Time) ([]weather.ForecastSnapshot, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	days, err := decoder.Decode(payload)
	if err != nil {
		return nil, err
	}
	return ResolveDays(decoder.Provider(), city, acquiredAt, days), nil
}

// ResolveDays resolves decoded days into snapshots, dropping days whose
// offset is outside the evaluated range.
func ResolveDays(p weather.Provider, city string, acquiredAt time.Time, days []weather.ForecastDay) []weather.ForecastSnapshot {
	log := logger.GetLogger()

	out := make([]weather.ForecastSnapshot, 0, len(days))
	for _, d := range days {
		snap, err := weather.Resolve(p, city, acquiredAt, d)
		if err != nil {
			log.Debugw("Rejecting forecast day", "provider", p, "city", city, "error", err)
			continue
		}
		out = append(out, snap)
	}
	return out
}
