package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/forecast-accuracy/internal/weather"
)

// SnapshotExt is the file extension of stored forecast payloads.
const SnapshotExt = ".forecast"

// PathBuilder lays out snapshot files as <base>/<city>/<provider>/<stamp>.forecast,
// where <stamp> is the UTC acquisition time as epoch seconds and microseconds
// joined by "s". Two acquisitions for the same city and provider within the
// same microsecond map to the same path.
type PathBuilder struct {
	Base string
	Now  func() time.Time
}

func NewPathBuilder(base string) *PathBuilder {
	return &PathBuilder{Base: base, Now: time.Now}
}

// Dir returns the directory holding the snapshots of one city and provider.
func (b *PathBuilder) Dir(p weather.Provider, city string) (string, error) {
	name, err := cityDir(city)
	if err != nil {
		return "", err
	}
	return filepath.Join(b.Base, name, string(p)), nil
}

// Build creates the snapshot directory if needed and returns the path for a
// snapshot acquired now, together with the acquisition time it encodes.
func (b *PathBuilder) Build(p weather.Provider, city string) (string, time.Time, error) {
	dir, err := b.Dir(p, city)
	if err != nil {
		return "", time.Time{}, err
	}
	// MkdirAll succeeds when another worker created the directory first.
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", time.Time{}, fmt.Errorf("create snapshot dir: %w", err)
	}

	now := b.Now().UTC().Truncate(time.Microsecond)
	return filepath.Join(dir, SnapshotName(now)), now, nil
}

// SnapshotName renders the file name for an acquisition time.
func SnapshotName(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%ds%06d%s", t.Unix(), t.Nanosecond()/int(time.Microsecond), SnapshotExt)
}

// ParseSnapshotName recovers the acquisition time from a snapshot file name.
func ParseSnapshotName(name string) (time.Time, error) {
	stem, ok := strings.CutSuffix(filepath.Base(name), SnapshotExt)
	if !ok {
		return time.Time{}, fmt.Errorf("%q is not a snapshot file", name)
	}
	secStr, fracStr, ok := strings.Cut(stem, "s")
	if !ok {
		return time.Time{}, fmt.Errorf("%q: missing seconds separator", name)
	}
	sec, err := strconv.ParseInt(secStr, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q: %w", name, err)
	}
	if fracStr == "" || strings.Trim(fracStr, "0123456789") != "" {
		return time.Time{}, fmt.Errorf("%q: invalid fraction %q", name, fracStr)
	}
	// The fraction is a decimal fraction of a second: "12" is 0.12 s. Files
	// named with a float repr carry fewer or more than six digits.
	if len(fracStr) > 6 {
		fracStr = fracStr[:6]
	}
	fracStr += strings.Repeat("0", 6-len(fracStr))
	micros, err := strconv.ParseInt(fracStr, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q: %w", name, err)
	}
	return time.Unix(sec, micros*int64(time.Microsecond)).UTC(), nil
}

func cityDir(city string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(city))
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid city name %q", city)
	}
	return name, nil
}
