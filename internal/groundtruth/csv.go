package groundtruth

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/i474232898/forecast-accuracy/internal/weather"
)

// CSVSource reads observations from one CSV file per city, <dir>/<city>.csv.
// The header names a "date" column (YYYY-MM-DD) and any of the canonical
// variables; spaces in header names are ignored, so "Air Temperature" and
// "AirTemperature" are the same column. Empty cells are null.
type CSVSource struct {
	dir string
}

func NewCSVSource(dir string) *CSVSource {
	return &CSVSource{dir: dir}
}

func (s *CSVSource) Query(ctx context.Context, city string, start, end time.Time) ([]weather.GroundTruthRecord, error) {
	path := filepath.Join(s.dir, strings.ToLower(strings.TrimSpace(city))+".csv")
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ground truth: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ground truth header %s: %w", path, err)
	}

	dateCol := -1
	cols := make(map[int]weather.Variable)
	for i, h := range header {
		name := strings.ReplaceAll(strings.TrimSpace(h), " ", "")
		if strings.EqualFold(name, "date") {
			dateCol = i
			continue
		}
		if v, err := weather.ParseVariable(name); err == nil {
			cols[i] = v
		}
	}
	if dateCol < 0 {
		return nil, fmt.Errorf("ground truth %s has no date column", path)
	}

	from, to := weather.Day(start), weather.Day(end)
	var out []weather.GroundTruthRecord
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read ground truth %s: %w", path, err)
		}

		date, err := time.Parse(weather.DateLayout, strings.TrimSpace(row[dateCol]))
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		if date.Before(from) || date.After(to) {
			continue
		}

		vals := make(weather.Values, len(cols))
		for i, v := range cols {
			cell := strings.TrimSpace(row[i])
			if cell == "" {
				vals[v] = nil
				continue
			}
			x, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d column %s: %w", path, line, v, err)
			}
			vals[v] = &x
		}
		out = append(out, weather.GroundTruthRecord{City: city, Date: date, Variables: vals})
	}

	sortByDate(out)
	return out, nil
}
