package evaluation

import (
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

// TableFile is the error table's file name inside the errors directory.
const TableFile = "errorfile.csv"

const (
	colProvider      = "Provider"
	colCity          = "city"
	colOffset        = "offset"
	colReferenceDate = "reference_date"
	colRunID         = "run_id"
	// older tables called the reference date column "date"
	colLegacyDate = "date"
)

// TablePath returns the error table path inside errorsDir.
func TablePath(errorsDir string) string {
	return filepath.Join(errorsDir, TableFile)
}

// ErrorTable is the append-only log of scored forecasts, at most one row per
// Key. It is not safe for concurrent use, and the file assumes a single
// writer at a time.
type ErrorTable struct {
	rows  []ErrorRecord
	index map[Key]struct{}
}

func NewErrorTable() *ErrorTable {
	return &ErrorTable{index: make(map[Key]struct{})}
}

// Has reports whether a row exists for key.
func (t *ErrorTable) Has(key Key) bool {
	_, ok := t.index[key]
	return ok
}

// Append adds rec unless a row with the same key exists. It reports whether
// the row was added.
func (t *ErrorTable) Append(rec ErrorRecord) bool {
	key := rec.Key()
	if t.Has(key) {
		return false
	}
	t.index[key] = struct{}{}
	t.rows = append(t.rows, rec)
	return true
}

// Len returns the number of rows.
func (t *ErrorTable) Len() int {
	return len(t.rows)
}

// Rows returns the rows in insertion order. The slice must not be modified.
func (t *ErrorTable) Rows() []ErrorRecord {
	return t.rows
}

// Filter returns the rows for one city and provider.
func (t *ErrorTable) Filter(city string, p weather.Provider) []ErrorRecord {
	var out []ErrorRecord
	for _, r := range t.rows {
		if r.Provider == p && strings.EqualFold(r.City, city) {
			out = append(out, r)
		}
	}
	return out
}

func tableHeader() []string {
	h := []string{colProvider, colCity, colOffset, colReferenceDate}
	for _, v := range weather.Variables() {
		h = append(h, string(v))
	}
	return append(h, colRunID)
}

// LoadTable reads the table at path. A missing file yields an empty table.
func LoadTable(path string) (*ErrorTable, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewErrorTable(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open error table: %w", err)
	}
	defer f.Close()

	t, err := ReadTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ReadTable parses a table from CSV. Columns are matched by header name, so
// unknown columns are ignored and variable columns may be missing.
func ReadTable(r io.Reader) (*ErrorTable, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return NewErrorTable(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	// "Air Temperature" and "AirTemperature" name the same column.
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ReplaceAll(strings.TrimSpace(h), " ", "")] = i
	}
	if _, ok := cols[colReferenceDate]; !ok {
		if i, ok := cols[colLegacyDate]; ok {
			cols[colReferenceDate] = i
		}
	}
	for _, required := range []string{colProvider, colCity, colOffset, colReferenceDate} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	t := NewErrorTable()
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec, err := parseRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		t.Append(rec)
	}
	return t, nil
}

func parseRow(row []string, cols map[string]int) (ErrorRecord, error) {
	cell := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	p, err := weather.ParseProvider(cell(colProvider))
	if err != nil {
		return ErrorRecord{}, err
	}
	offset, err := strconv.Atoi(cell(colOffset))
	if err != nil {
		return ErrorRecord{}, fmt.Errorf("offset: %w", err)
	}
	ref, err := time.Parse(weather.DateLayout, cell(colReferenceDate))
	if err != nil {
		return ErrorRecord{}, fmt.Errorf("reference date: %w", err)
	}

	errs := make(weather.Values, len(weather.Variables()))
	for _, v := range weather.Variables() {
		s := cell(string(v))
		if s == "" {
			errs[v] = nil
			continue
		}
		x, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return ErrorRecord{}, fmt.Errorf("%s: %w", v, err)
		}
		errs[v] = &x
	}

	return ErrorRecord{
		Provider:      p,
		City:          cell(colCity),
		Offset:        offset,
		ReferenceDate: ref,
		Errors:        errs,
		RunID:         cell(colRunID),
	}, nil
}

// Encode writes the whole table as CSV.
func (t *ErrorTable) Encode(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tableHeader()); err != nil {
		return err
	}
	for _, r := range t.rows {
		row := []string{
			string(r.Provider),
			r.City,
			strconv.Itoa(r.Offset),
			r.ReferenceDate.Format(weather.DateLayout),
		}
		for _, v := range weather.Variables() {
			if x, ok := r.Errors.Get(v); ok {
				row = append(row, strconv.FormatFloat(x, 'g', -1, 64))
			} else {
				row = append(row, "")
			}
		}
		row = append(row, r.RunID)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Save rewrites the file at path with the whole table. The new content is
// written to a temporary file first and renamed into place.
func (t *ErrorTable) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create errors dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+TableFile+"-*")
	if err != nil {
		return fmt.Errorf("create temp error table: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := t.Encode(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write error table: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close error table: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace error table: %w", err)
	}
	return nil
}
