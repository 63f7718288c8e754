package evaluation

import (
	"math"
	"strings"

	"github.com/i474232898/forecast-accuracy/internal/weather"
)

// Stat summarizes the non-null signed errors of one tensor cell. Every
// field except N is NaN when N is zero.
type Stat struct {
	N    int     `json:"n"`
	Mean float64 `json:"mean"`
	MSE  float64 `json:"mse"`
	RMS  float64 `json:"rms"`
	// Norm is the L2 norm of the error vector.
	Norm float64 `json:"norm"`
}

type accumulator struct {
	n     int
	sum   float64
	sumSq float64
}

func (a *accumulator) add(x float64) {
	a.n++
	a.sum += x
	a.sumSq += x * x
}

func (a accumulator) stat() Stat {
	if a.n == 0 {
		nan := math.NaN()
		return Stat{Mean: nan, MSE: nan, RMS: nan, Norm: nan}
	}
	mse := a.sumSq / float64(a.n)
	return Stat{
		N:    a.n,
		Mean: a.sum / float64(a.n),
		MSE:  mse,
		RMS:  math.Sqrt(mse),
		Norm: math.Sqrt(a.sumSq),
	}
}

// ErrorTensor is a dense [provider][label][offset] grid of statistics. Labels
// are either variables or cities, depending on how it was summarized.
type ErrorTensor struct {
	Providers []weather.Provider `json:"providers"`
	Labels    []string           `json:"labels"`
	Offsets   []int              `json:"offsets"`
	Cells     [][][]Stat         `json:"cells"`
}

// At returns the cell for (provider, label, offset).
func (t ErrorTensor) At(p weather.Provider, label string, offset int) (Stat, bool) {
	pi := indexOf(t.Providers, p)
	li := -1
	for i, l := range t.Labels {
		if strings.EqualFold(l, label) {
			li = i
			break
		}
	}
	if pi < 0 || li < 0 || offset < 0 || offset >= len(t.Offsets) {
		return Stat{}, false
	}
	return t.Cells[pi][li][offset], true
}

func indexOf[T comparable](xs []T, x T) int {
	for i, v := range xs {
		if v == x {
			return i
		}
	}
	return -1
}

func offsetsUpTo(maxOffset int) []int {
	if maxOffset < 0 || maxOffset > weather.MaxOffset {
		maxOffset = weather.MaxOffset
	}
	out := make([]int, maxOffset+1)
	for i := range out {
		out[i] = i
	}
	return out
}

func newGrid(np, nl, no int) [][][]accumulator {
	g := make([][][]accumulator, np)
	for i := range g {
		g[i] = make([][]accumulator, nl)
		for j := range g[i] {
			g[i][j] = make([]accumulator, no)
		}
	}
	return g
}

func toTensor(providers []weather.Provider, labels []string, offsets []int, g [][][]accumulator) ErrorTensor {
	cells := make([][][]Stat, len(g))
	for i := range g {
		cells[i] = make([][]Stat, len(g[i]))
		for j := range g[i] {
			cells[i][j] = make([]Stat, len(g[i][j]))
			for k := range g[i][j] {
				cells[i][j][k] = g[i][j][k].stat()
			}
		}
	}
	return ErrorTensor{Providers: providers, Labels: labels, Offsets: offsets, Cells: cells}
}

// SummarizeByVariable aggregates the table over every city and reference
// date into a [provider][variable][offset] tensor.
func SummarizeByVariable(table *ErrorTable, providers []weather.Provider, variables []weather.Variable, maxOffset int) ErrorTensor {
	offsets := offsetsUpTo(maxOffset)
	labels := make([]string, len(variables))
	for i, v := range variables {
		labels[i] = string(v)
	}
	g := newGrid(len(providers), len(variables), len(offsets))

	for _, r := range table.Rows() {
		pi := indexOf(providers, r.Provider)
		if pi < 0 || r.Offset < 0 || r.Offset >= len(offsets) {
			continue
		}
		for vi, v := range variables {
			if x, ok := r.Errors.Get(v); ok {
				g[pi][vi][r.Offset].add(x)
			}
		}
	}
	return toTensor(providers, labels, offsets, g)
}

// SummarizeByCity aggregates one variable over every reference date into a
// [provider][city][offset] tensor.
func SummarizeByCity(table *ErrorTable, providers []weather.Provider, cities []string, variable weather.Variable, maxOffset int) ErrorTensor {
	offsets := offsetsUpTo(maxOffset)
	byName := make(map[string]int, len(cities))
	for i, c := range cities {
		byName[strings.ToLower(c)] = i
	}
	g := newGrid(len(providers), len(cities), len(offsets))

	for _, r := range table.Rows() {
		pi := indexOf(providers, r.Provider)
		ci, ok := byName[strings.ToLower(r.City)]
		if pi < 0 || !ok || r.Offset < 0 || r.Offset >= len(offsets) {
			continue
		}
		if x, ok := r.Errors.Get(variable); ok {
			g[pi][ci][r.Offset].add(x)
		}
	}
	return toTensor(providers, append([]string(nil), cities...), offsets, g)
}
