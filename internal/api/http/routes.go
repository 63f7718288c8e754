package httpapi

import (
	"math"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/forecast-accuracy/internal/common"
	"github.com/i474232898/forecast-accuracy/internal/evaluation"
	"github.com/i474232898/forecast-accuracy/internal/logger"
	"github.com/i474232898/forecast-accuracy/internal/weather"
)

var validate = validator.New()

// Handler serves read-only views of the error table. The table is read from
// disk on every request so results follow the latest evaluation run.
type Handler struct {
	errorsPath string
	providers  []weather.Provider
	cities     []string
}

func NewHandler(errorsPath string, providers []weather.Provider, cities []string) *Handler {
	return &Handler{errorsPath: errorsPath, providers: providers, cities: cities}
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, h *Handler) {
	v1 := app.Group("/api/v1")

	v1.Get("/accuracy/summary", h.summary)
	v1.Get("/accuracy/errors", h.errorRows)
}

func (h *Handler) loadTable() (*evaluation.ErrorTable, error) {
	table, err := evaluation.LoadTable(evaluation.TablePath(h.errorsPath))
	if err != nil {
		logger.GetLogger().Errorw("Failed to load error table", "path", h.errorsPath, "error", err)
		return nil, fiber.NewError(fiber.StatusInternalServerError, "failed to load error table")
	}
	return table, nil
}

// summaryQuery holds query parameters for the summary endpoint.
type summaryQuery struct {
	By        string `validate:"required,oneof=variable city"`
	Variable  string `validate:"required_if=By city"`
	Providers []string
	MaxOffset int `validate:"gte=0,lte=6"`
}

func (q *summaryQuery) bind(c *fiber.Ctx) error {
	q.By = c.Query("by", "variable")
	q.Variable = c.Query("variable")
	q.Providers = common.SplitList(c.Query("providers"))

	q.MaxOffset = weather.MaxOffset
	if s := c.Query("max_offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "max_offset must be an integer")
		}
		q.MaxOffset = n
	}

	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

func (h *Handler) summary(c *fiber.Ctx) error {
	var q summaryQuery
	if err := q.bind(c); err != nil {
		return err
	}

	providers := h.providers
	if len(q.Providers) > 0 {
		var err error
		if providers, err = weather.ParseProviders(q.Providers); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}

	table, err := h.loadTable()
	if err != nil {
		return err
	}

	var tensor evaluation.ErrorTensor
	if q.By == "city" {
		v, err := weather.ParseVariable(q.Variable)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		tensor = evaluation.SummarizeByCity(table, providers, h.cities, v, q.MaxOffset)
	} else {
		tensor = evaluation.SummarizeByVariable(table, providers, weather.Variables(), q.MaxOffset)
	}

	return c.JSON(fiber.Map{
		"by":        q.By,
		"variable":  q.Variable,
		"rows":      table.Len(),
		"providers": tensor.Providers,
		"labels":    tensor.Labels,
		"offsets":   tensor.Offsets,
		"cells":     toCells(tensor),
	})
}

// errorsQuery holds query parameters for the raw error rows endpoint.
type errorsQuery struct {
	City     string `validate:"required"`
	Provider string `validate:"required"`
}

func (h *Handler) errorRows(c *fiber.Ctx) error {
	q := errorsQuery{City: c.Query("city"), Provider: c.Query("provider")}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	p, err := weather.ParseProvider(q.Provider)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	table, err := h.loadTable()
	if err != nil {
		return err
	}

	rows := table.Filter(q.City, p)
	out := make([]errorRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, errorRow{
			Provider:      r.Provider,
			City:          r.City,
			Offset:        r.Offset,
			ReferenceDate: r.ReferenceDate.Format(weather.DateLayout),
			Errors:        r.Errors,
			RunID:         r.RunID,
		})
	}
	return c.JSON(fiber.Map{
		"city":     q.City,
		"provider": p,
		"rows":     out,
	})
}

type errorRow struct {
	Provider      weather.Provider `json:"provider"`
	City          string           `json:"city"`
	Offset        int              `json:"offset"`
	ReferenceDate string           `json:"referenceDate"`
	Errors        weather.Values   `json:"errors"`
	RunID         string           `json:"runId,omitempty"`
}

// statCell is a Stat with NaN rendered as null, which JSON cannot carry.
type statCell struct {
	N    int      `json:"n"`
	Mean *float64 `json:"mean"`
	MSE  *float64 `json:"mse"`
	RMS  *float64 `json:"rms"`
	Norm *float64 `json:"norm"`
}

func finite(x float64) *float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil
	}
	return &x
}

func toCells(t evaluation.ErrorTensor) [][][]statCell {
	out := make([][][]statCell, len(t.Cells))
	for i := range t.Cells {
		out[i] = make([][]statCell, len(t.Cells[i]))
		for j := range t.Cells[i] {
			out[i][j] = make([]statCell, len(t.Cells[i][j]))
			for k, s := range t.Cells[i][j] {
				out[i][j][k] = statCell{N: s.N, Mean: finite(s.Mean), MSE: finite(s.MSE), RMS: finite(s.RMS), Norm: finite(s.Norm)}
			}
		}
	}
	return out
}
