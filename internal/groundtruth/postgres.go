package groundtruth

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/i474232898/forecast-accuracy/internal/weather"
)

// observationColumns maps the observations table columns to variables, in
// select order.
var observationColumns = []struct {
	column   string
	variable weather.Variable
}{
	{"air_temperature", weather.AirTemperature},
	{"max_air_temp", weather.MaxAirTemp},
	{"min_air_temp", weather.MinAirTemp},
	{"precipitation", weather.Precipitation},
	{"vapor_pressure", weather.VaporPressure},
	{"air_pressure", weather.AirPressure},
	{"rel_humidity", weather.RelHumidity},
	{"wind_speed", weather.WindSpeed},
	{"snow_depth", weather.SnowDepth},
	{"hours_of_sun", weather.HoursOfSun},
}

// PostgresSource reads daily station observations from an "observations"
// table keyed by (city, date).
type PostgresSource struct {
	db *sql.DB
}

// NewPostgresSource connects with a lib/pq connection string and verifies
// the connection.
func NewPostgresSource(dsn string) (*PostgresSource, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	return &PostgresSource{db: db}, nil
}

// NewPostgresSourceFromDB wraps an existing handle.
func NewPostgresSourceFromDB(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) Close() error {
	return s.db.Close()
}

func observationsQuery() string {
	cols := make([]string, 0, len(observationColumns))
	for _, c := range observationColumns {
		cols = append(cols, c.column)
	}
	return fmt.Sprintf(`
		SELECT date, %s
		FROM observations
		WHERE city = $1 AND date BETWEEN $2 AND $3
		ORDER BY date`, strings.Join(cols, ", "))
}

func (s *PostgresSource) Query(ctx context.Context, city string, start, end time.Time) ([]weather.GroundTruthRecord, error) {
	rows, err := s.db.QueryContext(ctx, observationsQuery(), city, weather.Day(start), weather.Day(end))
	if err != nil {
		return nil, fmt.Errorf("query observations for %s: %w", city, err)
	}
	defer rows.Close()

	var out []weather.GroundTruthRecord
	for rows.Next() {
		var date time.Time
		nulls := make([]sql.NullFloat64, len(observationColumns))
		dest := make([]any, 0, len(observationColumns)+1)
		dest = append(dest, &date)
		for i := range nulls {
			dest = append(dest, &nulls[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan observation for %s: %w", city, err)
		}

		vals := make(weather.Values, len(observationColumns))
		for i, c := range observationColumns {
			if nulls[i].Valid {
				vals[c.variable] = weather.Float(nulls[i].Float64)
			} else {
				vals[c.variable] = nil
			}
		}
		out = append(out, weather.GroundTruthRecord{City: city, Date: weather.Day(date), Variables: vals})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
