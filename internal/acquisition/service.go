package acquisition

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/i474232898/forecast-accuracy/internal/logger"
	"github.com/i474232898/forecast-accuracy/internal/metrics"
	"github.com/i474232898/forecast-accuracy/internal/weather"
)

// PassReport summarises one provider worker's pass over the cities.
type PassReport struct {
	Provider  weather.Provider `json:"provider"`
	Stored    int              `json:"stored"`
	Failed    int              `json:"failed"`
	Snapshots int              `json:"snapshots"`
	// Aborted is set when the worker panicked before finishing its pass.
	Aborted bool `json:"aborted"`
}

// Service runs acquisition passes, one isolated worker per provider.
type Service struct {
	client  *http.Client
	backoff BackoffConfig
	writer  SnapshotWriter
}

func NewService(client *http.Client, backoff BackoffConfig, writer SnapshotWriter) *Service {
	return &Service{
		client:  client,
		backoff: backoff,
		writer:  writer,
	}
}

// StoreForecastsLoop fetches and stores the plugin's forecast for every city,
// in order. A failure for one city never stops the pass.
func (s *Service) StoreForecastsLoop(ctx context.Context, cities []string, plugin weather.Plugin) PassReport {
	fetcher := NewFetcher(s.client, s.backoff, s.writer, string(plugin.Provider()))
	return storeLoop(ctx, fetcher, cities, plugin)
}

func storeLoop(ctx context.Context, fetcher *Fetcher, cities []string, plugin weather.Plugin) PassReport {
	log := logger.GetLogger()
	report := PassReport{Provider: plugin.Provider()}
	m := metrics.Get()
	provider := string(report.Provider)

	for _, city := range cities {
		if ctx.Err() != nil {
			log.Warnw("Acquisition pass cancelled", "provider", report.Provider, "remaining_from", city)
			break
		}

		start := time.Now()
		snaps, err := fetcher.Fetch(ctx, city, plugin)
		m.FetchDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
		if err != nil {
			m.FetchTotal.WithLabelValues(provider, "failed").Inc()
			report.Failed++
			continue
		}
		m.FetchTotal.WithLabelValues(provider, "stored").Inc()
		report.Stored++
		report.Snapshots += len(snaps)
	}

	log.Infow("Acquisition pass finished",
		"provider", report.Provider, "stored", report.Stored, "failed", report.Failed)
	return report
}

// StoreForecasts runs one pass of StoreForecastsLoop per plugin concurrently.
// Workers share no mutable state: each owns its fetcher and circuit breaker,
// and writes only below its own provider directories, so a provider stuck in
// backoff never delays another. It returns when every worker has finished.
func (s *Service) StoreForecasts(ctx context.Context, cities []string, plugins []weather.Plugin) []PassReport {
	log := logger.GetLogger()

	if len(plugins) == 0 {
		log.Warnw("No provider plugins configured; nothing to acquire")
		return nil
	}

	reports := make([]PassReport, len(plugins))
	var wg sync.WaitGroup
	for i, plugin := range plugins {
		wg.Add(1)
		go func(i int, plugin weather.Plugin) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Errorw("Provider worker panicked",
						"provider", plugin.Provider(), "panic", fmt.Sprint(r))
					reports[i].Provider = plugin.Provider()
					reports[i].Aborted = true
				}
			}()

			reports[i] = s.StoreForecastsLoop(ctx, cities, plugin)
		}(i, plugin)
	}
	wg.Wait()

	return reports
}
