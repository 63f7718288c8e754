package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/forecast-accuracy/internal/acquisition"
	"github.com/i474232898/forecast-accuracy/internal/logger"
	"github.com/i474232898/forecast-accuracy/internal/weather"
)

// Scheduler runs an acquisition pass over the configured cities on a cron
// schedule.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   *acquisition.Service
	cities    []string
	plugins   []weather.Plugin
	expr      string

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Scheduler. expr is a standard 5-field cron expression
// evaluated in UTC.
func New(expr string, cities []string, plugins []weather.Plugin, service *acquisition.Service) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	// a pass still in backoff when the next one is due is not started twice
	s.SingletonModeAll()

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: s,
		service:   service,
		cities:    cities,
		plugins:   plugins,
		expr:      expr,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start schedules the acquisition job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	log := logger.GetLogger()
	if len(s.cities) == 0 || len(s.plugins) == 0 {
		log.Warnw("Scheduler has no cities or providers configured; nothing to schedule")
		return nil
	}

	job, err := s.scheduler.Cron(s.expr).Do(func() { s.RunPass() })
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	log.Infow("Scheduled forecast acquisition", "cron", s.expr, "nextRun", job.NextRun())
	return nil
}

// RunPass runs one acquisition pass over every city and provider.
func (s *Scheduler) RunPass() []acquisition.PassReport {
	log := logger.GetLogger()
	log.Infow("Running forecast acquisition", "cities", len(s.cities), "providers", len(s.plugins))

	start := time.Now()
	reports := s.service.StoreForecasts(s.ctx, s.cities, s.plugins)
	log.Infow("Completed forecast acquisition", "duration", time.Since(start), "reports", reports)
	return reports
}

// Stop stops the scheduler and cancels any pass in flight.
func (s *Scheduler) Stop() {
	s.cancel()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
