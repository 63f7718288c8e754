package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/forecast-accuracy/internal/api/http"
	"github.com/i474232898/forecast-accuracy/internal/logger"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		port          string
		withScheduler bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve error table summaries over HTTP",
		Long: `Starts a read-only JSON API over the error table:

  GET /health
  GET /metrics
  GET /api/v1/accuracy/summary?by=variable|city&variable=...&providers=...&max_offset=...
  GET /api/v1/accuracy/errors?city=...&provider=...

With --with-scheduler the daily acquisition runs in the same process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.GetLogger()
			if port == "" {
				port = opts.cfg.Port
			}

			if withScheduler {
				sched, err := opts.scheduler("")
				if err != nil {
					return err
				}
				if err := sched.Start(); err != nil {
					return err
				}
				defer sched.Stop()
			}

			app := newApp(httpapi.NewHandler(opts.cfg.ErrorsPath, opts.cfg.Providers, opts.cfg.Cities))

			errCh := make(chan error, 1)
			go func() {
				log.Infow("HTTP server listening", "port", port)
				errCh <- app.Listen(":" + port)
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := app.ShutdownWithContext(shutdownCtx); err != nil {
				log.Errorw("Error during shutdown", "error", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen port (default $PORT or 8080)")
	cmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "also run the daily acquisition schedule")
	return cmd
}

func newApp(h *httpapi.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "forecast-accuracy",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(fiberlogger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "forecast-accuracy",
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	httpapi.RegisterRoutes(app, h)
	return app
}
