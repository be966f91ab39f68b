package api

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"

	"github.com/suwandre/fundscope/api/handlers"
	"github.com/suwandre/fundscope/internal/cache"
	"github.com/suwandre/fundscope/internal/funding"
	"github.com/suwandre/fundscope/internal/metrics"
	"github.com/suwandre/fundscope/internal/runlock"
	"github.com/suwandre/fundscope/internal/store"
)

// Deps carries everything the routes need.
type Deps struct {
	Store   store.Store
	Funding *funding.Service
	Locks   *runlock.Coordinator
	Cache   cache.Cacher
	Metrics *metrics.Metrics
	Windows handlers.Windows
}

func SetupRoutes(app *fiber.App, deps Deps) {
	app.Use(cors.New())
	if deps.Metrics != nil {
		app.Use(metricsMiddleware(deps.Metrics))
	}

	fundingHandler := handlers.NewFundingHandler(deps.Funding, deps.Cache, deps.Windows)
	statusHandler := handlers.NewStatusHandler(deps.Locks)
	healthHandler := handlers.NewHealthHandler(deps.Store)

	app.Get("/healthz", healthHandler.GetHealth)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	api := app.Group("/api")

	api.Get("/funding_rates", fundingHandler.GetLighterRates)
	api.Get("/funding_rates/:symbol", fundingHandler.GetLighterHistory)
	api.Get("/hyena/funding_rates", fundingHandler.GetHyenaRates)
	api.Get("/hyena/funding_rates/:symbol", fundingHandler.GetHyenaHistory)
	api.Get("/status", statusHandler.GetStatus)
}

// metricsMiddleware records request counts and latency against the route
// pattern, not the raw path, to keep label cardinality bounded.
func metricsMiddleware(m *metrics.Metrics) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := c.Route().Path
		m.RecordHTTPRequest(c.Method(), path, c.Response().StatusCode(), time.Since(start))
		return err
	}
}
