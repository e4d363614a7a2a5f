package api

import (
	"github.com/adjust/rmq/v5"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/travigo/catchtrain/pkg/api/routes"
	"github.com/travigo/catchtrain/pkg/arrivals"
	"github.com/travigo/catchtrain/pkg/consumer"
	"github.com/travigo/catchtrain/pkg/metrics"
	"github.com/travigo/catchtrain/pkg/session"
)

type Dependencies struct {
	Resolver routes.StationResolver
	Catalog  routes.FilterableCatalog
	Planner  routes.CandidatePlanner
	Manager  *session.Manager
	Metrics  *metrics.Collector

	// Queues is optional, the queue stats page is only served when it is set
	Queues rmq.Connection
}

func NewApp(deps Dependencies) *fiber.App {
	webApp := fiber.New(fiber.Config{DisableStartupMessage: true})
	webApp.Use(NewLogger())

	webApp.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	webApp.Get("/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))

	if deps.Queues != nil {
		webApp.Get("/queues/stats", adaptor.HTTPHandler(consumer.NewStatsHandler(deps.Queues)))
	}

	group := webApp.Group("/core")

	group.Get("version", routes.APIVersion)

	routes.StationsRouter(group.Group("/stations"), deps.Resolver)
	routes.StopsRouter(group.Group("/stops"), deps.Catalog)
	routes.CandidatesRouter(group.Group("/candidates"), deps.Planner)
	routes.SessionsRouter(group.Group("/sessions"), deps.Manager)

	return webApp
}

func SetupServer(listen string, deps Dependencies) error {
	return NewApp(deps).Listen(listen)
}

// filterableCatalog compiles per request filters on top of a shared catalog
type filterableCatalog struct {
	*arrivals.Catalog
}

func NewFilterableCatalog(catalog *arrivals.Catalog) routes.FilterableCatalog {
	return filterableCatalog{catalog}
}

func (c filterableCatalog) FilteredBy(expression string) (routes.ArrivalCatalog, error) {
	program, err := arrivals.CompileFilter(expression)
	if err != nil {
		return nil, err
	}

	return c.Catalog.Filtered(program), nil
}
