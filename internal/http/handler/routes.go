package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docqa/docs"
	"docqa/internal/database"
	"docqa/internal/service"
)

// Deps are the collaborators the HTTP layer needs. Nil DB, Docs or Gatherer
// leave the routes that need them unregistered.
type Deps struct {
	DB       database.Pinger
	Docs     service.DocumentService
	Query    service.QueryService
	Gatherer prometheus.Gatherer
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Get("/test", TestEndpoint())
	app.Get("/healthz", LivenessProbe())
	if d.DB != nil {
		app.Get("/health", HealthCheck(d.DB))
	}

	if d.Docs != nil {
		app.Post("/upload_pdfs/", UploadDocuments(d.Docs))
		app.Get("/documents", ListDocuments(d.Docs))
		app.Get("/documents/:id", GetDocument(d.Docs))
		app.Get("/documents/:id/download", DownloadDocument(d.Docs))
		app.Delete("/documents/:id", DeleteDocument(d.Docs))
	}
	if d.Query != nil {
		app.Post("/ask/", Ask(d.Query))
		app.Post("/ask/stream", AskStream(d.Query))
	}

	if d.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
	app.Get("/swagger/*", Swagger())
}

// Swagger serves the UI with the host and scheme of the incoming request.
func Swagger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	}
}
