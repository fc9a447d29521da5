package http

import (
	"bytes"
	"html/template"
	"log/slog"
	"os"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"
)

const defaultDocsPath = "api/openapi.yaml"

var docsPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>{{.Title}} {{.Version}}</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: '/docs/openapi.json',
      dom_id: '#swagger-ui',
      docExpansion: 'list',
      tagsSorter: 'alpha',
      operationsSorter: 'method',
      supportedSubmitMethods: ['get'],
    });
  </script>
</body>
</html>`))

// apiDocs is the itinerary API description, parsed once when routes are set up.
type apiDocs struct {
	yaml []byte
	json []byte
	page []byte
}

func loadAPIDocs(path string) (*apiDocs, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := openapi3.NewLoader().LoadFromData(raw)
	if err != nil {
		return nil, err
	}
	asJSON, err := doc.MarshalJSON()
	if err != nil {
		return nil, err
	}

	var page bytes.Buffer
	info := struct{ Title, Version string }{"Tripgaps itinerary API", ""}
	if doc.Info != nil {
		if doc.Info.Title != "" {
			info.Title = doc.Info.Title
		}
		info.Version = doc.Info.Version
	}
	if err := docsPage.Execute(&page, info); err != nil {
		return nil, err
	}
	return &apiDocs{yaml: raw, json: asJSON, page: page.Bytes()}, nil
}

// SetupDocs serves the itinerary API description at /docs/openapi.yaml and
// /docs/openapi.json with a read-only Swagger UI at /docs. A document that
// cannot be read or parsed leaves the routes answering 404.
func SetupDocs(app *fiber.App, specPath string, logger *slog.Logger) {
	if specPath == "" {
		specPath = defaultDocsPath
	}
	docs, err := loadAPIDocs(specPath)
	if err != nil && logger != nil {
		logger.Warn("api docs unavailable", "path", specPath, "error", err)
	}

	serve := func(contentType string, pick func(*apiDocs) []byte) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if docs == nil {
				return errNotFound(c, "api documentation not available")
			}
			c.Set(fiber.HeaderContentType, contentType)
			return c.Send(pick(docs))
		}
	}

	app.Get("/docs", serve(fiber.MIMETextHTMLCharsetUTF8, func(d *apiDocs) []byte { return d.page }))
	app.Get("/docs/openapi.yaml", serve("application/yaml", func(d *apiDocs) []byte { return d.yaml }))
	app.Get("/docs/openapi.json", serve(fiber.MIMEApplicationJSON, func(d *apiDocs) []byte { return d.json }))
}
