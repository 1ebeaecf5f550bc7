package srv

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	apidocs "github.com/webframp/whatsnewbot/docs"
)

const swaggerUIVersion = "5.11.0"

// apiSpec is the generated OpenAPI document stamped with the running
// version. The registered swag spec is copied so it is never mutated.
var apiSpec = sync.OnceValue(func() []byte {
	spec := *apidocs.SwaggerInfo
	spec.Version = Version
	return []byte(spec.ReadDoc())
})

// HandleAPIDocs serves the Swagger UI page, or the raw document to clients
// that only accept JSON.
func (s *Server) HandleAPIDocs(w http.ResponseWriter, r *http.Request) {
	accept := r.Header.Get("Accept")
	if strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html") {
		s.HandleAPISpec(w, r)
		return
	}

	var buf bytes.Buffer
	err := swaggerPage.Execute(&buf, struct {
		Title, SpecURL, UIVersion string
	}{apidocs.SwaggerInfo.Title, "/api/openapi.json", swaggerUIVersion})
	if err != nil {
		slog.Error("render api docs", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// HandleAPISpec serves the OpenAPI document as JSON.
func (s *Server) HandleAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(apiSpec())
}

var swaggerPage = template.Must(template.New("swagger").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@{{.UIVersion}}/swagger-ui.css">
    <style>
        body { margin: 0; background: #fafafa; }
        .swagger-ui .topbar { display: none; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@{{.UIVersion}}/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            SwaggerUIBundle({
                url: {{.SpecURL}},
                dom_id: '#swagger-ui',
                deepLinking: true,
                presets: [SwaggerUIBundle.presets.apis],
                layout: 'BaseLayout'
            });
        }
    </script>
</body>
</html>
`))
