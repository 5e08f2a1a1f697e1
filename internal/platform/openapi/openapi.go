// Package openapi describes the routes registered on an echo instance as an
// OpenAPI 3.0 document and serves it with a Swagger UI.
package openapi

import (
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

var documented = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// Generator builds an OpenAPI 3.0 spec from the routes registered under
// prefix. Routes are read when the spec is generated, so the generator can
// be created before the modules register their handlers.
type Generator struct {
	e       *echo.Echo
	title   string
	version string
	prefix  string
}

func NewGenerator(e *echo.Echo, title, version, prefix string) *Generator {
	return &Generator{e: e, title: title, version: version, prefix: strings.TrimSuffix(prefix, "/")}
}

// GenerateSpec produces the OpenAPI 3.0 spec as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	paths := make(map[string]map[string]interface{})
	tags := map[string]bool{}

	for _, r := range g.e.Routes() {
		if !strings.HasPrefix(r.Path, g.prefix+"/") || !documented[r.Method] {
			continue
		}
		method := strings.ToLower(r.Method)

		rel := strings.TrimPrefix(r.Path, g.prefix)
		segments := strings.Split(strings.Trim(rel, "/"), "/")
		tag := segments[0]
		tags[tag] = true

		path := openAPIPath(rel)
		if paths[path] == nil {
			paths[path] = make(map[string]interface{})
		}
		paths[path][method] = g.operation(r.Method, tag, segments)
	}

	tagList := make([]map[string]string, 0, len(tags))
	for _, t := range sortedKeys(tags) {
		tagList = append(tagList, map[string]string{"name": t})
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":   g.title,
			"version": g.version,
		},
		"servers": []map[string]string{
			{"url": g.prefix},
		},
		"tags":  tagList,
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": componentSchemas(),
			"securitySchemes": map[string]interface{}{
				"bearerAuth": map[string]string{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
			},
		},
		"security": []map[string][]string{{"bearerAuth": {}}},
	}
}

// operation describes one route. segments is the path below the prefix,
// e.g. [countries :id] or [pricing quote].
func (g *Generator) operation(method, tag string, segments []string) map[string]interface{} {
	last := segments[len(segments)-1]
	item := len(segments) > 1 && strings.HasPrefix(last, ":")
	collection := len(segments) == 1

	op := map[string]interface{}{
		"tags":        []string{tag},
		"operationId": operationID(method, segments),
		"parameters":  pathParameters(segments),
	}

	switch {
	case method == http.MethodGet && collection:
		op["summary"] = "Search " + tag
		op["parameters"] = append(pathParameters(segments), pageParameters()...)
		op["responses"] = responses("200", "Page of results", "#/components/schemas/Page")
	case method == http.MethodGet:
		op["summary"] = "Read " + tag
		op["responses"] = responses("200", "Success", "#/components/schemas/Entity")
	case method == http.MethodPost && collection:
		op["summary"] = "Create " + tag
		op["requestBody"] = requestBody(echo.MIMEApplicationJSON)
		op["responses"] = responses("201", "Created", "#/components/schemas/Entity")
	case method == http.MethodPut && item:
		op["summary"] = "Replace " + tag
		op["requestBody"] = requestBody(echo.MIMEApplicationJSON)
		op["responses"] = responses("200", "Updated", "#/components/schemas/Entity")
	case method == http.MethodPatch && item:
		op["summary"] = "Patch " + tag
		op["requestBody"] = requestBody("application/merge-patch+json", "application/json-patch+json")
		op["responses"] = responses("200", "Updated", "#/components/schemas/Entity")
	case method == http.MethodDelete && item:
		op["summary"] = "Delete " + tag
		op["parameters"] = append(pathParameters(segments), map[string]interface{}{
			"name": "version_id", "in": "query", "schema": map[string]string{"type": "integer"},
			"description": "Expected version; omitted means the current one",
		})
		op["responses"] = responses("204", "Deleted", "")
	default:
		op["summary"] = strings.ToUpper(tag[:1]) + tag[1:] + " " + strings.Join(segments[1:], " ")
		op["requestBody"] = requestBody(echo.MIMEApplicationJSON)
		op["responses"] = responses("200", "Success", "#/components/schemas/Entity")
	}
	return op
}

// openAPIPath turns echo parameters into OpenAPI templates:
// /countries/:id -> /countries/{id}.
func openAPIPath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		if strings.HasPrefix(s, ":") {
			segments[i] = "{" + s[1:] + "}"
		}
	}
	return strings.Join(segments, "/")
}

func operationID(method string, segments []string) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(method))
	for _, s := range segments {
		by := strings.HasPrefix(s, ":")
		s = strings.TrimPrefix(s, ":")
		if by {
			b.WriteString("By")
		}
		for _, word := range strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '_' }) {
			b.WriteString(strings.ToUpper(word[:1]) + word[1:])
		}
	}
	return b.String()
}

func pathParameters(segments []string) []map[string]interface{} {
	out := []map[string]interface{}{}
	for _, s := range segments {
		if !strings.HasPrefix(s, ":") {
			continue
		}
		name := s[1:]
		schema := map[string]string{"type": "string"}
		if name == "id" {
			schema["format"] = "uuid"
		}
		out = append(out, map[string]interface{}{
			"name": name, "in": "path", "required": true, "schema": schema,
		})
	}
	return out
}

func pageParameters() []map[string]interface{} {
	common := []struct {
		name   string
		schema map[string]interface{}
		desc   string
	}{
		{"page", map[string]interface{}{"type": "integer", "minimum": 1}, "1-based page number"},
		{"page_size", map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 100}, "Rows per page"},
		{"limit", map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 100}, "Rows per page (offset paging)"},
		{"offset", map[string]interface{}{"type": "integer", "minimum": 0}, "Rows to skip"},
		{"sort", map[string]interface{}{"type": "string"}, "Sort column"},
		{"order", map[string]interface{}{"type": "string", "enum": []string{"asc", "desc"}}, "Sort direction"},
	}
	out := make([]map[string]interface{}, 0, len(common))
	for _, cp := range common {
		out = append(out, map[string]interface{}{
			"name":        cp.name,
			"in":          "query",
			"schema":      cp.schema,
			"description": cp.desc,
		})
	}
	return out
}

func requestBody(contentTypes ...string) map[string]interface{} {
	content := make(map[string]interface{}, len(contentTypes))
	for _, ct := range contentTypes {
		content[ct] = map[string]interface{}{
			"schema": map[string]string{"$ref": "#/components/schemas/Entity"},
		}
	}
	return map[string]interface{}{"required": true, "content": content}
}

func responses(code, description, schemaRef string) map[string]interface{} {
	ok := map[string]interface{}{"description": description}
	if schemaRef != "" {
		ok["content"] = map[string]interface{}{
			echo.MIMEApplicationJSON: map[string]interface{}{
				"schema": map[string]string{"$ref": schemaRef},
			},
		}
	}
	out := map[string]interface{}{code: ok}
	for status, desc := range map[string]string{
		"400": "Invalid request",
		"401": "Missing or invalid token",
		"403": "Insufficient role",
		"404": "Not found",
		"409": "Duplicate code, version conflict or row in use",
		"422": "Unresolvable reference or business rule",
	} {
		out[status] = map[string]interface{}{
			"description": desc,
			"content": map[string]interface{}{
				echo.MIMEApplicationJSON: map[string]interface{}{
					"schema": map[string]string{"$ref": "#/components/schemas/Error"},
				},
			},
		}
	}
	return out
}

func componentSchemas() map[string]interface{} {
	return map[string]interface{}{
		"Entity": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"id":         map[string]string{"type": "string", "format": "uuid"},
				"code":       map[string]string{"type": "string"},
				"enabled":    map[string]string{"type": "boolean"},
				"version_id": map[string]string{"type": "integer"},
				"created_at": map[string]string{"type": "string", "format": "date-time"},
				"updated_at": map[string]string{"type": "string", "format": "date-time"},
				"created_by": map[string]string{"type": "string"},
				"updated_by": map[string]string{"type": "string"},
			},
			"additionalProperties": true,
		},
		"Page": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"data":      map[string]interface{}{"type": "array", "items": map[string]string{"$ref": "#/components/schemas/Entity"}},
				"total":     map[string]string{"type": "integer"},
				"limit":     map[string]string{"type": "integer"},
				"offset":    map[string]string{"type": "integer"},
				"page":      map[string]string{"type": "integer"},
				"page_size": map[string]string{"type": "integer"},
				"has_more":  map[string]string{"type": "boolean"},
			},
		},
		"Error": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"message": map[string]string{"type": "string"},
			},
		},
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Referential API - Swagger UI</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" >
  <style>
    html { box-sizing: border-box; overflow-y: scroll; }
    *, *:before, *:after { box-sizing: inherit; }
    body { margin: 0; background: #fafafa; }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "/api/openapi.json",
      dom_id: '#swagger-ui',
      deepLinking: true,
      presets: [
        SwaggerUIBundle.presets.apis,
        SwaggerUIBundle.SwaggerUIStandalonePreset
      ],
      layout: "BaseLayout"
    })
  </script>
</body>
</html>`

// RegisterRoutes registers the OpenAPI endpoints.
func (g *Generator) RegisterRoutes(apiGroup *echo.Group) {
	apiGroup.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	})
	apiGroup.GET("/docs", func(c echo.Context) error {
		return c.HTML(http.StatusOK, swaggerUIHTML)
	})
}
