package routes

import (
	"net/http"

	"github.com/kirill555101/paperclip/pkg/openapi"
)

// Group is a set of routes mounted under a common prefix. Children inherit
// the parent's prefix.
type Group struct {
	Prefix      string
	Tags        []string
	Description string
	Routes      []Route
	Children    []Group
}

// Route binds an HTTP method and path pattern to a handler. Patterns use
// net/http ServeMux syntax, including {name} wildcards. Routes without an
// OpenAPI operation are left out of the generated document.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
	OpenAPI *openapi.Operation
}

// Patterns returns every "METHOD /path" pattern in the group, children
// included, resolved under parent.
func (g Group) Patterns(parent string) []string {
	prefix := parent + g.Prefix
	patterns := make([]string, 0, len(g.Routes))
	for _, r := range g.Routes {
		patterns = append(patterns, r.Method+" "+prefix+r.Pattern)
	}
	for _, child := range g.Children {
		patterns = append(patterns, child.Patterns(prefix)...)
	}
	return patterns
}
