package main

import (
	"net/http"

	"github.com/kirill555101/paperclip/internal/config"
	"github.com/kirill555101/paperclip/pkg/openapi"
	"github.com/kirill555101/paperclip/pkg/routes"
)

func generateSpec(rs routes.System, components *openapi.Components, cfg *config.Config) *openapi.Spec {
	spec := &openapi.Spec{
		OpenAPI:    "3.1.0",
		Info:       cfg.OpenAPI.Info(cfg.Version),
		Components: components,
		Paths:      make(map[string]*openapi.PathItem),
	}
	if cfg.OpenAPI.ServerURL != "" {
		spec.Servers = []*openapi.Server{{URL: cfg.OpenAPI.ServerURL}}
	}

	for _, group := range rs.Groups() {
		processGroup(spec, "", group)
	}

	for _, route := range rs.Routes() {
		if route.OpenAPI == nil {
			continue
		}
		spec.AddOperation(route.Pattern, route.Method, route.OpenAPI)
	}

	return spec
}

func processGroup(spec *openapi.Spec, parent string, group routes.Group) {
	prefix := parent + group.Prefix

	for _, route := range group.Routes {
		if route.OpenAPI == nil {
			continue
		}

		op := *route.OpenAPI
		if len(op.Tags) == 0 {
			op.Tags = group.Tags
		}
		spec.AddOperation(prefix+route.Pattern, route.Method, &op)
	}

	for _, child := range group.Children {
		processGroup(spec, prefix, child)
	}
}

func serveOpenAPISpec(spec []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(spec)
	}
}
