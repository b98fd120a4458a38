package main

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirill555101/paperclip/internal/config"
	"github.com/kirill555101/paperclip/internal/infrastructure"
	"github.com/kirill555101/paperclip/internal/records"
	"github.com/kirill555101/paperclip/pkg/lifecycle"
	"github.com/kirill555101/paperclip/pkg/openapi"
	"github.com/kirill555101/paperclip/pkg/routes"
)

// registerRoutes configures all HTTP routes for the service. The OpenAPI
// document is generated from the routes registered before it.
func registerRoutes(r routes.System, infra *infrastructure.Infrastructure, cfg *config.Config) error {
	recordHandler := records.NewHandler(infra.Records, infra.Logger, cfg.Storage.MaxUploadSizeBytes(), cfg.Pagination)
	r.RegisterGroup(recordHandler.Routes())

	r.RegisterRoute(routes.Route{
		Method:  "GET",
		Pattern: "/healthz",
		Handler: handleHealthCheck,
		OpenAPI: &openapi.Operation{
			Summary: "Health check endpoint",
			Tags:    []string{"Infrastructure"},
			Responses: map[int]*openapi.Response{
				200: {Description: "Service is healthy"},
			},
		},
	})

	r.RegisterRoute(routes.Route{
		Method:  "GET",
		Pattern: "/readyz",
		Handler: func(w http.ResponseWriter, r *http.Request) {
			handleReadinessCheck(w, infra.Lifecycle)
		},
		OpenAPI: &openapi.Operation{
			Summary: "Readiness check endpoint",
			Tags:    []string{"Infrastructure"},
			Responses: map[int]*openapi.Response{
				200: {Description: "Service is ready"},
				503: {Description: "Service not ready"},
			},
		},
	})

	if infra.Metrics != nil {
		r.RegisterRoute(routes.Route{
			Method:  "GET",
			Pattern: cfg.Metrics.Path,
			Handler: promhttp.HandlerFor(infra.Metrics, promhttp.HandlerOpts{}).ServeHTTP,
		})
	}

	components := openapi.NewComponents()
	components.AddSchemas(records.Spec.Schemas())

	spec, err := openapi.MarshalJSON(generateSpec(r, components, cfg))
	if err != nil {
		return fmt.Errorf("marshal openapi document: %w", err)
	}

	r.RegisterRoute(routes.Route{
		Method:  "GET",
		Pattern: "/openapi.json",
		Handler: serveOpenAPISpec(spec),
	})
	return nil
}

// handleHealthCheck responds with OK status for health monitoring.
func handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func handleReadinessCheck(w http.ResponseWriter, ready lifecycle.ReadinessChecker) {
	if !ready.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("NOT READY"))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}
