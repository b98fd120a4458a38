package main

import (
	"github.com/kirill555101/paperclip/internal/config"
	"github.com/kirill555101/paperclip/internal/infrastructure"
	"github.com/kirill555101/paperclip/pkg/middleware"
)

// buildMiddleware creates the middleware stack: slash trimming, request
// logging and CORS.
func buildMiddleware(infra *infrastructure.Infrastructure, cfg *config.Config) middleware.System {
	mw := middleware.New()
	mw.Use(middleware.TrimSlash())
	mw.Use(middleware.Logger(infra.Logger))
	mw.Use(middleware.CORS(&cfg.CORS))
	return mw
}
