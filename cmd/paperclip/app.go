package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/kirill555101/paperclip/internal/config"
	"github.com/kirill555101/paperclip/internal/infrastructure"
	"github.com/kirill555101/paperclip/pkg/logging"
)

// app carries state shared by every subcommand.
type app struct {
	configPath string
	cfg        *config.Config
	infra      *infrastructure.Infrastructure
}

// load reads and finalizes the configuration. Logs go to stderr so that
// stdout carries only command output.
func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Finalize(); err != nil {
		return err
	}
	cfg.Logging.Output = logging.OutputStderr
	a.cfg = cfg
	return nil
}

// build loads the configuration and assembles the infrastructure without
// starting it.
func (a *app) build() error {
	if err := a.load(); err != nil {
		return err
	}
	infra, err := infrastructure.New(a.cfg)
	if err != nil {
		return err
	}
	a.infra = infra
	return nil
}

// run starts the infrastructure, calls fn, then uploads any buffered jobs
// and shuts down.
func (a *app) run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := a.build(); err != nil {
		return err
	}
	if err := a.infra.Start(); err != nil {
		return err
	}
	a.infra.Lifecycle.WaitForStartup()

	runErr := fn(ctx)

	if n := a.infra.Drain(ctx); n > 0 {
		a.infra.Logger.Info("staged uploads flushed", "count", n)
	}
	if err := a.infra.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
