package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var errNotDeferred = errors.New("work requires storage.backend = \"deferred\"")

func (a *app) workCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "work",
		Short: "Run deferred upload workers and the staging reaper until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.build(); err != nil {
				return err
			}
			if a.infra.Deferred == nil {
				return errNotDeferred
			}

			if err := a.infra.Start(); err != nil {
				return err
			}
			if err := a.infra.StartWorkers(); err != nil {
				a.infra.Shutdown()
				return err
			}
			a.infra.Lifecycle.WaitForStartup()
			a.infra.Logger.Info("workers running", "queue", a.cfg.Storage.Deferred.Queue)

			<-cmd.Context().Done()

			a.infra.Logger.Info("stopping workers")
			return a.infra.Shutdown()
		},
	}
}
