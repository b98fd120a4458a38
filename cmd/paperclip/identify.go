package main

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
)

func (a *app) identifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "identify <file>...",
		Short: "Print the geometry and content type of image files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.build(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, path := range args {
				geo, err := a.infra.Processor.Identify(cmd.Context(), path)
				if err != nil {
					return err
				}
				mime, err := mimetype.DetectFile(path)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %s %s\n", path, geo, mime.String())
			}
			return nil
		},
	}
}
