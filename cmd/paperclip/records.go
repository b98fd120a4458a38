package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kirill555101/paperclip/internal/records"
)

func (a *app) find(ctx context.Context, class, id string) (*records.Model, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid record id %q: %w", id, err)
	}
	return a.infra.Records.Find(ctx, class, uid)
}

func (a *app) attachCmd() *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "attach <class> <attachment> <file>",
		Short: "Attach a file to a record and store its styles",
		Long: `Attach a file to a record. Without --id a new record of class is
created first. The record is printed as JSON once every style is stored.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			class, name, path := args[0], args[1], args[2]

			return a.run(cmd.Context(), func(ctx context.Context) error {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()

				var m *records.Model
				if id == "" {
					m, err = a.infra.Records.Create(ctx, class)
				} else {
					m, err = a.find(ctx, class, id)
				}
				if err != nil {
					return err
				}

				att, err := m.Attachment(name)
				if err != nil {
					return err
				}
				if err := att.Assign(ctx, f); err != nil {
					return err
				}
				if err := a.infra.Records.Save(ctx, m); err != nil {
					m.Discard()
					return err
				}
				return writeJSON(cmd.OutOrStdout(), m.View())
			})
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "existing record id")
	return cmd
}

func (a *app) detachCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detach <class> <id> <attachment>",
		Short: "Remove an attachment and delete its stored files",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), func(ctx context.Context) error {
				m, err := a.find(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				att, err := m.Attachment(args[2])
				if err != nil {
					return err
				}
				if err := att.Assign(ctx, nil); err != nil {
					return err
				}
				if err := a.infra.Records.Save(ctx, m); err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), m.View())
			})
		},
	}
}

func (a *app) destroyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy <class> <id>",
		Short: "Delete a record and every stored file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), func(ctx context.Context) error {
				m, err := a.find(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if err := a.infra.Records.Destroy(ctx, m); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "destroyed %s %s\n", m.Class(), m.ID())
				return nil
			})
		},
	}
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <class> <id>",
		Short: "Print a record and the URL of every style",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), func(ctx context.Context) error {
				m, err := a.find(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), m.View())
			})
		},
	}
}
