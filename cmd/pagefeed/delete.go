package main

import (
	"context"
	"fmt"
	"io"

	"github.com/Sternrassler/pagefeed/pkg/client"
	"github.com/spf13/cobra"
)

func newDeleteCommand(root *rootOptions) *cobra.Command {
	attrs := map[string]*string{
		client.AttrID:   new(string),
		client.AttrType: new(string),
		client.AttrName: new(string),
		client.AttrURL:  new(string),
	}

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a record through its delete endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			values := make(map[string]string, len(attrs))
			for k, v := range attrs {
				values[k] = *v
			}
			return runDelete(cmd.Context(), root, values, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(attrs[client.AttrID], "id", "", "Record id (data-id)")
	flags.StringVar(attrs[client.AttrType], "type", "", "Record type (data-type)")
	flags.StringVar(attrs[client.AttrName], "name", "", "Display name used in messages (data-name)")
	flags.StringVar(attrs[client.AttrURL], "url", "", "Explicit delete URL (data-url)")
	return cmd
}

func runDelete(ctx context.Context, root *rootOptions, attrs map[string]string, stdout, stderr io.Writer) error {
	a, err := newApp(ctx, root, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	action, err := client.ParseDeleteAction(a.cfg.BaseURL, attrs)
	if err != nil {
		return err
	}

	env, err := a.exec.Delete(ctx, action)
	if err != nil {
		return fmt.Errorf("delete %s: %w", action.Name, err)
	}

	msg := env.Message
	if msg == "" {
		msg = fmt.Sprintf("%s deleted", action.Name)
	}
	fmt.Fprintln(stdout, msg)
	return nil
}
