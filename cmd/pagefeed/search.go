package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Sternrassler/pagefeed/pkg/search"
	"github.com/spf13/cobra"
)

func newSearchCommand(root *rootOptions) *cobra.Command {
	var endpoint string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run one live search and print the result fragment",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), root, endpoint, strings.Join(args, " "), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&endpoint, "endpoint", "e", "/search", "Search endpoint, absolute or relative to base_url")
	return cmd
}

func runSearch(ctx context.Context, root *rootOptions, endpoint, query string, stdout, stderr io.Writer) error {
	a, err := newApp(ctx, root, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	a.cfg.Loader.Endpoint = endpoint
	searchURL, err := a.cfg.EndpointURL()
	if err != nil {
		return err
	}

	sink := &printSink{out: stdout}
	ls, err := search.New(a.exec, sink, search.DefaultConfig(searchURL))
	if err != nil {
		return err
	}
	defer ls.Close()

	env, err := ls.Search(ctx, query)
	if err != nil {
		return fmt.Errorf("search %q: %w", query, err)
	}
	if err := env.Err(); err != nil {
		return fmt.Errorf("search %q: %w", query, err)
	}
	if env.HTML == "" {
		sink.ShowMessage("No results", false)
		return nil
	}
	sink.ShowResults(env.HTML)
	return nil
}

// printSink writes search output to a terminal.
type printSink struct {
	out io.Writer
}

func (s *printSink) ShowPending()            {}
func (s *printSink) ShowResults(html string) { fmt.Fprintln(s.out, html) }
func (s *printSink) ShowMessage(text string, isError bool) {
	if isError {
		text = "error: " + text
	}
	fmt.Fprintln(s.out, text)
}
func (s *printSink) Clear() {}
