package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Sternrassler/pagefeed/pkg/client"
	"github.com/Sternrassler/pagefeed/pkg/metrics"
	"github.com/Sternrassler/pagefeed/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type fetchOptions struct {
	endpoint    string
	pageSize    int
	cards       bool
	query       map[string]string
	all         bool
	metricsAddr string
}

func newFetchCommand(root *rootOptions) *cobra.Command {
	opts := &fetchOptions{}

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Read every page of the configured endpoint as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd.Context(), root, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.endpoint, "endpoint", "e", "", "Paged endpoint, absolute or relative to base_url")
	flags.IntVar(&opts.pageSize, "page-size", 0, "Records per page (overrides loader.page_size)")
	flags.BoolVar(&opts.cards, "cards", false, fmt.Sprintf("Use the card-grid page size (%d) unless --page-size is set", pagination.CardPageSize))
	flags.StringToStringVarP(&opts.query, "query", "q", nil, "Filter parameters added to every page request")
	flags.BoolVar(&opts.all, "all", false, "Fetch pages in parallel when the endpoint reports a page count")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve /metrics and /health on this address while fetching")
	return cmd
}

func runFetch(ctx context.Context, root *rootOptions, opts *fetchOptions, stdout, stderr io.Writer) error {
	a, err := newApp(ctx, root, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.endpoint != "" {
		a.cfg.Loader.Endpoint = opts.endpoint
	}
	switch {
	case opts.pageSize > 0:
		a.cfg.Loader.PageSize = opts.pageSize
	case opts.cards:
		a.cfg.Loader.PageSize = pagination.CardPageSize
	}
	for k, v := range opts.query {
		if a.cfg.Loader.Query == nil {
			a.cfg.Loader.Query = map[string]string{}
		}
		a.cfg.Loader.Query[k] = v
	}

	endpoint, err := a.cfg.EndpointURL()
	if err != nil {
		return err
	}

	addr := opts.metricsAddr
	if addr == "" {
		addr = a.cfg.MetricsAddr
	}
	if addr != "" {
		srv := startMetricsServer(addr, a.logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn().Err(err).Msg("Metrics server shutdown failed")
			}
		}()
	}

	cfg := pagination.Config{
		Endpoint: endpoint,
		PageSize: a.cfg.Loader.PageSize,
		Query:    a.cfg.QueryValues(),
		Headers:  a.cfg.Loader.Headers,
		Messages: pagination.Messages{
			Loading:    a.cfg.Messages.Loading,
			NoMore:     a.cfg.Messages.NoMore,
			ErrorText:  a.cfg.Messages.ErrorText,
			LoadFailed: a.cfg.Messages.LoadFailed,
			Retry:      a.cfg.Messages.Retry,
		},
	}

	if opts.all {
		return fetchAll(ctx, a, cfg, stdout)
	}

	target := newLineTarget(stdout, a.logger)
	loader, err := pagination.New(a.exec, target, cfg)
	if err != nil {
		return err
	}
	defer loader.Destroy()

	if err := drain(ctx, loader, a.cfg.Loader.CLIRetries); err != nil {
		return err
	}

	snap := loader.Snapshot()
	a.logger.Info().
		Str("endpoint", endpoint).
		Int("pages", snap.CurrentPage-1).
		Int("records", snap.TotalLoaded).
		Msg("Fetch complete")
	return nil
}

// drain loads pages until the endpoint is exhausted. A failed page is
// retried up to retries times before the error is returned.
func drain(ctx context.Context, loader *pagination.Loader, retries int) error {
	failures := 0
	for {
		var err error
		if loader.Snapshot().State == pagination.StateErrorDisplayed {
			err = loader.Retry(ctx)
		} else {
			err = loader.LoadNextPage(ctx)
		}

		switch {
		case err == nil:
			failures = 0
		case errors.Is(err, pagination.ErrExhausted):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			failures++
			if failures > retries {
				return err
			}
		}

		if !loader.Snapshot().HasMore {
			return nil
		}
	}
}

func fetchAll(ctx context.Context, a *app, cfg pagination.Config, stdout io.Writer) error {
	bf, err := pagination.NewBatchFetcher(a.exec, pagination.BatchConfig{
		Config:         cfg,
		MaxConcurrency: a.cfg.Loader.MaxConcurrency,
	})
	if err != nil {
		return err
	}

	results, fetchErr := bf.FetchAllPages(ctx)

	target := newLineTarget(stdout, a.logger)
	for _, page := range pagination.Ordered(results) {
		if err := target.Append(page.Records); err != nil {
			return err
		}
		if page.HTML != "" {
			if err := target.AppendHTML(page.HTML); err != nil {
				return err
			}
		}
	}
	return fetchErr
}

func startMetricsServer(addr string, logger zerolog.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.NewServeMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", addr).Msg("Metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return srv
}

// lineTarget renders records as JSON lines and indicators as log events.
type lineTarget struct {
	mu     sync.Mutex
	enc    *json.Encoder
	out    io.Writer
	logger zerolog.Logger
}

func newLineTarget(w io.Writer, logger zerolog.Logger) *lineTarget {
	return &lineTarget{enc: json.NewEncoder(w), out: w, logger: logger}
}

func (t *lineTarget) Append(records []client.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range records {
		if err := t.enc.Encode(r); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	return nil
}

func (t *lineTarget) AppendHTML(fragment string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := fmt.Fprintln(t.out, fragment); err != nil {
		return fmt.Errorf("write fragment: %w", err)
	}
	return nil
}

func (t *lineTarget) Clear() error { return nil }

func (t *lineTarget) ShowIndicator(ind pagination.Indicator) {
	switch ind.Kind {
	case pagination.IndicatorError:
		t.logger.Warn().Str("retry", ind.RetryLabel).Msg(ind.Text)
	default:
		t.logger.Debug().Msg(ind.Text)
	}
}

func (t *lineTarget) RemoveSentinel() {}
