package pagination

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Sternrassler/pagefeed/pkg/client"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// BatchConfig holds batch fetcher configuration
type BatchConfig struct {
	Config

	// MaxConcurrency is the maximum number of parallel page requests
	MaxConcurrency int

	// MaxPages bounds the sequential walk of endpoints without page metadata
	MaxPages int
}

// DefaultBatchConfig returns the batch defaults for endpoint.
func DefaultBatchConfig(endpoint string) BatchConfig {
	return BatchConfig{
		Config:         Config{Endpoint: endpoint, PageSize: DefaultPageSize},
		MaxConcurrency: 4,
		MaxPages:       10000,
	}
}

// PageResult is one fetched page.
type PageResult struct {
	PageNumber int
	Records    []client.Record
	HTML       string
}

// BatchFetcher reads every page of an endpoint without a render target.
type BatchFetcher struct {
	exec   PageExecutor
	config BatchConfig
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(exec PageExecutor, config BatchConfig) (*BatchFetcher, error) {
	if exec == nil {
		return nil, fmt.Errorf("executor is required")
	}
	cfg, err := config.Config.withDefaults()
	if err != nil {
		return nil, err
	}
	config.Config = cfg
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.MaxPages <= 0 {
		config.MaxPages = 10000
	}

	return &BatchFetcher{
		exec:   exec,
		config: config,
	}, nil
}

// FetchAllPages fetches page 1 and, when it carries pagination.pages, the
// remaining pages in parallel. Without page metadata pages are walked in
// order until the end-of-data rule says stop.
// On error the pages fetched so far are returned with it.
func (bf *BatchFetcher) FetchAllPages(ctx context.Context) (map[int]PageResult, error) {
	start := time.Now()
	endpoint := bf.config.Endpoint

	first, err := requestPage(ctx, bf.exec, bf.config.Config, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch first page: %w", err)
	}

	results := map[int]PageResult{1: pageResult(1, first)}

	if first.Pagination == nil || first.Pagination.Pages <= 0 {
		return bf.walk(ctx, results, first, start)
	}

	totalPages := min(first.Pagination.Pages, bf.config.MaxPages)
	log.Info().
		Str("endpoint", endpoint).
		Int("total_pages", totalPages).
		Msg("Starting parallel page fetch")

	if totalPages == 1 {
		log.Info().
			Str("endpoint", endpoint).
			Int("pages", 1).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return results, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bf.config.MaxConcurrency)

	for page := 2; page <= totalPages; page++ {
		g.Go(func() error {
			env, err := requestPage(gctx, bf.exec, bf.config.Config, page)
			if err != nil {
				log.Warn().
					Err(err).
					Int("page", page).
					Msg("Page fetch failed")
				return fmt.Errorf("page %d: %w", page, err)
			}

			mu.Lock()
			results[page] = pageResult(page, env)
			fetched := len(results)
			mu.Unlock()

			if fetched%50 == 0 {
				log.Info().
					Int("fetched", fetched).
					Int("total", totalPages).
					Float64("progress_pct", float64(fetched)/float64(totalPages)*100).
					Msg("Fetch progress")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Warn().
			Err(err).
			Int("fetched_pages", len(results)).
			Int("total_pages", totalPages).
			Msg("Batch fetch failed - returning partial results")
		return results, fmt.Errorf("partial data (%d/%d pages): %w", len(results), totalPages, err)
	}

	log.Info().
		Str("endpoint", endpoint).
		Int("pages", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return results, nil
}

// walk continues page by page after page 1.
func (bf *BatchFetcher) walk(ctx context.Context, results map[int]PageResult, env *client.Envelope, start time.Time) (map[int]PageResult, error) {
	page := 1
	for nextHasMore(env, bf.config.PageSize) && page < bf.config.MaxPages {
		page++
		var err error
		env, err = requestPage(ctx, bf.exec, bf.config.Config, page)
		if err != nil {
			return results, fmt.Errorf("partial data (%d pages): page %d: %w", len(results), page, err)
		}
		results[page] = pageResult(page, env)
	}

	log.Info().
		Str("endpoint", bf.config.Endpoint).
		Int("pages", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete (sequential)")

	return results, nil
}

func pageResult(page int, env *client.Envelope) PageResult {
	return PageResult{PageNumber: page, Records: env.Data, HTML: env.HTML}
}

// Ordered returns results sorted by page number.
func Ordered(results map[int]PageResult) []PageResult {
	pages := make([]PageResult, 0, len(results))
	for _, r := range results {
		pages = append(pages, r)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })
	return pages
}
