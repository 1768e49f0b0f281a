// Package search implements debounced live search against an envelope
// endpoint that answers with a pre-rendered html fragment.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Sternrassler/pagefeed/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	searchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagefeed_searches_total",
		Help: "Total live searches by outcome",
	}, []string{"outcome"})
)

// Executor performs search requests. *client.Executor implements it.
type Executor interface {
	NewDescriptor(method, rawURL string) client.Descriptor
	Execute(ctx context.Context, d client.Descriptor) (*client.Result, error)
}

// ResultSink is the results container next to a search box.
type ResultSink interface {
	ShowPending()
	ShowResults(html string)
	ShowMessage(text string, isError bool)
	Clear()
}

// Config holds live search settings.
type Config struct {
	// URL is the search endpoint; q= and ajax=1 are added.
	URL string

	Debounce  time.Duration
	MinLength int

	NoResults string
	ErrorText string
}

// DefaultConfig returns the live search defaults for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:       url,
		Debounce:  300 * time.Millisecond,
		MinLength: 2,
		NoResults: "No results",
		ErrorText: "Search failed",
	}
}

// LiveSearch debounces keystrokes and keeps at most one search running;
// a newer query cancels the older one and its answer is never shown.
type LiveSearch struct {
	exec   Executor
	sink   ResultSink
	config Config
	logger zerolog.Logger

	mu     sync.Mutex
	seq    uint64
	timer  *time.Timer
	cancel context.CancelFunc
	closed bool

	// sinkMu serialises sink calls.
	sinkMu sync.Mutex
}

// New creates a LiveSearch.
func New(exec Executor, sink ResultSink, cfg Config) (*LiveSearch, error) {
	if exec == nil || sink == nil {
		return nil, fmt.Errorf("executor and sink are required")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("search url is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid search url: %w", err)
	}
	def := DefaultConfig(cfg.URL)
	if cfg.Debounce < 0 {
		cfg.Debounce = 0
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = def.MinLength
	}
	if cfg.NoResults == "" {
		cfg.NoResults = def.NoResults
	}
	if cfg.ErrorText == "" {
		cfg.ErrorText = def.ErrorText
	}

	return &LiveSearch{
		exec:   exec,
		sink:   sink,
		config: cfg,
		logger: log.With().Str("component", "search").Logger(),
	}, nil
}

// Input reports the current content of the search box. Queries shorter than
// MinLength clear the results; others run after the debounce delay unless a
// newer Input arrives first.
func (s *LiveSearch) Input(ctx context.Context, query string) {
	query = strings.TrimSpace(query)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.seq++
	seq := s.seq
	s.stopLocked()
	short := utf8.RuneCountInString(query) < s.config.MinLength
	if !short {
		s.timer = time.AfterFunc(s.config.Debounce, func() { s.run(ctx, seq, query) })
	}
	s.mu.Unlock()

	if short {
		s.deliver(seq, func() { s.sink.Clear() })
	}
}

// Close cancels any pending or running search.
func (s *LiveSearch) Close() {
	s.mu.Lock()
	s.closed = true
	s.seq++
	s.stopLocked()
	s.mu.Unlock()
}

// Search runs query immediately and returns the decoded envelope.
func (s *LiveSearch) Search(ctx context.Context, query string) (*client.Envelope, error) {
	u, _ := url.Parse(s.config.URL)
	q := u.Query()
	q.Set("q", query)
	q.Set("ajax", "1")
	u.RawQuery = q.Encode()

	res, err := s.exec.Execute(ctx, s.exec.NewDescriptor(http.MethodGet, u.String()))
	if err != nil {
		return nil, err
	}
	return res.Envelope()
}

func (s *LiveSearch) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *LiveSearch) run(ctx context.Context, seq uint64, query string) {
	searchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if seq != s.seq {
		s.mu.Unlock()
		return
	}
	s.cancel = cancel
	s.mu.Unlock()

	s.deliver(seq, func() { s.sink.ShowPending() })

	env, err := s.Search(searchCtx, query)
	switch {
	case errors.Is(err, client.ErrAborted):
		searchesTotal.WithLabelValues("superseded").Inc()
		s.logger.Debug().Str("query", query).Msg("Search superseded")
	case err != nil:
		searchesTotal.WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Str("query", query).Msg("Search failed")
		s.deliver(seq, func() { s.sink.ShowMessage(s.config.ErrorText, true) })
	case !env.Success:
		searchesTotal.WithLabelValues("empty").Inc()
		s.deliver(seq, func() { s.sink.ShowMessage(s.config.NoResults, false) })
	default:
		searchesTotal.WithLabelValues("ok").Inc()
		s.deliver(seq, func() { s.sink.ShowResults(env.HTML) })
	}
}

// deliver runs show unless a newer input superseded seq.
func (s *LiveSearch) deliver(seq uint64, show func()) {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()

	s.mu.Lock()
	current := seq == s.seq
	s.mu.Unlock()
	if !current {
		searchesTotal.WithLabelValues("superseded").Inc()
		return
	}
	show()
}
