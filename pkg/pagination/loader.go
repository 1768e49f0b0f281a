package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/pagefeed/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Page sizes used by the table and card-grid surfaces.
const (
	DefaultPageSize = 20
	CardPageSize    = 12
)

// Prometheus metrics for loader operations.
var (
	pagesLoaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagefeed_pages_loaded_total",
		Help: "Total pages appended by loaders",
	}, []string{"endpoint"})

	recordsLoaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagefeed_records_loaded_total",
		Help: "Total records appended by loaders",
	}, []string{"endpoint"})

	loaderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagefeed_loader_errors_total",
		Help: "Total page loads that ended in the error state",
	}, []string{"endpoint"})

	pageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pagefeed_page_load_duration_seconds",
		Help:    "Duration from dispatch to settlement of a page load",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	triggerDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagefeed_trigger_dropped_total",
		Help: "Visibility signals ignored because the loader was not idle",
	})
)

// PageExecutor performs page requests. *client.Executor implements it.
type PageExecutor interface {
	NewDescriptor(method, rawURL string) client.Descriptor
	Execute(ctx context.Context, d client.Descriptor) (*client.Result, error)
}

// Config describes the paged endpoint a Loader reads.
type Config struct {
	// Endpoint is the page URL without page/size parameters.
	Endpoint string

	// PageSize is sent as size= and drives the short-batch rule.
	PageSize int

	// Query holds caller filter parameters appended to every page request.
	Query url.Values

	// Headers are added to every page request.
	Headers map[string]string

	// Timeout overrides the executor's per-attempt timeout when > 0.
	Timeout time.Duration

	// Retry overrides the executor's retry budget when set.
	Retry *client.RetryPolicy

	Messages Messages
}

func (c Config) withDefaults() (Config, error) {
	if c.Endpoint == "" {
		return c, fmt.Errorf("endpoint is required")
	}
	if _, err := url.Parse(c.Endpoint); err != nil {
		return c, fmt.Errorf("invalid endpoint: %w", err)
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	c.Messages = c.Messages.withDefaults()
	return c, nil
}

// pageURL builds endpoint?page=N&size=S plus the filter parameters.
func (c Config) pageURL(page int) string {
	u, _ := url.Parse(c.Endpoint)
	q := u.Query()
	for k, vs := range c.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(c.PageSize))
	u.RawQuery = q.Encode()
	return u.String()
}

func (c Config) descriptor(exec PageExecutor, page int) client.Descriptor {
	d := exec.NewDescriptor(http.MethodGet, c.pageURL(page))
	if c.Timeout > 0 {
		d.Timeout = c.Timeout
	}
	if c.Retry != nil {
		d = d.WithRetry(c.Retry.MaxRetries, c.Retry.Delay)
	}
	for k, v := range c.Headers {
		d = d.WithHeader(k, v)
	}
	return d
}

// requestPage fetches one page and decodes its envelope. A success:false
// envelope is returned together with its *client.EnvelopeError.
func requestPage(ctx context.Context, exec PageExecutor, cfg Config, page int) (*client.Envelope, error) {
	res, err := exec.Execute(ctx, cfg.descriptor(exec, page))
	if err != nil {
		return nil, err
	}
	env, err := res.Envelope()
	if err != nil {
		return nil, err
	}
	if err := env.Err(); err != nil {
		return env, err
	}
	if !env.DataSet && env.HTML == "" && !env.HasMoreSet && env.Pagination == nil {
		return nil, fmt.Errorf("%w: page envelope carries neither data nor html", client.ErrProtocol)
	}
	return env, nil
}

// nextHasMore applies the end-of-data rule. For record pages a full batch
// means more may follow even without has_more, so an exactly full last page
// costs one extra empty fetch. Fragment pages rely on the server flags.
func nextHasMore(env *client.Envelope, pageSize int) bool {
	if env.DataSet {
		return env.HasMore || len(env.Data) == pageSize
	}
	if env.HasMoreSet {
		return env.HasMore
	}
	if env.Pagination != nil {
		return env.Pagination.HasNext
	}
	return false
}

// ticket identifies a claimed page fetch.
type ticket struct {
	ctx        context.Context
	generation uint64
	page       int
	started    time.Time
}

// Loader fetches pages of one endpoint into a RenderTarget, one at a time.
type Loader struct {
	exec   PageExecutor
	target RenderTarget
	config Config
	logger zerolog.Logger

	// renderMu serialises every RenderTarget call. Lock order: renderMu, then mu.
	renderMu sync.Mutex

	mu          sync.Mutex
	idle        *sync.Cond
	state       State
	page        int
	hasMore     bool
	totalLoaded int
	lastErr     error
	generation  uint64
	background  int
	trigger     Trigger
	triggerCtx  context.Context
}

// New creates a Loader in the idle state at page 1.
func New(exec PageExecutor, target RenderTarget, cfg Config) (*Loader, error) {
	if exec == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if target == nil {
		return nil, fmt.Errorf("render target is required")
	}
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	l := &Loader{
		exec:       exec,
		target:     target,
		config:     cfg,
		logger:     log.With().Str("component", "loader").Str("endpoint", cfg.Endpoint).Logger(),
		state:      StateIdle,
		page:       1,
		hasMore:    true,
		triggerCtx: context.Background(),
	}
	l.idle = sync.NewCond(&l.mu)
	return l, nil
}

// Snapshot returns the current pagination state.
func (l *Loader) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		State:       l.state,
		CurrentPage: l.page,
		IsLoading:   l.state == StateFetching,
		HasMore:     l.hasMore,
		TotalLoaded: l.totalLoaded,
		LastError:   l.lastErr,
	}
}

// Attach registers trig. Each fire while the loader is idle loads the next
// page in the background using ctx; fires in any other state are dropped.
func (l *Loader) Attach(ctx context.Context, trig Trigger) error {
	l.mu.Lock()
	if l.state == StateDestroyed {
		l.mu.Unlock()
		return ErrDestroyed
	}
	old := l.trigger
	l.trigger = trig
	l.triggerCtx = ctx
	exhausted := l.state == StateExhausted
	l.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	if exhausted {
		return nil
	}
	trig.Start(ctx, l.onVisible)

	// An exhaustion, Destroy or second Attach that ran before Start had no
	// running trigger to stop.
	l.mu.Lock()
	live := l.trigger == trig && l.state != StateExhausted && l.state != StateDestroyed
	l.mu.Unlock()
	if !live {
		trig.Stop()
		return nil
	}
	l.logger.Debug().Msg("Trigger attached")
	return nil
}

// LoadNextPage fetches the current page and blocks until it settles.
// It only dispatches from the idle state.
func (l *Loader) LoadNextPage(ctx context.Context) error {
	t, err := l.claim(ctx, false)
	if err != nil {
		return err
	}
	return l.fetch(t)
}

// Retry repeats the page that failed. It is also accepted while idle.
func (l *Loader) Retry(ctx context.Context) error {
	t, err := l.claim(ctx, true)
	if err != nil {
		return err
	}
	l.logger.Debug().Int("page", t.page).Msg("Retrying page")
	return l.fetch(t)
}

// Reset clears the target, starts a new page cursor, reattaches the trigger
// and loads page 1. A fetch still outstanding from before the reset is
// discarded when it arrives.
func (l *Loader) Reset(ctx context.Context) error {
	l.renderMu.Lock()

	l.mu.Lock()
	if l.state == StateDestroyed {
		l.mu.Unlock()
		l.renderMu.Unlock()
		return ErrDestroyed
	}
	l.generation++
	l.page = 1
	l.hasMore = true
	l.totalLoaded = 0
	l.lastErr = nil
	l.state = StateFetching
	t := ticket{ctx: ctx, generation: l.generation, page: 1, started: time.Now()}
	trig, trigCtx := l.trigger, l.triggerCtx
	l.mu.Unlock()

	clearErr := l.target.Clear()
	if trig != nil {
		trig.Stop()
		trig.Start(trigCtx, l.onVisible)
	}
	l.target.ShowIndicator(Indicator{Kind: IndicatorLoading, Text: l.config.Messages.Loading})
	l.renderMu.Unlock()

	l.logger.Debug().Uint64("generation", t.generation).Msg("Loader reset")

	if clearErr != nil {
		return l.settle(t, nil, fmt.Errorf("clear target: %w", clearErr))
	}
	return l.fetch(t)
}

// Destroy stops the trigger and removes the sentinel. Pages still in
// flight are dropped on arrival. Repeated calls are no-ops.
func (l *Loader) Destroy() {
	l.renderMu.Lock()
	defer l.renderMu.Unlock()

	l.mu.Lock()
	if l.state == StateDestroyed {
		l.mu.Unlock()
		return
	}
	l.state = StateDestroyed
	l.generation++
	trig := l.trigger
	l.trigger = nil
	l.mu.Unlock()

	if trig != nil {
		trig.Stop()
	}
	l.target.RemoveSentinel()
	l.logger.Debug().Msg("Loader destroyed")
}

// Wait blocks until no trigger-started fetch is outstanding.
func (l *Loader) Wait() {
	l.mu.Lock()
	for l.background > 0 {
		l.idle.Wait()
	}
	l.mu.Unlock()
}

// onVisible is the trigger callback.
func (l *Loader) onVisible() {
	l.mu.Lock()
	ctx := l.triggerCtx
	l.mu.Unlock()

	t, err := l.claim(ctx, false)
	if err != nil {
		triggerDropped.Inc()
		return
	}

	l.mu.Lock()
	l.background++
	l.mu.Unlock()

	go func() {
		defer func() {
			l.mu.Lock()
			l.background--
			l.idle.Broadcast()
			l.mu.Unlock()
		}()
		if err := l.fetch(t); err != nil && !errors.Is(err, ErrStale) {
			l.logger.Debug().Err(err).Int("page", t.page).Msg("Triggered page load failed")
		}
	}()
}

// claim moves the loader to fetching and shows the loading indicator.
// The state is claimed under mu alone, so a target that reports visibility
// from inside a render call is turned away without waiting on renderMu.
func (l *Loader) claim(ctx context.Context, retry bool) (ticket, error) {
	l.mu.Lock()
	switch l.state {
	case StateIdle:
	case StateErrorDisplayed:
		if !retry {
			l.mu.Unlock()
			return ticket{}, ErrNeedsRetry
		}
	case StateFetching:
		l.mu.Unlock()
		return ticket{}, ErrBusy
	case StateExhausted:
		l.mu.Unlock()
		return ticket{}, ErrExhausted
	default:
		l.mu.Unlock()
		return ticket{}, ErrDestroyed
	}
	l.state = StateFetching
	l.lastErr = nil
	t := ticket{ctx: ctx, generation: l.generation, page: l.page, started: time.Now()}
	l.mu.Unlock()

	l.renderMu.Lock()
	if l.current(t) {
		l.target.ShowIndicator(Indicator{Kind: IndicatorLoading, Text: l.config.Messages.Loading})
	}
	l.renderMu.Unlock()
	return t, nil
}

func (l *Loader) fetch(t ticket) error {
	l.logger.Debug().Int("page", t.page).Msg("Fetching page")
	env, err := requestPage(t.ctx, l.exec, l.config, t.page)
	return l.settle(t, env, err)
}

// settle applies a fetch outcome unless the ticket went stale.
func (l *Loader) settle(t ticket, env *client.Envelope, fetchErr error) error {
	l.renderMu.Lock()
	defer l.renderMu.Unlock()

	if !l.current(t) {
		l.logger.Debug().Int("page", t.page).Msg("Discarding stale page")
		return ErrStale
	}

	pageDuration.WithLabelValues(l.config.Endpoint).Observe(time.Since(t.started).Seconds())

	if fetchErr == nil {
		fetchErr = l.render(env)
	}
	if fetchErr != nil {
		return l.fail(fetchErr)
	}

	hasMore := nextHasMore(env, l.config.PageSize)

	l.mu.Lock()
	l.page++
	l.totalLoaded += len(env.Data)
	l.hasMore = hasMore
	l.state = StateIdle
	if !hasMore {
		l.state = StateExhausted
	}
	trig := l.trigger
	total := l.totalLoaded
	l.mu.Unlock()

	pagesLoaded.WithLabelValues(l.config.Endpoint).Inc()
	recordsLoaded.WithLabelValues(l.config.Endpoint).Add(float64(len(env.Data)))

	l.logger.Debug().
		Int("page", t.page).
		Int("records", len(env.Data)).
		Int("total_loaded", total).
		Bool("has_more", hasMore).
		Msg("Page loaded")

	if !hasMore {
		l.target.ShowIndicator(Indicator{Kind: IndicatorNoMore, Text: l.config.Messages.NoMore})
		if trig != nil {
			trig.Stop()
		}
		l.logger.Debug().Int("total_loaded", total).Msg("Endpoint exhausted")
	}
	return nil
}

func (l *Loader) current(t ticket) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state != StateDestroyed && l.generation == t.generation
}

func (l *Loader) render(env *client.Envelope) error {
	if env.DataSet {
		if err := l.target.Append(env.Data); err != nil {
			return fmt.Errorf("render records: %w", err)
		}
		return nil
	}
	if env.HTML != "" {
		if err := l.target.AppendHTML(env.HTML); err != nil {
			return fmt.Errorf("render fragment: %w", err)
		}
	}
	return nil
}

// fail shows the inline error; the page is not advanced. renderMu is held.
func (l *Loader) fail(err error) error {
	l.mu.Lock()
	l.state = StateErrorDisplayed
	l.lastErr = err
	page := l.page
	l.mu.Unlock()

	loaderErrors.WithLabelValues(l.config.Endpoint).Inc()
	l.logger.Warn().Err(err).Int("page", page).Msg("Page load failed")

	l.target.ShowIndicator(Indicator{
		Kind:       IndicatorError,
		Text:       l.config.Messages.errorText(err),
		RetryLabel: l.config.Messages.Retry,
	})
	return err
}
