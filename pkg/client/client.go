// Package client provides the request executor used by every AJAX surface:
// bounded per-attempt timeouts, a fixed retry budget with constant delay,
// JSON/text body normalisation and an optional conditional-GET cache.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/pagefeed/pkg/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for executor operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagefeed_requests_total",
		Help: "Total HTTP attempts by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pagefeed_request_duration_seconds",
		Help:    "Duration of logical requests (all attempts included) by endpoint",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagefeed_failures_total",
		Help: "Total failed attempts by failure kind",
	}, []string{"kind"})
)

// BodyKind tells how a successful response body was interpreted.
type BodyKind string

const (
	// BodyJSON is set when the response declared application/json and parsed.
	BodyJSON BodyKind = "json"

	// BodyText is set for every other content type.
	BodyText BodyKind = "text"
)

// Descriptor describes one logical request. It is a value: the With* helpers
// return modified copies.
type Descriptor struct {
	URL     string
	Method  string
	Body    []byte
	Headers map[string]string

	// Timeout bounds each attempt. Zero means the executor default.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt (0 = one attempt).
	MaxRetries int

	// RetryDelay is the constant wait between attempts.
	RetryDelay time.Duration
}

// WithHeader returns a copy of d with the header set.
func (d Descriptor) WithHeader(key, value string) Descriptor {
	headers := make(map[string]string, len(d.Headers)+1)
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[key] = value
	d.Headers = headers
	return d
}

// WithBody returns a copy of d carrying body and the given content type.
func (d Descriptor) WithBody(body []byte, contentType string) Descriptor {
	d.Body = append([]byte(nil), body...)
	if contentType != "" {
		return d.WithHeader("Content-Type", contentType)
	}
	return d
}

// WithRetry returns a copy of d with a different retry budget.
func (d Descriptor) WithRetry(maxRetries int, delay time.Duration) Descriptor {
	d.MaxRetries = maxRetries
	d.RetryDelay = delay
	return d
}

// Result is the success outcome of Execute.
type Result struct {
	Kind       BodyKind
	StatusCode int
	Header     http.Header
	Body       []byte

	// JSON holds the decoded body when Kind is BodyJSON.
	JSON any

	// Attempts is the number of attempts it took, retries included.
	Attempts int

	// FromCache is set when a 304 revalidation was answered from the cache.
	FromCache bool
}

// Text returns the raw body.
func (r *Result) Text() string {
	return string(r.Body)
}

// Envelope decodes the body as the standard response envelope.
func (r *Result) Envelope() (*Envelope, error) {
	if r.Kind != BodyJSON {
		return nil, fmt.Errorf("%w: expected JSON envelope, got %s body", ErrProtocol, r.Kind)
	}
	return DecodeEnvelope(r.Body)
}

// Executor issues descriptors against HTTP endpoints.
// It holds no per-request state, so one Executor serves concurrent callers.
type Executor struct {
	httpClient *http.Client
	cache      *cache.Manager
	guard      *Guard
	config     Config
	logger     zerolog.Logger
}

// Config holds the executor configuration.
type Config struct {
	// HTTPClient performs the attempts. Per-attempt timeouts are applied
	// through the request context, so its own Timeout should stay zero.
	HTTPClient *http.Client

	// Cache enables conditional GET revalidation (optional).
	Cache *cache.Manager

	// UserAgent is sent with every request.
	UserAgent string

	// Timeout is the default per-attempt timeout.
	Timeout time.Duration

	// Retry is the default retry budget.
	Retry RetryPolicy
}

// DefaultConfig returns the defaults of the AJAX layer: 30s timeout,
// 3 retries, 1s apart.
func DefaultConfig(userAgent string) Config {
	return Config{
		HTTPClient: &http.Client{},
		UserAgent:  userAgent,
		Timeout:    30 * time.Second,
		Retry:      DefaultRetryPolicy(),
	}
}

// New creates a new Executor.
func New(cfg Config) (*Executor, error) {
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}
	if cfg.Retry.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.Delay < 0 {
		return nil, fmt.Errorf("retry_delay must be >= 0 (got %s)", cfg.Retry.Delay)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	return &Executor{
		httpClient: cfg.HTTPClient,
		cache:      cfg.Cache,
		guard:      NewGuard(),
		config:     cfg,
		logger:     log.With().Str("component", "executor").Logger(),
	}, nil
}

// NewDescriptor returns a descriptor carrying the executor defaults.
func (e *Executor) NewDescriptor(method, rawURL string) Descriptor {
	return Descriptor{
		URL:        rawURL,
		Method:     method,
		Timeout:    e.config.Timeout,
		MaxRetries: e.config.Retry.MaxRetries,
		RetryDelay: e.config.Retry.Delay,
	}
}

// Get executes a GET with the executor defaults.
func (e *Executor) Get(ctx context.Context, rawURL string) (*Result, error) {
	return e.Execute(ctx, e.NewDescriptor(http.MethodGet, rawURL))
}

// Execute performs the logical request described by d, retrying timeouts,
// network errors and non-2xx statuses up to d.MaxRetries times.
// Failures are returned as *RequestError.
func (e *Executor) Execute(ctx context.Context, d Descriptor) (*Result, error) {
	if d.Method == "" {
		d.Method = http.MethodGet
	}
	if d.Timeout <= 0 {
		d.Timeout = e.config.Timeout
	}
	if d.RetryDelay < 0 {
		d.RetryDelay = 0
	}

	probe, err := http.NewRequest(d.Method, d.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	endpoint := probe.URL.Path

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	logger := e.logger.With().Str("endpoint", endpoint).Str("method", d.Method).Logger()

	var cacheKey cache.Key
	var cached *cache.Entry
	if e.cache != nil && d.Method == http.MethodGet {
		cacheKey = cache.KeyFromURL(probe.URL)
		cached, err = e.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn().Err(err).Msg("Cache get error")
		}
	}

	res, reqErr := retryFixed(ctx, RetryPolicy{MaxRetries: d.MaxRetries, Delay: d.RetryDelay}, logger,
		func(ctx context.Context, attempt int) (*Result, *RequestError) {
			return e.attempt(ctx, d, endpoint, cached, logger)
		})
	if reqErr != nil {
		reqErr.URL = d.URL
		event := logger.Error()
		if reqErr.Kind == FailureAborted {
			event = logger.Debug()
		}
		event.
			Err(reqErr).
			Str("kind", string(reqErr.Kind)).
			Int("attempts", reqErr.Attempts).
			Msg("Request failed")
		return nil, reqErr
	}

	if cached == nil || !res.FromCache {
		e.storeInCache(ctx, cacheKey, res, logger)
	} else if err := e.cache.Refresh(ctx, cacheKey, res.Header); err != nil {
		logger.Warn().Err(err).Msg("Failed to refresh cache TTL")
	}

	return res, nil
}

// attempt performs one HTTP round trip under its own timeout.
func (e *Executor) attempt(ctx context.Context, d Descriptor, endpoint string, cached *cache.Entry, logger zerolog.Logger) (*Result, *RequestError) {
	if err := ctx.Err(); err != nil {
		return nil, &RequestError{Kind: FailureAborted, Err: err}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var body io.Reader
	if d.Body != nil {
		body = bytes.NewReader(d.Body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, d.Method, d.URL, body)
	if err != nil {
		return nil, &RequestError{Kind: FailureNetwork, Err: err}
	}

	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")
	if e.config.UserAgent != "" {
		req.Header.Set("User-Agent", e.config.UserAgent)
	}
	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}

	if cached != nil && cache.ShouldMakeConditionalRequest(cached) {
		cache.AddConditionalHeaders(req, cached)
		cache.ConditionalRequestsSent.Inc()
		logger.Debug().Str("etag", cached.ETag).Msg("Making conditional request")
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, e.failure(ctx, attemptCtx, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, e.failure(ctx, attemptCtx, err)
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusNotModified && cached != nil {
		logger.Debug().Dur("age", cached.Age()).Msg("304 Not Modified - using cache")
		cache.NotModifiedResponses.Inc()
		res, reqErr := normalizeBody(cached.StatusCode, mergeHeaders(cached.Headers, resp.Header), cached.Data)
		if reqErr != nil {
			return nil, reqErr
		}
		res.FromCache = true
		return res, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		failuresTotal.WithLabelValues(string(FailureHTTP)).Inc()
		logger.Warn().
			Int("status", resp.StatusCode).
			Msg("Non-2xx response")
		return nil, &RequestError{
			Kind:       FailureHTTP,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", resp.Status),
		}
	}

	return normalizeBody(resp.StatusCode, resp.Header, payload)
}

// failure classifies a transport-level error.
func (e *Executor) failure(parent, attemptCtx context.Context, err error) *RequestError {
	kind := FailureNetwork
	switch {
	case parent.Err() != nil:
		kind = FailureAborted
		err = parent.Err()
	case errors.Is(attemptCtx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		kind = FailureTimeout
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			kind = FailureTimeout
		}
	}

	failuresTotal.WithLabelValues(string(kind)).Inc()
	e.logger.Debug().Err(err).Str("kind", string(kind)).Msg("Attempt failed")
	return &RequestError{Kind: kind, Err: err}
}

// storeInCache saves a fresh 200 response for later revalidation.
func (e *Executor) storeInCache(ctx context.Context, key cache.Key, res *Result, logger zerolog.Logger) {
	if e.cache == nil || key.Endpoint == "" || res.StatusCode != http.StatusOK {
		return
	}

	entry := cache.NewEntry(res.StatusCode, res.Header, res.Body)
	if !cache.ShouldMakeConditionalRequest(entry) {
		return
	}
	if err := e.cache.Set(ctx, key, entry); err != nil {
		logger.Warn().Err(err).Msg("Failed to cache response")
		return
	}
	logger.Debug().Dur("ttl", entry.TTL()).Msg("Cached response")
}

// normalizeBody turns a 2xx payload into a Result according to its content type.
func normalizeBody(status int, header http.Header, payload []byte) (*Result, *RequestError) {
	res := &Result{
		Kind:       BodyText,
		StatusCode: status,
		Header:     header,
		Body:       payload,
	}

	if !isJSON(header.Get("Content-Type")) {
		return res, nil
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		failuresTotal.WithLabelValues(string(FailureProtocol)).Inc()
		return nil, &RequestError{
			Kind:       FailureProtocol,
			StatusCode: status,
			Err:        fmt.Errorf("decode json body: %w", err),
		}
	}
	res.Kind = BodyJSON
	res.JSON = decoded
	return res, nil
}

func isJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}

func mergeHeaders(base, override http.Header) http.Header {
	merged := base.Clone()
	if merged == nil {
		merged = http.Header{}
	}
	for k, v := range override {
		if k == "Content-Length" {
			continue
		}
		merged[k] = v
	}
	return merged
}
