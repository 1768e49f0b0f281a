package pagination

import (
	"context"
	"sync"
	"time"
)

// Trigger reports that the sentinel became visible. Start may be called
// again after Stop; Stop does not wait for a fire already underway.
type Trigger interface {
	Start(ctx context.Context, fire func())
	Stop()
}

// SignalTrigger fires whenever Signal is called while started. It is the
// counterpart of a viewport intersection observer: the UI layer calls
// Signal when the sentinel intersects the viewport.
type SignalTrigger struct {
	mu   sync.Mutex
	fire func()
}

// NewSignalTrigger creates a stopped SignalTrigger.
func NewSignalTrigger() *SignalTrigger {
	return &SignalTrigger{}
}

// Start implements Trigger.
func (s *SignalTrigger) Start(_ context.Context, fire func()) {
	s.mu.Lock()
	s.fire = fire
	s.mu.Unlock()
}

// Stop implements Trigger.
func (s *SignalTrigger) Stop() {
	s.mu.Lock()
	s.fire = nil
	s.mu.Unlock()
}

// Signal reports the sentinel as visible. It is a no-op while stopped.
func (s *SignalTrigger) Signal() {
	s.mu.Lock()
	fire := s.fire
	s.mu.Unlock()
	if fire != nil {
		fire()
	}
}

// Defaults for ScrollTrigger.
const (
	DefaultScrollMargin   = 1000
	DefaultScrollInterval = 100 * time.Millisecond
)

// Viewport describes the scroll position of the page hosting a card grid.
type Viewport struct {
	ScrollY        float64
	InnerHeight    float64
	DocumentHeight float64
}

// ScrollTrigger polls a viewport and fires when it is within Margin of the
// bottom of the document.
type ScrollTrigger struct {
	Viewport func() Viewport
	Margin   float64
	Interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewScrollTrigger creates a ScrollTrigger with the default margin and interval.
func NewScrollTrigger(viewport func() Viewport) *ScrollTrigger {
	return &ScrollTrigger{
		Viewport: viewport,
		Margin:   DefaultScrollMargin,
		Interval: DefaultScrollInterval,
	}
}

// NearBottom reports whether v is close enough to the end to load more.
func (s *ScrollTrigger) NearBottom(v Viewport) bool {
	return v.ScrollY+v.InnerHeight >= v.DocumentHeight-s.Margin
}

// Start implements Trigger. Polling stops with Stop or when ctx is done.
func (s *ScrollTrigger) Start(ctx context.Context, fire func()) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultScrollInterval
	}

	pollCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				if s.NearBottom(s.Viewport()) {
					fire()
				}
			}
		}
	}()
}

// Stop implements Trigger.
func (s *ScrollTrigger) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
}
