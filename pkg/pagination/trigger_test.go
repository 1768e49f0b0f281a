package pagination

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/pagefeed/internal/testutil"
)

func TestSignalTrigger(t *testing.T) {
	trigger := NewSignalTrigger()

	var fired atomic.Int32
	trigger.Signal() // not started
	if fired.Load() != 0 {
		t.Fatal("signal fired before Start")
	}

	trigger.Start(context.Background(), func() { fired.Add(1) })
	trigger.Signal()
	trigger.Signal()
	if got := fired.Load(); got != 2 {
		t.Errorf("fired %d times, want 2", got)
	}

	trigger.Stop()
	trigger.Signal()
	if got := fired.Load(); got != 2 {
		t.Errorf("fired %d times after Stop, want 2", got)
	}
}

func TestScrollTrigger_NearBottom(t *testing.T) {
	trigger := NewScrollTrigger(nil)

	tests := []struct {
		name string
		v    Viewport
		want bool
	}{
		{"top of long page", Viewport{ScrollY: 0, InnerHeight: 800, DocumentHeight: 5000}, false},
		{"just outside margin", Viewport{ScrollY: 3199, InnerHeight: 800, DocumentHeight: 5000}, false},
		{"at margin", Viewport{ScrollY: 3200, InnerHeight: 800, DocumentHeight: 5000}, true},
		{"bottom", Viewport{ScrollY: 4200, InnerHeight: 800, DocumentHeight: 5000}, true},
		{"short page", Viewport{ScrollY: 0, InnerHeight: 800, DocumentHeight: 900}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := trigger.NearBottom(tt.v); got != tt.want {
				t.Errorf("NearBottom(%+v) = %v, want %v", tt.v, got, tt.want)
			}
		})
	}
}

func TestScrollTrigger_Polls(t *testing.T) {
	var scrollY atomic.Int64
	trigger := NewScrollTrigger(func() Viewport {
		return Viewport{ScrollY: float64(scrollY.Load()), InnerHeight: 800, DocumentHeight: 5000}
	})
	trigger.Interval = 5 * time.Millisecond

	var fired atomic.Int32
	trigger.Start(context.Background(), func() { fired.Add(1) })
	defer trigger.Stop()

	time.Sleep(30 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("fired %d times while far from bottom", got)
	}

	scrollY.Store(4200)
	eventually(t, func() bool { return fired.Load() > 0 }, "scroll trigger fired near bottom")

	trigger.Stop()
	time.Sleep(20 * time.Millisecond)
	after := fired.Load()
	time.Sleep(30 * time.Millisecond)
	if got := fired.Load(); got != after {
		t.Errorf("fired %d more times after Stop", got-after)
	}
}

func TestLoader_ScrollTriggerLoadsUntilExhausted(t *testing.T) {
	loader, target, mock := newTestLoader(t, testutil.PagedHandler([]testutil.Page{
		{Rows: testutil.Rows(1, 12)},
		{Rows: testutil.Rows(13, 12)},
		{Rows: testutil.Rows(25, 4)},
	}), func(c *Config) { c.PageSize = CardPageSize })

	trigger := NewScrollTrigger(func() Viewport {
		return Viewport{ScrollY: 0, InnerHeight: 800, DocumentHeight: 600}
	})
	trigger.Interval = 2 * time.Millisecond

	if err := loader.Attach(context.Background(), trigger); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	eventually(t, func() bool { return loader.Snapshot().State == StateExhausted }, "loader exhausted")
	loader.Wait()

	if target.rowCount() != 28 {
		t.Errorf("rendered %d cards, want 28", target.rowCount())
	}
	time.Sleep(20 * time.Millisecond)
	if got := mock.PathCount(testPath); got != 3 {
		t.Errorf("server saw %d requests, want 3", got)
	}
}
