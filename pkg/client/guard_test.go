package client

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestGuard(t *testing.T) {
	g := NewGuard()

	if !g.TryAcquire("a") {
		t.Fatal("first acquire should succeed")
	}
	if g.TryAcquire("a") {
		t.Error("second acquire of a held key should fail")
	}
	if !g.TryAcquire("b") {
		t.Error("independent key should be acquirable")
	}
	if !g.Busy("a") {
		t.Error("a should be busy")
	}

	g.Release("a")
	if g.Busy("a") {
		t.Error("a should be free after release")
	}
	if !g.TryAcquire("a") {
		t.Error("acquire after release should succeed")
	}
}

func TestGuard_Concurrent(t *testing.T) {
	g := NewGuard()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire("form") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Errorf("%d goroutines acquired the key, want 1", got)
	}
}
