package redux

import (
	"sync"
	"testing"
	"time"
)

func TestBarrierCombineFiresOnceBothTypesObserved(t *testing.T) {
	combine := NewAction("SETTLE", nil)
	timeout := NewAction("TIMEOUT", nil)
	var firedMu sync.Mutex
	onFiredCalled := false

	b := newBarrier([]string{"A", "B"}, combine, timeout, time.Second, false, false,
		func(Action) {},
		func(*barrier) {
			firedMu.Lock()
			onFiredCalled = true
			firedMu.Unlock()
		})
	defer b.cancel()

	keepOrigin, toDispatch := b.observe("A")
	if keepOrigin {
		t.Fatal("expected keepOrigin==false for a combine barrier installed with keepOrigin=false, before completion")
	}
	if toDispatch != nil {
		t.Fatal("expected no dispatch after only one of two types observed")
	}

	keepOrigin, toDispatch = b.observe("B")
	if keepOrigin {
		t.Fatal("expected keepOrigin==false for a combine barrier installed with keepOrigin=false")
	}
	if toDispatch == nil {
		t.Fatal("expected the combine action once both types are observed")
	}
	if toDispatch.Type != "SETTLE" {
		t.Fatalf("expected SETTLE, got %q", toDispatch.Type)
	}

	firedMu.Lock()
	called := onFiredCalled
	firedMu.Unlock()
	if called {
		t.Fatal("onFired is only invoked by the timer path, not the synchronous match path")
	}

	// A second observe of an already-satisfied barrier must not refire.
	_, toDispatch = b.observe("A")
	if toDispatch != nil {
		t.Fatal("expected no second dispatch once the barrier has already fired")
	}
}

func TestBarrierCombineFiresTimeoutActionOnExpiry(t *testing.T) {
	combine := NewAction("SETTLE", nil)
	timeout := NewAction("ROLLBACK", nil)

	var mu sync.Mutex
	var redispatched *Action
	done := make(chan struct{})

	b := newBarrier([]string{"A", "B"}, combine, timeout, 20*time.Millisecond, false, false,
		func(act Action) {
			mu.Lock()
			redispatched = &act
			mu.Unlock()
			close(done)
		},
		func(*barrier) {})
	defer b.cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected the timeout action to fire within the timer window")
	}

	mu.Lock()
	defer mu.Unlock()
	if redispatched == nil || redispatched.Type != "ROLLBACK" {
		t.Fatalf("expected ROLLBACK to be redispatched, got %+v", redispatched)
	}
}

func TestBarrierAnyFiresOnFirstObservedType(t *testing.T) {
	combine := NewAction("WON", nil)
	timeout := NewAction("TIMEOUT", nil)

	b := newBarrier([]string{"A", "B"}, combine, timeout, time.Second, false, true,
		func(Action) {}, func(*barrier) {})
	defer b.cancel()

	keepOrigin, toDispatch := b.observe("A")
	if !keepOrigin {
		t.Fatal("any barriers always keep origin")
	}
	if toDispatch == nil || toDispatch.Type != "WON" {
		t.Fatalf("expected WON on first observed type, got %+v", toDispatch)
	}

	// A second, different observed type must not refire the barrier.
	_, toDispatch = b.observe("B")
	if toDispatch != nil {
		t.Fatal("expected no second dispatch from an any barrier that already fired")
	}
}

func TestBarrierCancelSuppressesTimeout(t *testing.T) {
	combine := NewAction("SETTLE", nil)
	timeout := NewAction("ROLLBACK", nil)
	fired := make(chan struct{}, 1)

	b := newBarrier([]string{"A", "B"}, combine, timeout, 15*time.Millisecond, false, false,
		func(Action) { fired <- struct{}{} }, func(*barrier) {})
	b.cancel()

	select {
	case <-fired:
		t.Fatal("expected cancel to suppress the timeout redispatch")
	case <-time.After(60 * time.Millisecond):
	}
}
