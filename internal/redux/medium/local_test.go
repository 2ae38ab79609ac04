package medium

import (
	"testing"
	"time"

	"redux/runtime/internal/redux"
)

type echoReducer struct{}

func (echoReducer) Initialize(key string) error { return nil }

func (echoReducer) Mapping() map[string]redux.SlotFunc {
	return map[string]redux.SlotFunc{
		"count": func(act redux.Action, prior any) any {
			n, _ := prior.(int)
			if act.Is("INC") {
				return n + 1
			}
			return n
		},
	}
}

func newEchoStore(t *testing.T, prefix string) *redux.Store {
	t.Helper()
	store := redux.NewStore(time.Hour, nil)
	err := store.RegisterClass(&redux.Registration{
		KeyPrefix: prefix,
		Recycle:   redux.NeverRecycle(),
		New:       func() redux.Reducer { return echoReducer{} },
	})
	if err != nil {
		t.Fatalf("RegisterClass: %v", err)
	}
	return store
}

func TestLocalSendRejectsSameKey(t *testing.T) {
	store := newEchoStore(t, "node:")
	local := NewLocal(store)
	err := local.Send("node:a", "node:a", redux.NewAction("INC", nil))
	if err != redux.ErrSameKey {
		t.Fatalf("expected ErrSameKey, got %v", err)
	}
}

func TestLocalSendDispatchesToTarget(t *testing.T) {
	store := newEchoStore(t, "node:")
	local := NewLocal(store)
	if err := local.Send("node:a", "node:b", redux.NewAction("INC", nil)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if store.Contains("node:b") {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	state, ok := store.Get("node:b")
	if !ok {
		t.Fatal("expected target node to have been created by the dispatch")
	}
	if state["count"] != 1 {
		t.Fatalf("expected count==1, got %v", state["count"])
	}
}

func TestLocalGetStateRejectsSameKey(t *testing.T) {
	store := newEchoStore(t, "node:")
	local := NewLocal(store)
	if _, err := local.GetState("node:a", "node:a", nil); err != redux.ErrSameKey {
		t.Fatalf("expected ErrSameKey, got %v", err)
	}
}

func TestLocalGetStateReturnsErrNoneForAbsentTarget(t *testing.T) {
	store := newEchoStore(t, "node:")
	local := NewLocal(store)
	if _, err := local.GetState("node:a", "node:missing", nil); err != redux.ErrNone {
		t.Fatalf("expected ErrNone, got %v", err)
	}
}

func TestLocalSubscribeUnsubscribeByKey(t *testing.T) {
	store := newEchoStore(t, "node:")
	local := NewLocal(store)

	notified := make(chan struct{}, 4)
	_, err := local.Subscribe("node:a", "node:b", redux.ListenerFunc(func(changed []string, state map[string]any) {
		notified <- struct{}{}
	}))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if !store.Contains("node:b") {
		t.Fatal("expected subscribe to create the target node")
	}

	local.Unsubscribe("node:a", "node:b")
	// A second unsubscribe for a key that is no longer registered must be a no-op.
	local.Unsubscribe("node:a", "node:b")
}

func TestLocalSubscribeRejectsSameKey(t *testing.T) {
	store := newEchoStore(t, "node:")
	local := NewLocal(store)
	if _, err := local.Subscribe("node:a", "node:a", redux.SilenceListener{}); err != redux.ErrSameKey {
		t.Fatalf("expected ErrSameKey, got %v", err)
	}
}
