package medium

import (
	"sync"

	"redux/runtime/internal/redux"
)

// Local implements redux.Medium directly against an in-process Store: send
// schedules a fire-and-forget dispatch, get_state reads the store snapshot
// synchronously, and subscribe/unsubscribe bookkeeping is keyed by the
// (selfKey, targetKey) pair so a caller can address Unsubscribe purely by
// key rather than holding onto the closure Store.Subscribe returned.
type Local struct {
	store *redux.Store

	mu   sync.Mutex
	subs map[string]func()
}

// NewLocal constructs a Local medium bound to store.
func NewLocal(store *redux.Store) *Local {
	return &Local{store: store, subs: make(map[string]func())}
}

func subKey(selfKey, targetKey string) string { return selfKey + "\x00" + targetKey }

// Send implements redux.Medium. Sending to one's own key always fails with
// ErrSameKey and never dispatches.
func (m *Local) Send(selfKey, targetKey string, act redux.Action) error {
	if selfKey == targetKey {
		return redux.ErrSameKey
	}
	act.SourceKey = selfKey
	act.Medium = m
	go m.store.Dispatch(targetKey, act)
	return nil
}

// GetState implements redux.Medium.
func (m *Local) GetState(selfKey, targetKey string, fields []string) (map[string]any, error) {
	if selfKey == targetKey {
		return nil, redux.ErrSameKey
	}
	state, ok := m.store.Get(targetKey)
	if !ok {
		return nil, redux.ErrNone
	}
	return StateFilter(state, fields), nil
}

// Subscribe implements redux.Medium.
func (m *Local) Subscribe(selfKey, targetKey string, l redux.Listener) (func(), error) {
	if selfKey == targetKey {
		return nil, redux.ErrSameKey
	}
	unsubscribe, err := m.store.Subscribe(targetKey, l)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.subs[subKey(selfKey, targetKey)] = unsubscribe
	m.mu.Unlock()
	return unsubscribe, nil
}

// Unsubscribe implements redux.Medium.
func (m *Local) Unsubscribe(selfKey, targetKey string) {
	key := subKey(selfKey, targetKey)
	m.mu.Lock()
	unsubscribe, ok := m.subs[key]
	delete(m.subs, key)
	m.mu.Unlock()
	if ok {
		unsubscribe()
	}
}
