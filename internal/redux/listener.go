package redux

import "sync"

// Listener receives change notifications for a subscribed key: the set of
// slot names that changed (or, on the seed call, every non-reserved slot)
// plus the full current state.
type Listener interface {
	OnChanged(changed []string, state map[string]any)
}

// ListenerFunc adapts a plain function to the Listener interface.
type ListenerFunc func(changed []string, state map[string]any)

// OnChanged implements Listener.
func (f ListenerFunc) OnChanged(changed []string, state map[string]any) { f(changed, state) }

// SilenceListener discards every notification. Useful as a subscribe target
// that only cares about holding a node alive.
type SilenceListener struct{}

// OnChanged implements Listener by doing nothing.
func (SilenceListener) OnChanged([]string, map[string]any) {}

// stateWrapper tracks whether a listener has received its seed notification
// yet: the first delivery after subscribe carries the full state as a
// synthetic "changed" set.
type stateWrapper struct {
	mu     sync.Mutex
	inner  Listener
	synced bool
}

func wrapListener(inner Listener) *stateWrapper {
	return &stateWrapper{inner: inner}
}

func (w *stateWrapper) notify(changed []string, state map[string]any) {
	w.mu.Lock()
	first := !w.synced
	w.synced = true
	w.mu.Unlock()
	if first {
		w.inner.OnChanged(SortedKeys(state), state)
		return
	}
	w.inner.OnChanged(changed, state)
}
