package redux

import (
	"fmt"
	"regexp"
	"strings"
)

// SlotFunc is a pure per-slot state transition: given the action and the
// slot's prior value, return the new value. Deep equality
// (reflect.DeepEqual) between the prior and new value determines whether
// the slot is reported as "changed".
type SlotFunc func(act Action, prior any) any

// Reducer is the behavior contract every node class implements: how to
// initialize, and how each state slot reacts to an action.
type Reducer interface {
	// Initialize is called once, after construction, with the node's full
	// key. Returning an error discards the node.
	Initialize(key string) error
	// Mapping returns the slot-name -> transition function table. Called
	// once after Initialize; the returned map is treated as immutable.
	Mapping() map[string]SlotFunc
}

// ActionReceiver is an optional hook invoked before the mapping functions
// run, the place a node emits follow-on messages through its mediums.
type ActionReceiver interface {
	ActionReceived(act Action)
}

// ReduceFinisher is an optional hook invoked after the mapping functions run
// and the new state has been committed, with the set of changed slots.
type ReduceFinisher interface {
	ReduceFinish(act Action, changed map[string]any)
}

// Shutdowner is an optional hook invoked on retirement, after the node is
// marked disabled and before its state is cleared.
type Shutdowner interface {
	Shutdown()
}

// SubscribeEnabler is an optional hook: when an action whose type is in the
// class's SubscribeActionSet arrives, this is called instead of ordinary
// reduce; a returned non-nil Listener is registered against the node's own
// key.
type SubscribeEnabler interface {
	EnableSubscribe(act Action) Listener
}

// UnsubscribeEnabler mirrors SubscribeEnabler for the unsubscribe action set.
// It returns the unsubscribe closure previously obtained from Store.Subscribe
// (or nil), which the store invokes on the node's behalf.
type UnsubscribeEnabler interface {
	EnableUnsubscribe(act Action) func()
}

// Registration is a node class's registration metadata: the prefix a
// key must have to belong to this class, its recycle policy, the action
// types that route to subscribe/unsubscribe instead of ordinary reduce, and
// (for entry classes) the URL pattern used to resolve a node id from an
// inbound connection's request path.
type Registration struct {
	KeyPrefix           string
	Recycle             RecycleOption
	SubscribeActionSet  map[string]struct{}
	UnsubscribeActionSet map[string]struct{}
	URLPattern          *regexp.Regexp
	New                 func() Reducer
}

// nodeID strips the registration's prefix from a key.
func (r *Registration) nodeID(key string) string {
	return strings.TrimPrefix(key, r.KeyPrefix)
}

func validatePrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("redux: key prefix must not be empty")
	}
	return nil
}
