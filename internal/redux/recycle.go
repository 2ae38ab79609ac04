package redux

import "time"

// RecycleKind distinguishes the per-class retirement policies: Never, or
// IdleTimeout(d) with d==0 meaning ephemeral-unless-subscribed.
type RecycleKind int

const (
	// RecycleNever means the node, once created, is retired only by an
	// explicit unregister of its class or process shutdown.
	RecycleNever RecycleKind = iota
	// RecycleIdleTimeout means the node is retired after Timeout has
	// elapsed with no subscribers. Timeout==0 is the ephemeral case:
	// retire immediately after the dispatch that created it returns,
	// unless a subscription was installed in the meantime.
	RecycleIdleTimeout
)

// RecycleOption is a per-reducer-class lifetime policy.
type RecycleOption struct {
	Kind    RecycleKind
	Timeout time.Duration
	// EnableSubscribe documents that this class is meant to be held alive
	// by subscriptions; it does not change dispatch semantics on its own,
	// since any class may be subscribed to, but mirrors the source's
	// SubscribeRecycleOption intent for class authors and debug listings.
	EnableSubscribe bool
}

// NeverRecycle returns the policy that never retires a node automatically.
func NeverRecycle() RecycleOption {
	return RecycleOption{Kind: RecycleNever}
}

// IdleTimeout returns the policy that retires a node after d of no
// subscribers. d==0 makes the class ephemeral.
func IdleTimeout(d time.Duration) RecycleOption {
	return RecycleOption{Kind: RecycleIdleTimeout, Timeout: d}
}

// SubscribeRetained returns the ephemeral-by-default policy intended for
// classes whose real lifetime comes from subscription, not idle timeout.
func SubscribeRetained() RecycleOption {
	return RecycleOption{Kind: RecycleIdleTimeout, Timeout: 0, EnableSubscribe: true}
}

// Ephemeral reports whether a newly created, unsubscribed node under this
// policy must be retired immediately after the dispatch that created it.
func (r RecycleOption) Ephemeral() bool {
	return r.Kind == RecycleIdleTimeout && r.Timeout == 0
}

// IdleQueueable reports whether nodes under this policy are ever placed in
// the store's idle index (never queued under RecycleNever or ephemeral-only
// timeout of zero — zero-timeout nodes are retired directly, not queued).
func (r RecycleOption) IdleQueueable() bool {
	return r.Kind == RecycleIdleTimeout && r.Timeout > 0
}
