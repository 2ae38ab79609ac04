package redux

import (
	"sync"
	"time"
)

// barrier is the shared implementation behind CombineMessage and AnyMessage
//. It is owned by exactly one node and lives in that node's barrier
// list until it fires, by match or by timeout — whichever happens first.
// Firing never dispatches while the node's instance lock is held by the
// caller: observe() only decides what *would* fire and returns the action to
// redispatch; the caller performs the actual Store.Dispatch after releasing
// its locks.
type barrier struct {
	pending       map[string]struct{}
	any           bool
	keepOrigin    bool
	combineAction Action
	timeoutAction Action
	timer         *time.Timer
	once          sync.Once
	redispatch    func(Action) // dispatches an action back to the owning key
	onFired       func(*barrier)
}

// newBarrier installs a combine (any=false) or any (any=true) barrier.
// redispatch delivers the combine/timeout action back into the store at the
// owning node's key; onFired removes the barrier from the node's list (used
// only by the timer path — the synchronous match path removes it inline).
func newBarrier(types []string, combineAction, timeoutAction Action, timeout time.Duration, keepOrigin, any bool, redispatch func(Action), onFired func(*barrier)) *barrier {
	pending := make(map[string]struct{}, len(types))
	for _, t := range types {
		pending[t] = struct{}{}
	}
	b := &barrier{
		pending:       pending,
		any:           any,
		keepOrigin:    keepOrigin || any, // AnyMessage always keeps origin
		combineAction: combineAction,
		timeoutAction: timeoutAction,
		redispatch:    redispatch,
		onFired:       onFired,
	}
	b.timer = time.AfterFunc(timeout, func() {
		fired := false
		b.once.Do(func() { fired = true })
		if fired {
			b.onFired(b)
			b.redispatch(b.timeoutAction)
		}
	})
	return b
}

// matches reports whether actionType is one this barrier is waiting on.
func (b *barrier) matches(actionType string) bool {
	if b.any {
		_, ok := b.pending[actionType]
		return ok
	}
	_, ok := b.pending[actionType]
	return ok
}

// observe applies an observed action type to the barrier's pending set.
// keepOrigin reports whether ordinary handling should still see the action.
// toDispatch is non-nil exactly when this call won the single-completion
// race against the timer: the caller must Store.Dispatch it back to the
// owning key once it has released any locks it holds.
func (b *barrier) observe(actionType string) (keepOrigin bool, toDispatch *Action) {
	if b.any {
		fired := false
		b.once.Do(func() {
			fired = true
			b.timer.Stop()
		})
		if fired {
			act := b.combineAction
			return true, &act
		}
		return true, nil
	}
	delete(b.pending, actionType)
	if len(b.pending) == 0 {
		fired := false
		b.once.Do(func() {
			fired = true
			b.timer.Stop()
		})
		if fired {
			act := b.combineAction
			return b.keepOrigin, &act
		}
	}
	return b.keepOrigin, nil
}

// cancel stops the barrier's timer without firing either action, used when
// the owning node is retired; once cancelled, neither the combine nor the
// timeout action is dispatched.
func (b *barrier) cancel() {
	b.once.Do(func() {
		b.timer.Stop()
	})
}
