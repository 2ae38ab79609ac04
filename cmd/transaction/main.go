// Command transaction illustrates an ExecutorReducer node coordinating a
// transfer between two GeneralReducer user nodes against a shared ledger
// realm, and the soft-action suppression rule: the credit leg is a soft
// INCREASE_EQUITY, so crediting a user who has never connected leaves the
// store unchanged rather than creating their node.
package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"redux/runtime/internal/logging"
	"redux/runtime/internal/redux"
	"redux/runtime/internal/redux/medium"
	"redux/runtime/internal/redux/node"
)

const (
	userPrefix     = "node:user:"
	transferPrefix = "node:transfer:"
)

// ledger is the shared resource an ExecutorReducer coordinates against: a
// balance sheet no single user node owns.
type ledger struct {
	mu    sync.Mutex
	books map[string]int
}

func (l *ledger) balance(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.books[id]
}

func (l *ledger) transfer(from, to string, change int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.books[from] < change {
		return false
	}
	l.books[from] -= change
	l.books[to] += change
	return true
}

// userNode mirrors one ledger account's equity as ordinary reducer state.
type userNode struct {
	node.GeneralReducer
	book *ledger
}

func (u *userNode) Mapping() map[string]redux.SlotFunc {
	nodeID := strings.TrimPrefix(u.Key, userPrefix)
	return map[string]redux.SlotFunc{
		"equity": func(act redux.Action, prior any) any {
			n, ok := prior.(int)
			if !ok {
				n = u.book.balance(nodeID)
			}
			if act.Is("INCREASE_EQUITY") {
				change, _ := act.Arguments["change"].(int)
				return n + change
			}
			return n
		},
	}
}

func (u *userNode) ReduceFinish(act redux.Action, changed map[string]any) {
	if v, ok := changed["equity"]; ok {
		fmt.Printf("%s equity now %v\n", u.Key, v)
	}
}

// transactionNode is the stateless coordinator: it never holds equity
// itself, only the ledger realm and a Local medium used to reach the two
// user nodes it touches.
type transactionNode struct {
	node.ExecutorReducer
	local *medium.Local
}

func (t *transactionNode) Mapping() map[string]redux.SlotFunc { return nil }

// ActionReceived implements redux.ActionReceiver: a TRANSFER action moves
// equity in the realm, debits the source user directly, and credits the
// destination user with a soft action so an offline recipient's node is
// never created just to receive a credit.
func (t *transactionNode) ActionReceived(act redux.Action) {
	if !act.Is("TRANSFER") {
		return
	}
	from, _ := act.Arguments["from"].(string)
	to, _ := act.Arguments["to"].(string)
	change, _ := act.Arguments["change"].(int)

	book, _ := t.Realm.(*ledger)
	if book == nil || !book.transfer(from, to, change) {
		_ = t.local.Send(t.Key, userPrefix+from, redux.NewAction("NOT_ENOUGH_EQUITY", nil))
		return
	}
	_ = t.local.Send(t.Key, userPrefix+from, redux.NewAction("INCREASE_EQUITY", map[string]any{"change": -change}))
	_ = t.local.Send(t.Key, userPrefix+to, redux.NewAction("INCREASE_EQUITY", map[string]any{"change": change, "soft": true}))
}

func main() {
	logger := logging.NewTestLogger()
	store := redux.NewStore(time.Minute, logger)
	store.Start()
	defer store.Stop()

	book := &ledger{books: map[string]int{"alice": 100, "bob": 10}}

	if err := store.RegisterClass(&redux.Registration{
		KeyPrefix: userPrefix,
		Recycle:   redux.IdleTimeout(5 * time.Second),
		New:       func() redux.Reducer { return &userNode{book: book} },
	}); err != nil {
		panic(err)
	}

	local := medium.NewLocal(store)
	if err := store.RegisterClass(&redux.Registration{
		KeyPrefix: transferPrefix,
		Recycle:   redux.NeverRecycle(),
		New: func() redux.Reducer {
			n := &transactionNode{local: local}
			n.Realm = book
			return n
		},
	}); err != nil {
		panic(err)
	}

	unsubscribe, err := store.Subscribe(userPrefix+"alice", redux.ListenerFunc(func(changed []string, state map[string]any) {
		fmt.Printf("alice state: %v\n", state)
	}))
	if err != nil {
		panic(err)
	}
	defer unsubscribe()

	// Bob has never connected: the soft credit leg below must not create his
	// node even though the transfer itself succeeds against the ledger.
	store.Dispatch(transferPrefix+"t-1", redux.NewAction("TRANSFER", map[string]any{
		"from": "alice", "to": "bob", "change": 10,
	}))
	time.Sleep(50 * time.Millisecond)
	fmt.Println("bob node live:", store.Contains(userPrefix+"bob"))
}
