// Command tick illustrates entry routing by URL: every client that connects
// to /tick/entry/<name> binds to its own PublicEntryReducer session, and a
// periodic sweep dispatches a no-op to each live session so it pushes a
// fresh "TIME" action back to its bound client.
package main

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"redux/runtime/internal/logging"
	"redux/runtime/internal/redux"
	"redux/runtime/internal/redux/medium"
	"redux/runtime/internal/redux/node"
)

const sessionPrefix = "entry:session:"

var tickRoute = regexp.MustCompile(`^/tick/entry/(.+)$`)

// tickSession is bound to exactly one external client for the lifetime of
// its connection; every activation pushes the current time back to that
// client, addressed by the session's own node id.
type tickSession struct {
	node.PublicEntryReducer
}

func (t *tickSession) Mapping() map[string]redux.SlotFunc { return nil }

// ActionReceived implements redux.ActionReceiver: the no-op dispatched by the
// periodic sweep below is the trigger that pushes a TIME action to the
// bound client.
func (t *tickSession) ActionReceived(act redux.Action) {
	if !act.Is(redux.NoOpType) {
		return
	}
	_ = t.PushToEntry(redux.NewAction("TIME", map[string]any{
		"time": time.Now().Format(time.RFC3339),
		"name": strings.TrimPrefix(t.Key, sessionPrefix),
	}))
}

func main() {
	logger := logging.NewTestLogger()
	store := redux.NewStore(time.Second, logger)
	store.Start()
	defer store.Stop()

	err := store.RegisterClass(&redux.Registration{
		KeyPrefix:  sessionPrefix,
		Recycle:    redux.SubscribeRetained(),
		URLPattern: tickRoute,
		New:        func() redux.Reducer { return &tickSession{} },
	})
	if err != nil {
		panic(err)
	}

	manager := medium.NewManager(store, logger, medium.ManagerOptions{})
	mux := http.NewServeMux()
	mux.HandleFunc("/tick/entry/", func(w http.ResponseWriter, r *http.Request) {
		if err := manager.ServeEntry(w, r); err != nil {
			logger.Warn("entry serve failed", logging.Error(err))
		}
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				for _, n := range store.FindNodesByClass(sessionPrefix) {
					store.Dispatch(n.Key, redux.NoOp())
				}
			}
		}
	}()

	fmt.Println("tick entry server listening on :9966, connect to ws://localhost:9966/tick/entry/<name>")
	if err := http.ListenAndServe(":9966", mux); err != nil {
		logger.Error("server stopped", logging.Error(err))
	}
}
