package medium

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"redux/runtime/internal/logging"
	"redux/runtime/internal/redux"
)

// EntryBinder is implemented by a reducer instance that wants to push
// unsolicited actions to its bound external client, outside ordinary
// reduce/notify flow.
type EntryBinder interface {
	BindEntryMedium(em *Entry)
}

type entryConn struct {
	id      string
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *entryConn) sendText(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Entry implements redux.Medium for the single external client bound to one
// node over plain JSON-framed actions. The bound node is the only
// addressable target, so get_state and subscribe have no meaning here.
type Entry struct {
	manager *Manager
	conn    *entryConn
	key     string
}

// Send implements redux.Medium: act is pushed to the bound client as JSON.
func (e *Entry) Send(selfKey, targetKey string, act redux.Action) error {
	data, err := act.ToJSON()
	if err != nil {
		return err
	}
	return e.conn.sendText(data)
}

// GetState implements redux.Medium. Unsupported: an entry link has nothing
// to read a snapshot from but the one node it is already bound to.
func (e *Entry) GetState(selfKey, targetKey string, fields []string) (map[string]any, error) {
	return nil, errors.New("medium: entry medium does not support get_state")
}

// Subscribe implements redux.Medium. Unsupported for the same reason.
func (e *Entry) Subscribe(selfKey, targetKey string, l redux.Listener) (func(), error) {
	return nil, errors.New("medium: entry medium does not support subscribe")
}

// Unsubscribe implements redux.Medium.
func (e *Entry) Unsubscribe(selfKey, targetKey string) {}

func (m *Manager) bindEntry(key, connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entryBindings[key]; ok && existing != connID {
		return redux.ErrAlreadyBound
	}
	m.entryBindings[key] = connID
	m.entryConns[connID] = struct{}{}
	return nil
}

func (m *Manager) unbindEntry(key, connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entryBindings[key]; ok && existing == connID {
		delete(m.entryBindings, key)
	}
	delete(m.entryConns, connID)
}

// ServeEntry resolves an inbound request's path to a node key via the
// store's registered URL patterns, upgrades to a WebSocket, binds the
// connection to that key, and relays JSON-framed actions until the link
// closes. A second connection attempting to bind an already-bound key is
// rejected with ErrAlreadyBound: first binder wins.
func (m *Manager) ServeEntry(w http.ResponseWriter, r *http.Request) error {
	key, ok := m.store.ResolveEntryRoute(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return redux.ErrUnknownPrefix
	}
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	connID := uuid.NewString()
	if err := m.bindEntry(key, connID); err != nil {
		ws.Close()
		return err
	}
	conn := &entryConn{id: connID, ws: ws}
	em := &Entry{manager: m, conn: conn, key: key}

	unsubscribe, err := m.store.Subscribe(key, redux.SilenceListener{})
	if err != nil {
		m.unbindEntry(key, connID)
		ws.Close()
		return err
	}
	defer func() {
		unsubscribe()
		m.unbindEntry(key, connID)
		ws.Close()
	}()

	if instance, ok := m.store.Instance(key); ok {
		if binder, ok := instance.(EntryBinder); ok {
			binder.BindEntryMedium(em)
		}
	}

	if m.opts.MaxPayloadBytes > 0 {
		ws.SetReadLimit(m.opts.MaxPayloadBytes)
	}
	for {
		msgType, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Warn("entry link closed unexpectedly", logging.String("key", key), logging.Error(err))
			}
			return nil
		}
		if msgType != websocket.TextMessage {
			continue
		}
		act, err := redux.FromJSON(raw)
		if err != nil {
			m.logger.Warn("entry frame decode failed", logging.String("key", key), logging.Error(err))
			continue
		}
		act.Medium = em
		act.SourceKey = ""
		m.store.Dispatch(key, act)
	}
}
