package medium

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"redux/runtime/internal/input"
	"redux/runtime/internal/logging"
	"redux/runtime/internal/redux"
)

// ErrSubscribeUnsupported is returned by Remote.Subscribe: cross-process
// subscription is reserved wire surface only — the
// SUBSCRIBE/UNSUBSCRIBE/STATE frame types round-trip but nothing drives them
// from this side of the link yet.
var ErrSubscribeUnsupported = errors.New("medium: cross-process subscribe is not implemented")

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	PingInterval           time.Duration
	PickDeadline           time.Duration
	ReconnectInterval      time.Duration
	CompressThresholdBytes int64
	MaxPayloadBytes        int64
	AllowedOrigins         []string
	Admission              input.Config
}

// Manager owns every peer WebSocket link this process holds, both accepted
// (server) and dialed (client) connections, and dispatches inbound frames
// into a Store.
type Manager struct {
	store  *redux.Store
	logger *logging.Logger
	opts   ManagerOptions
	gate   *input.Gate

	upgrader websocket.Upgrader

	mu            sync.Mutex
	servers       map[string]*peerConn // connection id -> accepted link
	clients       map[string]*peerConn // dial URL -> active link
	clientAllow   map[string]bool      // dial URL -> still wanted
	entryBindings map[string]string    // node key -> binding entry connection id
	entryConns    map[string]struct{}  // bound entry connection ids

	reconnectCount uint64
}

// NewManager constructs a Manager bound to store.
func NewManager(store *redux.Store, logger *logging.Logger, opts ManagerOptions) *Manager {
	if logger == nil {
		logger = logging.NewTestLogger()
	}
	m := &Manager{
		store:         store,
		logger:        logger,
		opts:          opts,
		gate:          input.NewGate(opts.Admission, logger),
		servers:       make(map[string]*peerConn),
		clients:       make(map[string]*peerConn),
		clientAllow:   make(map[string]bool),
		entryBindings: make(map[string]string),
		entryConns:    make(map[string]struct{}),
	}
	m.upgrader = websocket.Upgrader{
		CheckOrigin: m.checkOrigin,
	}
	return m
}

func (m *Manager) checkOrigin(r *http.Request) bool {
	if len(m.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range m.opts.AllowedOrigins {
		if allowed == origin {
			return true
		}
	}
	return false
}

// peerConn is one live WebSocket link to another process, used for both
// ACTION relay and PICK/PICKACK state reads.
type peerConn struct {
	id       string
	url      string // non-empty for client-dialed links
	isClient bool
	ws       *websocket.Conn
	manager  *Manager

	writeMu sync.Mutex

	pickMu  sync.Mutex
	pending map[string]chan pickResult

	outboundSeq uint64 // stamped onto every outgoing frame for the peer's admission gate
}

type pickResult struct {
	state map[string]any
	found bool
}

func newPeerConn(id string, ws *websocket.Conn, m *Manager, isClient bool, url string) *peerConn {
	return &peerConn{
		id:       id,
		url:      url,
		isClient: isClient,
		ws:       ws,
		manager:  m,
		pending:  make(map[string]chan pickResult),
	}
}

func (c *peerConn) sendFrame(msg map[string]any) error {
	seq := atomic.AddUint64(&c.outboundSeq, 1)
	StampFrame(msg, seq, time.Now())
	payload, err := msgpack.Marshal(msg)
	if err != nil {
		return err
	}
	framed := encodeFrame(payload, c.manager.opts.CompressThresholdBytes)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteMessage(websocket.BinaryMessage, framed)
}

// doPick sends a PICK frame and blocks until the matching PICKACK arrives or
// ctx expires.
func (c *peerConn) doPick(ctx context.Context, selfKey, targetKey string, fields []string) (map[string]any, error) {
	corrKey := selfKey
	ch := make(chan pickResult, 1)
	c.pickMu.Lock()
	c.pending[corrKey] = ch
	c.pickMu.Unlock()
	defer func() {
		c.pickMu.Lock()
		delete(c.pending, corrKey)
		c.pickMu.Unlock()
	}()
	if err := c.sendFrame(ToPickMessage(targetKey, selfKey, fields)); err != nil {
		return nil, err
	}
	select {
	case res := <-ch:
		if !res.found {
			return nil, redux.ErrNone
		}
		return res.state, nil
	case <-ctx.Done():
		return nil, redux.ErrNone
	}
}

func (c *peerConn) resolvePick(corrKey string, state map[string]any, found bool) {
	c.pickMu.Lock()
	ch, ok := c.pending[corrKey]
	if ok {
		delete(c.pending, corrKey)
	}
	c.pickMu.Unlock()
	if ok {
		ch <- pickResult{state: state, found: found}
	}
}

// encodeFrame prefixes the msgpack payload with a compression marker byte:
// 0 for raw, 1 for snappy-compressed (above threshold).
func encodeFrame(payload []byte, threshold int64) []byte {
	if threshold > 0 && int64(len(payload)) > threshold {
		compressed := snappy.Encode(nil, payload)
		out := make([]byte, 0, len(compressed)+1)
		out = append(out, 1)
		return append(out, compressed...)
	}
	out := make([]byte, 0, len(payload)+1)
	out = append(out, 0)
	return append(out, payload...)
}

func decodeFrame(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, errors.New("medium: empty frame")
	}
	marker, payload := raw[0], raw[1:]
	if marker == 1 {
		decoded, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, err
		}
		payload = decoded
	}
	var msg map[string]any
	if err := msgpack.Unmarshal(payload, &msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ServePeer upgrades an inbound HTTP request to a peer WebSocket link and
// runs it until the link closes.
func (m *Manager) ServePeer(w http.ResponseWriter, r *http.Request) error {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	connID := uuid.NewString()
	conn := newPeerConn(connID, ws, m, false, "")
	m.mu.Lock()
	m.servers[connID] = conn
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.servers, connID)
		m.mu.Unlock()
		ws.Close()
	}()
	m.runConnection(conn)
	return nil
}

// Client dials url and maintains the link, reconnecting with backoff until
// StopClient(url) is called.
func (m *Manager) Client(url string) {
	m.mu.Lock()
	m.clientAllow[url] = true
	m.mu.Unlock()
	go m.clientLoop(url)
}

// StopClient removes url from the reconnect allow-set and closes any active
// link to it; the reconnect loop observes the removal and exits.
func (m *Manager) StopClient(url string) {
	m.mu.Lock()
	delete(m.clientAllow, url)
	conn := m.clients[url]
	m.mu.Unlock()
	if conn != nil {
		conn.ws.Close()
	}
}

func (m *Manager) clientLoop(url string) {
	for {
		m.mu.Lock()
		wanted := m.clientAllow[url]
		m.mu.Unlock()
		if !wanted {
			return
		}

		ws, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			atomic.AddUint64(&m.reconnectCount, 1)
			m.logger.Warn("peer dial failed", logging.String("url", url), logging.Error(err))
			select {
			case <-time.After(m.reconnectInterval()):
			}
			continue
		}

		conn := newPeerConn(uuid.NewString(), ws, m, true, url)
		m.mu.Lock()
		m.clients[url] = conn
		m.mu.Unlock()

		m.runConnection(conn)

		m.mu.Lock()
		delete(m.clients, url)
		wanted = m.clientAllow[url]
		m.mu.Unlock()
		ws.Close()
		if !wanted {
			return
		}
	}
}

func (m *Manager) reconnectInterval() time.Duration {
	if m.opts.ReconnectInterval <= 0 {
		return time.Second
	}
	return m.opts.ReconnectInterval
}

func (m *Manager) pingInterval() time.Duration {
	if m.opts.PingInterval <= 0 {
		return 30 * time.Second
	}
	return m.opts.PingInterval
}

func (m *Manager) pickDeadline() time.Duration {
	if m.opts.PickDeadline <= 0 {
		return 100 * time.Millisecond
	}
	return m.opts.PickDeadline
}

func (m *Manager) runConnection(conn *peerConn) {
	if m.opts.MaxPayloadBytes > 0 {
		conn.ws.SetReadLimit(m.opts.MaxPayloadBytes)
	}
	_ = conn.ws.SetReadDeadline(time.Now().Add(m.pingInterval() * 2))
	conn.ws.SetPongHandler(func(string) error {
		_ = conn.ws.SetReadDeadline(time.Now().Add(m.pingInterval() * 2))
		return nil
	})

	stop := make(chan struct{})
	go m.pingLoop(conn, stop)
	defer close(stop)
	defer m.gate.Forget(conn.id)

	for {
		msgType, raw, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Warn("peer link closed unexpectedly", logging.String("id", conn.id), logging.Error(err))
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		msg, err := decodeFrame(raw)
		if err != nil {
			m.logger.Warn("peer frame decode failed", logging.String("id", conn.id), logging.Error(err))
			return
		}
		seq, sentAt := FrameMeta(msg)
		decision := m.gate.Evaluate(input.Frame{ConnectionID: conn.id, SequenceID: seq, SentAt: sentAt})
		if !decision.Accepted {
			m.logger.Warn("peer frame dropped by admission gate",
				logging.String("id", conn.id), logging.String("reason", decision.Reason.String()))
			continue
		}
		m.handleFrame(conn, msg)
	}
}

func (m *Manager) pingLoop(conn *peerConn, stop <-chan struct{}) {
	ticker := time.NewTicker(m.pingInterval())
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			conn.writeMu.Lock()
			err := conn.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			conn.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (m *Manager) handleFrame(conn *peerConn, msg map[string]any) {
	frameType, _ := FrameType(msg)
	switch frameType {
	case FrameAction:
		targetKey, act := FromMessage(msg)
		act.Medium = &Remote{manager: m, conn: conn}
		go m.store.Dispatch(targetKey, act)
	case FramePick:
		targetKey, sourceKey, fields := FromPickMessage(msg)
		var ack map[string]any
		if state, ok := m.store.Get(targetKey); ok {
			ack = ToPickAckMessage(targetKey, sourceKey, StateFilter(state, fields))
		} else {
			ack = ToPickAckMessage(targetKey, sourceKey, nil)
		}
		if err := conn.sendFrame(ack); err != nil {
			m.logger.Warn("pickack send failed", logging.String("id", conn.id), logging.Error(err))
		}
	case FramePickAck:
		_, sourceKey, state, found := FromPickAckMessage(msg)
		conn.resolvePick(sourceKey, state, found)
	case FrameSubscribe, FrameUnsubscribe, FrameState:
		// Reserved wire surface; parsed but not acted on from this side.
	default:
		m.logger.Warn("unknown frame type, closing peer link",
			logging.String("id", conn.id), logging.String("type", frameType))
		conn.ws.Close()
	}
}

// ConnectionCount returns the number of currently open peer links, server
// and client combined, for the /metrics endpoint.
func (m *Manager) ConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.servers) + len(m.clients)
}

// ReconnectCount returns the cumulative number of failed client dial
// attempts, for the /metrics endpoint.
func (m *Manager) ReconnectCount() uint64 {
	return atomic.LoadUint64(&m.reconnectCount)
}

// EntryConnectionCount returns the number of currently bound entry clients,
// for the /metrics endpoint.
func (m *Manager) EntryConnectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entryConns)
}

// Remote implements redux.Medium over one peer link.
type Remote struct {
	manager *Manager
	conn    *peerConn
}

// Send implements redux.Medium.
func (r *Remote) Send(selfKey, targetKey string, act redux.Action) error {
	return r.conn.sendFrame(ToMessage(targetKey, selfKey, act))
}

// GetState implements redux.Medium via a PICK/PICKACK round trip bounded by
// the manager's pick deadline.
func (r *Remote) GetState(selfKey, targetKey string, fields []string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.manager.pickDeadline())
	defer cancel()
	return r.conn.doPick(ctx, selfKey, targetKey, fields)
}

// Subscribe implements redux.Medium. Cross-process subscription is not
// implemented; see ErrSubscribeUnsupported.
func (r *Remote) Subscribe(selfKey, targetKey string, l redux.Listener) (func(), error) {
	return nil, ErrSubscribeUnsupported
}

// Unsubscribe implements redux.Medium.
func (r *Remote) Unsubscribe(selfKey, targetKey string) {}
