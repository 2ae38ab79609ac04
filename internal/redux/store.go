package redux

import (
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"redux/runtime/internal/logging"
)

// node is the live state of one reducer instance.
type node struct {
	key      string
	nodeID   string
	reg      *Registration
	instance Reducer
	mapping  map[string]SlotFunc

	mu       sync.Mutex // per-instance lock: serializes reduce()
	state    map[string]any
	barriers []*barrier
	enable   bool
	isNew    bool
}

type observerEntry struct {
	wrapper *stateWrapper
}

type observerSet struct {
	order []string
	byID  map[string]*observerEntry
}

// Store is the process-wide registry: class catalog, live node map,
// subscriber lists, idle-expiry queue and dispatch pipeline.
type Store struct {
	mu        sync.Mutex
	classes   []*Registration
	nodes     map[string]*node
	observers map[string]*observerSet
	idle      *idleQueue

	cleanerPeriod time.Duration
	logger        *logging.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup

	dispatchCount    uint64
	idleRetiredCount uint64
}

// NewStore constructs a Store. cleanerPeriod is the idle-sweeper wake
// interval; Start must be called separately to run the sweeper.
func NewStore(cleanerPeriod time.Duration, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewTestLogger()
	}
	return &Store{
		nodes:         make(map[string]*node),
		observers:     make(map[string]*observerSet),
		idle:          newIdleQueue(),
		cleanerPeriod: cleanerPeriod,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the background idle sweeper.
func (s *Store) Start() {
	s.wg.Add(1)
	go s.runIdleCleaner()
}

// Stop halts the idle sweeper and waits for it to exit.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// RegisterClass adds a reducer class to the catalog. Prefixes that overlap an
// already-registered prefix (one being a string-prefix of the other) are
// rejected to keep dispatch's linear prefix scan unambiguous.
func (s *Store) RegisterClass(reg *Registration) error {
	if err := validatePrefix(reg.KeyPrefix); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.classes {
		if strings.HasPrefix(existing.KeyPrefix, reg.KeyPrefix) || strings.HasPrefix(reg.KeyPrefix, existing.KeyPrefix) {
			return ErrOverlappingPrefix
		}
	}
	s.classes = append(s.classes, reg)
	return nil
}

// UnregisterClass removes a class from the catalog by prefix. Live nodes of
// that class are left running; only future dispatch/creation is affected.
func (s *Store) UnregisterClass(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.classes {
		if existing.KeyPrefix == prefix {
			s.classes = append(s.classes[:i], s.classes[i+1:]...)
			return
		}
	}
}

// Get returns a read-only, reserved-key-filtered snapshot of a live node's
// state, or (nil, false) if the key is not live.
func (s *Store) Get(key string) (map[string]any, bool) {
	s.mu.Lock()
	n, ok := s.nodes[key]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	n.mu.Lock()
	state := FilterReserved(n.state)
	n.mu.Unlock()
	return state, true
}

// Contains reports whether key currently addresses a live node.
func (s *Store) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.nodes[key]
	return ok
}

// FindClassByPrefix returns the first registered class whose prefix is a
// string-prefix of key.
func (s *Store) FindClassByPrefix(key string) (*Registration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findClassByPrefixLocked(key)
}

func (s *Store) findClassByPrefixLocked(key string) (*Registration, bool) {
	for _, reg := range s.classes {
		if strings.HasPrefix(key, reg.KeyPrefix) {
			return reg, true
		}
	}
	return nil, false
}

// NodeInfo is a snapshot entry returned by FindNodesByClass.
type NodeInfo struct {
	Key      string
	NodeID   string
	Instance Reducer
}

// FindNodesByClass returns every live instance of the class registered under
// prefix.
func (s *Store) FindNodesByClass(prefix string) []NodeInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []NodeInfo
	for key, n := range s.nodes {
		if n.reg.KeyPrefix == prefix {
			out = append(out, NodeInfo{Key: key, NodeID: n.nodeID, Instance: n.instance})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Instance returns the live reducer instance at key, for mediums that need to
// hand a transport handle to the node itself (e.g. entry binding).
func (s *Store) Instance(key string) (Reducer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[key]
	if !ok {
		return nil, false
	}
	return n.instance, true
}

// ResolveEntryRoute matches path against every registered class's URL
// pattern in registration order and returns the key of the node it
// addresses. The pattern's first capture group, if any, is taken as the
// node id appended to the class's KeyPrefix.
func (s *Store) ResolveEntryRoute(path string) (key string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, reg := range s.classes {
		if reg.URLPattern == nil {
			continue
		}
		m := reg.URLPattern.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		id := ""
		if len(m) > 1 {
			id = m[1]
		}
		return reg.KeyPrefix + id, true
	}
	return "", false
}

// createLocked constructs, initializes and registers a new node. Must be
// called with s.mu held; this mutex doubles as the store-wide initialization
// lock so two concurrent creators of the same key collapse to one
// instance.
func (s *Store) createLocked(key string, reg *Registration) (*node, error) {
	instance := reg.New()
	if err := instance.Initialize(key); err != nil {
		return nil, newReducerError(key, "initialize", err)
	}
	n := &node{
		key:      key,
		nodeID:   reg.nodeID(key),
		reg:      reg,
		instance: instance,
		mapping:  instance.Mapping(),
		state:    make(map[string]any),
		enable:   true,
		isNew:    true,
	}
	s.nodes[key] = n
	return n, nil
}

// GetOrCreate returns the live node at key, creating it from reg if absent
// and reg is non-nil. It is idempotent under concurrent callers.
func (s *Store) GetOrCreate(key string, reg *Registration) (Reducer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.nodes[key]; ok {
		return n.instance, nil
	}
	if reg == nil {
		var ok bool
		reg, ok = s.findClassByPrefixLocked(key)
		if !ok {
			return nil, ErrUnknownPrefix
		}
	}
	n, err := s.createLocked(key, reg)
	if err != nil {
		return nil, err
	}
	return n.instance, nil
}

func actionInSet(set map[string]struct{}, actionType string) bool {
	if set == nil {
		return false
	}
	_, ok := set[actionType]
	return ok
}

// combineGate walks n's barrier list looking for one whose pending type set
// contains act.Type, applies the single-completion rule, and reports whether
// the action was fully consumed by the barrier. followUp, when
// non-nil, is the combine action the caller must Dispatch back to
// the node's key once it holds no locks.
func (s *Store) combineGate(n *node, act Action) (consumed bool, followUp *Action) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, b := range n.barriers {
		if !b.matches(act.Type) {
			continue
		}
		keepOrigin, toDispatch := b.observe(act.Type)
		if toDispatch != nil {
			n.barriers = append(n.barriers[:i], n.barriers[i+1:]...)
		}
		return !keepOrigin, toDispatch
	}
	return false, nil
}

func identicalValue(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// reduce runs the ordinary reduce step under the node's instance lock
// and returns the changed slots.
func (s *Store) reduce(n *node, act Action) map[string]any {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ar, ok := n.instance.(ActionReceiver); ok {
		ar.ActionReceived(act)
	}
	newState := make(map[string]any, len(n.state))
	for k, v := range n.state {
		newState[k] = v
	}
	changed := make(map[string]any)
	for slot, fn := range n.mapping {
		if IsReservedKey(slot) {
			continue
		}
		prior := n.state[slot]
		next := fn(act, prior)
		if !identicalValue(prior, next) {
			changed[slot] = next
		}
		newState[slot] = next
	}
	n.state = newState
	if rf, ok := n.instance.(ReduceFinisher); ok {
		rf.ReduceFinish(act, changed)
	}
	return changed
}

func changedKeysList(changed map[string]any) []string {
	keys := make([]string, 0, len(changed))
	for k := range changed {
		if !IsReservedKey(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Dispatch routes an action to key, creating or retiring the node as the
// recycle policy and subscription state require.
func (s *Store) Dispatch(key string, act Action) (ok bool) {
	if key == "" {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("dispatch panicked",
				logging.String("key", key), logging.String("action", act.Type))
			ok = false
		}
	}()
	atomic.AddUint64(&s.dispatchCount, 1)

	s.mu.Lock()
	n, exists := s.nodes[key]
	if !exists {
		if act.Soft() {
			s.mu.Unlock()
			return true
		}
		reg, found := s.findClassByPrefixLocked(key)
		if !found {
			s.mu.Unlock()
			return false
		}
		created, err := s.createLocked(key, reg)
		if err != nil {
			s.mu.Unlock()
			s.logger.Warn("dispatch: initialize failed", logging.String("key", key), logging.Error(err))
			return false
		}
		n = created
	}
	reg := n.reg
	if reg.Recycle.IdleQueueable() && !act.Soft() {
		s.idle.set(key, time.Now().Add(reg.Recycle.Timeout).UnixNano())
	}
	wasNew := n.isNew
	s.mu.Unlock()

	consumed, followUp := s.combineGate(n, act)
	if followUp != nil {
		s.Dispatch(key, *followUp)
	}
	if !consumed {
		switch {
		case actionInSet(reg.SubscribeActionSet, act.Type):
			if se, ok := n.instance.(SubscribeEnabler); ok {
				if l := se.EnableSubscribe(act); l != nil {
					if _, err := s.Subscribe(key, l); err != nil {
						s.logger.Warn("enable_subscribe failed", logging.String("key", key), logging.Error(err))
					}
				}
			}
		case actionInSet(reg.UnsubscribeActionSet, act.Type):
			if ue, ok := n.instance.(UnsubscribeEnabler); ok {
				if unsub := ue.EnableUnsubscribe(act); unsub != nil {
					unsub()
				}
			}
		default:
			changed := s.reduce(n, act)
			if len(changed) > 0 {
				n.mu.Lock()
				state := n.state
				n.mu.Unlock()
				s.notifyListeners(key, changedKeysList(changed), state)
			}
		}
	}

	if wasNew && reg.Recycle.Ephemeral() {
		s.mu.Lock()
		heldBySubscription := false
		if set, ok := s.observers[key]; ok && len(set.byID) > 0 {
			heldBySubscription = true
		}
		s.mu.Unlock()
		if !heldBySubscription {
			s.retire(key)
		}
	}

	s.mu.Lock()
	if n2, ok := s.nodes[key]; ok {
		n2.isNew = false
	}
	s.mu.Unlock()
	return true
}

// Subscribe registers l against key, creating the node if absent and
// dispatching __NO_OP so initialize-from-store hooks observe activation
//. The returned func unsubscribes; it is safe to call more than once.
func (s *Store) Subscribe(key string, l Listener) (func(), error) {
	s.mu.Lock()
	n, existed := s.nodes[key]
	if !existed {
		reg, ok := s.findClassByPrefixLocked(key)
		if !ok {
			s.mu.Unlock()
			return nil, ErrUnknownPrefix
		}
		created, err := s.createLocked(key, reg)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		n = created
	}
	id := uuid.NewString()
	set, ok := s.observers[key]
	if !ok {
		set = &observerSet{byID: make(map[string]*observerEntry)}
		s.observers[key] = set
	}
	set.order = append(set.order, id)
	set.byID[id] = &observerEntry{wrapper: wrapListener(l)}
	s.idle.remove(key)
	n.mu.Lock()
	state := FilterReserved(n.state)
	n.mu.Unlock()
	s.mu.Unlock()

	if !existed {
		s.Dispatch(key, NoOp())
	}
	if len(state) > 0 {
		s.safeNotify(key, id, SortedKeys(state), state)
	}

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribeByID(key, id) })
	}, nil
}

// unsubscribeByID removes one listener registration by id.
func (s *Store) unsubscribeByID(key, id string) {
	s.mu.Lock()
	set, ok := s.observers[key]
	if ok {
		delete(set.byID, id)
		for i, oid := range set.order {
			if oid == id {
				set.order = append(set.order[:i], set.order[i+1:]...)
				break
			}
		}
		if len(set.byID) == 0 {
			delete(s.observers, key)
		}
	}
	n, exists := s.nodes[key]
	remaining := 0
	if set2, ok2 := s.observers[key]; ok2 {
		remaining = len(set2.byID)
	}
	if !exists || remaining > 0 {
		s.mu.Unlock()
		return
	}
	if n.reg.Recycle.IdleQueueable() {
		s.idle.set(key, time.Now().Add(n.reg.Recycle.Timeout).UnixNano())
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.retire(key)
}

// notifyListeners delivers changedKeys/state to every observer of key, in
// registration order, unsubscribing any listener that panics.
func (s *Store) notifyListeners(key string, changedKeys []string, state map[string]any) {
	s.mu.Lock()
	set, ok := s.observers[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	ids := append([]string(nil), set.order...)
	s.mu.Unlock()
	projected := FilterReserved(state)
	for _, id := range ids {
		s.safeNotify(key, id, changedKeys, projected)
	}
}

func (s *Store) safeNotify(key, id string, changedKeys []string, state map[string]any) {
	s.mu.Lock()
	set, ok := s.observers[key]
	var entry *observerEntry
	if ok {
		entry, ok = set.byID[id]
	}
	s.mu.Unlock()
	if !ok || entry == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("listener panicked, unsubscribing",
				logging.String("key", key))
			s.unsubscribeByID(key, id)
		}
	}()
	entry.wrapper.notify(changedKeys, state)
}

// retire tears down a node: disables it, cancels outstanding barriers, runs
// Shutdown if overridden, and clears its state.
func (s *Store) retire(key string) {
	s.mu.Lock()
	n, ok := s.nodes[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.nodes, key)
	s.idle.remove(key)
	delete(s.observers, key)
	s.mu.Unlock()

	n.mu.Lock()
	n.enable = false
	barriers := n.barriers
	n.barriers = nil
	n.mu.Unlock()
	for _, b := range barriers {
		b.cancel()
	}

	if sd, ok := n.instance.(Shutdowner); ok {
		sd.Shutdown()
	}
	n.mu.Lock()
	n.state = nil
	n.mu.Unlock()
	atomic.AddUint64(&s.idleRetiredCount, 1)
}

func (s *Store) runIdleCleaner() {
	defer s.wg.Done()
	period := s.cleanerPeriod
	if period <= 0 {
		period = time.Second
	}
	timer := time.NewTimer(period)
	defer timer.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
		}
		now := time.Now().UnixNano()
		s.mu.Lock()
		expired := s.idle.popExpired(now)
		_, hasMore := s.idle.nextExpiry()
		s.mu.Unlock()
		for _, key := range expired {
			s.retire(key)
		}
		next := period
		if !hasMore {
			next = period * 4
		}
		timer.Reset(next)
	}
}

// DispatchCount returns the cumulative number of Dispatch calls, for metrics.
func (s *Store) DispatchCount() uint64 { return atomic.LoadUint64(&s.dispatchCount) }

// IdleRetiredCount returns the cumulative number of nodes retired for any
// reason (idle sweep, losing their last subscriber, or ephemeral retirement
// after a dispatch), for metrics.
func (s *Store) IdleRetiredCount() uint64 { return atomic.LoadUint64(&s.idleRetiredCount) }

// NodeCount returns the number of currently live nodes.
func (s *Store) NodeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

// DebugNode describes one live key: its class prefix, its subscriber count,
// and whether it is currently idle-queued.
type DebugNode struct {
	Key        string
	Prefix     string
	Observers  int
	IdleQueued bool
}

// DebugNodes returns a DebugNode snapshot of every live key, for the
// admin-token-gated /debug/nodes endpoint.
func (s *Store) DebugNodes() []DebugNode {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DebugNode, 0, len(s.nodes))
	for key, n := range s.nodes {
		observers := 0
		if set, ok := s.observers[key]; ok {
			observers = len(set.byID)
		}
		out = append(out, DebugNode{
			Key:        key,
			Prefix:     n.reg.KeyPrefix,
			Observers:  observers,
			IdleQueued: s.idle.has(key),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// CombineBarrier installs a combine barrier on the node at key: it completes
// when every type in types has been observed, dispatching combineAction back
// to key; on timeout it dispatches timeoutAction instead.
func (s *Store) CombineBarrier(key string, types []string, combineAction, timeoutAction Action, timeout time.Duration, keepOrigin bool) error {
	return s.installBarrier(key, types, combineAction, timeoutAction, timeout, keepOrigin, false)
}

// AnyBarrier installs an any-barrier: it completes on the first observed type
// in types.
func (s *Store) AnyBarrier(key string, types []string, combineAction, timeoutAction Action, timeout time.Duration) error {
	return s.installBarrier(key, types, combineAction, timeoutAction, timeout, true, true)
}

func (s *Store) installBarrier(key string, types []string, combineAction, timeoutAction Action, timeout time.Duration, keepOrigin, any bool) error {
	s.mu.Lock()
	n, ok := s.nodes[key]
	s.mu.Unlock()
	if !ok {
		return ErrUnknownPrefix
	}
	redispatch := func(act Action) { s.Dispatch(key, act) }
	n.mu.Lock()
	var b *barrier
	onFired := func(fired *barrier) {
		n.mu.Lock()
		for i, existing := range n.barriers {
			if existing == fired {
				n.barriers = append(n.barriers[:i], n.barriers[i+1:]...)
				break
			}
		}
		n.mu.Unlock()
	}
	b = newBarrier(types, combineAction, timeoutAction, timeout, keepOrigin, any, redispatch, onFired)
	n.barriers = append(n.barriers, b)
	n.mu.Unlock()
	return nil
}
