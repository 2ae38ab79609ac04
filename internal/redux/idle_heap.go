package redux

import "container/heap"

// idleItem is one entry in the store's idle-expiry priority queue: the key
// expires at Expiry unless re-queued or removed first.
type idleItem struct {
	key    string
	expiry int64 // UnixNano, for a monotonic min-heap ordering
	index  int   // maintained by container/heap
}

// idleQueue is a time-ordered min-heap of idleItem, with an index by key so
// a node's entry can be found and removed in O(log n) when a subscription
// attaches or the node is retired out of band.
type idleQueue struct {
	items []*idleItem
	byKey map[string]*idleItem
}

func newIdleQueue() *idleQueue {
	return &idleQueue{byKey: make(map[string]*idleItem)}
}

func (q *idleQueue) Len() int { return len(q.items) }

func (q *idleQueue) Less(i, j int) bool { return q.items[i].expiry < q.items[j].expiry }

func (q *idleQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *idleQueue) Push(x any) {
	item := x.(*idleItem)
	item.index = len(q.items)
	q.items = append(q.items, item)
}

func (q *idleQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	return item
}

// set inserts or replaces the idle entry for key, expiring at expiryNanos.
func (q *idleQueue) set(key string, expiryNanos int64) {
	q.remove(key)
	item := &idleItem{key: key, expiry: expiryNanos}
	heap.Push(q, item)
	q.byKey[key] = item
}

// remove deletes key's idle entry, if any.
func (q *idleQueue) remove(key string) {
	item, ok := q.byKey[key]
	if !ok {
		return
	}
	heap.Remove(q, item.index)
	delete(q.byKey, key)
}

// has reports whether key currently has an idle entry.
func (q *idleQueue) has(key string) bool {
	_, ok := q.byKey[key]
	return ok
}

// popExpired removes and returns every key whose expiry is <= nowNanos.
func (q *idleQueue) popExpired(nowNanos int64) []string {
	var expired []string
	for q.Len() > 0 && q.items[0].expiry <= nowNanos {
		item := heap.Pop(q).(*idleItem)
		delete(q.byKey, item.key)
		expired = append(expired, item.key)
	}
	return expired
}

// nextExpiry returns the soonest expiry time and whether the queue is
// non-empty.
func (q *idleQueue) nextExpiry() (int64, bool) {
	if q.Len() == 0 {
		return 0, false
	}
	return q.items[0].expiry, true
}
