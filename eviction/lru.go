// This file implements LRU eviction.

package eviction

// lruNode represents ONE key inside the recency sequence. We use a doubly-linked list to track usage order.
type lruNode struct {
	key string

	// older points to the node used just before this one
	older *lruNode

	// newer points to the node used just after this one
	newer *lruNode
}

// lru keeps keys ordered from least recently used (oldest) to most recently used (newest).
type lru struct {
	// nodes maps cache keys to their list nodes so moves are O(1).
	nodes map[string]*lruNode

	// oldest is the head of the sequence: the next key to evict
	oldest *lruNode

	// newest is the tail of the sequence: the key touched last
	newest *lruNode
}

func newLRU() *lru {
	return &lru{nodes: make(map[string]*lruNode)}
}

// OnGet moves an accessed key to the newest end.
func (l *lru) OnGet(k string) {
	if n, ok := l.nodes[k]; ok {
		l.unlink(n)
		l.append(n)
	}
}

// OnPut appends a key at the newest end. A key that is already tracked is
// moved there instead, so the sequence never holds duplicates.
func (l *lru) OnPut(k string) {
	if n, ok := l.nodes[k]; ok {
		l.unlink(n)
		l.append(n)
		return
	}
	n := &lruNode{key: k}
	l.nodes[k] = n
	l.append(n)
}

// Evict removes the LEAST recently used key. That key is always at the head.
func (l *lru) Evict() string {
	if l.oldest == nil {
		return ""
	}
	k := l.oldest.key
	l.unlink(l.oldest)
	delete(l.nodes, k)
	return k
}

// Remove is a no-op for untracked keys.
func (l *lru) Remove(k string) {
	if n, ok := l.nodes[k]; ok {
		l.unlink(n)
		delete(l.nodes, k)
	}
}

func (l *lru) Keys() []string {
	keys := make([]string, 0, len(l.nodes))
	for n := l.oldest; n != nil; n = n.newer {
		keys = append(keys, n.key)
	}
	return keys
}

func (l *lru) Len() int { return len(l.nodes) }

func (l *lru) Reset() {
	l.nodes = make(map[string]*lruNode)
	l.oldest = nil
	l.newest = nil
}

// append links a node at the newest end.
func (l *lru) append(n *lruNode) {
	n.older = l.newest
	n.newer = nil
	if l.newest != nil {
		l.newest.newer = n
	}
	l.newest = n

	// If the list was empty, head and tail are the same
	if l.oldest == nil {
		l.oldest = n
	}
}

// unlink detaches a node, fixing the neighbours and both ends.
func (l *lru) unlink(n *lruNode) {
	if n.older != nil {
		n.older.newer = n.newer
	} else {
		l.oldest = n.newer
	}
	if n.newer != nil {
		n.newer.older = n.older
	} else {
		l.newest = n.older
	}
	n.older = nil
	n.newer = nil
}
