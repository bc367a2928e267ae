package cache

// nilIndex marks the absence of a neighbour in the arena.
const nilIndex int32 = -1

// entry is one cached key-value pair. prev and next are slot indices into the
// owning list's arena, not pointers.
type entry[K comparable, V any] struct {
	key   K
	value V

	prev int32
	next int32
}

// lruList is a doubly-linked list laid out in a dense slice.
// All index manipulation is centralized here for correctness and readability.
// The head is the least recently used slot, the tail the most recently used.
type lruList[K comparable, V any] struct {
	entries []entry[K, V]
	// Slots released by unlink+release, reused before growing entries.
	free []int32
	head int32
	tail int32
}

func newLRUList[K comparable, V any](capacity int) lruList[K, V] {
	return lruList[K, V]{
		// One extra slot: Set inserts before it evicts.
		entries: make([]entry[K, V], 0, capacity+1),
		head:    nilIndex,
		tail:    nilIndex,
	}
}

// alloc stores key and value in a free slot and returns its index. The slot is
// not linked; call append to place it.
func (l *lruList[K, V]) alloc(key K, value V) int32 {
	e := entry[K, V]{key: key, value: value, prev: nilIndex, next: nilIndex}
	if n := len(l.free); n > 0 {
		idx := l.free[n-1]
		l.free = l.free[:n-1]
		l.entries[idx] = e
		return idx
	}
	l.entries = append(l.entries, e)
	return int32(len(l.entries) - 1)
}

// release zeroes a slot so the arena stops referencing its value and puts the
// slot on the free list. The slot must already be unlinked.
func (l *lruList[K, V]) release(idx int32) {
	l.entries[idx] = entry[K, V]{prev: nilIndex, next: nilIndex}
	l.free = append(l.free, idx)
}

// append links a slot at the tail (most recently used position).
func (l *lruList[K, V]) append(idx int32) {
	node := &l.entries[idx]
	node.prev = l.tail
	node.next = nilIndex
	if l.tail != nilIndex {
		l.entries[l.tail].next = idx
	} else {
		l.head = idx
	}
	l.tail = idx
}

// unlink removes a slot from anywhere in the list.
func (l *lruList[K, V]) unlink(idx int32) {
	node := &l.entries[idx]
	if node.prev != nilIndex {
		l.entries[node.prev].next = node.next
	} else {
		l.head = node.next
	}
	if node.next != nilIndex {
		l.entries[node.next].prev = node.prev
	} else {
		l.tail = node.prev
	}
	node.prev = nilIndex
	node.next = nilIndex
}

// moveToTail moves an existing slot to the tail (most recently used).
func (l *lruList[K, V]) moveToTail(idx int32) {
	if idx == l.tail {
		return
	}
	l.unlink(idx)
	l.append(idx)
}

// front returns the head of the list (least recently used).
func (l *lruList[K, V]) front() int32 {
	return l.head
}

// reset drops every slot, keeping the allocated arena.
func (l *lruList[K, V]) reset() {
	clear(l.entries)
	l.entries = l.entries[:0]
	l.free = l.free[:0]
	l.head = nilIndex
	l.tail = nilIndex
}
