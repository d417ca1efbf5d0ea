package conflate

// Update is the latest value observed for one key at flush time.
type Update[K comparable, V any] struct {
	Key   K
	Value V
}

// Batch is the ordered set of per-key updates delivered at one flush.
// Every subscriber receives the same instance and must not mutate it.
type Batch[K comparable, V any] []Update[K, V]

type entry[K comparable, V any] struct {
	key   K
	value V
	seq   uint64
}

// Buffer coalesces repeated updates to the same key into one pending entry.
// An entry keeps the position of its first upsert until the next drain, so a
// batch is always emitted in first-push order. Not safe for concurrent use;
// the owning Subject serializes access.
type Buffer[K comparable, V any] struct {
	entries []entry[K, V]
	index   map[K]int
	seq     uint64
}

// NewBuffer allocates an empty buffer.
func NewBuffer[K comparable, V any]() *Buffer[K, V] {
	return &Buffer[K, V]{index: make(map[K]int)}
}

// Upsert records the latest value for key. A push for an existing key
// replaces its value in place without changing its position. It reports
// whether the buffer as a whole transitioned from empty to non-empty.
func (b *Buffer[K, V]) Upsert(key K, value V) (wasEmpty bool) {
	wasEmpty = len(b.entries) == 0
	b.seq++
	if i, ok := b.index[key]; ok {
		b.entries[i].value = value
		b.entries[i].seq = b.seq
		return wasEmpty
	}
	b.index[key] = len(b.entries)
	b.entries = append(b.entries, entry[K, V]{key: key, value: value, seq: b.seq})
	return wasEmpty
}

// Drain returns all pending entries in first-push order and resets the
// buffer to empty. Returns nil when nothing is pending.
func (b *Buffer[K, V]) Drain() Batch[K, V] {
	if len(b.entries) == 0 {
		return nil
	}
	batch := make(Batch[K, V], len(b.entries))
	for i := range b.entries {
		batch[i] = Update[K, V]{Key: b.entries[i].key, Value: b.entries[i].value}
	}
	b.entries = b.entries[:0]
	clear(b.index)
	return batch
}

// IsEmpty reports whether no updates are pending.
func (b *Buffer[K, V]) IsEmpty() bool {
	return len(b.entries) == 0
}

// Len returns the number of distinct keys pending.
func (b *Buffer[K, V]) Len() int {
	return len(b.entries)
}
