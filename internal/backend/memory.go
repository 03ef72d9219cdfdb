package backend

import "sort"

// Memory implements Backend on an ordered in-process map. It backs
// detached stores (a store renamed to the empty name keeps running without
// a disk location) and serves as the test double for the contract.
type Memory struct {
	keys         []string // sorted
	m            map[string][]byte
	bytes        uint64
	maxValueSize int
	closed       bool
}

var _ Backend = (*Memory)(nil)

func NewMemory(maxValueSize int) *Memory {
	if maxValueSize <= 0 {
		maxValueSize = DefaultMaxValueSize
	}
	return &Memory{
		m:            make(map[string][]byte),
		maxValueSize: maxValueSize,
	}
}

func (b *Memory) Get(key []byte) ([]byte, error) {
	if b.closed {
		return nil, ErrClosed
	}
	value, ok := b.m[string(key)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (b *Memory) Put(key, value []byte) error {
	if b.closed {
		return ErrClosed
	}
	if len(value) > b.maxValueSize {
		return ErrValueTooLarge
	}

	k := string(key)
	stored := make([]byte, len(value))
	copy(stored, value)

	if old, ok := b.m[k]; ok {
		b.bytes -= uint64(len(old))
	} else {
		i := sort.SearchStrings(b.keys, k)
		b.keys = append(b.keys, "")
		copy(b.keys[i+1:], b.keys[i:])
		b.keys[i] = k
		b.bytes += uint64(len(k))
	}
	b.m[k] = stored
	b.bytes += uint64(len(stored))
	return nil
}

func (b *Memory) Delete(key []byte) error {
	if b.closed {
		return ErrClosed
	}
	k := string(key)
	value, ok := b.m[k]
	if !ok {
		return ErrKeyNotFound
	}
	delete(b.m, k)
	b.bytes -= uint64(len(k)) + uint64(len(value))

	i := sort.SearchStrings(b.keys, k)
	b.keys = append(b.keys[:i], b.keys[i+1:]...)
	return nil
}

func (b *Memory) SeekFirst() ([]byte, []byte, error) {
	if b.closed {
		return nil, nil, ErrClosed
	}
	if len(b.keys) == 0 {
		return nil, nil, ErrExhausted
	}
	return b.entry(0)
}

func (b *Memory) SeekAfter(key []byte) ([]byte, []byte, error) {
	if b.closed {
		return nil, nil, ErrClosed
	}
	k := string(key)
	i := sort.SearchStrings(b.keys, k)
	if i < len(b.keys) && b.keys[i] == k {
		i++
	}
	if i >= len(b.keys) {
		return nil, nil, ErrExhausted
	}
	return b.entry(i)
}

func (b *Memory) SeekLast() ([]byte, []byte, error) {
	if b.closed {
		return nil, nil, ErrClosed
	}
	if len(b.keys) == 0 {
		return nil, nil, ErrExhausted
	}
	return b.entry(len(b.keys) - 1)
}

func (b *Memory) SeekBefore(key []byte) ([]byte, []byte, error) {
	if b.closed {
		return nil, nil, ErrClosed
	}
	i := sort.SearchStrings(b.keys, string(key))
	if i == 0 {
		return nil, nil, ErrExhausted
	}
	return b.entry(i - 1)
}

func (b *Memory) entry(i int) ([]byte, []byte, error) {
	k := b.keys[i]
	value := b.m[k]
	out := make([]byte, len(value))
	copy(out, value)
	return []byte(k), out, nil
}

// Sync is a no-op: there is nothing durable behind a Memory backend.
func (b *Memory) Sync() error {
	if b.closed {
		return ErrClosed
	}
	return nil
}

func (b *Memory) BytesUsed() (uint64, error) {
	if b.closed {
		return 0, ErrClosed
	}
	return b.bytes, nil
}

func (b *Memory) MaxValueSize() int {
	return b.maxValueSize
}

func (b *Memory) Close() error {
	b.closed = true
	b.m = nil
	b.keys = nil
	return nil
}
