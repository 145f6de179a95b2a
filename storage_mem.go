package calcify

import (
	"bytes"
	"errors"
	"slices"
	"sync"
)

var (
	errStorageClosed = errors.New("archive closed")
	errReadOnlyTx    = errors.New("read-only transaction")
)

// memStorage keeps entries in a sorted slice that is replaced, never modified,
// on commit. Readers work on whatever slice was current when they started.
type memStorage struct {
	writeMu sync.Mutex // serializes updates
	mu      sync.RWMutex
	entries []memEntry
	closed  bool
}

type memEntry struct {
	key, value []byte
}

func (s *memStorage) current() ([]memEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStorageClosed
	}
	return s.entries, nil
}

func (s *memStorage) view(fn func(b entryBucket) error) error {
	entries, err := s.current()
	if err != nil {
		return err
	}
	return fn(&memEntries{entries: entries})
}

func (s *memStorage) update(fn func(b entryBucket) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	entries, err := s.current()
	if err != nil {
		return err
	}
	b := &memEntries{entries: slices.Clone(entries), writable: true}
	if err := fn(b); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStorageClosed
	}
	s.entries = b.entries
	return nil
}

func (s *memStorage) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}

// memEntries is a transaction's private copy of the entry slice. Put and
// Delete rearrange the slice but never write into a key or value.
type memEntries struct {
	entries  []memEntry
	writable bool
}

func (b *memEntries) search(key []byte) (int, bool) {
	return slices.BinarySearchFunc(b.entries, key, func(e memEntry, k []byte) int {
		return bytes.Compare(e.key, k)
	})
}

func (b *memEntries) Get(key []byte) []byte {
	if i, ok := b.search(key); ok {
		return b.entries[i].value
	}
	return nil
}

func (b *memEntries) Put(key, value []byte) error {
	if !b.writable {
		return errReadOnlyTx
	}
	e := memEntry{slices.Clone(key), slices.Clone(value)}
	if i, ok := b.search(key); ok {
		b.entries[i] = e
	} else {
		b.entries = slices.Insert(b.entries, i, e)
	}
	return nil
}

func (b *memEntries) Delete(key []byte) error {
	if !b.writable {
		return errReadOnlyTx
	}
	if i, ok := b.search(key); ok {
		b.entries = slices.Delete(b.entries, i, i+1)
	}
	return nil
}

func (b *memEntries) Cursor() entryCursor {
	return &memCursor{entries: b.entries, pos: -1}
}

func (b *memEntries) Stats() bucketStats {
	var size int64
	for _, e := range b.entries {
		size += int64(len(e.key) + len(e.value))
	}
	return bucketStats{KeyN: len(b.entries), InUse: size, Alloc: size}
}

type memCursor struct {
	entries []memEntry
	pos     int
}

func (c *memCursor) at(pos int) ([]byte, []byte) {
	c.pos = pos
	if pos >= len(c.entries) {
		return nil, nil
	}
	return c.entries[pos].key, c.entries[pos].value
}

func (c *memCursor) First() ([]byte, []byte) {
	return c.at(0)
}

func (c *memCursor) Seek(seek []byte) ([]byte, []byte) {
	i, _ := slices.BinarySearchFunc(c.entries, seek, func(e memEntry, k []byte) int {
		return bytes.Compare(e.key, k)
	})
	return c.at(i)
}

func (c *memCursor) Next() ([]byte, []byte) {
	return c.at(c.pos + 1)
}
