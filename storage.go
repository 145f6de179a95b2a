package calcify

// storage is the transactional backend of an Archive: one sorted keyspace of
// entry name to encoded archiveValue.
type storage interface {
	// view runs fn in a read-only transaction. The bucket is nil when a
	// read-only file has never been written to.
	view(fn func(b entryBucket) error) error

	// update runs fn in a read-write transaction, committing if fn returns
	// nil. Updates are serialized.
	update(fn func(b entryBucket) error) error

	close() error
}

// entryBucket is the keyspace as seen by one transaction. Slices returned by
// Get and by cursors are only valid until the transaction ends.
type entryBucket interface {
	// Get returns nil if not found.
	Get(key []byte) []byte
	Put(key, value []byte) error
	Delete(key []byte) error
	Cursor() entryCursor
	Stats() bucketStats
}

// bucketStats reports space usage. Backends that don't track allocation
// report the in-use size as allocated and a zero FileSize.
type bucketStats struct {
	KeyN     int
	InUse    int64
	Alloc    int64
	FileSize int64
}

type entryCursor interface {
	First() (key, value []byte)
	// Seek moves to the first key >= seek.
	Seek(seek []byte) (key, value []byte)
	Next() (key, value []byte)
}
