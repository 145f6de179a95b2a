package calcify

import (
	"go.etcd.io/bbolt"
)

var boltEntriesBucket = []byte("entries")

type boltStorage struct {
	bdb *bbolt.DB
}

func (s *boltStorage) view(fn func(b entryBucket) error) error {
	return s.bdb.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(boltEntriesBucket)
		if b == nil {
			return fn(nil)
		}
		return fn(boltEntries{b, tx})
	})
}

func (s *boltStorage) update(fn func(b entryBucket) error) error {
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(boltEntriesBucket)
		if err != nil {
			return err
		}
		return fn(boltEntries{b, tx})
	})
}

func (s *boltStorage) close() error {
	return s.bdb.Close()
}

type boltEntries struct {
	b  *bbolt.Bucket
	tx *bbolt.Tx
}

func (e boltEntries) Get(key []byte) []byte { return e.b.Get(key) }
func (e boltEntries) Put(key, value []byte) error { return e.b.Put(key, value) }
func (e boltEntries) Delete(key []byte) error { return e.b.Delete(key) }
func (e boltEntries) Cursor() entryCursor { return e.b.Cursor() }

func (e boltEntries) Stats() bucketStats {
	s := e.b.Stats()
	return bucketStats{
		KeyN:     s.KeyN,
		InUse:    int64(s.LeafInuse + s.BranchInuse),
		Alloc:    int64(s.LeafAlloc + s.BranchAlloc),
		FileSize: e.tx.Size(),
	}
}
