package calcify

import (
	"errors"
	"testing"
)

func TestMemStorage_isolation(t *testing.T) {
	s := &memStorage{}
	ensure(s.update(func(b entryBucket) error {
		ensure(b.Put([]byte("b"), []byte("2")))
		return b.Put([]byte("a"), []byte("1"))
	}))

	// a reader keeps the snapshot it started with
	ensure(s.view(func(old entryBucket) error {
		ensure(s.update(func(b entryBucket) error {
			ensure(b.Delete([]byte("a")))
			return b.Put([]byte("c"), []byte("3"))
		}))
		if v := old.Get([]byte("a")); string(v) != "1" {
			t.Errorf("old a = %q, wanted 1", v)
		}
		if v := old.Get([]byte("c")); v != nil {
			t.Errorf("old c = %q, wanted nil", v)
		}
		return nil
	}))

	failed := errors.New("failed")
	err := s.update(func(b entryBucket) error {
		ensure(b.Put([]byte("d"), []byte("4")))
		return failed
	})
	isErr(t, err, failed)

	var keys []string
	ensure(s.view(func(b entryBucket) error {
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		if k, _ := c.Seek([]byte("bb")); string(k) != "c" {
			t.Errorf("Seek(bb) = %q, wanted c", k)
		}
		if k, _ := c.Seek([]byte("z")); k != nil {
			t.Errorf("Seek(z) = %q, wanted nil", k)
		}
		if st := b.Stats(); st.KeyN != 2 || st.InUse != 4 {
			t.Errorf("Stats = %+v, wanted 2 keys of 4 bytes", st)
		}
		isErr(t, b.Put([]byte("x"), nil), errReadOnlyTx)
		return nil
	}))
	deepEq(t, keys, []string{"b", "c"})

	ensure(s.close())
	isErr(t, s.view(func(b entryBucket) error { return nil }), errStorageClosed)
	isErr(t, s.update(func(b entryBucket) error { return nil }), errStorageClosed)
}

func TestMemStorage_putCopies(t *testing.T) {
	s := &memStorage{}
	key, value := []byte("k"), []byte("v1")
	ensure(s.update(func(b entryBucket) error { return b.Put(key, value) }))
	key[0], value[1] = 'x', '9'
	ensure(s.view(func(b entryBucket) error {
		if v := b.Get([]byte("k")); string(v) != "v1" {
			t.Errorf("Get(k) = %q, wanted v1", v)
		}
		return nil
	}))
}
