package calcify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"
)

type ArchiveOptions struct {
	Context context.Context
	Logger  *slog.Logger
	Now     func() time.Time

	// Compress stores new entries zstd-compressed.
	Compress bool

	// Timeout bounds the wait for the file lock held by another process.
	// Zero waits forever.
	Timeout time.Duration

	ReadOnly bool
	Verbose  bool
}

func (o *ArchiveOptions) setDefaults() {
	if o.Context == nil {
		o.Context = context.Background()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Archive stores named checkpoint containers in a single file. Entries are
// insert-once: storing under a taken name fails with a *KeyError.
//
// An Archive is safe for concurrent use.
type Archive struct {
	st       storage
	ctx      context.Context
	logger   *slog.Logger
	now      func() time.Time
	compress bool
	verbose  bool
	name     string
}

// ArchiveEntry describes a stored container.
type ArchiveEntry struct {
	Name       string
	Kind       ArchiveKind
	SubType    string
	Created    time.Time
	Size       int // as stored
	RawSize    int // binary encoding
	Compressed bool
}

// OpenArchive opens or creates the bolt-backed archive at path.
func OpenArchive(path string, o ArchiveOptions) (*Archive, error) {
	o.setDefaults()
	bdb, err := bbolt.Open(path, 0o644, &bbolt.Options{
		Timeout:  o.Timeout,
		ReadOnly: o.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	a := newArchive(&boltStorage{bdb}, path, o)
	if !o.ReadOnly {
		err := a.update(func(b entryBucket) error { return nil })
		if err != nil {
			bdb.Close()
			return nil, err
		}
	}
	return a, nil
}

// OpenMemArchive returns an archive that lives in memory until closed.
func OpenMemArchive(o ArchiveOptions) *Archive {
	o.setDefaults()
	return newArchive(&memStorage{}, "mem", o)
}

func newArchive(st storage, name string, o ArchiveOptions) *Archive {
	return &Archive{
		st:       st,
		ctx:      o.Context,
		logger:   o.Logger,
		now:      o.Now,
		compress: o.Compress,
		verbose:  o.Verbose,
		name:     name,
	}
}

func (a *Archive) String() string {
	return a.name
}

func (a *Archive) Close() error {
	return a.st.close()
}

// PutTree stores t under name.
func (a *Archive) PutTree(name string, t *Tree) error {
	return a.put(name, KindTree, "", t)
}

// PutFeedTree stores ft under name.
func PutFeedTree[T Record](a *Archive, name string, ft *FeedTree[T]) error {
	st, _ := ft.Field(subtypeField)
	return a.put(name, KindFeedTree, st, ft)
}

func (a *Archive) put(name string, kind ArchiveKind, subtype string, r Record) error {
	if name == "" {
		return keyErrf(a.name, "entry", name, "empty name")
	}
	raw, err := EncodeBinary(r)
	if err != nil {
		return err
	}
	v := archiveValue{
		Flags:   vfDefault,
		Kind:    kind,
		Created: uint64(a.now().Unix()),
		RawSize: uint64(len(raw)),
		SubType: subtype,
		Data:    raw,
	}
	if a.compress {
		v.Flags |= vfZstd
		v.Data, err = compress(raw, CompressionZstd)
		if err != nil {
			return err
		}
	}
	enc := v.encode(nil)

	err = a.update(func(b entryBucket) error {
		key := []byte(name)
		if b.Get(key) != nil {
			return keyErrf(a.name, "entry", name, "already exists")
		}
		return b.Put(key, enc)
	})
	if err != nil {
		return err
	}
	a.logger.LogAttrs(a.ctx, slog.LevelInfo, "archive: stored",
		slog.String("archive", a.name),
		slog.String("entry", name),
		slog.String("kind", kind.String()),
		slog.Int("raw_size", len(raw)),
		slog.Int("size", len(enc)))
	return nil
}

// GetTree decodes the tree stored under name.
func (a *Archive) GetTree(name string) (*Tree, error) {
	var t *Tree
	err := a.get(name, KindTree, func(raw []byte) error {
		var err error
		t, err = DecodeTreeBinary(raw)
		return err
	})
	return t, err
}

// GetFeedTree decodes the feed tree stored under name as a feed tree of T.
func GetFeedTree[T Record, PT Decodable[T]](a *Archive, name string) (*FeedTree[T], error) {
	var ft *FeedTree[T]
	err := a.get(name, KindFeedTree, func(raw []byte) error {
		var err error
		ft, err = DecodeFeedTreeBinary[T, PT](raw)
		return err
	})
	return ft, err
}

// GetBinary returns the binary encoding of the container stored under name.
func (a *Archive) GetBinary(name string) (ArchiveEntry, []byte, error) {
	var e ArchiveEntry
	var out []byte
	err := a.view(func(b entryBucket) error {
		v, err := a.lookup(b, name)
		if err != nil {
			return err
		}
		e = v.entry(name)
		raw, err := v.container()
		if err != nil {
			return err
		}
		out = append([]byte(nil), raw...)
		return nil
	})
	return e, out, err
}

func (a *Archive) get(name string, kind ArchiveKind, decode func(raw []byte) error) error {
	return a.view(func(b entryBucket) error {
		v, err := a.lookup(b, name)
		if err != nil {
			return err
		}
		if v.Kind != kind {
			return fmt.Errorf("%s: entry %q holds a %v, not a %v", a.name, name, v.Kind, kind)
		}
		raw, err := v.container()
		if err != nil {
			return fmt.Errorf("%s: entry %q: %w", a.name, name, err)
		}
		if err := detachDataError(decode(raw)); err != nil {
			return fmt.Errorf("%s: entry %q: %w", a.name, name, err)
		}
		return nil
	})
}

func (a *Archive) lookup(b entryBucket, name string) (*archiveValue, error) {
	var data []byte
	if b != nil {
		data = b.Get([]byte(name))
	}
	if data == nil {
		return nil, fmt.Errorf("%s: entry %q: %w", a.name, name, ErrNotFound)
	}
	var v archiveValue
	if err := v.decode(data); err != nil {
		return nil, fmt.Errorf("%s: entry %q: %w", a.name, name, detachDataError(err))
	}
	return &v, nil
}

// Entry describes the container stored under name.
func (a *Archive) Entry(name string) (ArchiveEntry, error) {
	var e ArchiveEntry
	err := a.view(func(b entryBucket) error {
		v, err := a.lookup(b, name)
		if err != nil {
			return err
		}
		e = v.entry(name)
		return nil
	})
	return e, err
}

// Delete removes the entry stored under name.
func (a *Archive) Delete(name string) error {
	err := a.update(func(b entryBucket) error {
		key := []byte(name)
		if b.Get(key) == nil {
			return fmt.Errorf("%s: entry %q: %w", a.name, name, ErrNotFound)
		}
		return b.Delete(key)
	})
	if err != nil {
		return err
	}
	a.logger.LogAttrs(a.ctx, slog.LevelInfo, "archive: deleted", slog.String("archive", a.name), slog.String("entry", name))
	return nil
}

// List returns all entries sorted by name. A non-empty prefix limits the
// result to names starting with it.
func (a *Archive) List(prefix string) ([]ArchiveEntry, error) {
	var entries []ArchiveEntry
	err := a.view(func(b entryBucket) error {
		if b == nil {
			return nil
		}
		c := b.Cursor()
		var k, data []byte
		if prefix == "" {
			k, data = c.First()
		} else {
			k, data = c.Seek([]byte(prefix))
		}
		for ; k != nil; k, data = c.Next() {
			name := string(k)
			if len(name) < len(prefix) || name[:len(prefix)] != prefix {
				break
			}
			var v archiveValue
			if err := v.decode(data); err != nil {
				return fmt.Errorf("%s: entry %q: %w", a.name, name, detachDataError(err))
			}
			entries = append(entries, v.entry(name))
		}
		return nil
	})
	return entries, err
}

func (a *Archive) view(f func(b entryBucket) error) error {
	return a.st.view(f)
}

func (a *Archive) update(f func(b entryBucket) error) error {
	err := a.st.update(f)
	var ke *KeyError
	if err != nil && a.verbose && !errors.As(err, &ke) {
		a.logger.LogAttrs(a.ctx, slog.LevelError, "archive: update failed", slog.String("archive", a.name), slog.Any("err", err))
	}
	return err
}
