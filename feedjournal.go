package calcify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/calcify-go/calcify/journal"
)

type feedOp uint8

const (
	feedOpCreate feedOp = iota
	feedOpField
	feedOpFeed
	feedOpWrite
)

func (op feedOp) String() string {
	switch op {
	case feedOpCreate:
		return "create"
	case feedOpField:
		return "field"
	case feedOpFeed:
		return "feed"
	case feedOpWrite:
		return "write"
	default:
		return fmt.Sprintf("feedOp(%d)", uint8(op))
	}
}

type FeedJournalOptions struct {
	Context context.Context
	Logger  *slog.Logger
	Now     func() time.Time
	Verbose bool
}

// FeedJournal is a FeedTree whose every change is appended to a journal
// file, so that a long-running producer can recover its feeds after a crash.
// Changes become durable on Commit.
//
// A FeedJournal has a single owner and is not safe for concurrent use.
type FeedJournal[T Record] struct {
	tree    *FeedTree[T]
	j       *journal.Journal
	ctx     context.Context
	logger  *slog.Logger
	path    string
	buf     []byte
	pending int
}

func feedJournalInvariant[T Record]() [32]byte {
	var inv [32]byte
	copy(inv[:], "calcify/feeds/"+subtypeName[T]())
	return inv
}

// OpenFeedJournal opens the feed journal at path, replaying its committed
// changes, or creates a new one holding an empty feed tree called name.
func OpenFeedJournal[T Record, PT Decodable[T]](path, name string, o FeedJournalOptions) (*FeedJournal[T], error) {
	if o.Context == nil {
		o.Context = context.Background()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	jo := journal.Options{
		Context:   o.Context,
		Now:       o.Now,
		Invariant: feedJournalInvariant[T](),
		Logger:    o.Logger,
		Verbose:   o.Verbose,
	}

	var tree *FeedTree[T]
	var ops int
	err := journal.Replay(path, jo, func(rec journal.Record) error {
		var err error
		tree, err = replayFeedOp[T, PT](tree, rec.Data)
		ops++
		if err != nil {
			return fmt.Errorf("op %d: %w", ops, detachDataError(err))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if tree != nil && tree.Name() != name {
		return nil, fmt.Errorf("%s: journal holds feed tree %q, not %q", path, tree.Name(), name)
	}

	j, err := journal.Open(path, jo)
	if err != nil {
		return nil, err
	}
	fj := &FeedJournal[T]{
		tree:   tree,
		j:      j,
		ctx:    o.Context,
		logger: o.Logger,
		path:   path,
	}
	if tree == nil {
		fj.tree = NewFeedTree[T](name)
		err := fj.log(feedOpCreate, name, func(enc *msgpack.Encoder) error {
			return enc.EncodeString(subtypeName[T]())
		})
		if err == nil {
			err = j.Commit()
		}
		if err != nil {
			j.Close()
			return nil, err
		}
	} else {
		fj.logger.LogAttrs(fj.ctx, slog.LevelInfo, "feed journal: recovered",
			slog.String("path", path),
			slog.String("name", name),
			slog.Int("ops", ops),
			slog.Int("feeds", len(tree.feeds)))
	}
	return fj, nil
}

// Tree returns the in-memory feed tree. Mutating it directly bypasses the
// journal.
func (fj *FeedJournal[T]) Tree() *FeedTree[T] {
	return fj.tree
}

// AddField adds a metadata field. Like AddFeed and Write, it leaves the tree
// unchanged when the journal rejects the change.
func (fj *FeedJournal[T]) AddField(key, value string) error {
	if err := fj.tree.AddField(key, value); err != nil {
		return err
	}
	err := fj.log(feedOpField, key, func(enc *msgpack.Encoder) error {
		return enc.EncodeString(value)
	})
	if err != nil {
		delete(fj.tree.fields, key)
	}
	return err
}

// AddFeed adds c under key. As with FeedTree.AddFeed, the journal takes
// ownership of c.
func (fj *FeedJournal[T]) AddFeed(key string, c *Collection[T]) error {
	if err := fj.tree.AddFeed(key, c); err != nil {
		return err
	}
	if err := fj.log(feedOpFeed, key, fj.tree.feeds[key].EncodeMsgpack); err != nil {
		delete(fj.tree.feeds, key)
		return err
	}
	return nil
}

func (fj *FeedJournal[T]) Write(key string, v T) error {
	if err := fj.tree.Write(key, v); err != nil {
		return err
	}
	if err := fj.log(feedOpWrite, key, v.EncodeMsgpack); err != nil {
		c := fj.tree.feeds[key]
		c.Vec = c.Vec[:len(c.Vec)-1]
		return err
	}
	return nil
}

// Commit makes all changes since the previous Commit durable.
func (fj *FeedJournal[T]) Commit() error {
	if err := fj.j.Commit(); err != nil {
		return err
	}
	if fj.pending > 0 {
		fj.logger.LogAttrs(fj.ctx, slog.LevelDebug, "feed journal: committed", slog.String("path", fj.path), slog.Int("ops", fj.pending))
		fj.pending = 0
	}
	return nil
}

// Flush commits and writes the feed tree to path in the format FormatOf
// selects.
func (fj *FeedJournal[T]) Flush(path string) error {
	if err := fj.Commit(); err != nil {
		return err
	}
	return WriteFile(path, fj.tree)
}

// Close closes the journal file. Uncommitted changes are lost.
func (fj *FeedJournal[T]) Close() error {
	return fj.j.Close()
}

func (fj *FeedJournal[T]) log(op feedOp, key string, encodeArg func(enc *msgpack.Encoder) error) error {
	bb := bytesBuilder{fj.buf[:0]}
	enc := msgpack.GetEncoder()
	enc.Reset(&bb)
	err := encodeFeedOp(enc, op, key, encodeArg)
	msgpack.PutEncoder(enc)
	fj.buf = bb.Buf
	if err != nil {
		return fmt.Errorf("feed journal: encode %v %q: %w", op, key, err)
	}
	if err := fj.j.WriteRecord(0, fj.buf); err != nil {
		return err
	}
	fj.pending++
	return nil
}

// [op, key, arg]
func encodeFeedOp(enc *msgpack.Encoder, op feedOp, key string, encodeArg func(enc *msgpack.Encoder) error) error {
	if err := enc.EncodeArrayLen(3); err != nil {
		return err
	}
	if err := enc.EncodeUint(uint64(op)); err != nil {
		return err
	}
	if err := enc.EncodeString(key); err != nil {
		return err
	}
	return encodeArg(enc)
}

func replayFeedOp[T Record, PT Decodable[T]](tree *FeedTree[T], data []byte) (*FeedTree[T], error) {
	d := newBinaryDecoder(data)
	defer d.release()
	tree, err := applyFeedOp[T, PT](tree, d.Decoder)
	if err != nil {
		return nil, d.wrap(err, "invalid feed journal op")
	}
	if n := len(d.rest()); n != 0 {
		return nil, dataErrf(data, d.off(), nil, nil, "%d trailing bytes after feed journal op", n)
	}
	return tree, nil
}

func applyFeedOp[T Record, PT Decodable[T]](tree *FeedTree[T], dec *msgpack.Decoder) (*FeedTree[T], error) {
	if err := decodeArrayLen(dec, 3); err != nil {
		return nil, err
	}
	code, err := dec.DecodeUint64()
	if err != nil {
		return nil, err
	}
	op := feedOp(code)
	key, err := dec.DecodeString()
	if err != nil {
		return nil, err
	}
	if (op == feedOpCreate) != (tree == nil) {
		return nil, fmt.Errorf("%w: unexpected %v op", ErrParse, op)
	}

	switch op {
	case feedOpCreate:
		st, err := dec.DecodeString()
		if err != nil {
			return nil, err
		}
		if want := subtypeName[T](); st != want {
			return nil, fmt.Errorf("%w: journal holds %s records, not %s", ErrSubtypeMismatch, st, want)
		}
		return NewFeedTree[T](key), nil
	case feedOpField:
		value, err := dec.DecodeString()
		if err != nil {
			return nil, err
		}
		err = tree.AddField(key, value)
		return tree, err
	case feedOpFeed:
		c, err := decodeCollectionMsgpack[T, PT](dec)
		if err != nil {
			return nil, err
		}
		err = tree.AddFeed(key, c)
		return tree, err
	case feedOpWrite:
		var v T
		if err := PT(&v).DecodeMsgpack(dec); err != nil {
			return nil, err
		}
		err := tree.Write(key, v)
		return tree, err
	default:
		return nil, fmt.Errorf("%w: unknown op %d", ErrParse, code)
	}
}
