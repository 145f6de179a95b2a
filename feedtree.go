package calcify

import (
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
)

var feedTreeLayout = containerLayout{innerKey: feedsKey, aliases: []string{legacyFeedsKey}}

// FeedTree is a named container of feeds that all hold records of type T.
// Unlike a Tree, feeds can grow after they are added: Write appends one
// record to an existing feed.
//
// A FeedTree has a single owner and is not safe for concurrent use. Workers
// that produce records concurrently should send them to the one goroutine
// that owns the tree.
type FeedTree[T Record] struct {
	fields metadata
	feeds  map[string]*Collection[T]
}

// NewFeedTree creates a feed tree whose SubType field names T.
func NewFeedTree[T Record](name string) *FeedTree[T] {
	return &FeedTree[T]{
		fields: metadata{nameField: name, subtypeField: subtypeName[T]()},
		feeds:  make(map[string]*Collection[T]),
	}
}

// subtypeName returns T's tag, or its Go type name for record types outside
// the closed set (such as U64).
func subtypeName[T Record]() string {
	if st, ok := SubtypeOf[T](); ok {
		return string(st)
	}
	return reflect.TypeFor[T]().Name()
}

func (ft *FeedTree[T]) Name() string {
	return ft.fields[nameField]
}

func (ft *FeedTree[T]) AddField(key, value string) error {
	return ft.fields.add(ft.Name(), key, value, feedsKey, legacyFeedsKey)
}

func (ft *FeedTree[T]) Field(key string) (string, bool) {
	v, ok := ft.fields[key]
	return v, ok
}

func (ft *FeedTree[T]) FieldKeys() []string {
	return ft.fields.keys()
}

// AddFeed stores c under key. The feed tree takes ownership of c: later
// writes to the feed append to it.
func (ft *FeedTree[T]) AddFeed(key string, c *Collection[T]) error {
	if _, found := ft.feeds[key]; found {
		return keyErrf(ft.Name(), "feed", key, "already exists")
	}
	if c == nil {
		c = &Collection[T]{}
	}
	ft.feeds[key] = c
	return nil
}

// Write appends v to the feed stored under key.
func (ft *FeedTree[T]) Write(key string, v T) error {
	c := ft.feeds[key]
	if c == nil {
		return keyErrf(ft.Name(), "feed", key, "not found")
	}
	c.Push(v)
	return nil
}

// Feed returns the feed stored under key, or nil.
func (ft *FeedTree[T]) Feed(key string) *Collection[T] {
	return ft.feeds[key]
}

func (ft *FeedTree[T]) FeedKeys() []string {
	return slices.Sorted(maps.Keys(ft.feeds))
}

func (ft *FeedTree[T]) AppendJSON(buf []byte) []byte {
	return feedTreeLayout.appendJSON(buf, ft.fields, ft.FeedKeys(), func(buf []byte, name string) []byte {
		return ft.feeds[name].AppendJSON(buf)
	})
}

func (ft *FeedTree[T]) AppendJSONCompact(buf []byte) []byte {
	return feedTreeLayout.appendJSON(buf, ft.fields, ft.FeedKeys(), func(buf []byte, name string) []byte {
		return ft.feeds[name].AppendJSONCompact(buf)
	})
}

func (ft *FeedTree[T]) EncodeMsgpack(enc *msgpack.Encoder) error {
	return feedTreeLayout.encodeMsgpack(enc, ft.fields, ft.FeedKeys(), func(name string) error {
		return ft.feeds[name].EncodeMsgpack(enc)
	})
}

// DecodeFeedTreeBinary decodes a whole binary feed tree of T records.
func DecodeFeedTreeBinary[T Record, PT Decodable[T]](data []byte) (*FeedTree[T], error) {
	d := newBinaryDecoder(data)
	defer d.release()
	ft, err := decodeFeedTreeMsgpack[T, PT](d.Decoder)
	if err != nil {
		return nil, d.wrap(err, "failed to decode feed tree of %v", reflect.TypeFor[T]())
	}
	if n := len(d.rest()); n != 0 {
		return nil, dataErrf(data, d.off(), nil, nil, "%d trailing bytes after feed tree", n)
	}
	return ft, nil
}

func DecodeFeedTreeText[T Record, PT Decodable[T]](s string) (*FeedTree[T], error) {
	tv, err := ParseText(s)
	if err != nil {
		return nil, err
	}
	ft, err := decodeFeedTreeJSON[T, PT](tv)
	if err != nil {
		return nil, wrapTextErr(tv, err, "failed to decode feed tree of %v", reflect.TypeFor[T]())
	}
	return ft, nil
}

func decodeFeedTreeMsgpack[T Record, PT Decodable[T]](dec *msgpack.Decoder) (*FeedTree[T], error) {
	feeds := make(map[string]*Collection[T])
	md, err := feedTreeLayout.decodeMsgpack(dec, checkFeedSubtype[T], func(name string) error {
		c, err := decodeCollectionMsgpack[T, PT](dec)
		if err != nil {
			return err
		}
		feeds[name] = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newDecodedFeedTree(md, feeds)
}

func decodeFeedTreeJSON[T Record, PT Decodable[T]](tv *TextValue) (*FeedTree[T], error) {
	feeds := make(map[string]*Collection[T])
	md, err := feedTreeLayout.decodeJSON(tv, checkFeedSubtype[T], func(name string, v *TextValue) error {
		c, err := decodeCollectionJSON[T, PT](v)
		if err != nil {
			return err
		}
		feeds[name] = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newDecodedFeedTree(md, feeds)
}

func newDecodedFeedTree[T Record](md metadata, feeds map[string]*Collection[T]) (*FeedTree[T], error) {
	if err := requireName(md); err != nil {
		return nil, err
	}
	if err := checkFeedSubtype[T](md); err != nil {
		return nil, err
	}
	return &FeedTree[T]{fields: md, feeds: feeds}, nil
}

// checkFeedSubtype rejects a stored SubType naming another record type. Only
// known tags can be checked; other names are informational.
func checkFeedSubtype[T Record](md metadata) error {
	if stored, ok := md[subtypeField]; ok && Subtype(stored).Valid() {
		if want, known := SubtypeOf[T](); known && Subtype(stored) != want {
			return fmt.Errorf("%w: feed tree holds %s records, not %s", ErrSubtypeMismatch, stored, want)
		}
	}
	return nil
}
