package calcify

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
)

// Collection is an ordered sequence of records of one type. The zero value
// is an empty collection ready to use.
//
// Vec is exposed for iteration and bulk manipulation.
type Collection[T Record] struct {
	Vec []T
}

// NewCollection wraps vals without copying them.
func NewCollection[T Record](vals ...T) *Collection[T] {
	return &Collection[T]{Vec: vals}
}

func (c *Collection[T]) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Vec)
}

func (c *Collection[T]) Push(v T) {
	c.Vec = append(c.Vec, v)
}

// At returns a pointer to the i-th record for in-place mutation.
func (c *Collection[T]) At(i int) *T {
	return &c.Vec[i]
}

func (c *Collection[T]) Extend(o *Collection[T]) {
	if o == nil {
		return
	}
	c.Vec = append(c.Vec, o.Vec...)
}

// Cut returns a new collection with the records for which keep returns true.
// Note that Cut keeps the records that pass, it does not cut them out.
func (c *Collection[T]) Cut(keep func(T) bool) *Collection[T] {
	out := &Collection[T]{}
	for _, v := range c.Vec {
		if keep(v) {
			out.Vec = append(out.Vec, v)
		}
	}
	return out
}

func (c *Collection[T]) Clone() *Collection[T] {
	return &Collection[T]{Vec: slices.Clone(c.Vec)}
}

// Map returns a collection of f applied to every record of c, in order.
func Map[T, Z Record](c *Collection[T], f func(T) Z) *Collection[Z] {
	out := &Collection[Z]{Vec: make([]Z, 0, c.Len())}
	for _, v := range c.Vec {
		out.Vec = append(out.Vec, f(v))
	}
	return out
}

func (c *Collection[T]) AppendJSON(buf []byte) []byte {
	buf = append(buf, '[')
	for i, v := range c.Vec {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = v.AppendJSON(buf)
	}
	return append(buf, ']')
}

func (c *Collection[T]) AppendJSONCompact(buf []byte) []byte {
	buf = append(buf, '[')
	for i, v := range c.Vec {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = v.AppendJSONCompact(buf)
	}
	return append(buf, ']')
}

func (c *Collection[T]) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(c.Len()); err != nil {
		return err
	}
	for _, v := range c.Vec {
		if err := v.EncodeMsgpack(enc); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collection[T]) elemType() reflect.Type {
	return reflect.TypeFor[T]()
}

func (c *Collection[T]) cloneRecords() Records {
	return c.Clone()
}

const maxPrealloc = 4096

// DecodeCollectionBinary decodes a collection from the start of data and
// returns the bytes that follow it.
func DecodeCollectionBinary[T Record, PT Decodable[T]](data []byte) (*Collection[T], []byte, error) {
	d := newBinaryDecoder(data)
	defer d.release()
	c, err := decodeCollectionMsgpack[T, PT](d.Decoder)
	if err != nil {
		return nil, nil, d.wrap(err, "failed to decode collection of %v", reflect.TypeFor[T]())
	}
	return c, d.rest(), nil
}

func DecodeCollectionText[T Record, PT Decodable[T]](s string) (*Collection[T], error) {
	tv, err := ParseText(s)
	if err != nil {
		return nil, err
	}
	c, err := decodeCollectionJSON[T, PT](tv)
	if err != nil {
		return nil, wrapTextErr(tv, err, "failed to decode collection of %v", reflect.TypeFor[T]())
	}
	return c, nil
}

func decodeCollectionMsgpack[T Record, PT Decodable[T]](dec *msgpack.Decoder) (*Collection[T], error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: nil instead of collection", ErrParse)
	}
	// n comes from the input, so don't trust it for preallocation
	c := &Collection[T]{Vec: make([]T, 0, min(n, maxPrealloc))}
	for i := 0; i < n; i++ {
		var v T
		if err := PT(&v).DecodeMsgpack(dec); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		c.Vec = append(c.Vec, v)
	}
	return c, nil
}

func decodeCollectionJSON[T Record, PT Decodable[T]](tv *TextValue) (*Collection[T], error) {
	items, err := tv.Items(-1)
	if err != nil {
		return nil, err
	}
	c := &Collection[T]{Vec: make([]T, len(items))}
	for i, item := range items {
		if err := PT(&c.Vec[i]).DecodeJSON(item); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return c, nil
}
