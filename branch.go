package calcify

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	branchSubtypeKey = "subtype"
	branchDataKey    = "branch"
)

// Branch is a type-erased collection stored in a Tree under a subtype tag.
//
// A Branch is immutable once created, except for the binary encoding cached
// by the first Extract.
type Branch struct {
	subtype Subtype
	records Records
	cache   []byte
}

func (b *Branch) Subtype() Subtype {
	return b.subtype
}

func (b *Branch) Len() int {
	return b.records.Len()
}

// Records returns a copy of the erased collection. Changes to the copy do not
// reach the branch.
func (b *Branch) Records() Records {
	return b.records.cloneRecords()
}

// Extract returns a copy of the branch's collection as a *Collection[T].
//
// The collection is encoded once and cached; every call decodes a fresh copy
// from the cache. T must be the record type named by the branch's tag,
// otherwise Extract fails with ErrSubtypeMismatch. Object branches fail with
// ErrObjectBranch.
func Extract[T Record, PT Decodable[T]](b *Branch) (*Collection[T], error) {
	if b.subtype == SubtypeObject {
		return nil, fmt.Errorf("extract %v: %w", reflect.TypeFor[T](), ErrObjectBranch)
	}
	if et := reflect.TypeFor[T](); b.records.elemType() != et {
		return nil, fmt.Errorf("%w: cannot extract %v from %s branch", ErrSubtypeMismatch, et, b.subtype)
	}
	if b.cache == nil {
		data, err := EncodeBinary(b.records)
		if err != nil {
			return nil, err
		}
		b.cache = data
	}
	d := newBinaryDecoder(b.cache)
	defer d.release()
	c, err := decodeCollectionMsgpack[T, PT](d.Decoder)
	if err != nil {
		return nil, d.wrap(err, "failed to extract %s branch", b.subtype)
	}
	if n := len(d.rest()); n != 0 {
		return nil, dataErrf(b.cache, d.off(), nil, nil, "%d trailing bytes after %s branch", n, b.subtype)
	}
	return c, nil
}

func (b *Branch) AppendJSON(buf []byte) []byte {
	buf = append(buf, `{"subtype":`...)
	buf = appendJSONString(buf, string(b.subtype))
	buf = append(buf, `,"branch":`...)
	buf = b.records.AppendJSON(buf)
	return append(buf, '}')
}

func (b *Branch) AppendJSONCompact(buf []byte) []byte {
	buf = append(buf, `{"subtype":`...)
	buf = appendJSONString(buf, string(b.subtype))
	buf = append(buf, `,"branch":`...)
	buf = b.records.AppendJSONCompact(buf)
	return append(buf, '}')
}

func (b *Branch) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(2); err != nil {
		return err
	}
	if err := enc.EncodeString(branchSubtypeKey); err != nil {
		return err
	}
	if err := enc.EncodeString(string(b.subtype)); err != nil {
		return err
	}
	if err := enc.EncodeString(branchDataKey); err != nil {
		return err
	}
	return b.records.EncodeMsgpack(enc)
}

// decodeBranchMsgpack reads a {subtype, branch} map. Older files wrote the
// branch entry first, in which case its bytes are held raw until the tag is
// known.
func decodeBranchMsgpack(dec *msgpack.Decoder) (*Branch, error) {
	if err := decodeMapLen(dec, 2); err != nil {
		return nil, err
	}
	var (
		b       Branch
		haveTag bool
		raw     []byte
	)
	for range 2 {
		key, err := dec.DecodeString()
		if err != nil {
			return nil, err
		}
		switch key {
		case branchSubtypeKey:
			if haveTag {
				return nil, fmt.Errorf("%w: duplicate %q entry", ErrParse, key)
			}
			tag, err := dec.DecodeString()
			if err != nil {
				return nil, err
			}
			b.subtype, haveTag = Subtype(tag), true
		case branchDataKey:
			if b.records != nil || raw != nil {
				return nil, fmt.Errorf("%w: duplicate %q entry", ErrParse, key)
			}
			if !haveTag {
				r, err := dec.DecodeRaw()
				if err != nil {
					return nil, err
				}
				raw = bytes.Clone(r)
				continue
			}
			codec, err := lookupDecodableSubtype(b.subtype)
			if err != nil {
				return nil, err
			}
			b.records, err = codec.decodeBinary(dec)
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: unexpected branch entry %q", ErrParse, key)
		}
	}
	if raw != nil {
		codec, err := lookupDecodableSubtype(b.subtype)
		if err != nil {
			return nil, err
		}
		d := newBinaryDecoder(raw)
		defer d.release()
		b.records, err = codec.decodeBinary(d.Decoder)
		if err != nil {
			return nil, d.wrap(err, "failed to decode %s branch", b.subtype)
		}
	}
	return &b, nil
}

func decodeBranchJSON(tv *TextValue) (*Branch, error) {
	parts, err := tv.Fields(branchSubtypeKey, branchDataKey)
	if err != nil {
		return nil, err
	}
	tag, err := parts[0].Str()
	if err != nil {
		return nil, err
	}
	codec, err := lookupDecodableSubtype(Subtype(tag))
	if err != nil {
		return nil, err
	}
	records, err := codec.decodeText(parts[1])
	if err != nil {
		return nil, err
	}
	return &Branch{subtype: Subtype(tag), records: records}, nil
}
