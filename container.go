package calcify

import (
	"fmt"
	"maps"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	nameField    = "Name"
	subtypeField = "SubType"

	branchesKey    = "branches"
	feedsKey       = "feeds"
	legacyFeedsKey = "datafeeds"
)

// metadata is the string-to-string field map shared by Tree and FeedTree.
type metadata map[string]string

func (md metadata) add(container, key, value string, reserved ...string) error {
	if slices.Contains(reserved, key) {
		return keyErrf(container, "field", key, "reserved key")
	}
	if _, found := md[key]; found {
		return keyErrf(container, "field", key, "already exists")
	}
	md[key] = value
	return nil
}

func (md metadata) keys() []string {
	return slices.Sorted(maps.Keys(md))
}

// containerLayout describes how a container's named entries sit under its
// inner key. All containers share one layout: a map of metadata fields plus
// one inner map of named entries.
type containerLayout struct {
	innerKey string
	// aliases are accepted in place of innerKey when decoding.
	aliases []string
}

func (l containerLayout) isInner(key string) bool {
	return key == l.innerKey || slices.Contains(l.aliases, key)
}

func (l containerLayout) appendJSON(buf []byte, md metadata, names []string, appendEntry func(buf []byte, name string) []byte) []byte {
	buf = append(buf, '{')
	for _, k := range md.keys() {
		buf = appendJSONKey(buf, k)
		buf = appendJSONString(buf, md[k])
		buf = append(buf, ',')
	}
	buf = appendJSONKey(buf, l.innerKey)
	buf = append(buf, '{')
	for i, name := range names {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = appendJSONKey(buf, name)
		buf = appendEntry(buf, name)
	}
	return append(buf, '}', '}')
}

func (l containerLayout) encodeMsgpack(enc *msgpack.Encoder, md metadata, names []string, encodeEntry func(name string) error) error {
	if err := enc.EncodeMapLen(len(md) + 1); err != nil {
		return err
	}
	for _, k := range md.keys() {
		if err := enc.EncodeString(k); err != nil {
			return err
		}
		if err := enc.EncodeString(md[k]); err != nil {
			return err
		}
	}
	if err := enc.EncodeString(l.innerKey); err != nil {
		return err
	}
	if err := enc.EncodeMapLen(len(names)); err != nil {
		return err
	}
	for _, name := range names {
		if err := enc.EncodeString(name); err != nil {
			return err
		}
		if err := encodeEntry(name); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// decodeMsgpack reads the outer map. Metadata entries and the inner map may
// come in any order; each inner entry is handed to decodeEntry, which must
// consume exactly one value. If set, checkMeta sees the metadata read before
// the inner map, which is all of it for canonically encoded input.
func (l containerLayout) decodeMsgpack(dec *msgpack.Decoder, checkMeta func(md metadata) error, decodeEntry func(name string) error) (metadata, error) {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: container map has %d entries", ErrParse, n)
	}
	md := make(metadata, min(n-1, maxPrealloc))
	seenInner := false
	for range n {
		key, err := dec.DecodeString()
		if err != nil {
			return nil, err
		}
		if l.isInner(key) {
			if seenInner {
				return nil, fmt.Errorf("%w: duplicate %q map", ErrParse, key)
			}
			seenInner = true
			if checkMeta != nil {
				if err := checkMeta(md); err != nil {
					return nil, err
				}
			}
			if err := l.decodeEntriesMsgpack(dec, decodeEntry); err != nil {
				return nil, err
			}
			continue
		}
		value, err := dec.DecodeString()
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		if _, found := md[key]; found {
			return nil, fmt.Errorf("%w: duplicate field %q", ErrParse, key)
		}
		md[key] = value
	}
	if !seenInner {
		return nil, fmt.Errorf("%w: missing %q map", ErrParse, l.innerKey)
	}
	return md, nil
}

func (l containerLayout) decodeEntriesMsgpack(dec *msgpack.Decoder, decodeEntry func(name string) error) error {
	m, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}
	if m < 0 {
		return fmt.Errorf("%w: nil instead of %q map", ErrParse, l.innerKey)
	}
	seen := make(map[string]struct{}, min(m, maxPrealloc))
	for range m {
		name, err := dec.DecodeString()
		if err != nil {
			return err
		}
		if _, found := seen[name]; found {
			return fmt.Errorf("%w: duplicate entry %q", ErrParse, name)
		}
		seen[name] = struct{}{}
		if err := decodeEntry(name); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (l containerLayout) decodeJSON(tv *TextValue, checkMeta func(md metadata) error, decodeEntry func(name string, v *TextValue) error) (metadata, error) {
	if tv.Kind != TextObject {
		return nil, tv.kindErr(TextObject)
	}
	md := make(metadata, len(tv.Keys))
	var inner *TextValue
	for i, key := range tv.Keys {
		v := tv.Elems[i]
		if l.isInner(key) {
			if inner != nil {
				return nil, textErrf(v.Off, nil, nil, "duplicate %q map", key)
			}
			inner = v
			continue
		}
		s, err := v.Str()
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		md[key] = s
	}
	if inner == nil {
		return nil, textErrf(tv.Off, nil, nil, "missing %q map", l.innerKey)
	}
	if inner.Kind != TextObject {
		return nil, inner.kindErr(TextObject)
	}
	if checkMeta != nil {
		if err := checkMeta(md); err != nil {
			return nil, err
		}
	}
	for i, name := range inner.Keys {
		if err := decodeEntry(name, inner.Elems[i]); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return md, nil
}

func requireName(md metadata) error {
	if _, ok := md[nameField]; !ok {
		return fmt.Errorf("%w: missing %q field", ErrParse, nameField)
	}
	return nil
}
