package calcify

import (
	"fmt"
	"maps"
	"reflect"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
)

var treeLayout = containerLayout{innerKey: branchesKey}

// Tree is a named container of metadata fields and independently typed
// branches. It is the top-level unit written to and read from a file.
//
// Fields and branches are insert-once: adding under a key that is already
// taken fails with a *KeyError and leaves the tree unchanged.
//
// A Tree has a single owner and is not safe for concurrent use; callers that
// build one from several goroutines must funnel the updates through one of
// them.
type Tree struct {
	fields   metadata
	branches map[string]*Branch
}

func NewTree(name string) *Tree {
	return &Tree{
		fields:   metadata{nameField: name},
		branches: make(map[string]*Branch),
	}
}

func (t *Tree) Name() string {
	return t.fields[nameField]
}

func (t *Tree) AddField(key, value string) error {
	return t.fields.add(t.Name(), key, value, branchesKey)
}

func (t *Tree) Field(key string) (string, bool) {
	v, ok := t.fields[key]
	return v, ok
}

// FieldKeys returns the metadata keys in sorted order, Name included.
func (t *Tree) FieldKeys() []string {
	return t.fields.keys()
}

// AddBranch stores a copy of records under key, tagged with subtype.
//
// Passing a tag outside the closed set, or a collection whose element type
// does not match the tag, is a programming error and panics. Object accepts
// a collection of any record type.
func (t *Tree) AddBranch(key string, records Records, subtype Subtype) error {
	if !subtype.Valid() {
		panic(fmt.Errorf("calcify: unknown subtype %q for branch %q", subtype, key))
	}
	if records == nil || reflect.ValueOf(records).IsNil() {
		panic(fmt.Errorf("calcify: nil records for branch %q", key))
	}
	if c := subtypes.byTag[subtype]; c.elemType != nil && c.elemType != records.elemType() {
		panic(fmt.Errorf("calcify: branch %q tagged %s holds %v records", key, subtype, records.elemType()))
	}
	if _, found := t.branches[key]; found {
		return keyErrf(t.Name(), "branch", key, "already exists")
	}
	t.branches[key] = &Branch{subtype: subtype, records: records.cloneRecords()}
	return nil
}

// GetBranch returns the branch stored under key, or nil.
func (t *Tree) GetBranch(key string) *Branch {
	return t.branches[key]
}

func (t *Tree) BranchKeys() []string {
	return slices.Sorted(maps.Keys(t.branches))
}

// ReadBranch extracts the branch stored under key as a *Collection[T].
func ReadBranch[T Record, PT Decodable[T]](t *Tree, key string) (*Collection[T], error) {
	b := t.GetBranch(key)
	if b == nil {
		return nil, keyErrf(t.Name(), "branch", key, "not found")
	}
	return Extract[T, PT](b)
}

func (t *Tree) AppendJSON(buf []byte) []byte {
	return treeLayout.appendJSON(buf, t.fields, t.BranchKeys(), func(buf []byte, name string) []byte {
		return t.branches[name].AppendJSON(buf)
	})
}

func (t *Tree) AppendJSONCompact(buf []byte) []byte {
	return treeLayout.appendJSON(buf, t.fields, t.BranchKeys(), func(buf []byte, name string) []byte {
		return t.branches[name].AppendJSONCompact(buf)
	})
}

func (t *Tree) EncodeMsgpack(enc *msgpack.Encoder) error {
	return treeLayout.encodeMsgpack(enc, t.fields, t.BranchKeys(), func(name string) error {
		return t.branches[name].EncodeMsgpack(enc)
	})
}

func (t *Tree) DecodeMsgpack(dec *msgpack.Decoder) error {
	branches := make(map[string]*Branch)
	md, err := treeLayout.decodeMsgpack(dec, nil, func(name string) error {
		b, err := decodeBranchMsgpack(dec)
		if err != nil {
			return err
		}
		branches[name] = b
		return nil
	})
	if err != nil {
		return err
	}
	if err := requireName(md); err != nil {
		return err
	}
	*t = Tree{fields: md, branches: branches}
	return nil
}

func (t *Tree) DecodeJSON(tv *TextValue) error {
	branches := make(map[string]*Branch)
	md, err := treeLayout.decodeJSON(tv, nil, func(name string, v *TextValue) error {
		b, err := decodeBranchJSON(v)
		if err != nil {
			return err
		}
		branches[name] = b
		return nil
	})
	if err != nil {
		return err
	}
	if err := requireName(md); err != nil {
		return err
	}
	*t = Tree{fields: md, branches: branches}
	return nil
}

// DecodeTreeBinary decodes a whole binary container. A failure in any branch
// fails the whole decode.
func DecodeTreeBinary(data []byte) (*Tree, error) {
	t, err := decodeBinaryWhole[Tree](data)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func DecodeTreeText(s string) (*Tree, error) {
	t, err := DecodeText[Tree](s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
