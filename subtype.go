package calcify

import (
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// Subtype tags the record type of a branch.
type Subtype string

const (
	SubtypeF64      Subtype = "f64"
	SubtypeString   Subtype = "String"
	SubtypeThreeVec Subtype = "ThreeVec"
	SubtypeThreeMat Subtype = "ThreeMat"
	SubtypeFourVec  Subtype = "FourVec"
	SubtypeFourMat  Subtype = "FourMat"
	SubtypeBin      Subtype = "Bin"
	SubtypePoint    Subtype = "Point"
	SubtypePointBin Subtype = "PointBin"

	// SubtypeObject archives collections of any record type. Object branches
	// are encoded like any other, but cannot be decoded.
	SubtypeObject Subtype = "Object"
)

// Records is the type-erased form of a *Collection[T]. Only collections
// implement it.
type Records interface {
	Record
	Len() int
	elemType() reflect.Type
	cloneRecords() Records
}

type subtypeCodec struct {
	subtype      Subtype
	elemType     reflect.Type // nil for Object
	decodeBinary func(dec *msgpack.Decoder) (Records, error)
	decodeText   func(tv *TextValue) (Records, error)

	// decodeFeedTree decodes a whole binary feed tree of this record type.
	decodeFeedTree func(data []byte) (Record, error)
}

func codecFor[T Record, PT Decodable[T]](st Subtype) *subtypeCodec {
	return &subtypeCodec{
		subtype:  st,
		elemType: reflect.TypeFor[T](),
		decodeBinary: func(dec *msgpack.Decoder) (Records, error) {
			return decodeCollectionMsgpack[T, PT](dec)
		},
		decodeText: func(tv *TextValue) (Records, error) {
			return decodeCollectionJSON[T, PT](tv)
		},
		decodeFeedTree: func(data []byte) (Record, error) {
			return DecodeFeedTreeBinary[T, PT](data)
		},
	}
}

// subtypeTable is the single source of truth for the closed set of subtype
// tags. Both Tree.AddBranch validation and branch decoding consult it.
type subtypeTable struct {
	ordered []*subtypeCodec
	byTag   map[Subtype]*subtypeCodec
	byElem  map[reflect.Type]*subtypeCodec
}

func newSubtypeTable(codecs ...*subtypeCodec) *subtypeTable {
	t := &subtypeTable{
		ordered: codecs,
		byTag:   make(map[Subtype]*subtypeCodec, len(codecs)),
		byElem:  make(map[reflect.Type]*subtypeCodec, len(codecs)),
	}
	for _, c := range codecs {
		if t.byTag[c.subtype] != nil {
			panic(fmt.Errorf("duplicate subtype %q", c.subtype))
		}
		t.byTag[c.subtype] = c
		if c.elemType != nil {
			t.byElem[c.elemType] = c
		}
	}
	return t
}

// subtypes is filled in init: the feed tree decoders reach back into it
// through Subtype.Valid.
var subtypes *subtypeTable

func init() {
	subtypes = newSubtypeTable(
		codecFor[F64](SubtypeF64),
		codecFor[Str](SubtypeString),
		codecFor[ThreeVec](SubtypeThreeVec),
		codecFor[ThreeMat](SubtypeThreeMat),
		codecFor[FourVec](SubtypeFourVec),
		codecFor[FourMat](SubtypeFourMat),
		codecFor[Bin](SubtypeBin),
		codecFor[Point](SubtypePoint),
		codecFor[PointBin](SubtypePointBin),
		&subtypeCodec{subtype: SubtypeObject},
	)
}

// Valid reports whether st belongs to the closed set of subtype tags.
func (st Subtype) Valid() bool {
	return subtypes.byTag[st] != nil
}

// Decodable reports whether branches tagged st can be decoded.
func (st Subtype) Decodable() bool {
	c := subtypes.byTag[st]
	return c != nil && c.decodeBinary != nil
}

// Subtypes returns all valid tags, Object last.
func Subtypes() []Subtype {
	out := make([]Subtype, len(subtypes.ordered))
	for i, c := range subtypes.ordered {
		out[i] = c.subtype
	}
	return out
}

// SubtypeOf returns the tag naming record type T, or false if T is not one
// of the decodable record types.
func SubtypeOf[T Record]() (Subtype, bool) {
	c := subtypes.byElem[reflect.TypeFor[T]()]
	if c == nil {
		return "", false
	}
	return c.subtype, true
}

func lookupDecodableSubtype(st Subtype) (*subtypeCodec, error) {
	c := subtypes.byTag[st]
	if c == nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownSubtype, st)
	}
	if c.decodeBinary == nil {
		return nil, ErrObjectBranch
	}
	return c, nil
}
