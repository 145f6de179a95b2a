package calcify

import (
	"errors"

	"github.com/vmihailenco/msgpack/v5"
)

// Record is the capability every storable value implements.
//
// AppendJSON writes the verbose, self-labelled form (an object of fields for
// composite records). AppendJSONCompact writes the array-of-values form that
// mirrors the binary layout. EncodeMsgpack writes the binary form; composite
// records write their fields in a fixed order with no field names, so the
// matching DecodeMsgpack must read them back in exactly that order.
type Record interface {
	AppendJSON(buf []byte) []byte
	AppendJSONCompact(buf []byte) []byte
	EncodeMsgpack(enc *msgpack.Encoder) error
}

// Decodable is satisfied by *T when T can be reconstructed from both of its
// encodings. DecodeJSON accepts the verbose and the compact text forms.
type Decodable[T any] interface {
	*T
	Record
	DecodeMsgpack(dec *msgpack.Decoder) error
	DecodeJSON(v *TextValue) error
}

func EncodeText(r Record) string {
	return string(r.AppendJSON(nil))
}

func EncodeTextCompact(r Record) string {
	return string(r.AppendJSONCompact(nil))
}

// DecodeText parses s and decodes it as a T.
func DecodeText[T any, PT Decodable[T]](s string) (T, error) {
	var v T
	tv, err := ParseText(s)
	if err != nil {
		return v, err
	}
	if err := PT(&v).DecodeJSON(tv); err != nil {
		return v, wrapTextErr(tv, err, "failed to decode %T", v)
	}
	return v, nil
}

func wrapTextErr(tv *TextValue, err error, format string, args ...any) error {
	var de *DataError
	if errors.As(err, &de) {
		return err
	}
	kind := ErrParse
	if errors.Is(err, ErrObjectBranch) {
		kind = ErrObjectBranch
	}
	return textErrf(tv.Off, kind, err, format, args...)
}

// F64 is the f64 record.
type F64 float64

func (v F64) AppendJSON(buf []byte) []byte        { return appendJSONFloat(buf, float64(v)) }
func (v F64) AppendJSONCompact(buf []byte) []byte { return appendJSONFloat(buf, float64(v)) }

func (v F64) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeFloat64(float64(v))
}

func (v *F64) DecodeMsgpack(dec *msgpack.Decoder) error {
	f, err := dec.DecodeFloat64()
	*v = F64(f)
	return err
}

func (v *F64) DecodeJSON(tv *TextValue) error {
	f, err := tv.Float()
	*v = F64(f)
	return err
}

// U64 is the unsigned integer record.
type U64 uint64

func (v U64) AppendJSON(buf []byte) []byte        { return appendJSONUint(buf, uint64(v)) }
func (v U64) AppendJSONCompact(buf []byte) []byte { return appendJSONUint(buf, uint64(v)) }

func (v U64) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeUint(uint64(v))
}

func (v *U64) DecodeMsgpack(dec *msgpack.Decoder) error {
	u, err := dec.DecodeUint64()
	*v = U64(u)
	return err
}

func (v *U64) DecodeJSON(tv *TextValue) error {
	u, err := tv.Uint()
	*v = U64(u)
	return err
}

// Str is the String record. Unlike the other primitives, its text form is
// quoted.
type Str string

func (v Str) AppendJSON(buf []byte) []byte        { return appendJSONString(buf, string(v)) }
func (v Str) AppendJSONCompact(buf []byte) []byte { return appendJSONString(buf, string(v)) }

func (v Str) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(string(v))
}

func (v *Str) DecodeMsgpack(dec *msgpack.Decoder) error {
	s, err := dec.DecodeString()
	*v = Str(s)
	return err
}

func (v *Str) DecodeJSON(tv *TextValue) error {
	s, err := tv.Str()
	*v = Str(s)
	return err
}
