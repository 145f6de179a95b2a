package calcify

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// EncodeBinary returns the msgpack encoding of r.
func EncodeBinary(r Record) ([]byte, error) {
	return appendBinary(nil, r)
}

func appendBinary(buf []byte, r Record) ([]byte, error) {
	bb := bytesBuilder{buf}
	enc := msgpack.GetEncoder()
	enc.Reset(&bb)
	err := r.EncodeMsgpack(enc)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", r, err)
	}
	return bb.Buf, nil
}

// DecodeBinary decodes a single T from the start of data and returns the
// bytes that follow it, so that several values can be read off one stream.
func DecodeBinary[T any, PT Decodable[T]](data []byte) (T, []byte, error) {
	var v T
	d := newBinaryDecoder(data)
	defer d.release()
	if err := PT(&v).DecodeMsgpack(d.Decoder); err != nil {
		return v, nil, d.wrap(err, "failed to decode %T", v)
	}
	return v, d.rest(), nil
}

// decodeBinaryWhole is DecodeBinary that rejects trailing bytes.
func decodeBinaryWhole[T any, PT Decodable[T]](data []byte) (T, error) {
	v, rest, err := DecodeBinary[T, PT](data)
	if err != nil {
		return v, err
	}
	if len(rest) != 0 {
		return v, dataErrf(data, len(data)-len(rest), nil, nil, "%d trailing bytes after %T", len(rest), v)
	}
	return v, nil
}

type binaryDecoder struct {
	*msgpack.Decoder
	r    bytes.Reader
	orig []byte
}

func newBinaryDecoder(data []byte) *binaryDecoder {
	d := &binaryDecoder{orig: data}
	d.r.Reset(data)
	d.Decoder = msgpack.GetDecoder()
	d.Decoder.Reset(&d.r)
	return d
}

func (d *binaryDecoder) release() {
	msgpack.PutDecoder(d.Decoder)
	d.Decoder = nil
}

func (d *binaryDecoder) off() int {
	return len(d.orig) - d.r.Len()
}

func (d *binaryDecoder) rest() []byte {
	return d.orig[d.off():]
}

func (d *binaryDecoder) wrap(err error, format string, args ...any) error {
	var de *DataError
	if errors.As(err, &de) {
		return err
	}
	kind := ErrParse
	if errors.Is(err, ErrObjectBranch) {
		kind = ErrObjectBranch
	}
	return dataErrf(d.orig, d.off(), kind, err, format, args...)
}

func decodeArrayLen(dec *msgpack.Decoder, want int) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != want {
		return fmt.Errorf("%w: array of %d elements, wanted %d", ErrLength, n, want)
	}
	return nil
}

func decodeMapLen(dec *msgpack.Decoder, want int) error {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}
	if n != want {
		return fmt.Errorf("%w: map of %d entries, wanted %d", ErrLength, n, want)
	}
	return nil
}

func encodeFloats(enc *msgpack.Encoder, vals ...float64) error {
	if err := enc.EncodeArrayLen(len(vals)); err != nil {
		return err
	}
	for _, v := range vals {
		if err := enc.EncodeFloat64(v); err != nil {
			return err
		}
	}
	return nil
}

func decodeFloats(dec *msgpack.Decoder, out ...*float64) error {
	if err := decodeArrayLen(dec, len(out)); err != nil {
		return err
	}
	for _, p := range out {
		v, err := dec.DecodeFloat64()
		if err != nil {
			return err
		}
		*p = v
	}
	return nil
}
