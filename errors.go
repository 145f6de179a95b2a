package calcify

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrParse is the kind of every failure caused by malformed or
	// structurally inconsistent encoded data.
	ErrParse = errors.New("parse error")

	// ErrLength is returned when a fixed-arity value has the wrong number of elements.
	ErrLength = fmt.Errorf("%w: wrong element count", ErrParse)

	ErrUnknownSubtype  = fmt.Errorf("%w: unknown branch subtype", ErrParse)
	ErrSubtypeMismatch = fmt.Errorf("%w: record type does not match branch subtype", ErrParse)

	// ErrObjectBranch is returned when decoding a branch tagged Object. Object
	// branches can be written but never read back.
	ErrObjectBranch = errors.New("cannot decode Object branch")

	ErrKey      = errors.New("invalid key")
	ErrNotFound = errors.New("not found")
)

// DataError describes a decoding failure at a specific offset of the input.
// Kind is one of the package sentinels (ErrParse, ErrLength, ...); Err is the
// underlying cause, if any.
type DataError struct {
	Data []byte
	Off  int
	Kind error
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, kind, err error, format string, args ...any) error {
	if kind == nil {
		kind = ErrParse
	}
	return &DataError{data, off, kind, err, fmt.Sprintf(format, args...)}
}

// textErrf reports a failure in text input; Data is left empty and Off is a
// byte offset into the source text.
func textErrf(off int, kind, err error, format string, args ...any) error {
	return dataErrf(nil, off, kind, err, format, args...)
}

func (e *DataError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32

	var buf strings.Builder
	buf.WriteString(e.Kind.Error())
	buf.WriteString(": ")
	buf.WriteString(e.Msg)
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}

	n := len(e.Data)
	switch {
	case n == 0:
		fmt.Fprintf(&buf, " (at offset %d)", e.Off)
	case n <= prefixLen+suffixLen:
		fmt.Fprintf(&buf, " (at offset %d): (%d) %x", e.Off, n, e.Data)
	default:
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		fmt.Fprintf(&buf, " (at offset %d): (%d) %x...%x", e.Off, n, p, s)
	}
	return buf.String()
}

// KeyError is returned by insert-once operations when the key is already
// taken, and by operations that need an existing key when it is absent.
type KeyError struct {
	Container string
	Kind      string
	Key       string
	Msg       string
}

func keyErrf(container, kind, key string, format string, args ...any) error {
	return &KeyError{container, kind, key, fmt.Sprintf(format, args...)}
}

func (e *KeyError) Unwrap() error {
	return ErrKey
}

func (e *KeyError) Error() string {
	var buf strings.Builder
	if e.Container != "" {
		buf.WriteString(e.Container)
		buf.WriteString(": ")
	}
	buf.WriteString(e.Kind)
	buf.WriteString(" ")
	fmt.Fprintf(&buf, "%q", e.Key)
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	return buf.String()
}
