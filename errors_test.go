package calcify

import (
	"errors"
	"strings"
	"testing"
)

func TestDataError(t *testing.T) {
	t.Run("small data", func(t *testing.T) {
		inner := errors.New("inner")
		err := dataErrf([]byte{0xAA, 0xBB}, 1, nil, inner, "oops")
		var de *DataError
		if !errors.As(err, &de) {
			t.Fatalf("err = %T, wanted *DataError", err)
		}
		if !errors.Is(err, inner) || !errors.Is(err, ErrParse) {
			t.Fatalf("err = %v, wanted to wrap inner and ErrParse", err)
		}
		s := err.Error()
		if !strings.Contains(s, "oops") || !strings.Contains(s, "inner") || !strings.Contains(s, "(2) aabb") {
			t.Fatalf("err.Error() = %q, wanted message with oops/inner/(2) aabb", s)
		}
	})

	t.Run("large data includes prefix and suffix", func(t *testing.T) {
		data := make([]byte, 200)
		err := dataErrf(data, 0, nil, nil, "oops")
		s := err.Error()
		if !strings.Contains(s, "(200)") || !strings.Contains(s, "...") {
			t.Fatalf("err.Error() = %q, wanted message with (200) and ...", s)
		}
	})

	t.Run("text", func(t *testing.T) {
		err := textErrf(7, ErrLength, nil, "bad")
		if a, e := err.Error(), "parse error: wrong element count: bad (at offset 7)"; a != e {
			t.Fatalf("err.Error() = %q, wanted %q", a, e)
		}
		isErr(t, err, ErrParse)
	})
}

func TestKeyError(t *testing.T) {
	err := keyErrf("demo", "branch", "pts", "already exists")
	if a, e := err.Error(), `demo: branch "pts": already exists`; a != e {
		t.Fatalf("err.Error() = %q, wanted %q", a, e)
	}
	isErr(t, err, ErrKey)
	if errors.Is(err, ErrParse) {
		t.Fatalf("KeyError must not be a parse error")
	}
}

func TestSentinels(t *testing.T) {
	for _, err := range []error{ErrLength, ErrUnknownSubtype, ErrSubtypeMismatch} {
		isErr(t, err, ErrParse)
	}
	if errors.Is(ErrObjectBranch, ErrParse) {
		t.Fatalf("ErrObjectBranch must be distinct from ErrParse")
	}
}
