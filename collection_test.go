package calcify

import (
	"slices"
	"testing"
)

func TestCollection_lengths(t *testing.T) {
	for _, n := range []int{0, 1, 5} {
		c := &Collection[ThreeVec]{}
		for i := range n {
			c.Push(NewThreeVec(float64(i), 0, -float64(i)))
		}

		for _, s := range []string{EncodeText(c), EncodeTextCompact(c)} {
			a := must(DecodeCollectionText[ThreeVec](s))
			if !slices.Equal(a.Vec, c.Vec) {
				t.Errorf("n=%d: DecodeCollectionText(%s) = %v, wanted %v", n, s, a.Vec, c.Vec)
			}
		}

		data := must(EncodeBinary(c))
		a, rest, err := DecodeCollectionBinary[ThreeVec](data)
		if err != nil {
			t.Fatalf("n=%d: DecodeCollectionBinary failed: %v", n, err)
		}
		if !slices.Equal(a.Vec, c.Vec) || len(rest) != 0 {
			t.Errorf("n=%d: DecodeCollectionBinary = %v rest %x, wanted %v", n, a.Vec, rest, c.Vec)
		}
	}
}

func TestCollection_text(t *testing.T) {
	c := NewCollection[F64](1, 2.5)
	if a, e := EncodeText(c), `[1,2.5]`; a != e {
		t.Errorf("EncodeText = %s, wanted %s", a, e)
	}
	if a, e := EncodeText(&Collection[Point]{}), `[]`; a != e {
		t.Errorf("EncodeText(empty) = %s, wanted %s", a, e)
	}
}

func TestCollection_ops(t *testing.T) {
	c := NewCollection[F64](1, 2, 3, 4)

	even := c.Cut(func(v F64) bool { return int(v)%2 == 0 })
	deepEq(t, even.Vec, []F64{2, 4})
	if c.Len() != 4 {
		t.Errorf("Cut modified the source: %v", c.Vec)
	}

	*c.At(0) = 10
	if c.Vec[0] != 10 {
		t.Errorf("At(0) is not a reference into the collection")
	}

	sq := Map(c, func(v F64) Point { return NewPoint(float64(v), float64(v*v)) })
	deepEq(t, sq.Vec[1], Point{2, 4})

	cl := c.Clone()
	cl.Push(5)
	if c.Len() != 4 || cl.Len() != 5 {
		t.Errorf("Clone shares storage: %v / %v", c.Vec, cl.Vec)
	}

	c.Extend(even)
	c.Extend(nil)
	deepEq(t, c.Vec, []F64{10, 2, 3, 4, 2, 4})

	var nilc *Collection[F64]
	if nilc.Len() != 0 {
		t.Errorf("nil Len() = %d, wanted 0", nilc.Len())
	}
}

func TestCollection_elementErrors(t *testing.T) {
	_, err := DecodeCollectionText[Point](`[[1,2],[3]]`)
	isErr(t, err, ErrLength)

	_, _, err = DecodeCollectionBinary[Point]([]byte{0xc0})
	isErr(t, err, ErrParse)

	// a huge declared length must not preallocate
	_, _, err = DecodeCollectionBinary[F64]([]byte{0xdd, 0x7f, 0xff, 0xff, 0xff})
	isErr(t, err, ErrParse)
}
