package calcify

import (
	"errors"
	"testing"
)

func TestFeedTree_appendThenFlush(t *testing.T) {
	ft := NewFeedTree[F64]("run")
	ensure(ft.AddFeed("energy", NewCollection[F64](1, 2)))
	ensure(ft.Write("energy", 3))
	ensure(ft.Write("energy", 4))
	deepEq(t, ft.Feed("energy").Vec, []F64{1, 2, 3, 4})

	e := `{"Name":"run","SubType":"f64","feeds":{"energy":[1,2,3,4]}}`
	if a := EncodeText(ft); a != e {
		t.Errorf("EncodeText = %s, wanted %s", a, e)
	}

	for _, d := range []*FeedTree[F64]{
		must(DecodeFeedTreeText[F64](e)),
		must(DecodeFeedTreeBinary[F64](must(EncodeBinary(ft)))),
	} {
		deepEq(t, d.Feed("energy").Vec, []F64{1, 2, 3, 4})
		if st, _ := d.Field("SubType"); st != "f64" {
			t.Errorf("SubType = %q, wanted f64", st)
		}
		deepEq(t, d.FieldKeys(), []string{"Name", "SubType"})
	}
}

func TestFeedTree_keys(t *testing.T) {
	ft := NewFeedTree[Point]("p")
	ensure(ft.AddFeed("a", nil))
	ensure(ft.Write("a", Point{1, 1}))

	var ke *KeyError
	if err := ft.AddFeed("a", NewCollection(Point{2, 2})); !errors.As(err, &ke) {
		t.Fatalf("AddFeed(dup) err = %v, wanted KeyError", err)
	}
	deepEq(t, ft.Feed("a").Vec, []Point{{1, 1}})

	isErr(t, ft.Write("b", Point{}), ErrKey)
	isErr(t, ft.AddField("feeds", "x"), ErrKey)
	isErr(t, ft.AddField("datafeeds", "x"), ErrKey)
	isErr(t, ft.AddField("SubType", "x"), ErrKey)
	ensure(ft.AddField("units", "m"))
	deepEq(t, ft.FieldKeys(), []string{"Name", "SubType", "units"})
	if ft.Feed("b") != nil {
		t.Errorf("Feed(b) = %v, wanted nil", ft.Feed("b"))
	}
}

func TestFeedTree_legacyFeedsKey(t *testing.T) {
	d := must(DecodeFeedTreeText[F64](`{"datafeeds":{"x":[1.5]},"Name":"old","SubType":"f64"}`))
	deepEq(t, d.FeedKeys(), []string{"x"})
	deepEq(t, d.Feed("x").Vec, []F64{1.5})

	// both spellings at once are ambiguous
	_, err := DecodeFeedTreeText[F64](`{"Name":"a","feeds":{},"datafeeds":{}}`)
	isErr(t, err, ErrParse)
}

func TestFeedTree_subtypeChecks(t *testing.T) {
	s := EncodeText(NewFeedTree[F64]("empty"))

	_, err := DecodeFeedTreeText[Point](s)
	isErr(t, err, ErrSubtypeMismatch)

	_, err = DecodeFeedTreeBinary[Point](must(EncodeBinary(NewFeedTree[F64]("empty"))))
	isErr(t, err, ErrSubtypeMismatch)

	full := NewFeedTree[F64]("full")
	ensure(full.AddFeed("x", NewCollection[F64](1)))
	_, err = DecodeFeedTreeBinary[Point](must(EncodeBinary(full)))
	isErr(t, err, ErrSubtypeMismatch)
	_, err = DecodeFeedTreeText[Point](EncodeText(full))
	isErr(t, err, ErrSubtypeMismatch)

	// non-tag record types carry their Go name
	u := NewFeedTree[U64]("counts")
	ensure(u.AddFeed("n", NewCollection[U64](7)))
	if st, _ := u.Field("SubType"); st != "U64" {
		t.Errorf("SubType = %q, wanted U64", st)
	}
	d := must(DecodeFeedTreeBinary[U64](must(EncodeBinary(u))))
	deepEq(t, d.Feed("n").Vec, []U64{7})

	_, err = DecodeFeedTreeText[F64](`{"SubType":"f64","feeds":{}}`)
	isErr(t, err, ErrParse)
}
