package calcify

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/calcify-go/calcify/journal"
)

func testFeedJournalOptions() FeedJournalOptions {
	return FeedJournalOptions{
		Logger: quietLogger,
		Now:    func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
	}
}

func TestFeedJournal_recovery(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "energy.wal")

	fj := must(OpenFeedJournal[F64](path, "energy", testFeedJournalOptions()))
	ensure(fj.AddField("units", "J"))
	ensure(fj.AddFeed("total", NewCollection[F64](1, 2)))
	ensure(fj.Write("total", 3))
	ensure(fj.Commit())
	ensure(fj.Write("total", 99)) // never committed
	ensure(fj.Close())

	fj = must(OpenFeedJournal[F64](path, "energy", testFeedJournalOptions()))
	defer fj.Close()
	deepEq(t, fj.Tree().Feed("total").Vec, []F64{1, 2, 3})
	if v, _ := fj.Tree().Field("units"); v != "J" {
		t.Errorf("units = %q, wanted J", v)
	}

	ensure(fj.Write("total", 4))
	out := filepath.Join(dir, "energy.json")
	ensure(fj.Flush(out))

	ft := must(ReadFeedTree[F64](out))
	deepEq(t, ft.Feed("total").Vec, []F64{1, 2, 3, 4})
}

func TestFeedJournal_failedOpsAreNotLogged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.wal")
	fj := must(OpenFeedJournal[Point](path, "p", testFeedJournalOptions()))
	ensure(fj.AddFeed("a", nil))
	isErr(t, fj.AddFeed("a", nil), ErrKey)
	isErr(t, fj.Write("missing", Point{}), ErrKey)
	isErr(t, fj.AddField("feeds", "x"), ErrKey)
	ensure(fj.Write("a", Point{1, 2}))
	ensure(fj.Commit())
	ensure(fj.Close())

	fj = must(OpenFeedJournal[Point](path, "p", testFeedJournalOptions()))
	defer fj.Close()
	deepEq(t, fj.Tree().FeedKeys(), []string{"a"})
	deepEq(t, fj.Tree().Feed("a").Vec, []Point{{1, 2}})
}

func TestFeedJournal_unloggedChangesAreUndone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.wal")
	fj := must(OpenFeedJournal[F64](path, "e", testFeedJournalOptions()))
	ensure(fj.AddFeed("f", nil))
	ensure(fj.Write("f", 1))
	ensure(fj.Commit())
	ensure(fj.Close())

	isErr(t, fj.Write("f", 2), journal.ErrClosed)
	isErr(t, fj.AddFeed("g", NewCollection[F64](5)), journal.ErrClosed)
	isErr(t, fj.AddField("units", "J"), journal.ErrClosed)

	tr := fj.Tree()
	deepEq(t, tr.Feed("f").Vec, []F64{1})
	deepEq(t, tr.FeedKeys(), []string{"f"})
	if _, found := tr.Field("units"); found {
		t.Errorf("units field was kept")
	}
}

func TestFeedJournal_mismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.wal")
	fj := must(OpenFeedJournal[F64](path, "one", testFeedJournalOptions()))
	ensure(fj.Close())

	if _, err := OpenFeedJournal[F64](path, "two", testFeedJournalOptions()); err == nil {
		t.Errorf("OpenFeedJournal(other name) succeeded")
	}
	_, err := OpenFeedJournal[Point](path, "one", testFeedJournalOptions())
	isErr(t, err, journal.ErrIncompatible)
}

func TestFeedJournal_corruptOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.wal")
	o := journal.Options{Invariant: feedJournalInvariant[F64](), Logger: quietLogger}
	j := must(journal.Open(path, o))
	ensure(j.WriteRecord(0, []byte{0x93, 0x07, 0xa1, 'x', 0xc0}))
	ensure(j.Commit())
	ensure(j.Close())

	_, err := OpenFeedJournal[F64](path, "x", testFeedJournalOptions())
	isErr(t, err, ErrParse)

	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("journal file removed: %v", statErr)
	}
}

func TestFeedJournal_firstOpMustCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "j.wal")
	o := journal.Options{Invariant: feedJournalInvariant[F64](), Logger: quietLogger}
	j := must(journal.Open(path, o))
	ensure(j.WriteRecord(0, []byte{0x93, byte(feedOpWrite), 0xa1, 'x', 0xcb, 0, 0, 0, 0, 0, 0, 0, 0}))
	ensure(j.Commit())
	ensure(j.Close())

	_, err := OpenFeedJournal[F64](path, "x", testFeedJournalOptions())
	if !errors.Is(err, ErrParse) {
		t.Fatalf("err = %v, wanted ErrParse", err)
	}
}
