// Package journaltest opens journals in a temporary directory with a fake
// clock and compares journal files against byte specs.
//
// A byte spec is a list of space-separated elements:
//
//	ab_c    hex bytes; underscores separate bytes, so this is ab 0c
//	#300    uvarint of a decimal number
//	'text   literal text up to the next space
//	x*4     element x repeated 4 times
//	x..y    x, zero padding, then y, padded to 4 bytes ("..." pads to 8)
//	x/note  anything after a slash is a comment
package journaltest

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/calcify-go/calcify/journal"
)

// Start is the fake clock's initial time.
var Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type TestJournal struct {
	*journal.Journal

	T    testing.TB
	Path string
	Opts journal.Options

	now time.Time
}

// Writable opens a new journal with verbose logging routed to t.Log.
func Writable(t testing.TB, o journal.Options) *TestJournal {
	j := &TestJournal{
		T:    t,
		Path: filepath.Join(t.TempDir(), "j.wal"),
		now:  Start,
	}
	o.Now = j.Now
	o.Logger = slog.New(slog.NewTextHandler(testLog{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	o.Verbose = true
	j.Opts = o

	jj, err := journal.Open(j.Path, o)
	if err != nil {
		t.Fatalf("open %v: %v", j.Path, err)
	}
	j.Journal = jj
	t.Cleanup(func() {
		if j.Journal != nil {
			j.Journal.Close()
		}
	})
	return j
}

// Reopen closes the journal and opens it again, recovering its state from
// the file.
func (j *TestJournal) Reopen() {
	j.T.Helper()
	if err := j.Journal.Close(); err != nil {
		j.T.Fatalf("close %v: %v", j.Path, err)
	}
	var err error
	j.Journal, err = journal.Open(j.Path, j.Opts)
	if err != nil {
		j.T.Fatalf("reopen %v: %v", j.Path, err)
	}
}

// Replay returns copies of all committed records.
func (j *TestJournal) Replay() []journal.Record {
	j.T.Helper()
	var recs []journal.Record
	err := journal.Replay(j.Path, j.Opts, func(rec journal.Record) error {
		rec.Data = bytes.Clone(rec.Data)
		recs = append(recs, rec)
		return nil
	})
	if err != nil {
		j.T.Fatalf("replay %v: %v", j.Path, err)
	}
	return recs
}

// Eq checks the whole file against a byte spec.
func (j *TestJournal) Eq(spec ...string) {
	j.T.Helper()
	BytesEq(j.T, j.Data(), Expand(spec...))
}

// Put overwrites the file. Close the journal first.
func (j *TestJournal) Put(spec ...string) {
	j.T.Helper()
	if err := os.WriteFile(j.Path, Expand(spec...), 0o644); err != nil {
		j.T.Fatal(err)
	}
}

// Append adds raw bytes to the end of the file, simulating a torn write.
func (j *TestJournal) Append(spec ...string) {
	j.T.Helper()
	f, err := os.OpenFile(j.Path, os.O_WRONLY|os.O_APPEND, 0)
	if err == nil {
		_, err = f.Write(Expand(spec...))
		err = errors.Join(err, f.Close())
	}
	if err != nil {
		j.T.Fatal(err)
	}
}

// Data returns the file contents, or nil if there is no file.
func (j *TestJournal) Data() []byte {
	j.T.Helper()
	b, err := os.ReadFile(j.Path)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		j.T.Fatal(err)
	}
	return b
}

func (j *TestJournal) Now() time.Time {
	return j.now
}

func (j *TestJournal) Advance(d time.Duration) {
	j.now = j.now.Add(d)
}

type testLog struct{ t testing.TB }

func (w testLog) Write(buf []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(buf), "\n"))
	return len(buf), nil
}

// Expand converts a byte spec into bytes. It panics on a malformed spec.
func Expand(specs ...string) []byte {
	var b []byte
	for _, spec := range specs {
		for _, elem := range strings.Fields(spec) {
			var err error
			b, err = appendElem(b, elem)
			if err != nil {
				panic(fmt.Errorf("%w in element %q", err, elem))
			}
		}
	}
	return b
}

func appendElem(b []byte, elem string) ([]byte, error) {
	elem, _, _ = strings.Cut(elem, "/")
	if elem == "" {
		return b, nil
	}
	elem, repStr, hasRep := strings.Cut(elem, "*")
	rep := 1
	if hasRep {
		var err error
		if rep, err = strconv.Atoi(repStr); err != nil {
			return nil, fmt.Errorf("invalid repeat count %q", repStr)
		}
	}

	padTo := 0
	left, right, found := strings.Cut(elem, "...")
	if found {
		padTo = 8
	} else if left, right, found = strings.Cut(elem, ".."); found {
		padTo = 4
	}
	leftBytes, err := decodeAtom(left)
	if err != nil {
		return nil, err
	}
	rightBytes, err := decodeAtom(right)
	if err != nil {
		return nil, err
	}
	pad := max(0, padTo-len(leftBytes)-len(rightBytes))

	for range rep {
		b = append(b, leftBytes...)
		b = append(b, make([]byte, pad)...)
		b = append(b, rightBytes...)
	}
	return b, nil
}

func decodeAtom(s string) ([]byte, error) {
	if decimal, ok := strings.CutPrefix(s, "#"); ok {
		v, err := strconv.ParseUint(decimal, 10, 64)
		if err != nil {
			return nil, err
		}
		return binary.AppendUvarint(nil, v), nil
	}
	if text, ok := strings.CutPrefix(s, "'"); ok {
		return []byte(text), nil
	}
	// underscores separate groups; a group of odd length ends in a
	// single-digit byte
	var b []byte
	for _, group := range strings.Split(s, "_") {
		even := len(group) &^ 1
		v, err := hex.DecodeString(group[:even])
		if err != nil {
			return nil, err
		}
		b = append(b, v...)
		if even < len(group) {
			d, err := strconv.ParseUint(group[even:], 16, 8)
			if err != nil {
				return nil, err
			}
			b = append(b, byte(d))
		}
	}
	return b, nil
}

// BytesEq reports a hex dump of both sides when a and e differ.
func BytesEq(t testing.TB, a, e []byte) bool {
	if bytes.Equal(a, e) {
		return true
	}
	off := min(len(a), len(e))
	for i := range off {
		if a[i] != e[i] {
			off = i
			break
		}
	}
	t.Helper()
	t.Errorf("** got:\n%v\nwanted:\n%v\nfirst difference at offset 0x%x (%d)", hex.Dump(a), hex.Dump(e), off, off)
	return false
}
