package calcify

import (
	"fmt"
	"io"
	"strings"
)

type DumpFlags uint64

const (
	DumpHeaders = DumpFlags(1 << iota)
	DumpStats
	DumpFields
	DumpContents
	DumpCompact

	DumpAll = DumpHeaders | DumpStats | DumpFields | DumpContents
)

var (
	dumpSep1 = strings.Repeat("=", 80)
	dumpSep2 = strings.Repeat("-", 60)
)

func (f DumpFlags) Contains(v DumpFlags) bool {
	return (f & v) == v
}

// Dump writes a human-readable listing of the archive to w. Entries that
// fail to decode are reported inline and do not stop the dump.
func (a *Archive) Dump(w io.Writer, f DumpFlags) error {
	var buf strings.Builder
	if f.Contains(DumpStats) {
		s, err := a.Stats()
		if err != nil {
			return err
		}
		fmt.Fprintf(&buf, "%s.stats: entries = %d, trees = %d, feedtrees = %d, compressed = %d, raw_size = %d, stored_size = %d, data_alloc = %d, file_size = %d\n",
			a.name, s.Entries, s.Trees, s.FeedTrees, s.Compressed, s.RawSize, s.StoredSize, s.DataAlloc, s.FileSize)
	}

	err := a.view(func(b entryBucket) error {
		if b == nil {
			return nil
		}
		c := b.Cursor()
		var pos int
		for k, data := c.First(); k != nil; k, data = c.Next() {
			pos++
			a.dumpEntry(&buf, f, pos, string(k), data)
		}
		return nil
	})
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, buf.String())
	return err
}

func (a *Archive) dumpEntry(w *strings.Builder, f DumpFlags, pos int, name string, data []byte) {
	var v archiveValue
	if err := v.decode(data); err != nil {
		fmt.Fprintf(w, "%d. %s ** ERROR: %v\n", pos, name, detachDataError(err))
		return
	}
	e := v.entry(name)

	if f.Contains(DumpHeaders) {
		fmt.Fprintln(w, dumpSep1)
		fmt.Fprintf(w, "%d. %s (%v", pos, name, e.Kind)
		if e.SubType != "" {
			fmt.Fprintf(w, " of %s", e.SubType)
		}
		fmt.Fprintf(w, ", %d bytes", e.RawSize)
		if e.Compressed {
			fmt.Fprintf(w, ", %d stored", e.Size)
		}
		fmt.Fprintf(w, ", created %s)\n", e.Created.Format("2006-01-02 15:04:05"))
	}
	if !f.Contains(DumpFields) && !f.Contains(DumpContents) {
		return
	}

	r, err := decodeEntryRecord(&v)
	if err != nil {
		fmt.Fprintf(w, "%s ** ERROR: %v\n", name, detachDataError(err))
		return
	}
	if f.Contains(DumpFields) {
		for _, key := range entryFieldKeys(r) {
			val, _ := entryField(r, key)
			fmt.Fprintf(w, "%s.%s = %s\n", name, key, val)
		}
	}
	if f.Contains(DumpContents) {
		if f.Contains(DumpFields) {
			fmt.Fprintln(w, dumpSep2)
		}
		if f.Contains(DumpCompact) {
			w.Write(r.AppendJSONCompact(nil))
		} else {
			w.Write(r.AppendJSON(nil))
		}
		w.WriteByte('\n')
	}
}

type fielder interface {
	Field(key string) (string, bool)
	FieldKeys() []string
}

func entryFieldKeys(r Record) []string {
	if fr, ok := r.(fielder); ok {
		return fr.FieldKeys()
	}
	return nil
}

func entryField(r Record, key string) (string, bool) {
	if fr, ok := r.(fielder); ok {
		return fr.Field(key)
	}
	return "", false
}

// decodeEntryRecord decodes a stored container without knowing its record
// type up front. Feed trees are decoded through their SubType tag.
func decodeEntryRecord(v *archiveValue) (Record, error) {
	raw, err := v.container()
	if err != nil {
		return nil, err
	}
	switch v.Kind {
	case KindTree:
		return DecodeTreeBinary(raw)
	case KindFeedTree:
		c := subtypes.byTag[Subtype(v.SubType)]
		if c == nil || c.decodeFeedTree == nil {
			return nil, fmt.Errorf("%w %q", ErrUnknownSubtype, v.SubType)
		}
		return c.decodeFeedTree(raw)
	default:
		return nil, fmt.Errorf("%w: unknown kind %v", ErrParse, v.Kind)
	}
}
