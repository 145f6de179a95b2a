package calcify

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestFormatOf(t *testing.T) {
	tests := []struct {
		path string
		want FileFormat
	}{
		{"a.bin", FileFormat{FormatBinary, CompressionNone}},
		{"a.msgpack", FileFormat{FormatBinary, CompressionNone}},
		{"a", FileFormat{FormatBinary, CompressionNone}},
		{"a.json", FileFormat{FormatText, CompressionNone}},
		{"dir.json/a.JSONC", FileFormat{FormatTextCompact, CompressionNone}},
		{"a.json.zst", FileFormat{FormatText, CompressionZstd}},
		{"a.bin.lz4", FileFormat{FormatBinary, CompressionLZ4}},
		{"a.zst", FileFormat{FormatBinary, CompressionZstd}},
	}
	for _, tt := range tests {
		if a := FormatOf(tt.path); a != tt.want {
			t.Errorf("FormatOf(%q) = %v, wanted %v", tt.path, a, tt.want)
		}
	}
	if a := (FileFormat{FormatTextCompact, CompressionLZ4}).String(); a != "text-compact+lz4" {
		t.Errorf("String() = %q, wanted text-compact+lz4", a)
	}
}

func TestParseFormat(t *testing.T) {
	for _, f := range []Format{FormatBinary, FormatText, FormatTextCompact} {
		if a := must(ParseFormat(f.String())); a != f {
			t.Errorf("ParseFormat(%q) = %v, wanted %v", f.String(), a, f)
		}
	}
	if a := must(ParseFormat("JSONC")); a != FormatTextCompact {
		t.Errorf("ParseFormat(JSONC) = %v", a)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Errorf("ParseFormat(xml) succeeded")
	}
}

func TestTreeFiles(t *testing.T) {
	dir := t.TempDir()
	tr := demoTree()
	want := EncodeText(tr)

	for _, name := range []string{"t.bin", "t.json", "t.jsonc", "t.bin.zst", "t.json.lz4", "t.jsonc.zst", "t.bin.lz4"} {
		path := filepath.Join(dir, name)
		ensure(WriteFile(path, tr))
		a, err := ReadTree(path)
		if err != nil {
			t.Fatalf("ReadTree(%s) failed: %v", name, err)
		}
		if s := EncodeText(a); s != want {
			t.Errorf("ReadTree(%s) = %s, wanted %s", name, s, want)
		}
	}

	raw := must(os.ReadFile(filepath.Join(dir, "t.json")))
	if string(raw) != want {
		t.Errorf("t.json = %s, wanted %s", raw, want)
	}
	raw = must(os.ReadFile(filepath.Join(dir, "t.bin")))
	if !bytes.Equal(raw, must(EncodeBinary(tr))) {
		t.Errorf("t.bin does not hold the binary encoding")
	}
}

func TestTreeFiles_explicitFormat(t *testing.T) {
	dir := t.TempDir()
	tr := demoTree()

	// the extension does not override the method
	path := filepath.Join(dir, "tree.dat")
	ensure(tr.WriteTextCompact(path))
	a := must(ReadTreeText(path))
	if EncodeText(a) != EncodeText(tr) {
		t.Errorf("ReadTreeText = %s", EncodeText(a))
	}
	if _, err := ReadTreeBinary(path); !errors.Is(err, ErrParse) {
		t.Errorf("ReadTreeBinary(text file) err = %v, wanted ErrParse", err)
	}

	ensure(tr.WriteText(path))
	ensure(tr.WriteBinary(path + ".zst"))
	a = must(ReadTreeBinary(path + ".zst"))
	if EncodeText(a) != EncodeText(tr) {
		t.Errorf("ReadTreeBinary(zst) = %s", EncodeText(a))
	}

	entries := must(os.ReadDir(dir))
	if len(entries) != 2 {
		t.Errorf("dir has %d entries, wanted no temp files left behind", len(entries))
	}
}

func TestTreeFiles_errors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadTree(filepath.Join(dir, "missing.bin"))
	isErr(t, err, fs.ErrNotExist)

	empty := filepath.Join(dir, "empty.bin")
	ensure(os.WriteFile(empty, nil, 0o644))
	_, err = ReadTree(empty)
	isErr(t, err, ErrParse)

	bad := filepath.Join(dir, "bad.bin")
	ensure(os.WriteFile(bad, []byte{0x81, 0xa4, 'N', 'a', 'm', 'e'}, 0o644))
	_, err = ReadTree(bad)
	var de *DataError
	if !errors.As(err, &de) {
		t.Fatalf("ReadTree(bad) err = %v, wanted *DataError", err)
	}
	// the error must not point into the unmapped file
	if !bytes.Equal(de.Data, []byte{0x81, 0xa4, 'N', 'a', 'm', 'e'}) {
		t.Errorf("DataError.Data = %x", de.Data)
	}

	badz := filepath.Join(dir, "bad.bin.zst")
	ensure(os.WriteFile(badz, []byte("not zstd"), 0o644))
	if _, err := ReadTree(badz); err == nil {
		t.Errorf("ReadTree(bad zstd) succeeded")
	}
}

func TestFeedTreeFiles(t *testing.T) {
	dir := t.TempDir()
	ft := NewFeedTree[ThreeVec]("orbit")
	ensure(ft.AddFeed("pos", NewCollection(NewThreeVec(1, 0, 0), NewThreeVec(0, 1, 0))))

	for _, name := range []string{"f.bin", "f.json", "f.jsonc.zst"} {
		path := filepath.Join(dir, name)
		ensure(WriteFile(path, ft))
		a := must(ReadFeedTree[ThreeVec](path))
		deepEq(t, a.Feed("pos").Vec, ft.Feed("pos").Vec)
	}

	path := filepath.Join(dir, "explicit")
	ensure(ft.WriteText(path))
	deepEq(t, must(ReadFeedTreeText[ThreeVec](path)).FeedKeys(), []string{"pos"})
	ensure(ft.WriteBinary(path))
	deepEq(t, must(ReadFeedTreeBinary[ThreeVec](path)).FeedKeys(), []string{"pos"})
	ensure(ft.WriteTextCompact(path))
	deepEq(t, must(ReadFeedTreeText[ThreeVec](path)).FeedKeys(), []string{"pos"})
}
