package mmap

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestFdatasync(t *testing.T) {
	f := must(os.Create(filepath.Join(t.TempDir(), "synced")))
	defer f.Close()
	must(f.WriteString("durable"))
	if err := Fdatasync(f); err != nil {
		t.Fatalf("Fdatasync: %v", err)
	}
}

func TestOpen_accessHints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	want := bytes.Repeat([]byte("0123456789abcdef"), 1024)
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatal(err)
	}
	for _, access := range []Access{NormalAccess, SequentialAccess, RandomAccess} {
		mf := must(Open(path, access))
		if got := mf.Bytes(); !bytes.Equal(got, want) {
			t.Errorf("Bytes() with access %d differs from the file", access)
		}
		if err := mf.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")
	want := []byte("calcify mapped contents")
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatal(err)
	}

	mf := must(Open(path, SequentialAccess))
	if got := mf.Bytes(); !bytes.Equal(got, want) {
		t.Fatalf("Bytes() = %q, wanted %q", got, want)
	}
	if err := mf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if mf.Bytes() != nil {
		t.Fatalf("Bytes() after Close = %q, wanted nil", mf.Bytes())
	}
}

func TestOpen_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	mf := must(Open(path, NormalAccess))
	defer mf.Close()
	if n := len(mf.Bytes()); n != 0 {
		t.Fatalf("len(Bytes()) = %d, wanted 0", n)
	}
}

func TestOpen_Missing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"), NormalAccess)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Open(missing) err = %v, wanted fs.ErrNotExist", err)
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

