// Package mmap maps container files into memory for reading and provides
// the durable-sync primitive used when writing them.
package mmap

import (
	"fmt"
	"math"
	"os"
)

// MaxSize is the largest file Open maps: 256TB on 64-bit platforms, 2GB on
// 32-bit ones.
const MaxSize = min(1<<48, math.MaxInt)

// Access is a read-ahead hint for the kernel.
type Access uint8

const (
	NormalAccess Access = iota

	// SequentialAccess requests aggressive read-ahead. Maps to MADV_SEQUENTIAL
	// on Unix.
	SequentialAccess

	// RandomAccess disables most read-ahead. Maps to MADV_RANDOM on Unix.
	RandomAccess
)

// File is a read-only mapping of a whole file.
type File struct {
	f    *os.File
	data []byte
}

// Open maps the whole file at path read-only. Empty files are not mapped;
// Bytes returns an empty slice for them.
func Open(path string, access Access) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := fi.Size()
	if size > MaxSize {
		f.Close()
		return nil, fmt.Errorf("%s: file size %d exceeds mmap limit", path, size)
	}
	mf := &File{f: f}
	if size > 0 {
		mf.data, err = mapFile(f, int(size), access)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("mmap %s: %w", path, err)
		}
	}
	return mf, nil
}

// Bytes returns the mapped contents. The slice is only valid until Close.
func (mf *File) Bytes() []byte {
	return mf.data
}

func (mf *File) Close() error {
	var err error
	if mf.data != nil {
		err = unmapFile(mf.data)
		mf.data = nil
	}
	if mf.f != nil {
		if cerr := mf.f.Close(); err == nil {
			err = cerr
		}
		mf.f = nil
	}
	return err
}

// Fdatasync flushes the data written to f to stable storage, skipping
// metadata such as modification times where the platform allows.
//
// An error leaves the on-disk state unknown: the kernel may already have
// marked the failed pages clean. Callers must treat the file as lost rather
// than retry.
func Fdatasync(f *os.File) error {
	return fdatasync(f)
}
