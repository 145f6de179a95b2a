//go:build unix

package mmap

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func mapFile(f *os.File, size int, access Access) ([]byte, error) {
	b, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	var advice int
	switch access {
	case SequentialAccess:
		advice = unix.MADV_SEQUENTIAL
	case RandomAccess:
		advice = unix.MADV_RANDOM
	default:
		return b, nil
	}
	// ENOSYS: the hint is unsupported, the mapping still works
	if err := unix.Madvise(b, advice); err != nil && !errors.Is(err, unix.ENOSYS) {
		unix.Munmap(b)
		return nil, fmt.Errorf("madvise(%d): %w", advice, err)
	}
	return b, nil
}

func unmapFile(b []byte) error {
	return unix.Munmap(b)
}
