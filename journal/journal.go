// Package journal implements single-file append-only journals.
//
// A journal is a sequence of records grouped into transactions. Records
// become visible to Replay only once their transaction is committed, so a
// crash in the middle of a transaction loses that transaction and nothing
// else. Opening a journal for writing trims any uncommitted or corrupted
// tail.
//
// File format:
//
//   - file = header (record* commit)*
//   - header = magic:64 version:8 _:8 flags:16 _:32 timestamp:32 _:32 invariant:256 checksum:64
//   - record = (size<<1):uvarint tsDelta:uvarint bytes*
//   - commit = checksum:64, with the lowest bit set
//
// Every checksum is an xxhash of all bytes of the file that precede it, so a
// commit also vouches for all earlier transactions.
package journal

import (
	"context"
	"encoding/binary"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/calcify-go/calcify/mmap"
)

var (
	ErrIncompatible       = errors.New("incompatible journal")
	ErrUnsupportedVersion = errors.New("unsupported journal version")
	ErrClosed             = errors.New("journal closed")
	ErrCorrupted          = errors.New("corrupted journal header")
)

type Options struct {
	Context   context.Context
	DebugName string
	Now       func() time.Time

	// Invariant identifies the kind of data the journal holds. Opening a
	// journal written with a different invariant fails with ErrIncompatible.
	Invariant [32]byte

	Logger  *slog.Logger
	Verbose bool
}

func (o *Options) setDefaults(path string) {
	if o.Context == nil {
		o.Context = context.Background()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.DebugName == "" {
		o.DebugName = path
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

const (
	magic          = 0x4c4e524a59464c43 // "CLFYJRNL" as little-endian uint64
	version0 uint8 = 0
)

const headerSize = 64

type header struct {
	Magic     uint64
	Version   uint8
	_         uint8
	Flags     uint16
	_         uint32
	Timestamp uint32
	_         uint32
	Invariant [32]byte
	Checksum  uint64
}

const (
	recordFlagCommit byte = 1
	recordFlagShift       = 1
	commitSize            = 8
	maxRecHeaderLen       = 2 * binary.MaxVarintLen64
)

// Record is a committed journal record.
type Record struct {
	Timestamp uint32
	Data      []byte
}

// Journal appends records to a journal file. It is safe for concurrent use,
// but records from concurrent writers interleave in an unspecified order.
type Journal struct {
	context   context.Context
	debugName string
	now       func() time.Time
	logger    *slog.Logger
	verbose   bool
	invariant [32]byte

	writeLock   sync.Mutex
	writeErr    error
	f           *os.File
	hash        xxhash.Digest
	ts          uint32
	size        int64
	uncommitted bool
	records     int
}

// Open opens the journal at path for appending, creating it if necessary.
// An uncommitted or corrupted tail is truncated away.
func Open(path string, o Options) (*Journal, error) {
	o.setDefaults(path)
	j := &Journal{
		context:   o.Context,
		debugName: o.DebugName,
		now:       o.Now,
		logger:    o.Logger,
		verbose:   o.Verbose,
		invariant: o.Invariant,
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	var ok bool
	defer closeUnlessOK(f, &ok)

	sc, err := scanFile(path, o.Invariant, nil)
	if errors.Is(err, ErrCorrupted) {
		j.logger.LogAttrs(j.context, slog.LevelWarn, "journal: discarding file with corrupted header", slog.String("jrnl", j.debugName))
		sc = nil
	} else if err != nil {
		return nil, err
	}

	if sc == nil {
		if err := f.Truncate(0); err != nil {
			return nil, err
		}
		if err := j.writeHeader(f); err != nil {
			return nil, err
		}
	} else {
		if sc.committedEnd < sc.fileSize {
			j.logger.LogAttrs(j.context, slog.LevelWarn, "journal: trimming uncommitted tail",
				slog.String("jrnl", j.debugName),
				slog.Int64("committed", sc.committedEnd),
				slog.Int64("size", sc.fileSize))
			if err := f.Truncate(sc.committedEnd); err != nil {
				return nil, err
			}
		}
		j.hash = sc.committedHash
		j.ts = sc.committedTS
		j.size = sc.committedEnd
		j.records = sc.committedRecords
	}
	if _, err := f.Seek(j.size, 0); err != nil {
		return nil, err
	}

	if j.verbose {
		j.logger.LogAttrs(j.context, slog.LevelDebug, "journal: opened", slog.String("jrnl", j.debugName), slog.Int64("size", j.size), slog.Int("records", j.records))
	}
	j.f = f
	ok = true
	return j, nil
}

func (j *Journal) String() string {
	return j.debugName
}

// Now returns the current time in journal timestamp units (Unix seconds).
func (j *Journal) Now() uint32 {
	v := j.now().Unix()
	if v < 0 {
		panic("time travel disallowed")
	}
	u := uint64(v)
	if u&0xFFFF_FFFF_0000_0000 != 0 {
		panic("time travel disallowed both ways")
	}
	return uint32(u)
}

// Size returns the number of bytes written so far, including uncommitted
// records.
func (j *Journal) Size() int64 {
	j.writeLock.Lock()
	defer j.writeLock.Unlock()
	return j.size
}

// Records returns the number of records written so far.
func (j *Journal) Records() int {
	j.writeLock.Lock()
	defer j.writeLock.Unlock()
	return j.records
}

func (j *Journal) writeHeader(f *os.File) error {
	h := header{
		Magic:     magic,
		Version:   version0,
		Timestamp: j.Now(),
		Invariant: j.invariant,
	}
	var buf [headerSize]byte
	n, err := binary.Encode(buf[:], binary.LittleEndian, h)
	if err != nil {
		panic(err)
	}
	if n != len(buf) {
		panic("internal size mismatch")
	}
	j.hash.Reset()
	j.hash.Write(buf[:headerSize-8])
	binary.LittleEndian.PutUint64(buf[headerSize-8:], j.hash.Sum64())
	j.hash.Write(buf[headerSize-8:])

	if _, err := f.Write(buf[:]); err != nil {
		return err
	}
	if err := mmap.Fdatasync(f); err != nil {
		return err
	}
	j.ts = h.Timestamp
	j.size = headerSize
	return nil
}

// WriteRecord appends a record to the current transaction. A zero timestamp
// means now. Empty records are skipped.
func (j *Journal) WriteRecord(timestamp uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	j.writeLock.Lock()
	defer j.writeLock.Unlock()

	if j.writeErr != nil {
		return j.writeErr
	}
	if timestamp == 0 {
		timestamp = j.Now()
	}

	var tsDelta uint32
	if timestamp > j.ts {
		tsDelta = timestamp - j.ts
		j.ts = timestamp
	}

	var hbuf [maxRecHeaderLen]byte
	h := appendRecordHeader(hbuf[:0], len(data), tsDelta)

	j.hash.Write(h)
	if _, err := j.f.Write(h); err != nil {
		return j.fail(err)
	}
	j.hash.Write(data)
	if _, err := j.f.Write(data); err != nil {
		return j.fail(err)
	}
	j.size += int64(len(h) + len(data))
	j.records++
	j.uncommitted = true
	return nil
}

// Commit ends the current transaction and syncs the file. Committing with
// no records written since the last commit does nothing.
func (j *Journal) Commit() error {
	j.writeLock.Lock()
	defer j.writeLock.Unlock()

	if j.writeErr != nil {
		return j.writeErr
	}
	if !j.uncommitted {
		return nil
	}

	var buf [commitSize]byte
	binary.LittleEndian.PutUint64(buf[:], j.hash.Sum64())
	buf[0] |= recordFlagCommit

	j.hash.Write(buf[:])
	if _, err := j.f.Write(buf[:]); err != nil {
		return j.fail(err)
	}
	if err := mmap.Fdatasync(j.f); err != nil {
		return j.fail(err)
	}
	j.size += commitSize
	j.uncommitted = false
	return nil
}

// Close closes the file. Records written after the last Commit are lost.
func (j *Journal) Close() error {
	j.writeLock.Lock()
	defer j.writeLock.Unlock()
	if j.f == nil {
		return nil
	}
	if j.uncommitted {
		j.logger.LogAttrs(j.context, slog.LevelWarn, "journal: closing with uncommitted records", slog.String("jrnl", j.debugName))
	}
	err := j.f.Close()
	j.f = nil
	if j.writeErr == nil {
		j.writeErr = ErrClosed
	}
	return err
}

func (j *Journal) fail(err error) error {
	if err == nil {
		return nil
	}
	j.logger.LogAttrs(j.context, slog.LevelError, "journal: failed", slog.String("jrnl", j.debugName), slog.Any("err", err))
	if j.writeErr == nil {
		j.writeErr = err
	}
	return err
}

// Replay calls fn for every committed record of the journal at path, in
// order. Record data is only valid during the call. A missing file has no
// records.
func Replay(path string, o Options, fn func(rec Record) error) error {
	o.setDefaults(path)
	sc, err := scanFile(path, o.Invariant, fn)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}
	if sc != nil && sc.committedEnd < sc.fileSize {
		o.Logger.LogAttrs(o.Context, slog.LevelWarn, "journal: ignoring uncommitted tail",
			slog.String("jrnl", o.DebugName),
			slog.Int64("committed", sc.committedEnd),
			slog.Int64("size", sc.fileSize))
	}
	return nil
}

type scanResult struct {
	fileSize         int64
	committedEnd     int64
	committedHash    xxhash.Digest
	committedTS      uint32
	committedRecords int
}

// scanFile walks the journal at path and calls fn for each committed record.
// It returns nil (and no error) for an empty file.
func scanFile(path string, invariant [32]byte, fn func(rec Record) error) (*scanResult, error) {
	mf, err := mmap.Open(path, mmap.SequentialAccess)
	if err != nil {
		return nil, err
	}
	defer mf.Close()
	data := mf.Bytes()
	if len(data) == 0 {
		return nil, nil
	}

	sc := &scanResult{fileSize: int64(len(data))}
	var h header
	if err := readHeader(data, &h, invariant); err != nil {
		return nil, err
	}
	var hash xxhash.Digest
	hash.Reset()
	hash.Write(data[:headerSize])

	sc.committedEnd = headerSize
	sc.committedHash = hash
	sc.committedTS = h.Timestamp

	var pending []Record
	ts := h.Timestamp
	off := headerSize
	for off < len(data) {
		if data[off]&recordFlagCommit != 0 {
			if off+commitSize > len(data) {
				break
			}
			stored := binary.LittleEndian.Uint64(data[off:])
			if stored&^uint64(recordFlagCommit) != hash.Sum64()&^uint64(recordFlagCommit) {
				break
			}
			hash.Write(data[off : off+commitSize])
			off += commitSize
			if fn != nil {
				for _, rec := range pending {
					if err := fn(rec); err != nil {
						return nil, err
					}
				}
			}
			sc.committedRecords += len(pending)
			pending = pending[:0]
			sc.committedEnd = int64(off)
			sc.committedHash = hash
			sc.committedTS = ts
			continue
		}

		start := off
		sizeAndFlags, n := binary.Uvarint(data[off:])
		if n <= 0 {
			break
		}
		off += n
		tsDelta, n := binary.Uvarint(data[off:])
		if n <= 0 || tsDelta > 0xFFFF_FFFF {
			break
		}
		off += n
		size := sizeAndFlags >> recordFlagShift
		if size > uint64(len(data)-off) {
			break
		}
		ts += uint32(tsDelta)
		pending = append(pending, Record{Timestamp: ts, Data: data[off : off+int(size)]})
		off += int(size)
		hash.Write(data[start:off])
	}
	return sc, nil
}

func readHeader(data []byte, h *header, invariant [32]byte) error {
	if len(data) < headerSize {
		return ErrCorrupted
	}
	n, err := binary.Decode(data[:headerSize], binary.LittleEndian, h)
	if err != nil {
		panic(err)
	}
	if n != headerSize {
		panic("internal size mismatch")
	}
	if h.Magic != magic {
		return ErrCorrupted
	}
	if xxhash.Sum64(data[:headerSize-8]) != h.Checksum {
		return ErrCorrupted
	}
	if h.Version > version0 {
		return ErrUnsupportedVersion
	}
	if h.Invariant != invariant {
		return ErrIncompatible
	}
	return nil
}

func appendRecordHeader(b []byte, size int, tsDelta uint32) []byte {
	b = binary.AppendUvarint(b, uint64(size)<<recordFlagShift)
	b = binary.AppendUvarint(b, uint64(tsDelta))
	return b
}

func closeUnlessOK(f *os.File, ok *bool) {
	if *ok {
		return
	}
	f.Close()
}
