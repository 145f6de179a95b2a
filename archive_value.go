package calcify

import (
	"fmt"
	"time"
)

type valueFlags uint64

const (
	vfVerBit0 = valueFlags(1 << iota)
	vfVerBit1
	vfVerBit2
	vfVerBit3
	vfCompressionBit0

	vfVerMask       = (vfVerBit0 | vfVerBit1 | vfVerBit2 | vfVerBit3)
	vfVer1          = vfVerBit0
	vfZstd          = vfCompressionBit0
	vfSupportedMask = (vfVer1 | vfZstd)
	vfDefault       = vfVer1

	maxSubtypeLen = 256
)

func (vf valueFlags) ver() valueFlags {
	return vf & vfVerMask
}

func (vf valueFlags) compression() Compression {
	if vf&vfZstd != 0 {
		return CompressionZstd
	}
	return CompressionNone
}

// ArchiveKind is the container type of an archive entry.
type ArchiveKind uint8

const (
	KindTree     ArchiveKind = 1
	KindFeedTree ArchiveKind = 2
)

func (k ArchiveKind) String() string {
	switch k {
	case KindTree:
		return "tree"
	case KindFeedTree:
		return "feedtree"
	default:
		return fmt.Sprintf("ArchiveKind(%d)", uint8(k))
	}
}

// archiveValue is an archive entry as stored:
//
//	flags:uvarint kind:uvarint created:uvarint rawSize:uvarint subtypeLen:uvarint subtype data
//
// data is the binary container encoding, zstd-compressed if flags say so;
// rawSize is its uncompressed size.
type archiveValue struct {
	Flags   valueFlags
	Kind    ArchiveKind
	Created uint64
	RawSize uint64
	SubType string
	Data    []byte
}

func (v *archiveValue) encode(buf []byte) []byte {
	if (v.Flags &^ vfSupportedMask) != 0 {
		panic(fmt.Errorf("invalid flags %x", v.Flags))
	}
	buf = appendUvarint(buf, uint64(v.Flags))
	buf = appendUvarint(buf, uint64(v.Kind))
	buf = appendUvarint(buf, v.Created)
	buf = appendUvarint(buf, v.RawSize)
	buf = appendUvarint(buf, uint64(len(v.SubType)))
	buf = append(buf, v.SubType...)
	return append(buf, v.Data...)
}

// decode leaves Data pointing into data.
func (v *archiveValue) decode(data []byte) error {
	d := makeByteDecoder(data)

	flags, err := d.Uvarint()
	if err != nil {
		return err
	}
	if (flags &^ uint64(vfSupportedMask)) != 0 {
		return dataErrf(data, 0, nil, nil, "invalid archive value: unsupported flags %x", flags)
	}
	v.Flags = valueFlags(flags)
	if v.Flags.ver() != vfVer1 {
		return dataErrf(data, 0, nil, nil, "invalid archive value: unsupported version %d", v.Flags.ver())
	}

	kind, err := d.Uvarint()
	if err != nil {
		return err
	}
	if k := ArchiveKind(kind); kind > 0xFF || (k != KindTree && k != KindFeedTree) {
		return dataErrf(data, d.Off(), nil, nil, "invalid archive value: unknown kind %d", kind)
	}
	v.Kind = ArchiveKind(kind)

	if v.Created, err = d.Uvarint(); err != nil {
		return err
	}
	if v.RawSize, err = d.Uvarint(); err != nil {
		return err
	}

	n, err := d.Uvarinti()
	if err != nil {
		return err
	}
	if n > maxSubtypeLen {
		return dataErrf(data, d.Off(), nil, nil, "invalid archive value: subtype of %d bytes", n)
	}
	st, err := d.Raw(n)
	if err != nil {
		return err
	}
	v.SubType = string(st)

	v.Data = d.Buf
	if v.Flags.compression() == CompressionNone && uint64(len(v.Data)) != v.RawSize {
		return dataErrf(data, d.Off(), nil, nil, "invalid archive value: got %d bytes of data, expected %d", len(v.Data), v.RawSize)
	}
	return nil
}

// container returns the decompressed binary container encoding.
func (v *archiveValue) container() ([]byte, error) {
	raw, err := decompress(v.Data, v.Flags.compression())
	if err != nil {
		return nil, err
	}
	if uint64(len(raw)) != v.RawSize {
		return nil, fmt.Errorf("%w: decompressed %d bytes, expected %d", ErrParse, len(raw), v.RawSize)
	}
	return raw, nil
}

func (v *archiveValue) entry(name string) ArchiveEntry {
	return ArchiveEntry{
		Name:       name,
		Kind:       v.Kind,
		SubType:    v.SubType,
		Created:    time.Unix(int64(v.Created), 0).UTC(),
		Size:       len(v.Data),
		RawSize:    int(v.RawSize),
		Compressed: v.Flags.compression() != CompressionNone,
	}
}
