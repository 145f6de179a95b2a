package calcify

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/calcify-go/calcify/mmap"
)

// Format is one of the three encodings of a container.
type Format uint8

const (
	FormatBinary Format = iota
	FormatText
	FormatTextCompact
)

func (f Format) String() string {
	switch f {
	case FormatBinary:
		return "binary"
	case FormatText:
		return "text"
	case FormatTextCompact:
		return "text-compact"
	default:
		return fmt.Sprintf("Format(%d)", uint8(f))
	}
}

// ParseFormat accepts the names printed by Format.String, plus "json",
// "jsonc" and "msgpack".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "binary", "msgpack", "bin":
		return FormatBinary, nil
	case "text", "json":
		return FormatText, nil
	case "text-compact", "jsonc", "compact":
		return FormatTextCompact, nil
	default:
		return 0, fmt.Errorf("unknown format %q", s)
	}
}

// FileFormat is how a container is laid out in a file.
type FileFormat struct {
	Format      Format
	Compression Compression
}

func (ff FileFormat) String() string {
	if ff.Compression == CompressionNone {
		return ff.Format.String()
	}
	return ff.Format.String() + "+" + ff.Compression.String()
}

// FormatOf guesses the file format from the path: a trailing .zst or .lz4
// selects compression, then .json means verbose text, .jsonc compact text,
// and anything else binary.
func FormatOf(path string) FileFormat {
	var ff FileFormat
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".zst":
		ff.Compression = CompressionZstd
	case ".lz4":
		ff.Compression = CompressionLZ4
	}
	if ff.Compression != CompressionNone {
		path = strings.TrimSuffix(path, filepath.Ext(path))
		ext = strings.ToLower(filepath.Ext(path))
	}
	switch ext {
	case ".json":
		ff.Format = FormatText
	case ".jsonc":
		ff.Format = FormatTextCompact
	default:
		ff.Format = FormatBinary
	}
	return ff
}

// Encode returns r in the given format.
func Encode(r Record, f Format) ([]byte, error) {
	switch f {
	case FormatBinary:
		return EncodeBinary(r)
	case FormatText:
		return r.AppendJSON(nil), nil
	case FormatTextCompact:
		return r.AppendJSONCompact(nil), nil
	default:
		panic(fmt.Errorf("unknown %v", f))
	}
}

// WriteFile encodes r in the format FormatOf(path) selects and writes it to
// path.
func WriteFile(path string, r Record) error {
	return writeRecord(path, r, FormatOf(path))
}

func (t *Tree) WriteText(path string) error {
	return writeRecord(path, t, FileFormat{FormatText, FormatOf(path).Compression})
}

func (t *Tree) WriteTextCompact(path string) error {
	return writeRecord(path, t, FileFormat{FormatTextCompact, FormatOf(path).Compression})
}

func (t *Tree) WriteBinary(path string) error {
	return writeRecord(path, t, FileFormat{FormatBinary, FormatOf(path).Compression})
}

func (ft *FeedTree[T]) WriteText(path string) error {
	return writeRecord(path, ft, FileFormat{FormatText, FormatOf(path).Compression})
}

func (ft *FeedTree[T]) WriteTextCompact(path string) error {
	return writeRecord(path, ft, FileFormat{FormatTextCompact, FormatOf(path).Compression})
}

func (ft *FeedTree[T]) WriteBinary(path string) error {
	return writeRecord(path, ft, FileFormat{FormatBinary, FormatOf(path).Compression})
}

func writeRecord(path string, r Record, ff FileFormat) error {
	data, err := Encode(r, ff.Format)
	if err != nil {
		return err
	}
	data, err = compress(data, ff.Compression)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic replaces path with data: readers see either the old
// contents or the new ones, never a partial write.
func writeFileAtomic(path string, data []byte) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()
	if _, err = f.Write(data); err != nil {
		return err
	}
	if err = mmap.Fdatasync(f); err != nil {
		return fmt.Errorf("fdatasync %s: %w", tmp, err)
	}
	if err = f.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// readFile calls decode with the decompressed contents of path.
// Uncompressed files are memory-mapped, so decode must not retain data.
func readFile(path string, c Compression, decode func(data []byte) error) error {
	var err error
	if c == CompressionNone {
		var mf *mmap.File
		mf, err = mmap.Open(path, mmap.SequentialAccess)
		if err != nil {
			return err
		}
		err = decode(mf.Bytes())
		err = detachDataError(err)
		if cerr := mf.Close(); err == nil {
			err = cerr
		}
	} else {
		var raw []byte
		raw, err = os.ReadFile(path)
		if err != nil {
			return err
		}
		raw, err = decompress(raw, c)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		err = decode(raw)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// detachDataError copies the input a DataError points into, so that the
// error outlives the mapping.
func detachDataError(err error) error {
	var de *DataError
	if errors.As(err, &de) && de.Data != nil {
		de.Data = append([]byte(nil), de.Data...)
	}
	return err
}

func readTree(path string, ff FileFormat) (*Tree, error) {
	var t *Tree
	err := readFile(path, ff.Compression, func(data []byte) error {
		var err error
		if ff.Format == FormatBinary {
			t, err = DecodeTreeBinary(data)
		} else {
			t, err = DecodeTreeText(string(data))
		}
		return err
	})
	return t, err
}

// ReadTree reads a Tree in the format FormatOf(path) selects.
func ReadTree(path string) (*Tree, error) {
	return readTree(path, FormatOf(path))
}

// ReadTreeText reads a Tree written by WriteText or WriteTextCompact.
func ReadTreeText(path string) (*Tree, error) {
	return readTree(path, FileFormat{FormatText, FormatOf(path).Compression})
}

func ReadTreeBinary(path string) (*Tree, error) {
	return readTree(path, FileFormat{FormatBinary, FormatOf(path).Compression})
}

func readFeedTree[T Record, PT Decodable[T]](path string, ff FileFormat) (*FeedTree[T], error) {
	var ft *FeedTree[T]
	err := readFile(path, ff.Compression, func(data []byte) error {
		var err error
		if ff.Format == FormatBinary {
			ft, err = DecodeFeedTreeBinary[T, PT](data)
		} else {
			ft, err = DecodeFeedTreeText[T, PT](string(data))
		}
		return err
	})
	return ft, err
}

func ReadFeedTree[T Record, PT Decodable[T]](path string) (*FeedTree[T], error) {
	return readFeedTree[T, PT](path, FormatOf(path))
}

func ReadFeedTreeText[T Record, PT Decodable[T]](path string) (*FeedTree[T], error) {
	return readFeedTree[T, PT](path, FileFormat{FormatText, FormatOf(path).Compression})
}

func ReadFeedTreeBinary[T Record, PT Decodable[T]](path string) (*FeedTree[T], error) {
	return readFeedTree[T, PT](path, FileFormat{FormatBinary, FormatOf(path).Compression})
}
