package calcify

import "fmt"

type ArchiveStats struct {
	Entries     int
	Trees       int
	FeedTrees   int
	Compressed  int
	RawSize     int
	StoredSize  int
	DataSize    int64
	DataAlloc   int64
	FileSize    int64
	LargestName string
	LargestSize int
}

// CompressionRatio returns RawSize/StoredSize, or 1 for an empty archive.
func (s *ArchiveStats) CompressionRatio() float64 {
	if s.StoredSize == 0 {
		return 1
	}
	return float64(s.RawSize) / float64(s.StoredSize)
}

func (a *Archive) Stats() (ArchiveStats, error) {
	var result ArchiveStats
	err := a.view(func(b entryBucket) error {
		if b == nil {
			return nil
		}
		bs := b.Stats()
		result.DataSize, result.DataAlloc, result.FileSize = bs.InUse, bs.Alloc, bs.FileSize

		c := b.Cursor()
		for k, data := c.First(); k != nil; k, data = c.Next() {
			var v archiveValue
			if err := v.decode(data); err != nil {
				return fmt.Errorf("entry %q: %w", k, detachDataError(err))
			}
			result.Entries++
			switch v.Kind {
			case KindTree:
				result.Trees++
			case KindFeedTree:
				result.FeedTrees++
			}
			if v.Flags.compression() != CompressionNone {
				result.Compressed++
			}
			result.RawSize += int(v.RawSize)
			result.StoredSize += len(v.Data)
			if int(v.RawSize) > result.LargestSize {
				result.LargestName, result.LargestSize = string(k), int(v.RawSize)
			}
		}
		return nil
	})
	return result, err
}
