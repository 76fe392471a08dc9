package bitmapindex

import (
	"fmt"
	"io"

	"golang.org/x/exp/mmap"
)

// LoadIndexMapped reopens an index file the same way LoadIndex does, but
// through a memory-mapped ReaderAt instead of a buffered os.File. LoadIndex
// still decodes every entry, so the whole mapped file is read once.
func LoadIndexMapped(path string) (Index, error) {
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bitmapindex: mmap open %s: %w", path, err)
	}
	defer ra.Close()
	return LoadIndex(io.NewSectionReader(ra, 0, int64(ra.Len())))
}
