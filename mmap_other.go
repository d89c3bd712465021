//go:build !unix && !windows

package rustval

import (
	"io"
	"os"
)

// mmap reads the whole file on platforms without memory mapping.
func mmap(f *os.File, length int) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, int64(length)), buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func munmap([]byte) error {
	return nil
}
