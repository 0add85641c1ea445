//go:build !linux && !darwin

package fileload

import (
	"fmt"
	"io"
	"os"
)

// File is a read-only, in-memory view of a file on disk.
type File struct {
	f    *os.File
	data []byte
}

// Open reads path fully into memory on platforms without mmap support.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	sz := st.Size()
	if sz == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("fileload: empty file: %s", path)
	}

	buf := make([]byte, sz)
	if _, err := io.ReadFull(f, buf); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &File{f: f, data: buf}, nil
}

// Bytes returns the loaded content.
func (fl *File) Bytes() []byte { return fl.data }

// Close closes the underlying file.
func (fl *File) Close() error {
	fl.data = nil
	if fl.f != nil {
		err := fl.f.Close()
		fl.f = nil
		return err
	}
	return nil
}
