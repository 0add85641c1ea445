//go:build linux || darwin

// Package fileload opens an on-disk artifact read-only, mmap'ing it on
// platforms where that's available and falling back to a full read
// elsewhere. Adapted from the teacher's mmap-backed hive loader; this
// module never mutates the backing bytes, so there is no write-back or
// truncate path (event-log writing is a non-goal, spec §1).
package fileload

import (
	"fmt"
	"os"
	"syscall"
)

// File is a read-only, memory-mapped view of a file on disk.
type File struct {
	f    *os.File
	data []byte
}

// Open mmaps path read-only.
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

	data, err := syscall.Mmap(int(f.Fd()), 0, int(sz), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("fileload: mmap failed: %w", err)
	}

	return &File{f: f, data: data}, nil
}

// Bytes returns the mapped content. The slice is invalid after Close.
func (fl *File) Bytes() []byte { return fl.data }

// Close unmaps and closes the underlying file.
func (fl *File) Close() error {
	var err error
	if fl.data != nil {
		err = syscall.Munmap(fl.data)
		fl.data = nil
	}
	if fl.f != nil {
		if cerr := fl.f.Close(); err == nil {
			err = cerr
		}
		fl.f = nil
	}
	return err
}
