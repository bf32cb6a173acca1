// Package mapfile maps an input file read-only into memory.
package mapfile

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// File the contents of a file, mapped or read into memory.
type File struct {
	Data   []byte
	mapped bool
}

// Open maps path read-only. When mapping is not possible, for example for
// an empty file or a pipe, the file is read instead.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat")
	}

	size := fi.Size()
	if size > 0 && fi.Mode().IsRegular() && int64(int(size)) == size {
		data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
		if err == nil {
			return &File{Data: data, mapped: true}, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read")
	}
	return &File{Data: data}, nil
}

// Close releases the mapping. Data must not be used afterwards.
func (f *File) Close() error {
	if !f.mapped {
		f.Data = nil
		return nil
	}
	err := unix.Munmap(f.Data)
	f.Data, f.mapped = nil, false
	return errors.Wrap(err, "munmap")
}
