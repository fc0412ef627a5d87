package source

import (
	"fmt"
	"os"

	"github.com/jchantrell/otadump/internal/errdefs"
)

// File reads a local file through its handle.
type File struct {
	f    *os.File
	size int64
}

// OpenFile opens path for reading.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errdefs.IO(fmt.Errorf("opening %s: %w", path, err))
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errdefs.IO(fmt.Errorf("stat %s: %w", path, err))
	}

	return &File{f: f, size: info.Size()}, nil
}

func (s *File) Read(p []byte) (int, error) {
	n, err := s.f.Read(p)
	if err != nil && n == 0 {
		return 0, wrapEOF(err)
	}
	return n, nil
}

func (s *File) Seek(offset int64, whence int) (int64, error) {
	pos, err := s.f.Seek(offset, whence)
	if err != nil {
		return 0, errdefs.IO(err)
	}
	return pos, nil
}

func (s *File) Size() (int64, bool) {
	return s.size, true
}

func (s *File) Close() error {
	return s.f.Close()
}
