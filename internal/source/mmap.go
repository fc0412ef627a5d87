package source

import (
	"fmt"
	"io"

	"github.com/jchantrell/otadump/internal/errdefs"
	"golang.org/x/exp/mmap"
)

// Mmap reads a memory-mapped local file. Reads are bounds-checked copies out
// of the mapping. Seeking past the end is allowed and fails on the next read.
type Mmap struct {
	r   *mmap.ReaderAt
	pos int64
}

// OpenMmap maps path read-only.
func OpenMmap(path string) (*Mmap, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, errdefs.IO(fmt.Errorf("mmap %s: %w", path, err))
	}
	return &Mmap{r: r}, nil
}

func (s *Mmap) Read(p []byte) (int, error) {
	size := int64(s.r.Len())
	if s.pos > size {
		return 0, errdefs.IOf("read at %d: beyond mapped length %d", s.pos, size)
	}
	if s.pos == size {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}

	n, err := s.r.ReadAt(p, s.pos)
	s.pos += int64(n)
	if n > 0 {
		return n, nil
	}
	return 0, wrapEOF(err)
}

func (s *Mmap) Seek(offset int64, whence int) (int64, error) {
	pos, err := resolveSeek(s.pos, int64(s.r.Len()), true, offset, whence)
	if err != nil {
		return 0, err
	}
	s.pos = pos
	return pos, nil
}

func (s *Mmap) Size() (int64, bool) {
	return int64(s.r.Len()), true
}

func (s *Mmap) Close() error {
	return s.r.Close()
}
