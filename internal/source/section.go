package source

import (
	"io"
)

// Section is a window [off, off+n) of another source. It positions the
// parent before every read, so the parent must not be read concurrently.
type Section struct {
	parent Source
	off    int64
	n      int64
	pos    int64
}

// NewSection returns a view of n bytes of parent starting at off.
func NewSection(parent Source, off, n int64) *Section {
	return &Section{parent: parent, off: off, n: n}
}

func (s *Section) Read(p []byte) (int, error) {
	if s.pos >= s.n {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	if remaining := s.n - s.pos; int64(len(p)) > remaining {
		p = p[:remaining]
	}

	if _, err := s.parent.Seek(s.off+s.pos, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := s.parent.Read(p)
	s.pos += int64(n)
	return n, err
}

func (s *Section) Seek(offset int64, whence int) (int64, error) {
	pos, err := resolveSeek(s.pos, s.n, true, offset, whence)
	if err != nil {
		return 0, err
	}
	s.pos = pos
	return pos, nil
}

// Offset returns the absolute offset of the window in the parent.
func (s *Section) Offset() int64 {
	return s.off
}

func (s *Section) Size() (int64, bool) {
	return s.n, true
}

// Close is a no-op; the parent stays owned by whoever opened it.
func (s *Section) Close() error {
	return nil
}
