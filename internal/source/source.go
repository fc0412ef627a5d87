// Package source provides random access to the bytes of an update package.
//
// A Source is a cursor over bytes that can seek and read. The same parsing
// code runs over a local file, a memory-mapped file or a remote file read
// through HTTP range requests, selected once by Open and owned by a single
// reader for the rest of the run.
package source

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jchantrell/otadump/internal/errdefs"
	"github.com/jchantrell/otadump/internal/utils"
)

// Source is a seekable byte stream with an optionally known length.
type Source interface {
	io.Reader
	io.Seeker
	io.Closer

	// Size returns the total length and whether it is known.
	Size() (int64, bool)
}

// Options controls how Open selects and wraps a Source.
type Options struct {
	// Mmap memory-maps local files instead of reading them through the file handle.
	Mmap bool

	// BufferSize is the block size of the read cache. Zero disables buffering.
	BufferSize int

	// CacheBlocks is the number of blocks the read cache keeps.
	CacheBlocks int

	// HTTP options for remote sources.
	HTTP []HTTPOption
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		Mmap:        false,
		BufferSize:  DefaultBlockSize,
		CacheBlocks: DefaultCacheBlocks,
	}
}

// Open opens the source named by path. http:// and https:// URLs are read
// through range requests; anything else is a local file.
func Open(path string, opts Options) (Source, error) {
	var (
		src Source
		err error
	)

	switch {
	case utils.IsRemote(path):
		slog.Debug("Opening remote source", "url", path)
		src, err = NewHTTP(path, opts.HTTP...)
	case opts.Mmap:
		slog.Debug("Opening memory-mapped source", "path", path)
		src, err = OpenMmap(path)
	default:
		slog.Debug("Opening file source", "path", path)
		src, err = OpenFile(path)
	}
	if err != nil {
		return nil, err
	}

	if opts.BufferSize > 0 {
		buffered, err := NewBuffered(src, opts.BufferSize, opts.CacheBlocks)
		if err != nil {
			src.Close()
			return nil, err
		}
		return buffered, nil
	}

	return src, nil
}

// ReadExact reads exactly n bytes from r. Anything less is an ErrIO failure.
func ReadExact(r io.Reader, n int) ([]byte, error) {
	if n < 0 {
		return nil, errdefs.IOf("read of %d bytes: negative length", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errdefs.IO(fmt.Errorf("reading %d bytes: %w", n, err))
	}
	return buf, nil
}

// Exists reports whether a local path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}

// resolveSeek computes the new absolute position for a seek request.
func resolveSeek(pos, size int64, sizeKnown bool, offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = pos + offset
	case io.SeekEnd:
		if !sizeKnown {
			return 0, errdefs.IOf("seek relative to end: total length unknown")
		}
		abs = size + offset
	default:
		return 0, errdefs.IOf("seek: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, errdefs.IOf("seek to %d: negative position", abs)
	}
	return abs, nil
}

// wrapEOF classifies read errors, passing io.EOF through untouched so that
// io.ReadFull and friends still recognise the end of the stream.
func wrapEOF(err error) error {
	if err == io.EOF {
		return err
	}
	return errdefs.IO(err)
}
