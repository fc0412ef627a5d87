package zipfile

import "fmt"

// Method is a ZIP compression method.
type Method uint16

const (
	Store     Method = 0
	Shrink    Method = 1
	Implode   Method = 6
	Deflate   Method = 8
	Deflate64 Method = 9
	Bzip2     Method = 12
	LZMA      Method = 14
	Zstd      Method = 93
	XZ        Method = 95
)

func (m Method) String() string {
	switch m {
	case Store:
		return "stored"
	case Deflate:
		return "deflated"
	case Bzip2:
		return "bzip2"
	default:
		return fmt.Sprintf("unsupported(%d)", uint16(m))
	}
}

// Entry is one file of a ZIP container: its central directory record paired
// with the local file header found at the record's offset.
type Entry struct {
	Record CentralDirectoryRecord
	Header LocalFileHeader
}

// Name returns the filename recorded in the central directory.
func (e *Entry) Name() string {
	return string(e.Record.Filename)
}

// CompressedSize returns the number of data bytes stored in the container.
func (e *Entry) CompressedSize() int64 {
	return int64(e.Record.CompressedSize)
}

// UncompressedSize returns the size of the entry once decompressed.
func (e *Entry) UncompressedSize() int64 {
	return int64(e.Record.UncompressedSize)
}

// Method returns the compression method.
func (e *Entry) Method() Method {
	return Method(e.Record.Compression)
}

// IsCompressed reports whether the entry is stored with any method other than Store.
func (e *Entry) IsCompressed() bool {
	return e.Method() != Store
}

// DataOffset returns the absolute offset of the entry's data: the local
// header offset, plus the fixed header, plus the local header's own extra
// field and filename lengths.
func (e *Entry) DataOffset() int64 {
	return int64(e.Record.LocalFileHeaderOffset) +
		LocalFileHeaderSize +
		int64(len(e.Header.Extra)) +
		int64(len(e.Header.Filename))
}
