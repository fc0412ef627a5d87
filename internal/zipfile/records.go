package zipfile

import (
	"encoding/binary"
	"fmt"
)

const (
	localFileHeaderSignature  = 0x04034b50
	centralDirectorySignature = 0x02014b50
	eocdSignature             = 0x06054b50

	// LocalFileHeaderSize is the fixed part of a local file header.
	LocalFileHeaderSize = 30

	// eocdSearchWindow bounds the EOCD search to the tail of the container.
	eocdSearchWindow = 64 * 1024
)

var eocdMagic = []byte{0x50, 0x4b, 0x05, 0x06}

// EndOfCentralDirectory is the trailer that anchors a ZIP container's index.
type EndOfCentralDirectory struct {
	// Offset is the absolute position of the record in the container.
	Offset int64

	DiskNumber             uint16
	CentralDirectoryDisk   uint16
	NumRecords             uint16 // records on this disk
	TotalRecords           uint16
	CentralDirectorySize   uint32
	CentralDirectoryOffset uint32
	Comment                []byte
}

// CentralDirectoryRecord is one entry of the central directory.
type CentralDirectoryRecord struct {
	VersionMadeBy         uint16
	VersionNeeded         uint16
	Flags                 uint16
	Compression           uint16
	ModTime               uint16
	ModDate               uint16
	CRC32                 uint32
	CompressedSize        uint32
	UncompressedSize      uint32
	DiskNumberStart       uint16
	InternalAttributes    uint16
	ExternalAttributes    uint32
	LocalFileHeaderOffset uint32
	Filename              []byte
	Extra                 []byte
	Comment               []byte
}

// LocalFileHeader precedes an entry's data. Its filename and extra field
// lengths may differ from the central directory copy.
type LocalFileHeader struct {
	VersionNeeded    uint16
	Flags            uint16
	Compression      uint16
	ModTime          uint16
	ModDate          uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	Filename         []byte
	Extra            []byte
}

// fieldReader reads little-endian fields from a buffer. The first read past
// the end of the buffer sets err and every later read returns zero values.
type fieldReader struct {
	buf []byte
	off int
	err error
}

func (r *fieldReader) need(n int, what string) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || len(r.buf)-r.off < n {
		r.err = fmt.Errorf("%s: need %d bytes at offset %d, have %d", what, n, r.off, len(r.buf)-r.off)
		return false
	}
	return true
}

func (r *fieldReader) u16(what string) uint16 {
	if !r.need(2, what) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *fieldReader) u32(what string) uint32 {
	if !r.need(4, what) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *fieldReader) bytes(n int, what string) []byte {
	if !r.need(n, what) {
		return nil
	}
	b := make([]byte, n)
	copy(b, r.buf[r.off:r.off+n])
	r.off += n
	return b
}

func (r *fieldReader) signature(want uint32, what string) {
	if got := r.u32(what + " signature"); r.err == nil && got != want {
		r.err = fmt.Errorf("%s: bad signature 0x%08x, want 0x%08x", what, got, want)
	}
}

// parseEOCD parses the record starting at buf[0], which must hold the signature.
func parseEOCD(buf []byte) (EndOfCentralDirectory, error) {
	r := &fieldReader{buf: buf}
	var e EndOfCentralDirectory

	r.signature(eocdSignature, "end of central directory")
	e.DiskNumber = r.u16("disk number")
	e.CentralDirectoryDisk = r.u16("central directory disk")
	e.NumRecords = r.u16("record count")
	e.TotalRecords = r.u16("total record count")
	e.CentralDirectorySize = r.u32("central directory size")
	e.CentralDirectoryOffset = r.u32("central directory offset")
	commentLen := r.u16("comment length")
	e.Comment = r.bytes(int(commentLen), "comment")

	return e, r.err
}

// parseCentralDirectoryRecord parses one record and advances r past it.
func parseCentralDirectoryRecord(r *fieldReader) (CentralDirectoryRecord, error) {
	var c CentralDirectoryRecord

	r.signature(centralDirectorySignature, "central directory record")
	c.VersionMadeBy = r.u16("version made by")
	c.VersionNeeded = r.u16("version needed")
	c.Flags = r.u16("flags")
	c.Compression = r.u16("compression")
	c.ModTime = r.u16("modification time")
	c.ModDate = r.u16("modification date")
	c.CRC32 = r.u32("crc-32")
	c.CompressedSize = r.u32("compressed size")
	c.UncompressedSize = r.u32("uncompressed size")
	filenameLen := r.u16("filename length")
	extraLen := r.u16("extra length")
	commentLen := r.u16("comment length")
	c.DiskNumberStart = r.u16("disk number start")
	c.InternalAttributes = r.u16("internal attributes")
	c.ExternalAttributes = r.u32("external attributes")
	c.LocalFileHeaderOffset = r.u32("local file header offset")
	c.Filename = r.bytes(int(filenameLen), "filename")
	c.Extra = r.bytes(int(extraLen), "extra field")
	c.Comment = r.bytes(int(commentLen), "comment")

	return c, r.err
}

// parseLocalFileHeaderFixed parses the fixed 30-byte part of a local file
// header and returns the filename and extra field lengths that follow it.
func parseLocalFileHeaderFixed(buf []byte) (LocalFileHeader, int, int, error) {
	r := &fieldReader{buf: buf}
	var h LocalFileHeader

	r.signature(localFileHeaderSignature, "local file header")
	h.VersionNeeded = r.u16("version needed")
	h.Flags = r.u16("flags")
	h.Compression = r.u16("compression")
	h.ModTime = r.u16("modification time")
	h.ModDate = r.u16("modification date")
	h.CRC32 = r.u32("crc-32")
	h.CompressedSize = r.u32("compressed size")
	h.UncompressedSize = r.u32("uncompressed size")
	filenameLen := r.u16("filename length")
	extraLen := r.u16("extra length")

	return h, int(filenameLen), int(extraLen), r.err
}
