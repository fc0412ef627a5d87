// Package zipfile reads just enough of a ZIP container to find entries and
// the byte range of their data. It never decompresses anything.
package zipfile

import (
	"bytes"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/jchantrell/otadump/internal/errdefs"
	"github.com/jchantrell/otadump/internal/source"
)

// Reader holds the parsed index of a ZIP container.
type Reader struct {
	src     source.Source
	eocd    EndOfCentralDirectory
	records []CentralDirectoryRecord
}

// FindEOCD locates the end of central directory record in the last
// min(size, 64 KiB) bytes of src. The first signature match in that window
// wins, so a comment that contains the signature ahead of the real record
// makes the container unreadable.
func FindEOCD(src source.Source) (EndOfCentralDirectory, error) {
	size, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return EndOfCentralDirectory{}, fmt.Errorf("sizing container: %w", err)
	}

	window := min(size, eocdSearchWindow)
	start := size - window
	if _, err := src.Seek(start, io.SeekStart); err != nil {
		return EndOfCentralDirectory{}, fmt.Errorf("seeking to last %d bytes: %w", window, err)
	}
	chunk, err := source.ReadExact(src, int(window))
	if err != nil {
		return EndOfCentralDirectory{}, fmt.Errorf("reading last %d bytes: %w", window, err)
	}

	idx := bytes.Index(chunk, eocdMagic)
	if idx < 0 {
		return EndOfCentralDirectory{}, errdefs.Format("not a ZIP container: no end of central directory record in last %d bytes", window)
	}

	eocd, err := parseEOCD(chunk[idx:])
	if err != nil {
		return EndOfCentralDirectory{}, errdefs.Format("end of central directory at %d: %w", start+int64(idx), err)
	}
	eocd.Offset = start + int64(idx)

	return eocd, nil
}

// NewReader locates and parses the central directory of src. The source must
// know its length.
func NewReader(src source.Source) (*Reader, error) {
	eocd, err := FindEOCD(src)
	if err != nil {
		return nil, err
	}

	slog.Debug("Found end of central directory",
		"offset", eocd.Offset,
		"records", eocd.NumRecords,
		"cd_offset", eocd.CentralDirectoryOffset,
		"cd_size", eocd.CentralDirectorySize)

	if _, err := src.Seek(int64(eocd.CentralDirectoryOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking to central directory: %w", err)
	}
	data, err := source.ReadExact(src, int(eocd.CentralDirectorySize))
	if err != nil {
		return nil, fmt.Errorf("reading central directory: %w", err)
	}

	fr := &fieldReader{buf: data}
	records := make([]CentralDirectoryRecord, 0, eocd.NumRecords)
	for i := 0; i < int(eocd.NumRecords); i++ {
		rec, err := parseCentralDirectoryRecord(fr)
		if err != nil {
			return nil, errdefs.Format("central directory record %d: %w", i, err)
		}
		records = append(records, rec)
	}

	return &Reader{
		src:     src,
		eocd:    eocd,
		records: records,
	}, nil
}

// EOCD returns the end of central directory record.
func (r *Reader) EOCD() EndOfCentralDirectory {
	return r.eocd
}

// Records returns the parsed central directory.
func (r *Reader) Records() []CentralDirectoryRecord {
	return r.records
}

// Entries starts a new pass over the container's entries.
func (r *Reader) Entries() *Entries {
	it := &Entries{r: r}
	if _, err := r.src.Seek(int64(r.eocd.CentralDirectoryOffset), io.SeekStart); err != nil {
		it.err = fmt.Errorf("seeking to central directory: %w", err)
	}
	return it
}

// All returns the entries of a fresh pass as an iterator.
func (r *Reader) All() iter.Seq[*Entry] {
	return func(yield func(*Entry) bool) {
		it := r.Entries()
		for it.Next() {
			if !yield(it.Entry()) {
				return
			}
		}
	}
}

// Find returns the first entry named name.
func (r *Reader) Find(name string) (*Entry, error) {
	it := r.Entries()
	for it.Next() {
		if it.Entry().Name() == name {
			return it.Entry(), nil
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return nil, errdefs.NotFound("%s not found in container", name)
}

// Open returns a source over the entry's stored bytes.
func (r *Reader) Open(e *Entry) *source.Section {
	return source.NewSection(r.src, e.DataOffset(), e.CompressedSize())
}

// ReadAll copies the entry's stored bytes into memory.
func (r *Reader) ReadAll(e *Entry) ([]byte, error) {
	if _, err := r.src.Seek(e.DataOffset(), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking to data of %s: %w", e.Name(), err)
	}
	data, err := source.ReadExact(r.src, int(e.CompressedSize()))
	if err != nil {
		return nil, fmt.Errorf("reading data of %s: %w", e.Name(), err)
	}
	return data, nil
}

// readEntry reads the local file header of rec.
func (r *Reader) readEntry(rec CentralDirectoryRecord) (*Entry, error) {
	if _, err := r.src.Seek(int64(rec.LocalFileHeaderOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking to local file header: %w", err)
	}

	fixed, err := source.ReadExact(r.src, LocalFileHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("reading local file header: %w", err)
	}
	hdr, filenameLen, extraLen, err := parseLocalFileHeaderFixed(fixed)
	if err != nil {
		return nil, errdefs.Format("%w", err)
	}

	variable, err := source.ReadExact(r.src, filenameLen+extraLen)
	if err != nil {
		return nil, fmt.Errorf("reading local file name and extra field: %w", err)
	}
	hdr.Filename = variable[:filenameLen]
	hdr.Extra = variable[filenameLen:]

	if filenameLen != len(rec.Filename) || extraLen != len(rec.Extra) {
		slog.Debug("Local header lengths differ from central directory",
			"name", string(rec.Filename),
			"local_filename_len", filenameLen,
			"local_extra_len", extraLen,
			"cd_filename_len", len(rec.Filename),
			"cd_extra_len", len(rec.Extra))
	}

	return &Entry{Record: rec, Header: hdr}, nil
}

// Entries walks the central directory one record at a time. Each step seeks
// to one local file header. Records whose header cannot be read are logged
// and skipped. A pass cannot be restarted; call Reader.Entries again.
type Entries struct {
	r       *Reader
	idx     int
	cur     *Entry
	skipped int
	err     error
}

// Next advances to the next readable entry.
func (it *Entries) Next() bool {
	it.cur = nil
	for it.err == nil && it.idx < len(it.r.records) {
		rec := it.r.records[it.idx]
		it.idx++

		entry, err := it.r.readEntry(rec)
		if err != nil {
			it.skipped++
			slog.Warn("Skipping ZIP entry",
				"name", string(rec.Filename),
				"offset", rec.LocalFileHeaderOffset,
				"error", err)
			continue
		}

		it.cur = entry
		return true
	}
	return false
}

// Entry returns the current entry.
func (it *Entries) Entry() *Entry {
	return it.cur
}

// Index returns the number of central directory records consumed so far.
func (it *Entries) Index() int {
	return it.idx
}

// Skipped returns how many records were skipped.
func (it *Entries) Skipped() int {
	return it.skipped
}

// Err returns the error that stopped the pass, if any. Skipped records are
// not errors.
func (it *Entries) Err() error {
	return it.err
}
