package zipfile

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/otadump/internal/errdefs"
	"github.com/jchantrell/otadump/internal/source"
)

type testEntry struct {
	name   string
	data   []byte
	method uint16
}

func buildZip(t *testing.T, entries []testEntry, comment string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: e.method})
		require.NoError(t, err)
		_, err = w.Write(e.data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.SetComment(comment))
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func openBytes(t *testing.T, data []byte) source.Source {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ota.zip")
	require.NoError(t, os.WriteFile(path, data, 0644))
	src, err := source.OpenFile(path)
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })
	return src
}

func sampleEntries() []testEntry {
	return []testEntry{
		{name: "META-INF/com/android/metadata", data: []byte("ota-type=AB\n"), method: zip.Deflate},
		{name: "care_map.pb", data: []byte("care map"), method: zip.Store},
		{name: "payload.bin", data: []byte("CrAU payload bytes"), method: zip.Store},
	}
}

func TestFindEOCD(t *testing.T) {
	data := buildZip(t, sampleEntries(), "signed by test")
	src := openBytes(t, data)

	eocd, err := FindEOCD(src)
	require.NoError(t, err)

	assert.Equal(t, int64(len(data)-22-len("signed by test")), eocd.Offset)
	assert.Equal(t, uint16(3), eocd.NumRecords)
	assert.Equal(t, uint16(3), eocd.TotalRecords)
	assert.Equal(t, "signed by test", string(eocd.Comment))
}

func TestFindEOCDLargeContainer(t *testing.T) {
	big := bytes.Repeat([]byte{0xAB}, 200*1024)
	data := buildZip(t, []testEntry{{name: "payload.bin", data: big, method: zip.Store}}, "")
	src := openBytes(t, data)

	eocd, err := FindEOCD(src)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)-22), eocd.Offset)
}

func TestFindEOCDNotAZip(t *testing.T) {
	src := openBytes(t, bytes.Repeat([]byte("not a zip "), 100))

	_, err := FindEOCD(src)
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrFormat)
}

func TestFindEOCDTruncatedRecord(t *testing.T) {
	data := buildZip(t, sampleEntries(), "")
	src := openBytes(t, data[:len(data)-10])

	_, err := FindEOCD(src)
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrFormat)
}

func TestReaderEntries(t *testing.T) {
	entries := sampleEntries()
	data := buildZip(t, entries, "")
	src := openBytes(t, data)

	zr, err := NewReader(src)
	require.NoError(t, err)
	require.Len(t, zr.Records(), len(entries))

	ref, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	var got []*Entry
	for e := range zr.All() {
		got = append(got, e)
	}
	require.Len(t, got, len(entries))

	for i, e := range got {
		assert.Equal(t, entries[i].name, e.Name())
		assert.Equal(t, Method(entries[i].method), e.Method())
		assert.Equal(t, entries[i].method != zip.Store, e.IsCompressed())
		assert.Equal(t, int64(len(entries[i].data)), e.UncompressedSize())

		wantOffset, err := ref.File[i].DataOffset()
		require.NoError(t, err)
		assert.Equal(t, wantOffset, e.DataOffset(), "data offset of %s", e.Name())
	}
}

func TestReaderFind(t *testing.T) {
	data := buildZip(t, sampleEntries(), "")
	zr, err := NewReader(openBytes(t, data))
	require.NoError(t, err)

	entry, err := zr.Find("payload.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(len("CrAU payload bytes")), entry.CompressedSize())

	buffered, err := zr.ReadAll(entry)
	require.NoError(t, err)
	assert.Equal(t, "CrAU payload bytes", string(buffered))

	streamed, err := io.ReadAll(zr.Open(entry))
	require.NoError(t, err)
	assert.Equal(t, "CrAU payload bytes", string(streamed))

	_, err = zr.Find("missing.bin")
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestEntriesSkipsUnreadableEntry(t *testing.T) {
	data := buildZip(t, sampleEntries(), "")
	// Break the local header signature of the first entry.
	data[0] = 0

	zr, err := NewReader(openBytes(t, data))
	require.NoError(t, err)

	it := zr.Entries()
	var names []string
	for it.Next() {
		names = append(names, it.Entry().Name())
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []string{"care_map.pb", "payload.bin"}, names)
	assert.Equal(t, 1, it.Skipped())
	assert.Equal(t, 3, it.Index())

	entry, err := zr.Find("payload.bin")
	require.NoError(t, err)
	assert.Equal(t, "payload.bin", entry.Name())
}

func TestNewReaderBadCentralDirectory(t *testing.T) {
	data := buildZip(t, sampleEntries(), "")
	eocdOffset := len(data) - 22
	cdOffset := binary.LittleEndian.Uint32(data[eocdOffset+16:])
	data[cdOffset] = 0

	_, err := NewReader(openBytes(t, data))
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrFormat)
}

func TestDataOffsetUsesLocalHeaderLengths(t *testing.T) {
	e := &Entry{
		Record: CentralDirectoryRecord{
			LocalFileHeaderOffset: 100,
			Filename:              []byte("payload.bin"),
		},
		Header: LocalFileHeader{
			Filename: []byte("payload.bin"),
			Extra:    make([]byte, 8),
		},
	}
	assert.Equal(t, int64(100+30+8+len("payload.bin")), e.DataOffset())
}

func TestMethodString(t *testing.T) {
	tests := []struct {
		method Method
		want   string
	}{
		{Store, "stored"},
		{Deflate, "deflated"},
		{Bzip2, "bzip2"},
		{LZMA, "unsupported(14)"},
		{Method(99), "unsupported(99)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.method.String())
	}
}
