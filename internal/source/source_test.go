package source

import (
	"bytes"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/otadump/internal/errdefs"
)

// memSource is an in-memory Source that counts reads.
type memSource struct {
	*bytes.Reader
	reads  int
	closed bool
}

func newMemSource(data []byte) *memSource {
	return &memSource{Reader: bytes.NewReader(data)}
}

func (m *memSource) Read(p []byte) (int, error) {
	m.reads++
	return m.Reader.Read(p)
}

func (m *memSource) Size() (int64, bool) {
	return m.Reader.Size(), true
}

func (m *memSource) Close() error {
	m.closed = true
	return nil
}

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestResolveSeek(t *testing.T) {
	tests := []struct {
		name      string
		pos       int64
		size      int64
		sizeKnown bool
		offset    int64
		whence    int
		want      int64
		wantErr   bool
	}{
		{name: "start", pos: 5, size: 10, sizeKnown: true, offset: 3, whence: io.SeekStart, want: 3},
		{name: "current", pos: 5, size: 10, sizeKnown: true, offset: -2, whence: io.SeekCurrent, want: 3},
		{name: "end", pos: 0, size: 10, sizeKnown: true, offset: -4, whence: io.SeekEnd, want: 6},
		{name: "past end", pos: 0, size: 10, sizeKnown: true, offset: 20, whence: io.SeekStart, want: 20},
		{name: "end unknown size", pos: 0, size: -1, sizeKnown: false, offset: 0, whence: io.SeekEnd, wantErr: true},
		{name: "negative", pos: 2, size: 10, sizeKnown: true, offset: -3, whence: io.SeekCurrent, wantErr: true},
		{name: "bad whence", pos: 0, size: 10, sizeKnown: true, offset: 0, whence: 7, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveSeek(tt.pos, tt.size, tt.sizeKnown, tt.offset, tt.whence)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errdefs.ErrIO)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadExact(t *testing.T) {
	data, err := ReadExact(bytes.NewReader([]byte("abcdef")), 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), data)

	_, err = ReadExact(bytes.NewReader([]byte("ab")), 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrIO)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFileSource(t *testing.T) {
	data := []byte("hello world")
	src, err := OpenFile(writeTempFile(t, data))
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })

	size, ok := src.Size()
	assert.True(t, ok)
	assert.Equal(t, int64(len(data)), size)

	_, err = src.Seek(6, io.SeekStart)
	require.NoError(t, err)
	got, err := ReadExact(src, 5)
	require.NoError(t, err)
	assert.Equal(t, "world", string(got))

	n, err := src.Read(make([]byte, 4))
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
}

func TestOpenFileMissing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "missing.bin"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrIO)
}

func TestMmapSource(t *testing.T) {
	data := []byte("hello world")
	src, err := OpenMmap(writeTempFile(t, data))
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })

	pos, err := src.Seek(-5, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos)

	got, err := ReadExact(src, 5)
	require.NoError(t, err)
	assert.Equal(t, "world", string(got))

	n, err := src.Read(make([]byte, 1))
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)

	_, err = src.Seek(100, io.SeekStart)
	require.NoError(t, err)
	_, err = src.Read(make([]byte, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrIO)
}

func TestSection(t *testing.T) {
	parent := newMemSource([]byte("0123456789"))
	sec := NewSection(parent, 3, 4)

	assert.Equal(t, int64(3), sec.Offset())
	size, ok := sec.Size()
	assert.True(t, ok)
	assert.Equal(t, int64(4), size)

	all, err := io.ReadAll(sec)
	require.NoError(t, err)
	assert.Equal(t, "3456", string(all))

	_, err = sec.Seek(2, io.SeekStart)
	require.NoError(t, err)
	buf := make([]byte, 10)
	n, err := sec.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "56", string(buf[:n]))

	n, err = sec.Read(buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)

	require.NoError(t, sec.Close())
	assert.False(t, parent.closed)
}

func TestBufferedMatchesParent(t *testing.T) {
	data := make([]byte, 10_000)
	rng := rand.New(rand.NewSource(1))
	rng.Read(data)

	src, err := NewBuffered(newMemSource(data), 512, 4)
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })

	for i := 0; i < 200; i++ {
		off := rng.Int63n(int64(len(data)))
		n := rng.Intn(3000) + 1
		if rem := len(data) - int(off); n > rem {
			n = rem
		}

		_, err := src.Seek(off, io.SeekStart)
		require.NoError(t, err)
		got, err := ReadExact(src, n)
		require.NoError(t, err)
		require.Equal(t, data[off:off+int64(n)], got, "read of %d bytes at %d", n, off)
	}
}

func TestBufferedCachesBlocks(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 4096)
	parent := newMemSource(data)

	src, err := NewBuffered(parent, 1024, 2)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := src.Seek(int64(i*10), io.SeekStart)
		require.NoError(t, err)
		_, err = ReadExact(src, 8)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, parent.reads)

	_, err = src.Seek(0, io.SeekEnd)
	require.NoError(t, err)
	n, err := src.Read(make([]byte, 1))
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)

	require.NoError(t, src.Close())
	assert.True(t, parent.closed)
}

func TestOpenLocal(t *testing.T) {
	path := writeTempFile(t, []byte("payload"))

	tests := []struct {
		name string
		opts Options
		want any
	}{
		{name: "file", opts: Options{}, want: &File{}},
		{name: "mmap", opts: Options{Mmap: true}, want: &Mmap{}},
		{name: "buffered", opts: DefaultOptions(), want: &Buffered{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := Open(path, tt.opts)
			require.NoError(t, err)
			t.Cleanup(func() { src.Close() })

			assert.IsType(t, tt.want, src)
			got, err := io.ReadAll(src)
			require.NoError(t, err)
			assert.Equal(t, "payload", string(got))
		})
	}
}

func TestExists(t *testing.T) {
	path := writeTempFile(t, []byte("x"))
	assert.True(t, Exists(path))
	assert.False(t, Exists(filepath.Join(t.TempDir(), "nope")))
}
