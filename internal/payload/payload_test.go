package payload

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/otadump/internal/errdefs"
)

func buildPayload(version uint64, manifestBytes []byte, declaredSize uint64, sigSize uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString(Magic)
	_ = binary.Write(&buf, binary.BigEndian, version)
	_ = binary.Write(&buf, binary.BigEndian, declaredSize)
	_ = binary.Write(&buf, binary.BigEndian, sigSize)
	buf.Write(manifestBytes)
	return buf.Bytes()
}

func TestReadHeader(t *testing.T) {
	data := buildPayload(2, nil, 0x0102030405060708, 0x0A0B0C0D)

	h, err := ReadHeader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, Magic, string(h.Magic[:]))
	assert.Equal(t, uint64(2), h.Version)
	assert.Equal(t, uint64(0x0102030405060708), h.ManifestSize)
	assert.Equal(t, uint32(0x0A0B0C0D), h.MetadataSignatureSize)
}

func TestReadHeaderErrors(t *testing.T) {
	valid := buildPayload(2, nil, 4, 0)

	tests := []struct {
		name string
		data []byte
		kind error
	}{
		{name: "bad magic", data: append([]byte("PK\x03\x04"), valid[4:]...), kind: errdefs.ErrFormat},
		{name: "short magic", data: []byte("Cr"), kind: errdefs.ErrIO},
		{name: "short header", data: valid[:HeaderSize-1], kind: errdefs.ErrIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := ReadHeader(bytes.NewReader(tt.data))
			require.Error(t, err)
			assert.Nil(t, h)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestParse(t *testing.T) {
	manifest := []byte{0x18, 0x80, 0x20} // block_size = 4096
	data := buildPayload(2, manifest, uint64(len(manifest)), 267)

	p, err := Parse(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, manifest, p.ManifestBytes())
	assert.Equal(t, int64(HeaderSize), p.ManifestOffset())
	assert.Equal(t, int64(HeaderSize+len(manifest)+267), p.DataOffset())

	m, err := p.Manifest()
	require.NoError(t, err)
	assert.Equal(t, uint32(4096), m.BlockSize)
}

func TestParseVersionMismatch(t *testing.T) {
	// The declared manifest size is far larger than the input; the version
	// check must fail before any of it is read.
	data := buildPayload(1, nil, 1<<40, 0)

	_, err := Parse(bytes.NewReader(data))
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrVersionMismatch)
}

func TestParseTruncatedManifest(t *testing.T) {
	data := buildPayload(2, []byte{1, 2, 3}, 100, 0)

	_, err := Parse(bytes.NewReader(data))
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrIO)
}

func TestParseHugeManifestSize(t *testing.T) {
	data := buildPayload(2, nil, 1<<63, 0)

	_, err := Parse(bytes.NewReader(data))
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrFormat)
}

func TestParseUndecodableManifest(t *testing.T) {
	bad := []byte{0x0A, 0x05, 0x01} // field 1, length 5, one byte present
	data := buildPayload(2, bad, uint64(len(bad)), 0)

	p, err := Parse(bytes.NewReader(data))
	require.NoError(t, err)

	_, err = p.Manifest()
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrDecode)
}
