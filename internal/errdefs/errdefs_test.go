package errdefs

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "format", err: Format("bad magic %q", "PK"), want: ErrFormat},
		{name: "version", err: VersionMismatch("version %d", 3), want: ErrVersionMismatch},
		{name: "decode", err: Decode("field %d", 13), want: ErrDecode},
		{name: "not found", err: NotFound("%s missing", "payload.bin"), want: ErrNotFound},
		{name: "precondition", err: Precondition("compressed"), want: ErrPrecondition},
		{name: "io", err: IO(io.ErrUnexpectedEOF), want: ErrIO},
		{name: "wrapped", err: fmt.Errorf("opening container: %w", Format("no eocd")), want: ErrFormat},
		{name: "unclassified", err: errors.New("plain"), want: nil},
		{name: "nil", err: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestErrorKeepsCause(t *testing.T) {
	err := IO(fmt.Errorf("reading manifest: %w", io.ErrUnexpectedEOF))
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "i/o error: reading manifest: unexpected EOF", err.Error())

	err = Decode("manifest: %w", io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, ErrDecode)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestIOKeepsExistingKind(t *testing.T) {
	inner := Format("bad record")
	assert.Same(t, inner, IO(inner))
	assert.Nil(t, IO(nil))

	wrapped := IO(fmt.Errorf("outer: %w", inner))
	assert.ErrorIs(t, wrapped, ErrFormat)
	assert.NotErrorIs(t, wrapped, ErrIO)
}
