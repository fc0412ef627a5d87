package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNumber(t *testing.T) {
	tests := map[int64]string{
		0:        "0",
		999:      "999",
		1000:     "1,000",
		1234567:  "1,234,567",
		-1234567: "-1,234,567",
		-12:      "-12",
	}
	for in, want := range tests {
		assert.Equal(t, want, Number(in), "Number(%d)", in)
	}
}

func TestBytes(t *testing.T) {
	tests := map[int64]string{
		0:          "0 B",
		512:        "512 B",
		2048:       "2.0 KiB",
		5 << 20:    "5.0 MiB",
		3 << 30:    "3.0 GiB",
		1536 << 20: "1.5 GiB",
	}
	for in, want := range tests {
		assert.Equal(t, want, Bytes(in), "Bytes(%d)", in)
	}
}

func TestDuration(t *testing.T) {
	assert.Equal(t, "0s", Duration(500*time.Millisecond))
	assert.Equal(t, "5.2s", Duration(5200*time.Millisecond))
	assert.Equal(t, "3m5.0s", Duration(3*time.Minute+5*time.Second))
	assert.Equal(t, "2h15m", Duration(2*time.Hour+15*time.Minute))
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://example.com/ota.zip"))
	assert.True(t, IsRemote("http://example.com/payload.bin"))
	assert.False(t, IsRemote("/tmp/ota.zip"))
	assert.False(t, IsRemote("httpfile.zip"))
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		def       string
		key, val  string
		wantError bool
	}{
		{def: "Authorization=Bearer abc", key: "Authorization", val: "Bearer abc"},
		{def: "Cookie: a=b", key: "Cookie", val: "a=b"},
		{def: "X-Empty=", key: "X-Empty", val: ""},
		{def: "novalue", wantError: true},
		{def: "=value", wantError: true},
	}
	for _, tt := range tests {
		key, val, err := ParseHeader(tt.def)
		if tt.wantError {
			assert.Error(t, err, tt.def)
			continue
		}
		assert.NoError(t, err, tt.def)
		assert.Equal(t, tt.key, key)
		assert.Equal(t, tt.val, val)
	}
}
