// Package payload parses the header of an update engine payload and cuts
// out the manifest bytes that follow it.
//
// Layout, all integers big-endian:
//
//	magic                   [4]byte  "CrAU"
//	version                 uint64
//	manifest_size           uint64
//	metadata_signature_size uint32
//	manifest                [manifest_size]byte
package payload

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jchantrell/otadump/internal/errdefs"
	"github.com/jchantrell/otadump/internal/manifest"
)

// Magic is the first four bytes of any update payload.
const Magic = "CrAU"

// SupportedVersion is the only payload major version that is decoded.
const SupportedVersion = 2

// HeaderSize is the size of the fixed header preceding the manifest.
const HeaderSize = 4 + 8 + 8 + 4

// Header begins the payload file.
type Header struct {
	Magic                 [4]byte
	Version               uint64
	ManifestSize          uint64
	MetadataSignatureSize uint32
}

// Payload is a parsed header and the manifest bytes it delimits.
type Payload struct {
	Header   Header
	manifest []byte
}

// ReadHeader reads and validates the fixed header. On a magic mismatch no
// header is returned.
func ReadHeader(r io.Reader) (*Header, error) {
	var h Header

	if _, err := io.ReadFull(r, h.Magic[:]); err != nil {
		return nil, errdefs.IO(fmt.Errorf("reading payload magic: %w", err))
	}
	if string(h.Magic[:]) != Magic {
		return nil, errdefs.Format("payload missing magic prefix: got %q, want %q", h.Magic[:], Magic)
	}

	var buf [HeaderSize - 4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, errdefs.IO(fmt.Errorf("reading payload header: %w", err))
	}
	h.Version = binary.BigEndian.Uint64(buf[0:])
	h.ManifestSize = binary.BigEndian.Uint64(buf[8:])
	h.MetadataSignatureSize = binary.BigEndian.Uint32(buf[16:])

	return &h, nil
}

// Parse reads the header, checks the version and reads the manifest bytes.
// An unsupported version is rejected before anything past the header is read.
func Parse(r io.Reader) (*Payload, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	if h.Version != SupportedVersion {
		return nil, errdefs.VersionMismatch("payload version %d unsupported, want %d", h.Version, SupportedVersion)
	}

	manifestBytes, err := readManifest(r, h.ManifestSize)
	if err != nil {
		return nil, err
	}

	return &Payload{Header: *h, manifest: manifestBytes}, nil
}

// readManifest reads exactly size bytes. The buffer grows with the data
// actually received, so a corrupt size fails on the short read instead of on
// the allocation.
func readManifest(r io.Reader, size uint64) ([]byte, error) {
	if size > uint64(1<<63-1) {
		return nil, errdefs.Format("manifest size %d out of range", size)
	}

	var buf bytes.Buffer
	n, err := io.CopyN(&buf, r, int64(size))
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, errdefs.IO(fmt.Errorf("reading manifest: got %d of %d bytes: %w", n, size, err))
	}
	return buf.Bytes(), nil
}

// ManifestBytes returns the raw manifest.
func (p *Payload) ManifestBytes() []byte {
	return p.manifest
}

// Manifest decodes the manifest bytes.
func (p *Payload) Manifest() (*manifest.DeltaArchiveManifest, error) {
	return manifest.Decode(p.manifest)
}

// ManifestOffset returns the offset of the manifest from the start of the payload.
func (p *Payload) ManifestOffset() int64 {
	return HeaderSize
}

// DataOffset returns the offset, from the start of the payload, at which
// operation data begins: after the header, the manifest and the metadata
// signature. Operation data offsets in the manifest are relative to it.
func (p *Payload) DataOffset() int64 {
	return HeaderSize + int64(p.Header.ManifestSize) + int64(p.Header.MetadataSignatureSize)
}
