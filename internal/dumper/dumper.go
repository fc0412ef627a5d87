// Package dumper locates the update payload in a source, decodes its
// manifest and renders it.
package dumper

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jchantrell/otadump/internal/errdefs"
	"github.com/jchantrell/otadump/internal/manifest"
	"github.com/jchantrell/otadump/internal/payload"
	"github.com/jchantrell/otadump/internal/source"
	"github.com/jchantrell/otadump/internal/utils"
	"github.com/jchantrell/otadump/internal/zipfile"
)

// DefaultPayloadName is the entry holding the payload in an OTA package.
const DefaultPayloadName = "payload.bin"

// Options configures a Dumper.
type Options struct {
	// ShowOperations keeps the per-partition operation lists.
	ShowOperations bool

	// PayloadName is the ZIP entry searched for.
	PayloadName string

	// Progress renders a progress bar when stderr is a terminal.
	Progress bool
}

// DefaultOptions returns the options of a plain dump.
func DefaultOptions() Options {
	return Options{
		PayloadName: DefaultPayloadName,
		Progress:    true,
	}
}

// Location is where the payload bytes live inside the source.
type Location struct {
	// Entry is the ZIP entry holding the payload, nil for a bare payload.
	Entry *zipfile.Entry

	// Offset is the absolute offset of the first payload byte.
	Offset int64

	// Size is the payload length, -1 when unknown.
	Size int64
}

// Result is a decoded payload.
type Result struct {
	Header   payload.Header
	Manifest *manifest.DeltaArchiveManifest
	Location Location

	// Operations is the operation count before any stripping.
	Operations int
}

// Dumper decodes the payload found in a single source. It is not safe for
// concurrent use.
type Dumper struct {
	src  source.Source
	opts Options
}

// New returns a Dumper reading src. The caller keeps ownership of src.
func New(src source.Source, opts Options) *Dumper {
	if opts.PayloadName == "" {
		opts.PayloadName = DefaultPayloadName
	}
	return &Dumper{src: src, opts: opts}
}

// Dump locates the payload, parses its header and decodes the manifest.
func (d *Dumper) Dump() (*Result, error) {
	start := time.Now()

	r, loc, err := d.Locate()
	if err != nil {
		return nil, err
	}

	p, err := payload.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing payload: %w", err)
	}
	slog.Debug("Parsed payload header",
		"version", p.Header.Version,
		"manifest_size", p.Header.ManifestSize,
		"metadata_signature_size", p.Header.MetadataSignatureSize)

	m, err := p.Manifest()
	if err != nil {
		return nil, err
	}

	res := &Result{
		Header:     p.Header,
		Manifest:   m,
		Location:   loc,
		Operations: m.OperationCount(),
	}
	if !d.opts.ShowOperations {
		m.StripOperations()
	}

	slog.Info("Decoded manifest",
		"partitions", len(m.Partitions),
		"operations", utils.Number(int64(res.Operations)),
		"duration", utils.Duration(time.Since(start)))

	return res, nil
}

// Locate returns a reader positioned at the first payload byte. Input that
// starts with the payload magic is a bare payload; anything else is read as
// a ZIP container.
func (d *Dumper) Locate() (source.Source, Location, error) {
	bare, err := d.isBarePayload()
	if err != nil {
		return nil, Location{}, err
	}

	if bare {
		if _, err := d.src.Seek(0, io.SeekStart); err != nil {
			return nil, Location{}, err
		}
		size, ok := d.src.Size()
		if !ok {
			size = -1
		}
		slog.Debug("Input is a bare payload", "size", size)
		return d.src, Location{Size: size}, nil
	}

	zr, err := zipfile.NewReader(d.src)
	if err != nil {
		return nil, Location{}, fmt.Errorf("opening container: %w", err)
	}

	entry, err := zr.Find(d.opts.PayloadName)
	if err != nil {
		return nil, Location{}, err
	}
	if entry.IsCompressed() {
		return nil, Location{}, errdefs.Precondition("%s is %s, only stored entries can be read", entry.Name(), entry.Method())
	}
	if entry.CompressedSize() != entry.UncompressedSize() {
		return nil, Location{}, errdefs.Precondition("%s compressed size %d differs from uncompressed size %d",
			entry.Name(), entry.CompressedSize(), entry.UncompressedSize())
	}

	slog.Debug("Found payload entry",
		"name", entry.Name(),
		"offset", entry.DataOffset(),
		"size", utils.Bytes(entry.CompressedSize()))

	return zr.Open(entry), Location{
		Entry:  entry,
		Offset: entry.DataOffset(),
		Size:   entry.CompressedSize(),
	}, nil
}

func (d *Dumper) isBarePayload() (bool, error) {
	if _, err := d.src.Seek(0, io.SeekStart); err != nil {
		return false, err
	}
	var magic [len(payload.Magic)]byte
	n, err := io.ReadFull(d.src, magic[:])
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return false, errdefs.IO(fmt.Errorf("reading input magic: %w", err))
	}
	return bytes.Equal(magic[:n], []byte(payload.Magic)), nil
}

// SavePayload copies the payload bytes to path. Nothing is decompressed; the
// file is removed again when the copy fails.
func (d *Dumper) SavePayload(path string) (int64, error) {
	r, loc, err := d.Locate()
	if err != nil {
		return 0, err
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return 0, errdefs.IO(fmt.Errorf("creating directory for %s: %w", path, err))
		}
	}
	out, err := os.Create(path)
	if err != nil {
		return 0, errdefs.IO(fmt.Errorf("creating %s: %w", path, err))
	}

	total := loc.Size
	if total < 0 {
		total = 0
	}
	progress := utils.NewProgress(total, filepath.Base(path), d.opts.Progress && loc.Size >= 0)

	n, err := io.Copy(out, progress.ProxyReader(r))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && loc.Size >= 0 && n != loc.Size {
		err = fmt.Errorf("copied %d of %d bytes", n, loc.Size)
	}
	if err != nil {
		progress.Abort()
		os.Remove(path)
		return n, errdefs.IO(fmt.Errorf("saving payload to %s: %w", path, err))
	}
	progress.Finish()

	slog.Info("Saved payload", "path", path, "size", utils.Bytes(n))
	return n, nil
}

// WriteJSON pretty-prints m to w.
func WriteJSON(w io.Writer, m *manifest.DeltaArchiveManifest) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	return nil
}
