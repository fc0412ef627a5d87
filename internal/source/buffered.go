package source

import (
	"fmt"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jchantrell/otadump/internal/errdefs"
)

const (
	// DefaultBlockSize is the read cache block size.
	DefaultBlockSize = 64 << 10

	// DefaultCacheBlocks is the number of blocks the read cache keeps.
	DefaultCacheBlocks = 16
)

// Buffered serves reads from fixed-size blocks of its parent, keeping the
// most recently used blocks in memory. A remote parent then costs one range
// request per block instead of one per header field.
type Buffered struct {
	parent    Source
	size      int64
	blockSize int64
	blocks    *lru.Cache[int64, []byte]
	pos       int64
}

// NewBuffered wraps parent. Parents of unknown length are returned unchanged
// because the last block cannot be sized.
func NewBuffered(parent Source, blockSize, cacheBlocks int) (Source, error) {
	size, ok := parent.Size()
	if !ok {
		return parent, nil
	}
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	if cacheBlocks <= 0 {
		cacheBlocks = DefaultCacheBlocks
	}

	blocks, err := lru.New[int64, []byte](cacheBlocks)
	if err != nil {
		return nil, fmt.Errorf("creating block cache: %w", err)
	}

	return &Buffered{
		parent:    parent,
		size:      size,
		blockSize: int64(blockSize),
		blocks:    blocks,
	}, nil
}

func (b *Buffered) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if b.pos >= b.size {
		if b.pos > b.size {
			return 0, errdefs.IOf("read at %d: beyond length %d", b.pos, b.size)
		}
		return 0, io.EOF
	}

	n := 0
	for n < len(p) && b.pos < b.size {
		idx := b.pos / b.blockSize
		block, err := b.block(idx)
		if err != nil {
			return n, err
		}
		copied := copy(p[n:], block[b.pos-idx*b.blockSize:])
		n += copied
		b.pos += int64(copied)
	}
	return n, nil
}

// block returns block idx, reading it from the parent on a cache miss.
func (b *Buffered) block(idx int64) ([]byte, error) {
	if block, ok := b.blocks.Get(idx); ok {
		return block, nil
	}

	start := idx * b.blockSize
	length := min(b.blockSize, b.size-start)

	if _, err := b.parent.Seek(start, io.SeekStart); err != nil {
		return nil, err
	}
	block := make([]byte, length)
	if _, err := io.ReadFull(b.parent, block); err != nil {
		return nil, errdefs.IO(fmt.Errorf("reading block %d (%d bytes at %d): %w", idx, length, start, err))
	}

	b.blocks.Add(idx, block)
	return block, nil
}

func (b *Buffered) Seek(offset int64, whence int) (int64, error) {
	pos, err := resolveSeek(b.pos, b.size, true, offset, whence)
	if err != nil {
		return 0, err
	}
	b.pos = pos
	return pos, nil
}

func (b *Buffered) Size() (int64, bool) {
	return b.size, true
}

func (b *Buffered) Close() error {
	b.blocks.Purge()
	return b.parent.Close()
}
