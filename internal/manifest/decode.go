package manifest

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/jchantrell/otadump/internal/errdefs"
)

// Decode decodes an encoded DeltaArchiveManifest. Truncated or malformed
// input yields an ErrDecode failure.
func Decode(b []byte) (*DeltaArchiveManifest, error) {
	m := &DeltaArchiveManifest{BlockSize: DefaultBlockSize}
	if err := decodeMessage(b, m.decodeField); err != nil {
		return nil, errdefs.Decode("manifest: %w", err)
	}
	return m, nil
}

// fieldDecoder consumes the value of field num from b and returns the number
// of bytes used, or -1 when the field is not handled and should be skipped.
type fieldDecoder func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func decodeMessage(b []byte, decode fieldDecoder) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		used, err := decode(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if used < 0 {
			used = protowire.ConsumeFieldValue(num, typ, b)
			if used < 0 {
				return fmt.Errorf("field %d: %w", num, protowire.ParseError(used))
			}
		}
		b = b[used:]
	}
	return nil
}

func wireTypeError(want, got protowire.Type) error {
	return fmt.Errorf("wire type %d, want %d", got, want)
}

func consumeVarint(typ protowire.Type, b []byte) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, wireTypeError(protowire.VarintType, typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeFixed32(typ protowire.Type, b []byte) (uint32, int, error) {
	if typ != protowire.Fixed32Type {
		return 0, 0, wireTypeError(protowire.Fixed32Type, typ)
	}
	v, n := protowire.ConsumeFixed32(b)
	if n < 0 {
		return 0, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

func consumeBytes(typ protowire.Type, b []byte) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, wireTypeError(protowire.BytesType, typ)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, protowire.ParseError(n)
	}
	return v, n, nil
}

// The helpers below assign a decoded value to dst and return the bytes used.

func u64(dst *uint64, typ protowire.Type, b []byte) (int, error) {
	v, n, err := consumeVarint(typ, b)
	*dst = v
	return n, err
}

func u32(dst *uint32, typ protowire.Type, b []byte) (int, error) {
	v, n, err := consumeVarint(typ, b)
	*dst = uint32(v)
	return n, err
}

func i64(dst *int64, typ protowire.Type, b []byte) (int, error) {
	v, n, err := consumeVarint(typ, b)
	*dst = int64(v)
	return n, err
}

func boolean(dst *bool, typ protowire.Type, b []byte) (int, error) {
	v, n, err := consumeVarint(typ, b)
	*dst = protowire.DecodeBool(v)
	return n, err
}

func str(dst *string, typ protowire.Type, b []byte) (int, error) {
	v, n, err := consumeBytes(typ, b)
	*dst = string(v)
	return n, err
}

func byteSlice(dst *HexBytes, typ protowire.Type, b []byte) (int, error) {
	v, n, err := consumeBytes(typ, b)
	if err == nil {
		*dst = append(HexBytes(nil), v...)
	}
	return n, err
}

// message decodes an embedded message into a fresh *T.
func message[T any](typ protowire.Type, b []byte, decode func(*T) fieldDecoder) (*T, int, error) {
	v, n, err := consumeBytes(typ, b)
	if err != nil {
		return nil, 0, err
	}
	msg := new(T)
	if err := decodeMessage(v, decode(msg)); err != nil {
		return nil, 0, err
	}
	return msg, n, nil
}

func (m *DeltaArchiveManifest) decodeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 3:
		return u32(&m.BlockSize, typ, b)
	case 4:
		return u64(&m.SignaturesOffset, typ, b)
	case 5:
		return u64(&m.SignaturesSize, typ, b)
	case 12:
		return u32(&m.MinorVersion, typ, b)
	case 13:
		p, n, err := message(typ, b, newPartitionUpdateDecoder)
		if err == nil {
			m.Partitions = append(m.Partitions, p)
		}
		return n, err
	case 14:
		return i64(&m.MaxTimestamp, typ, b)
	case 15:
		d, n, err := message(typ, b, func(d *DynamicPartitionMetadata) fieldDecoder { return d.decodeField })
		if err == nil {
			m.DynamicPartitionMetadata = d
		}
		return n, err
	case 16:
		return boolean(&m.PartialUpdate, typ, b)
	case 17:
		a, n, err := message(typ, b, func(a *ApexInfo) fieldDecoder { return a.decodeField })
		if err == nil {
			m.ApexInfo = append(m.ApexInfo, a)
		}
		return n, err
	case 18:
		return str(&m.SecurityPatchLevel, typ, b)
	}
	return -1, nil
}

// newPartitionUpdateDecoder applies the proto defaults before decoding.
func newPartitionUpdateDecoder(p *PartitionUpdate) fieldDecoder {
	p.FecRoots = 2
	return p.decodeField
}

func (p *PartitionUpdate) decodeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return str(&p.PartitionName, typ, b)
	case 2:
		return boolean(&p.RunPostinstall, typ, b)
	case 3:
		return str(&p.PostinstallPath, typ, b)
	case 4:
		return str(&p.FilesystemType, typ, b)
	case 5:
		s, n, err := message(typ, b, func(s *Signature) fieldDecoder { return s.decodeField })
		if err == nil {
			p.NewPartitionSignature = append(p.NewPartitionSignature, s)
		}
		return n, err
	case 6:
		return partitionInfo(&p.OldPartitionInfo, typ, b)
	case 7:
		return partitionInfo(&p.NewPartitionInfo, typ, b)
	case 8:
		op, n, err := message(typ, b, func(op *InstallOperation) fieldDecoder { return op.decodeField })
		if err == nil {
			p.Operations = append(p.Operations, op)
		}
		return n, err
	case 9:
		return boolean(&p.PostinstallOptional, typ, b)
	case 10:
		return extent(&p.HashTreeDataExtent, typ, b)
	case 11:
		return extent(&p.HashTreeExtent, typ, b)
	case 12:
		return str(&p.HashTreeAlgorithm, typ, b)
	case 13:
		return byteSlice(&p.HashTreeSalt, typ, b)
	case 14:
		return extent(&p.FecDataExtent, typ, b)
	case 15:
		return extent(&p.FecExtent, typ, b)
	case 16:
		return u32(&p.FecRoots, typ, b)
	case 17:
		return str(&p.Version, typ, b)
	case 18:
		op, n, err := message(typ, b, func(op *CowMergeOperation) fieldDecoder { return op.decodeField })
		if err == nil {
			p.MergeOperations = append(p.MergeOperations, op)
		}
		return n, err
	case 19:
		return u64(&p.EstimateCowSize, typ, b)
	case 20:
		return u64(&p.EstimateOpCountMax, typ, b)
	}
	return -1, nil
}

func (op *InstallOperation) decodeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		v, n, err := consumeVarint(typ, b)
		op.Type = OperationType(int32(v))
		return n, err
	case 2:
		return u64(&op.DataOffset, typ, b)
	case 3:
		return u64(&op.DataLength, typ, b)
	case 4:
		e, n, err := message(typ, b, func(e *Extent) fieldDecoder { return e.decodeField })
		if err == nil {
			op.SrcExtents = append(op.SrcExtents, e)
		}
		return n, err
	case 5:
		return u64(&op.SrcLength, typ, b)
	case 6:
		e, n, err := message(typ, b, func(e *Extent) fieldDecoder { return e.decodeField })
		if err == nil {
			op.DstExtents = append(op.DstExtents, e)
		}
		return n, err
	case 7:
		return u64(&op.DstLength, typ, b)
	case 8:
		return byteSlice(&op.DataSha256Hash, typ, b)
	case 9:
		return byteSlice(&op.SrcSha256Hash, typ, b)
	}
	return -1, nil
}

func (op *CowMergeOperation) decodeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		v, n, err := consumeVarint(typ, b)
		op.Type = CowMergeType(int32(v))
		return n, err
	case 2:
		return extent(&op.SrcExtent, typ, b)
	case 3:
		return extent(&op.DstExtent, typ, b)
	case 4:
		return u32(&op.SrcOffset, typ, b)
	}
	return -1, nil
}

func extent(dst **Extent, typ protowire.Type, b []byte) (int, error) {
	e, n, err := message(typ, b, func(e *Extent) fieldDecoder { return e.decodeField })
	if err == nil {
		*dst = e
	}
	return n, err
}

func (e *Extent) decodeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return u64(&e.StartBlock, typ, b)
	case 2:
		return u64(&e.NumBlocks, typ, b)
	}
	return -1, nil
}

func partitionInfo(dst **PartitionInfo, typ protowire.Type, b []byte) (int, error) {
	info, n, err := message(typ, b, func(i *PartitionInfo) fieldDecoder { return i.decodeField })
	if err == nil {
		*dst = info
	}
	return n, err
}

func (i *PartitionInfo) decodeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return u64(&i.Size, typ, b)
	case 2:
		return byteSlice(&i.Hash, typ, b)
	}
	return -1, nil
}

func (s *Signature) decodeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return u32(&s.Version, typ, b)
	case 2:
		return byteSlice(&s.Data, typ, b)
	case 3:
		v, n, err := consumeFixed32(typ, b)
		s.UnpaddedSignatureSize = v
		return n, err
	}
	return -1, nil
}

func (d *DynamicPartitionMetadata) decodeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		g, n, err := message(typ, b, func(g *DynamicPartitionGroup) fieldDecoder { return g.decodeField })
		if err == nil {
			d.Groups = append(d.Groups, g)
		}
		return n, err
	case 2:
		return boolean(&d.SnapshotEnabled, typ, b)
	case 3:
		return boolean(&d.VabcEnabled, typ, b)
	case 4:
		return str(&d.VabcCompressionParam, typ, b)
	case 5:
		return u32(&d.CowVersion, typ, b)
	case 6:
		fs, n, err := message(typ, b, func(f *VabcFeatureSet) fieldDecoder { return f.decodeField })
		if err == nil {
			d.VabcFeatureSet = fs
		}
		return n, err
	case 7:
		return u64(&d.CompressionFactor, typ, b)
	}
	return -1, nil
}

func (g *DynamicPartitionGroup) decodeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return str(&g.Name, typ, b)
	case 2:
		return u64(&g.Size, typ, b)
	case 3:
		var name string
		n, err := str(&name, typ, b)
		if err == nil {
			g.PartitionNames = append(g.PartitionNames, name)
		}
		return n, err
	}
	return -1, nil
}

func (f *VabcFeatureSet) decodeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return boolean(&f.Threaded, typ, b)
	case 2:
		return boolean(&f.BatchWrites, typ, b)
	}
	return -1, nil
}

func (a *ApexInfo) decodeField(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	switch num {
	case 1:
		return str(&a.PackageName, typ, b)
	case 2:
		return i64(&a.Version, typ, b)
	case 3:
		return boolean(&a.IsCompressed, typ, b)
	case 4:
		return i64(&a.DecompressedSize, typ, b)
	}
	return -1, nil
}
