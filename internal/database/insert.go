package database

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jchantrell/otadump/internal/dumper"
	"github.com/jchantrell/otadump/internal/manifest"
)

const (
	insertPayloadSQL = `INSERT INTO payloads (
    source, entry, payload_offset, payload_size, version, manifest_size, metadata_signature_size,
    block_size, minor_version, max_timestamp, partial_update, security_patch_level, operation_count
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertPartitionSQL = `INSERT INTO partitions (
    payload_id, _index, name, version, old_size, old_hash, new_size, new_hash,
    operation_count, merge_operation_count, estimate_cow_size
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertOperationSQL = `INSERT INTO operations (
    payload_id, partition_index, _index, type, data_offset, data_length,
    src_extents, dst_extents, data_sha256_hash
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// StoreDump writes one dump in a single transaction and returns the id of
// its payloads row. Operations are stored only if the manifest still has them.
func (d *Database) StoreDump(ctx context.Context, source string, res *dumper.Result) (int64, error) {
	if res == nil || res.Manifest == nil {
		return 0, fmt.Errorf("dump result cannot be nil")
	}
	m := res.Manifest

	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() // Safe to call even after commit

	var entry any
	if res.Location.Entry != nil {
		entry = res.Location.Entry.Name()
	}

	result, err := tx.ExecContext(ctx, insertPayloadSQL,
		source,
		entry,
		res.Location.Offset,
		res.Location.Size,
		int64(res.Header.Version),
		int64(res.Header.ManifestSize),
		res.Header.MetadataSignatureSize,
		m.BlockSize,
		m.MinorVersion,
		m.MaxTimestamp,
		m.PartialUpdate,
		nullString(m.SecurityPatchLevel),
		res.Operations,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting payload: %w", err)
	}
	payloadID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading payload id: %w", err)
	}

	partStmt, err := tx.PrepareContext(ctx, insertPartitionSQL)
	if err != nil {
		return 0, fmt.Errorf("preparing partition insert: %w", err)
	}
	defer partStmt.Close()

	opStmt, err := tx.PrepareContext(ctx, insertOperationSQL)
	if err != nil {
		return 0, fmt.Errorf("preparing operation insert: %w", err)
	}
	defer opStmt.Close()

	operations := 0
	for i, p := range m.Partitions {
		oldSize, oldHash := partitionInfoValues(p.OldPartitionInfo)
		newSize, newHash := partitionInfoValues(p.NewPartitionInfo)

		if _, err := partStmt.ExecContext(ctx,
			payloadID, i, p.PartitionName, nullString(p.Version),
			oldSize, oldHash, newSize, newHash,
			len(p.Operations), len(p.MergeOperations), p.EstimateCowSize,
		); err != nil {
			return 0, fmt.Errorf("inserting partition %s: %w", p.PartitionName, err)
		}

		for j, op := range p.Operations {
			if err := insertOperation(ctx, opStmt, payloadID, i, j, op); err != nil {
				return 0, fmt.Errorf("inserting operation %d of %s: %w", j, p.PartitionName, err)
			}
			operations++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	slog.Info("Stored manifest",
		"database", d.path,
		"payload_id", payloadID,
		"partitions", len(m.Partitions),
		"operations", operations)

	return payloadID, nil
}

func insertOperation(ctx context.Context, stmt *sql.Stmt, payloadID int64, partition, index int, op *manifest.InstallOperation) error {
	src, err := extentsJSON(op.SrcExtents)
	if err != nil {
		return err
	}
	dst, err := extentsJSON(op.DstExtents)
	if err != nil {
		return err
	}

	_, err = stmt.ExecContext(ctx,
		payloadID, partition, index, op.Type.String(),
		op.DataOffset, op.DataLength,
		src, dst, hexString(op.DataSha256Hash),
	)
	return err
}

// extentsJSON stores extent lists as JSON text, NULL when empty
func extentsJSON(extents []*manifest.Extent) (any, error) {
	if len(extents) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(extents)
	if err != nil {
		return nil, fmt.Errorf("encoding extents: %w", err)
	}
	return string(b), nil
}

func partitionInfoValues(info *manifest.PartitionInfo) (any, any) {
	if info == nil {
		return nil, nil
	}
	return info.Size, hexString(info.Hash)
}

func hexString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return strings.ToUpper(hex.EncodeToString(b))
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
