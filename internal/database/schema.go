package database

import (
	"context"
	"fmt"
)

// Export tables. A payload row is written per dump; partitions and
// operations reference it and go away with it.
var schemaDDL = []struct {
	table string
	ddl   string
}{
	{"payloads", `CREATE TABLE IF NOT EXISTS payloads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    entry TEXT,
    payload_offset INTEGER NOT NULL,
    payload_size INTEGER NOT NULL,
    version INTEGER NOT NULL,
    manifest_size INTEGER NOT NULL,
    metadata_signature_size INTEGER NOT NULL,
    block_size INTEGER NOT NULL,
    minor_version INTEGER NOT NULL,
    max_timestamp INTEGER NOT NULL,
    partial_update INTEGER NOT NULL,
    security_patch_level TEXT,
    operation_count INTEGER NOT NULL,
    created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
)`},
	{"partitions", `CREATE TABLE IF NOT EXISTS partitions (
    payload_id INTEGER NOT NULL REFERENCES payloads(id) ON DELETE CASCADE,
    _index INTEGER NOT NULL,
    name TEXT NOT NULL,
    version TEXT,
    old_size INTEGER,
    old_hash TEXT,
    new_size INTEGER,
    new_hash TEXT,
    operation_count INTEGER NOT NULL,
    merge_operation_count INTEGER NOT NULL,
    estimate_cow_size INTEGER NOT NULL,
    PRIMARY KEY (payload_id, _index)
)`},
	{"operations", `CREATE TABLE IF NOT EXISTS operations (
    payload_id INTEGER NOT NULL,
    partition_index INTEGER NOT NULL,
    _index INTEGER NOT NULL,
    type TEXT NOT NULL,
    data_offset INTEGER NOT NULL,
    data_length INTEGER NOT NULL,
    src_extents TEXT,
    dst_extents TEXT,
    data_sha256_hash TEXT,
    PRIMARY KEY (payload_id, partition_index, _index),
    FOREIGN KEY (payload_id, partition_index) REFERENCES partitions(payload_id, _index) ON DELETE CASCADE
)`},
}

// createSchema creates the export tables in a single transaction
func (d *Database) createSchema(ctx context.Context) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning schema transaction: %w", err)
	}
	defer tx.Rollback()

	for _, s := range schemaDDL {
		if _, err := tx.ExecContext(ctx, s.ddl); err != nil {
			return fmt.Errorf("creating table %s: %w", s.table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schema transaction: %w", err)
	}

	return nil
}

// quoteSQLIdentifier quotes SQL identifiers to prevent conflicts with reserved words
func quoteSQLIdentifier(identifier string) string {
	return fmt.Sprintf(`"%s"`, identifier)
}
