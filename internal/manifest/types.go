// Package manifest decodes the update engine DeltaArchiveManifest embedded
// in an update payload.
//
// Decoding works directly on the protobuf wire format for the subset of
// update_metadata.proto needed to describe partitions and their operations.
// Fields this package does not know are skipped.
package manifest

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultBlockSize is the block size assumed when the manifest omits it.
const DefaultBlockSize = 4096

// DeltaArchiveManifest describes an update: the partitions it writes and how.
type DeltaArchiveManifest struct {
	BlockSize                uint32                    `json:"block_size"`
	SignaturesOffset         uint64                    `json:"signatures_offset"`
	SignaturesSize           uint64                    `json:"signatures_size"`
	MinorVersion             uint32                    `json:"minor_version"`
	Partitions               []*PartitionUpdate        `json:"partitions,omitempty"`
	MaxTimestamp             int64                     `json:"max_timestamp"`
	DynamicPartitionMetadata *DynamicPartitionMetadata `json:"dynamic_partition_metadata,omitempty"`
	PartialUpdate            bool                      `json:"partial_update"`
	ApexInfo                 []*ApexInfo               `json:"apex_info,omitempty"`
	SecurityPatchLevel       string                    `json:"security_patch_level,omitempty"`
}

// PartitionUpdate is the update of a single partition.
type PartitionUpdate struct {
	PartitionName         string               `json:"partition_name"`
	RunPostinstall        bool                 `json:"run_postinstall"`
	PostinstallPath       string               `json:"postinstall_path,omitempty"`
	FilesystemType        string               `json:"filesystem_type,omitempty"`
	NewPartitionSignature []*Signature         `json:"new_partition_signature,omitempty"`
	OldPartitionInfo      *PartitionInfo       `json:"old_partition_info,omitempty"`
	NewPartitionInfo      *PartitionInfo       `json:"new_partition_info,omitempty"`
	Operations            []*InstallOperation  `json:"operations,omitempty"`
	PostinstallOptional   bool                 `json:"postinstall_optional"`
	HashTreeDataExtent    *Extent              `json:"hash_tree_data_extent,omitempty"`
	HashTreeExtent        *Extent              `json:"hash_tree_extent,omitempty"`
	HashTreeAlgorithm     string               `json:"hash_tree_algorithm,omitempty"`
	HashTreeSalt          HexBytes             `json:"hash_tree_salt,omitempty"`
	FecDataExtent         *Extent              `json:"fec_data_extent,omitempty"`
	FecExtent             *Extent              `json:"fec_extent,omitempty"`
	FecRoots              uint32               `json:"fec_roots"`
	Version               string               `json:"version,omitempty"`
	MergeOperations       []*CowMergeOperation `json:"merge_operations,omitempty"`
	EstimateCowSize       uint64               `json:"estimate_cow_size"`
	EstimateOpCountMax    uint64               `json:"estimate_op_count_max"`
}

// InstallOperation is one step writing blocks of a partition.
type InstallOperation struct {
	Type           OperationType `json:"type"`
	DataOffset     uint64        `json:"data_offset"`
	DataLength     uint64        `json:"data_length"`
	SrcExtents     []*Extent     `json:"src_extents,omitempty"`
	SrcLength      uint64        `json:"src_length"`
	DstExtents     []*Extent     `json:"dst_extents,omitempty"`
	DstLength      uint64        `json:"dst_length"`
	DataSha256Hash HexBytes      `json:"data_sha256_hash,omitempty"`
	SrcSha256Hash  HexBytes      `json:"src_sha256_hash,omitempty"`
}

// CowMergeOperation is a copy-on-write merge step of a virtual A/B update.
type CowMergeOperation struct {
	Type      CowMergeType `json:"type"`
	SrcExtent *Extent      `json:"src_extent,omitempty"`
	DstExtent *Extent      `json:"dst_extent,omitempty"`
	SrcOffset uint32       `json:"src_offset"`
}

// Extent is a run of blocks.
type Extent struct {
	StartBlock uint64 `json:"start_block"`
	NumBlocks  uint64 `json:"num_blocks"`
}

// PartitionInfo is the size and hash of a partition image.
type PartitionInfo struct {
	Size uint64   `json:"size"`
	Hash HexBytes `json:"hash,omitempty"`
}

// Signature is one signature over a partition or the payload.
type Signature struct {
	Version               uint32   `json:"version"`
	Data                  HexBytes `json:"data,omitempty"`
	UnpaddedSignatureSize uint32   `json:"unpadded_signature_size"`
}

// DynamicPartitionMetadata describes dynamic partition groups.
type DynamicPartitionMetadata struct {
	Groups               []*DynamicPartitionGroup `json:"groups,omitempty"`
	SnapshotEnabled      bool                     `json:"snapshot_enabled"`
	VabcEnabled          bool                     `json:"vabc_enabled"`
	VabcCompressionParam string                   `json:"vabc_compression_param,omitempty"`
	CowVersion           uint32                   `json:"cow_version"`
	VabcFeatureSet       *VabcFeatureSet          `json:"vabc_feature_set,omitempty"`
	CompressionFactor    uint64                   `json:"compression_factor"`
}

// DynamicPartitionGroup is a named group of dynamic partitions.
type DynamicPartitionGroup struct {
	Name           string   `json:"name"`
	Size           uint64   `json:"size"`
	PartitionNames []string `json:"partition_names,omitempty"`
}

// VabcFeatureSet lists virtual A/B compression features.
type VabcFeatureSet struct {
	Threaded    bool `json:"threaded"`
	BatchWrites bool `json:"batch_writes"`
}

// ApexInfo describes an APEX package shipped in the update.
type ApexInfo struct {
	PackageName      string `json:"package_name"`
	Version          int64  `json:"version"`
	IsCompressed     bool   `json:"is_compressed"`
	DecompressedSize int64  `json:"decompressed_size"`
}

// StripOperations drops the operation and merge operation lists of every
// partition. They dominate the size of large manifests.
func (m *DeltaArchiveManifest) StripOperations() {
	for _, p := range m.Partitions {
		p.Operations = nil
		p.MergeOperations = nil
	}
}

// OperationCount returns the number of install operations over all partitions.
func (m *DeltaArchiveManifest) OperationCount() int {
	n := 0
	for _, p := range m.Partitions {
		n += len(p.Operations)
	}
	return n
}

// HexBytes renders as an upper-case hex string.
type HexBytes []byte

func (b HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.ToUpper(hex.EncodeToString(b)))
}

// OperationType is the kind of an InstallOperation.
type OperationType int32

const (
	OpReplace         OperationType = 0
	OpReplaceBz       OperationType = 1
	OpMove            OperationType = 2
	OpBsdiff          OperationType = 3
	OpSourceCopy      OperationType = 4
	OpSourceBsdiff    OperationType = 5
	OpZero            OperationType = 6
	OpDiscard         OperationType = 7
	OpReplaceXz       OperationType = 8
	OpPuffdiff        OperationType = 9
	OpBrotliBsdiff    OperationType = 10
	OpZucchini        OperationType = 11
	OpLz4diffBsdiff   OperationType = 12
	OpLz4diffPuffdiff OperationType = 13
	OpZstd            OperationType = 14
)

var operationTypeNames = map[OperationType]string{
	OpReplace:         "REPLACE",
	OpReplaceBz:       "REPLACE_BZ",
	OpMove:            "MOVE",
	OpBsdiff:          "BSDIFF",
	OpSourceCopy:      "SOURCE_COPY",
	OpSourceBsdiff:    "SOURCE_BSDIFF",
	OpZero:            "ZERO",
	OpDiscard:         "DISCARD",
	OpReplaceXz:       "REPLACE_XZ",
	OpPuffdiff:        "PUFFDIFF",
	OpBrotliBsdiff:    "BROTLI_BSDIFF",
	OpZucchini:        "ZUCCHINI",
	OpLz4diffBsdiff:   "LZ4DIFF_BSDIFF",
	OpLz4diffPuffdiff: "LZ4DIFF_PUFFDIFF",
	OpZstd:            "ZSTD",
}

func (t OperationType) String() string {
	if name, ok := operationTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("OperationType(%d)", int32(t))
}

func (t OperationType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// CowMergeType is the kind of a CowMergeOperation.
type CowMergeType int32

const (
	CowCopy    CowMergeType = 0
	CowXor     CowMergeType = 1
	CowReplace CowMergeType = 2
)

func (t CowMergeType) String() string {
	switch t {
	case CowCopy:
		return "COW_COPY"
	case CowXor:
		return "COW_XOR"
	case CowReplace:
		return "COW_REPLACE"
	default:
		return fmt.Sprintf("CowMergeType(%d)", int32(t))
	}
}

func (t CowMergeType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}
