package table

import (
	"sort"
	"strings"
)

// EntryKind discriminates the LogEntry variants.
type EntryKind int

const (
	AddFileEntry EntryKind = iota
	RemoveFileEntry
	MetadataEntry
	CommitInfoEntry
	SnapshotMarkerEntry
)

func (k EntryKind) String() string {
	switch k {
	case AddFileEntry:
		return "add"
	case RemoveFileEntry:
		return "remove"
	case MetadataEntry:
		return "metadata"
	case CommitInfoEntry:
		return "commitInfo"
	case SnapshotMarkerEntry:
		return "snapshot"
	default:
		return "unknown"
	}
}

// LogEntry is one parsed record from a table's transaction log or manifest
// chain. Exactly one of the variant pointers is set, selected by Kind.
// Position is the monotonic replay position: the commit version for Delta,
// the sequence number for Iceberg. Entries are immutable once produced.
type LogEntry struct {
	Kind     EntryKind
	Position int64

	Add      *AddFile
	Remove   *RemoveFile
	Metadata *Metadata
	Commit   *CommitInfo
	Snapshot *SnapshotMarker
}

// AddFile records a data file joining the table.
type AddFile struct {
	Path             string
	Size             int64
	PartitionValues  map[string]string
	ModificationTime int64
	RecordCount      int64
}

// RemoveFile is a tombstone for a previously added data file.
type RemoveFile struct {
	Path              string
	DeletionTimestamp int64
}

// Metadata carries the table's schema and partitioning as of a log position.
type Metadata struct {
	Schema           Schema
	PartitionColumns []string
	Configuration    map[string]string
	FormatVersion    int
}

// CommitInfo describes the operation that produced a commit.
type CommitInfo struct {
	Timestamp int64
	Operation string
}

// SnapshotMarker closes a snapshot: the builder folds the add/remove deltas
// accumulated since the previous marker into a SnapshotSummary.
type SnapshotMarker struct {
	ID             int64
	ParentID       int64
	SequenceNumber int64
	Timestamp      int64
}

// Schema is the format-agnostic table schema.
type Schema struct {
	Fields []Field
}

// Field is one top-level schema column.
type Field struct {
	ID       int
	Name     string
	Type     string
	Required bool
}

// FileRef is an active data file in the reconciled table state.
type FileRef struct {
	Path            string
	Size            int64
	PartitionValues map[string]string
	AddedAt         int64
	RecordCount     int64
}

// SnapshotSummary is the derived per-snapshot delta, read-only.
type SnapshotSummary struct {
	ID           int64
	Timestamp    int64
	AddedFiles   int
	RemovedFiles int
	AddedBytes   int64
	RemovedBytes int64
}

// PartitionKey builds a canonical grouping key from a file's partition
// values, "k=v" pairs joined in key order. Files of structurally equivalent
// Delta and Iceberg tables produce identical keys.
func PartitionKey(values map[string]string) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+values[k])
	}
	return strings.Join(parts, "/")
}
