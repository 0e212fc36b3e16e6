package table

import "sort"

// TableState is the reconciled view of a table as of the latest (or a
// requested) snapshot. It is built once per analysis and owned by the caller;
// nothing retains it across analyses.
type TableState struct {
	ActiveFiles map[string]FileRef
	// RemovedFiles holds tombstoned files with no later re-add. These are
	// orphan candidates: still referenced by superseded metadata but absent
	// from the live state.
	RemovedFiles     map[string]FileRef
	Schema           Schema
	PartitionColumns []string
	Configuration    map[string]string
	SnapshotHistory  []SnapshotSummary
	FormatVersion    int
}

// BuildOptions tunes a replay.
type BuildOptions struct {
	// AsOf, when non-nil, stops the fold once the snapshot marker with this
	// ID has been applied. Entries beyond it are not folded.
	AsOf *int64
}

// Build replays log entries in ascending position order into a TableState.
// The fold is a pure left-fold: the same entry sequence and options yield an
// identical state on every run. Entries at equal positions keep their input
// order.
func Build(entries []LogEntry, opts BuildOptions) (*TableState, error) {
	ordered := make([]LogEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})

	st := &TableState{
		ActiveFiles:  make(map[string]FileRef),
		RemovedFiles: make(map[string]FileRef),
	}

	var (
		addedFiles, removedFiles int
		addedBytes, removedBytes int64
		asOfSeen                 bool
	)

	for _, e := range ordered {
		switch e.Kind {
		case AddFileEntry:
			ref := FileRef{
				Path:            e.Add.Path,
				Size:            e.Add.Size,
				PartitionValues: e.Add.PartitionValues,
				AddedAt:         e.Add.ModificationTime,
				RecordCount:     e.Add.RecordCount,
			}
			st.ActiveFiles[ref.Path] = ref
			// A re-add supersedes any earlier tombstone.
			delete(st.RemovedFiles, ref.Path)
			addedFiles++
			addedBytes += ref.Size

		case RemoveFileEntry:
			// Tombstones for paths never added are ignored: the add may
			// predate a checkpoint already folded in.
			if ref, ok := st.ActiveFiles[e.Remove.Path]; ok {
				delete(st.ActiveFiles, e.Remove.Path)
				st.RemovedFiles[e.Remove.Path] = ref
				removedFiles++
				removedBytes += ref.Size
			}

		case MetadataEntry:
			// Last writer wins. Format-version-only updates (reader surfaced
			// a protocol bump with no schema attached) leave the schema alone.
			if len(e.Metadata.Schema.Fields) > 0 || e.Metadata.PartitionColumns != nil || e.Metadata.Configuration != nil {
				st.Schema = e.Metadata.Schema
				st.PartitionColumns = e.Metadata.PartitionColumns
				st.Configuration = e.Metadata.Configuration
			}
			if e.Metadata.FormatVersion != 0 {
				st.FormatVersion = e.Metadata.FormatVersion
			}

		case CommitInfoEntry:
			// Informational only; the snapshot marker carries the timestamp
			// used for history.

		case SnapshotMarkerEntry:
			st.SnapshotHistory = append(st.SnapshotHistory, SnapshotSummary{
				ID:           e.Snapshot.ID,
				Timestamp:    e.Snapshot.Timestamp,
				AddedFiles:   addedFiles,
				RemovedFiles: removedFiles,
				AddedBytes:   addedBytes,
				RemovedBytes: removedBytes,
			})
			addedFiles, removedFiles = 0, 0
			addedBytes, removedBytes = 0, 0
			if opts.AsOf != nil && e.Snapshot.ID == *opts.AsOf {
				asOfSeen = true
			}
		}
		if asOfSeen {
			break
		}
	}

	if opts.AsOf != nil && !asOfSeen {
		return nil, NewError(KindNotFound, "", "snapshot %d not present in log", *opts.AsOf)
	}
	return st, nil
}

// FileCount returns the number of active data files.
func (s *TableState) FileCount() int { return len(s.ActiveFiles) }

// TotalBytes returns the total size of active data files.
func (s *TableState) TotalBytes() int64 {
	var n int64
	for _, f := range s.ActiveFiles {
		n += f.Size
	}
	return n
}

// PartitionCount returns the number of distinct partitions among active
// files. Unpartitioned tables report zero.
func (s *TableState) PartitionCount() int {
	if len(s.PartitionColumns) == 0 {
		return 0
	}
	seen := make(map[string]struct{})
	for _, f := range s.ActiveFiles {
		seen[PartitionKey(f.PartitionValues)] = struct{}{}
	}
	return len(seen)
}
