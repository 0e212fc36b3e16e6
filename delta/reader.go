// Package delta reads Delta Lake transaction logs into format-agnostic log
// entries. The replay starts from the latest checkpoint when one exists;
// earlier commits are already folded into it.
package delta

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"
	"golang.org/x/sync/errgroup"

	"drainage/storage"
	"drainage/table"
)

const (
	logDir            = "_delta_log/"
	lastCheckpointKey = logDir + "_last_checkpoint"

	// fetchWorkers bounds concurrent commit-file downloads. Parsing stays
	// sequential in version order.
	fetchWorkers = 4
)

var (
	commitPattern     = regexp.MustCompile(`^(\d{20})\.json$`)
	checkpointPattern = regexp.MustCompile(`^(\d{20})\.checkpoint(?:\.(\d{10})\.(\d{10}))?\.parquet$`)
)

// Reader produces the ordered entry sequence for one Delta table.
type Reader struct {
	store storage.Store
}

func NewReader(store storage.Store) *Reader {
	return &Reader{store: store}
}

// ReadLog lists the transaction log, replays the newest checkpoint as a
// batch snapshot, then parses every later commit in version order. Any parse
// failure aborts the whole read: the reconciliation needs complete, ordered
// input.
func (r *Reader) ReadLog(ctx context.Context) ([]table.LogEntry, error) {
	objects, err := r.store.List(ctx, logDir)
	if err != nil {
		return nil, err
	}

	commits := make(map[int64]string)
	checkpointParts := make(map[int64][]string)
	haveLastCheckpoint := false
	for _, obj := range objects {
		base := strings.TrimPrefix(obj.Key, logDir)
		if base == "_last_checkpoint" {
			haveLastCheckpoint = true
			continue
		}
		if m := commitPattern.FindStringSubmatch(base); m != nil {
			v, _ := strconv.ParseInt(m[1], 10, 64)
			commits[v] = obj.Key
			continue
		}
		if m := checkpointPattern.FindStringSubmatch(base); m != nil {
			v, _ := strconv.ParseInt(m[1], 10, 64)
			checkpointParts[v] = append(checkpointParts[v], obj.Key)
		}
	}

	if len(commits) == 0 && len(checkpointParts) == 0 {
		return nil, table.NewError(table.KindMissingLog, logDir, "no transaction log found")
	}

	checkpointVersion := int64(-1)
	if haveLastCheckpoint {
		data, err := r.store.Read(ctx, lastCheckpointKey)
		if err != nil {
			return nil, err
		}
		var cp lastCheckpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			return nil, table.WrapError(table.KindCorrupt, lastCheckpointKey, err)
		}
		if _, ok := checkpointParts[cp.Version]; !ok {
			return nil, table.NewError(table.KindCorrupt, lastCheckpointKey,
				"checkpoint version %d referenced but not present", cp.Version)
		}
		checkpointVersion = cp.Version
	} else if len(checkpointParts) > 0 {
		for v := range checkpointParts {
			if v > checkpointVersion {
				checkpointVersion = v
			}
		}
	}

	var entries []table.LogEntry
	startVersion := int64(0)
	if checkpointVersion >= 0 {
		cpEntries, err := r.readCheckpoint(ctx, checkpointVersion, checkpointParts[checkpointVersion])
		if err != nil {
			return nil, err
		}
		entries = append(entries, cpEntries...)
		entries = append(entries, checkpointMarkers(commits, checkpointVersion)...)
		startVersion = checkpointVersion + 1
	}

	versions := make([]int64, 0, len(commits))
	for v := range commits {
		if v >= startVersion {
			versions = append(versions, v)
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	if checkpointVersion < 0 && len(versions) > 0 && versions[0] != 0 {
		return nil, table.NewError(table.KindCorrupt, commits[versions[0]],
			"log starts at version %d with no checkpoint covering earlier versions", versions[0])
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] != versions[i-1]+1 {
			return nil, table.NewError(table.KindCorrupt, commits[versions[i]],
				"commit version gap: %d follows %d", versions[i], versions[i-1])
		}
	}

	// Commit files are independent until the fold, so fetch them with a
	// bounded pool and parse in order afterwards.
	payloads := make([][]byte, len(versions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchWorkers)
	for i, v := range versions {
		i, v := i, v
		g.Go(func() error {
			data, err := r.store.Read(gctx, commits[v])
			if err != nil {
				return err
			}
			payloads[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, v := range versions {
		commitEntries, err := parseCommit(commits[v], v, payloads[i])
		if err != nil {
			return nil, err
		}
		entries = append(entries, commitEntries...)
	}

	return entries, nil
}

func (r *Reader) readCheckpoint(ctx context.Context, version int64, parts []string) ([]table.LogEntry, error) {
	sort.Strings(parts)

	var entries []table.LogEntry
	for _, key := range parts {
		data, err := r.store.Read(ctx, key)
		if err != nil {
			return nil, err
		}
		rows, err := parquet.Read[checkpointRow](bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, table.WrapError(table.KindCorrupt, key, err)
		}

		for _, row := range rows {
			switch {
			case row.Add != nil:
				entries = append(entries, table.LogEntry{
					Kind:     table.AddFileEntry,
					Position: version,
					Add: &table.AddFile{
						Path:             row.Add.Path,
						Size:             row.Add.Size,
						PartitionValues:  row.Add.PartitionValues,
						ModificationTime: row.Add.ModificationTime,
						RecordCount:      recordCount(row.Add.Stats),
					},
				})
			case row.Remove != nil:
				entries = append(entries, table.LogEntry{
					Kind:     table.RemoveFileEntry,
					Position: version,
					Remove: &table.RemoveFile{
						Path:              row.Remove.Path,
						DeletionTimestamp: row.Remove.DeletionTimestamp,
					},
				})
			case row.MetaData != nil:
				schema, err := parseSchemaString(row.MetaData.SchemaString)
				if err != nil {
					return nil, table.WrapError(table.KindCorrupt, key, err)
				}
				entries = append(entries, table.LogEntry{
					Kind:     table.MetadataEntry,
					Position: version,
					Metadata: &table.Metadata{
						Schema:           schema,
						PartitionColumns: row.MetaData.PartitionColumns,
						Configuration:    row.MetaData.Configuration,
					},
				})
			case row.Protocol != nil:
				entries = append(entries, table.LogEntry{
					Kind:     table.MetadataEntry,
					Position: version,
					Metadata: &table.Metadata{FormatVersion: int(row.Protocol.MinReaderVersion)},
				})
			}
		}
	}

	return entries, nil
}

// checkpointMarkers closes the history the checkpoint folded in. Commit files
// below the checkpoint version normally survive next to it, and each listed
// one still marks a snapshot: the history length must not shrink just because
// a checkpoint was taken. When the commits were vacuumed, the checkpoint
// version stands in for the whole prefix.
func checkpointMarkers(commits map[int64]string, checkpointVersion int64) []table.LogEntry {
	versions := make([]int64, 0, len(commits))
	for v := range commits {
		if v <= checkpointVersion {
			versions = append(versions, v)
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })
	if len(versions) == 0 || versions[len(versions)-1] != checkpointVersion {
		versions = append(versions, checkpointVersion)
	}

	entries := make([]table.LogEntry, 0, len(versions))
	for _, v := range versions {
		entries = append(entries, table.LogEntry{
			Kind:     table.SnapshotMarkerEntry,
			Position: v,
			Snapshot: &table.SnapshotMarker{ID: v, ParentID: v - 1, SequenceNumber: v},
		})
	}
	return entries
}

// parseCommit reads one JSON-lines commit file. Each commit closes with a
// snapshot marker for its version.
func parseCommit(key string, version int64, data []byte) ([]table.LogEntry, error) {
	var entries []table.LogEntry
	var commitTimestamp int64

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var act action
		if err := json.Unmarshal(raw, &act); err != nil {
			return nil, table.NewError(table.KindCorrupt, key, "line %d: %v", line, err)
		}

		switch {
		case act.Add != nil:
			entries = append(entries, table.LogEntry{
				Kind:     table.AddFileEntry,
				Position: version,
				Add: &table.AddFile{
					Path:             act.Add.Path,
					Size:             act.Add.Size,
					PartitionValues:  act.Add.PartitionValues,
					ModificationTime: act.Add.ModificationTime,
					RecordCount:      recordCount(act.Add.Stats),
				},
			})
		case act.Remove != nil:
			entries = append(entries, table.LogEntry{
				Kind:     table.RemoveFileEntry,
				Position: version,
				Remove: &table.RemoveFile{
					Path:              act.Remove.Path,
					DeletionTimestamp: act.Remove.DeletionTimestamp,
				},
			})
		case act.MetaData != nil:
			schema, err := parseSchemaString(act.MetaData.SchemaString)
			if err != nil {
				return nil, table.NewError(table.KindCorrupt, key, "line %d: %v", line, err)
			}
			entries = append(entries, table.LogEntry{
				Kind:     table.MetadataEntry,
				Position: version,
				Metadata: &table.Metadata{
					Schema:           schema,
					PartitionColumns: act.MetaData.PartitionColumns,
					Configuration:    act.MetaData.Configuration,
				},
			})
		case act.CommitInfo != nil:
			commitTimestamp = act.CommitInfo.Timestamp
			entries = append(entries, table.LogEntry{
				Kind:     table.CommitInfoEntry,
				Position: version,
				Commit: &table.CommitInfo{
					Timestamp: act.CommitInfo.Timestamp,
					Operation: act.CommitInfo.Operation,
				},
			})
		case act.Protocol != nil:
			entries = append(entries, table.LogEntry{
				Kind:     table.MetadataEntry,
				Position: version,
				Metadata: &table.Metadata{FormatVersion: act.Protocol.MinReaderVersion},
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, table.WrapError(table.KindCorrupt, key, err)
	}

	entries = append(entries, table.LogEntry{
		Kind:     table.SnapshotMarkerEntry,
		Position: version,
		Snapshot: &table.SnapshotMarker{
			ID:             version,
			ParentID:       version - 1,
			SequenceNumber: version,
			Timestamp:      commitTimestamp,
		},
	})
	return entries, nil
}
