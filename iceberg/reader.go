// Package iceberg reads Apache Iceberg table metadata into format-agnostic
// log entries: current metadata pointer, manifest list, then each manifest,
// with every entry positioned by its sequence number.
package iceberg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/hamba/avro/v2/ocf"
	"golang.org/x/sync/errgroup"

	"drainage/storage"
	"drainage/table"
)

const (
	versionHintKey = "metadata/version-hint.text"
	metadataDir    = "metadata/"

	// fetchWorkers bounds concurrent manifest downloads; manifests are
	// independent until the fold.
	fetchWorkers = 4
)

// Reader produces the ordered entry sequence for one Iceberg table.
type Reader struct {
	store storage.Store
}

func NewReader(store storage.Store) *Reader {
	return &Reader{store: store}
}

// ReadLog resolves the current table metadata, walks the current snapshot's
// manifest list, and surfaces every manifest entry as an add or remove at
// its sequence number. Any unparseable file aborts the read.
func (r *Reader) ReadLog(ctx context.Context) ([]table.LogEntry, error) {
	meta, metaKey, err := r.loadMetadata(ctx)
	if err != nil {
		return nil, err
	}

	entries := []table.LogEntry{metadataEntry(meta)}

	snap := meta.CurrentSnapshot()
	if snap == nil {
		if meta.CurrentSnapshotID > 0 {
			return nil, table.NewError(table.KindCorrupt, metaKey,
				"current snapshot %d not present in snapshot list", meta.CurrentSnapshotID)
		}
		// No committed snapshot yet: an empty table.
		return entries, nil
	}

	fileEntries, err := r.readCurrentSnapshot(ctx, snap)
	if err != nil {
		return nil, err
	}
	entries = append(entries, fileEntries...)

	// Snapshot markers come after file entries so that entries sharing a
	// position fold before the marker that closes them.
	snapshots := make([]*Snapshot, len(meta.Snapshots))
	copy(snapshots, meta.Snapshots)
	sort.SliceStable(snapshots, func(i, j int) bool {
		if snapshots[i].SequenceNumber != snapshots[j].SequenceNumber {
			return snapshots[i].SequenceNumber < snapshots[j].SequenceNumber
		}
		return snapshots[i].TimestampMs < snapshots[j].TimestampMs
	})
	for _, s := range snapshots {
		entries = append(entries, table.LogEntry{
			Kind:     table.SnapshotMarkerEntry,
			Position: s.SequenceNumber,
			Snapshot: &table.SnapshotMarker{
				ID:             s.SnapshotID,
				ParentID:       s.ParentSnapshotID,
				SequenceNumber: s.SequenceNumber,
				Timestamp:      s.TimestampMs,
			},
		})
	}

	return entries, nil
}

func (r *Reader) loadMetadata(ctx context.Context) (*TableMetadata, string, error) {
	key, err := r.resolveMetadataKey(ctx)
	if err != nil {
		return nil, "", err
	}

	data, err := r.store.Read(ctx, key)
	if err != nil {
		return nil, "", err
	}

	var meta TableMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, "", table.WrapError(table.KindCorrupt, key, err)
	}
	return &meta, key, nil
}

// resolveMetadataKey prefers the version-hint pointer and falls back to
// listing the metadata directory for the highest-versioned metadata file.
func (r *Reader) resolveMetadataKey(ctx context.Context) (string, error) {
	hint, err := r.store.Read(ctx, versionHintKey)
	switch {
	case err == nil:
		version := strings.TrimSpace(string(hint))
		key := fmt.Sprintf("%sv%s.metadata.json", metadataDir, version)
		if _, rerr := r.store.Read(ctx, key); rerr == nil {
			return key, nil
		} else if !table.IsKind(rerr, table.KindNotFound) {
			return "", rerr
		}
	case !table.IsKind(err, table.KindNotFound):
		return "", err
	}

	objects, err := r.store.List(ctx, metadataDir)
	if err != nil {
		return "", err
	}
	var newest string
	newestVersion := int64(-1)
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Key, ".metadata.json") {
			continue
		}
		v := metadataVersion(obj.Key)
		if newest == "" || v > newestVersion || (v == newestVersion && obj.Key > newest) {
			newest, newestVersion = obj.Key, v
		}
	}
	if newest == "" {
		return "", table.NewError(table.KindMissingLog, metadataDir, "no table metadata found")
	}
	return newest, nil
}

// metadataVersion extracts the numeric version from a metadata file name,
// covering both v10.metadata.json and 00010-uuid.metadata.json naming.
// Non-numeric names yield -1 and lose to any numbered file; key order breaks
// ties among them.
func metadataVersion(key string) int64 {
	base := strings.TrimSuffix(path.Base(key), ".metadata.json")
	base = strings.TrimPrefix(base, "v")
	if i := strings.IndexByte(base, '-'); i >= 0 {
		base = base[:i]
	}
	v, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return -1
	}
	return v
}

func (r *Reader) readCurrentSnapshot(ctx context.Context, snap *Snapshot) ([]table.LogEntry, error) {
	listKey := relativeKey(snap.ManifestList)
	data, err := r.store.Read(ctx, listKey)
	if err != nil {
		return nil, err
	}

	manifests, err := decodeManifestList(listKey, data)
	if err != nil {
		return nil, err
	}

	payloads := make([][]byte, len(manifests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchWorkers)
	for i, mf := range manifests {
		i, mf := i, mf
		g.Go(func() error {
			data, err := r.store.Read(gctx, relativeKey(mf.ManifestPath))
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

	var entries []table.LogEntry
	for i, mf := range manifests {
		manifestKey := relativeKey(mf.ManifestPath)
		manifestEntries, err := decodeManifest(manifestKey, payloads[i])
		if err != nil {
			return nil, err
		}
		for _, me := range manifestEntries {
			position := me.SequenceNum
			if position == 0 {
				position = mf.SequenceNumber
			}
			if position == 0 {
				position = snap.SequenceNumber
			}

			if me.Status == StatusDeleted {
				entries = append(entries, table.LogEntry{
					Kind:     table.RemoveFileEntry,
					Position: position,
					Remove:   &table.RemoveFile{Path: relativeKey(me.DataFile.FilePath)},
				})
				continue
			}
			entries = append(entries, table.LogEntry{
				Kind:     table.AddFileEntry,
				Position: position,
				Add: &table.AddFile{
					Path:            relativeKey(me.DataFile.FilePath),
					Size:            me.DataFile.FileSizeBytes,
					PartitionValues: me.DataFile.Partition,
					RecordCount:     me.DataFile.RecordCount,
				},
			})
		}
	}

	return entries, nil
}

func decodeManifestList(key string, data []byte) ([]ManifestFile, error) {
	dec, err := ocf.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, table.WrapError(table.KindCorrupt, key, err)
	}

	var manifests []ManifestFile
	for dec.HasNext() {
		var mf ManifestFile
		if err := dec.Decode(&mf); err != nil {
			return nil, table.WrapError(table.KindCorrupt, key, err)
		}
		manifests = append(manifests, mf)
	}
	if err := dec.Error(); err != nil {
		return nil, table.WrapError(table.KindCorrupt, key, err)
	}
	return manifests, nil
}

func decodeManifest(key string, data []byte) ([]ManifestEntry, error) {
	dec, err := ocf.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, table.WrapError(table.KindCorrupt, key, err)
	}

	var entries []ManifestEntry
	for dec.HasNext() {
		var me ManifestEntry
		if err := dec.Decode(&me); err != nil {
			return nil, table.WrapError(table.KindCorrupt, key, err)
		}
		entries = append(entries, me)
	}
	if err := dec.Error(); err != nil {
		return nil, table.WrapError(table.KindCorrupt, key, err)
	}
	return entries, nil
}

func metadataEntry(meta *TableMetadata) table.LogEntry {
	md := &table.Metadata{
		Configuration: meta.Properties,
		FormatVersion: meta.FormatVersion,
	}
	if s := meta.CurrentSchema(); s != nil {
		md.Schema.Fields = make([]table.Field, 0, len(s.Fields))
		for _, f := range s.Fields {
			md.Schema.Fields = append(md.Schema.Fields, table.Field{
				ID:       f.ID,
				Name:     f.Name,
				Type:     f.Type,
				Required: f.Required,
			})
		}
	}
	if spec := meta.DefaultSpec(); spec != nil {
		md.PartitionColumns = make([]string, 0, len(spec.Fields))
		for _, f := range spec.Fields {
			md.PartitionColumns = append(md.PartitionColumns, f.Name)
		}
	}
	return table.LogEntry{Kind: table.MetadataEntry, Position: 0, Metadata: md}
}

// relativeKey maps an absolute table location (s3://bucket/prefix/metadata/x
// or /warehouse/table/data/y) onto a key relative to the table root. Paths
// already relative pass through.
func relativeKey(location string) string {
	for _, dir := range []string{"/metadata/", "/data/"} {
		if i := strings.LastIndex(location, dir); i >= 0 {
			return location[i+1:]
		}
	}
	return location
}
