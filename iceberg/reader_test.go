package iceberg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/hamba/avro/v2/ocf"

	"drainage/storage"
	"drainage/table"
)

func encodeAvro(t *testing.T, schema string, records any) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := ocf.NewEncoder(schema, &buf)
	if err != nil {
		t.Fatalf("creating avro encoder: %v", err)
	}
	switch rs := records.(type) {
	case []ManifestFile:
		for _, r := range rs {
			if err := enc.Encode(r); err != nil {
				t.Fatalf("encoding manifest file: %v", err)
			}
		}
	case []ManifestEntry:
		for _, r := range rs {
			if err := enc.Encode(r); err != nil {
				t.Fatalf("encoding manifest entry: %v", err)
			}
		}
	default:
		t.Fatalf("unsupported record type %T", records)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("closing avro encoder: %v", err)
	}
	return buf.Bytes()
}

func putMetadata(t *testing.T, m *storage.Memory, version int, meta *TableMetadata) {
	t.Helper()
	data, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("marshaling metadata: %v", err)
	}
	m.Put(fmt.Sprintf("metadata/v%d.metadata.json", version), data)
	m.Put("metadata/version-hint.text", []byte(fmt.Sprintf("%d", version)))
}

func testMetadata(snapshots ...*Snapshot) *TableMetadata {
	meta := &TableMetadata{
		FormatVersion:   2,
		TableUUID:       "11111111-2222-3333-4444-555555555555",
		Location:        "s3://bucket/table",
		CurrentSchemaID: 0,
		Schemas: []SchemaV2{{
			SchemaID: 0,
			Fields: []Field{
				{ID: 1, Name: "id", Type: "long", Required: true},
				{ID: 2, Name: "day", Type: "string"},
			},
		}},
		DefaultSpecID: 0,
		PartitionSpecs: []PartitionSpec{{
			SpecID: 0,
			Fields: []PartitionField{{SourceID: 2, FieldID: 1000, Name: "day", Transform: "identity"}},
		}},
		Snapshots: snapshots,
	}
	if len(snapshots) > 0 {
		meta.CurrentSnapshotID = snapshots[len(snapshots)-1].SnapshotID
	}
	return meta
}

func dataFile(path, day string, size int64) DataFile {
	return DataFile{
		FilePath:      "s3://bucket/table/data/" + path,
		FileFormat:    "PARQUET",
		Partition:     map[string]string{"day": day},
		RecordCount:   10,
		FileSizeBytes: size,
	}
}

func TestReadLogSingleSnapshot(t *testing.T) {
	m := storage.NewMemory()

	manifest := encodeAvro(t, ManifestEntrySchema, []ManifestEntry{
		{Status: StatusAdded, SnapshotID: 100, SequenceNum: 1, DataFile: dataFile("part-0.parquet", "2023-01-01", 1<<20)},
		{Status: StatusAdded, SnapshotID: 100, SequenceNum: 1, DataFile: dataFile("part-1.parquet", "2023-01-02", 2<<20)},
	})
	m.Put("metadata/manifest-1.avro", manifest)

	manifestList := encodeAvro(t, ManifestListSchema, []ManifestFile{
		{ManifestPath: "s3://bucket/table/metadata/manifest-1.avro", ManifestLength: int64(len(manifest)), AddedSnapshotID: 100, SequenceNumber: 1},
	})
	m.Put("metadata/snap-100.avro", manifestList)

	putMetadata(t, m, 1, testMetadata(&Snapshot{
		SnapshotID:     100,
		SequenceNumber: 1,
		TimestampMs:    1700000000000,
		ManifestList:   "s3://bucket/table/metadata/snap-100.avro",
	}))

	entries, err := NewReader(m).ReadLog(context.Background())
	if err != nil {
		t.Fatalf("ReadLog failed: %v", err)
	}

	st, err := table.Build(entries, table.BuildOptions{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if st.FileCount() != 2 {
		t.Fatalf("expected 2 active files, got %d", st.FileCount())
	}
	ref, ok := st.ActiveFiles["data/part-0.parquet"]
	if !ok {
		t.Fatalf("expected data/part-0.parquet active, have %v", st.ActiveFiles)
	}
	if ref.Size != 1<<20 || ref.PartitionValues["day"] != "2023-01-01" || ref.RecordCount != 10 {
		t.Errorf("unexpected file ref: %+v", ref)
	}
	if len(st.SnapshotHistory) != 1 || st.SnapshotHistory[0].ID != 100 || st.SnapshotHistory[0].AddedFiles != 2 {
		t.Errorf("unexpected snapshot history: %+v", st.SnapshotHistory)
	}
	if len(st.Schema.Fields) != 2 || st.Schema.Fields[0].Name != "id" {
		t.Errorf("unexpected schema: %+v", st.Schema)
	}
	if len(st.PartitionColumns) != 1 || st.PartitionColumns[0] != "day" {
		t.Errorf("unexpected partition columns: %v", st.PartitionColumns)
	}
	if st.FormatVersion != 2 {
		t.Errorf("expected format version 2, got %d", st.FormatVersion)
	}
}

func TestReadLogDeletedEntriesBecomeTombstones(t *testing.T) {
	m := storage.NewMemory()

	manifest := encodeAvro(t, ManifestEntrySchema, []ManifestEntry{
		{Status: StatusAdded, SnapshotID: 100, SequenceNum: 1, DataFile: dataFile("part-0.parquet", "2023-01-01", 1<<20)},
		{Status: StatusDeleted, SnapshotID: 101, SequenceNum: 2, DataFile: dataFile("part-0.parquet", "2023-01-01", 1<<20)},
		{Status: StatusExisting, SnapshotID: 101, SequenceNum: 1, DataFile: dataFile("part-1.parquet", "2023-01-02", 2<<20)},
	})
	m.Put("metadata/manifest-2.avro", manifest)

	manifestList := encodeAvro(t, ManifestListSchema, []ManifestFile{
		{ManifestPath: "s3://bucket/table/metadata/manifest-2.avro", ManifestLength: int64(len(manifest)), AddedSnapshotID: 101, SequenceNumber: 2},
	})
	m.Put("metadata/snap-101.avro", manifestList)

	putMetadata(t, m, 2, testMetadata(
		&Snapshot{SnapshotID: 100, SequenceNumber: 1, TimestampMs: 1700000000000, ManifestList: "unused"},
		&Snapshot{SnapshotID: 101, ParentSnapshotID: 100, SequenceNumber: 2, TimestampMs: 1700000100000, ManifestList: "s3://bucket/table/metadata/snap-101.avro"},
	))

	entries, err := NewReader(m).ReadLog(context.Background())
	if err != nil {
		t.Fatalf("ReadLog failed: %v", err)
	}
	st, err := table.Build(entries, table.BuildOptions{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if st.FileCount() != 1 {
		t.Fatalf("expected 1 active file, got %d: %v", st.FileCount(), st.ActiveFiles)
	}
	if _, ok := st.ActiveFiles["data/part-1.parquet"]; !ok {
		t.Errorf("part-1 should remain active")
	}
	if _, ok := st.RemovedFiles["data/part-0.parquet"]; !ok {
		t.Errorf("deleted entry should surface as an orphan candidate")
	}
	if len(st.SnapshotHistory) != 2 {
		t.Errorf("expected 2 snapshots in history, got %d", len(st.SnapshotHistory))
	}
}

func TestReadLogCorruptManifest(t *testing.T) {
	m := storage.NewMemory()

	m.Put("metadata/manifest-3.avro", []byte("this is not avro"))
	manifestList := encodeAvro(t, ManifestListSchema, []ManifestFile{
		{ManifestPath: "s3://bucket/table/metadata/manifest-3.avro", ManifestLength: 16, AddedSnapshotID: 100, SequenceNumber: 1},
	})
	m.Put("metadata/snap-100.avro", manifestList)

	putMetadata(t, m, 1, testMetadata(&Snapshot{
		SnapshotID:     100,
		SequenceNumber: 1,
		ManifestList:   "s3://bucket/table/metadata/snap-100.avro",
	}))

	_, err := NewReader(m).ReadLog(context.Background())
	if !table.IsKind(err, table.KindCorrupt) {
		t.Fatalf("expected corrupt error, got %v", err)
	}
	var te *table.Error
	if !errors.As(err, &te) || te.Key != "metadata/manifest-3.avro" {
		t.Errorf("corrupt error should name the manifest, got %v", err)
	}
}

func TestReadLogEmptyTable(t *testing.T) {
	m := storage.NewMemory()
	putMetadata(t, m, 1, testMetadata())

	entries, err := NewReader(m).ReadLog(context.Background())
	if err != nil {
		t.Fatalf("ReadLog failed: %v", err)
	}
	st, err := table.Build(entries, table.BuildOptions{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if st.FileCount() != 0 || len(st.SnapshotHistory) != 0 {
		t.Errorf("expected empty state, got %+v", st)
	}
	if len(st.Schema.Fields) != 2 {
		t.Errorf("schema should still be surfaced for empty tables, got %+v", st.Schema)
	}
}

func TestReadLogMissingMetadata(t *testing.T) {
	m := storage.NewMemory()
	m.Put("data/part-0.parquet", []byte("data"))

	_, err := NewReader(m).ReadLog(context.Background())
	if !table.IsKind(err, table.KindMissingLog) {
		t.Errorf("expected missing-log error, got %v", err)
	}
}

func TestReadLogCorruptMetadataJSON(t *testing.T) {
	m := storage.NewMemory()
	m.Put("metadata/v1.metadata.json", []byte("{not json"))
	m.Put("metadata/version-hint.text", []byte("1"))

	_, err := NewReader(m).ReadLog(context.Background())
	if !table.IsKind(err, table.KindCorrupt) {
		t.Errorf("expected corrupt error, got %v", err)
	}
}

func TestResolveMetadataKeyFallsBackToListing(t *testing.T) {
	m := storage.NewMemory()
	data, _ := json.Marshal(testMetadata())
	m.Put("metadata/00001-aaaa.metadata.json", data)
	m.Put("metadata/00002-bbbb.metadata.json", data)

	key, err := NewReader(m).resolveMetadataKey(context.Background())
	if err != nil {
		t.Fatalf("resolveMetadataKey failed: %v", err)
	}
	if key != "metadata/00002-bbbb.metadata.json" {
		t.Errorf("expected newest metadata file, got %q", key)
	}
}

func TestResolveMetadataKeyComparesVersionsNumerically(t *testing.T) {
	m := storage.NewMemory()
	data, _ := json.Marshal(testMetadata())

	// Unpadded version numbers sort wrong lexicographically: "v9" > "v10".
	m.Put("metadata/v9.metadata.json", data)
	m.Put("metadata/v10.metadata.json", data)

	key, err := NewReader(m).resolveMetadataKey(context.Background())
	if err != nil {
		t.Fatalf("resolveMetadataKey failed: %v", err)
	}
	if key != "metadata/v10.metadata.json" {
		t.Errorf("expected highest version, got %q", key)
	}
}

func TestResolveMetadataKeyNonNumericNames(t *testing.T) {
	m := storage.NewMemory()
	data, _ := json.Marshal(testMetadata())
	m.Put("metadata/current.metadata.json", data)

	key, err := NewReader(m).resolveMetadataKey(context.Background())
	if err != nil {
		t.Fatalf("resolveMetadataKey failed: %v", err)
	}
	if key != "metadata/current.metadata.json" {
		t.Errorf("expected the only metadata file, got %q", key)
	}
}

func TestRelativeKey(t *testing.T) {
	cases := map[string]string{
		"s3://bucket/prefix/table/metadata/snap-1.avro": "metadata/snap-1.avro",
		"s3://bucket/table/data/part-0.parquet":         "data/part-0.parquet",
		"/warehouse/table/data/part-1.parquet":          "data/part-1.parquet",
		"metadata/snap-2.avro":                          "metadata/snap-2.avro",
	}
	for in, want := range cases {
		if got := relativeKey(in); got != want {
			t.Errorf("relativeKey(%q) = %q, want %q", in, got, want)
		}
	}
}
