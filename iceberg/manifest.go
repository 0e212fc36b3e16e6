package iceberg

// Manifest statuses as stored in the entry's status field.
const (
	StatusAdded    int32 = 1
	StatusExisting int32 = 2
	StatusDeleted  int32 = 3
)

// ManifestFile is one entry of a snapshot's manifest list.
type ManifestFile struct {
	ManifestPath    string `avro:"manifest_path"`
	ManifestLength  int64  `avro:"manifest_length"`
	PartitionSpecID int32  `avro:"partition_spec_id"`
	AddedSnapshotID int64  `avro:"added_snapshot_id"`
	SequenceNumber  int64  `avro:"sequence_number"`
}

// ManifestEntry is one data-file record inside a manifest file.
type ManifestEntry struct {
	Status      int32    `avro:"status"`
	SnapshotID  int64    `avro:"snapshot_id"`
	SequenceNum int64    `avro:"sequence_number"`
	DataFile    DataFile `avro:"data_file"`
}

type DataFile struct {
	FilePath      string            `avro:"file_path"`
	FileFormat    string            `avro:"file_format"`
	Partition     map[string]string `avro:"partition"`
	RecordCount   int64             `avro:"record_count"`
	FileSizeBytes int64             `avro:"file_size_bytes"`
}

// Avro schemas for the manifest structures. The OCF decoder resolves against
// the writer schema embedded in each file; these are used when producing
// fixtures and by writers.
const ManifestListSchema = `{
  "type": "record",
  "name": "manifest_file",
  "fields": [
    {"name": "manifest_path", "type": "string"},
    {"name": "manifest_length", "type": "long"},
    {"name": "partition_spec_id", "type": "int"},
    {"name": "added_snapshot_id", "type": "long"},
    {"name": "sequence_number", "type": "long"}
  ]
}`

const ManifestEntrySchema = `{
  "type": "record",
  "name": "manifest_entry",
  "fields": [
    {"name": "status", "type": "int"},
    {"name": "snapshot_id", "type": "long"},
    {"name": "sequence_number", "type": "long"},
    {"name": "data_file", "type": {
      "type": "record",
      "name": "data_file",
      "fields": [
        {"name": "file_path", "type": "string"},
        {"name": "file_format", "type": "string"},
        {"name": "partition", "type": {"type": "map", "values": "string"}},
        {"name": "record_count", "type": "long"},
        {"name": "file_size_bytes", "type": "long"}
      ]
    }}
  ]
}`
