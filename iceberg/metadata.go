package iceberg

// Table metadata as persisted in metadata/*.metadata.json. Only the fields
// the analyzer consumes are mapped.

type PartitionSpec struct {
	SpecID int              `json:"spec-id"`
	Fields []PartitionField `json:"fields"`
}

type PartitionField struct {
	SourceID  int    `json:"source-id"`
	FieldID   int    `json:"field-id"`
	Name      string `json:"name"`
	Transform string `json:"transform"`
}

type TableMetadata struct {
	FormatVersion     int               `json:"format-version"`
	TableUUID         string            `json:"table-uuid"`
	Location          string            `json:"location"`
	LastUpdated       int64             `json:"last-updated-ms"`
	LastColumnID      int               `json:"last-column-id"`
	CurrentSchemaID   int               `json:"current-schema-id"`
	Schemas           []SchemaV2        `json:"schemas"`
	DefaultSpecID     int               `json:"default-spec-id"`
	PartitionSpecs    []PartitionSpec   `json:"partition-specs"`
	Properties        map[string]string `json:"properties"`
	CurrentSnapshotID int64             `json:"current-snapshot-id"`
	Snapshots         []*Snapshot       `json:"snapshots"`
}

type SchemaV2 struct {
	SchemaID int     `json:"schema-id"`
	Fields   []Field `json:"fields"`
}

type Field struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

type Snapshot struct {
	SnapshotID       int64             `json:"snapshot-id"`
	ParentSnapshotID int64             `json:"parent-snapshot-id"`
	SequenceNumber   int64             `json:"sequence-number"`
	TimestampMs      int64             `json:"timestamp-ms"`
	ManifestList     string            `json:"manifest-list"`
	Summary          map[string]string `json:"summary"`
}

// CurrentSchema resolves the schema named by current-schema-id, falling back
// to the first schema for metadata written before schema lists existed.
func (m *TableMetadata) CurrentSchema() *SchemaV2 {
	for i := range m.Schemas {
		if m.Schemas[i].SchemaID == m.CurrentSchemaID {
			return &m.Schemas[i]
		}
	}
	if len(m.Schemas) > 0 {
		return &m.Schemas[0]
	}
	return nil
}

// DefaultSpec resolves the partition spec named by default-spec-id.
func (m *TableMetadata) DefaultSpec() *PartitionSpec {
	for i := range m.PartitionSpecs {
		if m.PartitionSpecs[i].SpecID == m.DefaultSpecID {
			return &m.PartitionSpecs[i]
		}
	}
	if len(m.PartitionSpecs) > 0 {
		return &m.PartitionSpecs[0]
	}
	return nil
}

// CurrentSnapshot resolves the live snapshot pointer, nil when the table has
// no committed snapshot yet.
func (m *TableMetadata) CurrentSnapshot() *Snapshot {
	if m.CurrentSnapshotID <= 0 {
		return nil
	}
	for _, s := range m.Snapshots {
		if s.SnapshotID == m.CurrentSnapshotID {
			return s
		}
	}
	return nil
}
