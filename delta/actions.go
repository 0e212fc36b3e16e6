package delta

import (
	"encoding/json"
	"fmt"

	"drainage/table"
)

// action is one JSON line of a Delta commit file. Exactly one field is set.
type action struct {
	Add        *addAction        `json:"add"`
	Remove     *removeAction     `json:"remove"`
	MetaData   *metaDataAction   `json:"metaData"`
	CommitInfo *commitInfoAction `json:"commitInfo"`
	Protocol   *protocolAction   `json:"protocol"`
}

type addAction struct {
	Path             string            `json:"path"`
	PartitionValues  map[string]string `json:"partitionValues"`
	Size             int64             `json:"size"`
	ModificationTime int64             `json:"modificationTime"`
	DataChange       bool              `json:"dataChange"`
	Stats            string            `json:"stats,omitempty"`
}

type removeAction struct {
	Path              string `json:"path"`
	DeletionTimestamp int64  `json:"deletionTimestamp"`
	DataChange        bool   `json:"dataChange"`
}

type metaDataAction struct {
	ID               string            `json:"id"`
	Name             string            `json:"name,omitempty"`
	SchemaString     string            `json:"schemaString"`
	PartitionColumns []string          `json:"partitionColumns"`
	Configuration    map[string]string `json:"configuration"`
}

type commitInfoAction struct {
	Timestamp int64  `json:"timestamp"`
	Operation string `json:"operation"`
}

type protocolAction struct {
	MinReaderVersion int `json:"minReaderVersion"`
	MinWriterVersion int `json:"minWriterVersion"`
}

// fileStats is the JSON blob inside an add action's stats field. Only the
// record count matters here.
type fileStats struct {
	NumRecords int64 `json:"numRecords"`
}

func recordCount(stats string) int64 {
	if stats == "" {
		return 0
	}
	var fs fileStats
	if err := json.Unmarshal([]byte(stats), &fs); err != nil {
		return 0
	}
	return fs.NumRecords
}

// sparkSchema mirrors the schemaString payload of a metaData action.
type sparkSchema struct {
	Type   string       `json:"type"`
	Fields []sparkField `json:"fields"`
}

type sparkField struct {
	Name     string          `json:"name"`
	Type     json.RawMessage `json:"type"`
	Nullable bool            `json:"nullable"`
}

// parseSchemaString converts a Delta schemaString into the format-agnostic
// schema. Nested types are kept as their container kind ("struct", "array",
// "map"); the health rules only need names and top-level shapes.
func parseSchemaString(s string) (table.Schema, error) {
	var ss sparkSchema
	if err := json.Unmarshal([]byte(s), &ss); err != nil {
		return table.Schema{}, fmt.Errorf("parsing schemaString: %w", err)
	}
	if ss.Type != "struct" {
		return table.Schema{}, fmt.Errorf("unexpected schema root type %q", ss.Type)
	}

	schema := table.Schema{Fields: make([]table.Field, 0, len(ss.Fields))}
	for i, f := range ss.Fields {
		typeName := "struct"
		var simple string
		if err := json.Unmarshal(f.Type, &simple); err == nil {
			typeName = simple
		} else {
			var nested struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(f.Type, &nested); err == nil && nested.Type != "" {
				typeName = nested.Type
			}
		}
		schema.Fields = append(schema.Fields, table.Field{
			ID:       i + 1,
			Name:     f.Name,
			Type:     typeName,
			Required: !f.Nullable,
		})
	}
	return schema, nil
}
