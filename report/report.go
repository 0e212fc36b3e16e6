// Package report assembles the final health report from a reconciled table
// state and the rule engine's findings. Pure aggregation, no I/O.
package report

import (
	"time"

	"github.com/google/uuid"

	"drainage/health"
	"drainage/table"
)

// TableSummary is the headline tally over the reconciled state.
type TableSummary struct {
	FileCount      int   `json:"file_count"`
	TotalBytes     int64 `json:"total_bytes"`
	SnapshotCount  int   `json:"snapshot_count"`
	PartitionCount int   `json:"partition_count"`
}

// HealthReport is the single value returned to the caller. Constructed once,
// never mutated afterwards.
type HealthReport struct {
	ReportID    string           `json:"report_id"`
	TablePath   string           `json:"table_path"`
	Format      string           `json:"format"`
	HealthScore float64          `json:"health_score"`
	Findings    []health.Finding `json:"findings"`
	Summary     TableSummary     `json:"summary"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// Assemble aggregates state and findings into a HealthReport. Deterministic
// given its inputs, except for the report ID and timestamp.
func Assemble(tablePath, format string, state *table.TableState, findings []health.Finding, cfg health.RuleConfig) HealthReport {
	return HealthReport{
		ReportID:    uuid.New().String(),
		TablePath:   tablePath,
		Format:      format,
		HealthScore: health.Score(findings, cfg),
		Findings:    findings,
		Summary: TableSummary{
			FileCount:      state.FileCount(),
			TotalBytes:     state.TotalBytes(),
			SnapshotCount:  len(state.SnapshotHistory),
			PartitionCount: state.PartitionCount(),
		},
		GeneratedAt: time.Now().UTC(),
	}
}
