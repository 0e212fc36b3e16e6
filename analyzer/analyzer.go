// Package analyzer ties the format readers, the state fold, and the rule
// engine together into the analyze entry points.
package analyzer

import (
	"context"
	"strings"

	"drainage/delta"
	"drainage/health"
	"drainage/iceberg"
	"drainage/report"
	"drainage/storage"
	"drainage/table"
)

// Table formats the analyzer understands.
const (
	FormatDelta   = "delta"
	FormatIceberg = "iceberg"
)

// LogReader is the capability both format readers satisfy: one ordered pass
// over the table's transaction history.
type LogReader interface {
	ReadLog(ctx context.Context) ([]table.LogEntry, error)
}

// Analyzer runs read-only health analysis against one table prefix.
type Analyzer struct {
	store     storage.Store
	tablePath string
	rules     health.RuleConfig
}

// New builds an analyzer over an already-scoped store. tablePath is only
// echoed into the report; all object access goes through the store.
func New(store storage.Store, tablePath string, rules health.RuleConfig) *Analyzer {
	return &Analyzer{store: store, tablePath: tablePath, rules: rules}
}

// Analyze detects the table format from a listing and dispatches to the
// matching reader.
func (a *Analyzer) Analyze(ctx context.Context) (report.HealthReport, error) {
	format, err := a.DetectFormat(ctx)
	if err != nil {
		return report.HealthReport{}, err
	}
	if format == FormatIceberg {
		return a.AnalyzeIceberg(ctx)
	}
	return a.AnalyzeDeltaLake(ctx)
}

// AnalyzeDeltaLake analyzes the table as a Delta Lake table.
func (a *Analyzer) AnalyzeDeltaLake(ctx context.Context) (report.HealthReport, error) {
	return a.run(ctx, FormatDelta, delta.NewReader(a.store))
}

// AnalyzeIceberg analyzes the table as an Apache Iceberg table.
func (a *Analyzer) AnalyzeIceberg(ctx context.Context) (report.HealthReport, error) {
	return a.run(ctx, FormatIceberg, iceberg.NewReader(a.store))
}

func (a *Analyzer) run(ctx context.Context, format string, reader LogReader) (report.HealthReport, error) {
	entries, err := reader.ReadLog(ctx)
	if err != nil {
		return report.HealthReport{}, err
	}

	state, err := table.Build(entries, table.BuildOptions{})
	if err != nil {
		return report.HealthReport{}, err
	}

	findings := health.Evaluate(state, a.rules)
	return report.Assemble(a.tablePath, format, state, findings, a.rules), nil
}

// DetectFormat classifies the table from one listing of its prefix: a
// _delta_log/ directory marks Delta, metadata/*.metadata.json marks Iceberg.
// Delta wins if both are present since its log is authoritative for the
// prefix.
func (a *Analyzer) DetectFormat(ctx context.Context) (string, error) {
	objects, err := a.store.List(ctx, "")
	if err != nil {
		return "", err
	}

	var sawIceberg bool
	for _, obj := range objects {
		if strings.HasPrefix(obj.Key, "_delta_log/") {
			return FormatDelta, nil
		}
		if strings.HasPrefix(obj.Key, "metadata/") && strings.HasSuffix(obj.Key, ".metadata.json") {
			sawIceberg = true
		}
	}
	if sawIceberg {
		return FormatIceberg, nil
	}

	return "", table.NewError(table.KindMissingLog, a.tablePath,
		"no Delta log or Iceberg metadata under table prefix")
}
