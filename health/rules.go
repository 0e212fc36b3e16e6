package health

import (
	"fmt"
	"math"

	"drainage/table"
)

// Severity ranks a finding.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Finding is one rule's verdict on a table. Immutable once produced.
type Finding struct {
	RuleID   string            `json:"rule_id"`
	Severity Severity          `json:"severity"`
	Message  string            `json:"message"`
	Evidence map[string]string `json:"evidence,omitempty"`
}

// File size buckets, matching the boundaries analysts reason about when
// sizing compaction work.
const (
	DefaultSmallFileBytes = 16 << 20  // 16 MiB
	mediumFileCeiling     = 128 << 20 // 128 MiB
	largeFileCeiling      = 1 << 30   // 1 GiB
)

// RuleConfig carries the externally supplied thresholds and penalty weights.
type RuleConfig struct {
	SmallFileBytes         int64   `yaml:"small_file_bytes"`
	SmallFileWarnRatio     float64 `yaml:"small_file_warn_ratio"`
	SmallFileCriticalRatio float64 `yaml:"small_file_critical_ratio"`
	SnapshotWarnCount      int     `yaml:"snapshot_warn_count"`
	SnapshotCriticalCount  int     `yaml:"snapshot_critical_count"`
	OrphanWarnRatio        float64 `yaml:"orphan_warn_ratio"`
	PartitionSkewCV        float64 `yaml:"partition_skew_cv"`
	WarningPenalty         float64 `yaml:"warning_penalty"`
	CriticalPenalty        float64 `yaml:"critical_penalty"`
}

// DefaultRuleConfig returns the documented defaults.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		SmallFileBytes:         DefaultSmallFileBytes,
		SmallFileWarnRatio:     0.3,
		SmallFileCriticalRatio: 0.6,
		SnapshotWarnCount:      50,
		SnapshotCriticalCount:  100,
		OrphanWarnRatio:        0.2,
		PartitionSkewCV:        0.75,
		WarningPenalty:         0.1,
		CriticalPenalty:        0.3,
	}
}

// Validate rejects configurations that would produce scores outside [0,1]
// or thresholds that can never trigger consistently.
func (c RuleConfig) Validate() error {
	if c.SmallFileBytes <= 0 {
		return table.NewError(table.KindInvalidInput, "", "small_file_bytes must be positive, got %d", c.SmallFileBytes)
	}
	for name, v := range map[string]float64{
		"small_file_warn_ratio":     c.SmallFileWarnRatio,
		"small_file_critical_ratio": c.SmallFileCriticalRatio,
		"orphan_warn_ratio":         c.OrphanWarnRatio,
		"warning_penalty":           c.WarningPenalty,
		"critical_penalty":          c.CriticalPenalty,
	} {
		if v < 0 || v > 1 {
			return table.NewError(table.KindInvalidInput, "", "%s must be within [0,1], got %g", name, v)
		}
	}
	if c.SmallFileWarnRatio > c.SmallFileCriticalRatio {
		return table.NewError(table.KindInvalidInput, "",
			"small_file_warn_ratio %g exceeds small_file_critical_ratio %g",
			c.SmallFileWarnRatio, c.SmallFileCriticalRatio)
	}
	if c.SnapshotWarnCount <= 0 || c.SnapshotCriticalCount <= 0 || c.SnapshotWarnCount > c.SnapshotCriticalCount {
		return table.NewError(table.KindInvalidInput, "",
			"snapshot thresholds must be positive with warn <= critical, got %d/%d",
			c.SnapshotWarnCount, c.SnapshotCriticalCount)
	}
	if c.PartitionSkewCV <= 0 {
		return table.NewError(table.KindInvalidInput, "", "partition_skew_cv must be positive, got %g", c.PartitionSkewCV)
	}
	return nil
}

// Rule is one independent, pure scoring check. Eval returns nil when the
// rule has nothing to report.
type Rule struct {
	ID   string
	Eval func(*table.TableState, RuleConfig) *Finding
}

// Rules returns the baseline rule set in its fixed declared order. The order
// affects only the sequence of findings, never their content.
func Rules() []Rule {
	return []Rule{
		{ID: "small_files", Eval: smallFilesRule},
		{ID: "snapshot_bloat", Eval: snapshotBloatRule},
		{ID: "orphaned_files", Eval: orphanedFilesRule},
		{ID: "partition_skew", Eval: partitionSkewRule},
	}
}

// Evaluate runs every rule against the state and collects findings in rule
// order. Rules share no mutable state and cannot fail.
func Evaluate(state *table.TableState, cfg RuleConfig) []Finding {
	var findings []Finding
	for _, rule := range Rules() {
		if f := rule.Eval(state, cfg); f != nil {
			f.RuleID = rule.ID
			findings = append(findings, *f)
		}
	}
	return findings
}

func smallFilesRule(state *table.TableState, cfg RuleConfig) *Finding {
	total := state.FileCount()
	if total == 0 {
		return nil
	}

	var small, medium, large, veryLarge int
	for _, f := range state.ActiveFiles {
		switch {
		case f.Size < cfg.SmallFileBytes:
			small++
		case f.Size < mediumFileCeiling:
			medium++
		case f.Size < largeFileCeiling:
			large++
		default:
			veryLarge++
		}
	}

	ratio := float64(small) / float64(total)
	var severity Severity
	switch {
	case ratio >= cfg.SmallFileCriticalRatio:
		severity = SeverityCritical
	case ratio >= cfg.SmallFileWarnRatio:
		severity = SeverityWarning
	default:
		return nil
	}

	return &Finding{
		Severity: severity,
		Message: fmt.Sprintf("%d of %d data files (%.0f%%) are below %d bytes; compaction recommended",
			small, total, ratio*100, cfg.SmallFileBytes),
		Evidence: map[string]string{
			"small_files":      fmt.Sprintf("%d", small),
			"medium_files":     fmt.Sprintf("%d", medium),
			"large_files":      fmt.Sprintf("%d", large),
			"very_large_files": fmt.Sprintf("%d", veryLarge),
			"total_files":      fmt.Sprintf("%d", total),
			"small_file_ratio": fmt.Sprintf("%.4f", ratio),
		},
	}
}

func snapshotBloatRule(state *table.TableState, cfg RuleConfig) *Finding {
	count := len(state.SnapshotHistory)

	var severity Severity
	switch {
	case count > cfg.SnapshotCriticalCount:
		severity = SeverityCritical
	case count > cfg.SnapshotWarnCount:
		severity = SeverityWarning
	default:
		return nil
	}

	// A long history that is still adding data is churn, not pure bloat;
	// stale history with no net growth is the expensive case.
	var recentAdded int64
	tail := state.SnapshotHistory
	if len(tail) > 10 {
		tail = tail[len(tail)-10:]
	}
	for _, s := range tail {
		recentAdded += s.AddedBytes
	}

	return &Finding{
		Severity: severity,
		Message: fmt.Sprintf("%d snapshots retained (threshold %d); expire old snapshots to reclaim metadata",
			count, cfg.SnapshotWarnCount),
		Evidence: map[string]string{
			"snapshot_count":     fmt.Sprintf("%d", count),
			"recent_added_bytes": fmt.Sprintf("%d", recentAdded),
			"retention_risk":     fmt.Sprintf("%.1f", snapshotRetentionRisk(count)),
		},
	}
}

// snapshotRetentionRisk maps a snapshot count onto a 0..1 risk tier.
func snapshotRetentionRisk(count int) float64 {
	switch {
	case count > 100:
		return 0.8
	case count > 50:
		return 0.5
	case count > 20:
		return 0.2
	default:
		return 0.0
	}
}

func orphanedFilesRule(state *table.TableState, cfg RuleConfig) *Finding {
	removed := len(state.RemovedFiles)
	if removed == 0 {
		return nil
	}

	total := removed + state.FileCount()
	ratio := float64(removed) / float64(total)
	if ratio < cfg.OrphanWarnRatio {
		return nil
	}

	var removedBytes int64
	for _, f := range state.RemovedFiles {
		removedBytes += f.Size
	}

	// Always a warning: remediation needs a vacuum/expire run outside this
	// engine's scope.
	return &Finding{
		Severity: SeverityWarning,
		Message: fmt.Sprintf("%d tombstoned files (%d bytes) still referenced by superseded metadata; vacuum to reclaim",
			removed, removedBytes),
		Evidence: map[string]string{
			"orphan_candidates": fmt.Sprintf("%d", removed),
			"orphan_bytes":      fmt.Sprintf("%d", removedBytes),
			"orphan_ratio":      fmt.Sprintf("%.4f", ratio),
		},
	}
}

func partitionSkewRule(state *table.TableState, cfg RuleConfig) *Finding {
	if len(state.PartitionColumns) == 0 {
		return nil
	}

	counts := make(map[string]int)
	bytes := make(map[string]int64)
	for _, f := range state.ActiveFiles {
		key := table.PartitionKey(f.PartitionValues)
		counts[key]++
		bytes[key] += f.Size
	}
	if len(counts) < 2 {
		return nil
	}

	countSamples := make([]float64, 0, len(counts))
	byteSamples := make([]float64, 0, len(bytes))
	var largest, smallest int64 = 0, math.MaxInt64
	for key, n := range counts {
		countSamples = append(countSamples, float64(n))
		byteSamples = append(byteSamples, float64(bytes[key]))
		if bytes[key] > largest {
			largest = bytes[key]
		}
		if bytes[key] < smallest {
			smallest = bytes[key]
		}
	}

	cvFiles := coefficientOfVariation(countSamples)
	cvBytes := coefficientOfVariation(byteSamples)
	if cvFiles <= cfg.PartitionSkewCV && cvBytes <= cfg.PartitionSkewCV {
		return nil
	}

	return &Finding{
		Severity: SeverityWarning,
		Message: fmt.Sprintf("partition sizes are uneven across %d partitions (cv files %.2f, cv bytes %.2f); consider repartitioning",
			len(counts), cvFiles, cvBytes),
		Evidence: map[string]string{
			"partition_count":          fmt.Sprintf("%d", len(counts)),
			"cv_file_counts":           fmt.Sprintf("%.4f", cvFiles),
			"cv_bytes":                 fmt.Sprintf("%.4f", cvBytes),
			"largest_partition_bytes":  fmt.Sprintf("%d", largest),
			"smallest_partition_bytes": fmt.Sprintf("%d", smallest),
		},
	}
}

// coefficientOfVariation is stddev/mean over the population, 0 for a zero
// mean.
func coefficientOfVariation(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	mean := sum / float64(len(samples))
	if mean == 0 {
		return 0
	}
	var variance float64
	for _, s := range samples {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(len(samples))
	return math.Sqrt(variance) / mean
}
