package health

import (
	"fmt"
	"testing"

	"drainage/table"
)

func stateWithFiles(files map[string]table.FileRef) *table.TableState {
	return &table.TableState{
		ActiveFiles:  files,
		RemovedFiles: make(map[string]table.FileRef),
	}
}

func TestEmptyTableIsHealthy(t *testing.T) {
	st := stateWithFiles(map[string]table.FileRef{})
	cfg := DefaultRuleConfig()

	findings := Evaluate(st, cfg)
	if len(findings) != 0 {
		t.Errorf("empty table should produce no findings, got %v", findings)
	}
	if score := Score(findings, cfg); score != 1.0 {
		t.Errorf("empty table should score 1.0, got %g", score)
	}
}

func TestSmallFileFragmentationCritical(t *testing.T) {
	files := make(map[string]table.FileRef, 1000)
	for i := 0; i < 900; i++ {
		p := fmt.Sprintf("small-%d.parquet", i)
		files[p] = table.FileRef{Path: p, Size: 1 << 20}
	}
	for i := 0; i < 100; i++ {
		p := fmt.Sprintf("big-%d.parquet", i)
		files[p] = table.FileRef{Path: p, Size: 64 << 20}
	}

	cfg := DefaultRuleConfig()
	findings := Evaluate(stateWithFiles(files), cfg)

	var found *Finding
	for i := range findings {
		if findings[i].RuleID == "small_files" {
			found = &findings[i]
		}
	}
	if found == nil {
		t.Fatalf("expected a small_files finding, got %v", findings)
	}
	if found.Severity != SeverityCritical {
		t.Errorf("900/1000 small files should be critical, got %s", found.Severity)
	}
	if found.Evidence["small_files"] != "900" || found.Evidence["total_files"] != "1000" {
		t.Errorf("unexpected evidence: %v", found.Evidence)
	}

	if score := Score(findings, cfg); score > 1.0-cfg.CriticalPenalty {
		t.Errorf("score %g should be at most %g", score, 1.0-cfg.CriticalPenalty)
	}
}

func TestSmallFileFragmentationWarning(t *testing.T) {
	files := make(map[string]table.FileRef)
	for i := 0; i < 4; i++ {
		p := fmt.Sprintf("small-%d.parquet", i)
		files[p] = table.FileRef{Path: p, Size: 1 << 20}
	}
	for i := 0; i < 6; i++ {
		p := fmt.Sprintf("big-%d.parquet", i)
		files[p] = table.FileRef{Path: p, Size: 64 << 20}
	}

	findings := Evaluate(stateWithFiles(files), DefaultRuleConfig())
	if len(findings) != 1 || findings[0].Severity != SeverityWarning {
		t.Errorf("40%% small files should be a single warning, got %v", findings)
	}
}

func TestSnapshotBloat(t *testing.T) {
	cfg := DefaultRuleConfig()

	cases := []struct {
		count    int
		severity Severity
		want     bool
	}{
		{count: 5, want: false},
		{count: 50, want: false},
		{count: 51, want: true, severity: SeverityWarning},
		{count: 150, want: true, severity: SeverityCritical},
	}
	for _, tc := range cases {
		st := stateWithFiles(map[string]table.FileRef{})
		for i := 0; i < tc.count; i++ {
			st.SnapshotHistory = append(st.SnapshotHistory, table.SnapshotSummary{ID: int64(i)})
		}
		f := snapshotBloatRule(st, cfg)
		if tc.want && (f == nil || f.Severity != tc.severity) {
			t.Errorf("count %d: expected %s finding, got %v", tc.count, tc.severity, f)
		}
		if !tc.want && f != nil {
			t.Errorf("count %d: expected no finding, got %v", tc.count, f)
		}
	}
}

func TestOrphanedFiles(t *testing.T) {
	st := stateWithFiles(map[string]table.FileRef{
		"live.parquet": {Path: "live.parquet", Size: 64 << 20},
	})
	st.RemovedFiles["dead.parquet"] = table.FileRef{Path: "dead.parquet", Size: 32 << 20}

	f := orphanedFilesRule(st, DefaultRuleConfig())
	if f == nil {
		t.Fatalf("expected an orphaned_files finding")
	}
	if f.Severity != SeverityWarning {
		t.Errorf("orphan risk is always a warning, got %s", f.Severity)
	}
	if f.Evidence["orphan_candidates"] != "1" {
		t.Errorf("unexpected evidence: %v", f.Evidence)
	}

	// Below the ratio threshold nothing fires.
	for i := 0; i < 20; i++ {
		p := fmt.Sprintf("live-%d.parquet", i)
		st.ActiveFiles[p] = table.FileRef{Path: p, Size: 64 << 20}
	}
	if f := orphanedFilesRule(st, DefaultRuleConfig()); f != nil {
		t.Errorf("1/22 orphan ratio should not fire, got %v", f)
	}
}

func TestPartitionSkew(t *testing.T) {
	cfg := DefaultRuleConfig()

	skewed := stateWithFiles(map[string]table.FileRef{})
	skewed.PartitionColumns = []string{"day"}
	skewed.ActiveFiles["lonely.parquet"] = table.FileRef{
		Path: "lonely.parquet", Size: 1 << 20,
		PartitionValues: map[string]string{"day": "2023-01-01"},
	}
	for i := 0; i < 99; i++ {
		p := fmt.Sprintf("hot-%d.parquet", i)
		skewed.ActiveFiles[p] = table.FileRef{
			Path: p, Size: 1 << 20,
			PartitionValues: map[string]string{"day": "2023-01-02"},
		}
	}
	if f := partitionSkewRule(skewed, cfg); f == nil {
		t.Errorf("99:1 partition split should fire the skew rule")
	}

	even := stateWithFiles(map[string]table.FileRef{})
	even.PartitionColumns = []string{"day"}
	for i := 0; i < 10; i++ {
		for d := 0; d < 3; d++ {
			p := fmt.Sprintf("part-%d-%d.parquet", d, i)
			even.ActiveFiles[p] = table.FileRef{
				Path: p, Size: 1 << 20,
				PartitionValues: map[string]string{"day": fmt.Sprintf("2023-01-0%d", d+1)},
			}
		}
	}
	if f := partitionSkewRule(even, cfg); f != nil {
		t.Errorf("even partitions should not fire, got %v", f)
	}

	unpartitioned := stateWithFiles(map[string]table.FileRef{
		"a.parquet": {Path: "a.parquet", Size: 1},
	})
	if f := partitionSkewRule(unpartitioned, cfg); f != nil {
		t.Errorf("unpartitioned table should not fire, got %v", f)
	}
}

func TestScoreBounds(t *testing.T) {
	cfg := DefaultRuleConfig()
	cfg.CriticalPenalty = 1.0
	cfg.WarningPenalty = 0.9

	var findings []Finding
	for i := 0; i < 10; i++ {
		findings = append(findings, Finding{RuleID: "r", Severity: SeverityCritical})
		findings = append(findings, Finding{RuleID: "r", Severity: SeverityWarning})
	}
	if score := Score(findings, cfg); score < 0 || score > 1 {
		t.Errorf("score must stay within [0,1], got %g", score)
	}
	if score := Score(nil, cfg); score != 1.0 {
		t.Errorf("no findings should score 1.0, got %g", score)
	}
	if score := Score([]Finding{{Severity: SeverityInfo}}, cfg); score != 1.0 {
		t.Errorf("info findings carry no penalty, got %g", score)
	}
}

func TestScoreMonotonicSeverity(t *testing.T) {
	cfg := DefaultRuleConfig()
	base := []Finding{{RuleID: "a", Severity: SeverityWarning}}
	withCritical := append(append([]Finding{}, base...), Finding{RuleID: "b", Severity: SeverityCritical})

	if Score(withCritical, cfg) > Score(base, cfg) {
		t.Errorf("adding a critical finding must never raise the score")
	}
}

func TestRuleConfigValidate(t *testing.T) {
	if err := DefaultRuleConfig().Validate(); err != nil {
		t.Errorf("defaults must validate, got %v", err)
	}

	bad := DefaultRuleConfig()
	bad.CriticalPenalty = 1.5
	if err := bad.Validate(); !table.IsKind(err, table.KindInvalidInput) {
		t.Errorf("penalty outside [0,1] should be invalid input, got %v", err)
	}

	bad = DefaultRuleConfig()
	bad.SmallFileWarnRatio = 0.9
	bad.SmallFileCriticalRatio = 0.5
	if err := bad.Validate(); !table.IsKind(err, table.KindInvalidInput) {
		t.Errorf("warn ratio above critical ratio should be invalid input, got %v", err)
	}

	bad = DefaultRuleConfig()
	bad.SmallFileBytes = 0
	if err := bad.Validate(); !table.IsKind(err, table.KindInvalidInput) {
		t.Errorf("zero small file threshold should be invalid input, got %v", err)
	}
}

func TestEvaluateOrderIsFixed(t *testing.T) {
	// A table that trips every rule; findings must come back in declared order.
	st := stateWithFiles(map[string]table.FileRef{})
	st.PartitionColumns = []string{"day"}
	st.ActiveFiles["lonely.parquet"] = table.FileRef{
		Path: "lonely.parquet", Size: 1 << 10,
		PartitionValues: map[string]string{"day": "2023-01-01"},
	}
	for i := 0; i < 99; i++ {
		p := fmt.Sprintf("hot-%d.parquet", i)
		st.ActiveFiles[p] = table.FileRef{
			Path: p, Size: 1 << 10,
			PartitionValues: map[string]string{"day": "2023-01-02"},
		}
	}
	st.RemovedFiles["dead.parquet"] = table.FileRef{Path: "dead.parquet", Size: 1 << 30}
	for i := 0; i < 200; i++ {
		st.SnapshotHistory = append(st.SnapshotHistory, table.SnapshotSummary{ID: int64(i)})
	}
	// Make the orphan ratio pass its threshold.
	for i := 0; i < 30; i++ {
		st.RemovedFiles[fmt.Sprintf("dead-%d.parquet", i)] = table.FileRef{Size: 1 << 20}
	}

	findings := Evaluate(st, DefaultRuleConfig())
	want := []string{"small_files", "snapshot_bloat", "orphaned_files", "partition_skew"}
	if len(findings) != len(want) {
		t.Fatalf("expected %d findings, got %d: %v", len(want), len(findings), findings)
	}
	for i, id := range want {
		if findings[i].RuleID != id {
			t.Errorf("finding %d: expected rule %s, got %s", i, id, findings[i].RuleID)
		}
	}
}
