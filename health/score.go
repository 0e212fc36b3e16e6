package health

// Score folds findings into the composite health score:
// 1.0 minus a fixed penalty per finding severity, clamped to [0.0, 1.0].
func Score(findings []Finding, cfg RuleConfig) float64 {
	score := 1.0
	for _, f := range findings {
		score -= penalty(f.Severity, cfg)
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func penalty(severity Severity, cfg RuleConfig) float64 {
	switch severity {
	case SeverityWarning:
		return cfg.WarningPenalty
	case SeverityCritical:
		return cfg.CriticalPenalty
	default:
		return 0
	}
}
