package health

import "fmt"

// --- Compliance Check Strategy ---

// ComplianceCheck flags entries stored without sanitization
type ComplianceCheck struct{}

func (c *ComplianceCheck) Name() string { return "compliance" }

func (c *ComplianceCheck) Check(signals Signals, thresholds Thresholds) string {
	if signals.ComplianceRatio >= thresholds.MinComplianceRatio {
		return ""
	}
	return fmt.Sprintf("Compliance ratio %.1f%% is below %.1f%%: unsanitized context entries present",
		signals.ComplianceRatio*100, thresholds.MinComplianceRatio*100)
}

// --- Capacity Check Strategy ---

// CapacityCheck flags a cache close to its entry limit
type CapacityCheck struct{}

func (c *CapacityCheck) Name() string { return "capacity" }

func (c *CapacityCheck) Check(signals Signals, thresholds Thresholds) string {
	if signals.Capacity <= 0 {
		return ""
	}
	fill := float64(signals.Entries) / float64(signals.Capacity)
	if fill <= thresholds.MaxFillRatio {
		return ""
	}
	return fmt.Sprintf("Cache is %.1f%% full (%d/%d entries)",
		fill*100, signals.Entries, signals.Capacity)
}

// --- Hit Rate Check Strategy ---

// HitRateCheck flags a low lookup hit rate
type HitRateCheck struct{}

func (c *HitRateCheck) Name() string { return "hit_rate" }

func (c *HitRateCheck) Check(signals Signals, thresholds Thresholds) string {
	if signals.Lookups == 0 || signals.HitRate >= thresholds.MinHitRate {
		return ""
	}
	return fmt.Sprintf("Hit rate %.1f%% is below %.1f%% over %d lookups",
		signals.HitRate*100, thresholds.MinHitRate*100, signals.Lookups)
}
