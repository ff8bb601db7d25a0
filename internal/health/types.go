package health

// HealthStatus is the derived state of the context cache
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// Thresholds are the limits each check compares its signal against
type Thresholds struct {
	MinComplianceRatio float64 // below this the cache holds unsanitized entries
	MaxFillRatio       float64 // entries/capacity above this is capacity pressure
	MinHitRate         float64 // below this lookups mostly miss
}

// DefaultThresholds returns the standard health limits
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinComplianceRatio: 1.0,
		MaxFillRatio:       0.9,
		MinHitRate:         0.5,
	}
}

// Signals are the cache measurements health is derived from
type Signals struct {
	ComplianceRatio float64
	Entries         int
	Capacity        int
	HitRate         float64
	Lookups         int64 // hit rate is only judged once a lookup happened
}

// Report is the outcome of one evaluation
type Report struct {
	Status HealthStatus
	Issues []string
}

// CheckStrategy is one health rule.
// Check returns a human readable issue, or "" when the rule passes.
type CheckStrategy interface {
	Name() string
	Check(signals Signals, thresholds Thresholds) string
}
