package health

import "sync"

// Service evaluates cache signals against a set of registered check strategies
type Service struct {
	mu         sync.RWMutex
	strategies []CheckStrategy
	thresholds Thresholds
}

// NewService creates a health service with the compliance, capacity and hit rate checks
func NewService(thresholds Thresholds) *Service {
	s := &Service{thresholds: thresholds}
	s.RegisterStrategy(&ComplianceCheck{})
	s.RegisterStrategy(&CapacityCheck{})
	s.RegisterStrategy(&HitRateCheck{})
	return s
}

// RegisterStrategy adds a check; a strategy with the same name replaces the old one
func (s *Service) RegisterStrategy(strategy CheckStrategy) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.strategies {
		if existing.Name() == strategy.Name() {
			s.strategies[i] = strategy
			return
		}
	}
	s.strategies = append(s.strategies, strategy)
}

// Thresholds returns the limits in use
func (s *Service) Thresholds() Thresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thresholds
}

// Evaluate runs every registered check in registration order
func (s *Service) Evaluate(signals Signals) Report {
	s.mu.RLock()
	defer s.mu.RUnlock()

	issues := make([]string, 0, len(s.strategies))
	for _, strategy := range s.strategies {
		if issue := strategy.Check(signals, s.thresholds); issue != "" {
			issues = append(issues, issue)
		}
	}

	return Report{
		Status: StatusForIssueCount(len(issues)),
		Issues: issues,
	}
}

// Evaluate runs the default checks with the given thresholds
func Evaluate(signals Signals, thresholds Thresholds) Report {
	return NewService(thresholds).Evaluate(signals)
}

// StatusForIssueCount maps an issue count to a status:
// none is healthy, one or two is degraded, three or more is unhealthy
func StatusForIssueCount(n int) HealthStatus {
	switch {
	case n <= 0:
		return StatusHealthy
	case n <= 2:
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}
