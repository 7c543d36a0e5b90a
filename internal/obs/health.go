package obs

import "context"

// HealthStatus reports the aggregate health of a running engine.
type HealthStatus struct {
	Status string
	Checks map[string]*CheckResult
}

// CheckResult is the outcome of one named health check.
type CheckResult struct {
	Healthy bool
	Message string
}

// HealthSource is anything the HealthChecker can interrogate for its own
// notion of healthiness — the engine facade implements this by reporting
// whether its frame source and circuit breaker are in a healthy state.
type HealthSource interface {
	Healthy() (bool, string)
}

// HealthChecker performs health checks against a running engine.
type HealthChecker struct {
	src HealthSource
}

// NewHealthChecker creates a health checker bound to src.
func NewHealthChecker(src HealthSource) *HealthChecker {
	return &HealthChecker{src: src}
}

// Check performs a health check.
func (hc *HealthChecker) Check(ctx context.Context) (*HealthStatus, error) {
	if hc.src == nil {
		return &HealthStatus{
			Status: "healthy",
			Checks: map[string]*CheckResult{
				"basic": {Healthy: true, Message: "no source bound"},
			},
		}, nil
	}

	ok, msg := hc.src.Healthy()
	status := "healthy"
	if !ok {
		status = "degraded"
	}
	return &HealthStatus{
		Status: status,
		Checks: map[string]*CheckResult{
			"source": {Healthy: ok, Message: msg},
		},
	}, nil
}
