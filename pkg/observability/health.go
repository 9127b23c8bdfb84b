package observability

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResult is the result of a single dependency check.
type HealthCheckResult struct {
	Status     HealthStatus `json:"status"`
	Message    string       `json:"message,omitempty"`
	DurationMS int64        `json:"duration_ms"`
}

// HealthReport aggregates all dependency checks.
type HealthReport struct {
	Status    HealthStatus                 `json:"status"`
	Timestamp time.Time                    `json:"timestamp"`
	Checks    map[string]HealthCheckResult `json:"checks"`
}

type healthCheck struct {
	fn       func(ctx context.Context) error
	critical bool
}

// HealthRegistry runs readiness checks against external dependencies.
// A failing critical check makes the service unhealthy; a failing optional
// check (cache, broker) only degrades it.
type HealthRegistry struct {
	mu     sync.RWMutex
	checks map[string]healthCheck
}

// NewHealthRegistry creates a new health registry.
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{checks: make(map[string]healthCheck)}
}

// Register adds a dependency check.
func (r *HealthRegistry) Register(name string, critical bool, fn func(ctx context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[name] = healthCheck{fn: fn, critical: critical}
}

// Names returns the registered check names in order.
func (r *HealthRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.checks))
	for name := range r.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs all checks concurrently.
func (r *HealthRegistry) Check(ctx context.Context) HealthReport {
	r.mu.RLock()
	checks := make(map[string]healthCheck, len(r.checks))
	for k, v := range r.checks {
		checks[k] = v
	}
	r.mu.RUnlock()

	var (
		mu      sync.Mutex
		results = make(map[string]HealthCheckResult, len(checks))
		status  = HealthStatusHealthy
	)

	g, gctx := errgroup.WithContext(ctx)
	for name, check := range checks {
		g.Go(func() error {
			start := time.Now()
			err := check.fn(gctx)
			result := HealthCheckResult{Status: HealthStatusHealthy, DurationMS: time.Since(start).Milliseconds()}
			if err != nil {
				result.Message = err.Error()
				result.Status = HealthStatusDegraded
				if check.critical {
					result.Status = HealthStatusUnhealthy
				}
			}

			mu.Lock()
			defer mu.Unlock()
			results[name] = result
			switch {
			case result.Status == HealthStatusUnhealthy:
				status = HealthStatusUnhealthy
			case result.Status == HealthStatusDegraded && status == HealthStatusHealthy:
				status = HealthStatusDegraded
			}
			return nil
		})
	}
	_ = g.Wait()

	return HealthReport{Status: status, Timestamp: time.Now().UTC(), Checks: results}
}
