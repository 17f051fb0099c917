// Package health aggregates dependency checks for the /health endpoint.
package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates a provider is failing; search may return partial results.
	Degraded Status = "degraded"
	// Unhealthy indicates a store is down.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Deps lists what to check. Nil providers are skipped.
type Deps struct {
	Store  Pinger
	Ledger Pinger
	Dense  ProviderChecker
	Sparse ProviderChecker
}

// Service coordinates health checks.
type Service struct {
	deps    Deps
	timeout time.Duration
}

// New creates a Service.
func New(deps Deps) *Service {
	return &Service{deps: deps, timeout: 3 * time.Second}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	checks := make(map[string]CheckResult)
	status := Healthy

	for name, p := range map[string]Pinger{"store": s.deps.Store, "ledger": s.deps.Ledger} {
		if p == nil {
			continue
		}
		checks[name] = result(p.Ping(ctx))
		if checks[name] == CheckError {
			status = Unhealthy
		}
	}

	for name, c := range map[string]ProviderChecker{"embedding": s.deps.Dense, "sparse": s.deps.Sparse} {
		if c == nil {
			continue
		}
		checks[name] = result(c.HealthCheck(ctx))
		if checks[name] == CheckError && status == Healthy {
			status = Degraded
		}
	}

	return Report{Status: status, Checks: checks}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
