package health

import "context"

// Pinger checks storage availability (entity store, swipe ledger).
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker checks an embedding provider.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}
