package store

import (
	"context"
	"time"

	"github.com/tariffwise/tariffwise/pkg/usage"
)

// Lease represents a distributed lock over a named resource, used to keep
// overlapping training runs from double-publishing.
type Lease struct {
	Name      string    `json:"name"`
	HolderID  string    `json:"holder_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Version   int64     `json:"version"` // For CAS logic
}

// LeaseStore defines the interface for acquiring and renewing leases.
type LeaseStore interface {
	// Acquire tries to acquire the lease. Returns true if successful.
	// If the lease is already held by holderID, it renews it.
	Acquire(ctx context.Context, name, holderID string, ttl time.Duration) (bool, error)

	// Renew updates the expiry of an existing lease held by holderID.
	// Returns an error if the lease is lost or stolen.
	Renew(ctx context.Context, name, holderID string, ttl time.Duration) error

	// Release releases the lease if held by holderID.
	Release(ctx context.Context, name, holderID string) error

	// Get returns the current lease state, or nil if absent.
	Get(ctx context.Context, name string) (*Lease, error)
}

// EventFilter narrows event reads.
type EventFilter struct {
	From       time.Time
	To         time.Time
	CustomerID int64
	Region     usage.Region
	Limit      int
}

// EventStore is the durable usage-event log consumed by the training
// pipeline and the per-customer recommendation path.
type EventStore interface {
	AppendEvent(ctx context.Context, event usage.Event) error
	AppendEvents(ctx context.Context, events []usage.Event) error
	ReadEventsSince(ctx context.Context, from time.Time) ([]usage.Event, error)
	QueryEvents(ctx context.Context, filter EventFilter) ([]usage.Event, error)
	CountDistinctCustomers(ctx context.Context, from time.Time) (int, error)
}
