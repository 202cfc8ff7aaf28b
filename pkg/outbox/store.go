package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ShardPolicy configures the sender's shard scan strategy over the
// generated shard column (spec: an integer bucket computed deterministically
// from a row's id, used for horizontal sender scaling).
type ShardPolicy struct {
	Column string
	Count  int
	// RoundRobin cycles the scanned shard through a randomly permuted
	// sequence of [0, Count) rather than scanning the whole shard range
	// on every tick.
	RoundRobin bool
}

// FetchOptions parameterizes one sender scan/lease/reconcile cycle.
type FetchOptions struct {
	BatchSize             int
	IDColumn              string
	LeaseExpirationColumn string
	IndexHint             string
	Shard                 *ShardPolicy
	// ShardValue is the current tick's shard value when Shard.RoundRobin is
	// set; the sender advances this through the permutation it drew at
	// startup. Nil when sharding is disabled or not round-robin.
	ShardValue *int
}

// Store is the generic broker-facing outbox table's scan/lease/reconcile
// contract consumed by pkg/sender. It is deliberately narrower than
// Repository: the sender never needs entity-metadata-sync bookkeeping, only
// the candidate scan, lease acquisition, and post-publish reconciliation.
type Store interface {
	// FetchCandidateIDs performs the non-locking read-only scan for rows
	// with no live lease, honoring the shard filter when configured.
	FetchCandidateIDs(ctx context.Context, opts FetchOptions) ([]uuid.UUID, error)
	// Lease attempts to acquire an exclusive, time-bounded claim over ids,
	// re-applying the no-live-lease predicate so a losing racer gets back
	// only the rows it actually won. Returns the full row for each won id.
	Lease(ctx context.Context, ids []uuid.UUID, leaseUntil time.Time, opts FetchOptions) ([]OutboxRow, error)
	// Reconcile deletes rows that published successfully and clears the
	// lease on rows that failed, in one backend transaction.
	Reconcile(ctx context.Context, succeeded, failed []uuid.UUID, opts FetchOptions) error
}
