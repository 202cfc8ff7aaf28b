// Package sender implements the outbox sender: a polling/wakeup-driven loop
// that scans the outbox table for unleased rows, leases a batch, publishes
// each row with bounded concurrency, and reconciles the outcome — deleting
// published rows and clearing the lease on failures so they become eligible
// for the next scan.
package sender

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LerianStudio/outboxtx/v2/internal/obslog"
	"github.com/LerianStudio/outboxtx/v2/pkg/mretry"
	"github.com/LerianStudio/outboxtx/v2/pkg/outbox"
	"github.com/LerianStudio/outboxtx/v2/pkg/publisher"
)

// Config parameterizes one Sender's scan/lease/publish cycle.
type Config struct {
	BatchSize             int
	PollingInterval       time.Duration
	LeaseDuration         time.Duration
	MaxPublishConcurrency int
	IDColumn              string
	LeaseExpirationColumn string
	IndexHint             string
	Shard                 *outbox.ShardPolicy
	RetryBackoff          mretry.Config
}

// DefaultConfig is a reasonable single-shard configuration for development
// and for backends too small to need sharding. LeaseDuration targets typical
// broker SLAs: long enough that a slow publish doesn't get double-leased by
// the next scan before it finishes.
func DefaultConfig() Config {
	return Config{
		BatchSize:             50,
		PollingInterval:       1000 * time.Millisecond,
		LeaseDuration:         60000 * time.Millisecond,
		MaxPublishConcurrency: 50,
		RetryBackoff:          mretry.DefaultMetadataOutboxConfig(),
	}
}

func (c Config) fetchOptions(shardValue *int) outbox.FetchOptions {
	return outbox.FetchOptions{
		BatchSize:             c.BatchSize,
		IDColumn:              c.IDColumn,
		LeaseExpirationColumn: c.LeaseExpirationColumn,
		IndexHint:             c.IndexHint,
		Shard:                 c.Shard,
		ShardValue:            shardValue,
	}
}

// Sender drains one outbox table. Construct one per shard group/table; Run
// it in its own goroutine.
type Sender struct {
	store  outbox.Store
	repo   outbox.Repository // optional: nil disables entity-metadata-sync bookkeeping
	pub    publisher.Publisher
	cfg    Config
	logger obslog.Logger

	wake chan struct{}

	shardSeq []int
	shardPos int
}

// New builds a Sender. repo may be nil when the table carries only
// generic broker events with no entity-metadata-sync status to track.
func New(store outbox.Store, pub publisher.Publisher, repo outbox.Repository, cfg Config, logger obslog.Logger) *Sender {
	if logger == nil {
		logger = obslog.NoneLogger{}
	}

	s := &Sender{
		store:  store,
		repo:   repo,
		pub:    pub,
		cfg:    cfg,
		logger: logger,
		wake:   make(chan struct{}, 1),
	}

	if cfg.Shard != nil && cfg.Shard.RoundRobin && cfg.Shard.Count > 0 {
		s.shardSeq = newShardPermutation(cfg.Shard.Count)
	}

	return s
}

// newShardPermutation draws a one-time Fisher-Yates shuffle of [0, n) so
// sender replicas started at the same instant don't all scan shard 0 first.
func newShardPermutation(n int) []int {
	seq := make([]int, n)
	for i := range seq {
		seq[i] = i
	}

	for i := n - 1; i > 0; i-- {
		j := int(outbox.SecureRandomFloat64() * float64(i+1))
		if j > i {
			j = i
		}

		seq[i], seq[j] = seq[j], seq[i]
	}

	return seq
}

func (s *Sender) nextShardValue() *int {
	if s.cfg.Shard == nil || !s.cfg.Shard.RoundRobin || len(s.shardSeq) == 0 {
		return nil
	}

	v := s.shardSeq[s.shardPos%len(s.shardSeq)]
	s.shardPos++

	return &v
}

// Wake requests an out-of-band scan, e.g. right after a transaction commits
// rows this sender should not wait a full polling interval to see. Repeated
// calls before the scan runs coalesce into a single extra tick.
func (s *Sender) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run blocks, ticking on the configured polling interval and on Wake, until
// ctx is canceled.
func (s *Sender) Run(ctx context.Context) {
	interval := s.cfg.PollingInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-ticker.C:
		}

		if err := s.Tick(ctx); err != nil {
			s.logger.Errorf("sender: tick failed: %v", err)
		}
	}
}

// Tick runs one Fetching -> Leasing -> Publishing -> Reconciling cycle and
// returns once it completes (or a store error aborts it early).
func (s *Sender) Tick(ctx context.Context) error {
	opts := s.cfg.fetchOptions(s.nextShardValue())

	ids, err := s.store.FetchCandidateIDs(ctx, opts)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		return nil
	}

	rows, err := s.store.Lease(ctx, ids, time.Now().Add(s.leaseDuration()), opts)
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		return nil
	}

	succeeded, failed := s.publishAll(ctx, rows)

	return s.store.Reconcile(ctx, succeeded, failed, opts)
}

func (s *Sender) leaseDuration() time.Duration {
	if s.cfg.LeaseDuration <= 0 {
		return 30 * time.Second
	}

	return s.cfg.LeaseDuration
}

// publishAll publishes every leased row with bounded concurrency, returning
// the ids that succeeded and the ids that failed.
func (s *Sender) publishAll(ctx context.Context, rows []outbox.OutboxRow) (succeeded, failed []uuid.UUID) {
	concurrency := s.cfg.MaxPublishConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	sem := make(chan struct{}, concurrency)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, row := range rows {
		row := row

		wg.Add(1)
		sem <- struct{}{}

		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			ok := s.publishOne(ctx, row)

			mu.Lock()
			defer mu.Unlock()

			if ok {
				succeeded = append(succeeded, row.ID)
			} else {
				failed = append(failed, row.ID)
			}
		}()
	}

	wg.Wait()

	return succeeded, failed
}

func (s *Sender) publishOne(ctx context.Context, row outbox.OutboxRow) bool {
	err := s.pub.Publish(ctx, publisher.Message{
		Topic:      row.Topic,
		Data:       row.Data,
		Attributes: row.Attributes,
		Key:        row.EntityID,
	})
	if err != nil {
		s.logger.Warnf("sender: publish failed for %s: %s", row.ID, outbox.SanitizeErrorMessage(err.Error()))
		s.reconcileFailure(ctx, row)

		return false
	}

	s.reconcileSuccess(ctx, row)

	return true
}

func (s *Sender) reconcileSuccess(ctx context.Context, row outbox.OutboxRow) {
	if s.repo == nil || row.EntityID == "" {
		return
	}

	if err := s.repo.MarkPublished(ctx, row.ID, time.Now()); err != nil {
		s.logger.Errorf("sender: mark published failed for %s: %v", row.ID, err)
	}
}

// reconcileFailure bumps the row's retry count, routing it to the
// dead-letter tier once it has exhausted MaxRetries attempts.
func (s *Sender) reconcileFailure(ctx context.Context, row outbox.OutboxRow) {
	if s.repo == nil || row.EntityID == "" {
		return
	}

	nextRetry := row.RetryCount + 1

	maxRetries := row.MaxRetries
	if maxRetries <= 0 {
		maxRetries = outbox.DefaultMaxRetries
	}

	if nextRetry >= maxRetries {
		if err := s.repo.MarkDLQ(ctx, row.ID); err != nil {
			s.logger.Errorf("sender: mark DLQ failed for %s: %v", row.ID, err)
		}

		return
	}

	if err := s.repo.MarkFailed(ctx, row.ID, nextRetry); err != nil {
		s.logger.Errorf("sender: mark failed for %s: %v", row.ID, err)
	}
}
