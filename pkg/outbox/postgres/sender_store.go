package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/LerianStudio/outboxtx/v2/pkg/dbtx"
	"github.com/LerianStudio/outboxtx/v2/pkg/outbox"
	"github.com/LerianStudio/outboxtx/v2/pkg/outboxerr"
)

// SenderStore is the sender-facing outbox.Store: the non-locking candidate
// scan, the lease UPDATE...RETURNING, and the post-publish reconciliation,
// all scoped to the same physical outbox table as OutboxPostgreSQLRepository
// but never touching entity-metadata-sync bookkeeping columns.
type SenderStore struct {
	DB        *sql.DB
	TableName string
}

var _ outbox.Store = (*SenderStore)(nil)

func (s *SenderStore) tableName() string {
	if s.TableName == "" {
		return "outbox"
	}

	return s.TableName
}

func idColumn(opts outbox.FetchOptions) string {
	if opts.IDColumn == "" {
		return "id"
	}

	return opts.IDColumn
}

func leaseColumn(opts outbox.FetchOptions) string {
	if opts.LeaseExpirationColumn == "" {
		return "lease_expiration"
	}

	return opts.LeaseExpirationColumn
}

func (s *SenderStore) noLiveLeasePredicate(opts outbox.FetchOptions) squirrel.Sqlizer {
	col := leaseColumn(opts)

	return squirrel.Or{
		squirrel.Eq{col: nil},
		squirrel.Lt{col: time.Now()},
	}
}

func (s *SenderStore) shardPredicate(opts outbox.FetchOptions) squirrel.Sqlizer {
	if opts.Shard == nil || opts.Shard.Count <= 0 {
		return nil
	}

	if opts.Shard.RoundRobin {
		if opts.ShardValue == nil {
			return nil
		}

		return squirrel.Eq{opts.Shard.Column: *opts.ShardValue}
	}

	return squirrel.And{
		squirrel.GtOrEq{opts.Shard.Column: 0},
		squirrel.Lt{opts.Shard.Column: opts.Shard.Count},
	}
}

// FetchCandidateIDs runs the read-only, non-locking scan for rows eligible
// to be leased: no live lease, optionally restricted to one shard.
func (s *SenderStore) FetchCandidateIDs(ctx context.Context, opts outbox.FetchOptions) ([]uuid.UUID, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	builder := squirrel.
		Select(idColumn(opts)).
		From(s.tableName()).
		Where(s.noLiveLeasePredicate(opts)).
		OrderBy("created_at ASC").
		Limit(uint64(batchSize)).
		PlaceholderFormat(squirrel.Dollar)

	if opts.IndexHint != "" {
		builder = builder.Suffix(fmt.Sprintf("/*+ INDEX(%s %s) */", s.tableName(), opts.IndexHint))
	}

	if pred := s.shardPredicate(opts); pred != nil {
		builder = builder.Where(pred)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, outboxerr.InvalidArgument("build fetch query: " + err.Error())
	}

	exec := dbtx.GetExecutor(ctx, s.DB)

	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, outboxerr.TemporaryBackendError(err)
	}
	defer rows.Close()

	var ids []uuid.UUID

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, outboxerr.TemporaryBackendError(err)
		}

		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, outboxerr.InvalidArgument("parse id: " + err.Error())
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, outboxerr.TemporaryBackendError(err)
	}

	return ids, nil
}

// Lease claims ids by setting their lease column to leaseUntil, reapplying
// the no-live-lease predicate so a row already claimed by a racing sender is
// silently excluded from the returned set rather than double-leased.
func (s *SenderStore) Lease(ctx context.Context, ids []uuid.UUID, leaseUntil time.Time, opts outbox.FetchOptions) ([]outbox.OutboxRow, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	idStrings := make([]string, len(ids))
	for i, id := range ids {
		idStrings[i] = id.String()
	}

	query, args, err := squirrel.
		Update(s.tableName()).
		Set(leaseColumn(opts), leaseUntil).
		Where(squirrel.Eq{idColumn(opts): idStrings}).
		Where(s.noLiveLeasePredicate(opts)).
		PlaceholderFormat(squirrel.Dollar).
		Suffix("RETURNING id, topic, data, attributes, lease_expiration, published_at, shard, " +
			"entity_id, entity_type, metadata, status, retry_count, max_retries, created_at, updated_at").
		ToSql()
	if err != nil {
		return nil, outboxerr.InvalidArgument("build lease query: " + err.Error())
	}

	exec := dbtx.GetExecutor(ctx, s.DB)

	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, outboxerr.TemporaryBackendError(err)
	}
	defer rows.Close()

	var won []outbox.OutboxRow

	for rows.Next() {
		var m MetadataOutboxPostgreSQLModel

		if err := rows.Scan(&m.ID, &m.Topic, &m.Data, &m.Attributes, &m.LeaseExpiration, &m.PublishedAt, &m.Shard,
			&m.EntityID, &m.EntityType, &m.Metadata, &m.Status, &m.RetryCount, &m.MaxRetries, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, outboxerr.TemporaryBackendError(err)
		}

		entry, err := m.ToEntity()
		if err != nil {
			return nil, err
		}

		won = append(won, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, outboxerr.TemporaryBackendError(err)
	}

	return won, nil
}

// Reconcile deletes rows that published successfully and clears the lease
// on rows that failed, so they become eligible for the next scan. Both
// statements run in one transaction.
func (s *SenderStore) Reconcile(ctx context.Context, succeeded, failed []uuid.UUID, opts outbox.FetchOptions) error {
	return dbtx.RunInTransaction(ctx, s.DB, func(txCtx context.Context) error {
		return s.reconcile(txCtx, succeeded, failed, opts)
	})
}

func (s *SenderStore) reconcile(ctx context.Context, succeeded, failed []uuid.UUID, opts outbox.FetchOptions) error {
	exec := dbtx.GetExecutor(ctx, s.DB)

	if len(succeeded) > 0 {
		ids := make([]string, len(succeeded))
		for i, id := range succeeded {
			ids[i] = id.String()
		}

		query, args, err := squirrel.
			Delete(s.tableName()).
			Where(squirrel.Eq{idColumn(opts): ids}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return outboxerr.InvalidArgument("build delete query: " + err.Error())
		}

		if _, err := exec.ExecContext(ctx, query, args...); err != nil {
			return outboxerr.TemporaryBackendError(err)
		}
	}

	if len(failed) > 0 {
		ids := make([]string, len(failed))
		for i, id := range failed {
			ids[i] = id.String()
		}

		query, args, err := squirrel.
			Update(s.tableName()).
			Set(leaseColumn(opts), nil).
			Where(squirrel.Eq{idColumn(opts): ids}).
			PlaceholderFormat(squirrel.Dollar).
			ToSql()
		if err != nil {
			return outboxerr.InvalidArgument("build clear-lease query: " + err.Error())
		}

		if _, err := exec.ExecContext(ctx, query, args...); err != nil {
			return outboxerr.TemporaryBackendError(err)
		}
	}

	return nil
}
