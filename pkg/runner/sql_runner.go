// Package runner implements the transaction runners: the SQL runner drives
// the state mutation + staged-event-insert + commit cycle over pkg/sqlstore,
// retrying on a stale-read signal and translating backend errors into the
// outboxerr taxonomy; the document runner drives the same cycle over
// pkg/docstore with a best-effort post-commit publish instead of an outbox.
package runner

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/LerianStudio/outboxtx/v2/internal/obslog"
	"github.com/LerianStudio/outboxtx/v2/pkg/dbtx"
	"github.com/LerianStudio/outboxtx/v2/pkg/entityreg"
	"github.com/LerianStudio/outboxtx/v2/pkg/mretry"
	"github.com/LerianStudio/outboxtx/v2/pkg/outbox"
	"github.com/LerianStudio/outboxtx/v2/pkg/outboxerr"
	"github.com/LerianStudio/outboxtx/v2/pkg/sqlstore"
	"github.com/LerianStudio/outboxtx/v2/pkg/stagedlog"
)

// DefaultMaxOldTimestampRetries bounds the old-timestamp retry loop so a
// backend that never produces a fresh read doesn't retry forever.
const DefaultMaxOldTimestampRetries = 5

// SQLFunc is the caller's transaction body: it reads/writes through tx and
// stages any events that should publish once (and only once) the mutation
// commits.
type SQLFunc func(ctx context.Context, tx *sqlstore.Transaction, log *stagedlog.Log) error

// RunOptions customizes one Run call.
type RunOptions struct {
	// Tag is an operator-facing label attached to logs for this attempt
	// (e.g. the calling use case's name); purely informational.
	Tag string
	// ReadOnly opens the transaction read-only, matching sqlstore.Transaction's
	// own ReadOnly behavior, and rejects the call with InvalidOperation
	// (rolling back) if fn staged any event.
	ReadOnly bool
	// MaxOldTimestampRetries overrides the SQLRunner's default for this call
	// when > 0.
	MaxOldTimestampRetries int
}

// OutboxWriter stages an event durably in the same SQL transaction as the
// state mutation it accompanies.
type OutboxWriter interface {
	Insert(ctx context.Context, entry *outbox.OutboxRow) error
}

// SQLRunner is the SQL transaction runner (spec: the Cloud Spanner-modeled
// backing).
type SQLRunner struct {
	db       *sql.DB
	registry *entityreg.Registry
	outbox   OutboxWriter
	backoff  mretry.Config
	maxOldTS int
	logger   obslog.Logger
	wake     func()
}

// NewSQLRunner builds a SQLRunner. outboxWriter may be nil only for
// read-only use; a Run call with staged events and a nil outboxWriter fails.
func NewSQLRunner(db *sql.DB, registry *entityreg.Registry, outboxWriter OutboxWriter, backoff mretry.Config, logger obslog.Logger) *SQLRunner {
	if logger == nil {
		logger = obslog.NoneLogger{}
	}

	return &SQLRunner{
		db:       db,
		registry: registry,
		outbox:   outboxWriter,
		backoff:  backoff,
		maxOldTS: DefaultMaxOldTimestampRetries,
		logger:   logger,
		wake:     func() {},
	}
}

// WithMaxOldTimestampRetries overrides the default retry ceiling.
func (r *SQLRunner) WithMaxOldTimestampRetries(n int) *SQLRunner {
	r.maxOldTS = n
	return r
}

// WithWake registers the sender handle to notify, fire-and-forget, after
// every commit that staged at least one event. A Sender's own Wake method
// (a non-blocking, coalescing channel send) is the intended handle.
func (r *SQLRunner) WithWake(wake func()) *SQLRunner {
	if wake == nil {
		wake = func() {}
	}

	r.wake = wake

	return r
}

// Run executes fn inside a SQL transaction. A TransactionOldTimestamp signal
// from fn rolls back, sleeps min(suggestedDelay, backoff.MaxBackoff), and
// retries with a freshly reset staged-event log, up to the configured
// ceiling. Any other error is translated through the outboxerr taxonomy.
func (r *SQLRunner) Run(ctx context.Context, opts RunOptions, fn SQLFunc) error {
	maxRetries := r.maxOldTS
	if opts.MaxOldTimestampRetries > 0 {
		maxRetries = opts.MaxOldTimestampRetries
	}

	log := stagedlog.New(nil)

	for attempt := 0; ; attempt++ {
		log.Reset()

		err := r.runOnce(ctx, opts, log, fn)

		var stale *outboxerr.TransactionOldTimestamp
		if errors.As(err, &stale) {
			if attempt >= maxRetries {
				return outboxerr.TemporaryBackendError(err)
			}

			delay := time.Duration(stale.SuggestedDelay)
			if r.backoff.MaxBackoff > 0 && delay > r.backoff.MaxBackoff {
				delay = r.backoff.MaxBackoff
			}

			r.logger.Warnf("runner: stale read on attempt %d, retrying after %s", attempt, delay)

			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		return err
	}
}

func (r *SQLRunner) runOnce(ctx context.Context, opts RunOptions, log *stagedlog.Log, fn SQLFunc) (err error) {
	tx, beginErr := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: opts.ReadOnly})
	if beginErr != nil {
		return outboxerr.TemporaryBackendError(beginErr)
	}

	txCtx := dbtx.ContextWithTx(ctx, tx)
	store := sqlstore.New(txCtx, r.db, r.registry, opts.ReadOnly)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if fnErr := fn(txCtx, store, log); fnErr != nil {
		_ = tx.Rollback()
		return translateBackendError(fnErr)
	}

	staged := len(log.Events())

	if opts.ReadOnly && staged > 0 {
		_ = tx.Rollback()
		return outboxerr.InvalidOperation("events cannot be staged in a read-only transaction")
	}

	if !opts.ReadOnly {
		if insertErr := r.insertStagedEvents(txCtx, log); insertErr != nil {
			_ = tx.Rollback()
			return insertErr
		}
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return translateBackendError(commitErr)
	}

	if !opts.ReadOnly && staged > 0 {
		r.wake()
	}

	return nil
}

func (r *SQLRunner) insertStagedEvents(ctx context.Context, log *stagedlog.Log) error {
	events := log.Events()
	if len(events) == 0 {
		return nil
	}

	if r.outbox == nil {
		return outboxerr.InvalidOperation("events were staged but no outbox writer is configured")
	}

	for _, ev := range events {
		row := outbox.NewOutboxRow(ev.ID, ev.Topic, ev.SerializedData, ev.Attributes)
		row.EntityID = ev.OrderingKey

		if err := r.outbox.Insert(ctx, row); err != nil {
			return translateBackendError(err)
		}
	}

	return nil
}

// translateBackendError passes typed taxonomy errors and the old-timestamp
// retry signal through unchanged, and otherwise classifies a raw driver
// error by its message, matching the table the SQL runner uses to surface
// backend conditions as stable outboxerr codes.
func translateBackendError(err error) error {
	if err == nil {
		return nil
	}

	var typed *outboxerr.Error
	if errors.As(err, &typed) {
		return err
	}

	var stale *outboxerr.TransactionOldTimestamp
	if errors.As(err, &stale) {
		return err
	}

	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "23505", "duplicate key value", "unique constraint"):
		return outboxerr.EntityAlreadyExists("")
	case containsAny(msg, "sql: no rows in result set", "not found"):
		return outboxerr.InvalidQuery(err.Error())
	case containsAny(msg, "invalid input syntax", "invalid argument"):
		return outboxerr.InvalidArgument(err.Error())
	case containsAny(msg, "sql: transaction has already been committed or rolled back"):
		return outboxerr.TransactionFinished()
	case containsAny(msg, "too many connections", "deadline exceeded", "context canceled",
		"connection refused", "i/o timeout", "aborted", "resource exhausted", "server is not accepting clients", "unavailable"):
		return outboxerr.TemporaryBackendError(err)
	default:
		return err
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}

	return false
}
