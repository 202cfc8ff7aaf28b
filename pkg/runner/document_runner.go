package runner

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/LerianStudio/outboxtx/v2/internal/obslog"
	"github.com/LerianStudio/outboxtx/v2/pkg/docstore"
	"github.com/LerianStudio/outboxtx/v2/pkg/outboxerr"
	"github.com/LerianStudio/outboxtx/v2/pkg/publisher"
	"github.com/LerianStudio/outboxtx/v2/pkg/stagedlog"
)

// DocFunc is the caller's transaction body over the document store.
type DocFunc func(ctx context.Context, tx *docstore.Transaction, log *stagedlog.Log) error

// DocumentRunner is the document state transaction runner (spec: the
// Firestore-modeled backing). Unlike SQLRunner it carries no outbox: once
// the store transaction commits, staged events are published directly, in
// staged order, best-effort. A publish failure is logged and swallowed —
// the state mutation has already committed durably by the time publishing
// runs, so surfacing the failure to the caller would invite a retry of the
// state mutation itself and risk a double-write. There is no in-memory
// retry around a failed publish either; the durable retry path for
// anything that fails here is whatever redelivery the caller's own
// reconciliation builds on top, since Mongo has no equivalent of the SQL
// runner's stale-read signal to retry on.
type DocumentRunner struct {
	client *mongo.Client
	db     *mongo.Database
	pub    publisher.Publisher
	logger obslog.Logger
}

// NewDocumentRunner builds a DocumentRunner over the named database.
func NewDocumentRunner(client *mongo.Client, dbName string, pub publisher.Publisher, logger obslog.Logger) *DocumentRunner {
	if logger == nil {
		logger = obslog.NoneLogger{}
	}

	return &DocumentRunner{
		client: client,
		db:     client.Database(dbName),
		pub:    pub,
		logger: logger,
	}
}

// DocRunOptions customizes one Run call.
type DocRunOptions struct {
	// Tag is an operator-facing label attached to logs for this attempt
	// (e.g. the calling use case's name); purely informational.
	Tag string
	// ReadOnly runs fn outside a multi-document session transaction and
	// rejects the call with InvalidOperation if fn staged any event,
	// matching SQLRunner's ReadOnly behavior.
	ReadOnly bool
}

// Run executes fn inside a multi-document session transaction, then
// publishes every staged event in order once the transaction has committed.
// A ReadOnly call skips the session transaction entirely and disallows
// staging.
func (r *DocumentRunner) Run(ctx context.Context, opts DocRunOptions, fn DocFunc) error {
	log := stagedlog.New(nil)

	if opts.ReadOnly {
		tx := docstore.New(r.db)

		if err := fn(ctx, tx, log); err != nil {
			var typed *outboxerr.Error
			if errors.As(err, &typed) {
				return err
			}

			return outboxerr.TemporaryBackendError(err)
		}

		if len(log.Events()) > 0 {
			return outboxerr.InvalidOperation("events were staged during a read-only document transaction")
		}

		return nil
	}

	session, err := r.client.StartSession()
	if err != nil {
		return outboxerr.TemporaryBackendError(err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (any, error) {
		tx := docstore.New(r.db)
		return nil, fn(sessCtx, tx, log)
	})
	if err != nil {
		var typed *outboxerr.Error
		if errors.As(err, &typed) {
			return err
		}

		return outboxerr.TemporaryBackendError(err)
	}

	r.publishStaged(ctx, log)

	return nil
}

// publishStaged delivers every staged event in order, continuing past a
// failed publish rather than aborting the remaining deliveries. Failures
// are logged and swallowed: the state mutation has already committed by
// the time this runs, so there is nothing left to roll back and surfacing
// the error would only tempt a caller into retrying the state mutation.
func (r *DocumentRunner) publishStaged(ctx context.Context, log *stagedlog.Log) {
	for _, ev := range log.Events() {
		err := r.pub.Publish(ctx, publisher.Message{
			Topic:      ev.Topic,
			Data:       ev.SerializedData,
			Attributes: ev.Attributes,
			Key:        ev.OrderingKey,
		})
		if err != nil {
			r.logger.Errorf("document runner: best-effort publish failed for event %s on topic %s: %v", ev.ID, ev.Topic, err)
		}
	}
}
