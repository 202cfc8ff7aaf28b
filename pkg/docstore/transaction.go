// Package docstore implements the document state transaction: typed
// document reads/writes over a document store, pairing each soft-delete
// enabled type with a shadow collection carrying a TTL expiration field.
package docstore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongopatch "github.com/LerianStudio/outboxtx/v2/pkg/mongo"
	"github.com/LerianStudio/outboxtx/v2/pkg/outboxerr"
)

// DefaultTTLField is the client-written field gating the store's TTL policy
// on shadow documents, used unless a SoftDelete policy names another.
const DefaultTTLField = "_expirationDate"

// Document is a reflection-free representation of one document: field name
// to value, including "_id".
type Document map[string]any

// SoftDelete opts a collection into the active/shadow document pair.
type SoftDelete struct {
	// ExpirationDelay is added to deletedAt to compute the shadow
	// document's TTL field value.
	ExpirationDelay time.Duration
	// TTLField names the shadow document's TTL field. Defaults to
	// DefaultTTLField when empty.
	TTLField string
}

func (s *SoftDelete) ttlField() string {
	if s.TTLField == "" {
		return DefaultTTLField
	}

	return s.TTLField
}

// Collection names a document-path, e.g. "accounts" or the nested
// "organizations/{id}/accounts". Appending "$deleted" to the path's end
// rewrites only the leaf segment, since the suffix lands after the final
// slash regardless of nesting depth.
type Collection struct {
	Path       string
	SoftDelete *SoftDelete
}

func (c Collection) shadowPath() string {
	return c.Path + "$deleted"
}

// Transaction is the document state transaction, bound to one store
// transaction via ctx (a mongo.SessionContext when multi-document ACID
// semantics are required).
type Transaction struct {
	db *mongo.Database
}

// New returns a Transaction over db.
func New(db *mongo.Database) *Transaction {
	return &Transaction{db: db}
}

// Get reads the active collection first; when absent and coll declares a
// soft-delete policy, reads the shadow collection and strips the TTL field.
// Returns (nil, nil) when the document exists in neither.
func (t *Transaction) Get(ctx context.Context, coll Collection, id string) (Document, error) {
	active := t.db.Collection(coll.Path)

	var doc Document

	err := active.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)

	switch {
	case err == nil:
		return doc, nil
	case errors.Is(err, mongo.ErrNoDocuments):
		// fall through to shadow lookup below
	default:
		return nil, outboxerr.TemporaryBackendError(err)
	}

	if coll.SoftDelete == nil {
		return nil, nil
	}

	shadow := t.db.Collection(coll.shadowPath())

	var shadowDoc Document

	err = shadow.FindOne(ctx, bson.M{"_id": id}).Decode(&shadowDoc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}

	if err != nil {
		return nil, outboxerr.TemporaryBackendError(err)
	}

	delete(shadowDoc, coll.SoftDelete.ttlField())

	return shadowDoc, nil
}

// Set writes entity. For collections without a soft-delete policy this is a
// plain upsert. For soft-delete collections: a non-null entity["deletedAt"]
// routes the (TTL-augmented) document to the shadow collection and removes
// the active copy; a null/absent deletedAt writes the active copy and
// removes the shadow copy. The delete half of each branch is issued in the
// same store transaction as the write, so "at most one copy" always holds
// even if a caller observes state mid-commit.
func (t *Transaction) Set(ctx context.Context, coll Collection, id string, entity Document) error {
	active := t.db.Collection(coll.Path)

	if coll.SoftDelete == nil {
		if _, err := upsert(ctx, active, id, entity); err != nil {
			return err
		}

		return nil
	}

	shadow := t.db.Collection(coll.shadowPath())
	deletedAt := extractDeletedAt(entity)

	if deletedAt != nil {
		augmented := cloneDocument(entity)
		augmented[coll.SoftDelete.ttlField()] = deletedAt.Add(coll.SoftDelete.ExpirationDelay)

		if _, err := upsert(ctx, shadow, id, augmented); err != nil {
			return err
		}

		if _, err := active.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
			return outboxerr.TemporaryBackendError(err)
		}

		return nil
	}

	if _, err := upsert(ctx, active, id, entity); err != nil {
		return err
	}

	if _, err := shadow.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return outboxerr.TemporaryBackendError(err)
	}

	return nil
}

// Update applies a partial merge to an existing active-collection document:
// fields present in patch are set, fields named in fieldsToRemove are
// unset, and every field not mentioned in either is left untouched. Unlike
// Set this never moves a document between the active and shadow
// collections, so it rejects soft-delete collections outright — callers
// there must go through Set/Delete to keep the "at most one copy"
// invariant intact.
func (t *Transaction) Update(ctx context.Context, coll Collection, id string, patch Document, fieldsToRemove []string) error {
	if coll.SoftDelete != nil {
		return outboxerr.InvalidArgument("docstore: Update does not support soft-delete collections; use Set")
	}

	update := mongopatch.BuildDocumentToPatch(bson.M(patch), fieldsToRemove)
	if len(update) == 0 {
		return nil
	}

	active := t.db.Collection(coll.Path)

	if _, err := active.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		return outboxerr.TemporaryBackendError(err)
	}

	return nil
}

// Delete removes id from both the active and (when declared) shadow
// collections. Idempotent: deleting an already-absent id is not an error.
func (t *Transaction) Delete(ctx context.Context, coll Collection, id string) error {
	active := t.db.Collection(coll.Path)

	if _, err := active.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return outboxerr.TemporaryBackendError(err)
	}

	if coll.SoftDelete == nil {
		return nil
	}

	shadow := t.db.Collection(coll.shadowPath())

	if _, err := shadow.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return outboxerr.TemporaryBackendError(err)
	}

	return nil
}

func upsert(ctx context.Context, coll *mongo.Collection, id string, doc Document) (*mongo.UpdateResult, error) {
	withID := cloneDocument(doc)
	withID["_id"] = id

	res, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, withID, options.Replace().SetUpsert(true))
	if err != nil {
		return nil, outboxerr.TemporaryBackendError(err)
	}

	return res, nil
}

func extractDeletedAt(doc Document) *time.Time {
	v, ok := doc["deletedAt"]
	if !ok || v == nil {
		return nil
	}

	switch t := v.(type) {
	case time.Time:
		return &t
	case *time.Time:
		return t
	default:
		return nil
	}
}

func cloneDocument(doc Document) Document {
	out := make(Document, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}

	return out
}
