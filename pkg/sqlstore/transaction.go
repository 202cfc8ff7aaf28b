// Package sqlstore implements the SQL state transaction: typed row
// reads/writes over a strongly-consistent relational store, honoring a
// per-entity soft-delete marker column.
package sqlstore

import (
	"context"
	"database/sql"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/LerianStudio/outboxtx/v2/pkg/dbtx"
	"github.com/LerianStudio/outboxtx/v2/pkg/entityreg"
	"github.com/LerianStudio/outboxtx/v2/pkg/outboxerr"
)

// Row is a generic, reflection-free entity representation: flat column name
// to already-client-typed value. The transaction converts to/from store
// types at its boundary using the entity's registered column flags.
type Row map[string]any

// GetOptions customizes Get/FindOrFail.
type GetOptions struct {
	// IncludeSoftDeletes allows a soft-deleted row to be returned.
	IncludeSoftDeletes bool
	// Columns restricts which columns are read. Must include the
	// soft-delete column unless IncludeSoftDeletes is true. When Columns is
	// empty and Index is set, the row found through the index is re-read by
	// primary key afterward to materialize the full record.
	Columns []string
	// Index names a secondary index to look the row up by, instead of the
	// primary key.
	Index string
}

// UpdateOptions customizes Update.
type UpdateOptions struct {
	// Upsert inserts a null-filled row when the target is absent instead
	// of failing with EntityNotFound.
	Upsert bool
	// IncludeSoftDeletes allows updating a soft-deleted row in place.
	IncludeSoftDeletes bool
	// ValidateFn is called with the pre-image before the merged row is
	// written; returning an error aborts the update without writing.
	ValidateFn func(pre Row) error
}

// DeleteOptions customizes Delete.
type DeleteOptions struct {
	IncludeSoftDeletes bool
}

// QueryOptions customizes Query/QueryBatches.
type QueryOptions struct {
	// EntityType hydrates result rows into this entity's flat columns
	// (applying the same type-conversion rules as Get) instead of
	// returning raw driver values.
	EntityType string
}

// Transaction is the SQL state transaction bound to one store transaction.
// It is not safe for concurrent use: the runner gives every attempt its own
// Transaction over the attempt's *sql.Tx.
type Transaction struct {
	db       *sql.DB
	ctx      context.Context
	registry *entityreg.Registry
	readOnly bool
}

// New returns a Transaction that executes against whatever *sql.Tx is bound
// into ctx via dbtx.ContextWithTx (falling back to db directly for
// statements issued outside a transaction, e.g. read-only snapshot reads).
func New(ctx context.Context, db *sql.DB, registry *entityreg.Registry, readOnly bool) *Transaction {
	return &Transaction{db: db, ctx: ctx, registry: registry, readOnly: readOnly}
}

func (t *Transaction) exec() dbtx.Executor {
	return dbtx.GetExecutor(t.ctx, t.db)
}

func (t *Transaction) entity(entityType string) (*entityreg.Entity, error) {
	e, ok := t.registry.Lookup(entityType)
	if !ok {
		return nil, outboxerr.InvalidEntityDefinition("unregistered entity type: " + entityType)
	}

	return e, nil
}

func softDeleteColumn(flat []entityreg.FlatColumn) (entityreg.FlatColumn, bool) {
	for _, c := range flat {
		if c.SoftDelete {
			return c, true
		}
	}

	return entityreg.FlatColumn{}, false
}

// Get reads one row by composite primary key (or by opts.Index when set).
// It returns (nil, nil) when no row matches. Soft-deleted rows are
// suppressed unless opts.IncludeSoftDeletes is set.
func (t *Transaction) Get(ctx context.Context, entityType string, key []any, opts GetOptions) (Row, error) {
	e, err := t.entity(entityType)
	if err != nil {
		return nil, err
	}

	flat := entityreg.FlattenColumns(e)
	sdCol, hasSoftDelete := softDeleteColumn(flat)

	if len(opts.Columns) > 0 && hasSoftDelete && !opts.IncludeSoftDeletes {
		if !containsColumn(opts.Columns, sdCol.Name) {
			return nil, outboxerr.InvalidArgument("columns must include the soft-delete column " + sdCol.Name + " unless includeSoftDeletes=true")
		}
	}

	cols := opts.Columns
	if len(cols) == 0 {
		cols = columnNames(flat)
	}

	builder := sq.Select(cols...).From(e.Table).PlaceholderFormat(sq.Dollar)

	if opts.Index != "" {
		builder = builder.Where(sq.Eq{opts.Index: key[0]})
	} else {
		builder = builder.Where(primaryKeyEq(e.PrimaryKey, key))
	}

	if hasSoftDelete && !opts.IncludeSoftDeletes {
		builder = builder.Where(sq.Eq{sdCol.Name: nil})
	}

	row, err := t.queryOne(ctx, builder, cols, flat)
	if err != nil {
		return nil, err
	}

	if row == nil {
		return nil, nil
	}

	if opts.Index != "" && len(opts.Columns) == 0 {
		pkKey := make([]any, len(e.PrimaryKey))
		for i, pk := range e.PrimaryKey {
			pkKey[i] = row[pk]
		}

		return t.Get(ctx, entityType, pkKey, GetOptions{IncludeSoftDeletes: opts.IncludeSoftDeletes})
	}

	return row, nil
}

// FindOrFail is Get but fails with EntityNotFound instead of returning nil.
func (t *Transaction) FindOrFail(ctx context.Context, entityType string, key []any, opts GetOptions) (Row, error) {
	row, err := t.Get(ctx, entityType, key, opts)
	if err != nil {
		return nil, err
	}

	if row == nil {
		return nil, outboxerr.EntityNotFound(entityType)
	}

	return row, nil
}

// Insert writes a new row, failing with EntityAlreadyExists if its primary
// key collides with an existing row (soft-deleted or not).
func (t *Transaction) Insert(ctx context.Context, entityType string, row Row) error {
	return t.InsertMany(ctx, entityType, []Row{row})
}

// InsertMany writes rows in one batch statement.
func (t *Transaction) InsertMany(ctx context.Context, entityType string, rows []Row) error {
	if t.readOnly {
		return outboxerr.InvalidOperation("insert is not permitted in a read-only transaction")
	}

	if len(rows) == 0 {
		return nil
	}

	e, err := t.entity(entityType)
	if err != nil {
		return err
	}

	flat := entityreg.FlattenColumns(e)
	cols := columnNames(flat)

	builder := sq.Insert(e.Table).Columns(cols...).PlaceholderFormat(sq.Dollar)

	for _, row := range rows {
		values := make([]any, len(flat))

		for i, col := range flat {
			converted, convErr := convertIn(col, row[col.Name])
			if convErr != nil {
				return convErr
			}

			values[i] = converted
		}

		builder = builder.Values(values...)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return outboxerr.InvalidArgument(err.Error())
	}

	if _, err := t.exec().ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return outboxerr.EntityAlreadyExists(entityType)
		}

		return outboxerr.TemporaryBackendError(err)
	}

	return nil
}

// Replace overwrites every column of an existing row's primary key; columns
// absent from row are written as null.
func (t *Transaction) Replace(ctx context.Context, entityType string, row Row) error {
	if t.readOnly {
		return outboxerr.InvalidOperation("replace is not permitted in a read-only transaction")
	}

	e, err := t.entity(entityType)
	if err != nil {
		return err
	}

	flat := entityreg.FlattenColumns(e)

	setMap := sq.Eq{}

	for _, col := range flat {
		if isPrimaryKey(e.PrimaryKey, col.Name) {
			continue
		}

		converted, convErr := convertIn(col, row[col.Name])
		if convErr != nil {
			return convErr
		}

		setMap[col.Name] = converted
	}

	key := make([]any, len(e.PrimaryKey))
	for i, pk := range e.PrimaryKey {
		key[i] = row[pk]
	}

	builder := sq.Update(e.Table).SetMap(setMap).Where(primaryKeyEq(e.PrimaryKey, key)).PlaceholderFormat(sq.Dollar)

	query, args, err := builder.ToSql()
	if err != nil {
		return outboxerr.InvalidArgument(err.Error())
	}

	res, err := t.exec().ExecContext(ctx, query, args...)
	if err != nil {
		return outboxerr.TemporaryBackendError(err)
	}

	n, _ := res.RowsAffected()
	if n == 0 {
		return outboxerr.EntityNotFound(entityType)
	}

	return nil
}

// Update reads the current row, merges partial over it, and writes the
// result back as Replace. opts.Upsert inserts a null-filled row when the
// target is absent instead of failing.
func (t *Transaction) Update(ctx context.Context, entityType string, partial Row, opts UpdateOptions) (Row, error) {
	if t.readOnly {
		return nil, outboxerr.InvalidOperation("update is not permitted in a read-only transaction")
	}

	e, err := t.entity(entityType)
	if err != nil {
		return nil, err
	}

	key := make([]any, len(e.PrimaryKey))

	for i, pk := range e.PrimaryKey {
		v, ok := partial[pk]
		if !ok {
			return nil, outboxerr.EntityMissingPrimaryKey(entityType)
		}

		key[i] = v
	}

	pre, err := t.Get(ctx, entityType, key, GetOptions{IncludeSoftDeletes: opts.IncludeSoftDeletes})
	if err != nil {
		return nil, err
	}

	if pre == nil {
		if !opts.Upsert {
			return nil, outboxerr.EntityNotFound(entityType)
		}

		pre = Row{}
	} else if opts.ValidateFn != nil {
		if err := opts.ValidateFn(pre); err != nil {
			return nil, err
		}
	}

	merged := Row{}
	for k, v := range pre {
		merged[k] = v
	}

	for k, v := range partial {
		merged[k] = v
	}

	if pre == nil || len(pre) == 0 {
		if err := t.Insert(ctx, entityType, merged); err != nil {
			return nil, err
		}

		return merged, nil
	}

	if err := t.Replace(ctx, entityType, merged); err != nil {
		return nil, err
	}

	return merged, nil
}

// Delete removes a row, returning its pre-image. Fails with EntityNotFound
// if absent; opts.IncludeSoftDeletes controls whether an already
// soft-deleted row can still be hard-deleted.
func (t *Transaction) Delete(ctx context.Context, entityType string, key []any, opts DeleteOptions) (Row, error) {
	if t.readOnly {
		return nil, outboxerr.InvalidOperation("delete is not permitted in a read-only transaction")
	}

	e, err := t.entity(entityType)
	if err != nil {
		return nil, err
	}

	pre, err := t.FindOrFail(ctx, entityType, key, GetOptions{IncludeSoftDeletes: opts.IncludeSoftDeletes})
	if err != nil {
		return nil, err
	}

	builder := sq.Delete(e.Table).Where(primaryKeyEq(e.PrimaryKey, key)).PlaceholderFormat(sq.Dollar)

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, outboxerr.InvalidArgument(err.Error())
	}

	if _, err := t.exec().ExecContext(ctx, query, args...); err != nil {
		return nil, outboxerr.TemporaryBackendError(err)
	}

	return pre, nil
}

// Clear deletes every row of entityType inside T.
func (t *Transaction) Clear(ctx context.Context, entityType string) error {
	if t.readOnly {
		return outboxerr.InvalidOperation("clear is not permitted in a read-only transaction")
	}

	e, err := t.entity(entityType)
	if err != nil {
		return err
	}

	query, args, err := sq.Delete(e.Table).Where(sq.Expr("TRUE")).PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return outboxerr.InvalidArgument(err.Error())
	}

	if _, err := t.exec().ExecContext(ctx, query, args...); err != nil {
		return outboxerr.TemporaryBackendError(err)
	}

	return nil
}

// Query executes stmt inside T, hydrating rows into Row values. When
// opts.EntityType is set, columns are converted using that entity's
// declared flags; otherwise raw driver values are returned as-is.
func (t *Transaction) Query(ctx context.Context, stmt sq.Sqlizer, opts QueryOptions) ([]Row, error) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, outboxerr.InvalidArgument(err.Error())
	}

	rows, err := t.exec().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, outboxerr.TemporaryBackendError(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, outboxerr.TemporaryBackendError(err)
	}

	var flat []entityreg.FlatColumn

	if opts.EntityType != "" {
		e, err := t.entity(opts.EntityType)
		if err != nil {
			return nil, err
		}

		flat = entityreg.FlattenColumns(e)
	}

	var out []Row

	for rows.Next() {
		row, err := scanRow(rows, cols, flat)
		if err != nil {
			return nil, err
		}

		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, outboxerr.TemporaryBackendError(err)
	}

	return out, nil
}

// BatchIterator is the lazy finite sequence QueryBatches produces.
type BatchIterator struct {
	rows     *sql.Rows
	cols     []string
	flat     []entityreg.FlatColumn
	batch    int
	finished bool
}

// Next returns the next batch (up to the configured batch size), or
// (nil, false) when the result set is exhausted.
func (it *BatchIterator) Next() ([]Row, bool, error) {
	if it.finished {
		return nil, false, nil
	}

	var out []Row

	for len(out) < it.batch {
		if !it.rows.Next() {
			it.finished = true

			if err := it.rows.Err(); err != nil {
				return nil, false, outboxerr.TemporaryBackendError(err)
			}

			break
		}

		row, err := scanRow(it.rows, it.cols, it.flat)
		if err != nil {
			return nil, false, err
		}

		out = append(out, row)
	}

	if len(out) == 0 {
		return nil, false, nil
	}

	return out, true, nil
}

// Close releases the underlying result set; safe to call multiple times.
func (it *BatchIterator) Close() error {
	return it.rows.Close()
}

// QueryBatches executes stmt and returns an iterator producing result
// batches of at most batchSize rows each.
func (t *Transaction) QueryBatches(ctx context.Context, stmt sq.Sqlizer, batchSize int, opts QueryOptions) (*BatchIterator, error) {
	if batchSize <= 0 {
		return nil, outboxerr.InvalidArgument("batchSize must be > 0")
	}

	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, outboxerr.InvalidArgument(err.Error())
	}

	rows, err := t.exec().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, outboxerr.TemporaryBackendError(err)
	}

	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, outboxerr.TemporaryBackendError(err)
	}

	var flat []entityreg.FlatColumn

	if opts.EntityType != "" {
		e, err := t.entity(opts.EntityType)
		if err != nil {
			rows.Close()
			return nil, err
		}

		flat = entityreg.FlattenColumns(e)
	}

	return &BatchIterator{rows: rows, cols: cols, flat: flat, batch: batchSize}, nil
}

func (t *Transaction) queryOne(ctx context.Context, builder sq.SelectBuilder, cols []string, flat []entityreg.FlatColumn) (Row, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, outboxerr.InvalidArgument(err.Error())
	}

	rows, err := t.exec().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, outboxerr.TemporaryBackendError(err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	row, err := scanRow(rows, cols, filterFlat(flat, cols))
	if err != nil {
		return nil, err
	}

	return row, nil
}

func scanRow(rows *sql.Rows, cols []string, flat []entityreg.FlatColumn) (Row, error) {
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))

	for i := range values {
		ptrs[i] = &values[i]
	}

	if err := rows.Scan(ptrs...); err != nil {
		return nil, outboxerr.TemporaryBackendError(err)
	}

	byName := make(map[string]entityreg.FlatColumn, len(flat))
	for _, c := range flat {
		byName[c.Name] = c
	}

	row := Row{}

	for i, name := range cols {
		if col, ok := byName[name]; ok {
			converted, err := convertOut(col, values[i])
			if err != nil {
				return nil, err
			}

			row[name] = converted
			continue
		}

		row[name] = values[i]
	}

	return row, nil
}

func filterFlat(flat []entityreg.FlatColumn, cols []string) []entityreg.FlatColumn {
	if len(flat) == 0 {
		return nil
	}

	wanted := make(map[string]bool, len(cols))
	for _, c := range cols {
		wanted[c] = true
	}

	out := make([]entityreg.FlatColumn, 0, len(flat))

	for _, c := range flat {
		if wanted[c.Name] {
			out = append(out, c)
		}
	}

	return out
}

func columnNames(flat []entityreg.FlatColumn) []string {
	out := make([]string, len(flat))
	for i, c := range flat {
		out[i] = c.Name
	}

	return out
}

func containsColumn(cols []string, name string) bool {
	for _, c := range cols {
		if c == name {
			return true
		}
	}

	return false
}

func isPrimaryKey(pk []string, name string) bool {
	for _, k := range pk {
		if k == name {
			return true
		}
	}

	return false
}

func primaryKeyEq(pk []string, key []any) sq.Eq {
	eq := sq.Eq{}
	for i, field := range pk {
		if i < len(key) {
			eq[field] = key[i]
		}
	}

	return eq
}

func isUniqueViolation(err error) bool {
	// Detection is by error text only (SQLSTATE 23505 or the standard
	// duplicate-key wording); no driver-specific error type is inspected.
	if err == nil {
		return false
	}

	msg := err.Error()

	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "unique constraint")
}
