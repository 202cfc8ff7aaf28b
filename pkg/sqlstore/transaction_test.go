package sqlstore

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LerianStudio/outboxtx/v2/pkg/entityreg"
	"github.com/LerianStudio/outboxtx/v2/pkg/outboxerr"
)

func testRegistry(t *testing.T) *entityreg.Registry {
	t.Helper()

	r := entityreg.NewRegistry()
	require.NoError(t, r.RegisterEntity(entityreg.Entity{
		Name:       "Account",
		Table:      "accounts",
		PrimaryKey: []string{"id"},
		Columns: []entityreg.Column{
			{Name: "id"},
			{Name: "value"},
			{Name: "deletedAt", SoftDelete: true},
		},
	}))

	return r
}

func TestGet_NotFound_ReturnsNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id", "value", "deletedAt"}))

	txn := New(context.Background(), db, testRegistry(t), false)
	row, err := txn.Get(context.Background(), "Account", []any{"a"}, GetOptions{})

	require.NoError(t, err)
	assert.Nil(t, row)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_Found_SuppressesSoftDeletedByDefault(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "value", "deletedAt"}).AddRow("a", "v", nil)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	txn := New(context.Background(), db, testRegistry(t), false)
	row, err := txn.Get(context.Background(), "Account", []any{"a"}, GetOptions{})

	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "a", row["id"])
	assert.Equal(t, "v", row["value"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_DuplicateKey_ReturnsEntityAlreadyExists(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO accounts").WillReturnError(errors.New("pq: duplicate key value violates unique constraint"))

	txn := New(context.Background(), db, testRegistry(t), false)
	err = txn.Insert(context.Background(), "Account", Row{"id": "a", "value": "v"})

	require.Error(t, err)
	assert.True(t, outboxerr.IsAlreadyExists(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_ReadOnlyTransaction_Rejected(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	txn := New(context.Background(), db, testRegistry(t), true)
	err = txn.Insert(context.Background(), "Account", Row{"id": "a"})

	require.Error(t, err)
	var e *outboxerr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, outboxerr.CodeInvalidOperation, e.Code)
}

func TestUpdate_MissingPrimaryKey_Fails(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	txn := New(context.Background(), db, testRegistry(t), false)
	_, err = txn.Update(context.Background(), "Account", Row{"value": "v"}, UpdateOptions{})

	require.Error(t, err)
	var e *outboxerr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, outboxerr.CodeEntityMissingPrimary, e.Code)
}

func TestUpdate_AbsentWithoutUpsert_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id", "value", "deletedAt"}))

	txn := New(context.Background(), db, testRegistry(t), false)
	_, err = txn.Update(context.Background(), "Account", Row{"id": "a", "value": "v"}, UpdateOptions{})

	require.Error(t, err)
	assert.True(t, outboxerr.IsNotFound(err))
}

func TestClear_ReadOnlyTransaction_Rejected(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	txn := New(context.Background(), db, testRegistry(t), true)
	err = txn.Clear(context.Background(), "Account")

	require.Error(t, err)
}

func TestQuery_UnregisteredEntityType_Fails(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	txn := New(context.Background(), db, testRegistry(t), false)
	_, err = txn.Query(context.Background(), sq.Select("1"), QueryOptions{EntityType: "Missing"})

	require.Error(t, err)
}

func TestQueryBatches_BatchSizeMustBePositive(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	txn := New(context.Background(), db, testRegistry(t), false)
	_, err = txn.QueryBatches(context.Background(), sq.Select("1"), 0, QueryOptions{})

	require.Error(t, err)
}
