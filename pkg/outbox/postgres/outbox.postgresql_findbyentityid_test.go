package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LerianStudio/outboxtx/v2/pkg/outbox"
	"github.com/LerianStudio/outboxtx/v2/pkg/outboxerr"
)

func TestOutboxPostgreSQLRepository_FindByEntityID_EmptyEntityID_ReturnsValidationError(t *testing.T) {
	r := &OutboxPostgreSQLRepository{}

	assert.NotPanics(t, func() {
		entry, err := r.FindByEntityID(context.Background(), "", outbox.EntityTypeTransaction)
		require.Nil(t, entry)
		require.Error(t, err)

		var vErr *outboxerr.Error
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, outboxerr.CodeInvalidArgument, vErr.Code)
		assert.Contains(t, vErr.Message, "entityID")
	})
}

func TestOutboxPostgreSQLRepository_FindByEntityID_EmptyEntityType_ReturnsValidationError(t *testing.T) {
	r := &OutboxPostgreSQLRepository{}

	assert.NotPanics(t, func() {
		entry, err := r.FindByEntityID(context.Background(), "some-id", "")
		require.Nil(t, entry)
		require.Error(t, err)

		var vErr *outboxerr.Error
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, outboxerr.CodeInvalidArgument, vErr.Code)
		assert.Contains(t, vErr.Message, "entityType")
	})
}

func TestOutboxPostgreSQLRepository_FindByEntityID_WhitespaceOnlyInputs_ReturnsValidationError(t *testing.T) {
	r := &OutboxPostgreSQLRepository{}

	assert.NotPanics(t, func() {
		entry, err := r.FindByEntityID(context.Background(), "   ", "\t")
		require.Nil(t, entry)
		require.Error(t, err)

		var vErr *outboxerr.Error
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, outboxerr.CodeInvalidArgument, vErr.Code)
	})
}
