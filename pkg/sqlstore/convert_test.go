package sqlstore

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LerianStudio/outboxtx/v2/pkg/entityreg"
	"github.com/LerianStudio/outboxtx/v2/pkg/outboxerr"
)

func TestConvertOut_Int_WithinSafeRange(t *testing.T) {
	out, err := convertOut(entityreg.FlatColumn{IsInt: true}, int64(42))
	require.NoError(t, err)
	assert.Equal(t, int64(42), out)
}

func TestConvertOut_Int_OutOfSafeRange(t *testing.T) {
	_, err := convertOut(entityreg.FlatColumn{IsInt: true}, maxSafeInt+1)
	require.Error(t, err)

	var e *outboxerr.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, outboxerr.CodeRange, e.Code)
}

func TestConvertIn_Int_OutOfSafeRange(t *testing.T) {
	_, err := convertIn(entityreg.FlatColumn{IsInt: true}, maxSafeInt+1)
	require.Error(t, err)

	var e *outboxerr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, outboxerr.CodeInvalidArgument, e.Code)
}

func TestConvertOut_BigInt_RoundTrip(t *testing.T) {
	in := "123456789012345678901234567890"

	converted, err := convertIn(entityreg.FlatColumn{IsBigInt: true}, in)
	require.NoError(t, err)

	out, err := convertOut(entityreg.FlatColumn{IsBigInt: true}, converted)
	require.NoError(t, err)

	d, ok := out.(decimal.Decimal)
	require.True(t, ok)
	assert.Equal(t, in, d.String())
}

func TestConvertOut_NormalTimestamp_TruncatesToMillisecond(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 123456789, time.UTC)

	out, err := convertOut(entityreg.FlatColumn{}, ts)
	require.NoError(t, err)

	got, ok := out.(time.Time)
	require.True(t, ok)
	assert.Equal(t, ts.Truncate(time.Millisecond), got)
}

func TestConvertOut_PreciseDate_PreservesNanoseconds(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 123456789, time.UTC)

	out, err := convertOut(entityreg.FlatColumn{IsPreciseDate: true}, ts)
	require.NoError(t, err)
	assert.Equal(t, ts, out)
}

func TestConvertOut_JSON_Decodes(t *testing.T) {
	out, err := convertOut(entityreg.FlatColumn{IsJSON: true}, []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, out)
}

func TestConvertIn_JSON_Encodes(t *testing.T) {
	out, err := convertIn(entityreg.FlatColumn{IsJSON: true}, map[string]any{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(out.([]byte)))
}

func TestConvertOut_Nil_PassesThrough(t *testing.T) {
	out, err := convertOut(entityreg.FlatColumn{IsBigInt: true}, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestKeyString_Time(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-01T00:00:00Z", keyString(ts))
}

func TestKeyString_Decimal(t *testing.T) {
	assert.Equal(t, "42", keyString(decimal.NewFromInt(42)))
}

func TestKeyString_Raw(t *testing.T) {
	assert.Equal(t, "abc", keyString("abc"))
}

