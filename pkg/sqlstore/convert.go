package sqlstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/LerianStudio/outboxtx/v2/pkg/entityreg"
	"github.com/LerianStudio/outboxtx/v2/pkg/outboxerr"
)

// maxSafeInt mirrors the largest integer a float64-backed client can hold
// without precision loss (2^53-1); isInt columns are rejected past this
// range so a caller backed by such a client never silently loses bits.
// isBigInt columns are exempt: they round-trip through decimal.Decimal.
const maxSafeInt = int64(1)<<53 - 1

const minSafeInt = -maxSafeInt

// convertOut applies the store-type -> client-type conversion rules to a
// value freshly read from the store.
func convertOut(col entityreg.FlatColumn, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch {
	case col.IsBigInt:
		return toDecimal(value)
	case col.IsInt:
		v, err := toInt64(value)
		if err != nil {
			return nil, err
		}

		if v > maxSafeInt || v < minSafeInt {
			return nil, outboxerr.RangeError(fmt.Sprintf("column %s: value %d exceeds safe integer range", col.Name, v))
		}

		return v, nil
	case col.IsJSON:
		return decodeJSON(value)
	case col.IsPreciseDate:
		return toTime(value)
	default:
		if t, ok := value.(time.Time); ok {
			return t.Truncate(time.Millisecond), nil
		}

		return value, nil
	}
}

// convertIn applies the client-type -> store-type conversion rules to a
// value about to be written.
func convertIn(col entityreg.FlatColumn, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch {
	case col.IsBigInt:
		d, err := toDecimal(value)
		if err != nil {
			return nil, err
		}

		return d.String(), nil
	case col.IsInt:
		v, err := toInt64(value)
		if err != nil {
			return nil, err
		}

		if v > maxSafeInt || v < minSafeInt {
			return nil, outboxerr.InvalidArgument(fmt.Sprintf("column %s: value %d exceeds safe integer range", col.Name, v))
		}

		return v, nil
	case col.IsJSON:
		b, err := json.Marshal(value)
		if err != nil {
			return nil, outboxerr.InvalidArgument(fmt.Sprintf("column %s: %s", col.Name, err.Error()))
		}

		return b, nil
	case col.IsPreciseDate:
		t, ok := value.(time.Time)
		if !ok {
			return nil, outboxerr.InvalidArgument(fmt.Sprintf("column %s: expected time.Time for precise date", col.Name))
		}

		return t, nil
	default:
		if t, ok := value.(time.Time); ok {
			return t.Truncate(time.Millisecond), nil
		}

		return value, nil
	}
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, outboxerr.InvalidArgument(fmt.Sprintf("expected integer, got %T", value))
	}
}

func toDecimal(value any) (decimal.Decimal, error) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Decimal{}, outboxerr.InvalidArgument("invalid bigint value: " + err.Error())
		}

		return d, nil
	case int64:
		return decimal.NewFromInt(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case []byte:
		d, err := decimal.NewFromString(string(v))
		if err != nil {
			return decimal.Decimal{}, outboxerr.InvalidArgument("invalid bigint value: " + err.Error())
		}

		return d, nil
	default:
		return decimal.Decimal{}, outboxerr.InvalidArgument(fmt.Sprintf("expected bigint-compatible value, got %T", value))
	}
}

func toTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	default:
		return time.Time{}, outboxerr.InvalidArgument(fmt.Sprintf("expected time.Time, got %T", value))
	}
}

func decodeJSON(value any) (any, error) {
	var raw []byte

	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return value, nil
	}

	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, outboxerr.InvalidArgument("invalid JSON column value: " + err.Error())
	}

	return out, nil
}

// keyString renders a key field in its string form: RFC3339Nano for time
// values, the decimal string for bigints, and fmt's default otherwise.
func keyString(value any) string {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case decimal.Decimal:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
