package prices

import (
	"strconv"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Row is one normalized provider row. Accessors distinguish "key missing"
// from "key present but empty or unparseable".
type Row map[string]any

// Str reads a string-valued field. Numeric values are formatted; the second
// return is false only when the key is absent.
func (r Row) Str(key string) (string, bool) {
	raw, ok := r[key]
	if !ok {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case bool:
		return strconv.FormatBool(v), true
	case nil:
		return "", true
	default:
		return "", false
	}
}

// Num reads a numeric field. The second return is false when the key is
// absent or the value does not parse as a number.
func (r Row) Num(key string) (decimal.Decimal, bool) {
	raw, ok := r[key]
	if !ok {
		return decimal.Decimal{}, false
	}
	switch v := raw.(type) {
	case decimal.Decimal:
		return v, true
	case float64:
		return decimal.NewFromFloat(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	case string:
		if v == "" {
			return decimal.Decimal{}, false
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	default:
		return decimal.Decimal{}, false
	}
}
