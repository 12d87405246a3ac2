package memframe

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph"
)

// toFloat64 coerces common numeric representations, matching the operator-
// evaluation style of the teacher's condition package.
func toFloat64(v interface{}) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int8:
		return float64(val), nil
	case int16:
		return float64(val), nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to number", val)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to number", v)
	}
}

// evalBasicOperator evaluates one basic-filter comparison against a row
// value, following the same operator-by-operator dispatch as the teacher's
// condition.evaluateOperator.
func evalBasicOperator(op flowgraph.FilterOperator, actual, expected, expected2 interface{}) (bool, error) {
	switch op {
	case flowgraph.OpIsNull:
		return actual == nil, nil
	case flowgraph.OpIsNotNull:
		return actual != nil, nil
	case flowgraph.OpEq:
		return reflect.DeepEqual(actual, expected), nil
	case flowgraph.OpNe:
		return !reflect.DeepEqual(actual, expected), nil
	case flowgraph.OpLt, flowgraph.OpLe, flowgraph.OpGt, flowgraph.OpGe:
		a, err := toFloat64(actual)
		if err != nil {
			return false, err
		}
		b, err := toFloat64(expected)
		if err != nil {
			return false, err
		}
		switch op {
		case flowgraph.OpLt:
			return a < b, nil
		case flowgraph.OpLe:
			return a <= b, nil
		case flowgraph.OpGt:
			return a > b, nil
		default:
			return a >= b, nil
		}
	case flowgraph.OpBetween:
		a, err := toFloat64(actual)
		if err != nil {
			return false, err
		}
		lo, err := toFloat64(expected)
		if err != nil {
			return false, err
		}
		hi, err := toFloat64(expected2)
		if err != nil {
			return false, err
		}
		return a >= lo && a <= hi, nil
	case flowgraph.OpContains:
		s, ok := actual.(string)
		if !ok {
			return false, fmt.Errorf("contains requires a string column, got %T", actual)
		}
		return strings.Contains(s, fmt.Sprint(expected)), nil
	case flowgraph.OpNotContains:
		ok, err := evalBasicOperator(flowgraph.OpContains, actual, expected, nil)
		return !ok, err
	case flowgraph.OpStartsWith:
		s, ok := actual.(string)
		if !ok {
			return false, fmt.Errorf("starts_with requires a string column, got %T", actual)
		}
		return strings.HasPrefix(s, fmt.Sprint(expected)), nil
	case flowgraph.OpEndsWith:
		s, ok := actual.(string)
		if !ok {
			return false, fmt.Errorf("ends_with requires a string column, got %T", actual)
		}
		return strings.HasSuffix(s, fmt.Sprint(expected)), nil
	case flowgraph.OpIn:
		items, ok := expected.([]interface{})
		if !ok {
			return false, fmt.Errorf("in requires a list value")
		}
		for _, item := range items {
			if reflect.DeepEqual(actual, item) {
				return true, nil
			}
		}
		return false, nil
	case flowgraph.OpNotIn:
		ok, err := evalBasicOperator(flowgraph.OpIn, actual, expected, nil)
		return !ok, err
	default:
		return false, fmt.Errorf("unsupported operator: %s", op)
	}
}

// compareValues imposes a total order across the value kinds the reference
// engine encounters, used by sort and unique.
func compareValues(a, b interface{}) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	if af, aerr := toFloat64(a); aerr == nil {
		if bf, berr := toFloat64(b); berr == nil {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	return strings.Compare(as, bs)
}

func stableSortRecords(rows []record, keys []flowgraph.SortKey) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			c := compareValues(rows[i][k.Column], rows[j][k.Column])
			if c == 0 {
				continue
			}
			if k.Direction == flowgraph.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func recordKey(rec record, columns []string) string {
	var sb strings.Builder
	for _, c := range columns {
		sb.WriteString(fmt.Sprintf("%v\x1f", rec[c]))
	}
	return sb.String()
}

func coerce(v interface{}, typ flowgraph.LogicalType) interface{} {
	if v == nil {
		return nil
	}
	switch typ {
	case flowgraph.TypeString:
		return fmt.Sprint(v)
	case flowgraph.TypeFloat32, flowgraph.TypeFloat64, flowgraph.TypeDecimal:
		f, err := toFloat64(v)
		if err != nil {
			return v
		}
		return f
	case flowgraph.TypeInt8, flowgraph.TypeInt16, flowgraph.TypeInt32, flowgraph.TypeInt64,
		flowgraph.TypeUInt8, flowgraph.TypeUInt16, flowgraph.TypeUInt32, flowgraph.TypeUInt64:
		f, err := toFloat64(v)
		if err != nil {
			return v
		}
		return int64(f)
	default:
		return v
	}
}
