// Package celexpr evaluates the engine-native expression dialect used by
// filter(advanced), polars_code, and the fluent builder's raw_code escape
// hatch. Columns are exposed to the expression as top-level CEL variables
// rather than through a single "state"/"input" object, since each compiled
// program is scoped to one node's upstream schema.
package celexpr

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// scalarFunctions are the fixed set of scalar helpers the bracketed-formula
// compiler targets (round, upper, lower, length, and date parts). They are
// registered as custom CEL functions the same way the teacher registers
// has_tool_calls — a function plus one or more typed overloads.
func scalarFunctions() []celgo.EnvOption {
	return []celgo.EnvOption{
		celgo.Function("round",
			celgo.Overload("round_double", []*celgo.Type{celgo.DoubleType}, celgo.DoubleType,
				celgo.UnaryBinding(func(v ref.Val) ref.Val {
					f, ok := v.Value().(float64)
					if !ok {
						return types.NewErr("round: expected double")
					}
					return types.Double(math.Round(f))
				}))),
		celgo.Function("upper",
			celgo.Overload("upper_string", []*celgo.Type{celgo.StringType}, celgo.StringType,
				celgo.UnaryBinding(func(v ref.Val) ref.Val {
					s, ok := v.Value().(string)
					if !ok {
						return types.NewErr("upper: expected string")
					}
					return types.String(strings.ToUpper(s))
				}))),
		celgo.Function("lower",
			celgo.Overload("lower_string", []*celgo.Type{celgo.StringType}, celgo.StringType,
				celgo.UnaryBinding(func(v ref.Val) ref.Val {
					s, ok := v.Value().(string)
					if !ok {
						return types.NewErr("lower: expected string")
					}
					return types.String(strings.ToLower(s))
				}))),
		celgo.Function("length",
			celgo.Overload("length_string", []*celgo.Type{celgo.StringType}, celgo.IntType,
				celgo.UnaryBinding(func(v ref.Val) ref.Val {
					s, ok := v.Value().(string)
					if !ok {
						return types.NewErr("length: expected string")
					}
					return types.Int(len(s))
				}))),
		celgo.Function("year",
			celgo.Overload("year_timestamp", []*celgo.Type{celgo.TimestampType}, celgo.IntType,
				celgo.UnaryBinding(func(v ref.Val) ref.Val {
					t, ok := v.Value().(time.Time)
					if !ok {
						return types.NewErr("year: expected timestamp")
					}
					return types.Int(t.Year())
				}))),
		celgo.Function("month",
			celgo.Overload("month_timestamp", []*celgo.Type{celgo.TimestampType}, celgo.IntType,
				celgo.UnaryBinding(func(v ref.Val) ref.Val {
					t, ok := v.Value().(time.Time)
					if !ok {
						return types.NewErr("month: expected timestamp")
					}
					return types.Int(int(t.Month()))
				}))),
		celgo.Function("day",
			celgo.Overload("day_timestamp", []*celgo.Type{celgo.TimestampType}, celgo.IntType,
				celgo.UnaryBinding(func(v ref.Val) ref.Val {
					t, ok := v.Value().(time.Time)
					if !ok {
						return types.NewErr("day: expected timestamp")
					}
					return types.Int(t.Day())
				}))),
	}
}

// Program is a compiled expression bound to a fixed set of column names.
type Program struct {
	prg     celgo.Program
	columns []string
	source  string
}

// Compile parses and type-checks expression against an environment
// declaring one dynamically-typed variable per column name. Compilation
// fails if expression references a name not in columns.
func Compile(columns []string, expression string) (*Program, error) {
	if expression == "" {
		return nil, fmt.Errorf("celexpr: expression is empty")
	}
	opts := make([]celgo.EnvOption, 0, len(columns)+len(scalarFunctions()))
	for _, c := range columns {
		opts = append(opts, celgo.Variable(c, celgo.DynType))
	}
	opts = append(opts, scalarFunctions()...)
	env, err := celgo.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("celexpr: building environment: %w", err)
	}
	ast, issues := env.Parse(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("celexpr: parse error in %q: %w", expression, issues.Err())
	}
	ast, issues = env.Check(ast)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("celexpr: type-check error in %q: %w", expression, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("celexpr: program build error: %w", err)
	}
	return &Program{prg: prg, columns: columns, source: expression}, nil
}

// Eval evaluates the expression against one row, given as a column-name to
// value map. Missing columns are passed as nil.
func (p *Program) Eval(row map[string]interface{}) (interface{}, error) {
	activation := make(map[string]interface{}, len(p.columns))
	for _, c := range p.columns {
		activation[c] = row[c]
	}
	out, _, err := p.prg.Eval(activation)
	if err != nil {
		return nil, fmt.Errorf("celexpr: evaluating %q: %w", p.source, err)
	}
	return normalize(out), nil
}

// EvalBool evaluates the expression and requires a boolean result, as used
// by filter(advanced).
func (p *Program) EvalBool(row map[string]interface{}) (bool, error) {
	val, err := p.Eval(row)
	if err != nil {
		return false, err
	}
	b, ok := val.(bool)
	if !ok {
		return false, fmt.Errorf("celexpr: expression %q did not evaluate to bool (got %T)", p.source, val)
	}
	return b, nil
}

// normalize converts a CEL evaluation result into a plain Go value.
func normalize(v interface{}) interface{} {
	if rv, ok := v.(ref.Val); ok {
		return normalize(rv.Value())
	}
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		out := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(normalize(iter.Key().Interface()))] = normalize(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		n := rv.Len()
		out := make([]interface{}, n)
		for i := 0; i < n; i++ {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	default:
		return v
	}
}
