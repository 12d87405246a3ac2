package memframe

import (
	"context"
	"fmt"
	"strings"

	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph"
	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph/celexpr"
	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph/formula"
	"github.com/Edwardvaneechoud/Flowfile-sub004/lazyframe"
)

func (e *Engine) Filter(in lazyframe.Plan, settings *flowgraph.FilterSettings) (lazyframe.Plan, error) {
	upstream, err := asPlan(in)
	if err != nil {
		return nil, err
	}
	return &plan{
		explainText: fmt.Sprintf("filter(mode=%s)", settings.Mode),
		run: func(ctx context.Context) (*result, error) {
			r, err := upstream.exec(ctx)
			if err != nil {
				return nil, err
			}
			var pred func(record) (bool, error)
			switch settings.Mode {
			case flowgraph.FilterBasic:
				b := settings.Basic
				pred = func(rec record) (bool, error) {
					return evalBasicOperator(b.Operator, rec[b.Field], b.Value, b.Value2)
				}
			case flowgraph.FilterAdvanced:
				prog, err := compileExpression(r.schema.Names(), settings.AdvancedExpression)
				if err != nil {
					return nil, err
				}
				pred = func(rec record) (bool, error) {
					return prog.EvalBool(rec)
				}
			}
			out := make([]record, 0, len(r.rows))
			for _, rec := range r.rows {
				ok, err := pred(rec)
				if err != nil {
					return nil, &flowgraph.ExecutionError{EngineMessage: err.Error(), Cause: err}
				}
				if ok {
					out = append(out, rec)
				}
			}
			return &result{schema: r.schema, rows: out}, nil
		},
	}, nil
}

func (e *Engine) Select(in lazyframe.Plan, settings *flowgraph.SelectSettings) (lazyframe.Plan, error) {
	upstream, err := asPlan(in)
	if err != nil {
		return nil, err
	}
	return &plan{
		explainText: "select",
		run: func(ctx context.Context) (*result, error) {
			r, err := upstream.exec(ctx)
			if err != nil {
				return nil, err
			}
			kept := make([]flowgraph.SelectEntry, 0, len(settings.Entries))
			for _, e := range settings.Entries {
				if e.Keep {
					kept = append(kept, e)
				}
			}
			for i := 1; i < len(kept); i++ {
				j := i
				for j > 0 && kept[j-1].Position > kept[j].Position {
					kept[j-1], kept[j] = kept[j], kept[j-1]
					j--
				}
			}
			schema := make(flowgraph.Schema, 0, len(kept))
			for _, entry := range kept {
				col, ok := r.schema.Get(entry.OldName)
				if !ok {
					return nil, fmt.Errorf("memframe: select references unknown column %q", entry.OldName)
				}
				name := col.Name
				if entry.NewName != "" {
					name = entry.NewName
				}
				typ := col.Type
				if entry.Cast && entry.DataType != "" {
					typ = entry.DataType
				}
				schema = append(schema, flowgraph.Column{Name: name, Type: typ})
			}
			rows := make([]record, len(r.rows))
			for i, rec := range r.rows {
				out := make(record, len(kept))
				for j, entry := range kept {
					v := rec[entry.OldName]
					if entry.Cast && entry.DataType != "" {
						v = coerce(v, entry.DataType)
					}
					out[schema[j].Name] = v
				}
				rows[i] = out
			}
			return &result{schema: schema, rows: rows}, nil
		},
	}, nil
}

func (e *Engine) Sort(in lazyframe.Plan, settings *flowgraph.SortSettings) (lazyframe.Plan, error) {
	upstream, err := asPlan(in)
	if err != nil {
		return nil, err
	}
	return &plan{
		explainText: "sort",
		run: func(ctx context.Context) (*result, error) {
			r, err := upstream.exec(ctx)
			if err != nil {
				return nil, err
			}
			if len(settings.Keys) == 0 {
				return r, nil
			}
			rows := append([]record(nil), r.rows...)
			stableSortRecords(rows, settings.Keys)
			return &result{schema: r.schema, rows: rows}, nil
		},
	}, nil
}

func (e *Engine) Unique(in lazyframe.Plan, settings *flowgraph.UniqueSettings) (lazyframe.Plan, error) {
	upstream, err := asPlan(in)
	if err != nil {
		return nil, err
	}
	return &plan{
		explainText: "unique",
		run: func(ctx context.Context) (*result, error) {
			r, err := upstream.exec(ctx)
			if err != nil {
				return nil, err
			}
			columns := settings.Columns
			if len(columns) == 0 {
				columns = r.schema.Names()
			}
			counts := make(map[string]int, len(r.rows))
			for _, rec := range r.rows {
				counts[recordKey(rec, columns)]++
			}
			seen := make(map[string]bool, len(r.rows))
			var out []record
			if settings.Strategy == flowgraph.UniqueLast {
				for i := len(r.rows) - 1; i >= 0; i-- {
					k := recordKey(r.rows[i], columns)
					if settings.Strategy == flowgraph.UniqueNone && counts[k] > 1 {
						continue
					}
					if seen[k] {
						continue
					}
					seen[k] = true
					out = append([]record{r.rows[i]}, out...)
				}
			} else {
				for _, rec := range r.rows {
					k := recordKey(rec, columns)
					if settings.Strategy == flowgraph.UniqueNone {
						if counts[k] > 1 {
							continue
						}
						out = append(out, rec)
						continue
					}
					if seen[k] {
						continue
					}
					seen[k] = true
					out = append(out, rec)
				}
			}
			return &result{schema: r.schema, rows: out}, nil
		},
	}, nil
}

func (e *Engine) Sample(in lazyframe.Plan, settings *flowgraph.SampleSettings) (lazyframe.Plan, error) {
	upstream, err := asPlan(in)
	if err != nil {
		return nil, err
	}
	return &plan{
		explainText: fmt.Sprintf("sample(n=%d)", settings.N),
		run: func(ctx context.Context) (*result, error) {
			r, err := upstream.exec(ctx)
			if err != nil {
				return nil, err
			}
			n := settings.N
			if n > len(r.rows) {
				n = len(r.rows)
			}
			return &result{schema: r.schema, rows: append([]record(nil), r.rows[:n]...)}, nil
		},
	}, nil
}

func (e *Engine) Formula(in lazyframe.Plan, settings *flowgraph.FormulaSettings) (lazyframe.Plan, error) {
	upstream, err := asPlan(in)
	if err != nil {
		return nil, err
	}
	return &plan{
		explainText: fmt.Sprintf("formula(%s)", settings.Name),
		run: func(ctx context.Context) (*result, error) {
			r, err := upstream.exec(ctx)
			if err != nil {
				return nil, err
			}
			prog, err := compileExpression(r.schema.Names(), settings.Expression)
			if err != nil {
				return nil, err
			}
			typ := settings.Type
			if typ == "" {
				typ = flowgraph.TypeUnknown
			}
			schema := append(r.schema.Clone(), flowgraph.Column{Name: settings.Name, Type: typ})
			rows := make([]record, len(r.rows))
			for i, rec := range r.rows {
				v, err := prog.Eval(rec)
				if err != nil {
					return nil, &flowgraph.ExecutionError{EngineMessage: err.Error(), Cause: err}
				}
				out := cloneRecord(rec)
				out[settings.Name] = v
				rows[i] = out
			}
			return &result{schema: schema, rows: rows}, nil
		},
	}, nil
}

// compileExpression resolves the formula dialect ambiguity spec §4.6
// leaves open: an expression containing a bracketed column reference is
// compiled through the bracketed-formula DSL first; anything else is
// assumed to already be an engine-native expression.
func compileExpression(columns []string, expression string) (*celexpr.Program, error) {
	source := expression
	if strings.Contains(expression, "[") {
		compiled, err := formula.Compile(expression)
		if err != nil {
			return nil, err
		}
		source = compiled
	}
	return celexpr.Compile(columns, source)
}
