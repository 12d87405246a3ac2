package memframe

import (
	"context"
	"fmt"

	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph"
	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph/celexpr"
	"github.com/Edwardvaneechoud/Flowfile-sub004/lazyframe"
)

func (e *Engine) Join(left, right lazyframe.Plan, settings *flowgraph.JoinSettings) (lazyframe.Plan, error) {
	leftPlan, err := asPlan(left)
	if err != nil {
		return nil, err
	}
	rightPlan, err := asPlan(right)
	if err != nil {
		return nil, err
	}
	return &plan{
		explainText: fmt.Sprintf("join(strategy=%s)", settings.Strategy),
		run: func(ctx context.Context) (*result, error) {
			l, err := leftPlan.exec(ctx)
			if err != nil {
				return nil, err
			}
			r, err := rightPlan.exec(ctx)
			if err != nil {
				return nil, err
			}

			matched := make([]bool, len(r.rows))
			var pairs [][2]int // indices into l.rows/r.rows; -1 means no counterpart

			switch settings.Strategy {
			case flowgraph.JoinCross:
				for i := range l.rows {
					for j := range r.rows {
						pairs = append(pairs, [2]int{i, j})
					}
				}
			case flowgraph.JoinSemi:
				for i, lr := range l.rows {
					for _, rr := range r.rows {
						if joinMatches(lr, rr, settings.Mapping) {
							pairs = append(pairs, [2]int{i, -1})
							break
						}
					}
				}
			case flowgraph.JoinAnti:
				for i, lr := range l.rows {
					found := false
					for _, rr := range r.rows {
						if joinMatches(lr, rr, settings.Mapping) {
							found = true
							break
						}
					}
					if !found {
						pairs = append(pairs, [2]int{i, -1})
					}
				}
			default:
				for i, lr := range l.rows {
					found := false
					for j, rr := range r.rows {
						if joinMatches(lr, rr, settings.Mapping) {
							found = true
							matched[j] = true
							pairs = append(pairs, [2]int{i, j})
						}
					}
					if !found && (settings.Strategy == flowgraph.JoinLeft || settings.Strategy == flowgraph.JoinOuter) {
						pairs = append(pairs, [2]int{i, -1})
					}
				}
				if settings.Strategy == flowgraph.JoinRight || settings.Strategy == flowgraph.JoinOuter {
					for j := range r.rows {
						if !matched[j] {
							pairs = append(pairs, [2]int{-1, j})
						}
					}
				}
			}

			leftSchema, rightSchema := l.schema, r.schema
			if settings.LeftSelect != nil {
				leftSchema, err = projectSchema(l.schema, settings.LeftSelect)
				if err != nil {
					return nil, err
				}
			}
			if settings.RightSelect != nil && settings.Strategy != flowgraph.JoinSemi && settings.Strategy != flowgraph.JoinAnti {
				rightSchema, err = projectSchema(r.schema, settings.RightSelect)
				if err != nil {
					return nil, err
				}
			}

			includeRight := settings.Strategy != flowgraph.JoinSemi && settings.Strategy != flowgraph.JoinAnti
			schema := append(flowgraph.Schema{}, leftSchema...)
			if includeRight {
				schema = append(schema, rightSchema...)
			}

			rows := make([]record, 0, len(pairs))
			for _, p := range pairs {
				out := make(record, len(schema))
				if p[0] >= 0 {
					projectInto(out, l.rows[p[0]], l.schema, leftSchema, settings.LeftSelect)
				}
				if includeRight && p[1] >= 0 {
					projectInto(out, r.rows[p[1]], r.schema, rightSchema, settings.RightSelect)
				}
				rows = append(rows, out)
			}
			return &result{schema: schema, rows: rows}, nil
		},
	}, nil
}

func joinMatches(left, right record, mapping []flowgraph.JoinMapping) bool {
	for _, m := range mapping {
		if compareValues(left[m.LeftCol], right[m.RightCol]) != 0 {
			return false
		}
	}
	return true
}

func projectSchema(schema flowgraph.Schema, entries []flowgraph.SelectEntry) (flowgraph.Schema, error) {
	out := make(flowgraph.Schema, 0, len(entries))
	for _, e := range entries {
		if !e.Keep {
			continue
		}
		col, ok := schema.Get(e.OldName)
		if !ok {
			return nil, fmt.Errorf("memframe: join select references unknown column %q", e.OldName)
		}
		name := col.Name
		if e.NewName != "" {
			name = e.NewName
		}
		typ := col.Type
		if e.Cast && e.DataType != "" {
			typ = e.DataType
		}
		out = append(out, flowgraph.Column{Name: name, Type: typ})
	}
	return out, nil
}

// projectInto copies src's columns into dst under outSchema's names, applying
// entries' renames/casts when given, or a straight copy otherwise.
func projectInto(dst, src record, srcSchema, outSchema flowgraph.Schema, entries []flowgraph.SelectEntry) {
	if entries == nil {
		for _, col := range srcSchema {
			dst[col.Name] = src[col.Name]
		}
		return
	}
	i := 0
	for _, e := range entries {
		if !e.Keep {
			continue
		}
		v := src[e.OldName]
		if e.Cast && e.DataType != "" {
			v = coerce(v, e.DataType)
		}
		dst[outSchema[i].Name] = v
		i++
	}
}

func (e *Engine) Union(inputs []lazyframe.Plan, settings *flowgraph.UnionSettings) (lazyframe.Plan, error) {
	plans := make([]*plan, len(inputs))
	for i, in := range inputs {
		p, err := asPlan(in)
		if err != nil {
			return nil, err
		}
		plans[i] = p
	}
	return &plan{
		explainText: fmt.Sprintf("union(how=%s)", settings.How),
		run: func(ctx context.Context) (*result, error) {
			results := make([]*result, len(plans))
			for i, p := range plans {
				r, err := p.exec(ctx)
				if err != nil {
					return nil, err
				}
				results[i] = r
			}
			if len(results) == 0 {
				return &result{}, nil
			}
			if settings.How == flowgraph.UnionVertical {
				schema := results[0].schema
				var rows []record
				for _, r := range results {
					rows = append(rows, r.rows...)
				}
				return &result{schema: schema, rows: rows}, nil
			}

			var schema flowgraph.Schema
			seen := map[string]bool{}
			for _, r := range results {
				for _, col := range r.schema {
					if !seen[col.Name] {
						seen[col.Name] = true
						schema = append(schema, col)
					}
				}
			}
			var rows []record
			for _, r := range results {
				for _, rec := range r.rows {
					out := make(record, len(schema))
					for _, col := range schema {
						out[col.Name] = rec[col.Name]
					}
					rows = append(rows, out)
				}
			}
			return &result{schema: schema, rows: rows}, nil
		},
	}, nil
}

// RawCode is memframe's bounded reference implementation of the raw-code
// escape hatch: it supports only a row-wise engine-native expression
// evaluated against a declared output schema, not arbitrary program text —
// genuine arbitrary code execution is outside a reference engine's scope.
func (e *Engine) RawCode(inputs []lazyframe.Plan, settings *flowgraph.PolarsCodeSettings) (lazyframe.Plan, error) {
	if len(settings.DeclaredSchema) == 0 {
		return nil, fmt.Errorf("memframe: raw_code requires a declared_schema to run against the reference engine")
	}
	plans := make([]*plan, len(inputs))
	for i, in := range inputs {
		p, err := asPlan(in)
		if err != nil {
			return nil, err
		}
		plans[i] = p
	}
	return &plan{
		explainText: "raw_code",
		run: func(ctx context.Context) (*result, error) {
			if len(plans) == 0 {
				return nil, fmt.Errorf("memframe: raw_code requires at least one input")
			}
			r, err := plans[0].exec(ctx)
			if err != nil {
				return nil, err
			}
			prog, err := celexpr.Compile(r.schema.Names(), settings.Source)
			if err != nil {
				return nil, err
			}
			rows := make([]record, len(r.rows))
			for i, rec := range r.rows {
				v, err := prog.Eval(rec)
				if err != nil {
					return nil, &flowgraph.ExecutionError{EngineMessage: err.Error(), Cause: err}
				}
				out, ok := v.(map[string]interface{})
				if !ok {
					return nil, fmt.Errorf("memframe: raw_code expression must evaluate to a record map")
				}
				rows[i] = record(out)
			}
			return &result{schema: settings.DeclaredSchema, rows: rows}, nil
		},
	}, nil
}
