package memframe

import (
	"context"
	"fmt"
	"sort"

	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph"
	"github.com/Edwardvaneechoud/Flowfile-sub004/lazyframe"
)

func (e *Engine) GroupBy(in lazyframe.Plan, settings *flowgraph.GroupBySettings) (lazyframe.Plan, error) {
	upstream, err := asPlan(in)
	if err != nil {
		return nil, err
	}
	return &plan{
		explainText: "group_by",
		run: func(ctx context.Context) (*result, error) {
			r, err := upstream.exec(ctx)
			if err != nil {
				return nil, err
			}
			groups := map[string][]record{}
			var order []string
			for _, rec := range r.rows {
				k := recordKey(rec, settings.Keys)
				if _, ok := groups[k]; !ok {
					order = append(order, k)
				}
				groups[k] = append(groups[k], rec)
			}

			schema := make(flowgraph.Schema, 0, len(settings.Keys)+len(settings.Aggregations))
			for _, k := range settings.Keys {
				col, _ := r.schema.Get(k)
				schema = append(schema, flowgraph.Column{Name: k, Type: col.Type})
			}
			for _, agg := range settings.Aggregations {
				inCol, _ := r.schema.Get(agg.InputColumn)
				schema = append(schema, flowgraph.Column{Name: agg.OutputName, Type: aggregationOutputType(agg.Function, inCol.Type)})
			}

			rows := make([]record, 0, len(order))
			for _, k := range order {
				members := groups[k]
				out := make(record, len(schema))
				for _, key := range settings.Keys {
					out[key] = members[0][key]
				}
				for _, agg := range settings.Aggregations {
					v, err := aggregate(agg.Function, members, agg.InputColumn)
					if err != nil {
						return nil, err
					}
					out[agg.OutputName] = v
				}
				rows = append(rows, out)
			}
			return &result{schema: schema, rows: rows}, nil
		},
	}, nil
}

func aggregationOutputType(fn flowgraph.AggFunc, inputType flowgraph.LogicalType) flowgraph.LogicalType {
	switch fn {
	case flowgraph.AggCount, flowgraph.AggNUnique:
		return flowgraph.TypeInt64
	case flowgraph.AggMean, flowgraph.AggMedian:
		return flowgraph.TypeFloat64
	case flowgraph.AggConcat:
		return flowgraph.TypeString
	default:
		return inputType
	}
}

func aggregate(fn flowgraph.AggFunc, rows []record, column string) (interface{}, error) {
	switch fn {
	case flowgraph.AggCount:
		return int64(len(rows)), nil
	case flowgraph.AggFirst:
		return rows[0][column], nil
	case flowgraph.AggLast:
		return rows[len(rows)-1][column], nil
	case flowgraph.AggNUnique:
		seen := map[string]bool{}
		for _, r := range rows {
			seen[fmt.Sprint(r[column])] = true
		}
		return int64(len(seen)), nil
	case flowgraph.AggConcat:
		var out string
		for i, r := range rows {
			if i > 0 {
				out += ","
			}
			out += fmt.Sprint(r[column])
		}
		return out, nil
	case flowgraph.AggSum, flowgraph.AggMean, flowgraph.AggMin, flowgraph.AggMax, flowgraph.AggMedian:
		values := make([]float64, 0, len(rows))
		for _, r := range rows {
			f, err := toFloat64(r[column])
			if err != nil {
				return nil, &flowgraph.ExecutionError{EngineMessage: err.Error(), Cause: err}
			}
			values = append(values, f)
		}
		return numericAggregate(fn, values), nil
	default:
		return nil, fmt.Errorf("memframe: unsupported aggregation %q", fn)
	}
}

func numericAggregate(fn flowgraph.AggFunc, values []float64) float64 {
	switch fn {
	case flowgraph.AggSum:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum
	case flowgraph.AggMean:
		var sum float64
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values))
	case flowgraph.AggMin:
		min := values[0]
		for _, v := range values[1:] {
			if v < min {
				min = v
			}
		}
		return min
	case flowgraph.AggMax:
		max := values[0]
		for _, v := range values[1:] {
			if v > max {
				max = v
			}
		}
		return max
	case flowgraph.AggMedian:
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		mid := len(sorted) / 2
		if len(sorted)%2 == 0 {
			return (sorted[mid-1] + sorted[mid]) / 2
		}
		return sorted[mid]
	default:
		return 0
	}
}

// Pivot is where the schema propagator's DynamicColumns prediction (spec
// §4.5's partial-schema case) is concretized for a single run: the distinct
// pivot values are only known once the data is actually read.
func (e *Engine) Pivot(in lazyframe.Plan, settings *flowgraph.PivotSettings) (lazyframe.Plan, error) {
	upstream, err := asPlan(in)
	if err != nil {
		return nil, err
	}
	return &plan{
		explainText: "pivot",
		run: func(ctx context.Context) (*result, error) {
			r, err := upstream.exec(ctx)
			if err != nil {
				return nil, err
			}
			indexCols := settings.IndexCols
			groups := map[string][]record{}
			var groupOrder []string
			pivotValues := map[string]bool{}
			var pivotOrder []string
			for _, rec := range r.rows {
				k := recordKey(rec, indexCols)
				if _, ok := groups[k]; !ok {
					groupOrder = append(groupOrder, k)
				}
				groups[k] = append(groups[k], rec)
				pv := fmt.Sprint(rec[settings.PivotCol])
				if !pivotValues[pv] {
					pivotValues[pv] = true
					pivotOrder = append(pivotOrder, pv)
				}
			}
			sort.Strings(pivotOrder)

			valueCol, _ := r.schema.Get(settings.ValueCol)
			schema := make(flowgraph.Schema, 0, len(indexCols)+len(pivotOrder))
			for _, c := range indexCols {
				col, _ := r.schema.Get(c)
				schema = append(schema, flowgraph.Column{Name: c, Type: col.Type})
			}
			for _, pv := range pivotOrder {
				schema = append(schema, flowgraph.Column{Name: pv, Type: aggregationOutputType(settings.Aggregation, valueCol.Type)})
			}

			rows := make([]record, 0, len(groupOrder))
			for _, k := range groupOrder {
				members := groups[k]
				out := make(record, len(schema))
				for _, c := range indexCols {
					out[c] = members[0][c]
				}
				byPivot := map[string][]record{}
				for _, m := range members {
					pv := fmt.Sprint(m[settings.PivotCol])
					byPivot[pv] = append(byPivot[pv], m)
				}
				for pv, group := range byPivot {
					v, err := aggregate(settings.Aggregation, group, settings.ValueCol)
					if err != nil {
						return nil, err
					}
					out[pv] = v
				}
				rows = append(rows, out)
			}
			return &result{schema: schema, rows: rows}, nil
		},
	}, nil
}

func (e *Engine) Unpivot(in lazyframe.Plan, settings *flowgraph.UnpivotSettings) (lazyframe.Plan, error) {
	upstream, err := asPlan(in)
	if err != nil {
		return nil, err
	}
	return &plan{
		explainText: "unpivot",
		run: func(ctx context.Context) (*result, error) {
			r, err := upstream.exec(ctx)
			if err != nil {
				return nil, err
			}
			valueCols := settings.ValueCols
			if len(valueCols) == 0 {
				valueCols = selectColumnsBySelector(r.schema, settings.IDCols, settings.Selector)
			}
			valueType := commonSuperTypeOf(r.schema, valueCols)

			schema := make(flowgraph.Schema, 0, len(settings.IDCols)+2)
			for _, c := range settings.IDCols {
				col, _ := r.schema.Get(c)
				schema = append(schema, flowgraph.Column{Name: c, Type: col.Type})
			}
			schema = append(schema, flowgraph.Column{Name: "variable", Type: flowgraph.TypeString})
			schema = append(schema, flowgraph.Column{Name: "value", Type: valueType})

			rows := make([]record, 0, len(r.rows)*len(valueCols))
			for _, rec := range r.rows {
				for _, vc := range valueCols {
					out := make(record, len(schema))
					for _, c := range settings.IDCols {
						out[c] = rec[c]
					}
					out["variable"] = vc
					out["value"] = rec[vc]
					rows = append(rows, out)
				}
			}
			return &result{schema: schema, rows: rows}, nil
		},
	}, nil
}

func selectColumnsBySelector(schema flowgraph.Schema, idCols []string, selector flowgraph.UnpivotSelector) []string {
	ids := map[string]bool{}
	for _, c := range idCols {
		ids[c] = true
	}
	var out []string
	for _, col := range schema {
		if ids[col.Name] {
			continue
		}
		if matchesSelector(col.Type, selector) {
			out = append(out, col.Name)
		}
	}
	return out
}

func matchesSelector(t flowgraph.LogicalType, selector flowgraph.UnpivotSelector) bool {
	switch selector {
	case flowgraph.SelectorAll, "":
		return true
	case flowgraph.SelectorString:
		return t == flowgraph.TypeString
	case flowgraph.SelectorFloat:
		return t == flowgraph.TypeFloat32 || t == flowgraph.TypeFloat64
	case flowgraph.SelectorNumeric:
		switch t {
		case flowgraph.TypeInt8, flowgraph.TypeInt16, flowgraph.TypeInt32, flowgraph.TypeInt64,
			flowgraph.TypeUInt8, flowgraph.TypeUInt16, flowgraph.TypeUInt32, flowgraph.TypeUInt64,
			flowgraph.TypeFloat32, flowgraph.TypeFloat64, flowgraph.TypeDecimal:
			return true
		}
		return false
	case flowgraph.SelectorDate:
		return t == flowgraph.TypeDate || t == flowgraph.TypeDatetime || t == flowgraph.TypeTime
	default:
		return false
	}
}

func commonSuperTypeOf(schema flowgraph.Schema, columns []string) flowgraph.LogicalType {
	if len(columns) == 0 {
		return flowgraph.TypeUnknown
	}
	first, _ := schema.Get(columns[0])
	result := first.Type
	for _, c := range columns[1:] {
		col, _ := schema.Get(c)
		if col.Type != result {
			return flowgraph.TypeString
		}
	}
	return result
}
