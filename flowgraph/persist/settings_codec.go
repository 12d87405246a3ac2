package persist

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph"
)

// decodeInto re-marshals a generic settings map and decodes it into a
// typed wire struct — the same "generic map now typed struct" two-step the
// pack's YAML graph loader uses for per-unit parameters, just driven
// through yaml.Marshal/Unmarshal instead of a yaml.Node.Decode, since by
// the time a NodeDoc reaches here it has already been parsed once (from
// either YAML or JSON) into a plain map.
func decodeInto(raw map[string]interface{}, out interface{}) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("persist: re-marshaling settings: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("persist: decoding settings: %w", err)
	}
	return nil
}

func encodeFrom(in interface{}) (map[string]interface{}, error) {
	data, err := yaml.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("persist: encoding settings: %w", err)
	}
	var out map[string]interface{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("persist: re-decoding encoded settings: %w", err)
	}
	return out, nil
}

type manualColumnWire struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type selectEntryWire struct {
	OldName  string `yaml:"old_name"`
	NewName  string `yaml:"new_name"`
	Keep     bool   `yaml:"keep"`
	Position int    `yaml:"position"`
	DataType string `yaml:"data_type,omitempty"`
	Cast     bool   `yaml:"cast,omitempty"`
}

func toSelectEntryWire(e flowgraph.SelectEntry) selectEntryWire {
	return selectEntryWire{e.OldName, e.NewName, e.Keep, e.Position, string(e.DataType), e.Cast}
}

func fromSelectEntryWire(w selectEntryWire) flowgraph.SelectEntry {
	return flowgraph.SelectEntry{
		OldName: w.OldName, NewName: w.NewName, Keep: w.Keep,
		Position: w.Position, DataType: flowgraph.LogicalType(w.DataType), Cast: w.Cast,
	}
}

type sourceTableWire struct {
	Path           string          `yaml:"path"`
	Format         string          `yaml:"format"`
	Delimiter      string          `yaml:"delimiter,omitempty"`
	HasHeader      bool            `yaml:"has_header"`
	Encoding       string          `yaml:"encoding,omitempty"`
	SkipRows       int             `yaml:"skip_rows,omitempty"`
	DeclaredSchema flowgraph.Schema `yaml:"declared_schema,omitempty"`
}

type manualInputWire struct {
	Columns []manualColumnWire `yaml:"columns"`
	Rows    [][]interface{}    `yaml:"rows"`
}

type basicFilterWire struct {
	Field    string      `yaml:"field"`
	Operator string      `yaml:"operator"`
	Value    interface{} `yaml:"value,omitempty"`
	Value2   interface{} `yaml:"value2,omitempty"`
}

type filterWire struct {
	Mode               string           `yaml:"mode"`
	Basic              *basicFilterWire `yaml:"basic,omitempty"`
	AdvancedExpression string           `yaml:"advanced_expression,omitempty"`
}

type selectWire struct {
	Entries []selectEntryWire `yaml:"entries"`
}

type sortKeyWire struct {
	Column    string `yaml:"column"`
	Direction string `yaml:"direction"`
}

type sortWire struct {
	Keys []sortKeyWire `yaml:"keys"`
}

type uniqueWire struct {
	Columns  []string `yaml:"columns,omitempty"`
	Strategy string   `yaml:"strategy"`
}

type sampleWire struct {
	N int `yaml:"n"`
}

type formulaWire struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type,omitempty"`
	Expression string `yaml:"expression"`
}

type aggregationWire struct {
	InputColumn string `yaml:"input_column"`
	Function    string `yaml:"function"`
	OutputName  string `yaml:"output_name"`
}

type groupByWire struct {
	Keys         []string          `yaml:"keys,omitempty"`
	Aggregations []aggregationWire `yaml:"aggregations"`
}

type pivotWire struct {
	IndexCols   []string `yaml:"index_cols,omitempty"`
	PivotCol    string   `yaml:"pivot_col"`
	ValueCol    string   `yaml:"value_col"`
	Aggregation string   `yaml:"aggregation"`
}

type unpivotWire struct {
	IDCols    []string `yaml:"id_cols,omitempty"`
	ValueCols []string `yaml:"value_cols,omitempty"`
	Selector  string   `yaml:"selector,omitempty"`
}

type joinMappingWire struct {
	LeftCol  string `yaml:"left_col"`
	RightCol string `yaml:"right_col"`
}

type joinWire struct {
	Mapping     []joinMappingWire `yaml:"mapping,omitempty"`
	Strategy    string            `yaml:"strategy"`
	LeftSelect  []selectEntryWire `yaml:"left_select,omitempty"`
	RightSelect []selectEntryWire `yaml:"right_select,omitempty"`
}

type unionWire struct {
	How string `yaml:"how"`
}

type polarsCodeWire struct {
	Source         string           `yaml:"source"`
	Binary         bool             `yaml:"binary,omitempty"`
	DeclaredSchema flowgraph.Schema `yaml:"declared_schema,omitempty"`
}

type outputWire struct {
	Path      string `yaml:"path"`
	Format    string `yaml:"format"`
	WriteMode string `yaml:"write_mode"`
	Delimiter string `yaml:"delimiter,omitempty"`
}

// encodeSettings converts a node's typed settings into the generic map a
// NodeDoc carries.
func encodeSettings(s flowgraph.NodeSettings) (map[string]interface{}, error) {
	switch v := s.(type) {
	case *flowgraph.SourceTableSettings:
		return encodeFrom(sourceTableWire{
			Path: v.Path, Format: string(v.Format), Delimiter: v.Delimiter,
			HasHeader: v.HasHeader, Encoding: v.Encoding, SkipRows: v.SkipRows,
			DeclaredSchema: v.DeclaredSchema,
		})
	case *flowgraph.ManualInputSettings:
		cols := make([]manualColumnWire, len(v.Columns))
		for i, c := range v.Columns {
			cols[i] = manualColumnWire{Name: c.Name, Type: string(c.Type)}
		}
		return encodeFrom(manualInputWire{Columns: cols, Rows: v.Rows})
	case *flowgraph.FilterSettings:
		var basic *basicFilterWire
		if v.Basic != nil {
			basic = &basicFilterWire{
				Field: v.Basic.Field, Operator: string(v.Basic.Operator),
				Value: v.Basic.Value, Value2: v.Basic.Value2,
			}
		}
		return encodeFrom(filterWire{Mode: string(v.Mode), Basic: basic, AdvancedExpression: v.AdvancedExpression})
	case *flowgraph.SelectSettings:
		entries := make([]selectEntryWire, len(v.Entries))
		for i, e := range v.Entries {
			entries[i] = toSelectEntryWire(e)
		}
		return encodeFrom(selectWire{Entries: entries})
	case *flowgraph.SortSettings:
		keys := make([]sortKeyWire, len(v.Keys))
		for i, k := range v.Keys {
			keys[i] = sortKeyWire{Column: k.Column, Direction: string(k.Direction)}
		}
		return encodeFrom(sortWire{Keys: keys})
	case *flowgraph.UniqueSettings:
		return encodeFrom(uniqueWire{Columns: v.Columns, Strategy: string(v.Strategy)})
	case *flowgraph.SampleSettings:
		return encodeFrom(sampleWire{N: v.N})
	case *flowgraph.FormulaSettings:
		return encodeFrom(formulaWire{Name: v.Name, Type: string(v.Type), Expression: v.Expression})
	case *flowgraph.GroupBySettings:
		aggs := make([]aggregationWire, len(v.Aggregations))
		for i, a := range v.Aggregations {
			aggs[i] = aggregationWire{InputColumn: a.InputColumn, Function: string(a.Function), OutputName: a.OutputName}
		}
		return encodeFrom(groupByWire{Keys: v.Keys, Aggregations: aggs})
	case *flowgraph.PivotSettings:
		return encodeFrom(pivotWire{
			IndexCols: v.IndexCols, PivotCol: v.PivotCol, ValueCol: v.ValueCol,
			Aggregation: string(v.Aggregation),
		})
	case *flowgraph.UnpivotSettings:
		return encodeFrom(unpivotWire{IDCols: v.IDCols, ValueCols: v.ValueCols, Selector: string(v.Selector)})
	case *flowgraph.JoinSettings:
		mapping := make([]joinMappingWire, len(v.Mapping))
		for i, m := range v.Mapping {
			mapping[i] = joinMappingWire{LeftCol: m.LeftCol, RightCol: m.RightCol}
		}
		left := make([]selectEntryWire, len(v.LeftSelect))
		for i, e := range v.LeftSelect {
			left[i] = toSelectEntryWire(e)
		}
		right := make([]selectEntryWire, len(v.RightSelect))
		for i, e := range v.RightSelect {
			right[i] = toSelectEntryWire(e)
		}
		return encodeFrom(joinWire{Mapping: mapping, Strategy: string(v.Strategy), LeftSelect: left, RightSelect: right})
	case *flowgraph.UnionSettings:
		return encodeFrom(unionWire{How: string(v.How)})
	case *flowgraph.PolarsCodeSettings:
		return encodeFrom(polarsCodeWire{Source: v.Source, Binary: v.Binary, DeclaredSchema: v.DeclaredSchema})
	case *flowgraph.OutputSettings:
		return encodeFrom(outputWire{
			Path: v.Path, Format: string(v.Format), WriteMode: string(v.WriteMode), Delimiter: v.Delimiter,
		})
	default:
		return nil, fmt.Errorf("persist: unknown settings type %T", s)
	}
}

// decodeSettings reconstructs typed, validated settings for kind from a
// NodeDoc's generic settings map, re-running the same New* constructors
// the builder and direct-settings paths use — a loaded document can never
// carry settings the validating constructors would have rejected at
// construction time.
func decodeSettings(kind flowgraph.NodeKind, shared flowgraph.Shared, raw map[string]interface{}) (flowgraph.NodeSettings, error) {
	switch kind {
	case flowgraph.KindSourceTable:
		var w sourceTableWire
		if err := decodeInto(raw, &w); err != nil {
			return nil, err
		}
		return flowgraph.NewSourceTableSettings(shared, w.Path, flowgraph.SourceFormat(w.Format), w.Delimiter, w.HasHeader, w.Encoding, w.SkipRows, w.DeclaredSchema)

	case flowgraph.KindManualInput:
		var w manualInputWire
		if err := decodeInto(raw, &w); err != nil {
			return nil, err
		}
		cols := make([]flowgraph.ManualColumn, len(w.Columns))
		for i, c := range w.Columns {
			cols[i] = flowgraph.ManualColumn{Name: c.Name, Type: flowgraph.LogicalType(c.Type)}
		}
		return flowgraph.NewManualInputSettings(shared, cols, w.Rows)

	case flowgraph.KindFilter:
		var w filterWire
		if err := decodeInto(raw, &w); err != nil {
			return nil, err
		}
		var basic *flowgraph.BasicFilter
		if w.Basic != nil {
			basic = &flowgraph.BasicFilter{
				Field: w.Basic.Field, Operator: flowgraph.FilterOperator(w.Basic.Operator),
				Value: w.Basic.Value, Value2: w.Basic.Value2,
			}
		}
		return flowgraph.NewFilterSettings(shared, flowgraph.FilterMode(w.Mode), basic, w.AdvancedExpression)

	case flowgraph.KindSelect:
		var w selectWire
		if err := decodeInto(raw, &w); err != nil {
			return nil, err
		}
		entries := make([]flowgraph.SelectEntry, len(w.Entries))
		for i, e := range w.Entries {
			entries[i] = fromSelectEntryWire(e)
		}
		return flowgraph.NewSelectSettings(shared, entries)

	case flowgraph.KindSort:
		var w sortWire
		if err := decodeInto(raw, &w); err != nil {
			return nil, err
		}
		keys := make([]flowgraph.SortKey, len(w.Keys))
		for i, k := range w.Keys {
			keys[i] = flowgraph.SortKey{Column: k.Column, Direction: flowgraph.SortDirection(k.Direction)}
		}
		return flowgraph.NewSortSettings(shared, keys)

	case flowgraph.KindUnique:
		var w uniqueWire
		if err := decodeInto(raw, &w); err != nil {
			return nil, err
		}
		return flowgraph.NewUniqueSettings(shared, w.Columns, flowgraph.UniqueStrategy(w.Strategy))

	case flowgraph.KindSample:
		var w sampleWire
		if err := decodeInto(raw, &w); err != nil {
			return nil, err
		}
		return flowgraph.NewSampleSettings(shared, w.N)

	case flowgraph.KindFormula:
		var w formulaWire
		if err := decodeInto(raw, &w); err != nil {
			return nil, err
		}
		return flowgraph.NewFormulaSettings(shared, w.Name, flowgraph.LogicalType(w.Type), w.Expression)

	case flowgraph.KindGroupBy:
		var w groupByWire
		if err := decodeInto(raw, &w); err != nil {
			return nil, err
		}
		aggs := make([]flowgraph.Aggregation, len(w.Aggregations))
		for i, a := range w.Aggregations {
			aggs[i] = flowgraph.Aggregation{InputColumn: a.InputColumn, Function: flowgraph.AggFunc(a.Function), OutputName: a.OutputName}
		}
		return flowgraph.NewGroupBySettings(shared, w.Keys, aggs)

	case flowgraph.KindPivot:
		var w pivotWire
		if err := decodeInto(raw, &w); err != nil {
			return nil, err
		}
		return flowgraph.NewPivotSettings(shared, w.IndexCols, w.PivotCol, w.ValueCol, flowgraph.AggFunc(w.Aggregation))

	case flowgraph.KindUnpivot:
		var w unpivotWire
		if err := decodeInto(raw, &w); err != nil {
			return nil, err
		}
		return flowgraph.NewUnpivotSettings(shared, w.IDCols, w.ValueCols, flowgraph.UnpivotSelector(w.Selector))

	case flowgraph.KindJoin:
		var w joinWire
		if err := decodeInto(raw, &w); err != nil {
			return nil, err
		}
		mapping := make([]flowgraph.JoinMapping, len(w.Mapping))
		for i, m := range w.Mapping {
			mapping[i] = flowgraph.JoinMapping{LeftCol: m.LeftCol, RightCol: m.RightCol}
		}
		left := make([]flowgraph.SelectEntry, len(w.LeftSelect))
		for i, e := range w.LeftSelect {
			left[i] = fromSelectEntryWire(e)
		}
		right := make([]flowgraph.SelectEntry, len(w.RightSelect))
		for i, e := range w.RightSelect {
			right[i] = fromSelectEntryWire(e)
		}
		return flowgraph.NewJoinSettings(shared, mapping, flowgraph.JoinStrategy(w.Strategy), left, right)

	case flowgraph.KindUnion:
		var w unionWire
		if err := decodeInto(raw, &w); err != nil {
			return nil, err
		}
		return flowgraph.NewUnionSettings(shared, flowgraph.UnionMode(w.How))

	case flowgraph.KindPolarsCode:
		var w polarsCodeWire
		if err := decodeInto(raw, &w); err != nil {
			return nil, err
		}
		return flowgraph.NewPolarsCodeSettings(shared, w.Source, w.Binary, w.DeclaredSchema)

	case flowgraph.KindOutput:
		var w outputWire
		if err := decodeInto(raw, &w); err != nil {
			return nil, err
		}
		return flowgraph.NewOutputSettings(shared, w.Path, flowgraph.SourceFormat(w.Format), flowgraph.WriteMode(w.WriteMode), w.Delimiter)

	default:
		return nil, fmt.Errorf("persist: unknown node kind %q", kind)
	}
}
