package flowgraph

import "fmt"

// NodeKind is the closed set of node kinds a NodeSettings variant can carry
// (spec §6.1). Adding a new kind means adding a new NodeSettings case and a
// schema rule; there is no open extension point in the core.
type NodeKind string

const (
	KindSourceTable NodeKind = "source_table"
	KindManualInput NodeKind = "manual_input"
	KindFilter      NodeKind = "filter"
	KindSelect      NodeKind = "select"
	KindSort        NodeKind = "sort"
	KindUnique      NodeKind = "unique"
	KindSample      NodeKind = "sample"
	KindFormula     NodeKind = "formula"
	KindGroupBy     NodeKind = "group_by"
	KindPivot       NodeKind = "pivot"
	KindUnpivot     NodeKind = "unpivot"
	KindJoin        NodeKind = "join"
	KindUnion       NodeKind = "union"
	KindPolarsCode  NodeKind = "polars_code"
	KindOutput      NodeKind = "output"
)

// Arity describes how many input slots a node kind declares (spec §3 slot
// model).
type Arity int

const (
	ArityNone     Arity = iota // Source: 0 inputs
	AritySingle                // one `main` slot
	ArityBinary                // `left` and `right` slots
	ArityVariadic              // ordered `main[i]` slots
)

// ArityOf returns the declared arity for a node kind, for kinds whose arity
// does not depend on their settings value.
func ArityOf(kind NodeKind) Arity {
	switch kind {
	case KindSourceTable, KindManualInput:
		return ArityNone
	case KindJoin:
		return ArityBinary
	case KindUnion:
		return ArityVariadic
	default:
		return AritySingle
	}
}

// ArityForSettings returns the arity implied by a concrete settings value.
// polars_code is the one kind whose arity is a settings field rather than a
// function of Kind() alone (spec §6.1: "single or binary").
func ArityForSettings(s NodeSettings) Arity {
	if pc, ok := s.(*PolarsCodeSettings); ok && pc.Binary {
		return ArityBinary
	}
	return ArityOf(s.Kind())
}

// Shared holds the fields every NodeSettings case carries (spec §4.1).
type Shared struct {
	FlowID        int
	NodeID        NodeID
	CacheResults  bool
	Description   string
	PosX          float64
	PosY          float64
}

// NodeSettings is the tagged-variant interface every per-kind settings
// struct implements. Construction happens exclusively through the New*
// constructors below, which validate and return InvalidSettingsError on
// failure — there is no mutable "builder" for a settings value; editing
// means constructing a replacement (spec §4.1, §4.2 update_settings).
type NodeSettings interface {
	Kind() NodeKind
	SharedFields() Shared
	// canonical returns a value stable under field-reordering, suitable for
	// content-hash input. It must not include Shared.PosX/PosY/Description,
	// which are cosmetic and excluded from content_hash (spec §4.3).
	canonical() interface{}
}

func validationErr(kind NodeKind, field, reason string) error {
	return &InvalidSettingsError{Kind: kind, Field: field, Reason: reason}
}

// ---- source_table ----

type SourceFormat string

const (
	FormatCSV     SourceFormat = "csv"
	FormatParquet SourceFormat = "parquet"
	FormatJSON    SourceFormat = "json"
	FormatExcel   SourceFormat = "excel"
)

type SourceTableSettings struct {
	Shared
	Path          string
	Format        SourceFormat
	Delimiter     string
	HasHeader     bool
	Encoding      string
	SkipRows      int
	DeclaredSchema Schema // optional; empty means probe
}

func NewSourceTableSettings(shared Shared, path string, format SourceFormat, delimiter string, hasHeader bool, encoding string, skipRows int, declared Schema) (*SourceTableSettings, error) {
	if path == "" {
		return nil, validationErr(KindSourceTable, "path", "must not be empty")
	}
	switch format {
	case FormatCSV, FormatParquet, FormatJSON, FormatExcel:
	default:
		return nil, validationErr(KindSourceTable, "format", fmt.Sprintf("unknown format %q", format))
	}
	if skipRows < 0 {
		return nil, validationErr(KindSourceTable, "skip_rows", "must be >= 0")
	}
	return &SourceTableSettings{
		Shared: shared, Path: path, Format: format, Delimiter: delimiter,
		HasHeader: hasHeader, Encoding: encoding, SkipRows: skipRows, DeclaredSchema: declared,
	}, nil
}

func (s *SourceTableSettings) Kind() NodeKind       { return KindSourceTable }
func (s *SourceTableSettings) SharedFields() Shared { return s.Shared }
func (s *SourceTableSettings) canonical() interface{} {
	return struct {
		Path, Format, Delimiter, Encoding string
		HasHeader                        bool
		SkipRows                         int
		Declared                         Schema
	}{s.Path, string(s.Format), s.Delimiter, s.Encoding, s.HasHeader, s.SkipRows, s.DeclaredSchema}
}

// ---- manual_input ----

type ManualColumn struct {
	Name string
	Type LogicalType
}

type ManualInputSettings struct {
	Shared
	Columns []ManualColumn
	Rows    [][]interface{}
}

func NewManualInputSettings(shared Shared, columns []ManualColumn, rows [][]interface{}) (*ManualInputSettings, error) {
	if len(columns) == 0 {
		return nil, validationErr(KindManualInput, "columns", "must declare at least one column")
	}
	seen := map[string]bool{}
	for _, c := range columns {
		if c.Name == "" {
			return nil, validationErr(KindManualInput, "columns", "column name must not be empty")
		}
		if seen[c.Name] {
			return nil, validationErr(KindManualInput, "columns", fmt.Sprintf("duplicate column name %q", c.Name))
		}
		seen[c.Name] = true
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, validationErr(KindManualInput, "rows", fmt.Sprintf("row %d has %d values, want %d", i, len(row), len(columns)))
		}
	}
	return &ManualInputSettings{Shared: shared, Columns: columns, Rows: rows}, nil
}

func (s *ManualInputSettings) Kind() NodeKind       { return KindManualInput }
func (s *ManualInputSettings) SharedFields() Shared { return s.Shared }
func (s *ManualInputSettings) canonical() interface{} {
	return struct {
		Columns []ManualColumn
		Rows    [][]interface{}
	}{s.Columns, s.Rows}
}

// ---- filter ----

type FilterMode string

const (
	FilterBasic    FilterMode = "basic"
	FilterAdvanced FilterMode = "advanced"
)

type FilterOperator string

const (
	OpEq            FilterOperator = "eq"
	OpNe            FilterOperator = "ne"
	OpLt            FilterOperator = "lt"
	OpLe            FilterOperator = "le"
	OpGt            FilterOperator = "gt"
	OpGe            FilterOperator = "ge"
	OpContains      FilterOperator = "contains"
	OpNotContains   FilterOperator = "not_contains"
	OpStartsWith    FilterOperator = "starts_with"
	OpEndsWith      FilterOperator = "ends_with"
	OpIsNull        FilterOperator = "is_null"
	OpIsNotNull     FilterOperator = "is_not_null"
	OpIn            FilterOperator = "in"
	OpNotIn         FilterOperator = "not_in"
	OpBetween       FilterOperator = "between"
)

type BasicFilter struct {
	Field    string
	Operator FilterOperator
	Value    interface{}
	Value2   interface{} // only meaningful for OpBetween
}

type FilterSettings struct {
	Shared
	Mode               FilterMode
	Basic              *BasicFilter
	AdvancedExpression string
}

func NewFilterSettings(shared Shared, mode FilterMode, basic *BasicFilter, advanced string) (*FilterSettings, error) {
	switch mode {
	case FilterBasic:
		if basic == nil {
			return nil, validationErr(KindFilter, "basic", "basic mode requires a basic filter")
		}
		if basic.Field == "" {
			return nil, validationErr(KindFilter, "field", "must not be empty")
		}
		switch basic.Operator {
		case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe, OpContains, OpNotContains,
			OpStartsWith, OpEndsWith, OpIsNull, OpIsNotNull, OpIn, OpNotIn, OpBetween:
		default:
			return nil, validationErr(KindFilter, "operator", fmt.Sprintf("unknown operator %q", basic.Operator))
		}
		if basic.Operator == OpBetween && basic.Value2 == nil {
			return nil, validationErr(KindFilter, "value2", "between operator requires value2")
		}
	case FilterAdvanced:
		if advanced == "" {
			return nil, validationErr(KindFilter, "expression", "advanced mode requires an expression")
		}
	default:
		return nil, validationErr(KindFilter, "mode", fmt.Sprintf("unknown mode %q", mode))
	}
	return &FilterSettings{Shared: shared, Mode: mode, Basic: basic, AdvancedExpression: advanced}, nil
}

func (s *FilterSettings) Kind() NodeKind       { return KindFilter }
func (s *FilterSettings) SharedFields() Shared { return s.Shared }
func (s *FilterSettings) canonical() interface{} {
	return struct {
		Mode       FilterMode
		Basic      *BasicFilter
		Advanced   string
	}{s.Mode, s.Basic, s.AdvancedExpression}
}

// ---- select ----

type SelectEntry struct {
	OldName  string
	NewName  string
	Keep     bool
	Position int
	DataType LogicalType // optional; empty means unchanged
	Cast     bool
}

type SelectSettings struct {
	Shared
	Entries []SelectEntry
}

func NewSelectSettings(shared Shared, entries []SelectEntry) (*SelectSettings, error) {
	if len(entries) == 0 {
		return nil, validationErr(KindSelect, "entries", "must list at least one column")
	}
	for _, e := range entries {
		if e.OldName == "" {
			return nil, validationErr(KindSelect, "old_name", "must not be empty")
		}
		if e.Cast && e.DataType == "" {
			return nil, validationErr(KindSelect, "data_type", "cast=true requires a data_type")
		}
	}
	return &SelectSettings{Shared: shared, Entries: entries}, nil
}

func (s *SelectSettings) Kind() NodeKind       { return KindSelect }
func (s *SelectSettings) SharedFields() Shared { return s.Shared }
func (s *SelectSettings) canonical() interface{} {
	return struct{ Entries []SelectEntry }{s.Entries}
}

// ---- sort ----

type SortDirection string

const (
	Ascending  SortDirection = "asc"
	Descending SortDirection = "desc"
)

type SortKey struct {
	Column    string
	Direction SortDirection
}

type SortSettings struct {
	Shared
	Keys []SortKey
}

func NewSortSettings(shared Shared, keys []SortKey) (*SortSettings, error) {
	for _, k := range keys {
		if k.Column == "" {
			return nil, validationErr(KindSort, "column", "must not be empty")
		}
		if k.Direction != Ascending && k.Direction != Descending {
			return nil, validationErr(KindSort, "direction", fmt.Sprintf("unknown direction %q", k.Direction))
		}
	}
	return &SortSettings{Shared: shared, Keys: keys}, nil
}

func (s *SortSettings) Kind() NodeKind       { return KindSort }
func (s *SortSettings) SharedFields() Shared { return s.Shared }
func (s *SortSettings) canonical() interface{} {
	return struct{ Keys []SortKey }{s.Keys}
}

// ---- unique ----

type UniqueStrategy string

const (
	UniqueFirst UniqueStrategy = "first"
	UniqueLast  UniqueStrategy = "last"
	UniqueAny   UniqueStrategy = "any"
	UniqueNone  UniqueStrategy = "none"
)

type UniqueSettings struct {
	Shared
	Columns  []string // empty means all columns
	Strategy UniqueStrategy
}

func NewUniqueSettings(shared Shared, columns []string, strategy UniqueStrategy) (*UniqueSettings, error) {
	switch strategy {
	case UniqueFirst, UniqueLast, UniqueAny, UniqueNone:
	default:
		return nil, validationErr(KindUnique, "strategy", fmt.Sprintf("unknown strategy %q", strategy))
	}
	return &UniqueSettings{Shared: shared, Columns: columns, Strategy: strategy}, nil
}

func (s *UniqueSettings) Kind() NodeKind       { return KindUnique }
func (s *UniqueSettings) SharedFields() Shared { return s.Shared }
func (s *UniqueSettings) canonical() interface{} {
	return struct {
		Columns  []string
		Strategy UniqueStrategy
	}{s.Columns, s.Strategy}
}

// ---- sample (head) ----

type SampleSettings struct {
	Shared
	N int
}

func NewSampleSettings(shared Shared, n int) (*SampleSettings, error) {
	if n < 0 {
		return nil, validationErr(KindSample, "n", "must be >= 0")
	}
	return &SampleSettings{Shared: shared, N: n}, nil
}

func (s *SampleSettings) Kind() NodeKind       { return KindSample }
func (s *SampleSettings) SharedFields() Shared { return s.Shared }
func (s *SampleSettings) canonical() interface{} {
	return struct{ N int }{s.N}
}

// ---- formula ----

type FormulaSettings struct {
	Shared
	Name       string
	Type       LogicalType // empty means infer from expression
	Expression string
}

func NewFormulaSettings(shared Shared, name string, typ LogicalType, expression string) (*FormulaSettings, error) {
	if name == "" {
		return nil, validationErr(KindFormula, "name", "must not be empty")
	}
	if expression == "" {
		return nil, validationErr(KindFormula, "expression", "must not be empty")
	}
	return &FormulaSettings{Shared: shared, Name: name, Type: typ, Expression: expression}, nil
}

func (s *FormulaSettings) Kind() NodeKind       { return KindFormula }
func (s *FormulaSettings) SharedFields() Shared { return s.Shared }
func (s *FormulaSettings) canonical() interface{} {
	return struct{ Name, Type, Expression string }{s.Name, string(s.Type), s.Expression}
}

// ---- group_by ----

type AggFunc string

const (
	AggSum     AggFunc = "sum"
	AggMean    AggFunc = "mean"
	AggMedian  AggFunc = "median"
	AggMin     AggFunc = "min"
	AggMax     AggFunc = "max"
	AggCount   AggFunc = "count"
	AggFirst   AggFunc = "first"
	AggLast    AggFunc = "last"
	AggNUnique AggFunc = "n_unique"
	AggConcat  AggFunc = "concat"
)

type Aggregation struct {
	InputColumn string
	Function    AggFunc
	OutputName  string
}

type GroupBySettings struct {
	Shared
	Keys         []string
	Aggregations []Aggregation
}

func NewGroupBySettings(shared Shared, keys []string, aggs []Aggregation) (*GroupBySettings, error) {
	seen := map[string]bool{}
	for _, a := range aggs {
		if a.OutputName == "" {
			return nil, validationErr(KindGroupBy, "output_name", "must not be empty")
		}
		if seen[a.OutputName] {
			return nil, validationErr(KindGroupBy, "output_name", fmt.Sprintf("duplicate aggregation output name %q", a.OutputName))
		}
		seen[a.OutputName] = true
		switch a.Function {
		case AggSum, AggMean, AggMedian, AggMin, AggMax, AggCount, AggFirst, AggLast, AggNUnique, AggConcat:
		default:
			return nil, validationErr(KindGroupBy, "function", fmt.Sprintf("unknown aggregation function %q", a.Function))
		}
	}
	return &GroupBySettings{Shared: shared, Keys: keys, Aggregations: aggs}, nil
}

func (s *GroupBySettings) Kind() NodeKind       { return KindGroupBy }
func (s *GroupBySettings) SharedFields() Shared { return s.Shared }
func (s *GroupBySettings) canonical() interface{} {
	return struct {
		Keys []string
		Aggs []Aggregation
	}{s.Keys, s.Aggregations}
}

// ---- pivot ----

type PivotSettings struct {
	Shared
	IndexCols   []string // empty means a synthesized singleton index (spec §8)
	PivotCol    string
	ValueCol    string
	Aggregation AggFunc
}

func NewPivotSettings(shared Shared, indexCols []string, pivotCol, valueCol string, agg AggFunc) (*PivotSettings, error) {
	if pivotCol == "" {
		return nil, validationErr(KindPivot, "pivot_col", "must not be empty")
	}
	if valueCol == "" {
		return nil, validationErr(KindPivot, "value_col", "must not be empty")
	}
	switch agg {
	case AggSum, AggMean, AggMedian, AggMin, AggMax, AggCount, AggFirst, AggLast, AggNUnique, AggConcat:
	default:
		return nil, validationErr(KindPivot, "aggregation", fmt.Sprintf("unknown aggregation function %q", agg))
	}
	return &PivotSettings{Shared: shared, IndexCols: indexCols, PivotCol: pivotCol, ValueCol: valueCol, Aggregation: agg}, nil
}

func (s *PivotSettings) Kind() NodeKind       { return KindPivot }
func (s *PivotSettings) SharedFields() Shared { return s.Shared }
func (s *PivotSettings) canonical() interface{} {
	return struct {
		IndexCols           []string
		PivotCol, ValueCol  string
		Aggregation         AggFunc
	}{s.IndexCols, s.PivotCol, s.ValueCol, s.Aggregation}
}

// ---- unpivot ----

type UnpivotSelector string

const (
	SelectorNumeric UnpivotSelector = "numeric"
	SelectorString  UnpivotSelector = "string"
	SelectorFloat   UnpivotSelector = "float"
	SelectorDate    UnpivotSelector = "date"
	SelectorAll     UnpivotSelector = "all"
)

type UnpivotSettings struct {
	Shared
	IDCols     []string
	ValueCols  []string        // explicit list; mutually exclusive with Selector
	Selector   UnpivotSelector // empty means ValueCols is authoritative
}

func NewUnpivotSettings(shared Shared, idCols, valueCols []string, selector UnpivotSelector) (*UnpivotSettings, error) {
	if len(valueCols) == 0 && selector == "" {
		return nil, validationErr(KindUnpivot, "value_cols", "must supply value_cols or a selector")
	}
	if len(valueCols) > 0 && selector != "" {
		return nil, validationErr(KindUnpivot, "selector", "value_cols and selector are mutually exclusive")
	}
	if selector != "" {
		switch selector {
		case SelectorNumeric, SelectorString, SelectorFloat, SelectorDate, SelectorAll:
		default:
			return nil, validationErr(KindUnpivot, "selector", fmt.Sprintf("unknown selector %q", selector))
		}
	}
	return &UnpivotSettings{Shared: shared, IDCols: idCols, ValueCols: valueCols, Selector: selector}, nil
}

func (s *UnpivotSettings) Kind() NodeKind       { return KindUnpivot }
func (s *UnpivotSettings) SharedFields() Shared { return s.Shared }
func (s *UnpivotSettings) canonical() interface{} {
	return struct {
		IDCols, ValueCols []string
		Selector          UnpivotSelector
	}{s.IDCols, s.ValueCols, s.Selector}
}

// ---- join ----

type JoinStrategy string

const (
	JoinInner JoinStrategy = "inner"
	JoinLeft  JoinStrategy = "left"
	JoinRight JoinStrategy = "right"
	JoinOuter JoinStrategy = "outer"
	JoinCross JoinStrategy = "cross"
	JoinSemi  JoinStrategy = "semi"
	JoinAnti  JoinStrategy = "anti"
)

type JoinMapping struct {
	LeftCol  string
	RightCol string
}

type JoinSettings struct {
	Shared
	Mapping    []JoinMapping
	Strategy   JoinStrategy
	LeftSelect []SelectEntry // optional
	RightSelect []SelectEntry // optional
}

func NewJoinSettings(shared Shared, mapping []JoinMapping, strategy JoinStrategy, leftSelect, rightSelect []SelectEntry) (*JoinSettings, error) {
	switch strategy {
	case JoinInner, JoinLeft, JoinRight, JoinOuter, JoinCross, JoinSemi, JoinAnti:
	default:
		return nil, validationErr(KindJoin, "strategy", fmt.Sprintf("unknown strategy %q", strategy))
	}
	if strategy != JoinCross && len(mapping) == 0 {
		return nil, validationErr(KindJoin, "mapping", "must not be empty unless strategy is cross")
	}
	return &JoinSettings{
		Shared: shared, Mapping: mapping, Strategy: strategy,
		LeftSelect: leftSelect, RightSelect: rightSelect,
	}, nil
}

func (s *JoinSettings) Kind() NodeKind       { return KindJoin }
func (s *JoinSettings) SharedFields() Shared { return s.Shared }
func (s *JoinSettings) canonical() interface{} {
	return struct {
		Mapping                 []JoinMapping
		Strategy                JoinStrategy
		LeftSelect, RightSelect []SelectEntry
	}{s.Mapping, s.Strategy, s.LeftSelect, s.RightSelect}
}

// ---- union ----

type UnionMode string

const (
	UnionVertical UnionMode = "vertical"
	UnionDiagonal UnionMode = "diagonal"
)

type UnionSettings struct {
	Shared
	How UnionMode
}

func NewUnionSettings(shared Shared, how UnionMode) (*UnionSettings, error) {
	switch how {
	case UnionVertical, UnionDiagonal:
	default:
		return nil, validationErr(KindUnion, "how", fmt.Sprintf("unknown union mode %q", how))
	}
	return &UnionSettings{Shared: shared, How: how}, nil
}

func (s *UnionSettings) Kind() NodeKind       { return KindUnion }
func (s *UnionSettings) SharedFields() Shared { return s.Shared }
func (s *UnionSettings) canonical() interface{} {
	return struct{ How UnionMode }{s.How}
}

// ---- polars_code ----

type PolarsCodeSettings struct {
	Shared
	Source          string
	Binary          bool // true when the code references two upstream inputs
	DeclaredSchema  Schema
}

func NewPolarsCodeSettings(shared Shared, source string, binary bool, declared Schema) (*PolarsCodeSettings, error) {
	if source == "" {
		return nil, validationErr(KindPolarsCode, "source", "must not be empty")
	}
	return &PolarsCodeSettings{Shared: shared, Source: source, Binary: binary, DeclaredSchema: declared}, nil
}

func (s *PolarsCodeSettings) Kind() NodeKind       { return KindPolarsCode }
func (s *PolarsCodeSettings) SharedFields() Shared { return s.Shared }
func (s *PolarsCodeSettings) canonical() interface{} {
	return struct {
		Source   string
		Binary   bool
		Declared Schema
	}{s.Source, s.Binary, s.DeclaredSchema}
}

// ---- output ----

type WriteMode string

const (
	WriteOverwrite WriteMode = "overwrite"
	WriteAppend    WriteMode = "append" // appends to the existing file; accepted for every format
	WriteNewFile   WriteMode = "new_file"
)

type OutputSettings struct {
	Shared
	Path      string
	Format    SourceFormat
	WriteMode WriteMode
	Delimiter string
}

func NewOutputSettings(shared Shared, path string, format SourceFormat, mode WriteMode, delimiter string) (*OutputSettings, error) {
	if path == "" {
		return nil, validationErr(KindOutput, "path", "must not be empty")
	}
	switch mode {
	case WriteOverwrite, WriteAppend, WriteNewFile:
	default:
		return nil, validationErr(KindOutput, "write_mode", fmt.Sprintf("unknown write mode %q", mode))
	}
	return &OutputSettings{Shared: shared, Path: path, Format: format, WriteMode: mode, Delimiter: delimiter}, nil
}

func (s *OutputSettings) Kind() NodeKind       { return KindOutput }
func (s *OutputSettings) SharedFields() Shared { return s.Shared }
func (s *OutputSettings) canonical() interface{} {
	return struct {
		Path, Format, Delimiter string
		WriteMode               WriteMode
	}{s.Path, string(s.Format), s.Delimiter, s.WriteMode}
}
