package flowgraph

import "fmt"

// Propagate recomputes predicted_schema for every node in the graph,
// walking in topological order so each node sees already-updated upstream
// schemas (spec §4.5). It runs eagerly after any graph mutation and must
// not touch data — probing a source is the one exception, bounded and
// delegated to a SourceProber.
func Propagate(g *Graph, probe SourceProber) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.propagateSchemasLocked(probe)
}

// propagateSchemasLocked is the lock-held variant used internally by every
// structural mutation (spec §4.5 "runs eagerly on graph mutation"). Caller
// must hold g.mu for writing.
func (g *Graph) propagateSchemasLocked(probe SourceProber) error {
	order, err := g.topologicalOrderLocked()
	if err != nil {
		return err
	}
	for _, id := range order {
		node, ok := g.nodes[id]
		if !ok {
			continue
		}
		upstream := g.orderedUpstreamLocked(id)
		schemas := make([]SchemaResult, len(upstream))
		for i, u := range upstream {
			schemas[i] = u.schema
		}
		node.schema = schemaOf(node, schemas, probe)
	}
	return nil
}

// SourceProber performs the single bounded-probe exception schema
// propagation is allowed (spec §4.5 "inferred once from a bounded probe of
// the source"; SPEC_FULL §C "Bounded source probing"). Implementations
// must read at most probeRows rows.
type SourceProber interface {
	ProbeSchema(settings *SourceTableSettings, probeRows int) (Schema, error)
}

const defaultProbeRows = 100

// schemaOf dispatches to the per-kind schema rule (spec §4.5 rules by kind).
func schemaOf(node *Node, upstream []SchemaResult, probe SourceProber) SchemaResult {
	for _, u := range upstream {
		if u.Status == SchemaUnknownStatus {
			return SchemaResult{
				Status: SchemaUnknownStatus,
				Reason: fmt.Sprintf("upstream schema is unknown for node %d", node.id),
			}
		}
	}

	switch s := node.settings.(type) {
	case *SourceTableSettings:
		return schemaOfSource(s, probe)
	case *ManualInputSettings:
		return schemaOfManualInput(s)
	case *FilterSettings, *SortSettings, *UniqueSettings, *SampleSettings:
		return passthroughSchema(upstream)
	case *SelectSettings:
		return schemaOfSelect(s, upstream)
	case *FormulaSettings:
		return schemaOfFormula(s, upstream)
	case *GroupBySettings:
		return schemaOfGroupBy(s, upstream)
	case *PivotSettings:
		return schemaOfPivot(s, upstream)
	case *UnpivotSettings:
		return schemaOfUnpivot(s, upstream)
	case *JoinSettings:
		return schemaOfJoin(s, upstream)
	case *UnionSettings:
		return schemaOfUnion(s, upstream)
	case *PolarsCodeSettings:
		return schemaOfPolarsCode(s)
	case *OutputSettings:
		return passthroughSchema(upstream)
	default:
		return SchemaResult{Status: SchemaUnknownStatus, Reason: fmt.Sprintf("no schema rule for kind %s", node.kind)}
	}
}

func passthroughSchema(upstream []SchemaResult) SchemaResult {
	if len(upstream) == 0 {
		return SchemaResult{Status: SchemaUnknownStatus, Reason: "missing upstream"}
	}
	return upstream[0]
}

func schemaOfSource(s *SourceTableSettings, probe SourceProber) SchemaResult {
	if len(s.DeclaredSchema) > 0 {
		return SchemaResult{Status: SchemaKnown, Known: s.DeclaredSchema.Clone()}
	}
	if probe == nil {
		return SchemaResult{Status: SchemaUnknownStatus, Reason: "no declared schema and no source prober configured"}
	}
	schema, err := probe.ProbeSchema(s, defaultProbeRows)
	if err != nil {
		return SchemaResult{Status: SchemaUnknownStatus, Reason: fmt.Sprintf("probing source: %v", err)}
	}
	return SchemaResult{Status: SchemaKnown, Known: schema}
}

func schemaOfManualInput(s *ManualInputSettings) SchemaResult {
	out := make(Schema, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = Column{Name: c.Name, Type: c.Type}
	}
	return SchemaResult{Status: SchemaKnown, Known: out}
}

func schemaOfSelect(s *SelectSettings, upstream []SchemaResult) SchemaResult {
	if len(upstream) == 0 || upstream[0].Status != SchemaKnown {
		return SchemaResult{Status: SchemaUnknownStatus, Reason: "select requires a known upstream schema"}
	}
	in := upstream[0].Known
	kept := make([]SelectEntry, 0, len(s.Entries))
	for _, e := range s.Entries {
		if e.Keep {
			kept = append(kept, e)
		}
	}
	// Ordered by position (spec §4.5 Select).
	orderedKept := append([]SelectEntry(nil), kept...)
	sortSelectEntries(orderedKept)

	out := make(Schema, 0, len(orderedKept))
	for _, e := range orderedKept {
		col, ok := in.Get(e.OldName)
		if !ok {
			return SchemaResult{Status: SchemaUnknownStatus, Reason: fmt.Sprintf("select references unknown column %q", e.OldName)}
		}
		name := col.Name
		if e.NewName != "" {
			name = e.NewName
		}
		typ := col.Type
		if e.Cast && e.DataType != "" {
			typ = e.DataType
		}
		out = append(out, Column{Name: name, Type: typ})
	}
	return SchemaResult{Status: SchemaKnown, Known: out}
}

func sortSelectEntries(entries []SelectEntry) {
	for i := 1; i < len(entries); i++ {
		j := i
		for j > 0 && entries[j-1].Position > entries[j].Position {
			entries[j-1], entries[j] = entries[j], entries[j-1]
			j--
		}
	}
}

func schemaOfFormula(s *FormulaSettings, upstream []SchemaResult) SchemaResult {
	if len(upstream) == 0 || upstream[0].Status != SchemaKnown {
		return SchemaResult{Status: SchemaUnknownStatus, Reason: "formula requires a known upstream schema"}
	}
	typ := s.Type
	if typ == "" {
		typ = TypeUnknown // engine expression analyzer inference is delegated (spec §4.5 Formula)
	}
	out := append(upstream[0].Known.Clone(), Column{Name: s.Name, Type: typ})
	return SchemaResult{Status: SchemaKnown, Known: out}
}

func schemaOfGroupBy(s *GroupBySettings, upstream []SchemaResult) SchemaResult {
	if len(upstream) == 0 || upstream[0].Status != SchemaKnown {
		return SchemaResult{Status: SchemaUnknownStatus, Reason: "group_by requires a known upstream schema"}
	}
	in := upstream[0].Known
	out := make(Schema, 0, len(s.Keys)+len(s.Aggregations))
	for _, k := range s.Keys {
		col, ok := in.Get(k)
		if !ok {
			return SchemaResult{Status: SchemaUnknownStatus, Reason: fmt.Sprintf("group_by key %q not in upstream schema", k)}
		}
		out = append(out, col)
	}
	for _, a := range s.Aggregations {
		var srcType LogicalType
		if a.Function != AggCount && a.Function != AggNUnique {
			col, ok := in.Get(a.InputColumn)
			if !ok {
				return SchemaResult{Status: SchemaUnknownStatus, Reason: fmt.Sprintf("aggregation input %q not in upstream schema", a.InputColumn)}
			}
			srcType = col.Type
		}
		out = append(out, Column{Name: a.OutputName, Type: aggregationOutputType(a.Function, srcType)})
	}
	return SchemaResult{Status: SchemaKnown, Known: out}
}

func aggregationOutputType(fn AggFunc, srcType LogicalType) LogicalType {
	switch fn {
	case AggCount, AggNUnique:
		return TypeInt64
	case AggMean, AggMedian:
		return TypeFloat64
	case AggConcat:
		return TypeString
	default: // sum, min, max, first, last keep the source type
		return srcType
	}
}

func schemaOfPivot(s *PivotSettings, upstream []SchemaResult) SchemaResult {
	if len(upstream) == 0 || upstream[0].Status != SchemaKnown {
		return SchemaResult{Status: SchemaUnknownStatus, Reason: "pivot requires a known upstream schema"}
	}
	in := upstream[0].Known
	known := make(Schema, 0, len(s.IndexCols))
	for _, c := range s.IndexCols {
		col, ok := in.Get(c)
		if !ok {
			return SchemaResult{Status: SchemaUnknownStatus, Reason: fmt.Sprintf("pivot index column %q not in upstream schema", c)}
		}
		known = append(known, col)
	}
	// Distinct pivot values are unknown at design time (spec §4.5 Pivot):
	// the schema is partial regardless of whether IndexCols is empty — the
	// empty case just means a synthesized singleton index that is dropped
	// post-pivot (spec §8), which does not change that the value columns
	// remain data-dependent.
	return SchemaResult{
		Status: SchemaPartial,
		Known:  known,
		Dynamic: &DynamicColumns{
			PivotColumn: s.PivotCol,
			ValueColumn: s.ValueCol,
			Aggregation: s.Aggregation,
		},
	}
}

func schemaOfUnpivot(s *UnpivotSettings, upstream []SchemaResult) SchemaResult {
	if len(upstream) == 0 || upstream[0].Status != SchemaKnown {
		return SchemaResult{Status: SchemaUnknownStatus, Reason: "unpivot requires a known upstream schema"}
	}
	in := upstream[0].Known
	out := make(Schema, 0, len(s.IDCols)+2)
	for _, c := range s.IDCols {
		col, ok := in.Get(c)
		if !ok {
			return SchemaResult{Status: SchemaUnknownStatus, Reason: fmt.Sprintf("unpivot id column %q not in upstream schema", c)}
		}
		out = append(out, col)
	}
	valueCols := s.ValueCols
	if s.Selector != "" {
		valueCols = selectColumnsBySelector(in, s.IDCols, s.Selector)
	}
	superType := commonSuperType(in, valueCols)
	out = append(out, Column{Name: "variable", Type: TypeString})
	out = append(out, Column{Name: "value", Type: superType})
	return SchemaResult{Status: SchemaKnown, Known: out}
}

func selectColumnsBySelector(in Schema, idCols []string, selector UnpivotSelector) []string {
	idSet := make(map[string]bool, len(idCols))
	for _, c := range idCols {
		idSet[c] = true
	}
	var out []string
	for _, col := range in {
		if idSet[col.Name] {
			continue
		}
		if selector == SelectorAll || matchesSelector(col.Type, selector) {
			out = append(out, col.Name)
		}
	}
	return out
}

func matchesSelector(t LogicalType, selector UnpivotSelector) bool {
	switch selector {
	case SelectorNumeric:
		switch t {
		case TypeInt8, TypeInt16, TypeInt32, TypeInt64, TypeUInt8, TypeUInt16, TypeUInt32, TypeUInt64, TypeFloat32, TypeFloat64, TypeDecimal:
			return true
		}
	case SelectorFloat:
		return t == TypeFloat32 || t == TypeFloat64
	case SelectorString:
		return t == TypeString
	case SelectorDate:
		return t == TypeDate || t == TypeDatetime || t == TypeTime
	}
	return false
}

func commonSuperType(in Schema, cols []string) LogicalType {
	if len(cols) == 0 {
		return TypeUnknown
	}
	col, ok := in.Get(cols[0])
	if !ok {
		return TypeUnknown
	}
	super := col.Type
	for _, name := range cols[1:] {
		c, ok := in.Get(name)
		if !ok {
			continue
		}
		if c.Type != super {
			return TypeString // engine's concat-style widening defaults to string when types diverge
		}
	}
	return super
}

func schemaOfJoin(s *JoinSettings, upstream []SchemaResult) SchemaResult {
	if len(upstream) < 2 || upstream[0].Status != SchemaKnown || upstream[1].Status != SchemaKnown {
		return SchemaResult{Status: SchemaUnknownStatus, Reason: "join requires both inputs to have a known schema"}
	}
	left, right := upstream[0].Known, upstream[1].Known
	var out Schema
	if len(s.LeftSelect) > 0 {
		sel, err := projectSelect(left, s.LeftSelect)
		if err != nil {
			return SchemaResult{Status: SchemaUnknownStatus, Reason: err.Error()}
		}
		out = append(out, sel...)
	} else {
		out = append(out, left...)
	}
	if len(s.RightSelect) > 0 {
		sel, err := projectSelect(right, s.RightSelect)
		if err != nil {
			return SchemaResult{Status: SchemaUnknownStatus, Reason: err.Error()}
		}
		out = append(out, sel...)
	} else {
		out = append(out, right...)
	}
	return SchemaResult{Status: SchemaKnown, Known: out}
}

func projectSelect(in Schema, entries []SelectEntry) (Schema, error) {
	ordered := append([]SelectEntry(nil), entries...)
	sortSelectEntries(ordered)
	out := make(Schema, 0, len(ordered))
	for _, e := range ordered {
		if !e.Keep {
			continue
		}
		col, ok := in.Get(e.OldName)
		if !ok {
			return nil, fmt.Errorf("select references unknown column %q", e.OldName)
		}
		name := col.Name
		if e.NewName != "" {
			name = e.NewName
		}
		typ := col.Type
		if e.Cast && e.DataType != "" {
			typ = e.DataType
		}
		out = append(out, Column{Name: name, Type: typ})
	}
	return out, nil
}

func schemaOfUnion(s *UnionSettings, upstream []SchemaResult) SchemaResult {
	for _, u := range upstream {
		if u.Status != SchemaKnown {
			return SchemaResult{Status: SchemaUnknownStatus, Reason: "union requires every input to have a known schema"}
		}
	}
	if len(upstream) == 0 {
		return SchemaResult{Status: SchemaUnknownStatus, Reason: "union has no inputs"}
	}
	if s.How == UnionVertical {
		// Vertical union requires identical schemas; result is the first.
		return SchemaResult{Status: SchemaKnown, Known: upstream[0].Known.Clone()}
	}
	// Diagonal union: column union across all inputs, first-seen order,
	// matching the engine's concat("diagonal") semantics (spec §4.5 Union).
	seen := map[string]bool{}
	var out Schema
	for _, u := range upstream {
		for _, col := range u.Known {
			if seen[col.Name] {
				continue
			}
			seen[col.Name] = true
			out = append(out, col)
		}
	}
	return SchemaResult{Status: SchemaKnown, Known: out}
}

func schemaOfPolarsCode(s *PolarsCodeSettings) SchemaResult {
	if len(s.DeclaredSchema) > 0 {
		return SchemaResult{Status: SchemaKnown, Known: s.DeclaredSchema.Clone()}
	}
	return SchemaResult{Status: SchemaUnknownStatus, Reason: "raw code node has no declared schema"}
}
