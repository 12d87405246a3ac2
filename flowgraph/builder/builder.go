// Package builder is the fluent "dataframe-like" facade over flowgraph
// (spec §4.6): a second, narrower surface over the same Graph that a
// settings-record caller can use interchangeably — both surfaces produce
// identical content_hash chains for the kinds they can both express.
//
// The builder is grounded on the teacher's own graph.Builder
// (trpc-agent-go/graph/builder.go), generalized the way the spec
// describes: instead of one builder value mutating a single graph in
// place, Builder is a cheap (graph, node_id) pair. Every operation adds a
// node to the shared *flowgraph.Graph and returns a NEW Builder pointing
// at that node; it never mutates the Builder it was called on, so two
// branches can be built from the same point without interfering with each
// other.
package builder

import (
	"fmt"

	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph"
)

// Builder is a (graph, current node) pair. The zero value is not usable;
// obtain one from SourceTable or ManualInput.
type Builder struct {
	graph *flowgraph.Graph
	node  flowgraph.NodeID
}

// Graph returns the shared graph this builder operates on.
func (b Builder) Graph() *flowgraph.Graph { return b.graph }

// NodeID returns the node this builder currently points at.
func (b Builder) NodeID() flowgraph.NodeID { return b.node }

// chain adds settings as a new node and connects b's current node to it on
// the main slot, returning a Builder over the new node. Used by every
// single-input operation.
func (b Builder) chain(settings flowgraph.NodeSettings) (Builder, error) {
	id, err := b.graph.AddNode(settings)
	if err != nil {
		return Builder{}, err
	}
	if err := b.graph.Connect(b.node, id, flowgraph.SlotMain); err != nil {
		return Builder{}, err
	}
	return Builder{graph: b.graph, node: id}, nil
}

// SourceTable starts a new chain from a source_table node (spec §4.6).
func SourceTable(g *flowgraph.Graph, shared flowgraph.Shared, path string, format flowgraph.SourceFormat, delimiter string, hasHeader bool, encoding string, skipRows int, declared flowgraph.Schema) (Builder, error) {
	settings, err := flowgraph.NewSourceTableSettings(shared, path, format, delimiter, hasHeader, encoding, skipRows, declared)
	if err != nil {
		return Builder{}, err
	}
	id, err := g.AddNode(settings)
	if err != nil {
		return Builder{}, err
	}
	return Builder{graph: g, node: id}, nil
}

// ManualInput starts a new chain from a manual_input node.
func ManualInput(g *flowgraph.Graph, shared flowgraph.Shared, columns []flowgraph.ManualColumn, rows [][]interface{}) (Builder, error) {
	settings, err := flowgraph.NewManualInputSettings(shared, columns, rows)
	if err != nil {
		return Builder{}, err
	}
	id, err := g.AddNode(settings)
	if err != nil {
		return Builder{}, err
	}
	return Builder{graph: g, node: id}, nil
}

// Filter appends a filter node.
func (b Builder) Filter(shared flowgraph.Shared, mode flowgraph.FilterMode, basic *flowgraph.BasicFilter, advanced string) (Builder, error) {
	settings, err := flowgraph.NewFilterSettings(shared, mode, basic, advanced)
	if err != nil {
		return Builder{}, err
	}
	return b.chain(settings)
}

// Select appends a select node.
func (b Builder) Select(shared flowgraph.Shared, entries []flowgraph.SelectEntry) (Builder, error) {
	settings, err := flowgraph.NewSelectSettings(shared, entries)
	if err != nil {
		return Builder{}, err
	}
	return b.chain(settings)
}

// Sort appends a sort node.
func (b Builder) Sort(shared flowgraph.Shared, keys []flowgraph.SortKey) (Builder, error) {
	settings, err := flowgraph.NewSortSettings(shared, keys)
	if err != nil {
		return Builder{}, err
	}
	return b.chain(settings)
}

// Unique appends a unique/dedup node.
func (b Builder) Unique(shared flowgraph.Shared, columns []string, strategy flowgraph.UniqueStrategy) (Builder, error) {
	settings, err := flowgraph.NewUniqueSettings(shared, columns, strategy)
	if err != nil {
		return Builder{}, err
	}
	return b.chain(settings)
}

// Sample appends a head/sample node.
func (b Builder) Sample(shared flowgraph.Shared, n int) (Builder, error) {
	settings, err := flowgraph.NewSampleSettings(shared, n)
	if err != nil {
		return Builder{}, err
	}
	return b.chain(settings)
}

// Formula appends a formula (derived column) node. expression may be
// written in either supported dialect (spec §4.6): a bracketed-column DSL
// like "[qty]*[price]", or an engine-native boolean/arithmetic expression
// — the execution engine resolves which at run time, the same way
// lazyframe/memframe's compileExpression does.
func (b Builder) Formula(shared flowgraph.Shared, name string, typ flowgraph.LogicalType, expression string) (Builder, error) {
	settings, err := flowgraph.NewFormulaSettings(shared, name, typ, expression)
	if err != nil {
		return Builder{}, err
	}
	return b.chain(settings)
}

// WithColumn is sugar for Formula, matching the "with_columns(name=expr)"
// phrasing used elsewhere to describe this operation.
func (b Builder) WithColumn(shared flowgraph.Shared, name string, typ flowgraph.LogicalType, expression string) (Builder, error) {
	return b.Formula(shared, name, typ, expression)
}

// GroupBy appends a group_by/aggregate node.
func (b Builder) GroupBy(shared flowgraph.Shared, keys []string, aggs []flowgraph.Aggregation) (Builder, error) {
	settings, err := flowgraph.NewGroupBySettings(shared, keys, aggs)
	if err != nil {
		return Builder{}, err
	}
	return b.chain(settings)
}

// Agg is an alias for GroupBy matching "group_by(...).agg(...)" phrasing.
func (b Builder) Agg(shared flowgraph.Shared, keys []string, aggs []flowgraph.Aggregation) (Builder, error) {
	return b.GroupBy(shared, keys, aggs)
}

// Pivot appends a pivot node.
func (b Builder) Pivot(shared flowgraph.Shared, indexCols []string, pivotCol, valueCol string, agg flowgraph.AggFunc) (Builder, error) {
	settings, err := flowgraph.NewPivotSettings(shared, indexCols, pivotCol, valueCol, agg)
	if err != nil {
		return Builder{}, err
	}
	return b.chain(settings)
}

// Unpivot appends an unpivot/melt node.
func (b Builder) Unpivot(shared flowgraph.Shared, idCols, valueCols []string, selector flowgraph.UnpivotSelector) (Builder, error) {
	settings, err := flowgraph.NewUnpivotSettings(shared, idCols, valueCols, selector)
	if err != nil {
		return Builder{}, err
	}
	return b.chain(settings)
}

// RawCode appends a single-input polars_code (raw-code escape hatch) node.
func (b Builder) RawCode(shared flowgraph.Shared, source string, declared flowgraph.Schema) (Builder, error) {
	settings, err := flowgraph.NewPolarsCodeSettings(shared, source, false, declared)
	if err != nil {
		return Builder{}, err
	}
	return b.chain(settings)
}

// Output appends a sink node.
func (b Builder) Output(shared flowgraph.Shared, path string, format flowgraph.SourceFormat, mode flowgraph.WriteMode, delimiter string) (Builder, error) {
	settings, err := flowgraph.NewOutputSettings(shared, path, format, mode, delimiter)
	if err != nil {
		return Builder{}, err
	}
	return b.chain(settings)
}

// Join combines two builders' current nodes into a new join node (spec
// §4.6: binary operations take two upstream builders rather than being a
// method on a single one).
func Join(left, right Builder, shared flowgraph.Shared, mapping []flowgraph.JoinMapping, strategy flowgraph.JoinStrategy, leftSelect, rightSelect []flowgraph.SelectEntry) (Builder, error) {
	if left.graph != right.graph {
		return Builder{}, fmt.Errorf("builder: join inputs belong to different graphs")
	}
	settings, err := flowgraph.NewJoinSettings(shared, mapping, strategy, leftSelect, rightSelect)
	if err != nil {
		return Builder{}, err
	}
	id, err := left.graph.AddNode(settings)
	if err != nil {
		return Builder{}, err
	}
	if err := left.graph.Connect(left.node, id, flowgraph.SlotLeft); err != nil {
		return Builder{}, err
	}
	if err := left.graph.Connect(right.node, id, flowgraph.SlotRight); err != nil {
		return Builder{}, err
	}
	return Builder{graph: left.graph, node: id}, nil
}

// RawCodeBinary appends a two-input polars_code node.
func RawCodeBinary(left, right Builder, shared flowgraph.Shared, source string, declared flowgraph.Schema) (Builder, error) {
	if left.graph != right.graph {
		return Builder{}, fmt.Errorf("builder: raw code inputs belong to different graphs")
	}
	settings, err := flowgraph.NewPolarsCodeSettings(shared, source, true, declared)
	if err != nil {
		return Builder{}, err
	}
	id, err := left.graph.AddNode(settings)
	if err != nil {
		return Builder{}, err
	}
	if err := left.graph.Connect(left.node, id, flowgraph.SlotLeft); err != nil {
		return Builder{}, err
	}
	if err := left.graph.Connect(right.node, id, flowgraph.SlotRight); err != nil {
		return Builder{}, err
	}
	return Builder{graph: left.graph, node: id}, nil
}

// Union combines any number of builders' current nodes into a new
// variadic union node, ordered by the order inputs are given (slot
// main[0], main[1], ... — spec §3's ordered variadic slot model).
func Union(inputs []Builder, shared flowgraph.Shared, how flowgraph.UnionMode) (Builder, error) {
	if len(inputs) == 0 {
		return Builder{}, fmt.Errorf("builder: union requires at least one input")
	}
	g := inputs[0].graph
	for _, in := range inputs[1:] {
		if in.graph != g {
			return Builder{}, fmt.Errorf("builder: union inputs belong to different graphs")
		}
	}
	settings, err := flowgraph.NewUnionSettings(shared, how)
	if err != nil {
		return Builder{}, err
	}
	id, err := g.AddNode(settings)
	if err != nil {
		return Builder{}, err
	}
	for i, in := range inputs {
		if err := g.Connect(in.node, id, flowgraph.MainSlot(i)); err != nil {
			return Builder{}, err
		}
	}
	return Builder{graph: g, node: id}, nil
}
