// Package lazyframe declares the columnar lazy query engine collaborator:
// a lazy plan builder with one node-kind method per transform, a collect
// that materializes, and an explain that produces a plan string. The
// kernel never touches row data directly — every transform is delegated
// through this interface (spec §1(a), §4.4).
package lazyframe

import (
	"context"

	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph"
)

// Row is a single materialized record, column-ordered per its Schema.
type Row []interface{}

// Plan is an opaque, engine-owned lazy query node. It is only ever
// constructed and consumed through an Engine; the kernel holds it as a
// value and never inspects its internals.
type Plan interface {
	// Schema returns the plan's output schema, computing it without a full
	// collect when the engine can (projection/selects know their schema
	// statically); an error means the schema cannot be determined without
	// executing the plan.
	Schema() (flowgraph.Schema, error)
	// Explain renders a human-readable description of the plan tree.
	Explain() string
}

// CollectOptions bounds a materialization.
type CollectOptions struct {
	// RowLimit caps the number of rows returned; 0 means unbounded.
	RowLimit int
}

// Materialized is the result of a collect: a schema snapshot and rows.
type Materialized struct {
	Schema flowgraph.Schema
	Rows   []Row
}

// Engine is the columnar lazy frame engine collaborator. Each transform
// method takes the settings already validated by the kernel and zero or
// more upstream plans, returning a new plan describing the composed
// operation — no data is read until Collect or Sink is called.
type Engine interface {
	Source(settings *flowgraph.SourceTableSettings) (Plan, error)
	ManualInput(settings *flowgraph.ManualInputSettings) (Plan, error)
	Filter(in Plan, settings *flowgraph.FilterSettings) (Plan, error)
	Select(in Plan, settings *flowgraph.SelectSettings) (Plan, error)
	Sort(in Plan, settings *flowgraph.SortSettings) (Plan, error)
	Unique(in Plan, settings *flowgraph.UniqueSettings) (Plan, error)
	Sample(in Plan, settings *flowgraph.SampleSettings) (Plan, error)
	Formula(in Plan, settings *flowgraph.FormulaSettings) (Plan, error)
	GroupBy(in Plan, settings *flowgraph.GroupBySettings) (Plan, error)
	Pivot(in Plan, settings *flowgraph.PivotSettings) (Plan, error)
	Unpivot(in Plan, settings *flowgraph.UnpivotSettings) (Plan, error)
	Join(left, right Plan, settings *flowgraph.JoinSettings) (Plan, error)
	Union(inputs []Plan, settings *flowgraph.UnionSettings) (Plan, error)
	RawCode(inputs []Plan, settings *flowgraph.PolarsCodeSettings) (Plan, error)
	Output(in Plan, settings *flowgraph.OutputSettings) (Plan, error)

	// Collect materializes a plan, bounded by opts.
	Collect(ctx context.Context, p Plan, opts CollectOptions) (*Materialized, error)
	// Sink runs a plan for its side effect only (an output node writing a
	// file); it does not return rows.
	Sink(ctx context.Context, p Plan) error
}
