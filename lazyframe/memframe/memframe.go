// Package memframe is a minimal in-process reference implementation of the
// lazyframe.Engine collaborator. It exists so the FlowGraph kernel can be
// exercised end-to-end (run/check/export) without a real external columnar
// engine wired in — it is not a format-parsing subsystem: its CSV/JSON
// readers and writers are intentionally bounded conveniences (no codecs,
// no streaming, no compression), matching SPEC_FULL.md §C.
package memframe

import (
	"context"
	"fmt"
	"sync"

	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph"
	"github.com/Edwardvaneechoud/Flowfile-sub004/lazyframe"
)

// record is a single row represented by column name, used internally so
// transforms can reorder/rename/drop columns without re-indexing slices.
type record map[string]interface{}

// result is a materialized intermediate: a schema plus its rows.
type result struct {
	schema flowgraph.Schema
	rows   []record
}

// plan is memframe's lazyframe.Plan implementation. Each transform builds a
// new plan capturing its upstream plan(s); nothing executes until exec is
// first called (from Schema, Collect, or Sink), and the result is memoized
// so repeated calls within one run do not redo work.
type plan struct {
	mu          sync.Mutex
	ran         bool
	cached      *result
	err         error
	explainText string
	run         func(ctx context.Context) (*result, error)
}

func (p *plan) exec(ctx context.Context) (*result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ran {
		return p.cached, p.err
	}
	p.cached, p.err = p.run(ctx)
	p.ran = true
	return p.cached, p.err
}

func (p *plan) Schema() (flowgraph.Schema, error) {
	r, err := p.exec(context.Background())
	if err != nil {
		return nil, err
	}
	return r.schema, nil
}

func (p *plan) Explain() string { return p.explainText }

func asPlan(p lazyframe.Plan) (*plan, error) {
	mp, ok := p.(*plan)
	if !ok {
		return nil, fmt.Errorf("memframe: plan %T was not produced by this engine", p)
	}
	return mp, nil
}

// Engine is the in-memory reference lazyframe.Engine.
type Engine struct{}

// New constructs a reference engine.
func New() *Engine { return &Engine{} }

func (e *Engine) Collect(ctx context.Context, p lazyframe.Plan, opts lazyframe.CollectOptions) (*lazyframe.Materialized, error) {
	mp, err := asPlan(p)
	if err != nil {
		return nil, err
	}
	r, err := mp.exec(ctx)
	if err != nil {
		return nil, err
	}
	rows := r.rows
	if opts.RowLimit > 0 && len(rows) > opts.RowLimit {
		rows = rows[:opts.RowLimit]
	}
	out := make([]lazyframe.Row, len(rows))
	for i, rec := range rows {
		out[i] = rowFromRecord(r.schema, rec)
	}
	return &lazyframe.Materialized{Schema: r.schema, Rows: out}, nil
}

func (e *Engine) Sink(ctx context.Context, p lazyframe.Plan) error {
	mp, err := asPlan(p)
	if err != nil {
		return err
	}
	_, err = mp.exec(ctx)
	return err
}

func rowFromRecord(schema flowgraph.Schema, rec record) lazyframe.Row {
	row := make(lazyframe.Row, len(schema))
	for i, col := range schema {
		row[i] = rec[col.Name]
	}
	return row
}

func cloneRecord(rec record) record {
	out := make(record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
