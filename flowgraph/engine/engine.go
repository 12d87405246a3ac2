// Package engine drives a flowgraph.Graph to completion against a
// lazyframe.Engine collaborator, in either of the two execution strategies
// a graph's settings can select (spec §4.4):
//
//   - Performance: every node's transform is composed lazily into one Plan
//     per sink; data is only read at Collect/Sink time, once per sink.
//   - Development: nodes are pushed through eagerly in topological order so
//     a bounded sample and a progress event are available per node, with
//     samples cached by content_hash so an unchanged upstream subtree is
//     never recomputed.
//
// The engine never mutates a Node directly — every run-state transition
// goes through flowgraph.Graph.RecordResult, the same way every structural
// mutation goes through Graph rather than Node.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph"
	"github.com/Edwardvaneechoud/Flowfile-sub004/lazyframe"
	"github.com/Edwardvaneechoud/Flowfile-sub004/worker"
)

// defaultSampleRows bounds Development-mode per-node materialization (spec
// §4.4 Development, "bounded sample materialization default 1,000 rows").
const defaultSampleRows = 1000

// progressRowThreshold is the row count above which an extra progress event
// is emitted mid-node for a show_progress graph (SPEC_FULL §C).
const progressRowThreshold = 10000

// Event reports one node's outcome (or, for a long sample, an in-flight
// progress tick) to the caller's onEvent callback (spec §4.4).
type Event struct {
	RunID     string
	NodeID    flowgraph.NodeID
	State     flowgraph.RunState
	Duration  time.Duration
	Rows      int
	Error     string
	Progress  bool // true for an in-flight "rows so far" tick, not a final state
	RowsSoFar int
}

// RunResult is the overall outcome of a Run: per-node results plus a
// Success flag that turns false once any node fails, is cancelled, or is
// left pending (spec §4.4 "overall result success=false with per-node
// report"). In Performance mode successful results are recorded for sink
// nodes only. RunID correlates this run's log lines and events
// against each other, the same way the teacher tags an invocation with a
// generated id rather than a caller-supplied one.
type RunResult struct {
	RunID   string
	Success bool
	Nodes   map[flowgraph.NodeID]flowgraph.NodeResult
}

// Engine wires a lazy frame collaborator, an optional remote worker pool,
// and a Development-mode sample cache into one run driver.
type Engine struct {
	lazy            lazyframe.Engine
	cache           *SampleCache
	pool            worker.Pool
	remoteThreshold int
}

// New builds an Engine. cache and pool may be nil — a nil cache disables
// Development-mode memoization (every node recomputes), and a nil pool
// means execution_location "remote"/"auto" can never offload and always
// falls back to local collect.
func New(lazy lazyframe.Engine, cache *SampleCache, pool worker.Pool, remoteThreshold int) *Engine {
	return &Engine{lazy: lazy, cache: cache, pool: pool, remoteThreshold: remoteThreshold}
}

// Run executes every node of g once, in the mode named by g.Settings().
// onEvent may be nil. ctx cancellation is checked cooperatively between
// nodes (spec §4.4 Cancellation): the node about to start when ctx is
// cancelled is marked cancelled, everything still unexecuted downstream is
// left pending, and already-cached samples are retained.
func (e *Engine) Run(ctx context.Context, g *flowgraph.Graph, onEvent func(Event)) (*RunResult, error) {
	if onEvent == nil {
		onEvent = func(Event) {}
	}
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	runID := uuid.New().String()
	stamped := func(ev Event) {
		ev.RunID = runID
		onEvent(ev)
	}
	var result *RunResult
	switch g.Settings().ExecutionMode {
	case flowgraph.ModePerformance:
		result, err = e.runPerformance(ctx, g, order, stamped)
	default:
		result, err = e.runDevelopment(ctx, g, order, stamped)
	}
	if result != nil {
		result.RunID = runID
	}
	return result, err
}

// RunNode re-executes a single node with force=true semantics (spec §4.4
// "execute(node_id, force=true) single-node retry"): it bypasses the
// sample cache for id itself, regardless of mode, then records and reports
// the outcome. Upstream nodes already at RunOK are not touched.
func (e *Engine) RunNode(ctx context.Context, g *flowgraph.Graph, id flowgraph.NodeID, onEvent func(Event)) error {
	if onEvent == nil {
		onEvent = func(Event) {}
	}
	runID := uuid.New().String()
	stamped := func(ev Event) {
		ev.RunID = runID
		onEvent(ev)
	}
	node, ok := g.GetNode(id)
	if !ok {
		return fmt.Errorf("flowgraph/engine: %w", flowgraph.ErrUnknownNode)
	}
	if err := g.CheckArity(id); err != nil {
		return err
	}
	plans := map[flowgraph.NodeID]lazyframe.Plan{}
	if err := e.buildUpstreamPlans(g, id, plans); err != nil {
		return err
	}
	plan, err := e.buildPlan(g, node, plans)
	if err != nil {
		return err
	}
	plans[id] = plan
	_, err = e.executeNodeEager(ctx, g, node, plans, true, stamped)
	return err
}

// runPerformance composes one Plan per node, lazily, then issues exactly
// one Collect or Sink per sink node (spec §4.4 Performance). Non-sink
// results are never materialized at all.
func (e *Engine) runPerformance(ctx context.Context, g *flowgraph.Graph, order []flowgraph.NodeID, onEvent func(Event)) (*RunResult, error) {
	result := &RunResult{Success: true, Nodes: map[flowgraph.NodeID]flowgraph.NodeResult{}}
	plans := map[flowgraph.NodeID]lazyframe.Plan{}
	failed := map[flowgraph.NodeID]bool{}
	cancelled := false

	for _, id := range order {
		node, ok := g.GetNode(id)
		if !ok {
			continue
		}
		if cancelled || upstreamBlocked(g, id, failed) {
			e.markPending(g, node, result)
			continue
		}
		if ctx.Err() != nil {
			e.markCancelled(g, node, result, onEvent)
			cancelled = true
			continue
		}

		plan, err := e.buildPlan(g, node, plans)
		if err != nil {
			e.recordFailure(g, node, result, failed, onEvent, err)
			continue
		}
		plans[id] = plan

		if !isSink(g, id) {
			continue
		}
		start := time.Now()
		rows, err := e.collectSink(ctx, g, node, plan)
		duration := time.Since(start)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				e.markCancelled(g, node, result, onEvent)
				cancelled = true
				continue
			}
			if flowgraph.Retryable(err) {
				if fresh, buildErr := e.rebuildFreshPlan(g, node, plans); buildErr == nil {
					plan = fresh
					start = time.Now()
					rows, err = e.collectSink(ctx, g, node, plan)
					duration = time.Since(start)
				}
			}
			if err != nil {
				e.recordFailure(g, node, result, failed, onEvent, err)
				continue
			}
		}
		nr := flowgraph.NodeResult{Present: true, OK: true, Rows: rows, Duration: duration.Nanoseconds()}
		_ = g.RecordResult(id, flowgraph.RunOK, nr)
		result.Nodes[id] = nr
		onEvent(Event{NodeID: id, State: flowgraph.RunOK, Duration: duration, Rows: rows})
	}
	return result, nil
}

// runDevelopment pushes every node through eagerly, materializing a
// bounded sample per node and caching it by content_hash (spec §4.4
// Development).
func (e *Engine) runDevelopment(ctx context.Context, g *flowgraph.Graph, order []flowgraph.NodeID, onEvent func(Event)) (*RunResult, error) {
	result := &RunResult{Success: true, Nodes: map[flowgraph.NodeID]flowgraph.NodeResult{}}
	plans := map[flowgraph.NodeID]lazyframe.Plan{}
	failed := map[flowgraph.NodeID]bool{}
	cancelled := false

	for _, id := range order {
		node, ok := g.GetNode(id)
		if !ok {
			continue
		}
		if cancelled || upstreamBlocked(g, id, failed) {
			e.markPending(g, node, result)
			continue
		}
		if ctx.Err() != nil {
			e.markCancelled(g, node, result, onEvent)
			cancelled = true
			continue
		}

		plan, err := e.buildPlan(g, node, plans)
		if err != nil {
			e.recordFailure(g, node, result, failed, onEvent, err)
			continue
		}
		plans[id] = plan

		nr, err := e.executeNodeEager(ctx, g, node, plans, false, onEvent)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				e.markCancelled(g, node, result, onEvent)
				cancelled = true
				continue
			}
			e.recordFailure(g, node, result, failed, onEvent, err)
			continue
		}
		result.Nodes[id] = nr
	}
	return result, nil
}

// executeNodeEager materializes node's plan bounded to a sample, checking
// the content-hash cache first unless force (a successful sample is written
// to the cache whether or not force is set), retrying
// once on a retryable I/O error, and routing Output sinks through the
// worker pool when execution_location calls for it.
func (e *Engine) executeNodeEager(ctx context.Context, g *flowgraph.Graph, node *flowgraph.Node, plans map[flowgraph.NodeID]lazyframe.Plan, force bool, onEvent func(Event)) (flowgraph.NodeResult, error) {
	plan := plans[node.ID()]
	hash := node.ContentHash()

	if !force && node.CacheResults() && e.cache != nil {
		if sample, ok := e.cache.Get(hash); ok {
			nr := flowgraph.NodeResult{Present: true, OK: true, Rows: len(sample.Rows), Schema: sample.Schema, SamplePath: hash}
			_ = g.RecordResult(node.ID(), flowgraph.RunOK, nr)
			onEvent(Event{NodeID: node.ID(), State: flowgraph.RunOK, Rows: nr.Rows})
			return nr, nil
		}
	}

	if _, isOutput := node.Settings().(*flowgraph.OutputSettings); isOutput {
		start := time.Now()
		rows, err := e.collectSink(ctx, g, node, plan)
		if err != nil && flowgraph.Retryable(err) {
			if fresh, buildErr := e.rebuildFreshPlan(g, node, plans); buildErr == nil {
				plan = fresh
				rows, err = e.collectSink(ctx, g, node, plan)
			}
		}
		duration := time.Since(start)
		if err != nil {
			return flowgraph.NodeResult{}, err
		}
		nr := flowgraph.NodeResult{Present: true, OK: true, Rows: rows, Duration: duration.Nanoseconds()}
		_ = g.RecordResult(node.ID(), flowgraph.RunOK, nr)
		onEvent(Event{NodeID: node.ID(), State: flowgraph.RunOK, Duration: duration, Rows: rows})
		return nr, nil
	}

	start := time.Now()
	rows, schema, err := e.materializeSample(ctx, g, node, plan, onEvent)
	if err != nil && flowgraph.Retryable(err) {
		if fresh, buildErr := e.rebuildFreshPlan(g, node, plans); buildErr == nil {
			plan = fresh
			rows, schema, err = e.materializeSample(ctx, g, node, plan, onEvent)
		}
	}
	duration := time.Since(start)
	if err != nil {
		return flowgraph.NodeResult{}, err
	}

	nr := flowgraph.NodeResult{Present: true, OK: true, Rows: len(rows), Schema: schema, Duration: duration.Nanoseconds()}
	if node.CacheResults() && e.cache != nil {
		sample := &Sample{Schema: schema, Rows: rows}
		if err := e.cache.Put(hash, sample); err != nil {
			return flowgraph.NodeResult{}, err
		}
		nr.SamplePath = hash
	}
	_ = g.RecordResult(node.ID(), flowgraph.RunOK, nr)
	onEvent(Event{NodeID: node.ID(), State: flowgraph.RunOK, Duration: duration, Rows: nr.Rows})
	return nr, nil
}

// materializeSample collects up to defaultSampleRows rows of plan. When
// ShowProgress is set, a sample over progressRowThreshold emits one extra
// in-flight progress event first (SPEC_FULL §C show_progress). Since the
// collect is capped at defaultSampleRows, which is below
// progressRowThreshold, this event is not emitted with the current
// constants.
func (e *Engine) materializeSample(ctx context.Context, g *flowgraph.Graph, node *flowgraph.Node, plan lazyframe.Plan, onEvent func(Event)) ([]lazyframe.Row, flowgraph.Schema, error) {
	m, err := e.lazy.Collect(ctx, plan, lazyframe.CollectOptions{RowLimit: defaultSampleRows})
	if err != nil {
		return nil, nil, &flowgraph.ExecutionError{NodeID: node.ID(), EngineMessage: err.Error(), Cause: err}
	}
	if g.Settings().ShowProgress && len(m.Rows) > progressRowThreshold {
		onEvent(Event{NodeID: node.ID(), Progress: true, RowsSoFar: len(m.Rows)})
	}
	return m.Rows, m.Schema, nil
}

// collectSink runs an Output node to completion. execution_location="local"
// always runs in-process; "remote" always offloads through the worker
// pool; "auto" offloads only once the upstream's last known row count
// exceeds remoteThreshold (SPEC_FULL §C execution_location), falling back
// to local when no pool is configured.
func (e *Engine) collectSink(ctx context.Context, g *flowgraph.Graph, node *flowgraph.Node, plan lazyframe.Plan) (int, error) {
	loc := g.Settings().ExecutionLocation
	remote := e.pool != nil && (loc == flowgraph.LocationRemote || (loc == flowgraph.LocationAuto && e.upstreamRowsExceed(g, node)))

	if remote {
		job := worker.Job{
			ContentHash: node.ContentHash(),
			Run: func(ctx context.Context) (string, error) {
				if err := e.lazy.Sink(ctx, plan); err != nil {
					return "", &flowgraph.ExecutionError{NodeID: node.ID(), EngineMessage: err.Error(), Cause: err}
				}
				return node.ContentHash(), nil
			},
		}
		if _, err := e.pool.Submit(ctx, job); err != nil {
			return 0, &flowgraph.IoError{Op: "remote-sink", Path: node.ContentHash(), Cause: err}
		}
		return e.upstreamRowCount(g, node), nil
	}

	if err := e.lazy.Sink(ctx, plan); err != nil {
		return 0, &flowgraph.ExecutionError{NodeID: node.ID(), EngineMessage: err.Error(), Cause: err}
	}
	return e.upstreamRowCount(g, node), nil
}

func (e *Engine) upstreamRowsExceed(g *flowgraph.Graph, node *flowgraph.Node) bool {
	return e.upstreamRowCount(g, node) > e.remoteThreshold
}

func (e *Engine) upstreamRowCount(g *flowgraph.Graph, node *flowgraph.Node) int {
	upstream := g.UpstreamOf(node.ID())
	if len(upstream) == 0 {
		return 0
	}
	if u, ok := g.GetNode(upstream[0].From); ok {
		return u.LastResult().Rows
	}
	return 0
}

// rebuildFreshPlan constructs a brand-new, not-yet-executed Plan for node
// and replaces its entry in plans. A retryable engine failure (spec §7
// IoError, §4.4 Retry) must not resubmit the same Plan value: memframe's
// plan (and any other engine's plan with the same once-only memoization
// idiom) caches its result, error included, the first time it runs, so a
// second collect/sink on that value would just replay the cached failure
// instead of re-invoking the underlying transform or I/O.
func (e *Engine) rebuildFreshPlan(g *flowgraph.Graph, node *flowgraph.Node, plans map[flowgraph.NodeID]lazyframe.Plan) (lazyframe.Plan, error) {
	fresh, err := e.buildPlan(g, node, plans)
	if err != nil {
		return nil, err
	}
	plans[node.ID()] = fresh
	return fresh, nil
}

// buildPlan composes node's Plan from its already-built upstream plans,
// dispatching by settings kind the same way schemaOf does for schema
// prediction.
func (e *Engine) buildPlan(g *flowgraph.Graph, node *flowgraph.Node, plans map[flowgraph.NodeID]lazyframe.Plan) (lazyframe.Plan, error) {
	ups, err := e.orderedUpstreamPlans(g, node.ID(), plans)
	if err != nil {
		return nil, err
	}
	var in lazyframe.Plan
	if len(ups) > 0 {
		in = ups[0]
	}

	switch s := node.Settings().(type) {
	case *flowgraph.SourceTableSettings:
		return e.lazy.Source(s)
	case *flowgraph.ManualInputSettings:
		return e.lazy.ManualInput(s)
	case *flowgraph.FilterSettings:
		return e.lazy.Filter(in, s)
	case *flowgraph.SelectSettings:
		return e.lazy.Select(in, s)
	case *flowgraph.SortSettings:
		return e.lazy.Sort(in, s)
	case *flowgraph.UniqueSettings:
		return e.lazy.Unique(in, s)
	case *flowgraph.SampleSettings:
		return e.lazy.Sample(in, s)
	case *flowgraph.FormulaSettings:
		return e.lazy.Formula(in, s)
	case *flowgraph.GroupBySettings:
		return e.lazy.GroupBy(in, s)
	case *flowgraph.PivotSettings:
		return e.lazy.Pivot(in, s)
	case *flowgraph.UnpivotSettings:
		return e.lazy.Unpivot(in, s)
	case *flowgraph.JoinSettings:
		if len(ups) < 2 {
			return nil, fmt.Errorf("flowgraph/engine: node %d: %w", node.ID(), flowgraph.ErrMissingUpstream)
		}
		return e.lazy.Join(ups[0], ups[1], s)
	case *flowgraph.UnionSettings:
		return e.lazy.Union(ups, s)
	case *flowgraph.PolarsCodeSettings:
		if s.Binary {
			if len(ups) < 2 {
				return nil, fmt.Errorf("flowgraph/engine: node %d: %w", node.ID(), flowgraph.ErrMissingUpstream)
			}
			return e.lazy.RawCode(ups, s)
		}
		return e.lazy.RawCode(ups, s)
	case *flowgraph.OutputSettings:
		return e.lazy.Output(in, s)
	default:
		return nil, fmt.Errorf("flowgraph/engine: node %d: unhandled settings kind %s", node.ID(), node.Kind())
	}
}

// buildUpstreamPlans recursively ensures every ancestor of id has an entry
// in plans, for RunNode's single-node retry path.
func (e *Engine) buildUpstreamPlans(g *flowgraph.Graph, id flowgraph.NodeID, plans map[flowgraph.NodeID]lazyframe.Plan) error {
	for _, edge := range g.UpstreamOf(id) {
		if _, ok := plans[edge.From]; ok {
			continue
		}
		if err := e.buildUpstreamPlans(g, edge.From, plans); err != nil {
			return err
		}
		node, ok := g.GetNode(edge.From)
		if !ok {
			return fmt.Errorf("flowgraph/engine: %w", flowgraph.ErrUnknownNode)
		}
		plan, err := e.buildPlan(g, node, plans)
		if err != nil {
			return err
		}
		plans[edge.From] = plan
	}
	return nil
}

// orderedUpstreamPlans resolves id's already-built upstream Plans, ordered
// by slot (UpstreamOf already returns them in that order).
func (e *Engine) orderedUpstreamPlans(g *flowgraph.Graph, id flowgraph.NodeID, plans map[flowgraph.NodeID]lazyframe.Plan) ([]lazyframe.Plan, error) {
	edges := g.UpstreamOf(id)
	out := make([]lazyframe.Plan, 0, len(edges))
	for _, e := range edges {
		p, ok := plans[e.From]
		if !ok {
			return nil, fmt.Errorf("flowgraph/engine: node %d: upstream %d has no plan yet", id, e.From)
		}
		out = append(out, p)
	}
	return out, nil
}

func isSink(g *flowgraph.Graph, id flowgraph.NodeID) bool {
	return len(g.DownstreamOf(id)) == 0
}

// upstreamBlocked reports whether any ancestor of id has already failed,
// propagating pending rather than attempting id (spec §4.4 "failed node →
// downstream → pending").
func upstreamBlocked(g *flowgraph.Graph, id flowgraph.NodeID, failed map[flowgraph.NodeID]bool) bool {
	for _, e := range g.UpstreamOf(id) {
		if failed[e.From] {
			return true
		}
	}
	return false
}

func (e *Engine) markPending(g *flowgraph.Graph, node *flowgraph.Node, result *RunResult) {
	nr := flowgraph.NodeResult{}
	_ = g.RecordResult(node.ID(), flowgraph.RunPending, nr)
	result.Nodes[node.ID()] = nr
	result.Success = false
}

func (e *Engine) markCancelled(g *flowgraph.Graph, node *flowgraph.Node, result *RunResult, onEvent func(Event)) {
	nr := flowgraph.NodeResult{Present: true, OK: false, Error: flowgraph.ErrCancelled.Error()}
	_ = g.RecordResult(node.ID(), flowgraph.RunCancelled, nr)
	result.Nodes[node.ID()] = nr
	result.Success = false
	onEvent(Event{NodeID: node.ID(), State: flowgraph.RunCancelled, Error: nr.Error})
}

func (e *Engine) recordFailure(g *flowgraph.Graph, node *flowgraph.Node, result *RunResult, failed map[flowgraph.NodeID]bool, onEvent func(Event), err error) {
	nr := flowgraph.NodeResult{Present: true, OK: false, Error: err.Error()}
	_ = g.RecordResult(node.ID(), flowgraph.RunFailed, nr)
	result.Nodes[node.ID()] = nr
	result.Success = false
	failed[node.ID()] = true
	onEvent(Event{NodeID: node.ID(), State: flowgraph.RunFailed, Error: nr.Error})
}
