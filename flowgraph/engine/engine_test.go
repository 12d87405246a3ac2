package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph"
	"github.com/Edwardvaneechoud/Flowfile-sub004/lazyframe"
	"github.com/Edwardvaneechoud/Flowfile-sub004/lazyframe/memframe"
)

// flakyOutputPlan mirrors memframe's own plan: it memoizes the outcome of
// its first Sink call, error included, on the plan value itself. A fresh
// node.Sink retry must therefore get a fresh plan, not reuse this one —
// exactly the shape of the bug under test.
type flakyOutputPlan struct {
	mu  sync.Mutex
	ran bool
	err error
}

func (p *flakyOutputPlan) Schema() (flowgraph.Schema, error) { return flowgraph.Schema{}, nil }
func (p *flakyOutputPlan) Explain() string                   { return "flaky-output" }

// flakyOutputEngine wraps a real memframe.Engine for every transform except
// Output/Sink: its first Sink call (across all plan instances it has ever
// produced) fails with a retryable IoError, and every call after succeeds.
// Since a new Output() call returns a brand-new *flakyOutputPlan, this lets
// a test tell apart "the engine retried with a rebuilt plan" (succeeds)
// from "the engine resubmitted the same plan" (replays the cached failure
// forever, because flakyOutputPlan.ran is already true).
type flakyOutputEngine struct {
	*memframe.Engine
	mu       sync.Mutex
	attempts int
}

func newFlakyOutputEngine() *flakyOutputEngine {
	return &flakyOutputEngine{Engine: memframe.New()}
}

func (e *flakyOutputEngine) Output(in lazyframe.Plan, s *flowgraph.OutputSettings) (lazyframe.Plan, error) {
	return &flakyOutputPlan{}, nil
}

func (e *flakyOutputEngine) Sink(ctx context.Context, p lazyframe.Plan) error {
	fp, ok := p.(*flakyOutputPlan)
	if !ok {
		return e.Engine.Sink(ctx, p)
	}
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if fp.ran {
		return fp.err
	}
	fp.ran = true

	e.mu.Lock()
	e.attempts++
	attempt := e.attempts
	e.mu.Unlock()

	if attempt == 1 {
		fp.err = &flowgraph.IoError{Op: "sink", Path: "flaky", Cause: errors.New("transient write failure")}
	}
	return fp.err
}

func buildPipeline(t *testing.T, outPath string, cacheResults bool) (*flowgraph.Graph, flowgraph.NodeID) {
	t.Helper()
	g := flowgraph.New(1, "test", flowgraph.DefaultGraphSettings())

	src, err := flowgraph.NewManualInputSettings(flowgraph.Shared{CacheResults: cacheResults},
		[]flowgraph.ManualColumn{{Name: "a", Type: flowgraph.TypeInt64}},
		[][]interface{}{{int64(1)}, {int64(2)}, {int64(3)}})
	require.NoError(t, err)
	srcID, err := g.AddNode(src)
	require.NoError(t, err)

	out, err := flowgraph.NewOutputSettings(flowgraph.Shared{}, outPath, flowgraph.FormatCSV, flowgraph.WriteOverwrite, "")
	require.NoError(t, err)
	outID, err := g.AddNode(out)
	require.NoError(t, err)
	require.NoError(t, g.Connect(srcID, outID, flowgraph.SlotMain))

	return g, outID
}

func TestRunDevelopmentModeExecutesSinkAndRecordsResult(t *testing.T) {
	dir := t.TempDir()
	g, outID := buildPipeline(t, filepath.Join(dir, "out.csv"), false)

	eng := New(memframe.New(), NewSampleCache("", 16), nil, 0)
	var events []Event
	result, err := eng.Run(context.Background(), g, func(ev Event) { events = append(events, ev) })
	require.NoError(t, err)
	assert.True(t, result.Success)

	node, ok := g.GetNode(outID)
	require.True(t, ok)
	assert.Equal(t, flowgraph.RunOK, node.RunState())
	assert.True(t, node.LastResult().OK)

	if _, err := os.Stat(filepath.Join(dir, "out.csv")); err != nil {
		t.Fatalf("expected output file to be written: %v", err)
	}
	assert.NotEmpty(t, events)
}

func TestRunPerformanceModeOnlyCollectsAtSink(t *testing.T) {
	dir := t.TempDir()
	g, outID := buildPipeline(t, filepath.Join(dir, "out.csv"), false)
	settings := g.Settings()
	settings.ExecutionMode = flowgraph.ModePerformance
	g.SetSettings(settings)

	eng := New(memframe.New(), nil, nil, 0)
	result, err := eng.Run(context.Background(), g, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)

	node, _ := g.GetNode(outID)
	assert.Equal(t, flowgraph.RunOK, node.RunState())
}

func TestRunDevelopmentModeCachesByContentHash(t *testing.T) {
	dir := t.TempDir()
	g, _ := buildPipeline(t, filepath.Join(dir, "out.csv"), true)
	srcID := g.StartNodes()[0]

	cache := NewSampleCache(dir, 16)
	eng := New(memframe.New(), cache, nil, 0)
	_, err := eng.Run(context.Background(), g, nil)
	require.NoError(t, err)

	node, _ := g.GetNode(srcID)
	_, hit := cache.Get(node.ContentHash())
	assert.True(t, hit)
}

func TestRunDevelopmentModePropagatesFailureAsPending(t *testing.T) {
	g := flowgraph.New(1, "test", flowgraph.DefaultGraphSettings())
	src, err := flowgraph.NewSourceTableSettings(flowgraph.Shared{}, "/nonexistent/path.csv", flowgraph.FormatCSV, "", true, "utf-8", 0, nil)
	require.NoError(t, err)
	srcID, err := g.AddNode(src)
	require.NoError(t, err)

	sample, err := flowgraph.NewSampleSettings(flowgraph.Shared{}, 5)
	require.NoError(t, err)
	sampleID, err := g.AddNode(sample)
	require.NoError(t, err)
	require.NoError(t, g.Connect(srcID, sampleID, flowgraph.SlotMain))

	eng := New(memframe.New(), NewSampleCache("", 16), nil, 0)
	result, err := eng.Run(context.Background(), g, nil)
	require.NoError(t, err)
	assert.False(t, result.Success)

	srcNode, _ := g.GetNode(srcID)
	assert.Equal(t, flowgraph.RunFailed, srcNode.RunState())

	sampleNode, _ := g.GetNode(sampleID)
	assert.Equal(t, flowgraph.RunPending, sampleNode.RunState())
}

func TestRunDevelopmentModeRetriesOnceAfterTransientSinkFailure(t *testing.T) {
	dir := t.TempDir()
	g, outID := buildPipeline(t, filepath.Join(dir, "out.csv"), false)

	flaky := newFlakyOutputEngine()
	eng := New(flaky, NewSampleCache("", 16), nil, 0)
	result, err := eng.Run(context.Background(), g, nil)
	require.NoError(t, err)
	assert.True(t, result.Success, "a retryable IoError on the first sink attempt must not fail the run")

	node, ok := g.GetNode(outID)
	require.True(t, ok)
	assert.Equal(t, flowgraph.RunOK, node.RunState())
	assert.True(t, node.LastResult().OK)
	assert.Equal(t, 2, flaky.attempts, "expected exactly one retry (two Sink attempts)")
}

func TestRunPerformanceModeRetriesOnceAfterTransientSinkFailure(t *testing.T) {
	dir := t.TempDir()
	g, outID := buildPipeline(t, filepath.Join(dir, "out.csv"), false)
	settings := g.Settings()
	settings.ExecutionMode = flowgraph.ModePerformance
	g.SetSettings(settings)

	flaky := newFlakyOutputEngine()
	eng := New(flaky, nil, nil, 0)
	result, err := eng.Run(context.Background(), g, nil)
	require.NoError(t, err)
	assert.True(t, result.Success, "a retryable IoError on the first collect attempt must not fail the run")

	node, ok := g.GetNode(outID)
	require.True(t, ok)
	assert.Equal(t, flowgraph.RunOK, node.RunState())
	assert.Equal(t, 2, flaky.attempts, "expected exactly one retry (two Sink attempts)")
}

func TestRunNodeForceRetryBypassesCache(t *testing.T) {
	dir := t.TempDir()
	g, _ := buildPipeline(t, filepath.Join(dir, "out.csv"), true)
	srcID := g.StartNodes()[0]

	cache := NewSampleCache(dir, 16)
	eng := New(memframe.New(), cache, nil, 0)
	node, _ := g.GetNode(srcID)
	require.NoError(t, cache.Put(node.ContentHash(), &Sample{}))
	require.NoError(t, eng.RunNode(context.Background(), g, srcID, nil))

	assert.Equal(t, flowgraph.RunOK, node.RunState())
	assert.Equal(t, 3, node.LastResult().Rows, "force must recompute rather than serve the empty cached sample")
}
