package persist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph"
)

func buildSampleGraph(t *testing.T) *flowgraph.Graph {
	t.Helper()
	g := flowgraph.New(7, "sample", flowgraph.DefaultGraphSettings())

	src, err := flowgraph.NewManualInputSettings(flowgraph.Shared{},
		[]flowgraph.ManualColumn{{Name: "a", Type: flowgraph.TypeInt64}},
		[][]interface{}{{int64(1)}, {int64(2)}})
	require.NoError(t, err)
	srcID, err := g.AddNode(src)
	require.NoError(t, err)

	filter, err := flowgraph.NewFilterSettings(flowgraph.Shared{CacheResults: true}, flowgraph.FilterBasic,
		&flowgraph.BasicFilter{Field: "a", Operator: flowgraph.OpEq, Value: int64(1)}, "")
	require.NoError(t, err)
	filterID, err := g.AddNode(filter)
	require.NoError(t, err)
	require.NoError(t, g.Connect(srcID, filterID, flowgraph.SlotMain))

	return g
}

func TestSaveLoadRoundTripPreservesContentHashModuloIDs(t *testing.T) {
	g := buildSampleGraph(t)
	doc, err := Save(g)
	require.NoError(t, err)

	data, err := Marshal(doc)
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)

	reloaded, err := Load(parsed)
	require.NoError(t, err)

	originalOrder, err := g.TopologicalOrder()
	require.NoError(t, err)
	reloadedOrder, err := reloaded.TopologicalOrder()
	require.NoError(t, err)
	require.Len(t, reloadedOrder, len(originalOrder))

	for i := range originalOrder {
		on, _ := g.GetNode(originalOrder[i])
		rn, _ := reloaded.GetNode(reloadedOrder[i])
		assert.Equal(t, on.ContentHash(), rn.ContentHash())
		assert.Equal(t, on.Kind(), rn.Kind())
	}
}

func TestParseRejectsMissingRequiredKey(t *testing.T) {
	_, err := Parse([]byte(`
graph_id: "1"
name: incomplete
settings: {}
nodes: []
`))
	var missing *MissingKeyError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "version", missing.Key)
}

func TestParseToleratesUnknownTopLevelKeys(t *testing.T) {
	doc, err := Parse([]byte(`
version: "1.0.0"
graph_id: "1"
name: test
settings: {}
nodes: []
extra_field: whatever
`))
	require.NoError(t, err)
	assert.Equal(t, "test", doc.Name)
}

func TestExportEmitsOneLinePerNodeAndPivotNote(t *testing.T) {
	g := flowgraph.New(1, "pivot-graph", flowgraph.DefaultGraphSettings())
	src, err := flowgraph.NewManualInputSettings(flowgraph.Shared{},
		[]flowgraph.ManualColumn{{Name: "region", Type: flowgraph.TypeString}, {Name: "amount", Type: flowgraph.TypeFloat64}},
		[][]interface{}{{"east", 1.0}})
	require.NoError(t, err)
	srcID, err := g.AddNode(src)
	require.NoError(t, err)

	pivot, err := flowgraph.NewPivotSettings(flowgraph.Shared{}, []string{"region"}, "region", "amount", flowgraph.AggSum)
	require.NoError(t, err)
	pivotID, err := g.AddNode(pivot)
	require.NoError(t, err)
	require.NoError(t, g.Connect(srcID, pivotID, flowgraph.SlotMain))

	script, err := Export(g)
	require.NoError(t, err)
	assert.Contains(t, script, "Pivot(")
	assert.Contains(t, script, "data-dependent")
}

func TestExportAnnotatesRawCodeNodeWithDescription(t *testing.T) {
	g := flowgraph.New(1, "raw-code-graph", flowgraph.DefaultGraphSettings())
	src, err := flowgraph.NewManualInputSettings(flowgraph.Shared{},
		[]flowgraph.ManualColumn{{Name: "a", Type: flowgraph.TypeInt64}},
		[][]interface{}{{int64(1)}})
	require.NoError(t, err)
	srcID, err := g.AddNode(src)
	require.NoError(t, err)

	raw, err := flowgraph.NewPolarsCodeSettings(
		flowgraph.Shared{Description: "doubles the amount column for a one-off report"},
		"pl.col('a') * 2", false, nil)
	require.NoError(t, err)
	rawID, err := g.AddNode(raw)
	require.NoError(t, err)
	require.NoError(t, g.Connect(srcID, rawID, flowgraph.SlotMain))

	script, err := Export(g)
	require.NoError(t, err)
	assert.Contains(t, script, "RawCode(")
	assert.Contains(t, script, "raw_code: doubles the amount column for a one-off report")
}

func TestExportOmitsRawCodeNoteWhenDescriptionIsAbsent(t *testing.T) {
	g := flowgraph.New(1, "raw-code-graph", flowgraph.DefaultGraphSettings())
	src, err := flowgraph.NewManualInputSettings(flowgraph.Shared{},
		[]flowgraph.ManualColumn{{Name: "a", Type: flowgraph.TypeInt64}},
		[][]interface{}{{int64(1)}})
	require.NoError(t, err)
	srcID, err := g.AddNode(src)
	require.NoError(t, err)

	raw, err := flowgraph.NewPolarsCodeSettings(flowgraph.Shared{}, "pl.col('a') * 2", false, nil)
	require.NoError(t, err)
	rawID, err := g.AddNode(raw)
	require.NoError(t, err)
	require.NoError(t, g.Connect(srcID, rawID, flowgraph.SlotMain))

	script, err := Export(g)
	require.NoError(t, err)
	assert.NotContains(t, script, "raw_code:")
}
