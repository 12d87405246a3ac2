package flowgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManualInput(t *testing.T) *ManualInputSettings {
	t.Helper()
	s, err := NewManualInputSettings(Shared{},
		[]ManualColumn{{Name: "a", Type: TypeInt64}},
		[][]interface{}{{int64(1)}, {int64(2)}})
	require.NoError(t, err)
	return s
}

func TestAddNodeAndConnectBuildsEdges(t *testing.T) {
	g := New(1, "test", DefaultGraphSettings())
	srcID, err := g.AddNode(newManualInput(t))
	require.NoError(t, err)

	filterSettings, err := NewFilterSettings(Shared{}, FilterBasic, &BasicFilter{Field: "a", Operator: OpEq, Value: int64(1)}, "")
	require.NoError(t, err)
	dstID, err := g.AddNode(filterSettings)
	require.NoError(t, err)

	require.NoError(t, g.Connect(srcID, dstID, SlotMain))

	edges := g.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, srcID, edges[0].From)
	assert.Equal(t, dstID, edges[0].To)
}

func TestConnectRejectsCycle(t *testing.T) {
	g := New(1, "test", DefaultGraphSettings())
	a, err := g.AddNode(newManualInput(t))
	require.NoError(t, err)
	filterSettings, err := NewFilterSettings(Shared{}, FilterBasic, &BasicFilter{Field: "a", Operator: OpEq, Value: int64(1)}, "")
	require.NoError(t, err)
	b, err := g.AddNode(filterSettings)
	require.NoError(t, err)

	require.NoError(t, g.Connect(a, b, SlotMain))
	err = g.Connect(b, a, SlotMain)
	assert.ErrorIs(t, err, ErrCycle)
}

func TestContentHashIsStableAcrossIDRenumbering(t *testing.T) {
	g1 := New(1, "g1", DefaultGraphSettings())
	a1, err := g1.AddNode(newManualInput(t))
	require.NoError(t, err)
	n1, _ := g1.GetNode(a1)

	g2 := New(2, "g2", DefaultGraphSettings())
	// Add and remove a node first so a2's id differs from a1's.
	throwaway, err := g2.AddNode(newManualInput(t))
	require.NoError(t, err)
	require.NoError(t, g2.RemoveNode(throwaway))
	a2, err := g2.AddNode(newManualInput(t))
	require.NoError(t, err)
	n2, _ := g2.GetNode(a2)

	require.NotEqual(t, a1, a2)
	assert.Equal(t, n1.ContentHash(), n2.ContentHash())
}

func TestInvalidateDownstreamResetsRunState(t *testing.T) {
	g := New(1, "test", DefaultGraphSettings())
	a, err := g.AddNode(newManualInput(t))
	require.NoError(t, err)
	filterSettings, err := NewFilterSettings(Shared{}, FilterBasic, &BasicFilter{Field: "a", Operator: OpEq, Value: int64(1)}, "")
	require.NoError(t, err)
	b, err := g.AddNode(filterSettings)
	require.NoError(t, err)
	require.NoError(t, g.Connect(a, b, SlotMain))

	require.NoError(t, g.RecordResult(b, RunOK, NodeResult{Present: true, OK: true, Rows: 2}))
	node, _ := g.GetNode(b)
	require.Equal(t, RunOK, node.RunState())

	changed, err := NewManualInputSettings(Shared{},
		[]ManualColumn{{Name: "a", Type: TypeInt64}},
		[][]interface{}{{int64(99)}})
	require.NoError(t, err)
	require.NoError(t, g.UpdateSettings(a, changed))

	node, _ = g.GetNode(b)
	assert.Equal(t, RunUnset, node.RunState())
}

func TestCheckArityReportsMissingUpstream(t *testing.T) {
	g := New(1, "test", DefaultGraphSettings())
	filterSettings, err := NewFilterSettings(Shared{}, FilterBasic, &BasicFilter{Field: "a", Operator: OpEq, Value: int64(1)}, "")
	require.NoError(t, err)
	id, err := g.AddNode(filterSettings)
	require.NoError(t, err)

	err = g.CheckArity(id)
	assert.ErrorIs(t, err, ErrMissingUpstream)
}

func TestTopologicalOrderIsDeterministic(t *testing.T) {
	g := New(1, "test", DefaultGraphSettings())
	a, err := g.AddNode(newManualInput(t))
	require.NoError(t, err)
	filterSettings, err := NewFilterSettings(Shared{}, FilterBasic, &BasicFilter{Field: "a", Operator: OpEq, Value: int64(1)}, "")
	require.NoError(t, err)
	b, err := g.AddNode(filterSettings)
	require.NoError(t, err)
	require.NoError(t, g.Connect(a, b, SlotMain))

	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	require.Equal(t, []NodeID{a, b}, order)
}

func TestUpstreamOfOrdersMainSlotsNumericallyPastTen(t *testing.T) {
	g := New(1, "test", DefaultGraphSettings())
	unionSettings, err := NewUnionSettings(Shared{}, UnionVertical)
	require.NoError(t, err)
	unionID, err := g.AddNode(unionSettings)
	require.NoError(t, err)

	// 11 inputs (main[0]..main[10]) connected out of numeric order, so a
	// lexicographic slot sort would place main[10] right after main[1].
	const n = 11
	srcIDs := make([]NodeID, n)
	order := []int{0, 10, 2, 9, 1, 8, 3, 7, 4, 6, 5}
	for _, i := range order {
		id, err := g.AddNode(newManualInput(t))
		require.NoError(t, err)
		srcIDs[i] = id
		require.NoError(t, g.Connect(id, unionID, MainSlot(i)))
	}

	upstream := g.UpstreamOf(unionID)
	require.Len(t, upstream, n)
	for i, e := range upstream {
		assert.Equal(t, MainSlot(i), e.ToSlot)
		assert.Equal(t, srcIDs[i], e.From)
	}
}

func TestLessSlotOrdersMainSlotsNumerically(t *testing.T) {
	assert.True(t, LessSlot(MainSlot(2), MainSlot(10)))
	assert.False(t, LessSlot(MainSlot(10), MainSlot(2)))
	assert.True(t, LessSlot(SlotLeft, SlotRight))
}

func TestValidateFailsOnUnsatisfiedArity(t *testing.T) {
	g := New(1, "test", DefaultGraphSettings())
	filterSettings, err := NewFilterSettings(Shared{}, FilterBasic, &BasicFilter{Field: "a", Operator: OpEq, Value: int64(1)}, "")
	require.NoError(t, err)
	_, err = g.AddNode(filterSettings)
	require.NoError(t, err)

	err = g.Validate(context.Background())
	assert.ErrorIs(t, err, ErrMissingUpstream)
}
