package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph"
)

func TestChainNeverMutatesPriorBuilder(t *testing.T) {
	g := flowgraph.New(1, "test", flowgraph.DefaultGraphSettings())
	root, err := SourceTable(g, flowgraph.Shared{}, "in.csv", flowgraph.FormatCSV, "", true, "utf-8", 0, nil)
	require.NoError(t, err)

	left, err := root.Filter(flowgraph.Shared{}, flowgraph.FilterBasic,
		&flowgraph.BasicFilter{Field: "a", Operator: flowgraph.OpEq, Value: int64(1)}, "")
	require.NoError(t, err)

	right, err := root.Sample(flowgraph.Shared{}, 10)
	require.NoError(t, err)

	assert.Equal(t, root.NodeID(), root.NodeID())
	assert.NotEqual(t, left.NodeID(), right.NodeID())

	downstream := g.DownstreamOf(root.NodeID())
	assert.Len(t, downstream, 2)
}

func TestJoinConnectsBothSlots(t *testing.T) {
	g := flowgraph.New(1, "test", flowgraph.DefaultGraphSettings())
	left, err := SourceTable(g, flowgraph.Shared{}, "left.csv", flowgraph.FormatCSV, "", true, "utf-8", 0, nil)
	require.NoError(t, err)
	right, err := SourceTable(g, flowgraph.Shared{}, "right.csv", flowgraph.FormatCSV, "", true, "utf-8", 0, nil)
	require.NoError(t, err)

	joined, err := Join(left, right, flowgraph.Shared{},
		[]flowgraph.JoinMapping{{LeftCol: "id", RightCol: "id"}}, flowgraph.JoinInner, nil, nil)
	require.NoError(t, err)

	edges := g.UpstreamOf(joined.NodeID())
	require.Len(t, edges, 2)
	assert.Equal(t, flowgraph.SlotLeft, edges[0].ToSlot)
	assert.Equal(t, flowgraph.SlotRight, edges[1].ToSlot)
	require.NoError(t, g.CheckArity(joined.NodeID()))
}

func TestJoinRejectsCrossGraphInputs(t *testing.T) {
	g1 := flowgraph.New(1, "g1", flowgraph.DefaultGraphSettings())
	g2 := flowgraph.New(2, "g2", flowgraph.DefaultGraphSettings())
	left, err := SourceTable(g1, flowgraph.Shared{}, "left.csv", flowgraph.FormatCSV, "", true, "utf-8", 0, nil)
	require.NoError(t, err)
	right, err := SourceTable(g2, flowgraph.Shared{}, "right.csv", flowgraph.FormatCSV, "", true, "utf-8", 0, nil)
	require.NoError(t, err)

	_, err = Join(left, right, flowgraph.Shared{}, []flowgraph.JoinMapping{{LeftCol: "id", RightCol: "id"}}, flowgraph.JoinInner, nil, nil)
	assert.Error(t, err)
}

func TestUnionOrdersBySlotIndex(t *testing.T) {
	g := flowgraph.New(1, "test", flowgraph.DefaultGraphSettings())
	a, err := SourceTable(g, flowgraph.Shared{}, "a.csv", flowgraph.FormatCSV, "", true, "utf-8", 0, nil)
	require.NoError(t, err)
	b, err := SourceTable(g, flowgraph.Shared{}, "b.csv", flowgraph.FormatCSV, "", true, "utf-8", 0, nil)
	require.NoError(t, err)
	c, err := SourceTable(g, flowgraph.Shared{}, "c.csv", flowgraph.FormatCSV, "", true, "utf-8", 0, nil)
	require.NoError(t, err)

	union, err := Union([]Builder{a, b, c}, flowgraph.Shared{}, flowgraph.UnionVertical)
	require.NoError(t, err)

	edges := g.UpstreamOf(union.NodeID())
	require.Len(t, edges, 3)
	assert.Equal(t, flowgraph.MainSlot(0), edges[0].ToSlot)
	assert.Equal(t, flowgraph.MainSlot(1), edges[1].ToSlot)
	assert.Equal(t, flowgraph.MainSlot(2), edges[2].ToSlot)
}
