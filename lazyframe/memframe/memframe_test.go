package memframe

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph"
	"github.com/Edwardvaneechoud/Flowfile-sub004/lazyframe"
)

func TestManualInputProducesDeclaredSchemaAndRows(t *testing.T) {
	e := New()
	s, err := flowgraph.NewManualInputSettings(flowgraph.Shared{},
		[]flowgraph.ManualColumn{{Name: "a", Type: flowgraph.TypeInt64}},
		[][]interface{}{{int64(1)}, {int64(2)}})
	require.NoError(t, err)
	p, err := e.ManualInput(s)
	require.NoError(t, err)

	m, err := e.Collect(context.Background(), p, lazyframe.CollectOptions{})
	require.NoError(t, err)
	assert.Len(t, m.Rows, 2)
	require.Len(t, m.Schema, 1)
	assert.Equal(t, "a", m.Schema[0].Name)
}

func TestFilterBasicKeepsMatchingRows(t *testing.T) {
	e := New()
	src, err := flowgraph.NewManualInputSettings(flowgraph.Shared{},
		[]flowgraph.ManualColumn{{Name: "a", Type: flowgraph.TypeInt64}},
		[][]interface{}{{int64(1)}, {int64(2)}, {int64(1)}})
	require.NoError(t, err)
	in, err := e.ManualInput(src)
	require.NoError(t, err)

	fs, err := flowgraph.NewFilterSettings(flowgraph.Shared{}, flowgraph.FilterBasic,
		&flowgraph.BasicFilter{Field: "a", Operator: flowgraph.OpEq, Value: int64(1)}, "")
	require.NoError(t, err)
	out, err := e.Filter(in, fs)
	require.NoError(t, err)

	m, err := e.Collect(context.Background(), out, lazyframe.CollectOptions{})
	require.NoError(t, err)
	assert.Len(t, m.Rows, 2)
}

func TestSelectRenamesAndReordersColumns(t *testing.T) {
	e := New()
	src, err := flowgraph.NewManualInputSettings(flowgraph.Shared{},
		[]flowgraph.ManualColumn{{Name: "a", Type: flowgraph.TypeInt64}, {Name: "b", Type: flowgraph.TypeString}},
		[][]interface{}{{int64(1), "x"}})
	require.NoError(t, err)
	in, err := e.ManualInput(src)
	require.NoError(t, err)

	sel, err := flowgraph.NewSelectSettings(flowgraph.Shared{}, []flowgraph.SelectEntry{
		{OldName: "b", NewName: "label", Keep: true, Position: 0},
		{OldName: "a", Keep: true, Position: 1},
	})
	require.NoError(t, err)
	out, err := e.Select(in, sel)
	require.NoError(t, err)

	m, err := e.Collect(context.Background(), out, lazyframe.CollectOptions{})
	require.NoError(t, err)
	require.Len(t, m.Schema, 2)
	assert.Equal(t, "label", m.Schema[0].Name)
	assert.Equal(t, "a", m.Schema[1].Name)
}

func TestGroupBySumsPerKey(t *testing.T) {
	e := New()
	src, err := flowgraph.NewManualInputSettings(flowgraph.Shared{},
		[]flowgraph.ManualColumn{{Name: "region", Type: flowgraph.TypeString}, {Name: "amount", Type: flowgraph.TypeFloat64}},
		[][]interface{}{{"east", 1.0}, {"east", 2.0}, {"west", 5.0}})
	require.NoError(t, err)
	in, err := e.ManualInput(src)
	require.NoError(t, err)

	gb, err := flowgraph.NewGroupBySettings(flowgraph.Shared{}, []string{"region"},
		[]flowgraph.Aggregation{{InputColumn: "amount", OutputName: "total", Function: flowgraph.AggSum}})
	require.NoError(t, err)
	out, err := e.GroupBy(in, gb)
	require.NoError(t, err)

	m, err := e.Collect(context.Background(), out, lazyframe.CollectOptions{})
	require.NoError(t, err)
	require.Len(t, m.Rows, 2)

	totals := map[string]float64{}
	for _, row := range m.Rows {
		totals[row[0].(string)] = row[1].(float64)
	}
	assert.Equal(t, 3.0, totals["east"])
	assert.Equal(t, 5.0, totals["west"])
}

func TestJoinInnerOnlyKeepsMatchedPairs(t *testing.T) {
	e := New()
	leftSrc, err := flowgraph.NewManualInputSettings(flowgraph.Shared{},
		[]flowgraph.ManualColumn{{Name: "id", Type: flowgraph.TypeInt64}},
		[][]interface{}{{int64(1)}, {int64(2)}})
	require.NoError(t, err)
	left, err := e.ManualInput(leftSrc)
	require.NoError(t, err)

	rightSrc, err := flowgraph.NewManualInputSettings(flowgraph.Shared{},
		[]flowgraph.ManualColumn{{Name: "id", Type: flowgraph.TypeInt64}, {Name: "label", Type: flowgraph.TypeString}},
		[][]interface{}{{int64(1), "one"}})
	require.NoError(t, err)
	right, err := e.ManualInput(rightSrc)
	require.NoError(t, err)

	js, err := flowgraph.NewJoinSettings(flowgraph.Shared{},
		[]flowgraph.JoinMapping{{LeftCol: "id", RightCol: "id"}}, flowgraph.JoinInner, nil, nil)
	require.NoError(t, err)
	out, err := e.Join(left, right, js)
	require.NoError(t, err)

	m, err := e.Collect(context.Background(), out, lazyframe.CollectOptions{})
	require.NoError(t, err)
	assert.Len(t, m.Rows, 1)
}

func TestJoinLeftKeepsUnmatchedLeftRows(t *testing.T) {
	e := New()
	leftSrc, err := flowgraph.NewManualInputSettings(flowgraph.Shared{},
		[]flowgraph.ManualColumn{{Name: "id", Type: flowgraph.TypeInt64}},
		[][]interface{}{{int64(1)}, {int64(2)}})
	require.NoError(t, err)
	left, err := e.ManualInput(leftSrc)
	require.NoError(t, err)

	rightSrc, err := flowgraph.NewManualInputSettings(flowgraph.Shared{},
		[]flowgraph.ManualColumn{{Name: "id", Type: flowgraph.TypeInt64}, {Name: "label", Type: flowgraph.TypeString}},
		[][]interface{}{{int64(1), "one"}})
	require.NoError(t, err)
	right, err := e.ManualInput(rightSrc)
	require.NoError(t, err)

	js, err := flowgraph.NewJoinSettings(flowgraph.Shared{},
		[]flowgraph.JoinMapping{{LeftCol: "id", RightCol: "id"}}, flowgraph.JoinLeft, nil, nil)
	require.NoError(t, err)
	out, err := e.Join(left, right, js)
	require.NoError(t, err)

	m, err := e.Collect(context.Background(), out, lazyframe.CollectOptions{})
	require.NoError(t, err)
	assert.Len(t, m.Rows, 2)
}

func TestUnionVerticalConcatenatesInOrder(t *testing.T) {
	e := New()
	aSrc, err := flowgraph.NewManualInputSettings(flowgraph.Shared{},
		[]flowgraph.ManualColumn{{Name: "a", Type: flowgraph.TypeInt64}}, [][]interface{}{{int64(1)}})
	require.NoError(t, err)
	a, err := e.ManualInput(aSrc)
	require.NoError(t, err)

	bSrc, err := flowgraph.NewManualInputSettings(flowgraph.Shared{},
		[]flowgraph.ManualColumn{{Name: "a", Type: flowgraph.TypeInt64}}, [][]interface{}{{int64(2)}, {int64(3)}})
	require.NoError(t, err)
	b, err := e.ManualInput(bSrc)
	require.NoError(t, err)

	us, err := flowgraph.NewUnionSettings(flowgraph.Shared{}, flowgraph.UnionVertical)
	require.NoError(t, err)
	out, err := e.Union([]lazyframe.Plan{a, b}, us)
	require.NoError(t, err)

	m, err := e.Collect(context.Background(), out, lazyframe.CollectOptions{})
	require.NoError(t, err)
	require.Len(t, m.Rows, 3)
	assert.Equal(t, int64(1), m.Rows[0][0])
	assert.Equal(t, int64(2), m.Rows[1][0])
	assert.Equal(t, int64(3), m.Rows[2][0])
}

func TestOutputWritesCSVAtomically(t *testing.T) {
	e := New()
	src, err := flowgraph.NewManualInputSettings(flowgraph.Shared{},
		[]flowgraph.ManualColumn{{Name: "a", Type: flowgraph.TypeInt64}}, [][]interface{}{{int64(1)}, {int64(2)}})
	require.NoError(t, err)
	in, err := e.ManualInput(src)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.csv")
	outSettings, err := flowgraph.NewOutputSettings(flowgraph.Shared{}, path, flowgraph.FormatCSV, flowgraph.WriteOverwrite, "")
	require.NoError(t, err)
	outPlan, err := e.Output(in, outSettings)
	require.NoError(t, err)

	require.NoError(t, e.Sink(context.Background(), outPlan))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "a")
	assert.Contains(t, string(data), "1")
	assert.Contains(t, string(data), "2")
}
