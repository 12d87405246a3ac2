package memframe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph"
)

func TestProbeSchemaCSVInfersHeaderAsStringColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,x\n2,y\n3,z\n"), 0o644))

	settings, err := flowgraph.NewSourceTableSettings(flowgraph.Shared{}, path, flowgraph.FormatCSV, "", true, "utf-8", 0, nil)
	require.NoError(t, err)

	schema, err := New().ProbeSchema(settings, 2)
	require.NoError(t, err)
	require.Len(t, schema, 2)
	assert.Equal(t, "a", schema[0].Name)
	assert.Equal(t, flowgraph.TypeString, schema[0].Type)
	assert.Equal(t, "b", schema[1].Name)
}

func TestProbeSchemaCSVNeverReadsPastProbeRows(t *testing.T) {
	lines := "a\n"
	for i := 0; i < 10000; i++ {
		lines += "1\n"
	}
	path := filepath.Join(t.TempDir(), "big.csv")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	settings, err := flowgraph.NewSourceTableSettings(flowgraph.Shared{}, path, flowgraph.FormatCSV, "", true, "utf-8", 0, nil)
	require.NoError(t, err)

	schema, err := New().ProbeSchema(settings, 5)
	require.NoError(t, err)
	require.Len(t, schema, 1)
	assert.Equal(t, "a", schema[0].Name)
}

func TestProbeSchemaJSONInfersKeysFromFirstElement(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"a":1,"b":"x"},{"a":2,"b":"y"}]`), 0o644))

	settings, err := flowgraph.NewSourceTableSettings(flowgraph.Shared{}, path, flowgraph.FormatJSON, "", false, "utf-8", 0, nil)
	require.NoError(t, err)

	schema, err := New().ProbeSchema(settings, 1)
	require.NoError(t, err)
	assert.Len(t, schema, 2)
}

func TestProbeSchemaMissingFileReturnsIoError(t *testing.T) {
	settings, err := flowgraph.NewSourceTableSettings(flowgraph.Shared{}, "/nonexistent/path.csv", flowgraph.FormatCSV, "", true, "utf-8", 0, nil)
	require.NoError(t, err)

	_, err = New().ProbeSchema(settings, 5)
	var ioErr *flowgraph.IoError
	assert.ErrorAs(t, err, &ioErr)
}
