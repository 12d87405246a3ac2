package memframe

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph"
)

// ProbeSchema implements flowgraph.SourceProber by inferring a schema from
// at most probeRows data rows of settings.Path — the one data-touching
// exception schema propagation is allowed (spec §4.5 "inferred once from a
// bounded probe of the source"). CSV sources are read only up to the header
// plus probeRows records; JSON sources are decoded whole, and only the
// first probeRows array elements are inspected.
func (e *Engine) ProbeSchema(settings *flowgraph.SourceTableSettings, probeRows int) (flowgraph.Schema, error) {
	switch settings.Format {
	case flowgraph.FormatCSV:
		return probeCSV(settings, probeRows)
	case flowgraph.FormatJSON:
		return probeJSON(settings, probeRows)
	default:
		return nil, &flowgraph.IoError{
			Op: "probe", Path: settings.Path,
			Cause: fmt.Errorf("memframe: format %s has no reference reader", settings.Format),
		}
	}
}

func probeCSV(settings *flowgraph.SourceTableSettings, probeRows int) (flowgraph.Schema, error) {
	f, err := os.Open(settings.Path)
	if err != nil {
		return nil, &flowgraph.IoError{Op: "probe", Path: settings.Path, Cause: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	if settings.Delimiter != "" {
		r.Comma = rune(settings.Delimiter[0])
	}

	limit := settings.SkipRows + 1 + probeRows
	var rows [][]string
	for i := 0; i < limit; i++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &flowgraph.IoError{Op: "probe", Path: settings.Path, Cause: err}
		}
		rows = append(rows, rec)
	}
	if settings.SkipRows > 0 && settings.SkipRows < len(rows) {
		rows = rows[settings.SkipRows:]
	}
	if len(rows) == 0 {
		return settings.DeclaredSchema.Clone(), nil
	}

	var header []string
	if settings.HasHeader {
		header = rows[0]
	} else {
		for i := range rows[0] {
			header = append(header, fmt.Sprintf("column_%d", i+1))
		}
	}

	schema := make(flowgraph.Schema, len(header))
	for i, name := range header {
		schema[i] = flowgraph.Column{Name: name, Type: flowgraph.TypeString}
	}
	return schema, nil
}

func probeJSON(settings *flowgraph.SourceTableSettings, probeRows int) (flowgraph.Schema, error) {
	data, err := os.ReadFile(settings.Path)
	if err != nil {
		return nil, &flowgraph.IoError{Op: "probe", Path: settings.Path, Cause: err}
	}
	var raw []map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &flowgraph.IoError{Op: "probe", Path: settings.Path, Cause: err}
	}
	if len(raw) > probeRows {
		raw = raw[:probeRows]
	}
	if len(raw) == 0 {
		return nil, &flowgraph.IoError{Op: "probe", Path: settings.Path, Cause: fmt.Errorf("empty document")}
	}
	var schema flowgraph.Schema
	for name := range raw[0] {
		schema = append(schema, flowgraph.Column{Name: name, Type: flowgraph.TypeUnknown})
	}
	return schema, nil
}
