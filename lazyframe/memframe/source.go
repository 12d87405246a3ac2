package memframe

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph"
	"github.com/Edwardvaneechoud/Flowfile-sub004/lazyframe"
)

func (e *Engine) Source(settings *flowgraph.SourceTableSettings) (lazyframe.Plan, error) {
	return &plan{
		explainText: fmt.Sprintf("source(%s, format=%s)", settings.Path, settings.Format),
		run: func(ctx context.Context) (*result, error) {
			switch settings.Format {
			case flowgraph.FormatCSV:
				return readCSV(settings)
			case flowgraph.FormatJSON:
				return readJSON(settings)
			default:
				return nil, &flowgraph.IoError{
					Op: "read", Path: settings.Path,
					Cause: fmt.Errorf("memframe: format %s has no reference reader", settings.Format),
				}
			}
		},
	}, nil
}

func (e *Engine) ManualInput(settings *flowgraph.ManualInputSettings) (lazyframe.Plan, error) {
	schema := make(flowgraph.Schema, len(settings.Columns))
	for i, c := range settings.Columns {
		schema[i] = flowgraph.Column{Name: c.Name, Type: c.Type}
	}
	return &plan{
		explainText: "manual_input",
		run: func(ctx context.Context) (*result, error) {
			rows := make([]record, len(settings.Rows))
			for i, values := range settings.Rows {
				rec := make(record, len(schema))
				for j, col := range schema {
					rec[col.Name] = values[j]
				}
				rows[i] = rec
			}
			return &result{schema: schema, rows: rows}, nil
		},
	}, nil
}

func readCSV(settings *flowgraph.SourceTableSettings) (*result, error) {
	f, err := os.Open(settings.Path)
	if err != nil {
		return nil, &flowgraph.IoError{Op: "read", Path: settings.Path, Cause: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	if settings.Delimiter != "" {
		r.Comma = rune(settings.Delimiter[0])
	}
	all, err := r.ReadAll()
	if err != nil {
		return nil, &flowgraph.IoError{Op: "read", Path: settings.Path, Cause: err}
	}
	if settings.SkipRows > 0 && settings.SkipRows < len(all) {
		all = all[settings.SkipRows:]
	}
	if len(all) == 0 {
		return &result{schema: settings.DeclaredSchema.Clone()}, nil
	}

	var header []string
	dataRows := all
	if settings.HasHeader {
		header = all[0]
		dataRows = all[1:]
	} else {
		for i := range all[0] {
			header = append(header, fmt.Sprintf("column_%d", i+1))
		}
	}

	schema := settings.DeclaredSchema
	if len(schema) == 0 {
		schema = make(flowgraph.Schema, len(header))
		for i, name := range header {
			schema[i] = flowgraph.Column{Name: name, Type: flowgraph.TypeString}
		}
	}

	rows := make([]record, 0, len(dataRows))
	for _, line := range dataRows {
		rec := make(record, len(header))
		for i, name := range header {
			if i < len(line) {
				rec[name] = line[i]
			}
		}
		rows = append(rows, rec)
	}
	return &result{schema: schema, rows: rows}, nil
}

func readJSON(settings *flowgraph.SourceTableSettings) (*result, error) {
	data, err := os.ReadFile(settings.Path)
	if err != nil {
		return nil, &flowgraph.IoError{Op: "read", Path: settings.Path, Cause: err}
	}
	var raw []map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &flowgraph.IoError{Op: "read", Path: settings.Path, Cause: err}
	}

	schema := settings.DeclaredSchema
	if len(schema) == 0 && len(raw) > 0 {
		for name := range raw[0] {
			schema = append(schema, flowgraph.Column{Name: name, Type: flowgraph.TypeUnknown})
		}
	}

	rows := make([]record, len(raw))
	for i, m := range raw {
		rows[i] = record(m)
	}
	return &result{schema: schema, rows: rows}, nil
}
