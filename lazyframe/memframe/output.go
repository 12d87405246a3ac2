package memframe

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph"
	"github.com/Edwardvaneechoud/Flowfile-sub004/lazyframe"
)

func (e *Engine) Output(in lazyframe.Plan, settings *flowgraph.OutputSettings) (lazyframe.Plan, error) {
	upstream, err := asPlan(in)
	if err != nil {
		return nil, err
	}
	return &plan{
		explainText: fmt.Sprintf("output(%s, format=%s, mode=%s)", settings.Path, settings.Format, settings.WriteMode),
		run: func(ctx context.Context) (*result, error) {
			r, err := upstream.exec(ctx)
			if err != nil {
				return nil, err
			}
			if err := writeAtomic(r, settings); err != nil {
				return nil, err
			}
			return r, nil
		},
	}, nil
}

// writeAtomic writes the materialized result to a temp file in the same
// directory as settings.Path and renames it into place, so a crash or
// cancellation mid-write never leaves a corrupt sink file (spec §4.4
// "Output file writes are atomic"). Append mode is the exception: it
// writes to the target file directly, without a temp file, and is not
// atomic.
func writeAtomic(r *result, settings *flowgraph.OutputSettings) error {
	path := settings.Path
	if settings.WriteMode == flowgraph.WriteNewFile {
		path = uniquePath(path)
	}
	if settings.WriteMode == flowgraph.WriteAppend {
		return appendOutput(r, settings, path)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".flowfile-output-*")
	if err != nil {
		return &flowgraph.IoError{Op: "write", Path: path, Cause: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := encodeTo(tmp, r, settings); err != nil {
		tmp.Close()
		return &flowgraph.IoError{Op: "write", Path: path, Cause: err}
	}
	if err := tmp.Close(); err != nil {
		return &flowgraph.IoError{Op: "write", Path: path, Cause: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return &flowgraph.IoError{Op: "write", Path: path, Cause: err}
	}
	return nil
}

func appendOutput(r *result, settings *flowgraph.OutputSettings, path string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &flowgraph.IoError{Op: "append", Path: path, Cause: err}
	}
	defer f.Close()
	if err := encodeTo(f, r, settings); err != nil {
		return &flowgraph.IoError{Op: "append", Path: path, Cause: err}
	}
	return nil
}

func encodeTo(f *os.File, r *result, settings *flowgraph.OutputSettings) error {
	switch settings.Format {
	case flowgraph.FormatJSON:
		out := make([]map[string]interface{}, len(r.rows))
		for i, rec := range r.rows {
			out[i] = map[string]interface{}(rec)
		}
		enc := json.NewEncoder(f)
		return enc.Encode(out)
	case flowgraph.FormatCSV, "":
		w := csv.NewWriter(f)
		if settings.Delimiter != "" {
			w.Comma = rune(settings.Delimiter[0])
		}
		header := r.schema.Names()
		if err := w.Write(header); err != nil {
			return err
		}
		for _, rec := range r.rows {
			row := make([]string, len(header))
			for i, name := range header {
				row[i] = fmt.Sprint(rec[name])
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	default:
		return fmt.Errorf("memframe: format %s has no reference writer", settings.Format)
	}
}

func uniquePath(path string) string {
	ext := filepath.Ext(path)
	base := path[:len(path)-len(ext)]
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
