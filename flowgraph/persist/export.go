package persist

import (
	"fmt"
	"strings"

	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph"
)

// Export walks g in topological order and emits equivalent fluent-builder
// script text (spec §4.7). It fails closed — returning the graph's
// ErrCycle — rather than emitting a partial script for a graph that is
// not in fact acyclic.
//
// "raw_code" (polars_code) nodes are emitted verbatim, followed by a
// comment carrying the node's description when one was set (SPEC_FULL §C
// "node description ... round-trip"), since a raw_code line alone gives a
// reader no hint of its author's intent. Pivot nodes are structural-only
// here: the set of output columns a pivot produces is only known once
// real data is read (spec §4.5's dynamic-columns case), so a pivot line
// is always followed by a comment marking that limitation — there is no
// "concrete materialized schema" available to an export that never
// touches data.
func Export(g *flowgraph.Graph) (string, error) {
	order, err := g.TopologicalOrder()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "graph := flowfile.NewGraph(%d, %s, flowfile.DefaultGraphSettings())\n", g.ID(), quote(g.Name()))

	varName := func(id flowgraph.NodeID) string { return fmt.Sprintf("n%d", id) }

	for _, id := range order {
		node, ok := g.GetNode(id)
		if !ok {
			continue
		}
		upstream := g.UpstreamOf(id)
		line, note := exportNode(node, varName, upstream)
		fmt.Fprintf(&sb, "%s := %s\n", varName(id), line)
		if note != "" {
			fmt.Fprintf(&sb, "// %s\n", note)
		}
	}
	return sb.String(), nil
}

func quote(s string) string { return fmt.Sprintf("%q", s) }

func quoteSlice(ss []string) string {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = quote(s)
	}
	return "[]string{" + strings.Join(parts, ", ") + "}"
}

// exportNode renders one node's builder-equivalent call. varName gives a
// node's script variable; upstream lists the node's connected input edges.
func exportNode(node *flowgraph.Node, varName func(flowgraph.NodeID) string, upstream []*flowgraph.Edge) (line string, note string) {
	bySlot := make(map[flowgraph.Slot]string, len(upstream))
	for _, e := range upstream {
		bySlot[e.ToSlot] = varName(e.From)
	}
	main := bySlot[flowgraph.SlotMain]

	switch s := node.Settings().(type) {
	case *flowgraph.SourceTableSettings:
		return fmt.Sprintf("graph.SourceTable(%s, %q, has_header=%t)", quote(s.Path), s.Format, s.HasHeader), ""

	case *flowgraph.ManualInputSettings:
		return fmt.Sprintf("graph.ManualInput(%d columns, %d rows)", len(s.Columns), len(s.Rows)), ""

	case *flowgraph.FilterSettings:
		if s.Mode == flowgraph.FilterAdvanced {
			return fmt.Sprintf("%s.Filter(%s)", main, quote(s.AdvancedExpression)), ""
		}
		return fmt.Sprintf("%s.Filter(%s %s %v)", main, s.Basic.Field, s.Basic.Operator, s.Basic.Value), ""

	case *flowgraph.SelectSettings:
		names := make([]string, len(s.Entries))
		for i, e := range s.Entries {
			names[i] = e.OldName
		}
		return fmt.Sprintf("%s.Select(%s)", main, quoteSlice(names)), ""

	case *flowgraph.SortSettings:
		parts := make([]string, len(s.Keys))
		for i, k := range s.Keys {
			parts[i] = fmt.Sprintf("%s %s", k.Column, k.Direction)
		}
		return fmt.Sprintf("%s.Sort(%s)", main, strings.Join(parts, ", ")), ""

	case *flowgraph.UniqueSettings:
		return fmt.Sprintf("%s.Unique(%s, strategy=%s)", main, quoteSlice(s.Columns), s.Strategy), ""

	case *flowgraph.SampleSettings:
		return fmt.Sprintf("%s.Sample(%d)", main, s.N), ""

	case *flowgraph.FormulaSettings:
		return fmt.Sprintf("%s.WithColumn(%s=%s)", main, s.Name, s.Expression), ""

	case *flowgraph.GroupBySettings:
		parts := make([]string, len(s.Aggregations))
		for i, a := range s.Aggregations {
			parts[i] = fmt.Sprintf("%s(%s) as %s", a.Function, a.InputColumn, a.OutputName)
		}
		return fmt.Sprintf("%s.GroupBy(%s).Agg(%s)", main, quoteSlice(s.Keys), strings.Join(parts, ", ")), ""

	case *flowgraph.PivotSettings:
		line := fmt.Sprintf("%s.Pivot(index=%s, on=%s, values=%s, agg=%s)",
			main, quoteSlice(s.IndexCols), s.PivotCol, s.ValueCol, s.Aggregation)
		return line, "pivot output columns are data-dependent; cannot be fully represented without running the graph"

	case *flowgraph.UnpivotSettings:
		if s.Selector != "" {
			return fmt.Sprintf("%s.Unpivot(id=%s, selector=%s)", main, quoteSlice(s.IDCols), s.Selector), ""
		}
		return fmt.Sprintf("%s.Unpivot(id=%s, values=%s)", main, quoteSlice(s.IDCols), quoteSlice(s.ValueCols)), ""

	case *flowgraph.JoinSettings:
		left, right := bySlot[flowgraph.SlotLeft], bySlot[flowgraph.SlotRight]
		parts := make([]string, len(s.Mapping))
		for i, m := range s.Mapping {
			parts[i] = fmt.Sprintf("%s=%s", m.LeftCol, m.RightCol)
		}
		return fmt.Sprintf("builder.Join(%s, %s, strategy=%s, on=%s)", left, right, s.Strategy, strings.Join(parts, ", ")), ""

	case *flowgraph.UnionSettings:
		var inputs []string
		for i := 0; ; i++ {
			v, ok := bySlot[flowgraph.MainSlot(i)]
			if !ok {
				break
			}
			inputs = append(inputs, v)
		}
		return fmt.Sprintf("builder.Union([%s], how=%s)", strings.Join(inputs, ", "), s.How), ""

	case *flowgraph.PolarsCodeSettings:
		var line string
		if s.Binary {
			left, right := bySlot[flowgraph.SlotLeft], bySlot[flowgraph.SlotRight]
			line = fmt.Sprintf("builder.RawCodeBinary(%s, %s, %s)", left, right, quote(s.Source))
		} else {
			line = fmt.Sprintf("%s.RawCode(%s)", main, quote(s.Source))
		}
		if node.Description() == "" {
			return line, ""
		}
		return line, fmt.Sprintf("raw_code: %s", node.Description())

	case *flowgraph.OutputSettings:
		return fmt.Sprintf("%s.Output(%s, %q, mode=%s)", main, quote(s.Path), s.Format, s.WriteMode), ""

	default:
		return fmt.Sprintf("/* unrepresentable node kind %s */", node.Kind()), "unrepresentable node kind"
	}
}
