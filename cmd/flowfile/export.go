package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph/persist"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <document>",
		Short: "Export a FlowGraph document as fluent-builder script text",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
	cmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	g, err := loadGraph(args[0])
	if err != nil {
		return err
	}
	script, err := persist.Export(g)
	if err != nil {
		return fmt.Errorf("flowfile: exporting: %w", err)
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		fmt.Print(script)
		return nil
	}
	if err := os.WriteFile(output, []byte(script), 0o644); err != nil {
		return fmt.Errorf("flowfile: writing %s: %w", output, err)
	}
	return nil
}
