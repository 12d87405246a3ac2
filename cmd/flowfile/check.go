package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <document>",
		Short: "Validate a FlowGraph document without executing it",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheck,
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	g, err := loadGraph(args[0])
	if err != nil {
		return err
	}
	if err := g.Validate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("ok")
	return nil
}
