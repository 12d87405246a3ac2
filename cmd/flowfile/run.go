package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph"
	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph/engine"
	"github.com/Edwardvaneechoud/Flowfile-sub004/flowgraph/persist"
	"github.com/Edwardvaneechoud/Flowfile-sub004/lazyframe/memframe"
	"github.com/Edwardvaneechoud/Flowfile-sub004/log"
	"github.com/Edwardvaneechoud/Flowfile-sub004/worker/antspool"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <document>",
		Short: "Execute a FlowGraph document",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
	cmd.Flags().String("cache-dir", "", "directory for the development-mode sample cache (empty: memory-only)")
	cmd.Flags().Int("workers", 4, "worker pool size for execution_location=remote/auto sinks")
	cmd.Flags().Int("remote-threshold", 100000, "row count above which execution_location=auto offloads to the worker pool")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	g, err := loadGraph(args[0])
	if err != nil {
		return err
	}

	cacheDir, _ := cmd.Flags().GetString("cache-dir")
	workers, _ := cmd.Flags().GetInt("workers")
	remoteThreshold, _ := cmd.Flags().GetInt("remote-threshold")

	pool, err := antspool.New(workers)
	if err != nil {
		return fmt.Errorf("flowfile: starting worker pool: %w", err)
	}
	defer pool.Release()

	eng := engine.New(memframe.New(), engine.NewSampleCache(cacheDir, 256), pool, remoteThreshold)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warnf("flowfile: received interrupt, cancelling run")
		cancel()
	}()

	start := time.Now()
	result, err := eng.Run(ctx, g, func(ev engine.Event) {
		if ev.Progress {
			log.Infof("run %s node %d: %d rows so far", ev.RunID, ev.NodeID, ev.RowsSoFar)
			return
		}
		if ev.Error != "" {
			log.Errorf("run %s node %d: %s: %s", ev.RunID, ev.NodeID, ev.State, ev.Error)
			return
		}
		log.Infof("run %s node %d: %s (%d rows, %s)", ev.RunID, ev.NodeID, ev.State, ev.Rows, ev.Duration)
	})
	if err != nil {
		return fmt.Errorf("flowfile: run failed: %w", err)
	}

	fmt.Printf("run %s finished in %s: success=%t\n", result.RunID, time.Since(start), result.Success)
	if !result.Success {
		os.Exit(1)
	}
	return nil
}

func loadGraph(path string) (*flowgraph.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("flowfile: reading %s: %w", path, err)
	}
	doc, err := persist.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("flowfile: parsing %s: %w", path, err)
	}
	g, err := persist.Load(doc)
	if err != nil {
		return nil, fmt.Errorf("flowfile: loading %s: %w", path, err)
	}
	g.SetSourceProber(memframe.New())
	return g, nil
}
