// Package worker defines the offload channel a FlowGraph engine uses to run
// a lazy plan out-of-process and get back a cached artifact path, per
// execution_location="remote" (spec §C). The interface models the shape of
// an out-of-process worker without the kernel committing to a process
// model — actually forking a process is out of scope.
package worker

import "context"

// Job is one unit of offloadable work, keyed by ContentHash: Run performs
// it and returns a string identifying the artifact it produced.
type Job struct {
	ContentHash string
	Run         func(ctx context.Context) (string, error)
}

// Pool submits jobs to a bounded pool of workers and returns the path each
// job's Run produced.
type Pool interface {
	Submit(ctx context.Context, job Job) (string, error)
	Release()
}
