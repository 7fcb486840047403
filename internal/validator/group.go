package validator

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"
)

// GroupReport collects the reports of a worker group, ordered by rank.
type GroupReport struct {
	Stream  string
	Method  string
	Status  ExitStatus
	Workers []*Report

	// Err is an adaptor failure of some worker, nil if none failed.
	// Which one is reported when several fail depends on timing; the
	// per-rank errors are in Workers.
	Err error
}

// Steps returns the step count of the status rank's worker.
func (g *GroupReport) Steps(statusRank int) int {
	if statusRank < 0 || statusRank >= len(g.Workers) {
		return 0
	}
	return g.Workers[statusRank].Steps
}

// RunGroup runs workers validators concurrently, each with its own adaptor
// on its own partition. cfg.Rank and cfg.Size are overridden per worker.
//
// The group does not fail fast. Workers share no context that a failure
// could cancel, so an adaptor failure on one rank fails the group but leaves
// the others to finish their pass and complete their reports.
func RunGroup(ctx context.Context, cfg Config, workers int, streamName, method string) *GroupReport {
	if workers < 1 {
		workers = 1
	}
	if cfg.Diagnostics == nil {
		cfg.Diagnostics = io.Discard
	}
	diag := &syncWriter{w: cfg.Diagnostics}

	reports := make([]*Report, workers)
	var g errgroup.Group
	for rank := range workers {
		wcfg := cfg
		wcfg.Rank = rank
		wcfg.Size = workers
		wcfg.Diagnostics = diag
		g.Go(func() error {
			rep := New(wcfg).Run(ctx, streamName, method)
			reports[rank] = rep
			return rep.Err
		})
	}

	gr := &GroupReport{Stream: streamName, Method: method, Status: Success, Workers: reports}
	if gr.Err = g.Wait(); gr.Err != nil {
		gr.Status = Failure
	}
	for _, r := range reports {
		if r.Status == Failure {
			gr.Status = Failure
		}
	}
	return gr
}
