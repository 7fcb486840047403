package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/meshcheck/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Database string
}

// RunEntry is one recorded run in command output.
type RunEntry struct {
	ID         string `json:"id"`
	Method     string `json:"method"`
	Rank       int    `json:"rank"`
	Size       int    `json:"size"`
	Status     string `json:"status"`
	Steps      int    `json:"steps"`
	Mismatches int    `json:"mismatches"`
	Structural int    `json:"structural"`
	Failure    string `json:"failure,omitempty"`
	Digest     string `json:"digest"`
	RecordedAt string `json:"recorded_at"`
}

// RunsResult is the output of the runs command.
type RunsResult struct {
	Stream string     `json:"stream"`
	Runs   []RunEntry `json:"runs"`

	// Consistent is false when runs of the same rank and size disagree on
	// their report digest.
	Consistent bool `json:"consistent"`
}

// Text implements the text rendering used by OutputFormatter.
func (r RunsResult) Text(w io.Writer) {
	if len(r.Runs) == 0 {
		fmt.Fprintf(w, "No runs recorded for %s.\n", r.Stream)
		return
	}
	for _, run := range r.Runs {
		fmt.Fprintf(w, "%s  %s  rank %d/%d  %-7s  %d steps  %d mismatches  %s\n",
			run.RecordedAt, run.ID, run.Rank, run.Size, run.Status, run.Steps, run.Mismatches, run.Digest[:min(12, len(run.Digest))])
	}
	if !r.Consistent {
		fmt.Fprintln(w, "✗ runs over this stream disagree")
	}
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs <stream>",
		Short: "List recorded validation runs",
		Long: `List the validation runs recorded with validate --record for a stream.

Runs of the same rank and group size over unchanged stream content carry the
same digest; disagreeing digests are reported.

Exit codes:
  0 - Runs listed and consistent
  1 - Runs disagree
  2 - Command error (database not found, etc.)

Examples:
  meshcheck runs ./run.yaml --db ./runs.db
  meshcheck runs ./run.yaml --db ./runs.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runRuns(ctx context.Context, opts *RunsOptions, streamName string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.Database))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	runs, err := st.ReadRuns(ctx, streamName)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read runs", err)
	}

	result := RunsResult{Stream: streamName, Runs: make([]RunEntry, 0, len(runs)), Consistent: true}
	digests := make(map[[2]int]string)
	for _, run := range runs {
		result.Runs = append(result.Runs, RunEntry{
			ID:         run.ID,
			Method:     run.Method,
			Rank:       run.Rank,
			Size:       run.Size,
			Status:     run.Status,
			Steps:      run.Steps,
			Mismatches: len(run.Mismatches),
			Structural: run.Structural,
			Failure:    run.Failure,
			Digest:     run.Digest,
			RecordedAt: run.RecordedAt.Format(time.RFC3339),
		})
		key := [2]int{run.Rank, run.Size}
		if prev, ok := digests[key]; ok && prev != run.Digest {
			result.Consistent = false
		}
		digests[key] = run.Digest
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	resp := CLIResponse{Status: "ok", Data: result}
	if !result.Consistent {
		resp.Status = "error"
		resp.Error = &CLIError{Code: "E_INCONSISTENT", Message: "recorded runs disagree"}
	}
	if err := formatter.Respond(resp); err != nil {
		return err
	}
	if !result.Consistent {
		return NewExitError(ExitFailure, "recorded runs disagree")
	}
	return nil
}
