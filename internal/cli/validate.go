package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/meshcheck/internal/adaptor"
	"github.com/roach88/meshcheck/internal/store"
	"github.com/roach88/meshcheck/internal/validator"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Rank       int
	Size       int
	StatusRank int
	Workers    int
	Record     string // stream database to record runs into
	MaxIndices int

	registry *adaptor.Registry // nil means adaptor.Default()
}

// WorkerSummary is one worker's outcome in command output.
type WorkerSummary struct {
	Rank       int                `json:"rank"`
	Status     string             `json:"status"`
	Steps      int                `json:"steps"`
	Mismatches []MismatchSummary  `json:"mismatches"`
	Structural []StructuralReport `json:"structural"`
	Error      string             `json:"error,omitempty"`
	Digest     string             `json:"digest"`
}

// MismatchSummary is one mismatching array in command output.
type MismatchSummary struct {
	Step        int64  `json:"step"`
	Mesh        string `json:"mesh"`
	Block       int    `json:"block"`
	Association string `json:"association"`
	Array       string `json:"array"`
	Count       int    `json:"count"`
	Indices     []int  `json:"indices"`
}

// StructuralReport is one malformed mesh in command output.
type StructuralReport struct {
	Step     int64    `json:"step"`
	Mesh     string   `json:"mesh"`
	Problems []string `json:"problems"`
}

// ValidateResult is the output of the validate command.
type ValidateResult struct {
	Stream  string          `json:"stream"`
	Method  string          `json:"method"`
	Status  string          `json:"status"`
	Steps   int             `json:"steps"`
	Workers []WorkerSummary `json:"workers"`
}

// Text implements the text rendering used by OutputFormatter.
func (r ValidateResult) Text(w io.Writer) {
	mark := "✓"
	if r.Status != validator.Success.String() {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s (%s): %s after %d steps\n", mark, r.Stream, r.Method, r.Status, r.Steps)
	for _, wk := range r.Workers {
		for _, m := range wk.Mismatches {
			fmt.Fprintf(w, "  rank %d step %d mesh %s block %d %s array %q: %d wrong values\n",
				wk.Rank, m.Step, m.Mesh, m.Block, m.Association, m.Array, m.Count)
		}
		for _, s := range wk.Structural {
			fmt.Fprintf(w, "  rank %d step %d mesh %s malformed: %d problems\n", wk.Rank, s.Step, s.Mesh, len(s.Problems))
		}
		if wk.Error != "" {
			fmt.Fprintf(w, "  rank %d aborted: %s\n", wk.Rank, wk.Error)
		}
	}
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <stream> <method>",
		Short: "Validate the index fingerprint of a stream",
		Long: `Open a stream through the given transport method, read every step and
check that each array of each leaf block satisfies buffer[i] == i.

STATUS and ERROR lines are written to stderr. The summary goes to stdout.

With --workers N the stream is read by N in-process workers, each owning a
round-robin share of the leaf blocks. Otherwise --rank and --size place this
process in an externally launched group.

Exit codes:
  0 - Every array matched
  1 - Value mismatch or malformed mesh
  2 - Adaptor failure or command error

Examples:
  meshcheck validate ./run.yaml yaml
  meshcheck validate ./run.db sqlite --record ./runs.db
  meshcheck validate ./live.yaml follow --workers 4
  meshcheck validate ./run.yaml yaml --rank 1 --size 2 --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Rank, "rank", 0, "rank of this worker")
	cmd.Flags().IntVar(&opts.Size, "size", 1, "number of workers in the group")
	cmd.Flags().IntVar(&opts.StatusRank, "status-rank", 0, "rank that writes STATUS lines")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 0, "run this many in-process workers")
	cmd.Flags().StringVar(&opts.Record, "record", "", "record the run into this SQLite database")
	cmd.Flags().IntVar(&opts.MaxIndices, "max-indices", 0, "cap recorded indices per mismatch (0 = all)")

	return cmd
}

func runValidate(ctx context.Context, opts *ValidateOptions, streamName, method string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if streamName == "" || method == "" {
		return NewExitError(ExitCommandError, "stream and method must be non-empty")
	}
	if opts.Workers < 0 || opts.MaxIndices < 0 {
		return NewExitError(ExitCommandError, "--workers and --max-indices must be non-negative")
	}
	if opts.Workers == 0 && (opts.Size < 1 || opts.Rank < 0 || opts.Rank >= opts.Size) {
		return NewExitError(ExitCommandError, fmt.Sprintf("--rank %d is outside a group of --size %d", opts.Rank, opts.Size))
	}
	groupSize := opts.Size
	if opts.Workers > 0 {
		groupSize = opts.Workers
	}
	if opts.StatusRank < 0 || opts.StatusRank >= groupSize {
		return NewExitError(ExitCommandError, fmt.Sprintf("--status-rank %d is outside a group of %d workers", opts.StatusRank, groupSize))
	}

	registry := opts.registry
	if registry == nil {
		registry = adaptor.Default()
	}
	cfg := validator.Config{
		Rank:        opts.Rank,
		Size:        opts.Size,
		StatusRank:  opts.StatusRank,
		Diagnostics: cmd.ErrOrStderr(),
		Logger:      newLogger(opts.Verbose, cmd.ErrOrStderr()),
		Registry:    registry,
		MaxIndices:  opts.MaxIndices,
	}

	var group *validator.GroupReport
	if opts.Workers > 0 {
		group = validator.RunGroup(ctx, cfg, opts.Workers, streamName, method)
	} else {
		rep := validator.New(cfg).Run(ctx, streamName, method)
		group = &validator.GroupReport{Stream: streamName, Method: method, Status: rep.Status, Workers: []*validator.Report{rep}, Err: rep.Err}
	}

	result, err := summarize(group)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to summarize reports", err)
	}

	resp := CLIResponse{Status: "ok", Data: result}
	if opts.Record != "" {
		ids, err := recordRuns(ctx, opts.Record, group)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to record runs", err)
		}
		resp.RunIDs = ids
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}
	for _, id := range resp.RunIDs {
		formatter.VerboseLog("recorded run %s into %s", id, opts.Record)
	}

	exit := validateExit(group)
	if exit != nil {
		resp.Status = "error"
		resp.Error = &CLIError{Code: exitCodeName(exit.Code), Message: exit.Message}
	}

	if err := formatter.Respond(resp); err != nil {
		return err
	}
	if exit != nil {
		return exit
	}
	return nil
}

// validateExit maps a group outcome to an exit error. Adaptor failures take
// precedence over validation failures, and the lowest failing rank is named
// whichever worker failed first.
func validateExit(group *validator.GroupReport) *ExitError {
	if group.Err != nil {
		for _, r := range group.Workers {
			if r.Err != nil {
				return WrapExitError(ExitCommandError, fmt.Sprintf("adaptor failure on rank %d", r.Rank), r.Err)
			}
		}
	}
	if group.Status == validator.Failure {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

func exitCodeName(code int) string {
	if code == ExitCommandError {
		return "E_ADAPTOR"
	}
	return "E_VALIDATION_FAILED"
}

func summarize(group *validator.GroupReport) (ValidateResult, error) {
	result := ValidateResult{
		Stream:  group.Stream,
		Method:  group.Method,
		Status:  group.Status.String(),
		Workers: make([]WorkerSummary, 0, len(group.Workers)),
	}
	if len(group.Workers) > 0 {
		result.Steps = group.Workers[0].Steps
	}
	for _, r := range group.Workers {
		digest, err := r.Digest()
		if err != nil {
			return ValidateResult{}, err
		}
		ws := WorkerSummary{
			Rank:       r.Rank,
			Status:     r.Status.String(),
			Steps:      r.Steps,
			Mismatches: []MismatchSummary{},
			Structural: []StructuralReport{},
			Digest:     digest,
		}
		if r.Err != nil {
			ws.Error = r.Err.Error()
		}
		for _, m := range r.Mismatches {
			ws.Mismatches = append(ws.Mismatches, MismatchSummary{
				Step:        m.Step,
				Mesh:        m.Mesh,
				Block:       m.Block,
				Association: m.Association.String(),
				Array:       m.Array,
				Count:       m.Count,
				Indices:     m.Indices,
			})
		}
		for _, s := range r.Structural {
			ws.Structural = append(ws.Structural, StructuralReport{Step: s.Step, Mesh: s.Mesh, Problems: s.Problems})
		}
		result.Workers = append(result.Workers, ws)
	}
	return result, nil
}

func recordRuns(ctx context.Context, path string, group *validator.GroupReport) ([]string, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	ids := make([]string, 0, len(group.Workers))
	for _, r := range group.Workers {
		rec, err := r.Record()
		if err != nil {
			return nil, err
		}
		id, err := st.WriteRun(ctx, rec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
