package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/meshcheck/internal/adaptor"
	"github.com/roach88/meshcheck/internal/store"
	"github.com/roach88/meshcheck/internal/stream"
	"github.com/roach88/meshcheck/internal/synth"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	*RootOptions
	synth.Options
	Corruptions []string
	Interval    time.Duration
}

// GenerateResult is the output of the generate command.
type GenerateResult struct {
	Stream string `json:"stream"`
	Method string `json:"method"`
	Steps  int    `json:"steps"`
}

func (r GenerateResult) String() string {
	return fmt.Sprintf("✓ wrote %d steps to %s (%s)", r.Steps, r.Stream, r.Method)
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate <stream> <method>",
		Short: "Write a synthetic fingerprint stream",
		Long: `Write a synthetic stream whose arrays all satisfy buffer[i] == i,
optionally corrupting chosen values.

Methods:
  yaml    - one YAML document per step (file is replaced)
  follow  - like yaml, written step by step with --interval between steps,
            then marked done with <stream>.done
  sqlite  - appended to a stream database

Corruptions are given as step:mesh:block:association:array:index and set the
addressed value to index+1.

Examples:
  meshcheck generate ./run.yaml yaml --steps 3 --meshes 2
  meshcheck generate ./run.db sqlite --blocks 8 --groups 2
  meshcheck generate ./live.yaml follow --interval 500ms
  meshcheck generate ./bad.yaml yaml --corrupt 0:mesh0:0:cell:cell0:2`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Steps, "steps", 1, "number of steps")
	cmd.Flags().IntVar(&opts.Meshes, "meshes", 1, "meshes per step")
	cmd.Flags().IntVar(&opts.Blocks, "blocks", 1, "leaf blocks per mesh")
	cmd.Flags().IntVar(&opts.Groups, "groups", 0, "intermediate blocks between root and leaves")
	cmd.Flags().IntVar(&opts.Points, "points", 8, "points per leaf")
	cmd.Flags().IntVar(&opts.Cells, "cells", 4, "cells per leaf")
	cmd.Flags().IntVar(&opts.PointArrays, "point-arrays", 1, "point arrays per leaf")
	cmd.Flags().IntVar(&opts.CellArrays, "cell-arrays", 1, "cell arrays per leaf")
	cmd.Flags().Float64Var(&opts.TimeDelta, "time-delta", 0.1, "simulation time between steps")
	cmd.Flags().StringArrayVar(&opts.Corruptions, "corrupt", nil, "corrupt a value (step:mesh:block:association:array:index)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "delay between steps (follow)")

	return cmd
}

func runGenerate(ctx context.Context, opts *GenerateOptions, streamName, method string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	gen := opts.Options
	gen.Corrupt = nil
	for _, raw := range opts.Corruptions {
		c, err := synth.ParseCorruption(raw)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --corrupt", err)
		}
		gen.Corrupt = append(gen.Corrupt, c)
	}

	steps, err := synth.Generate(gen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to generate steps", err)
	}

	switch method {
	case adaptor.MethodYAML:
		err = writeYAMLStream(ctx, streamName, steps, 0, false)
	case adaptor.MethodFollow:
		err = writeYAMLStream(ctx, streamName, steps, opts.Interval, true)
	case adaptor.MethodSQLite:
		err = writeSQLiteStream(ctx, streamName, steps)
	default:
		return NewExitError(ExitCommandError,
			fmt.Sprintf("cannot generate for method %q: must be one of yaml, follow, sqlite", method))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to write stream", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success(GenerateResult{Stream: streamName, Method: method, Steps: len(steps)})
}

// writeYAMLStream writes steps as YAML documents. For a followed stream
// each step is flushed on its own and the done marker is created last.
func writeYAMLStream(ctx context.Context, path string, steps []stream.Step, interval time.Duration, follow bool) error {
	if follow {
		if err := os.Remove(path + adaptor.DoneSuffix); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for i, step := range steps {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
		if err := synth.WriteYAMLStep(f, step); err != nil {
			return err
		}
		if follow {
			if err := f.Sync(); err != nil {
				return err
			}
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	if follow {
		return os.WriteFile(path+adaptor.DoneSuffix, nil, 0o644)
	}
	return nil
}

func writeSQLiteStream(ctx context.Context, path string, steps []stream.Step) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	if err := synth.WriteStore(ctx, st, steps); err != nil {
		st.Close()
		return err
	}
	return st.Close()
}
