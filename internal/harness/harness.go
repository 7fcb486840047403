package harness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/meshcheck/internal/adaptor"
	"github.com/roach88/meshcheck/internal/store"
	"github.com/roach88/meshcheck/internal/stream"
	"github.com/roach88/meshcheck/internal/synth"
	"github.com/roach88/meshcheck/internal/validator"
)

// Harness is the scenario execution engine.
type Harness struct {
	registry *adaptor.Registry
	dir      string
	logger   *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario publishes its stream into a fresh registry and, for file
// transports, a fresh temporary directory.
//
// Execution flow:
// 1. Build the steps (explicit or generated)
// 2. Publish them through the scenario's transport
// 3. Validate with the worker group
// 4. Evaluate assertions against the reports
func Run(scenario *Scenario) (*Result, error) {
	steps, err := scenario.steps()
	if err != nil {
		return nil, fmt.Errorf("failed to build steps: %w", err)
	}

	dir, err := os.MkdirTemp("", "meshcheck-scenario-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	h := &Harness{
		registry: adaptor.Default(),
		dir:      dir,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	ctx := context.Background()
	streamName, err := h.publish(ctx, scenario.Name, scenario.method(), steps)
	if err != nil {
		return nil, fmt.Errorf("failed to publish stream: %w", err)
	}

	var diag bytes.Buffer
	cfg := validator.Config{
		Diagnostics: &diag,
		Logger:      h.logger,
		Registry:    h.registry,
	}
	group := validator.RunGroup(ctx, cfg, scenario.workers(), streamName, scenario.method())
	h.logger.Info("scenario validated",
		"scenario", scenario.Name,
		"method", scenario.method(),
		"workers", scenario.workers(),
		"status", group.Status.String(),
	)

	result := NewResult()
	result.Group = group
	result.Diagnostics = diag.String()
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

// publish makes steps readable through method and returns the stream name
// to open. Methods without a built-in backend get the bare scenario name.
func (h *Harness) publish(ctx context.Context, name, method string, steps []stream.Step) (string, error) {
	switch method {
	case adaptor.MethodMemory:
		h.registry.AddMemoryStream(name, steps)
		return name, nil

	case adaptor.MethodYAML, adaptor.MethodFollow:
		path := filepath.Join(h.dir, name+".yaml")
		f, err := os.Create(path)
		if err != nil {
			return "", err
		}
		if err := synth.WriteYAML(f, steps); err != nil {
			f.Close()
			return "", err
		}
		if err := f.Close(); err != nil {
			return "", err
		}
		if method == adaptor.MethodFollow {
			// The producer has finished before the reader starts.
			if err := os.WriteFile(path+adaptor.DoneSuffix, nil, 0o644); err != nil {
				return "", err
			}
		}
		return path, nil

	case adaptor.MethodSQLite:
		path := filepath.Join(h.dir, name+".db")
		st, err := store.Open(path)
		if err != nil {
			return "", err
		}
		if err := synth.WriteStore(ctx, st, steps); err != nil {
			st.Close()
			return "", err
		}
		return path, st.Close()

	default:
		return name, nil
	}
}
