package adaptor

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/roach88/meshcheck/internal/stream"
)

// MethodMemory names the in-process transport.
const MethodMemory = "memory"

// AddMemoryStream publishes steps under a name for the memory transport.
// The slice is copied; each opened adaptor reads its own view.
func (r *Registry) AddMemoryStream(name string, steps []stream.Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memory[name] = slices.Clone(steps)
}

func (r *Registry) openMemory(_ context.Context, name string) (Source, error) {
	r.mu.RLock()
	steps, ok := r.memory[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("memory stream %q: %w", name, ErrStreamNotFound)
	}
	return NewMemorySource(steps), nil
}

// MemorySource replays a fixed list of steps.
type MemorySource struct {
	steps []stream.Step
	pos   int
}

// NewMemorySource returns a Source over steps.
func NewMemorySource(steps []stream.Step) *MemorySource {
	return &MemorySource{steps: steps}
}

// Next returns the next step, or io.EOF.
func (s *MemorySource) Next(ctx context.Context) (stream.Step, error) {
	if err := ctx.Err(); err != nil {
		return stream.Step{}, err
	}
	if s.pos >= len(s.steps) {
		return stream.Step{}, io.EOF
	}
	step := s.steps[s.pos]
	s.pos++
	return step, nil
}

// Close implements Source.
func (s *MemorySource) Close() error {
	return nil
}
