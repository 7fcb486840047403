package adaptor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/meshcheck/internal/stream"
)

// MethodYAML names the multi-document YAML file transport.
const MethodYAML = "yaml"

// YAMLSource decodes one YAML document per step from a file.
type YAMLSource struct {
	f   *os.File
	dec *yaml.Decoder
}

// OpenYAML opens a YAML stream file. Unknown fields are rejected.
func OpenYAML(_ context.Context, path string) (Source, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrStreamNotFound)
	}
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	return &YAMLSource{f: f, dec: dec}, nil
}

// Next decodes and validates the next document.
func (s *YAMLSource) Next(ctx context.Context) (stream.Step, error) {
	if err := ctx.Err(); err != nil {
		return stream.Step{}, err
	}
	var step stream.Step
	if err := s.dec.Decode(&step); err != nil {
		if errors.Is(err, io.EOF) {
			return stream.Step{}, io.EOF
		}
		return stream.Step{}, fmt.Errorf("decode step: %w", err)
	}
	if err := stream.Validate(step); err != nil {
		return stream.Step{}, err
	}
	return step, nil
}

// Close closes the file.
func (s *YAMLSource) Close() error {
	return s.f.Close()
}
