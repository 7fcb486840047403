package adaptor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/roach88/meshcheck/internal/store"
	"github.com/roach88/meshcheck/internal/stream"
)

// MethodSQLite names the stream database transport.
const MethodSQLite = "sqlite"

// SQLiteSource reads steps from a stream database one at a time.
type SQLiteSource struct {
	st  *store.Store
	seq int64
}

// OpenSQLite opens an existing stream database. It does not create one.
func OpenSQLite(_ context.Context, path string) (Source, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrStreamNotFound)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteSource{st: st}, nil
}

// Next reads the step at the current position.
func (s *SQLiteSource) Next(ctx context.Context) (stream.Step, error) {
	step, err := s.st.ReadStep(ctx, s.seq)
	if errors.Is(err, store.ErrNoStep) {
		return stream.Step{}, io.EOF
	}
	if err != nil {
		return stream.Step{}, err
	}
	s.seq++
	return step, nil
}

// Close closes the database.
func (s *SQLiteSource) Close() error {
	return s.st.Close()
}
