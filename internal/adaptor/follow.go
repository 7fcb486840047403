package adaptor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/roach88/meshcheck/internal/stream"
)

// MethodFollow names the streaming YAML transport.
const MethodFollow = "follow"

// DoneSuffix is appended to a followed stream's path to form the marker
// file its producer creates after writing the last step.
const DoneSuffix = ".done"

// docEnd terminates every complete document a producer writes.
var docEnd = []byte("\n...\n")

// FollowOptions tunes the follow transport.
type FollowOptions struct {
	// PollInterval bounds how long to wait between file checks when no
	// filesystem event arrives. Defaults to 250ms.
	PollInterval time.Duration
}

// FollowOpener returns an Opener for the follow transport.
func FollowOpener(opts FollowOptions) Opener {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	return func(ctx context.Context, path string) (Source, error) {
		return openFollow(path, opts)
	}
}

// FollowSource tails a YAML stream file that a producer is still writing.
//
// Only documents closed by a "..." line are decoded, so a reader never sees
// half of a step. The stream ends once the done marker exists and every
// complete document has been consumed.
type FollowSource struct {
	path     string
	donePath string
	poll     time.Duration
	f        *os.File
	watcher  *fsnotify.Watcher
	buf      []byte
	pending  []stream.Step
}

func openFollow(path string, opts FollowOptions) (*FollowSource, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrStreamNotFound)
	}
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// The directory is watched so the done marker's creation is seen too.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		f.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	return &FollowSource{
		path:     path,
		donePath: path + DoneSuffix,
		poll:     opts.PollInterval,
		f:        f,
		watcher:  watcher,
	}, nil
}

// Next blocks until a complete step is available, the producer marks the
// stream done (io.EOF), or ctx is cancelled.
func (s *FollowSource) Next(ctx context.Context) (stream.Step, error) {
	for {
		if len(s.pending) > 0 {
			step := s.pending[0]
			s.pending = s.pending[1:]
			return step, nil
		}

		// Check the marker before reading so a step written just before
		// the marker is never missed.
		finished := fileExists(s.donePath)
		if err := s.fill(); err != nil {
			return stream.Step{}, err
		}
		if len(s.pending) > 0 {
			continue
		}
		if finished {
			if len(bytes.TrimSpace(s.buf)) > 0 {
				return stream.Step{}, fmt.Errorf("%s: stream ended inside an unterminated document", s.path)
			}
			return stream.Step{}, io.EOF
		}

		if err := s.wait(ctx); err != nil {
			return stream.Step{}, err
		}
	}
}

// fill reads whatever the producer has appended and decodes every complete
// document into pending.
func (s *FollowSource) fill() error {
	chunk := make([]byte, 32*1024)
	for {
		n, err := s.f.Read(chunk)
		s.buf = append(s.buf, chunk[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", s.path, err)
		}
	}

	end := bytes.LastIndex(s.buf, docEnd)
	if end < 0 {
		return nil
	}
	complete := s.buf[:end+len(docEnd)]

	dec := yaml.NewDecoder(bytes.NewReader(complete))
	dec.KnownFields(true)
	for {
		var step stream.Step
		err := dec.Decode(&step)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("decode step: %w", err)
		}
		if err := stream.Validate(step); err != nil {
			return err
		}
		s.pending = append(s.pending, step)
	}
	s.buf = append([]byte(nil), s.buf[end+len(docEnd):]...)
	return nil
}

// wait returns on the next filesystem event in the stream's directory, the
// poll interval, or cancellation.
func (s *FollowSource) wait(ctx context.Context) error {
	timer := time.NewTimer(s.poll)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case _, ok := <-s.watcher.Events:
		if !ok {
			return fmt.Errorf("watcher for %s closed", s.path)
		}
		return nil
	case err, ok := <-s.watcher.Errors:
		if !ok {
			return fmt.Errorf("watcher for %s closed", s.path)
		}
		return fmt.Errorf("watch %s: %w", s.path, err)
	case <-timer.C:
		return nil
	}
}

// Close stops the watcher and closes the file.
func (s *FollowSource) Close() error {
	werr := s.watcher.Close()
	ferr := s.f.Close()
	return errors.Join(werr, ferr)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
