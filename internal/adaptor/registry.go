package adaptor

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/meshcheck/internal/stream"
)

// Opener opens the Source behind a stream name for one transport.
type Opener func(ctx context.Context, streamName string) (Source, error)

// Registry maps transport method names to Openers.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	openers map[string]Opener
	memory  map[string][]stream.Step
}

// NewRegistry returns a registry with only the memory transport.
func NewRegistry() *Registry {
	r := &Registry{
		openers: make(map[string]Opener),
		memory:  make(map[string][]stream.Step),
	}
	r.Register(MethodMemory, r.openMemory)
	return r
}

// Default returns a registry with every built-in transport.
func Default() *Registry {
	r := NewRegistry()
	r.Register(MethodYAML, OpenYAML)
	r.Register(MethodFollow, FollowOpener(FollowOptions{}))
	r.Register(MethodSQLite, OpenSQLite)
	return r
}

// Register adds or replaces the Opener for a method.
func (r *Registry) Register(method string, open Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[method] = open
}

// Methods returns the registered method names in sorted order.
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	methods := make([]string, 0, len(r.openers))
	for m := range r.openers {
		methods = append(methods, m)
	}
	slices.Sort(methods)
	return methods
}

// Open opens a stream with the given transport and positions the adaptor
// on the first step. The partition selects which leaf blocks are local.
//
// Returns an *Error wrapping ErrUnsupportedMethod for an unknown method, or
// the transport's own failure (ErrStreamNotFound if the stream is missing).
func (r *Registry) Open(ctx context.Context, method, streamName string, part stream.Partition) (DataAdaptor, error) {
	r.mu.RLock()
	open, ok := r.openers[method]
	r.mu.RUnlock()
	if !ok {
		return nil, &Error{Op: "open", Method: method, Stream: streamName,
			Err: fmt.Errorf("%w %q (registered: %v)", ErrUnsupportedMethod, method, r.Methods())}
	}

	src, err := open(ctx, streamName)
	if err != nil {
		return nil, &Error{Op: "open", Method: method, Stream: streamName, Err: err}
	}
	return newStreamAdaptor(ctx, method, streamName, src, part)
}
