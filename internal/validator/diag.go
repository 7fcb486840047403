package validator

import (
	"fmt"
	"io"
	"sync"
)

// diagnostics writes the human-readable STATUS and ERROR lines.
//
// Status lines come from the status rank only, except per-block lines,
// which every worker writes for its own blocks. Error lines come from
// every worker. Each line is one Write call.
type diagnostics struct {
	w          io.Writer
	rank       int
	statusRank int
}

func (d *diagnostics) status(format string, args ...any) {
	if d.rank != d.statusRank {
		return
	}
	d.statusOwn(format, args...)
}

func (d *diagnostics) statusOwn(format string, args ...any) {
	fmt.Fprintf(d.w, "STATUS[%d] : %s\n", d.rank, fmt.Sprintf(format, args...))
}

func (d *diagnostics) errorf(format string, args ...any) {
	fmt.Fprintf(d.w, "ERROR[%d] : %s\n", d.rank, fmt.Sprintf(format, args...))
}

// syncWriter serializes writes from the workers of a group.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
