package stream

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaCUE string

// SchemaError reports a step record rejected by the step schema.
type SchemaError struct {
	Step    int64
	Message string
	Pos     token.Pos
}

func (e *SchemaError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("step %d: schema %d:%d: %s", e.Step, e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return fmt.Sprintf("step %d: schema: %s", e.Step, e.Message)
}

// cue.Context is not safe for concurrent use; workers of a group share it.
var schema struct {
	once sync.Once
	mu   sync.Mutex
	ctx  *cue.Context
	step cue.Value
	err  error
}

func loadSchema() {
	schema.ctx = cuecontext.New()
	v := schema.ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		schema.err = fmt.Errorf("compile step schema: %w", err)
		return
	}
	schema.step = v.LookupPath(cue.ParsePath("#Step"))
	if err := schema.step.Err(); err != nil {
		schema.err = fmt.Errorf("lookup #Step: %w", err)
	}
}

// Validate checks a decoded step against the embedded CUE schema and
// requires its mesh names to be distinct, which a CUE list cannot express.
//
// Text transports run it on every document they decode, since those records
// come straight from a producer and have not passed through the store's
// typed columns.
func Validate(s Step) error {
	schema.once.Do(loadSchema)
	if schema.err != nil {
		return schema.err
	}

	schema.mu.Lock()
	defer schema.mu.Unlock()

	v := schema.ctx.Encode(s)
	if err := v.Err(); err != nil {
		return &SchemaError{Step: s.Index, Message: err.Error()}
	}
	unified := schema.step.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return formatSchemaError(s.Index, err)
	}
	return s.CheckMeshNames()
}

// formatSchemaError keeps the first CUE error with its position.
func formatSchemaError(step int64, err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &SchemaError{Step: step, Message: err.Error()}
	}
	first := errs[0]
	se := &SchemaError{Step: step, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		se.Pos = positions[0]
	}
	return se
}
