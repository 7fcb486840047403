// Package harness runs YAML validation scenarios against the validator.
//
// A scenario publishes a stream, validates it with one or more workers and
// checks the outcome with assertions.
//
// # Scenario Format
//
//	name: corrupt_cell_array
//	description: "A corrupted cell array is reported at its index"
//	method: memory          # memory (default), yaml, sqlite, follow, or any other name
//	workers: 1              # default 1
//	steps:                  # explicit step records, or
//	  - step: 0
//	    time: 0
//	    meshes: [...]
//	generate:               # synthetic steps (see package synth)
//	  steps: 3
//	  meshes: 2
//	  blocks: 4
//	assertions:
//	  - type: status
//	    status: failure
//	  - type: mismatch
//	    association: cell
//	    indices: [2]
//
// For the memory, yaml, sqlite and follow methods the harness publishes
// the steps through that transport before validating. Any other method is
// passed to the registry as is, which is how unsupported transports are
// exercised.
//
// # Assertion Types
//
//   - status: the group's exit status
//   - step_count: steps processed by the status worker
//   - mismatch: some worker reported a mismatch matching every given field
//   - mismatch_count: total mismatches across workers
//   - structural_count: total structural failures across workers
//   - adaptor_error: some worker aborted with an error containing the text
//   - diagnostic: the diagnostic output contains the text
//
// # Golden Files
//
// RunWithGolden snapshots the canonical JSON of every worker's report under
// testdata/golden. Regenerate with
//
//	go test ./internal/harness -update
package harness
