package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/meshcheck/internal/adaptor"
	"github.com/roach88/meshcheck/internal/mesh"
	"github.com/roach88/meshcheck/internal/stream"
	"github.com/roach88/meshcheck/internal/synth"
	"github.com/roach88/meshcheck/internal/validator"
)

// Scenario defines one validation scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It is also the stream name
	// for the memory transport and the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Method is the transport method. Defaults to memory.
	Method string `yaml:"method,omitempty"`

	// Workers is the size of the worker group. Defaults to 1.
	Workers int `yaml:"workers,omitempty"`

	// Steps lists the step records to publish.
	Steps []stream.Step `yaml:"steps,omitempty"`

	// Generate produces synthetic steps instead of Steps.
	Generate *synth.Options `yaml:"generate,omitempty"`

	// Assertions validate the reports.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates the outcome of a scenario. Which fields apply
// depends on Type.
type Assertion struct {
	Type string `yaml:"type"`

	// Status is the expected exit status (status).
	Status string `yaml:"status,omitempty"`

	// Count is the expected number (step_count, mismatch_count,
	// structural_count).
	Count int `yaml:"count,omitempty"`

	// Contains is the expected substring (adaptor_error, diagnostic).
	Contains string `yaml:"contains,omitempty"`

	// Mismatch fields. Unset fields match anything.
	Step        *int64 `yaml:"step,omitempty"`
	Mesh        string `yaml:"mesh,omitempty"`
	Block       *int   `yaml:"block,omitempty"`
	Association string `yaml:"association,omitempty"`
	Array       string `yaml:"array,omitempty"`
	Indices     []int  `yaml:"indices,omitempty"`
}

// Assertion type constants.
const (
	AssertStatus          = "status"
	AssertStepCount       = "step_count"
	AssertMismatch        = "mismatch"
	AssertMismatchCount   = "mismatch_count"
	AssertStructuralCount = "structural_count"
	AssertAdaptorError    = "adaptor_error"
	AssertDiagnostic      = "diagnostic"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if strings.ContainsAny(s.Name, `/\`) {
		return fmt.Errorf("name %q must not contain path separators", s.Name)
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", s.Workers)
	}

	if len(s.Steps) > 0 && s.Generate != nil {
		return fmt.Errorf("steps and generate are mutually exclusive")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := stream.Validate(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertStatus:
		var s validator.ExitStatus
		if err := s.UnmarshalText([]byte(a.Status)); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertStepCount, AssertMismatchCount, AssertStructuralCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertMismatch:
		if a.Association != "" {
			if _, err := mesh.ParseAssociation(a.Association); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertAdaptorError, AssertDiagnostic:
		if a.Contains == "" {
			return fmt.Errorf("assertions[%d]: contains is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// method returns the scenario's transport method.
func (s *Scenario) method() string {
	if s.Method == "" {
		return adaptor.MethodMemory
	}
	return s.Method
}

// workers returns the scenario's worker count.
func (s *Scenario) workers() int {
	if s.Workers < 1 {
		return 1
	}
	return s.Workers
}

// steps returns the step records the scenario publishes.
func (s *Scenario) steps() ([]stream.Step, error) {
	if s.Generate != nil {
		return synth.Generate(*s.Generate)
	}
	return s.Steps, nil
}
