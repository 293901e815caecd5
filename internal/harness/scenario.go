package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cuke/internal/backend/shell"
	"github.com/roach88/cuke/internal/result"
)

// Scenario defines a conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// URI is the feature URI. Defaults to features/<name>.feature.
	URI string `yaml:"uri,omitempty"`

	// Feature is the Gherkin source.
	Feature string `yaml:"feature"`

	// Glue holds inline shell step definitions and hooks.
	Glue *shell.GlueFile `yaml:"glue,omitempty"`

	Strict           bool     `yaml:"strict,omitempty"`
	DryRun           bool     `yaml:"dry_run,omitempty"`
	BeforeHookPolicy string   `yaml:"before_hook_policy,omitempty"`
	Tags             []string `yaml:"tags,omitempty"`
	Names            []string `yaml:"names,omitempty"`

	// RunID is the fixed run id. Defaults to DefaultRunID.
	RunID string `yaml:"run_id,omitempty"`

	// Assertions validate the trace after the run.
	Assertions []Assertion `yaml:"assertions"`
}

// DefaultRunID is the run id of scenarios that do not set one.
const DefaultRunID = "harness-run"

// Assertion validates the trace of a run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Scenario is a scenario name (scenario_status, step_status).
	Scenario string `yaml:"scenario,omitempty"`

	// Step is a step text (step_status).
	Step string `yaml:"step,omitempty"`

	// Status is the expected status name (scenario_status, step_status).
	Status string `yaml:"status,omitempty"`

	// Events are event kinds expected in order, not necessarily adjacent
	// (event_order).
	Events []string `yaml:"events,omitempty"`

	// Event is an event kind (event_count).
	Event string `yaml:"event,omitempty"`

	// Count is the expected number of events (event_count).
	Count int `yaml:"count,omitempty"`

	// Exit is the expected exit status (exit_status).
	Exit int `yaml:"exit,omitempty"`
}

// Assertion type constants.
const (
	AssertScenarioStatus = "scenario_status"
	AssertStepStatus     = "step_status"
	AssertEventOrder     = "event_order"
	AssertEventCount     = "event_count"
	AssertExitStatus     = "exit_status"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
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
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if s.Description == "" {
		errs = append(errs, errors.New("description is required"))
	}
	if s.Feature == "" {
		errs = append(errs, errors.New("feature is required"))
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			errs = append(errs, fmt.Errorf("assertion %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertScenarioStatus:
		if a.Scenario == "" {
			return errors.New("scenario_status requires scenario")
		}
		return validateStatus(a.Status)
	case AssertStepStatus:
		if a.Scenario == "" || a.Step == "" {
			return errors.New("step_status requires scenario and step")
		}
		return validateStatus(a.Status)
	case AssertEventOrder:
		if len(a.Events) < 2 {
			return errors.New("event_order requires at least two events")
		}
	case AssertEventCount:
		if a.Event == "" {
			return errors.New("event_count requires event")
		}
	case AssertExitStatus:
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func validateStatus(name string) error {
	if _, ok := result.ParseStatus(name); !ok {
		return fmt.Errorf("unknown status %q", name)
	}
	return nil
}
