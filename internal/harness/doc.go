// Package harness is a conformance harness for the execution engine.
//
// A Scenario pairs a feature source with its glue and a list of assertions
// over the resulting event trace. Run executes it through a real runtime with
// a deterministic clock and a fixed run id, so two runs of the same scenario
// produce byte-identical traces that can be compared against golden files.
//
// Scenarios are usually YAML files:
//
//	name: failed-step-skips-rest
//	description: a failing step skips the remaining steps
//	feature: |
//	  Feature: Basket
//	    Scenario: broken total
//	      Given a basket
//	      Then the total is 7
//	      And the receipt prints
//	glue:
//	  steps:
//	    - pattern: '^a basket$'
//	      run: "true"
//	    - pattern: '^the total is (\d+)$'
//	      run: exit 1
//	assertions:
//	  - type: scenario_status
//	    scenario: broken total
//	    status: failed
//	  - type: step_status
//	    scenario: broken total
//	    step: the receipt prints
//	    status: skipped
//
// Inline glue runs through the shell backend. Go glue is passed to Run as
// extra backends.
package harness
