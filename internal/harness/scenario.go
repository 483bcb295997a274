package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: a schema, a tracked request,
// and a sequence of writes with expected observations.
type Scenario struct {
	// Name uniquely identifies this scenario. Doubles as the golden file
	// name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema contains DDL statements executed before tracking starts.
	Schema []string `yaml:"schema"`

	// Seed contains writes applied before tracking starts. They shape the
	// initial snapshot but produce no trace events.
	Seed []string `yaml:"seed,omitempty"`

	// Request describes the tracked query.
	Request RequestDef `yaml:"request"`

	// Steps are the writes applied while tracking, in order.
	Steps []Step `yaml:"steps"`
}

// RequestDef is the YAML form of a tracked request.
type RequestDef struct {
	// Query is the SQL text. Its ORDER BY defines the display order.
	Query string `yaml:"query"`

	// Args are the query parameters.
	Args []any `yaml:"args,omitempty"`

	// KeyColumn names the identity column.
	KeyColumn string `yaml:"key_column"`

	// TrackedColumns restricts content equality to the named columns.
	// Empty means all columns count.
	TrackedColumns []string `yaml:"tracked_columns,omitempty"`

	// Aliases remaps column names: exposed name -> underlying column.
	Aliases map[string]string `yaml:"aliases,omitempty"`
}

// Step is one write applied while the tracker is live.
type Step struct {
	// Write is the SQL statement to execute.
	Write string `yaml:"write"`

	// Args are the statement parameters.
	Args []any `yaml:"args,omitempty"`

	// Expect specifies the expected observation. If nil, the step must
	// produce a change cycle but its content is validated only by the
	// golden trace.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies expected observation behavior for a step.
type ExpectClause struct {
	// Silent means the write must not produce a notification cycle.
	Silent bool `yaml:"silent,omitempty"`

	// Names lists the expected display order after the cycle, rendered
	// through the named column. Subset-free: the full order must match.
	Names []string `yaml:"names,omitempty"`

	// NameColumn is the column Names is read from. Defaults to "name".
	NameColumn string `yaml:"name_column,omitempty"`

	// Ops lists the expected edit-script op kinds in emission order
	// (e.g., "delete", "insert", "move", "update").
	Ops []string `yaml:"ops,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected to catch typos like "step:" vs "steps:".
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario YAML: %w", err)
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
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Schema) == 0 {
		return fmt.Errorf("schema list is required and must be non-empty")
	}
	if s.Request.Query == "" {
		return fmt.Errorf("request.query is required")
	}
	if s.Request.KeyColumn == "" {
		return fmt.Errorf("request.key_column is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Write == "" {
			return fmt.Errorf("steps[%d]: write is required", i)
		}
		if step.Expect != nil && step.Expect.Silent &&
			(len(step.Expect.Names) > 0 || len(step.Expect.Ops) > 0) {
			return fmt.Errorf("steps[%d].expect: silent excludes names and ops", i)
		}
	}
	return nil
}
