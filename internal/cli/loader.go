package cli

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/leo-lp/rowwatch/internal/diff"
	"github.com/leo-lp/rowwatch/internal/tracker"
)

// RequestFile is the YAML form of a tracked request, as loaded from disk.
type RequestFile struct {
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

	// Tables overrides the dependency set derived from the query text.
	Tables []string `yaml:"tables,omitempty"`
}

// LoadRequest reads and parses a request YAML file. Unknown fields are
// rejected to catch typos.
func LoadRequest(path string) (*RequestFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read request file: %w", err)
	}

	var rf RequestFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&rf); err != nil {
		return nil, fmt.Errorf("parse request YAML: %w", err)
	}

	if rf.Query == "" {
		return nil, fmt.Errorf("invalid request: query is required")
	}
	if rf.KeyColumn == "" {
		return nil, fmt.Errorf("invalid request: key_column is required")
	}
	return &rf, nil
}

// Request builds the tracker request described by the file.
func (rf *RequestFile) Request() *tracker.Request[tracker.Row] {
	req := tracker.NewRowRequest(rf.Query, rf.Args...)
	req.Aliases = rf.Aliases
	if len(rf.Tables) > 0 {
		req.Tables = rf.Tables
	}
	return req
}

// Comparator builds the record comparator described by the file.
func (rf *RequestFile) Comparator() diff.Comparator[tracker.Row, string] {
	return diff.Comparator[tracker.Row, string]{
		Key:   tracker.RowKey(rf.KeyColumn),
		Equal: tracker.EqualColumns(rf.TrackedColumns...),
	}
}
