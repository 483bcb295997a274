package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `
name: cli_insert
description: inserting a row produces one change cycle
schema:
  - CREATE TABLE players (id INTEGER PRIMARY KEY, name TEXT NOT NULL)
request:
  query: SELECT id, name FROM players ORDER BY id
  key_column: id
steps:
  - write: INSERT INTO players (id, name) VALUES (1, 'Arthur')
    expect:
      names: [Arthur]
      ops: [insert]
`

const failingScenario = `
name: cli_wrong_order
description: expected order does not match
schema:
  - CREATE TABLE players (id INTEGER PRIMARY KEY, name TEXT NOT NULL)
request:
  query: SELECT id, name FROM players ORDER BY id
  key_column: id
steps:
  - write: INSERT INTO players (id, name) VALUES (1, 'Arthur')
    expect:
      names: [Barbara]
`

func writeScenarioDir(t *testing.T, scenarios map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range scenarios {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestScenarioCommand_Pass(t *testing.T) {
	dir := writeScenarioDir(t, map[string]string{"insert.yaml": passingScenario})

	out, err := executeCommand(t, "scenario", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "PASS  cli_insert")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestScenarioCommand_Fail(t *testing.T) {
	dir := writeScenarioDir(t, map[string]string{
		"insert.yaml": passingScenario,
		"wrong.yaml":  failingScenario,
	})

	out, err := executeCommand(t, "scenario", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "FAIL  cli_wrong_order")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
}

func TestScenarioCommand_Filter(t *testing.T) {
	dir := writeScenarioDir(t, map[string]string{
		"insert.yaml": passingScenario,
		"wrong.yaml":  failingScenario,
	})

	out, err := executeCommand(t, "scenario", dir, "--filter", "insert*")
	require.NoError(t, err, "the failing scenario is filtered out")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestScenarioCommand_MissingDir(t *testing.T) {
	_, err := executeCommand(t, "scenario", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestScenarioCommand_EmptyDir(t *testing.T) {
	_, err := executeCommand(t, "scenario", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no scenario files")
}

func TestScenarioCommand_MalformedScenario(t *testing.T) {
	dir := writeScenarioDir(t, map[string]string{"bad.yaml": "name: only-a-name\n"})

	_, err := executeCommand(t, "scenario", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
