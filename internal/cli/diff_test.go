package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffCommand_Identical(t *testing.T) {
	dbA := createTestDatabase(t, "INSERT INTO players (id, name) VALUES (1, 'Arthur')")
	dbB := createTestDatabase(t, "INSERT INTO players (id, name) VALUES (1, 'Arthur')")
	req := writeRequestFile(t, playersRequest)

	out, err := executeCommand(t, "diff", "--db", dbA, "--against", dbB, req)
	require.NoError(t, err)
	assert.Contains(t, out, "identical")
}

func TestDiffCommand_Changed(t *testing.T) {
	dbA := createTestDatabase(t, "INSERT INTO players (id, name) VALUES (1, 'Arthur')")
	dbB := createTestDatabase(t,
		"INSERT INTO players (id, name) VALUES (1, 'Craig')",
		"INSERT INTO players (id, name) VALUES (2, 'Barbara')",
	)
	req := writeRequestFile(t, playersRequest)

	out, err := executeCommand(t, "diff", "--db", dbA, "--against", dbB, req)
	require.Error(t, err, "differing result sets exit non-zero")
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "insert at 1")
	assert.Contains(t, out, "update at 0")
}

func TestDiffCommand_JSON(t *testing.T) {
	dbA := createTestDatabase(t)
	dbB := createTestDatabase(t, "INSERT INTO players (id, name) VALUES (1, 'Arthur')")
	req := writeRequestFile(t, playersRequest)

	out, err := executeCommand(t, "--format", "json", "diff", "--db", dbA, "--against", dbB, req)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	data := resp.Data.(map[string]any)
	assert.Equal(t, true, data["changed"])
	ops := data["ops"].([]any)
	require.Len(t, ops, 1)
	assert.Equal(t, "insert", ops[0].(map[string]any)["op"])
}

func TestDiffCommand_MissingAgainst(t *testing.T) {
	dbA := createTestDatabase(t)
	req := writeRequestFile(t, playersRequest)

	_, err := executeCommand(t, "diff", "--db", dbA, req)
	require.Error(t, err, "--against is required")
}
