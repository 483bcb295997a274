package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScriptFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "writes.sql")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestWatchCommand_WriteScript(t *testing.T) {
	db := createTestDatabase(t, "INSERT INTO players (id, name) VALUES (1, 'Arthur')")
	req := writeRequestFile(t, playersRequest)
	script := writeScriptFile(t, `
INSERT INTO players (id, name) VALUES (2, 'Barbara');
UPDATE players SET name = 'Craig' WHERE id = 1;
`)

	out, err := executeCommand(t, "watch", "--db", db, "--writes", script, req)
	require.NoError(t, err)
	assert.Contains(t, out, "insert at 1")
	assert.Contains(t, out, "update at 0")
}

func TestWatchCommand_FailedWrite(t *testing.T) {
	db := createTestDatabase(t)
	req := writeRequestFile(t, playersRequest)
	script := writeScriptFile(t, "INSERT INTO missing (id) VALUES (1);")

	_, err := executeCommand(t, "watch", "--db", db, "--writes", script, req)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestWatchCommand_MissingDatabase(t *testing.T) {
	req := writeRequestFile(t, playersRequest)

	_, err := executeCommand(t, "watch", "--db", "/nonexistent/x.db", req)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLoadWriteScript(t *testing.T) {
	path := writeScriptFile(t, `
-- seed two rows
INSERT INTO players (id, name) VALUES (1, 'Arthur');

INSERT INTO players (id, name) VALUES (2, 'Barbara');
`)
	stmts, err := loadWriteScript(path)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "Arthur")

	empty := writeScriptFile(t, ";;\n")
	_, err = loadWriteScript(empty)
	require.Error(t, err)
}
