package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/clausegraph/limitation"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	// Point env loading at a file that does not exist so a developer's .env
	// never leaks into the run.
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "none.env")))
	err := cmd.Execute()
	return out.String(), err
}

func TestClassifyCommand(t *testing.T) {
	out, err := execute(t, "classify", "Contracts", "without", "audit", "rights")
	require.NoError(t, err)

	var v limitation.Verdict
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, limitation.NegativeSearch, v.Type)
	assert.False(t, v.CanHandle)

	_, err = execute(t, "classify")
	assert.Error(t, err)
}

func TestQueriesCommand(t *testing.T) {
	out, err := execute(t, "queries")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.True(t, strings.HasPrefix(lines[1], "negative-search"))
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "clausegraph version dev\n", out)
}
