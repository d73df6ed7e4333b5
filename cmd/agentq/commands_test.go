package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPrompt(t *testing.T) {
	got, err := readPrompt([]string{"fix", "the", "tests"}, "")
	require.NoError(t, err)
	assert.Equal(t, "fix the tests", got)

	path := filepath.Join(t.TempDir(), "prompt.md")
	require.NoError(t, os.WriteFile(path, []byte("\n  from a file\n"), 0644))
	got, err = readPrompt(nil, path)
	require.NoError(t, err)
	assert.Equal(t, "from a file", got)

	_, err = readPrompt([]string{"  "}, "")
	assert.EqualError(t, err, "prompt is required")

	_, err = readPrompt(nil, filepath.Join(t.TempDir(), "missing.md"))
	assert.Error(t, err)
}

func TestClientCommandsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, cmd := range clientCommands() {
		name := cmd.Name()
		assert.False(t, seen[name], "duplicate command %s", name)
		seen[name] = true
	}
	for _, name := range []string{"list", "show", "add", "remove", "cancel", "retry", "priority", "reorder", "output", "status", "start", "pause", "concurrency", "clear"} {
		assert.True(t, seen[name], "missing command %s", name)
	}
}
