package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["analyze"])
	assert.True(t, names["learn"])
	assert.True(t, names["rules"])
}

func TestLearnWatchFlag(t *testing.T) {
	f := learnCmd.Flags().Lookup("watch")
	require.NotNil(t, f)
	assert.Equal(t, "false", f.DefValue, "one-shot pass unless asked to watch")
}

func TestRulesValidateCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - id: gl-sg
    clause_type: governing_law
    perspective: mutual
    tier: preferred
    keywords: [governed by]
    base_confidence: 0.9
`), 0o600))

	prev := rulesPath
	rulesPath = path
	defer func() { rulesPath = prev }()

	var out bytes.Buffer
	rulesValidateCmd.SetOut(&out)
	require.NoError(t, runRulesValidate(rulesValidateCmd, nil))
	assert.Contains(t, out.String(), "governing_law/mutual")
	assert.Contains(t, out.String(), "ok: 1 rules")
}

func TestRulesValidateRejectsCycle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - id: a
    clause_type: governing_law
    perspective: mutual
    tier: preferred
    keywords: [x]
    base_confidence: 0.9
    parent_id: b
  - id: b
    clause_type: governing_law
    perspective: mutual
    tier: preferred
    keywords: [y]
    base_confidence: 0.8
    parent_id: a
`), 0o600))

	prev := rulesPath
	rulesPath = path
	defer func() { rulesPath = prev }()

	rulesValidateCmd.SetOut(&bytes.Buffer{})
	assert.Error(t, runRulesValidate(rulesValidateCmd, nil))
}
