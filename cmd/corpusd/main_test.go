// cmd/corpusd/main_test.go
package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["smoke"])
	assert.True(t, names["version"])
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"--help"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "corpusd")
}

func TestSmokeRunsEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("smoke sequence spins up a local server")
	}
	require.NoError(t, runSmoke(smokeCmd, nil))
}
