package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storybook/internal/config"
)

func TestOverridesOnlyIncludeChangedFlags(t *testing.T) {
	cmd := newRootCommand()
	require.NoError(t, cmd.ParseFlags([]string{"--executor", " replay ", "--replay-file", "demo.sse"}))

	got := overridesFromFlags(cmd.Flags())
	assert.Equal(t, config.Overrides{
		"executor.kind":        "replay",
		"executor.replay_file": "demo.sse",
	}, got)
}

func TestOverridesEmptyWithoutFlags(t *testing.T) {
	cmd := newRootCommand()
	require.NoError(t, cmd.ParseFlags(nil))
	assert.Empty(t, overridesFromFlags(cmd.Flags()))
}

func TestAppVersionPrefersBuildFlag(t *testing.T) {
	old := version
	t.Cleanup(func() { version = old })

	version = "v1.2.3"
	assert.Equal(t, "v1.2.3", appVersion())
}
