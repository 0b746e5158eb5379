package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandPassesConfigFlag(t *testing.T) {
	var got string
	cmd := newRootCmd(func(configPath string) error {
		got = configPath
		return nil
	})
	cmd.SetArgs([]string{"--config", "/etc/scheduling/config.yml"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "/etc/scheduling/config.yml", got)
}

func TestRunServerFailsOnMissingConfig(t *testing.T) {
	cmd := newRootCmd(runServer)
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yml")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
