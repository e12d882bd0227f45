package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { configPath = "" })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestConfigValidateDefaults(t *testing.T) {
	out, err := runCLI(t, "config", "validate", "--config", "")
	require.NoError(t, err)
	assert.Contains(t, out, "config OK")
	assert.Contains(t, out, "email")
	assert.Contains(t, out, "activation")
}

func TestConfigValidateRejectsBadRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
platforms:
  email:
    batch_size: 100
    rate_limit: "lots"
`), 0o600))

	_, err := runCLI(t, "config", "validate", "--config", path)
	assert.Error(t, err)
}
