package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnvIgnoresMissingDefault(t *testing.T) {
	t.Chdir(t.TempDir())
	assert.NoError(t, loadEnv(".env"))
	assert.NoError(t, loadEnv(""))
}

func TestLoadEnvRejectsMissingExplicitFile(t *testing.T) {
	assert.Error(t, loadEnv(filepath.Join(t.TempDir(), "prod.env")))
}

func TestLoadEnvKeepsExistingVariables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("ONCHAINTEL_TEST_FROM_FILE=file\nONCHAINTEL_TEST_PRESET=file\n"), 0o600))

	t.Setenv("ONCHAINTEL_TEST_PRESET", "shell")
	t.Cleanup(func() { _ = os.Unsetenv("ONCHAINTEL_TEST_FROM_FILE") })

	require.NoError(t, loadEnv(path))
	assert.Equal(t, "file", os.Getenv("ONCHAINTEL_TEST_FROM_FILE"))
	assert.Equal(t, "shell", os.Getenv("ONCHAINTEL_TEST_PRESET"))
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "rank", "rankings", "entity", "export", "warm", "sync", "migrate", "version", "simulate-ranking"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}
