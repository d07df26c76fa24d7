package defaults

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDataDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FOCUSRELAY_DATA_DIR", dir)

	got, err := DataDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	profile, err := ChromeProfileDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "chrome-profile"), profile)
}

func TestEnsureDataDirSeedsConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	t.Setenv("FOCUSRELAY_DATA_DIR", dir)

	_, ok := UserConfigPath()
	assert.False(t, ok)

	got, err := EnsureDataDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	path, ok := UserConfigPath()
	require.True(t, ok)

	want, err := GetDefault(ConfigFile)
	require.NoError(t, err)
	have, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, have)
}

func TestEnsureDataDirKeepsUserEdits(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FOCUSRELAY_DATA_DIR", dir)

	path := filepath.Join(dir, ConfigFile)
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))

	_, err := EnsureDataDir()
	require.NoError(t, err)

	have, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "log:\n  level: debug\n", string(have))
}
