package atomicfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCreatesAndReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "CHANGELOG.md")

	require.NoError(t, Write(path, []byte("first"), 0o644))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))

	require.NoError(t, Write(path, []byte("second"), 0o644))
	got, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestWriteKeepsExistingPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "version.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	require.NoError(t, Write(path, []byte(`{"version":"1.0.0"}`), 0o644))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSnapshotRestore(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "existing.txt")
	missing := filepath.Join(dir, "missing.txt")
	require.NoError(t, os.WriteFile(existing, []byte("original"), 0o644))

	before, err := Take(existing)
	require.NoError(t, err)
	absent, err := Take(missing)
	require.NoError(t, err)
	assert.True(t, before.Exists)
	assert.False(t, absent.Exists)

	require.NoError(t, Write(existing, []byte("changed"), 0o644))
	require.NoError(t, Write(missing, []byte("created"), 0o644))

	require.NoError(t, before.Restore())
	require.NoError(t, absent.Restore())

	got, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))
	_, err = os.Stat(missing)
	assert.True(t, os.IsNotExist(err))
}
