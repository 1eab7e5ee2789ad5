package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	b, err := New(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	entries, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveThenLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "snapshots.json")
	b, err := New(path)
	require.NoError(t, err)

	want := map[string]string{"http://e/x": "<h1>hi</h1>", "http://e/y": ""}
	require.NoError(t, b.Save(context.Background(), want))

	got, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".snapshots.json.*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temp files are cleaned up")
}

func TestSaveReplacesWholeFile(t *testing.T) {
	t.Parallel()

	b, err := New(filepath.Join(t.TempDir(), "s.json"))
	require.NoError(t, err)
	require.NoError(t, b.Save(context.Background(), map[string]string{"http://a/": "a", "http://b/": "b"}))
	require.NoError(t, b.Save(context.Background(), map[string]string{"http://b/": "B"}))

	got, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"http://b/": "B"}, got)
}

func TestFailedSaveLeavesTargetUntouched(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// A non-empty directory in the target's place makes the final rename fail.
	target := filepath.Join(dir, "blocked")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "child"), 0o750))

	b, err := New(target)
	require.NoError(t, err)
	require.Error(t, b.Save(context.Background(), map[string]string{"x": "y"}))

	info, err := os.Stat(filepath.Join(target, "child"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	leftovers, err := filepath.Glob(filepath.Join(dir, ".blocked.*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "s.json")
	require.NoError(t, os.WriteFile(path, []byte(`["not","a","map"]`), 0o600))
	b, err := New(path)
	require.NoError(t, err)

	_, err = b.Load(context.Background())
	require.ErrorContains(t, err, "decode")
}

func TestNewRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := New("  ")
	require.Error(t, err)
}
