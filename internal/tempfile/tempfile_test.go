package tempfile_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/lunabot/internal/tempfile"
)

func newRegistry(t *testing.T) *tempfile.Registry {
	t.Helper()
	reg, err := tempfile.NewRegistry(filepath.Join(t.TempDir(), "tmp"), nil)
	require.NoError(t, err)
	return reg
}

func TestRegistry_WriteAndRelease(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t)
	res, err := reg.Write("image-*.png", []byte("png"))
	require.NoError(t, err)

	assert.Equal(t, reg.Dir(), filepath.Dir(res.Path()))
	data, err := os.ReadFile(res.Path())
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
	assert.Equal(t, 1, reg.Live())

	require.NoError(t, res.Release())
	assert.NoFileExists(t, res.Path())
	assert.Equal(t, 0, reg.Live())

	// Second release is a no-op.
	require.NoError(t, res.Release())
}

func TestRegistry_ReleaseToleratesMissingFile(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t)
	res := reg.Adopt(filepath.Join(reg.Dir(), "never-created.opus"))

	require.NoError(t, res.Release())
	assert.Equal(t, 0, reg.Live())
}

func TestRegistry_SweepSkipsLiveAndFresh(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t)
	old := time.Now().Add(-2 * time.Hour)

	orphan := filepath.Join(reg.Dir(), "3f1c2a9e-7b4d-4e0a-9c55-2d8e6f1a0b7c.opus")
	require.NoError(t, os.WriteFile(orphan, []byte("x"), 0o600))
	require.NoError(t, os.Chtimes(orphan, old, old))

	fresh := filepath.Join(reg.Dir(), "image-fresh.png")
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o600))

	liveRes, err := reg.Write(tempfile.ImagePrefix+"*.png", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, os.Chtimes(liveRes.Path(), old, old))

	removed, err := reg.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, orphan)
	assert.FileExists(t, fresh)
	assert.FileExists(t, liveRes.Path())

	require.NoError(t, liveRes.Release())
	assert.NoFileExists(t, liveRes.Path())
}

func TestRegistry_SweepKeepsForeignFiles(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t)
	old := time.Now().Add(-2 * time.Hour)

	write := func(name string) string {
		path := filepath.Join(reg.Dir(), name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		require.NoError(t, os.Chtimes(path, old, old))
		return path
	}

	ours := []string{
		write("image-123.png"),
		write("3f1c2a9e-7b4d-4e0a-9c55-2d8e6f1a0b7c.opus"),
		write("3f1c2a9e-7b4d-4e0a-9c55-2d8e6f1a0b7c.webm.part"),
	}
	foreign := []string{
		write("notes.txt"),
		write("3f1c2a9e.opus"),
		write("not-a-uuid-at-all-but-thirty-six-chr.opus"),
		write(".image-hidden"),
	}

	removed, err := reg.Sweep(0)
	require.NoError(t, err)
	assert.Equal(t, len(ours), removed)
	for _, path := range ours {
		assert.NoFileExists(t, path)
	}
	for _, path := range foreign {
		assert.FileExists(t, path)
	}
}
