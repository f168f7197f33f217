package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "subdir")
	assert.NoError(t, lfs.MkdirAll(dir, 0o755))

	fpath := filepath.Join(dir, "test.dat")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	_, err = f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.NoError(t, f.Sync())

	info, err := f.Stat()
	assert.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
	assert.NoError(t, f.Close())

	newPath := filepath.Join(dir, "renamed.dat")
	assert.NoError(t, lfs.Rename(fpath, newPath))

	info2, err := lfs.Stat(newPath)
	assert.NoError(t, err)
	assert.Equal(t, int64(5), info2.Size())

	assert.NoError(t, lfs.Remove(newPath))
	_, err = lfs.Stat(newPath)
	assert.True(t, os.IsNotExist(err))
}

func TestFaultyFS_FailAfterBytes(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("torn", Fault{FailAfterBytes: 5})

	fpath := filepath.Join(tmp, "torn.dat")
	f, err := ffs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	n, err := f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = f.Write([]byte("!"))
	assert.ErrorIs(t, err, ErrInjected)
	assert.Equal(t, 0, n)
	require.NoError(t, f.Close())

	// The partial content must still be on disk: callers are expected to
	// write to a temp name and rename, so the torn file never becomes live.
	info, err := os.Stat(fpath)
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
}

func TestFaultyFS_FailOpenAndRename(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	ffs.AddRule("locked", Fault{FailOpen: true})
	ffs.AddRule("final", Fault{FailRename: true})

	_, err := ffs.OpenFile(filepath.Join(tmp, "locked.dat"), os.O_CREATE|os.O_WRONLY, 0o644)
	assert.ErrorIs(t, err, ErrInjected)

	src := filepath.Join(tmp, "tmp.dat")
	f, err := ffs.OpenFile(src, os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	err = ffs.Rename(src, filepath.Join(tmp, "final.dat"))
	assert.ErrorIs(t, err, ErrInjected)
}

func TestFaultyFS_Counters(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)

	// Read-only opens are not counted as writes.
	fpath := filepath.Join(tmp, "counted.dat")
	f, err := ffs.OpenFile(fpath, os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f, err = ffs.OpenFile(fpath, os.O_RDONLY, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, ffs.Rename(fpath, fpath+".new"))

	assert.Equal(t, 1, ffs.Writes())
	assert.Equal(t, 1, ffs.Renames())
}
