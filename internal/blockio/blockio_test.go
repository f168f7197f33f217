package blockio

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/sliceset/codec"
	"github.com/hupe1980/sliceset/internal/fs"
)

func encodeAll(t *testing.T, c codec.Codec, items []int) [][]byte {
	t.Helper()
	frames := make([][]byte, len(items))
	for i, v := range items {
		b, err := c.Marshal(v)
		require.NoError(t, err)
		frames[i] = b
	}
	return frames
}

func TestWriteRead(t *testing.T) {
	dir := t.TempDir()
	c := codec.Default

	want := []int{3, 1, 4, 1, 5, 9, 2, 6}
	path := Path(dir, 0)
	require.NoError(t, Write(fs.Default, path, encodeAll(t, c, want)))

	got, err := Read[int](fs.Default, c, path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// No temp file left behind.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestWriteReplacesWholeFile(t *testing.T) {
	dir := t.TempDir()
	c := codec.Default
	path := Path(dir, 7)

	require.NoError(t, Write(fs.Default, path, encodeAll(t, c, []int{1, 2, 3})))
	require.NoError(t, Write(fs.Default, path, encodeAll(t, c, []int{9})))

	got, err := Read[int](fs.Default, c, path)
	require.NoError(t, err)
	assert.Equal(t, []int{9}, got)
}

func TestReadMissing(t *testing.T) {
	_, err := Read[int](fs.Default, codec.Default, Path(t.TempDir(), 0))
	assert.True(t, os.IsNotExist(err))
}

func TestReadCorrupt(t *testing.T) {
	dir := t.TempDir()
	c := codec.Default
	path := Path(dir, 0)
	require.NoError(t, Write(fs.Default, path, encodeAll(t, c, []int{10, 20, 30})))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	t.Run("flipped payload byte", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		bad[len(bad)/2] ^= 0xff
		p := filepath.Join(dir, "bad1.slice")
		require.NoError(t, os.WriteFile(p, bad, 0o644))

		_, err := Read[int](fs.Default, c, p)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("truncated", func(t *testing.T) {
		p := filepath.Join(dir, "bad2.slice")
		require.NoError(t, os.WriteFile(p, raw[:len(raw)-3], 0o644))

		_, err := Read[int](fs.Default, c, p)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("bad magic", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		bad[0] = 0
		p := filepath.Join(dir, "bad3.slice")
		require.NoError(t, os.WriteFile(p, bad, 0o644))

		_, err := Read[int](fs.Default, c, p)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("huge declared count", func(t *testing.T) {
		// A checksum-valid header claiming more items than the payload could
		// hold must be rejected before anything is allocated for it.
		var buf bytes.Buffer
		binary.Write(&buf, binary.LittleEndian, uint32(MagicNumber))
		binary.Write(&buf, binary.LittleEndian, uint32(Version))
		binary.Write(&buf, binary.LittleEndian, uint64(1)<<40)
		sum := crc32.Checksum(buf.Bytes(), castagnoli)
		binary.Write(&buf, binary.LittleEndian, sum)

		p := filepath.Join(dir, "bad5.slice")
		require.NoError(t, os.WriteFile(p, buf.Bytes(), 0o644))

		_, err := Read[int](fs.Default, c, p)
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("empty file", func(t *testing.T) {
		p := filepath.Join(dir, "bad4.slice")
		require.NoError(t, os.WriteFile(p, nil, 0o644))

		_, err := Read[int](fs.Default, c, p)
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestWriteTornLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	c := codec.Default
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("0.slice", fs.Fault{FailAfterBytes: 10})

	path := Path(dir, 0)
	err := Write(ffs, path, encodeAll(t, c, []int{1, 2, 3, 4, 5}))
	require.ErrorIs(t, err, fs.ErrInjected)

	// Neither the final file nor the temp file may exist afterwards.
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestWriteRenameFailure(t *testing.T) {
	dir := t.TempDir()
	c := codec.Default
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("3.slice", fs.Fault{FailRename: true})

	err := Write(ffs, Path(dir, 3), encodeAll(t, c, []int{1}))
	require.ErrorIs(t, err, fs.ErrInjected)

	_, err = os.Stat(Path(dir, 3))
	assert.True(t, os.IsNotExist(err))
}

func TestFrameSize(t *testing.T) {
	assert.Equal(t, 1, FrameSize(0))
	assert.Equal(t, 6, FrameSize(5))
	assert.Equal(t, 130, FrameSize(128)) // two-byte uvarint
}

func TestReadThroughNonOSFile(t *testing.T) {
	// A matched rule makes FaultyFS wrap the file, so the mmap fast path is
	// unavailable and the reader must fall back to plain reads.
	dir := t.TempDir()
	c := codec.Default
	path := Path(dir, 0)
	require.NoError(t, Write(fs.Default, path, encodeAll(t, c, []int{5, 6})))

	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("0.slice", fs.Fault{})

	got, err := Read[int](ffs, c, path)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 6}, got)
}
