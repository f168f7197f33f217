package sliceset

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hupe1980/sliceset/internal/fs"
)

// ManifestFileName is the name of the layout manifest inside a dataset directory.
const ManifestFileName = "config.dat"

const manifestSize = 32 // four little-endian uint64 fields

// manifest is the persisted block layout of one dataset directory. It is
// written once per layout and never patched: a build against a different
// length discards it and starts over.
type manifest struct {
	blockMemorySize uint64 // byte budget that sized the first block
	blockCount      uint64 // number of slice files expected on disk
	blockSize       uint64 // items per block, except a trailing remainder block
	length          uint64 // total item count
}

// layout derives the block counts that follow from length and blockSize:
// the number of full blocks after block 0 and the size of the optional
// trailing remainder block.
func layout(length, blockSize uint64) (remaining, small uint64) {
	return (length - blockSize) / blockSize, (length - blockSize) % blockSize
}

func (m manifest) validate() error {
	if m.length == 0 || m.blockSize == 0 || m.blockMemorySize == 0 {
		return fmt.Errorf("%w: zero field in %+v", ErrCorruptManifest, m)
	}
	if m.blockSize > m.length {
		return fmt.Errorf("%w: block size %d exceeds length %d", ErrCorruptManifest, m.blockSize, m.length)
	}
	remaining, small := layout(m.length, m.blockSize)
	want := remaining + 1
	if small > 0 {
		want++
	}
	if m.blockCount != want {
		return fmt.Errorf("%w: block count %d, layout requires %d", ErrCorruptManifest, m.blockCount, want)
	}
	return nil
}

func (m manifest) encode() []byte {
	buf := make([]byte, manifestSize)
	binary.LittleEndian.PutUint64(buf[0:], m.blockMemorySize)
	binary.LittleEndian.PutUint64(buf[8:], m.blockCount)
	binary.LittleEndian.PutUint64(buf[16:], m.blockSize)
	binary.LittleEndian.PutUint64(buf[24:], m.length)
	return buf
}

func decodeManifest(buf []byte) (manifest, error) {
	if len(buf) != manifestSize {
		return manifest{}, fmt.Errorf("%w: %d bytes, want %d", ErrCorruptManifest, len(buf), manifestSize)
	}
	m := manifest{
		blockMemorySize: binary.LittleEndian.Uint64(buf[0:]),
		blockCount:      binary.LittleEndian.Uint64(buf[8:]),
		blockSize:       binary.LittleEndian.Uint64(buf[16:]),
		length:          binary.LittleEndian.Uint64(buf[24:]),
	}
	return m, m.validate()
}

// loadManifest reads the manifest of a dataset directory.
// A missing file surfaces as os.ErrNotExist, undecodable or layout-inconsistent
// content as ErrCorruptManifest.
func loadManifest(fsys fs.FileSystem, dir string) (manifest, error) {
	f, err := fsys.OpenFile(filepath.Join(dir, ManifestFileName), os.O_RDONLY, 0)
	if err != nil {
		return manifest{}, err
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return manifest{}, err
	}
	return decodeManifest(buf)
}

// saveManifest atomically writes the manifest of a dataset directory.
func saveManifest(fsys fs.FileSystem, dir string, m manifest) error {
	path := filepath.Join(dir, ManifestFileName)
	tmpPath := path + ".tmp"

	f, err := fsys.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(m.encode()); err != nil {
		f.Close()
		fsys.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		fsys.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		fsys.Remove(tmpPath)
		return err
	}

	if err := fsys.Rename(tmpPath, path); err != nil {
		fsys.Remove(tmpPath)
		return err
	}
	return nil
}
