// Package blockio reads and writes the numbered slice files that make up a
// dataset. Every call is a whole-file operation: writes go to a temp name and
// are renamed into place, reads validate a trailing checksum before any item
// is decoded, so a torn or corrupt file can never be mistaken for a block.
package blockio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"

	"github.com/hupe1980/sliceset/codec"
	"github.com/hupe1980/sliceset/internal/fs"
)

const (
	// MagicNumber identifies a slice file ("SLC1").
	MagicNumber = 0x534C4331
	// Version is the current slice file format version.
	Version = 1

	headerSize  = 4 + 4 + 8 // magic + version + item count
	trailerSize = 4         // crc32c
)

// ErrCorrupt is returned when a slice file does not decode to the expected
// shape. The root package re-exports it as ErrCorruptBlock.
var ErrCorrupt = errors.New("sliceset: corrupt block")

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Path returns the location of the index-th slice file of a dataset directory.
func Path(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("%d.slice", index))
}

// FrameSize returns the on-disk size of one encoded item of n bytes.
func FrameSize(n int) int {
	var tmp [binary.MaxVarintLen64]byte
	return binary.PutUvarint(tmp[:], uint64(n)) + n
}

// Write persists the encoded items as one slice file, replacing any previous
// file at path. The write is atomic: a crash leaves either the old file or no
// file, never a partial one.
func Write(fsys fs.FileSystem, path string, frames [][]byte) error {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	binary.Write(&buf, binary.LittleEndian, uint32(MagicNumber))
	binary.Write(&buf, binary.LittleEndian, uint32(Version))
	binary.Write(&buf, binary.LittleEndian, uint64(len(frames)))

	for _, frame := range frames {
		n := binary.PutUvarint(tmp[:], uint64(len(frame)))
		buf.Write(tmp[:n])
		buf.Write(frame)
	}

	sum := crc32.Checksum(buf.Bytes(), castagnoli)
	binary.Write(&buf, binary.LittleEndian, sum)

	tmpPath := path + ".tmp"
	f, err := fsys.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
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

// Read loads and decodes all items of one slice file.
// The returned slice owns its items; the file is closed before returning.
func Read[T any](fsys fs.FileSystem, c codec.Codec, path string) ([]T, error) {
	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Local files are mapped instead of read: decoding copies the bytes it
	// needs anyway, so the raw file never has to be buffered twice.
	var data []byte
	if osf, ok := f.(*os.File); ok {
		info, err := osf.Stat()
		if err != nil {
			return nil, err
		}
		// mmap rejects empty files; let decode report them as truncated.
		if info.Size() > 0 {
			m, err := mmap.Map(osf, mmap.RDONLY, 0)
			if err != nil {
				return nil, err
			}
			defer m.Unmap()
			data = m
		}
	} else {
		if data, err = io.ReadAll(f); err != nil {
			return nil, err
		}
	}

	return decode[T](c, path, data)
}

func decode[T any](c codec.Codec, path string, data []byte) ([]T, error) {
	if len(data) < headerSize+trailerSize {
		return nil, fmt.Errorf("%w: %s: truncated (%d bytes)", ErrCorrupt, path, len(data))
	}
	if magic := binary.LittleEndian.Uint32(data[0:]); magic != MagicNumber {
		return nil, fmt.Errorf("%w: %s: bad magic %#x", ErrCorrupt, path, magic)
	}
	if version := binary.LittleEndian.Uint32(data[4:]); version != Version {
		return nil, fmt.Errorf("%w: %s: unsupported version %d", ErrCorrupt, path, version)
	}

	body, trailer := data[:len(data)-trailerSize], data[len(data)-trailerSize:]
	if sum := crc32.Checksum(body, castagnoli); sum != binary.LittleEndian.Uint32(trailer) {
		return nil, fmt.Errorf("%w: %s: checksum mismatch", ErrCorrupt, path)
	}

	count := binary.LittleEndian.Uint64(data[8:])
	// Every frame takes at least one byte, so a count beyond the payload size
	// is corrupt no matter what the frames contain. Checking before the
	// allocation keeps a hostile header from exhausting memory.
	if count > uint64(len(body)-headerSize) {
		return nil, fmt.Errorf("%w: %s: item count %d exceeds %d payload bytes", ErrCorrupt, path, count, len(body)-headerSize)
	}
	items := make([]T, count)
	pos := headerSize

	for i := range items {
		size, n := binary.Uvarint(body[pos:])
		if n <= 0 || pos+n+int(size) > len(body) {
			return nil, fmt.Errorf("%w: %s: bad frame %d", ErrCorrupt, path, i)
		}
		pos += n
		if err := c.Unmarshal(body[pos:pos+int(size)], &items[i]); err != nil {
			return nil, fmt.Errorf("%w: %s: item %d: %v", ErrCorrupt, path, i, err)
		}
		pos += int(size)
	}
	if pos != len(body) {
		return nil, fmt.Errorf("%w: %s: %d trailing bytes", ErrCorrupt, path, len(body)-pos)
	}
	return items, nil
}
