package sliceset

import (
	"errors"

	"github.com/hupe1980/sliceset/internal/blockio"
)

var (
	// ErrNotFound is returned by Dataset.Get for indices at or beyond Len.
	// It distinguishes "no such item" from a broken store: every other
	// failure is an I/O or corruption error.
	ErrNotFound = errors.New("sliceset: not found")

	// ErrCorruptManifest is returned when config.dat does not decode to a
	// consistent block layout.
	ErrCorruptManifest = errors.New("sliceset: corrupt manifest")

	// ErrInvalidArgument is returned by Build and Open for unusable
	// parameters (non-positive length or memory budget).
	ErrInvalidArgument = errors.New("sliceset: invalid argument")
)

// ErrCorruptBlock is returned when a slice file does not decode to the
// expected item sequence (bad magic, checksum mismatch, truncated frames).
var ErrCorruptBlock = blockio.ErrCorrupt

func isCorruptManifest(err error) bool { return errors.Is(err, ErrCorruptManifest) }
