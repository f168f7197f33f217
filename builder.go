package sliceset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/sliceset/codec"
	"github.com/hupe1980/sliceset/internal/blockio"
)

// Build materializes a dataset of length items under dir as a sequence of
// independently loadable slice files plus a manifest.
//
// The first block is sized by producing items until their encoded size
// reaches memoryBudget; the resulting item count becomes the dataset-wide
// block size. If dir already holds a manifest for the same length, the build
// resumes: blocks present on disk are kept and the generator is advanced past
// them via Skip, so an interrupted build completes by re-running the identical
// call. A manifest for a different length is discarded and the layout is
// derived from scratch.
//
// Any I/O or encode failure aborts the build. The directory of an aborted
// build is untrusted; retrying the identical build validates and completes it.
func Build[T any](ctx context.Context, length int, dir string, memoryBudget int, src Source[T], opts ...Option) error {
	if length <= 0 {
		return fmt.Errorf("%w: length %d", ErrInvalidArgument, length)
	}
	if memoryBudget <= 0 {
		return fmt.Errorf("%w: memory budget %d", ErrInvalidArgument, memoryBudget)
	}
	if src.gen == nil {
		return fmt.Errorf("%w: nil generator", ErrInvalidArgument)
	}

	o := applyOptions(opts)
	log := o.logger.WithDir(dir)

	if err := o.fsys.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	b := &builder[T]{options: o, log: log, dir: dir, length: length, src: src}
	return b.run(ctx, memoryBudget)
}

type builder[T any] struct {
	options
	log    *Logger
	dir    string
	length int
	src    Source[T]

	resumed bool
	done    int // items settled (written or skipped) so far
}

func (b *builder[T]) run(ctx context.Context, memoryBudget int) error {
	m, err := b.loadOrDiscardManifest()
	if err != nil {
		return err
	}

	if b.resumed {
		// Block 0 defined the layout in the original run; fast-forward past it.
		b.src.gen.Skip(int(m.blockSize))
		b.settle(int(m.blockSize))
	} else {
		if m, err = b.buildFirstBlock(memoryBudget); err != nil {
			return err
		}
	}

	blockSize := int(m.blockSize)
	remaining, small := layout(m.length, m.blockSize)

	// The remainder block is settled before the full blocks; its file index
	// is one past the last full block.
	if small > 0 {
		if err := b.buildRemainderBlock(int(remaining)+1, int(small)); err != nil {
			return err
		}
	}

	if err := b.pruneStale(int(m.blockCount)); err != nil {
		return err
	}

	for i := 1; i <= int(remaining); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.buildFullBlock(ctx, i, blockSize); err != nil {
			return err
		}
	}

	b.log.LogBuildDone(b.length, blockSize, int(m.blockCount), b.resumed)
	return nil
}

// loadOrDiscardManifest decides between resume and fresh build. A manifest for
// a matching length means resume; a manifest for a different length is deleted
// (its layout is stale, never patched); a missing or corrupt one is rebuilt.
func (b *builder[T]) loadOrDiscardManifest() (manifest, error) {
	m, err := loadManifest(b.fsys, b.dir)
	switch {
	case err == nil && m.length == uint64(b.length):
		b.resumed = true
		return m, nil
	case err == nil:
		if err := b.fsys.Remove(filepath.Join(b.dir, ManifestFileName)); err != nil {
			return manifest{}, err
		}
		return manifest{}, nil
	case os.IsNotExist(err) || isCorruptManifest(err):
		// Fresh build; a corrupt manifest is overwritten below.
		return manifest{}, nil
	default:
		return manifest{}, err
	}
}

// buildFirstBlock produces items until the staged encoded size reaches the
// memory budget (or the dataset ends), persists them as block 0 and derives
// the manifest from the resulting block size.
func (b *builder[T]) buildFirstBlock(memoryBudget int) (manifest, error) {
	var frames [][]byte
	staged := 0

	for i := 0; i < b.length; i++ {
		frame, err := encodeItem(b.codec, b.src.gen.Generate())
		if err != nil {
			return manifest{}, err
		}
		frames = append(frames, frame)
		staged += blockio.FrameSize(len(frame))
		if staged >= memoryBudget {
			break
		}
	}

	blockSize := len(frames)
	if err := blockio.Write(b.fsys, blockio.Path(b.dir, 0), frames); err != nil {
		return manifest{}, err
	}
	b.log.LogBlockWritten(0, blockSize)
	b.settle(blockSize)

	remaining, small := layout(uint64(b.length), uint64(blockSize))
	blockCount := remaining + 1
	if small > 0 {
		blockCount++
	}

	m := manifest{
		blockMemorySize: uint64(memoryBudget),
		blockCount:      blockCount,
		blockSize:       uint64(blockSize),
		length:          uint64(b.length),
	}
	return m, saveManifest(b.fsys, b.dir, m)
}

// buildRemainderBlock settles the trailing small block. On resume an existing
// file is kept, but the generator still advances so later blocks see correct
// sequential state.
func (b *builder[T]) buildRemainderBlock(index, small int) error {
	path := blockio.Path(b.dir, index)
	if b.resumed {
		exists, err := b.exists(path)
		if err != nil {
			return err
		}
		if exists {
			b.src.gen.Skip(small)
			b.log.LogBlockSkipped(index)
			b.settle(small)
			return nil
		}
	}

	frames, err := encodeItems(b.codec, b.src.gen, small)
	if err != nil {
		return err
	}
	if err := blockio.Write(b.fsys, path, frames); err != nil {
		return err
	}
	b.log.LogBlockWritten(index, small)
	b.settle(small)
	return nil
}

func (b *builder[T]) buildFullBlock(ctx context.Context, index, blockSize int) error {
	path := blockio.Path(b.dir, index)
	if b.resumed {
		exists, err := b.exists(path)
		if err != nil {
			return err
		}
		if exists {
			b.src.gen.Skip(blockSize)
			b.log.LogBlockSkipped(index)
			b.settle(blockSize)
			return nil
		}
	}

	var frames [][]byte
	var err error
	if b.src.parallel {
		frames, err = encodeItemsParallel(ctx, b.codec, b.src.gen, blockSize, b.parallelism)
	} else {
		frames, err = encodeItems(b.codec, b.src.gen, blockSize)
	}
	if err != nil {
		return err
	}

	if err := blockio.Write(b.fsys, path, frames); err != nil {
		return err
	}
	b.log.LogBlockWritten(index, blockSize)
	b.settle(blockSize)
	return nil
}

// pruneStale removes block files at or beyond the final block count, left by
// a previous run against a larger length.
func (b *builder[T]) pruneStale(blockCount int) error {
	for i := blockCount; ; i++ {
		path := blockio.Path(b.dir, i)
		exists, err := b.exists(path)
		if err != nil {
			return err
		}
		if !exists {
			return nil
		}
		if err := b.fsys.Remove(path); err != nil {
			return err
		}
		b.log.LogStalePruned(i)
	}
}

func (b *builder[T]) settle(items int) {
	b.done += items
	if b.progress != nil {
		b.progress(b.done, b.length)
	}
}

func (b *builder[T]) exists(path string) (bool, error) {
	_, err := b.fsys.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func encodeItem(c codec.Codec, item any) ([]byte, error) {
	frame, err := c.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("sliceset: encode item: %w", err)
	}
	return frame, nil
}

// encodeItems produces and encodes count items strictly in order.
func encodeItems[T any](c codec.Codec, gen Generator[T], count int) ([][]byte, error) {
	frames := make([][]byte, count)
	for i := range frames {
		frame, err := encodeItem(c, gen.Generate())
		if err != nil {
			return nil, err
		}
		frames[i] = frame
	}
	return frames, nil
}

// encodeItemsParallel produces and encodes count items with up to parallelism
// concurrent workers. Generate calls race, so the item-to-slot assignment
// within the block is arbitrary; the generator defines item identity.
func encodeItemsParallel[T any](ctx context.Context, c codec.Codec, gen Generator[T], count, parallelism int) ([][]byte, error) {
	frames := make([][]byte, count)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	chunk := (count + parallelism - 1) / parallelism
	for start := 0; start < count; start += chunk {
		end := min(start+chunk, count)
		start := start
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				frame, err := encodeItem(c, gen.Generate())
				if err != nil {
					return err
				}
				frames[i] = frame
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return frames, nil
}
