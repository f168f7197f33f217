package sliceset

import (
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/sliceset/codec"
	"github.com/hupe1980/sliceset/internal/blockio"
	"github.com/hupe1980/sliceset/internal/fs"
)

// Dataset provides random access over a directory built by Build, keeping a
// bounded number of blocks resident in memory under an LRU policy.
//
// It is safe for concurrent use by multiple readers. A Dataset never writes:
// eviction frees memory, never files.
type Dataset[T any] struct {
	fsys  fs.FileSystem
	codec codec.Codec
	log   *Logger
	dir   string

	length          int
	blockSize       int
	maxCachedBlocks int

	slots []slot[T]

	// mu guards the LRU ledger: the recency list and the resident set.
	// No slot mutex is ever acquired while mu is held, so a slot busy with
	// disk I/O can never stall ledger operations; clearEvicted takes a slot
	// mutex first and mu second to re-check residency.
	mu       sync.Mutex
	lru      *list.List // of int block indices, front is most recently used
	resident map[int]*list.Element

	hits   atomic.Int64
	misses atomic.Int64
}

// slot holds the in-memory items of one block, or nil when unloaded.
// Its mutex additionally serializes disk loads, so concurrent misses on the
// same block read the file exactly once.
type slot[T any] struct {
	mu    sync.Mutex
	items []T
}

// Open opens a dataset directory for reading. memoryBudget bounds the bytes
// held by resident blocks: the number of cached blocks is the budget divided
// by the block memory size recorded at build time, but always at least one.
func Open[T any](dir string, memoryBudget int, opts ...Option) (*Dataset[T], error) {
	if memoryBudget < 0 {
		return nil, fmt.Errorf("%w: memory budget %d", ErrInvalidArgument, memoryBudget)
	}

	o := applyOptions(opts)

	m, err := loadManifest(o.fsys, dir)
	if err != nil {
		return nil, err
	}

	maxCachedBlocks := memoryBudget / int(m.blockMemorySize)
	if maxCachedBlocks < 1 {
		maxCachedBlocks = 1
	}

	d := &Dataset[T]{
		fsys:            o.fsys,
		codec:           o.codec,
		log:             o.logger.WithDir(dir),
		dir:             dir,
		length:          int(m.length),
		blockSize:       int(m.blockSize),
		maxCachedBlocks: maxCachedBlocks,
		slots:           make([]slot[T], m.blockCount),
		lru:             list.New(),
		resident:        make(map[int]*list.Element, maxCachedBlocks),
	}
	d.log.LogOpen(d.length, len(d.slots), maxCachedBlocks)
	return d, nil
}

// Len returns the total number of items in the dataset.
func (d *Dataset[T]) Len() int { return d.length }

// Blocks returns the number of block files of the dataset.
func (d *Dataset[T]) Blocks() int { return len(d.slots) }

// BlockSize returns the number of items per block (the trailing block may
// hold fewer).
func (d *Dataset[T]) BlockSize() int { return d.blockSize }

// Stats returns the cache hit and miss counts since Open.
func (d *Dataset[T]) Stats() (hits, misses int64) {
	return d.hits.Load(), d.misses.Load()
}

// Get returns the item at index, loading its block from disk if it is not
// resident and evicting the least-recently-used block when the cache is full.
// Indices at or beyond Len return ErrNotFound. Every call, hit or miss, moves
// the owning block to most-recently-used.
//
// Items of blocks loaded once are shared between callers until the block is
// evicted; treat reference fields inside T as read-only.
func (d *Dataset[T]) Get(index int) (T, error) {
	var zero T
	if index < 0 || index >= d.length {
		return zero, fmt.Errorf("%w: index %d, length %d", ErrNotFound, index, d.length)
	}

	block := index / d.blockSize
	offset := index % d.blockSize
	s := &d.slots[block]

	for {
		d.mu.Lock()
		if el, ok := d.resident[block]; ok {
			d.lru.MoveToFront(el)
			d.mu.Unlock()

			// Waiting for the slot without the ledger lock keeps gets for
			// other resident blocks from stalling behind this block's load.
			s.mu.Lock()
			items := s.items
			s.mu.Unlock()
			if items == nil {
				// Evicted, or the load failed and the ledger entry is being
				// rolled back; start over.
				continue
			}
			d.hits.Add(1)
			if offset >= len(items) {
				return zero, fmt.Errorf("%w: %s: item %d of %d",
					ErrCorruptBlock, blockio.Path(d.dir, block), offset, len(items))
			}
			return items[offset], nil
		}

		// Miss: pick a victim and claim the ledger entry in one critical
		// section, then release the ledger before touching any slot. Clearing
		// the victim may have to wait out a load in flight on its slot, and
		// nothing else should queue behind that.
		victim := -1
		if d.lru.Len() >= d.maxCachedBlocks {
			back := d.lru.Back()
			victim = back.Value.(int)
			d.lru.Remove(back)
			delete(d.resident, victim)
		}
		el := d.lru.PushFront(block)
		d.resident[block] = el
		d.mu.Unlock()

		if victim >= 0 {
			d.clearEvicted(victim)
		}

		s.mu.Lock()
		if s.items == nil {
			items, err := blockio.Read[T](d.fsys, d.codec, blockio.Path(d.dir, block))
			if err != nil {
				s.mu.Unlock()
				d.dropEntry(block, el)
				return zero, err
			}
			s.items = items
		}
		items := s.items

		// The claim may have been evicted while the load was in flight; a
		// stale claim must not keep the block in memory.
		d.mu.Lock()
		_, still := d.resident[block]
		d.mu.Unlock()
		if !still {
			s.items = nil
		}
		s.mu.Unlock()

		d.misses.Add(1)
		if offset >= len(items) {
			return zero, fmt.Errorf("%w: %s: item %d of %d",
				ErrCorruptBlock, blockio.Path(d.dir, block), offset, len(items))
		}
		return items[offset], nil
	}
}

// clearEvicted frees the items of a block removed from the ledger. The block
// may have been claimed again between its removal and this call; the residency
// re-check keeps a reclaimed block's items intact, and its own later eviction
// frees them instead. A claimer racing past the check simply reloads the block.
func (d *Dataset[T]) clearEvicted(block int) {
	s := &d.slots[block]
	s.mu.Lock()
	defer s.mu.Unlock()

	d.mu.Lock()
	_, reclaimed := d.resident[block]
	d.mu.Unlock()
	if reclaimed {
		return
	}

	s.items = nil
	d.log.LogEvict(block)
}

// dropEntry rolls back a ledger entry after a failed load.
func (d *Dataset[T]) dropEntry(block int, el *list.Element) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.resident[block]; ok && cur == el {
		d.lru.Remove(el)
		delete(d.resident, block)
	}
}

// residentBlocks returns the resident block indices, most recently used first.
// Tests use it to check the LRU bound.
func (d *Dataset[T]) residentBlocks() []int {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]int, 0, d.lru.Len())
	for el := d.lru.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(int))
	}
	return out
}
