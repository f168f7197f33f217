/*
Package sliceset provides a disk-backed store for large, fixed-shape dataset
items that do not fit in memory, such as pre-generated training examples.

A dataset is built once as a sequence of fixed-size, independently loadable
blocks and read back by index, with a bounded number of blocks kept resident
under an LRU policy. The directory is single-writer, multi-reader: one Build
call produces it, any number of Dataset readers consume it.

# Quick Start

Building:

	gen := newExampleGenerator(seed) // implements sliceset.Generator[Example]
	err := sliceset.Build(ctx, 1_000_000, "./data", 64<<20, sliceset.Parallel[Example](gen))

Reading:

	ds, err := sliceset.Open[Example]("./data", 256<<20)
	item, err := ds.Get(42)

Generators declare their concurrency capability: Parallel generators have
block bodies produced by concurrent workers, Sequential ones are called one
item at a time, in order. Both support Skip, which lets an interrupted build
resume without regenerating blocks that already exist on disk.

# On-Disk Layout

One directory per dataset instance:

	config.dat   manifest: {block_memory_size, block_count, block_size, length},
	             four little-endian uint64 values
	{i}.slice    block i, for i in 0..block_count

Every slice holds exactly block_size items, except the highest-indexed slice
when the length is not a multiple of the block size. The block size itself is
derived during the initial build by producing items until their encoded size
reaches the memory budget.

	Slice file:
	+-------------+---------------+-----------------+------------+-----+--------------+
	| magic (u32) | version (u32) | item count (u64) | frame 1   | ... | crc32c (u32) |
	+-------------+---------------+-----------------+------------+-----+--------------+

	Frame:
	+----------------------+------------------------+
	| payload len (uvarint) | codec-encoded item    |
	+----------------------+------------------------+

Slice files are written to a temp name and renamed into place; a crash leaves
either the previous file or none, and the trailing checksum makes a torn file
fail to decode instead of being silently accepted.
*/
package sliceset
