// This file is part of modloader.
//
// modloader is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// modloader is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with modloader.  If not, see <https://www.gnu.org/licenses/>.

package memory

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/jetsetilly/modloader/curated"
	"github.com/jetsetilly/modloader/logger"
)

// Sentinal error patterns.
const (
	OutOfMemory      = "memory: out of memory (%d bytes aligned to %#x, %d bytes available)"
	InvalidAlignment = "memory: alignment must be a power of two (%#x)"
	InvalidHeap      = "memory: invalid heap: %s"
	DoubleFree       = "memory: block at %#08x has already been freed"
)

// allocations are rounded up to a multiple of minAlloc bytes.
const minAlloc = 4

// span is a free range of the heap. end is exclusive.
type span struct {
	start uint32
	end   uint32
}

// Heap is a first-fit allocator over a range of target memory.
type Heap struct {
	mem    Access
	origin uint32
	memtop uint32

	// free spans sorted by start address and never adjacent
	free []span

	// number of blocks that have not been freed
	live int
}

// NewHeap creates a heap covering size bytes from origin in the supplied
// memory. The range should be entirely in memory; a range that is not will
// cause errors when blocks are freed.
func NewHeap(mem Access, origin uint32, size uint32) (*Heap, error) {
	if size < minAlloc {
		return nil, curated.Errorf(InvalidHeap, fmt.Sprintf("size of %d bytes is too small", size))
	}
	if uint64(origin)+uint64(size) > 0xffffffff {
		return nil, curated.Errorf(InvalidHeap, fmt.Sprintf("%#08x + %#x is beyond the address space", origin, size))
	}

	hp := &Heap{
		mem:    mem,
		origin: origin,
		memtop: origin + size - 1,
		free:   []span{{start: origin, end: origin + size}},
	}

	return hp, nil
}

func (hp *Heap) String() string {
	s := strings.Builder{}
	fmt.Fprintf(&s, "heap %08x to %08x: %d live blocks, free", hp.origin, hp.memtop, hp.live)
	for _, f := range hp.free {
		fmt.Fprintf(&s, " [%08x %08x)", f.start, f.end)
	}
	return s.String()
}

// Memory returns the memory the heap allocates from.
func (hp *Heap) Memory() Access {
	return hp.mem
}

// Origin returns the first address of the heap.
func (hp *Heap) Origin() uint32 {
	return hp.origin
}

// Memtop returns the last address of the heap.
func (hp *Heap) Memtop() uint32 {
	return hp.memtop
}

// Available returns the total number of free bytes. Not all of the free bytes
// will necessarily be available to a single allocation.
func (hp *Heap) Available() uint32 {
	var n uint32
	for _, f := range hp.free {
		n += f.end - f.start
	}
	return n
}

// Live returns the number of allocated blocks that have not been freed.
func (hp *Heap) Live() int {
	return hp.live
}

// Alloc reserves size bytes of memory aligned to align bytes. An alignment of
// zero is the same as an alignment of one. A size of zero is allowed and
// results in a Block that reports a size of zero but which still reserves
// memory.
//
// The contents of the block are whatever was left in memory. Blocks from a
// heap are always zeroed when they are freed so the contents will be zero
// unless the memory was written by some other means.
func (hp *Heap) Alloc(size uint32, align uint32) (*Block, error) {
	if align == 0 {
		align = 1
	}
	if bits.OnesCount32(align) != 1 {
		return nil, curated.Errorf(InvalidAlignment, align)
	}

	reserve := uint64(size)
	if reserve < minAlloc {
		reserve = minAlloc
	}
	reserve = (reserve + minAlloc - 1) &^ (minAlloc - 1)

	for i, f := range hp.free {
		base := (uint64(f.start) + uint64(align) - 1) &^ (uint64(align) - 1)
		if base+reserve > uint64(f.end) {
			continue
		}

		// replace the free span with what remains either side of the block
		var remains []span
		if uint32(base) > f.start {
			remains = append(remains, span{start: f.start, end: uint32(base)})
		}
		if uint32(base+reserve) < f.end {
			remains = append(remains, span{start: uint32(base + reserve), end: f.end})
		}
		hp.free = append(hp.free[:i], append(remains, hp.free[i+1:]...)...)

		hp.live++

		blk := &Block{
			heap:    hp,
			base:    uint32(base),
			size:    size,
			reserve: uint32(reserve),
		}

		logger.Logf(logger.Verbose, "memory", "alloc: %s", blk)

		return blk, nil
	}

	return nil, curated.Errorf(OutOfMemory, size, align, hp.Available())
}

// release returns a span to the free list, merging it with its neighbours.
func (hp *Heap) release(s span) {
	i := 0
	for i < len(hp.free) && hp.free[i].start < s.start {
		i++
	}

	hp.free = append(hp.free, span{})
	copy(hp.free[i+1:], hp.free[i:])
	hp.free[i] = s

	// merge with following span
	if i+1 < len(hp.free) && hp.free[i].end == hp.free[i+1].start {
		hp.free[i].end = hp.free[i+1].end
		hp.free = append(hp.free[:i+1], hp.free[i+2:]...)
	}

	// merge with preceding span
	if i > 0 && hp.free[i-1].end == hp.free[i].start {
		hp.free[i-1].end = hp.free[i].end
		hp.free = append(hp.free[:i], hp.free[i+1:]...)
	}

	hp.live--
}

// Block is an allocation from a Heap. The block is owned exclusively by the
// caller of Heap.Alloc() until it is freed.
type Block struct {
	heap    *Heap
	base    uint32
	size    uint32
	reserve uint32
	freed   bool
}

func (blk *Block) String() string {
	return fmt.Sprintf("%08x to %08x (%d bytes)", blk.base, blk.base+blk.size, blk.size)
}

// Base returns the address of the first byte of the block.
func (blk *Block) Base() uint32 {
	return blk.base
}

// Size returns the size of the block as requested by the call to Alloc().
func (blk *Block) Size() uint32 {
	return blk.size
}

// End returns the address immediately after the last byte of the block.
func (blk *Block) End() uint32 {
	return blk.base + blk.size
}

// Contains returns true if the address range is entirely inside the block.
func (blk *Block) Contains(addr uint32, size uint32) bool {
	return addr >= blk.base && uint64(addr)+uint64(size) <= uint64(blk.End())
}

// Freed returns true if the block has been freed.
func (blk *Block) Freed() bool {
	return blk.freed
}

// Free zeroes the block and returns it to the heap. Freeing a block more than
// once is an error.
func (blk *Block) Free() error {
	if blk.freed {
		return curated.Errorf(DoubleFree, blk.base)
	}

	if err := blk.heap.mem.Fill(blk.base, blk.reserve, 0); err != nil {
		return err
	}
	Sync(blk.heap.mem, blk.base, blk.reserve)

	blk.freed = true
	blk.heap.release(span{start: blk.base, end: blk.base + blk.reserve})

	logger.Logf(logger.Verbose, "memory", "free: %s", blk)

	return nil
}
