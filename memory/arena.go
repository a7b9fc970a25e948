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
	"encoding/binary"
	"fmt"

	"github.com/jetsetilly/modloader/curated"
	"github.com/jetsetilly/modloader/logger"
)

// Sentinal error patterns.
const (
	InvalidArena     = "memory: invalid arena: %s"
	InvalidAddress   = "memory: access of %d bytes at %#08x is outside of the arena"
	StaleInstruction = "memory: instruction fetch from stale cache line at %#08x"
	BackingError     = "memory: %v"
)

// Arena is a contiguous region of target memory. It implements the Access
// interface.
type Arena struct {
	origin uint32
	memtop uint32

	data []byte

	// cache line state for every line in the arena
	cache cache

	// releases the backing store. nil once Close() has been called
	release func([]byte) error
}

// NewArena creates an arena covering size bytes from origin. The origin must
// be aligned to the cache line size and the arena must not extend beyond the
// top of the 32bit address space.
func NewArena(origin uint32, size uint32) (*Arena, error) {
	if size == 0 {
		return nil, curated.Errorf(InvalidArena, "zero size")
	}
	if origin%LineSize != 0 {
		return nil, curated.Errorf(InvalidArena, fmt.Sprintf("origin %#08x is not aligned to %d bytes", origin, LineSize))
	}
	if uint64(origin)+uint64(size) > 0xffffffff {
		return nil, curated.Errorf(InvalidArena, fmt.Sprintf("%#08x + %#x is beyond the address space", origin, size))
	}

	data, release, err := allocBacking(int(size))
	if err != nil {
		return nil, curated.Errorf(BackingError, err)
	}

	arn := &Arena{
		origin:  origin,
		memtop:  origin + size - 1,
		data:    data,
		cache:   newCache(size),
		release: release,
	}

	logger.Logf(logger.Allow, "memory", "arena: %08x to %08x (%d bytes)", arn.origin, arn.memtop, size)

	return arn, nil
}

func (arn *Arena) String() string {
	return fmt.Sprintf("%08x to %08x", arn.origin, arn.memtop)
}

// Close releases the backing store of the arena. The arena must not be used
// after it has been closed.
func (arn *Arena) Close() error {
	if arn.release == nil {
		return nil
	}
	err := arn.release(arn.data)
	arn.release = nil
	arn.data = nil
	if err != nil {
		return curated.Errorf(BackingError, err)
	}
	return nil
}

// Origin returns the first address in the arena.
func (arn *Arena) Origin() uint32 {
	return arn.origin
}

// Memtop returns the last address in the arena.
func (arn *Arena) Memtop() uint32 {
	return arn.memtop
}

// Size returns the number of bytes in the arena.
func (arn *Arena) Size() uint32 {
	return arn.memtop - arn.origin + 1
}

// MapAddress returns the memory block and the index into that block for the
// address. Returns nil if the address is not in the arena. The write argument
// is accepted for compatability with other memory maps but all of the arena is
// writable.
//
// Writes made directly to the returned memory are not seen by the cache model.
func (arn *Arena) MapAddress(addr uint32, write bool) (*[]byte, uint32) {
	if addr >= arn.origin && addr <= arn.memtop {
		return &arn.data, addr - arn.origin
	}
	return nil, addr
}

// index returns the index into the data slice for an access of size bytes at
// addr.
func (arn *Arena) index(addr uint32, size uint32) (uint32, error) {
	if addr < arn.origin || uint64(addr)+uint64(size) > uint64(arn.memtop)+1 {
		return 0, curated.Errorf(InvalidAddress, size, addr)
	}
	return addr - arn.origin, nil
}

// Read8 implements the Access interface.
func (arn *Arena) Read8(addr uint32) (uint8, error) {
	idx, err := arn.index(addr, 1)
	if err != nil {
		return 0, err
	}
	return arn.data[idx], nil
}

// Read16 implements the Access interface.
func (arn *Arena) Read16(addr uint32) (uint16, error) {
	idx, err := arn.index(addr, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(arn.data[idx:]), nil
}

// Read32 implements the Access interface.
func (arn *Arena) Read32(addr uint32) (uint32, error) {
	idx, err := arn.index(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(arn.data[idx:]), nil
}

// Write8 implements the Access interface.
func (arn *Arena) Write8(addr uint32, v uint8) error {
	idx, err := arn.index(addr, 1)
	if err != nil {
		return err
	}
	arn.data[idx] = v
	arn.cache.write(idx, 1)
	return nil
}

// Write16 implements the Access interface.
func (arn *Arena) Write16(addr uint32, v uint16) error {
	idx, err := arn.index(addr, 2)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint16(arn.data[idx:], v)
	arn.cache.write(idx, 2)
	return nil
}

// Write32 implements the Access interface.
func (arn *Arena) Write32(addr uint32, v uint32) error {
	idx, err := arn.index(addr, 4)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(arn.data[idx:], v)
	arn.cache.write(idx, 4)
	return nil
}

// ReadBytes implements the Access interface.
func (arn *Arena) ReadBytes(addr uint32, size uint32) ([]byte, error) {
	idx, err := arn.index(addr, size)
	if err != nil {
		return nil, err
	}
	b := make([]byte, size)
	copy(b, arn.data[idx:idx+size])
	return b, nil
}

// WriteBytes implements the Access interface.
func (arn *Arena) WriteBytes(addr uint32, data []byte) error {
	idx, err := arn.index(addr, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(arn.data[idx:], data)
	arn.cache.write(idx, uint32(len(data)))
	return nil
}

// Fill implements the Access interface.
func (arn *Arena) Fill(addr uint32, size uint32, v uint8) error {
	idx, err := arn.index(addr, size)
	if err != nil {
		return err
	}
	d := arn.data[idx : idx+size]
	for i := range d {
		d[i] = v
	}
	arn.cache.write(idx, size)
	return nil
}

// clip returns the index range of the part of the address range that lies
// in the arena. ok is false if no part of the range is in the arena.
func (arn *Arena) clip(addr uint32, size uint32) (uint32, uint32, bool) {
	if size == 0 {
		return 0, 0, false
	}
	start := uint64(addr)
	end := start + uint64(size)
	if start < uint64(arn.origin) {
		start = uint64(arn.origin)
	}
	if end > uint64(arn.memtop)+1 {
		end = uint64(arn.memtop) + 1
	}
	if start >= end {
		return 0, 0, false
	}
	return uint32(start) - arn.origin, uint32(end-start), true
}

// FlushData implements the Access interface.
func (arn *Arena) FlushData(addr uint32, size uint32) {
	if idx, n, ok := arn.clip(addr, size); ok {
		arn.cache.flush(idx, n)
	}
}

// InvalidateInstruction implements the Access interface.
func (arn *Arena) InvalidateInstruction(addr uint32, size uint32) {
	if idx, n, ok := arn.clip(addr, size); ok {
		arn.cache.invalidate(idx, n)
	}
}

// Fetch32 reads an instruction word in the same way as the processor would.
// The fetch fails if the cache line containing the address is stale.
func (arn *Arena) Fetch32(addr uint32) (uint32, error) {
	idx, err := arn.index(addr, 4)
	if err != nil {
		return 0, err
	}
	if !arn.cache.coherent(idx, 4) {
		return 0, curated.Errorf(StaleInstruction, addr)
	}
	return binary.BigEndian.Uint32(arn.data[idx:]), nil
}

// Coherent returns true if every cache line in the range has been flushed and
// invalidated since it was last written. Addresses outside of the arena are
// never coherent.
func (arn *Arena) Coherent(addr uint32, size uint32) bool {
	idx, err := arn.index(addr, size)
	if err != nil {
		return false
	}
	return arn.cache.coherent(idx, size)
}
