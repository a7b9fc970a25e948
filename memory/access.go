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

// Access to target memory. All multi-byte values are big-endian.
//
// Writes are not visible to instruction fetches until the written range has
// been flushed from the data cache with FlushData() and then invalidated in the
// instruction cache with InvalidateInstruction().
type Access interface {
	Read8(addr uint32) (uint8, error)
	Read16(addr uint32) (uint16, error)
	Read32(addr uint32) (uint32, error)
	Write8(addr uint32, v uint8) error
	Write16(addr uint32, v uint16) error
	Write32(addr uint32, v uint32) error

	// ReadBytes returns a copy of size bytes starting at addr.
	ReadBytes(addr uint32, size uint32) ([]byte, error)

	// WriteBytes copies data to memory starting at addr.
	WriteBytes(addr uint32, data []byte) error

	// Fill size bytes starting at addr with v.
	Fill(addr uint32, size uint32, v uint8) error

	// FlushData writes any dirty data cache lines in the range back to
	// memory. Parts of the range outside of memory are ignored.
	FlushData(addr uint32, size uint32)

	// InvalidateInstruction discards instruction cache lines in the range so
	// that the next fetch sees memory. Lines that are still dirty in the data
	// cache are not refreshed.
	InvalidateInstruction(addr uint32, size uint32)
}

// Sync is the flush/invalidate pair that must follow a write of code.
func Sync(mem Access, addr uint32, size uint32) {
	mem.FlushData(addr, size)
	mem.InvalidateInstruction(addr, size)
}
