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

// Package memory is the target memory that modules are loaded into.
//
// The Access interface is the only way the rest of modloader reads or writes
// target memory. It deals in big-endian words at 32bit addresses and has the
// cache maintenance operations that must follow any write of code.
//
// Arena is the implementation of Access. It is a single contiguous region of
// an emulated 32bit address space, backed by an anonymous memory mapping where
// the host allows it. Arena models a split data/instruction cache with 32 byte
// lines: a write leaves its lines dirty in the data cache and stale in the
// instruction cache. FlushData() cleans dirty lines and
// InvalidateInstruction() refreshes stale lines, but only once they are clean.
// Instruction fetches from a stale line fail with the StaleInstruction error.
//
// Heap is a first-fit allocator over a range of an Arena. Allocations are
// returned as a Block, which is owned by whoever called Alloc(). A Block is
// zeroed when it is freed.
package memory
